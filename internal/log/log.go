// Package log provides categorized structured logging for strata.
// Logging is off until Init or InitWriter is called, typically from the
// --verbose flag or the log_file setting.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Category groups related log messages.
type Category string

const (
	CatConfig    Category = "config"    // Manifest and runtime configuration
	CatCompat    Category = "compat"    // Rule declaration and retirement
	CatReconcile Category = "reconcile" // Weight resolution and redistribution
	CatGenerate  Category = "generate"  // Per-edition selection
	CatLedger    Category = "ledger"    // DNA ledger persistence
	CatExport    Category = "export"    // Audit and DNA export
	CatWatch     Category = "watch"     // Manifest watcher events
	CatPipeline  Category = "pipeline"  // Sink worker pool
)

var (
	mu      sync.RWMutex
	logger  *slog.Logger
	closer  io.Closer
	enabled bool
)

// Init opens path for appending and routes log output to it. The returned
// cleanup closes the file.
func Init(path string, level slog.Level) (func(), error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G304: user-chosen log path
	if err != nil {
		return nil, err
	}
	InitWriter(f, level)
	mu.Lock()
	closer = f
	mu.Unlock()
	return func() {
		mu.Lock()
		defer mu.Unlock()
		if closer != nil {
			_ = closer.Close()
			closer = nil
		}
		enabled = false
	}, nil
}

// InitWriter routes log output to w.
func InitWriter(w io.Writer, level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	enabled = true
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) { emit(slog.LevelDebug, cat, msg, fields) }

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) { emit(slog.LevelInfo, cat, msg, fields) }

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) { emit(slog.LevelWarn, cat, msg, fields) }

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) { emit(slog.LevelError, cat, msg, fields) }

// ErrorErr logs err alongside msg.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	if err != nil {
		fields = append(fields, "error", err.Error())
	} else {
		fields = append(fields, "error", "<nil>")
	}
	emit(slog.LevelError, cat, msg, fields)
}

func emit(level slog.Level, cat Category, msg string, fields []any) {
	mu.RLock()
	l, on := logger, enabled
	mu.RUnlock()
	if !on || !l.Enabled(context.Background(), level) {
		return
	}
	l.Log(context.Background(), level, msg, append([]any{"cat", string(cat)}, fields...)...)
}
