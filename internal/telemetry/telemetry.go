// Package telemetry records what a generation run does: a JSONL event
// stream of run milestones, Prometheus metrics and OpenTelemetry spans.
// Every piece is optional; nil values are valid no-ops.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Event kinds identify the type of telemetry event.
const (
	KindRunStart         = "run_start"
	KindRunDone          = "run_done"
	KindRunFailed        = "run_failed"
	KindConfigReconciled = "config_reconciled"
	KindConfigDone       = "config_done"
	KindEditionAccepted  = "edition_accepted"
	KindEditionReplayed  = "edition_replayed"
	KindCollision        = "collision"
	KindArtifactWritten  = "artifact_written"
)

// Event represents a single telemetry record. Config is nil for run-wide
// events.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Kind      string    `json:"kind"`
	RunID     string    `json:"run,omitempty"`
	Config    *int      `json:"configuration,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// ForConfig returns a pointer suitable for Event.Config.
func ForConfig(idx int) *int { return &idx }

// Emitter writes telemetry events to a JSONL file. It is safe for concurrent
// use by multiple goroutines. A nil *Emitter is a valid no-op emitter.
type Emitter struct {
	file *os.File
	enc  *json.Encoder
	mu   sync.Mutex
}

// NewEmitter creates a new Emitter that writes JSONL events to the file at
// path. The file is created if it does not exist, or appended to if it does.
func NewEmitter(path string) (*Emitter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	return &Emitter{
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

// Emit writes a single event, stamping it when Timestamp is zero.
// Calling Emit on a nil Emitter is a no-op.
func (e *Emitter) Emit(evt Event) error {
	if e == nil {
		return nil
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(evt); err != nil {
		return fmt.Errorf("telemetry: encode event: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file. Calling Close on a nil
// Emitter is a no-op.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.file.Close(); err != nil {
		return fmt.Errorf("telemetry: close: %w", err)
	}
	return nil
}
