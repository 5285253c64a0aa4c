package log

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// These tests mutate package state and must not run in parallel.

func disable() {
	mu.Lock()
	enabled = false
	mu.Unlock()
}

func TestLogWritesCategoryAndFields(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, slog.LevelDebug)
	defer disable()

	Debug(CatGenerate, "edition accepted", "edition", 7, "dna", "0:Red-1:Cap")
	out := buf.String()
	for _, want := range []string{"level=DEBUG", "cat=generate", `msg="edition accepted"`, "edition=7", "dna=0:Red-1:Cap"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestLogRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, slog.LevelWarn)
	defer disable()

	Info(CatConfig, "ignored")
	Warn(CatConfig, "kept")
	if strings.Contains(buf.String(), "ignored") {
		t.Errorf("info message logged at warn level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("warn message missing: %q", buf.String())
	}
}

func TestLogDisabled(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, slog.LevelDebug)
	disable()

	Error(CatLedger, "dropped")
	if buf.Len() != 0 {
		t.Errorf("disabled logger wrote %q", buf.String())
	}
}

func TestErrorErr(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, slog.LevelDebug)
	defer disable()

	ErrorErr(CatExport, "upload failed", errors.New("denied"), "key", "dna.json")
	if !strings.Contains(buf.String(), "error=denied") {
		t.Errorf("output %q missing error field", buf.String())
	}
}

func TestInitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strata.log")
	cleanup, err := Init(path, slog.LevelInfo)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	Info(CatWatch, "manifest changed")
	cleanup()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "cat=watch") {
		t.Errorf("log file %q missing entry", data)
	}
}
