// Package testutil provides shared test helpers: a logger that writes
// through the test log and workspace fixtures.
package testutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// NewTestLogger returns a debug logger that writes to t.Log().
// Logs only appear on test failure or when running with -v.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (n int, err error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}

// SampleWorkspace has one layer owning a source node and a buffer of it,
// an unowned intersection and two datasets.
const SampleWorkspace = `layers:
  - letter: a
    name: Stores
    color: "#F15743"
nodes:
  - id: a0
    type: source
    table_name: stores
  - id: a1
    type: buffer
    params:
      source: a0
  - id: x0
    type: intersection
    params:
      source: a0
      target: a1
datasets:
  - name: stores
    geometry: [point]
  - name: roads
    geometry: [line]
`

// WriteFile writes content to name inside dir and returns the path.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}
