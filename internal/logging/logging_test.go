package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_NopWithoutDebug(t *testing.T) {
	logger, err := New(filepath.Join(t.TempDir(), "debug.log"), false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("should go nowhere")

	entries, err := os.ReadDir(t.TempDir())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Error("nop logger must not create files")
	}
}

func TestNew_DebugWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "debug.log")
	logger, err := New(path, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("hello from test")
	logger.Sync() //nolint:errcheck // Sync on files can fail harmlessly on some platforms.

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(data), "hello from test") {
		t.Errorf("log file missing entry, got %q", string(data))
	}
}
