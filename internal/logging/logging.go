// Package logging configures the application logger. Stdout belongs to the
// TUI, so the debug log goes to a file; without --debug everything is a nop.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// DefaultPath returns the per-user debug log location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("logging: resolving config dir: %w", err)
	}
	return filepath.Join(dir, "inboxchat", "debug.log"), nil
}

// New builds a file-backed zap logger, or a nop logger when debug is off.
func New(path string, debug bool) (*zap.Logger, error) {
	if !debug {
		return zap.NewNop(), nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("logging: creating directory: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: building logger: %w", err)
	}
	return logger, nil
}
