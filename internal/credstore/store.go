// Package credstore persists the signed-in user's credential to the filesystem.
// It is a pure holder: token well-formedness is the backend's concern.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Credential is the opaque token and user identifier for one signed-in session.
// At most one credential exists per profile at a time.
type Credential struct {
	Token string `json:"token"`
	User  string `json:"user"`
}

// Store reads and writes the credential file.
type Store struct {
	path string
}

// NewStore creates a Store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultPath returns the per-user credential file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("credstore: resolving config dir: %w", err)
	}
	return filepath.Join(dir, "inboxchat", "credentials.json"), nil
}

// Save writes the credential, replacing any existing one.
// The file is created 0600 since it holds a bearer token.
func (s *Store) Save(cred Credential) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("credstore: creating directory: %w", err)
	}

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("credstore: marshaling: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("credstore: writing %s: %w", s.path, err)
	}
	return nil
}

// Load reads the persisted credential.
// Returns (cred, true, nil) if present, (zero, false, nil) if absent.
func (s *Store) Load() (Credential, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Credential{}, false, nil
		}
		return Credential{}, false, fmt.Errorf("credstore: reading %s: %w", s.path, err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return Credential{}, false, fmt.Errorf("credstore: parsing %s: %w", s.path, err)
	}
	if cred.Token == "" {
		return Credential{}, false, nil
	}
	return cred, true, nil
}

// Clear deletes the credential file. Clearing an absent credential is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("credstore: removing %s: %w", s.path, err)
	}
	return nil
}
