package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nerrad567/boxpanel/internal/infrastructure/logging"
)

// File permission constants for the credential file.
const (
	credDirPermissions  = 0750
	credFilePermissions = 0600
)

// Store persists the application credential on stable storage.
//
// The backing file is a small JSON object at the configured path. A missing
// or corrupt file is treated as "not registered", never as a fatal error:
// the worst outcome of losing the file is having to register again.
type Store struct {
	path   string
	logger *logging.Logger
}

// NewStore creates a credential store backed by the file at path.
func NewStore(path string, logger *logging.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger,
	}
}

// Load reads the persisted credential.
//
// Returns:
//   - *Credential: The stored credential, or nil if none is usable
//   - error: Only for unexpected I/O failures; missing or corrupt files
//     return (nil, nil)
func (s *Store) Load() (*Credential, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credential file: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil || cred.AppToken == "" {
		s.logger.Warn("credential file unreadable, treating as not registered", "path", s.path)
		return nil, nil
	}

	return &cred, nil
}

// Save persists the credential, creating the directory if absent.
//
// The write goes through a temporary file and rename so a crash mid-write
// cannot leave a truncated credential behind.
func (s *Store) Save(cred *Credential) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, credDirPermissions); err != nil {
		return fmt.Errorf("creating credential directory: %w", err)
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encoding credential: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, credFilePermissions); err != nil {
		return fmt.Errorf("writing credential file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing credential file: %w", err)
	}

	return nil
}

// Erase removes the persisted credential, forcing re-registration.
// Removing an already-absent file is not an error.
func (s *Store) Erase() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing credential file: %w", err)
	}
	return nil
}
