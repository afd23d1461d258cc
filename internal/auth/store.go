package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const tokenFilePerm = 0o600

// ErrNoToken means no credentials were ever persisted.
var ErrNoToken = errors.New("no token stored")

// Store persists the token record.
type Store interface {
	Load() (*TokenRecord, error)
	Save(rec TokenRecord) error
}

// FileStore keeps the token record as JSON in a single file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns ErrNoToken when the file does not exist.
func (s *FileStore) Load() (*TokenRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoToken
		}

		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var rec TokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode token file: %w", err)
	}

	return &rec, nil
}

// Save replaces the file atomically so a crash never leaves a truncated token file.
func (s *FileStore) Save(rec TokenRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp token file: %w", err)
	}

	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()

		return fmt.Errorf("failed to write token file: %w", err)
	}

	if err := tmp.Chmod(tokenFilePerm); err != nil {
		tmp.Close()

		return fmt.Errorf("failed to chmod token file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close token file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}

	return nil
}
