// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

package agentconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Store persists an agent's provisioning record between setup steps.
// Setup saves after every step that changes the record, then reads it
// back before steps that depend on the stored identifiers, so the
// store is the source of truth rather than in-memory state.
type Store interface {
	// Load reads the current record. The error wraps os.ErrNotExist
	// when no record has been saved yet.
	Load() (*AgentConfig, error)

	// Save writes the record durably. On return the record is either
	// fully written or untouched, never half-written.
	Save(config *AgentConfig) error
}

// FileStore keeps the record as a JSON file, written atomically via a
// temp file and rename. A sidecar .lock file serializes writers across
// processes: the setup pipeline itself is strictly sequential, but
// nothing stops an operator from starting two runs against the same
// config file.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the JSON file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file the store reads and writes.
func (s *FileStore) Path() string { return s.path }

// Load implements Store. The file may be authored by hand, so JSONC
// comments and trailing commas are accepted.
func (s *FileStore) Load() (*AgentConfig, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}

	config, err := ParseAgent(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return config, nil
}

// Save implements Store.
func (s *FileStore) Save(config *AgentConfig) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding agent config: %w", err)
	}
	data = append(data, '\n')

	return s.withLock(func() error {
		return s.writeAtomic(data)
	})
}

// withLock runs fn while holding an exclusive advisory lock on the
// sidecar lock file. The lock file persists across renames of the
// record itself, so two processes always contend on the same inode.
func (s *FileStore) withLock(fn func() error) error {
	lockPath := s.path + ".lock"

	lockFile, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("opening lock file %s: %w", lockPath, err)
	}
	defer lockFile.Close()

	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("locking %s: %w", lockPath, err)
	}
	defer unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)

	return fn()
}

// writeAtomic writes data to the record path via a temp file in the
// same directory followed by a rename, so readers never observe a
// partial record.
func (s *FileStore) writeAtomic(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".agentconfig-*.json")
	if err != nil {
		return fmt.Errorf("creating temp config file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing config data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("syncing config data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp config file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("renaming config file to %s: %w", s.path, err)
	}

	success = true
	return nil
}
