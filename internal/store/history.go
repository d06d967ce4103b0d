// Package store persists the per-repository statistics history as a single JSON document.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/naka-gawa/github-badges/internal/domain"
)

const (
	filePerm = 0o644
	dirPerm  = 0o755
)

// HistoryStore reads and writes the history document at a fixed path.
type HistoryStore struct {
	path string
}

// NewHistoryStore creates a HistoryStore bound to path.
func NewHistoryStore(path string) *HistoryStore {
	return &HistoryStore{path: path}
}

// Path returns the location of the history document.
func (s *HistoryStore) Path() string {
	return s.path
}

// Load reads the history document. A missing file yields an empty history.
func (s *HistoryStore) Load() (domain.StatsHistory, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.StatsHistory{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history %s: %w", s.path, err)
	}

	history := domain.StatsHistory{}
	if len(data) == 0 {
		return history, nil
	}
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to decode history %s: %w", s.path, err)
	}
	// A "null" record would otherwise be indistinguishable from a first observation.
	for repo, rec := range history {
		if rec == nil {
			delete(history, repo)
		}
	}
	return history, nil
}

// Save overwrites the history document. The new content is written to a temporary file in
// the same directory and renamed into place, so readers never see a partial document.
func (s *HistoryStore) Save(history domain.StatsHistory) error {
	if history == nil {
		history = domain.StatsHistory{}
	}
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create history dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp history file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp history file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp history file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp history file: %w", err)
	}
	if err := os.Chmod(tmpPath, filePerm); err != nil {
		return fmt.Errorf("failed to chmod temp history file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace history %s: %w", s.path, err)
	}
	return nil
}
