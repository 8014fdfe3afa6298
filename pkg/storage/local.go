package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LocalStore keeps generated report artifacts on the local filesystem under a
// base directory. Filenames are always resolved relative to the base.
type LocalStore struct {
	baseDir string
}

// NewLocalStore ensures the base directory exists.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if baseDir == "" {
		baseDir = "./reports"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

// Save writes the artifact and returns its name for URL composition.
func (s *LocalStore) Save(filename string, data []byte) (string, error) {
	path := filepath.Join(s.baseDir, filepath.Clean("/"+filename))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare report directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report artifact: %w", err)
	}
	return filename, nil
}

// Open returns a read-only handle for a stored artifact.
func (s *LocalStore) Open(filename string) (*os.File, error) {
	path := filepath.Join(s.baseDir, filepath.Clean("/"+filename))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report artifact: %w", err)
	}
	return f, nil
}

// PruneOlderThan deletes artifacts whose modification time predates the TTL
// and reports how many were removed.
func (s *LocalStore) PruneOlderThan(ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)
	removed := 0
	err := filepath.WalkDir(s.baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("prune report artifacts: %w", err)
	}
	return removed, nil
}
