// Package blob persists raw ingestion payloads on the local filesystem.
//
// Payloads live under <root>/ingestions/<ingestion-id>.txt, one file per
// ingestion. The database keeps only parsed events; the blob is the source
// of truth for reprocessing.
package blob

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by Get when no payload exists for the ingestion.
var ErrNotFound = errors.New("blob: payload not found")

// Store reads and writes ingestion payloads under a root directory.
type Store struct {
	root string
}

// NewStore creates the payload directory if needed and returns a store
// rooted at dir.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("blob: empty storage dir")
	}
	if err := os.MkdirAll(filepath.Join(dir, "ingestions"), 0755); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}
	return &Store{root: dir}, nil
}

// Path returns the location a payload for ingestionID is stored at, whether
// or not it exists yet.
func (s *Store) Path(ingestionID string) string {
	return filepath.Join(s.root, "ingestions", ingestionID+".txt")
}

// Put writes the payload for ingestionID, replacing any previous one, and
// returns the file path.
func (s *Store) Put(ingestionID, text string) (string, error) {
	path := s.Path(ingestionID)
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("writing payload: %w", err)
	}
	return path, nil
}

// Get returns the payload stored for ingestionID, or ErrNotFound.
func (s *Store) Get(ingestionID string) (string, error) {
	data, err := os.ReadFile(s.Path(ingestionID))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, ingestionID)
	}
	if err != nil {
		return "", fmt.Errorf("reading payload: %w", err)
	}
	return string(data), nil
}

// Delete removes the payload for ingestionID. Deleting a payload that was
// never written is not an error.
func (s *Store) Delete(ingestionID string) error {
	err := os.Remove(s.Path(ingestionID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing payload: %w", err)
	}
	return nil
}
