// Package watermark keeps the last processed history cursor of every mailbox.
package watermark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"rfp-mail-ingest/internal/models"
)

// Store persists one cursor per mailbox identity
type Store interface {
	// Get returns the stored cursor and whether one exists
	Get(ctx context.Context, mailbox string) (models.Cursor, bool, error)
	Set(ctx context.Context, mailbox string, cursor models.Cursor) error
}

// FileStore keeps all watermarks in a single JSON object on disk
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file is created on first Set.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func key(mailbox string) string {
	return strings.ToLower(strings.TrimSpace(mailbox))
}

func (s *FileStore) Get(ctx context.Context, mailbox string) (models.Cursor, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	marks, err := s.load()
	if err != nil {
		return "", false, err
	}
	c, ok := marks[key(mailbox)]
	return c, ok, nil
}

func (s *FileStore) Set(ctx context.Context, mailbox string, cursor models.Cursor) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	marks, err := s.load()
	if err != nil {
		return err
	}
	marks[key(mailbox)] = cursor
	return s.save(marks)
}

func (s *FileStore) load() (map[string]models.Cursor, error) {
	marks := make(map[string]models.Cursor)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return marks, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read watermarks: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return marks, nil
	}
	if err := json.Unmarshal(data, &marks); err != nil {
		return nil, fmt.Errorf("failed to decode watermarks %s: %w", s.path, err)
	}
	return marks, nil
}

// save writes to a temp file in the same directory and renames it over the
// target, so a crash leaves either the old or the new content.
func (s *FileStore) save(marks map[string]models.Cursor) error {
	data, err := json.MarshalIndent(marks, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode watermarks: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create watermark dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".watermarks-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write watermarks: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync watermarks: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace watermarks: %w", err)
	}
	return nil
}
