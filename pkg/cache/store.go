// Package cache persists the latest merged context snapshot to a
// day-keyed file that outside tools read. The store is best-effort by
// contract: a failed write is reported but must never affect recording.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	apperrors "github.com/inframehq/inframe/pkg/errors"
)

// DayKeyLayout names the per-day snapshot file under the cache root.
const DayKeyLayout = "20060102"

// Store holds a single current snapshot. Each write replaces the previous
// one wholesale; there is no append, no history, no versioning.
type Store interface {
	// Write replaces the snapshot for the current day.
	Write(text string) error

	// Read returns the latest snapshot. A missing or empty file reads
	// back as ("", nil): "no context yet" is not an error.
	Read() (string, error)

	// Path returns the file the current day's snapshot lives at.
	Path() string
}

// FileStore implements Store using one overwritable file per calendar day
// under a fixed root, e.g. ~/.cache/inframe/20260825.
type FileStore struct {
	root      string
	fixedPath string
	now       func() time.Time
	mu        sync.Mutex
}

// NewFileStore creates a day-keyed store under root. If root is empty,
// defaults to ~/.cache/inframe.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		root = filepath.Join(homeDir, ".cache", "inframe")
	}

	return &FileStore{
		root: root,
		now:  time.Now,
	}, nil
}

// NewFileStoreAt creates a store pinned to an exact file path, bypassing
// the day-keyed convention. Used for CLI --cache-file overrides.
func NewFileStoreAt(path string) *FileStore {
	return &FileStore{
		fixedPath: path,
		now:       time.Now,
	}
}

// Path returns the snapshot file for the current day. Recomputed on every
// call so a long-running process rolls over at midnight.
func (s *FileStore) Path() string {
	if s.fixedPath != "" {
		return s.fixedPath
	}
	return filepath.Join(s.root, s.now().Format(DayKeyLayout))
}

// Write replaces the day's snapshot with text using write-then-replace:
// the content lands in a temp file first and is renamed over the target,
// so readers never observe a partial write. Empty text is skipped; a
// snapshot file, once created, stays non-empty.
func (s *FileStore) Write(text string) error {
	if text == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return apperrors.New(apperrors.ErrCodeCacheWrite, "failed to create cache directory", err)
	}

	tempFile, err := os.CreateTemp(dir, ".context-*.tmp")
	if err != nil {
		return apperrors.New(apperrors.ErrCodeCacheWrite, "failed to create temp snapshot file", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.WriteString(text); err != nil {
		_ = tempFile.Close()
		return apperrors.New(apperrors.ErrCodeCacheWrite, "failed to write temp snapshot file", err)
	}

	if err := tempFile.Chmod(0600); err != nil {
		_ = tempFile.Close()
		return apperrors.New(apperrors.ErrCodeCacheWrite, "failed to chmod temp snapshot file", err)
	}

	if err := tempFile.Close(); err != nil {
		return apperrors.New(apperrors.ErrCodeCacheWrite, "failed to close temp snapshot file", err)
	}

	if err := os.Rename(tempName, path); err != nil {
		return apperrors.New(apperrors.ErrCodeCacheWrite, "failed to replace snapshot file", err)
	}

	cleanup = false
	return nil
}

// Read returns the latest snapshot text. Missing and empty files both mean
// "no context yet" and read back as ("", nil).
func (s *FileStore) Read() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read snapshot file: %w", err)
	}
	return string(data), nil
}

// Encode turns an integrator context value into snapshot text: strings
// pass through, Stringers stringify, everything else is JSON-encoded.
func Encode(v any) (string, error) {
	switch value := v.(type) {
	case string:
		return value, nil
	case fmt.Stringer:
		return value.String(), nil
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", apperrors.New(apperrors.ErrCodeCacheWrite, "failed to encode context snapshot", err)
		}
		return string(data), nil
	}
}
