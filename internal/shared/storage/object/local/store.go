package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cvcreator-backend/internal/shared/storage/object"
	"cvcreator-backend/internal/shared/telemetry"
)

// Store implements object.Store using the local filesystem. Keys map to relative paths under baseDir.
type Store struct {
	baseDir string
}

// New creates a new local object store rooted at baseDir.
func New(baseDir string) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("local store base dir is required")
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	return &Store{baseDir: abs}, nil
}

// Put writes data to a temp file next to the target and renames it into place,
// so readers never observe a partially written object.
func (s *Store) Put(ctx context.Context, key string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := s.fullPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o700); err != nil {
		return fmt.Errorf("mkdir: %w: %w", object.ErrUnavailable, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".put-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w: %w", object.ErrUnavailable, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write body: %w: %w", object.ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w: %w", object.ErrUnavailable, err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w: %w", object.ErrUnavailable, err)
	}
	return nil
}

// Get reads a stored object.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := s.fullPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, object.ErrNotFound
		}
		return nil, fmt.Errorf("read file: %w: %w", object.ErrUnavailable, err)
	}
	return data, nil
}

// Delete removes the object and prunes directories left empty. A missing object is success.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := s.fullPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("remove file: %w: %w", object.ErrUnavailable, err)
	}

	dir := filepath.Dir(fullPath)
	if dir != s.baseDir && strings.HasPrefix(dir, s.baseDir) {
		if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
			if err := os.Remove(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
				telemetry.Warn("local_store.prune_failed", map[string]any{"dir": dir, "error": err})
			}
		}
	}
	return nil
}

// SignedURL is not supported; local deployments stream downloads through the API.
func (s *Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "", object.ErrSigningUnsupported
}

// CanOverwrite reports true: Put replaces files in place.
func (s *Store) CanOverwrite() bool { return true }

func (s *Store) fullPath(key string) (string, error) {
	clean, err := object.CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(clean)), nil
}

var _ object.Store = (*Store)(nil)
