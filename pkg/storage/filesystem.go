// Package storage keeps the standalone copy of the roadmap on local disk.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/milestone/pkg/domain/roadmap"
)

const Dir = ".milestone"
const SnapshotFile = "roadmap.json"
const ConfigFile = "config.yaml"

// FileStore is the local persistence slot: a single JSON file under .milestone.
type FileStore struct {
	root        string
	logger      *slog.Logger
	retryConfig retry.Config
}

func NewFileStore(root string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		root:   root,
		logger: logger,
		retryConfig: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  10 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
	}
}

// Root returns the workspace root directory.
func (s *FileStore) Root() string {
	return s.root
}

// ResolvePath ensures the path is a direct child of the .milestone directory.
func (s *FileStore) ResolvePath(filename string) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("filename cannot be empty")
	}

	baseDir := filepath.Join(s.root, Dir)
	cleanPath := filepath.Clean(filepath.Join(baseDir, filename))

	if !strings.HasPrefix(cleanPath, baseDir) || filepath.Dir(cleanPath) != baseDir {
		return "", fmt.Errorf("invalid file path: %s", filename)
	}
	return cleanPath, nil
}

// Path returns the location of the snapshot file.
func (s *FileStore) Path() string {
	return filepath.Join(s.root, Dir, SnapshotFile)
}

func (s *FileStore) Initialize() error {
	// G301: Use 0700 for directories
	if err := os.MkdirAll(filepath.Join(s.root, Dir), 0700); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", Dir, err)
	}
	return nil
}

// Read returns the stored snapshot. A missing file yields an error matching
// os.ErrNotExist, malformed content a *roadmap.ParseError.
func (s *FileStore) Read() (roadmap.Snapshot, error) {
	path, err := s.ResolvePath(SnapshotFile)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	retryer := retry.New[[]byte](s.retryConfig)
	data, err := retryer.Do(context.Background(), func(ctx context.Context) ([]byte, error) {
		// #nosec G304 -- Path is resolved and validated via ResolvePath
		return os.ReadFile(path)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	return roadmap.Decode(path, data)
}

// Load returns the stored snapshot, or the bundled roadmap when the slot is
// empty or unreadable. It never fails.
func (s *FileStore) Load() roadmap.Snapshot {
	snap, err := s.Read()
	if err == nil {
		return snap
	}
	if !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("local snapshot unusable, using bundled roadmap", "path", s.Path(), "err", err)
	}
	return roadmap.Default()
}

// Write stores the snapshot atomically (temp file + rename).
func (s *FileStore) Write(snap roadmap.Snapshot) error {
	if err := s.Initialize(); err != nil {
		return err
	}
	path, err := s.ResolvePath(SnapshotFile)
	if err != nil {
		return err
	}

	data, err := roadmap.EncodeIndent(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), SnapshotFile+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Save is the best-effort form of Write: failures are logged and swallowed.
func (s *FileStore) Save(snap roadmap.Snapshot) {
	if err := s.Write(snap); err != nil {
		s.logger.Warn("failed to save local snapshot", "path", s.Path(), "err", err)
	}
}
