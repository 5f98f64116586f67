// Package tempfile hands out uniquely named scratch files for inbound media
// and guarantees each one is removed exactly once.
package tempfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"digestbot/pkg/logger"

	"go.uber.org/zap"
)

type Store struct {
	dir string
}

// NewStore creates the scratch directory if needed
func NewStore(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve temp dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	return &Store{dir: abs}, nil
}

// Dir returns the absolute scratch directory
func (s *Store) Dir() string {
	return s.dir
}

// Acquire reserves a new empty file named after the media kind, the sender
// and the attachment's unique id. The caller owns the returned File and must
// Release it.
func (s *Store) Acquire(kind string, senderID int64, uniqueID, ext string) (*File, error) {
	pattern := fmt.Sprintf("%s_%d_%s_*%s", sanitize(kind), senderID, sanitize(uniqueID), ext)

	f, err := os.CreateTemp(s.dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	return &File{Path: path}, nil
}

// Adopt takes ownership of a file produced by someone else inside the
// scratch directory, e.g. a transcoder output.
func (s *Store) Adopt(path string) *File {
	return &File{Path: path}
}

// Sweep removes regular files older than maxAge. It is meant for leftovers
// of a previous run that was killed mid-request.
func (s *Store) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read temp dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err == nil {
			removed++
		}
	}

	return removed, nil
}

// File is a scratch file scoped to one request
type File struct {
	Path string

	once sync.Once
	err  error
}

// Release deletes the file. Only the first call touches the filesystem;
// later calls return the first result.
func (f *File) Release() error {
	f.once.Do(func() {
		err := os.Remove(f.Path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			f.err = fmt.Errorf("failed to remove temp file: %w", err)
			logger.Warn("Temp file not removed", zap.String("path", f.Path), zap.Error(err))
			return
		}
		logger.Debug("Temp file released", zap.String("path", f.Path))
	})
	return f.err
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '-'
		}
	}, s)
}
