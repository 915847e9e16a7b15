package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/isdmx/playbuild/config"
	"github.com/isdmx/playbuild/logger"
)

// Store is a flat directory of entries named by their key. Entries are
// written once and never evicted.
type Store struct {
	fs     afero.Fs
	dir    string
	logger *zap.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithFs replaces the filesystem the store writes to.
func WithFs(fs afero.Fs) StoreOption {
	return func(s *Store) {
		s.fs = fs
	}
}

// NewStore creates the cache directory if needed and returns a store over it.
func NewStore(log *zap.Logger, cfg *config.Config, opts ...StoreOption) (*Store, error) {
	s := &Store{
		fs:     afero.NewOsFs(),
		dir:    cfg.Cache.Dir,
		logger: log,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", s.dir, err)
	}
	return s, nil
}

// Lookup returns the entry stored under key. A missing entry is not an error.
// File names are matched case-insensitively.
func (s *Store) Lookup(key Key) (Entry, bool, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to list cache directory: %w", err)
	}
	name := key.String()
	for _, info := range infos {
		if info.IsDir() || !strings.EqualFold(info.Name(), name) {
			continue
		}
		data, err := afero.ReadFile(s.fs, filepath.Join(s.dir, info.Name()))
		if err != nil {
			return Entry{}, false, fmt.Errorf("failed to read cache entry %s: %w", info.Name(), err)
		}
		entry, err := Decode(data)
		if err != nil {
			return Entry{}, false, fmt.Errorf("cache entry %s: %w", info.Name(), err)
		}
		return entry, true, nil
	}
	return Entry{}, false, nil
}

// Insert stores entry under key. Failures are logged and otherwise ignored,
// since a lost insert only costs a rebuild.
func (s *Store) Insert(key Key, entry Entry) {
	if err := s.write(key, entry); err != nil {
		s.logger.Warn("Failed to write cache entry",
			logger.CacheKey(key.String()),
			zap.Error(err))
		return
	}
	s.logger.Debug("Cache entry written",
		logger.CacheKey(key.String()),
		zap.Int("size", len(entry.Body)+TrailerSize))
}

func (s *Store) write(key Key, entry Entry) error {
	tmp, err := afero.TempFile(s.fs, s.dir, key.String()+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op after a successful rename
		_ = s.fs.Remove(tmpName)
	}()

	if _, err := tmp.Write(Encode(entry)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := s.fs.Rename(tmpName, filepath.Join(s.dir, key.String())); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Len reports the number of entries in the store.
func (s *Store) Len() (int, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	n := 0
	for _, info := range infos {
		if info.IsDir() || strings.Contains(info.Name(), ".tmp-") {
			continue
		}
		n++
	}
	return n, nil
}
