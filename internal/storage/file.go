package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// fileStore is a dependency-free persistence backend: a single JSON
// snapshot rewritten atomically (tmp + rename) on every mutation. The
// settings table is small (a handful of keys per account), so full
// rewrites are cheap.
type fileStore struct {
	log  zerolog.Logger
	path string

	mu     sync.Mutex
	kv     map[string]string
	closed bool
}

func openFile(cfg Config, log zerolog.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	kv := map[string]string{}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(b, &kv); err != nil {
			// A corrupt snapshot degrades to an empty store; slots read
			// as unconfigured rather than failing startup.
			log.Warn().Str("path", path).Err(err).Msg("settings snapshot unreadable; starting empty")
			kv = map[string]string{}
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	return &fileStore{log: log, path: path, kv: kv}, nil
}

func (s *fileStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, ErrClosed
	}
	v, ok := s.kv[key]
	return v, ok, nil
}

func (s *fileStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.kv[key] = value
	return s.flushLocked()
}

func (s *fileStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, k := range keys {
		delete(s.kv, k)
	}
	return s.flushLocked()
}

func (s *fileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.kv = map[string]string{}
	return s.flushLocked()
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fileStore) flushLocked() error {
	b, err := json.MarshalIndent(s.kv, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
