package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
)

// Store is the flat key-value persistence API the notifier registry runs on.
// Absent keys read as empty with ok=false; callers treat that as an
// unconfigured field, never as an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	// Clear removes every key. Used by the delete/compact path, which
	// rewrites all surviving accounts under their new indices.
	Clear(ctx context.Context) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log zerolog.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
