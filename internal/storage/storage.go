// Package storage persists whole JSON documents (the queue, the settings snapshot) under string keys.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Load when no document exists under the key.
var ErrNotFound = errors.New("storage: document not found")

// Store is a key-value persistence backend for opaque documents.
type Store interface {
	// Load returns the document stored under key, or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)
	// Save replaces the document stored under key.
	Save(ctx context.Context, key string, data []byte) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver string // file, sqlite, mongo, valkey, gcs, memory

	Path          string // directory for the file driver
	SQLitePath    string
	MongoURI      string
	MongoDatabase string
	ValkeyAddr    string
	GCSBucket     string
	KeyPrefix     string // prefix for valkey keys and gcs objects
}

// Open initializes the configured store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg)
	case "sqlite", "sqlite3":
		return openSQLite(ctx, cfg)
	case "mongo", "mongodb":
		return openMongo(ctx, cfg)
	case "valkey", "redis":
		return openValkey(ctx, cfg)
	case "gcs":
		return openGCS(ctx, cfg)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}

func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("storage: invalid key %q", key)
	}
	return nil
}
