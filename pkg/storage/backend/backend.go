// Package backend opens the configured storage.Store implementation.
package backend

import (
	"fmt"

	"github.com/goclaw/manifest/config"
	"github.com/goclaw/manifest/pkg/storage"
	"github.com/goclaw/manifest/pkg/storage/badger"
	"github.com/goclaw/manifest/pkg/storage/memory"
	"github.com/goclaw/manifest/pkg/storage/sqlite"
)

// Backend types.
const (
	TypeMemory = "memory"
	TypeBadger = "badger"
	TypeSQLite = "sqlite"
)

// Open returns the store selected by cfg.Type. An empty type means memory.
func Open(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", TypeMemory:
		return memory.NewMemoryStorage(), nil
	case TypeBadger:
		store, err := badger.NewBadgerStorage(&badger.Config{
			Path:              cfg.Badger.Path,
			SyncWrites:        cfg.Badger.SyncWrites,
			ValueLogFileSize:  cfg.Badger.ValueLogFileSize,
			NumVersionsToKeep: cfg.Badger.NumVersionsToKeep,
		})
		if err != nil {
			return nil, fmt.Errorf("open badger storage at %s: %w", cfg.Badger.Path, err)
		}
		return store, nil
	case TypeSQLite:
		store, err := sqlite.NewSQLiteStorage(&sqlite.Config{Path: cfg.SQLite.Path})
		if err != nil {
			return nil, fmt.Errorf("open sqlite storage at %s: %w", cfg.SQLite.Path, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// Describe returns the log-friendly location of the configured store.
func Describe(cfg config.StorageConfig) string {
	switch cfg.Type {
	case TypeBadger:
		return cfg.Badger.Path
	case TypeSQLite:
		return cfg.SQLite.Path
	default:
		return TypeMemory
	}
}
