package core

import (
	"fmt"

	"hostelcore/internal/infra/persistence/memory"
	"hostelcore/internal/infra/persistence/postgres"
	"hostelcore/internal/infra/persistence/sqlite"
	"hostelcore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// StorageOptions selects and configures a backend. internal/config fills it
// from the file and environment.
type StorageOptions struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// OpenPersistentStore opens the configured backend, defaulting to sqlite.
// When stored buckets failed to decode the store is still returned, together
// with a *domain.StorageCorruptError; callers decide whether to continue.
func OpenPersistentStore(opts StorageOptions, engine *RulesEngine, storeOpts ...memory.Option) (PersistentStore, error) {
	driver := opts.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine, storeOpts...), nil
	case StorageSQLite:
		store, err := sqlite.NewStore(opts.SQLitePath, engine, storeOpts...)
		if store == nil {
			return nil, err
		}
		return store, err
	case StoragePostgres:
		store, err := postgres.NewStore(opts.PostgresDSN, engine, storeOpts...)
		if store == nil {
			return nil, err
		}
		return store, err
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
