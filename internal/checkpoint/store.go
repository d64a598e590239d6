package checkpoint

import (
	"context"
	"fmt"

	"meshcore/internal/infra/persistence/badger"
	"meshcore/internal/infra/persistence/memory"
	"meshcore/internal/infra/persistence/postgres"
	"meshcore/internal/infra/persistence/sqlite"
	"meshcore/internal/telemetry"
	"meshcore/pkg/domain"
)

// StorageDriver names a checkpoint store backend.
type StorageDriver string

const (
	DriverMemory   StorageDriver = "memory"
	DriverSQLite   StorageDriver = "sqlite"
	DriverPostgres StorageDriver = "postgres"
	DriverBadger   StorageDriver = "badger"
)

// StoreConfig selects and configures a checkpoint store.
type StoreConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
	BadgerDir   string
	// Logger receives backend diagnostics where the backend produces any.
	Logger telemetry.Logger
}

// OpenStore builds the store cfg names. An empty driver selects SQLite.
func OpenStore(ctx context.Context, cfg StoreConfig) (domain.CheckpointStore, error) {
	switch cfg.Driver {
	case DriverMemory:
		return memory.NewStore(), nil
	case "", DriverSQLite:
		store, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverPostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverBadger:
		store, err := badger.Open(badger.Config{Dir: cfg.BadgerDir, SyncWrites: true, Logger: cfg.Logger})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
