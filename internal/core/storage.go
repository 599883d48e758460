package core

import (
	"context"
	"fmt"

	"sampleflow/internal/infra/persistence/memory"
	"sampleflow/internal/infra/persistence/postgres"
	"sampleflow/internal/infra/persistence/redis"
	"sampleflow/internal/infra/persistence/sqlite"
	"sampleflow/pkg/domain"
)

// StorageDriver identifies the backend holding client-side override state.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // process lifetime only
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageRedis    StorageDriver = "redis"    // one hash per deployment
)

// StorageConfig selects and parameterises a state store.
type StorageConfig struct {
	Driver        StorageDriver
	SQLitePath    string
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// OpenStateStore opens the configured backend. An empty driver means sqlite.
func OpenStateStore(ctx context.Context, cfg StorageConfig) (domain.StateStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath)
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	case StorageRedis:
		addr := cfg.RedisAddr
		if addr == "" {
			addr = "localhost:6379"
		}
		return redis.Dial(ctx, addr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
