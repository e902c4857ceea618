package core

import (
	"fmt"
	"os"

	"vmscore/internal/infra/persistence/memory"
	"vmscore/internal/infra/persistence/postgres"
	"vmscore/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	VMSCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	VMSCORE_SQLITE_PATH: path to sqlite file (default ./vmscore.db)
//	VMSCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *RulesEngine) (PersistentStore, error) {
	driver := os.Getenv("VMSCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	return OpenStorage(StorageDriver(driver), os.Getenv("VMSCORE_SQLITE_PATH"), os.Getenv("VMSCORE_POSTGRES_DSN"), engine)
}

// OpenStorage opens the named backend with explicit parameters.
func OpenStorage(driver StorageDriver, sqlitePath, postgresDSN string, engine *RulesEngine) (PersistentStore, error) {
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(sqlitePath, engine)
	case StoragePostgres:
		return postgres.NewStore(postgresDSN, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
