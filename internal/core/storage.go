package core

import (
	"fmt"
	"os"

	"casetrack/internal/infra/persistence/memory"
	"casetrack/internal/infra/persistence/postgres"
	"casetrack/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenStore constructs the persistent store for the given driver. path is the
// sqlite database file and dsn the postgres connection string; each is only
// consulted by its own driver.
func OpenStore(driver StorageDriver, path, dsn string, engine *RulesEngine) (PersistentStore, error) {
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(path, engine)
	case StoragePostgres:
		return postgres.NewStore(dsn, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	CASETRACK_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	CASETRACK_SQLITE_PATH: path to sqlite file (default ./casetrack.db)
//	CASETRACK_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *RulesEngine) (PersistentStore, error) {
	driver := os.Getenv("CASETRACK_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	return OpenStore(
		StorageDriver(driver),
		os.Getenv("CASETRACK_SQLITE_PATH"),
		os.Getenv("CASETRACK_POSTGRES_DSN"),
		engine,
	)
}
