package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SchemaState is the migration version the database ended up at.
type SchemaState struct {
	Version uint
	Dirty   bool
}

// RunMigrations brings the harvest schema up to date. A dirty schema is
// reported as an error since every repository assumes the full schema.
func RunMigrations(db *DB) (SchemaState, error) {
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return SchemaState{}, fmt.Errorf("failed to create sqlite migration driver: %w", err)
	}

	migrations, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return SchemaState{}, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", migrations, "sqlite", driver)
	if err != nil {
		return SchemaState{}, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return SchemaState{}, fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return SchemaState{}, fmt.Errorf("failed to get migration version: %w", err)
	}

	state := SchemaState{Version: version, Dirty: dirty}
	if dirty {
		return state, fmt.Errorf("schema is dirty at version %d", version)
	}

	return state, nil
}
