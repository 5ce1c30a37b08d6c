package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Version() (version uint, dirty bool, err error)
}

// Overridden in tests so no live Postgres is needed.
var withPostgresInstance = func(db *sql.DB) (migratedb.Driver, error) {
	return postgres.WithInstance(db, &postgres.Config{})
}

var newMigrateWithInstance = func(sourceDriver source.Driver, driver migratedb.Driver) (Migrator, error) {
	return migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
}

func Source() (source.Driver, error) {
	return iofs.New(migrationFiles, "migrations")
}

func NewMigrator(db *sql.DB) (Migrator, error) {
	src, err := Source()
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := withPostgresInstance(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := newMigrateWithInstance(src, driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// Migrate applies the embedded migrations in direction ("up" or "down").
// steps of 0 means all of them. No pending change is not an error.
func Migrate(db *sql.DB, direction string, steps int) error {
	m, err := NewMigrator(db)
	if err != nil {
		return err
	}
	err = ApplyDirection(m, direction, steps)
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

func ApplyDirection(m Migrator, direction string, steps int) error {
	switch direction {
	case "up":
		if steps > 0 {
			return m.Steps(steps)
		}
		return m.Up()
	case "down":
		if steps > 0 {
			return m.Steps(-steps)
		}
		return m.Down()
	default:
		return fmt.Errorf("invalid direction: %s (must be 'up' or 'down')", direction)
	}
}
