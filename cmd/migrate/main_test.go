package main

import (
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/maheshrc27/tweetflow/internal/database"
)

type forceOnlyMigrator struct {
	database.Migrator
	forced int
}

func (m *forceOnlyMigrator) Force(version int) error {
	m.forced = version
	return nil
}

func mockDB(t *testing.T) *sql.DB {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	mock.ExpectClose()
	return db
}

func envWith(uri string) func(string) string {
	return func(k string) string {
		if k == "POSTGRES_URI" {
			return uri
		}
		return ""
	}
}

func TestParseArgs_Defaults(t *testing.T) {
	o, err := parseArgs(nil)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if o.direction != "up" || o.steps != 0 || o.force != -1 {
		t.Fatalf("unexpected defaults: %+v", o)
	}
}

func TestParseArgs_InvalidDirection(t *testing.T) {
	if _, err := parseArgs([]string{"-direction", "sideways"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRun_MissingURI(t *testing.T) {
	_, err := run(nil, deps{
		getenv: envWith(""),
		openDB: func(string, string) (*sql.DB, error) {
			t.Fatalf("openDB should not be called")
			return nil, nil
		},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestRun_Migrates(t *testing.T) {
	db := mockDB(t)

	var gotDir string
	var gotSteps int
	msg, err := run([]string{"-direction", "down", "-steps", "1"}, deps{
		getenv: envWith("postgres://example"),
		openDB: func(string, string) (*sql.DB, error) { return db, nil },
		migrateF: func(_ *sql.DB, direction string, steps int) error {
			gotDir, gotSteps = direction, steps
			return nil
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if gotDir != "down" || gotSteps != 1 {
		t.Fatalf("expected down/1, got %s/%d", gotDir, gotSteps)
	}
	if !strings.Contains(msg, "down") {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestRun_MigrationError(t *testing.T) {
	db := mockDB(t)

	_, err := run(nil, deps{
		getenv:   envWith("postgres://example"),
		openDB:   func(string, string) (*sql.DB, error) { return db, nil },
		migrateF: func(*sql.DB, string, int) error { return errors.New("dirty database") },
	})
	if err == nil || !strings.Contains(err.Error(), "dirty database") {
		t.Fatalf("expected wrapped migration error, got %v", err)
	}
}

func TestRun_Force(t *testing.T) {
	db := mockDB(t)
	m := &forceOnlyMigrator{}

	msg, err := run([]string{"-force", "2"}, deps{
		getenv:      envWith("postgres://example"),
		openDB:      func(string, string) (*sql.DB, error) { return db, nil },
		newMigrator: func(*sql.DB) (database.Migrator, error) { return m, nil },
		migrateF: func(*sql.DB, string, int) error {
			t.Fatalf("migrateF should not be called when forcing")
			return nil
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if m.forced != 2 {
		t.Fatalf("expected force 2, got %d", m.forced)
	}
	if msg != "Forced database to version 2" {
		t.Fatalf("unexpected message %q", msg)
	}
}
