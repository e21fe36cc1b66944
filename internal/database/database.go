package database

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

//go:embed migrations
var migrationsFS embed.FS

// Connect opens the progress store. SQLite is limited to one connection
// because it does not support concurrent writers.
func Connect(driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if driver == DriverSQLite {
		dsn = SQLiteDSN(dsn)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}

	return db, nil
}

// SQLiteDSN turns on foreign keys through the DSN so every pooled
// connection enforces them, not just the first.
func SQLiteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys=") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on"
}

// Migrate applies the embedded migrations for the given driver. The
// migrate instance is not closed because that would close db as well.
func Migrate(db *sqlx.DB, driver string) error {
	src, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	var target migratedb.Driver
	switch driver {
	case DriverSQLite:
		target, err = sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	case DriverPostgres:
		target, err = postgres.WithInstance(db.DB, &postgres.Config{})
	default:
		return fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, target)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// OpenBank opens a subject's question bank. Banks are SQLite files that
// this service never writes to, so they are opened read-only.
func OpenBank(path string) (*sqlx.DB, error) {
	db, err := sqlx.Connect(DriverSQLite, bankDSN(path, true))
	if err != nil {
		return nil, fmt.Errorf("open question bank %s: %w", path, err)
	}
	return db, nil
}

// OpenBankWritable opens a bank for the importer, creating the file if needed.
func OpenBankWritable(path string) (*sqlx.DB, error) {
	db, err := sqlx.Connect(DriverSQLite, bankDSN(path, false))
	if err != nil {
		return nil, fmt.Errorf("open question bank %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func bankDSN(path string, readOnly bool) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	if readOnly {
		return "file:" + path + "?mode=ro"
	}
	return "file:" + path + "?mode=rwc"
}
