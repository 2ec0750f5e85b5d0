// Package migrate runs database migrations from embedded SQL files using golang-migrate.
package migrate

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"feedback-collector/backend/internal/db"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ErrNoChange is returned when Up/Down has nothing to do (already at target version).
var ErrNoChange = migrate.ErrNoChange

// Run applies migrations for dialect in the given direction using the provided DSN.
// direction must be "up" or "down". Returns nil on success; ErrNoChange is swallowed.
func Run(dialect db.Dialect, dsn string, direction string) error {
	if dsn == "" {
		return errors.New("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	if direction != "up" && direction != "down" {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}
	sourceDriver, err := migrationSource(dialect)
	if err != nil {
		return err
	}
	if dialect == db.SQLite && !strings.HasPrefix(dsn, "sqlite://") {
		dsn = "sqlite://" + dsn
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch direction {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	}
	return nil
}

// Apply migrates an already open SQLite connection up to the latest version. The connection
// stays open and owned by the caller. Used by the embedded store and by tests.
func Apply(conn *sql.DB) error {
	sourceDriver, err := migrationSource(db.SQLite)
	if err != nil {
		return err
	}
	driver, err := sqlite.WithInstance(conn, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func migrationSource(dialect db.Dialect) (source.Driver, error) {
	switch dialect {
	case db.Postgres, db.SQLite:
	default:
		return nil, fmt.Errorf("migrate: unsupported dialect %q", dialect)
	}
	d, err := iofs.New(db.MigrationFS, "migrations/"+string(dialect))
	if err != nil {
		return nil, fmt.Errorf("migrate source: %w", err)
	}
	return d, nil
}
