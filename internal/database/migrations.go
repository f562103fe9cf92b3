package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pharmds-ddi-server/migrations"
	"github.com/sirupsen/logrus"
)

// MigrationRunner handles database migrations from the embedded schema.
// The runner takes ownership of the *sql.DB it was built with: Close closes it.
type MigrationRunner struct {
	migrate *migrate.Migrate
	log     *logrus.Logger
}

// NewSQLiteMigrationRunner creates a runner for a SQLite database.
func NewSQLiteMigrationRunner(db *sql.DB, logger *logrus.Logger) (*MigrationRunner, error) {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("creating sqlite migration driver: %w", err)
	}
	return newMigrationRunner(migrations.SQLiteDir, "sqlite", driver, logger)
}

// NewPostgresMigrationRunner creates a runner for a postgres database opened
// with OpenPostgresSQL.
func NewPostgresMigrationRunner(db *sql.DB, logger *logrus.Logger) (*MigrationRunner, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("creating postgres migration driver: %w", err)
	}
	return newMigrationRunner(migrations.PostgresDir, "postgres", driver, logger)
}

func newMigrationRunner(dir, name string, driver database.Driver, logger *logrus.Logger) (*MigrationRunner, error) {
	source, err := iofs.New(migrations.FS, dir)
	if err != nil {
		return nil, fmt.Errorf("opening embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, name, driver)
	if err != nil {
		return nil, fmt.Errorf("creating migration instance: %w", err)
	}

	return &MigrationRunner{
		migrate: m,
		log:     logger,
	}, nil
}

// Up runs all pending migrations
func (mr *MigrationRunner) Up(ctx context.Context) error {
	mr.log.Info("Running database migrations up")

	if err := mr.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			mr.log.Info("No pending migrations to run")
			return nil
		}
		return fmt.Errorf("running migrations up: %w", err)
	}

	mr.logVersion("Migrations completed successfully")
	return nil
}

// Down rolls back one migration
func (mr *MigrationRunner) Down(ctx context.Context) error {
	mr.log.Info("Rolling back one migration")

	if err := mr.migrate.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			mr.log.Info("No migrations to roll back")
			return nil
		}
		return fmt.Errorf("rolling back migration: %w", err)
	}

	mr.logVersion("Migration rolled back successfully")
	return nil
}

func (mr *MigrationRunner) logVersion(msg string) {
	version, dirty, err := mr.migrate.Version()
	if err != nil {
		mr.log.WithError(err).Warn("Could not get migration version")
		return
	}
	mr.log.WithFields(logrus.Fields{
		"version": version,
		"dirty":   dirty,
	}).Info(msg)
}

// Version returns the current migration version. A database with no applied
// migration reports version 0.
func (mr *MigrationRunner) Version() (uint, bool, error) {
	version, dirty, err := mr.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Close closes the migration runner
func (mr *MigrationRunner) Close() error {
	sourceErr, dbErr := mr.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("closing migration source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("closing migration database: %w", dbErr)
	}
	return nil
}

// ApplySQLiteMigrations brings db to the latest schema and leaves it open for
// the caller.
func ApplySQLiteMigrations(ctx context.Context, db *sql.DB, logger *logrus.Logger) error {
	runner, err := NewSQLiteMigrationRunner(db, logger)
	if err != nil {
		return err
	}
	return runner.Up(ctx)
}

// ApplyPostgresMigrations brings db to the latest schema and leaves it open
// for the caller.
func ApplyPostgresMigrations(ctx context.Context, db *sql.DB, logger *logrus.Logger) error {
	runner, err := NewPostgresMigrationRunner(db, logger)
	if err != nil {
		return err
	}
	return runner.Up(ctx)
}
