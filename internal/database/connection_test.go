package database

import (
	"context"
	"testing"
	"time"

	"github.com/pharmds-ddi-server/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) Config {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping postgres container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return Config{
		Host:        host,
		Port:        port.Int(),
		Database:    "testdb",
		Username:    "testuser",
		Password:    "testpass",
		MaxConns:    10,
		MinConns:    2,
		MaxConnLife: time.Hour,
		MaxConnIdle: time.Minute * 30,
		SSLMode:     "disable",
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func TestDatabaseConnection(t *testing.T) {
	config := startPostgres(t)
	ctx := context.Background()

	db, err := NewConnection(ctx, config, quietLogger())
	if err != nil {
		t.Fatalf("Failed to create database connection: %v", err)
	}
	defer db.Close()

	if err := db.Health(ctx); err != nil {
		t.Fatalf("Database health check failed: %v", err)
	}

	stats := db.Stats()
	if stats.TotalConns() == 0 {
		t.Error("Expected at least one connection in pool")
	}
}

func TestPostgresMigrations(t *testing.T) {
	config := startPostgres(t)
	ctx := context.Background()

	sqlDB, err := OpenPostgresSQL(config)
	require.NoError(t, err)

	runner, err := NewPostgresMigrationRunner(sqlDB, quietLogger())
	require.NoError(t, err)
	defer runner.Close()

	// Act
	require.NoError(t, runner.Up(ctx))

	// Assert
	version, dirty, err := runner.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	_, err = sqlDB.ExecContext(ctx, `INSERT INTO drug (id, generic_name) VALUES ('warfarin', 'warfarin')`)
	require.NoError(t, err)
	_, err = sqlDB.ExecContext(ctx, `INSERT INTO enzyme (id, family) VALUES ('CYP2C9', 'CYP')`)
	require.NoError(t, err)
	_, err = sqlDB.ExecContext(ctx,
		`INSERT INTO drug_enzyme_role (drug_id, enzyme_id, role, fraction_metabolized) VALUES ('warfarin', 'CYP2C9', 'substrate', 1.5)`)
	assert.Error(t, err, "fraction_metabolized above 1 must be rejected")

	require.NoError(t, runner.Down(ctx))
	version, _, err = runner.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(domain.DatabaseConfig{
		Host:            "db",
		Port:            5433,
		Database:        "pharmds",
		Username:        "svc",
		Password:        "secret",
		SSLMode:         "require",
		MaxOpenConns:    20,
		MaxIdleConns:    4,
		ConnMaxLifetime: time.Hour,
	})

	assert.Equal(t, int32(20), cfg.MaxConns)
	assert.Equal(t, int32(4), cfg.MinConns)
	assert.Equal(t, time.Hour, cfg.MaxConnLife)
	assert.Equal(t, "host=db port=5433 dbname=pharmds user=svc password=secret sslmode=require", cfg.DSN())
}
