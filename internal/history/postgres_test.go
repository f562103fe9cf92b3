package history

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmds-ddi-server/internal/database"
)

// getTestDB returns a migrated database connection for testing.
// Skip test if TEST_DATABASE_URL is not set.
func getTestDB(t *testing.T) *sql.DB {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL tests")
	}

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)
	require.NoError(t, database.ApplyPostgresMigrations(context.Background(), db, quietLogger()))

	_, err = db.Exec("DELETE FROM evaluation_history")
	require.NoError(t, err)
	return db
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	ctx := context.Background()
	rec := sampleRecord(t)

	// Act
	require.NoError(t, store.Save(ctx, rec))
	got, err := store.Get(ctx, rec.ID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, rec.InputNames, got.InputNames)
	assert.Equal(t, rec.OverallSeverity, got.OverallSeverity)
	assert.WithinDuration(t, rec.CreatedAt, got.CreatedAt, time.Millisecond)
	assert.JSONEq(t, string(rec.Payload), string(got.Payload))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestPostgresStore_ListAndPurge(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now().UTC()

	old := sampleRecord(t)
	old.CreatedAt = now.Add(-72 * time.Hour)
	fresh := sampleRecord(t)
	fresh.CreatedAt = now
	require.NoError(t, store.Save(ctx, old))
	require.NoError(t, store.Save(ctx, fresh))

	list, err := store.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, fresh.ID, list[0].ID)

	n, err := store.PurgeBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, store.Delete(ctx, fresh.ID))
	assert.ErrorIs(t, store.Delete(ctx, fresh.ID), ErrRecordNotFound)
}

func TestNewPostgresStore_NilDB(t *testing.T) {
	_, err := NewPostgresStore(nil)

	assert.Error(t, err)
}
