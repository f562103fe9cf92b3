package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pharmds-ddi-server/internal/database"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	log    *logrus.Logger
}

// NewSQLiteStore opens the history database at dbPath, creating the file and
// applying migrations as needed.
func NewSQLiteStore(ctx context.Context, dbPath string, logger *logrus.Logger) (*SQLiteStore, error) {
	db, err := database.OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}
	if err := database.ApplySQLiteMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating history database: %w", err)
	}

	logger.WithField("path", dbPath).Info("History store opened")
	return &SQLiteStore{db: db, dbPath: dbPath, log: logger}, nil
}

// Save stores a record.
func (s *SQLiteStore) Save(ctx context.Context, rec *Record) error {
	values, err := columns(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO evaluation_history (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, values...)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}
	return nil
}

// Get retrieves a record by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM evaluation_history WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return rec, nil
}

// List returns records newest first.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM evaluation_history
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// Count returns the total number of records.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM evaluation_history").Scan(&count)
	return count, err
}

// Delete removes a record by id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM evaluation_history WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return nil
}

// PurgeBefore deletes records created before cutoff.
func (s *SQLiteStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM evaluation_history WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge: %w", err)
	}
	return res.RowsAffected()
}

// ExportJSON writes every record to w.
func (s *SQLiteStore) ExportJSON(ctx context.Context, w io.Writer) error {
	return exportJSON(ctx, s, w)
}

// ImportJSON reads an export, skipping ids that already exist.
func (s *SQLiteStore) ImportJSON(ctx context.Context, r io.Reader) (int, int, error) {
	return importJSON(ctx, s, r)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
