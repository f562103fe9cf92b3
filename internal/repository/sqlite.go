package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pharmds-ddi-server/internal/domain"
	"github.com/sirupsen/logrus"
)

// SQLiteRepository reads the knowledge base from a migrated SQLite database.
type SQLiteRepository struct {
	db   *sql.DB
	path string
	log  *logrus.Logger
}

// NewSQLiteRepository wraps an open database. path is only used in Source.
func NewSQLiteRepository(db *sql.DB, path string, logger *logrus.Logger) *SQLiteRepository {
	return &SQLiteRepository{db: db, path: path, log: logger}
}

// Load reads every table in a single read transaction so the dataset is
// consistent even while a seeder is writing.
func (r *SQLiteRepository) Load(ctx context.Context) (*domain.Dataset, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning read transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ds, err := loadDataset(ctx, sqlQuerier(tx))
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"path":  r.path,
			"error": err,
		}).Error("Failed to load knowledge base from sqlite")
		return nil, err
	}
	return ds, nil
}

// Source returns the database location.
func (r *SQLiteRepository) Source() string {
	return "sqlite:" + r.path
}

type sqlQueryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func sqlQuerier(db sqlQueryer) queryFunc {
	return func(ctx context.Context, query string) (rows, func(), error) {
		rs, err := db.QueryContext(ctx, query)
		if err != nil {
			return nil, nil, err
		}
		return rs, func() { _ = rs.Close() }, nil
	}
}
