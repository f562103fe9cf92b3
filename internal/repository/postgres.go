package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/pharmds-ddi-server/internal/domain"
)

// PostgresRepository reads the knowledge base from PostgreSQL.
type PostgresRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPostgresRepository creates a new knowledge base repository
func NewPostgresRepository(db *pgxpool.Pool, logger *logrus.Logger) *PostgresRepository {
	return &PostgresRepository{
		db:  db,
		log: logger,
	}
}

// Load reads the dataset inside a repeatable-read transaction.
func (r *PostgresRepository) Load(ctx context.Context) (*domain.Dataset, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("beginning read transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ds, err := loadDataset(ctx, func(ctx context.Context, query string) (rows, func(), error) {
		rs, err := tx.Query(ctx, query)
		if err != nil {
			return nil, nil, err
		}
		return rs, rs.Close, nil
	})
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"error": err,
		}).Error("Failed to load knowledge base from postgres")
		return nil, err
	}
	return ds, nil
}

// Source returns "postgres:<database>".
func (r *PostgresRepository) Source() string {
	return "postgres:" + r.db.Config().ConnConfig.Database
}
