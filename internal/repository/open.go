package repository

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pharmds-ddi-server/internal/database"
	"github.com/pharmds-ddi-server/internal/domain"
)

// Open builds the repository selected by cfg.Source. The returned close func
// releases any database handle and is never nil.
func Open(ctx context.Context, cfg domain.KBConfig, db domain.DatabaseConfig, logger *logrus.Logger) (KnowledgeBaseRepository, func(), error) {
	switch cfg.Source {
	case "", domain.KBSourceEmbedded:
		return NewCurationRepository(cfg.CurationFile), func() {}, nil

	case domain.KBSourceSQLite:
		if cfg.SQLitePath == "" {
			return nil, nil, fmt.Errorf("kb.sqlite_path is required for the sqlite source")
		}
		handle, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := database.ApplySQLiteMigrations(ctx, handle, logger); err != nil {
			_ = handle.Close()
			return nil, nil, err
		}
		return NewSQLiteRepository(handle, cfg.SQLitePath, logger), func() { _ = handle.Close() }, nil

	case domain.KBSourcePostgres:
		conn, err := database.NewConnection(ctx, database.ConfigFrom(db), logger)
		if err != nil {
			return nil, nil, err
		}
		return NewPostgresRepository(conn.Pool, logger), conn.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown knowledge base source %q", cfg.Source)
	}
}
