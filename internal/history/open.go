package history

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pharmds-ddi-server/internal/database"
	"github.com/pharmds-ddi-server/internal/domain"
)

// Open returns the store selected by cfg.Driver. sqlitePath is used when
// the sqlite driver is selected.
func Open(ctx context.Context, cfg domain.HistoryConfig, db domain.DatabaseConfig, sqlitePath string, logger *logrus.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		if sqlitePath == "" {
			return nil, domain.NewValidationError("history.path", "history database path is required", nil)
		}
		return NewSQLiteStore(ctx, sqlitePath, logger)
	case "postgres":
		conn, err := database.OpenPostgresSQL(database.ConfigFrom(db))
		if err != nil {
			return nil, err
		}
		if err := database.ApplyPostgresMigrations(ctx, conn, logger); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrating history database: %w", err)
		}
		return NewPostgresStore(conn)
	default:
		return nil, domain.NewValidationError("history.driver", "unknown history driver", cfg.Driver)
	}
}
