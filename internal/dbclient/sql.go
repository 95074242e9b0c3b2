package dbclient

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"periodetl/internal/domain"
	"periodetl/internal/storage"
)

// openSQL opens a database/sql pool and wraps it in a SQL store.
func openSQL(ctx context.Context, driverName, dsn string, dialect storage.Dialect, log zerolog.Logger) (domain.ConsolidatedStore, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	db.SetMaxOpenConns(5)

	if err := pingWithRetry(ctx, driverName, log, db.PingContext); err != nil {
		db.Close()
		return nil, err
	}

	store, err := storage.NewSQLStore(ctx, db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Str("store", driverName).Msg("consolidated store ready")
	return store, nil
}
