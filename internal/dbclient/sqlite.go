package dbclient

import (
	"context"
	"fmt"

	"periodetl/internal/domain"
	"periodetl/internal/storage"
)

// openSQLite opens the consolidated store file at conn.Host.
func openSQLite(ctx context.Context, conn domain.DatabaseConnection) (domain.ConsolidatedStore, error) {
	if conn.Host == "" {
		return nil, fmt.Errorf("sqlite store: path is required")
	}
	db, err := storage.OpenSQLite(conn.Host)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewSQLStore(ctx, db, storage.DialectSQLite)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}
