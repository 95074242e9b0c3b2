package dbclient

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"periodetl/internal/domain"
	"periodetl/internal/storage"
)

// Ping retry policy for freshly opened server connections.
var (
	pingInterval = 500 * time.Millisecond
	pingRetries  = uint64(5)
)

// Open returns the ConsolidatedStore described by conn. Server-backed stores
// are pinged, with retries, before Open returns.
func Open(ctx context.Context, conn domain.DatabaseConnection, log zerolog.Logger) (domain.ConsolidatedStore, error) {
	switch conn.Driver {
	case domain.DatabaseDriverSQLite, "":
		return openSQLite(ctx, conn)
	case domain.DatabaseDriverMySQL:
		return openSQL(ctx, "mysql", buildMySQLDSN(conn), storage.DialectMySQL, log)
	case domain.DatabaseDriverPostgres:
		return openSQL(ctx, "postgres", buildPostgresDSN(conn), storage.DialectPostgres, log)
	case domain.DatabaseDriverMongoDB:
		return openMongo(ctx, conn, log)
	case domain.DatabaseDriverCSV:
		store, err := storage.NewCSVStore(conn.Host)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", conn.Driver)
	}
}

// pingWithRetry calls ping until it succeeds, the retries run out or ctx ends.
func pingWithRetry(ctx context.Context, name string, log zerolog.Logger, ping func(context.Context) error) error {
	attempt := 0
	return backoff.Retry(
		func() error {
			attempt++
			if err := ping(ctx); err != nil {
				log.Warn().Err(err).Str("store", name).Int("attempt", attempt).Msg("store not reachable")
				return fmt.Errorf("ping %s: %w", name, err)
			}
			return nil
		},
		backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewConstantBackOff(pingInterval), pingRetries),
			ctx,
		),
	)
}
