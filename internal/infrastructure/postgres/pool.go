package postgres

import (
	"context"

	"github.com/go-auth-nosql/internal/pkg/backoff"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
)

// Connect opens a pool and waits until the server answers a ping.
func Connect(ctx context.Context, databaseURL string, attempts int) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, oops.Code("DB_POOL_FAILED").Wrap(err)
	}
	if err := backoff.Ping(ctx, "postgres", attempts, pool.Ping); err != nil {
		pool.Close()
		return nil, oops.Code("DB_UNREACHABLE").Wrap(err)
	}
	return pool, nil
}
