package postgresql

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ConnectDB opens the pool and verifies connectivity before the server
// starts taking traffic.
func ConnectDB(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
