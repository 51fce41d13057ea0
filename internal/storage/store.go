package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultMaxConns        = 4
	defaultConnMaxLifetime = 30 * time.Minute
)

// NewPool configures a PostgreSQL connection pool for the flag store.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, storageErr("open postgres", "", fmt.Errorf("DATABASE_DSN is required for the postgres flag backend"))
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, storageErr("parse database dsn", "", err)
	}
	poolConfig.MaxConns = defaultMaxConns
	poolConfig.MaxConnLifetime = defaultConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, storageErr("create pgx pool", "", err)
	}

	return pool, nil
}
