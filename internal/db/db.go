// Package db opens the PostgreSQL pool, runs migrations and holds pgx conversion helpers.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memohai/inboxd/internal/config"
)

const connectMaxElapsed = 30 * time.Second

func newConnectBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = connectMaxElapsed
	return bo
}

// Open creates the pool and pings it, retrying with exponential backoff while the server comes up.
func Open(ctx context.Context, log *slog.Logger, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		if err := pool.Ping(ctx); err != nil {
			if log != nil {
				log.Warn("postgres not ready", slog.Int("attempt", attempt), slog.Any("error", err))
			}
			return err
		}
		return nil
	}, backoff.WithContext(newConnectBackoff(), ctx))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}
