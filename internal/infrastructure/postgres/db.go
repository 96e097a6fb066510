package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pool against databaseURL, retrying the initial ping with backoff.
func Connect(ctx context.Context, databaseURL string, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute

	const maxRetries = 5
	delay := 2 * time.Second
	for i := 1; i <= maxRetries; i++ {
		pool, perr := pgxpool.NewWithConfig(ctx, cfg)
		if perr == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			perr = pool.Ping(pingCtx)
			cancel()
			if perr == nil {
				return pool, nil
			}
			pool.Close()
		}
		err = perr
		log.Printf("[DB] attempt %d/%d failed: %v", i, maxRetries, err)
		if i < maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return nil, fmt.Errorf("connect after %d attempts: %w", maxRetries, err)
}

const schema = `
CREATE TABLE IF NOT EXISTS verifications (
    owner_id        TEXT PRIMARY KEY,
    external_handle TEXT NOT NULL,
    verified_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    credits         INTEGER NOT NULL DEFAULT 5 CHECK (credits >= 0)
);
CREATE UNIQUE INDEX IF NOT EXISTS verifications_handle_lower_idx
    ON verifications (LOWER(external_handle));

CREATE TABLE IF NOT EXISTS ad_submissions (
    id              TEXT PRIMARY KEY,
    guild_id        TEXT NOT NULL,
    owner_id        TEXT NOT NULL,
    username        TEXT NOT NULL DEFAULT '',
    external_handle TEXT NOT NULL,
    ad_text         TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'pending',
    submitted_at    TIMESTAMPTZ NOT NULL,
    processed_by    TEXT NOT NULL DEFAULT '',
    decision        TEXT NOT NULL DEFAULT '',
    comments        TEXT NOT NULL DEFAULT '',
    processed_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS ad_submissions_pending_idx
    ON ad_submissions (guild_id, status, submitted_at);
`

// Migrate creates the tables and indexes if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
