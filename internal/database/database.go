// Package database provides PostgreSQL connection management using pgx.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/community-hub/event-ledger/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool creates and validates a pgxpool connection pool.
// It retries up to 5 times to accommodate containers starting up.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	// Sensible pool defaults for a small service.
	poolCfg.MaxConns = 20
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= 5; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		time.Sleep(2 * time.Second)
	}
	return nil, fmt.Errorf("connect to postgres: %w", err)
}

// No foreign key from event_registrations to events: registrations may
// outlive a deleted event and are cleaned up by the reconciler.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id            text PRIMARY KEY,
		title         text NOT NULL,
		audience      text NOT NULL DEFAULT '',
		description   text NOT NULL DEFAULT '',
		location      text NOT NULL DEFAULT '',
		image_url     text NOT NULL DEFAULT '',
		starts_at     timestamptz NOT NULL,
		capacity      int NOT NULL,
		manual_count  int NOT NULL DEFAULT 0,
		created_at    timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS event_registrations (
		id         text PRIMARY KEY,
		event_id   text NOT NULL,
		user_id    text NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_event_registrations_event
		ON event_registrations (event_id)`,
	`CREATE INDEX IF NOT EXISTS idx_event_registrations_user
		ON event_registrations (user_id)`,
	`CREATE TABLE IF NOT EXISTS user_profiles (
		id         text PRIMARY KEY,
		first_name text NOT NULL DEFAULT '',
		last_name  text NOT NULL DEFAULT '',
		email      text
	)`,
}

// EnsureSchema creates the tables and indexes the service needs.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
