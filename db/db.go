// Package db provides database connection helpers, schema migration, and the
// Postgres-backed snapshot stores.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// Connect opens a Postgres connection for the given DSN.
func Connect(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty DB DSN")
	}
	return sql.Open("pgx", dsn)
}

// Migrate applies idempotent schema changes for all required tables and indices.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trackings (
			chat_id BIGINT NOT NULL,
			steam_id TEXT NOT NULL,
			alias TEXT,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (chat_id, steam_id)
		)`,
		`CREATE TABLE IF NOT EXISTS status_snapshots (
			chat_id BIGINT NOT NULL,
			steam_id TEXT NOT NULL,
			display_name TEXT,
			presence INTEGER NOT NULL DEFAULT 0,
			game_id TEXT,
			game_name TEXT,
			game_started_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (chat_id, steam_id)
		)`,
		`CREATE TABLE IF NOT EXISTS inventory_snapshots (
			steam_id TEXT PRIMARY KEY,
			item_ids JSONB NOT NULL DEFAULT '[]',
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trackings_steam_id ON trackings(steam_id)`,
		`CREATE INDEX IF NOT EXISTS idx_status_snapshots_steam_id ON status_snapshots(steam_id)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

// SetKV upserts a key/value pair (job heartbeats, last-cycle stats).
func SetKV(ctx context.Context, db *sql.DB, key, value string) error {
	_, err := db.ExecContext(ctx, `INSERT INTO kv (key,value,updated_at) VALUES ($1,$2,NOW())
		ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`, key, value)
	return err
}

// GetKV returns the value for a key, or empty string if absent.
func GetKV(ctx context.Context, db *sql.DB, key string) (string, error) {
	var v string
	err := db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=$1`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, err
}

// RecordHeartbeat stamps a job's last-run time in kv using RFC3339 UTC.
func RecordHeartbeat(ctx context.Context, db *sql.DB, job string) error {
	return SetKV(ctx, db, "job_"+job+"_last", time.Now().UTC().Format(time.RFC3339))
}
