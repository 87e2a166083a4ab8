package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Migration is one forward schema step.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE KV ENTRIES
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS kv_entries (
    key TEXT PRIMARY KEY,
    value BYTEA NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: PREFIX INDEX
// ══════════════════════════════════════════════════════════════════════════════

// DeletePrefix filters with LIKE 'prefix%'; text_pattern_ops lets that use
// the index under any collation.
const migration002Up = `
CREATE INDEX IF NOT EXISTS idx_kv_entries_key_pattern ON kv_entries (key text_pattern_ops);
`

// Migrations returns every migration in version order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_kv_entries", Up: migration001Up},
		{Version: 2, Name: "kv_entries_prefix_index", Up: migration002Up},
	}
}

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

// Migrate applies every migration newer than the recorded schema version,
// each in its own transaction. It returns the number of steps applied.
func Migrate(ctx context.Context, conn *Connection) (int, error) {
	if _, err := conn.Pool().Exec(ctx, createMigrationsTable); err != nil {
		return 0, fmt.Errorf("%w: create schema_migrations: %v", ErrMigrationFailed, err)
	}

	var current int
	err := conn.Pool().QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("%w: read schema version: %v", ErrMigrationFailed, err)
	}

	applied := 0
	for _, m := range pending(Migrations(), current) {
		err := conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.Up); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("%w: %03d_%s: %v", ErrMigrationFailed, m.Version, m.Name, err)
		}
		applied++
	}
	return applied, nil
}

func pending(all []Migration, current int) []Migration {
	var out []Migration
	for _, m := range all {
		if m.Version > current {
			out = append(out, m)
		}
	}
	return out
}
