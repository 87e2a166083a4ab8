// Package sqlite stores the learner record in a single SQLite file through
// the pure-Go modernc driver. Useful on devices where a data directory is not
// practical but a single file is.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/littlemath/learnerhub/internal/domain/learner"
	"github.com/littlemath/learnerhub/internal/domain/shared"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv_entries (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);`

// Medium implements learner.Medium on an SQLite database file.
type Medium struct {
	db *sql.DB
}

// Open opens (creating if needed) and migrates the database at path.
func Open(ctx context.Context, path string) (*Medium, error) {
	if strings.TrimSpace(path) == "" {
		return nil, shared.NewDomainError("sqlite", "Open", shared.ErrInvalidInput, "database path is required")
	}

	dsn := "file:" + filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, unavailable("Open", fmt.Errorf("open sqlite db: %w", err))
	}
	// One writer; SQLite serialises anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, unavailable("Open", fmt.Errorf("ping sqlite db: %w", err))
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, unavailable("Open", fmt.Errorf("run migrations: %w", err))
	}
	return &Medium{db: db}, nil
}

// Get implements learner.Medium.
func (m *Medium) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := m.db.QueryRowContext(ctx, `SELECT value FROM kv_entries WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, learner.ErrKeyNotFound
	}
	if err != nil {
		return nil, unavailable("Get", err)
	}
	return value, nil
}

// Set implements learner.Medium.
func (m *Medium) Set(ctx context.Context, key string, value []byte) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO kv_entries (key, value, updated_at) VALUES (?, ?, unixepoch())
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value,
	)
	if err != nil {
		return unavailable("Set", err)
	}
	return nil
}

// DeletePrefix implements learner.Medium. The comparison is on a substring,
// not LIKE, because LIKE ignores ASCII case in SQLite.
func (m *Medium) DeletePrefix(ctx context.Context, prefix string) error {
	_, err := m.db.ExecContext(ctx,
		`DELETE FROM kv_entries WHERE substr(key, 1, length(?1)) = ?1`,
		prefix,
	)
	if err != nil {
		return unavailable("DeletePrefix", err)
	}
	return nil
}

// Close implements learner.Medium.
func (m *Medium) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	if err := m.db.Close(); err != nil {
		return unavailable("Close", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return shared.WrapError("sqlite", op, shared.ErrPersistenceUnavailable, "sqlite statement failed", err)
}
