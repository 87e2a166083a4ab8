package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/littlemath/learnerhub/internal/domain/learner"
	"github.com/littlemath/learnerhub/internal/domain/shared"
)

const (
	selectEntry = `SELECT value FROM kv_entries WHERE key = $1`

	upsertEntry = `
		INSERT INTO kv_entries (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`

	deletePrefix = `DELETE FROM kv_entries WHERE key LIKE $1 ESCAPE '\'`
)

// Medium implements learner.Medium on the kv_entries table.
type Medium struct {
	conn *Connection
}

// Open connects, runs pending migrations and returns a ready medium.
func Open(ctx context.Context, cfg Config) (*Medium, error) {
	conn, err := NewConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, shared.WrapError("postgres", "Open", shared.ErrPersistenceUnavailable, "schema migration failed", err)
	}
	return NewMedium(conn), nil
}

// NewMedium wraps an already migrated connection.
func NewMedium(conn *Connection) *Medium {
	return &Medium{conn: conn}
}

// Get implements learner.Medium.
func (m *Medium) Get(ctx context.Context, key string) ([]byte, error) {
	if m.conn.IsClosed() {
		return nil, unavailable("Get", ErrConnectionClosed)
	}

	var value []byte
	err := m.conn.Pool().QueryRow(ctx, selectEntry, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, learner.ErrKeyNotFound
	}
	if err != nil {
		return nil, unavailable("Get", err)
	}
	return value, nil
}

// Set implements learner.Medium.
func (m *Medium) Set(ctx context.Context, key string, value []byte) error {
	if m.conn.IsClosed() {
		return unavailable("Set", ErrConnectionClosed)
	}
	if _, err := m.conn.Pool().Exec(ctx, upsertEntry, key, value); err != nil {
		return unavailable("Set", err)
	}
	return nil
}

// DeletePrefix implements learner.Medium.
func (m *Medium) DeletePrefix(ctx context.Context, prefix string) error {
	if m.conn.IsClosed() {
		return unavailable("DeletePrefix", ErrConnectionClosed)
	}
	if _, err := m.conn.Pool().Exec(ctx, deletePrefix, likePrefix(prefix)); err != nil {
		return unavailable("DeletePrefix", err)
	}
	return nil
}

// Close implements learner.Medium.
func (m *Medium) Close() error {
	m.conn.Close()
	return nil
}

// likePrefix builds a LIKE pattern matching every key that starts with prefix.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

func unavailable(op string, err error) error {
	return shared.WrapError("postgres", op, shared.ErrPersistenceUnavailable, "postgres query failed", err)
}
