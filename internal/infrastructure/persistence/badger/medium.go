// Package badger stores the learner record in an embedded BadgerDB. It is the
// default backend: a single local directory, no server to run.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/littlemath/learnerhub/internal/domain/learner"
	"github.com/littlemath/learnerhub/internal/domain/shared"
	"github.com/littlemath/learnerhub/pkg/logger"
)

// Config holds configuration for the BadgerDB medium.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Used by tests.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// Logger receives BadgerDB's own log lines. Nil silences them.
	Logger *logger.Logger
}

// DefaultConfig returns durable settings for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
	}
}

// InMemoryConfig returns configuration optimized for testing.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts the zap-backed logger to BadgerDB's Logger interface.
type badgerLogger struct {
	log *logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

// Medium implements learner.Medium on BadgerDB.
type Medium struct {
	db *badger.DB
}

// Open opens (creating if needed) the database described by cfg.
func Open(cfg Config) (*Medium, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, shared.NewDomainError("badger", "Open", shared.ErrInvalidInput, "path is required for a persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, shared.WrapError("badger", "Open", shared.ErrPersistenceUnavailable,
				fmt.Sprintf("create database directory %s", cfg.Path), err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{log: cfg.Logger.With(logger.Backend("badger"))})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, shared.WrapError("badger", "Open", shared.ErrPersistenceUnavailable, "open badger database", err)
	}
	return &Medium{db: db}, nil
}

// Get implements learner.Medium.
func (m *Medium) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("Get", err)
	}

	var value []byte
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, learner.ErrKeyNotFound
	case err != nil:
		return nil, unavailable("Get", err)
	}
	return value, nil
}

// Set implements learner.Medium.
func (m *Medium) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return unavailable("Set", err)
	}
	err := m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return unavailable("Set", err)
	}
	return nil
}

// DeletePrefix implements learner.Medium.
func (m *Medium) DeletePrefix(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return unavailable("DeletePrefix", err)
	}

	var keys [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return unavailable("DeletePrefix", err)
	}
	if len(keys) == 0 {
		return nil
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return unavailable("DeletePrefix", err)
	}
	return nil
}

// Close implements learner.Medium.
func (m *Medium) Close() error {
	if err := m.db.Close(); err != nil {
		return unavailable("Close", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return shared.WrapError("badger", op, shared.ErrPersistenceUnavailable, "badger operation failed", err)
}
