// Package redis stores the learner record in Redis. Each medium key maps to
// one Redis string key, optionally under a KeyPrefix so several deployments
// can share a database.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/littlemath/learnerhub/internal/domain/learner"
	"github.com/littlemath/learnerhub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	// Host is the Redis server hostname.
	Host string

	// Port is the Redis server port.
	Port int

	// Password is the Redis authentication password (empty if no auth).
	Password string

	// DB is the Redis database number (0-15).
	DB int

	// KeyPrefix is prepended to every medium key.
	KeyPrefix string

	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     4,
		MinIdleConns: 1,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Options converts the configuration to go-redis client options.
func (c Config) Options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr(),
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

// scanBatch is the SCAN count hint and the DEL batch size.
const scanBatch = 100

// ══════════════════════════════════════════════════════════════════════════════
// MEDIUM
// ══════════════════════════════════════════════════════════════════════════════

// Medium implements learner.Medium on a Redis client.
type Medium struct {
	client *redis.Client
	prefix string
}

// NewMedium connects to Redis and verifies the connection with PING.
func NewMedium(ctx context.Context, cfg Config) (*Medium, error) {
	client := redis.NewClient(cfg.Options())
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, shared.WrapError("redis", "Connect", shared.ErrPersistenceUnavailable,
			fmt.Sprintf("ping %s", cfg.Addr()), err)
	}
	return NewMediumFromClient(client, cfg.KeyPrefix), nil
}

// NewMediumFromClient wraps an existing client. The medium owns it afterwards.
func NewMediumFromClient(client *redis.Client, keyPrefix string) *Medium {
	return &Medium{client: client, prefix: keyPrefix}
}

// Get implements learner.Medium.
func (m *Medium) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := m.client.Get(ctx, m.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, learner.ErrKeyNotFound
	}
	if err != nil {
		return nil, unavailable("Get", err)
	}
	return value, nil
}

// Set implements learner.Medium. Keys never expire.
func (m *Medium) Set(ctx context.Context, key string, value []byte) error {
	if err := m.client.Set(ctx, m.redisKey(key), value, 0).Err(); err != nil {
		return unavailable("Set", err)
	}
	return nil
}

// DeletePrefix implements learner.Medium using SCAN, so large databases are
// never blocked by KEYS.
func (m *Medium) DeletePrefix(ctx context.Context, prefix string) error {
	pattern := escapePattern(m.redisKey(prefix)) + "*"

	iter := m.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	keys := make([]string, 0, scanBatch)

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= scanBatch {
			if err := m.client.Del(ctx, keys...).Err(); err != nil {
				return unavailable("DeletePrefix", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return unavailable("DeletePrefix", err)
	}

	if len(keys) > 0 {
		if err := m.client.Del(ctx, keys...).Err(); err != nil {
			return unavailable("DeletePrefix", err)
		}
	}
	return nil
}

// Close implements learner.Medium.
func (m *Medium) Close() error {
	if err := m.client.Close(); err != nil {
		return unavailable("Close", err)
	}
	return nil
}

func (m *Medium) redisKey(key string) string {
	return m.prefix + key
}

// escapePattern quotes the glob metacharacters SCAN MATCH understands.
func escapePattern(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\', '^', '-':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsRejected reports whether err is a reply from a reachable server refusing
// the connection, such as a bad password or database index. Retrying will
// not help.
func IsRejected(err error) bool {
	var reply redis.Error
	if !errors.As(err, &reply) || errors.Is(err, redis.Nil) {
		return false
	}
	msg := reply.Error()
	for _, prefix := range []string{"NOAUTH", "WRONGPASS", "ERR"} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}

func unavailable(op string, err error) error {
	return shared.WrapError("redis", op, shared.ErrPersistenceUnavailable, "redis command failed", err)
}
