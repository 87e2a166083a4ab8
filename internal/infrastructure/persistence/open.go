// Package persistence selects and opens the learner.Medium named by the
// storage configuration.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/littlemath/learnerhub/config"
	"github.com/littlemath/learnerhub/internal/domain/learner"
	"github.com/littlemath/learnerhub/internal/domain/shared"
	"github.com/littlemath/learnerhub/internal/infrastructure/persistence/badger"
	"github.com/littlemath/learnerhub/internal/infrastructure/persistence/memory"
	"github.com/littlemath/learnerhub/internal/infrastructure/persistence/postgres"
	"github.com/littlemath/learnerhub/internal/infrastructure/persistence/redis"
	"github.com/littlemath/learnerhub/internal/infrastructure/persistence/sqlite"
	"github.com/littlemath/learnerhub/pkg/logger"
	"github.com/littlemath/learnerhub/pkg/retry"
)

// Open returns the medium for cfg.Backend. Networked backends are retried up
// to cfg.ConnectAttempts times and come back behind a circuit breaker (see
// Guard). A malformed configuration, or a server that rejects the
// connection, fails on the first attempt.
func Open(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) (learner.Medium, error) {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("persistence"), logger.Backend(cfg.Backend))
	start := time.Now()

	var (
		medium learner.Medium
		err    error
	)
	switch cfg.Backend {
	case config.BackendMemory:
		medium = memory.New()

	case config.BackendBadger:
		bc := badger.DefaultConfig(cfg.Badger.Dir)
		bc.SyncWrites = cfg.Badger.SyncWrites
		bc.Logger = log
		medium, err = badger.Open(bc)

	case config.BackendSQLite:
		medium, err = sqlite.Open(ctx, cfg.SQLite.Path)

	case config.BackendRedis:
		medium, err = connect(ctx, cfg.ConnectAttempts, log, func(ctx context.Context) (learner.Medium, error) {
			m, err := redis.NewMedium(ctx, redisConfig(cfg.Redis))
			if err != nil {
				return nil, permanentIf(redis.IsRejected(err), err)
			}
			return m, nil
		})

	case config.BackendPostgres:
		pc := postgres.DefaultConfig(cfg.Postgres.URL)
		pc.MaxConns = cfg.Postgres.MaxConns
		if _, perr := pc.PoolConfig(); perr != nil {
			return nil, perr
		}
		medium, err = connect(ctx, cfg.ConnectAttempts, log, func(ctx context.Context) (learner.Medium, error) {
			m, err := postgres.Open(ctx, pc)
			if err != nil {
				return nil, permanentIf(postgres.IsRejected(err), err)
			}
			return m, nil
		})

	default:
		return nil, shared.NewDomainError("persistence", "Open", shared.ErrInvalidInput,
			fmt.Sprintf("unknown storage backend %q", cfg.Backend))
	}
	if err != nil {
		log.Error("failed to open storage", logger.Err(err))
		return nil, err
	}

	switch cfg.Backend {
	case config.BackendRedis, config.BackendPostgres:
		medium = Guard(medium, cfg.Backend, log)
	}

	log.Info("storage opened", logger.Latency(time.Since(start)))
	return medium, nil
}

func connect(ctx context.Context, attempts int, log *logger.Logger, dial func(context.Context) (learner.Medium, error)) (learner.Medium, error) {
	r := retry.ConnectRetrier(attempts, func(attempt int, err error, delay time.Duration) {
		log.Warn("storage not reachable, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	})
	return retry.DoWithData(ctx, r, func(ctx context.Context) (learner.Medium, error) {
		m, err := dial(ctx)
		if retry.IsPermanent(err) {
			log.Warn("storage rejected the connection, not retrying", logger.Err(err))
		}
		return m, err
	})
}

func permanentIf(rejected bool, err error) error {
	if rejected {
		return retry.Permanent(err)
	}
	return err
}

func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	rc.KeyPrefix = c.KeyPrefix
	rc.DialTimeout = c.DialTimeout
	rc.ReadTimeout = c.ReadTimeout
	rc.WriteTimeout = c.WriteTimeout
	return rc
}
