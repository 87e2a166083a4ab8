package main

import (
	"context"
	"io"

	"github.com/littlemath/learnerhub/config"
	"github.com/littlemath/learnerhub/internal/application"
	"github.com/littlemath/learnerhub/internal/domain/learner"
	"github.com/littlemath/learnerhub/internal/domain/shared"
	"github.com/littlemath/learnerhub/internal/infrastructure/messaging"
	"github.com/littlemath/learnerhub/internal/infrastructure/persistence"
	"github.com/littlemath/learnerhub/pkg/logger"
	"github.com/littlemath/learnerhub/pkg/timeutil"
)

// app holds the process-level collaborators. Tests swap them out.
type app struct {
	loadConfig func() (*config.Config, error)
	openMedium func(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) (learner.Medium, error)
	newLogger  func(cfg config.ObservabilityConfig) *logger.Logger
	clock      timeutil.Clock
}

func defaultApp() *app {
	return &app{
		loadConfig: config.Load,
		openMedium: persistence.Open,
		newLogger: func(cfg config.ObservabilityConfig) *logger.Logger {
			return logger.New(logger.Options{
				Level:  logger.ParseLevel(cfg.Level),
				Format: cfg.Format,
			})
		},
		clock: timeutil.SystemClock{},
	}
}

// withCore bootstraps a core, runs fn and closes the core so the final state
// is flushed even when fn fails.
func (a *app) withCore(ctx context.Context, out io.Writer, fn func(c *application.Core) error) (err error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	log := a.newLogger(cfg.Observability).With(logger.String("app", cfg.App.Name))
	defer func() { _ = log.Sync() }()

	medium, err := a.openMedium(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}

	bus := messaging.NewSyncEventBus(log)
	_ = bus.SubscribeAll(func(e shared.Event) error {
		log.Debug("event", logger.String("type", string(e.EventType())), logger.Any("payload", e.Payload()))
		return nil
	})

	core, err := application.New(ctx, application.Deps{
		Medium:    medium,
		Namespace: cfg.Storage.Namespace,
		Bus:       bus,
		Clock:     a.clock,
		Logger:    log,
	})
	if err != nil {
		_ = medium.Close()
		return err
	}

	if report := core.LoadReport(); report.Err != nil {
		printf(out, "note: stored progress could not be read, showing defaults and leaving it untouched (%v)\n", report.Err)
	}

	defer func() {
		if cerr := core.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(core)
}
