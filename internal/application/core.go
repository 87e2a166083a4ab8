// Package application wires the learner core together: one progress store,
// one activity registry and the admin surface, built explicitly and handed
// to callers instead of living in process-wide globals.
package application

import (
	"context"
	"errors"

	"github.com/littlemath/learnerhub/internal/application/admin"
	"github.com/littlemath/learnerhub/internal/application/progress"
	"github.com/littlemath/learnerhub/internal/application/registry"
	"github.com/littlemath/learnerhub/internal/domain/achievement"
	"github.com/littlemath/learnerhub/internal/domain/learner"
	"github.com/littlemath/learnerhub/internal/domain/shared"
	"github.com/littlemath/learnerhub/pkg/logger"
	"github.com/littlemath/learnerhub/pkg/timeutil"
)

// Deps are the collaborators a Core is built from.
type Deps struct {
	// Medium is required. Core closes it.
	Medium learner.Medium

	Namespace string
	Rules     []achievement.Rule
	Bus       shared.EventBus
	Clock     timeutil.Clock
	Logger    *logger.Logger
}

// Core is the single-instance context of the learner core. It is not safe
// for concurrent use.
type Core struct {
	Store    *progress.Store
	Registry *registry.Registry
	Admin    *admin.Service
	Engine   *achievement.Engine
	Bus      shared.EventBus

	medium     learner.Medium
	loadReport progress.LoadReport
	log        *logger.Logger
	closed     bool
}

// New loads the learner record, stamps the login time and returns a ready
// core. Storage failures during bootstrap are logged and recovered; only a
// missing medium or an invalid rule table fail.
func New(ctx context.Context, deps Deps) (*Core, error) {
	if deps.Medium == nil {
		return nil, shared.NewDomainError("core", "New", shared.ErrInvalidInput, "medium is required")
	}
	if deps.Rules == nil {
		deps.Rules = achievement.DefaultRules()
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}

	engine, err := achievement.NewEngine(deps.Rules)
	if err != nil {
		return nil, err
	}

	store := progress.NewStore(deps.Medium, progress.Options{
		Namespace: deps.Namespace,
		Clock:     deps.Clock,
		Logger:    deps.Logger,
	})
	rec, report := store.Load(ctx)
	if err := store.StampLogin(ctx); err != nil {
		deps.Logger.Warn("login time not persisted", logger.Err(err))
	}

	var publisher shared.EventPublisher
	if deps.Bus != nil {
		publisher = deps.Bus
	}

	c := &Core{
		Store:  store,
		Engine: engine,
		Bus:    deps.Bus,
		Registry: registry.New(store, engine, registry.Options{
			Bus:    publisher,
			Clock:  deps.Clock,
			Logger: deps.Logger,
		}),
		Admin:      admin.NewService(store, publisher, deps.Clock, deps.Logger),
		medium:     deps.Medium,
		loadReport: report,
		log:        deps.Logger.With(logger.Component("core")),
	}

	c.log.Info("learner core ready",
		logger.String("source", string(report.Source)),
		logger.Stars(rec.Stars),
		logger.LevelValue(rec.Level),
	)
	return c, nil
}

// Medium returns the storage medium the core owns.
func (c *Core) Medium() learner.Medium {
	return c.medium
}

// LoadReport tells how the record was obtained at bootstrap.
func (c *Core) LoadReport() progress.LoadReport {
	return c.loadReport
}

// Close ends the open play session, flushes the record one final time and
// releases the medium. Calling Close again is a no-op.
func (c *Core) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if err := c.Registry.Teardown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := c.Store.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	if closer, ok := c.Bus.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.medium.Close(); err != nil {
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	if err != nil {
		c.log.Warn("core closed with errors", logger.Err(err))
	}
	return err
}
