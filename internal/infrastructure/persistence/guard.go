package persistence

import (
	"context"
	"errors"

	"github.com/littlemath/learnerhub/internal/domain/learner"
	"github.com/littlemath/learnerhub/internal/domain/shared"
	"github.com/littlemath/learnerhub/pkg/circuitbreaker"
	"github.com/littlemath/learnerhub/pkg/logger"
)

// Guarded wraps a networked medium in a circuit breaker. While the breaker is
// open every call fails at once with ErrPersistenceUnavailable, so a dead
// server costs one timeout per cool-down instead of one per learner action.
type Guarded struct {
	learner.Medium
	breaker *circuitbreaker.CircuitBreaker
}

// Guard returns m behind a storage breaker named after backend.
func Guard(m learner.Medium, backend string, log *logger.Logger) *Guarded {
	if log == nil {
		log = logger.Nop()
	}
	return GuardWith(m, circuitbreaker.StorageBreaker(backend, countsAsOutage, func(name string, from, to circuitbreaker.State) {
		log.Warn("storage circuit changed state",
			logger.Backend(name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}))
}

// GuardWith uses a caller-built breaker.
func GuardWith(m learner.Medium, cb *circuitbreaker.CircuitBreaker) *Guarded {
	return &Guarded{Medium: m, breaker: cb}
}

// Breaker exposes the breaker for status reporting.
func (g *Guarded) Breaker() *circuitbreaker.CircuitBreaker {
	return g.breaker
}

// Get implements learner.Medium.
func (g *Guarded) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := g.execute(ctx, "Get", func(ctx context.Context) error {
		var err error
		value, err = g.Medium.Get(ctx, key)
		return err
	})
	return value, err
}

// Set implements learner.Medium.
func (g *Guarded) Set(ctx context.Context, key string, value []byte) error {
	return g.execute(ctx, "Set", func(ctx context.Context) error {
		return g.Medium.Set(ctx, key, value)
	})
}

// DeletePrefix implements learner.Medium.
func (g *Guarded) DeletePrefix(ctx context.Context, prefix string) error {
	return g.execute(ctx, "DeletePrefix", func(ctx context.Context) error {
		return g.Medium.DeletePrefix(ctx, prefix)
	})
}

func (g *Guarded) execute(ctx context.Context, op string, fn func(context.Context) error) error {
	err := g.breaker.Execute(ctx, fn)
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return shared.WrapError(g.breaker.Name(), op, shared.ErrPersistenceUnavailable, "storage temporarily disabled after repeated failures", err)
	}
	return err
}

// countsAsOutage ignores a missing key; that is an answer, not a failure.
func countsAsOutage(err error) bool {
	return !errors.Is(err, learner.ErrKeyNotFound)
}
