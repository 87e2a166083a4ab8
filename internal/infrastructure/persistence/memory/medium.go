// Package memory implements an in-process learner.Medium. It backs tests and
// the "memory" storage backend, and can emulate a browser-style quota.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/littlemath/learnerhub/internal/domain/learner"
	"github.com/littlemath/learnerhub/internal/domain/shared"
)

// Medium is a map-backed key-value medium.
type Medium struct {
	mu     sync.RWMutex
	data   map[string][]byte
	quota  int
	fault  error
	closed bool
}

// Option configures a Medium.
type Option func(*Medium)

// WithQuota limits the total bytes of keys and values held. Zero means unlimited.
func WithQuota(bytes int) Option {
	return func(m *Medium) {
		m.quota = bytes
	}
}

// New creates an empty medium.
func New(opts ...Option) *Medium {
	m := &Medium{data: make(map[string][]byte)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Fail makes every following operation return err wrapped as a persistence
// failure. Fail(nil) restores normal operation.
func (m *Medium) Fail(err error) {
	m.mu.Lock()
	m.fault = err
	m.mu.Unlock()
}

// Get implements learner.Medium.
func (m *Medium) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.check("Get"); err != nil {
		return nil, err
	}
	v, ok := m.data[key]
	if !ok {
		return nil, learner.ErrKeyNotFound
	}
	return slices.Clone(v), nil
}

// Set implements learner.Medium.
func (m *Medium) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check("Set"); err != nil {
		return err
	}
	if m.quota > 0 {
		used := m.usageWithout(key) + len(key) + len(value)
		if used > m.quota {
			return shared.NewDomainError("memory", "Set", shared.ErrPersistenceUnavailable,
				fmt.Sprintf("quota exceeded: %d of %d bytes", used, m.quota))
		}
	}
	m.data[key] = slices.Clone(value)
	return nil
}

// DeletePrefix implements learner.Medium.
func (m *Medium) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check("DeletePrefix"); err != nil {
		return err
	}
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
		}
	}
	return nil
}

// Close implements learner.Medium.
func (m *Medium) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Keys returns the stored keys in sorted order.
func (m *Medium) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (m *Medium) check(op string) error {
	if m.closed {
		return shared.NewDomainError("memory", op, shared.ErrPersistenceUnavailable, "medium is closed")
	}
	if m.fault != nil {
		return shared.WrapError("memory", op, shared.ErrPersistenceUnavailable, "medium unavailable", m.fault)
	}
	return nil
}

func (m *Medium) usageWithout(key string) int {
	n := 0
	for k, v := range m.data {
		if k == key {
			continue
		}
		n += len(k) + len(v)
	}
	return n
}
