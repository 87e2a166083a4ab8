// Package messaging implements the in-process event bus the core publishes
// progress, level and achievement notifications on.
package messaging

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/littlemath/learnerhub/internal/domain/shared"
	"github.com/littlemath/learnerhub/pkg/logger"
)

var (
	// ErrEventBusClosed is returned when operations are attempted on a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic is reported when a handler panics.
	ErrHandlerPanic = errors.New("handler panicked")
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// SyncEventBus delivers every event to its handlers on the publishing
// goroutine, in subscription order, before Publish returns. Handler errors
// and panics are logged and counted; they never reach the publisher.
type SyncEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	log         *logger.Logger
	metrics     *EventBusMetrics
	closed      bool
}

// NewSyncEventBus creates an empty bus. A nil logger discards output.
func NewSyncEventBus(log *logger.Logger) *SyncEventBus {
	if log == nil {
		log = logger.Nop()
	}
	return &SyncEventBus{
		handlers: make(map[shared.EventType][]shared.EventHandler),
		log:      log.With(logger.Component("event_bus")),
		metrics:  NewEventBusMetrics(),
	}
}

// Subscribe registers a handler for a specific event type.
func (b *SyncEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// SubscribeAll registers a handler for all events.
func (b *SyncEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}
	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

// Publish runs every matching handler. It fails only for a nil event or a
// closed bus.
func (b *SyncEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	handlers := make([]shared.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.allHandlers...)
	b.mu.RUnlock()

	b.metrics.RecordPublish(event.EventType())

	for _, handler := range handlers {
		start := time.Now()
		err := b.invoke(event, handler)
		b.metrics.RecordHandlerExecution(event.EventType(), time.Since(start), err == nil)

		if err != nil {
			b.log.Error("event handler failed",
				logger.String("event_type", string(event.EventType())),
				logger.Err(err),
			)
		}
	}
	return nil
}

func (b *SyncEventBus) invoke(event shared.Event, handler shared.EventHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return handler(event)
}

// Close drops all handlers; later calls fail with ErrEventBusClosed.
func (b *SyncEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.handlers = nil
	b.allHandlers = nil
	return nil
}

// Metrics returns the bus counters.
func (b *SyncEventBus) Metrics() *EventBusMetrics {
	return b.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// EventBusMetrics counts published events and handler outcomes.
type EventBusMetrics struct {
	mu sync.RWMutex

	publishedByType  map[shared.EventType]int64
	handlerSuccesses int64
	handlerFailures  int64
	handlerDuration  time.Duration
}

// NewEventBusMetrics creates new metrics tracker.
func NewEventBusMetrics() *EventBusMetrics {
	return &EventBusMetrics{
		publishedByType: make(map[shared.EventType]int64),
	}
}

// RecordPublish records a publish event.
func (m *EventBusMetrics) RecordPublish(eventType shared.EventType) {
	m.mu.Lock()
	m.publishedByType[eventType]++
	m.mu.Unlock()
}

// RecordHandlerExecution records a handler execution.
func (m *EventBusMetrics) RecordHandlerExecution(_ shared.EventType, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlerDuration += duration
	if success {
		m.handlerSuccesses++
	} else {
		m.handlerFailures++
	}
}

// EventBusMetricsSnapshot is a point-in-time snapshot of metrics.
type EventBusMetricsSnapshot struct {
	Published        map[shared.EventType]int64
	TotalPublished   int64
	HandlerSuccesses int64
	HandlerFailures  int64
	AverageDuration  time.Duration
}

// Snapshot returns a copy of current metrics.
func (m *EventBusMetrics) Snapshot() EventBusMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := EventBusMetricsSnapshot{
		Published:        make(map[shared.EventType]int64, len(m.publishedByType)),
		HandlerSuccesses: m.handlerSuccesses,
		HandlerFailures:  m.handlerFailures,
	}
	for t, n := range m.publishedByType {
		s.Published[t] = n
		s.TotalPublished += n
	}
	if execs := m.handlerSuccesses + m.handlerFailures; execs > 0 {
		s.AverageDuration = m.handlerDuration / time.Duration(execs)
	}
	return s
}
