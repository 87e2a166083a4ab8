package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. The presentation layer subscribes to these to render
// toasts, animations and sounds; the core never touches display state.
const (
	// Progress events
	EventStarsAwarded     EventType = "progress.stars_awarded"
	EventLevelUp          EventType = "progress.level_up"
	EventProgressRecorded EventType = "activity.progress_recorded"

	// Achievement events
	EventAchievementUnlocked EventType = "achievement.unlocked"

	// Activity events
	EventActivitySelected    EventType = "activity.selected"
	EventActivityDeactivated EventType = "activity.deactivated"

	// Admin events
	EventSettingsUpdated EventType = "admin.settings_updated"
	EventLearnerCleared  EventType = "admin.learner_cleared"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, at time.Time) BaseEvent {
	return BaseEvent{
		Type:      eventType,
		Timestamp: at,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// StarsAwardedEvent is emitted after a reward has been added to the record.
type StarsAwardedEvent struct {
	BaseEvent
	Amount   int    `json:"amount"`
	Total    int    `json:"total"`
	Activity string `json:"activity,omitempty"`
}

// Payload implements Event interface.
func (e StarsAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"amount":   e.Amount,
		"total":    e.Total,
		"activity": e.Activity,
	}
}

// LevelUpEvent is emitted once per mutating call that raised the level,
// even when several levels were crossed at once.
type LevelUpEvent struct {
	BaseEvent
	OldLevel int `json:"old_level"`
	NewLevel int `json:"new_level"`
	Stars    int `json:"stars"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
		"stars":     e.Stars,
	}
}

// ProgressRecordedEvent is emitted after an activity reported its progress.
type ProgressRecordedEvent struct {
	BaseEvent
	Activity  string `json:"activity"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// Payload implements Event interface.
func (e ProgressRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"activity":  e.Activity,
		"completed": e.Completed,
		"total":     e.Total,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementUnlockedEvent is emitted once per newly unlocked badge.
type AchievementUnlockedEvent struct {
	BaseEvent
	AchievementID string `json:"achievement_id"`
	Reward        int    `json:"reward"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"achievement_id": e.AchievementID,
		"reward":         e.Reward,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Activity Events
// ═══════════════════════════════════════════════════════════════════════════

// ActivitySelectedEvent is emitted when the registry switches activity.
type ActivitySelectedEvent struct {
	BaseEvent
	Activity   string `json:"activity"`
	InstanceID string `json:"instance_id"`
	Reused     bool   `json:"reused"`
}

// Payload implements Event interface.
func (e ActivitySelectedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"activity":    e.Activity,
		"instance_id": e.InstanceID,
		"reused":      e.Reused,
	}
}

// ActivityDeactivatedEvent is emitted when the learner leaves an activity.
type ActivityDeactivatedEvent struct {
	BaseEvent
	Activity      string `json:"activity"`
	PlayedSeconds int    `json:"played_seconds"`
}

// Payload implements Event interface.
func (e ActivityDeactivatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"activity":       e.Activity,
		"played_seconds": e.PlayedSeconds,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Admin Events
// ═══════════════════════════════════════════════════════════════════════════

// SettingsUpdatedEvent is emitted after a settings change was stored.
type SettingsUpdatedEvent struct {
	BaseEvent
	AudioEnabled bool   `json:"audio_enabled"`
	Difficulty   string `json:"difficulty"`
}

// Payload implements Event interface.
func (e SettingsUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"audio_enabled": e.AudioEnabled,
		"difficulty":    e.Difficulty,
	}
}

// LearnerClearedEvent is emitted after all learner data was wiped.
type LearnerClearedEvent struct {
	BaseEvent
}

// Payload implements Event interface.
func (e LearnerClearedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Handler Interfaces
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
