package activity

import (
	"errors"
	"time"
)

var (
	ErrSessionAlreadyEnded = errors.New("activity: session already ended")
	ErrEndBeforeStart      = errors.New("activity: end time cannot be before start time")
)

// SessionStatus represents the current state of a play session.
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusEnded  SessionStatus = "ended"
)

// Session is one uninterrupted stretch of play inside an activity. It starts
// when the learner selects the activity and ends when they leave it.
type Session struct {
	Kind      Kind
	StartedAt time.Time
	EndedAt   *time.Time
	Status    SessionStatus

	RewardsReported int
	StarsEarned     int
}

// StartSession opens a session for kind at the given time.
func StartSession(kind Kind, at time.Time) *Session {
	return &Session{
		Kind:      kind,
		StartedAt: at,
		Status:    SessionStatusActive,
	}
}

// End closes the session and returns its length.
func (s *Session) End(at time.Time) (time.Duration, error) {
	if s.Status != SessionStatusActive {
		return 0, ErrSessionAlreadyEnded
	}
	if at.Before(s.StartedAt) {
		return 0, ErrEndBeforeStart
	}
	s.EndedAt = &at
	s.Status = SessionStatusEnded
	return at.Sub(s.StartedAt), nil
}

// Duration returns the session length measured against now for open sessions.
func (s *Session) Duration(now time.Time) time.Duration {
	if s.EndedAt != nil {
		return s.EndedAt.Sub(s.StartedAt)
	}
	if now.Before(s.StartedAt) {
		return 0
	}
	return now.Sub(s.StartedAt)
}

// IsActive returns true if the session is still open.
func (s *Session) IsActive() bool {
	return s.Status == SessionStatusActive
}

// RecordReward counts a reward reported while the session was open.
func (s *Session) RecordReward(stars int) error {
	if s.Status != SessionStatusActive {
		return ErrSessionAlreadyEnded
	}
	s.RewardsReported++
	s.StarsEarned += stars
	return nil
}
