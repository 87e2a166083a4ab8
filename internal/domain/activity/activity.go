package activity

import (
	"time"

	"github.com/google/uuid"

	"github.com/littlemath/learnerhub/internal/domain/learner"
)

// Progress is what an activity reports for its progress indicator.
type Progress struct {
	Current int
	Total   int
}

// Percent returns completion in whole percent.
func (p Progress) Percent() int {
	return learner.ActivityProgress{Completed: p.Current, Total: p.Total}.Percent()
}

// Activity is a live, in-session activity instance. Instances keep their
// session history while the process runs; only the progress summaries they
// report are persisted.
type Activity interface {
	Kind() Kind
	InstanceID() uuid.UUID

	// Progress is pulled by the orchestrator when the activity is shown.
	Progress(r learner.Record) Progress

	// Begin opens a play session; Finish closes the open one, if any, and
	// returns how long it lasted.
	Begin(at time.Time) *Session
	Finish(at time.Time) time.Duration

	// Current returns the open session, or nil.
	Current() *Session

	// Sessions returns every session of this instance, oldest first.
	Sessions() []*Session
}

// base carries the state every kind shares.
type base struct {
	kind     Kind
	id       uuid.UUID
	sessions []*Session
}

func (b *base) Kind() Kind            { return b.kind }
func (b *base) InstanceID() uuid.UUID { return b.id }

func (b *base) Begin(at time.Time) *Session {
	if cur := b.Current(); cur != nil {
		return cur
	}
	s := StartSession(b.kind, at)
	b.sessions = append(b.sessions, s)
	return s
}

func (b *base) Finish(at time.Time) time.Duration {
	cur := b.Current()
	if cur == nil {
		return 0
	}
	d, err := cur.End(at)
	if err != nil {
		// clock went backwards; close the session as empty
		_, _ = cur.End(cur.StartedAt)
		return 0
	}
	return d
}

func (b *base) Current() *Session {
	if n := len(b.sessions); n > 0 && b.sessions[n-1].IsActive() {
		return b.sessions[n-1]
	}
	return nil
}

func (b *base) Sessions() []*Session {
	out := make([]*Session, len(b.sessions))
	copy(out, b.sessions)
	return out
}

// lesson is a progress-tracked learning activity such as numbers or shapes.
type lesson struct {
	base
}

func (l *lesson) Progress(r learner.Record) Progress {
	p := r.ProgressOf(l.kind.ID())
	return Progress{Current: p.Completed, Total: p.Total}
}

// gallery lists badges; its progress is unlocked over available.
type gallery struct {
	base
	available int
}

func (g *gallery) Progress(r learner.Record) Progress {
	return Progress{Current: min(r.Achievements.Len(), g.available), Total: g.available}
}

// Factory builds a new instance with the given id.
type Factory func(id uuid.UUID) Activity

// Factories maps every kind to its constructor.
type Factories [kindCount]Factory

// DefaultFactories returns constructors for every registered kind.
// achievementCount is the number of badges the gallery displays.
func DefaultFactories(achievementCount int) Factories {
	lessonOf := func(k Kind) Factory {
		return func(id uuid.UUID) Activity {
			return &lesson{base: base{kind: k, id: id}}
		}
	}

	return Factories{
		KindNumbers:    lessonOf(KindNumbers),
		KindArithmetic: lessonOf(KindArithmetic),
		KindShapes:     lessonOf(KindShapes),
		KindComparison: lessonOf(KindComparison),
		KindGames:      lessonOf(KindGames),
		KindAchievements: func(id uuid.UUID) Activity {
			return &gallery{base: base{kind: KindAchievements, id: id}, available: achievementCount}
		},
	}
}

// New builds an instance of k, or returns an UnknownActivity error when k
// has no factory.
func (f Factories) New(k Kind, id uuid.UUID) (Activity, error) {
	if !k.IsValid() || f[k] == nil {
		return nil, UnknownActivityError(k.String())
	}
	return f[k](id), nil
}
