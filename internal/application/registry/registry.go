// Package registry is the activity orchestrator: it owns the live activity
// instances, tracks which one is active, and turns activity reports into
// stars, levels and badges.
//
// A Registry is not safe for concurrent use.
package registry

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/littlemath/learnerhub/internal/application/progress"
	"github.com/littlemath/learnerhub/internal/domain/achievement"
	"github.com/littlemath/learnerhub/internal/domain/activity"
	"github.com/littlemath/learnerhub/internal/domain/learner"
	"github.com/littlemath/learnerhub/internal/domain/leveling"
	"github.com/littlemath/learnerhub/internal/domain/shared"
	"github.com/littlemath/learnerhub/pkg/logger"
	"github.com/littlemath/learnerhub/pkg/timeutil"
)

// State is the registry state machine.
type State int

const (
	// StateIdle is NoActivityActive, the initial state.
	StateIdle State = iota
	// StateActive means one activity is selected.
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "idle"
}

// Options configures a Registry.
type Options struct {
	// Factories defaults to activity.DefaultFactories sized to the engine's rules.
	Factories *activity.Factories
	Bus       shared.EventPublisher
	Clock     timeutil.Clock
	Logger    *logger.Logger
}

// Registry routes activity reports into the progress store.
type Registry struct {
	store     *progress.Store
	engine    *achievement.Engine
	factories activity.Factories
	bus       shared.EventPublisher
	clock     timeutil.Clock
	log       *logger.Logger

	instances map[activity.Kind]activity.Activity
	active    activity.Kind
}

// New creates an idle registry.
func New(store *progress.Store, engine *achievement.Engine, opts Options) *Registry {
	if opts.Clock == nil {
		opts.Clock = timeutil.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	factories := activity.DefaultFactories(len(engine.Rules()))
	if opts.Factories != nil {
		factories = *opts.Factories
	}

	return &Registry{
		store:     store,
		engine:    engine,
		factories: factories,
		bus:       opts.Bus,
		clock:     opts.Clock,
		log:       opts.Logger.With(logger.Component("activity_registry")),
		instances: make(map[activity.Kind]activity.Activity),
	}
}

// State returns the current state.
func (r *Registry) State() State {
	if r.active.IsValid() {
		return StateActive
	}
	return StateIdle
}

// Active returns the selected activity, if any.
func (r *Registry) Active() (activity.Activity, bool) {
	if !r.active.IsValid() {
		return nil, false
	}
	return r.instances[r.active], true
}

// Instances returns the cached instances in menu order.
func (r *Registry) Instances() []activity.Activity {
	out := make([]activity.Activity, 0, len(r.instances))
	for _, k := range activity.All() {
		if a, ok := r.instances[k]; ok {
			out = append(out, a)
		}
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITIONS
// ══════════════════════════════════════════════════════════════════════════════

// Selection is the result of SelectActivity.
type Selection struct {
	Activity activity.Activity
	Reused   bool
	Progress activity.Progress

	// Left is the activity that was active before, with the whole seconds
	// spent in it.
	Left        activity.Kind
	LeftSeconds int
	PersistErr  error
}

// SelectActivity makes id the active activity, building its instance on first
// selection and reusing it afterwards. An unregistered id is reported as an
// UnknownActivity error and leaves the state unchanged.
func (r *Registry) SelectActivity(ctx context.Context, id string) (Selection, error) {
	kind, err := activity.ParseKind(id)
	if err != nil {
		return Selection{}, err
	}
	return r.Select(ctx, kind)
}

// Select is SelectActivity for an already resolved kind.
func (r *Registry) Select(ctx context.Context, kind activity.Kind) (Selection, error) {
	inst, reused := r.instances[kind]
	if !reused {
		var err error
		inst, err = r.factories.New(kind, uuid.New())
		if err != nil {
			return Selection{}, err
		}
		r.instances[kind] = inst
		r.log.Debug("activity instance created",
			logger.ActivityKind(kind.String()), logger.String("instance_id", inst.InstanceID().String()))
	}

	var sel Selection
	if r.active.IsValid() && r.active != kind {
		sel.Left = r.active
		sel.LeftSeconds, sel.PersistErr = r.leave(ctx)
	}

	r.active = kind
	inst.Begin(r.clock.Now())

	sel.Activity = inst
	sel.Reused = reused
	sel.Progress = inst.Progress(r.store.Snapshot())

	r.publish(shared.ActivitySelectedEvent{
		BaseEvent:  shared.NewBaseEvent(shared.EventActivitySelected, r.clock.Now()),
		Activity:   kind.String(),
		InstanceID: inst.InstanceID().String(),
		Reused:     reused,
	})
	return sel, nil
}

// Deactivate returns to the idle state. The instance stays cached. It
// returns the whole seconds spent in the activity that was active.
func (r *Registry) Deactivate(ctx context.Context) (int, error) {
	if !r.active.IsValid() {
		return 0, nil
	}
	return r.leave(ctx)
}

// Teardown closes the open play session before the process exits.
func (r *Registry) Teardown(ctx context.Context) error {
	_, err := r.Deactivate(ctx)
	return err
}

// leave ends the active session, books its play time and goes idle.
func (r *Registry) leave(ctx context.Context) (int, error) {
	kind := r.active
	inst := r.instances[kind]
	r.active = activity.KindUnknown

	seconds := timeutil.WholeSeconds(inst.Finish(r.clock.Now()))
	_, err := r.store.AddPlayTime(ctx, seconds)
	if err != nil {
		r.log.Warn("play time not persisted", logger.ActivityKind(kind.String()), logger.Err(err))
	}

	r.publish(shared.ActivityDeactivatedEvent{
		BaseEvent:     shared.NewBaseEvent(shared.EventActivityDeactivated, r.clock.Now()),
		Activity:      kind.String(),
		PlayedSeconds: seconds,
	})
	return seconds, err
}

// ══════════════════════════════════════════════════════════════════════════════
// REPORTS
// ══════════════════════════════════════════════════════════════════════════════

// RewardOutcome is what the presentation layer renders after a reward.
type RewardOutcome struct {
	// NewStarTotal includes stars paid by badges unlocked in the same call.
	NewStarTotal  int
	LeveledUp     bool
	OldLevel      int
	NewLevel      int
	NewlyUnlocked []learner.AchievementID

	// PersistErr is set when the in-memory result could not be written.
	// The outcome is still authoritative for the session.
	PersistErr error
}

// ReportReward adds amount stars, then levels, then evaluates badges, then
// levels again so badge rewards count. A negative amount is rejected and
// nothing changes.
func (r *Registry) ReportReward(ctx context.Context, amount int) (RewardOutcome, error) {
	before := r.store.Snapshot()

	total, err := r.store.AddStars(ctx, amount)
	if shared.IsInvariantViolation(err) {
		return RewardOutcome{NewStarTotal: total, OldLevel: before.Level, NewLevel: before.Level}, err
	}
	out := RewardOutcome{PersistErr: err}

	var unlocked []learner.AchievementID
	rec, err := r.store.Update(ctx, "ReportReward", func(rec learner.Record) (learner.Record, bool) {
		first := leveling.Evaluate(rec)
		badges := r.engine.Evaluate(first.Record)
		second := leveling.Evaluate(badges.Record)
		unlocked = badges.NewlyUnlocked
		return second.Record, first.LeveledUp || len(badges.NewlyUnlocked) > 0 || second.LeveledUp
	})
	if err != nil && out.PersistErr == nil {
		out.PersistErr = err
	}

	out.NewStarTotal = rec.Stars
	out.OldLevel = before.Level
	out.NewLevel = rec.Level
	out.LeveledUp = rec.Level > before.Level
	out.NewlyUnlocked = unlocked

	if inst, ok := r.Active(); ok {
		if cur := inst.Current(); cur != nil {
			_ = cur.RecordReward(amount)
		}
	}

	r.log.Debug("reward reported",
		logger.Int("amount", amount), logger.Stars(out.NewStarTotal), logger.LevelValue(out.NewLevel))

	now := r.clock.Now()
	r.publish(shared.StarsAwardedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventStarsAwarded, now),
		Amount:    amount,
		Total:     total,
		Activity:  r.activeName(),
	})
	r.publishUnlocks(now, unlocked)
	if out.LeveledUp {
		r.publish(shared.LevelUpEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventLevelUp, now),
			OldLevel:  out.OldLevel,
			NewLevel:  out.NewLevel,
			Stars:     out.NewStarTotal,
		})
	}
	return out, nil
}

// ProgressOutcome is the result of ReportActivityProgress.
type ProgressOutcome struct {
	Activity activity.Kind
	Progress learner.ActivityProgress

	// Clamped is true when completed had to be forced into [0, total].
	Clamped bool

	NewlyUnlocked []learner.AchievementID
	NewStarTotal  int
	LeveledUp     bool
	NewLevel      int
	PersistErr    error
}

// ReportActivityProgress stores the progress summary of an activity and
// re-evaluates badges, since several of them key off activity progress.
func (r *Registry) ReportActivityProgress(ctx context.Context, id string, completed, total int) (ProgressOutcome, error) {
	kind, err := activity.ParseKind(id)
	if err != nil {
		return ProgressOutcome{}, err
	}
	before := r.store.Snapshot()

	p, err := r.store.SetActivityProgress(ctx, kind.ID(), completed, total)
	if err != nil && !shared.IsPersistence(err) {
		return ProgressOutcome{Activity: kind, Progress: p}, err
	}
	out := ProgressOutcome{
		Activity:   kind,
		Progress:   p,
		Clamped:    p.Completed != completed,
		PersistErr: err,
	}

	var unlocked []learner.AchievementID
	rec, err := r.store.Update(ctx, "ReportActivityProgress", func(rec learner.Record) (learner.Record, bool) {
		badges := r.engine.Evaluate(rec)
		lvl := leveling.Evaluate(badges.Record)
		unlocked = badges.NewlyUnlocked
		return lvl.Record, len(badges.NewlyUnlocked) > 0 || lvl.LeveledUp
	})
	if err != nil && out.PersistErr == nil {
		out.PersistErr = err
	}

	out.NewlyUnlocked = unlocked
	out.NewStarTotal = rec.Stars
	out.NewLevel = rec.Level
	out.LeveledUp = rec.Level > before.Level

	now := r.clock.Now()
	r.publish(shared.ProgressRecordedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventProgressRecorded, now),
		Activity:  kind.String(),
		Completed: p.Completed,
		Total:     p.Total,
	})
	r.publishUnlocks(now, unlocked)
	if out.LeveledUp {
		r.publish(shared.LevelUpEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventLevelUp, now),
			OldLevel:  before.Level,
			NewLevel:  rec.Level,
			Stars:     rec.Stars,
		})
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MENU
// ══════════════════════════════════════════════════════════════════════════════

// MenuEntry describes one selectable activity.
type MenuEntry struct {
	Kind     activity.Kind
	Title    string
	Progress activity.Progress
	Active   bool
	Started  bool
}

// Menu lists every registered kind with its current progress. Kinds that were
// never selected are previewed without being cached.
func (r *Registry) Menu() []MenuEntry {
	snap := r.store.Snapshot()
	kinds := activity.All()
	out := make([]MenuEntry, 0, len(kinds))

	for _, k := range kinds {
		inst, started := r.instances[k]
		if !started {
			var err error
			if inst, err = r.factories.New(k, uuid.Nil); err != nil {
				continue
			}
		}
		out = append(out, MenuEntry{
			Kind:     k,
			Title:    k.Title(),
			Progress: inst.Progress(snap),
			Active:   k == r.active,
			Started:  started,
		})
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func (r *Registry) activeName() string {
	if !r.active.IsValid() {
		return ""
	}
	return r.active.String()
}

func (r *Registry) publishUnlocks(now time.Time, ids []learner.AchievementID) {
	for _, id := range ids {
		rule, _ := r.engine.Rule(id)
		r.log.Info("achievement unlocked", logger.AchievementID(string(id)), logger.Int("reward", rule.Reward))
		r.publish(shared.AchievementUnlockedEvent{
			BaseEvent:     shared.NewBaseEvent(shared.EventAchievementUnlocked, now),
			AchievementID: string(id),
			Reward:        rule.Reward,
		})
	}
}

func (r *Registry) publish(e shared.Event) {
	if r.bus == nil {
		return
	}
	if err := r.bus.Publish(e); err != nil {
		r.log.Warn("event not published",
			logger.String("event_type", string(e.EventType())), logger.Err(err))
	}
}
