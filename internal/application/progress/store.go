// Package progress owns the single in-memory learner record of the process
// and keeps it in sync with the persistence medium.
//
// A Store is not safe for concurrent use. It belongs to the one goroutine
// that drives the core.
package progress

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/littlemath/learnerhub/internal/domain/learner"
	"github.com/littlemath/learnerhub/internal/domain/shared"
	"github.com/littlemath/learnerhub/pkg/logger"
	"github.com/littlemath/learnerhub/pkg/timeutil"
)

// DefaultNamespace prefixes every key the store writes.
const DefaultNamespace = "mathApp_"

const probeSuffix = "__probe__"

// Source tells where a loaded record came from.
type Source string

const (
	SourceStored   Source = "stored"
	SourceDefaults Source = "defaults"
)

// LoadReport describes a Load call. Err is set when the stored document
// could not be used; the failure was recovered by falling back to defaults.
type LoadReport struct {
	Source Source
	Decode learner.DecodeReport
	Err    error
}

// Options configures a Store.
type Options struct {
	Namespace string
	Clock     timeutil.Clock
	Logger    *logger.Logger
}

// Store is the only writer of the learner record.
//
// The record is dirty while it holds changes the medium has not accepted.
// Flush writes only dirty records, so a session that changed nothing never
// touches storage.
type Store struct {
	medium    learner.Medium
	namespace string
	key       string
	clock     timeutil.Clock
	log       *logger.Logger
	validate  *validator.Validate

	record     learner.Record
	loaded     bool
	loadFailed bool
	dirty      bool
}

// NewStore creates a store over medium. The record starts as defaults until
// Load is called.
func NewStore(medium learner.Medium, opts Options) *Store {
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	return &Store{
		medium:    medium,
		namespace: opts.Namespace,
		key:       learner.RecordKey(opts.Namespace),
		clock:     opts.Clock,
		log:       opts.Logger.With(logger.Component("progress_store")),
		validate:  validator.New(),
		record:    learner.Default(),
	}
}

// Key returns the medium key the record is stored under.
func (s *Store) Key() string {
	return s.key
}

// Namespace returns the key prefix owned by this store.
func (s *Store) Namespace() string {
	return s.namespace
}

// ══════════════════════════════════════════════════════════════════════════════
// LOAD / SAVE
// ══════════════════════════════════════════════════════════════════════════════

// Load reads the stored record, merges it with the current defaults and makes
// it the in-memory record. It never fails: an absent key, an unreadable medium
// or a corrupt document all yield a fresh default record.
func (s *Store) Load(ctx context.Context) (learner.Record, LoadReport) {
	rec, report := s.read(ctx)
	s.record = rec
	s.loaded = true
	s.loadFailed = report.Err != nil
	s.dirty = false
	return rec.Clone(), report
}

func (s *Store) read(ctx context.Context) (learner.Record, LoadReport) {
	data, err := s.medium.Get(ctx, s.key)
	switch {
	case errors.Is(err, learner.ErrKeyNotFound):
		s.log.Debug("no stored record, using defaults", logger.String("key", s.key))
		return learner.Default(), LoadReport{Source: SourceDefaults}

	case err != nil:
		err = s.persistenceError("Load", "failed to read record", err)
		s.log.Warn("medium unreadable, using defaults", logger.Err(err))
		return learner.Default(), LoadReport{Source: SourceDefaults, Err: err}
	}

	rec, decoded, err := learner.Decode(data)
	if err != nil {
		s.log.Warn("stored record is corrupt, using defaults", logger.Err(err), logger.Int("bytes", len(data)))
		return learner.Default(), LoadReport{Source: SourceDefaults, Decode: decoded, Err: err}
	}

	if !decoded.Clean() || decoded.Migrated {
		s.log.Info("stored record reconciled",
			logger.Int("from_version", decoded.FromVersion),
			logger.Bool("migrated", decoded.Migrated),
			logger.Any("repaired", decoded.Repaired),
		)
	}
	return rec, LoadReport{Source: SourceStored, Decode: decoded}
}

// Save makes r the in-memory record and writes it. When the write fails the
// error is returned and r stays authoritative for the rest of the session.
func (s *Store) Save(ctx context.Context, r learner.Record) error {
	s.record = r.Clone()
	s.loaded = true
	return s.persist(ctx, "Save")
}

// Flush writes the in-memory record if it holds unsaved changes.
func (s *Store) Flush(ctx context.Context) error {
	if !s.dirty {
		return nil
	}
	return s.persist(ctx, "Flush")
}

// persist marks the record dirty and writes it. A successful write makes it
// clean again.
func (s *Store) persist(ctx context.Context, op string) error {
	s.dirty = true
	s.record.SchemaVersion = learner.CurrentSchemaVersion

	data, err := learner.Encode(s.record)
	if err != nil {
		return err
	}
	if err := s.medium.Set(ctx, s.key, data); err != nil {
		err = s.persistenceError(op, "failed to write record", err)
		s.log.Warn("record not persisted; keeping in-memory state",
			logger.Operation(op), logger.Err(err))
		return err
	}
	s.dirty = false
	s.log.Debug("record persisted", logger.Operation(op), logger.Int("bytes", len(data)))
	return nil
}

func (s *Store) persistenceError(op, msg string, err error) error {
	if shared.IsPersistence(err) {
		return err
	}
	return shared.WrapError("progress", op, shared.ErrPersistenceUnavailable, msg, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCESSORS
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot returns a deep copy of the in-memory record.
func (s *Store) Snapshot() learner.Record {
	return s.record.Clone()
}

// Loaded reports whether Load or Save has run.
func (s *Store) Loaded() bool {
	return s.loaded
}

// Dirty reports whether the record holds changes not yet written.
func (s *Store) Dirty() bool {
	return s.dirty
}

// AddStars adds n to the star total and saves. A negative n, or one that
// would push the total past math.MaxInt, is rejected and leaves the record
// unchanged. The returned total is valid even when the error reports a
// failed write.
func (s *Store) AddStars(ctx context.Context, n int) (int, error) {
	if n < 0 {
		return s.record.Stars, shared.ErrNegativeReward
	}
	if n > math.MaxInt-s.record.Stars {
		return s.record.Stars, shared.ErrStarOverflow
	}
	s.record.Stars += n
	return s.record.Stars, s.persist(ctx, "AddStars")
}

// SetActivityProgress stores completed/total for id, clamping completed into
// [0, total], and saves. total must be positive.
func (s *Store) SetActivityProgress(ctx context.Context, id learner.ActivityID, completed, total int) (learner.ActivityProgress, error) {
	if id == "" {
		return learner.ActivityProgress{}, shared.NewDomainError("progress", "SetActivityProgress", shared.ErrInvalidInput, "activity id is empty")
	}
	if total <= 0 {
		return s.record.ProgressOf(id), shared.ErrInvalidProgressTotal
	}

	p := s.record.Progress[id]
	p.Completed = completed
	p.Total = total
	p = p.Clamp()
	if p.Completed != completed {
		s.log.Debug("progress clamped",
			logger.ActivityKind(string(id)), logger.Int("reported", completed), logger.Int("total", total))
	}

	if s.record.Progress == nil {
		s.record.Progress = make(map[learner.ActivityID]learner.ActivityProgress)
	}
	s.record.Progress[id] = p
	return p, s.persist(ctx, "SetActivityProgress")
}

// UpdateSettings shallow-merges patch into the settings and saves.
func (s *Store) UpdateSettings(ctx context.Context, patch learner.SettingsPatch) (learner.Settings, error) {
	if err := s.validate.Struct(patch); err != nil {
		return s.record.Settings, shared.WrapError("progress", "UpdateSettings", shared.ErrInvalidInput, "invalid settings", err)
	}
	if patch.IsEmpty() {
		return s.record.Settings, nil
	}

	s.record.Settings = patch.Apply(s.record.Settings)
	return s.record.Settings, s.persist(ctx, "UpdateSettings")
}

// Update applies fn to a copy of the record. When fn reports a change the
// result becomes the in-memory record and is saved. Results that lower the
// star total or the level are rejected.
func (s *Store) Update(ctx context.Context, op string, fn func(r learner.Record) (learner.Record, bool)) (learner.Record, error) {
	next, changed := fn(s.record.Clone())
	if !changed {
		return s.record.Clone(), nil
	}

	switch {
	case next.Stars < s.record.Stars:
		return s.record.Clone(), shared.NewDomainError("progress", op, shared.ErrInvariantViolation,
			fmt.Sprintf("stars would drop from %d to %d", s.record.Stars, next.Stars))
	case next.Level < s.record.Level || next.Level < 1:
		return s.record.Clone(), shared.NewDomainError("progress", op, shared.ErrInvariantViolation,
			fmt.Sprintf("level would drop from %d to %d", s.record.Level, next.Level))
	}

	s.record = next
	return s.record.Clone(), s.persist(ctx, op)
}

// StampLogin records the current time as the last login and saves. When the
// stored record could not be read at Load the stamp stays in memory, so the
// fallback defaults are not written over data that may still be there.
func (s *Store) StampLogin(ctx context.Context) error {
	now := s.clock.Now().UTC()
	s.record.LastLogin = &now
	if s.loadFailed {
		s.log.Debug("login stamped in memory only; stored record was unreadable")
		return nil
	}
	return s.persist(ctx, "StampLogin")
}

// AddPlayTime adds whole seconds of play and saves.
func (s *Store) AddPlayTime(ctx context.Context, seconds int) (int, error) {
	if seconds < 0 {
		return s.record.TotalPlayTime, shared.NewDomainError("progress", "AddPlayTime", shared.ErrInvariantViolation, "play time cannot be negative")
	}
	if seconds == 0 {
		return s.record.TotalPlayTime, nil
	}
	s.record.TotalPlayTime += seconds
	return s.record.TotalPlayTime, s.persist(ctx, "AddPlayTime")
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMINISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// ClearAll deletes every key in the namespace and resets the in-memory record
// to defaults. After a successful wipe the record is clean, so nothing is
// written back until the learner changes it again. Confirmation is the
// caller's responsibility.
func (s *Store) ClearAll(ctx context.Context) error {
	s.record = learner.Default()
	if err := s.medium.DeletePrefix(ctx, s.namespace); err != nil {
		s.dirty = true
		err = s.persistenceError("ClearAll", "failed to wipe namespace", err)
		s.log.Error("namespace wipe failed", logger.Err(err), logger.String("namespace", s.namespace))
		return err
	}
	s.dirty = false
	s.loadFailed = false
	s.log.Info("learner data cleared", logger.String("namespace", s.namespace))
	return nil
}

// Import replaces the record with an externally supplied document, merged
// with defaults like a stored one, and saves it. A document that is not a
// JSON object is rejected and the current record is kept.
func (s *Store) Import(ctx context.Context, data []byte) (learner.DecodeReport, error) {
	rec, report, err := learner.Decode(data)
	if err != nil {
		return report, err
	}
	s.record = rec
	s.loaded = true
	return report, s.persist(ctx, "Import")
}

// Probe writes, reads back and deletes a scratch key to check that the medium
// is usable.
func (s *Store) Probe(ctx context.Context) error {
	key := s.namespace + probeSuffix
	want := []byte(s.clock.Now().UTC().Format("20060102150405.000000000"))

	if err := s.medium.Set(ctx, key, want); err != nil {
		return s.persistenceError("Probe", "probe write failed", err)
	}
	got, err := s.medium.Get(ctx, key)
	if err != nil {
		return s.persistenceError("Probe", "probe read failed", err)
	}
	if string(got) != string(want) {
		return shared.NewDomainError("progress", "Probe", shared.ErrPersistenceUnavailable, "probe value mismatch")
	}
	if err := s.medium.DeletePrefix(ctx, key); err != nil {
		return s.persistenceError("Probe", "probe cleanup failed", err)
	}
	return nil
}
