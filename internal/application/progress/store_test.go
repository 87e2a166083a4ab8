package progress

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/littlemath/learnerhub/internal/domain/learner"
	"github.com/littlemath/learnerhub/internal/domain/shared"
	"github.com/littlemath/learnerhub/internal/infrastructure/persistence/memory"
	"github.com/littlemath/learnerhub/pkg/timeutil"
)

var recordOpts = cmp.Options{
	cmp.Comparer(func(a, b learner.AchievementSet) bool { return a.Equal(b) }),
	cmpopts.EquateEmpty(),
}

var epoch = time.Date(2025, 9, 1, 7, 30, 0, 0, time.UTC)

func newStore(t *testing.T) (*Store, *memory.Medium) {
	t.Helper()
	m := memory.New()
	s := NewStore(m, Options{Clock: timeutil.NewManualClock(epoch)})
	return s, m
}

func TestLoad_AbsentKeyYieldsDefaults(t *testing.T) {
	s, _ := newStore(t)

	rec, report := s.Load(context.Background())
	assert.Equal(t, SourceDefaults, report.Source)
	assert.NoError(t, report.Err)
	if diff := cmp.Diff(learner.Default(), rec, recordOpts); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	assert.True(t, s.Loaded())
}

func TestLoad_CorruptDocumentYieldsDefaults(t *testing.T) {
	s, m := newStore(t)
	require.NoError(t, m.Set(context.Background(), s.Key(), []byte("{{{")))

	rec, report := s.Load(context.Background())
	assert.Equal(t, SourceDefaults, report.Source)
	assert.ErrorIs(t, report.Err, shared.ErrMalformedRecord)
	assert.Equal(t, 0, rec.Stars)
}

func TestLoad_UnreadableMediumYieldsDefaults(t *testing.T) {
	s, m := newStore(t)
	m.Fail(errors.New("storage disabled"))

	rec, report := s.Load(context.Background())
	assert.Equal(t, SourceDefaults, report.Source)
	assert.True(t, shared.IsPersistence(report.Err))
	assert.Equal(t, 1, rec.Level)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, m := newStore(t)

	want := learner.Default()
	want.Stars = 12
	want.Level = 2
	want.Achievements = learner.NewAchievementSet("first_star")
	require.NoError(t, s.Save(ctx, want))

	fresh := NewStore(m, Options{})
	got, report := fresh.Load(ctx)
	assert.Equal(t, SourceStored, report.Source)
	assert.True(t, report.Decode.Clean())
	if diff := cmp.Diff(want, got, recordOpts); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestAddStars_IsMonotonic(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	s.Load(ctx)

	sum := 0
	for _, n := range []int{0, 5, 1, 0, 13, 2} {
		sum += n
		total, err := s.AddStars(ctx, n)
		require.NoError(t, err)
		assert.Equal(t, sum, total)
	}
	assert.Equal(t, sum, s.Snapshot().Stars)
}

func TestAddStars_RejectsNegative(t *testing.T) {
	ctx := context.Background()
	s, m := newStore(t)
	s.Load(ctx)
	_, err := s.AddStars(ctx, 7)
	require.NoError(t, err)
	stored, err := m.Get(ctx, s.Key())
	require.NoError(t, err)

	total, err := s.AddStars(ctx, -3)
	assert.True(t, shared.IsInvariantViolation(err))
	assert.Equal(t, 7, total)
	assert.Equal(t, 7, s.Snapshot().Stars)

	after, err := m.Get(ctx, s.Key())
	require.NoError(t, err)
	assert.Equal(t, stored, after, "stored record must be untouched")
}

func TestAddStars_RejectsOverflow(t *testing.T) {
	ctx := context.Background()
	s, m := newStore(t)
	s.Load(ctx)
	_, err := s.AddStars(ctx, 5)
	require.NoError(t, err)
	stored, err := m.Get(ctx, s.Key())
	require.NoError(t, err)

	total, err := s.AddStars(ctx, math.MaxInt)
	assert.ErrorIs(t, err, shared.ErrStarOverflow)
	assert.True(t, shared.IsInvariantViolation(err))
	assert.Equal(t, 5, total)
	assert.Equal(t, 5, s.Snapshot().Stars)

	after, err := m.Get(ctx, s.Key())
	require.NoError(t, err)
	assert.Equal(t, stored, after)

	total, err = s.AddStars(ctx, math.MaxInt-5)
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt, total)
}

func TestAddStars_FailedWriteKeepsMemory(t *testing.T) {
	ctx := context.Background()
	s, m := newStore(t)
	s.Load(ctx)
	m.Fail(errors.New("quota exceeded"))

	total, err := s.AddStars(ctx, 5)
	assert.True(t, shared.IsPersistence(err))
	assert.Equal(t, 5, total)
	assert.Equal(t, 5, s.Snapshot().Stars)

	assert.True(t, s.Dirty())

	m.Fail(nil)
	require.NoError(t, s.Flush(ctx))
	assert.False(t, s.Dirty())
	reloaded, _ := NewStore(m, Options{}).Load(ctx)
	assert.Equal(t, 5, reloaded.Stars)
}

func TestFlush_SkipsCleanRecord(t *testing.T) {
	ctx := context.Background()
	s, m := newStore(t)
	s.Load(ctx)

	require.NoError(t, s.Flush(ctx))
	assert.Empty(t, m.Keys())
	assert.False(t, s.Dirty())
}

func TestStampLogin_UnreadableRecordIsNotOverwritten(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	stored := []byte(`{"stars":40,"level":3}`)
	require.NoError(t, m.Set(ctx, learner.RecordKey(DefaultNamespace), stored))

	left := 1
	s := NewStore(failFirstGet{Medium: m, left: &left}, Options{Clock: timeutil.NewManualClock(epoch)})

	_, report := s.Load(ctx)
	require.Error(t, report.Err)
	require.NoError(t, s.StampLogin(ctx))
	require.NotNil(t, s.Snapshot().LastLogin)
	assert.False(t, s.Dirty())
	require.NoError(t, s.Flush(ctx))

	got, err := m.Get(ctx, s.Key())
	require.NoError(t, err)
	assert.Equal(t, stored, got)
}

// failFirstGet fails the next *left reads, then behaves like the wrapped
// medium.
type failFirstGet struct {
	*memory.Medium
	left *int
}

func (f failFirstGet) Get(ctx context.Context, key string) ([]byte, error) {
	if *f.left > 0 {
		*f.left--
		return nil, errors.New("read timeout")
	}
	return f.Medium.Get(ctx, key)
}

func TestSetActivityProgress_Clamps(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	s.Load(ctx)

	p, err := s.SetActivityProgress(ctx, learner.ActivityNumbers, 25, 20)
	require.NoError(t, err)
	assert.Equal(t, 20, p.Completed)
	assert.Equal(t, learner.ActivityProgress{Completed: 20, Total: 20}, s.Snapshot().Progress[learner.ActivityNumbers])

	p, err = s.SetActivityProgress(ctx, learner.ActivityShapes, -4, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Completed)
}

func TestSetActivityProgress_RejectsNonPositiveTotal(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	s.Load(ctx)

	_, err := s.SetActivityProgress(ctx, learner.ActivityNumbers, 1, 0)
	assert.ErrorIs(t, err, shared.ErrInvariantViolation)
	assert.Equal(t, learner.ActivityProgress{Completed: 0, Total: 20}, s.Snapshot().Progress[learner.ActivityNumbers])
}

func TestSetActivityProgress_KeepsExtraFields(t *testing.T) {
	ctx := context.Background()
	s, m := newStore(t)
	require.NoError(t, m.Set(ctx, s.Key(), []byte(`{"progress":{"numbers":{"completed":1,"total":20,"bestRun":4}}}`)))
	s.Load(ctx)

	_, err := s.SetActivityProgress(ctx, learner.ActivityNumbers, 3, 20)
	require.NoError(t, err)
	assert.JSONEq(t, `4`, string(s.Snapshot().Progress[learner.ActivityNumbers].Extra["bestRun"]))
}

func TestUpdateSettings(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	s.Load(ctx)

	off := false
	got, err := s.UpdateSettings(ctx, learner.SettingsPatch{AudioEnabled: &off})
	require.NoError(t, err)
	assert.False(t, got.AudioEnabled)
	assert.Equal(t, learner.DifficultyNormal, got.Difficulty, "untouched fields are kept")

	hard := learner.DifficultyHard
	got, err = s.UpdateSettings(ctx, learner.SettingsPatch{Difficulty: &hard})
	require.NoError(t, err)
	assert.False(t, got.AudioEnabled)
	assert.Equal(t, learner.DifficultyHard, got.Difficulty)

	bogus := learner.Difficulty("extreme")
	_, err = s.UpdateSettings(ctx, learner.SettingsPatch{Difficulty: &bogus})
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, learner.DifficultyHard, s.Snapshot().Settings.Difficulty)
}

func TestUpdate_RejectsLoweringStars(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	s.Load(ctx)
	_, err := s.AddStars(ctx, 10)
	require.NoError(t, err)

	_, err = s.Update(ctx, "Test", func(r learner.Record) (learner.Record, bool) {
		r.Stars = 3
		return r, true
	})
	assert.True(t, shared.IsInvariantViolation(err))
	assert.Equal(t, 10, s.Snapshot().Stars)

	got, err := s.Update(ctx, "Test", func(r learner.Record) (learner.Record, bool) {
		r.Level = 2
		return r, true
	})
	require.NoError(t, err)
	assert.Equal(t, 2, got.Level)
}

func TestSnapshot_IsACopy(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	s.Load(ctx)

	snap := s.Snapshot()
	snap.Stars = 99
	snap.Progress[learner.ActivityNumbers] = learner.ActivityProgress{Completed: 1, Total: 1}
	snap.Achievements.Add("first_star")

	fresh := s.Snapshot()
	assert.Equal(t, 0, fresh.Stars)
	assert.Equal(t, 20, fresh.Progress[learner.ActivityNumbers].Total)
	assert.False(t, fresh.Achievements.Has("first_star"))
}

func TestStampLoginAndPlayTime(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	s.Load(ctx)

	require.NoError(t, s.StampLogin(ctx))
	require.NotNil(t, s.Snapshot().LastLogin)
	assert.Equal(t, epoch, *s.Snapshot().LastLogin)

	total, err := s.AddPlayTime(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, 90, total)
	_, err = s.AddPlayTime(ctx, -1)
	assert.True(t, shared.IsInvariantViolation(err))
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	s, m := newStore(t)
	s.Load(ctx)
	_, err := s.AddStars(ctx, 30)
	require.NoError(t, err)
	require.NoError(t, m.Set(ctx, "mathApp_other", []byte("x")))
	require.NoError(t, m.Set(ctx, "unrelated", []byte("y")))

	require.NoError(t, s.ClearAll(ctx))
	assert.Equal(t, []string{"unrelated"}, m.Keys())
	assert.Equal(t, 0, s.Snapshot().Stars)

	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, []string{"unrelated"}, m.Keys(), "flush after a wipe must not recreate the record")
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	s, m := newStore(t)
	s.Load(ctx)
	_, err := s.AddStars(ctx, 4)
	require.NoError(t, err)

	_, err = s.Import(ctx, []byte("not json"))
	assert.ErrorIs(t, err, shared.ErrMalformedRecord)
	assert.Equal(t, 4, s.Snapshot().Stars, "rejected import keeps the current record")

	report, err := s.Import(ctx, []byte(`{"stars":40,"level":3}`))
	require.NoError(t, err)
	assert.True(t, report.Migrated)
	assert.Equal(t, 40, s.Snapshot().Stars)

	reloaded, _ := NewStore(m, Options{}).Load(ctx)
	assert.Equal(t, 40, reloaded.Stars)
	assert.Equal(t, 3, reloaded.Level)
}

func TestProbe(t *testing.T) {
	ctx := context.Background()
	s, m := newStore(t)

	require.NoError(t, s.Probe(ctx))
	assert.Empty(t, m.Keys(), "probe key must be removed")

	m.Fail(errors.New("private mode"))
	assert.True(t, shared.IsPersistence(s.Probe(ctx)))
}

func TestNamespace(t *testing.T) {
	m := memory.New()
	s := NewStore(m, Options{Namespace: "kid2_"})
	assert.Equal(t, "kid2_userData", s.Key())
	assert.Equal(t, "mathApp_userData", NewStore(m, Options{}).Key())
}
