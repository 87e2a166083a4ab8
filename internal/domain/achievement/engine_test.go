package achievement

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/littlemath/learnerhub/internal/domain/learner"
	"github.com/littlemath/learnerhub/internal/domain/shared"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultRules())
	require.NoError(t, err)
	return e
}

func TestEngine_DefaultRuleOrder(t *testing.T) {
	e := newEngine(t)

	var ids []learner.AchievementID
	for _, r := range e.Rules() {
		ids = append(ids, r.ID)
		assert.GreaterOrEqual(t, r.Reward, 0)
	}
	assert.Equal(t, []learner.AchievementID{
		FirstStar, NumberMaster, MathWizard, ShapeExpert, GameChampion, StarCollector,
	}, ids)
}

func TestEngine_FreshRecordUnlocksNothing(t *testing.T) {
	out := newEngine(t).Evaluate(learner.Default())

	assert.Empty(t, out.NewlyUnlocked)
	assert.Zero(t, out.RewardStars)
	assert.Equal(t, 0, out.Record.Achievements.Len())
}

func TestEngine_MathWizardUnlocksOnce(t *testing.T) {
	e := newEngine(t)
	rec := learner.Default()
	rec.Stars = 15
	rec.Achievements = learner.NewAchievementSet(FirstStar)
	rec.Progress[learner.ActivityArithmetic] = learner.ActivityProgress{Completed: 50, Total: 50}

	first := e.Evaluate(rec)
	assert.Equal(t, []learner.AchievementID{MathWizard}, first.NewlyUnlocked)
	assert.Equal(t, 15+ProgressReward, first.Record.Stars)
	assert.True(t, first.Record.Achievements.Has(MathWizard))

	second := e.Evaluate(first.Record)
	assert.Empty(t, second.NewlyUnlocked)
	assert.Equal(t, first.Record.Stars, second.Record.Stars)
	assert.Equal(t, first.Record.Achievements.Len(), second.Record.Achievements.Len())
}

func TestEngine_PredicatesSeeRecordBeforePass(t *testing.T) {
	rules := []Rule{
		{ID: "big_reward", Reward: 50, Predicate: func(r learner.Record) bool { return r.Stars >= 1 }},
		{ID: "rich", Reward: 0, Predicate: func(r learner.Record) bool { return r.Stars >= 50 }},
	}
	e, err := NewEngine(rules)
	require.NoError(t, err)

	rec := learner.Default()
	rec.Stars = 1

	out := e.Evaluate(rec)
	assert.Equal(t, []learner.AchievementID{"big_reward"}, out.NewlyUnlocked)
	assert.Equal(t, 51, out.Record.Stars)

	// The reward only counts on the next pass.
	next := e.Evaluate(out.Record)
	assert.Equal(t, []learner.AchievementID{"rich"}, next.NewlyUnlocked)
}

func TestEngine_EvaluateDoesNotModifyInput(t *testing.T) {
	rec := learner.Default()
	rec.Stars = 3

	_ = newEngine(t).Evaluate(rec)

	assert.Equal(t, 3, rec.Stars)
	assert.False(t, rec.Achievements.Has(FirstStar))
}

func TestEngine_CompletedActivities(t *testing.T) {
	tests := []struct {
		name     string
		activity learner.ActivityID
		want     learner.AchievementID
	}{
		{"numbers", learner.ActivityNumbers, NumberMaster},
		{"shapes", learner.ActivityShapes, ShapeExpert},
		{"games", learner.ActivityGames, GameChampion},
	}

	e := newEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := learner.Default()
			p := rec.Progress[tt.activity]
			p.Completed = p.Total
			rec.Progress[tt.activity] = p

			out := e.Evaluate(rec)
			assert.Equal(t, []learner.AchievementID{tt.want}, out.NewlyUnlocked)
			assert.Equal(t, ProgressReward, out.RewardStars)
		})
	}
}

func TestEngine_Unlock(t *testing.T) {
	e := newEngine(t)
	rec := learner.Default()

	out, err := e.Unlock(rec, ShapeExpert)
	require.NoError(t, err)
	assert.Equal(t, []learner.AchievementID{ShapeExpert}, out.NewlyUnlocked)
	assert.Equal(t, ProgressReward, out.Record.Stars)

	again, err := e.Unlock(out.Record, ShapeExpert)
	require.NoError(t, err)
	assert.Empty(t, again.NewlyUnlocked)
	assert.Equal(t, out.Record.Stars, again.Record.Stars)
	assert.Equal(t, 1, again.Record.Achievements.Len())

	_, err = e.Unlock(rec, "no_such_badge")
	assert.True(t, shared.IsNotFound(err))
}

func TestEngine_RewardStopsAtMaxInt(t *testing.T) {
	e := newEngine(t)
	rec := learner.Default()
	rec.Stars = math.MaxInt - 2

	out, err := e.Unlock(rec, ShapeExpert)
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt, out.Record.Stars)
	assert.Equal(t, ProgressReward, out.RewardStars)
}

func TestNewEngine_RejectsBadRules(t *testing.T) {
	always := func(learner.Record) bool { return true }

	tests := []struct {
		name  string
		rules []Rule
	}{
		{"missing id", []Rule{{Predicate: always}}},
		{"missing predicate", []Rule{{ID: "x"}}},
		{"negative reward", []Rule{{ID: "x", Reward: -1, Predicate: always}}},
		{"duplicate", []Rule{{ID: "x", Predicate: always}, {ID: "x", Predicate: always}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.rules)
			assert.True(t, shared.IsValidation(err), "got %v", err)
		})
	}
}
