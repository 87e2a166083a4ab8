package achievement

import (
	"fmt"
	"math"

	"github.com/littlemath/learnerhub/internal/domain/learner"
	"github.com/littlemath/learnerhub/internal/domain/shared"
)

// Outcome is the result of one engine pass.
type Outcome struct {
	Record learner.Record

	// NewlyUnlocked is in rule declaration order.
	NewlyUnlocked []learner.AchievementID

	// RewardStars is the sum of rewards added to Record.Stars.
	RewardStars int
}

// Engine evaluates an immutable rule table.
type Engine struct {
	rules []Rule
	index map[learner.AchievementID]int
}

// NewEngine validates rules and builds an engine over a private copy of them.
func NewEngine(rules []Rule) (*Engine, error) {
	e := &Engine{
		rules: make([]Rule, len(rules)),
		index: make(map[learner.AchievementID]int, len(rules)),
	}
	copy(e.rules, rules)

	for i, rule := range e.rules {
		switch {
		case rule.ID == "":
			return nil, shared.NewDomainError("achievement", "NewEngine", shared.ErrInvalidInput, fmt.Sprintf("rule %d has no id", i))
		case rule.Predicate == nil:
			return nil, shared.NewDomainError("achievement", "NewEngine", shared.ErrInvalidInput, fmt.Sprintf("rule %q has no predicate", rule.ID))
		case rule.Reward < 0:
			return nil, shared.NewDomainError("achievement", "NewEngine", shared.ErrNegativeValue, fmt.Sprintf("rule %q has a negative reward", rule.ID))
		}
		if _, dup := e.index[rule.ID]; dup {
			return nil, shared.NewDomainError("achievement", "NewEngine", shared.ErrInvalidInput, fmt.Sprintf("duplicate rule %q", rule.ID))
		}
		e.index[rule.ID] = i
	}
	return e, nil
}

// MustNewEngine is NewEngine for rule tables known at compile time.
func MustNewEngine(rules []Rule) *Engine {
	e, err := NewEngine(rules)
	if err != nil {
		panic(err)
	}
	return e
}

// Rules returns the rule table in declaration order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Rule looks up a rule by id.
func (e *Engine) Rule(id learner.AchievementID) (Rule, bool) {
	i, ok := e.index[id]
	if !ok {
		return Rule{}, false
	}
	return e.rules[i], true
}

// Evaluate unlocks every rule whose predicate holds and that is not unlocked
// yet, adding its reward to the stars. All predicates see the record as it
// was before the pass, so one unlock cannot change another rule's outcome
// within the same pass. The input record is not modified.
func (e *Engine) Evaluate(r learner.Record) Outcome {
	before := r.Clone()
	out := Outcome{Record: r.Clone()}

	for _, rule := range e.rules {
		if out.Record.Achievements.Has(rule.ID) {
			continue
		}
		if !rule.Predicate(before) {
			continue
		}
		out.Record.Achievements.Add(rule.ID)
		out.Record.Stars = addCapped(out.Record.Stars, rule.Reward)
		out.RewardStars += rule.Reward
		out.NewlyUnlocked = append(out.NewlyUnlocked, rule.ID)
	}
	return out
}

// Unlock grants id regardless of its predicate. Granting an already unlocked
// badge is a no-op that pays nothing.
func (e *Engine) Unlock(r learner.Record, id learner.AchievementID) (Outcome, error) {
	rule, ok := e.Rule(id)
	if !ok {
		return Outcome{Record: r}, shared.NewDomainError("achievement", "Unlock", shared.ErrNotFound, fmt.Sprintf("unknown achievement %q", id))
	}

	out := Outcome{Record: r.Clone()}
	if !out.Record.Achievements.Add(rule.ID) {
		return out, nil
	}
	out.Record.Stars = addCapped(out.Record.Stars, rule.Reward)
	out.RewardStars = rule.Reward
	out.NewlyUnlocked = []learner.AchievementID{rule.ID}
	return out, nil
}

// Unlocked returns the rules already present in r, in declaration order.
func (e *Engine) Unlocked(r learner.Record) []Rule {
	var out []Rule
	for _, rule := range e.rules {
		if r.Achievements.Has(rule.ID) {
			out = append(out, rule)
		}
	}
	return out
}

// addCapped adds a non-negative reward to stars, stopping at math.MaxInt.
func addCapped(stars, reward int) int {
	if reward > math.MaxInt-stars {
		return math.MaxInt
	}
	return stars + reward
}
