// Package leveling maps accumulated stars to a learner level.
// Everything here is pure: callers persist the result and raise notifications.
package leveling

import (
	"math"

	"github.com/littlemath/learnerhub/internal/domain/learner"
)

// StarsPerLevelStep is the per-level threshold multiplier.
const StarsPerLevelStep = 10

// MaxLevel is the highest level whose cumulative threshold fits in an int.
// A learner holding math.MaxInt stars sits at this level.
var MaxLevel = highestRepresentableLevel()

// StarsNeededForLevel returns the stars it takes to climb from level to
// level+1. The result saturates at math.MaxInt.
func StarsNeededForLevel(level int) int {
	if level > math.MaxInt/StarsPerLevelStep {
		return math.MaxInt
	}
	return level * StarsPerLevelStep
}

// CumulativeStarsForLevel returns the lifetime star count at which a learner
// leaves level: 10 + 20 + ... + 10*level. Levels past MaxLevel saturate at
// math.MaxInt.
func CumulativeStarsForLevel(level int) int {
	if level <= 0 {
		return 0
	}
	if level > MaxLevel {
		return math.MaxInt
	}
	return level * (level + 1) / 2 * StarsPerLevelStep
}

// LevelForStars returns the level a fresh learner reaches with stars: the
// lowest level whose cumulative threshold is still above stars, capped at
// MaxLevel.
func LevelForStars(stars int) int {
	lo, hi := 1, MaxLevel
	for lo < hi {
		mid := lo + (hi-lo)/2
		if stars >= CumulativeStarsForLevel(mid) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func highestRepresentableLevel() int {
	fits := func(level int) bool {
		if level > math.MaxInt/(level+1) {
			return false
		}
		return level*(level+1)/2 <= math.MaxInt/StarsPerLevelStep
	}

	lo, hi := 1, math.MaxInt/2
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		if fits(mid) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}

// Outcome is the result of one evaluation.
type Outcome struct {
	Record    learner.Record
	LeveledUp bool
	OldLevel  int
	NewLevel  int
}

// Evaluate raises the level while the stars cover the current level's
// cumulative threshold, so one large reward can cross several levels at once.
// Levels never go down. The input record is not modified.
func Evaluate(r learner.Record) Outcome {
	out := Outcome{Record: r, OldLevel: r.Level}
	if out.Record.Level < 1 {
		out.Record.Level = 1
	}

	if target := LevelForStars(out.Record.Stars); target > out.Record.Level {
		out.Record.Level = target
		out.LeveledUp = true
	}

	out.NewLevel = out.Record.Level
	return out
}

// StarsToNextLevel returns how many more stars the record needs before its
// next level-up.
func StarsToNextLevel(r learner.Record) int {
	need := CumulativeStarsForLevel(max(r.Level, 1)) - r.Stars
	return max(need, 0)
}
