// Package achievement holds the static badge rule table and the engine that
// unlocks each badge at most once.
package achievement

import "github.com/littlemath/learnerhub/internal/domain/learner"

// Badge ids.
const (
	FirstStar     learner.AchievementID = "first_star"
	NumberMaster  learner.AchievementID = "number_master"
	MathWizard    learner.AchievementID = "math_wizard"
	ShapeExpert   learner.AchievementID = "shape_expert"
	GameChampion  learner.AchievementID = "game_champion"
	StarCollector learner.AchievementID = "star_collector"
)

// MathWizardProblems is the number of solved arithmetic problems behind math_wizard.
const MathWizardProblems = 50

// ProgressReward is paid for badges earned through activity progress.
// Badges earned by counting stars pay nothing so a reward never feeds itself.
const ProgressReward = 5

// Rule is a static predicate-plus-reward pair.
type Rule struct {
	ID          learner.AchievementID
	Name        string
	Description string
	Emoji       string
	Reward      int

	// Predicate reads the record; it must not modify it.
	Predicate func(r learner.Record) bool
}

// DefaultRules returns the built-in rule table in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID: FirstStar, Name: "First Star", Description: "Earn your first star", Emoji: "⭐",
			Reward:    0,
			Predicate: func(r learner.Record) bool { return r.Stars >= 1 },
		},
		{
			ID: NumberMaster, Name: "Number Master", Description: "Finish every number lesson", Emoji: "🔢",
			Reward:    ProgressReward,
			Predicate: activityDone(learner.ActivityNumbers),
		},
		{
			ID: MathWizard, Name: "Math Wizard", Description: "Solve 50 arithmetic problems", Emoji: "🧙",
			Reward: ProgressReward,
			Predicate: func(r learner.Record) bool {
				return r.ProgressOf(learner.ActivityArithmetic).Completed >= MathWizardProblems
			},
		},
		{
			ID: ShapeExpert, Name: "Shape Expert", Description: "Recognise every basic shape", Emoji: "🔺",
			Reward:    ProgressReward,
			Predicate: activityDone(learner.ActivityShapes),
		},
		{
			ID: GameChampion, Name: "Game Champion", Description: "Finish every game", Emoji: "🏆",
			Reward:    ProgressReward,
			Predicate: activityDone(learner.ActivityGames),
		},
		{
			ID: StarCollector, Name: "Star Collector", Description: "Collect 100 stars", Emoji: "🌟",
			Reward:    0,
			Predicate: func(r learner.Record) bool { return r.Stars >= 100 },
		},
	}
}

func activityDone(id learner.ActivityID) func(learner.Record) bool {
	return func(r learner.Record) bool {
		return r.ProgressOf(id).Done()
	}
}
