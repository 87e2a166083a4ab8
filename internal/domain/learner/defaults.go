package learner

// CurrentSchemaVersion is the schema version written by this build.
const CurrentSchemaVersion = 2

// defaultTotals is the sub-step count of every built-in activity.
var defaultTotals = []struct {
	id    ActivityID
	total int
}{
	{ActivityNumbers, 20},
	{ActivityArithmetic, 20},
	{ActivityShapes, 10},
	{ActivityComparison, 15},
	{ActivityGames, 12},
}

// DefaultTotal returns the default sub-step count for id.
func DefaultTotal(id ActivityID) (int, bool) {
	for _, d := range defaultTotals {
		if d.id == id {
			return d.total, true
		}
	}
	return 0, false
}

// DefaultSettings returns the settings of a fresh learner.
func DefaultSettings() Settings {
	return Settings{
		AudioEnabled: true,
		Difficulty:   DifficultyNormal,
	}
}

// Default returns a fresh record: zero stars, level 1, nothing unlocked,
// every built-in activity at 0 of its default total.
func Default() Record {
	progress := make(map[ActivityID]ActivityProgress, len(defaultTotals))
	for _, d := range defaultTotals {
		progress[d.id] = ActivityProgress{Completed: 0, Total: d.total}
	}

	return Record{
		SchemaVersion: CurrentSchemaVersion,
		Stars:         0,
		Level:         1,
		Progress:      progress,
		Settings:      DefaultSettings(),
		LastLogin:     nil,
		TotalPlayTime: 0,
	}
}
