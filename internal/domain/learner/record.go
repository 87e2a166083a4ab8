// Package learner contains the persisted learner aggregate: stars, level,
// unlocked achievements, per-activity progress and settings, together with
// the schema merge that reconciles stored documents with current defaults.
package learner

import (
	"encoding/json"
	"slices"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// ActivityID identifies an activity type inside the progress map.
// Stored documents may carry ids this build does not know; they are kept.
type ActivityID string

// Known activity ids.
const (
	ActivityNumbers      ActivityID = "numbers"
	ActivityArithmetic   ActivityID = "arithmetic"
	ActivityShapes       ActivityID = "shapes"
	ActivityComparison   ActivityID = "comparison"
	ActivityGames        ActivityID = "games"
	ActivityAchievements ActivityID = "achievements"
)

// AchievementID identifies an unlocked badge.
type AchievementID string

// Difficulty is the learner-selected difficulty.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyNormal Difficulty = "normal"
	DifficultyHard   Difficulty = "hard"
)

// IsValid reports whether d is one of the known difficulties.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyNormal, DifficultyHard:
		return true
	default:
		return false
	}
}

// ActivityProgress summarises one activity type's advancement.
type ActivityProgress struct {
	Completed int
	Total     int

	// Extra holds keys this build does not model, written back verbatim.
	Extra map[string]json.RawMessage
}

// Clamp returns p with Completed forced into [0, Total].
func (p ActivityProgress) Clamp() ActivityProgress {
	if p.Completed < 0 {
		p.Completed = 0
	}
	if p.Completed > p.Total {
		p.Completed = p.Total
	}
	return p
}

// Done reports whether every sub-step is complete.
func (p ActivityProgress) Done() bool {
	return p.Total > 0 && p.Completed >= p.Total
}

// Percent returns completion in whole percent, 0 when Total is not positive.
func (p ActivityProgress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	return p.Completed * 100 / p.Total
}

// Settings holds learner preferences.
type Settings struct {
	AudioEnabled bool
	Difficulty   Difficulty

	Extra map[string]json.RawMessage
}

// SettingsPatch is a partial settings update; nil fields are left untouched.
type SettingsPatch struct {
	AudioEnabled *bool       `json:"audioEnabled,omitempty"`
	Difficulty   *Difficulty `json:"difficulty,omitempty" validate:"omitempty,oneof=easy normal hard"`
}

// IsEmpty reports whether the patch changes nothing.
func (p SettingsPatch) IsEmpty() bool {
	return p.AudioEnabled == nil && p.Difficulty == nil
}

// Apply shallow-merges the patch into s.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.AudioEnabled != nil {
		s.AudioEnabled = *p.AudioEnabled
	}
	if p.Difficulty != nil {
		s.Difficulty = *p.Difficulty
	}
	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT SET
// ══════════════════════════════════════════════════════════════════════════════

// AchievementSet is a duplicate-free collection of unlocked badges.
// Iteration order is unlock order; equality ignores order.
type AchievementSet struct {
	ids []AchievementID
}

// NewAchievementSet builds a set, dropping duplicates and empty ids.
func NewAchievementSet(ids ...AchievementID) AchievementSet {
	var s AchievementSet
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Has reports whether id is unlocked.
func (s AchievementSet) Has(id AchievementID) bool {
	return slices.Contains(s.ids, id)
}

// Add inserts id and reports whether it was new.
func (s *AchievementSet) Add(id AchievementID) bool {
	if id == "" || s.Has(id) {
		return false
	}
	s.ids = append(s.ids, id)
	return true
}

// Len returns the number of unlocked badges.
func (s AchievementSet) Len() int {
	return len(s.ids)
}

// IDs returns a copy of the ids in unlock order.
func (s AchievementSet) IDs() []AchievementID {
	return slices.Clone(s.ids)
}

// Equal compares two sets ignoring order.
func (s AchievementSet) Equal(other AchievementSet) bool {
	if len(s.ids) != len(other.ids) {
		return false
	}
	for _, id := range s.ids {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN AGGREGATE: RECORD
// ══════════════════════════════════════════════════════════════════════════════

// Record is the full persisted state of one learner.
type Record struct {
	// SchemaVersion of the document this record will be written as.
	SchemaVersion int

	// Stars is the lifetime reward count; it never decreases.
	Stars int

	// Level starts at 1.
	Level int

	Achievements AchievementSet

	// Progress has one entry per known activity type.
	Progress map[ActivityID]ActivityProgress

	Settings Settings

	// LastLogin is nil until the first bootstrap stamps it.
	LastLogin *time.Time

	// TotalPlayTime is in seconds.
	TotalPlayTime int

	// Extra holds top-level keys this build does not model.
	Extra map[string]json.RawMessage
}

// Clone returns a deep copy so callers can never mutate store-owned state.
func (r Record) Clone() Record {
	out := r
	out.Achievements = NewAchievementSet(r.Achievements.ids...)

	out.Progress = make(map[ActivityID]ActivityProgress, len(r.Progress))
	for id, p := range r.Progress {
		p.Extra = cloneExtra(p.Extra)
		out.Progress[id] = p
	}

	out.Settings.Extra = cloneExtra(r.Settings.Extra)
	out.Extra = cloneExtra(r.Extra)

	if r.LastLogin != nil {
		t := *r.LastLogin
		out.LastLogin = &t
	}
	return out
}

// ProgressOf returns the progress for id, or a zero entry when absent.
func (r Record) ProgressOf(id ActivityID) ActivityProgress {
	if p, ok := r.Progress[id]; ok {
		return p
	}
	return ActivityProgress{}
}

func cloneExtra(in map[string]json.RawMessage) map[string]json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		out[k] = slices.Clone(v)
	}
	return out
}
