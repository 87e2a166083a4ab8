// Package activity models the learning activities a learner can select:
// the closed set of activity kinds, the per-kind factories the registry uses
// to build them, and the play sessions they accumulate.
package activity

import (
	"fmt"

	"github.com/littlemath/learnerhub/internal/domain/learner"
	"github.com/littlemath/learnerhub/internal/domain/shared"
)

// Kind is the closed enumeration of registered activity types.
type Kind int

const (
	KindUnknown Kind = iota
	KindNumbers
	KindArithmetic
	KindShapes
	KindComparison
	KindGames
	KindAchievements

	kindCount
)

type kindInfo struct {
	id    learner.ActivityID
	title string
}

var kinds = [kindCount]kindInfo{
	KindUnknown:      {"", "Unknown"},
	KindNumbers:      {learner.ActivityNumbers, "Numbers"},
	KindArithmetic:   {learner.ActivityArithmetic, "Addition & Subtraction"},
	KindShapes:       {learner.ActivityShapes, "Shapes"},
	KindComparison:   {learner.ActivityComparison, "Bigger or Smaller"},
	KindGames:        {learner.ActivityGames, "Math Games"},
	KindAchievements: {learner.ActivityAchievements, "My Achievements"},
}

// All returns every selectable kind in menu order.
func All() []Kind {
	out := make([]Kind, 0, kindCount-1)
	for k := KindNumbers; k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

// IsValid reports whether k is a registered kind.
func (k Kind) IsValid() bool {
	return k > KindUnknown && k < kindCount
}

// ID returns the progress-map key of k.
func (k Kind) ID() learner.ActivityID {
	if !k.IsValid() {
		return ""
	}
	return kinds[k].id
}

// Title is the display name shown in the activity menu.
func (k Kind) Title() string {
	if !k.IsValid() {
		return kinds[KindUnknown].title
	}
	return kinds[k].title
}

func (k Kind) String() string {
	if !k.IsValid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return string(kinds[k].id)
}

// ParseKind resolves an activity id such as "numbers". Ids match exactly;
// callers taking user input normalise it first.
func ParseKind(s string) (Kind, error) {
	id := learner.ActivityID(s)
	for k := KindNumbers; k < kindCount; k++ {
		if kinds[k].id == id {
			return k, nil
		}
	}
	return KindUnknown, UnknownActivityError(s)
}

// KindOf maps a progress-map key back to its kind.
func KindOf(id learner.ActivityID) (Kind, bool) {
	k, err := ParseKind(string(id))
	return k, err == nil
}

// UnknownActivityError reports a selection of an unregistered activity type.
func UnknownActivityError(id string) error {
	return shared.NewDomainError("activity", "Select", shared.ErrUnknownActivity,
		fmt.Sprintf("unknown activity %q", id))
}
