package learner

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/littlemath/learnerhub/internal/domain/shared"
)

var recordOpts = cmp.Options{
	cmp.Comparer(func(a, b AchievementSet) bool { return a.Equal(b) }),
	cmpopts.EquateEmpty(),
}

func TestDecode_DefaultRoundTrip(t *testing.T) {
	data, err := Encode(Default())
	require.NoError(t, err)

	rec, report, err := Decode(data)
	require.NoError(t, err)

	assert.True(t, report.Clean(), "repaired: %v", report.Repaired)
	assert.Equal(t, CurrentSchemaVersion, report.FromVersion)
	assert.False(t, report.Migrated)
	if diff := cmp.Diff(Default(), rec, recordOpts); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_FullRecordRoundTrip(t *testing.T) {
	login := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	want := Default()
	want.Stars = 42
	want.Level = 3
	want.Achievements = NewAchievementSet("first_star", "math_wizard")
	want.Progress[ActivityArithmetic] = ActivityProgress{Completed: 7, Total: 20}
	want.Settings = Settings{AudioEnabled: false, Difficulty: DifficultyHard}
	want.LastLogin = &login
	want.TotalPlayTime = 3600

	data, err := Encode(want)
	require.NoError(t, err)

	got, report, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, report.Clean())
	if diff := cmp.Diff(want, got, recordOpts); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_OlderSchemaGetsNewFieldDefaults(t *testing.T) {
	// Written before schemaVersion, difficulty, games and totalPlayTime existed.
	stored := `{
		"stars": 17,
		"level": 2,
		"achievements": ["first_star"],
		"progress": {
			"numbers": {"completed": 4, "total": 20},
			"arithmetic": {"completed": 9}
		},
		"settings": {"audioEnabled": false},
		"lastLogin": null
	}`

	rec, report, err := Decode([]byte(stored))
	require.NoError(t, err)

	assert.Equal(t, 1, report.FromVersion)
	assert.True(t, report.Migrated)
	assert.True(t, report.Clean(), "repaired: %v", report.Repaired)

	// Present fields are preserved.
	assert.Equal(t, 17, rec.Stars)
	assert.Equal(t, 2, rec.Level)
	assert.True(t, rec.Achievements.Has("first_star"))
	assert.Equal(t, ActivityProgress{Completed: 4, Total: 20}, rec.Progress[ActivityNumbers])
	assert.False(t, rec.Settings.AudioEnabled)

	// Missing fields acquire defaults, key by key inside nested objects.
	assert.Equal(t, ActivityProgress{Completed: 9, Total: 20}, rec.Progress[ActivityArithmetic])
	assert.Equal(t, ActivityProgress{Completed: 0, Total: 12}, rec.Progress[ActivityGames])
	assert.Equal(t, DifficultyNormal, rec.Settings.Difficulty)
	assert.Equal(t, 0, rec.TotalPlayTime)
	assert.Nil(t, rec.LastLogin)
	assert.Equal(t, CurrentSchemaVersion, rec.SchemaVersion)
}

func TestDecode_PreservesUnknownKeys(t *testing.T) {
	stored := `{"schemaVersion":2,"stars":3,"theme":"ocean",` +
		`"progress":{"numbers":{"completed":1,"total":20,"bestRun":5},"puzzles":{"completed":2,"total":8}},` +
		`"settings":{"audioEnabled":true,"difficulty":"easy","fontScale":1.5}}`

	rec, report, err := Decode([]byte(stored))
	require.NoError(t, err)
	assert.True(t, report.Clean())

	assert.JSONEq(t, `"ocean"`, string(rec.Extra["theme"]))
	assert.JSONEq(t, `5`, string(rec.Progress[ActivityNumbers].Extra["bestRun"]))
	assert.JSONEq(t, `1.5`, string(rec.Settings.Extra["fontScale"]))
	assert.Equal(t, ActivityProgress{Completed: 2, Total: 8}, rec.Progress["puzzles"])

	data, err := Encode(rec)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "ocean", doc["theme"])
	settings := doc["settings"].(map[string]any)
	assert.Equal(t, 1.5, settings["fontScale"])
	numbers := doc["progress"].(map[string]any)["numbers"].(map[string]any)
	assert.EqualValues(t, 5, numbers["bestRun"])
}

func TestDecode_IsIdempotent(t *testing.T) {
	stored := `{"stars":"lots","level":0,"achievements":["a","a",7],` +
		`"progress":{"shapes":{"completed":30},"mystery":{"completed":4}},` +
		`"settings":{"difficulty":"extreme"},"extra":{"x":[1,2]}}`

	first, _, err := Decode([]byte(stored))
	require.NoError(t, err)

	data, err := Encode(first)
	require.NoError(t, err)
	second, report, err := Decode(data)
	require.NoError(t, err)

	assert.True(t, report.Clean(), "second pass repaired: %v", report.Repaired)
	if diff := cmp.Diff(first, second, recordOpts); diff != "" {
		t.Errorf("merge not idempotent (-first +second):\n%s", diff)
	}

	again, err := Encode(second)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}

func TestDecode_RepairsMalformedFields(t *testing.T) {
	stored := `{"stars":"abc","level":0,"achievements":["first_star",3,"first_star"],` +
		`"settings":{"difficulty":"extreme","audioEnabled":"yes"},"totalPlayTime":-5,"lastLogin":"yesterday"}`

	rec, report, err := Decode([]byte(stored))
	require.NoError(t, err)

	assert.Equal(t, 0, rec.Stars)
	assert.Equal(t, 1, rec.Level)
	assert.Equal(t, []AchievementID{"first_star"}, rec.Achievements.IDs())
	assert.Equal(t, DefaultSettings().Difficulty, rec.Settings.Difficulty)
	assert.True(t, rec.Settings.AudioEnabled)
	assert.Equal(t, 0, rec.TotalPlayTime)
	assert.Nil(t, rec.LastLogin)

	assert.ElementsMatch(t, []string{
		"stars", "level", "achievements[1]",
		"settings.difficulty", "settings.audioEnabled",
		"totalPlayTime", "lastLogin",
	}, report.Repaired)
}

func TestDecode_ClampsStoredProgress(t *testing.T) {
	rec, report, err := Decode([]byte(`{"progress":{"numbers":{"completed":25,"total":20}}}`))
	require.NoError(t, err)

	assert.Equal(t, ActivityProgress{Completed: 20, Total: 20}, rec.Progress[ActivityNumbers])
	assert.Contains(t, report.Repaired, "progress.numbers.completed")
}

func TestDecode_UnknownActivityWithoutTotal(t *testing.T) {
	rec, _, err := Decode([]byte(`{"progress":{"mystery":{"completed":4}}}`))
	require.NoError(t, err)
	assert.Equal(t, ActivityProgress{Completed: 4, Total: 4}, rec.Progress["mystery"])
}

func TestDecode_CorruptDocument(t *testing.T) {
	for _, input := range []string{"not json", "null", "[1,2,3]", `"text"`, ""} {
		t.Run(input, func(t *testing.T) {
			rec, _, err := Decode([]byte(input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, shared.ErrMalformedRecord))
			if diff := cmp.Diff(Default(), rec, recordOpts); diff != "" {
				t.Errorf("corrupt input should yield defaults (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMigrate_LegacyCounterNames(t *testing.T) {
	rec, report, err := Decode([]byte(`{"totalStars":31,"userLevel":3}`))
	require.NoError(t, err)

	assert.True(t, report.Migrated)
	assert.Equal(t, 31, rec.Stars)
	assert.Equal(t, 3, rec.Level)
	assert.NotContains(t, rec.Extra, "totalStars")
}

func TestMigrate_CurrentNameWins(t *testing.T) {
	rec, _, err := Decode([]byte(`{"stars":5,"totalStars":31}`))
	require.NoError(t, err)

	assert.Equal(t, 5, rec.Stars)
	assert.JSONEq(t, `31`, string(rec.Extra["totalStars"]))
}

func TestMigrate_NewerDocumentIsKept(t *testing.T) {
	rec, report, err := Decode([]byte(`{"schemaVersion":9,"stars":8,"streak":{"days":3}}`))
	require.NoError(t, err)

	assert.Equal(t, 9, report.FromVersion)
	assert.False(t, report.Migrated)
	assert.Equal(t, 8, rec.Stars)
	assert.Contains(t, rec.Extra, "streak")
}
