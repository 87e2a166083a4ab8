package learner

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/littlemath/learnerhub/internal/domain/shared"
)

// Field names of the persisted document.
const (
	keySchemaVersion = "schemaVersion"
	keyStars         = "stars"
	keyLevel         = "level"
	keyAchievements  = "achievements"
	keyProgress      = "progress"
	keySettings      = "settings"
	keyLastLogin     = "lastLogin"
	keyTotalPlayTime = "totalPlayTime"

	keyCompleted    = "completed"
	keyTotal        = "total"
	keyAudioEnabled = "audioEnabled"
	keyDifficulty   = "difficulty"
)

var topLevelKeys = map[string]bool{
	keySchemaVersion: true,
	keyStars:         true,
	keyLevel:         true,
	keyAchievements:  true,
	keyProgress:      true,
	keySettings:      true,
	keyLastLogin:     true,
	keyTotalPlayTime: true,
}

// DecodeReport describes what loading a stored document had to repair.
type DecodeReport struct {
	// FromVersion is the schema version the document was stored with.
	FromVersion int

	// Migrated is true when at least one migration step ran.
	Migrated bool

	// Repaired lists dotted field paths that were malformed or out of range
	// and fell back to their defaults.
	Repaired []string
}

// Clean reports whether the document needed no repair.
func (r DecodeReport) Clean() bool {
	return len(r.Repaired) == 0
}

func (r *DecodeReport) repair(path string) {
	r.Repaired = append(r.Repaired, path)
}

// Decode parses a stored document and deep-merges it with Default().
//
// Scalars and arrays present in the document override the default; the
// progress and settings objects are merged key by key, so fields introduced
// after the document was written still get their defaults. Keys this build
// does not know are kept in Extra bags. Decode fails only when data is not a
// JSON object at all; the caller then falls back to Default().
func Decode(data []byte) (Record, DecodeReport, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Default(), DecodeReport{}, shared.WrapError("learner", "Decode", shared.ErrMalformedRecord, "document is not a JSON object", err)
	}
	if raw == nil {
		return Default(), DecodeReport{}, shared.NewDomainError("learner", "Decode", shared.ErrMalformedRecord, "document is null")
	}

	var report DecodeReport
	raw = migrate(raw, &report)
	rec := mergeWithDefaults(raw, &report)
	return rec, report, nil
}

func mergeWithDefaults(raw map[string]json.RawMessage, report *DecodeReport) Record {
	rec := Default()

	for key, val := range raw {
		switch key {
		case keySchemaVersion:
			// consumed by migrate

		case keyStars:
			if n, ok := decodeInt(val); ok && n >= 0 {
				rec.Stars = n
			} else {
				report.repair(keyStars)
			}

		case keyLevel:
			if n, ok := decodeInt(val); ok && n >= 1 {
				rec.Level = n
			} else {
				report.repair(keyLevel)
			}

		case keyAchievements:
			rec.Achievements = decodeAchievements(val, report)

		case keyProgress:
			decodeProgressMap(val, rec.Progress, report)

		case keySettings:
			rec.Settings = decodeSettings(val, rec.Settings, report)

		case keyLastLogin:
			if isNull(val) {
				rec.LastLogin = nil
				continue
			}
			var s string
			if err := json.Unmarshal(val, &s); err != nil {
				report.repair(keyLastLogin)
				continue
			}
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				report.repair(keyLastLogin)
				continue
			}
			t = t.UTC()
			rec.LastLogin = &t

		case keyTotalPlayTime:
			if n, ok := decodeInt(val); ok && n >= 0 {
				rec.TotalPlayTime = n
			} else {
				report.repair(keyTotalPlayTime)
			}

		default:
			if rec.Extra == nil {
				rec.Extra = make(map[string]json.RawMessage)
			}
			rec.Extra[key] = val
		}
	}

	return rec
}

func decodeAchievements(val json.RawMessage, report *DecodeReport) AchievementSet {
	var items []json.RawMessage
	if err := json.Unmarshal(val, &items); err != nil {
		report.repair(keyAchievements)
		return AchievementSet{}
	}

	var set AchievementSet
	for i, item := range items {
		var id string
		if err := json.Unmarshal(item, &id); err != nil || id == "" {
			report.repair(fmt.Sprintf("%s[%d]", keyAchievements, i))
			continue
		}
		set.Add(AchievementID(id))
	}
	return set
}

func decodeProgressMap(val json.RawMessage, into map[ActivityID]ActivityProgress, report *DecodeReport) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(val, &entries); err != nil || entries == nil {
		report.repair(keyProgress)
		return
	}

	for key, entry := range entries {
		id := ActivityID(key)
		base, known := into[id]
		p, ok := decodeProgress(entry, base, known, keyProgress+"."+key, report)
		if !ok {
			continue
		}
		into[id] = p
	}
}

// decodeProgress merges one stored progress entry over base.
func decodeProgress(val json.RawMessage, base ActivityProgress, known bool, path string, report *DecodeReport) (ActivityProgress, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(val, &fields); err != nil || fields == nil {
		report.repair(path)
		return ActivityProgress{}, false
	}

	p := ActivityProgress{Completed: base.Completed, Total: base.Total}
	totalSet := known

	for key, f := range fields {
		switch key {
		case keyCompleted:
			if n, ok := decodeInt(f); ok && n >= 0 {
				p.Completed = n
			} else {
				report.repair(path + "." + keyCompleted)
			}
		case keyTotal:
			if n, ok := decodeInt(f); ok && n > 0 {
				p.Total = n
				totalSet = true
			} else {
				report.repair(path + "." + keyTotal)
			}
		default:
			if p.Extra == nil {
				p.Extra = make(map[string]json.RawMessage)
			}
			p.Extra[key] = f
		}
	}

	// An activity this build has no default for needs a positive total.
	if !totalSet || p.Total <= 0 {
		p.Total = max(p.Completed, 1)
	}

	if clamped := p.Clamp(); clamped.Completed != p.Completed {
		report.repair(path + "." + keyCompleted)
		p = clamped
	}
	return p, true
}

func decodeSettings(val json.RawMessage, base Settings, report *DecodeReport) Settings {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(val, &fields); err != nil || fields == nil {
		report.repair(keySettings)
		return base
	}

	s := Settings{AudioEnabled: base.AudioEnabled, Difficulty: base.Difficulty}
	for key, f := range fields {
		switch key {
		case keyAudioEnabled:
			var b bool
			if err := json.Unmarshal(f, &b); err != nil || isNull(f) {
				report.repair(keySettings + "." + keyAudioEnabled)
				continue
			}
			s.AudioEnabled = b
		case keyDifficulty:
			var d string
			if err := json.Unmarshal(f, &d); err != nil || !Difficulty(d).IsValid() {
				report.repair(keySettings + "." + keyDifficulty)
				continue
			}
			s.Difficulty = Difficulty(d)
		default:
			if s.Extra == nil {
				s.Extra = make(map[string]json.RawMessage)
			}
			s.Extra[key] = f
		}
	}
	return s
}

// Encode serialises r as the persisted JSON document. Keys are emitted in
// sorted order so equal records produce equal bytes.
func Encode(r Record) ([]byte, error) {
	doc := make(map[string]any, len(topLevelKeys)+len(r.Extra))
	for k, v := range r.Extra {
		if !topLevelKeys[k] {
			doc[k] = v
		}
	}

	ids := r.Achievements.IDs()
	achievements := make([]string, 0, len(ids))
	for _, id := range ids {
		achievements = append(achievements, string(id))
	}

	progress := make(map[string]any, len(r.Progress))
	for id, p := range r.Progress {
		entry := make(map[string]any, 2+len(p.Extra))
		for k, v := range p.Extra {
			entry[k] = v
		}
		entry[keyCompleted] = p.Completed
		entry[keyTotal] = p.Total
		progress[string(id)] = entry
	}

	settings := make(map[string]any, 2+len(r.Settings.Extra))
	for k, v := range r.Settings.Extra {
		settings[k] = v
	}
	settings[keyAudioEnabled] = r.Settings.AudioEnabled
	settings[keyDifficulty] = string(r.Settings.Difficulty)

	var lastLogin any
	if r.LastLogin != nil {
		lastLogin = r.LastLogin.UTC().Format(time.RFC3339Nano)
	}

	doc[keySchemaVersion] = CurrentSchemaVersion
	doc[keyStars] = r.Stars
	doc[keyLevel] = r.Level
	doc[keyAchievements] = achievements
	doc[keyProgress] = progress
	doc[keySettings] = settings
	doc[keyLastLogin] = lastLogin
	doc[keyTotalPlayTime] = r.TotalPlayTime

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, shared.WrapError("learner", "Encode", shared.ErrMalformedRecord, "failed to encode record", err)
	}
	return data, nil
}

func decodeInt(val json.RawMessage) (int, bool) {
	if isNull(val) {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(val, &n); err != nil {
		return 0, false
	}
	return n, true
}

func isNull(val json.RawMessage) bool {
	return string(val) == "null"
}
