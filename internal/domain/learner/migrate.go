package learner

import (
	"encoding/json"
)

// migration upgrades a raw document by exactly one schema version.
type migration func(raw map[string]json.RawMessage) map[string]json.RawMessage

// migrations is keyed by the version a step upgrades from.
// Every version below CurrentSchemaVersion must have an entry.
var migrations = map[int]migration{
	1: migrateV1ToV2,
}

// migrate brings raw up to CurrentSchemaVersion. Documents written by a newer
// build are left untouched; their unknown keys survive through Extra bags.
func migrate(raw map[string]json.RawMessage, report *DecodeReport) map[string]json.RawMessage {
	version := 1
	if v, ok := raw[keySchemaVersion]; ok {
		if n, ok := decodeInt(v); ok && n >= 1 {
			version = n
		} else {
			report.repair(keySchemaVersion)
		}
	}
	report.FromVersion = version

	for version < CurrentSchemaVersion {
		step, ok := migrations[version]
		if !ok {
			break
		}
		raw = step(raw)
		version++
		report.Migrated = true
	}
	return raw
}

// migrateV1ToV2 handles the unversioned documents written before
// schemaVersion existed. Some of those carried the counters under
// totalStars/userLevel; they are moved to their current names unless the
// current name is already present.
func migrateV1ToV2(raw map[string]json.RawMessage) map[string]json.RawMessage {
	renames := map[string]string{
		"totalStars": keyStars,
		"userLevel":  keyLevel,
	}
	for legacy, current := range renames {
		val, ok := raw[legacy]
		if !ok {
			continue
		}
		if _, exists := raw[current]; exists {
			continue
		}
		raw[current] = val
		delete(raw, legacy)
	}
	return raw
}
