// Package admin is the guardian-facing surface: read-only export, settings
// changes, import, and the destructive wipe. Every operation is a thin pass
// through to the progress store.
package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/littlemath/learnerhub/internal/application/progress"
	"github.com/littlemath/learnerhub/internal/domain/learner"
	"github.com/littlemath/learnerhub/internal/domain/shared"
	"github.com/littlemath/learnerhub/pkg/logger"
	"github.com/littlemath/learnerhub/pkg/timeutil"
)

// Format is a snapshot serialisation format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, yaml and yml.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", shared.NewDomainError("admin", "ParseFormat", shared.ErrInvalidInput, fmt.Sprintf("unsupported format %q", s))
	}
}

// Service exposes the administrative operations.
type Service struct {
	store *progress.Store
	bus   shared.EventPublisher
	clock timeutil.Clock
	log   *logger.Logger
}

// NewService creates the admin surface over store. bus may be nil.
func NewService(store *progress.Store, bus shared.EventPublisher, clock timeutil.Clock, log *logger.Logger) *Service {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store: store,
		bus:   bus,
		clock: clock,
		log:   log.With(logger.Component("admin")),
	}
}

// ExportSnapshot returns a read-only copy of the learner record.
func (s *Service) ExportSnapshot() learner.Record {
	return s.store.Snapshot()
}

// Export serialises the snapshot as the persisted document, so the output
// can be fed back to ImportSnapshot.
func (s *Service) Export(format Format) ([]byte, error) {
	data, err := learner.Encode(s.store.Snapshot())
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatJSON, "":
		var out bytes.Buffer
		if err := json.Indent(&out, data, "", "  "); err != nil {
			return nil, shared.WrapError("admin", "Export", shared.ErrMalformedRecord, "failed to indent document", err)
		}
		out.WriteByte('\n')
		return out.Bytes(), nil

	case FormatYAML:
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, shared.WrapError("admin", "Export", shared.ErrMalformedRecord, "failed to re-read document", err)
		}
		out, err := yaml.Marshal(doc)
		if err != nil {
			return nil, shared.WrapError("admin", "Export", shared.ErrMalformedRecord, "failed to encode yaml", err)
		}
		return out, nil

	default:
		return nil, shared.NewDomainError("admin", "Export", shared.ErrInvalidInput, fmt.Sprintf("unsupported format %q", format))
	}
}

// UpdateSettings shallow-merges patch into the learner settings.
func (s *Service) UpdateSettings(ctx context.Context, patch learner.SettingsPatch) (learner.Settings, error) {
	settings, err := s.store.UpdateSettings(ctx, patch)
	if err != nil && !shared.IsPersistence(err) {
		return settings, err
	}

	s.publish(shared.SettingsUpdatedEvent{
		BaseEvent:    shared.NewBaseEvent(shared.EventSettingsUpdated, s.clock.Now()),
		AudioEnabled: settings.AudioEnabled,
		Difficulty:   string(settings.Difficulty),
	})
	return settings, err
}

// ClearAll wipes every stored key of the learner namespace. The caller must
// have obtained the guardian's confirmation.
func (s *Service) ClearAll(ctx context.Context) error {
	err := s.store.ClearAll(ctx)
	s.publish(shared.LearnerClearedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventLearnerCleared, s.clock.Now()),
	})
	return err
}

// ImportSnapshot replaces the learner record with an exported document.
// YAML documents are converted to the JSON form before the usual
// merge-with-defaults.
func (s *Service) ImportSnapshot(ctx context.Context, data []byte, format Format) (learner.DecodeReport, error) {
	if format == FormatYAML {
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return learner.DecodeReport{}, shared.WrapError("admin", "ImportSnapshot", shared.ErrMalformedRecord, "document is not valid yaml", err)
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return learner.DecodeReport{}, shared.WrapError("admin", "ImportSnapshot", shared.ErrMalformedRecord, "yaml document has no json form", err)
		}
		data = converted
	}

	report, err := s.store.Import(ctx, data)
	if err != nil {
		s.log.Warn("import failed", logger.Err(err))
		return report, err
	}
	s.log.Info("learner record imported",
		logger.Int("from_version", report.FromVersion), logger.Any("repaired", report.Repaired))
	return report, nil
}

// Probe reports whether the persistence medium is usable.
func (s *Service) Probe(ctx context.Context) error {
	return s.store.Probe(ctx)
}

func (s *Service) publish(e shared.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(e); err != nil {
		s.log.Warn("event not published", logger.String("event_type", string(e.EventType())), logger.Err(err))
	}
}
