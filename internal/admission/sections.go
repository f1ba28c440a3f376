package admission

import (
	"context"
	"encoding/json"

	"admission-workers/internal/common/errors"
	"admission-workers/internal/common/logger"
	"admission-workers/internal/common/metrics"
	"admission-workers/internal/common/validation"
	"admission-workers/internal/models"
	"admission-workers/pkg/registry"
)

// SectionWriter validates a section payload and stores it wholesale.
type SectionWriter struct {
	drafts   DraftStore
	registry *registry.SectionRegistry
	logger   logger.Logger
}

func NewSectionWriter(drafts DraftStore, reg *registry.SectionRegistry, log logger.Logger) *SectionWriter {
	if reg == nil {
		reg = registry.DefaultRegistry()
	}
	return &SectionWriter{drafts: drafts, registry: reg, logger: log}
}

// Write replaces sections[sectionName] with payload and marks the section completed.
// Validation happens before any store access.
func (w *SectionWriter) Write(ctx context.Context, applicationID, sectionName string, payload json.RawMessage) (*models.ApplicationDraft, error) {
	if applicationID == "" {
		return nil, errors.NewInvalidInputError("applicationId is required")
	}
	section, ok := models.ParseSection(sectionName)
	if !ok {
		return nil, errors.NewInvalidSectionError(sectionName)
	}
	if err := w.validatePayload(section, payload); err != nil {
		return nil, err
	}

	draft, err := w.drafts.WriteSection(ctx, applicationID, section, payload)
	if err != nil {
		return nil, err
	}

	metrics.SectionsWritten.WithLabelValues(string(section)).Inc()
	w.logger.Info("section written", map[string]interface{}{
		"applicationId":  applicationID,
		"section":        string(section),
		"completedSteps": len(draft.CompletedSteps),
	})
	return draft, nil
}

func (w *SectionWriter) validatePayload(section models.Section, payload json.RawMessage) error {
	if len(payload) == 0 {
		return errors.NewInvalidSectionPayloadError(string(section), []string{"payload is required"})
	}
	if !json.Valid(payload) {
		return errors.NewInvalidSectionPayloadError(string(section), []string{"payload is not valid JSON"})
	}

	entry, ok := w.registry.Lookup(string(section))
	if !ok {
		return nil
	}
	result, err := validation.ValidateDocument(entry.Schema, payload)
	if err != nil {
		return errors.NewInvalidSectionPayloadError(string(section), []string{err.Error()})
	}
	if !result.Valid {
		return errors.NewInvalidSectionPayloadError(string(section), result.GetErrorMessages())
	}
	return nil
}

func requireID(applicationID string) error {
	if applicationID == "" {
		return errors.NewInvalidInputError("applicationId is required")
	}
	return nil
}
