// Package notify delivers post-finalization side effects: the admissions search index,
// applicant confirmation e-mail and operator integrity alerts. None of them are part of the
// finalize commit.
package notify

import (
	"context"
	stderrors "errors"

	"admission-workers/internal/common/logger"
	"admission-workers/internal/models"
)

// Sink receives every freshly created admission.
type Sink interface {
	AdmissionFinalized(ctx context.Context, rec *models.AdmissionRecord, draft *models.ApplicationDraft) error
}

// Fanout calls every sink and reports their combined failure. One failing sink does not stop
// the rest.
type Fanout struct {
	sinks  []Sink
	logger logger.Logger
}

func NewFanout(log logger.Logger, sinks ...Sink) *Fanout {
	active := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	return &Fanout{sinks: active, logger: log}
}

func (f *Fanout) AdmissionFinalized(ctx context.Context, rec *models.AdmissionRecord, draft *models.ApplicationDraft) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.AdmissionFinalized(ctx, rec, draft); err != nil {
			f.logger.Warn("admission notification failed", map[string]interface{}{
				"applicationId": rec.ApplicationID,
				"error":         err.Error(),
			})
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
