package admission

import (
	"context"
	"time"

	"admission-workers/internal/common/errors"
	"admission-workers/internal/common/logger"
	"admission-workers/internal/common/metrics"
)

// DefaultRetention is how long an unfinished draft is kept.
const DefaultRetention = 24 * time.Hour

// Reaper deletes drafts older than the retention window. Finalized drafts are already gone,
// so anything it removes was abandoned.
type Reaper struct {
	drafts    DraftStore
	retention time.Duration
	logger    logger.Logger
	now       func() time.Time
}

func NewReaper(drafts DraftStore, retention time.Duration, log logger.Logger) *Reaper {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Reaper{
		drafts:    drafts,
		retention: retention,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type ReapResult struct {
	Cutoff  time.Time `json:"cutoff"`
	Deleted []string  `json:"deleted"`
}

// Reap removes every draft created strictly before now minus retention.
func (r *Reaper) Reap(ctx context.Context) (*ReapResult, error) {
	cutoff := r.now().Add(-r.retention)

	ids, err := r.drafts.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		r.logger.Error("draft reaping failed", map[string]interface{}{
			"cutoff": cutoff,
			"error":  err.Error(),
		})
		return nil, err
	}

	metrics.DraftsReaped.Add(float64(len(ids)))
	if len(ids) > 0 {
		r.logger.Info("reaped expired drafts", map[string]interface{}{
			"count":  len(ids),
			"cutoff": cutoff,
		})
	}
	return &ReapResult{Cutoff: cutoff, Deleted: ids}, nil
}

// Reconciler reports applications whose draft survived finalization.
type Reconciler struct {
	drafts  DraftStore
	alerter IntegrityAlerter
	logger  logger.Logger
}

func NewReconciler(drafts DraftStore, alerter IntegrityAlerter, log logger.Logger) *Reconciler {
	if alerter == nil {
		alerter = nopAlerter{}
	}
	return &Reconciler{drafts: drafts, alerter: alerter, logger: log}
}

// Reconcile only reports. Cleanup is left to an operator or the next finalize retry.
func (r *Reconciler) Reconcile(ctx context.Context) ([]string, error) {
	ids, err := r.drafts.FindWithAdmission(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		metrics.IntegrityViolations.WithLabelValues("reconcile").Inc()
		violation := errors.NewIntegrityViolationError(id, nil)
		r.logger.Error("draft and admission coexist", map[string]interface{}{
			"applicationId": id,
			"errorCode":     string(violation.Code),
		})
		if err := r.alerter.IntegrityViolation(ctx, id, "reconcile", violation); err != nil {
			r.logger.Warn("integrity alert failed", map[string]interface{}{
				"applicationId": id,
				"error":         err.Error(),
			})
		}
	}
	return ids, nil
}
