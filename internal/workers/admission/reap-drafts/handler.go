// internal/workers/admission/reap-drafts/handler.go
package reapdrafts

import (
	"context"
	"time"

	"admission-workers/internal/admission"
	"admission-workers/internal/common/camunda"
	"admission-workers/internal/common/errors"
	"admission-workers/internal/common/logger"
	"admission-workers/internal/common/metrics"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// TaskType lets a timer-started process drive the sweep when no cron runs the draft-reaper
// binary.
const TaskType = "admission-reap-drafts"

type Reaper interface {
	Reap(ctx context.Context) (*admission.ReapResult, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context) ([]string, error)
}

type Handler struct {
	config     *Config
	reaper     Reaper
	reconciler Reconciler
	errors     *errors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(cfg *Config, reaper Reaper, reconciler Reconciler, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     cfg,
		reaper:     reaper,
		reconciler: reconciler,
		errors:     errors.NewErrorHandler(log),
		logger:     log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := camunda.DecodeVariables(job, &input); err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	if err := camunda.CompleteJob(ctx, client, job, output); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{"jobKey": job.GetKey(), "error": err.Error()})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	res, err := h.reaper.Reap(ctx)
	if err != nil {
		if errors.AsStandard(err).Code == errors.ErrCodeInternal {
			return nil, errors.NewQueryExecutionFailedError("reap drafts", err)
		}
		return nil, err
	}

	out := &Output{
		ReapedCount:         len(res.Deleted),
		ReapedIDs:           nonNil(res.Deleted),
		Cutoff:              res.Cutoff.Format(time.RFC3339),
		IntegrityViolations: []string{},
	}

	if input.Reconcile && h.reconciler != nil {
		ids, err := h.reconciler.Reconcile(ctx)
		if err != nil {
			// reaping already happened; report it rather than fail the job
			h.logger.Warn("reconciliation failed", map[string]interface{}{"error": err.Error()})
		} else {
			out.IntegrityViolations = nonNil(ids)
		}
	}
	return out, nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := h.errors.HandleJobError(ctx, client, job, err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
