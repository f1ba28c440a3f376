// internal/workers/admission/finalize-admission/handler.go
package finalizeadmission

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

const TaskType = "admission-finalize"

type Service interface {
	Finalize(ctx context.Context, req admission.FinalizeRequest) (*admission.FinalizeResult, error)
}

type Handler struct {
	config  *Config
	service Service
	errors  *errors.ErrorHandler
	logger  logger.Logger
}

func NewHandler(cfg *Config, service Service, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:  cfg,
		service: service,
		errors:  errors.NewErrorHandler(log),
		logger:  log,
	}
}

// Handle is safe under redelivery: a second activation of the same job returns the admission
// created by the first.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

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
		h.logger.Error("failed to complete job", map[string]interface{}{
			"jobKey":      job.GetKey(),
			"admissionId": output.AdmissionID,
			"error":       err.Error(),
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	res, err := h.service.Finalize(ctx, admission.FinalizeRequest{
		ApplicationID:  input.ApplicationID,
		PaymentDetails: input.PaymentDetails,
		PaymentID:      input.PaymentID,
	})
	if err != nil {
		return nil, err
	}
	return &Output{
		AdmissionID:      res.Admission.ID,
		PaymentID:        res.Admission.PaymentID,
		AlreadyFinalized: res.AlreadyFinalized,
		FinalizePath:     res.Path,
		AdmittedAt:       res.Admission.CreatedAt.Format(time.RFC3339),
	}, nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := h.errors.HandleJobError(ctx, client, job, err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
}
