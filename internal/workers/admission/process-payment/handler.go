// internal/workers/admission/process-payment/handler.go
package processpayment

import (
	"context"

	"admission-workers/internal/admission"
	"admission-workers/internal/common/camunda"
	"admission-workers/internal/common/errors"
	"admission-workers/internal/common/logger"
	"admission-workers/internal/common/metrics"
	"admission-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "admission-process-payment"

type Service interface {
	ProcessPayment(ctx context.Context, applicationID string, details *models.PaymentDetails) (*admission.PaymentResult, error)
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

// Handle completes the job for every recorded attempt, including FAILED and PENDING ones; the
// process model routes on paymentStatus. Only errors that left no attempt fail the job.
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
		// the attempt is recorded; a redelivered job charges again under a new attempt id
		h.logger.Error("failed to complete job", map[string]interface{}{
			"jobKey":    job.GetKey(),
			"paymentId": output.PaymentID,
			"error":     err.Error(),
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	res, err := h.service.ProcessPayment(ctx, input.ApplicationID, input.PaymentDetails)
	if err != nil {
		return nil, err
	}
	return &Output{
		PaymentID:      res.PaymentID,
		PaymentStatus:  res.Status,
		PaymentMessage: res.Message,
		ClientSecret:   res.ClientSecret,
	}, nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := h.errors.HandleJobError(ctx, client, job, err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
}
