// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"time"

	"admission-workers/internal/common/config"
	"admission-workers/internal/common/metrics"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// JobRecorder receives per-job timings; observability.Observability satisfies it.
type JobRecorder interface {
	RecordJobProcessed(ctx context.Context, taskType, status string)
	RecordJobDuration(ctx context.Context, taskType string, duration time.Duration, status string)
}

type WorkerLogger interface {
	Info(msg string, fields map[string]interface{})
}

// StartWorker opens a job worker for taskType. It returns nil when the worker is disabled.
func StartWorker(
	client zbc.Client,
	taskType string,
	wcfg config.WorkerConfig,
	handler worker.JobHandler,
	rec JobRecorder,
	log WorkerLogger,
) worker.JobWorker {
	if !wcfg.Enabled {
		log.Info("worker disabled", map[string]interface{}{"taskType": taskType})
		return nil
	}

	w := client.NewJobWorker().
		JobType(taskType).
		Handler(Instrument(taskType, handler, rec)).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(config.GetDuration(wcfg.Timeout)).
		Open()

	log.Info("worker started", map[string]interface{}{
		"taskType":      taskType,
		"maxJobsActive": wcfg.MaxJobsActive,
		"timeout_ms":    wcfg.Timeout,
	})
	return w
}

// Instrument wraps a handler with the active-jobs gauge and duration metrics.
func Instrument(taskType string, handler worker.JobHandler, rec JobRecorder) worker.JobHandler {
	return func(client worker.JobClient, job entities.Job) {
		start := time.Now()
		metrics.WorkerJobsActive.WithLabelValues(taskType).Inc()
		defer func() {
			elapsed := time.Since(start)
			metrics.WorkerJobsActive.WithLabelValues(taskType).Dec()
			metrics.WorkerJobDuration.WithLabelValues(taskType).Observe(elapsed.Seconds())
			if rec != nil {
				ctx := context.Background()
				rec.RecordJobProcessed(ctx, taskType, "handled")
				rec.RecordJobDuration(ctx, taskType, elapsed, "handled")
			}
		}()

		handler(client, job)
	}
}
