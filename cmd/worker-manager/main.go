// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"admission-workers/internal/app"
	"admission-workers/internal/common/camunda"
	"admission-workers/internal/common/config"
	"admission-workers/internal/common/logger"
	"admission-workers/internal/common/observability"

	fa "admission-workers/internal/workers/admission/finalize-admission"
	ga "admission-workers/internal/workers/admission/get-application"
	pp "admission-workers/internal/workers/admission/process-payment"
	rd "admission-workers/internal/workers/admission/reap-drafts"
	sa "admission-workers/internal/workers/admission/start-application"
	ws "admission-workers/internal/workers/admission/write-section"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	if err := config.RequireCamunda(cfg); err != nil {
		zapLog.Fatal("invalid camunda configuration", zap.Error(err))
	}
	if err := config.RequireGateway(cfg); err != nil {
		zapLog.Fatal("invalid payment configuration", zap.Error(err))
	}

	zapLog.Info("Starting worker manager...")

	traceOpts, err := observability.TracingOptions(context.Background(), cfg.Tracing)
	if err != nil {
		zapLog.Fatal("invalid tracing configuration", zap.Error(err))
	}
	obs, err := observability.New("worker-manager", traceOpts...)
	if err != nil {
		zapLog.Warn("otel prometheus exporter unavailable", zap.Error(err))
	}
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Connect(ctx, cfg, log)
	if err != nil {
		zapLog.Fatal("store connection failed", zap.Error(err))
	}
	defer deps.Close()

	pipeline, err := app.NewPipeline(cfg, deps, log)
	if err != nil {
		zapLog.Fatal("pipeline setup failed", zap.Error(err))
	}

	zeebe, err := camunda.Connect(ctx, &camunda.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
	}, log)
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	handlers := map[string]worker.JobHandler{
		sa.TaskType: sa.NewHandler(sa.LoadConfig(cfg), pipeline, log).Handle,
		ga.TaskType: ga.NewHandler(ga.LoadConfig(cfg), pipeline, log).Handle,
		ws.TaskType: ws.NewHandler(ws.LoadConfig(cfg), pipeline, log).Handle,
		pp.TaskType: pp.NewHandler(pp.LoadConfig(cfg), pipeline, log).Handle,
		fa.TaskType: fa.NewHandler(fa.LoadConfig(cfg), pipeline, log).Handle,
		rd.TaskType: rd.NewHandler(rd.LoadConfig(cfg), pipeline.Reaper, pipeline.Reconciler, log).Handle,
	}

	var workers []worker.JobWorker
	for taskType, handle := range handlers {
		w := camunda.StartWorker(zeebe.Zeebe(), taskType, config.GetWorkerConfig(cfg, taskType), handle, obs, log)
		if w != nil {
			workers = append(workers, w)
		}
	}
	zapLog.Info("Admission workers registered", zap.Int("running", len(workers)), zap.Int("registered", len(handlers)))

	// --- Health & Metrics Server ---
	checks := deps.ReadyChecks()
	checks["zeebe"] = zeebe.HealthCheck

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]interface{}{"status": "healthy"})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		failed := map[string]string{}
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			writeStatus(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "not ready", "failed": failed})
			return
		}
		writeStatus(w, http.StatusOK, map[string]interface{}{"status": "ready"})
	})
	mux.Handle("/metrics", promhttp.Handler())

	healthSrv := &http.Server{Addr: ":8080", Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping workers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Close()
		w.AwaitClose()
	}
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func writeStatus(w http.ResponseWriter, status int, body map[string]interface{}) {
	body["time"] = time.Now().Format(time.RFC3339)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
