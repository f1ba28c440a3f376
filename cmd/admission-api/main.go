// cmd/admission-api/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"admission-workers/internal/api"
	"admission-workers/internal/app"
	"admission-workers/internal/common/config"
	"admission-workers/internal/common/logger"
	"admission-workers/internal/common/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	if err := config.RequireGateway(cfg); err != nil {
		zapLog.Fatal("invalid payment configuration", zap.Error(err))
	}

	traceOpts, err := observability.TracingOptions(context.Background(), cfg.Tracing)
	if err != nil {
		zapLog.Fatal("invalid tracing configuration", zap.Error(err))
	}
	obs, err := observability.New("admission-api", traceOpts...)
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

	srv := api.NewServer(&api.Options{
		Address:        cfg.API.Address,
		DisableReqLogs: cfg.API.DisableReqLogs,
		Pipeline:       pipeline,
		ReadyChecks:    deps.ReadyChecks(),
		Logger:         log,
	})

	go func() {
		zapLog.Info("admission API listening", zap.String("address", cfg.API.Address))
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("admission API stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zapLog.Info("Shutdown signal received, draining requests...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		zapLog.Error("Error stopping admission API", zap.Error(err))
	}
	zapLog.Info("admission API stopped gracefully")
}
