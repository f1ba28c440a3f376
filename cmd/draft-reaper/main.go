// cmd/draft-reaper/main.go
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"admission-workers/internal/admission"
	"admission-workers/internal/app"
	"admission-workers/internal/common/config"
	"admission-workers/internal/common/logger"
	"admission-workers/internal/common/observability"
)

func main() {
	interval := flag.Duration("interval", -1, "time between sweeps; 0 runs once (default from admission.reaper.interval)")
	reconcile := flag.Bool("reconcile", true, "report drafts that outlived their admission after each sweep")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	if *interval < 0 {
		*interval = config.GetDuration(cfg.Admission.Reaper.Interval)
	}

	traceOpts, err := observability.TracingOptions(context.Background(), cfg.Tracing)
	if err != nil {
		zapLog.Fatal("invalid tracing configuration", zap.Error(err))
	}
	obs, err := observability.New("draft-reaper", traceOpts...)
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

	sweep := func() error {
		ctx, span := obs.StartSpan(ctx, "admission.reap", attribute.Bool("reconcile", *reconcile))
		defer span.End()
		return runSweep(ctx, pipeline.Reaper, pipeline.Reconciler, *reconcile, log)
	}

	if *interval == 0 {
		if err := sweep(); err != nil {
			zapLog.Fatal("draft sweep failed", zap.Error(err))
		}
		return
	}

	zapLog.Info("draft reaper running", zap.Duration("interval", *interval))
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		if err := sweep(); err != nil {
			zapLog.Error("draft sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			zapLog.Info("draft reaper stopped")
			return
		case <-ticker.C:
		}
	}
}

func runSweep(ctx context.Context, reaper *admission.Reaper, reconciler *admission.Reconciler, reconcile bool, log logger.Logger) error {
	span := trace.SpanFromContext(ctx)

	res, err := reaper.Reap(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reap failed")
		return err
	}
	span.SetAttributes(attribute.Int("reaped", len(res.Deleted)))
	log.Info("draft sweep finished", map[string]interface{}{
		"reaped": len(res.Deleted),
		"cutoff": res.Cutoff.Format(time.RFC3339),
	})

	if !reconcile {
		return nil
	}
	ids, err := reconciler.Reconcile(ctx)
	if err != nil {
		span.RecordError(err)
		log.Warn("integrity reconcile failed", map[string]interface{}{"error": err.Error()})
		return nil
	}
	span.SetAttributes(attribute.Int("integrity_violations", len(ids)))
	return nil
}
