// Package app wires configuration into connected stores and a ready admission pipeline. Every
// binary under cmd/ builds its dependencies through here.
package app

import (
	"context"
	"fmt"
	"time"

	"admission-workers/internal/admission"
	"admission-workers/internal/admission/notify"
	"admission-workers/internal/admission/store"
	commonaws "admission-workers/internal/common/aws"
	"admission-workers/internal/common/config"
	"admission-workers/internal/common/database"
	"admission-workers/internal/common/gateway"
	"admission-workers/internal/common/logger"
	"admission-workers/pkg/registry"
)

// Deps holds the live connections a process owns.
type Deps struct {
	Postgres      *database.PostgresClient
	Redis         *database.RedisClient
	Elasticsearch *database.ElasticsearchClient
	AWS           *commonaws.Clients
}

// RetryWithBackoff runs operation until it succeeds, doubling the delay between attempts.
func RetryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// Connect dials every configured store. Elasticsearch and AWS are only touched when enabled.
func Connect(ctx context.Context, cfg *config.Config, log logger.Logger) (*Deps, error) {
	deps := &Deps{}

	err := RetryWithBackoff(func() error {
		var err error
		deps.Postgres, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return deps.Postgres.Ping(ctx)
	}, 15, 2*time.Second, log, "PostgreSQL connection")
	if err != nil {
		return nil, err
	}

	if cfg.Database.Postgres.AutoMigrate {
		if err := store.Migrate(ctx, deps.Postgres.DB); err != nil {
			deps.Close()
			return nil, err
		}
		log.Info("admission schema migrated", nil)
	}

	if cfg.Database.Redis.Address != "" && cfg.Admission.DraftCacheTTL > 0 {
		err = RetryWithBackoff(func() error {
			var err error
			deps.Redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return deps.Redis.Ping(ctx)
		}, 10, 2*time.Second, log, "Redis connection")
		if err != nil {
			deps.Close()
			return nil, err
		}
	}

	if cfg.Database.Elasticsearch.Enabled {
		err = RetryWithBackoff(func() error {
			var err error
			deps.Elasticsearch, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return deps.Elasticsearch.Ping(ctx)
		}, 15, 2*time.Second, log, "Elasticsearch connection")
		if err != nil {
			deps.Close()
			return nil, err
		}
	}

	aws := cfg.Integrations.AWS
	if aws.SES.Enabled || aws.SNS.Enabled {
		deps.AWS, err = commonaws.NewClients(ctx, aws.Region)
		if err != nil {
			deps.Close()
			return nil, err
		}
	}

	return deps, nil
}

// ReadyChecks returns a readiness check per connected store.
func (d *Deps) ReadyChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if d.Postgres != nil {
		checks["postgres"] = d.Postgres.Ping
	}
	if d.Redis != nil {
		checks["redis"] = d.Redis.Ping
	}
	if d.Elasticsearch != nil {
		checks["elasticsearch"] = d.Elasticsearch.Ping
	}
	return checks
}

func (d *Deps) Close() {
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.Postgres != nil {
		_ = d.Postgres.Close()
	}
}

// NewPipeline builds the stores, gateway client and notification fan-out for cfg.
func NewPipeline(cfg *config.Config, deps *Deps, log logger.Logger) (*admission.Pipeline, error) {
	reg := registry.DefaultRegistry()
	if path := cfg.Admission.Sections.RegistryPath; path != "" {
		loaded, err := registry.LoadRegistry(path)
		if err != nil {
			return nil, fmt.Errorf("load section registry: %w", err)
		}
		reg = loaded
	}

	var cache *store.DraftCache
	if deps.Redis != nil {
		cache = store.NewDraftCache(deps.Redis.Client, config.GetDuration(cfg.Admission.DraftCacheTTL), log)
	}
	db := deps.Postgres.DB

	var sinks []notify.Sink
	if deps.Elasticsearch != nil {
		sinks = append(sinks, notify.NewIndexer(deps.Elasticsearch.Client, cfg.Database.Elasticsearch.AdmissionsIndex))
	}
	var alerter admission.IntegrityAlerter
	if deps.AWS != nil {
		if cfg.Integrations.AWS.SES.Enabled {
			sinks = append(sinks, notify.NewMailer(deps.AWS.SES, cfg.Integrations.AWS.SES.FromEmail))
		}
		if cfg.Integrations.AWS.SNS.Enabled {
			alerter = notify.NewAlerter(deps.AWS.SNS, cfg.Integrations.AWS.SNS.IntegrityTopic)
		}
	}

	return admission.NewPipeline(admission.Options{
		Drafts:        store.NewDraftRepository(db, cache),
		Ledger:        store.NewPaymentLedger(db),
		Admissions:    store.NewAdmissionRepository(db),
		Gateway:       gateway.NewClient(cfg.Payment.Gateway),
		Registry:      reg,
		Notifier:      notify.NewFanout(log, sinks...),
		Alerter:       alerter,
		FallbackToken: cfg.Payment.FallbackToken,
		Retention:     config.GetDuration(cfg.Admission.Reaper.Retention),
		Logger:        log,
	}), nil
}
