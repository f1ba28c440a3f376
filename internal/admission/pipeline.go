package admission

import (
	"context"
	"encoding/json"
	"time"

	"admission-workers/internal/common/gateway"
	"admission-workers/internal/common/logger"
	"admission-workers/internal/models"
	"admission-workers/pkg/registry"

	"go.opentelemetry.io/otel/trace"
)

// Pipeline bundles the services that share one set of stores. Build it once per process and
// hand it to the workers or the HTTP API.
type Pipeline struct {
	Drafts     DraftStore
	Sections   *SectionWriter
	Payments   *PaymentProcessor
	Finalizer  *Finalizer
	Reaper     *Reaper
	Reconciler *Reconciler
	logger     logger.Logger
}

type Options struct {
	Drafts        DraftStore
	Ledger        PaymentLedger
	Admissions    AdmissionStore
	Gateway       gateway.Gateway
	Registry      *registry.SectionRegistry
	Notifier      Notifier
	Alerter       IntegrityAlerter
	FallbackToken string
	Retention     time.Duration
	Logger        logger.Logger
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

func NewPipeline(opts Options) *Pipeline {
	payments := NewPaymentProcessor(opts.Gateway, opts.Ledger, opts.FallbackToken, opts.Logger)
	return &Pipeline{
		Drafts:   opts.Drafts,
		Sections: NewSectionWriter(opts.Drafts, opts.Registry, opts.Logger),
		Payments: payments,
		Finalizer: NewFinalizer(FinalizerDeps{
			Drafts:         opts.Drafts,
			Ledger:         opts.Ledger,
			Admissions:     opts.Admissions,
			Payments:       payments,
			Notifier:       opts.Notifier,
			Alerter:        opts.Alerter,
			Logger:         opts.Logger,
			TracerProvider: opts.TracerProvider,
		}),
		Reaper:     NewReaper(opts.Drafts, opts.Retention, opts.Logger),
		Reconciler: NewReconciler(opts.Drafts, opts.Alerter, opts.Logger),
		logger:     opts.Logger,
	}
}

// StartApplication creates an empty draft. A second call for the same id fails with
// DRAFT_ALREADY_EXISTS, including after the application was finalized.
func (p *Pipeline) StartApplication(ctx context.Context, applicationID string) (*models.ApplicationDraft, error) {
	if err := requireID(applicationID); err != nil {
		return nil, err
	}
	draft, err := p.Drafts.Create(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	p.logger.Info("application started", map[string]interface{}{"applicationId": applicationID})
	return draft, nil
}

func (p *Pipeline) GetApplication(ctx context.Context, applicationID string) (*models.ApplicationDraft, error) {
	if err := requireID(applicationID); err != nil {
		return nil, err
	}
	return p.Drafts.Get(ctx, applicationID)
}

// DeleteApplication is idempotent and reports whether a draft was removed.
func (p *Pipeline) DeleteApplication(ctx context.Context, applicationID string) (bool, error) {
	if err := requireID(applicationID); err != nil {
		return false, err
	}
	return p.Drafts.Delete(ctx, applicationID)
}

func (p *Pipeline) WriteSection(ctx context.Context, applicationID, section string, payload json.RawMessage) (*models.ApplicationDraft, error) {
	return p.Sections.Write(ctx, applicationID, section, payload)
}

func (p *Pipeline) ProcessPayment(ctx context.Context, applicationID string, details *models.PaymentDetails) (*PaymentResult, error) {
	return p.Payments.Process(ctx, applicationID, details)
}

func (p *Pipeline) Finalize(ctx context.Context, req FinalizeRequest) (*FinalizeResult, error) {
	return p.Finalizer.Finalize(ctx, req)
}
