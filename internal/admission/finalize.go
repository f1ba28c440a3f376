package admission

import (
	"context"
	"fmt"
	"time"

	"admission-workers/internal/common/errors"
	"admission-workers/internal/common/logger"
	"admission-workers/internal/common/metrics"
	"admission-workers/internal/models"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	PathAlreadyPaid     = "already_paid"
	PathPayThenFinalize = "pay_then_finalize"
)

// FinalizeRequest selects the path: PaymentDetails present means pay then finalize,
// otherwise PaymentID (or the latest attempt) must already be COMPLETED.
type FinalizeRequest struct {
	ApplicationID  string                 `json:"applicationId"`
	PaymentDetails *models.PaymentDetails `json:"paymentDetails,omitempty"`
	PaymentID      string                 `json:"paymentId,omitempty"`
}

type FinalizeResult struct {
	Admission        *models.AdmissionRecord `json:"admission"`
	Payment          *PaymentResult          `json:"payment,omitempty"`
	AlreadyFinalized bool                    `json:"alreadyFinalized"`
	Path             string                  `json:"path"`
}

// Finalizer turns a draft plus a completed payment into an admission record and retires the
// draft. It holds no locks; the admission primary key is the only serialization point.
type Finalizer struct {
	drafts     DraftStore
	ledger     PaymentLedger
	admissions AdmissionStore
	payments   *PaymentProcessor
	notifier   Notifier
	alerter    IntegrityAlerter
	logger     logger.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

type FinalizerDeps struct {
	Drafts     DraftStore
	Ledger     PaymentLedger
	Admissions AdmissionStore
	Payments   *PaymentProcessor
	Notifier   Notifier
	Alerter    IntegrityAlerter
	Logger     logger.Logger
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

func NewFinalizer(deps FinalizerDeps) *Finalizer {
	tp := deps.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	f := &Finalizer{
		drafts:     deps.Drafts,
		ledger:     deps.Ledger,
		admissions: deps.Admissions,
		payments:   deps.Payments,
		notifier:   deps.Notifier,
		alerter:    deps.Alerter,
		logger:     deps.Logger,
		tracer:     tp.Tracer("admission-workers/finalize"),
		now:        func() time.Time { return time.Now().UTC() },
	}
	if f.notifier == nil {
		f.notifier = nopNotifier{}
	}
	if f.alerter == nil {
		f.alerter = nopAlerter{}
	}
	return f
}

// Finalize is safe to call repeatedly: once an admission exists every later call returns it.
func (f *Finalizer) Finalize(ctx context.Context, req FinalizeRequest) (result *FinalizeResult, err error) {
	ctx, span := f.tracer.Start(ctx, "admission.finalize",
		trace.WithAttributes(attribute.String("application.id", req.ApplicationID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if req.ApplicationID == "" {
		return nil, errors.NewInvalidInputError("applicationId is required")
	}
	log := f.logger.WithFields(map[string]interface{}{"applicationId": req.ApplicationID})

	if existing, found, err := f.admissions.Find(ctx, req.ApplicationID); err != nil {
		return nil, err
	} else if found {
		f.retireDraft(ctx, log, req.ApplicationID, "finalize-retry")
		log.Info("application already finalized", map[string]interface{}{"admissionId": existing.ID})
		return &FinalizeResult{Admission: existing, AlreadyFinalized: true, Path: pathOf(req)}, nil
	}

	draft, err := f.drafts.Load(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}

	payment, err := f.resolvePayment(ctx, req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("payment.id", payment.PaymentID))

	rec := &models.AdmissionRecord{
		ID:            uuid.New().String(),
		ApplicationID: req.ApplicationID,
		Sections:      models.SnapshotSections(draft),
		PaymentID:     payment.PaymentID,
		CreatedAt:     f.now(),
	}

	inserted, err := f.admissions.InsertIfAbsent(ctx, rec)
	if err != nil {
		return nil, err
	}

	alreadyFinalized := false
	if !inserted {
		winner, found, err := f.admissions.Find(ctx, req.ApplicationID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, errors.NewIntegrityViolationError(req.ApplicationID, nil)
		}
		if req.PaymentDetails != nil && payment.PaymentID != winner.PaymentID {
			f.reportOrphanPayment(ctx, log, winner, payment.PaymentID)
		}
		payment = f.winnerPayment(ctx, log, winner)
		span.SetAttributes(attribute.String("payment.id", winner.PaymentID))
		rec = winner
		alreadyFinalized = true
	}

	f.retireDraft(ctx, log, req.ApplicationID, "finalize")

	if !alreadyFinalized {
		metrics.AdmissionsFinalized.WithLabelValues(pathOf(req)).Inc()
		log.Info("application finalized", map[string]interface{}{
			"admissionId": rec.ID,
			"paymentId":   rec.PaymentID,
			"path":        pathOf(req),
		})
		if err := f.notifier.AdmissionFinalized(ctx, rec, draft); err != nil {
			log.Warn("post-finalize notification failed", map[string]interface{}{"error": err.Error()})
		}
	}

	return &FinalizeResult{
		Admission:        rec,
		Payment:          payment,
		AlreadyFinalized: alreadyFinalized,
		Path:             pathOf(req),
	}, nil
}

func (f *Finalizer) resolvePayment(ctx context.Context, req FinalizeRequest) (*PaymentResult, error) {
	var attempt *models.PaymentAttempt
	var result *PaymentResult

	switch {
	case req.PaymentDetails != nil:
		res, err := f.payments.Process(ctx, req.ApplicationID, req.PaymentDetails)
		if err != nil {
			return nil, err
		}
		attempt, result = res.Attempt, res
	case req.PaymentID != "":
		p, err := f.ledger.Get(ctx, req.ApplicationID, req.PaymentID)
		if err != nil {
			return nil, err
		}
		attempt = p
	default:
		p, err := f.ledger.Latest(ctx, req.ApplicationID)
		if err != nil {
			return nil, err
		}
		attempt = p
	}

	if attempt.Status != models.PaymentStatusCompleted {
		return nil, errors.NewPaymentNotCompletedError(attempt.ID, string(attempt.Status))
	}
	if result == nil {
		result = &PaymentResult{
			PaymentID: attempt.ID,
			Status:    attempt.Status,
			Message:   attempt.Message,
			Attempt:   attempt,
		}
	}
	return result, nil
}

// retireDraft deletes the draft after the admission is durable. A failure leaves both records
// present; it is reported but never undoes the admission.
func (f *Finalizer) retireDraft(ctx context.Context, log logger.Logger, applicationID, source string) {
	deleted, err := f.drafts.Delete(ctx, applicationID)
	if err == nil {
		if deleted && source == "finalize-retry" {
			log.Warn("removed draft left behind by an earlier finalize", nil)
		}
		return
	}

	metrics.IntegrityViolations.WithLabelValues(source).Inc()
	log.Error("admission created but draft delete failed", map[string]interface{}{
		"error":  err.Error(),
		"source": source,
	})
	if alertErr := f.alerter.IntegrityViolation(ctx, applicationID, source, err); alertErr != nil {
		log.Error("integrity alert failed", map[string]interface{}{"error": alertErr.Error()})
	}
}

// reportOrphanPayment flags a charge captured by a finalize that lost the insert race. The
// admission references the winner's payment, so this one needs a manual refund.
func (f *Finalizer) reportOrphanPayment(ctx context.Context, log logger.Logger, winner *models.AdmissionRecord, orphanID string) {
	metrics.IntegrityViolations.WithLabelValues("orphan-payment").Inc()
	log.Error("captured payment not referenced by the admission", map[string]interface{}{
		"admissionId":     winner.ID,
		"orphanPaymentId": orphanID,
		"winnerPaymentId": winner.PaymentID,
	})
	cause := fmt.Errorf("payment %s captured but admission %s references payment %s", orphanID, winner.ID, winner.PaymentID)
	if alertErr := f.alerter.IntegrityViolation(ctx, winner.ApplicationID, "orphan-payment", cause); alertErr != nil {
		log.Error("integrity alert failed", map[string]interface{}{"error": alertErr.Error()})
	}
}

// winnerPayment loads the attempt the stored admission references. A lookup failure yields
// no payment rather than failing a call whose admission already exists.
func (f *Finalizer) winnerPayment(ctx context.Context, log logger.Logger, winner *models.AdmissionRecord) *PaymentResult {
	attempt, err := f.ledger.Get(ctx, winner.ApplicationID, winner.PaymentID)
	if err != nil {
		log.Warn("winning payment lookup failed", map[string]interface{}{
			"paymentId": winner.PaymentID,
			"error":     err.Error(),
		})
		return nil
	}
	return &PaymentResult{
		PaymentID: attempt.ID,
		Status:    attempt.Status,
		Message:   attempt.Message,
		Attempt:   attempt,
	}
}

func pathOf(req FinalizeRequest) string {
	if req.PaymentDetails != nil {
		return PathPayThenFinalize
	}
	return PathAlreadyPaid
}
