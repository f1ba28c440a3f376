package admission_test

import (
	"context"
	"testing"
	"time"

	"admission-workers/internal/admission"
	"admission-workers/internal/admission/admissiontest"
	"admission-workers/internal/common/errors"
	"admission-workers/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTracedFixture(t *testing.T) (*fixture, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := &fixture{
		mem:      admissiontest.NewMemory(),
		gw:       admissiontest.NewStubGateway("succeeded"),
		notifier: &admissiontest.RecordingNotifier{},
		alerter:  &admissiontest.RecordingAlerter{},
	}
	f.pipeline = admission.NewPipeline(admission.Options{
		Drafts:         f.mem.Drafts(),
		Ledger:         f.mem.Ledger(),
		Admissions:     f.mem.Admissions(),
		Gateway:        f.gw,
		Notifier:       f.notifier,
		Alerter:        f.alerter,
		FallbackToken:  "pm_card_visa",
		Retention:      24 * time.Hour,
		Logger:         logger.NewTestLogger(t),
		TracerProvider: tp,
	})
	return f, rec
}

func finalizeSpan(t *testing.T, rec *tracetest.SpanRecorder) sdktrace.ReadOnlySpan {
	t.Helper()
	var found sdktrace.ReadOnlySpan
	for _, s := range rec.Ended() {
		if s.Name() == "admission.finalize" {
			require.Nil(t, found, "one finalize span per call")
			found = s
		}
	}
	require.NotNil(t, found, "finalize span not recorded")
	return found
}

func spanAttr(s sdktrace.ReadOnlySpan, key attribute.Key) (string, bool) {
	for _, kv := range s.Attributes() {
		if kv.Key == key {
			return kv.Value.AsString(), true
		}
	}
	return "", false
}

func TestFinalize_SpanCarriesPaymentID(t *testing.T) {
	f, rec := newTracedFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.StartApplication(ctx, "APP-1")
	require.NoError(t, err)

	res, err := f.pipeline.Finalize(ctx, admission.FinalizeRequest{ApplicationID: "APP-1", PaymentDetails: card(50)})
	require.NoError(t, err)

	span := finalizeSpan(t, rec)
	appID, ok := spanAttr(span, "application.id")
	require.True(t, ok)
	assert.Equal(t, "APP-1", appID)

	paymentID, ok := spanAttr(span, "payment.id")
	require.True(t, ok)
	assert.Equal(t, res.Payment.PaymentID, paymentID)
	assert.Equal(t, res.Admission.PaymentID, paymentID)
	assert.Equal(t, codes.Unset, span.Status().Code)
}

func TestFinalize_SpanRecordsError(t *testing.T) {
	f, rec := newTracedFixture(t)

	_, err := f.pipeline.Finalize(context.Background(), admission.FinalizeRequest{ApplicationID: "APP-404"})
	assertCode(t, err, errors.ErrCodeDraftNotFound)

	span := finalizeSpan(t, rec)
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Equal(t, err.Error(), span.Status().Description)

	var exceptions int
	for _, ev := range span.Events() {
		if ev.Name == "exception" {
			exceptions++
		}
	}
	assert.Equal(t, 1, exceptions)

	_, ok := spanAttr(span, "payment.id")
	assert.False(t, ok, "no payment was resolved")
}

func TestFinalize_SpanRecordsPaymentNotCompleted(t *testing.T) {
	f, rec := newTracedFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.StartApplication(ctx, "APP-1")
	require.NoError(t, err)
	f.gw.Status = "requires_payment_method"

	_, err = f.pipeline.Finalize(ctx, admission.FinalizeRequest{ApplicationID: "APP-1", PaymentDetails: card(50)})
	assertCode(t, err, errors.ErrCodePaymentNotCompleted)

	assert.Equal(t, codes.Error, finalizeSpan(t, rec).Status().Code)
}
