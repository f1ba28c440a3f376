// Package admission implements the application pipeline: drafts, section writes, payments,
// finalization and draft retention. Storage and delivery are injected.
package admission

import (
	"context"
	"encoding/json"
	"time"

	"admission-workers/internal/models"
)

// DraftStore is implemented by store.DraftRepository.
type DraftStore interface {
	Create(ctx context.Context, applicationID string) (*models.ApplicationDraft, error)
	Get(ctx context.Context, applicationID string) (*models.ApplicationDraft, error)
	// Load reads the authoritative copy, skipping any cache.
	Load(ctx context.Context, applicationID string) (*models.ApplicationDraft, error)
	Delete(ctx context.Context, applicationID string) (bool, error)
	WriteSection(ctx context.Context, applicationID string, section models.Section, payload json.RawMessage) (*models.ApplicationDraft, error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) ([]string, error)
	FindWithAdmission(ctx context.Context) ([]string, error)
}

// PaymentLedger is implemented by store.PaymentLedger.
type PaymentLedger interface {
	Insert(ctx context.Context, p *models.PaymentAttempt) error
	Get(ctx context.Context, applicationID, paymentID string) (*models.PaymentAttempt, error)
	Latest(ctx context.Context, applicationID string) (*models.PaymentAttempt, error)
}

// AdmissionStore is implemented by store.AdmissionRepository.
type AdmissionStore interface {
	Find(ctx context.Context, applicationID string) (*models.AdmissionRecord, bool, error)
	InsertIfAbsent(ctx context.Context, rec *models.AdmissionRecord) (bool, error)
}

// Notifier fans a fresh admission out to secondary systems. Failures never undo finalization.
type Notifier interface {
	AdmissionFinalized(ctx context.Context, rec *models.AdmissionRecord, draft *models.ApplicationDraft) error
}

// IntegrityAlerter reports an application that has both a draft and an admission record.
type IntegrityAlerter interface {
	IntegrityViolation(ctx context.Context, applicationID, source string, cause error) error
}

type nopNotifier struct{}

func (nopNotifier) AdmissionFinalized(context.Context, *models.AdmissionRecord, *models.ApplicationDraft) error {
	return nil
}

type nopAlerter struct{}

func (nopAlerter) IntegrityViolation(context.Context, string, string, error) error { return nil }
