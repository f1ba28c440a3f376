package admissiontest

import (
	"context"
	"sync"

	"admission-workers/internal/models"
)

type RecordingNotifier struct {
	mu      sync.Mutex
	Err     error
	Records []*models.AdmissionRecord
}

func (n *RecordingNotifier) AdmissionFinalized(_ context.Context, rec *models.AdmissionRecord, _ *models.ApplicationDraft) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Records = append(n.Records, rec)
	return n.Err
}

func (n *RecordingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Records)
}

// Alert is one reported integrity violation.
type Alert struct {
	ApplicationID string
	Source        string
	Cause         error
}

type RecordingAlerter struct {
	mu     sync.Mutex
	Alerts []Alert
}

func (a *RecordingAlerter) IntegrityViolation(_ context.Context, applicationID, source string, cause error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Alerts = append(a.Alerts, Alert{ApplicationID: applicationID, Source: source, Cause: cause})
	return nil
}

func (a *RecordingAlerter) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Alerts)
}
