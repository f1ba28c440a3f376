// Package admissiontest provides in-memory stores and a scripted gateway for exercising the
// admission pipeline without Postgres or a real payment provider.
package admissiontest

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"admission-workers/internal/common/errors"
	"admission-workers/internal/models"
)

// Memory holds drafts, payment attempts and admission records behind one mutex, which gives
// the same atomicity the SQL statements give.
type Memory struct {
	mu         sync.Mutex
	drafts     map[string]*models.ApplicationDraft
	payments   []*models.PaymentAttempt
	admissions map[string]*models.AdmissionRecord

	// Now stamps created and updated times. Tests move it to simulate age.
	Now func() time.Time

	// DeleteDraftErr, when set, is returned by every draft delete.
	DeleteDraftErr error
}

func NewMemory() *Memory {
	return &Memory{
		drafts:     map[string]*models.ApplicationDraft{},
		admissions: map[string]*models.AdmissionRecord{},
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Drafts() *MemoryDrafts         { return &MemoryDrafts{m: m} }
func (m *Memory) Ledger() *MemoryLedger         { return &MemoryLedger{m: m} }
func (m *Memory) Admissions() *MemoryAdmissions { return &MemoryAdmissions{m: m} }

// PutDraft stores a copy of d as is, bypassing creation rules.
func (m *Memory) PutDraft(d *models.ApplicationDraft) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[d.ApplicationID] = cloneDraft(d)
}

// PutPayment appends an attempt to the ledger.
func (m *Memory) PutPayment(p *models.PaymentAttempt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payments = append(m.payments, &cp)
}

// PutAdmission stores an admission record as is.
func (m *Memory) PutAdmission(rec *models.AdmissionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.admissions[rec.ApplicationID] = &cp
}

func (m *Memory) HasDraft(applicationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.drafts[applicationID]
	return ok
}

func (m *Memory) AdmissionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.admissions)
}

// Payments returns the attempts recorded for an application, oldest first.
func (m *Memory) Payments(applicationID string) []models.PaymentAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PaymentAttempt
	for _, p := range m.payments {
		if p.ApplicationID == applicationID {
			out = append(out, *p)
		}
	}
	return out
}

// MemoryDrafts satisfies admission.DraftStore.
type MemoryDrafts struct{ m *Memory }

func (s *MemoryDrafts) Create(_ context.Context, applicationID string) (*models.ApplicationDraft, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.drafts[applicationID]; ok {
		return nil, errors.NewDraftAlreadyExistsError(applicationID)
	}
	if _, ok := s.m.admissions[applicationID]; ok {
		return nil, errors.NewDraftAlreadyExistsError(applicationID)
	}
	d := models.NewApplicationDraft(applicationID, s.m.Now())
	s.m.drafts[applicationID] = d
	return cloneDraft(d), nil
}

func (s *MemoryDrafts) Get(ctx context.Context, applicationID string) (*models.ApplicationDraft, error) {
	return s.Load(ctx, applicationID)
}

func (s *MemoryDrafts) Load(_ context.Context, applicationID string) (*models.ApplicationDraft, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	d, ok := s.m.drafts[applicationID]
	if !ok {
		return nil, errors.NewDraftNotFoundError(applicationID)
	}
	return cloneDraft(d), nil
}

func (s *MemoryDrafts) Delete(_ context.Context, applicationID string) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.DeleteDraftErr != nil {
		return false, s.m.DeleteDraftErr
	}
	_, ok := s.m.drafts[applicationID]
	delete(s.m.drafts, applicationID)
	return ok, nil
}

func (s *MemoryDrafts) WriteSection(_ context.Context, applicationID string, section models.Section, payload json.RawMessage) (*models.ApplicationDraft, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	d, ok := s.m.drafts[applicationID]
	if !ok {
		return nil, errors.NewDraftNotFoundError(applicationID)
	}
	cp := make(json.RawMessage, len(payload))
	copy(cp, payload)
	d.Sections[string(section)] = cp
	if !d.HasCompleted(section) {
		d.CompletedSteps = append(d.CompletedSteps, string(section))
	}
	d.UpdatedAt = s.m.Now()
	return cloneDraft(d), nil
}

func (s *MemoryDrafts) DeleteCreatedBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var ids []string
	for id, d := range s.m.drafts {
		if d.CreatedAt.Before(cutoff) {
			ids = append(ids, id)
			delete(s.m.drafts, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryDrafts) FindWithAdmission(_ context.Context) ([]string, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var ids []string
	for id := range s.m.drafts {
		if _, ok := s.m.admissions[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// MemoryLedger satisfies admission.PaymentLedger.
type MemoryLedger struct{ m *Memory }

func (l *MemoryLedger) Insert(_ context.Context, p *models.PaymentAttempt) error {
	l.m.PutPayment(p)
	return nil
}

func (l *MemoryLedger) Get(_ context.Context, applicationID, paymentID string) (*models.PaymentAttempt, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	for _, p := range l.m.payments {
		if p.ID == paymentID && p.ApplicationID == applicationID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, errors.NewPaymentNotFoundError(applicationID, paymentID)
}

func (l *MemoryLedger) Latest(_ context.Context, applicationID string) (*models.PaymentAttempt, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	var latest *models.PaymentAttempt
	for _, p := range l.m.payments {
		if p.ApplicationID != applicationID {
			continue
		}
		if latest == nil || !p.CreatedAt.Before(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, errors.NewPaymentNotFoundError(applicationID, "")
	}
	cp := *latest
	return &cp, nil
}

// MemoryAdmissions satisfies admission.AdmissionStore.
type MemoryAdmissions struct{ m *Memory }

func (a *MemoryAdmissions) Find(_ context.Context, applicationID string) (*models.AdmissionRecord, bool, error) {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	rec, ok := a.m.admissions[applicationID]
	if !ok {
		return nil, false, nil
	}
	cp := *rec
	return &cp, true, nil
}

func (a *MemoryAdmissions) InsertIfAbsent(_ context.Context, rec *models.AdmissionRecord) (bool, error) {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	if _, ok := a.m.admissions[rec.ApplicationID]; ok {
		return false, nil
	}
	cp := *rec
	a.m.admissions[rec.ApplicationID] = &cp
	return true, nil
}

func cloneDraft(d *models.ApplicationDraft) *models.ApplicationDraft {
	cp := *d
	cp.Sections = make(map[string]json.RawMessage, len(d.Sections))
	for k, v := range d.Sections {
		raw := make(json.RawMessage, len(v))
		copy(raw, v)
		cp.Sections[k] = raw
	}
	cp.CompletedSteps = append([]string{}, d.CompletedSteps...)
	return &cp
}
