// internal/models/admission.go
package models

import (
	"encoding/json"
	"time"
)

// AdmissionRecord is the frozen result of finalizing a draft. It is never updated.
type AdmissionRecord struct {
	ID            string                     `json:"id"`
	ApplicationID string                     `json:"applicationId"`
	Sections      map[string]json.RawMessage `json:"sections"`
	PaymentID     string                     `json:"paymentId"`
	CreatedAt     time.Time                  `json:"createdAt"`
}

// SnapshotSections copies every recognised section out of the draft.
// Unset sections are left out of the snapshot.
func SnapshotSections(draft *ApplicationDraft) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(AllSections))
	for _, s := range AllSections {
		raw, ok := draft.Sections[string(s)]
		if !ok {
			continue
		}
		cp := make(json.RawMessage, len(raw))
		copy(cp, raw)
		out[string(s)] = cp
	}
	return out
}
