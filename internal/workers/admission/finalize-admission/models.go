// internal/workers/admission/finalize-admission/models.go
package finalizeadmission

import "admission-workers/internal/models"

type Input struct {
	ApplicationID  string                 `json:"applicationId"`
	PaymentDetails *models.PaymentDetails `json:"paymentDetails,omitempty"`
	PaymentID      string                 `json:"paymentId,omitempty"`
}

type Output struct {
	AdmissionID      string `json:"admissionId"`
	PaymentID        string `json:"paymentId"`
	AlreadyFinalized bool   `json:"alreadyFinalized"`
	FinalizePath     string `json:"finalizePath"`
	AdmittedAt       string `json:"admittedAt"` // RFC 3339
}
