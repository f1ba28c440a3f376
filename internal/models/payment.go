// internal/models/payment.go
package models

import "time"

// PaymentStatus is derived from the gateway outcome, never set by callers.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// IsTerminal reports whether the status can no longer change for an attempt.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// PaymentDetails is the caller-supplied charge request.
type PaymentDetails struct {
	Method          string  `json:"method" validate:"required"`
	Amount          float64 `json:"amount" validate:"gt=0"`
	Currency        string  `json:"currency" validate:"required,alpha,len=3"`
	PaymentMethodID string  `json:"paymentMethodId,omitempty"`
}

// PaymentAttempt is one immutable row of the payment ledger.
type PaymentAttempt struct {
	ID               string        `json:"id"`
	ApplicationID    string        `json:"applicationId"`
	Method           string        `json:"method"`
	Amount           float64       `json:"amount"`
	AmountMinor      int64         `json:"amountMinor"`
	Currency         string        `json:"currency"`
	GatewayReference string        `json:"gatewayReference"`
	Status           PaymentStatus `json:"status"`
	Message          string        `json:"message,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
}
