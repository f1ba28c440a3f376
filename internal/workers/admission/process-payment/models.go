// internal/workers/admission/process-payment/models.go
package processpayment

import "admission-workers/internal/models"

type Input struct {
	ApplicationID  string                 `json:"applicationId"`
	PaymentDetails *models.PaymentDetails `json:"paymentDetails"`
}

// Output variables are prefixed so they do not collide with other process variables.
type Output struct {
	PaymentID      string               `json:"paymentId"`
	PaymentStatus  models.PaymentStatus `json:"paymentStatus"`
	PaymentMessage string               `json:"paymentMessage"`
	ClientSecret   string               `json:"clientSecret,omitempty"`
}
