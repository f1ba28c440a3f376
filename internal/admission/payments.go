package admission

import (
	"context"
	stderrors "errors"
	"math"
	"strings"
	"time"

	"admission-workers/internal/common/errors"
	"admission-workers/internal/common/gateway"
	"admission-workers/internal/common/logger"
	"admission-workers/internal/common/metrics"
	"admission-workers/internal/common/validation"
	"admission-workers/internal/models"

	"github.com/google/uuid"
)

// PaymentResult is what a caller learns about one attempt.
type PaymentResult struct {
	PaymentID    string               `json:"paymentId"`
	Status       models.PaymentStatus `json:"status"`
	Message      string               `json:"message"`
	ClientSecret string               `json:"clientSecret,omitempty"`

	Attempt *models.PaymentAttempt `json:"-"`
}

// PaymentProcessor drives one gateway charge and records its outcome.
type PaymentProcessor struct {
	gateway       gateway.Gateway
	ledger        PaymentLedger
	fallbackToken string
	logger        logger.Logger
	now           func() time.Time
}

// NewPaymentProcessor builds the processor. fallbackToken is only used when the caller
// supplies no payment method and should stay empty outside sandbox environments.
func NewPaymentProcessor(gw gateway.Gateway, ledger PaymentLedger, fallbackToken string, log logger.Logger) *PaymentProcessor {
	return &PaymentProcessor{
		gateway:       gw,
		ledger:        ledger,
		fallbackToken: fallbackToken,
		logger:        log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Process validates the details, charges the gateway and persists a new attempt. Every call
// that reaches the gateway and gets an answer creates its own attempt row.
func (p *PaymentProcessor) Process(ctx context.Context, applicationID string, details *models.PaymentDetails) (*PaymentResult, error) {
	if applicationID == "" {
		return nil, errors.NewInvalidInputError("applicationId is required")
	}
	if details == nil {
		return nil, errors.NewInvalidPaymentDetailsError(map[string]string{"paymentDetails": "paymentDetails is required"})
	}
	if fields := validation.Struct(details); fields != nil {
		return nil, errors.NewInvalidPaymentDetailsError(fields)
	}
	if msg := checkMinorUnits(details.Amount, details.Currency); msg != "" {
		return nil, errors.NewInvalidPaymentDetailsError(map[string]string{"amount": msg})
	}

	token := details.PaymentMethodID
	if token == "" {
		token = p.fallbackToken
	}
	if token == "" {
		return nil, errors.NewInvalidPaymentDetailsError(map[string]string{"paymentMethodId": "paymentMethodId is required"})
	}

	currency := strings.ToUpper(details.Currency)
	attemptID := uuid.New().String()
	amountMinor := ToMinorUnits(details.Amount, currency)

	charge, err := p.gateway.CreateCharge(ctx, gateway.ChargeRequest{
		ApplicationID:  applicationID,
		AmountMinor:    amountMinor,
		Currency:       currency,
		PaymentMethod:  token,
		IdempotencyKey: attemptID,
	})
	if err != nil {
		p.logger.Warn("gateway charge failed", map[string]interface{}{
			"applicationId": applicationID,
			"error":         err.Error(),
		})
		if stderrors.Is(err, gateway.ErrTimeout) || stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.NewGatewayTimeoutError(err)
		}
		return nil, errors.NewGatewayError(err)
	}

	status := MapGatewayStatus(charge.Status)
	attempt := &models.PaymentAttempt{
		ID:               attemptID,
		ApplicationID:    applicationID,
		Method:           details.Method,
		Amount:           details.Amount,
		AmountMinor:      amountMinor,
		Currency:         currency,
		GatewayReference: charge.Reference,
		Status:           status,
		Message:          StatusMessage(charge.Status, charge.ErrorMessage),
		CreatedAt:        p.now(),
	}

	if err := p.ledger.Insert(ctx, attempt); err != nil {
		p.logger.Error("gateway answered but payment attempt was not recorded", map[string]interface{}{
			"applicationId":    applicationID,
			"paymentId":        attemptID,
			"gatewayReference": charge.Reference,
			"gatewayStatus":    charge.Status,
			"error":            err.Error(),
		})
		return nil, err
	}

	metrics.PaymentAttempts.WithLabelValues(string(status)).Inc()
	p.logger.Info("payment attempt recorded", map[string]interface{}{
		"applicationId":    applicationID,
		"paymentId":        attemptID,
		"status":           string(status),
		"gatewayReference": charge.Reference,
	})

	return &PaymentResult{
		PaymentID:    attemptID,
		Status:       status,
		Message:      attempt.Message,
		ClientSecret: charge.ClientSecret,
		Attempt:      attempt,
	}, nil
}

// MapGatewayStatus is the fixed mapping from gateway status to PaymentStatus.
func MapGatewayStatus(gatewayStatus string) models.PaymentStatus {
	switch gatewayStatus {
	case "succeeded":
		return models.PaymentStatusCompleted
	case "processing":
		return models.PaymentStatusPending
	default:
		return models.PaymentStatusFailed
	}
}

// StatusMessage renders a gateway status for people. It carries no control-flow meaning.
func StatusMessage(gatewayStatus, gatewayMessage string) string {
	switch gatewayStatus {
	case "succeeded":
		return "Payment completed successfully"
	case "processing":
		return "Payment is processing"
	case "requires_action":
		return "Additional verification required"
	case "requires_confirmation":
		return "Payment requires confirmation"
	case "requires_capture":
		return "Payment authorized but not captured"
	case "canceled":
		return "Payment was canceled"
	case "requires_payment_method":
		if gatewayMessage != "" {
			return gatewayMessage
		}
		return "Payment method was declined"
	}
	if gatewayMessage != "" {
		return gatewayMessage
	}
	return "Payment failed"
}

var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true, "KMF": true,
	"KRW": true, "MGA": true, "PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

func minorUnitScale(currency string) float64 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return 1
	}
	return 100
}

// ToMinorUnits converts a major-unit amount into the gateway's integer minor units.
func ToMinorUnits(amount float64, currency string) int64 {
	return int64(math.Round(amount * minorUnitScale(currency)))
}

// checkMinorUnits rejects amounts the gateway cannot charge exactly: anything below one minor
// unit, and anything with more decimal places than the currency has.
func checkMinorUnits(amount float64, currency string) string {
	scaled := amount * minorUnitScale(currency)
	if math.Round(scaled) < 1 {
		return "amount is too small"
	}
	// float noise on values like 19.99*100 stays far below this
	if math.Abs(scaled-math.Round(scaled)) > 1e-6*math.Max(1, math.Abs(scaled)/1e6) {
		return "amount has too many decimal places for " + strings.ToUpper(currency)
	}
	return ""
}
