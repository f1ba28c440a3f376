// Package gateway is the client for the external card payment gateway.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"admission-workers/internal/common/config"
	commonhttp "admission-workers/internal/common/http"
	"admission-workers/internal/common/metrics"
)

// ErrTimeout marks a charge whose outcome is unknown because the call hit its deadline.
var ErrTimeout = errors.New("gateway request timed out")

// Gateway authorizes and captures a single charge.
type Gateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

type ChargeRequest struct {
	ApplicationID  string
	AmountMinor    int64
	Currency       string
	PaymentMethod  string
	IdempotencyKey string
}

// ChargeResult carries the gateway's own view of the charge. Status is the raw gateway
// status string, e.g. "succeeded", "processing", "requires_action".
type ChargeResult struct {
	Reference    string
	Status       string
	ClientSecret string
	ErrorMessage string
}

type paymentIntent struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	ClientSecret     string `json:"client_secret"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type errorEnvelope struct {
	Error struct {
		Type          string         `json:"type"`
		Code          string         `json:"code"`
		Message       string         `json:"message"`
		PaymentIntent *paymentIntent `json:"payment_intent"`
	} `json:"error"`
}

// Client talks to a PaymentIntents-style HTTP API.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *commonhttp.Client
}

func NewClient(cfg config.GatewayConfig) *Client {
	timeout := config.GetDuration(cfg.Timeout)
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:  cfg.SecretKey,
		httpClient: commonhttp.NewClient(timeout),
	}
}

// CreateCharge creates and confirms a payment intent. A declined charge is a result, not an
// error: the gateway still returns the intent it created.
func (c *Client) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.AmountMinor, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("payment_method", req.PaymentMethod)
	form.Set("confirm", "true")
	form.Set("metadata[application_id]", req.ApplicationID)

	headers := map[string]string{"Authorization": "Bearer " + c.secretKey}
	if req.IdempotencyKey != "" {
		headers["Idempotency-Key"] = req.IdempotencyKey
	}

	start := time.Now()
	resp, err := c.httpClient.PostForm(ctx, c.baseURL+"/v1/payment_intents", headers, form)
	if err != nil {
		outcome := "error"
		if isTimeout(err) {
			outcome = "timeout"
			err = fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		metrics.GatewayRequestDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		return nil, err
	}
	metrics.GatewayRequestDuration.WithLabelValues(strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	if resp.OK() {
		var intent paymentIntent
		if err := json.Unmarshal(resp.Body, &intent); err != nil {
			return nil, fmt.Errorf("failed to decode payment intent: %w", err)
		}
		if intent.ID == "" || intent.Status == "" {
			return nil, fmt.Errorf("gateway returned an incomplete payment intent")
		}
		return toResult(&intent, ""), nil
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, fmt.Errorf("gateway error (status %d): %s", resp.StatusCode, string(resp.Body))
	}
	if pi := envelope.Error.PaymentIntent; pi != nil && pi.ID != "" {
		return toResult(pi, envelope.Error.Message), nil
	}
	return nil, fmt.Errorf("gateway error (status %d): %s %s",
		resp.StatusCode, envelope.Error.Type, envelope.Error.Message)
}

func toResult(pi *paymentIntent, fallbackMessage string) *ChargeResult {
	r := &ChargeResult{
		Reference:    pi.ID,
		Status:       pi.Status,
		ClientSecret: pi.ClientSecret,
		ErrorMessage: fallbackMessage,
	}
	if pi.LastPaymentError != nil && pi.LastPaymentError.Message != "" {
		r.ErrorMessage = pi.LastPaymentError.Message
	}
	return r
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
