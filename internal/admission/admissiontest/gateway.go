package admissiontest

import (
	"context"
	"fmt"
	"sync"

	"admission-workers/internal/common/gateway"
)

// StubGateway answers every charge with Status, or Err when set.
type StubGateway struct {
	mu       sync.Mutex
	Status   string
	Message  string
	Err      error
	requests []gateway.ChargeRequest
}

func NewStubGateway(status string) *StubGateway {
	return &StubGateway{Status: status}
}

func (g *StubGateway) CreateCharge(_ context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.Err != nil {
		return nil, g.Err
	}
	return &gateway.ChargeResult{
		Reference:    fmt.Sprintf("pi_test_%d", len(g.requests)),
		Status:       g.Status,
		ClientSecret: fmt.Sprintf("pi_test_%d_secret", len(g.requests)),
		ErrorMessage: g.Message,
	}, nil
}

// Requests returns the charges received so far.
func (g *StubGateway) Requests() []gateway.ChargeRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gateway.ChargeRequest(nil), g.requests...)
}
