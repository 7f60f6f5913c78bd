// Package payment validates payment codes, tracks per-session attempts and
// talks to the (injectable) gateway.
package payment

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/motyweiss/temporal-flight-saga/internal/models"
)

// CodeLength is the required payment code length.
const CodeLength = 5

// ValidateCode checks the fixed-length numeric format. Format errors are
// rejected before the gateway is ever dispatched, so they never consume an
// attempt.
func ValidateCode(code string) error {
	if len(code) != CodeLength {
		return models.ErrInvalidCodeFormat
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return models.ErrInvalidCodeFormat
		}
	}
	return nil
}

// Gateway processes a payment attempt. Production swaps in a real processor;
// tests use deterministic stubs.
type Gateway interface {
	Charge(ctx context.Context, code string, amount float64) (models.PaymentOutcome, error)
}

// Simulated declines a configurable fraction of attempts after an artificial
// processing delay.
type Simulated struct {
	latency     time.Duration
	failureRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated creates a simulated gateway. A zero seed uses the current time.
func NewSimulated(latency time.Duration, failureRate float64, seed int64) *Simulated {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulated{
		latency:     latency,
		failureRate: failureRate,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Charge waits out the processing latency, then approves or declines.
func (s *Simulated) Charge(ctx context.Context, code string, amount float64) (models.PaymentOutcome, error) {
	select {
	case <-time.After(s.latency):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	s.mu.Lock()
	declined := s.rng.Float64() < s.failureRate
	s.mu.Unlock()

	if declined {
		return models.PaymentDeclined, nil
	}
	return models.PaymentApproved, nil
}

// Stub is a scripted gateway for tests: it replays the given outcomes in
// order and keeps returning the last one once exhausted. An empty script
// approves everything.
type Stub struct {
	mu       sync.Mutex
	outcomes []models.PaymentOutcome
	calls    int
}

// NewStub creates a scripted gateway.
func NewStub(outcomes ...models.PaymentOutcome) *Stub {
	return &Stub{outcomes: outcomes}
}

func (s *Stub) Charge(ctx context.Context, code string, amount float64) (models.PaymentOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.outcomes) == 0 {
		return models.PaymentApproved, nil
	}
	i := s.calls - 1
	if i >= len(s.outcomes) {
		i = len(s.outcomes) - 1
	}
	return s.outcomes[i], nil
}

// Calls returns how many times the gateway was dispatched.
func (s *Stub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
