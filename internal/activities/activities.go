// Package activities implements the side-effecting operations the booking
// session workflow orchestrates: seat holds, releases, captures, gateway
// charges and snapshot persistence.
package activities

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"

	"github.com/motyweiss/temporal-flight-saga/internal/events"
	"github.com/motyweiss/temporal-flight-saga/internal/inventory"
	"github.com/motyweiss/temporal-flight-saga/internal/models"
	"github.com/motyweiss/temporal-flight-saga/internal/payment"
	"github.com/motyweiss/temporal-flight-saga/internal/store"
)

// Order ids look like CF3A9C81D2: a fixed prefix plus eight characters.
const orderIDPrefix = "CF"

// Activities holds the dependencies injected into every activity.
type Activities struct {
	inventory inventory.Inventory
	store     store.SessionStore
	gateway   payment.Gateway
	publisher events.Publisher
}

// New wires the activity dependencies together.
func New(inv inventory.Inventory, st store.SessionStore, gw payment.Gateway, pub events.Publisher) *Activities {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Activities{inventory: inv, store: st, gateway: gw, publisher: pub}
}

// HoldSeatsInput requests an all-or-nothing hold of the given seats,
// replacing the session's prior held set on success.
type HoldSeatsInput struct {
	SessionID    string        `json:"sessionId"`
	FlightID     string        `json:"flightId"`
	SeatIDs      []string      `json:"seatIds"`
	PriorSeatIDs []string      `json:"priorSeatIds,omitempty"`
	TTL          time.Duration `json:"ttl"`
}

// HoldSeats holds the requested seats. On success, prior holds that are not
// part of the new set are released; on conflict nothing changes.
func (a *Activities) HoldSeats(ctx context.Context, input HoldSeatsInput) (*inventory.HoldOutcome, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Holding seats", "sessionId", input.SessionID, "seats", input.SeatIDs)

	outcome, err := a.inventory.Hold(ctx, input.FlightID, input.SeatIDs, input.SessionID, input.TTL)
	if err != nil {
		return nil, err
	}
	if !outcome.Held {
		logger.Info("Seat hold conflict", "sessionId", input.SessionID, "unavailable", outcome.Unavailable)
		return outcome, nil
	}

	if dropped := subtract(input.PriorSeatIDs, input.SeatIDs); len(dropped) > 0 {
		if err := a.inventory.Release(ctx, input.SessionID, dropped); err != nil {
			return nil, err
		}
	}

	a.publish(ctx, events.SessionEvent{
		Type:      events.EventSeatsHeld,
		SessionID: input.SessionID,
		FlightID:  input.FlightID,
		SeatIDs:   input.SeatIDs,
		Phase:     models.PhaseSeatHold,
	})
	return outcome, nil
}

// ExtendHoldsInput pushes the session's hold expiries out to cover a newly
// armed phase deadline.
type ExtendHoldsInput struct {
	SessionID string        `json:"sessionId"`
	FlightID  string        `json:"flightId"`
	SeatIDs   []string      `json:"seatIds"`
	TTL       time.Duration `json:"ttl"`
}

// ExtendHolds refreshes the session's hold expiries. Fails if any seat is no
// longer held by the session.
func (a *Activities) ExtendHolds(ctx context.Context, input ExtendHoldsInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Extending seat holds", "sessionId", input.SessionID, "seats", input.SeatIDs, "ttl", input.TTL)

	return a.inventory.Extend(ctx, input.SessionID, input.SeatIDs, input.TTL)
}

// ReleaseSeatsInput identifies the holds to compensate away and why.
type ReleaseSeatsInput struct {
	SessionID string   `json:"sessionId"`
	FlightID  string   `json:"flightId"`
	SeatIDs   []string `json:"seatIds"`
	Reason    string   `json:"reason"`
}

// ReleaseSeats returns held seats to the free pool. Idempotent; the workflow
// retries it rather than ever dropping a failed compensation.
func (a *Activities) ReleaseSeats(ctx context.Context, input ReleaseSeatsInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Releasing seats", "sessionId", input.SessionID, "seats", input.SeatIDs, "reason", input.Reason)

	if err := a.inventory.Release(ctx, input.SessionID, input.SeatIDs); err != nil {
		logger.Error("Seat release failed", "sessionId", input.SessionID, "error", err)
		return err
	}

	eventType := events.EventSeatsReleased
	switch input.Reason {
	case "expired":
		eventType = events.EventSessionExpired
	case "payment_failed", "payment_timeout":
		eventType = events.EventSessionFailed
	}
	a.publish(ctx, events.SessionEvent{
		Type:      eventType,
		SessionID: input.SessionID,
		FlightID:  input.FlightID,
		SeatIDs:   input.SeatIDs,
	})
	return nil
}

// CaptureSeatsInput converts a session's holds into a sale.
type CaptureSeatsInput struct {
	SessionID   string   `json:"sessionId"`
	FlightID    string   `json:"flightId"`
	SeatIDs     []string `json:"seatIds"`
	TotalAmount float64  `json:"totalAmount"`
}

// CaptureSeatsResult carries the generated order id.
type CaptureSeatsResult struct {
	OrderID string `json:"orderId"`
}

// CaptureSeats permanently sells the session's held seats and generates the
// order id. Fails if any seat is no longer held by the session.
func (a *Activities) CaptureSeats(ctx context.Context, input CaptureSeatsInput) (*CaptureSeatsResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Capturing seats", "sessionId", input.SessionID, "seats", input.SeatIDs)

	if err := a.inventory.Capture(ctx, input.SessionID, input.SeatIDs); err != nil {
		return nil, err
	}

	orderID := NewOrderID()
	logger.Info("Booking confirmed", "sessionId", input.SessionID, "orderId", orderID, "total", input.TotalAmount)

	order := &models.Order{
		ID:          orderID,
		SessionID:   input.SessionID,
		FlightID:    input.FlightID,
		SeatIDs:     input.SeatIDs,
		TotalAmount: input.TotalAmount,
		ConfirmedAt: time.Now(),
	}
	if err := a.store.SaveOrder(ctx, order); err != nil {
		// The seats are already sold; the snapshot remains the source of
		// truth and the order row can be rebuilt from it.
		logger.Warn("Failed to persist order", "orderId", orderID, "error", err)
	}

	a.publish(ctx, events.SessionEvent{
		Type:      events.EventSessionConfirmed,
		SessionID: input.SessionID,
		FlightID:  input.FlightID,
		SeatIDs:   input.SeatIDs,
		OrderID:   orderID,
		Phase:     models.PhaseConfirmed,
	})
	return &CaptureSeatsResult{OrderID: orderID}, nil
}

// ChargePaymentInput dispatches one gateway attempt. Format validation has
// already happened; every call here counts against the retry budget.
type ChargePaymentInput struct {
	SessionID   string  `json:"sessionId"`
	PaymentCode string  `json:"paymentCode"`
	Amount      float64 `json:"amount"`
	Attempt     int     `json:"attempt"`
}

// ChargePaymentResult reports the gateway's verdict.
type ChargePaymentResult struct {
	Outcome models.PaymentOutcome `json:"outcome"`
}

// ChargePayment calls the payment gateway.
func (a *Activities) ChargePayment(ctx context.Context, input ChargePaymentInput) (*ChargePaymentResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Charging payment", "sessionId", input.SessionID, "attempt", input.Attempt, "amount", input.Amount)

	outcome, err := a.gateway.Charge(ctx, input.PaymentCode, input.Amount)
	if err != nil {
		return nil, err
	}

	logger.Info("Gateway responded", "sessionId", input.SessionID, "attempt", input.Attempt, "outcome", outcome)
	return &ChargePaymentResult{Outcome: outcome}, nil
}

// SaveSession persists the snapshot produced by a transition.
func (a *Activities) SaveSession(ctx context.Context, snapshot models.SessionSnapshot) error {
	return a.store.Save(ctx, &snapshot)
}

func (a *Activities) publish(ctx context.Context, event events.SessionEvent) {
	event.At = time.Now()
	if err := a.publisher.Publish(ctx, event); err != nil {
		// Events feed live UI updates only; a broker hiccup must not fail
		// the booking transition itself.
		activity.GetLogger(ctx).Warn("Failed to publish session event", "type", event.Type, "error", err)
	}
}

// NewOrderID generates an order id with the CF prefix.
func NewOrderID() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return orderIDPrefix + raw[:8]
}

func subtract(from, remove []string) []string {
	keep := make(map[string]bool, len(remove))
	for _, id := range remove {
		keep[id] = true
	}
	var out []string
	for _, id := range from {
		if !keep[id] {
			out = append(out, id)
		}
	}
	return out
}
