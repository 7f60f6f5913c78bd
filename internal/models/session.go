package models

import "time"

// Phase is the current step of a booking session.
type Phase string

const (
	PhaseCreated   Phase = "created"
	PhaseSeatHold  Phase = "seat_hold"
	PhaseReview    Phase = "review"
	PhasePayment   Phase = "payment"
	PhaseConfirmed Phase = "confirmed"
	PhaseFailed    Phase = "failed"
	PhaseExpired   Phase = "expired"
	PhaseCancelled Phase = "cancelled"
)

// Terminal reports whether no further transitions can occur from p.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseConfirmed, PhaseFailed, PhaseExpired, PhaseCancelled:
		return true
	}
	return false
}

// PaymentOutcome is the result of a single dispatched gateway attempt.
type PaymentOutcome string

const (
	PaymentApproved PaymentOutcome = "approved"
	PaymentDeclined PaymentOutcome = "declined"
)

// PaymentAttempt is one entry of a session's ordered attempt history.
type PaymentAttempt struct {
	Attempt int            `json:"attempt"`
	Outcome PaymentOutcome `json:"outcome"`
	At      time.Time      `json:"at"`
}

// HeldSeat is a seat currently held by a session, with its price at hold time
// carried for display; totals are always recomputed from the full set.
type HeldSeat struct {
	SeatID string    `json:"seatId"`
	Class  SeatClass `json:"class"`
	Price  float64   `json:"price"`
}

// SessionSnapshot is the externally visible state of a booking session.
// The workflow is the only writer; everything else reads.
type SessionSnapshot struct {
	SessionID       string           `json:"sessionId"`
	FlightID        string           `json:"flightId"`
	Phase           Phase            `json:"phase"`
	PhaseEnteredAt  time.Time        `json:"phaseEnteredAt"`
	Deadline        time.Time        `json:"deadline,omitempty"`
	HeldSeats       []HeldSeat       `json:"heldSeats"`
	PaymentAttempts int              `json:"paymentAttempts"`
	AttemptHistory  []PaymentAttempt `json:"attemptHistory,omitempty"`
	TotalPrice      float64          `json:"totalPrice"`
	OrderID         string           `json:"orderId,omitempty"`
	LastCommandID   string           `json:"lastCommandId,omitempty"`
	LastError       *CommandError    `json:"lastError,omitempty"`
	FailureReason   string           `json:"failureReason,omitempty"`
	LastUpdated     time.Time        `json:"lastUpdated"`
}

// SeatIDs returns the ids of the snapshot's held seats.
func (s *SessionSnapshot) SeatIDs() []string {
	ids := make([]string, len(s.HeldSeats))
	for i, h := range s.HeldSeats {
		ids[i] = h.SeatID
	}
	return ids
}

// SessionStatusResponse is what the API returns to polling clients.
// RemainingSeconds is derived from the stored deadline at read time, never
// from a client-side countdown.
type SessionStatusResponse struct {
	Session          *SessionSnapshot `json:"session"`
	RemainingSeconds int              `json:"remainingSeconds"`
	Message          string           `json:"message,omitempty"`
}

// Order is created only on successful confirmation and immutable afterwards.
type Order struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	FlightID    string    `json:"flightId"`
	SeatIDs     []string  `json:"seatIds"`
	TotalAmount float64   `json:"totalAmount"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

// Signal names for session commands.
const (
	SignalHoldSeats     = "hold-seats"
	SignalConfirmSeats  = "confirm-seats"
	SignalBackToSeats   = "back-to-seats"
	SignalConfirmReview = "confirm-review"
	SignalSubmitPayment = "submit-payment"
	SignalCancelSession = "cancel-session"
)

// QueryGetState returns the current SessionSnapshot.
const QueryGetState = "get_state"

// HoldSeatsSignal requests an all-or-nothing hold on the given seats.
type HoldSeatsSignal struct {
	CommandID string   `json:"commandId"`
	SeatIDs   []string `json:"seatIds"`
}

// SubmitPaymentSignal carries a 5-digit payment code.
type SubmitPaymentSignal struct {
	CommandID   string `json:"commandId"`
	PaymentCode string `json:"paymentCode"`
}

// CommandSignal is used for commands that carry no payload beyond identity.
type CommandSignal struct {
	CommandID string `json:"commandId"`
}

// SessionInput starts a booking session workflow.
type SessionInput struct {
	SessionID string  `json:"sessionId"`
	FlightID  string  `json:"flightId"`
	BasePrice float64 `json:"basePrice"`
}

// SessionResult is the workflow's return value.
type SessionResult struct {
	Phase         Phase  `json:"phase"`
	OrderID       string `json:"orderId,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`
}

// Request bodies for the REST surface.
type CreateSessionRequest struct {
	FlightID string `json:"flightId"`
}

type HoldSeatsRequest struct {
	SeatIDs []string `json:"seatIds"`
}

type PaymentRequest struct {
	PaymentCode string `json:"paymentCode"`
}
