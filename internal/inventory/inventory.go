// Package inventory tracks seat availability and short-lived session holds.
//
// Holds are time-bounded exclusive claims; capture converts a hold into a
// permanent sale. Two sessions racing for the same seat must never both hold
// it, so implementations use per-seat compare-and-set rather than a global
// lock.
package inventory

import (
	"context"
	"time"

	"github.com/motyweiss/temporal-flight-saga/internal/models"
)

// HoldOutcome reports the result of an all-or-nothing hold request. When any
// requested seat is unavailable nothing is held and Unavailable lists the
// seats that could not be claimed.
type HoldOutcome struct {
	Held        bool              `json:"held"`
	HeldSeats   []models.HeldSeat `json:"heldSeats,omitempty"`
	Unavailable []string          `json:"unavailable,omitempty"`
	Expiry      time.Time         `json:"expiry,omitempty"`
}

// SeatPriceTotal sums the prices of the held seats.
func (o *HoldOutcome) SeatPriceTotal() float64 {
	var total float64
	for _, s := range o.HeldSeats {
		total += s.Price
	}
	return total
}

// Inventory is the seat availability store shared by all sessions.
type Inventory interface {
	// ListAvailable returns the currently free seats of a flight without
	// reserving anything. Expired holds count as free.
	ListAvailable(ctx context.Context, flightID string) ([]*models.Seat, error)

	// Hold atomically claims all requested seats for the session if and only
	// if every one of them is free or already held by the same session. On
	// conflict nothing is held.
	Hold(ctx context.Context, flightID string, seatIDs []string, sessionID string, ttl time.Duration) (*HoldOutcome, error)

	// Extend pushes out the expiry of the session's existing holds. Fails
	// with models.ErrSeatNotHeld if any seat is not held by the session, so a
	// lapsed hold that was reclaimed by a rival is never silently revived.
	Extend(ctx context.Context, sessionID string, seatIDs []string, ttl time.Duration) error

	// Release returns held seats to free. Idempotent: seats not held by the
	// caller are skipped, not an error.
	Release(ctx context.Context, sessionID string, seatIDs []string) error

	// Capture converts held seats into permanently sold seats. Fails with
	// models.ErrSeatNotHeld if any seat is not currently held by the session.
	Capture(ctx context.Context, sessionID string, seatIDs []string) error
}
