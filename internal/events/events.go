// Package events publishes booking session lifecycle events to Kafka. The
// worker produces them as sessions transition; the API server consumes them
// to push live seat updates to connected clients.
package events

import (
	"time"

	"github.com/motyweiss/temporal-flight-saga/internal/models"
)

// EventType identifies a session lifecycle event.
type EventType string

const (
	EventSeatsHeld        EventType = "seats_held"
	EventSeatsReleased    EventType = "seats_released"
	EventSessionConfirmed EventType = "session_confirmed"
	EventSessionExpired   EventType = "session_expired"
	EventSessionFailed    EventType = "session_failed"
)

// SessionEvent is the wire format for a session transition.
type SessionEvent struct {
	Type      EventType    `json:"type"`
	SessionID string       `json:"sessionId"`
	FlightID  string       `json:"flightId"`
	SeatIDs   []string     `json:"seatIds,omitempty"`
	OrderID   string       `json:"orderId,omitempty"`
	Phase     models.Phase `json:"phase"`
	At        time.Time    `json:"at"`
}
