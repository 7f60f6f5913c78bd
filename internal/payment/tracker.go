package payment

import (
	"time"

	"github.com/motyweiss/temporal-flight-saga/internal/models"
)

// Tracker counts dispatched gateway attempts for one session and keeps the
// ordered attempt history. It lives inside the session aggregate, so it
// inherits the session's serialization and needs no locking of its own.
// Fields are exported for snapshot serialization.
type Tracker struct {
	Max     int                     `json:"max"`
	Count   int                     `json:"count"`
	History []models.PaymentAttempt `json:"history,omitempty"`
}

// NewTracker creates a tracker with the given attempt cap.
func NewTracker(max int) *Tracker {
	return &Tracker{Max: max}
}

// Exhausted reports whether the retry budget is used up. Once true, no
// further gateway call may be dispatched.
func (t *Tracker) Exhausted() bool {
	return t.Count >= t.Max
}

// Record registers one dispatched attempt and its outcome. Invalid-format
// submissions must never reach this point.
func (t *Tracker) Record(outcome models.PaymentOutcome, at time.Time) models.PaymentAttempt {
	t.Count++
	attempt := models.PaymentAttempt{Attempt: t.Count, Outcome: outcome, At: at}
	t.History = append(t.History, attempt)
	return attempt
}

// Remaining returns how many attempts are left.
func (t *Tracker) Remaining() int {
	if t.Count >= t.Max {
		return 0
	}
	return t.Max - t.Count
}
