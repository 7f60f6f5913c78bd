package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies every failure a caller can observe. Timeouts are not
// part of this taxonomy: they drive terminal transitions, they are never
// returned as command errors.
type ErrorCode string

const (
	ErrCodeNotFound             ErrorCode = "not_found"
	ErrCodeSeatConflict         ErrorCode = "seat_conflict"
	ErrCodeInvalidFormat        ErrorCode = "invalid_format"
	ErrCodeNoSeatsHeld          ErrorCode = "no_seats_held"
	ErrCodeRetryBudgetExhausted ErrorCode = "retry_budget_exhausted"
	ErrCodeSessionTerminal      ErrorCode = "session_terminal"
	ErrCodeInvalidPhase         ErrorCode = "invalid_phase"
)

// CommandError is the typed result of a rejected command. It serializes into
// session snapshots so signal-based transports can surface it to callers.
type CommandError struct {
	Code        ErrorCode `json:"code"`
	Message     string    `json:"message"`
	Unavailable []string  `json:"unavailable,omitempty"`
}

func (e *CommandError) Error() string {
	if len(e.Unavailable) > 0 {
		return fmt.Sprintf("%s: %s (seats: %s)", e.Code, e.Message, strings.Join(e.Unavailable, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewSeatConflictError lists the seats that could not be held.
func NewSeatConflictError(unavailable []string) *CommandError {
	return &CommandError{
		Code:        ErrCodeSeatConflict,
		Message:     "requested seats are not available",
		Unavailable: unavailable,
	}
}

// NewSessionTerminalError rejects a command sent after a terminal phase.
func NewSessionTerminalError(phase Phase) *CommandError {
	return &CommandError{
		Code:    ErrCodeSessionTerminal,
		Message: fmt.Sprintf("session already terminal in phase %s", phase),
	}
}

// Sentinel errors shared across stores and services.
var (
	ErrNotFound          = errors.New("not found")
	ErrSeatNotAvailable  = errors.New("seat not available")
	ErrSeatNotHeld       = errors.New("seat not held by session")
	ErrInvalidCodeFormat = errors.New("payment code must be exactly 5 digits")
)
