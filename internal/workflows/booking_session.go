// Package workflows contains the booking session state machine.
//
// Each booking session is one workflow execution. Client commands arrive as
// signals, observation is a query, and phase deadlines are durable timers, so
// commands and timeouts form a single serialized event stream per session.
// After a restart, replay re-arms timers with their remaining time rather
// than a fresh duration.
package workflows

import (
	"time"

	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/motyweiss/temporal-flight-saga/internal/activities"
	"github.com/motyweiss/temporal-flight-saga/internal/inventory"
	"github.com/motyweiss/temporal-flight-saga/internal/models"
	"github.com/motyweiss/temporal-flight-saga/internal/payment"
)

// WorkflowName is the registration name of the booking session workflow.
const WorkflowName = "BookingSession"

const (
	// DefaultSeatHoldDuration is how long selected seats stay held.
	DefaultSeatHoldDuration = 15 * time.Minute
	// DefaultReviewDuration is the order review window.
	DefaultReviewDuration = 15 * time.Minute
	// DefaultAttemptTimeout is the per-attempt payment validation window.
	DefaultAttemptTimeout = 10 * time.Second
	// DefaultMaxAttempts caps dispatched gateway attempts per session.
	DefaultMaxAttempts = 3

	// holdGrace keeps inventory holds alive slightly past the phase deadline
	// so capture and compensation racing the deadline still own the seats.
	holdGrace = time.Minute
)

// Config fixes the session timing rules at worker start.
type Config struct {
	SeatHoldDuration time.Duration
	ReviewDuration   time.Duration
	AttemptTimeout   time.Duration
	MaxAttempts      int
	// CarryDeadline carries the seat-hold deadline into review instead of
	// arming a fresh review window.
	CarryDeadline bool
}

// DefaultConfig returns the standard booking timing rules.
func DefaultConfig() Config {
	return Config{
		SeatHoldDuration: DefaultSeatHoldDuration,
		ReviewDuration:   DefaultReviewDuration,
		AttemptTimeout:   DefaultAttemptTimeout,
		MaxAttempts:      DefaultMaxAttempts,
	}
}

// Workflows bundles the workflow definitions with their configuration.
type Workflows struct {
	cfg Config
}

// New creates the workflow set with the given configuration.
func New(cfg Config) *Workflows {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Workflows{cfg: cfg}
}

// runner holds one execution's mutable state. The workflow goroutine is the
// only writer; the query handler only reads.
type runner struct {
	cfg     Config
	logger  log.Logger
	snap    models.SessionSnapshot
	tracker *payment.Tracker
	base    float64

	timerFuture workflow.Future
	timerCancel workflow.CancelFunc
	timerGen    int
}

// BookingSession runs a booking session from creation to a terminal phase:
// SeatHold -> Review -> Payment -> Confirmed | Failed | Expired | Cancelled.
func (w *Workflows) BookingSession(ctx workflow.Context, input models.SessionInput) (*models.SessionResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Booking session started", "sessionId", input.SessionID, "flightId", input.FlightID)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    5,
		},
	})

	r := &runner{
		cfg:     w.cfg,
		logger:  logger,
		base:    input.BasePrice,
		tracker: payment.NewTracker(w.cfg.MaxAttempts),
		snap: models.SessionSnapshot{
			SessionID:      input.SessionID,
			FlightID:       input.FlightID,
			Phase:          models.PhaseCreated,
			PhaseEnteredAt: workflow.Now(ctx),
			TotalPrice:     input.BasePrice,
			LastUpdated:    workflow.Now(ctx),
		},
	}

	err := workflow.SetQueryHandler(ctx, models.QueryGetState, func() (models.SessionSnapshot, error) {
		return r.snap, nil
	})
	if err != nil {
		return nil, err
	}

	// The flight is selected at session creation, so the only Created
	// transition happens immediately: into SeatHold, with no timer until the
	// first hold changes the seat set.
	r.transition(ctx, models.PhaseSeatHold)
	r.persist(ctx)

	for !r.snap.Phase.Terminal() {
		timedOut := false
		gen := r.timerGen

		selector := workflow.NewSelector(ctx)

		selector.AddReceive(workflow.GetSignalChannel(ctx, models.SignalHoldSeats), func(c workflow.ReceiveChannel, more bool) {
			var sig models.HoldSeatsSignal
			c.Receive(ctx, &sig)
			r.handleHoldSeats(ctx, sig)
		})
		selector.AddReceive(workflow.GetSignalChannel(ctx, models.SignalConfirmSeats), func(c workflow.ReceiveChannel, more bool) {
			var sig models.CommandSignal
			c.Receive(ctx, &sig)
			r.handleConfirmSeats(ctx, sig)
		})
		selector.AddReceive(workflow.GetSignalChannel(ctx, models.SignalBackToSeats), func(c workflow.ReceiveChannel, more bool) {
			var sig models.CommandSignal
			c.Receive(ctx, &sig)
			r.handleBackToSeats(ctx, sig)
		})
		selector.AddReceive(workflow.GetSignalChannel(ctx, models.SignalConfirmReview), func(c workflow.ReceiveChannel, more bool) {
			var sig models.CommandSignal
			c.Receive(ctx, &sig)
			r.handleConfirmReview(ctx, sig)
		})
		selector.AddReceive(workflow.GetSignalChannel(ctx, models.SignalSubmitPayment), func(c workflow.ReceiveChannel, more bool) {
			var sig models.SubmitPaymentSignal
			c.Receive(ctx, &sig)
			r.handleSubmitPayment(ctx, sig)
		})
		selector.AddReceive(workflow.GetSignalChannel(ctx, models.SignalCancelSession), func(c workflow.ReceiveChannel, more bool) {
			var sig models.CommandSignal
			c.Receive(ctx, &sig)
			r.handleCancel(ctx, sig)
		})

		if r.timerFuture != nil {
			timer := r.timerFuture
			selector.AddFuture(timer, func(f workflow.Future) {
				// A replaced or cancelled timer completes with an error;
				// only a clean fire of the current generation counts.
				if f.Get(ctx, nil) == nil && gen == r.timerGen {
					timedOut = true
				}
			})
		}

		// Wake up on workflow cancellation even when no timer is armed.
		selector.AddReceive(ctx.Done(), func(c workflow.ReceiveChannel, more bool) {})

		selector.Select(ctx)

		if timedOut {
			r.handleTimeout(ctx)
		}

		if ctx.Err() != nil {
			// Compensation still has to run after cancellation, so it gets a
			// disconnected context.
			cleanupCtx, _ := workflow.NewDisconnectedContext(ctx)
			r.expire(cleanupCtx, models.PhaseCancelled, "cancelled")
			break
		}
	}

	result := &models.SessionResult{
		Phase:         r.snap.Phase,
		OrderID:       r.snap.OrderID,
		FailureReason: r.snap.FailureReason,
	}
	logger.Info("Booking session finished", "sessionId", input.SessionID, "phase", result.Phase, "orderId", result.OrderID)
	return result, nil
}

// arm replaces the session's timer; arming implicitly cancels any prior one.
func (r *runner) arm(ctx workflow.Context, d time.Duration) {
	r.disarm()
	timerCtx, cancel := workflow.WithCancel(ctx)
	r.timerFuture = workflow.NewTimer(timerCtx, d)
	r.timerCancel = cancel
	r.timerGen++
	r.snap.Deadline = workflow.Now(ctx).Add(d)
}

func (r *runner) disarm() {
	if r.timerCancel != nil {
		r.timerCancel()
	}
	r.timerFuture = nil
	r.timerCancel = nil
	r.timerGen++
	r.snap.Deadline = time.Time{}
}

func (r *runner) transition(ctx workflow.Context, phase models.Phase) {
	r.snap.Phase = phase
	r.snap.PhaseEnteredAt = workflow.Now(ctx)
	r.snap.LastUpdated = workflow.Now(ctx)
	if phase.Terminal() {
		r.disarm()
	}
}

func (r *runner) persist(ctx workflow.Context) {
	if err := workflow.ExecuteActivity(ctx, "SaveSession", r.snap).Get(ctx, nil); err != nil {
		r.logger.Error("Failed to persist session snapshot", "sessionId", r.snap.SessionID, "error", err)
	}
}

// applied marks a command as processed; rejected records its typed error.
func (r *runner) applied(ctx workflow.Context, commandID string) {
	r.snap.LastCommandID = commandID
	r.snap.LastError = nil
	r.snap.LastUpdated = workflow.Now(ctx)
}

func (r *runner) rejected(ctx workflow.Context, commandID string, cmdErr *models.CommandError) {
	r.snap.LastCommandID = commandID
	r.snap.LastError = cmdErr
	r.snap.LastUpdated = workflow.Now(ctx)
	r.persist(ctx)
}

// requirePhase rejects the command unless the session is in the wanted phase.
func (r *runner) requirePhase(ctx workflow.Context, commandID string, want models.Phase) bool {
	if r.snap.Phase == want {
		return true
	}
	if r.snap.Phase.Terminal() {
		r.rejected(ctx, commandID, models.NewSessionTerminalError(r.snap.Phase))
	} else {
		r.rejected(ctx, commandID, &models.CommandError{
			Code:    models.ErrCodeInvalidPhase,
			Message: "command not valid in phase " + string(r.snap.Phase),
		})
	}
	return false
}

func (r *runner) handleHoldSeats(ctx workflow.Context, sig models.HoldSeatsSignal) {
	if !r.requirePhase(ctx, sig.CommandID, models.PhaseSeatHold) {
		return
	}

	var outcome inventory.HoldOutcome
	err := workflow.ExecuteActivity(ctx, "HoldSeats", activities.HoldSeatsInput{
		SessionID:    r.snap.SessionID,
		FlightID:     r.snap.FlightID,
		SeatIDs:      sig.SeatIDs,
		PriorSeatIDs: r.snap.SeatIDs(),
		TTL:          r.cfg.SeatHoldDuration,
	}).Get(ctx, &outcome)
	if err != nil {
		r.logger.Error("Seat hold activity failed", "sessionId", r.snap.SessionID, "error", err)
		r.rejected(ctx, sig.CommandID, models.NewSeatConflictError(sig.SeatIDs))
		return
	}
	if !outcome.Held {
		// Previously held seats and the running timer stay untouched.
		r.rejected(ctx, sig.CommandID, models.NewSeatConflictError(outcome.Unavailable))
		return
	}

	r.snap.HeldSeats = outcome.HeldSeats
	r.recomputeTotal()
	r.arm(ctx, r.cfg.SeatHoldDuration)
	r.applied(ctx, sig.CommandID)
	r.persist(ctx)
}

func (r *runner) handleConfirmSeats(ctx workflow.Context, sig models.CommandSignal) {
	if !r.requirePhase(ctx, sig.CommandID, models.PhaseSeatHold) {
		return
	}
	if len(r.snap.HeldSeats) == 0 {
		r.rejected(ctx, sig.CommandID, &models.CommandError{
			Code:    models.ErrCodeNoSeatsHeld,
			Message: "cannot confirm without held seats",
		})
		return
	}

	r.transition(ctx, models.PhaseReview)
	if r.cfg.CarryDeadline && !r.snap.Deadline.IsZero() {
		remaining := r.snap.Deadline.Sub(workflow.Now(ctx))
		if remaining < 0 {
			remaining = 0
		}
		r.arm(ctx, remaining)
	} else {
		r.arm(ctx, r.cfg.ReviewDuration)
	}
	r.extendHolds(ctx)
	r.applied(ctx, sig.CommandID)
	r.persist(ctx)
}

func (r *runner) handleBackToSeats(ctx workflow.Context, sig models.CommandSignal) {
	if !r.requirePhase(ctx, sig.CommandID, models.PhaseReview) {
		return
	}

	r.releaseHeld(ctx, "reselect")
	r.snap.HeldSeats = nil
	r.recomputeTotal()
	r.transition(ctx, models.PhaseSeatHold)
	r.arm(ctx, r.cfg.SeatHoldDuration)
	r.applied(ctx, sig.CommandID)
	r.persist(ctx)
}

func (r *runner) handleConfirmReview(ctx workflow.Context, sig models.CommandSignal) {
	if !r.requirePhase(ctx, sig.CommandID, models.PhaseReview) {
		return
	}

	r.transition(ctx, models.PhasePayment)
	r.arm(ctx, r.cfg.AttemptTimeout)
	r.extendHolds(ctx)
	r.applied(ctx, sig.CommandID)
	r.persist(ctx)
}

func (r *runner) handleSubmitPayment(ctx workflow.Context, sig models.SubmitPaymentSignal) {
	if !r.requirePhase(ctx, sig.CommandID, models.PhasePayment) {
		return
	}

	if err := payment.ValidateCode(sig.PaymentCode); err != nil {
		// Format errors never reach the gateway and never consume an
		// attempt; the running attempt timer keeps its deadline.
		r.rejected(ctx, sig.CommandID, &models.CommandError{
			Code:    models.ErrCodeInvalidFormat,
			Message: err.Error(),
		})
		return
	}
	if r.tracker.Exhausted() {
		r.rejected(ctx, sig.CommandID, &models.CommandError{
			Code:    models.ErrCodeRetryBudgetExhausted,
			Message: "no payment attempts remaining",
		})
		return
	}

	paymentCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: r.cfg.AttemptTimeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	charge := workflow.ExecuteActivity(paymentCtx, "ChargePayment", activities.ChargePaymentInput{
		SessionID:   r.snap.SessionID,
		PaymentCode: sig.PaymentCode,
		Amount:      r.snap.TotalPrice,
		Attempt:     r.tracker.Count + 1,
	})

	// The attempt timer keeps running while the gateway call is in flight.
	// If it fires first the session fails and the late gateway result is
	// discarded.
	var result activities.ChargePaymentResult
	var chargeErr error
	timedOut := false
	gen := r.timerGen

	race := workflow.NewSelector(ctx)
	race.AddFuture(charge, func(f workflow.Future) {
		chargeErr = f.Get(ctx, &result)
	})
	if r.timerFuture != nil {
		race.AddFuture(r.timerFuture, func(f workflow.Future) {
			if f.Get(ctx, nil) == nil && gen == r.timerGen {
				timedOut = true
			}
		})
	}
	race.Select(ctx)

	if timedOut {
		r.tracker.Record(models.PaymentDeclined, workflow.Now(ctx))
		r.snap.PaymentAttempts = r.tracker.Count
		r.snap.AttemptHistory = r.tracker.History
		r.snap.LastCommandID = sig.CommandID
		r.fail(ctx, "payment window expired", "payment_timeout")
		return
	}

	outcome := result.Outcome
	if chargeErr != nil {
		r.logger.Warn("Payment attempt errored, treating as declined", "sessionId", r.snap.SessionID, "error", chargeErr)
		outcome = models.PaymentDeclined
	}

	r.tracker.Record(outcome, workflow.Now(ctx))
	r.snap.PaymentAttempts = r.tracker.Count
	r.snap.AttemptHistory = r.tracker.History

	if outcome == models.PaymentApproved {
		var captured activities.CaptureSeatsResult
		err := workflow.ExecuteActivity(ctx, "CaptureSeats", activities.CaptureSeatsInput{
			SessionID:   r.snap.SessionID,
			FlightID:    r.snap.FlightID,
			SeatIDs:     r.snap.SeatIDs(),
			TotalAmount: r.snap.TotalPrice,
		}).Get(ctx, &captured)
		if err != nil {
			// The holds are gone (expired or lost); the approval cannot be
			// honored.
			r.logger.Error("Seat capture failed after approval", "sessionId", r.snap.SessionID, "error", err)
			r.snap.LastCommandID = sig.CommandID
			r.fail(ctx, "held seats could not be captured", "capture_failed")
			return
		}

		r.snap.OrderID = captured.OrderID
		r.transition(ctx, models.PhaseConfirmed)
		r.applied(ctx, sig.CommandID)
		r.persist(ctx)
		return
	}

	if r.tracker.Exhausted() {
		r.snap.LastCommandID = sig.CommandID
		r.snap.LastError = &models.CommandError{
			Code:    models.ErrCodeRetryBudgetExhausted,
			Message: "payment declined and no attempts remain",
		}
		r.fail(ctx, "payment declined", "payment_failed")
		return
	}

	// Declined with budget remaining: fresh attempt window, wait for the
	// next code.
	r.logger.Info("Payment declined", "sessionId", r.snap.SessionID,
		"attempt", r.tracker.Count, "remaining", r.tracker.Remaining())
	r.arm(ctx, r.cfg.AttemptTimeout)
	r.extendHolds(ctx)
	r.applied(ctx, sig.CommandID)
	r.persist(ctx)
}

func (r *runner) handleCancel(ctx workflow.Context, sig models.CommandSignal) {
	if r.snap.Phase.Terminal() {
		r.rejected(ctx, sig.CommandID, models.NewSessionTerminalError(r.snap.Phase))
		return
	}
	r.snap.LastCommandID = sig.CommandID
	r.expire(ctx, models.PhaseCancelled, "cancelled")
}

func (r *runner) handleTimeout(ctx workflow.Context) {
	switch r.snap.Phase {
	case models.PhaseSeatHold, models.PhaseReview:
		r.expire(ctx, models.PhaseExpired, "expired")
	case models.PhasePayment:
		r.fail(ctx, "payment window expired", "payment_timeout")
	}
}

// expire moves the session to a terminal phase after releasing its holds.
func (r *runner) expire(ctx workflow.Context, phase models.Phase, reason string) {
	r.releaseHeld(ctx, reason)
	r.snap.FailureReason = reason
	r.transition(ctx, phase)
	r.persist(ctx)
}

func (r *runner) fail(ctx workflow.Context, reason, releaseReason string) {
	r.releaseHeld(ctx, releaseReason)
	r.snap.FailureReason = reason
	r.transition(ctx, models.PhaseFailed)
	r.persist(ctx)
}

// releaseHeld compensates outstanding holds. The release activity is retried
// by policy; a compensation failure is logged, never swallowed.
func (r *runner) releaseHeld(ctx workflow.Context, reason string) {
	if len(r.snap.HeldSeats) == 0 {
		return
	}
	err := workflow.ExecuteActivity(ctx, "ReleaseSeats", activities.ReleaseSeatsInput{
		SessionID: r.snap.SessionID,
		FlightID:  r.snap.FlightID,
		SeatIDs:   r.snap.SeatIDs(),
		Reason:    reason,
	}).Get(ctx, nil)
	if err != nil {
		r.logger.Error("Compensating seat release failed", "sessionId", r.snap.SessionID, "error", err)
	}
}

// extendHolds refreshes the inventory hold on every held seat to cover the
// freshly armed deadline plus a grace window, so a rival cannot reclaim the
// seats while this session is still inside its phase.
func (r *runner) extendHolds(ctx workflow.Context) {
	if len(r.snap.HeldSeats) == 0 || r.snap.Deadline.IsZero() {
		return
	}
	ttl := r.snap.Deadline.Sub(workflow.Now(ctx)) + holdGrace
	err := workflow.ExecuteActivity(ctx, "ExtendHolds", activities.ExtendHoldsInput{
		SessionID: r.snap.SessionID,
		FlightID:  r.snap.FlightID,
		SeatIDs:   r.snap.SeatIDs(),
		TTL:       ttl,
	}).Get(ctx, nil)
	if err != nil {
		r.logger.Error("Seat hold extension failed", "sessionId", r.snap.SessionID, "error", err)
	}
}

// recomputeTotal rebuilds the total from the flight's base price plus the
// current held set. Totals are never cached across a reservation change.
func (r *runner) recomputeTotal() {
	total := r.base
	for _, s := range r.snap.HeldSeats {
		total += s.Price
	}
	r.snap.TotalPrice = total
}
