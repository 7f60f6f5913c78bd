package workflows

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"github.com/motyweiss/temporal-flight-saga/internal/activities"
	"github.com/motyweiss/temporal-flight-saga/internal/catalog"
	"github.com/motyweiss/temporal-flight-saga/internal/events"
	"github.com/motyweiss/temporal-flight-saga/internal/inventory"
	"github.com/motyweiss/temporal-flight-saga/internal/models"
	"github.com/motyweiss/temporal-flight-saga/internal/payment"
	"github.com/motyweiss/temporal-flight-saga/internal/store"
)

type BookingSessionTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
	wfs *Workflows
}

func (s *BookingSessionTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	// String-name OnActivity mocks require the activity types to be
	// registered with the environment; the nil dependencies are never
	// exercised because every dispatched activity is mocked (or
	// re-registered) per test.
	s.env.RegisterActivity(activities.New(nil, nil, nil, nil))
	s.wfs = New(DefaultConfig())
}

func (s *BookingSessionTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func TestBookingSessionTestSuite(t *testing.T) {
	suite.Run(t, new(BookingSessionTestSuite))
}

func (s *BookingSessionTestSuite) sessionInput() models.SessionInput {
	return models.SessionInput{
		SessionID: "sess-test",
		FlightID:  "FL001",
		BasePrice: 599,
	}
}

func heldOutcome(seats ...models.HeldSeat) *inventory.HoldOutcome {
	return &inventory.HoldOutcome{
		Held:      true,
		HeldSeats: seats,
		Expiry:    time.Now().Add(DefaultSeatHoldDuration),
	}
}

func (s *BookingSessionTestSuite) signalAt(d time.Duration, name string, payload interface{}) {
	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(name, payload)
	}, d)
}

func (s *BookingSessionTestSuite) queryState() models.SessionSnapshot {
	val, err := s.env.QueryWorkflow(models.QueryGetState)
	s.Require().NoError(err)
	var snap models.SessionSnapshot
	s.Require().NoError(val.Get(&snap))
	return snap
}

func (s *BookingSessionTestSuite) TestDefaults() {
	s.Equal(15*time.Minute, DefaultSeatHoldDuration)
	s.Equal(15*time.Minute, DefaultReviewDuration)
	s.Equal(10*time.Second, DefaultAttemptTimeout)
	s.Equal(3, DefaultMaxAttempts)
}

func (s *BookingSessionTestSuite) TestHappyPath() {
	s.env.OnActivity("SaveSession", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("ExtendHolds", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("HoldSeats", mock.Anything, mock.Anything).
		Return(heldOutcome(models.HeldSeat{SeatID: "FL001-1A", Class: models.SeatClassBusiness, Price: 150}), nil)
	s.env.OnActivity("ChargePayment", mock.Anything, mock.Anything).
		Return(&activities.ChargePaymentResult{Outcome: models.PaymentApproved}, nil)
	s.env.OnActivity("CaptureSeats", mock.Anything, mock.Anything).
		Return(&activities.CaptureSeatsResult{OrderID: "CF3A9C81D2"}, nil)

	s.signalAt(1*time.Second, models.SignalHoldSeats, models.HoldSeatsSignal{CommandID: "c1", SeatIDs: []string{"FL001-1A"}})
	s.signalAt(2*time.Second, models.SignalConfirmSeats, models.CommandSignal{CommandID: "c2"})
	s.signalAt(3*time.Second, models.SignalConfirmReview, models.CommandSignal{CommandID: "c3"})
	s.signalAt(4*time.Second, models.SignalSubmitPayment, models.SubmitPaymentSignal{CommandID: "c4", PaymentCode: "12345"})

	s.env.ExecuteWorkflow(s.wfs.BookingSession, s.sessionInput())

	s.True(s.env.IsWorkflowCompleted())
	var result *models.SessionResult
	s.Require().NoError(s.env.GetWorkflowResult(&result))
	s.Equal(models.PhaseConfirmed, result.Phase)
	s.Equal("CF3A9C81D2", result.OrderID)
	s.Empty(result.FailureReason)

	snap := s.queryState()
	s.Equal(models.PhaseConfirmed, snap.Phase)
	s.Equal(599.0+150.0, snap.TotalPrice)
	s.Equal(1, snap.PaymentAttempts)
	s.Require().Len(snap.AttemptHistory, 1)
	s.Equal(models.PaymentApproved, snap.AttemptHistory[0].Outcome)
	s.Equal("c4", snap.LastCommandID)
	s.Nil(snap.LastError)
}

func (s *BookingSessionTestSuite) TestPaymentDeclinedThenApproved() {
	s.env.OnActivity("SaveSession", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("ExtendHolds", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("HoldSeats", mock.Anything, mock.Anything).
		Return(heldOutcome(models.HeldSeat{SeatID: "FL001-4C", Class: models.SeatClassEconomy, Price: 50}), nil)
	s.env.OnActivity("ChargePayment", mock.Anything, mock.Anything).
		Return(&activities.ChargePaymentResult{Outcome: models.PaymentDeclined}, nil).Twice()
	s.env.OnActivity("ChargePayment", mock.Anything, mock.Anything).
		Return(&activities.ChargePaymentResult{Outcome: models.PaymentApproved}, nil).Once()
	s.env.OnActivity("CaptureSeats", mock.Anything, mock.Anything).
		Return(&activities.CaptureSeatsResult{OrderID: "CF00000001"}, nil)

	s.signalAt(1*time.Second, models.SignalHoldSeats, models.HoldSeatsSignal{CommandID: "c1", SeatIDs: []string{"FL001-4C"}})
	s.signalAt(2*time.Second, models.SignalConfirmSeats, models.CommandSignal{CommandID: "c2"})
	s.signalAt(3*time.Second, models.SignalConfirmReview, models.CommandSignal{CommandID: "c3"})
	s.signalAt(4*time.Second, models.SignalSubmitPayment, models.SubmitPaymentSignal{CommandID: "c4", PaymentCode: "11111"})
	s.signalAt(6*time.Second, models.SignalSubmitPayment, models.SubmitPaymentSignal{CommandID: "c5", PaymentCode: "22222"})
	s.signalAt(8*time.Second, models.SignalSubmitPayment, models.SubmitPaymentSignal{CommandID: "c6", PaymentCode: "33333"})

	s.env.ExecuteWorkflow(s.wfs.BookingSession, s.sessionInput())

	s.True(s.env.IsWorkflowCompleted())
	var result *models.SessionResult
	s.Require().NoError(s.env.GetWorkflowResult(&result))
	s.Equal(models.PhaseConfirmed, result.Phase)

	snap := s.queryState()
	s.Equal(3, snap.PaymentAttempts)
	s.Require().Len(snap.AttemptHistory, 3)
	s.Equal(models.PaymentDeclined, snap.AttemptHistory[0].Outcome)
	s.Equal(models.PaymentDeclined, snap.AttemptHistory[1].Outcome)
	s.Equal(models.PaymentApproved, snap.AttemptHistory[2].Outcome)
}

func (s *BookingSessionTestSuite) TestPaymentBudgetExhausted() {
	s.env.OnActivity("SaveSession", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("ExtendHolds", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("HoldSeats", mock.Anything, mock.Anything).
		Return(heldOutcome(models.HeldSeat{SeatID: "FL001-4C", Class: models.SeatClassEconomy, Price: 50}), nil)
	s.env.OnActivity("ChargePayment", mock.Anything, mock.Anything).
		Return(&activities.ChargePaymentResult{Outcome: models.PaymentDeclined}, nil).Times(3)
	s.env.OnActivity("ReleaseSeats", mock.Anything, mock.Anything).Return(nil)

	s.signalAt(1*time.Second, models.SignalHoldSeats, models.HoldSeatsSignal{CommandID: "c1", SeatIDs: []string{"FL001-4C"}})
	s.signalAt(2*time.Second, models.SignalConfirmSeats, models.CommandSignal{CommandID: "c2"})
	s.signalAt(3*time.Second, models.SignalConfirmReview, models.CommandSignal{CommandID: "c3"})
	s.signalAt(4*time.Second, models.SignalSubmitPayment, models.SubmitPaymentSignal{CommandID: "c4", PaymentCode: "11111"})
	s.signalAt(6*time.Second, models.SignalSubmitPayment, models.SubmitPaymentSignal{CommandID: "c5", PaymentCode: "22222"})
	s.signalAt(8*time.Second, models.SignalSubmitPayment, models.SubmitPaymentSignal{CommandID: "c6", PaymentCode: "33333"})

	s.env.ExecuteWorkflow(s.wfs.BookingSession, s.sessionInput())

	s.True(s.env.IsWorkflowCompleted())
	var result *models.SessionResult
	s.Require().NoError(s.env.GetWorkflowResult(&result))
	s.Equal(models.PhaseFailed, result.Phase)
	s.Equal("payment declined", result.FailureReason)
	s.Empty(result.OrderID)

	snap := s.queryState()
	s.Equal(3, snap.PaymentAttempts)
	s.Require().NotNil(snap.LastError)
	s.Equal(models.ErrCodeRetryBudgetExhausted, snap.LastError.Code)
}

func (s *BookingSessionTestSuite) TestInvalidPaymentCodeConsumesNoAttempt() {
	s.env.OnActivity("SaveSession", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("ExtendHolds", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("HoldSeats", mock.Anything, mock.Anything).
		Return(heldOutcome(models.HeldSeat{SeatID: "FL001-4C", Class: models.SeatClassEconomy, Price: 50}), nil)
	s.env.OnActivity("ChargePayment", mock.Anything, mock.Anything).
		Return(&activities.ChargePaymentResult{Outcome: models.PaymentApproved}, nil).Once()
	s.env.OnActivity("CaptureSeats", mock.Anything, mock.Anything).
		Return(&activities.CaptureSeatsResult{OrderID: "CF00000002"}, nil)

	s.signalAt(1*time.Second, models.SignalHoldSeats, models.HoldSeatsSignal{CommandID: "c1", SeatIDs: []string{"FL001-4C"}})
	s.signalAt(2*time.Second, models.SignalConfirmSeats, models.CommandSignal{CommandID: "c2"})
	s.signalAt(3*time.Second, models.SignalConfirmReview, models.CommandSignal{CommandID: "c3"})
	s.signalAt(4*time.Second, models.SignalSubmitPayment, models.SubmitPaymentSignal{CommandID: "c4", PaymentCode: "12a45"})

	var afterInvalid models.SessionSnapshot
	s.env.RegisterDelayedCallback(func() {
		afterInvalid = s.queryState()
	}, 5*time.Second)

	s.signalAt(6*time.Second, models.SignalSubmitPayment, models.SubmitPaymentSignal{CommandID: "c5", PaymentCode: "12345"})

	s.env.ExecuteWorkflow(s.wfs.BookingSession, s.sessionInput())

	s.True(s.env.IsWorkflowCompleted())

	s.Equal("c4", afterInvalid.LastCommandID)
	s.Require().NotNil(afterInvalid.LastError)
	s.Equal(models.ErrCodeInvalidFormat, afterInvalid.LastError.Code)
	s.Equal(models.PhasePayment, afterInvalid.Phase)
	s.Equal(0, afterInvalid.PaymentAttempts)

	snap := s.queryState()
	s.Equal(models.PhaseConfirmed, snap.Phase)
	s.Equal(1, snap.PaymentAttempts)
}

func (s *BookingSessionTestSuite) TestSeatConflictKeepsHoldAndDeadline() {
	s.env.OnActivity("SaveSession", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("HoldSeats", mock.Anything, mock.Anything).
		Return(heldOutcome(models.HeldSeat{SeatID: "FL001-1A", Class: models.SeatClassBusiness, Price: 150}), nil).Once()
	s.env.OnActivity("HoldSeats", mock.Anything, mock.Anything).
		Return(&inventory.HoldOutcome{Held: false, Unavailable: []string{"FL001-1B"}}, nil).Once()
	s.env.OnActivity("ReleaseSeats", mock.Anything, mock.Anything).Return(nil)

	s.signalAt(1*time.Second, models.SignalHoldSeats, models.HoldSeatsSignal{CommandID: "c1", SeatIDs: []string{"FL001-1A"}})
	s.signalAt(2*time.Second, models.SignalHoldSeats, models.HoldSeatsSignal{CommandID: "c2", SeatIDs: []string{"FL001-1A", "FL001-1B"}})

	var firstDeadline time.Time
	s.env.RegisterDelayedCallback(func() {
		firstDeadline = s.queryState().Deadline
	}, 1500*time.Millisecond)

	var afterConflict models.SessionSnapshot
	s.env.RegisterDelayedCallback(func() {
		afterConflict = s.queryState()
	}, 3*time.Second)

	// No further input; the untouched seat-hold deadline expires the session.
	s.env.ExecuteWorkflow(s.wfs.BookingSession, s.sessionInput())

	s.True(s.env.IsWorkflowCompleted())

	s.Equal(models.PhaseSeatHold, afterConflict.Phase)
	s.Equal([]string{"FL001-1A"}, afterConflict.SeatIDs())
	s.Equal(firstDeadline, afterConflict.Deadline, "a rejected hold must not move the deadline")
	s.Require().NotNil(afterConflict.LastError)
	s.Equal(models.ErrCodeSeatConflict, afterConflict.LastError.Code)
	s.Equal([]string{"FL001-1B"}, afterConflict.LastError.Unavailable)

	var result *models.SessionResult
	s.Require().NoError(s.env.GetWorkflowResult(&result))
	s.Equal(models.PhaseExpired, result.Phase)
	s.Equal("expired", result.FailureReason)
}

func (s *BookingSessionTestSuite) TestConfirmSeatsWithoutHold() {
	s.env.OnActivity("SaveSession", mock.Anything, mock.Anything).Return(nil)

	s.signalAt(1*time.Second, models.SignalConfirmSeats, models.CommandSignal{CommandID: "c1"})

	var rejected models.SessionSnapshot
	s.env.RegisterDelayedCallback(func() {
		rejected = s.queryState()
	}, 2*time.Second)

	s.signalAt(3*time.Second, models.SignalCancelSession, models.CommandSignal{CommandID: "c2"})

	s.env.ExecuteWorkflow(s.wfs.BookingSession, s.sessionInput())

	s.True(s.env.IsWorkflowCompleted())
	s.Equal(models.PhaseSeatHold, rejected.Phase)
	s.Require().NotNil(rejected.LastError)
	s.Equal(models.ErrCodeNoSeatsHeld, rejected.LastError.Code)

	var result *models.SessionResult
	s.Require().NoError(s.env.GetWorkflowResult(&result))
	s.Equal(models.PhaseCancelled, result.Phase)
	s.Equal("cancelled", result.FailureReason)
}

func (s *BookingSessionTestSuite) TestCommandInWrongPhase() {
	s.env.OnActivity("SaveSession", mock.Anything, mock.Anything).Return(nil)

	// Payment submission while still selecting seats.
	s.signalAt(1*time.Second, models.SignalSubmitPayment, models.SubmitPaymentSignal{CommandID: "c1", PaymentCode: "12345"})

	var rejected models.SessionSnapshot
	s.env.RegisterDelayedCallback(func() {
		rejected = s.queryState()
	}, 2*time.Second)

	s.signalAt(3*time.Second, models.SignalCancelSession, models.CommandSignal{CommandID: "c2"})

	s.env.ExecuteWorkflow(s.wfs.BookingSession, s.sessionInput())

	s.True(s.env.IsWorkflowCompleted())
	s.Equal("c1", rejected.LastCommandID)
	s.Require().NotNil(rejected.LastError)
	s.Equal(models.ErrCodeInvalidPhase, rejected.LastError.Code)
	s.Equal(0, rejected.PaymentAttempts)
}

func (s *BookingSessionTestSuite) TestSeatHoldExpiry() {
	s.env.OnActivity("SaveSession", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("HoldSeats", mock.Anything, mock.Anything).
		Return(heldOutcome(models.HeldSeat{SeatID: "FL001-4C", Class: models.SeatClassEconomy, Price: 50}), nil)
	s.env.OnActivity("ReleaseSeats", mock.Anything, mock.Anything).Return(nil)

	s.signalAt(1*time.Second, models.SignalHoldSeats, models.HoldSeatsSignal{CommandID: "c1", SeatIDs: []string{"FL001-4C"}})

	s.env.ExecuteWorkflow(s.wfs.BookingSession, s.sessionInput())

	s.True(s.env.IsWorkflowCompleted())
	var result *models.SessionResult
	s.Require().NoError(s.env.GetWorkflowResult(&result))
	s.Equal(models.PhaseExpired, result.Phase)
	s.Equal("expired", result.FailureReason)

	snap := s.queryState()
	s.True(snap.Deadline.IsZero(), "terminal sessions carry no deadline")
}

func (s *BookingSessionTestSuite) TestReviewExpiry() {
	s.env.OnActivity("SaveSession", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("ExtendHolds", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("HoldSeats", mock.Anything, mock.Anything).
		Return(heldOutcome(models.HeldSeat{SeatID: "FL001-4C", Class: models.SeatClassEconomy, Price: 50}), nil)
	s.env.OnActivity("ReleaseSeats", mock.Anything, mock.Anything).Return(nil)

	s.signalAt(1*time.Second, models.SignalHoldSeats, models.HoldSeatsSignal{CommandID: "c1", SeatIDs: []string{"FL001-4C"}})
	s.signalAt(2*time.Second, models.SignalConfirmSeats, models.CommandSignal{CommandID: "c2"})

	s.env.ExecuteWorkflow(s.wfs.BookingSession, s.sessionInput())

	s.True(s.env.IsWorkflowCompleted())
	var result *models.SessionResult
	s.Require().NoError(s.env.GetWorkflowResult(&result))
	s.Equal(models.PhaseExpired, result.Phase)
}

func (s *BookingSessionTestSuite) TestPaymentWindowExpiresWithoutSubmission() {
	s.env.OnActivity("SaveSession", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("ExtendHolds", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("HoldSeats", mock.Anything, mock.Anything).
		Return(heldOutcome(models.HeldSeat{SeatID: "FL001-4C", Class: models.SeatClassEconomy, Price: 50}), nil)
	s.env.OnActivity("ReleaseSeats", mock.Anything, mock.Anything).Return(nil)

	s.signalAt(1*time.Second, models.SignalHoldSeats, models.HoldSeatsSignal{CommandID: "c1", SeatIDs: []string{"FL001-4C"}})
	s.signalAt(2*time.Second, models.SignalConfirmSeats, models.CommandSignal{CommandID: "c2"})
	s.signalAt(3*time.Second, models.SignalConfirmReview, models.CommandSignal{CommandID: "c3"})

	s.env.ExecuteWorkflow(s.wfs.BookingSession, s.sessionInput())

	s.True(s.env.IsWorkflowCompleted())
	var result *models.SessionResult
	s.Require().NoError(s.env.GetWorkflowResult(&result))
	s.Equal(models.PhaseFailed, result.Phase)
	s.Equal("payment window expired", result.FailureReason)

	// No gateway call was dispatched, so no attempt was consumed.
	snap := s.queryState()
	s.Equal(0, snap.PaymentAttempts)
}

func (s *BookingSessionTestSuite) TestPaymentWindowExpiresDuringCharge() {
	s.env.OnActivity("SaveSession", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("ExtendHolds", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("HoldSeats", mock.Anything, mock.Anything).
		Return(heldOutcome(models.HeldSeat{SeatID: "FL001-4C", Class: models.SeatClassEconomy, Price: 50}), nil)
	// The gateway takes longer than the remaining window.
	s.env.OnActivity("ChargePayment", mock.Anything, mock.Anything).
		After(5*time.Second).
		Return(&activities.ChargePaymentResult{Outcome: models.PaymentApproved}, nil)
	s.env.OnActivity("ReleaseSeats", mock.Anything, mock.Anything).Return(nil)

	s.signalAt(1*time.Second, models.SignalHoldSeats, models.HoldSeatsSignal{CommandID: "c1", SeatIDs: []string{"FL001-4C"}})
	s.signalAt(2*time.Second, models.SignalConfirmSeats, models.CommandSignal{CommandID: "c2"})
	// Window deadline is 13s; submitting at 10s leaves 3s for a 5s charge.
	s.signalAt(3*time.Second, models.SignalConfirmReview, models.CommandSignal{CommandID: "c3"})
	s.signalAt(10*time.Second, models.SignalSubmitPayment, models.SubmitPaymentSignal{CommandID: "c4", PaymentCode: "12345"})

	s.env.ExecuteWorkflow(s.wfs.BookingSession, s.sessionInput())

	s.True(s.env.IsWorkflowCompleted())
	var result *models.SessionResult
	s.Require().NoError(s.env.GetWorkflowResult(&result))
	s.Equal(models.PhaseFailed, result.Phase)
	s.Equal("payment window expired", result.FailureReason)

	// The dispatched call still counted; its late verdict is discarded.
	snap := s.queryState()
	s.Equal(1, snap.PaymentAttempts)
	s.Require().Len(snap.AttemptHistory, 1)
	s.Equal(models.PaymentDeclined, snap.AttemptHistory[0].Outcome)
	s.Empty(snap.OrderID)
}

func (s *BookingSessionTestSuite) TestBackToSeatsReleasesAndRestarts() {
	s.env.OnActivity("SaveSession", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("ExtendHolds", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("HoldSeats", mock.Anything, mock.Anything).
		Return(heldOutcome(models.HeldSeat{SeatID: "FL001-1A", Class: models.SeatClassBusiness, Price: 150}), nil).Once()
	s.env.OnActivity("ReleaseSeats", mock.Anything, mock.Anything).Return(nil).Once()
	s.env.OnActivity("HoldSeats", mock.Anything, mock.Anything).
		Return(heldOutcome(models.HeldSeat{SeatID: "FL001-5F", Class: models.SeatClassEconomy, Price: 50}), nil).Once()
	s.env.OnActivity("ChargePayment", mock.Anything, mock.Anything).
		Return(&activities.ChargePaymentResult{Outcome: models.PaymentApproved}, nil)
	s.env.OnActivity("CaptureSeats", mock.Anything, mock.Anything).
		Return(&activities.CaptureSeatsResult{OrderID: "CF00000003"}, nil)

	s.signalAt(1*time.Second, models.SignalHoldSeats, models.HoldSeatsSignal{CommandID: "c1", SeatIDs: []string{"FL001-1A"}})
	s.signalAt(2*time.Second, models.SignalConfirmSeats, models.CommandSignal{CommandID: "c2"})
	s.signalAt(3*time.Second, models.SignalBackToSeats, models.CommandSignal{CommandID: "c3"})

	var afterBack models.SessionSnapshot
	s.env.RegisterDelayedCallback(func() {
		afterBack = s.queryState()
	}, 4*time.Second)

	s.signalAt(5*time.Second, models.SignalHoldSeats, models.HoldSeatsSignal{CommandID: "c4", SeatIDs: []string{"FL001-5F"}})
	s.signalAt(6*time.Second, models.SignalConfirmSeats, models.CommandSignal{CommandID: "c5"})
	s.signalAt(7*time.Second, models.SignalConfirmReview, models.CommandSignal{CommandID: "c6"})
	s.signalAt(8*time.Second, models.SignalSubmitPayment, models.SubmitPaymentSignal{CommandID: "c7", PaymentCode: "12345"})

	s.env.ExecuteWorkflow(s.wfs.BookingSession, s.sessionInput())

	s.True(s.env.IsWorkflowCompleted())

	s.Equal(models.PhaseSeatHold, afterBack.Phase)
	s.Empty(afterBack.HeldSeats)
	s.Equal(599.0, afterBack.TotalPrice, "releasing the seats drops their price from the total")

	var result *models.SessionResult
	s.Require().NoError(s.env.GetWorkflowResult(&result))
	s.Equal(models.PhaseConfirmed, result.Phase)

	snap := s.queryState()
	s.Equal(599.0+50.0, snap.TotalPrice)
	s.Equal([]string{"FL001-5F"}, snap.SeatIDs())
}

func (s *BookingSessionTestSuite) TestCancelReleasesHeldSeats() {
	s.env.OnActivity("SaveSession", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("HoldSeats", mock.Anything, mock.Anything).
		Return(heldOutcome(models.HeldSeat{SeatID: "FL001-4C", Class: models.SeatClassEconomy, Price: 50}), nil)
	s.env.OnActivity("ReleaseSeats", mock.Anything, mock.Anything).Return(nil)

	s.signalAt(1*time.Second, models.SignalHoldSeats, models.HoldSeatsSignal{CommandID: "c1", SeatIDs: []string{"FL001-4C"}})
	s.signalAt(2*time.Second, models.SignalCancelSession, models.CommandSignal{CommandID: "c2"})

	s.env.ExecuteWorkflow(s.wfs.BookingSession, s.sessionInput())

	s.True(s.env.IsWorkflowCompleted())
	var result *models.SessionResult
	s.Require().NoError(s.env.GetWorkflowResult(&result))
	s.Equal(models.PhaseCancelled, result.Phase)
	s.Equal("cancelled", result.FailureReason)
}

func (s *BookingSessionTestSuite) TestWorkflowCancellation() {
	s.env.OnActivity("SaveSession", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("HoldSeats", mock.Anything, mock.Anything).
		Return(heldOutcome(models.HeldSeat{SeatID: "FL001-4C", Class: models.SeatClassEconomy, Price: 50}), nil)
	s.env.OnActivity("ReleaseSeats", mock.Anything, mock.Anything).Return(nil)

	s.signalAt(1*time.Second, models.SignalHoldSeats, models.HoldSeatsSignal{CommandID: "c1", SeatIDs: []string{"FL001-4C"}})
	s.env.RegisterDelayedCallback(func() {
		s.env.CancelWorkflow()
	}, 2*time.Second)

	s.env.ExecuteWorkflow(s.wfs.BookingSession, s.sessionInput())

	s.True(s.env.IsWorkflowCompleted())
	var result *models.SessionResult
	s.Require().NoError(s.env.GetWorkflowResult(&result))
	s.Equal(models.PhaseCancelled, result.Phase)
	s.Equal("cancelled", result.FailureReason)
}

func (s *BookingSessionTestSuite) TestCarriedDeadlineIntoReview() {
	cfg := DefaultConfig()
	cfg.CarryDeadline = true
	wfs := New(cfg)

	s.env.OnActivity("SaveSession", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("ExtendHolds", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("HoldSeats", mock.Anything, mock.Anything).
		Return(heldOutcome(models.HeldSeat{SeatID: "FL001-4C", Class: models.SeatClassEconomy, Price: 50}), nil)
	s.env.OnActivity("ReleaseSeats", mock.Anything, mock.Anything).Return(nil)

	s.signalAt(1*time.Second, models.SignalHoldSeats, models.HoldSeatsSignal{CommandID: "c1", SeatIDs: []string{"FL001-4C"}})

	var holdDeadline time.Time
	s.env.RegisterDelayedCallback(func() {
		holdDeadline = s.queryState().Deadline
	}, 2*time.Second)

	s.signalAt(5*time.Minute, models.SignalConfirmSeats, models.CommandSignal{CommandID: "c2"})

	var reviewDeadline time.Time
	s.env.RegisterDelayedCallback(func() {
		reviewDeadline = s.queryState().Deadline
	}, 5*time.Minute+time.Second)

	s.env.ExecuteWorkflow(wfs.BookingSession, s.sessionInput())

	s.True(s.env.IsWorkflowCompleted())
	s.WithinDuration(holdDeadline, reviewDeadline, 2*time.Second,
		"review keeps the remaining seat-hold time instead of a fresh window")

	var result *models.SessionResult
	s.Require().NoError(s.env.GetWorkflowResult(&result))
	s.Equal(models.PhaseExpired, result.Phase)
}

// With the default config every confirm arms a fresh deadline, so the
// inventory hold has to be pushed out with it or a rival could claim the
// seats mid-review and the eventual capture would fail.
func (s *BookingSessionTestSuite) TestConfirmSeatsExtendsHoldWindow() {
	// Activity registration must precede any OnActivity mock setup.
	var extensions []activities.ExtendHoldsInput
	s.env.RegisterActivityWithOptions(func(ctx context.Context, input activities.ExtendHoldsInput) error {
		extensions = append(extensions, input)
		return nil
	}, activity.RegisterOptions{Name: "ExtendHolds"})

	s.env.OnActivity("SaveSession", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("HoldSeats", mock.Anything, mock.Anything).
		Return(heldOutcome(models.HeldSeat{SeatID: "FL001-1A", Class: models.SeatClassBusiness, Price: 150}), nil)
	s.env.OnActivity("ReleaseSeats", mock.Anything, mock.Anything).Return(nil)

	s.signalAt(1*time.Second, models.SignalHoldSeats, models.HoldSeatsSignal{CommandID: "c1", SeatIDs: []string{"FL001-1A"}})
	s.signalAt(2*time.Second, models.SignalConfirmSeats, models.CommandSignal{CommandID: "c2"})
	s.signalAt(3*time.Second, models.SignalConfirmReview, models.CommandSignal{CommandID: "c3"})
	s.signalAt(4*time.Second, models.SignalCancelSession, models.CommandSignal{CommandID: "c4"})

	s.env.ExecuteWorkflow(s.wfs.BookingSession, s.sessionInput())

	s.True(s.env.IsWorkflowCompleted())

	s.Require().Len(extensions, 2)
	s.Equal("sess-test", extensions[0].SessionID)
	s.Equal([]string{"FL001-1A"}, extensions[0].SeatIDs)
	s.Equal(DefaultReviewDuration+time.Minute, extensions[0].TTL,
		"entering review must cover the fresh review deadline plus grace")
	s.Equal(DefaultAttemptTimeout+time.Minute, extensions[1].TTL,
		"entering payment must cover the attempt window plus grace")
}

// End-to-end run against real activities: in-memory inventory and store plus a
// scripted gateway, no mocks.
func (s *BookingSessionTestSuite) TestFullFlowWithRealActivities() {
	cat := catalog.New(catalog.Seed(time.Now()))
	seats, err := cat.SeatMap("FL001")
	s.Require().NoError(err)

	inv := inventory.NewMemory(seats, nil)
	sessions := store.NewMemory()
	gateway := payment.NewStub(models.PaymentDeclined, models.PaymentApproved)
	acts := activities.New(inv, sessions, gateway, events.Nop{})
	s.env.RegisterActivity(acts)

	s.signalAt(1*time.Second, models.SignalHoldSeats, models.HoldSeatsSignal{CommandID: "c1", SeatIDs: []string{"FL001-1A", "FL001-10C"}})
	s.signalAt(2*time.Second, models.SignalConfirmSeats, models.CommandSignal{CommandID: "c2"})
	s.signalAt(3*time.Second, models.SignalConfirmReview, models.CommandSignal{CommandID: "c3"})
	s.signalAt(4*time.Second, models.SignalSubmitPayment, models.SubmitPaymentSignal{CommandID: "c4", PaymentCode: "11111"})
	s.signalAt(6*time.Second, models.SignalSubmitPayment, models.SubmitPaymentSignal{CommandID: "c5", PaymentCode: "22222"})

	s.env.ExecuteWorkflow(s.wfs.BookingSession, s.sessionInput())

	s.True(s.env.IsWorkflowCompleted())
	var result *models.SessionResult
	s.Require().NoError(s.env.GetWorkflowResult(&result))
	s.Equal(models.PhaseConfirmed, result.Phase)
	s.Regexp(`^CF[0-9A-F]{8}$`, result.OrderID)
	s.Equal(2, gateway.Calls())

	// The captured seats are sold for good.
	outcome, err := inv.Hold(context.Background(), "FL001", []string{"FL001-1A"}, "another-session", time.Minute)
	s.Require().NoError(err)
	s.False(outcome.Held)

	// Every transition was persisted; the stored snapshot is terminal.
	saved, err := sessions.Load(context.Background(), "sess-test")
	s.Require().NoError(err)
	s.Equal(models.PhaseConfirmed, saved.Phase)
	s.Equal(599.0+150.0+50.0, saved.TotalPrice)
	s.Equal(result.OrderID, saved.OrderID)
}
