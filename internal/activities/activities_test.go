package activities

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/motyweiss/temporal-flight-saga/internal/catalog"
	"github.com/motyweiss/temporal-flight-saga/internal/events"
	"github.com/motyweiss/temporal-flight-saga/internal/inventory"
	"github.com/motyweiss/temporal-flight-saga/internal/models"
	"github.com/motyweiss/temporal-flight-saga/internal/payment"
	"github.com/motyweiss/temporal-flight-saga/internal/store"
)

type fixture struct {
	env       *testsuite.TestActivityEnvironment
	inventory *inventory.Memory
	store     *store.Memory
	gateway   *payment.Stub
	events    *recordingPublisher
}

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	published []events.SessionEvent
}

func (r *recordingPublisher) Publish(ctx context.Context, event events.SessionEvent) error {
	r.published = append(r.published, event)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func setup(t *testing.T, outcomes ...models.PaymentOutcome) *fixture {
	t.Helper()

	cat := catalog.New(catalog.Seed(time.Now()))
	seats, err := cat.SeatMap("FL001")
	require.NoError(t, err)

	f := &fixture{
		inventory: inventory.NewMemory(seats, nil),
		store:     store.NewMemory(),
		gateway:   payment.NewStub(outcomes...),
		events:    &recordingPublisher{},
	}

	var ts testsuite.WorkflowTestSuite
	f.env = ts.NewTestActivityEnvironment()
	f.env.RegisterActivity(New(f.inventory, f.store, f.gateway, f.events))
	return f
}

func (f *fixture) holdSeats(t *testing.T, input HoldSeatsInput) *inventory.HoldOutcome {
	t.Helper()
	val, err := f.env.ExecuteActivity("HoldSeats", input)
	require.NoError(t, err)
	var outcome inventory.HoldOutcome
	require.NoError(t, val.Get(&outcome))
	return &outcome
}

func TestHoldSeats_Success(t *testing.T) {
	f := setup(t)

	outcome := f.holdSeats(t, HoldSeatsInput{
		SessionID: "sess-1",
		FlightID:  "FL001",
		SeatIDs:   []string{"FL001-1A", "FL001-10C"},
		TTL:       15 * time.Minute,
	})

	assert.True(t, outcome.Held)
	require.Len(t, outcome.HeldSeats, 2)
	assert.Equal(t, 150.0+50.0, outcome.SeatPriceTotal())

	require.Len(t, f.events.published, 1)
	assert.Equal(t, events.EventSeatsHeld, f.events.published[0].Type)
	assert.Equal(t, []string{"FL001-1A", "FL001-10C"}, f.events.published[0].SeatIDs)
}

func TestHoldSeats_ReplacesPriorSelection(t *testing.T) {
	f := setup(t)

	f.holdSeats(t, HoldSeatsInput{
		SessionID: "sess-1",
		FlightID:  "FL001",
		SeatIDs:   []string{"FL001-1A"},
		TTL:       15 * time.Minute,
	})

	outcome := f.holdSeats(t, HoldSeatsInput{
		SessionID:    "sess-1",
		FlightID:     "FL001",
		SeatIDs:      []string{"FL001-2B"},
		PriorSeatIDs: []string{"FL001-1A"},
		TTL:          15 * time.Minute,
	})
	assert.True(t, outcome.Held)

	// The dropped seat is free for other sessions again.
	other := f.holdSeats(t, HoldSeatsInput{
		SessionID: "sess-2",
		FlightID:  "FL001",
		SeatIDs:   []string{"FL001-1A"},
		TTL:       15 * time.Minute,
	})
	assert.True(t, other.Held)
}

func TestHoldSeats_ConflictKeepsPriorSelection(t *testing.T) {
	f := setup(t)

	f.holdSeats(t, HoldSeatsInput{
		SessionID: "sess-1", FlightID: "FL001",
		SeatIDs: []string{"FL001-3C"}, TTL: 15 * time.Minute,
	})
	f.holdSeats(t, HoldSeatsInput{
		SessionID: "sess-2", FlightID: "FL001",
		SeatIDs: []string{"FL001-3D"}, TTL: 15 * time.Minute,
	})

	// sess-1 asks to switch onto sess-2's seat: the hold fails and the prior
	// selection is not released.
	outcome := f.holdSeats(t, HoldSeatsInput{
		SessionID:    "sess-1",
		FlightID:     "FL001",
		SeatIDs:      []string{"FL001-3D"},
		PriorSeatIDs: []string{"FL001-3C"},
		TTL:          15 * time.Minute,
	})
	assert.False(t, outcome.Held)
	assert.Equal(t, []string{"FL001-3D"}, outcome.Unavailable)

	taken := f.holdSeats(t, HoldSeatsInput{
		SessionID: "sess-3", FlightID: "FL001",
		SeatIDs: []string{"FL001-3C"}, TTL: 15 * time.Minute,
	})
	assert.False(t, taken.Held, "sess-1 must still hold its prior seat")
}

func TestExtendHolds(t *testing.T) {
	f := setup(t)

	f.holdSeats(t, HoldSeatsInput{
		SessionID: "sess-1", FlightID: "FL001",
		SeatIDs: []string{"FL001-5A"}, TTL: 15 * time.Minute,
	})

	_, err := f.env.ExecuteActivity("ExtendHolds", ExtendHoldsInput{
		SessionID: "sess-1",
		FlightID:  "FL001",
		SeatIDs:   []string{"FL001-5A"},
		TTL:       16 * time.Minute,
	})
	require.NoError(t, err)

	// Another session's seats cannot be extended.
	_, err = f.env.ExecuteActivity("ExtendHolds", ExtendHoldsInput{
		SessionID: "sess-2",
		FlightID:  "FL001",
		SeatIDs:   []string{"FL001-5A"},
		TTL:       16 * time.Minute,
	})
	assert.Error(t, err)
}

func TestReleaseSeats_PublishesByReason(t *testing.T) {
	tests := []struct {
		reason string
		want   events.EventType
	}{
		{reason: "expired", want: events.EventSessionExpired},
		{reason: "payment_failed", want: events.EventSessionFailed},
		{reason: "payment_timeout", want: events.EventSessionFailed},
		{reason: "reselect", want: events.EventSeatsReleased},
		{reason: "cancelled", want: events.EventSeatsReleased},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			f := setup(t)
			f.holdSeats(t, HoldSeatsInput{
				SessionID: "sess-1", FlightID: "FL001",
				SeatIDs: []string{"FL001-6E"}, TTL: 15 * time.Minute,
			})

			_, err := f.env.ExecuteActivity("ReleaseSeats", ReleaseSeatsInput{
				SessionID: "sess-1",
				FlightID:  "FL001",
				SeatIDs:   []string{"FL001-6E"},
				Reason:    tt.reason,
			})
			require.NoError(t, err)

			require.Len(t, f.events.published, 2)
			assert.Equal(t, tt.want, f.events.published[1].Type)
		})
	}
}

func TestCaptureSeats_GeneratesOrderID(t *testing.T) {
	f := setup(t)

	f.holdSeats(t, HoldSeatsInput{
		SessionID: "sess-1", FlightID: "FL001",
		SeatIDs: []string{"FL001-7A"}, TTL: 15 * time.Minute,
	})

	val, err := f.env.ExecuteActivity("CaptureSeats", CaptureSeatsInput{
		SessionID:   "sess-1",
		FlightID:    "FL001",
		SeatIDs:     []string{"FL001-7A"},
		TotalAmount: 649,
	})
	require.NoError(t, err)

	var result CaptureSeatsResult
	require.NoError(t, val.Get(&result))
	assert.Regexp(t, `^CF[0-9A-F]{8}$`, result.OrderID)

	require.Len(t, f.events.published, 2)
	assert.Equal(t, events.EventSessionConfirmed, f.events.published[1].Type)
	assert.Equal(t, result.OrderID, f.events.published[1].OrderID)

	// The confirmed order was persisted alongside the sale.
	order, err := f.store.LoadOrder(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", order.SessionID)
	assert.Equal(t, "FL001", order.FlightID)
	assert.Equal(t, []string{"FL001-7A"}, order.SeatIDs)
	assert.Equal(t, 649.0, order.TotalAmount)
	assert.False(t, order.ConfirmedAt.IsZero())
}

func TestCaptureSeats_NotHeld(t *testing.T) {
	f := setup(t)

	_, err := f.env.ExecuteActivity("CaptureSeats", CaptureSeatsInput{
		SessionID: "sess-1",
		FlightID:  "FL001",
		SeatIDs:   []string{"FL001-8A"},
	})
	assert.Error(t, err)
}

func TestChargePayment(t *testing.T) {
	f := setup(t, models.PaymentDeclined, models.PaymentApproved)

	charge := func(attempt int) models.PaymentOutcome {
		val, err := f.env.ExecuteActivity("ChargePayment", ChargePaymentInput{
			SessionID:   "sess-1",
			PaymentCode: "12345",
			Amount:      649,
			Attempt:     attempt,
		})
		require.NoError(t, err)
		var result ChargePaymentResult
		require.NoError(t, val.Get(&result))
		return result.Outcome
	}

	assert.Equal(t, models.PaymentDeclined, charge(1))
	assert.Equal(t, models.PaymentApproved, charge(2))
	assert.Equal(t, 2, f.gateway.Calls())
}

func TestSaveSession(t *testing.T) {
	f := setup(t)

	snap := models.SessionSnapshot{
		SessionID:  "sess-1",
		FlightID:   "FL001",
		Phase:      models.PhaseReview,
		TotalPrice: 749,
	}
	_, err := f.env.ExecuteActivity("SaveSession", snap)
	require.NoError(t, err)

	saved, err := f.store.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseReview, saved.Phase)
	assert.Equal(t, 749.0, saved.TotalPrice)
}

func TestNewOrderID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewOrderID()
		assert.Regexp(t, `^CF[0-9A-F]{8}$`, id)
		assert.False(t, seen[id], "order ids must not repeat")
		seen[id] = true
	}
}
