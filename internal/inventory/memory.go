package inventory

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/facebookgo/clock"

	"github.com/motyweiss/temporal-flight-saga/internal/models"
)

// claim is the hold/sale record for a single seat. A nil pointer means the
// seat is free; an expired, unsold claim is also free.
type claim struct {
	sessionID string
	expiry    time.Time
	sold      bool
}

type seatState struct {
	seat  *models.Seat
	claim atomic.Pointer[claim]
}

// Memory is an in-process Inventory. Contention is resolved with a
// compare-and-set per seat, so unrelated bookings never serialize on each
// other.
type Memory struct {
	seats    map[string]*seatState
	byFlight map[string][]*seatState
	clk      clock.Clock
}

// NewMemory builds an inventory over the given seat definitions.
func NewMemory(seats []*models.Seat, clk clock.Clock) *Memory {
	if clk == nil {
		clk = clock.New()
	}
	m := &Memory{
		seats:    make(map[string]*seatState, len(seats)),
		byFlight: make(map[string][]*seatState),
		clk:      clk,
	}
	for _, s := range seats {
		st := &seatState{seat: s}
		m.seats[s.ID] = st
		m.byFlight[s.FlightID] = append(m.byFlight[s.FlightID], st)
	}
	return m
}

func (m *Memory) free(c *claim, now time.Time) bool {
	if c == nil {
		return true
	}
	return !c.sold && now.After(c.expiry)
}

// ListAvailable returns the currently free seats of a flight.
func (m *Memory) ListAvailable(ctx context.Context, flightID string) ([]*models.Seat, error) {
	states, ok := m.byFlight[flightID]
	if !ok {
		return nil, models.ErrNotFound
	}

	now := m.clk.Now()
	var available []*models.Seat
	for _, st := range states {
		if m.free(st.claim.Load(), now) {
			available = append(available, st.seat)
		}
	}
	sort.Slice(available, func(i, j int) bool { return available[i].ID < available[j].ID })
	return available, nil
}

// Hold claims all requested seats for the session or none of them.
func (m *Memory) Hold(ctx context.Context, flightID string, seatIDs []string, sessionID string, ttl time.Duration) (*HoldOutcome, error) {
	now := m.clk.Now()
	next := &claim{sessionID: sessionID, expiry: now.Add(ttl)}

	type acquired struct {
		st   *seatState
		prev *claim
	}
	var taken []acquired
	var unavailable []string

	rollback := func() {
		for _, a := range taken {
			a.st.claim.Store(a.prev)
		}
	}

	for _, id := range seatIDs {
		st, ok := m.seats[id]
		if !ok || st.seat.FlightID != flightID {
			unavailable = append(unavailable, id)
			continue
		}
		if len(unavailable) > 0 {
			// A conflict already makes the hold fail; keep scanning so the
			// outcome lists every unavailable seat, but claim nothing more.
			if !m.claimable(st, sessionID, now) {
				unavailable = append(unavailable, id)
			}
			continue
		}

		cur := st.claim.Load()
		if !m.free(cur, now) && !(cur.sessionID == sessionID && !cur.sold) {
			unavailable = append(unavailable, id)
			continue
		}
		if !st.claim.CompareAndSwap(cur, next) {
			// Lost the race to another session.
			unavailable = append(unavailable, id)
			continue
		}
		taken = append(taken, acquired{st: st, prev: cur})
	}

	if len(unavailable) > 0 {
		rollback()
		return &HoldOutcome{Held: false, Unavailable: unavailable}, nil
	}

	held := make([]models.HeldSeat, 0, len(taken))
	for _, a := range taken {
		held = append(held, models.HeldSeat{
			SeatID: a.st.seat.ID,
			Class:  a.st.seat.Class,
			Price:  a.st.seat.Price,
		})
	}
	return &HoldOutcome{Held: true, HeldSeats: held, Expiry: next.expiry}, nil
}

func (m *Memory) claimable(st *seatState, sessionID string, now time.Time) bool {
	cur := st.claim.Load()
	if m.free(cur, now) {
		return true
	}
	return cur.sessionID == sessionID && !cur.sold
}

// Extend refreshes the expiry of the session's holds. A claim that lapsed but
// was not yet reclaimed can still be refreshed; one taken over by another
// session cannot.
func (m *Memory) Extend(ctx context.Context, sessionID string, seatIDs []string, ttl time.Duration) error {
	now := m.clk.Now()
	next := &claim{sessionID: sessionID, expiry: now.Add(ttl)}

	for _, id := range seatIDs {
		st, ok := m.seats[id]
		if !ok {
			return models.ErrSeatNotHeld
		}
		cur := st.claim.Load()
		if cur == nil || cur.sold || cur.sessionID != sessionID {
			return models.ErrSeatNotHeld
		}
		if !st.claim.CompareAndSwap(cur, next) {
			return models.ErrSeatNotHeld
		}
	}
	return nil
}

// Release frees the session's holds on the given seats. Seats held by someone
// else, sold, or unknown are left alone.
func (m *Memory) Release(ctx context.Context, sessionID string, seatIDs []string) error {
	for _, id := range seatIDs {
		st, ok := m.seats[id]
		if !ok {
			continue
		}
		for {
			cur := st.claim.Load()
			if cur == nil || cur.sold || cur.sessionID != sessionID {
				break
			}
			if st.claim.CompareAndSwap(cur, nil) {
				break
			}
		}
	}
	return nil
}

// Capture converts the session's holds into sales. Every seat must still be
// held by the session; expired holds no longer count.
func (m *Memory) Capture(ctx context.Context, sessionID string, seatIDs []string) error {
	now := m.clk.Now()

	// Verify the whole set first so a partial capture is never visible.
	for _, id := range seatIDs {
		st, ok := m.seats[id]
		if !ok {
			return models.ErrSeatNotHeld
		}
		cur := st.claim.Load()
		if cur == nil || cur.sold || cur.sessionID != sessionID || now.After(cur.expiry) {
			return models.ErrSeatNotHeld
		}
	}

	for _, id := range seatIDs {
		st := m.seats[id]
		cur := st.claim.Load()
		if cur == nil || cur.sessionID != sessionID || cur.sold {
			return models.ErrSeatNotHeld
		}
		if !st.claim.CompareAndSwap(cur, &claim{sessionID: sessionID, sold: true}) {
			return models.ErrSeatNotHeld
		}
	}
	return nil
}
