package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motyweiss/temporal-flight-saga/internal/models"
)

// Postgres is an Inventory backed by a seats table. The conditional UPDATE
// on each row is the per-seat compare-and-set: a row only transitions if its
// current state still allows it, and a zero row count means the seat was
// taken in between.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres-backed inventory.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// ListAvailable returns the currently free seats of a flight.
func (p *Postgres) ListAvailable(ctx context.Context, flightID string) ([]*models.Seat, error) {
	query := `
		SELECT id, flight_id, row_number, column_letter, class, price
		FROM seats
		WHERE flight_id = $1
		  AND status != 'sold'
		  AND (held_by_session IS NULL OR held_until < NOW())
		ORDER BY row_number, column_letter
	`

	rows, err := p.pool.Query(ctx, query, flightID)
	if err != nil {
		return nil, fmt.Errorf("failed to query seats: %w", err)
	}
	defer rows.Close()

	var seats []*models.Seat
	for rows.Next() {
		s := &models.Seat{Status: models.SeatStatusAvailable}
		if err := rows.Scan(&s.ID, &s.FlightID, &s.Row, &s.Column, &s.Class, &s.Price); err != nil {
			return nil, fmt.Errorf("failed to scan seat: %w", err)
		}
		seats = append(seats, s)
	}
	if len(seats) == 0 {
		var exists bool
		if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM seats WHERE flight_id = $1)`, flightID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check flight: %w", err)
		}
		if !exists {
			return nil, models.ErrNotFound
		}
	}
	return seats, nil
}

// Hold claims all requested seats inside one transaction; any conflicting
// seat rolls the whole hold back.
func (p *Postgres) Hold(ctx context.Context, flightID string, seatIDs []string, sessionID string, ttl time.Duration) (*HoldOutcome, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	expiry := time.Now().Add(ttl)
	var held []models.HeldSeat
	var unavailable []string

	for _, seatID := range seatIDs {
		var class models.SeatClass
		var price float64
		err := tx.QueryRow(ctx, `
			UPDATE seats
			SET status = 'held', held_by_session = $1, held_until = $2
			WHERE id = $3 AND flight_id = $4
			  AND status != 'sold'
			  AND (held_by_session IS NULL OR held_by_session = $1 OR held_until < NOW())
			RETURNING class, price
		`, sessionID, expiry, seatID, flightID).Scan(&class, &price)
		if err != nil {
			unavailable = append(unavailable, seatID)
			continue
		}
		held = append(held, models.HeldSeat{SeatID: seatID, Class: class, Price: price})
	}

	if len(unavailable) > 0 {
		// Rollback via the deferred tx.Rollback.
		return &HoldOutcome{Held: false, Unavailable: unavailable}, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit hold: %w", err)
	}
	return &HoldOutcome{Held: true, HeldSeats: held, Expiry: expiry}, nil
}

// Extend pushes the session's hold expiries out to now+ttl.
func (p *Postgres) Extend(ctx context.Context, sessionID string, seatIDs []string, ttl time.Duration) error {
	result, err := p.pool.Exec(ctx, `
		UPDATE seats
		SET held_until = $1
		WHERE held_by_session = $2 AND id = ANY($3) AND status = 'held'
	`, time.Now().Add(ttl), sessionID, seatIDs)
	if err != nil {
		return fmt.Errorf("failed to extend holds: %w", err)
	}
	if int(result.RowsAffected()) != len(seatIDs) {
		return models.ErrSeatNotHeld
	}
	return nil
}

// Release frees the session's holds; seats held by others are untouched.
func (p *Postgres) Release(ctx context.Context, sessionID string, seatIDs []string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE seats
		SET status = 'available', held_by_session = NULL, held_until = NULL
		WHERE held_by_session = $1 AND id = ANY($2) AND status = 'held'
	`, sessionID, seatIDs)
	if err != nil {
		return fmt.Errorf("failed to release seats: %w", err)
	}
	return nil
}

// Capture marks the session's held seats as sold.
func (p *Postgres) Capture(ctx context.Context, sessionID string, seatIDs []string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, seatID := range seatIDs {
		result, err := tx.Exec(ctx, `
			UPDATE seats
			SET status = 'sold', held_until = NULL
			WHERE id = $1 AND held_by_session = $2 AND status = 'held' AND held_until >= NOW()
		`, seatID, sessionID)
		if err != nil {
			return fmt.Errorf("failed to capture seat: %w", err)
		}
		if result.RowsAffected() == 0 {
			return models.ErrSeatNotHeld
		}
	}

	return tx.Commit(ctx)
}
