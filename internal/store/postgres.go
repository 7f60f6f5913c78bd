package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motyweiss/temporal-flight-saga/internal/models"
)

// Postgres stores snapshots as one JSONB row per session. The upsert is a
// single statement, so each transition commits atomically with no partial
// state visible to readers.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres-backed session store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Load(ctx context.Context, sessionID string) (*models.SessionSnapshot, error) {
	var data []byte
	err := p.pool.QueryRow(ctx, `
		SELECT snapshot FROM booking_sessions WHERE id = $1
	`, sessionID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var snap models.SessionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode session snapshot: %w", err)
	}
	return &snap, nil
}

func (p *Postgres) Save(ctx context.Context, snapshot *models.SessionSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode session snapshot: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO booking_sessions (id, flight_id, phase, snapshot, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE
		SET phase = EXCLUDED.phase, snapshot = EXCLUDED.snapshot, updated_at = NOW()
	`, snapshot.SessionID, snapshot.FlightID, snapshot.Phase, data)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, sessionID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM booking_sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (p *Postgres) SaveOrder(ctx context.Context, order *models.Order) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO orders (id, session_id, flight_id, seat_ids, total_amount, confirmed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, order.ID, order.SessionID, order.FlightID, order.SeatIDs, order.TotalAmount, order.ConfirmedAt)
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

func (p *Postgres) LoadOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order := &models.Order{}
	err := p.pool.QueryRow(ctx, `
		SELECT id, session_id, flight_id, seat_ids, total_amount, confirmed_at
		FROM orders WHERE id = $1
	`, orderID).Scan(&order.ID, &order.SessionID, &order.FlightID, &order.SeatIDs, &order.TotalAmount, &order.ConfirmedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return order, nil
}
