// Package store persists booking session snapshots keyed by session id.
//
// Each state-machine transition saves the snapshot it produced, so a process
// restart can resume from the last committed phase. Workflow history replay
// re-arms timers from remaining time-to-deadline; the store additionally
// serves reads once history is no longer queryable.
package store

import (
	"context"
	"sync"

	"github.com/motyweiss/temporal-flight-saga/internal/models"
)

// SessionStore is a durable map from session id to snapshot, plus the orders
// minted on confirmation. Save is a per-key atomic replace; partial writes
// are never visible.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) (*models.SessionSnapshot, error)
	Save(ctx context.Context, snapshot *models.SessionSnapshot) error
	Delete(ctx context.Context, sessionID string) error

	// SaveOrder records a confirmed order. Orders are immutable; saving the
	// same id twice replaces it with identical content.
	SaveOrder(ctx context.Context, order *models.Order) error
	LoadOrder(ctx context.Context, orderID string) (*models.Order, error)
}

// Memory is an in-process SessionStore.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*models.SessionSnapshot
	orders   map[string]*models.Order
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]*models.SessionSnapshot),
		orders:   make(map[string]*models.Order),
	}
}

func (m *Memory) Load(ctx context.Context, sessionID string) (*models.SessionSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.sessions[sessionID]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *snap
	return &copied, nil
}

func (m *Memory) Save(ctx context.Context, snapshot *models.SessionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *snapshot
	m.sessions[snapshot.SessionID] = &copied
	return nil
}

func (m *Memory) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func (m *Memory) SaveOrder(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *order
	m.orders[order.ID] = &copied
	return nil
}

func (m *Memory) LoadOrder(ctx context.Context, orderID string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, ok := m.orders[orderID]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *order
	return &copied, nil
}
