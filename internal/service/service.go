// Package service exposes the booking engine to transports. Commands are
// delivered to the session workflow as signals; the service then waits for
// the command to surface in the queried snapshot so callers get the typed
// result of their own command, not a stale state.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/motyweiss/temporal-flight-saga/internal/catalog"
	"github.com/motyweiss/temporal-flight-saga/internal/inventory"
	"github.com/motyweiss/temporal-flight-saga/internal/models"
	"github.com/motyweiss/temporal-flight-saga/internal/store"
	"github.com/motyweiss/temporal-flight-saga/internal/workflows"
)

const (
	workflowIDPrefix = "session-"

	commandPollInterval = 50 * time.Millisecond
	commandWaitTimeout  = 15 * time.Second
)

// BookingService is the engine's client-facing surface.
type BookingService interface {
	GetFlights(ctx context.Context) ([]*models.Flight, error)
	GetFlight(ctx context.Context, flightID string) (*models.Flight, error)
	GetAvailableSeats(ctx context.Context, flightID string) ([]*models.Seat, error)

	CreateSession(ctx context.Context, flightID string) (*models.SessionStatusResponse, error)
	HoldSeats(ctx context.Context, sessionID string, seatIDs []string) (*models.SessionStatusResponse, error)
	ConfirmSeats(ctx context.Context, sessionID string) (*models.SessionStatusResponse, error)
	BackToSeats(ctx context.Context, sessionID string) (*models.SessionStatusResponse, error)
	ConfirmReview(ctx context.Context, sessionID string) (*models.SessionStatusResponse, error)
	SubmitPayment(ctx context.Context, sessionID, paymentCode string) (*models.SessionStatusResponse, error)
	CancelSession(ctx context.Context, sessionID string) error
	GetSession(ctx context.Context, sessionID string) (*models.SessionStatusResponse, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
}

type bookingService struct {
	temporal  client.Client
	taskQueue string
	catalog   *catalog.Catalog
	cache     *catalog.Cache
	inventory inventory.Inventory
	sessions  store.SessionStore
	logger    *zap.Logger
}

// Options carries the optional collaborators.
type Options struct {
	// Cache, when set, fronts flight listings with Redis.
	Cache *catalog.Cache
	// Inventory, when set, answers seat availability queries. Without it the
	// full seat map is returned and availability is resolved at hold time.
	Inventory inventory.Inventory
	// Sessions, when set, serves snapshots for sessions whose workflow
	// history is no longer queryable.
	Sessions store.SessionStore
}

// New creates the booking service.
func New(c client.Client, taskQueue string, cat *catalog.Catalog, logger *zap.Logger, opts Options) BookingService {
	return &bookingService{
		temporal:  c,
		taskQueue: taskQueue,
		catalog:   cat,
		cache:     opts.Cache,
		inventory: opts.Inventory,
		sessions:  opts.Sessions,
		logger:    logger,
	}
}

func (s *bookingService) GetFlights(ctx context.Context) ([]*models.Flight, error) {
	if s.cache != nil {
		flights, err := s.cache.GetFlights(ctx)
		if err != nil {
			s.logger.Warn("flight cache read failed", zap.Error(err))
		} else if flights != nil {
			return flights, nil
		}
	}

	flights := s.catalog.Flights()
	if s.cache != nil {
		if err := s.cache.SetFlights(ctx, flights); err != nil {
			s.logger.Warn("flight cache write failed", zap.Error(err))
		}
	}
	return flights, nil
}

func (s *bookingService) GetFlight(ctx context.Context, flightID string) (*models.Flight, error) {
	return s.catalog.Flight(flightID)
}

func (s *bookingService) GetAvailableSeats(ctx context.Context, flightID string) ([]*models.Seat, error) {
	if s.inventory != nil {
		return s.inventory.ListAvailable(ctx, flightID)
	}
	return s.catalog.SeatMap(flightID)
}

func (s *bookingService) CreateSession(ctx context.Context, flightID string) (*models.SessionStatusResponse, error) {
	flight, err := s.catalog.Flight(flightID)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.New().String()[:8]
	input := models.SessionInput{
		SessionID: sessionID,
		FlightID:  flight.ID,
		BasePrice: flight.BasePrice,
	}

	_, err = s.temporal.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowIDPrefix + sessionID,
		TaskQueue: s.taskQueue,
	}, workflows.WorkflowName, input)
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking session created",
		zap.String("sessionId", sessionID),
		zap.String("flightId", flight.ID))

	// The workflow enters SeatHold immediately; wait for the first snapshot
	// so the caller sees an initialized session.
	snap, err := s.awaitPhase(ctx, sessionID)
	if err != nil {
		snap = &models.SessionSnapshot{
			SessionID:  sessionID,
			FlightID:   flight.ID,
			Phase:      models.PhaseSeatHold,
			TotalPrice: flight.BasePrice,
		}
	}
	return s.respond(snap), nil
}

func (s *bookingService) HoldSeats(ctx context.Context, sessionID string, seatIDs []string) (*models.SessionStatusResponse, error) {
	return s.command(ctx, sessionID, models.SignalHoldSeats, func(commandID string) interface{} {
		return models.HoldSeatsSignal{CommandID: commandID, SeatIDs: seatIDs}
	})
}

func (s *bookingService) ConfirmSeats(ctx context.Context, sessionID string) (*models.SessionStatusResponse, error) {
	return s.command(ctx, sessionID, models.SignalConfirmSeats, nil)
}

func (s *bookingService) BackToSeats(ctx context.Context, sessionID string) (*models.SessionStatusResponse, error) {
	return s.command(ctx, sessionID, models.SignalBackToSeats, nil)
}

func (s *bookingService) ConfirmReview(ctx context.Context, sessionID string) (*models.SessionStatusResponse, error) {
	return s.command(ctx, sessionID, models.SignalConfirmReview, nil)
}

func (s *bookingService) SubmitPayment(ctx context.Context, sessionID, paymentCode string) (*models.SessionStatusResponse, error) {
	return s.command(ctx, sessionID, models.SignalSubmitPayment, func(commandID string) interface{} {
		return models.SubmitPaymentSignal{CommandID: commandID, PaymentCode: paymentCode}
	})
}

func (s *bookingService) CancelSession(ctx context.Context, sessionID string) error {
	_, err := s.command(ctx, sessionID, models.SignalCancelSession, nil)
	return err
}

func (s *bookingService) GetSession(ctx context.Context, sessionID string) (*models.SessionStatusResponse, error) {
	snap, err := s.querySnapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.respond(snap), nil
}

func (s *bookingService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	if s.sessions == nil {
		return nil, models.ErrNotFound
	}
	return s.sessions.LoadOrder(ctx, orderID)
}

// command signals the session workflow and waits until the command id shows
// up in the snapshot, then translates the recorded result.
func (s *bookingService) command(ctx context.Context, sessionID, signalName string, build func(commandID string) interface{}) (*models.SessionStatusResponse, error) {
	commandID := uuid.New().String()

	var payload interface{}
	if build != nil {
		payload = build(commandID)
	} else {
		payload = models.CommandSignal{CommandID: commandID}
	}

	workflowID := workflowIDPrefix + sessionID
	if err := s.temporal.SignalWorkflow(ctx, workflowID, "", signalName, payload); err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return nil, s.resolveMissing(ctx, sessionID)
		}
		return nil, err
	}

	snap, err := s.awaitCommand(ctx, sessionID, commandID)
	if err != nil {
		return nil, err
	}
	if snap.LastError != nil && snap.LastCommandID == commandID {
		return s.respond(snap), snap.LastError
	}
	return s.respond(snap), nil
}

// resolveMissing distinguishes an unknown session from one whose workflow
// already completed.
func (s *bookingService) resolveMissing(ctx context.Context, sessionID string) error {
	if s.sessions != nil {
		snap, err := s.sessions.Load(ctx, sessionID)
		if err == nil && snap.Phase.Terminal() {
			return models.NewSessionTerminalError(snap.Phase)
		}
	}
	return models.ErrNotFound
}

func (s *bookingService) awaitCommand(ctx context.Context, sessionID, commandID string) (*models.SessionSnapshot, error) {
	deadline := time.Now().Add(commandWaitTimeout)
	for {
		snap, err := s.querySnapshot(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if snap.LastCommandID == commandID {
			return snap, nil
		}
		if snap.Phase.Terminal() {
			// The session reached a terminal phase without applying this
			// command: it arrived too late.
			return nil, models.NewSessionTerminalError(snap.Phase)
		}
		if time.Now().After(deadline) {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(commandPollInterval):
		}
	}
}

func (s *bookingService) awaitPhase(ctx context.Context, sessionID string) (*models.SessionSnapshot, error) {
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := s.querySnapshot(ctx, sessionID)
		if err == nil && snap.Phase != models.PhaseCreated {
			return snap, nil
		}
		if time.Now().After(deadline) {
			if err != nil {
				return nil, err
			}
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(commandPollInterval):
		}
	}
}

func (s *bookingService) querySnapshot(ctx context.Context, sessionID string) (*models.SessionSnapshot, error) {
	response, err := s.temporal.QueryWorkflow(ctx, workflowIDPrefix+sessionID, "", models.QueryGetState)
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) && s.sessions != nil {
			snap, loadErr := s.sessions.Load(ctx, sessionID)
			if loadErr == nil {
				return snap, nil
			}
		}
		if errors.As(err, &notFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	var snap models.SessionSnapshot
	if err := response.Get(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// respond derives the remaining time from the stored deadline at read time.
func (s *bookingService) respond(snap *models.SessionSnapshot) *models.SessionStatusResponse {
	resp := &models.SessionStatusResponse{Session: snap}
	if !snap.Deadline.IsZero() && !snap.Phase.Terminal() {
		if remaining := time.Until(snap.Deadline); remaining > 0 {
			resp.RemainingSeconds = int(remaining.Seconds())
		}
	}
	return resp
}
