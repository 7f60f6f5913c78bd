package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/motyweiss/temporal-flight-saga/internal/models"
)

// MockBookingService is a mock implementation of service.BookingService
type MockBookingService struct {
	mock.Mock
}

func (m *MockBookingService) GetFlights(ctx context.Context) ([]*models.Flight, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Flight), args.Error(1)
}

func (m *MockBookingService) GetFlight(ctx context.Context, flightID string) (*models.Flight, error) {
	args := m.Called(ctx, flightID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Flight), args.Error(1)
}

func (m *MockBookingService) GetAvailableSeats(ctx context.Context, flightID string) ([]*models.Seat, error) {
	args := m.Called(ctx, flightID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Seat), args.Error(1)
}

func (m *MockBookingService) CreateSession(ctx context.Context, flightID string) (*models.SessionStatusResponse, error) {
	args := m.Called(ctx, flightID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SessionStatusResponse), args.Error(1)
}

func (m *MockBookingService) HoldSeats(ctx context.Context, sessionID string, seatIDs []string) (*models.SessionStatusResponse, error) {
	args := m.Called(ctx, sessionID, seatIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SessionStatusResponse), args.Error(1)
}

func (m *MockBookingService) ConfirmSeats(ctx context.Context, sessionID string) (*models.SessionStatusResponse, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SessionStatusResponse), args.Error(1)
}

func (m *MockBookingService) BackToSeats(ctx context.Context, sessionID string) (*models.SessionStatusResponse, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SessionStatusResponse), args.Error(1)
}

func (m *MockBookingService) ConfirmReview(ctx context.Context, sessionID string) (*models.SessionStatusResponse, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SessionStatusResponse), args.Error(1)
}

func (m *MockBookingService) SubmitPayment(ctx context.Context, sessionID, paymentCode string) (*models.SessionStatusResponse, error) {
	args := m.Called(ctx, sessionID, paymentCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SessionStatusResponse), args.Error(1)
}

func (m *MockBookingService) CancelSession(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *MockBookingService) GetSession(ctx context.Context, sessionID string) (*models.SessionStatusResponse, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SessionStatusResponse), args.Error(1)
}

func (m *MockBookingService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}
