package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/motyweiss/temporal-flight-saga/internal/models"
	"github.com/motyweiss/temporal-flight-saga/internal/payment"
	"github.com/motyweiss/temporal-flight-saga/internal/service"
)

// Handler contains the HTTP handlers for the booking API.
type Handler struct {
	bookingService service.BookingService
	logger         *zap.Logger
}

// NewHandler creates a new Handler instance.
func NewHandler(bookingService service.BookingService, logger *zap.Logger) *Handler {
	return &Handler{bookingService: bookingService, logger: logger}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

type errorBody struct {
	Code        models.ErrorCode        `json:"code"`
	Error       string                  `json:"error"`
	Unavailable []string                `json:"unavailable,omitempty"`
	Session     *models.SessionSnapshot `json:"session,omitempty"`
}

func respondError(w http.ResponseWriter, status int, code models.ErrorCode, message string) {
	respondJSON(w, status, errorBody{Code: code, Error: message})
}

// respondCommandError maps the error taxonomy onto HTTP statuses. A rejected
// command still carries the session snapshot so clients can resync without a
// second round trip.
func (h *Handler) respondCommandError(w http.ResponseWriter, err error, last *models.SessionStatusResponse) {
	var cmdErr *models.CommandError
	if errors.As(err, &cmdErr) {
		status := http.StatusBadRequest
		switch cmdErr.Code {
		case models.ErrCodeSeatConflict, models.ErrCodeSessionTerminal,
			models.ErrCodeRetryBudgetExhausted, models.ErrCodeInvalidPhase:
			status = http.StatusConflict
		case models.ErrCodeNotFound:
			status = http.StatusNotFound
		}
		body := errorBody{
			Code:        cmdErr.Code,
			Error:       cmdErr.Message,
			Unavailable: cmdErr.Unavailable,
		}
		if last != nil {
			body.Session = last.Session
		}
		respondJSON(w, status, body)
		return
	}
	if errors.Is(err, models.ErrNotFound) {
		respondError(w, http.StatusNotFound, models.ErrCodeNotFound, "session not found")
		return
	}
	h.logger.Error("command failed", zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal", "internal error")
}

// GetFlights handles GET /api/flights
func (h *Handler) GetFlights(w http.ResponseWriter, r *http.Request) {
	flights, err := h.bookingService.GetFlights(r.Context())
	if err != nil {
		h.respondCommandError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, flights)
}

// GetFlight handles GET /api/flights/{id}
func (h *Handler) GetFlight(w http.ResponseWriter, r *http.Request) {
	flightID := mux.Vars(r)["id"]
	flight, err := h.bookingService.GetFlight(r.Context(), flightID)
	if err != nil {
		respondError(w, http.StatusNotFound, models.ErrCodeNotFound, "flight not found")
		return
	}
	respondJSON(w, http.StatusOK, flight)
}

// GetFlightSeats handles GET /api/flights/{id}/seats
func (h *Handler) GetFlightSeats(w http.ResponseWriter, r *http.Request) {
	flightID := mux.Vars(r)["id"]
	seats, err := h.bookingService.GetAvailableSeats(r.Context(), flightID)
	if err != nil {
		respondError(w, http.StatusNotFound, models.ErrCodeNotFound, "flight not found")
		return
	}
	respondJSON(w, http.StatusOK, seats)
}

// CreateSession handles POST /api/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, models.ErrCodeInvalidFormat, "invalid request body")
		return
	}
	if req.FlightID == "" {
		respondError(w, http.StatusBadRequest, models.ErrCodeInvalidFormat, "flight id is required")
		return
	}

	status, err := h.bookingService.CreateSession(r.Context(), req.FlightID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			respondError(w, http.StatusNotFound, models.ErrCodeNotFound, "flight not found")
			return
		}
		h.respondCommandError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusCreated, status)
}

// GetSession handles GET /api/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	status, err := h.bookingService.GetSession(r.Context(), sessionID)
	if err != nil {
		h.respondCommandError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// HoldSeats handles POST /api/sessions/{id}/seats
func (h *Handler) HoldSeats(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req models.HoldSeatsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, models.ErrCodeInvalidFormat, "invalid request body")
		return
	}
	if len(req.SeatIDs) == 0 {
		respondError(w, http.StatusBadRequest, models.ErrCodeInvalidFormat, "at least one seat must be selected")
		return
	}

	status, err := h.bookingService.HoldSeats(r.Context(), sessionID, req.SeatIDs)
	if err != nil {
		h.respondCommandError(w, err, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// ConfirmSeats handles POST /api/sessions/{id}/confirm-seats
func (h *Handler) ConfirmSeats(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	status, err := h.bookingService.ConfirmSeats(r.Context(), sessionID)
	if err != nil {
		h.respondCommandError(w, err, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// BackToSeats handles POST /api/sessions/{id}/back
func (h *Handler) BackToSeats(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	status, err := h.bookingService.BackToSeats(r.Context(), sessionID)
	if err != nil {
		h.respondCommandError(w, err, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// ConfirmReview handles POST /api/sessions/{id}/confirm-review
func (h *Handler) ConfirmReview(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	status, err := h.bookingService.ConfirmReview(r.Context(), sessionID)
	if err != nil {
		h.respondCommandError(w, err, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// SubmitPayment handles POST /api/sessions/{id}/pay
func (h *Handler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req models.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, models.ErrCodeInvalidFormat, "invalid request body")
		return
	}
	// Reject malformed codes at the boundary; the workflow re-checks so
	// other transports get the same answer.
	if err := payment.ValidateCode(req.PaymentCode); err != nil {
		respondError(w, http.StatusBadRequest, models.ErrCodeInvalidFormat, err.Error())
		return
	}

	status, err := h.bookingService.SubmitPayment(r.Context(), sessionID, req.PaymentCode)
	if err != nil {
		h.respondCommandError(w, err, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// GetOrder handles GET /api/orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]
	order, err := h.bookingService.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			respondError(w, http.StatusNotFound, models.ErrCodeNotFound, "order not found")
			return
		}
		h.respondCommandError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// CancelSession handles DELETE /api/sessions/{id}
func (h *Handler) CancelSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if err := h.bookingService.CancelSession(r.Context(), sessionID); err != nil {
		h.respondCommandError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "session cancelled"})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
