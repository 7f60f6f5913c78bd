package router

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/motyweiss/temporal-flight-saga/internal/handlers"
	"github.com/motyweiss/temporal-flight-saga/internal/websocket"
)

// New creates and configures the HTTP router.
func New(h *handlers.Handler, hub *websocket.Hub) *mux.Router {
	r := mux.NewRouter()

	r.Use(corsMiddleware)

	api := r.PathPrefix("/api").Subrouter()

	// Flights
	api.HandleFunc("/flights", h.GetFlights).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/flights/{id}", h.GetFlight).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/flights/{id}/seats", h.GetFlightSeats).Methods(http.MethodGet, http.MethodOptions)

	// Booking sessions
	api.HandleFunc("/sessions", h.CreateSession).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/sessions/{id}", h.CancelSession).Methods(http.MethodDelete, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/seats", h.HoldSeats).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/confirm-seats", h.ConfirmSeats).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/back", h.BackToSeats).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/confirm-review", h.ConfirmReview).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/pay", h.SubmitPayment).Methods(http.MethodPost, http.MethodOptions)

	// Confirmed orders
	api.HandleFunc("/orders/{id}", h.GetOrder).Methods(http.MethodGet, http.MethodOptions)

	// WebSocket for live seat updates per flight
	if hub != nil {
		api.HandleFunc("/flights/{flightId}/ws", hub.HandleWebSocket)
	}

	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
