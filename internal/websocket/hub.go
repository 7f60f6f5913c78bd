package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/motyweiss/temporal-flight-saga/internal/events"
	"github.com/motyweiss/temporal-flight-saga/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SeatUpdate is one seat's status change as seen by watching clients.
type SeatUpdate struct {
	SeatID string `json:"seatId"`
	Status string `json:"status"`
	HeldBy string `json:"heldBy,omitempty"`
}

// Message is the frame broadcast to clients watching a flight.
type Message struct {
	Type      events.EventType `json:"type"`
	FlightID  string           `json:"flightId"`
	SessionID string           `json:"sessionId,omitempty"`
	OrderID   string           `json:"orderId,omitempty"`
	Seats     []SeatUpdate     `json:"seats,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

// Client is one WebSocket connection watching a flight.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	flightID string
}

// Hub fans session events out to the clients watching each flight.
type Hub struct {
	clients    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	logger     *zap.Logger
}

// NewHub creates a hub; call Run in a goroutine to start it.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		logger:     logger,
	}
}

// Run processes registrations and broadcasts until the process exits.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			if h.clients[client.flightID] == nil {
				h.clients[client.flightID] = make(map[*Client]bool)
			}
			h.clients[client.flightID][client] = true
			h.logger.Debug("websocket client registered",
				zap.String("flightId", client.flightID),
				zap.Int("watching", len(h.clients[client.flightID])))

		case client := <-h.unregister:
			if clients, ok := h.clients[client.flightID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.clients, client.flightID)
					}
				}
			}

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.Warn("failed to marshal broadcast", zap.Error(err))
				continue
			}
			for client := range h.clients[message.FlightID] {
				select {
				case client.send <- data:
				default:
					delete(h.clients[message.FlightID], client)
					close(client.send)
				}
			}
		}
	}
}

// HandleSessionEvent translates an engine event into a broadcast for the
// flight's watchers. Wired as the Kafka consumer's handler.
func (h *Hub) HandleSessionEvent(event events.SessionEvent) {
	status := string(models.SeatStatusAvailable)
	heldBy := ""
	switch event.Type {
	case events.EventSeatsHeld:
		status = string(models.SeatStatusHeld)
		heldBy = event.SessionID
	case events.EventSessionConfirmed:
		status = string(models.SeatStatusSold)
	}

	seats := make([]SeatUpdate, len(event.SeatIDs))
	for i, seatID := range event.SeatIDs {
		seats[i] = SeatUpdate{SeatID: seatID, Status: status, HeldBy: heldBy}
	}

	h.broadcast <- &Message{
		Type:      event.Type,
		FlightID:  event.FlightID,
		SessionID: event.SessionID,
		OrderID:   event.OrderID,
		Seats:     seats,
		Timestamp: time.Now().UnixMilli(),
	}
}

// HandleWebSocket upgrades GET /api/flights/{flightId}/ws connections.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	flightID := mux.Vars(r)["flightId"]

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, 64), flightID: flightID}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// Clients only listen; any read error ends the connection.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
