package models

import "time"

// Flight is an immutable catalog entry. Flights are loaded at startup and
// never mutated afterwards.
type Flight struct {
	ID            string    `json:"id"`
	FlightNumber  string    `json:"flightNumber"`
	Origin        string    `json:"origin"`
	Destination   string    `json:"destination"`
	DepartureTime time.Time `json:"departureTime"`
	ArrivalTime   time.Time `json:"arrivalTime"`
	BasePrice     float64   `json:"basePrice"`
	Airline       string    `json:"airline"`
}

// Seat identifies a seat on a flight by row and column.
type Seat struct {
	ID       string     `json:"id"`
	FlightID string     `json:"flightId"`
	Row      int        `json:"row"`
	Column   string     `json:"column"`
	Class    SeatClass  `json:"class"`
	Status   SeatStatus `json:"status"`
	Price    float64    `json:"price"`
}

type SeatClass string

const (
	SeatClassEconomy  SeatClass = "economy"
	SeatClassBusiness SeatClass = "business"
	SeatClassFirst    SeatClass = "first"
)

// SeatClassPrice returns the price for a seat class. Seat prices are derived
// from class, not stored per seat row.
func SeatClassPrice(c SeatClass) float64 {
	switch c {
	case SeatClassBusiness:
		return 150
	case SeatClassFirst:
		return 300
	default:
		return 50
	}
}

type SeatStatus string

const (
	SeatStatusAvailable SeatStatus = "available"
	SeatStatusHeld      SeatStatus = "held"
	SeatStatusSold      SeatStatus = "sold"
)
