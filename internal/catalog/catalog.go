package catalog

import (
	"fmt"
	"sort"
	"time"

	"github.com/motyweiss/temporal-flight-saga/internal/models"
)

const (
	seatRows = 20
	// Rows 1-3 are business class.
	businessRowMax = 3
)

var seatColumns = []string{"A", "B", "C", "D", "E", "F"}

// Catalog is the immutable flight catalog. The hosting process constructs it
// at startup and passes it into the engine; nothing mutates it afterwards.
type Catalog struct {
	flights map[string]*models.Flight
}

// New builds a catalog from the given flights.
func New(flights []*models.Flight) *Catalog {
	c := &Catalog{flights: make(map[string]*models.Flight, len(flights))}
	for _, f := range flights {
		c.flights[f.ID] = f
	}
	return c
}

// Seed returns the default flight catalog.
func Seed(now time.Time) []*models.Flight {
	return []*models.Flight{
		{
			ID:            "FL001",
			FlightNumber:  "SK-301",
			Origin:        "New York (JFK)",
			Destination:   "London (LHR)",
			DepartureTime: now.Add(24 * time.Hour),
			ArrivalTime:   now.Add(31 * time.Hour),
			BasePrice:     599,
			Airline:       "SkyBooker Airlines",
		},
		{
			ID:            "FL002",
			FlightNumber:  "SK-425",
			Origin:        "New York (JFK)",
			Destination:   "London (LHR)",
			DepartureTime: now.Add(27 * time.Hour),
			ArrivalTime:   now.Add(34 * time.Hour),
			BasePrice:     499,
			Airline:       "SkyBooker Airlines",
		},
	}
}

// Flights returns all flights sorted by departure time.
func (c *Catalog) Flights() []*models.Flight {
	flights := make([]*models.Flight, 0, len(c.flights))
	for _, f := range c.flights {
		flights = append(flights, f)
	}
	sort.Slice(flights, func(i, j int) bool {
		return flights[i].DepartureTime.Before(flights[j].DepartureTime)
	})
	return flights
}

// Flight returns the flight with the given id.
func (c *Catalog) Flight(id string) (*models.Flight, error) {
	f, ok := c.flights[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return f, nil
}

// SeatMap generates the seat definitions for a flight: 20 rows, columns A-F,
// rows 1-3 business. Availability is owned by the inventory, so every seat is
// reported available here.
func (c *Catalog) SeatMap(flightID string) ([]*models.Seat, error) {
	if _, ok := c.flights[flightID]; !ok {
		return nil, models.ErrNotFound
	}

	seats := make([]*models.Seat, 0, seatRows*len(seatColumns))
	for row := 1; row <= seatRows; row++ {
		class := models.SeatClassEconomy
		if row <= businessRowMax {
			class = models.SeatClassBusiness
		}
		for _, col := range seatColumns {
			seats = append(seats, &models.Seat{
				ID:       SeatID(flightID, row, col),
				FlightID: flightID,
				Row:      row,
				Column:   col,
				Class:    class,
				Status:   models.SeatStatusAvailable,
				Price:    models.SeatClassPrice(class),
			})
		}
	}
	return seats, nil
}

// SeatID builds the canonical seat id for a flight, row and column.
func SeatID(flightID string, row int, col string) string {
	return fmt.Sprintf("%s-%d%s", flightID, row, col)
}
