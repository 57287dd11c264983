package offer

import "time"

// Status tracks an offer through its lifecycle. An offer is consumed by at
// most one successful match.
type Status string

const (
	StatusOpen      Status = "open"
	StatusMatched   Status = "matched"
	StatusWithdrawn Status = "withdrawn"
)

// Offer is a helper's bid to accompany a traveler or pick them up, priced in
// integer cents.
type Offer struct {
	ID               string
	UserID           string
	Domain           string
	FlightNumber     string
	Airline          string
	FlightDate       time.Time
	DepartureAirport string
	ArrivalAirport   string
	RequestedAmount  int64
	Currency         string
	Notes            *string
	Status           Status
	HelpedCount      int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Filters narrows List queries.
type Filters struct {
	UserID       string
	Domain       string
	Status       Status
	FlightNumber string
	Page         int
	PageSize     int
}
