package request

import "time"

// Domain discriminates the two marketplace sides a traveler can ask for.
type Domain string

const (
	DomainFlightCompanion Domain = "flight_companion"
	DomainPickup          Domain = "pickup"
)

// Status is the explicit request state machine. A request is matched at most
// once; matched/completed/cancelled requests never reopen.
type Status string

const (
	StatusOpen      Status = "open"
	StatusMatched   Status = "matched"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Request is a traveler's ask for in-flight assistance or an airport pickup.
// Amounts are integer cents.
type Request struct {
	ID               string
	UserID           string
	Domain           Domain
	FlightNumber     string
	Airline          string
	FlightDate       time.Time
	DepartureAirport string
	ArrivalAirport   string
	OfferedAmount    int64
	Currency         string
	Notes            *string
	Status           Status
	MatchedOfferID   *string
	CancelReason     *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Filters narrows List queries.
type Filters struct {
	UserID    string
	Domain    Domain
	Status    Status
	Airport   string
	Page      int
	PageSize  int
	SortKey   string
	SortOrder string
}

// ValidDomain reports whether d is a known request domain.
func ValidDomain(d Domain) bool {
	return d == DomainFlightCompanion || d == DomainPickup
}
