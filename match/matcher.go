package match

import (
	"context"
	"errors"
	"fmt"

	"flightmate/offer"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrRequestNotFound = errors.New("match: request not found")
	ErrOfferNotFound   = errors.New("match: offer not found")
)

// Matcher finds candidate offers for a request. Pure read path, no side
// effects.
type Matcher struct {
	pool *pgxpool.Pool
}

func NewMatcher(pool *pgxpool.Pool) *Matcher {
	return &Matcher{pool: pool}
}

// FindMatches returns open offers on the exact same flight and route as the
// request, cheapest first. Price ordering deliberately favors the traveler.
func (m *Matcher) FindMatches(ctx context.Context, requestID string) ([]offer.Offer, error) {
	var exists bool
	if err := m.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM requests WHERE id=$1)`, requestID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("match: verify request: %w", err)
	}
	if !exists {
		return nil, ErrRequestNotFound
	}

	const query = `
		SELECT o.id, o.user_id, o.domain, o.flight_number, o.airline, o.flight_date, o.departure_airport,
		       o.arrival_airport, o.requested_amount, o.currency, o.notes, o.status, o.helped_count,
		       o.created_at, o.updated_at
		FROM offers o
		JOIN requests r ON r.id = $1
		WHERE o.status = 'open'
		  AND o.domain = r.domain
		  AND o.flight_number = r.flight_number
		  AND o.flight_date::date = r.flight_date::date
		  AND o.departure_airport = r.departure_airport
		  AND o.arrival_airport = r.arrival_airport
		  AND o.user_id <> r.user_id
		ORDER BY o.requested_amount ASC, o.created_at ASC
	`

	rows, err := m.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("match: query candidates: %w", err)
	}
	defer rows.Close()

	candidates := make([]offer.Offer, 0, 8)
	for rows.Next() {
		var o offer.Offer
		if err := rows.Scan(
			&o.ID,
			&o.UserID,
			&o.Domain,
			&o.FlightNumber,
			&o.Airline,
			&o.FlightDate,
			&o.DepartureAirport,
			&o.ArrivalAirport,
			&o.RequestedAmount,
			&o.Currency,
			&o.Notes,
			&o.Status,
			&o.HelpedCount,
			&o.CreatedAt,
			&o.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("match: scan candidate: %w", err)
		}
		candidates = append(candidates, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("match: iterate candidates: %w", err)
	}
	return candidates, nil
}
