package match

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"flightmate/offer"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestFindMatchesOrdersOpenOffersByPrice(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	for _, tbl := range []string{"users", "requests", "offers"} {
		if !tableExists(ctx, pool, tbl) {
			t.Skipf("table %s does not exist; ensure migrations are applied", tbl)
		}
	}

	mustInsert := func(query string, args ...any) string {
		var id string
		if err := pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
			t.Fatalf("seed statement failed: %v", err)
		}
		return id
	}

	nano := time.Now().UnixNano()
	flightDate := time.Now().AddDate(0, 0, 14)

	travelerID := mustInsert(`INSERT INTO users (email, full_name, password_hash, role) VALUES ($1, $2, 'x', 'traveler') RETURNING id`,
		fmt.Sprintf("traveler+%d@example.com", nano), "Traveler One")
	helperIDs := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		helperIDs = append(helperIDs, mustInsert(`INSERT INTO users (email, full_name, password_hash, role) VALUES ($1, $2, 'x', 'helper') RETURNING id`,
			fmt.Sprintf("helper%d+%d@example.com", i, nano), fmt.Sprintf("Helper %d", i)))
	}

	requestID := mustInsert(`
        INSERT INTO requests (user_id, domain, flight_number, flight_date, departure_airport, arrival_airport, offered_amount, currency, status)
        VALUES ($1, 'flight_companion', 'NZ289', $2, 'AKL', 'PVG', 8000, 'NZD', 'open')
        RETURNING id
    `, travelerID, flightDate)

	seedOffer := func(userID string, amount int64, status, flightNumber string) string {
		return mustInsert(`
            INSERT INTO offers (user_id, domain, flight_number, flight_date, departure_airport, arrival_airport, requested_amount, currency, status)
            VALUES ($1, 'flight_companion', $2, $3, 'AKL', 'PVG', $4, 'NZD', $5::offer_status)
            RETURNING id
        `, userID, flightNumber, flightDate, amount, status)
	}

	pricierOpen := seedOffer(helperIDs[0], 7000, "open", "NZ289")
	cheapOpen := seedOffer(helperIDs[1], 6500, "open", "NZ289")
	matchedCheapest := seedOffer(helperIDs[2], 6000, "matched", "NZ289")
	withdrawnCheapest := seedOffer(helperIDs[2], 5000, "withdrawn", "NZ289")
	wrongFlight := seedOffer(helperIDs[3], 5500, "open", "NZ287")
	selfOffer := seedOffer(travelerID, 5200, "open", "NZ289")

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM offers WHERE id IN ($1, $2, $3, $4, $5, $6)`,
			pricierOpen, cheapOpen, matchedCheapest, withdrawnCheapest, wrongFlight, selfOffer)
		pool.Exec(ctx2, `DELETE FROM requests WHERE id = $1`, requestID)
		pool.Exec(ctx2, `DELETE FROM users WHERE id = ANY($1)`, append(helperIDs, travelerID))
	})

	matcher := NewMatcher(pool)

	offers, err := matcher.FindMatches(ctx, requestID)
	if err != nil {
		t.Fatalf("find matches: %v", err)
	}
	if len(offers) != 2 {
		for _, o := range offers {
			t.Logf("candidate %s status=%s amount=%d", o.ID, o.Status, o.RequestedAmount)
		}
		t.Fatalf("expected two candidates, got %d", len(offers))
	}
	if offers[0].ID != cheapOpen || offers[1].ID != pricierOpen {
		t.Fatalf("expected cheapest-first order [%s, %s], got [%s, %s]",
			cheapOpen, pricierOpen, offers[0].ID, offers[1].ID)
	}
	for _, o := range offers {
		if o.Status != offer.StatusOpen {
			t.Errorf("candidate %s is not open: %s", o.ID, o.Status)
		}
	}

	if _, err := matcher.FindMatches(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound for unknown request, got %v", err)
	}
}
