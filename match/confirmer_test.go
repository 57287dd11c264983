package match

import (
	"context"
	"errors"
	"testing"
	"time"

	"flightmate/escrow"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestConfirmRequiresIdentifiers(t *testing.T) {
	confirmer := NewConfirmer(nil, nil, nil)

	if _, err := confirmer.Confirm(context.Background(), ConfirmParams{OfferID: "off-1"}); err == nil {
		t.Fatalf("expected error for missing request id")
	}
	if _, err := confirmer.Confirm(context.Background(), ConfirmParams{RequestID: "req-1"}); err == nil {
		t.Fatalf("expected error for missing offer id")
	}
}

func TestConfirmMatchedRequestConflicts(t *testing.T) {
	pool := &fakePool{status: "matched"}
	holds := &fakeHolds{}
	confirmer := NewConfirmer(pool, holds, nil)

	_, err := confirmer.Confirm(context.Background(), ConfirmParams{
		RequestID: "req-1",
		OfferID:   "off-1",
		ActorID:   "traveler-1",
	})
	if !errors.Is(err, ErrAlreadyMatched) {
		t.Fatalf("expected ErrAlreadyMatched, got %v", err)
	}
	if holds.calls != 0 {
		t.Errorf("expected no escrow hold, got %d", holds.calls)
	}
	if pool.tx.committed {
		t.Errorf("expected the transaction to stay uncommitted")
	}
	if !pool.tx.rolled {
		t.Errorf("expected rollback")
	}
}

func TestConfirmCancelledRequestConflicts(t *testing.T) {
	pool := &fakePool{status: "cancelled"}
	confirmer := NewConfirmer(pool, &fakeHolds{}, nil)

	_, err := confirmer.Confirm(context.Background(), ConfirmParams{
		RequestID: "req-1",
		OfferID:   "off-1",
		ActorID:   "traveler-1",
	})
	if !errors.Is(err, ErrAlreadyMatched) {
		t.Fatalf("expected ErrAlreadyMatched, got %v", err)
	}
}

type fakeHolds struct {
	calls int
}

func (f *fakeHolds) HoldForMatch(ctx context.Context, tx pgx.Tx, params escrow.MatchHoldParams) (escrow.Payment, escrow.Record, error) {
	f.calls++
	return escrow.Payment{}, escrow.Record{}, nil
}

type fakePool struct {
	status string
	tx     *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{status: f.status}
	return f.tx, nil
}

// fakeTx serves the request lock query out of canned fields.
type fakeTx struct {
	status    string
	rolled    bool
	committed bool
}

type fakeRow struct {
	tx *fakeTx
}

func (r fakeRow) Scan(dest ...any) error {
	*dest[0].(*string) = "traveler-1"
	*dest[1].(*string) = "flight_companion"
	*dest[2].(*string) = r.tx.status
	*dest[3].(*string) = "NZ289"
	*dest[4].(*time.Time) = time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	*dest[5].(*string) = "AKL"
	*dest[6].(*string) = "PVG"
	*dest[7].(*int64) = 8000
	*dest[8].(*string) = "NZD"
	return nil
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	return fakeRow{tx: f}
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}

func TestSameFlight(t *testing.T) {
	day := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	base := lockedRequest{
		domain:           "flight_companion",
		flightNumber:     "NZ289",
		flightDate:       day,
		departureAirport: "AKL",
		arrivalAirport:   "PVG",
	}

	cases := []struct {
		name  string
		offer lockedOffer
		want  bool
	}{
		{
			name: "exact cover",
			offer: lockedOffer{
				domain: "flight_companion", flightNumber: "NZ289",
				flightDate: day.Add(6 * time.Hour), departureAirport: "AKL", arrivalAirport: "PVG",
			},
			want: true,
		},
		{
			name: "different flight",
			offer: lockedOffer{
				domain: "flight_companion", flightNumber: "NZ287",
				flightDate: day, departureAirport: "AKL", arrivalAirport: "PVG",
			},
			want: false,
		},
		{
			name: "different day",
			offer: lockedOffer{
				domain: "flight_companion", flightNumber: "NZ289",
				flightDate: day.AddDate(0, 0, 1), departureAirport: "AKL", arrivalAirport: "PVG",
			},
			want: false,
		},
		{
			name: "different domain",
			offer: lockedOffer{
				domain: "pickup", flightNumber: "NZ289",
				flightDate: day, departureAirport: "AKL", arrivalAirport: "PVG",
			},
			want: false,
		},
		{
			name: "different route",
			offer: lockedOffer{
				domain: "flight_companion", flightNumber: "NZ289",
				flightDate: day, departureAirport: "AKL", arrivalAirport: "SYD",
			},
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sameFlight(base, tc.offer); got != tc.want {
				t.Errorf("sameFlight = %v, want %v", got, tc.want)
			}
		})
	}
}
