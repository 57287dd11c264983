package request

import (
	"context"
	"errors"
	"testing"
	"time"
)

func validCreateParams() CreateParams {
	return CreateParams{
		UserID:           "user-1",
		Domain:           DomainFlightCompanion,
		FlightNumber:     "nz 289",
		FlightDate:       time.Now().AddDate(0, 0, 7),
		DepartureAirport: "akl",
		ArrivalAirport:   "PVG",
		OfferedAmount:    8000,
	}
}

func TestCreateRejectsUnknownDomain(t *testing.T) {
	svc := NewService(nil, &stubRepository{}, nil)

	params := validCreateParams()
	params.Domain = "carpool"

	if _, err := svc.Create(context.Background(), params); !errors.Is(err, ErrInvalidDomain) {
		t.Fatalf("expected ErrInvalidDomain, got %v", err)
	}
}

func TestCreateRejectsNonPositiveAmount(t *testing.T) {
	svc := NewService(nil, &stubRepository{}, nil)

	params := validCreateParams()
	params.OfferedAmount = 0

	if _, err := svc.Create(context.Background(), params); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestCreateRejectsPastFlight(t *testing.T) {
	svc := NewService(nil, &stubRepository{}, nil)

	params := validCreateParams()
	params.FlightDate = time.Now().AddDate(0, 0, -2)

	if _, err := svc.Create(context.Background(), params); !errors.Is(err, ErrFlightInPast) {
		t.Fatalf("expected ErrFlightInPast, got %v", err)
	}
}

func TestCreateRejectsSameAirports(t *testing.T) {
	svc := NewService(nil, &stubRepository{}, nil)

	params := validCreateParams()
	params.DepartureAirport = "AKL"
	params.ArrivalAirport = " akl "

	if _, err := svc.Create(context.Background(), params); err == nil {
		t.Fatalf("expected error for identical airports")
	}
}

func TestNormalizeFlightNumber(t *testing.T) {
	if got := normalizeFlightNumber(" nz 289 "); got != "NZ289" {
		t.Errorf("normalizeFlightNumber = %q, want NZ289", got)
	}
}

func TestNormalizeAirport(t *testing.T) {
	if got := normalizeAirport(" akl "); got != "AKL" {
		t.Errorf("normalizeAirport = %q, want AKL", got)
	}
}

// stubRepository satisfies Repository for validation-only paths that never
// reach the database.
type stubRepository struct {
	Repository
}
