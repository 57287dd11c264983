package offer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxWriter appends a notification message inside the caller's transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

type Service struct {
	pool        *pgxpool.Pool
	repo        Repository
	outbox      OutboxWriter
	idGenerator func() string
	now         func() time.Time
}

type CreateParams struct {
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
}

type ListResult struct {
	Items []Offer
	Total int
}

var (
	ErrInvalidAmount        = errors.New("offer: requested amount must be positive")
	ErrFlightInPast         = errors.New("offer: flight date is in the past")
	ErrWithdrawForbidden    = errors.New("offer: withdraw forbidden")
	ErrWithdrawInvalidState = errors.New("offer: only open offers can be withdrawn")
)

func NewService(pool *pgxpool.Pool, repo Repository, outbox OutboxWriter) *Service {
	if repo == nil {
		repo = NewRepository(pool)
	}
	return &Service{
		pool:        pool,
		repo:        repo,
		outbox:      outbox,
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Create(ctx context.Context, params CreateParams) (Offer, error) {
	if params.UserID == "" {
		return Offer{}, fmt.Errorf("offer: missing user id")
	}
	if params.Domain != "flight_companion" && params.Domain != "pickup" {
		return Offer{}, fmt.Errorf("offer: unknown domain %q", params.Domain)
	}
	if strings.TrimSpace(params.FlightNumber) == "" {
		return Offer{}, fmt.Errorf("offer: flight number required")
	}
	if strings.TrimSpace(params.DepartureAirport) == "" || strings.TrimSpace(params.ArrivalAirport) == "" {
		return Offer{}, fmt.Errorf("offer: departure and arrival airports required")
	}
	if params.RequestedAmount <= 0 {
		return Offer{}, ErrInvalidAmount
	}
	if params.FlightDate.Before(s.now().Truncate(24 * time.Hour)) {
		return Offer{}, ErrFlightInPast
	}

	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "NZD"
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Offer{}, fmt.Errorf("offer: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	o := Offer{
		ID:               s.idGenerator(),
		UserID:           params.UserID,
		Domain:           params.Domain,
		FlightNumber:     strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(params.FlightNumber), " ", "")),
		Airline:          strings.TrimSpace(params.Airline),
		FlightDate:       params.FlightDate,
		DepartureAirport: strings.ToUpper(strings.TrimSpace(params.DepartureAirport)),
		ArrivalAirport:   strings.ToUpper(strings.TrimSpace(params.ArrivalAirport)),
		RequestedAmount:  params.RequestedAmount,
		Currency:         currency,
		Notes:            params.Notes,
		Status:           StatusOpen,
	}

	created, err := s.repo.Create(ctx, tx, o)
	if err != nil {
		return Offer{}, err
	}

	if s.outbox != nil {
		payload := map[string]any{
			"offer_id": created.ID,
			"domain":   created.Domain,
			"flight":   created.FlightNumber,
		}
		if err := s.outbox.Enqueue(ctx, tx, "offer.created", payload); err != nil {
			return Offer{}, fmt.Errorf("offer: enqueue outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Offer{}, fmt.Errorf("offer: commit tx: %w", err)
	}

	return created, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (Offer, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filters Filters) (ListResult, error) {
	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: items, Total: total}, nil
}

// Withdraw takes a still-open offer off the market.
func (s *Service) Withdraw(ctx context.Context, offerID, actorID string) (Offer, error) {
	if offerID == "" {
		return Offer{}, fmt.Errorf("offer: withdraw missing offer id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Offer{}, fmt.Errorf("offer: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	o, err := s.repo.GetForUpdate(ctx, tx, offerID)
	if err != nil {
		return Offer{}, err
	}
	if o.UserID != actorID {
		return Offer{}, ErrWithdrawForbidden
	}
	if o.Status != StatusOpen {
		return Offer{}, ErrWithdrawInvalidState
	}

	updated, err := s.repo.UpdateStatus(ctx, tx, offerID, StatusWithdrawn)
	if err != nil {
		return Offer{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Offer{}, fmt.Errorf("offer: withdraw commit: %w", err)
	}
	return updated, nil
}
