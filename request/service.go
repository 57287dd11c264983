package request

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
	Domain           Domain
	FlightNumber     string
	Airline          string
	FlightDate       time.Time
	DepartureAirport string
	ArrivalAirport   string
	OfferedAmount    int64
	Currency         string
	Notes            *string
}

type UpdateParams struct {
	RequestID        string
	ActorID          string
	FlightNumber     string
	Airline          string
	FlightDate       time.Time
	DepartureAirport string
	ArrivalAirport   string
	OfferedAmount    int64
	Notes            *string
}

type ListResult struct {
	Items []Request
	Total int
}

var (
	ErrInvalidAmount      = errors.New("request: offered amount must be positive")
	ErrFlightInPast       = errors.New("request: flight date is in the past")
	ErrInvalidDomain      = errors.New("request: unknown domain")
	ErrEditForbidden      = errors.New("request: edit forbidden")
	ErrEditInvalidState   = errors.New("request: only open requests can be edited")
	ErrCancelForbidden    = errors.New("request: cancel forbidden")
	ErrCancelInvalidState = errors.New("request: cancel invalid state")
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

func (s *Service) Create(ctx context.Context, params CreateParams) (Request, error) {
	if params.UserID == "" {
		return Request{}, fmt.Errorf("request: missing user id")
	}
	if !ValidDomain(params.Domain) {
		return Request{}, ErrInvalidDomain
	}
	if err := validateFlight(params.FlightNumber, params.DepartureAirport, params.ArrivalAirport); err != nil {
		return Request{}, err
	}
	if params.OfferedAmount <= 0 {
		return Request{}, ErrInvalidAmount
	}
	if params.FlightDate.Before(s.now().Truncate(24 * time.Hour)) {
		return Request{}, ErrFlightInPast
	}

	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "NZD"
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Request{}, fmt.Errorf("request: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	req := Request{
		ID:               s.idGenerator(),
		UserID:           params.UserID,
		Domain:           params.Domain,
		FlightNumber:     normalizeFlightNumber(params.FlightNumber),
		Airline:          strings.TrimSpace(params.Airline),
		FlightDate:       params.FlightDate,
		DepartureAirport: normalizeAirport(params.DepartureAirport),
		ArrivalAirport:   normalizeAirport(params.ArrivalAirport),
		OfferedAmount:    params.OfferedAmount,
		Currency:         currency,
		Notes:            params.Notes,
		Status:           StatusOpen,
	}

	created, err := s.repo.Create(ctx, tx, req)
	if err != nil {
		return Request{}, err
	}

	if s.outbox != nil {
		payload := map[string]any{
			"request_id": created.ID,
			"domain":     created.Domain,
			"flight":     created.FlightNumber,
		}
		if err := s.outbox.Enqueue(ctx, tx, "request.created", payload); err != nil {
			return Request{}, fmt.Errorf("request: enqueue outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Request{}, fmt.Errorf("request: commit tx: %w", err)
	}

	return created, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (Request, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filters Filters) (ListResult, error) {
	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: items, Total: total}, nil
}

// Update rewrites the owner-editable fields of a still-open request.
func (s *Service) Update(ctx context.Context, params UpdateParams) (Request, error) {
	if params.RequestID == "" {
		return Request{}, fmt.Errorf("request: update missing request id")
	}
	if err := validateFlight(params.FlightNumber, params.DepartureAirport, params.ArrivalAirport); err != nil {
		return Request{}, err
	}
	if params.OfferedAmount <= 0 {
		return Request{}, ErrInvalidAmount
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Request{}, fmt.Errorf("request: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.repo.GetForUpdate(ctx, tx, params.RequestID)
	if err != nil {
		return Request{}, err
	}
	if current.UserID != params.ActorID {
		return Request{}, ErrEditForbidden
	}
	if current.Status != StatusOpen {
		return Request{}, ErrEditInvalidState
	}

	current.FlightNumber = normalizeFlightNumber(params.FlightNumber)
	current.Airline = strings.TrimSpace(params.Airline)
	current.FlightDate = params.FlightDate
	current.DepartureAirport = normalizeAirport(params.DepartureAirport)
	current.ArrivalAirport = normalizeAirport(params.ArrivalAirport)
	current.OfferedAmount = params.OfferedAmount
	current.Notes = params.Notes

	updated, err := s.repo.UpdateFields(ctx, tx, current)
	if err != nil {
		return Request{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Request{}, fmt.Errorf("request: update commit: %w", err)
	}
	return updated, nil
}

type CancelParams struct {
	RequestID string
	ActorID   string
	ActorRole string
	Reason    *string
}

// Cancel closes an unmatched request. Admins may cancel on behalf of users.
func (s *Service) Cancel(ctx context.Context, params CancelParams) (Request, error) {
	if params.RequestID == "" {
		return Request{}, fmt.Errorf("request: cancel missing request id")
	}
	if params.ActorID == "" {
		return Request{}, fmt.Errorf("request: cancel missing actor id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Request{}, fmt.Errorf("request: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	req, err := s.repo.GetForUpdate(ctx, tx, params.RequestID)
	if err != nil {
		return Request{}, err
	}

	actorRole := strings.ToLower(params.ActorRole)
	if actorRole != "admin" && req.UserID != params.ActorID {
		return Request{}, ErrCancelForbidden
	}
	if req.Status != StatusOpen {
		return Request{}, ErrCancelInvalidState
	}

	var reason *string
	if params.Reason != nil {
		trimmed := strings.TrimSpace(*params.Reason)
		if trimmed != "" {
			reason = &trimmed
		}
	}

	updated, err := s.repo.UpdateStatus(ctx, tx, params.RequestID, StatusCancelled, reason)
	if err != nil {
		return Request{}, err
	}

	if s.outbox != nil {
		payload := map[string]any{
			"request_id": updated.ID,
			"status":     updated.Status,
		}
		if updated.CancelReason != nil {
			payload["reason"] = *updated.CancelReason
		}
		if err := s.outbox.Enqueue(ctx, tx, "request.cancelled", payload); err != nil {
			return Request{}, fmt.Errorf("request: enqueue cancel outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Request{}, fmt.Errorf("request: cancel commit: %w", err)
	}

	return updated, nil
}

func validateFlight(flightNumber, departure, arrival string) error {
	if strings.TrimSpace(flightNumber) == "" {
		return fmt.Errorf("request: flight number required")
	}
	if strings.TrimSpace(departure) == "" || strings.TrimSpace(arrival) == "" {
		return fmt.Errorf("request: departure and arrival airports required")
	}
	if normalizeAirport(departure) == normalizeAirport(arrival) {
		return fmt.Errorf("request: departure and arrival airports must differ")
	}
	return nil
}

func normalizeFlightNumber(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}

func normalizeAirport(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
