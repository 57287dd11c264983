package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flightmate/escrow"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrAlreadyMatched signals the request already left the open state.
	ErrAlreadyMatched = errors.New("match: request already matched")
	// ErrOfferUnavailable signals the offer was consumed or withdrawn.
	ErrOfferUnavailable = errors.New("match: offer is not available")
	// ErrForbidden signals the actor does not own the request.
	ErrForbidden = errors.New("match: actor does not own request")
	// ErrFlightMismatch signals the offer is not for the request's flight.
	ErrFlightMismatch = errors.New("match: offer does not cover the request's flight")
	// ErrSelfMatch signals a user trying to accept their own offer.
	ErrSelfMatch = errors.New("match: cannot match a request with its owner's offer")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// HoldService places the escrow hold inside the confirmation transaction.
type HoldService interface {
	HoldForMatch(ctx context.Context, tx pgx.Tx, params escrow.MatchHoldParams) (escrow.Payment, escrow.Record, error)
}

// OutboxWriter appends a notification message inside the caller's transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Confirmer performs the atomic match transition: request open->matched,
// offer open->matched, payment created and held, all in one commit.
type Confirmer struct {
	pool   TxBeginner
	holds  HoldService
	outbox OutboxWriter
	now    func() time.Time
}

func NewConfirmer(pool TxBeginner, holds HoldService, outbox OutboxWriter) *Confirmer {
	return &Confirmer{
		pool:   pool,
		holds:  holds,
		outbox: outbox,
		now:    time.Now,
	}
}

func (c *Confirmer) WithClock(now func() time.Time) *Confirmer {
	c.now = now
	return c
}

// ConfirmParams identifies the pairing to lock in.
type ConfirmParams struct {
	RequestID string
	OfferID   string
	ActorID   string
}

// Result is the state committed by a successful confirmation.
type Result struct {
	RequestID string
	OfferID   string
	Payment   escrow.Payment
	Escrow    escrow.Record
}

type lockedRequest struct {
	userID           string
	domain           string
	status           string
	flightNumber     string
	flightDate       time.Time
	departureAirport string
	arrivalAirport   string
	offeredAmount    int64
	currency         string
}

type lockedOffer struct {
	userID           string
	domain           string
	status           string
	flightNumber     string
	flightDate       time.Time
	departureAirport string
	arrivalAirport   string
}

// Confirm pairs a request with an offer. Both rows are locked FOR UPDATE and
// flipped with conditional updates, so two racing confirms against the same
// offer or request resolve to exactly one winner. Any confirm against a
// request that already left the open state fails with ErrAlreadyMatched,
// including a retry of the winning pair.
func (c *Confirmer) Confirm(ctx context.Context, params ConfirmParams) (Result, error) {
	if params.RequestID == "" || params.OfferID == "" {
		return Result{}, fmt.Errorf("match: confirm missing request or offer id")
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("match: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	req, err := lockRequest(ctx, tx, params.RequestID)
	if err != nil {
		return Result{}, err
	}
	if params.ActorID != "" && req.userID != params.ActorID {
		return Result{}, ErrForbidden
	}

	if req.status != "open" {
		return Result{}, ErrAlreadyMatched
	}

	off, err := lockOffer(ctx, tx, params.OfferID)
	if err != nil {
		return Result{}, err
	}
	if off.status != "open" {
		return Result{}, ErrOfferUnavailable
	}
	if off.userID == req.userID {
		return Result{}, ErrSelfMatch
	}
	if !sameFlight(req, off) {
		return Result{}, ErrFlightMismatch
	}

	tag, err := tx.Exec(ctx, `
		UPDATE requests
		SET status = 'matched',
		    matched_offer_id = $2,
		    updated_at = now()
		WHERE id = $1 AND status = 'open'
	`, params.RequestID, params.OfferID)
	if err != nil {
		return Result{}, fmt.Errorf("match: mark request matched: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return Result{}, ErrAlreadyMatched
	}

	tag, err = tx.Exec(ctx, `
		UPDATE offers
		SET status = 'matched',
		    helped_count = helped_count + 1,
		    updated_at = now()
		WHERE id = $1 AND status = 'open'
	`, params.OfferID)
	if err != nil {
		return Result{}, fmt.Errorf("match: mark offer matched: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return Result{}, ErrOfferUnavailable
	}

	// The price fixed by the match is the traveler's offered amount.
	payment, rec, err := c.holds.HoldForMatch(ctx, tx, escrow.MatchHoldParams{
		RequestID:  params.RequestID,
		OfferID:    params.OfferID,
		PayerID:    req.userID,
		ReceiverID: off.userID,
		Domain:     req.domain,
		Amount:     req.offeredAmount,
		Currency:   req.currency,
	})
	if err != nil {
		return Result{}, err
	}

	if c.outbox != nil {
		payload := map[string]any{
			"request_id":  params.RequestID,
			"offer_id":    params.OfferID,
			"payment_id":  payment.ID,
			"payer_id":    payment.PayerID,
			"receiver_id": payment.ReceiverID,
			"amount":      payment.Amount,
			"matched_at":  c.now().UTC(),
		}
		if err := c.outbox.Enqueue(ctx, tx, "match.confirmed", payload); err != nil {
			return Result{}, fmt.Errorf("match: enqueue outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("match: commit confirmation: %w", err)
	}

	return Result{
		RequestID: params.RequestID,
		OfferID:   params.OfferID,
		Payment:   payment,
		Escrow:    rec,
	}, nil
}

func lockRequest(ctx context.Context, tx pgx.Tx, id string) (lockedRequest, error) {
	const query = `
		SELECT user_id, domain, status, flight_number, flight_date,
		       departure_airport, arrival_airport, offered_amount, currency
		FROM requests
		WHERE id = $1
		FOR UPDATE
	`
	var req lockedRequest
	err := tx.QueryRow(ctx, query, id).Scan(
		&req.userID,
		&req.domain,
		&req.status,
		&req.flightNumber,
		&req.flightDate,
		&req.departureAirport,
		&req.arrivalAirport,
		&req.offeredAmount,
		&req.currency,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return lockedRequest{}, ErrRequestNotFound
		}
		return lockedRequest{}, fmt.Errorf("match: lock request: %w", err)
	}
	return req, nil
}

func lockOffer(ctx context.Context, tx pgx.Tx, id string) (lockedOffer, error) {
	const query = `
		SELECT user_id, domain, status, flight_number, flight_date, departure_airport, arrival_airport
		FROM offers
		WHERE id = $1
		FOR UPDATE
	`
	var off lockedOffer
	err := tx.QueryRow(ctx, query, id).Scan(
		&off.userID,
		&off.domain,
		&off.status,
		&off.flightNumber,
		&off.flightDate,
		&off.departureAirport,
		&off.arrivalAirport,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return lockedOffer{}, ErrOfferNotFound
		}
		return lockedOffer{}, fmt.Errorf("match: lock offer: %w", err)
	}
	return off, nil
}

func sameFlight(req lockedRequest, off lockedOffer) bool {
	sameDay := req.flightDate.Truncate(24 * time.Hour).Equal(off.flightDate.Truncate(24 * time.Hour))
	return req.domain == off.domain &&
		req.flightNumber == off.flightNumber &&
		sameDay &&
		req.departureAirport == off.departureAirport &&
		req.arrivalAirport == off.arrivalAirport
}
