package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"flightmate/escrow"
	"flightmate/match"
	"flightmate/notify"
)

// expectedConfirmErr reports contention outcomes the racers are allowed to hit.
func expectedConfirmErr(err error) bool {
	return errors.Is(err, match.ErrAlreadyMatched) ||
		errors.Is(err, match.ErrOfferUnavailable) ||
		errors.Is(err, match.ErrFlightMismatch) ||
		errors.Is(err, match.ErrSelfMatch) ||
		errors.Is(err, match.ErrRequestNotFound) ||
		errors.Is(err, match.ErrOfferNotFound)
}

func expectedSettleErr(err error) bool {
	return errors.Is(err, escrow.ErrNotFound) ||
		errors.Is(err, escrow.ErrPaymentNotFound) ||
		errors.Is(err, escrow.ErrInvalidState) ||
		errors.Is(err, escrow.ErrForbidden)
}

// MatchRacer hammers Confirm with a random offer against the same request.
// Under contention exactly one pairing must win; everything else is an
// expected conflict.
func MatchRacer(ctx context.Context, confirmer *match.Confirmer, travelerID, requestID string, offerIDs []string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		offerID := offerIDs[rand.Intn(len(offerIDs))]
		_, err := confirmer.Confirm(ctx, match.ConfirmParams{
			RequestID: requestID,
			OfferID:   offerID,
			ActorID:   travelerID,
		})
		if err != nil && !expectedConfirmErr(err) && !retriable(err) {
			return fmt.Errorf("match racer: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Completer repeatedly tries to complete the service for a request. It only
// succeeds once the request is matched, and at most once overall.
func Completer(ctx context.Context, svc *escrow.Service, actorID, requestID, domain string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		_, err := svc.CompleteService(ctx, escrow.CompleteServiceParams{
			RequestID: requestID,
			Domain:    domain,
			ActorID:   actorID,
		})
		if err != nil && !expectedSettleErr(err) && !retriable(err) {
			return fmt.Errorf("completer: %w", err)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Refunder races the completer: it looks for a held payment on the request
// and tries to refund it as an admin. Completion and refund must never both
// apply.
func Refunder(ctx context.Context, pool *pgxpool.Pool, svc *escrow.Service, adminID, requestID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var paymentID string
		err := pool.QueryRow(ctx, `SELECT id FROM payments WHERE request_id = $1 AND status = 'held_in_escrow'`, requestID).Scan(&paymentID)
		if err == nil {
			_, err = svc.RefundPayment(ctx, paymentID, adminID, "admin", nil)
			if err != nil && !expectedSettleErr(err) && !retriable(err) {
				return fmt.Errorf("refunder: %w", err)
			}
		}
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}

// OutboxDrainer runs the notification worker loop against the shared outbox.
func OutboxDrainer(ctx context.Context, worker *notify.Worker, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		if err := worker.DrainOnce(ctx); err != nil && !retriable(err) {
			return fmt.Errorf("outbox drainer: %w", err)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// OfferChurner keeps inserting and withdrawing offers on the contested
// flight so racers always have fresh rows to fight over.
func OfferChurner(ctx context.Context, pool *pgxpool.Pool, helperID, domain, flightNumber string, flightDate time.Time, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var offerID string
		err := pool.QueryRow(ctx, `
			INSERT INTO offers (user_id, domain, flight_number, flight_date, departure_airport, arrival_airport, requested_amount, currency, status)
			VALUES ($1, $2::service_domain, $3, $4, 'AKL', 'PVG', 5000, 'NZD', 'open')
			RETURNING id
		`, helperID, domain, flightNumber, flightDate).Scan(&offerID)
		if err != nil {
			if !retriable(err) {
				return fmt.Errorf("offer churner insert: %w", err)
			}
		} else if rand.Intn(2) == 0 {
			_, _ = pool.Exec(ctx, `UPDATE offers SET status = 'withdrawn', updated_at = now() WHERE id = $1 AND status = 'open'`, offerID)
		}
		time.Sleep(time.Duration(40+rand.Intn(60)) * time.Millisecond)
	}
}

// Disputer opens disputes against settledless payments and resolves them via
// raw conditional updates, mirroring the admin path.
func Disputer(ctx context.Context, pool *pgxpool.Pool, openerID, requestID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var dispID string
		_ = pool.QueryRow(ctx, `
			INSERT INTO disputes (payment_id, opened_by, reason, status)
			SELECT p.id, $2, 'stress probe', 'under_review'
			FROM payments p
			WHERE p.request_id = $1 AND p.status = 'held_in_escrow'
			  AND NOT EXISTS (SELECT 1 FROM disputes d WHERE d.payment_id = p.id AND d.status = 'under_review')
			RETURNING id
		`, requestID, openerID).Scan(&dispID)
		if dispID != "" {
			_, _ = pool.Exec(ctx, `
				UPDATE disputes SET status = 'resolved', resolution = 'released', resolved_at = now(), updated_at = now()
				WHERE id = $1 AND status = 'under_review'
			`, dispID)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// retriable treats connection-level failures as noise. Chaos kills backends
// at random, so actors reconnect through the pool and try again.
func retriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// admin shutdown, crash shutdown, serialization failure, unique race
		switch pgErr.Code {
		case "57P01", "57P02", "40001", "40P01", "23505":
			return true
		}
	}
	if pgconn.SafeToRetry(err) {
		return true
	}
	// pgx's closed-connection sentinel lives in an internal package, so
	// match by message.
	msg := err.Error()
	return strings.Contains(msg, "conn closed") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "unexpected EOF")
}
