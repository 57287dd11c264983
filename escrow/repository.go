package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrDuplicateIdempotencyKey signals the replay guard hit an existing key.
	ErrDuplicateIdempotencyKey = errors.New("escrow: duplicate idempotency key")
	// ErrPaymentNotFound is returned when no payment row matches the lookup.
	ErrPaymentNotFound = errors.New("escrow: payment not found")
	// ErrNotFound is returned when no escrow record exists for the identifier.
	ErrNotFound = errors.New("escrow: not found")
	// ErrInvalidState signals the escrow or payment is not in the state the
	// requested transition needs.
	ErrInvalidState = errors.New("escrow: invalid state for transition")
)

// Repository provides escrow data access. Mutations run on the caller's
// transaction so the surrounding locks carry the state-machine guarantees.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertIdempotencyKey attempts to reserve the key inside the active transaction.
func (r *Repository) InsertIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) error {
	if key == "" {
		return fmt.Errorf("escrow: empty idempotency key")
	}

	_, err := tx.Exec(ctx, `INSERT INTO idempotency (key) VALUES ($1)`, key)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("escrow: insert idempotency key: %w", err)
	}

	return nil
}

const paymentColumns = `id, request_id, offer_id, payer_id, receiver_id, domain, amount, currency, status, created_at, updated_at`

// FindActivePayment returns the held payment for a request, if any, with its
// escrow record. Used to tolerate confirm replays.
func (r *Repository) FindActivePayment(ctx context.Context, tx pgx.Tx, requestID string) (Payment, Record, error) {
	const query = `
		SELECT p.id, p.request_id, p.offer_id, p.payer_id, p.receiver_id, p.domain, p.amount, p.currency,
		       p.status, p.created_at, p.updated_at,
		       e.id, e.payment_id, e.provider_ref, e.status, e.held_at, e.settled_at
		FROM payments p
		JOIN escrows e ON e.payment_id = p.id
		WHERE p.request_id = $1 AND p.status = 'held_in_escrow'
		LIMIT 1
	`

	var (
		p   Payment
		rec Record
	)
	err := tx.QueryRow(ctx, query, requestID).Scan(
		&p.ID, &p.RequestID, &p.OfferID, &p.PayerID, &p.ReceiverID, &p.Domain, &p.Amount, &p.Currency,
		&p.Status, &p.CreatedAt, &p.UpdatedAt,
		&rec.ID, &rec.PaymentID, &rec.ProviderRef, &rec.Status, &rec.HeldAt, &rec.SettledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, Record{}, ErrPaymentNotFound
		}
		return Payment{}, Record{}, fmt.Errorf("escrow: find active payment: %w", err)
	}
	return p, rec, nil
}

// InsertPayment creates the payment row for a confirmed match, already held.
func (r *Repository) InsertPayment(ctx context.Context, tx pgx.Tx, params MatchHoldParams) (Payment, error) {
	const query = `
		INSERT INTO payments (request_id, offer_id, payer_id, receiver_id, domain, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'held_in_escrow')
		RETURNING ` + paymentColumns

	var p Payment
	err := tx.QueryRow(ctx, query,
		params.RequestID,
		params.OfferID,
		params.PayerID,
		params.ReceiverID,
		params.Domain,
		params.Amount,
		params.Currency,
	).Scan(&p.ID, &p.RequestID, &p.OfferID, &p.PayerID, &p.ReceiverID, &p.Domain, &p.Amount, &p.Currency,
		&p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Payment{}, fmt.Errorf("escrow: insert payment: %w", err)
	}
	return p, nil
}

// InsertEscrow records the provider hold. The unique payment_id index keeps a
// second hold for the same payment from ever existing.
func (r *Repository) InsertEscrow(ctx context.Context, tx pgx.Tx, paymentID, providerRef string) (Record, error) {
	const query = `
		INSERT INTO escrows (payment_id, provider_ref, status)
		VALUES ($1, $2, 'held')
		RETURNING id, payment_id, provider_ref, status, held_at, settled_at
	`

	var rec Record
	err := tx.QueryRow(ctx, query, paymentID, providerRef).
		Scan(&rec.ID, &rec.PaymentID, &rec.ProviderRef, &rec.Status, &rec.HeldAt, &rec.SettledAt)
	if err != nil {
		return Record{}, fmt.Errorf("escrow: insert escrow: %w", err)
	}
	return rec, nil
}

// GetByEscrowID loads and locks an escrow with its payment.
func (r *Repository) GetByEscrowID(ctx context.Context, tx pgx.Tx, escrowID string) (Payment, Record, error) {
	const query = `
		SELECT p.id, p.request_id, p.offer_id, p.payer_id, p.receiver_id, p.domain, p.amount, p.currency,
		       p.status, p.created_at, p.updated_at,
		       e.id, e.payment_id, e.provider_ref, e.status, e.held_at, e.settled_at
		FROM escrows e
		JOIN payments p ON p.id = e.payment_id
		WHERE e.id = $1
		FOR UPDATE OF e, p
	`

	var (
		p   Payment
		rec Record
	)
	err := tx.QueryRow(ctx, query, escrowID).Scan(
		&p.ID, &p.RequestID, &p.OfferID, &p.PayerID, &p.ReceiverID, &p.Domain, &p.Amount, &p.Currency,
		&p.Status, &p.CreatedAt, &p.UpdatedAt,
		&rec.ID, &rec.PaymentID, &rec.ProviderRef, &rec.Status, &rec.HeldAt, &rec.SettledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, Record{}, ErrNotFound
		}
		return Payment{}, Record{}, fmt.Errorf("escrow: get by escrow id: %w", err)
	}
	return p, rec, nil
}

// GetHeldForRequest loads and locks the held payment+escrow pair for a
// request in the given domain.
func (r *Repository) GetHeldForRequest(ctx context.Context, tx pgx.Tx, requestID, domain string) (Payment, Record, error) {
	const query = `
		SELECT p.id, p.request_id, p.offer_id, p.payer_id, p.receiver_id, p.domain, p.amount, p.currency,
		       p.status, p.created_at, p.updated_at,
		       e.id, e.payment_id, e.provider_ref, e.status, e.held_at, e.settled_at
		FROM payments p
		JOIN escrows e ON e.payment_id = p.id
		WHERE p.request_id = $1 AND p.domain = $2 AND p.status = 'held_in_escrow'
		FOR UPDATE OF e, p
	`

	var (
		p   Payment
		rec Record
	)
	err := tx.QueryRow(ctx, query, requestID, domain).Scan(
		&p.ID, &p.RequestID, &p.OfferID, &p.PayerID, &p.ReceiverID, &p.Domain, &p.Amount, &p.Currency,
		&p.Status, &p.CreatedAt, &p.UpdatedAt,
		&rec.ID, &rec.PaymentID, &rec.ProviderRef, &rec.Status, &rec.HeldAt, &rec.SettledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, Record{}, ErrNotFound
		}
		return Payment{}, Record{}, fmt.Errorf("escrow: get held for request: %w", err)
	}
	return p, rec, nil
}

// MarkSettled flips the escrow and payment to their terminal state. The
// WHERE guards make the transition conditional so a raced or replayed settle
// cannot regress a terminal state.
func (r *Repository) MarkSettled(ctx context.Context, tx pgx.Tx, escrowID, paymentID string, next Status) error {
	if next != StatusReleased && next != StatusRefunded {
		return fmt.Errorf("escrow: %q is not a terminal status", next)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE escrows
		SET status = $2,
		    settled_at = now()
		WHERE id = $1 AND status = 'held'
	`, escrowID, next)
	if err != nil {
		return fmt.Errorf("escrow: settle escrow: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrInvalidState
	}

	paymentStatus := PaymentReleased
	if next == StatusRefunded {
		paymentStatus = PaymentRefunded
	}
	tag, err = tx.Exec(ctx, `
		UPDATE payments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1 AND status = 'held_in_escrow'
	`, paymentID, paymentStatus)
	if err != nil {
		return fmt.Errorf("escrow: settle payment: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrInvalidState
	}

	return nil
}

// GetPaymentByRequest returns the most recent payment for a request in the
// given domain, regardless of status.
func (r *Repository) GetPaymentByRequest(ctx context.Context, requestID, domain string) (Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE request_id = $1 AND domain = $2
		ORDER BY created_at DESC
		LIMIT 1`

	var p Payment
	err := r.pool.QueryRow(ctx, query, requestID, domain).Scan(
		&p.ID, &p.RequestID, &p.OfferID, &p.PayerID, &p.ReceiverID, &p.Domain, &p.Amount, &p.Currency,
		&p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrPaymentNotFound
		}
		return Payment{}, fmt.Errorf("escrow: get payment by request: %w", err)
	}
	return p, nil
}

// EscrowIDForPayment resolves the escrow row guarding a payment.
func (r *Repository) EscrowIDForPayment(ctx context.Context, paymentID string) (string, error) {
	var escrowID string
	err := r.pool.QueryRow(ctx, `SELECT id FROM escrows WHERE payment_id = $1`, paymentID).Scan(&escrowID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("escrow: escrow id for payment: %w", err)
	}
	return escrowID, nil
}

// GetPayment is the pool-backed read used by the API layer.
func (r *Repository) GetPayment(ctx context.Context, id string) (Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	var p Payment
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.RequestID, &p.OfferID, &p.PayerID, &p.ReceiverID, &p.Domain, &p.Amount, &p.Currency,
		&p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrPaymentNotFound
		}
		return Payment{}, fmt.Errorf("escrow: get payment: %w", err)
	}
	return p, nil
}
