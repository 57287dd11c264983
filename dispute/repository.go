package dispute

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound  = errors.New("dispute: not found")
	ErrForbidden = errors.New("dispute: forbidden")
	ErrBadStatus = errors.New("dispute: invalid status transition")
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const disputeColumns = `d.id, d.payment_id, d.opened_by, d.reason, d.status::text, d.resolution, d.created_at, d.updated_at, d.resolved_at`

// List returns disputes on payments the user is a party to.
func (r *Repository) List(ctx context.Context, userID string, paymentID string) ([]Record, error) {
	query := `
		SELECT ` + disputeColumns + `
		FROM disputes d
		JOIN payments p ON p.id = d.payment_id
		WHERE (p.payer_id = $1 OR p.receiver_id = $1)
	`
	args := []any{userID}
	if paymentID != "" {
		query += " AND d.payment_id = $2"
		args = append(args, paymentID)
	}
	query += " ORDER BY d.created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dispute: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.PaymentID, &rec.OpenedBy, &rec.Reason, &rec.Status, &rec.Resolution, &rec.CreatedAt, &rec.UpdatedAt, &rec.ResolvedAt); err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate: %w", err)
	}
	return out, nil
}

// Create opens a dispute on a held payment. The party guard is part of the
// insert so an outsider gets ErrForbidden, not a row.
func (r *Repository) Create(ctx context.Context, userID, paymentID string, reason *string) (Record, error) {
	const query = `
		INSERT INTO disputes (payment_id, opened_by, reason, status)
		SELECT p.id, $2, $3, 'under_review'
		FROM payments p
		WHERE p.id = $1
		  AND (p.payer_id = $2 OR p.receiver_id = $2)
		  AND p.status = 'held_in_escrow'
		RETURNING id, payment_id, opened_by, reason, status::text, resolution, created_at, updated_at, resolved_at
	`

	var rec Record
	err := r.pool.QueryRow(ctx, query, paymentID, userID, reason).
		Scan(&rec.ID, &rec.PaymentID, &rec.OpenedBy, &rec.Reason, &rec.Status, &rec.Resolution, &rec.CreatedAt, &rec.UpdatedAt, &rec.ResolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrForbidden
		}
		return Record{}, fmt.Errorf("dispute: create: %w", err)
	}
	return rec, nil
}

// GetByID returns a dispute with the escrow id backing its payment.
func (r *Repository) GetByID(ctx context.Context, disputeID string) (Record, string, error) {
	const query = `
		SELECT ` + disputeColumns + `, e.id
		FROM disputes d
		JOIN payments p ON p.id = d.payment_id
		JOIN escrows e ON e.payment_id = p.id
		WHERE d.id = $1
	`

	var (
		rec      Record
		escrowID string
	)
	err := r.pool.QueryRow(ctx, query, disputeID).
		Scan(&rec.ID, &rec.PaymentID, &rec.OpenedBy, &rec.Reason, &rec.Status, &rec.Resolution, &rec.CreatedAt, &rec.UpdatedAt, &rec.ResolvedAt, &escrowID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, "", ErrNotFound
		}
		return Record{}, "", fmt.Errorf("dispute: get: %w", err)
	}
	return rec, escrowID, nil
}

// MarkResolved records the outcome. Conditional on the dispute still being
// under review so a raced resolve cannot apply twice.
func (r *Repository) MarkResolved(ctx context.Context, disputeID string, resolution Resolution) (Record, error) {
	const query = `
		UPDATE disputes d
		SET status = 'resolved',
		    resolution = $2,
		    resolved_at = now(),
		    updated_at = now()
		WHERE d.id = $1 AND d.status = 'under_review'
		RETURNING id, payment_id, opened_by, reason, status::text, resolution, created_at, updated_at, resolved_at
	`

	var rec Record
	err := r.pool.QueryRow(ctx, query, disputeID, resolution).
		Scan(&rec.ID, &rec.PaymentID, &rec.OpenedBy, &rec.Reason, &rec.Status, &rec.Resolution, &rec.CreatedAt, &rec.UpdatedAt, &rec.ResolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrBadStatus
		}
		return Record{}, fmt.Errorf("dispute: resolve: %w", err)
	}
	return rec, nil
}
