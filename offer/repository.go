package offer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("offer: not found")
)

type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, o Offer) (Offer, error)
	GetByID(ctx context.Context, id string) (Offer, error)
	List(ctx context.Context, filters Filters) ([]Offer, int, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Offer, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status Status) (Offer, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const offerColumns = `id, user_id, domain, flight_number, airline, flight_date, departure_airport,
	arrival_airport, requested_amount, currency, notes, status, helped_count, created_at, updated_at`

func (r *PGRepository) Create(ctx context.Context, tx pgx.Tx, o Offer) (Offer, error) {
	const query = `
        INSERT INTO offers (id, user_id, domain, flight_number, airline, flight_date, departure_airport,
            arrival_airport, requested_amount, currency, notes, status)
        VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING ` + offerColumns

	row := tx.QueryRow(ctx, query,
		o.ID,
		o.UserID,
		o.Domain,
		o.FlightNumber,
		o.Airline,
		o.FlightDate,
		o.DepartureAirport,
		o.ArrivalAirport,
		o.RequestedAmount,
		o.Currency,
		o.Notes,
		o.Status,
	)

	created, err := scanOffer(row)
	if err != nil {
		return Offer{}, fmt.Errorf("offer: create: %w", err)
	}
	return created, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1`

	o, err := scanOffer(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Offer{}, ErrNotFound
		}
		return Offer{}, fmt.Errorf("offer: get by id: %w", err)
	}
	return o, nil
}

func (r *PGRepository) List(ctx context.Context, filters Filters) ([]Offer, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	base := `SELECT ` + offerColumns + ` FROM offers`
	where := []string{"1=1"}
	args := []any{}

	if filters.UserID != "" {
		where = append(where, fmt.Sprintf("user_id=$%d", len(args)+1))
		args = append(args, filters.UserID)
	}
	if filters.Domain != "" {
		where = append(where, fmt.Sprintf("domain=$%d", len(args)+1))
		args = append(args, filters.Domain)
	}
	if filters.Status != "" {
		where = append(where, fmt.Sprintf("status=$%d", len(args)+1))
		args = append(args, filters.Status)
	}
	if filters.FlightNumber != "" {
		where = append(where, fmt.Sprintf("flight_number=$%d", len(args)+1))
		args = append(args, filters.FlightNumber)
	}

	whereClause := " WHERE " + strings.Join(where, " AND ")

	limit := filters.PageSize
	offset := (filters.Page - 1) * filters.PageSize

	query := fmt.Sprintf(`%s%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, base, whereClause, limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("offer: query list: %w", err)
	}
	defer rows.Close()

	list := []Offer{}
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("offer: scan list row: %w", err)
		}
		list = append(list, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("offer: iterate list: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM offers%s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("offer: count list: %w", err)
	}

	return list, total, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1 FOR UPDATE`

	o, err := scanOffer(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Offer{}, ErrNotFound
		}
		return Offer{}, fmt.Errorf("offer: get for update: %w", err)
	}
	return o, nil
}

func (r *PGRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status Status) (Offer, error) {
	query := `
		UPDATE offers
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + offerColumns

	o, err := scanOffer(tx.QueryRow(ctx, query, id, status))
	if err != nil {
		return Offer{}, fmt.Errorf("offer: update status: %w", err)
	}
	return o, nil
}

func scanOffer(row pgx.Row) (Offer, error) {
	var o Offer
	return o, row.Scan(
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
	)
}
