package helper

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the requested helper does not exist.
var ErrNotFound = errors.New("helper: not found")

// Repository provides read access to helper profiles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID fetches a helper profile by user id.
func (r *Repository) GetByID(ctx context.Context, id string) (Profile, error) {
	const query = `
		SELECT u.id, u.full_name, u.rating, COALESCE(SUM(o.helped_count), 0), u.created_at
		FROM users u
		LEFT JOIN offers o ON o.user_id = u.id
		WHERE u.id = $1 AND u.role = 'helper'
		GROUP BY u.id
	`

	var profile Profile
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&profile.ID,
		&profile.FullName,
		&profile.Rating,
		&profile.HelpedCount,
		&profile.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("helper: query by id: %w", err)
	}

	return profile, nil
}

// List fetches up to limit helper profiles, best rated first.
func (r *Repository) List(ctx context.Context, limit int) ([]Profile, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	const query = `
		SELECT u.id, u.full_name, u.rating, COALESCE(SUM(o.helped_count), 0) AS helped, u.created_at
		FROM users u
		LEFT JOIN offers o ON o.user_id = u.id
		WHERE u.role = 'helper'
		GROUP BY u.id
		ORDER BY u.rating DESC, helped DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("helper: list: %w", err)
	}
	defer rows.Close()

	profiles := make([]Profile, 0, limit)
	for rows.Next() {
		var profile Profile
		if err := rows.Scan(&profile.ID, &profile.FullName, &profile.Rating, &profile.HelpedCount, &profile.CreatedAt); err != nil {
			return nil, fmt.Errorf("helper: scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("helper: iterate profiles: %w", err)
	}

	return profiles, nil
}
