package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/hsltrips/internal/core/domain"
)

// findOrCreateAttempts bounds the read-back retry when a concurrent insert of
// the same key commits after our statement snapshot was taken.
const findOrCreateAttempts = 3

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TripRepo implements ports.TripRepository.
type TripRepo struct {
	q querier
}

func NewTripRepo(db *DB) *TripRepo {
	return &TripRepo{q: db.Pool}
}

// GetByID returns the most recently created row for the trip id.
func (r *TripRepo) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	tr := &domain.Trip{}
	err := r.q.QueryRow(ctx, `
		SELECT id, route_pattern_id, created_at
		FROM trips WHERE id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, id).Scan(&tr.ID, &tr.RoutePatternID, &tr.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tr, nil
}

func (r *TripRepo) FindOrCreate(ctx context.Context, trip domain.Trip) (*domain.Trip, error) {
	for attempt := 0; attempt < findOrCreateAttempts; attempt++ {
		tr := &domain.Trip{}
		err := r.q.QueryRow(ctx, `
			WITH ins AS (
				INSERT INTO trips (id, route_pattern_id)
				VALUES ($1, $2)
				ON CONFLICT (id, route_pattern_id) DO NOTHING
				RETURNING id, route_pattern_id, created_at
			)
			SELECT id, route_pattern_id, created_at FROM ins
			UNION ALL
			SELECT id, route_pattern_id, created_at FROM trips
			WHERE id = $1 AND route_pattern_id = $2
			LIMIT 1
		`, trip.ID, trip.RoutePatternID).Scan(&tr.ID, &tr.RoutePatternID, &tr.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("find or create trip: %w", err)
		}
		return tr, nil
	}
	return nil, fmt.Errorf("find or create trip %s/%s: row not visible after %d attempts",
		trip.ID, trip.RoutePatternID, findOrCreateAttempts)
}
