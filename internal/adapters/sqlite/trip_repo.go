package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/samirrijal/hsltrips/internal/core/domain"
)

// TripRepo implements ports.TripRepository on database/sql.
type TripRepo struct {
	db *sql.DB
}

func NewTripRepo(db *sql.DB) *TripRepo {
	return &TripRepo{db: db}
}

func (r *TripRepo) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	tr := &domain.Trip{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, route_pattern_id, created_at
		FROM trips WHERE id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, id).Scan(&tr.ID, &tr.RoutePatternID, &tr.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// FindOrCreate relies on the (id, route_pattern_id) primary key: the insert is
// a no-op when the row exists, and the read-back returns whichever row won.
func (r *TripRepo) FindOrCreate(ctx context.Context, trip domain.Trip) (*domain.Trip, error) {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO trips (id, route_pattern_id) VALUES (?, ?)
		ON CONFLICT (id, route_pattern_id) DO NOTHING
	`, trip.ID, trip.RoutePatternID); err != nil {
		return nil, fmt.Errorf("insert trip: %w", err)
	}

	tr := &domain.Trip{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, route_pattern_id, created_at
		FROM trips WHERE id = ? AND route_pattern_id = ?
	`, trip.ID, trip.RoutePatternID).Scan(&tr.ID, &tr.RoutePatternID, &tr.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("read back trip: %w", err)
	}
	return tr, nil
}
