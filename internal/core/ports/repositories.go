package ports

import (
	"context"

	"github.com/samirrijal/hsltrips/internal/core/domain"
)

// TripRepository persists trips.
type TripRepository interface {
	// GetByID returns domain.ErrNotFound (possibly wrapped) when no row exists.
	GetByID(ctx context.Context, id string) (*domain.Trip, error)
	// FindOrCreate returns the row matching both ID and RoutePatternID,
	// inserting it first if it does not exist.
	FindOrCreate(ctx context.Context, trip domain.Trip) (*domain.Trip, error)
}
