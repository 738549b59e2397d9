package usecases

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/hsltrips/internal/core/domain"
	"github.com/samirrijal/hsltrips/internal/core/ports"
)

var tracer = otel.Tracer("github.com/samirrijal/hsltrips/internal/core/usecases")

// TripService looks trips up in the store and ingests unknown ones from the
// routing API.
type TripService struct {
	trips    ports.TripRepository
	remote   ports.RemoteTripSource
	priority ports.Priority
}

// TripServiceOption configures a TripService.
type TripServiceOption func(*TripService)

// WithRemotePriority overrides the priority used for remote queries.
// Bulk backfills use ports.PriorityLow so on-demand ingestion is served first.
func WithRemotePriority(p ports.Priority) TripServiceOption {
	return func(s *TripService) { s.priority = p }
}

// NewTripService creates a new TripService.
func NewTripService(trips ports.TripRepository, remote ports.RemoteTripSource, opts ...TripServiceOption) *TripService {
	s := &TripService{trips: trips, remote: remote, priority: ports.PriorityHigh}
	for _, o := range opts {
		o(s)
	}
	return s
}

// GetByID returns the stored trip. A miss is reported as *domain.NotFoundError;
// any other store error is returned as is.
func (s *TripService) GetByID(ctx context.Context, tripID string) (*domain.Trip, error) {
	ctx, span := tracer.Start(ctx, "TripService.GetByID")
	defer span.End()
	span.SetAttributes(attribute.String("trip.id", tripID))

	trip, err := s.trips.GetByID(ctx, tripID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && trip == nil) {
		return nil, &domain.NotFoundError{TripID: tripID}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return trip, nil
}

// CreateByID fetches the trip's pattern code from the routing API and
// finds or creates the (tripID, patternCode) row. Every failure is returned
// as *domain.IngestionError.
func (s *TripService) CreateByID(ctx context.Context, tripID string) (*domain.Trip, error) {
	ctx, span := tracer.Start(ctx, "TripService.CreateByID")
	defer span.End()
	span.SetAttributes(
		attribute.String("trip.id", tripID),
		attribute.String("remote.priority", s.priority.String()),
	)

	trip, err := s.createByID(ctx, tripID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return trip, nil
}

func (s *TripService) createByID(ctx context.Context, tripID string) (*domain.Trip, error) {
	remote, err := s.remote.FetchTrip(ctx, tripID, s.priority)
	if err != nil {
		kind := domain.KindRemoteUnavailable
		if errors.Is(err, domain.ErrMalformedPayload) {
			kind = domain.KindMalformedPayload
		}
		return nil, &domain.IngestionError{TripID: tripID, Kind: kind, Err: err}
	}

	if remote == nil || remote.Pattern == nil || remote.Pattern.Code == "" {
		return nil, &domain.IngestionError{TripID: tripID, Kind: domain.KindMalformedPayload, Err: domain.ErrMissingPattern}
	}

	trip, err := s.trips.FindOrCreate(ctx, domain.Trip{ID: tripID, RoutePatternID: remote.Pattern.Code})
	if err != nil {
		return nil, &domain.IngestionError{TripID: tripID, Kind: domain.KindPersistence, Err: err}
	}
	if trip == nil {
		return nil, &domain.IngestionError{
			TripID: tripID,
			Kind:   domain.KindPersistence,
			Err:    fmt.Errorf("store returned no row for pattern %s", remote.Pattern.Code),
		}
	}
	return trip, nil
}

// GetOrCreate returns the stored trip, ingesting it when the store has none.
func (s *TripService) GetOrCreate(ctx context.Context, tripID string) (*domain.Trip, error) {
	trip, err := s.GetByID(ctx, tripID)
	if errors.Is(err, domain.ErrNotFound) {
		return s.CreateByID(ctx, tripID)
	}
	return trip, err
}
