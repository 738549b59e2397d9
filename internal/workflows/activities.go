package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/hsltrips/internal/core/domain"
	"github.com/samirrijal/hsltrips/internal/core/ports"
	"github.com/samirrijal/hsltrips/internal/core/usecases"
	"github.com/samirrijal/hsltrips/internal/pkg/metrics"
)

// IngestActivities holds the activity implementations for the ingestion workflow.
type IngestActivities struct {
	Trips  *usecases.TripService
	Events ports.EventPublisher // optional
}

// CreateTrip runs one ingestion attempt. Failures are returned as
// application errors typed by their ingestion kind, with the unwrapped cause
// as the only detail; malformed payloads are marked non-retryable.
func (a *IngestActivities) CreateTrip(ctx context.Context, tripID string) (*domain.Trip, error) {
	trip, err := a.Trips.CreateByID(ctx, tripID)
	metrics.ObserveIngestion(err)
	if err == nil {
		return trip, nil
	}

	var ie *domain.IngestionError
	if !errors.As(err, &ie) {
		return nil, err
	}
	cause := ie.Error()
	if ie.Err != nil {
		cause = ie.Err.Error()
	}
	if !ie.Retryable() {
		return nil, temporal.NewNonRetryableApplicationError(ie.Error(), ie.Kind.String(), err, cause)
	}
	return nil, temporal.NewApplicationError(ie.Error(), ie.Kind.String(), cause)
}

// PublishIngested announces a stored trip.
func (a *IngestActivities) PublishIngested(ctx context.Context, trip domain.Trip) error {
	if a.Events == nil {
		return nil
	}
	if err := a.Events.PublishTripIngested(ctx, &trip); err != nil {
		return fmt.Errorf("publish trip %s: %w", trip.ID, err)
	}
	return nil
}

// PublishFailed announces a trip whose ingestion gave up.
func (a *IngestActivities) PublishFailed(ctx context.Context, tripID, kind, cause string) error {
	if a.Events == nil {
		slog.Warn("trip ingestion failed", "trip_id", tripID, "kind", kind, "cause", cause)
		return nil
	}
	ie := &domain.IngestionError{
		TripID: tripID,
		Kind:   domain.ParseIngestionKind(kind),
		Err:    errors.New(cause),
	}
	if err := a.Events.PublishIngestFailed(ctx, tripID, ie); err != nil {
		return fmt.Errorf("publish failure for %s: %w", tripID, err)
	}
	return nil
}
