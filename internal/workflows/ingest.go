package workflows

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/hsltrips/internal/core/domain"
)

// IngestTripInput is the input for the ingestion workflow.
type IngestTripInput struct {
	TripID string
}

// WorkflowID gives each trip a single running ingestion.
func WorkflowID(tripID string) string {
	return "ingest-trip-" + tripID
}

// IngestTripWorkflow ingests one trip, retrying remote and store outages with
// backoff, and publishes the outcome. Malformed payloads fail immediately.
func IngestTripWorkflow(ctx workflow.Context, input IngestTripInput) (*domain.Trip, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting trip ingestion", "tripID", input.TripID)

	ingestCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        2 * time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: []string{domain.KindMalformedPayload.String()},
		},
	})
	notifyCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	})

	var trip domain.Trip
	err := workflow.ExecuteActivity(ingestCtx, "CreateTrip", input.TripID).Get(ctx, &trip)
	if err != nil {
		kind, cause := failureOf(err)
		logger.Warn("trip ingestion failed", "tripID", input.TripID, "kind", kind, "error", err)
		if perr := workflow.ExecuteActivity(notifyCtx, "PublishFailed", input.TripID, kind, cause).Get(ctx, nil); perr != nil {
			logger.Warn("publish failure event", "error", perr)
		}
		return nil, err
	}

	if perr := workflow.ExecuteActivity(notifyCtx, "PublishIngested", trip).Get(ctx, nil); perr != nil {
		logger.Warn("publish ingested event", "error", perr)
	}

	logger.Info("Trip ingested", "tripID", trip.ID, "routePatternID", trip.RoutePatternID)
	return &trip, nil
}

// failureOf recovers the ingestion kind and cause carried by a CreateTrip error.
func failureOf(err error) (kind, cause string) {
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) {
		return "Unknown", err.Error()
	}
	kind = appErr.Type()
	if !appErr.HasDetails() || appErr.Details(&cause) != nil {
		cause = appErr.Error()
	}
	return kind, cause
}
