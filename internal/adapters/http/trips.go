package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/hsltrips/internal/core/domain"
	"github.com/samirrijal/hsltrips/internal/pkg/metrics"
)

// GetTripHandler returns a stored trip by ID.
func GetTripHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "trip id is required")
		}

		ctx := c.UserContext()
		trip, err := deps.Trips.GetByID(ctx, id)
		metrics.ObserveLookup(err)
		if errors.Is(err, domain.ErrNotFound) {
			return errNotFound(c, err.Error())
		}
		if err != nil {
			LoggerFromCtx(ctx).Error("trip lookup failed", "trip_id", id, "error", err)
			return errInternal(c, "trip lookup failed")
		}

		return c.JSON(trip)
	}
}

// IngestTripHandler fetches a trip from the routing API and stores it.
// With ?async=true the request is queued for an ingestor and 202 is returned.
func IngestTripHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "trip id is required")
		}

		ctx := c.UserContext()
		if c.QueryBool("async", false) {
			if deps.Events == nil {
				return errUnavailable(c, "async ingestion is not available")
			}
			if err := deps.Events.PublishIngestRequest(ctx, id); err != nil {
				LoggerFromCtx(ctx).Error("queue ingest request", "trip_id", id, "error", err)
				return errUnavailable(c, "could not queue ingest request")
			}
			return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
				"status":  "queued",
				"trip_id": id,
			})
		}

		trip, err := deps.Trips.CreateByID(ctx, id)
		notifyIngestion(ctx, deps, id, trip, err)
		if err != nil {
			return errIngestion(c, err)
		}
		return c.JSON(trip)
	}
}

// notifyIngestion records metrics and publishes the outcome when an event
// publisher is configured. Publishing failures are logged only.
func notifyIngestion(ctx context.Context, deps *Dependencies, id string, trip *domain.Trip, err error) {
	metrics.ObserveIngestion(err)
	logger := LoggerFromCtx(ctx)

	var ie *domain.IngestionError
	if err != nil {
		logger.Warn("trip ingestion failed", "trip_id", id, "error", err)
		errors.As(err, &ie)
	}

	if deps.Events == nil {
		return
	}
	var perr error
	switch {
	case err == nil:
		perr = deps.Events.PublishTripIngested(ctx, trip)
	case ie != nil:
		perr = deps.Events.PublishIngestFailed(ctx, id, ie)
	}
	if perr != nil {
		logger.Warn("publish ingestion event", "trip_id", id, "error", perr)
	}
}
