package ports

import (
	"context"

	"github.com/samirrijal/hsltrips/internal/core/domain"
)

// Priority is a scheduling hint passed to the remote trip source.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityHigh
)

func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "low"
}

// RemoteTripSource fetches trip data from the routing GraphQL API.
type RemoteTripSource interface {
	FetchTrip(ctx context.Context, tripID string, priority Priority) (*domain.RemoteTrip, error)
}

// EventPublisher publishes trip events to a message broker.
type EventPublisher interface {
	PublishIngestRequest(ctx context.Context, tripID string) error
	PublishTripIngested(ctx context.Context, trip *domain.Trip) error
	PublishIngestFailed(ctx context.Context, tripID string, cause *domain.IngestionError) error
}

// EventSubscriber consumes ingest requests from a message broker.
type EventSubscriber interface {
	SubscribeIngestRequests(ctx context.Context, handler func(ctx context.Context, tripID string) error) error
}
