package http

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/hsltrips/internal/core/ports"
	"github.com/samirrijal/hsltrips/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Trips *usecases.TripService
	// Events is optional; without it async ingestion is unavailable and no
	// trip events are published.
	Events ports.EventPublisher
	NATS   *nats.Conn
	// PingDB checks store connectivity for /v1/ready.
	PingDB func(ctx context.Context) error
}
