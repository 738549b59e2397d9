package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/hsltrips/internal/core/domain"
)

// Subjects used for trip ingestion.
const (
	SubjectIngestRequested = "trips.ingest.requested"
	SubjectTripIngested    = "trips.events.ingested"
	SubjectIngestFailed    = "trips.events.failed"
)

// IngestRequest asks an ingestor to ingest one trip.
type IngestRequest struct {
	TripID      string    `json:"trip_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// IngestFailure is published when an ingestion gives up.
type IngestFailure struct {
	TripID    string `json:"trip_id"`
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable"`
	Message   string `json:"message"`
}

func newIngestFailure(tripID string, cause *domain.IngestionError) IngestFailure {
	return IngestFailure{
		TripID:    tripID,
		Kind:      cause.Kind.String(),
		Retryable: cause.Retryable(),
		Message:   cause.Error(),
	}
}

// Streams returns the JetStream streams the trip subjects live on.
func Streams() []nats.StreamConfig {
	return []nats.StreamConfig{
		{
			Name:      "TRIP_INGEST",
			Subjects:  []string{"trips.ingest.>"},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "TRIP_EVENTS",
			Subjects:  []string{"trips.events.>"},
			Retention: nats.LimitsPolicy,
			MaxAge:    1 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	if err := ensureStreams(js); err != nil {
		conn.Close()
		return nil, err
	}

	return &Publisher{conn: conn, js: js}, nil
}

func ensureStreams(js nats.JetStreamContext) error {
	for _, cfg := range Streams() {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}
	return nil
}

func (p *Publisher) PublishIngestRequest(ctx context.Context, tripID string) error {
	data, err := json.Marshal(IngestRequest{TripID: tripID, RequestedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectIngestRequested, data, nats.Context(ctx))
	return err
}

func (p *Publisher) PublishTripIngested(ctx context.Context, trip *domain.Trip) error {
	data, err := json.Marshal(trip)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectTripIngested, data, nats.Context(ctx))
	return err
}

func (p *Publisher) PublishIngestFailed(ctx context.Context, tripID string, cause *domain.IngestionError) error {
	data, err := json.Marshal(newIngestFailure(tripID, cause))
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectIngestFailed, data, nats.Context(ctx))
	return err
}

// Conn exposes the underlying connection (WebSocket relay, readiness).
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection with reconnects enabled.
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
