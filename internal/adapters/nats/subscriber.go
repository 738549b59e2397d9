package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/hsltrips/internal/core/domain"
	"github.com/samirrijal/hsltrips/internal/core/ports"
)

// maxDeliver bounds redelivery of retryable ingestion failures.
const maxDeliver = 5

// Redelivery backoff: 2s, 4s, 8s, ... capped at one minute.
const (
	nakBaseDelay = 2 * time.Second
	nakMaxDelay  = time.Minute
)

// errMalformedRequest marks a message that does not decode to an ingest request.
var errMalformedRequest = errors.New("malformed ingest request")

type action int

const (
	actionAck action = iota
	actionNak
	actionTerm
)

func (a action) String() string {
	switch a {
	case actionAck:
		return "ack"
	case actionNak:
		return "nak"
	default:
		return "term"
	}
}

// ackAction decides how a delivery is settled. delivered counts from 1.
// Non-retryable failures, malformed requests and the last allowed delivery
// are terminated; other failures are redelivered.
func ackAction(err error, delivered uint64) action {
	if err == nil {
		return actionAck
	}
	if errors.Is(err, errMalformedRequest) {
		return actionTerm
	}
	var ie *domain.IngestionError
	if errors.As(err, &ie) && !ie.Retryable() {
		return actionTerm
	}
	if delivered >= maxDeliver {
		return actionTerm
	}
	return actionNak
}

// nakDelay is the redelivery delay after the given delivery attempt.
func nakDelay(delivered uint64) time.Duration {
	d := nakBaseDelay
	for i := uint64(1); i < delivered && d < nakMaxDelay; i++ {
		d *= 2
	}
	if d > nakMaxDelay {
		d = nakMaxDelay
	}
	return d
}

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription

	failures ports.EventPublisher
}

// NewSubscriber connects to NATS and makes sure the trip streams exist.
// When failures is non-nil, every ingestion that is given up on is announced
// on it.
func NewSubscriber(url string, failures ports.EventPublisher) (*Subscriber, error) {
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
	return &Subscriber{conn: conn, js: js, failures: failures}, nil
}

// SubscribeIngestRequests runs handler for every ingest request. Retryable
// failures are redelivered with backoff up to maxDeliver times; anything else
// is terminated and reported as failed.
func (s *Subscriber) SubscribeIngestRequests(ctx context.Context, handler func(ctx context.Context, tripID string) error) error {
	sub, err := s.js.Subscribe(SubjectIngestRequested, func(msg *nats.Msg) {
		delivered := uint64(1)
		if md, err := msg.Metadata(); err == nil {
			delivered = md.NumDelivered
		}

		tripID, err := decodeIngestRequest(msg.Data)
		if err == nil {
			err = handler(ctx, tripID)
		}
		s.settle(ctx, msg, tripID, err, delivered)
	},
		nats.Durable("trip-ingestor"),
		nats.ManualAck(),
		nats.MaxDeliver(maxDeliver),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

func decodeIngestRequest(data []byte) (string, error) {
	var req IngestRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return "", fmt.Errorf("%w: %w", errMalformedRequest, err)
	}
	if req.TripID == "" {
		return "", fmt.Errorf("%w: missing trip_id", errMalformedRequest)
	}
	return req.TripID, nil
}

func (s *Subscriber) settle(ctx context.Context, msg *nats.Msg, tripID string, err error, delivered uint64) {
	switch ackAction(err, delivered) {
	case actionAck:
		_ = msg.Ack()
	case actionNak:
		_ = msg.NakWithDelay(nakDelay(delivered))
	case actionTerm:
		_ = msg.Term()
		if errors.Is(err, errMalformedRequest) {
			slog.Warn("dropping malformed ingest request", "data", string(msg.Data), "error", err)
			return
		}
		s.reportFailure(ctx, tripID, err, delivered)
	}
}

func (s *Subscriber) reportFailure(ctx context.Context, tripID string, err error, delivered uint64) {
	slog.Warn("giving up on trip ingestion", "trip_id", tripID, "deliveries", delivered, "error", err)
	if s.failures == nil {
		return
	}
	var ie *domain.IngestionError
	if !errors.As(err, &ie) {
		ie = &domain.IngestionError{TripID: tripID, Err: err}
	}
	if perr := s.failures.PublishIngestFailed(ctx, tripID, ie); perr != nil {
		slog.Warn("publish failure event", "trip_id", tripID, "error", perr)
	}
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
