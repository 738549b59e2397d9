package natsadapter

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/hsltrips/internal/core/domain"
)

func streamFor(subject string) string {
	for _, s := range Streams() {
		for _, pattern := range s.Subjects {
			if strings.HasPrefix(subject, strings.TrimSuffix(pattern, ">")) {
				return s.Name
			}
		}
	}
	return ""
}

func TestStreamsCoverSubjects(t *testing.T) {
	assert.Equal(t, "TRIP_INGEST", streamFor(SubjectIngestRequested))
	assert.Equal(t, "TRIP_EVENTS", streamFor(SubjectTripIngested))
	assert.Equal(t, "TRIP_EVENTS", streamFor(SubjectIngestFailed))
}

func TestIngestQueueIsWorkQueue(t *testing.T) {
	for _, s := range Streams() {
		if s.Name == "TRIP_INGEST" {
			assert.Equal(t, nats.WorkQueuePolicy, s.Retention)
			return
		}
	}
	t.Fatal("TRIP_INGEST stream missing")
}

func TestIngestFailurePayload(t *testing.T) {
	ie := &domain.IngestionError{TripID: "t1", Kind: domain.KindMalformedPayload, Err: errors.New("trip has no pattern code")}
	data, err := json.Marshal(newIngestFailure("t1", ie))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"trip_id": "t1",
		"kind": "MalformedPayload",
		"retryable": false,
		"message": "could not save trip with ID 't1'. Reason: trip has no pattern code"
	}`, string(data))
}
