package natsadapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/hsltrips/internal/core/domain"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishIngestRequest(ctx context.Context, tripID string) error {
	return m.Called(ctx, tripID).Error(0)
}

func (m *mockPublisher) PublishTripIngested(ctx context.Context, trip *domain.Trip) error {
	return m.Called(ctx, trip).Error(0)
}

func (m *mockPublisher) PublishIngestFailed(ctx context.Context, tripID string, cause *domain.IngestionError) error {
	return m.Called(ctx, tripID, cause).Error(0)
}

func TestAckAction(t *testing.T) {
	remote := &domain.IngestionError{TripID: "t1", Kind: domain.KindRemoteUnavailable, Err: errors.New("503")}
	store := &domain.IngestionError{TripID: "t1", Kind: domain.KindPersistence, Err: errors.New("too many connections")}
	malformed := &domain.IngestionError{TripID: "t1", Kind: domain.KindMalformedPayload, Err: domain.ErrMissingPattern}

	tests := []struct {
		name      string
		err       error
		delivered uint64
		want      action
	}{
		{"success", nil, 1, actionAck},
		{"success on last delivery", nil, maxDeliver, actionAck},
		{"malformed payload", malformed, 1, actionTerm},
		{"malformed request", errMalformedRequest, 1, actionTerm},
		{"remote down", remote, 1, actionNak},
		{"store down", store, maxDeliver - 1, actionNak},
		{"remote down on last delivery", remote, maxDeliver, actionTerm},
		{"unclassified error", errors.New("boom"), 2, actionNak},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ackAction(tt.err, tt.delivered))
		})
	}
}

func TestNakDelay(t *testing.T) {
	assert.Equal(t, 2*time.Second, nakDelay(1))
	assert.Equal(t, 4*time.Second, nakDelay(2))
	assert.Equal(t, 16*time.Second, nakDelay(4))
	assert.Equal(t, time.Minute, nakDelay(10))
}

func TestDecodeIngestRequest(t *testing.T) {
	id, err := decodeIngestRequest([]byte(`{"trip_id":"HSL:1234_20230101_Mo_1_1"}`))
	require.NoError(t, err)
	assert.Equal(t, "HSL:1234_20230101_Mo_1_1", id)

	_, err = decodeIngestRequest([]byte(`not json`))
	assert.ErrorIs(t, err, errMalformedRequest)

	_, err = decodeIngestRequest([]byte(`{"trip_id":""}`))
	assert.ErrorIs(t, err, errMalformedRequest)
}

func TestSettle_ReportsFailureOnLastDelivery(t *testing.T) {
	remote := &domain.IngestionError{TripID: "t1", Kind: domain.KindRemoteUnavailable, Err: errors.New("503")}

	pub := &mockPublisher{}
	pub.On("PublishIngestFailed", mock.Anything, "t1", remote).Return(nil).Once()
	s := &Subscriber{failures: pub}

	s.settle(context.Background(), &nats.Msg{}, "t1", remote, maxDeliver)
	pub.AssertExpectations(t)
}

func TestSettle_RetryableFailureIsNotReportedEarly(t *testing.T) {
	remote := &domain.IngestionError{TripID: "t1", Kind: domain.KindRemoteUnavailable, Err: errors.New("503")}

	pub := &mockPublisher{}
	s := &Subscriber{failures: pub}

	s.settle(context.Background(), &nats.Msg{}, "t1", remote, 1)
	pub.AssertNotCalled(t, "PublishIngestFailed", mock.Anything, mock.Anything, mock.Anything)
}

func TestSettle_MalformedRequestIsDroppedSilently(t *testing.T) {
	pub := &mockPublisher{}
	s := &Subscriber{failures: pub}

	_, err := decodeIngestRequest([]byte(`{}`))
	s.settle(context.Background(), &nats.Msg{Data: []byte(`{}`)}, "", err, 1)
	pub.AssertNotCalled(t, "PublishIngestFailed", mock.Anything, mock.Anything, mock.Anything)
}

func TestSettle_UnclassifiedErrorIsWrapped(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("PublishIngestFailed", mock.Anything, "t2", mock.MatchedBy(func(ie *domain.IngestionError) bool {
		return ie.TripID == "t2" && ie.Err.Error() == "boom"
	})).Return(nil).Once()
	s := &Subscriber{failures: pub}

	s.settle(context.Background(), &nats.Msg{}, "t2", errors.New("boom"), maxDeliver)
	pub.AssertExpectations(t)
}
