package workflows

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/samirrijal/hsltrips/internal/core/domain"
	"github.com/samirrijal/hsltrips/internal/core/ports"
	"github.com/samirrijal/hsltrips/internal/core/usecases"
)

type memRepo struct {
	rows map[string]domain.Trip
}

func (m *memRepo) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	if t, ok := m.rows[id]; ok {
		return &t, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memRepo) FindOrCreate(ctx context.Context, trip domain.Trip) (*domain.Trip, error) {
	if m.rows == nil {
		m.rows = map[string]domain.Trip{}
	}
	m.rows[trip.ID] = trip
	return &trip, nil
}

// flakyRemote fails the first `failures` calls, then answers with `pattern`.
type flakyRemote struct {
	calls    atomic.Int32
	failures int32
	pattern  *domain.RemotePattern
}

func (r *flakyRemote) FetchTrip(ctx context.Context, tripID string, p ports.Priority) (*domain.RemoteTrip, error) {
	if r.calls.Add(1) <= r.failures {
		return nil, errors.New("routing api: unexpected status 503")
	}
	return &domain.RemoteTrip{Pattern: r.pattern}, nil
}

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

type IngestWorkflowSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
}

func TestIngestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(IngestWorkflowSuite))
}

func (s *IngestWorkflowSuite) run(remote *flakyRemote, pub *mockPublisher) (*testsuite.TestWorkflowEnvironment, *memRepo) {
	repo := &memRepo{}
	env := s.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(IngestTripWorkflow)
	env.RegisterActivity(&IngestActivities{
		Trips:  usecases.NewTripService(repo, remote),
		Events: pub,
	})
	env.ExecuteWorkflow(IngestTripWorkflow, IngestTripInput{TripID: "HSL:1234_20230101_Mo_1_1"})
	return env, repo
}

func (s *IngestWorkflowSuite) TestSuccess() {
	pub := &mockPublisher{}
	pub.On("PublishTripIngested", mock.Anything, mock.MatchedBy(func(t *domain.Trip) bool {
		return t.RoutePatternID == "HSL:1234:1:01"
	})).Return(nil).Once()

	remote := &flakyRemote{pattern: &domain.RemotePattern{Code: "HSL:1234:1:01"}}
	env, repo := s.run(remote, pub)

	s.True(env.IsWorkflowCompleted())
	s.NoError(env.GetWorkflowError())

	var trip domain.Trip
	s.NoError(env.GetWorkflowResult(&trip))
	s.Equal("HSL:1234_20230101_Mo_1_1", trip.ID)
	s.Contains(repo.rows, "HSL:1234_20230101_Mo_1_1")
	pub.AssertExpectations(s.T())
}

func (s *IngestWorkflowSuite) TestRetriesRemoteOutage() {
	pub := &mockPublisher{}
	pub.On("PublishTripIngested", mock.Anything, mock.Anything).Return(nil).Once()

	remote := &flakyRemote{failures: 2, pattern: &domain.RemotePattern{Code: "HSL:1234:1:01"}}
	env, _ := s.run(remote, pub)

	s.True(env.IsWorkflowCompleted())
	s.NoError(env.GetWorkflowError())
	s.Equal(int32(3), remote.calls.Load())
	pub.AssertExpectations(s.T())
}

func (s *IngestWorkflowSuite) TestMalformedPayloadIsNotRetried() {
	pub := &mockPublisher{}
	pub.On("PublishIngestFailed", mock.Anything, "HSL:1234_20230101_Mo_1_1", mock.MatchedBy(func(ie *domain.IngestionError) bool {
		return ie.Kind == domain.KindMalformedPayload && ie.Err.Error() == domain.ErrMissingPattern.Error()
	})).Return(nil).Once()

	remote := &flakyRemote{}
	env, repo := s.run(remote, pub)

	s.True(env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	s.Require().Error(err)

	var appErr *temporal.ApplicationError
	s.Require().True(errors.As(err, &appErr))
	s.Equal("MalformedPayload", appErr.Type())
	s.Equal(int32(1), remote.calls.Load())
	s.Empty(repo.rows)
	pub.AssertExpectations(s.T())
}

func (s *IngestWorkflowSuite) TestGivesUpAfterMaxAttempts() {
	pub := &mockPublisher{}
	pub.On("PublishIngestFailed", mock.Anything, mock.Anything, mock.MatchedBy(func(ie *domain.IngestionError) bool {
		return ie.Kind == domain.KindRemoteUnavailable
	})).Return(nil).Once()

	remote := &flakyRemote{failures: 100}
	env, _ := s.run(remote, pub)

	s.True(env.IsWorkflowCompleted())
	s.Error(env.GetWorkflowError())
	s.Equal(int32(5), remote.calls.Load())
	pub.AssertExpectations(s.T())
}

func TestFailureOf(t *testing.T) {
	err := temporal.NewApplicationError("could not save trip with ID 'x'. Reason: boom", "PersistenceFailure", "boom")
	kind, cause := failureOf(err)
	require.Equal(t, "PersistenceFailure", kind)
	require.Equal(t, "boom", cause)

	kind, cause = failureOf(errors.New("plain"))
	require.Equal(t, "Unknown", kind)
	require.Equal(t, "plain", cause)
}

func TestWorkflowID(t *testing.T) {
	require.Equal(t, "ingest-trip-abc", WorkflowID("abc"))
}
