package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/hsltrips/internal/core/domain"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *time.Time:
			*p = r.values[i].(time.Time)
		}
	}
	return nil
}

type fakeQuerier struct {
	rows  []fakeRow
	sqls  []string
	args  [][]any
	calls int
}

func (q *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	q.sqls = append(q.sqls, sql)
	q.args = append(q.args, args)
	row := q.rows[q.calls]
	q.calls++
	return row
}

func TestTripRepo_GetByID(t *testing.T) {
	created := time.Date(2023, 1, 1, 6, 0, 0, 0, time.UTC)
	q := &fakeQuerier{rows: []fakeRow{{values: []any{"t1", "1234_1_1", created}}}}
	repo := &TripRepo{q: q}

	trip, err := repo.GetByID(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, &domain.Trip{ID: "t1", RoutePatternID: "1234_1_1", CreatedAt: created}, trip)
	assert.Equal(t, []any{"t1"}, q.args[0])
	assert.Contains(t, q.sqls[0], "ORDER BY created_at DESC")
}

func TestTripRepo_GetByID_NoRows(t *testing.T) {
	repo := &TripRepo{q: &fakeQuerier{rows: []fakeRow{{err: pgx.ErrNoRows}}}}

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTripRepo_GetByID_StoreError(t *testing.T) {
	connErr := errors.New("conn closed")
	repo := &TripRepo{q: &fakeQuerier{rows: []fakeRow{{err: connErr}}}}

	_, err := repo.GetByID(context.Background(), "t1")
	assert.Equal(t, connErr, err)
}

func TestTripRepo_FindOrCreate(t *testing.T) {
	created := time.Date(2023, 1, 1, 6, 0, 0, 0, time.UTC)
	q := &fakeQuerier{rows: []fakeRow{{values: []any{"t1", "1234_1_1", created}}}}
	repo := &TripRepo{q: q}

	trip, err := repo.FindOrCreate(context.Background(), domain.Trip{ID: "t1", RoutePatternID: "1234_1_1"})
	require.NoError(t, err)
	assert.Equal(t, "1234_1_1", trip.RoutePatternID)
	assert.Equal(t, []any{"t1", "1234_1_1"}, q.args[0])
	assert.True(t, strings.Contains(q.sqls[0], "ON CONFLICT (id, route_pattern_id) DO NOTHING"))
}

func TestTripRepo_FindOrCreate_RetriesInvisibleRow(t *testing.T) {
	created := time.Date(2023, 1, 1, 6, 0, 0, 0, time.UTC)
	q := &fakeQuerier{rows: []fakeRow{
		{err: pgx.ErrNoRows},
		{values: []any{"t1", "R1", created}},
	}}
	repo := &TripRepo{q: q}

	trip, err := repo.FindOrCreate(context.Background(), domain.Trip{ID: "t1", RoutePatternID: "R1"})
	require.NoError(t, err)
	assert.Equal(t, 2, q.calls)
	assert.Equal(t, created, trip.CreatedAt)
}

func TestTripRepo_FindOrCreate_GivesUp(t *testing.T) {
	q := &fakeQuerier{rows: []fakeRow{{err: pgx.ErrNoRows}, {err: pgx.ErrNoRows}, {err: pgx.ErrNoRows}}}
	repo := &TripRepo{q: q}

	_, err := repo.FindOrCreate(context.Background(), domain.Trip{ID: "t1", RoutePatternID: "R1"})
	require.Error(t, err)
	assert.Equal(t, findOrCreateAttempts, q.calls)
}

func TestTripRepo_FindOrCreate_WrapsStoreError(t *testing.T) {
	connErr := errors.New("conn closed")
	repo := &TripRepo{q: &fakeQuerier{rows: []fakeRow{{err: connErr}}}}

	_, err := repo.FindOrCreate(context.Background(), domain.Trip{ID: "t1", RoutePatternID: "R1"})
	assert.ErrorIs(t, err, connErr)
}
