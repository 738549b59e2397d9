package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/hsltrips/internal/core/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestTripRepo_RoundTrip(t *testing.T) {
	repo := NewTripRepo(openTestDB(t))
	ctx := context.Background()

	created, err := repo.FindOrCreate(ctx, domain.Trip{ID: "1234_20230101_Mo_1_1", RoutePatternID: "1234_1_1"})
	require.NoError(t, err)
	assert.Equal(t, "1234_20230101_Mo_1_1", created.ID)
	assert.Equal(t, "1234_1_1", created.RoutePatternID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, "1234_20230101_Mo_1_1")
	require.NoError(t, err)
	assert.Equal(t, created, got)
}

func TestTripRepo_FindOrCreate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	repo := NewTripRepo(db)
	ctx := context.Background()

	first, err := repo.FindOrCreate(ctx, domain.Trip{ID: "t1", RoutePatternID: "R1"})
	require.NoError(t, err)
	second, err := repo.FindOrCreate(ctx, domain.Trip{ID: "t1", RoutePatternID: "R1"})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var n int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM trips`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestTripRepo_PatternChangeAddsRow(t *testing.T) {
	db := openTestDB(t)
	repo := NewTripRepo(db)
	ctx := context.Background()

	_, err := repo.FindOrCreate(ctx, domain.Trip{ID: "t1", RoutePatternID: "R1"})
	require.NoError(t, err)
	_, err = repo.FindOrCreate(ctx, domain.Trip{ID: "t1", RoutePatternID: "R2"})
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM trips WHERE id = 't1'`).Scan(&n))
	assert.Equal(t, 2, n)

	latest, err := repo.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "R2", latest.RoutePatternID)
}

func TestTripRepo_GetByID_NotFound(t *testing.T) {
	repo := NewTripRepo(openTestDB(t))

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTripRepo_GetByID_StoreError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	lockErr := errors.New("database is locked")
	mock.ExpectQuery("SELECT id, route_pattern_id, created_at").
		WithArgs("t1").
		WillReturnError(lockErr)

	_, err = NewTripRepo(db).GetByID(context.Background(), "t1")
	assert.Equal(t, lockErr, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTripRepo_FindOrCreate_InsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO trips").
		WithArgs("t1", "R1").
		WillReturnError(errors.New("disk I/O error"))

	_, err = NewTripRepo(db).FindOrCreate(context.Background(), domain.Trip{ID: "t1", RoutePatternID: "R1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert trip: disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTripRepo_FindOrCreate_ReadsBackExisting(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2023, 1, 1, 6, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO trips").
		WithArgs("t1", "R1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id, route_pattern_id, created_at").
		WithArgs("t1", "R1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "route_pattern_id", "created_at"}).AddRow("t1", "R1", created))

	trip, err := NewTripRepo(db).FindOrCreate(context.Background(), domain.Trip{ID: "t1", RoutePatternID: "R1"})
	require.NoError(t, err)
	assert.Equal(t, created, trip.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
