package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/showtime-booking/internal/model"
)

var showtimeSeatCols = []string{
	"id", "movie_id", "movie_title", "theater", "starts_at", "version", "created_at", "updated_at",
	"seat_id", "label", "category", "price_cents", "booked", "booking_id", "position",
}

func TestShowtimeRepo_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	now := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)

	mock.ExpectQuery(quote("FROM showtimes s LEFT JOIN showtime_seats ss")).
		WithArgs("st-1").
		WillReturnRows(sqlmock.NewRows(showtimeSeatCols).
			AddRow("st-1", "m-1", "Dune", "Hall 1", now, 3, now, now, "A1", "A1", "standard", 100, false, nil, 0).
			AddRow("st-1", "m-1", "Dune", "Hall 1", now, 3, now, now, "A2", "A2", "standard", 100, true, "bk-9", 1))

	st, err := NewShowtimeRepo(db).GetByID(context.Background(), "st-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), st.Version)
	assert.Equal(t, "Dune", st.MovieTitle)
	require.Len(t, st.Seats, 2)
	assert.False(t, st.Seats[0].Booked)
	assert.Nil(t, st.Seats[0].BookingID)
	assert.True(t, st.Seats[1].Booked)
	require.NotNil(t, st.Seats[1].BookingID)
	assert.Equal(t, "bk-9", *st.Seats[1].BookingID)
	assert.Equal(t, 1, st.AvailableCount())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestShowtimeRepo_GetByID_NoSeats(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	now := time.Now().UTC()

	mock.ExpectQuery(quote("FROM showtimes s")).
		WithArgs("st-2").
		WillReturnRows(sqlmock.NewRows(showtimeSeatCols).
			AddRow("st-2", "m-1", "", "Hall 2", now, 0, now, now, nil, nil, nil, nil, nil, nil, nil))

	st, err := NewShowtimeRepo(db).GetByID(context.Background(), "st-2")
	require.NoError(t, err)
	assert.Empty(t, st.Seats)
	assert.NotNil(t, st.Seats)
}

func TestShowtimeRepo_GetByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(quote("FROM showtimes s")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(showtimeSeatCols))

	_, err = NewShowtimeRepo(db).GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrShowtimeNotFound)
}

func TestShowtimeRepo_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	starts := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(quote("INSERT INTO showtimes (id, movie_id, movie_title, theater, starts_at, version)")).
		WithArgs("st-1", "m-1", "Dune", "Hall 1", starts).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(quote("INSERT INTO showtime_seats")).
		WithArgs("st-1", "A1", 0, "A1", "standard", 100, "st-1", "A5", 1, "A5", "premium", 200).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	st := &model.Showtime{
		ID: "st-1", MovieID: "m-1", MovieTitle: "Dune", Theater: "Hall 1", StartsAt: starts,
		Seats: []model.Seat{
			{ID: "A1", Label: "A1", Category: model.SeatStandard, PriceCents: 100, Booked: true},
			{ID: "A5", Label: "A5", Category: model.SeatPremium, PriceCents: 200},
		},
	}
	require.NoError(t, NewShowtimeRepo(db).Create(context.Background(), st))
	assert.False(t, st.Seats[0].Booked, "new seat maps start free")
	assert.Equal(t, 1, st.Seats[1].Position)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestShowtimeRepo_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	now := time.Now().UTC()

	mock.ExpectQuery(quote("FROM showtimes WHERE movie_id = ? ORDER BY starts_at, id LIMIT ? OFFSET ?")).
		WithArgs("m-1", 20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "movie_id", "movie_title", "theater", "starts_at", "version", "created_at", "updated_at"}).
			AddRow("st-1", "m-1", "Dune", "Hall 1", now, 0, now, now))

	list, err := NewShowtimeRepo(db).List(context.Background(), "m-1", 20, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "st-1", list[0].ID)
}

func TestShowtimeRepo_FindOrphanSeats(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	cutoff := time.Now().UTC()

	mock.ExpectQuery(quote("LEFT JOIN bookings b ON b.id = ss.booking_id")).
		WithArgs(cutoff, 50).
		WillReturnRows(sqlmock.NewRows([]string{"showtime_id", "seat_id", "booking_id"}).
			AddRow("st-1", "A1", "bk-1").
			AddRow("st-1", "A2", nil))

	orphans, err := NewShowtimeRepo(db).FindOrphanSeats(context.Background(), cutoff, 50)
	require.NoError(t, err)
	require.Len(t, orphans, 2)
	assert.Equal(t, "bk-1", *orphans[0].BookingID)
	assert.Nil(t, orphans[1].BookingID)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?,?,?", placeholders(3))
}
