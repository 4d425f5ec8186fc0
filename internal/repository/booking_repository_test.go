package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/showtime-booking/internal/model"
)

var bookingCols = []string{
	"id", "user_id", "user_email", "type", "showtime_id", "event_id", "payment_status", "payment_ref",
	"total_cents", "canceled", "created_at", "updated_at",
}

func newBookingRepo(t *testing.T) (*BookingRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewBookingRepo(db), mock
}

func TestBookingRepo_GetByID(t *testing.T) {
	r, mock := newBookingRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery(quote("FROM bookings WHERE id = ?")).
		WithArgs("bk-1").
		WillReturnRows(sqlmock.NewRows(bookingCols).
			AddRow("bk-1", "u-1", "u1@example.com", "movie", "st-1", nil, "paid", "pi_123", 300, false, now, now))
	mock.ExpectQuery(quote("FROM booking_seats")).
		WithArgs("bk-1").
		WillReturnRows(sqlmock.NewRows([]string{"booking_id", "seat_id", "label", "price_cents"}).
			AddRow("bk-1", "A5", "A5", 200).
			AddRow("bk-1", "A1", "A1", 100))

	b, err := r.GetByID(context.Background(), "bk-1")
	require.NoError(t, err)
	assert.Equal(t, model.BookingMovie, b.Type)
	assert.Equal(t, model.PaymentPaid, b.PaymentStatus)
	require.NotNil(t, b.ShowtimeID)
	assert.Equal(t, "st-1", *b.ShowtimeID)
	assert.Nil(t, b.EventID)
	assert.Equal(t, []string{"A5", "A1"}, b.SeatIDs())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepo_GetByID_NotFound(t *testing.T) {
	r, mock := newBookingRepo(t)

	mock.ExpectQuery(quote("FROM bookings WHERE id = ?")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(bookingCols))

	_, err := r.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestBookingRepo_ListByUser(t *testing.T) {
	r, mock := newBookingRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery(quote("FROM bookings WHERE user_id = ? ORDER BY created_at DESC")).
		WithArgs("u-1", 10, 0).
		WillReturnRows(sqlmock.NewRows(bookingCols).
			AddRow("bk-2", "u-1", "", "movie", "st-1", nil, "pending", nil, 100, false, now, now).
			AddRow("bk-1", "u-1", "", "event", nil, "ev-7", "refunded", nil, 0, true, now, now))
	mock.ExpectQuery(quote("FROM booking_seats")).
		WithArgs("bk-2", "bk-1").
		WillReturnRows(sqlmock.NewRows([]string{"booking_id", "seat_id", "label", "price_cents"}).
			AddRow("bk-2", "C3", "C3", 100))

	list, err := r.ListByUser(context.Background(), "u-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Len(t, list[0].Seats, 1)
	assert.Empty(t, list[1].Seats)
	assert.True(t, list[1].Canceled)
	assert.Equal(t, "ev-7", *list[1].EventID)
}

func TestBookingRepo_MarkCanceled(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "first cancel wins",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(quote("UPDATE bookings SET canceled = 1, payment_status = 'refunded' WHERE id = ? AND canceled = 0")).
					WithArgs("bk-1").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "second cancel rejected",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(quote("UPDATE bookings SET canceled = 1")).
					WithArgs("bk-1").
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(quote("SELECT canceled FROM bookings WHERE id = ?")).
					WithArgs("bk-1").
					WillReturnRows(sqlmock.NewRows([]string{"canceled"}).AddRow(true))
			},
			wantErr: ErrAlreadyCanceled,
		},
		{
			name: "missing booking",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(quote("UPDATE bookings SET canceled = 1")).
					WithArgs("bk-1").
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(quote("SELECT canceled FROM bookings")).
					WithArgs("bk-1").
					WillReturnError(sql.ErrNoRows)
			},
			wantErr: ErrBookingNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, mock := newBookingRepo(t)
			tt.setup(mock)

			err := r.MarkCanceled(context.Background(), "bk-1")
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestBookingRepo_UpdatePaymentStatus(t *testing.T) {
	r, mock := newBookingRepo(t)
	ref := "pi_1"

	mock.ExpectExec(quote("UPDATE bookings SET payment_status = ?, payment_ref = COALESCE(?, payment_ref)")).
		WithArgs("paid", "pi_1", "bk-1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(quote("UPDATE bookings SET payment_status = ?")).
		WithArgs("failed", nil, "bk-1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, r.UpdatePaymentStatus(context.Background(), "bk-1", model.PaymentPending, model.PaymentPaid, &ref))
	err := r.UpdatePaymentStatus(context.Background(), "bk-1", model.PaymentPending, model.PaymentFailed, nil)
	assert.ErrorIs(t, err, ErrStaleStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}
