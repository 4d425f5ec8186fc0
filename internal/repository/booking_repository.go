package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// BookingRepo persists bookings and their seat snapshots.  Snapshots are
// written once at creation and never updated.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to db.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, user_id, user_email, type, showtime_id, event_id, payment_status, payment_ref, total_cents, canceled, created_at, updated_at`

// CreateTx inserts the booking and its seat snapshots inside tx.  The
// caller commits.  CreatedAt/UpdatedAt are read back so the returned
// booking matches what a later Get would show.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	const q = `INSERT INTO bookings (id, user_id, user_email, type, showtime_id, event_id, payment_status, payment_ref, total_cents, canceled)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`
	if _, err := tx.ExecContext(ctx, q,
		b.ID, b.UserID, b.UserEmail, string(b.Type), nullable(b.ShowtimeID), nullable(b.EventID),
		string(b.PaymentStatus), nullable(b.PaymentRef), b.TotalCents,
	); err != nil {
		return err
	}

	if len(b.Seats) > 0 {
		var sb strings.Builder
		sb.WriteString(`INSERT INTO booking_seats (booking_id, seat_id, position, label, price_cents) VALUES `)
		args := make([]interface{}, 0, len(b.Seats)*5)
		for i, s := range b.Seats {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("(?, ?, ?, ?, ?)")
			args = append(args, b.ID, s.ID, i, s.Label, s.PriceCents)
		}
		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return err
		}
	}

	return tx.QueryRowContext(ctx, `SELECT created_at, updated_at FROM bookings WHERE id = ?`, b.ID).
		Scan(&b.CreatedAt, &b.UpdatedAt)
}

// GetByID loads a booking with its seats.
func (r *BookingRepo) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
}

// GetByPaymentRef loads the booking a payment intent belongs to.
func (r *BookingRepo) GetByPaymentRef(ctx context.Context, ref string) (*model.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE payment_ref = ?`, ref)
}

func (r *BookingRepo) getOne(ctx context.Context, q string, arg interface{}) (*model.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, q, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	if err := r.attachSeats(ctx, []*model.Booking{b}); err != nil {
		return nil, err
	}
	return b, nil
}

// ListByUser returns the user's bookings, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachSeats(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkCanceled flips canceled and sets payment_status to refunded, guarded
// by canceled = 0 so concurrent cancels cannot both win.  When the guard
// does not match, the row is re-read to tell ErrAlreadyCanceled from
// ErrBookingNotFound.
func (r *BookingRepo) MarkCanceled(ctx context.Context, id string) error {
	const q = `UPDATE bookings SET canceled = 1, payment_status = 'refunded' WHERE id = ? AND canceled = 0`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var canceled bool
	err = r.db.QueryRowContext(ctx, `SELECT canceled FROM bookings WHERE id = ?`, id).Scan(&canceled)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrBookingNotFound
	}
	if err != nil {
		return err
	}
	return ErrAlreadyCanceled
}

// UpdatePaymentStatus moves payment_status from expect to next.  A
// non-nil ref replaces payment_ref.  Canceled bookings never change.
func (r *BookingRepo) UpdatePaymentStatus(ctx context.Context, id string, expect, next model.PaymentStatus, ref *string) error {
	const q = `UPDATE bookings SET payment_status = ?, payment_ref = COALESCE(?, payment_ref)
               WHERE id = ? AND canceled = 0 AND payment_status = ?`
	res, err := r.db.ExecContext(ctx, q, string(next), nullable(ref), id, string(expect))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleStatus
	}
	return nil
}

// attachSeats fills Seats for every booking with one IN query.
func (r *BookingRepo) attachSeats(ctx context.Context, bookings []*model.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	byID := make(map[string]*model.Booking, len(bookings))
	args := make([]interface{}, 0, len(bookings))
	for _, b := range bookings {
		b.Seats = []model.SeatSnapshot{}
		byID[b.ID] = b
		args = append(args, b.ID)
	}
	q := `SELECT booking_id, seat_id, label, price_cents FROM booking_seats
          WHERE booking_id IN (` + placeholders(len(args)) + `) ORDER BY booking_id, position`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			bookingID string
			s         model.SeatSnapshot
		)
		if err := rows.Scan(&bookingID, &s.ID, &s.Label, &s.PriceCents); err != nil {
			return err
		}
		if b, ok := byID[bookingID]; ok {
			b.Seats = append(b.Seats, s)
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var (
		b          model.Booking
		typ        string
		status     string
		showtimeID sql.NullString
		eventID    sql.NullString
		paymentRef sql.NullString
	)
	if err := row.Scan(
		&b.ID, &b.UserID, &b.UserEmail, &typ, &showtimeID, &eventID, &status, &paymentRef,
		&b.TotalCents, &b.Canceled, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	b.Type = model.BookingType(typ)
	b.PaymentStatus = model.PaymentStatus(status)
	b.ShowtimeID = fromNull(showtimeID)
	b.EventID = fromNull(eventID)
	b.PaymentRef = fromNull(paymentRef)
	return &b, nil
}

func nullable(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
