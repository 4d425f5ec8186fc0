package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// ShowtimeRepo owns the showtimes and showtime_seats tables.  Seat
// mutations are only ever expressed as conditional UPDATEs scoped to
// explicit seat ids; the repo never writes back a whole seat map.
type ShowtimeRepo struct {
	db *sql.DB
}

// NewShowtimeRepo returns a ShowtimeRepo bound to db.
func NewShowtimeRepo(db *sql.DB) *ShowtimeRepo { return &ShowtimeRepo{db: db} }

// DB exposes the handle so callers can open transactions that span the
// showtime and booking repositories.
func (r *ShowtimeRepo) DB() *sql.DB { return r.db }

// Create inserts a showtime with its seat map in one transaction.
func (r *ShowtimeRepo) Create(ctx context.Context, st *model.Showtime) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := r.CreateTx(ctx, tx, st); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// CreateTx inserts the showtime row and bulk inserts its seats.  The
// version starts at zero.
func (r *ShowtimeRepo) CreateTx(ctx context.Context, tx *sql.Tx, st *model.Showtime) error {
	const q = `INSERT INTO showtimes (id, movie_id, movie_title, theater, starts_at, version) VALUES (?, ?, ?, ?, ?, 0)`
	if _, err := tx.ExecContext(ctx, q, st.ID, st.MovieID, st.MovieTitle, st.Theater, st.StartsAt.UTC()); err != nil {
		return err
	}
	st.Version = 0

	if len(st.Seats) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO showtime_seats (showtime_id, seat_id, position, label, category, price_cents, booked) VALUES `)
	args := make([]interface{}, 0, len(st.Seats)*6)
	for i, s := range st.Seats {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, 0)")
		args = append(args, st.ID, s.ID, i, s.Label, s.Category, s.PriceCents)
		st.Seats[i].Position = i
		st.Seats[i].Booked = false
	}
	_, err := tx.ExecContext(ctx, sb.String(), args...)
	return err
}

// GetByID loads a showtime and its seats with a single statement so the
// version and the seat flags come from the same snapshot.
func (r *ShowtimeRepo) GetByID(ctx context.Context, id string) (*model.Showtime, error) {
	const q = `SELECT s.id, s.movie_id, s.movie_title, s.theater, s.starts_at, s.version, s.created_at, s.updated_at,
                      ss.seat_id, ss.label, ss.category, ss.price_cents, ss.booked, ss.booking_id, ss.position
               FROM showtimes s
               LEFT JOIN showtime_seats ss ON ss.showtime_id = s.id
               WHERE s.id = ?
               ORDER BY ss.position`
	rows, err := r.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var st *model.Showtime
	for rows.Next() {
		var (
			cur       model.Showtime
			seatID    sql.NullString
			label     sql.NullString
			category  sql.NullString
			price     sql.NullInt64
			booked    sql.NullBool
			bookingID sql.NullString
			position  sql.NullInt64
		)
		if err := rows.Scan(
			&cur.ID, &cur.MovieID, &cur.MovieTitle, &cur.Theater, &cur.StartsAt, &cur.Version, &cur.CreatedAt, &cur.UpdatedAt,
			&seatID, &label, &category, &price, &booked, &bookingID, &position,
		); err != nil {
			return nil, err
		}
		if st == nil {
			cur.Seats = []model.Seat{}
			st = &cur
		}
		if !seatID.Valid {
			continue
		}
		seat := model.Seat{
			ID:         seatID.String,
			Label:      label.String,
			Category:   category.String,
			PriceCents: uint32(price.Int64),
			Booked:     booked.Bool,
			Position:   int(position.Int64),
		}
		if bookingID.Valid {
			owner := bookingID.String
			seat.BookingID = &owner
		}
		st.Seats = append(st.Seats, seat)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if st == nil {
		return nil, ErrShowtimeNotFound
	}
	return st, nil
}

// List returns showtime headers without seats ordered by start time.  An
// empty movieID lists every showtime.
func (r *ShowtimeRepo) List(ctx context.Context, movieID string, limit, offset int) ([]model.Showtime, error) {
	q := `SELECT id, movie_id, movie_title, theater, starts_at, version, created_at, updated_at FROM showtimes`
	args := []interface{}{}
	if movieID != "" {
		q += ` WHERE movie_id = ?`
		args = append(args, movieID)
	}
	q += ` ORDER BY starts_at, id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Showtime{}
	for rows.Next() {
		var st model.Showtime
		if err := rows.Scan(&st.ID, &st.MovieID, &st.MovieTitle, &st.Theater, &st.StartsAt, &st.Version, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ReserveSeatsTx is the authoritative reserve.  It bumps the showtime
// version first, which takes the row lock that orders every seat writer
// of this showtime, then flips exactly the requested seats from free to
// booked.  If any seat was not free the affected count falls short and
// ErrSeatsUnavailable is returned; the caller must roll back, which also
// undoes the version bump.  seatIDs must be free of duplicates.
func (r *ShowtimeRepo) ReserveSeatsTx(ctx context.Context, tx *sql.Tx, showtimeID, bookingID string, seatIDs []string) (uint64, error) {
	version, err := r.bumpVersionTx(ctx, tx, showtimeID)
	if err != nil {
		return 0, err
	}

	q := `UPDATE showtime_seats SET booked = 1, booking_id = ?
          WHERE showtime_id = ? AND seat_id IN (` + placeholders(len(seatIDs)) + `) AND booked = 0`
	args := make([]interface{}, 0, len(seatIDs)+2)
	args = append(args, bookingID, showtimeID)
	for _, id := range seatIDs {
		args = append(args, id)
	}
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n != int64(len(seatIDs)) {
		return 0, ErrSeatsUnavailable
	}
	return version, nil
}

// ReleaseSeatsTx frees the given seats if they are held by owner (nil
// matches seats with no owner).  It does not require the seats to be
// booked, so repeating a release is harmless.  The number of seats that
// actually changed is returned; when it is zero the caller should roll
// back so the version does not move.
func (r *ShowtimeRepo) ReleaseSeatsTx(ctx context.Context, tx *sql.Tx, showtimeID string, owner *string, seatIDs []string) (int64, uint64, error) {
	version, err := r.bumpVersionTx(ctx, tx, showtimeID)
	if err != nil {
		return 0, 0, err
	}

	q := `UPDATE showtime_seats SET booked = 0, booking_id = NULL
          WHERE showtime_id = ? AND seat_id IN (` + placeholders(len(seatIDs)) + `) AND booking_id <=> ?`
	args := make([]interface{}, 0, len(seatIDs)+2)
	args = append(args, showtimeID)
	for _, id := range seatIDs {
		args = append(args, id)
	}
	var ownerArg interface{}
	if owner != nil {
		ownerArg = *owner
	}
	args = append(args, ownerArg)

	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, 0, err
	}
	return n, version, nil
}

// bumpVersionTx increments and returns the showtime version inside tx.
func (r *ShowtimeRepo) bumpVersionTx(ctx context.Context, tx *sql.Tx, showtimeID string) (uint64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE showtimes SET version = version + 1 WHERE id = ?`, showtimeID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrShowtimeNotFound
	}
	var version uint64
	if err := tx.QueryRowContext(ctx, `SELECT version FROM showtimes WHERE id = ?`, showtimeID).Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrShowtimeNotFound
		}
		return 0, err
	}
	return version, nil
}

// OrphanSeat is a booked seat that no active booking accounts for.
type OrphanSeat struct {
	ShowtimeID string
	SeatID     string
	BookingID  *string
}

// FindOrphanSeats returns booked seats whose booking is missing or
// canceled and that have not changed since before olderThan.
func (r *ShowtimeRepo) FindOrphanSeats(ctx context.Context, olderThan time.Time, limit int) ([]OrphanSeat, error) {
	const q = `SELECT ss.showtime_id, ss.seat_id, ss.booking_id
               FROM showtime_seats ss
               LEFT JOIN bookings b ON b.id = ss.booking_id
               WHERE ss.booked = 1 AND ss.updated_at < ? AND (b.id IS NULL OR b.canceled = 1)
               ORDER BY ss.showtime_id, ss.booking_id, ss.position
               LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, olderThan.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrphanSeat
	for rows.Next() {
		var (
			o     OrphanSeat
			owner sql.NullString
		)
		if err := rows.Scan(&o.ShowtimeID, &o.SeatID, &owner); err != nil {
			return nil, err
		}
		if owner.Valid {
			id := owner.String
			o.BookingID = &id
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
