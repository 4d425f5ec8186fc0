package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// Ledger is the authoritative seat store used by the booking service.  A
// reservation and the booking that owns it commit in the same
// transaction, so a booked seat without its booking can only appear
// through a later failed release, which the orphan sweeper repairs.
type Ledger struct {
	db        *sql.DB
	showtimes *ShowtimeRepo
	bookings  *BookingRepo
}

// NewLedger wires the repositories that share db.
func NewLedger(db *sql.DB, showtimes *ShowtimeRepo, bookings *BookingRepo) *Ledger {
	return &Ledger{db: db, showtimes: showtimes, bookings: bookings}
}

// Showtime returns a point-in-time view of the showtime and its seats.
func (l *Ledger) Showtime(ctx context.Context, id string) (*model.Showtime, error) {
	return l.showtimes.GetByID(ctx, id)
}

// TryReserve books b's seats on its showtime and persists b.  On any
// error nothing is committed.  The new showtime version is returned.
func (l *Ledger) TryReserve(ctx context.Context, b *model.Booking) (uint64, error) {
	if b.ShowtimeID == nil {
		return 0, fmt.Errorf("booking %s has no showtime", b.ID)
	}
	seatIDs := b.SeatIDs()
	if len(seatIDs) == 0 {
		return 0, ErrSeatsUnavailable
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	version, err := l.showtimes.ReserveSeatsTx(ctx, tx, *b.ShowtimeID, b.ID, seatIDs)
	if err != nil {
		return 0, err
	}
	if err := l.bookings.CreateTx(ctx, tx, b); err != nil {
		return 0, fmt.Errorf("persist booking: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return version, nil
}

// Release frees the seats held by owner.  It returns how many seats
// changed and the resulting version.  A release that changes nothing is
// rolled back and reports the version as zero.
func (l *Ledger) Release(ctx context.Context, showtimeID string, owner *string, seatIDs []string) (int64, uint64, error) {
	if len(seatIDs) == 0 {
		return 0, 0, nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	n, version, err := l.showtimes.ReleaseSeatsTx(ctx, tx, showtimeID, owner, seatIDs)
	if err != nil {
		return 0, 0, err
	}
	if n == 0 {
		return 0, 0, nil
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	committed = true
	return n, version, nil
}

