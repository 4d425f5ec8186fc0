package booking

import (
	"errors"
	"strings"
)

// Sentinel errors classify every failure the service reports.  Handlers
// map them to HTTP statuses with errors.Is.
var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrInvalidState   = errors.New("invalid state")
)

// Machine readable reasons carried by SeatError.
const (
	CodeNoSeats          = "no_seats"
	CodeDuplicateSeats   = "duplicate_seats"
	CodeTooManySeats     = "too_many_seats"
	CodeUnknownSeats     = "unknown_seats"
	CodeSeatsBooked      = "seats_already_booked"
	CodeSeatLocked       = "seat_locked"
	CodeSeatsUnavailable = "seats_unavailable"
)

// SeatError is a rejected seat request.  It unwraps to its Kind, so
// errors.Is(err, ErrConflict) works, and carries the ids a client needs to
// re-render its seat selection.
type SeatError struct {
	Kind      error
	Code      string
	Reason    string
	Unknown   []string
	Booked    []string
	Duplicate []string
	Available []string
}

func (e *SeatError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.Error())
	sb.WriteString(": ")
	sb.WriteString(e.Reason)
	if len(e.Unknown) > 0 {
		sb.WriteString(" (unknown: " + strings.Join(e.Unknown, ",") + ")")
	}
	if len(e.Booked) > 0 {
		sb.WriteString(" (booked: " + strings.Join(e.Booked, ",") + ")")
	}
	if len(e.Duplicate) > 0 {
		sb.WriteString(" (duplicate: " + strings.Join(e.Duplicate, ",") + ")")
	}
	return sb.String()
}

func (e *SeatError) Unwrap() error { return e.Kind }

// Retryable reports whether the same request may succeed later.
func (e *SeatError) Retryable() bool { return errors.Is(e.Kind, ErrConflict) }
