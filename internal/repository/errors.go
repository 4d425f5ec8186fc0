// Package repository implements the MySQL-backed seat store and booking
// records.  The sentinel errors below let the booking service tell a lost
// race apart from a missing row or an infrastructure failure.
package repository

import "errors"

// ErrShowtimeNotFound is returned when the showtime row does not exist.
var ErrShowtimeNotFound = errors.New("showtime not found")

// ErrBookingNotFound is returned when no booking matches the lookup.
var ErrBookingNotFound = errors.New("booking not found")

// ErrSeatsUnavailable is returned by a conditional reserve whose
// precondition did not hold for every requested seat.  It is the expected
// outcome of losing a race, not a failure of the store.
var ErrSeatsUnavailable = errors.New("seats unavailable")

// ErrAlreadyCanceled is returned when the canceled=0 guard did not match
// an existing booking.
var ErrAlreadyCanceled = errors.New("booking already canceled")

// ErrStaleStatus is returned when a payment status update finds the
// booking in a different state than the caller read.
var ErrStaleStatus = errors.New("booking payment status changed")
