package model

import "time"

// BookingType distinguishes seat-based movie bookings from event tickets.
type BookingType string

const (
	BookingMovie BookingType = "movie"
	BookingEvent BookingType = "event"
)

// PaymentStatus tracks the payment side of a booking.  The values match
// the ENUM of bookings.payment_status.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
)

// paymentTransitions lists the moves a payment update may make.  Refunded
// is only entered through cancellation, which is handled separately.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentPaid, PaymentFailed, PaymentCancelled},
	PaymentFailed:  {PaymentPending, PaymentPaid},
	PaymentPaid:    {PaymentRefunded},
}

// CanTransition reports whether a payment update from s to next is legal.
func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Booking is the durable receipt of a reservation.  Seats holds
// snapshots taken when the booking was created and is never modified
// afterwards; cancellation flips Canceled and compensates the showtime
// separately.  Canceled is terminal.
type Booking struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	UserEmail     string         `json:"-"`
	Type          BookingType    `json:"type"`
	ShowtimeID    *string        `json:"showtime_id,omitempty"` // movie bookings only
	EventID       *string        `json:"event_id,omitempty"`    // event bookings only
	Seats         []SeatSnapshot `json:"seats"`
	TotalCents    uint32         `json:"total_cents"`
	PaymentStatus PaymentStatus  `json:"payment_status"`
	PaymentRef    *string        `json:"payment_ref,omitempty"`
	Canceled      bool           `json:"canceled"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// SeatSnapshot is the copy of a seat stored on a booking.
type SeatSnapshot struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	PriceCents uint32 `json:"price_cents"`
}

// SeatIDs returns the ids of the booked seats in booking order.
func (b *Booking) SeatIDs() []string {
	ids := make([]string, len(b.Seats))
	for i, s := range b.Seats {
		ids[i] = s.ID
	}
	return ids
}

// SeatLabels returns the human readable seat labels in booking order.
func (b *Booking) SeatLabels() []string {
	labels := make([]string, len(b.Seats))
	for i, s := range b.Seats {
		labels[i] = s.Label
	}
	return labels
}
