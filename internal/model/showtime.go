package model

import "time"

// Seat categories used when a seat map is generated.
const (
	SeatStandard = "standard"
	SeatPremium  = "premium"
)

// Showtime is a scheduled screening together with its seat map.  The
// seat map is stored as rows of showtime_seats; Seats keeps them in
// their original position order.
//
// Version is the optimistic-concurrency fence: every committed change to
// the seat map bumps it by exactly one.
type Showtime struct {
	ID         string    `json:"id"`          // showtimes.id (uuid)
	MovieID    string    `json:"movie_id"`    // external catalog reference
	MovieTitle string    `json:"movie_title"` // denormalised for receipts and emails
	Theater    string    `json:"theater"`     // theater/screen label
	StartsAt   time.Time `json:"starts_at"`   // UTC
	Version    uint64    `json:"version"`     // showtimes.version
	Seats      []Seat    `json:"seats"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Seat is one bookable unit of a showtime.  ID is unique and immutable
// within its showtime; Booked only flips false->true on a reservation and
// true->false on a cancellation or orphan release.
type Seat struct {
	ID         string  `json:"id"`
	Label      string  `json:"label"`
	Category   string  `json:"category"`
	PriceCents uint32  `json:"price_cents"`
	Booked     bool    `json:"booked"`
	BookingID  *string `json:"-"` // owner of a booked seat, never exposed publicly
	Position   int     `json:"-"`
}

// SeatByID indexes the seat map.
func (s *Showtime) SeatByID() map[string]Seat {
	out := make(map[string]Seat, len(s.Seats))
	for _, seat := range s.Seats {
		out[seat.ID] = seat
	}
	return out
}

// AvailableCount returns the number of seats not yet booked.
func (s *Showtime) AvailableCount() int {
	n := 0
	for _, seat := range s.Seats {
		if !seat.Booked {
			n++
		}
	}
	return n
}
