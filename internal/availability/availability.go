// Package availability holds the pure seat-availability rules shared by
// booking and cancellation.  Nothing here performs I/O; results are
// point-in-time answers over a seat list the caller already loaded.
package availability

import (
	"strings"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// Check is the outcome of evaluating a seat request against a seat map.
type Check struct {
	Requested []string // normalised request, order preserved
	Unknown   []string // ids not present in the seat map
	Booked    []string // ids present but already booked
	Available []string // every currently free seat id, seat map order
	// Consistent is false when more seats are requested than the seat map
	// holds or when the request is empty.
	Consistent bool
}

// OK reports whether the request can proceed to the reservation step.
func (c Check) OK() bool {
	return c.Consistent && len(c.Unknown) == 0 && len(c.Booked) == 0
}

// Normalize trims ids, drops blanks and removes duplicates while keeping
// the first occurrence order.  The duplicates are returned separately so
// callers can reject them instead of silently collapsing the request.
func Normalize(ids []string) (unique []string, duplicates []string) {
	seen := make(map[string]bool, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if seen[id] {
			duplicates = append(duplicates, id)
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	return unique, duplicates
}

// Evaluate classifies requested against seats.  requested should already
// be normalised.
func Evaluate(seats []model.Seat, requested []string) Check {
	index := make(map[string]model.Seat, len(seats))
	for _, s := range seats {
		index[s.ID] = s
	}

	c := Check{
		Requested:  requested,
		Available:  Available(seats),
		Consistent: len(requested) > 0 && len(requested) <= len(seats),
	}
	for _, id := range requested {
		seat, ok := index[id]
		switch {
		case !ok:
			c.Unknown = append(c.Unknown, id)
		case seat.Booked:
			c.Booked = append(c.Booked, id)
		}
	}
	return c
}

// Available lists the ids of free seats in seat map order.
func Available(seats []model.Seat) []string {
	out := make([]string, 0, len(seats))
	for _, s := range seats {
		if !s.Booked {
			out = append(out, s.ID)
		}
	}
	return out
}

// Snapshots copies the requested seats out of the seat map in request
// order.  Unknown ids are skipped; callers run Evaluate first.
func Snapshots(seats []model.Seat, requested []string) ([]model.SeatSnapshot, uint32) {
	index := make(map[string]model.Seat, len(seats))
	for _, s := range seats {
		index[s.ID] = s
	}
	out := make([]model.SeatSnapshot, 0, len(requested))
	var total uint32
	for _, id := range requested {
		s, ok := index[id]
		if !ok {
			continue
		}
		out = append(out, model.SeatSnapshot{ID: s.ID, Label: s.Label, PriceCents: s.PriceCents})
		total += s.PriceCents
	}
	return out, total
}
