package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/notify"
	"github.com/iliyamo/showtime-booking/internal/repository"
)

// memStore is an in-memory SeatLedger and BookingStore that honours the
// same conditional-update contract as the MySQL ledger: a reserve flips
// every seat or none, and only a committed mutation bumps the version.
type memStore struct {
	mu        sync.Mutex
	showtimes map[string]*model.Showtime
	bookings  map[string]*model.Booking

	// failPersist makes the booking insert fail inside TryReserve, which
	// must leave the seats untouched.
	failPersist error
	failRelease error
	versions    []uint64
}

func newMemStore() *memStore {
	return &memStore{
		showtimes: make(map[string]*model.Showtime),
		bookings:  make(map[string]*model.Booking),
	}
}

func (m *memStore) addShowtime(id string, seatIDs ...string) {
	st := &model.Showtime{ID: id, MovieTitle: "Heat", Theater: "Screen 1"}
	for i, s := range seatIDs {
		st.Seats = append(st.Seats, model.Seat{
			ID: s, Label: "Seat " + s, Category: model.SeatStandard, PriceCents: 100, Position: i,
		})
	}
	m.mu.Lock()
	m.showtimes[id] = st
	m.mu.Unlock()
}

func (m *memStore) Showtime(_ context.Context, id string) (*model.Showtime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.showtimes[id]
	if !ok {
		return nil, repository.ErrShowtimeNotFound
	}
	cp := *st
	cp.Seats = append([]model.Seat(nil), st.Seats...)
	return &cp, nil
}

func (m *memStore) TryReserve(_ context.Context, b *model.Booking) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.showtimes[*b.ShowtimeID]
	if !ok {
		return 0, repository.ErrShowtimeNotFound
	}
	idx := make(map[string]int, len(st.Seats))
	for i, s := range st.Seats {
		idx[s.ID] = i
	}
	for _, id := range b.SeatIDs() {
		i, ok := idx[id]
		if !ok || st.Seats[i].Booked {
			return 0, repository.ErrSeatsUnavailable
		}
	}
	if m.failPersist != nil {
		return 0, fmt.Errorf("persist booking: %w", m.failPersist)
	}
	for _, id := range b.SeatIDs() {
		owner := b.ID
		st.Seats[idx[id]].Booked = true
		st.Seats[idx[id]].BookingID = &owner
	}
	st.Version++
	m.versions = append(m.versions, st.Version)
	cp := *b
	cp.Seats = append([]model.SeatSnapshot(nil), b.Seats...)
	m.bookings[b.ID] = &cp
	return st.Version, nil
}

func (m *memStore) Release(_ context.Context, showtimeID string, owner *string, seatIDs []string) (int64, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRelease != nil {
		return 0, 0, m.failRelease
	}
	st, ok := m.showtimes[showtimeID]
	if !ok {
		return 0, 0, repository.ErrShowtimeNotFound
	}
	want := make(map[string]bool, len(seatIDs))
	for _, id := range seatIDs {
		want[id] = true
	}
	var n int64
	for i := range st.Seats {
		s := &st.Seats[i]
		if !want[s.ID] || !sameOwner(s.BookingID, owner) {
			continue
		}
		if s.Booked || s.BookingID != nil {
			s.Booked = false
			s.BookingID = nil
			n++
		}
	}
	if n == 0 {
		return 0, 0, nil
	}
	st.Version++
	m.versions = append(m.versions, st.Version)
	return n, st.Version, nil
}

func sameOwner(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (m *memStore) GetByID(_ context.Context, id string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, repository.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) GetByPaymentRef(_ context.Context, ref string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.PaymentRef != nil && *b.PaymentRef == ref {
			cp := *b
			return &cp, nil
		}
	}
	return nil, repository.ErrBookingNotFound
}

func (m *memStore) ListByUser(_ context.Context, userID string, limit, offset int) ([]*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Booking
	for _, b := range m.bookings {
		if b.UserID == userID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) MarkCanceled(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return repository.ErrBookingNotFound
	}
	if b.Canceled {
		return repository.ErrAlreadyCanceled
	}
	b.Canceled = true
	b.PaymentStatus = model.PaymentRefunded
	return nil
}

func (m *memStore) UpdatePaymentStatus(_ context.Context, id string, expect, next model.PaymentStatus, ref *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Canceled || b.PaymentStatus != expect {
		return repository.ErrStaleStatus
	}
	b.PaymentStatus = next
	if ref != nil {
		r := *ref
		b.PaymentRef = &r
	}
	return nil
}

func (m *memStore) seat(showtimeID, seatID string) model.Seat {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.showtimes[showtimeID].Seats {
		if s.ID == seatID {
			return s
		}
	}
	return model.Seat{}
}

func (m *memStore) version(showtimeID string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.showtimes[showtimeID].Version
}

// memLocker is a SETNX-style advisory locker.
type memLocker struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemLocker() *memLocker { return &memLocker{keys: make(map[string]string)} }

func (l *memLocker) Acquire(_ context.Context, st, seat, owner string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := st + ":" + seat
	if _, taken := l.keys[k]; taken {
		return false, nil
	}
	l.keys[k] = owner
	return true, nil
}

func (l *memLocker) Release(_ context.Context, st, seat, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := st + ":" + seat
	if l.keys[k] == owner {
		delete(l.keys, k)
	}
	return nil
}

func (l *memLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

// brokenLocker fails every call, as an unreachable Redis would.
type brokenLocker struct{}

func (brokenLocker) Acquire(context.Context, string, string, string, time.Duration) (bool, error) {
	return false, errors.New("dial tcp: connection refused")
}

func (brokenLocker) Release(context.Context, string, string, string) error {
	return errors.New("dial tcp: connection refused")
}

// captureNotifier records enqueued messages.
type captureNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (n *captureNotifier) Enqueue(msg notify.Message) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return true
}

func (n *captureNotifier) all() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Message(nil), n.msgs...)
}
