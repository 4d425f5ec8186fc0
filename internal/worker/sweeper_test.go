package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/showtime-booking/internal/config"
	"github.com/iliyamo/showtime-booking/internal/metrics"
	"github.com/iliyamo/showtime-booking/internal/repository"
)

type mockFinder struct{ mock.Mock }

func (m *mockFinder) FindOrphanSeats(ctx context.Context, olderThan time.Time, limit int) ([]repository.OrphanSeat, error) {
	args := m.Called(ctx, olderThan, limit)
	out, _ := args.Get(0).([]repository.OrphanSeat)
	return out, args.Error(1)
}

type mockReleaser struct{ mock.Mock }

func (m *mockReleaser) Release(ctx context.Context, showtimeID string, owner *string, seatIDs []string) (int64, uint64, error) {
	args := m.Called(ctx, showtimeID, owner, seatIDs)
	return args.Get(0).(int64), args.Get(1).(uint64), args.Error(2)
}

func strp(s string) *string { return &s }

func TestSweepOnce_GroupsByShowtimeAndOwner(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	finder := &mockFinder{}
	releaser := &mockReleaser{}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	s := NewSweeper(finder, releaser, config.SweeperConfig{Grace: 5 * time.Minute, Batch: 50}, m)
	s.now = func() time.Time { return now }

	finder.On("FindOrphanSeats", mock.Anything, now.Add(-5*time.Minute), 50).Return([]repository.OrphanSeat{
		{ShowtimeID: "st-1", SeatID: "A1", BookingID: strp("bk-1")},
		{ShowtimeID: "st-1", SeatID: "A2", BookingID: strp("bk-1")},
		{ShowtimeID: "st-1", SeatID: "B1"},
		{ShowtimeID: "st-2", SeatID: "C4", BookingID: strp("bk-9")},
	}, nil)
	releaser.On("Release", mock.Anything, "st-1", strp("bk-1"), []string{"A1", "A2"}).Return(int64(2), uint64(7), nil)
	releaser.On("Release", mock.Anything, "st-1", (*string)(nil), []string{"B1"}).Return(int64(1), uint64(8), nil)
	releaser.On("Release", mock.Anything, "st-2", strp("bk-9"), []string{"C4"}).Return(int64(0), uint64(0), errors.New("lock wait timeout"))

	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.OrphanSeatsReleased))
	releaser.AssertNumberOfCalls(t, "Release", 3)
	finder.AssertExpectations(t)
}

func TestSweepOnce_NothingToDo(t *testing.T) {
	finder := &mockFinder{}
	releaser := &mockReleaser{}
	finder.On("FindOrphanSeats", mock.Anything, mock.Anything, 200).Return(nil, nil)

	n, err := NewSweeper(finder, releaser, config.SweeperConfig{}, nil).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	releaser.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSweepOnce_FinderError(t *testing.T) {
	finder := &mockFinder{}
	finder.On("FindOrphanSeats", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	_, err := NewSweeper(finder, &mockReleaser{}, config.SweeperConfig{}, nil).SweepOnce(context.Background())
	assert.EqualError(t, err, "db down")
}

type countingFinder struct{ calls atomic.Int32 }

func (f *countingFinder) FindOrphanSeats(context.Context, time.Time, int) ([]repository.OrphanSeat, error) {
	f.calls.Add(1)
	return nil, nil
}

func TestRun_StopsOnCancel(t *testing.T) {
	finder := &countingFinder{}
	s := NewSweeper(finder, &mockReleaser{}, config.SweeperConfig{Interval: 5 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return finder.calls.Load() > 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
