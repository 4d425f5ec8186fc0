// Package worker runs background maintenance jobs.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/config"
	"github.com/iliyamo/showtime-booking/internal/logger"
	"github.com/iliyamo/showtime-booking/internal/metrics"
	"github.com/iliyamo/showtime-booking/internal/repository"
)

// OrphanFinder lists booked seats without an active booking.
type OrphanFinder interface {
	FindOrphanSeats(ctx context.Context, olderThan time.Time, limit int) ([]repository.OrphanSeat, error)
}

// SeatReleaser frees seats held by owner.
type SeatReleaser interface {
	Release(ctx context.Context, showtimeID string, owner *string, seatIDs []string) (int64, uint64, error)
}

// Sweeper frees seats left booked by a cancellation whose release failed
// or by a booking that no longer exists.  It releases through the same
// owner-keyed conditional update as a cancellation, so a seat rebooked in
// the meantime is never touched.
type Sweeper struct {
	finder   OrphanFinder
	releaser SeatReleaser
	cfg      config.SweeperConfig
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewSweeper builds a sweeper.  Missing config values fall back to a one
// minute interval, a two minute grace and batches of 200.
func NewSweeper(finder OrphanFinder, releaser SeatReleaser, cfg config.SweeperConfig, m *metrics.Metrics) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 2 * time.Minute
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 200
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Sweeper{finder: finder, releaser: releaser, cfg: cfg, metrics: m, now: time.Now}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	logger.Info("orphan sweeper started",
		zap.Duration("interval", s.cfg.Interval), zap.Duration("grace", s.cfg.Grace))
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("orphan sweeper stopped")
			return
		case <-t.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("orphan sweep failed", zap.Error(err))
			}
		}
	}
}

type owned struct {
	showtimeID string
	owner      string
	hasOwner   bool
}

// SweepOnce releases one batch of orphaned seats and returns how many
// seats were freed.  A failed group is logged and the rest still run.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	orphans, err := s.finder.FindOrphanSeats(ctx, s.now().Add(-s.cfg.Grace), s.cfg.Batch)
	if err != nil {
		return 0, err
	}
	if len(orphans) == 0 {
		return 0, nil
	}

	groups := make(map[owned][]string)
	var order []owned
	for _, o := range orphans {
		k := owned{showtimeID: o.ShowtimeID}
		if o.BookingID != nil {
			k.owner, k.hasOwner = *o.BookingID, true
		}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], o.SeatID)
	}

	var freed int64
	for _, k := range order {
		var owner *string
		if k.hasOwner {
			id := k.owner
			owner = &id
		}
		n, version, err := s.releaser.Release(ctx, k.showtimeID, owner, groups[k])
		if err != nil {
			logger.Warn("orphan release failed",
				zap.String("showtime_id", k.showtimeID),
				zap.String("booking_id", k.owner),
				zap.Strings("seat_ids", groups[k]),
				zap.Error(err))
			continue
		}
		if n > 0 {
			logger.Info("orphan seats released",
				zap.String("showtime_id", k.showtimeID),
				zap.String("booking_id", k.owner),
				zap.Int64("released", n),
				zap.Uint64("version", version))
		}
		freed += n
	}
	s.metrics.OrphanSeatsReleased.Add(float64(freed))
	return freed, nil
}
