// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector the service records into.
type Metrics struct {
	// HTTP requests by method, route and status code.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Booking attempts by outcome: success, conflict, invalid, not_found, error.
	BookingsTotal *prometheus.CounterVec
	// Cancellations by outcome: success, already_canceled, not_found, error.
	CancellationsTotal *prometheus.CounterVec
	// Advisory lock attempts by result: acquired, contended, unavailable.
	AdvisoryLockTotal *prometheus.CounterVec
	// Committed seat mutations by op: reserve, release.
	SeatMutationsTotal *prometheus.CounterVec
	// Time spent in the authoritative conditional update.
	SeatMutationDuration *prometheus.HistogramVec
	// Notifications by status: sent, dropped, failed.
	NotificationsTotal *prometheus.CounterVec
	// Seats freed by the orphan sweeper.
	OrphanSeatsReleased prometheus.Counter
}

// New registers the collectors with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors with reg.  Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration panics.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		BookingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookings_total",
				Help: "Booking attempts by outcome",
			},
			[]string{"status"},
		),
		CancellationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cancellations_total",
				Help: "Booking cancellations by outcome",
			},
			[]string{"status"},
		),
		AdvisoryLockTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisory_lock_total",
				Help: "Advisory seat lock attempts by result",
			},
			[]string{"result"},
		),
		SeatMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seat_mutations_total",
				Help: "Committed conditional seat updates",
			},
			[]string{"op"},
		),
		SeatMutationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seat_mutation_duration_seconds",
				Help:    "Latency of the conditional seat update transaction",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"op", "status"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_total",
				Help: "Notification dispatch outcomes",
			},
			[]string{"status"},
		),
		OrphanSeatsReleased: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "orphan_seats_released_total",
				Help: "Booked seats without an active booking that the sweeper released",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.BookingsTotal,
		m.CancellationsTotal,
		m.AdvisoryLockTotal,
		m.SeatMutationsTotal,
		m.SeatMutationDuration,
		m.NotificationsTotal,
		m.OrphanSeatsReleased,
	)
	return m
}

// NewNop returns collectors bound to a throwaway registry.  Components
// accept a nil *Metrics and swap it for this so they never nil-check.
func NewNop() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}
