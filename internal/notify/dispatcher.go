// Package notify delivers booking emails in the background.  Callers
// enqueue and move on; delivery failures are logged and counted but never
// reach the request that produced the message.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/logger"
	"github.com/iliyamo/showtime-booking/internal/metrics"
)

// Message is one outbound email.
type Message struct {
	Kind      string `json:"kind"` // booking.confirmed, booking.canceled
	BookingID string `json:"booking_id"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// Sink performs the actual delivery of a message: publishing it to the
// broker or mailing it directly.
type Sink interface {
	Deliver(ctx context.Context, msg Message) error
}

// Dispatcher fans messages out to a fixed pool of workers over a bounded
// queue.  Enqueue never blocks; a full queue drops the message.
type Dispatcher struct {
	sink    Sink
	queue   chan Message
	workers int
	timeout time.Duration
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher; call Start to launch the workers.
func NewDispatcher(sink Sink, workers, buffer int, m *metrics.Metrics) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = 1
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Dispatcher{
		sink:    sink,
		queue:   make(chan Message, buffer),
		workers: workers,
		timeout: 10 * time.Second,
		metrics: m,
	}
}

// Start launches the worker goroutines.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
}

// Enqueue hands msg to the workers.  It reports false when the message
// was dropped because the queue is full or the dispatcher is closed.
func (d *Dispatcher) Enqueue(msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		return false
	}
	select {
	case d.queue <- msg:
		return true
	default:
		d.metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		logger.Warn("notification queue full, dropping message",
			zap.String("kind", msg.Kind), zap.String("booking_id", msg.BookingID))
		return false
	}
}

// Close stops accepting messages and waits for queued ones to drain or
// for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.sink.Deliver(ctx, msg)
		cancel()
		if err != nil {
			d.metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			logger.Warn("notification delivery failed",
				zap.String("kind", msg.Kind),
				zap.String("booking_id", msg.BookingID),
				zap.Error(err))
			continue
		}
		d.metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	}
}
