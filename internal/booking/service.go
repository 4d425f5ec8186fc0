// Package booking implements seat booking and cancellation.
//
// The only correctness-bearing step is SeatLedger.TryReserve, a single
// conditional update that books every requested seat or none of them.
// The availability pre-check and the advisory locks in front of it narrow
// the race window and produce better rejection messages; a stale read or a
// dead lock cache can never let two bookings hold the same seat.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/availability"
	"github.com/iliyamo/showtime-booking/internal/lockcache"
	"github.com/iliyamo/showtime-booking/internal/logger"
	"github.com/iliyamo/showtime-booking/internal/metrics"
	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/notify"
	"github.com/iliyamo/showtime-booking/internal/payment"
	"github.com/iliyamo/showtime-booking/internal/repository"
)

// SeatLedger is the authoritative seat store.
type SeatLedger interface {
	// Showtime returns a point-in-time view of the showtime and its seats.
	Showtime(ctx context.Context, id string) (*model.Showtime, error)
	// TryReserve books every seat of b on its showtime and persists b in
	// one atomic step.  It returns repository.ErrSeatsUnavailable when any
	// seat was already booked and the new showtime version on success.
	TryReserve(ctx context.Context, b *model.Booking) (uint64, error)
	// Release frees the listed seats still held by owner.
	Release(ctx context.Context, showtimeID string, owner *string, seatIDs []string) (int64, uint64, error)
}

// BookingStore reads and updates persisted bookings.
type BookingStore interface {
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	GetByPaymentRef(ctx context.Context, ref string) (*model.Booking, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.Booking, error)
	MarkCanceled(ctx context.Context, id string) error
	UpdatePaymentStatus(ctx context.Context, id string, expect, next model.PaymentStatus, ref *string) error
}

// Notifier accepts best-effort notifications.
type Notifier interface {
	Enqueue(msg notify.Message) bool
}

// Actor is the authenticated caller.
type Actor struct {
	UserID string
	Email  string
	Role   string
}

// IsAdmin reports whether the caller may act on other users' bookings.
func (a Actor) IsAdmin() bool { return a.Role == "ADMIN" }

// CreateRequest asks for seats on one showtime.
type CreateRequest struct {
	ShowtimeID string
	Seats      []string
}

// Result is a created booking plus where to pay for it.
type Result struct {
	Booking    *model.Booking `json:"booking"`
	PaymentURL string         `json:"payment_url,omitempty"`
	// Version is the showtime version the reservation produced.
	Version uint64 `json:"showtime_version"`
}

// Options tune a Service.  Zero values select the defaults.
type Options struct {
	LockTTL  time.Duration
	MaxSeats int
	Metrics  *metrics.Metrics
	Now      func() time.Time
	NewID    func() string
}

// Service orchestrates bookings and cancellations over injected
// collaborators.
type Service struct {
	ledger   SeatLedger
	bookings BookingStore
	locker   lockcache.Locker
	notifier Notifier
	gateway  payment.Gateway

	lockTTL  time.Duration
	maxSeats int
	metrics  *metrics.Metrics
	now      func() time.Time
	newID    func() string
	tracer   trace.Tracer
}

// NewService wires a Service.  A nil locker disables advisory locking.
func NewService(ledger SeatLedger, bookings BookingStore, locker lockcache.Locker,
	notifier Notifier, gateway payment.Gateway, opts Options) *Service {
	if locker == nil {
		locker = lockcache.Noop{}
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if opts.MaxSeats <= 0 {
		opts.MaxSeats = 10
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Service{
		ledger:   ledger,
		bookings: bookings,
		locker:   locker,
		notifier: notifier,
		gateway:  gateway,
		lockTTL:  opts.LockTTL,
		maxSeats: opts.MaxSeats,
		metrics:  opts.Metrics,
		now:      opts.Now,
		newID:    opts.NewID,
		tracer:   otel.Tracer("github.com/iliyamo/showtime-booking/internal/booking"),
	}
}

// Create books req.Seats on req.ShowtimeID for the actor.
func (s *Service) Create(ctx context.Context, actor Actor, req CreateRequest) (res *Result, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.create", trace.WithAttributes(
		attribute.String("showtime.id", req.ShowtimeID),
		attribute.Int("seats.requested", len(req.Seats)),
	))
	defer func() {
		s.metrics.BookingsTotal.WithLabelValues(outcome(err)).Inc()
		endSpan(span, err)
	}()

	if actor.UserID == "" {
		return nil, ErrUnauthorized
	}
	if req.ShowtimeID == "" {
		return nil, fmt.Errorf("%w: showtime id is required", ErrInvalidRequest)
	}
	seatIDs, dup := availability.Normalize(req.Seats)
	switch {
	case len(dup) > 0:
		return nil, &SeatError{Kind: ErrInvalidRequest, Code: CodeDuplicateSeats,
			Reason: "seats requested more than once", Duplicate: dup}
	case len(seatIDs) == 0:
		return nil, &SeatError{Kind: ErrInvalidRequest, Code: CodeNoSeats, Reason: "no seats requested"}
	case len(seatIDs) > s.maxSeats:
		return nil, &SeatError{Kind: ErrInvalidRequest, Code: CodeTooManySeats,
			Reason: fmt.Sprintf("at most %d seats per booking", s.maxSeats)}
	}

	// Point-in-time read; only used for early rejection and snapshots.
	st, err := s.ledger.Showtime(ctx, req.ShowtimeID)
	if err != nil {
		return nil, s.mapStoreErr(err, "load showtime")
	}
	check := availability.Evaluate(st.Seats, seatIDs)
	if len(check.Unknown) > 0 {
		return nil, &SeatError{Kind: ErrInvalidRequest, Code: CodeUnknownSeats,
			Reason: "seats do not exist in this showtime", Unknown: check.Unknown, Available: check.Available}
	}
	if !check.Consistent {
		return nil, &SeatError{Kind: ErrInvalidRequest, Code: CodeTooManySeats,
			Reason: "more seats requested than the showtime has", Available: check.Available}
	}
	if len(check.Booked) > 0 {
		return nil, &SeatError{Kind: ErrConflict, Code: CodeSeatsBooked,
			Reason: "seats already booked", Booked: check.Booked, Available: check.Available}
	}

	held, err := s.acquireLocks(ctx, st.ID, seatIDs, actor.UserID)
	if err != nil {
		return nil, err
	}

	snaps, total := availability.Snapshots(st.Seats, seatIDs)
	showtimeID := st.ID
	b := &model.Booking{
		ID:            s.newID(),
		UserID:        actor.UserID,
		UserEmail:     actor.Email,
		Type:          model.BookingMovie,
		ShowtimeID:    &showtimeID,
		Seats:         snaps,
		TotalCents:    total,
		PaymentStatus: model.PaymentPending,
		CreatedAt:     s.now().UTC(),
	}
	b.UpdatedAt = b.CreatedAt

	started := time.Now()
	version, err := s.ledger.TryReserve(ctx, b)
	s.observeMutation("reserve", started, err)
	s.releaseLocks(ctx, st.ID, held, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrSeatsUnavailable) {
			return nil, s.lostRace(ctx, st.ID)
		}
		return nil, s.mapStoreErr(err, "reserve seats")
	}
	span.SetAttributes(attribute.String("booking.id", b.ID), attribute.Int64("showtime.version", int64(version)))
	logger.Info("booking created",
		zap.String("booking_id", b.ID),
		zap.String("showtime_id", st.ID),
		zap.Strings("seat_ids", seatIDs),
		zap.Uint64("version", version))

	res = &Result{Booking: b, Version: version}
	res.PaymentURL = s.startPayment(ctx, b)
	if b.UserEmail != "" {
		s.notifier.Enqueue(confirmationMessage(b, st.MovieTitle))
	}
	return res, nil
}

// acquireLocks takes an advisory lock per seat.  Contention releases what
// was taken and fails with a Conflict.  A failing cache stops the lock
// phase and the booking continues on the conditional update alone.
func (s *Service) acquireLocks(ctx context.Context, showtimeID string, seatIDs []string, owner string) ([]string, error) {
	held := make([]string, 0, len(seatIDs))
	for _, id := range seatIDs {
		ok, err := s.locker.Acquire(ctx, showtimeID, id, owner, s.lockTTL)
		if err != nil {
			s.metrics.AdvisoryLockTotal.WithLabelValues("unavailable").Inc()
			logger.Warn("advisory lock unavailable, continuing without locks",
				zap.String("showtime_id", showtimeID), zap.String("seat_id", id), zap.Error(err))
			return held, nil
		}
		if !ok {
			s.metrics.AdvisoryLockTotal.WithLabelValues("contended").Inc()
			s.releaseLocks(ctx, showtimeID, held, owner)
			return nil, &SeatError{Kind: ErrConflict, Code: CodeSeatLocked,
				Reason: "seat is being booked by another user, retry shortly", Booked: []string{id}}
		}
		s.metrics.AdvisoryLockTotal.WithLabelValues("acquired").Inc()
		held = append(held, id)
	}
	return held, nil
}

func (s *Service) releaseLocks(ctx context.Context, showtimeID string, seatIDs []string, owner string) {
	if len(seatIDs) == 0 {
		return
	}
	// a cancelled request must still free its keys
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	for _, id := range seatIDs {
		if err := s.locker.Release(ctx, showtimeID, id, owner); err != nil {
			logger.Warn("advisory lock release failed",
				zap.String("showtime_id", showtimeID), zap.String("seat_id", id), zap.Error(err))
		}
	}
}

// lostRace builds the Conflict returned when the conditional update did
// not match.  A fresh read fills in the seats that are still free.
func (s *Service) lostRace(ctx context.Context, showtimeID string) error {
	e := &SeatError{Kind: ErrConflict, Code: CodeSeatsUnavailable,
		Reason: "seats were booked by another request, retry with a new selection"}
	if st, err := s.ledger.Showtime(ctx, showtimeID); err == nil {
		e.Available = availability.Available(st.Seats)
	}
	return e
}

// startPayment asks the gateway for a payment intent.  Failures only move
// the booking to failed; the seats stay booked.
func (s *Service) startPayment(ctx context.Context, b *model.Booking) string {
	if s.gateway == nil {
		return ""
	}
	intent, err := s.gateway.CreatePayment(ctx, b)
	if err != nil {
		logger.Warn("payment initiation failed", zap.String("booking_id", b.ID), zap.Error(err))
		if uerr := s.bookings.UpdatePaymentStatus(ctx, b.ID, model.PaymentPending, model.PaymentFailed, nil); uerr != nil {
			logger.Error("mark payment failed", zap.String("booking_id", b.ID), zap.Error(uerr))
			return ""
		}
		b.PaymentStatus = model.PaymentFailed
		return ""
	}
	if err := s.bookings.UpdatePaymentStatus(ctx, b.ID, model.PaymentPending, model.PaymentPending, &intent.Ref); err != nil {
		logger.Error("store payment ref", zap.String("booking_id", b.ID), zap.Error(err))
		return intent.RedirectURL
	}
	b.PaymentRef = &intent.Ref
	return intent.RedirectURL
}

// Cancel cancels the booking and frees its seats.  Only the owner or an
// admin may cancel; other callers see NotFound.
func (s *Service) Cancel(ctx context.Context, actor Actor, bookingID string) (b *model.Booking, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.cancel", trace.WithAttributes(
		attribute.String("booking.id", bookingID),
	))
	defer func() {
		s.metrics.CancellationsTotal.WithLabelValues(cancelOutcome(err)).Inc()
		endSpan(span, err)
	}()

	b, err = s.owned(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Canceled {
		return nil, fmt.Errorf("%w: booking already canceled", ErrInvalidState)
	}
	// The guarded update is the critical section: of two concurrent
	// cancels exactly one gets past here.
	if err := s.bookings.MarkCanceled(ctx, b.ID); err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyCanceled):
			return nil, fmt.Errorf("%w: booking already canceled", ErrInvalidState)
		case errors.Is(err, repository.ErrBookingNotFound):
			return nil, fmt.Errorf("%w: booking %s", ErrNotFound, bookingID)
		default:
			return nil, fmt.Errorf("cancel booking %s: %w", bookingID, err)
		}
	}
	paidBefore := b.PaymentStatus == model.PaymentPaid
	b.Canceled = true
	b.PaymentStatus = model.PaymentRefunded
	b.UpdatedAt = s.now().UTC()

	if b.Type == model.BookingMovie && b.ShowtimeID != nil {
		s.compensate(ctx, b)
	}
	if paidBefore && b.PaymentRef != nil && s.gateway != nil {
		if err := s.gateway.Refund(ctx, *b.PaymentRef, b.TotalCents); err != nil {
			logger.Warn("refund failed", zap.String("booking_id", b.ID), zap.Error(err))
		}
	}
	if b.UserEmail != "" {
		s.notifier.Enqueue(cancellationMessage(b))
	}
	span.SetAttributes(attribute.Int("seats.released", len(b.Seats)))
	return b, nil
}

// compensate frees the booking's seats.  The booking is already canceled
// at this point, so failures are logged and left to the orphan sweeper.
func (s *Service) compensate(ctx context.Context, b *model.Booking) {
	ctx = context.WithoutCancel(ctx)
	started := time.Now()
	n, version, err := s.ledger.Release(ctx, *b.ShowtimeID, &b.ID, b.SeatIDs())
	s.observeMutation("release", started, err)
	switch {
	case errors.Is(err, repository.ErrShowtimeNotFound):
		logger.Warn("showtime gone, nothing to release",
			zap.String("booking_id", b.ID), zap.String("showtime_id", *b.ShowtimeID))
	case err != nil:
		logger.Error("seat release failed, sweeper will retry",
			zap.String("booking_id", b.ID), zap.String("showtime_id", *b.ShowtimeID), zap.Error(err))
	default:
		logger.Info("booking canceled",
			zap.String("booking_id", b.ID),
			zap.String("showtime_id", *b.ShowtimeID),
			zap.Int64("released", n),
			zap.Uint64("version", version))
	}
}

// Showtime returns the current seat view.
func (s *Service) Showtime(ctx context.Context, id string) (*model.Showtime, error) {
	st, err := s.ledger.Showtime(ctx, id)
	if err != nil {
		return nil, s.mapStoreErr(err, "load showtime")
	}
	return st, nil
}

// Get returns one of the actor's bookings.
func (s *Service) Get(ctx context.Context, actor Actor, id string) (*model.Booking, error) {
	return s.owned(ctx, actor, id)
}

// List returns the actor's bookings, newest first.
func (s *Service) List(ctx context.Context, actor Actor, limit, offset int) ([]*model.Booking, error) {
	if actor.UserID == "" {
		return nil, ErrUnauthorized
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	out, err := s.bookings.ListByUser(ctx, actor.UserID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return out, nil
}

// InitiatePayment opens a new payment for a booking whose payment is
// pending or failed.
func (s *Service) InitiatePayment(ctx context.Context, actor Actor, id string) (*model.Booking, *payment.Intent, error) {
	b, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	if b.Canceled {
		return nil, nil, fmt.Errorf("%w: booking is canceled", ErrInvalidState)
	}
	if b.PaymentStatus != model.PaymentPending && b.PaymentStatus != model.PaymentFailed {
		return nil, nil, fmt.Errorf("%w: payment is %s", ErrInvalidState, b.PaymentStatus)
	}
	if s.gateway == nil {
		return nil, nil, errors.New("no payment gateway configured")
	}
	intent, err := s.gateway.CreatePayment(ctx, b)
	if err != nil {
		return nil, nil, fmt.Errorf("create payment: %w", err)
	}
	if err := s.bookings.UpdatePaymentStatus(ctx, b.ID, b.PaymentStatus, model.PaymentPending, &intent.Ref); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, nil, fmt.Errorf("%w: booking changed, retry", ErrConflict)
		}
		return nil, nil, fmt.Errorf("store payment ref: %w", err)
	}
	b.PaymentStatus = model.PaymentPending
	b.PaymentRef = &intent.Ref
	return b, intent, nil
}

// VerifyPayment pulls the provider status for ref and applies it when the
// payment state machine allows the transition.
func (s *Service) VerifyPayment(ctx context.Context, actor Actor, ref string) (*model.Booking, error) {
	if actor.UserID == "" {
		return nil, ErrUnauthorized
	}
	if ref == "" {
		return nil, fmt.Errorf("%w: payment_ref is required", ErrInvalidRequest)
	}
	b, err := s.bookings.GetByPaymentRef(ctx, ref)
	if err != nil {
		return nil, s.mapStoreErr(err, "load booking")
	}
	if b.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: payment %s", ErrNotFound, ref)
	}
	if b.Canceled {
		return nil, fmt.Errorf("%w: booking is canceled", ErrInvalidState)
	}
	if s.gateway == nil {
		return nil, errors.New("no payment gateway configured")
	}
	next, err := s.gateway.Status(ctx, ref)
	if err != nil {
		if errors.Is(err, payment.ErrUnknownRef) {
			return nil, fmt.Errorf("%w: payment %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("payment status: %w", err)
	}
	if next == b.PaymentStatus {
		return b, nil
	}
	if !b.PaymentStatus.CanTransition(next) {
		return nil, fmt.Errorf("%w: payment cannot move from %s to %s", ErrInvalidState, b.PaymentStatus, next)
	}
	if err := s.bookings.UpdatePaymentStatus(ctx, b.ID, b.PaymentStatus, next, nil); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, fmt.Errorf("%w: booking changed, retry", ErrConflict)
		}
		return nil, fmt.Errorf("update payment status: %w", err)
	}
	logger.Info("payment status updated",
		zap.String("booking_id", b.ID),
		zap.String("from", string(b.PaymentStatus)),
		zap.String("to", string(next)))
	b.PaymentStatus = next
	return b, nil
}

func (s *Service) owned(ctx context.Context, actor Actor, id string) (*model.Booking, error) {
	if actor.UserID == "" {
		return nil, ErrUnauthorized
	}
	if id == "" {
		return nil, fmt.Errorf("%w: booking id is required", ErrInvalidRequest)
	}
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapStoreErr(err, "load booking")
	}
	if b.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: booking %s", ErrNotFound, id)
	}
	return b, nil
}

func (s *Service) mapStoreErr(err error, op string) error {
	switch {
	case errors.Is(err, repository.ErrShowtimeNotFound):
		return fmt.Errorf("%w: showtime", ErrNotFound)
	case errors.Is(err, repository.ErrBookingNotFound):
		return fmt.Errorf("%w: booking", ErrNotFound)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func (s *Service) observeMutation(op string, started time.Time, err error) {
	status := "ok"
	switch {
	case errors.Is(err, repository.ErrSeatsUnavailable):
		status = "conflict"
	case err != nil:
		status = "error"
	default:
		s.metrics.SeatMutationsTotal.WithLabelValues(op).Inc()
	}
	s.metrics.SeatMutationDuration.WithLabelValues(op, status).Observe(time.Since(started).Seconds())
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrUnauthorized):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func cancelOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidState):
		return "already_canceled"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
