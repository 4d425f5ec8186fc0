package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/showtime-booking/internal/booking"
	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/payment"
)

// BookingService is the part of booking.Service the HTTP layer uses.
type BookingService interface {
	Create(ctx context.Context, actor booking.Actor, req booking.CreateRequest) (*booking.Result, error)
	Cancel(ctx context.Context, actor booking.Actor, id string) (*model.Booking, error)
	Get(ctx context.Context, actor booking.Actor, id string) (*model.Booking, error)
	List(ctx context.Context, actor booking.Actor, limit, offset int) ([]*model.Booking, error)
	InitiatePayment(ctx context.Context, actor booking.Actor, id string) (*model.Booking, *payment.Intent, error)
	VerifyPayment(ctx context.Context, actor booking.Actor, ref string) (*model.Booking, error)
}

// BookingHandler serves the booking and payment endpoints.  Every route
// sits behind JWTAuth.
type BookingHandler struct {
	svc BookingService
}

// NewBookingHandler returns a BookingHandler backed by svc.
func NewBookingHandler(svc BookingService) *BookingHandler {
	if svc == nil {
		panic("nil booking service passed to NewBookingHandler")
	}
	return &BookingHandler{svc: svc}
}

type createBookingRequest struct {
	ShowtimeID string   `json:"showtime_id" validate:"required"`
	Seats      []string `json:"seats" validate:"required,min=1,dive,required"`
}

// Create handles POST /v1/bookings.  It answers 201 with the booking and
// the payment redirect.
func (h *BookingHandler) Create(c echo.Context) error {
	var req createBookingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body", "code": "invalid_request"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	res, err := h.svc.Create(c.Request().Context(), actorFrom(c), booking.CreateRequest{
		ShowtimeID: req.ShowtimeID,
		Seats:      req.Seats,
	})
	if err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Cancel handles DELETE /v1/bookings/:id.
func (h *BookingHandler) Cancel(c echo.Context) error {
	b, err := h.svc.Cancel(c.Request().Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"booking": b})
}

// Get handles GET /v1/bookings/:id.  Bookings of other users are
// reported as not found.
func (h *BookingHandler) Get(c echo.Context) error {
	b, err := h.svc.Get(c.Request().Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"booking": b})
}

// List handles GET /v1/bookings.
func (h *BookingHandler) List(c echo.Context) error {
	limit, offset := pageParams(c)
	items, err := h.svc.List(c.Request().Context(), actorFrom(c), limit, offset)
	if err != nil {
		return writeBookingError(c, err)
	}
	if items == nil {
		items = []*model.Booking{}
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": items, "limit": limit, "offset": offset})
}

// InitiatePayment handles POST /v1/bookings/:id/payment.
func (h *BookingHandler) InitiatePayment(c echo.Context) error {
	b, intent, err := h.svc.InitiatePayment(c.Request().Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"booking_id":     b.ID,
		"payment_status": b.PaymentStatus,
		"payment_ref":    intent.Ref,
		"payment_url":    intent.RedirectURL,
		"client_secret":  intent.ClientSecret,
	})
}

// PaymentStatus handles GET /v1/bookings/:id/payment.
func (h *BookingHandler) PaymentStatus(c echo.Context) error {
	b, err := h.svc.Get(c.Request().Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"booking_id":     b.ID,
		"payment_status": b.PaymentStatus,
		"payment_ref":    b.PaymentRef,
		"canceled":       b.Canceled,
	})
}

type verifyPaymentRequest struct {
	PaymentRef string `json:"payment_ref" validate:"required"`
}

// VerifyPayment handles POST /v1/payments/verify.
func (h *BookingHandler) VerifyPayment(c echo.Context) error {
	var req verifyPaymentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body", "code": "invalid_request"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	b, err := h.svc.VerifyPayment(c.Request().Context(), actorFrom(c), req.PaymentRef)
	if err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"booking": b})
}
