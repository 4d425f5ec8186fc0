package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/logger"
	"github.com/iliyamo/showtime-booking/internal/model"
)

// SeatViewer returns the live seat map of a showtime.
type SeatViewer interface {
	Showtime(ctx context.Context, id string) (*model.Showtime, error)
}

// ShowtimeStore creates and lists showtimes.
type ShowtimeStore interface {
	Create(ctx context.Context, st *model.Showtime) error
	List(ctx context.Context, movieID string, limit, offset int) ([]model.Showtime, error)
}

// ShowtimeHandler serves showtime reads and seat map seeding.
type ShowtimeHandler struct {
	seats SeatViewer
	store ShowtimeStore
	newID func() string
}

// NewShowtimeHandler wires the handler.
func NewShowtimeHandler(seats SeatViewer, store ShowtimeStore) *ShowtimeHandler {
	return &ShowtimeHandler{seats: seats, store: store, newID: uuid.NewString}
}

type showtimeView struct {
	*model.Showtime
	AvailableSeats int `json:"available_seats"`
}

// Get handles GET /v1/showtimes/:id.  The seat map always comes from the
// database.
func (h *ShowtimeHandler) Get(c echo.Context) error {
	st, err := h.seats.Showtime(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusOK, showtimeView{Showtime: st, AvailableSeats: st.AvailableCount()})
}

// showtimeSummary is a listing entry.  Listings may be served from the
// response cache, so they carry neither seats nor the version.
type showtimeSummary struct {
	ID         string    `json:"id"`
	MovieID    string    `json:"movie_id"`
	MovieTitle string    `json:"movie_title"`
	Theater    string    `json:"theater"`
	StartsAt   time.Time `json:"starts_at"`
}

// List handles GET /v1/showtimes?movie_id=.
func (h *ShowtimeHandler) List(c echo.Context) error {
	limit, offset := pageParams(c)
	items, err := h.store.List(c.Request().Context(), strings.TrimSpace(c.QueryParam("movie_id")), limit, offset)
	if err != nil {
		logger.Error("list showtimes", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error", "code": "internal_error"})
	}
	out := make([]showtimeSummary, 0, len(items))
	for _, st := range items {
		out = append(out, showtimeSummary{
			ID:         st.ID,
			MovieID:    st.MovieID,
			MovieTitle: st.MovieTitle,
			Theater:    st.Theater,
			StartsAt:   st.StartsAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"showtimes": out, "limit": limit, "offset": offset})
}

type createShowtimeRequest struct {
	MovieID           string    `json:"movie_id" validate:"required"`
	MovieTitle        string    `json:"movie_title" validate:"required"`
	Theater           string    `json:"theater" validate:"required"`
	StartsAt          time.Time `json:"starts_at" validate:"required"`
	Rows              int       `json:"rows" validate:"omitempty,min=1,max=52"`
	SeatsPerRow       int       `json:"seats_per_row" validate:"omitempty,min=1,max=100"`
	StandardPriceCent uint32    `json:"standard_price_cents"`
	PremiumPriceCent  uint32    `json:"premium_price_cents"`
}

// Default seat map: 12 rows of 16 seats, every fifth seat premium.
const (
	defaultRows         = 12
	defaultSeatsPerRow  = 16
	defaultStandardCent = 100
	defaultPremiumCent  = 200
	premiumEvery        = 5
)

// Create handles POST /v1/showtimes.  It seeds a showtime with a
// generated seat map; seat ids are row letter plus number (A1..L16).
func (h *ShowtimeHandler) Create(c echo.Context) error {
	var req createShowtimeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body", "code": "invalid_request"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	st := &model.Showtime{
		ID:         h.newID(),
		MovieID:    req.MovieID,
		MovieTitle: req.MovieTitle,
		Theater:    req.Theater,
		StartsAt:   req.StartsAt.UTC(),
		Seats:      seatMap(req),
	}
	if err := h.store.Create(c.Request().Context(), st); err != nil {
		logger.Error("create showtime", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error", "code": "internal_error"})
	}
	logger.Info("showtime created", zap.String("showtime_id", st.ID), zap.Int("seats", len(st.Seats)))
	return c.JSON(http.StatusCreated, showtimeView{Showtime: st, AvailableSeats: len(st.Seats)})
}

func seatMap(req createShowtimeRequest) []model.Seat {
	rows, perRow := req.Rows, req.SeatsPerRow
	if rows == 0 {
		rows = defaultRows
	}
	if perRow == 0 {
		perRow = defaultSeatsPerRow
	}
	standard, premium := req.StandardPriceCent, req.PremiumPriceCent
	if standard == 0 {
		standard = defaultStandardCent
	}
	if premium == 0 {
		premium = defaultPremiumCent
	}

	seats := make([]model.Seat, 0, rows*perRow)
	for r := 0; r < rows; r++ {
		row := indexToRowLabel(r)
		for n := 1; n <= perRow; n++ {
			s := model.Seat{
				ID:         fmt.Sprintf("%s%d", row, n),
				Label:      fmt.Sprintf("Row %s Seat %d", row, n),
				Category:   model.SeatStandard,
				PriceCents: standard,
				Position:   len(seats),
			}
			if n%premiumEvery == 0 {
				s.Category, s.PriceCents = model.SeatPremium, premium
			}
			seats = append(seats, s)
		}
	}
	return seats
}
