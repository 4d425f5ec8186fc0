package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/booking"
	"github.com/iliyamo/showtime-booking/internal/logger"
	"github.com/iliyamo/showtime-booking/internal/middleware"
)

// CustomValidator adapts validator/v10 to echo.Validator.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator returns the validator registered on the echo instance.
func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

// Validate checks the validate tags of i.  Failures become a 400 that
// names every offending field.
func (cv *CustomValidator) Validate(i interface{}) error {
	err := cv.validator.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, strings.ToLower(fe.Field())+": "+fe.Tag())
	}
	return echo.NewHTTPError(http.StatusBadRequest, "validation failed: "+strings.Join(msgs, ", "))
}

// HTTPErrorHandler renders framework errors in the same shape as domain
// errors and logs every 5xx.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := "internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	}
	if code >= 500 {
		logger.Error("unhandled error",
			zap.Int("status", code),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, echo.Map{"error": msg, "code": statusCode(code)})
	}
	if err != nil {
		logger.Error("write error response", zap.Error(err))
	}
}

func statusCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "too_many_requests"
	}
	if status >= 500 {
		return "internal_error"
	}
	return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}

// writeBookingError maps a booking error onto its HTTP status.  Seat
// errors carry the seat ids a client needs to redraw its selection.
func writeBookingError(c echo.Context, err error) error {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, booking.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, booking.ErrInvalidRequest):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, booking.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, booking.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, booking.ErrInvalidState):
		status, code = http.StatusBadRequest, "invalid_state"
	}

	if status == http.StatusInternalServerError {
		logger.Error("booking request failed",
			zap.String("path", c.Request().URL.Path),
			zap.String("user_id", middleware.UserID(c)),
			zap.Error(err))
		return c.JSON(status, echo.Map{"error": "internal server error", "code": code})
	}

	body := echo.Map{"error": err.Error(), "code": code}
	if status == http.StatusConflict {
		body["retryable"] = true
	}
	var se *booking.SeatError
	if errors.As(err, &se) {
		body["error"] = se.Reason
		body["code"] = se.Code
		if len(se.Unknown) > 0 {
			body["unknown_seats"] = se.Unknown
		}
		if len(se.Booked) > 0 {
			body["unavailable_seats"] = se.Booked
		}
		if len(se.Duplicate) > 0 {
			body["duplicate_seats"] = se.Duplicate
		}
		if se.Available != nil {
			body["available_seats"] = se.Available
		}
	}
	return c.JSON(status, body)
}

// actorFrom builds the caller identity from the claims JWTAuth stored.
func actorFrom(c echo.Context) booking.Actor {
	return booking.Actor{
		UserID: middleware.UserID(c),
		Email:  middleware.Email(c),
		Role:   middleware.Role(c),
	}
}

// pageParams reads limit and offset query parameters.  Bad values fall
// back to the first page of 20.
func pageParams(c echo.Context) (limit, offset int) {
	limit, offset = 20, 0
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}

// indexToRowLabel converts a zero-based index to a row label: A..Z, AA, AB...
func indexToRowLabel(i int) string {
	if i < 0 {
		return ""
	}
	var res []rune
	for {
		res = append(res, rune('A'+i%26))
		i = i/26 - 1
		if i < 0 {
			break
		}
	}
	for j, k := 0, len(res)-1; j < k; j, k = j+1, k-1 {
		res[j], res[k] = res[k], res[j]
	}
	return string(res)
}
