package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports database and Redis reachability.
type HealthHandler struct {
	db    Pinger
	redis *redis.Client
}

// NewHealthHandler returns a HealthHandler.  rdb may be nil.
func NewHealthHandler(db Pinger, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: rdb}
}

// Check handles GET /healthz.  A database failure is 503; a missing or
// failing Redis only degrades the service since bookings do not need it.
func (h *HealthHandler) Check(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	status, code := "ok", http.StatusOK

	if err := h.db.PingContext(ctx); err != nil {
		checks["database"] = "down: " + err.Error()
		status, code = "down", http.StatusServiceUnavailable
	} else {
		checks["database"] = "up"
	}

	switch {
	case h.redis == nil:
		checks["redis"] = "not configured"
		if status == "ok" {
			status = "degraded"
		}
	default:
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "down: " + err.Error()
			if status == "ok" {
				status = "degraded"
			}
		} else {
			checks["redis"] = "up"
		}
	}

	return c.JSON(code, echo.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
