// Package router wires handlers and middleware onto the Echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/showtime-booking/internal/config"
	"github.com/iliyamo/showtime-booking/internal/handler"
	"github.com/iliyamo/showtime-booking/internal/metrics"
	"github.com/iliyamo/showtime-booking/internal/middleware"
)

// Deps are the handlers and shared clients the routes need.
type Deps struct {
	Config    config.Config
	Redis     *redis.Client // may be nil
	Metrics   *metrics.Metrics
	Bookings  *handler.BookingHandler
	Showtimes *handler.ShowtimeHandler
	Health    *handler.HealthHandler
}

// RegisterRoutes installs the global middleware chain and every route.
//
// Public reads live at the top of /v1; bookings and payments require a
// valid access token.  Creating a booking is additionally rate limited
// per user.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(middleware.Prometheus(d.Metrics))
	e.Use(middleware.RequestLogger())

	e.GET("/healthz", d.Health.Check)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), middleware.MetricsBasicAuth(d.Config.Metrics))

	v1 := e.Group("/v1")
	v1.GET("/showtimes", d.Showtimes.List, middleware.NewRedisCache(d.Config.Cache, d.Redis))
	v1.GET("/showtimes/:id", d.Showtimes.Get)

	auth := v1.Group("", middleware.JWTAuth(d.Config.JWTSecret))
	auth.POST("/showtimes", d.Showtimes.Create, middleware.RequireRole("OWNER", "ADMIN"))

	auth.POST("/bookings", d.Bookings.Create, middleware.NewTokenBucket(d.Config.RateLimit, d.Redis))
	auth.GET("/bookings", d.Bookings.List)
	auth.GET("/bookings/:id", d.Bookings.Get)
	auth.DELETE("/bookings/:id", d.Bookings.Cancel)
	auth.POST("/bookings/:id/payment", d.Bookings.InitiatePayment)
	auth.GET("/bookings/:id/payment", d.Bookings.PaymentStatus)
	auth.POST("/payments/verify", d.Bookings.VerifyPayment)
}
