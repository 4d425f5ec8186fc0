package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/booking"
	"github.com/iliyamo/showtime-booking/internal/config"
	"github.com/iliyamo/showtime-booking/internal/database"
	"github.com/iliyamo/showtime-booking/internal/handler"
	"github.com/iliyamo/showtime-booking/internal/lockcache"
	"github.com/iliyamo/showtime-booking/internal/logger"
	"github.com/iliyamo/showtime-booking/internal/metrics"
	"github.com/iliyamo/showtime-booking/internal/notify"
	"github.com/iliyamo/showtime-booking/internal/payment"
	"github.com/iliyamo/showtime-booking/internal/queue"
	"github.com/iliyamo/showtime-booking/internal/repository"
	"github.com/iliyamo/showtime-booking/internal/router"
	"github.com/iliyamo/showtime-booking/internal/service"
	"github.com/iliyamo/showtime-booking/internal/telemetry"
	"github.com/iliyamo/showtime-booking/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	logger.Set(logger.NewLogger(cfg.Env))
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Env)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	}

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()
	if cfg.DB.Migrate {
		if err := database.Migrate(db); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		logger.Warn("redis unavailable: seat locks, rate limiting and caching disabled")
	} else {
		defer rdb.Close()
	}

	m := metrics.New()
	showtimes := repository.NewShowtimeRepo(db)
	bookings := repository.NewBookingRepo(db)
	ledger := repository.NewLedger(db, showtimes, bookings)

	mailer := notify.NewMailer(cfg.SMTP)
	var sink notify.Sink = notify.MailerSink{Mailer: mailer}
	if cfg.AMQP.URL != "" {
		pub := service.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Queue)
		defer pub.Close()
		sink = pub
	}
	dispatcher := notify.NewDispatcher(sink, cfg.AMQP.Workers, cfg.AMQP.Buffer, m)
	dispatcher.Start()

	var bg sync.WaitGroup
	if cfg.AMQP.URL != "" && cfg.AMQP.RunConsumer {
		bg.Add(1)
		go func() {
			defer bg.Done()
			if err := queue.StartNotificationConsumer(ctx, cfg.AMQP.URL, cfg.AMQP.Queue, mailer); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("notification consumer stopped", zap.Error(err))
			}
		}()
	}

	svc := booking.NewService(ledger, bookings, lockcache.New(rdb, cfg.Lock.Prefix), dispatcher,
		payment.New(cfg.Payment), booking.Options{
			LockTTL:  cfg.Lock.TTL,
			MaxSeats: cfg.Booking.MaxSeats,
			Metrics:  m,
		})

	if cfg.Sweeper.Enabled {
		sweeper := worker.NewSweeper(showtimes, ledger, cfg.Sweeper, m)
		bg.Add(1)
		go func() {
			defer bg.Done()
			sweeper.Run(ctx)
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.HTTPErrorHandler
	e.Validator = handler.NewValidator()
	router.RegisterRoutes(e, router.Deps{
		Config:    cfg,
		Redis:     rdb,
		Metrics:   m,
		Bookings:  handler.NewBookingHandler(svc),
		Showtimes: handler.NewShowtimeHandler(svc, showtimes),
		Health:    handler.NewHealthHandler(db, rdb),
	})

	go func() {
		addr := ":" + cfg.Port
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	bg.Wait()
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("notifications left undelivered", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}
