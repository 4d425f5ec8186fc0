// Package config loads application configuration from environment
// variables.  A .env file in the working directory is read first when it
// exists; real environment variables always win over it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.
type Config struct {
	Env       string // application environment (dev, test, prod)
	Port      string // HTTP port to listen on
	JWTSecret string // secret used to verify access tokens

	DB        DBConfig
	Redis     RedisConfig
	AMQP      AMQPConfig
	Lock      LockConfig
	Booking   BookingConfig
	Sweeper   SweeperConfig
	Payment   PaymentConfig
	SMTP      SMTPConfig
	Telemetry TelemetryConfig
	Metrics   MetricsConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
}

// DBConfig describes the MySQL connection.
type DBConfig struct {
	User    string
	Pass    string // may be empty
	Host    string
	Port    string
	Name    string
	Migrate bool // run embedded migrations at startup
}

// LockConfig controls the advisory seat locks kept in Redis.  TTL must
// comfortably exceed a full booking round trip.
type LockConfig struct {
	TTL    time.Duration
	Prefix string
}

// BookingConfig bounds a single booking request.
type BookingConfig struct {
	MaxSeats int
}

// SweeperConfig drives the orphan seat sweeper.  Grace keeps the sweeper
// away from seats whose booking transaction may still be in flight.
type SweeperConfig struct {
	Enabled  bool
	Interval time.Duration
	Grace    time.Duration
	Batch    int
}

// AMQPConfig configures notification transport over RabbitMQ.  An empty
// URL means notifications go straight to the mailer.
type AMQPConfig struct {
	URL         string
	Queue       string
	Workers     int
	Buffer      int
	RunConsumer bool
}

// PaymentConfig selects the payment gateway.  Without a Stripe key the
// mock gateway is used.
type PaymentConfig struct {
	StripeKey   string
	Currency    string
	CheckoutURL string
}

// SMTPConfig configures outbound mail.  An empty Host selects the log
// mailer.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// TelemetryConfig configures OTLP tracing.
type TelemetryConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	SampleRatio float64
}

// MetricsConfig protects /metrics with basic auth when both values are set.
type MetricsConfig struct {
	User     string
	Password string
}

// AuthEnabled reports whether /metrics requires credentials.
func (m MetricsConfig) AuthEnabled() bool { return m.User != "" && m.Password != "" }

// Load reads the configuration.  Every missing or malformed required
// variable is reported in a single error.
func Load() (Config, error) {
	_ = godotenv.Load()

	l := &loader{}
	cfg := Config{
		Env:       envStr("APP_ENV", "dev"),
		Port:      envStr("APP_PORT", "8080"),
		JWTSecret: l.must("JWT_SECRET"),
		DB: DBConfig{
			User:    l.must("DB_USER"),
			Pass:    os.Getenv("DB_PASS"),
			Host:    l.must("DB_HOST"),
			Port:    envStr("DB_PORT", "3306"),
			Name:    l.must("DB_NAME"),
			Migrate: envBool("DB_MIGRATE", true),
		},
		Redis: LoadRedisConfig(),
		AMQP: AMQPConfig{
			URL:         firstEnv("RABBITMQ_URL", "AMQP_URL"),
			Queue:       envStr("NOTIFY_QUEUE", "booking.notifications"),
			Workers:     envInt("NOTIFY_WORKERS", 2),
			Buffer:      envInt("NOTIFY_BUFFER", 256),
			RunConsumer: envBool("NOTIFY_CONSUMER", true),
		},
		Lock: LockConfig{
			TTL:    envDur("SEAT_LOCK_TTL", 30*time.Second),
			Prefix: envStr("SEAT_LOCK_PREFIX", "lock"),
		},
		Booking: BookingConfig{
			MaxSeats: envInt("BOOKING_MAX_SEATS", 10),
		},
		Sweeper: SweeperConfig{
			Enabled:  envBool("SWEEP_ENABLED", true),
			Interval: envDur("SWEEP_INTERVAL", time.Minute),
			Grace:    envDur("SWEEP_GRACE", 2*time.Minute),
			Batch:    envInt("SWEEP_BATCH", 200),
		},
		Payment: PaymentConfig{
			StripeKey:   os.Getenv("STRIPE_SECRET_KEY"),
			Currency:    strings.ToLower(envStr("PAYMENT_CURRENCY", "usd")),
			CheckoutURL: envStr("PAYMENT_CHECKOUT_URL", "http://localhost:3000/checkout"),
		},
		SMTP: SMTPConfig{
			Host: os.Getenv("SMTP_HOST"),
			Port: envInt("SMTP_PORT", 587),
			User: os.Getenv("SMTP_USER"),
			Pass: os.Getenv("SMTP_PASS"),
			From: envStr("SMTP_FROM", "no-reply@showtime-booking.local"),
		},
		Telemetry: TelemetryConfig{
			Enabled:     envBool("OTEL_ENABLED", false),
			Endpoint:    envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName: envStr("OTEL_SERVICE_NAME", "showtime-booking"),
			SampleRatio: envFloat("OTEL_SAMPLE_RATIO", 1.0),
		},
		Metrics: MetricsConfig{
			User:     os.Getenv("METRICS_USER"),
			Password: os.Getenv("METRICS_PASSWORD"),
		},
		RateLimit: LoadRateLimitConfig(),
		Cache:     LoadCacheConfig(),
	}

	if cfg.Lock.TTL < time.Second {
		l.invalid("SEAT_LOCK_TTL", cfg.Lock.TTL.String())
	}
	if cfg.Booking.MaxSeats < 1 {
		l.invalid("BOOKING_MAX_SEATS", strconv.Itoa(cfg.Booking.MaxSeats))
	}
	if cfg.AMQP.Workers < 1 {
		cfg.AMQP.Workers = 1
	}
	if cfg.Sweeper.Batch < 1 {
		cfg.Sweeper.Batch = 1
	}
	return cfg, l.err()
}

// loader accumulates problems instead of exiting on the first one.
type loader struct {
	problems []string
}

// must retrieves a required environment variable.
func (l *loader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		l.problems = append(l.problems, "missing required env var: "+key)
		return ""
	}
	return v
}

func (l *loader) invalid(key, val string) {
	l.problems = append(l.problems, fmt.Sprintf("invalid value for %s: %q", key, val))
}

func (l *loader) err() error {
	if len(l.problems) == 0 {
		return nil
	}
	return errors.New(strings.Join(l.problems, "; "))
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envFloat(k string, d float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
