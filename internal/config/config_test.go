package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_NAME", "booking")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "3306", cfg.DB.Port)
	assert.Equal(t, 30*time.Second, cfg.Lock.TTL)
	assert.Equal(t, "lock", cfg.Lock.Prefix)
	assert.Equal(t, 10, cfg.Booking.MaxSeats)
	assert.Equal(t, "booking.notifications", cfg.AMQP.Queue)
	assert.Equal(t, "usd", cfg.Payment.Currency)
	assert.False(t, cfg.Metrics.AuthEnabled())
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_USER", "")
	t.Setenv("DB_HOST", "h")
	t.Setenv("DB_NAME", "n")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "DB_USER")
	assert.NotContains(t, err.Error(), "DB_HOST")
}

func TestLoad_InvalidLockTTL(t *testing.T) {
	setRequired(t)
	t.Setenv("SEAT_LOCK_TTL", "10ms")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SEAT_LOCK_TTL")
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SEAT_LOCK_TTL", "45s")
	t.Setenv("AMQP_URL", "amqp://guest:guest@mq:5672/")
	t.Setenv("NOTIFY_WORKERS", "0")
	t.Setenv("PAYMENT_CURRENCY", "EUR")
	t.Setenv("METRICS_USER", "m")
	t.Setenv("METRICS_PASSWORD", "p")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Lock.TTL)
	assert.Equal(t, "amqp://guest:guest@mq:5672/", cfg.AMQP.URL)
	assert.Equal(t, 1, cfg.AMQP.Workers)
	assert.Equal(t, "eur", cfg.Payment.Currency)
	assert.True(t, cfg.Metrics.AuthEnabled())
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_BOOL", "yes")
	t.Setenv("X_INT", "nope")
	t.Setenv("X_DUR", "3s")

	assert.True(t, envBool("X_BOOL", false))
	assert.Equal(t, 7, envInt("X_INT", 7))
	assert.Equal(t, 3*time.Second, envDur("X_DUR", time.Second))
	assert.Equal(t, "d", envStr("X_UNSET_FOR_TEST", "d"))
}

func TestLoadRateLimitConfig_Clamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "1m")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	c := LoadRateLimitConfig()
	assert.Equal(t, 1, c.Capacity)
	assert.Equal(t, 5*time.Minute, c.TTL)
}

func TestLoadRedisConfig_HostPortWins(t *testing.T) {
	t.Setenv("REDIS_ADDR", "a:1")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")

	assert.Equal(t, "cache:6380", LoadRedisConfig().Addr)
}
