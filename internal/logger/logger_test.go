package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	for _, env := range []string{"dev", "prod", "production", "test"} {
		l := NewLogger(env)
		require.NotNil(t, l, env)
	}
}

func TestNewLogger_LevelOverride(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	l := NewLogger("dev")
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.ErrorLevel))
}

func TestNewLogger_InvalidLevelIgnored(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")
	l := NewLogger("dev")
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestSetAndHelpers(t *testing.T) {
	orig := Get()
	defer Set(orig)

	core, logs := observer.New(zapcore.DebugLevel)
	Set(zap.New(core))

	Info("info", zap.String("k", "v"))
	Warn("warn")
	Error("error")
	Debug("debug")
	With(zap.String("scope", "x")).Info("scoped")

	require.Equal(t, 5, logs.Len())
	assert.Equal(t, "info", logs.All()[0].Message)
	assert.Equal(t, "v", logs.All()[0].ContextMap()["k"])
	assert.Equal(t, "x", logs.All()[4].ContextMap()["scope"])
}

func TestSet_NilFallsBackToNop(t *testing.T) {
	orig := Get()
	defer Set(orig)

	Set(nil)
	assert.NotPanics(t, func() { Info("dropped") })
}
