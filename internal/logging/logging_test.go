package logging

import (
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogErrorWithOopsError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	err := oops.Code("STORE_UNAVAILABLE").
		With("operation", "find by email").
		Errorf("connection refused")

	LogError(logger, "signup failed", err)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "signup failed", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "STORE_UNAVAILABLE", fields["code"])
	assert.Contains(t, fields["error"], "connection refused")
	assert.Contains(t, fields, "context")
}

func TestLogErrorWithStandardError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	LogError(logger, "login failed", errors.New("standard error"))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "standard error", logs.All()[0].ContextMap()["error"])
}

func TestNewFallsBackToInfo(t *testing.T) {
	logger, err := New("json", "not-a-level")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}
