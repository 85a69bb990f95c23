package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel(" warn "))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("loud"))
}

func TestNewLoggerTeesExtraCoresAtLevel(t *testing.T) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	log := NewLogger("order-api", "warn", obsCore)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))

	log.Info("dropped")
	log.Warn("kept", zap.String("order_id", "ONLINE-000001"))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "kept", entry.Message)
	assert.Equal(t, "order-api", entry.ContextMap()["service.name"])
}

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	ctx := context.Background()
	shutdown, err := SetupTracing(ctx, Config{ServiceName: "order-api"})
	require.NoError(t, err)
	require.NoError(t, shutdown(ctx))

	core, stop, err := SetupLogExport(ctx, Config{ServiceName: "order-api"})
	require.NoError(t, err)
	assert.False(t, core.Enabled(zapcore.ErrorLevel))
	require.NoError(t, stop(ctx))
}
