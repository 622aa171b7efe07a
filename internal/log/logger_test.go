package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerLevels(t *testing.T) {
	dev, err := NewLogger("dev")
	require.NoError(t, err)
	assert.True(t, dev.Core().Enabled(zap.DebugLevel))

	prod, err := NewLogger("prod")
	require.NoError(t, err)
	assert.False(t, prod.Core().Enabled(zap.DebugLevel))
	assert.True(t, prod.Core().Enabled(zap.InfoLevel))
}

func TestKVLogFunc(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	fn := KVLogFunc(zap.New(core).Sugar())

	fn("redis unavailable", "error", "dial tcp: refused")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zap.WarnLevel, entry.Level)
	assert.Equal(t, "redis unavailable", entry.Message)
	assert.Equal(t, "dial tcp: refused", entry.ContextMap()["error"])
}
