package logger

import (
	"testing"

	"github.com/safar/stock-ledger/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	log, err := New(config.LoggerConfig{Level: "warn", Encoding: "json"})
	require.NoError(t, err)

	assert.False(t, log.Core().Enabled(zap.InfoLevel))
	assert.True(t, log.Core().Enabled(zap.WarnLevel))
}

func TestNewDevelopmentConsole(t *testing.T) {
	log, err := New(config.LoggerConfig{Development: true, Level: "debug", Encoding: "console"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zap.DebugLevel))
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.LoggerConfig{Level: "chatty", Encoding: "json"})
	assert.Error(t, err)
}
