package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"extornos/internal/config"
)

func TestNew(t *testing.T) {
	l, err := New(config.LoggerConfig{LoggerLevel: "warn"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	_, err = New(config.LoggerConfig{LoggerLevel: "loud"})
	assert.Error(t, err)
}
