package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Run("valid levels and formats", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error"} {
			for _, format := range []string{"console", "json"} {
				logger, err := New(level, format)
				require.NoError(t, err, "level=%s format=%s", level, format)
				require.NotNil(t, logger)
			}
		}
	})

	t.Run("invalid level rejected", func(t *testing.T) {
		_, err := New("loud", "console")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("level filtering", func(t *testing.T) {
		logger, err := New("warn", "json")
		require.NoError(t, err)
		assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
		assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
	})
}

func TestTestLogger(t *testing.T) {
	tl := NewTestLogger()
	tl.Info("cycle complete")
	tl.Warn("publish failed")

	tl.AssertLogged(t, zapcore.InfoLevel, "cycle complete")
	assert.Equal(t, 1, tl.FilterMessage("publish failed").Len())
	assert.Len(t, tl.All(), 2)
}
