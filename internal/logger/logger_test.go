package logger_test

import (
	"bytes"
	"testing"

	"codeberg.org/mutker/deckfanctl/internal/errors"
	"codeberg.org/mutker/deckfanctl/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logger.LogLevel
	}{
		{"debug", logger.DebugLevel},
		{"INFO", logger.InfoLevel},
		{"warning", logger.WarnLevel},
		{"warn", logger.WarnLevel},
		{"error", logger.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := logger.ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := logger.ParseLevel("loud")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidLogLevel))
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, logger.WarnLevel, true)
	t.Cleanup(func() { logger.SetLogLevel(logger.WarnLevel) })

	logger.Debug().Msg("hidden debug")
	logger.Info().Msg("hidden info")
	logger.Warn().Int("rpm", 3000).Msg("visible warning")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible warning")
	assert.Contains(t, out, "rpm=3000")
}

func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, logger.DebugLevel, true)
	t.Cleanup(func() { logger.SetLogLevel(logger.WarnLevel) })

	log := logger.Get().With("walker")
	log.Debug().Str("zone", "CPU").Msg("matched")

	err := errors.New().New(errors.ErrMainLoop)
	log.ErrorWithCode(err).Msg("pass failed")

	out := buf.String()
	assert.Contains(t, out, "component=walker")
	assert.Contains(t, out, "zone=CPU")
	assert.Contains(t, out, "error_code=main_loop_failed")
}
