package fan_test

import (
	"testing"

	"codeberg.org/mutker/deckfanctl/internal/errors"
	"codeberg.org/mutker/deckfanctl/internal/fan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := map[string]fan.Mode{
		"default":  fan.ModeDefault,
		"Default":  fan.ModeDefault,
		"assisted": fan.ModeAssistedOS,
		"steamos":  fan.ModeAssistedOS,
		" max ":    fan.ModeMax,
	}
	for in, want := range tests {
		got, err := fan.ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := fan.ParseMode("turbo")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidMode))
}

func TestModeProperties(t *testing.T) {
	assert.True(t, fan.ModeDefault.Autonomous())
	assert.False(t, fan.ModeAssistedOS.Autonomous())
	assert.False(t, fan.ModeMax.Autonomous())

	for _, m := range fan.Modes() {
		assert.True(t, m.Valid())
		parsed, err := fan.ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}

	assert.False(t, fan.Mode(42).Valid())
	assert.Equal(t, "unknown", fan.Mode(42).String())
}
