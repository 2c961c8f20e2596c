package fan_test

import (
	"math"
	"testing"

	"codeberg.org/mutker/deckfanctl/internal/errors"
	"codeberg.org/mutker/deckfanctl/internal/fan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurveEvaluate(t *testing.T) {
	curve, err := fan.NewCurve(
		fan.Point{Temperature: 40, RPM: 0},
		fan.Point{Temperature: 60, RPM: 3000},
		fan.Point{Temperature: 80, RPM: 7000},
	)
	require.NoError(t, err)

	tests := []struct {
		name string
		temp float64
		want fan.RPM
	}{
		{"below range clamps", -20, 0},
		{"first point", 40, 0},
		{"interpolated", 50, 1500},
		{"exact point", 60, 3000},
		{"second segment", 70, 5000},
		{"last point", 80, 7000},
		{"above range clamps", 120, 7000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := curve.Evaluate(tt.temp)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := curve.Evaluate(math.NaN())
	assert.False(t, ok, "NaN input has no RPM")
}

func TestConstantCurve(t *testing.T) {
	curve, err := fan.NewCurve(fan.Point{Temperature: 0, RPM: 7000})
	require.NoError(t, err)

	for _, temp := range []float64{-40, 0, 35, 110} {
		got, ok := curve.Evaluate(temp)
		require.True(t, ok)
		assert.Equal(t, fan.RPM(7000), got)
	}
}

func TestCurveIsMonotonic(t *testing.T) {
	curve, err := fan.NewCurve(
		fan.Point{Temperature: 30, RPM: 0},
		fan.Point{Temperature: 55, RPM: 2500},
		fan.Point{Temperature: 70, RPM: 2500},
		fan.Point{Temperature: 90, RPM: 7300},
	)
	require.NoError(t, err)

	prev := fan.RPM(0)
	for temp := 0.0; temp <= 110; temp += 0.25 {
		got, ok := curve.Evaluate(temp)
		require.True(t, ok)
		assert.GreaterOrEqual(t, got, prev, "temperature %.2f", temp)
		prev = got
	}
}

func TestNewCurveValidation(t *testing.T) {
	tests := []struct {
		name   string
		points []fan.Point
	}{
		{"empty", nil},
		{"decreasing rpm", []fan.Point{{Temperature: 40, RPM: 3000}, {Temperature: 60, RPM: 2000}}},
		{"repeated temperature", []fan.Point{{Temperature: 40, RPM: 0}, {Temperature: 40, RPM: 2000}}},
		{"decreasing temperature", []fan.Point{{Temperature: 60, RPM: 0}, {Temperature: 40, RPM: 2000}}},
		{"negative rpm", []fan.Point{{Temperature: 40, RPM: -1}}},
		{"rpm above register", []fan.Point{{Temperature: 40, RPM: 70000}}},
		{"nan", []fan.Point{{Temperature: math.NaN(), RPM: 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fan.NewCurve(tt.points...)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, fan.ErrInvalidCurve))
		})
	}
}
