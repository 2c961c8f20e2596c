package fan

import (
	"fmt"
	"math"

	"codeberg.org/mutker/deckfanctl/internal/errors"
	"golang.org/x/exp/constraints"
)

// RPM is a fan speed as stored in the embedded controller's 16-bit register.
type RPM uint16

const MaxRPM = RPM(math.MaxUint16)

// Point is one (temperature, rpm) pair of a curve.
type Point struct {
	Temperature float64 `mapstructure:"temp"`
	RPM         float64 `mapstructure:"rpm"`
}

// Curve maps temperature to RPM by linear interpolation between points.
// Inputs outside the first/last point are clamped. A single point is a constant curve.
type Curve []Point

// NewCurve validates points and returns them as a Curve.
func NewCurve(points ...Point) (Curve, error) {
	errFactory := errors.New()

	if len(points) == 0 {
		return nil, errFactory.WithData(ErrInvalidCurve, "curve has no points")
	}

	for i, p := range points {
		if math.IsNaN(p.Temperature) || math.IsNaN(p.RPM) {
			return nil, errFactory.WithData(ErrInvalidCurve, fmt.Sprintf("point %d is not a number", i))
		}
		if p.RPM < 0 || p.RPM > float64(MaxRPM) {
			return nil, errFactory.WithData(ErrInvalidCurve,
				fmt.Sprintf("point %d rpm %.0f outside 0..%d", i, p.RPM, MaxRPM))
		}
		if i == 0 {
			continue
		}

		prev := points[i-1]
		if p.Temperature <= prev.Temperature {
			return nil, errFactory.WithData(ErrInvalidCurve,
				fmt.Sprintf("temperatures must strictly increase: %.1f after %.1f", p.Temperature, prev.Temperature))
		}
		if p.RPM < prev.RPM {
			return nil, errFactory.WithData(ErrInvalidCurve,
				fmt.Sprintf("rpm must not decrease: %.0f at %.1f after %.0f at %.1f",
					p.RPM, p.Temperature, prev.RPM, prev.Temperature))
		}
	}

	c := make(Curve, len(points))
	copy(c, points)

	return c, nil
}

// Evaluate returns the RPM for temperature. It reports false for an empty
// curve or a NaN input.
func (c Curve) Evaluate(temperature float64) (RPM, bool) {
	if len(c) == 0 || math.IsNaN(temperature) {
		return 0, false
	}

	first, last := c[0], c[len(c)-1]
	if temperature <= first.Temperature {
		return toRPM(first.RPM), true
	}
	if temperature >= last.Temperature {
		return toRPM(last.RPM), true
	}

	for i := 1; i < len(c); i++ {
		lo, hi := c[i-1], c[i]
		if temperature > hi.Temperature {
			continue
		}
		ratio := (temperature - lo.Temperature) / (hi.Temperature - lo.Temperature)
		return toRPM(lo.RPM + ratio*(hi.RPM-lo.RPM)), true
	}

	return toRPM(last.RPM), true
}

func toRPM(v float64) RPM {
	return RPM(clamp(math.Round(v), 0, float64(MaxRPM)))
}

func clamp[T constraints.Ordered](value, minValue, maxValue T) T {
	if value < minValue {
		return minValue
	}
	if value > maxValue {
		return maxValue
	}

	return value
}
