package calibration

import (
	"github.com/pkg/errors"
)

// Point maps a measured sensor voltage to a pressure in PSI.
type Point struct {
	Voltage  float64 `json:"voltage" yaml:"voltage"`
	Pressure float64 `json:"pressure" yaml:"pressure"`
}

// Curve is a fixed five point piecewise-linear calibration.
type Curve [5]Point

// Default is the curve measured for the transducer shipped with the board.
func Default() Curve {
	return Curve{
		{Voltage: 0.35, Pressure: 0},
		{Voltage: 0.47, Pressure: 16},
		{Voltage: 0.64, Pressure: 34},
		{Voltage: 0.70, Pressure: 42},
		{Voltage: 0.82, Pressure: 60},
	}
}

// FromPoints builds a curve from a slice, checking voltages strictly increase.
func FromPoints(points []Point) (Curve, error) {
	var c Curve
	if len(points) != len(c) {
		return c, errors.Errorf("calibration needs %d points, got %d", len(c), len(points))
	}
	for i := range points {
		if i > 0 && points[i].Voltage <= points[i-1].Voltage {
			return c, errors.Errorf("calibration point %d: voltage %.3f not above %.3f", i, points[i].Voltage, points[i-1].Voltage)
		}
		c[i] = points[i]
	}
	return c, nil
}

// Pressure converts a voltage to pressure. Below the first point the result
// is clamped to the first pressure; above the fourth point the last segment
// slope is extrapolated without an upper bound.
func (c Curve) Pressure(voltage float64) float64 {
	switch {
	case voltage <= c[0].Voltage:
		return c[0].Pressure
	case voltage < c[1].Voltage:
		return interpolate(c[0], c[1], voltage)
	case voltage <= c[2].Voltage:
		return interpolate(c[1], c[2], voltage)
	case voltage <= c[3].Voltage:
		return interpolate(c[2], c[3], voltage)
	default:
		return interpolate(c[3], c[4], voltage)
	}
}

func interpolate(a, b Point, v float64) float64 {
	slope := (b.Pressure - a.Pressure) / (b.Voltage - a.Voltage)
	return a.Pressure + (v-a.Voltage)*slope
}
