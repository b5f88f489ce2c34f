package calibration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPressureClampsBelowFirstPoint(t *testing.T) {
	c := Default()
	for _, v := range []float64{-1, 0, 0.1, 0.349, 0.35} {
		assert.Equal(t, 0.0, c.Pressure(v), "voltage %v", v)
	}
}

func TestPressureFirstSegmentMonotonic(t *testing.T) {
	c := Default()
	prev := c.Pressure(0.35)
	for v := 0.351; v < 0.47; v += 0.005 {
		p := c.Pressure(v)
		assert.Greater(t, p, 0.0)
		assert.Less(t, p, 16.0)
		assert.Greater(t, p, prev, "voltage %v", v)
		prev = p
	}
}

func TestPressureCalibrationPoints(t *testing.T) {
	c := Default()
	for _, pt := range c {
		assert.InDelta(t, pt.Pressure, c.Pressure(pt.Voltage), 1e-9, "voltage %v", pt.Voltage)
	}
}

func TestPressureExtrapolatesAboveLastSegment(t *testing.T) {
	c := Default()
	// slope of the last segment is 18/0.12 = 150 psi/V
	assert.InDelta(t, 75.0, c.Pressure(0.92), 1e-9)
	assert.InDelta(t, 360.0, c.Pressure(2.82), 1e-6)

	prev := c.Pressure(0.701)
	for v := 0.71; v < 3.3; v += 0.05 {
		p := c.Pressure(v)
		assert.Greater(t, p, prev)
		prev = p
	}
}

func TestPressureInterpolation(t *testing.T) {
	c := Default()
	tests := []struct {
		v    float64
		want float64
	}{
		{0.40, 6.666666666},
		{0.555, 25},
		{0.67, 38},
		{0.76, 51},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, c.Pressure(tt.v), 1e-6, "voltage %v", tt.v)
	}
}

func TestFromPoints(t *testing.T) {
	pts := Default()
	c, err := FromPoints(pts[:])
	require.NoError(t, err)
	assert.Equal(t, pts, c)

	_, err = FromPoints(pts[:4])
	assert.Error(t, err)

	bad := pts
	bad[2].Voltage = bad[1].Voltage
	_, err = FromPoints(bad[:])
	assert.Error(t, err)
}
