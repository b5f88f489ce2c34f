package sensor

import (
	"time"

	"github.com/ericogr/psi-to-mqtt/pkg/calibration"
	"github.com/pkg/errors"
)

const (
	// WindowSize is the number of raw readings in the moving average.
	WindowSize = 10
	// StabilizationSamples is how many consecutive positive pressures mark
	// the sensor as settled.
	StabilizationSamples = 3
)

// Sampler keeps a moving average of the last WindowSize offset-corrected raw
// readings and converts the average to pressure.
type Sampler struct {
	adc    ADC
	pin    int
	offset int
	rng    Range
	curve  calibration.Curve
	now    func() time.Time

	ring   [WindowSize]int
	sum    int
	cursor int
}

func NewSampler(adc ADC, pin, offset int, rng Range, curve calibration.Curve, now func() time.Time) *Sampler {
	return &Sampler{adc: adc, pin: pin, offset: offset, rng: rng, curve: curve, now: now}
}

// Sample reads one value and returns the smoothed reading. On a read error
// the window is left untouched.
func (s *Sampler) Sample() (Reading, error) {
	raw, err := s.adc.ReadRaw(s.pin)
	if err != nil {
		return Reading{}, errors.Wrapf(err, "read pin %d", s.pin)
	}
	avg := s.push(raw + s.offset)
	v := s.rng.Volts(avg)
	return Reading{
		Raw:       raw,
		Average:   avg,
		Voltage:   v,
		Pressure:  s.curve.Pressure(v),
		Timestamp: s.now(),
	}, nil
}

func (s *Sampler) push(value int) int {
	s.sum -= s.ring[s.cursor]
	s.ring[s.cursor] = value
	s.sum += value
	s.cursor = (s.cursor + 1) % WindowSize
	return s.sum / WindowSize
}

// Stabilizer is a one-way latch set after StabilizationSamples consecutive
// positive pressures.
type Stabilizer struct {
	Stabilized  bool
	Consecutive int
}

// Observe feeds one pressure and reports whether this call set the latch.
func (st *Stabilizer) Observe(pressure float64) bool {
	if st.Stabilized {
		return false
	}
	if pressure <= 0 {
		st.Consecutive = 0
		return false
	}
	st.Consecutive++
	if st.Consecutive >= StabilizationSamples {
		st.Stabilized = true
		return true
	}
	return false
}
