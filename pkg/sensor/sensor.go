package sensor

import "time"

// ADC reads raw conversion counts from an analog input.
type ADC interface {
	ReadRaw(pin int) (int, error)
	Close() error
}

// Range describes how raw counts map to volts.
type Range struct {
	Resolution int
	MaxVoltage float64
}

// ESP32Range is the 12-bit, 3.3V range of the on-chip ADC.
var ESP32Range = Range{Resolution: 4095, MaxVoltage: 3.3}

func (r Range) Volts(counts int) float64 {
	return float64(counts) * r.MaxVoltage / float64(r.Resolution)
}

type Reading struct {
	Raw       int       `json:"raw"`
	Average   int       `json:"average"`
	Voltage   float64   `json:"voltage"`
	Pressure  float64   `json:"pressure"`
	Timestamp time.Time `json:"timestamp"`
}
