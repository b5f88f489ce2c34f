package sensor

import (
	"math/rand"
	"sync"

	"github.com/ericogr/psi-to-mqtt/pkg/config"
)

// SimulatedADC returns counts around a base value with uniform noise. It
// stands in for the transducer on bench runs without hardware.
type SimulatedADC struct {
	base  int
	noise int
	mu    sync.Mutex
	rng   *rand.Rand
}

func NewSimulatedADC(cfg config.SensorConfig, seed int64) ADC {
	return &SimulatedADC{base: cfg.SimulationBase, noise: cfg.SimulationNoise, rng: rand.New(rand.NewSource(seed))}
}

func (f *SimulatedADC) ReadRaw(int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.base
	if f.noise > 0 {
		v += f.rng.Intn(2*f.noise+1) - f.noise
	}
	if v < 0 {
		v = 0
	}
	return v, nil
}

func (f *SimulatedADC) Close() error { return nil }
