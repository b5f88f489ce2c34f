package indicator

import (
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PulseDuration is how long the LED stays lit to acknowledge a delivery.
const PulseDuration = 80 * time.Millisecond

// Indicator signals a successful delivery. It is never used for failures.
type Indicator interface {
	Pulse()
}

type sleeper interface {
	Sleep(d time.Duration)
}

// LED drives an active-low status LED through periph GPIO.
type LED struct {
	pin   gpio.PinOut
	clock sleeper
}

// NewLED opens the named GPIO (e.g. "GPIO2") and switches the LED off.
func NewLED(name string, clock sleeper) (*LED, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "host init")
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.Errorf("gpio %q not found", name)
	}
	return newLED(p, clock)
}

func newLED(p gpio.PinOut, clock sleeper) (*LED, error) {
	if err := p.Out(gpio.High); err != nil {
		return nil, errors.Wrapf(err, "gpio %s out", p)
	}
	return &LED{pin: p, clock: clock}, nil
}

func (l *LED) Pulse() {
	_ = l.pin.Out(gpio.Low)
	l.clock.Sleep(PulseDuration)
	_ = l.pin.Out(gpio.High)
}

type Noop struct{}

func (Noop) Pulse() {}
