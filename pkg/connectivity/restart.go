package connectivity

import (
	"os"
	"time"

	"github.com/ericogr/psi-to-mqtt/pkg/clock"
	"github.com/sirupsen/logrus"
)

// Restarter reboots the device. Production implementations never return.
type Restarter interface {
	RestartDevice()
}

// ExitRestarter exits the process with a non-zero status so the service
// manager (systemd Restart=always) starts it again from a clean state.
type ExitRestarter struct {
	Log    logrus.FieldLogger
	Clock  clock.Clock
	Before []func()
	Exit   func(code int)
}

func NewExitRestarter(log logrus.FieldLogger, c clock.Clock, before ...func()) *ExitRestarter {
	return &ExitRestarter{Log: log, Clock: c, Before: before, Exit: os.Exit}
}

func (r *ExitRestarter) RestartDevice() {
	r.Log.Error("=== software restart ===")
	for _, f := range r.Before {
		f()
	}
	r.Clock.Sleep(800 * time.Millisecond)
	r.Exit(1)
}
