package monitor

import (
	"context"
	"strconv"
	"time"

	"github.com/ericogr/psi-to-mqtt/pkg/clock"
	"github.com/ericogr/psi-to-mqtt/pkg/connectivity"
	"github.com/ericogr/psi-to-mqtt/pkg/sensor"
	"github.com/ericogr/psi-to-mqtt/pkg/session"
	"github.com/sirupsen/logrus"
)

type Settings struct {
	SampleInterval  time.Duration
	PublishInterval time.Duration
	Tick            time.Duration
	// BootSettle is waited between link init and the first session
	// connects.
	BootSettle      time.Duration
	CloudAttempts   int
	CloudRetryDelay time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		SampleInterval:  5 * time.Second,
		PublishInterval: time.Minute,
		Tick:            100 * time.Millisecond,
		BootSettle:      1500 * time.Millisecond,
		CloudAttempts:   3,
		CloudRetryDelay: time.Second,
	}
}

// Cycle is the cooperative main loop. It owns every piece of runtime state
// and is driven from a single goroutine.
type Cycle struct {
	settings   Settings
	supervisor *connectivity.Supervisor
	sampler    *sensor.Sampler
	stabilizer sensor.Stabilizer
	cloud      *session.Session
	local      *session.Session
	pending    session.Pending
	clock      clock.Clock
	log        logrus.FieldLogger

	pressure    float64
	lastSample  time.Time
	lastPublish time.Time
}

func New(settings Settings, sup *connectivity.Supervisor, sampler *sensor.Sampler, cloud, local *session.Session, c clock.Clock, log logrus.FieldLogger) *Cycle {
	return &Cycle{
		settings:   settings,
		supervisor: sup,
		sampler:    sampler,
		cloud:      cloud,
		local:      local,
		clock:      c,
		log:        log,
	}
}

func (c *Cycle) Pressure() float64       { return c.pressure }
func (c *Cycle) Stabilized() bool        { return c.stabilizer.Stabilized }
func (c *Cycle) Pending() (string, bool) { return c.pending.Get() }

// Payload is the pressure truncated to an integer in decimal form.
func Payload(pressure float64) string {
	return strconv.Itoa(int(pressure))
}

// Boot brings the link and both sessions up once. Failures are left for
// the tick loop to retry. The publish interval counts from here, so the
// first publish comes one full interval after boot.
func (c *Cycle) Boot(ctx context.Context) {
	c.lastPublish = c.clock.Now()
	c.log.WithFields(logrus.Fields{
		"cloud": c.cloud.Topic(),
		"local": c.local.Topic(),
	}).Info("starting pressure monitor")
	c.supervisor.Init(ctx)
	c.clock.Sleep(c.settings.BootSettle)
	c.cloud.Connect()
	c.local.Connect()
	c.log.WithField("topic", c.local.Topic()).Info("system started")
}

// Tick runs one iteration: watchdog, link upkeep, session upkeep, then
// sampling and publishing when their intervals are due.
func (c *Cycle) Tick(ctx context.Context) {
	now := c.clock.Now()

	c.supervisor.Supervise(ctx)
	c.supervisor.ReconnectIfNeeded(ctx)

	if c.supervisor.LinkUp() {
		c.cloud.Connect()
		c.cloud.Service()
		c.local.Connect()
		c.local.Service()
		c.local.Flush(&c.pending)
	}

	if now.Sub(c.lastSample) >= c.settings.SampleInterval {
		c.lastSample = now
		c.sample()
	}

	if c.stabilizer.Stabilized && c.supervisor.LinkUp() && now.Sub(c.lastPublish) >= c.settings.PublishInterval {
		c.lastPublish = now
		c.publish()
	}
}

func (c *Cycle) sample() {
	r, err := c.sampler.Sample()
	if err != nil {
		c.log.WithError(err).Warn("sensor read failed")
		return
	}
	c.log.Infof("ADC: %d -> %.3fV -> %.1f psi | WiFi: %s", r.Average, r.Voltage, r.Pressure, statusOf(c.supervisor.State().LinkUp))
	if c.stabilizer.Observe(r.Pressure) {
		c.log.Info("system stabilized")
	}
	c.pressure = r.Pressure
}

func (c *Cycle) publish() {
	payload := Payload(c.pressure)
	c.cloud.PublishWithRetry(c.cloud.Topic(), payload, c.settings.CloudAttempts, c.settings.CloudRetryDelay)
	c.local.PublishOrKeep(&c.pending, payload)
}

// Run boots and then ticks until ctx is cancelled.
func (c *Cycle) Run(ctx context.Context) error {
	c.Boot(ctx)
	for {
		select {
		case <-ctx.Done():
			c.log.Info("stopping")
			_ = c.cloud.Close()
			_ = c.local.Close()
			return nil
		default:
		}
		c.Tick(ctx)
		c.clock.Sleep(c.settings.Tick)
	}
}

func statusOf(up bool) string {
	if up {
		return connectivity.Connected.String()
	}
	return connectivity.Disconnected.String()
}
