package connectivity

import (
	"context"
	"time"

	"github.com/ericogr/psi-to-mqtt/pkg/clock"
	"github.com/sirupsen/logrus"
)

type Settings struct {
	SSID     string
	Password string
	// ProbeAddress is dialled to confirm upstream reachability.
	ProbeAddress string
	// WatchdogTimeout without reachability restarts the device, once
	// reachability has been seen at least once.
	WatchdogTimeout    time.Duration
	CheckInterval      time.Duration
	ReconnectSettle    time.Duration
	ResetSettle        time.Duration
	InitAttempts       int
	InitPollInterval   time.Duration
	DiagnosticInterval time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		ProbeAddress:       "8.8.8.8:53",
		WatchdogTimeout:    5 * time.Minute,
		CheckInterval:      10 * time.Second,
		ReconnectSettle:    5 * time.Second,
		ResetSettle:        2 * time.Second,
		InitAttempts:       30,
		InitPollInterval:   500 * time.Millisecond,
		DiagnosticInterval: time.Minute,
	}
}

type State struct {
	LinkUp           bool
	LastInternetOK   time.Time
	HasEverConnected bool
	LastLinkCheck    time.Time
}

// Supervisor keeps the wireless link associated and restarts the device
// when the upstream path stays unreachable for longer than the watchdog
// timeout. All methods run on the monitor loop.
type Supervisor struct {
	settings  Settings
	link      Link
	prober    Prober
	restarter Restarter
	clock     clock.Clock
	log       logrus.FieldLogger

	state       State
	boot        time.Time
	initialized bool
	diagWindow  int64
}

func NewSupervisor(settings Settings, link Link, prober Prober, restarter Restarter, c clock.Clock, log logrus.FieldLogger) *Supervisor {
	now := c.Now()
	return &Supervisor{
		settings:  settings,
		link:      link,
		prober:    prober,
		restarter: restarter,
		clock:     c,
		log:       log,
		boot:      now,
		state:     State{LastInternetOK: now},
	}
}

func (s *Supervisor) State() State { return s.state }

// LinkUp reads the link status and records it.
func (s *Supervisor) LinkUp() bool {
	s.state.LinkUp = s.link.Status() == Connected
	return s.state.LinkUp
}

// CheckReachability is true when the link is associated and the probe host
// accepts a connection.
func (s *Supervisor) CheckReachability(ctx context.Context) bool {
	if !s.LinkUp() {
		return false
	}
	if err := s.prober.Probe(ctx, s.settings.ProbeAddress); err != nil {
		s.log.WithError(err).Debug("reachability probe failed")
		return false
	}
	return true
}

// Supervise runs the watchdog and the periodic diagnostic snapshot.
func (s *Supervisor) Supervise(ctx context.Context) {
	now := s.clock.Now()
	reachable := s.CheckReachability(ctx)
	if reachable {
		s.state.LastInternetOK = now
		if !s.state.HasEverConnected {
			s.state.HasEverConnected = true
			s.log.Info("first internet connection ok")
		}
	}

	if s.state.HasEverConnected && now.Sub(s.state.LastInternetOK) > s.settings.WatchdogTimeout {
		s.log.WithField("offline", now.Sub(s.state.LastInternetOK).Round(time.Second)).
			Error("no internet beyond watchdog timeout, restarting")
		s.restarter.RestartDevice()
		return
	}

	s.diagnostics(now, reachable)
}

// diagnostics logs at most one snapshot per interval window. The first
// window starts one interval after boot.
func (s *Supervisor) diagnostics(now time.Time, reachable bool) {
	if s.settings.DiagnosticInterval <= 0 {
		return
	}
	uptime := now.Sub(s.boot)
	window := int64(uptime / s.settings.DiagnosticInterval)
	if window < 1 || window <= s.diagWindow {
		return
	}
	s.diagWindow = window
	s.log.WithFields(logrus.Fields{
		"uptime_s": int64(uptime / time.Second),
		"wifi":     statusOf(s.state.LinkUp),
		"internet": statusOf(reachable),
	}).Info("status")
}

// ReconnectIfNeeded re-evaluates the link every CheckInterval, or right
// away when it is down. A failed quick reconnect falls back to Init.
func (s *Supervisor) ReconnectIfNeeded(ctx context.Context) {
	now := s.clock.Now()
	up := s.LinkUp()
	if up && now.Sub(s.state.LastLinkCheck) < s.settings.CheckInterval {
		return
	}
	s.state.LastLinkCheck = now
	if up {
		return
	}

	s.log.Warn("wifi disconnected, trying to reconnect")
	if err := s.link.Reconnect(); err != nil {
		s.log.WithError(err).Warn("reconnect command failed")
	}
	s.clock.Sleep(s.settings.ReconnectSettle)

	if !s.LinkUp() {
		s.log.Warn("quick reconnect failed, reinitializing wifi")
		s.initialized = false
		s.Init(ctx)
		return
	}
	if s.CheckReachability(ctx) {
		s.state.LastInternetOK = s.clock.Now()
		s.log.Info("reconnected to internet")
	} else {
		s.log.Warn("wifi ok but no internet")
	}
}

// Init performs a full association: reset on first use or after a failed
// attempt, connect, then poll the status a bounded number of times.
func (s *Supervisor) Init(ctx context.Context) bool {
	if !s.initialized {
		s.log.Info("clearing previous wifi configuration")
		if err := s.link.DisconnectAndReset(); err != nil {
			s.log.WithError(err).Warn("wifi reset failed")
		}
		s.clock.Sleep(s.settings.ResetSettle)
		s.initialized = true
	}

	s.log.WithField("ssid", s.settings.SSID).Info("connecting to wifi")
	if err := s.link.Connect(s.settings.SSID, s.settings.Password); err != nil {
		s.log.WithError(err).Warn("wifi connect failed")
	}
	for attempt := 0; attempt < s.settings.InitAttempts && !s.LinkUp(); attempt++ {
		s.clock.Sleep(s.settings.InitPollInterval)
	}

	if !s.LinkUp() {
		s.log.Error("wifi connection failed")
		s.initialized = false
		return false
	}
	s.log.WithField("ip", s.link.LocalAddress()).Info("wifi connected")
	if s.CheckReachability(ctx) {
		s.state.LastInternetOK = s.clock.Now()
	}
	return true
}

func statusOf(ok bool) string {
	if ok {
		return "OK"
	}
	return "FAIL"
}
