package session

import (
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ericogr/psi-to-mqtt/pkg/clock"
	"github.com/ericogr/psi-to-mqtt/pkg/indicator"
	"github.com/ericogr/psi-to-mqtt/pkg/output"
	"github.com/sirupsen/logrus"
)

const (
	DefaultConnectAttempts = 5
	DefaultConnectBackoff  = 5 * time.Second
)

type Outcome int

const (
	Delivered Outcome = iota
	Rejected
	NotConnected
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Rejected:
		return "rejected"
	default:
		return "not-connected"
	}
}

// Endpoint describes one publish target.
type Endpoint struct {
	Host     string
	Port     int
	ClientID string
	Username string
	Password string
	Topic    string

	ConnectAttempts int
	ConnectBackoff  time.Duration
	// HelloPayload, when set, is published on Topic after every successful
	// connect.
	HelloPayload string
}

// Session is one logical publish channel with its own connection
// lifecycle. Sessions share nothing, so one failing never blocks another
// beyond the bounded waits of its own calls.
type Session struct {
	name       string
	endpoint   Endpoint
	transport  output.Transport
	clock      clock.Clock
	indicator  indicator.Indicator
	log        logrus.FieldLogger
	retryCount int
}

func New(name string, ep Endpoint, tr output.Transport, c clock.Clock, ind indicator.Indicator, log logrus.FieldLogger) *Session {
	if ep.ConnectAttempts <= 0 {
		ep.ConnectAttempts = DefaultConnectAttempts
	}
	if ep.ConnectBackoff <= 0 {
		ep.ConnectBackoff = DefaultConnectBackoff
	}
	if ind == nil {
		ind = indicator.Noop{}
	}
	tr.SetEndpoint(ep.Host, ep.Port)
	return &Session{name: name, endpoint: ep, transport: tr, clock: c, indicator: ind, log: log}
}

func (s *Session) Name() string    { return s.name }
func (s *Session) Topic() string   { return s.endpoint.Topic }
func (s *Session) Connected() bool { return s.transport.Connected() }

// RetryCount is the number of failed handshakes since the last success.
func (s *Session) RetryCount() int { return s.retryCount }

// Connect returns immediately when connected. Otherwise it tries the
// handshake up to ConnectAttempts times, ConnectBackoff apart, and gives up
// leaving the session disconnected.
func (s *Session) Connect() bool {
	if s.transport.Connected() {
		return true
	}
	b := backoff.NewConstantBackOff(s.endpoint.ConnectBackoff)
	for attempt := 1; ; attempt++ {
		log := s.log.WithField("attempt", attempt)
		log.Debugf("connecting to %s:%d", s.endpoint.Host, s.endpoint.Port)
		err := s.transport.Connect(s.endpoint.ClientID, s.endpoint.Username, s.endpoint.Password)
		if err == nil {
			log.Info("connected")
			s.retryCount = 0
			s.hello()
			return true
		}
		s.retryCount++
		log = log.WithError(err).WithField("rc", s.transport.LastErrorCode())
		if attempt >= s.endpoint.ConnectAttempts {
			log.Warn("connect failed, giving up for this cycle")
			return false
		}
		wait := b.NextBackOff()
		log.Warnf("connect failed, retrying in %s", wait)
		s.clock.Sleep(wait)
	}
}

func (s *Session) hello() {
	if s.endpoint.HelloPayload == "" {
		return
	}
	if !s.transport.Publish(s.endpoint.Topic, s.endpoint.HelloPayload) {
		s.log.WithField("rc", s.transport.LastErrorCode()).Warn("hello publish failed")
	}
}

// Service drives the transport housekeeping; call it every tick.
func (s *Session) Service() {
	s.transport.Service()
}

// PublishIfConnected never waits beyond the transport send timeout. A
// delivery pulses the indicator.
func (s *Session) PublishIfConnected(topic, payload string) Outcome {
	if !s.transport.Connected() {
		return NotConnected
	}
	if !s.transport.Publish(topic, payload) {
		return Rejected
	}
	s.indicator.Pulse()
	return Delivered
}

// PublishWithRetry tries up to attempts times, delay apart, reconnecting
// between attempts when the session dropped.
func (s *Session) PublishWithRetry(topic, payload string, attempts int, delay time.Duration) bool {
	for i := 1; i <= attempts; i++ {
		outcome := s.PublishIfConnected(topic, payload)
		if outcome == Delivered {
			s.log.WithField("payload", payload).Info("publish ok")
			return true
		}
		s.log.WithFields(logrus.Fields{"attempt": i, "outcome": outcome, "rc": s.transport.LastErrorCode()}).Warn("publish failed")
		if i == attempts {
			break
		}
		s.clock.Sleep(delay)
		if !s.transport.Connected() {
			s.Connect()
		}
	}
	return false
}

// Flush delivers the pending payload when connected and clears it on
// success.
func (s *Session) Flush(p *Pending) bool {
	payload, ok := p.Get()
	if !ok || !s.transport.Connected() {
		return false
	}
	if s.PublishIfConnected(s.endpoint.Topic, payload) != Delivered {
		return false
	}
	s.log.WithField("payload", payload).Info("pending payload sent")
	p.Clear()
	return true
}

// PublishOrKeep publishes once; on failure the payload replaces whatever
// is pending. On success the pending slot is cleared.
func (s *Session) PublishOrKeep(p *Pending, payload string) Outcome {
	outcome := s.PublishIfConnected(s.endpoint.Topic, payload)
	log := s.log.WithField("payload", payload)
	switch outcome {
	case Delivered:
		log.Info("publish ok")
		p.Clear()
	case Rejected:
		log.WithField("rc", s.transport.LastErrorCode()).Warn("publish failed, keeping payload")
		p.Set(payload)
	default:
		log.Warn("disconnected, keeping payload")
		p.Set(payload)
	}
	return outcome
}

func (s *Session) Close() error {
	return s.transport.Close()
}
