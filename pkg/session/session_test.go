package session

import (
	"errors"
	"testing"
	"time"

	"github.com/ericogr/psi-to-mqtt/pkg/clock"
	"github.com/ericogr/psi-to-mqtt/pkg/output"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct{ topic, payload string }

type fakeTransport struct {
	host string
	port int

	connected    bool
	connectFails int // -1 fails forever
	rejectNext   int
	dropOnReject bool

	connects  int
	services  int
	clientID  string
	username  string
	publishes []published
	code      int
}

func (f *fakeTransport) SetEndpoint(host string, port int) { f.host, f.port = host, port }

func (f *fakeTransport) Connect(clientID, username, _ string) error {
	f.connects++
	f.clientID, f.username = clientID, username
	if f.connectFails != 0 {
		if f.connectFails > 0 {
			f.connectFails--
		}
		f.code = output.CodeConnectFailed
		return errors.New("connection refused")
	}
	f.connected = true
	f.code = output.CodeOK
	return nil
}

func (f *fakeTransport) Connected() bool { return f.connected }

func (f *fakeTransport) Publish(topic, payload string) bool {
	if !f.connected {
		return false
	}
	if f.rejectNext > 0 {
		f.rejectNext--
		f.code = output.CodeTimeout
		if f.dropOnReject {
			f.connected = false
		}
		return false
	}
	f.publishes = append(f.publishes, published{topic, payload})
	return true
}

func (f *fakeTransport) Service()           { f.services++ }
func (f *fakeTransport) LastErrorCode() int { return f.code }
func (f *fakeTransport) Close() error       { f.connected = false; return nil }

type countingIndicator struct{ pulses int }

func (c *countingIndicator) Pulse() { c.pulses++ }

func newTestSession(tr *fakeTransport, ep Endpoint) (*Session, *clock.Fake, *countingIndicator) {
	logger, _ := test.NewNullLogger()
	fc := clock.NewFake(time.Date(2025, 9, 19, 8, 0, 0, 0, time.UTC))
	ind := &countingIndicator{}
	if ep.Topic == "" {
		ep.Topic = "hydromonit/sim-01/presion_psi"
	}
	return New("local", ep, tr, fc, ind, logger), fc, ind
}

func TestNewSetsEndpointAndDefaults(t *testing.T) {
	tr := &fakeTransport{}
	s, _, _ := newTestSession(tr, Endpoint{Host: "192.168.1.250", Port: 1883})
	assert.Equal(t, "192.168.1.250", tr.host)
	assert.Equal(t, 1883, tr.port)
	assert.Equal(t, DefaultConnectAttempts, s.endpoint.ConnectAttempts)
	assert.Equal(t, DefaultConnectBackoff, s.endpoint.ConnectBackoff)
	assert.Equal(t, "local", s.Name())
}

func TestConnectIdempotent(t *testing.T) {
	tr := &fakeTransport{connected: true}
	s, fc, _ := newTestSession(tr, Endpoint{})
	assert.True(t, s.Connect())
	assert.Equal(t, 0, tr.connects)
	_, sleeps := fc.Slept()
	assert.Equal(t, 0, sleeps)
}

func TestConnectRetriesThenSucceeds(t *testing.T) {
	tr := &fakeTransport{connectFails: 2}
	s, fc, _ := newTestSession(tr, Endpoint{ClientID: "ESP32-PSI-1", Username: "u"})

	assert.True(t, s.Connect())
	assert.Equal(t, 3, tr.connects)
	assert.Equal(t, "ESP32-PSI-1", tr.clientID)
	assert.Equal(t, "u", tr.username)
	assert.Equal(t, 0, s.RetryCount())
	slept, sleeps := fc.Slept()
	assert.Equal(t, 2, sleeps)
	assert.Equal(t, 10*time.Second, slept)
}

func TestConnectGivesUpAfterFiveAttempts(t *testing.T) {
	tr := &fakeTransport{connectFails: -1}
	s, fc, _ := newTestSession(tr, Endpoint{})

	assert.False(t, s.Connect())
	assert.False(t, s.Connected())
	assert.Equal(t, 5, tr.connects)
	assert.Equal(t, 5, s.RetryCount())
	slept, sleeps := fc.Slept()
	assert.Equal(t, 4, sleeps, "sleeps only between attempts")
	assert.Equal(t, 20*time.Second, slept)

	// the next cycle tries again
	assert.False(t, s.Connect())
	assert.Equal(t, 10, tr.connects)
}

func TestConnectSingleAttempt(t *testing.T) {
	tr := &fakeTransport{connectFails: -1}
	s, fc, _ := newTestSession(tr, Endpoint{ConnectAttempts: 1})

	assert.False(t, s.Connect())
	assert.Equal(t, 1, tr.connects)
	_, sleeps := fc.Slept()
	assert.Equal(t, 0, sleeps)
}

func TestConnectPublishesHello(t *testing.T) {
	tr := &fakeTransport{}
	s, _, ind := newTestSession(tr, Endpoint{Topic: "channels/1/publish/fields/field2", HelloPayload: "Iniciando"})
	require.True(t, s.Connect())
	assert.Equal(t, []published{{"channels/1/publish/fields/field2", "Iniciando"}}, tr.publishes)
	assert.Equal(t, 0, ind.pulses, "hello is not a reading")
}

func TestPublishIfConnectedOutcomes(t *testing.T) {
	tr := &fakeTransport{}
	s, _, ind := newTestSession(tr, Endpoint{})

	assert.Equal(t, NotConnected, s.PublishIfConnected("t", "1"))

	tr.connected = true
	assert.Equal(t, Delivered, s.PublishIfConnected("t", "1"))
	assert.Equal(t, 1, ind.pulses)

	tr.rejectNext = 1
	assert.Equal(t, Rejected, s.PublishIfConnected("t", "2"))
	assert.Equal(t, 1, ind.pulses, "no pulse on failure")

	assert.Equal(t, "not-connected", NotConnected.String())
	assert.Equal(t, "rejected", Rejected.String())
	assert.Equal(t, "delivered", Delivered.String())
}

func TestPublishWithRetry(t *testing.T) {
	tr := &fakeTransport{connected: true, rejectNext: 2}
	s, fc, _ := newTestSession(tr, Endpoint{})

	assert.True(t, s.PublishWithRetry("cloud/topic", "6", 3, time.Second))
	assert.Equal(t, []published{{"cloud/topic", "6"}}, tr.publishes)
	slept, _ := fc.Slept()
	assert.Equal(t, 2*time.Second, slept)
}

func TestPublishWithRetryReconnects(t *testing.T) {
	tr := &fakeTransport{connected: true, rejectNext: 1, dropOnReject: true}
	s, _, _ := newTestSession(tr, Endpoint{})

	assert.True(t, s.PublishWithRetry("cloud/topic", "6", 3, time.Second))
	assert.Equal(t, 1, tr.connects)
}

func TestPublishWithRetryGivesUp(t *testing.T) {
	tr := &fakeTransport{connectFails: -1}
	s, fc, _ := newTestSession(tr, Endpoint{ConnectAttempts: 1})

	assert.False(t, s.PublishWithRetry("cloud/topic", "6", 3, time.Second))
	assert.Equal(t, 2, tr.connects, "reconnect between attempts only")
	slept, _ := fc.Slept()
	assert.Equal(t, 2*time.Second, slept)
}

func TestServiceAlwaysDrivesTransport(t *testing.T) {
	tr := &fakeTransport{}
	s, _, _ := newTestSession(tr, Endpoint{})
	s.Service()
	tr.connected = true
	s.Service()
	assert.Equal(t, 2, tr.services)
}

func TestPendingLastValueWins(t *testing.T) {
	tr := &fakeTransport{}
	s, _, _ := newTestSession(tr, Endpoint{})
	var p Pending

	assert.Equal(t, NotConnected, s.PublishOrKeep(&p, "42"))
	got, ok := p.Get()
	assert.True(t, ok)
	assert.Equal(t, "42", got)

	tr.connected = true
	tr.rejectNext = 1
	assert.Equal(t, Rejected, s.PublishOrKeep(&p, "45"))
	got, _ = p.Get()
	assert.Equal(t, "45", got)

	assert.Equal(t, Delivered, s.PublishOrKeep(&p, "47"))
	_, ok = p.Get()
	assert.False(t, ok)
	assert.Equal(t, []published{{"hydromonit/sim-01/presion_psi", "47"}}, tr.publishes)
}

func TestFlushPending(t *testing.T) {
	tr := &fakeTransport{}
	s, _, ind := newTestSession(tr, Endpoint{})
	var p Pending

	assert.False(t, s.Flush(&p), "nothing pending")

	p.Set("42")
	assert.False(t, s.Flush(&p), "disconnected")
	_, ok := p.Get()
	assert.True(t, ok)

	tr.connected = true
	tr.rejectNext = 1
	assert.False(t, s.Flush(&p))
	_, ok = p.Get()
	assert.True(t, ok)

	assert.True(t, s.Flush(&p))
	_, ok = p.Get()
	assert.False(t, ok)
	assert.Equal(t, []published{{"hydromonit/sim-01/presion_psi", "42"}}, tr.publishes)
	assert.Equal(t, 1, ind.pulses)
}

func TestSessionsAreIndependent(t *testing.T) {
	cloudTr := &fakeTransport{connectFails: -1}
	localTr := &fakeTransport{}
	cloud, _, _ := newTestSession(cloudTr, Endpoint{Topic: "channels/1/publish/fields/field2"})
	local, _, _ := newTestSession(localTr, Endpoint{})
	var p Pending

	for i, payload := range []string{"10", "11", "12"} {
		assert.False(t, cloud.Connect())
		assert.False(t, cloud.PublishWithRetry(cloud.Topic(), payload, 3, time.Second))
		assert.True(t, local.Connect())
		assert.Equal(t, Delivered, local.PublishOrKeep(&p, payload), "round %d", i)
	}
	assert.Len(t, localTr.publishes, 3)
	assert.Empty(t, cloudTr.publishes)
	_, ok := p.Get()
	assert.False(t, ok)
}
