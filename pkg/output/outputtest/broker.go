// Package outputtest runs an in-process MQTT broker for transport tests.
package outputtest

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/require"
)

type Message struct {
	ClientID string
	Topic    string
	Payload  string
}

type Broker struct {
	Host string
	Port int

	server *mochi.Server
	rec    *recorder
	once   sync.Once
}

// StartBroker starts a broker on a free localhost port that accepts every
// client. It is closed when the test ends.
func StartBroker(t *testing.T) *Broker {
	t.Helper()
	port := freePort(t)
	server := mochi.New(nil)
	require.NoError(t, server.AddHook(&auth.AllowHook{}, nil))
	rec := &recorder{}
	require.NoError(t, server.AddHook(rec, nil))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		Address: fmt.Sprintf("127.0.0.1:%d", port),
	})))
	require.NoError(t, server.Serve())
	b := &Broker{Host: "127.0.0.1", Port: port, server: server, rec: rec}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// WaitFor returns the first message published on topic within timeout.
func (b *Broker) WaitFor(topic string, timeout time.Duration) (Message, bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m, ok := b.rec.find(topic); ok {
			return m, true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return Message{}, false
}

// Messages returns all payloads published on topic so far.
func (b *Broker) Messages(topic string) []string {
	b.rec.mu.Lock()
	defer b.rec.mu.Unlock()
	var out []string
	for _, m := range b.rec.msgs {
		if m.Topic == topic {
			out = append(out, m.Payload)
		}
	}
	return out
}

// Close stops the broker; later calls are no-ops.
func (b *Broker) Close() error {
	var err error
	b.once.Do(func() { err = b.server.Close() })
	return err
}

type recorder struct {
	mochi.HookBase
	mu   sync.Mutex
	msgs []Message
}

func (h *recorder) ID() string { return "recorder" }

func (h *recorder) Provides(b byte) bool { return b == mochi.OnPublished }

func (h *recorder) OnPublished(cl *mochi.Client, pk packets.Packet) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, Message{ClientID: cl.ID, Topic: pk.TopicName, Payload: string(pk.Payload)})
}

func (h *recorder) find(topic string) (Message, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.msgs {
		if m.Topic == topic {
			return m, true
		}
	}
	return Message{}, false
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// FreePort returns a localhost port with nothing listening on it.
func FreePort(t *testing.T) int { return freePort(t) }
