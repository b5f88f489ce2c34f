// Package mqtt5 is an MQTT 5 transport for brokers that expose reason codes
// on CONNACK and DISCONNECT.
package mqtt5

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/ericogr/psi-to-mqtt/pkg/output"
	"github.com/pkg/errors"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultSendTimeout    = 5 * time.Second
	keepAlive             = 15
)

type MQTT5Output struct {
	addr           string
	connectTimeout time.Duration
	sendTimeout    time.Duration

	mu        sync.Mutex
	client    *paho.Client
	connected atomic.Bool
	lastCode  atomic.Int32
}

func NewMQTT5() output.Transport {
	return &MQTT5Output{connectTimeout: DefaultConnectTimeout, sendTimeout: DefaultSendTimeout}
}

func (m *MQTT5Output) SetEndpoint(host string, port int) {
	m.addr = net.JoinHostPort(host, fmt.Sprint(port))
}

func (m *MQTT5Output) Connect(clientID, username, password string) error {
	if m.addr == "" {
		m.lastCode.Store(output.CodeConnectFailed)
		return errors.New("mqtt5 endpoint not set")
	}
	m.drop()

	conn, err := net.DialTimeout("tcp", m.addr, m.connectTimeout)
	if err != nil {
		m.lastCode.Store(output.CodeConnectFailed)
		return errors.Wrapf(err, "dial %s", m.addr)
	}
	var client *paho.Client
	client = paho.NewClient(paho.ClientConfig{
		ClientID: clientID,
		Conn:     conn,
		OnClientError: func(error) {
			m.lost(client, output.CodeConnectionLost)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			m.lost(client, int32(d.ReasonCode))
		},
	})

	cp := &paho.Connect{
		ClientID:   clientID,
		KeepAlive:  keepAlive,
		CleanStart: true,
	}
	if username != "" {
		cp.Username = username
		cp.UsernameFlag = true
	}
	if password != "" {
		cp.Password = []byte(password)
		cp.PasswordFlag = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.connectTimeout)
	defer cancel()
	ca, err := client.Connect(ctx, cp)
	if err != nil {
		code := int32(output.CodeConnectFailed)
		if ca != nil && ca.ReasonCode != 0 {
			code = int32(ca.ReasonCode)
		} else if errors.Is(err, context.DeadlineExceeded) {
			code = output.CodeTimeout
		}
		m.lastCode.Store(code)
		_ = conn.Close()
		return errors.Wrapf(err, "mqtt5 connect %s", m.addr)
	}

	m.mu.Lock()
	m.client = client
	m.connected.Store(true)
	m.lastCode.Store(output.CodeOK)
	m.mu.Unlock()
	return nil
}

// lost marks the connection down unless c was already replaced or dropped.
func (m *MQTT5Output) lost(c *paho.Client, code int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != c {
		return
	}
	m.connected.Store(false)
	m.lastCode.Store(code)
}

func (m *MQTT5Output) Connected() bool { return m.connected.Load() }

func (m *MQTT5Output) Publish(topic, payload string) bool {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client == nil || !m.connected.Load() {
		m.lastCode.Store(output.CodeDisconnected)
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
	defer cancel()
	if _, err := client.Publish(ctx, &paho.Publish{Topic: topic, QoS: 0, Payload: []byte(payload)}); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			m.lastCode.Store(output.CodeTimeout)
		} else {
			m.lastCode.Store(output.CodeDisconnected)
		}
		return false
	}
	return true
}

func (m *MQTT5Output) Service() {}

func (m *MQTT5Output) LastErrorCode() int { return int(m.lastCode.Load()) }

func (m *MQTT5Output) Close() error {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.mu.Unlock()
	m.connected.Store(false)
	if client == nil {
		return nil
	}
	return client.Disconnect(&paho.Disconnect{ReasonCode: 0})
}

func (m *MQTT5Output) drop() {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.mu.Unlock()
	m.connected.Store(false)
	if client != nil {
		_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
	}
}
