package mqtt

import (
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/psi-to-mqtt/pkg/output"
	"github.com/pkg/errors"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultSendTimeout    = 5 * time.Second
	keepAlive             = 15 * time.Second
	qos                   = 0
)

// MQTTOutput is an MQTT 3.1.1 transport. Reconnection is left to the
// owning session, so paho's auto reconnect is disabled.
type MQTTOutput struct {
	broker         string
	client         mqtt.Client
	connectTimeout time.Duration
	sendTimeout    time.Duration
	lastCode       atomic.Int32
}

func NewMQTT() output.Transport {
	return &MQTTOutput{connectTimeout: DefaultConnectTimeout, sendTimeout: DefaultSendTimeout}
}

func (m *MQTTOutput) SetEndpoint(host string, port int) {
	m.broker = fmt.Sprintf("tcp://%s:%d", host, port)
}

func (m *MQTTOutput) Connect(clientID, username, password string) error {
	if m.broker == "" {
		m.lastCode.Store(output.CodeConnectFailed)
		return errors.New("mqtt endpoint not set")
	}
	if m.client != nil {
		m.client.Disconnect(0)
	}
	opts := mqtt.NewClientOptions().
		AddBroker(m.broker).
		SetClientID(clientID).
		SetCleanSession(true).
		SetKeepAlive(keepAlive).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(m.connectTimeout).
		SetConnectionLostHandler(func(mqtt.Client, error) {
			m.lastCode.Store(output.CodeConnectionLost)
		})
	if username != "" {
		opts.SetUsername(username)
	}
	if password != "" {
		opts.SetPassword(password)
	}
	client := mqtt.NewClient(opts)
	m.client = client
	token := client.Connect()
	if !token.WaitTimeout(m.connectTimeout) {
		m.lastCode.Store(output.CodeTimeout)
		return errors.Errorf("mqtt connect %s: timeout", m.broker)
	}
	if err := token.Error(); err != nil {
		code := int32(output.CodeConnectFailed)
		if ct, ok := token.(*mqtt.ConnectToken); ok && ct.ReturnCode() != 0 {
			code = int32(ct.ReturnCode())
		}
		m.lastCode.Store(code)
		return errors.Wrapf(err, "mqtt connect %s", m.broker)
	}
	m.lastCode.Store(output.CodeOK)
	return nil
}

func (m *MQTTOutput) Connected() bool {
	return m.client != nil && m.client.IsConnectionOpen()
}

func (m *MQTTOutput) Publish(topic, payload string) bool {
	if !m.Connected() {
		m.lastCode.Store(output.CodeDisconnected)
		return false
	}
	token := m.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(m.sendTimeout) {
		m.lastCode.Store(output.CodeTimeout)
		return false
	}
	if token.Error() != nil {
		m.lastCode.Store(output.CodeDisconnected)
		return false
	}
	return true
}

// Service is a no-op: paho drives keepalives from its own goroutines and
// reports loss through the connection lost handler.
func (m *MQTTOutput) Service() {}

func (m *MQTTOutput) LastErrorCode() int { return int(m.lastCode.Load()) }

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}
