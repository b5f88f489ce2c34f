package output

// Error codes reported by LastErrorCode, numbered like the Arduino
// PubSubClient states so field logs stay comparable across firmwares.
// Positive values are CONNACK return or reason codes.
const (
	CodeOK             = 0
	CodeDisconnected   = -1
	CodeConnectFailed  = -2
	CodeConnectionLost = -3
	CodeTimeout        = -4
)

// Transport is a message-transport client driven by a single session. It is
// called only from the monitor loop.
type Transport interface {
	SetEndpoint(host string, port int)
	// Connect performs one handshake attempt. Empty username means an
	// anonymous connection.
	Connect(clientID, username, password string) error
	Connected() bool
	// Publish reports whether the broker accepted the message within the
	// transport's own send timeout.
	Publish(topic, payload string) bool
	// Service runs per-tick housekeeping.
	Service()
	// LastErrorCode is the transport specific code of the last failure, 0
	// when the last operation succeeded.
	LastErrorCode() int
	Close() error
}

// implementations live in subpackages
