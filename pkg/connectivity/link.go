package connectivity

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
)

type LinkStatus int

const (
	Disconnected LinkStatus = iota
	Connected
)

func (s LinkStatus) String() string {
	if s == Connected {
		return "OK"
	}
	return "FAIL"
}

// Link is the wireless association stack.
type Link interface {
	Connect(ssid, password string) error
	Status() LinkStatus
	Reconnect() error
	// DisconnectAndReset drops the association and clears cached state.
	DisconnectAndReset() error
	LocalAddress() string
}

// Prober confirms an upstream host accepts connections.
type Prober interface {
	Probe(ctx context.Context, address string) error
}

// DialProber opens a TCP connection and closes it straight away.
type DialProber struct {
	Timeout time.Duration
}

func (p DialProber) Probe(ctx context.Context, address string) error {
	d := net.Dialer{Timeout: p.Timeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return errors.Wrapf(err, "probe %s", address)
	}
	return conn.Close()
}
