package connectivity

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/ericogr/psi-to-mqtt/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHostLink(addrs []net.Addr, flags net.Flags) (*HostLink, *[]string) {
	var calls []string
	cfg := config.DefaultConfig().WiFi
	cfg.SSID = "JUNTA DE AGUA"
	cfg.Password = "pw"
	h := NewHostLink(cfg)
	h.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		calls = append(calls, name+" "+strings.Join(args, "|"))
		return nil, nil
	}
	h.interfaces = func(name string) (*net.Interface, error) {
		return &net.Interface{Name: name, Flags: flags}, nil
	}
	h.addrs = func(*net.Interface) ([]net.Addr, error) { return addrs, nil }
	return h, &calls
}

func TestHostLinkCommands(t *testing.T) {
	h, calls := newTestHostLink(nil, 0)

	require.NoError(t, h.Connect("JUNTA DE AGUA", "pw"))
	require.NoError(t, h.Reconnect())
	require.NoError(t, h.DisconnectAndReset())

	assert.Equal(t, []string{
		"nmcli device|wifi|connect|JUNTA DE AGUA|password|pw|ifname|wlan0",
		"nmcli device|connect|wlan0",
		"nmcli device|disconnect|wlan0",
	}, *calls)
}

func TestHostLinkCommandError(t *testing.T) {
	h, _ := newTestHostLink(nil, 0)
	h.run = func(context.Context, string, ...string) ([]byte, error) {
		return []byte("Error: No network with SSID found.\n"), errors.New("exit status 10")
	}
	err := h.Reconnect()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No network with SSID found.")
}

func TestHostLinkStatus(t *testing.T) {
	global := &net.IPNet{IP: net.ParseIP("192.168.1.40"), Mask: net.CIDRMask(24, 32)}
	linkLocal := &net.IPNet{IP: net.ParseIP("169.254.3.4"), Mask: net.CIDRMask(16, 32)}

	h, _ := newTestHostLink([]net.Addr{linkLocal, global}, net.FlagUp)
	assert.Equal(t, Connected, h.Status())
	assert.Equal(t, "192.168.1.40", h.LocalAddress())

	h, _ = newTestHostLink([]net.Addr{global}, 0)
	assert.Equal(t, Disconnected, h.Status(), "interface down")

	h, _ = newTestHostLink([]net.Addr{linkLocal}, net.FlagUp)
	assert.Equal(t, Disconnected, h.Status(), "no lease")
	assert.Equal(t, "", h.LocalAddress())
}

func TestDialProber(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	p := DialProber{Timeout: defaultTestTimeout}
	assert.NoError(t, p.Probe(context.Background(), addr))

	require.NoError(t, l.Close())
	assert.Error(t, p.Probe(context.Background(), addr))
}
