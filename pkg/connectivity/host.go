package connectivity

import (
	"context"
	"net"
	"os/exec"
	"strings"
	"time"

	"github.com/ericogr/psi-to-mqtt/pkg/config"
	"github.com/pkg/errors"
)

const commandTimeout = 30 * time.Second

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// HostLink manages a Linux wireless interface through external commands
// (nmcli by default) and reads its state from the kernel.
type HostLink struct {
	cfg        config.WiFiConfig
	run        runFunc
	interfaces func(name string) (*net.Interface, error)
	addrs      func(ifc *net.Interface) ([]net.Addr, error)
}

func NewHostLink(cfg config.WiFiConfig) *HostLink {
	return &HostLink{
		cfg: cfg,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
		interfaces: net.InterfaceByName,
		addrs:      func(ifc *net.Interface) ([]net.Addr, error) { return ifc.Addrs() },
	}
}

func (h *HostLink) Connect(ssid, password string) error {
	return h.exec(h.cfg.ConnectCommand, ssid, password)
}

func (h *HostLink) Reconnect() error {
	return h.exec(h.cfg.ReconnectCommand, h.cfg.SSID, h.cfg.Password)
}

func (h *HostLink) DisconnectAndReset() error {
	return h.exec(h.cfg.ResetCommand, h.cfg.SSID, h.cfg.Password)
}

// Status is Connected when the interface is up and holds a global unicast
// address.
func (h *HostLink) Status() LinkStatus {
	if h.address() == nil {
		return Disconnected
	}
	return Connected
}

func (h *HostLink) LocalAddress() string {
	if ip := h.address(); ip != nil {
		return ip.String()
	}
	return ""
}

func (h *HostLink) address() net.IP {
	ifc, err := h.interfaces(h.cfg.Interface)
	if err != nil || ifc.Flags&net.FlagUp == 0 {
		return nil
	}
	addrs, err := h.addrs(ifc)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || !ipnet.IP.IsGlobalUnicast() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4
		}
	}
	return nil
}

func (h *HostLink) exec(cmd []string, ssid, password string) error {
	if len(cmd) == 0 {
		return nil
	}
	r := strings.NewReplacer("{ssid}", ssid, "{password}", password, "{interface}", h.cfg.Interface)
	args := make([]string, len(cmd))
	for i, a := range cmd {
		args[i] = r.Replace(a)
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if out, err := h.run(ctx, args[0], args[1:]...); err != nil {
		return errors.Wrapf(err, "%s: %s", args[0], strings.TrimSpace(string(out)))
	}
	return nil
}
