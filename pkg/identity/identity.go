package identity

import (
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Provider yields the unique id used as MQTT client id.
type Provider interface {
	ClientID() (string, error)
}

// Hardware derives the id from the first non-loopback MAC address,
// formatted as <prefix>-PSI-<MAC hex>.
type Hardware struct {
	Prefix     string
	interfaces func() ([]net.Interface, error)
}

func NewHardware(prefix string) *Hardware {
	return &Hardware{Prefix: prefix, interfaces: net.Interfaces}
}

func (h *Hardware) ClientID() (string, error) {
	ifaces, err := h.interfaces()
	if err != nil {
		return "", errors.Wrap(err, "list interfaces")
	}
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagLoopback != 0 || len(ifc.HardwareAddr) == 0 {
			continue
		}
		mac := strings.ToUpper(strings.ReplaceAll(ifc.HardwareAddr.String(), ":", ""))
		return fmt.Sprintf("%s-PSI-%s", h.Prefix, mac), nil
	}
	return "", errors.New("no hardware address found")
}

// Random is used when the board exposes no MAC address. The id changes on
// every boot.
type Random struct {
	Prefix string
}

func (r Random) ClientID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", errors.Wrap(err, "generate client id")
	}
	return fmt.Sprintf("%s-PSI-%s", r.Prefix, strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:12])), nil
}

// FirstOf returns the id of the first provider that succeeds.
func FirstOf(providers ...Provider) (string, error) {
	var last error
	for _, p := range providers {
		id, err := p.ClientID()
		if err == nil {
			return id, nil
		}
		last = err
	}
	if last == nil {
		last = errors.New("no identity provider")
	}
	return "", last
}
