package logging

import (
	"io"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// OpenSerial opens a UART to mirror diagnostic lines to a bench console.
func OpenSerial(port string, baud int) (io.WriteCloser, error) {
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, errors.Wrapf(err, "open serial %s", port)
	}
	return p, nil
}
