package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logrus hands out per-component entries of one shared logger. Lines go to
// stdout and, when a port is configured, to a serial console as well.
type Logrus struct {
	log    *logrus.Logger
	serial io.Closer
}

// NewLogrus never returns nil. When the serial port cannot be opened the
// logger still writes to stdout and the error is returned for reporting.
func NewLogrus(level string, stdout io.Writer, serialPort string, baud int) (*Logrus, error) {
	l := &Logrus{log: logrus.New()}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.log.SetLevel(lvl)
	l.log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	l.log.SetOutput(stdout)

	if serialPort == "" {
		return l, nil
	}
	port, err := OpenSerial(serialPort, baud)
	if err != nil {
		return l, err
	}
	l.serial = port
	l.log.SetOutput(io.MultiWriter(stdout, port))
	return l, nil
}

func (l *Logrus) Get(component string) *logrus.Entry {
	return l.log.WithField("component", component)
}

func (l *Logrus) Level() logrus.Level { return l.log.GetLevel() }

// Close releases the serial port, if any. Later calls are no-ops.
func (l *Logrus) Close() error {
	if l.serial == nil {
		return nil
	}
	err := l.serial.Close()
	l.serial = nil
	return err
}
