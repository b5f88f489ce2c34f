package console

import (
	"fmt"
	"time"

	"github.com/ericogr/psi-to-mqtt/pkg/output"
)

// ConsoleOutput prints publishes to stdout. Connect always succeeds and it is
// used for bench runs without a broker.
type ConsoleOutput struct {
	endpoint  string
	connected bool
	now       func() time.Time
}

func NewConsole(now func() time.Time) output.Transport { return &ConsoleOutput{now: now} }

func (c *ConsoleOutput) SetEndpoint(host string, port int) {
	c.endpoint = fmt.Sprintf("%s:%d", host, port)
}

func (c *ConsoleOutput) Connect(clientID, _, _ string) error {
	c.connected = true
	fmt.Printf("%s connect endpoint=%s client=%s\n", c.now().Format(time.RFC3339), c.endpoint, clientID)
	return nil
}

func (c *ConsoleOutput) Connected() bool { return c.connected }

func (c *ConsoleOutput) Publish(topic, payload string) bool {
	fmt.Printf("%s topic=%s payload=%s\n", c.now().Format(time.RFC3339), topic, payload)
	return true
}

func (c *ConsoleOutput) Service() {}

func (c *ConsoleOutput) LastErrorCode() int { return 0 }

func (c *ConsoleOutput) Close() error {
	c.connected = false
	return nil
}
