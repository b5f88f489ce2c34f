package config

import (
	"encoding/json"
	"flag"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ericogr/psi-to-mqtt/pkg/calibration"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	ProtocolMQTT    = "mqtt"
	ProtocolMQTT5   = "mqtt5"
	ProtocolConsole = "console"

	SensorReal       = "real"
	SensorSimulation = "simulation"
)

type MQTTConfig struct {
	Server       string `json:"server" yaml:"server"`
	Username     string `json:"username" yaml:"username"`
	Password     string `json:"password" yaml:"password"`
	ClientID     string `json:"client_id" yaml:"client_id"`
	Topic        string `json:"topic" yaml:"topic"`
	Protocol     string `json:"protocol" yaml:"protocol"`
	HelloPayload string `json:"hello_payload,omitempty" yaml:"hello_payload,omitempty"`
}

// HostPort splits Server (tcp://host:port) into host and port.
func (m MQTTConfig) HostPort() (string, int, error) {
	u, err := url.Parse(m.Server)
	if err != nil {
		return "", 0, errors.Wrapf(err, "parse server %q", m.Server)
	}
	if u.Hostname() == "" {
		return "", 0, errors.Errorf("server %q has no host", m.Server)
	}
	if u.Port() == "" {
		return u.Hostname(), 1883, nil
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return "", 0, errors.Wrapf(err, "server %q port", m.Server)
	}
	return u.Hostname(), port, nil
}

type WiFiConfig struct {
	SSID      string `json:"ssid" yaml:"ssid"`
	Password  string `json:"password" yaml:"password"`
	Interface string `json:"interface" yaml:"interface"`
	// Commands run to manage the association. {ssid}, {password} and
	// {interface} are substituted.
	ConnectCommand   []string `json:"connect_command" yaml:"connect_command"`
	ReconnectCommand []string `json:"reconnect_command" yaml:"reconnect_command"`
	ResetCommand     []string `json:"reset_command" yaml:"reset_command"`
}

type SensorConfig struct {
	Type            string  `json:"type" yaml:"type"`
	Pin             int     `json:"pin" yaml:"pin"`
	I2CBus          string  `json:"i2c_bus" yaml:"i2c_bus"`
	I2CAddress      int     `json:"i2c_address" yaml:"i2c_address"`
	SampleRate      int     `json:"sample_rate" yaml:"sample_rate"`
	// Offset, ADCResolution and ADCMaxVoltage describe ESP32-style counts
	// and apply to the simulated sensor. The ADS1115 has a fixed scale.
	Offset          int     `json:"offset" yaml:"offset"`
	ADCResolution   int     `json:"adc_resolution" yaml:"adc_resolution"`
	ADCMaxVoltage   float64 `json:"adc_max_voltage" yaml:"adc_max_voltage"`
	SimulationBase  int     `json:"simulation_base" yaml:"simulation_base"`
	SimulationNoise int     `json:"simulation_noise" yaml:"simulation_noise"`
}

type WatchdogConfig struct {
	ProbeAddress   string `json:"probe_address" yaml:"probe_address"`
	ProbeTimeoutMs int    `json:"probe_timeout_ms" yaml:"probe_timeout_ms"`
	TimeoutMs      int    `json:"timeout_ms" yaml:"timeout_ms"`
}

type Config struct {
	DeviceID          string              `json:"device_id" yaml:"device_id"`
	ClientIDPrefix    string              `json:"client_id_prefix" yaml:"client_id_prefix"`
	WiFi              WiFiConfig          `json:"wifi" yaml:"wifi"`
	Sensor            SensorConfig        `json:"sensor" yaml:"sensor"`
	Calibration       []calibration.Point `json:"calibration" yaml:"calibration"`
	SampleIntervalMs  int                 `json:"sample_interval_ms" yaml:"sample_interval_ms"`
	PublishIntervalMs int                 `json:"publish_interval_ms" yaml:"publish_interval_ms"`
	TickMs            int                 `json:"tick_ms" yaml:"tick_ms"`
	Watchdog          WatchdogConfig      `json:"watchdog" yaml:"watchdog"`
	Cloud             MQTTConfig          `json:"cloud" yaml:"cloud"`
	Local             MQTTConfig          `json:"local" yaml:"local"`
	LEDPin            string              `json:"led_pin" yaml:"led_pin"`
	LogLevel          string              `json:"log_level" yaml:"log_level"`
	LogSerialPort     string              `json:"log_serial_port" yaml:"log_serial_port"`
	LogSerialBaud     int                 `json:"log_serial_baud" yaml:"log_serial_baud"`
}

func DefaultConfig() Config {
	curve := calibration.Default()
	return Config{
		DeviceID:       "sim-01",
		ClientIDPrefix: "LINUX",
		WiFi: WiFiConfig{
			Interface:        "wlan0",
			ConnectCommand:   []string{"nmcli", "device", "wifi", "connect", "{ssid}", "password", "{password}", "ifname", "{interface}"},
			ReconnectCommand: []string{"nmcli", "device", "connect", "{interface}"},
			ResetCommand:     []string{"nmcli", "device", "disconnect", "{interface}"},
		},
		Sensor: SensorConfig{
			Type:            SensorReal,
			Pin:             0,
			I2CBus:          "2",
			I2CAddress:      0x48,
			SampleRate:      128,
			Offset:          148,
			ADCResolution:   4095,
			ADCMaxVoltage:   3.3,
			SimulationBase:  400,
			SimulationNoise: 15,
		},
		Calibration:       curve[:],
		SampleIntervalMs:  5000,
		PublishIntervalMs: 60000,
		TickMs:            100,
		Watchdog: WatchdogConfig{
			ProbeAddress:   "8.8.8.8:53",
			ProbeTimeoutMs: 3000,
			TimeoutMs:      300000,
		},
		Cloud: MQTTConfig{
			Server:   "tcp://mqtt3.thingspeak.com:1883",
			Topic:    "channels/2941382/publish/fields/field2",
			Protocol: ProtocolMQTT,
		},
		Local: MQTTConfig{
			Server:   "tcp://192.168.1.250:1883",
			Protocol: ProtocolMQTT,
		},
		LEDPin:        "",
		LogLevel:      "info",
		LogSerialBaud: 115200,
	}
}

// LocalTopic is hydromonit/<device-id>/presion_psi unless overridden.
func (c Config) LocalTopic() string {
	if c.Local.Topic != "" {
		return c.Local.Topic
	}
	return "hydromonit/" + c.DeviceID + "/presion_psi"
}

func (c Config) SampleInterval() time.Duration  { return ms(c.SampleIntervalMs) }
func (c Config) PublishInterval() time.Duration { return ms(c.PublishIntervalMs) }
func (c Config) Tick() time.Duration            { return ms(c.TickMs) }

func (w WatchdogConfig) Timeout() time.Duration      { return ms(w.TimeoutMs) }
func (w WatchdogConfig) ProbeTimeout() time.Duration { return ms(w.ProbeTimeoutMs) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// LoadFromFlags loads configuration from an optional JSON or YAML file and
// command line flags. Flags override values present in the file.
func LoadFromFlags() (Config, error) {
	return Load(os.Args[1:])
}

func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("psi-to-mqtt", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to JSON or YAML config file")
	flagDeviceID := fs.String("device-id", "", "Device id used in the local topic")
	flagSSID := fs.String("wifi-ssid", "", "Wireless network name")
	flagWiFiPass := fs.String("wifi-pass", "", "Wireless network password")
	flagIface := fs.String("wifi-interface", "", "Wireless interface name")
	flagSensorType := fs.String("sensor-type", "", "sensor type: real|simulation")
	flagPin := fs.Int("sensor-pin", -1, "ADC input")
	flagI2CBus := fs.String("i2c-bus", "", "I2C bus (e.g., '2' -> /dev/i2c-2)")
	flagI2CAddStr := fs.String("i2c-address", "", "I2C address (decimal or 0x hex)")
	flagOffset := fs.Int("adc-offset", math.MinInt32, "Additive raw count offset")
	flagSample := fs.Int("sample-interval-ms", -1, "Sampling interval in ms")
	flagPublish := fs.Int("publish-interval-ms", -1, "Publish interval in ms")
	flagCloudServer := fs.String("cloud-server", "", "Cloud MQTT server (tcp://host:port)")
	flagCloudUser := fs.String("cloud-user", "", "Cloud MQTT username")
	flagCloudPass := fs.String("cloud-pass", "", "Cloud MQTT password")
	flagCloudClientID := fs.String("cloud-client-id", "", "Cloud MQTT client id")
	flagCloudTopic := fs.String("cloud-topic", "", "Cloud MQTT topic")
	flagLocalServer := fs.String("local-server", "", "Local MQTT server (tcp://host:port)")
	flagLocalProtocol := fs.String("local-protocol", "", "Local transport: mqtt|mqtt5|console")
	flagCloudProtocol := fs.String("cloud-protocol", "", "Cloud transport: mqtt|mqtt5|console")
	flagLEDPin := fs.String("led-pin", "", "GPIO name of the status LED")
	flagLogLevel := fs.String("log-level", "", "Log level")
	flagLogSerial := fs.String("log-serial", "", "Serial port to mirror logs to")

	if err := fs.Parse(args); err != nil {
		return DefaultConfig(), err
	}

	cfg := DefaultConfig()

	if *cfgPath != "" {
		if err := loadFile(*cfgPath, &cfg); err != nil {
			return cfg, err
		}
	}

	setString(&cfg.DeviceID, *flagDeviceID)
	setString(&cfg.WiFi.SSID, *flagSSID)
	setString(&cfg.WiFi.Password, *flagWiFiPass)
	setString(&cfg.WiFi.Interface, *flagIface)
	setString(&cfg.Sensor.Type, *flagSensorType)
	setString(&cfg.Sensor.I2CBus, *flagI2CBus)
	setString(&cfg.Cloud.Server, *flagCloudServer)
	setString(&cfg.Cloud.Username, *flagCloudUser)
	setString(&cfg.Cloud.Password, *flagCloudPass)
	setString(&cfg.Cloud.ClientID, *flagCloudClientID)
	setString(&cfg.Cloud.Topic, *flagCloudTopic)
	setString(&cfg.Cloud.Protocol, *flagCloudProtocol)
	setString(&cfg.Local.Server, *flagLocalServer)
	setString(&cfg.Local.Protocol, *flagLocalProtocol)
	setString(&cfg.LEDPin, *flagLEDPin)
	setString(&cfg.LogLevel, *flagLogLevel)
	setString(&cfg.LogSerialPort, *flagLogSerial)

	if *flagI2CAddStr != "" {
		v, err := parseIntOrHex(*flagI2CAddStr)
		if err != nil {
			return cfg, errors.Wrap(err, "i2c-address")
		}
		cfg.Sensor.I2CAddress = v
	}
	if *flagPin != -1 {
		cfg.Sensor.Pin = *flagPin
	}
	if *flagOffset != math.MinInt32 {
		cfg.Sensor.Offset = *flagOffset
	}
	if *flagSample != -1 {
		cfg.SampleIntervalMs = *flagSample
	}
	if *flagPublish != -1 {
		cfg.PublishIntervalMs = *flagPublish
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.SampleIntervalMs <= 0 || c.PublishIntervalMs <= 0 || c.TickMs <= 0 {
		return errors.New("sample, publish and tick intervals must be > 0")
	}
	if c.Watchdog.TimeoutMs <= 0 {
		return errors.New("watchdog timeout must be > 0")
	}
	if c.Sensor.ADCResolution <= 0 || c.Sensor.ADCMaxVoltage <= 0 {
		return errors.New("adc resolution and max voltage must be > 0")
	}
	switch c.Sensor.Type {
	case SensorReal, SensorSimulation:
	default:
		return errors.Errorf("unknown sensor type %q", c.Sensor.Type)
	}
	if _, err := calibration.FromPoints(c.Calibration); err != nil {
		return err
	}
	for name, m := range map[string]MQTTConfig{"cloud": c.Cloud, "local": c.Local} {
		switch m.Protocol {
		case ProtocolMQTT, ProtocolMQTT5, ProtocolConsole:
		default:
			return errors.Errorf("%s: unknown protocol %q", name, m.Protocol)
		}
		if m.Protocol == ProtocolConsole {
			continue
		}
		if _, _, err := m.HostPort(); err != nil {
			return errors.Wrap(err, name)
		}
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return errors.Wrap(err, "read config")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, cfg)
	default:
		err = json.Unmarshal(b, cfg)
	}
	return errors.Wrap(err, "parse config")
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func parseIntOrHex(s string) (int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	v, err := strconv.Atoi(s)
	return v, err
}
