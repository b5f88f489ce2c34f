package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "hydromonit/sim-01/presion_psi", cfg.LocalTopic())
	assert.Equal(t, "channels/2941382/publish/fields/field2", cfg.Cloud.Topic)
	assert.Equal(t, 5*time.Second, cfg.SampleInterval())
	assert.Equal(t, time.Minute, cfg.PublishInterval())
	assert.Equal(t, 100*time.Millisecond, cfg.Tick())
	assert.Equal(t, 5*time.Minute, cfg.Watchdog.Timeout())
}

func TestLocalTopicOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DeviceID = "pump-07"
	assert.Equal(t, "hydromonit/pump-07/presion_psi", cfg.LocalTopic())
	cfg.Local.Topic = "custom/topic"
	assert.Equal(t, "custom/topic", cfg.LocalTopic())
}

func TestHostPort(t *testing.T) {
	tests := []struct {
		in   string
		host string
		port int
		ok   bool
	}{
		{"tcp://192.168.1.250:1883", "192.168.1.250", 1883, true},
		{"tcp://broker.local", "broker.local", 1883, true},
		{"mqtt://mqtt3.thingspeak.com:8883", "mqtt3.thingspeak.com", 8883, true},
		{"tcp://:1883", "", 0, false},
		{"tcp://host:abc", "", 0, false},
	}
	for _, tt := range tests {
		host, port, err := MQTTConfig{Server: tt.in}.HostPort()
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.host, host)
		assert.Equal(t, tt.port, port)
	}
}

func TestLoadFlagsOverride(t *testing.T) {
	cfg, err := Load([]string{
		"-device-id", "sim-02",
		"-sensor-type", "simulation",
		"-i2c-address", "0x49",
		"-adc-offset", "0",
		"-publish-interval-ms", "30000",
		"-local-protocol", "mqtt5",
		"-cloud-user", "u",
	})
	require.NoError(t, err)
	assert.Equal(t, "sim-02", cfg.DeviceID)
	assert.Equal(t, SensorSimulation, cfg.Sensor.Type)
	assert.Equal(t, 0x49, cfg.Sensor.I2CAddress)
	assert.Equal(t, 0, cfg.Sensor.Offset)
	assert.Equal(t, 30000, cfg.PublishIntervalMs)
	assert.Equal(t, ProtocolMQTT5, cfg.Local.Protocol)
	assert.Equal(t, "u", cfg.Cloud.Username)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "psi.yaml")
	yml := `
device_id: tank-3
wifi:
  ssid: JUNTA
  password: secret
sensor:
  type: simulation
  offset: 100
sample_interval_ms: 1000
local:
  server: tcp://10.0.0.5:1884
  protocol: console
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := Load([]string{"-config", path, "-device-id", "tank-4"})
	require.NoError(t, err)
	assert.Equal(t, "tank-4", cfg.DeviceID)
	assert.Equal(t, "JUNTA", cfg.WiFi.SSID)
	assert.Equal(t, 100, cfg.Sensor.Offset)
	assert.Equal(t, 4095, cfg.Sensor.ADCResolution)
	assert.Equal(t, 1000, cfg.SampleIntervalMs)
	assert.Equal(t, ProtocolConsole, cfg.Local.Protocol)
	assert.Equal(t, "wlan0", cfg.WiFi.Interface)
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]func(*Config){
		"sample interval": func(c *Config) { c.SampleIntervalMs = 0 },
		"sensor type":     func(c *Config) { c.Sensor.Type = "thermistor" },
		"protocol":        func(c *Config) { c.Cloud.Protocol = "amqp" },
		"server":          func(c *Config) { c.Local.Server = "tcp://:1" },
		"calibration":     func(c *Config) { c.Calibration = c.Calibration[:3] },
		"adc range":       func(c *Config) { c.Sensor.ADCMaxVoltage = 0 },
	}
	for name, mutate := range tests {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}

func TestParseIntOrHex(t *testing.T) {
	v, err := parseIntOrHex("0x48")
	require.NoError(t, err)
	assert.Equal(t, 72, v)
	v, err = parseIntOrHex("73")
	require.NoError(t, err)
	assert.Equal(t, 73, v)
	_, err = parseIntOrHex("zz")
	assert.Error(t, err)
}
