package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ericogr/psi-to-mqtt/pkg/calibration"
	"github.com/ericogr/psi-to-mqtt/pkg/clock"
	"github.com/ericogr/psi-to-mqtt/pkg/config"
	"github.com/ericogr/psi-to-mqtt/pkg/connectivity"
	"github.com/ericogr/psi-to-mqtt/pkg/identity"
	"github.com/ericogr/psi-to-mqtt/pkg/indicator"
	"github.com/ericogr/psi-to-mqtt/pkg/logging"
	"github.com/ericogr/psi-to-mqtt/pkg/monitor"
	"github.com/ericogr/psi-to-mqtt/pkg/output"
	"github.com/ericogr/psi-to-mqtt/pkg/output/console"
	"github.com/ericogr/psi-to-mqtt/pkg/output/mqtt"
	"github.com/ericogr/psi-to-mqtt/pkg/output/mqtt5"
	"github.com/ericogr/psi-to-mqtt/pkg/sensor"
	"github.com/ericogr/psi-to-mqtt/pkg/session"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.LoadFromFlags()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	logs, err := logging.NewLogrus(cfg.LogLevel, os.Stdout, cfg.LogSerialPort, cfg.LogSerialBaud)
	log := logs.Get("main")
	if err != nil {
		log.WithError(err).Warn("serial log mirror disabled")
	}
	defer func() { _ = logs.Close() }()

	log.WithFields(logrus.Fields{
		"device": cfg.DeviceID,
		"sensor": cfg.Sensor.Type,
	}).Info("=== pressure monitor ===")

	clk := clock.New()

	adc, err := newADC(cfg.Sensor)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize sensor")
	}
	defer func() { _ = adc.Close() }()

	curve, err := calibration.FromPoints(cfg.Calibration)
	if err != nil {
		log.WithError(err).Fatal("invalid calibration")
	}
	rng, offset := sensorScale(cfg.Sensor)
	sampler := sensor.NewSampler(adc, cfg.Sensor.Pin, offset, rng, curve, clk.Now)

	ind := newIndicator(cfg.LEDPin, clk, log)

	clientID, err := identity.FirstOf(identity.NewHardware(cfg.ClientIDPrefix), identity.Random{Prefix: cfg.ClientIDPrefix})
	if err != nil {
		log.WithError(err).Fatal("failed to derive client id")
	}

	cloudEP, err := endpointFrom(cfg.Cloud, cfg.Cloud.Topic, clientID)
	if err != nil {
		log.WithError(err).Fatal("cloud endpoint")
	}
	localEP, err := endpointFrom(cfg.Local, cfg.LocalTopic(), clientID)
	if err != nil {
		log.WithError(err).Fatal("local endpoint")
	}
	cloudTr, err := newTransport(cfg.Cloud.Protocol, clk.Now)
	if err != nil {
		log.WithError(err).Fatal("cloud transport")
	}
	localTr, err := newTransport(cfg.Local.Protocol, clk.Now)
	if err != nil {
		log.WithError(err).Fatal("local transport")
	}
	cloud := session.New("cloud", cloudEP, cloudTr, clk, ind, logs.Get("cloud"))
	local := session.New("local", localEP, localTr, clk, ind, logs.Get("local"))

	restarter := connectivity.NewExitRestarter(logs.Get("watchdog"), clk,
		func() { _ = cloud.Close() },
		func() { _ = local.Close() },
		func() { _ = logs.Close() },
	)
	sup := connectivity.NewSupervisor(
		supervisorSettings(cfg),
		connectivity.NewHostLink(cfg.WiFi),
		connectivity.DialProber{Timeout: cfg.Watchdog.ProbeTimeout()},
		restarter,
		clk,
		logs.Get("supervisor"),
	)

	cycle := monitor.New(monitorSettings(cfg), sup, sampler, cloud, local, clk, logs.Get("monitor"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cycle.Run(ctx); err != nil {
		log.WithError(err).Error("monitor stopped")
	}
}

func newADC(cfg config.SensorConfig) (sensor.ADC, error) {
	switch cfg.Type {
	case config.SensorSimulation:
		return sensor.NewSimulatedADC(cfg, time.Now().UnixNano()), nil
	case config.SensorReal:
		return sensor.NewADS1115(cfg)
	default:
		return nil, errors.Errorf("unknown sensor type %q", cfg.Type)
	}
}

// sensorScale picks the count range and raw offset for the sensor type. The
// ADS1115 converts at a fixed full scale and reads true volts, so it takes
// no offset; the configured range and offset describe ESP32-style counts.
func sensorScale(cfg config.SensorConfig) (sensor.Range, int) {
	if cfg.Type == config.SensorReal {
		return sensor.ADS1115Range, 0
	}
	return sensor.Range{Resolution: cfg.ADCResolution, MaxVoltage: cfg.ADCMaxVoltage}, cfg.Offset
}

func newIndicator(pin string, clk clock.Clock, log logrus.FieldLogger) indicator.Indicator {
	if pin == "" {
		return indicator.Noop{}
	}
	led, err := indicator.NewLED(pin, clk)
	if err != nil {
		log.WithError(err).Warn("status led disabled")
		return indicator.Noop{}
	}
	return led
}

func newTransport(protocol string, now func() time.Time) (output.Transport, error) {
	switch protocol {
	case config.ProtocolMQTT:
		return mqtt.NewMQTT(), nil
	case config.ProtocolMQTT5:
		return mqtt5.NewMQTT5(), nil
	case config.ProtocolConsole:
		return console.NewConsole(now), nil
	default:
		return nil, errors.Errorf("unknown protocol %q", protocol)
	}
}

// endpointFrom fills an endpoint from config. An empty client id in config
// falls back to the device-derived one.
func endpointFrom(m config.MQTTConfig, topic, clientID string) (session.Endpoint, error) {
	ep := session.Endpoint{
		ClientID:     m.ClientID,
		Username:     m.Username,
		Password:     m.Password,
		Topic:        topic,
		HelloPayload: m.HelloPayload,
	}
	if ep.ClientID == "" {
		ep.ClientID = clientID
	}
	if m.Protocol == config.ProtocolConsole {
		return ep, nil
	}
	host, port, err := m.HostPort()
	if err != nil {
		return ep, err
	}
	ep.Host, ep.Port = host, port
	return ep, nil
}

func supervisorSettings(cfg config.Config) connectivity.Settings {
	s := connectivity.DefaultSettings()
	s.SSID = cfg.WiFi.SSID
	s.Password = cfg.WiFi.Password
	if cfg.Watchdog.ProbeAddress != "" {
		s.ProbeAddress = cfg.Watchdog.ProbeAddress
	}
	s.WatchdogTimeout = cfg.Watchdog.Timeout()
	return s
}

func monitorSettings(cfg config.Config) monitor.Settings {
	s := monitor.DefaultSettings()
	s.SampleInterval = cfg.SampleInterval()
	s.PublishInterval = cfg.PublishInterval()
	s.Tick = cfg.Tick()
	return s
}
