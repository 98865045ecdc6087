// Package config loads the controller's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/irrigation-controller/internal/gpio"
	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/mqtt"
	"github.com/sweeney/irrigation-controller/internal/schedule"
)

// Config represents the application configuration.
type Config struct {
	Buttons  ButtonsConfig    `yaml:"buttons"`
	Relay    RelayConfig      `yaml:"relay"`
	Volumes  VolumesConfig    `yaml:"volumes"`
	Pump     PumpConfig       `yaml:"pump"`
	Loop     LoopConfig       `yaml:"loop"`
	Storage  StorageConfig    `yaml:"storage"`
	LCD      LCDConfig        `yaml:"lcd"`
	MQTT     MQTTConfig       `yaml:"mqtt"`
	HTTP     HTTPConfig       `yaml:"http"`
	Network  NetworkConfig    `yaml:"network"`
	Watchdog WatchdogConfig   `yaml:"watchdog"`
	Schedule []ScheduleConfig `yaml:"schedule"`
}

// ButtonsConfig lists the GPIO lines of Mode 1..4 followed by the action button.
type ButtonsConfig struct {
	Pins      []int         `yaml:"pins"`
	Debounce  time.Duration `yaml:"debounce"`
	LongPress time.Duration `yaml:"long_press"`
}

// RelayConfig contains the pump relay line.
type RelayConfig struct {
	Pin       int  `yaml:"pin"`
	ActiveLow bool `yaml:"active_low"`
}

// VolumesConfig contains volume bounds in ml.
type VolumesConfig struct {
	MinMl       int   `yaml:"min_ml"`
	MaxMl       int   `yaml:"max_ml"`
	IncrementMl int   `yaml:"increment_ml"`
	Defaults    []int `yaml:"defaults"` // Mode 1..4, used when stored values are unusable
}

// PumpConfig contains pump timing.
type PumpConfig struct {
	FlowRateMlPerS float64       `yaml:"flow_rate_ml_per_s"`
	FinishPause    time.Duration `yaml:"finish_pause"`
	FinishBlocking bool          `yaml:"finish_blocking"`
}

// LoopConfig contains the poll interval.
type LoopConfig struct {
	Tick time.Duration `yaml:"tick"`
}

// StorageConfig contains the volume database location.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// LCDConfig contains the optional character display.
type LCDConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bus     string `yaml:"bus"` // empty selects the first I2C bus
	Addr    uint16 `yaml:"addr"`
}

// MQTTConfig contains broker settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker     string        `yaml:"broker"`
	ClientID   string        `yaml:"client_id"`
	OutboxSize int           `yaml:"outbox_size"`
	Heartbeat  time.Duration `yaml:"heartbeat"`
	WSBroker   string        `yaml:"ws_broker"` // "=broker" derives ws://host:9001, "off" disables
}

// HTTPConfig contains the status page listener. An empty address disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// NetworkConfig contains connectivity management.
type NetworkConfig struct {
	ProbeInterval     time.Duration `yaml:"probe_interval"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	ReconnectCommand  []string      `yaml:"reconnect_command"`
}

// WatchdogConfig controls systemd notifications.
type WatchdogConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ScheduleConfig starts a run of Mode (1..4) at every time matching Cron.
type ScheduleConfig struct {
	Cron string `yaml:"cron"`
	Mode int    `yaml:"mode"`
}

// Default returns the factory configuration.
func Default() *Config {
	s := logic.DefaultSettings()
	return &Config{
		Buttons: ButtonsConfig{
			Pins:      append([]int(nil), gpio.DefaultButtonPins...),
			Debounce:  s.Debounce,
			LongPress: s.LongPress,
		},
		Relay: RelayConfig{
			Pin:       gpio.DefaultRelayPin,
			ActiveLow: true,
		},
		Volumes: VolumesConfig{
			MinMl:       s.MinVolume,
			MaxMl:       s.MaxVolume,
			IncrementMl: s.Increment,
			Defaults:    append([]int(nil), logic.DefaultVolumes[:]...),
		},
		Pump: PumpConfig{
			FlowRateMlPerS: s.FlowRateMlPerS,
			FinishPause:    s.FinishPause,
		},
		Loop: LoopConfig{
			Tick: 10 * time.Millisecond,
		},
		Storage: StorageConfig{
			Path: "/var/lib/irrigation-controller/volumes.db",
		},
		LCD: LCDConfig{
			Addr: 0x27,
		},
		MQTT: MQTTConfig{
			Broker:     "tcp://localhost:1883",
			ClientID:   "irrigation-controller",
			OutboxSize: 1000,
			Heartbeat:  15 * time.Minute,
			WSBroker:   "=broker",
		},
		HTTP: HTTPConfig{
			Addr: ":80",
		},
		Network: NetworkConfig{
			ProbeInterval:     5 * time.Second,
			ReconnectInterval: time.Minute,
		},
		Watchdog: WatchdogConfig{
			Enabled: true,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; missing fields are filled from them.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults fills zero values. Booleans and empty MQTT/HTTP
// addresses are left alone since they carry meaning.
func (c *Config) ensureDefaults() {
	def := Default()

	if len(c.Buttons.Pins) == 0 {
		c.Buttons.Pins = def.Buttons.Pins
	}
	if c.Buttons.Debounce == 0 {
		c.Buttons.Debounce = def.Buttons.Debounce
	}
	if c.Buttons.LongPress == 0 {
		c.Buttons.LongPress = def.Buttons.LongPress
	}

	if c.Relay.Pin == 0 {
		c.Relay.Pin = def.Relay.Pin
	}

	if c.Volumes.MinMl == 0 {
		c.Volumes.MinMl = def.Volumes.MinMl
	}
	if c.Volumes.MaxMl == 0 {
		c.Volumes.MaxMl = def.Volumes.MaxMl
	}
	if c.Volumes.IncrementMl == 0 {
		c.Volumes.IncrementMl = def.Volumes.IncrementMl
	}
	if len(c.Volumes.Defaults) == 0 {
		c.Volumes.Defaults = def.Volumes.Defaults
	}

	if c.Pump.FlowRateMlPerS == 0 {
		c.Pump.FlowRateMlPerS = def.Pump.FlowRateMlPerS
	}
	if c.Pump.FinishPause == 0 {
		c.Pump.FinishPause = def.Pump.FinishPause
	}

	if c.Loop.Tick == 0 {
		c.Loop.Tick = def.Loop.Tick
	}

	if c.Storage.Path == "" {
		c.Storage.Path = def.Storage.Path
	}

	if c.LCD.Addr == 0 {
		c.LCD.Addr = def.LCD.Addr
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.OutboxSize == 0 {
		c.MQTT.OutboxSize = def.MQTT.OutboxSize
	}
	if c.MQTT.Heartbeat == 0 {
		c.MQTT.Heartbeat = def.MQTT.Heartbeat
	}

	if c.Network.ProbeInterval == 0 {
		c.Network.ProbeInterval = def.Network.ProbeInterval
	}
	if c.Network.ReconnectInterval == 0 {
		c.Network.ReconnectInterval = def.Network.ReconnectInterval
	}
}

// Validate reports every inconsistency found.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Buttons.Pins) != logic.NumButtons {
		errs = append(errs, fmt.Errorf("buttons.pins: need %d pins, got %d", logic.NumButtons, len(c.Buttons.Pins)))
	}
	if c.Buttons.Debounce < 0 {
		errs = append(errs, errors.New("buttons.debounce: must not be negative"))
	}
	if c.Buttons.LongPress <= c.Buttons.Debounce {
		errs = append(errs, errors.New("buttons.long_press: must be longer than debounce"))
	}
	if c.Volumes.MinMl <= 0 || c.Volumes.MaxMl <= c.Volumes.MinMl {
		errs = append(errs, fmt.Errorf("volumes: need 0 < min_ml < max_ml, got %d and %d", c.Volumes.MinMl, c.Volumes.MaxMl))
	}
	if c.Volumes.IncrementMl <= 0 || c.Volumes.IncrementMl > c.Volumes.MaxMl-c.Volumes.MinMl {
		errs = append(errs, fmt.Errorf("volumes.increment_ml: %d out of range", c.Volumes.IncrementMl))
	}
	if len(c.Volumes.Defaults) != logic.NumModes {
		errs = append(errs, fmt.Errorf("volumes.defaults: need %d values, got %d", logic.NumModes, len(c.Volumes.Defaults)))
	} else {
		for i, v := range c.Volumes.Defaults {
			if v < c.Volumes.MinMl || v > c.Volumes.MaxMl {
				errs = append(errs, fmt.Errorf("volumes.defaults: Mode %d value %d outside [%d, %d]", i+1, v, c.Volumes.MinMl, c.Volumes.MaxMl))
			}
		}
	}
	if c.Pump.FlowRateMlPerS <= 0 {
		errs = append(errs, errors.New("pump.flow_rate_ml_per_s: must be positive"))
	}
	if c.Loop.Tick <= 0 {
		errs = append(errs, errors.New("loop.tick: must be positive"))
	}
	if c.MQTT.OutboxSize < 0 {
		errs = append(errs, errors.New("mqtt.outbox_size: must not be negative"))
	}
	for i, s := range c.Schedule {
		if _, ok := logic.ParseMode(s.Mode); !ok {
			errs = append(errs, fmt.Errorf("schedule[%d]: mode %d out of range", i, s.Mode))
		}
		if strings.TrimSpace(s.Cron) == "" {
			errs = append(errs, fmt.Errorf("schedule[%d]: empty cron", i))
		}
	}

	return errors.Join(errs...)
}

// Settings returns the core tunables.
func (c *Config) Settings() logic.Settings {
	s := logic.Settings{
		Debounce:       c.Buttons.Debounce,
		LongPress:      c.Buttons.LongPress,
		MinVolume:      c.Volumes.MinMl,
		MaxVolume:      c.Volumes.MaxMl,
		Increment:      c.Volumes.IncrementMl,
		FlowRateMlPerS: c.Pump.FlowRateMlPerS,
		FinishPause:    c.Pump.FinishPause,
		FinishBlocking: c.Pump.FinishBlocking,
	}
	copy(s.Defaults[:], c.Volumes.Defaults)
	return s
}

// Entries converts the schedule section. Invalid modes become ModeNone,
// which schedule.New rejects.
func (c *Config) Entries() []schedule.Entry {
	var out []schedule.Entry
	for _, s := range c.Schedule {
		m, _ := logic.ParseMode(s.Mode)
		out = append(out, schedule.Entry{Spec: s.Cron, Mode: m})
	}
	return out
}

// MQTTOptions returns the publisher options.
func (c *Config) MQTTOptions() mqtt.Options {
	return mqtt.Options{
		Broker:     c.MQTT.Broker,
		ClientID:   c.MQTT.ClientID,
		OutboxSize: c.MQTT.OutboxSize,
	}
}

// WSBroker resolves the WebSocket broker URL shown to browsers. "=broker"
// derives ws://<broker host>:9001, "off" or an empty value disables it.
func (c *Config) WSBroker() string {
	return ResolveWSBroker(c.MQTT.WSBroker, c.MQTT.Broker)
}

// ResolveWSBroker implements WSBroker for arbitrary values.
func ResolveWSBroker(ws, broker string) string {
	if ws == "" || ws == "off" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(broker)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
