package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/lyfleet/internal/device"
	"github.com/srg/lyfleet/internal/fleet"
	"github.com/srg/lyfleet/internal/radioctl"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds application configuration
type Config struct {
	LogLevel string `yaml:"log_level" default:"info"`

	Link    LinkConfig     `yaml:"link"`
	Fleet   FleetConfig    `yaml:"fleet"`
	Radio   RadioConfig    `yaml:"radio"`
	NATS    NATSConfig     `yaml:"nats"`
	Devices []DeviceConfig `yaml:"devices"`
}

// LinkConfig configures every sensor link.
type LinkConfig struct {
	// NotificationTimeout defaults to the variant's own timeout when zero.
	NotificationTimeout time.Duration `yaml:"notification_timeout"`
	// ConnectTimeout defaults to NotificationTimeout when zero.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	Reusable       bool          `yaml:"reusable"`
	// Tries and Resets override the budget implied by Reusable when set.
	Tries  int `yaml:"tries"`
	Resets int `yaml:"resets"`
}

type FleetConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" default:"5m"`
	Policy       fleet.Policy  `yaml:"policy"`
}

type RadioConfig struct {
	// Backend is dbus, hci or none.
	Backend        string        `yaml:"backend" default:"dbus"`
	Adapter        string        `yaml:"adapter" default:"hci0"`
	RestartService bool          `yaml:"restart_service"`
	SettleDelay    time.Duration `yaml:"settle_delay" default:"2s"`
	// Cooldown is the minimum time between two adapter power cycles from any source.
	Cooldown time.Duration `yaml:"cooldown" default:"1m"`
}

// NATSConfig enables state publication when URL is set.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix" default:"lyfleet.state"`
}

type DeviceConfig struct {
	Address string `yaml:"address"`
	ID      string `yaml:"id,omitempty"`
	Variant string `yaml:"variant,omitempty"`
}

// BackendNone disables radio control.
const BackendNone = "none"

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enums and ranges and fills in per-device defaults.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %v", ErrInvalid, err)
	}
	if c.Link.NotificationTimeout < 0 || c.Link.ConnectTimeout < 0 {
		return fmt.Errorf("%w: link timeouts must not be negative", ErrInvalid)
	}
	if c.Link.Tries < 0 || c.Link.Resets < 0 {
		return fmt.Errorf("%w: link.tries and link.resets must not be negative", ErrInvalid)
	}
	if c.Fleet.PollInterval <= 0 {
		return fmt.Errorf("%w: fleet.poll_interval must be positive", ErrInvalid)
	}

	p := c.Fleet.Policy
	switch {
	case p.WarningQoS < 0 || p.WarningQoS > 100:
		return fmt.Errorf("%w: fleet.policy.warning_qos must be within 0..100", ErrInvalid)
	case p.ResetFraction <= 0 || p.ResetFraction > 1:
		return fmt.Errorf("%w: fleet.policy.reset_fraction must be within (0, 1]", ErrInvalid)
	case p.ResponseWindow < 1:
		return fmt.Errorf("%w: fleet.policy.response_window must be at least 1", ErrInvalid)
	case p.HoldFails < 1 || p.HoldRelief < 0:
		return fmt.Errorf("%w: fleet.policy.hold_fails must be at least 1 and hold_relief not negative", ErrInvalid)
	case p.Concurrency < 1:
		return fmt.Errorf("%w: fleet.policy.concurrency must be at least 1", ErrInvalid)
	}

	switch c.Radio.Backend {
	case radioctl.BackendDBus, radioctl.BackendHCI, BackendNone:
	default:
		return fmt.Errorf("%w: radio.backend %q (want dbus, hci or none)", ErrInvalid, c.Radio.Backend)
	}

	seen := make(map[string]bool, len(c.Devices))
	for i := range c.Devices {
		d := &c.Devices[i]
		d.Address = strings.ToUpper(strings.TrimSpace(d.Address))
		if d.Address == "" {
			return fmt.Errorf("%w: devices[%d].address is required", ErrInvalid, i)
		}
		if d.ID == "" {
			d.ID = d.Address
		}
		if seen[d.ID] {
			return fmt.Errorf("%w: duplicate device id %q", ErrInvalid, d.ID)
		}
		seen[d.ID] = true

		if d.Variant == "" {
			d.Variant = device.VariantRich.String()
		}
		if _, err := device.ParseVariant(d.Variant); err != nil {
			return fmt.Errorf("%w: devices[%d].variant: %v", ErrInvalid, i, err)
		}
	}
	return nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
