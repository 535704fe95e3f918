package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/lyfleet/internal/device"
	goble "github.com/srg/lyfleet/internal/device/go-ble"
	"github.com/srg/lyfleet/internal/radioctl"
	"github.com/srg/lyfleet/internal/sensor"
	"github.com/srg/lyfleet/pkg/config"
)

// Transport constructors, replaced in tests.
var (
	newRadioLink = func(logger *logrus.Logger) device.RadioLink {
		return goble.NewLink(logger)
	}
	newRadioControl = func(cfg *config.Config, logger *logrus.Logger) (device.RadioControl, error) {
		if cfg.Radio.Backend == config.BackendNone {
			return nil, nil
		}
		return radioctl.New(radioctl.Options{
			Backend:        cfg.Radio.Backend,
			Adapter:        cfg.Radio.Adapter,
			RestartService: cfg.Radio.RestartService,
			Cooldown:       cfg.Radio.Cooldown,
			Logger:         logger,
		})
	}
)

// app bundles what every command needs.
type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	control device.RadioControl
}

// newApp loads the configuration and logger. Radio control is optional for device
// commands: a backend that cannot be opened only disables adapter resets.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	control, err := newRadioControl(cfg, logger)
	if err != nil {
		logger.WithError(err).Warn("Radio control unavailable, adapter resets disabled")
		control = nil
	}
	return &app{cfg: cfg, logger: logger, control: control}, nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		cfg := config.DefaultConfig()
		return cfg, cfg.Validate()
	}
	return config.Load(path)
}

// target is a resolved device argument.
type target struct {
	Address string
	ID      string
	Variant device.Variant
}

// resolve maps a device argument to a target. The argument may be a configured id,
// a configured address or any device address. variantFlag, when set, wins over the configuration.
func (a *app) resolve(arg, variantFlag string) (target, error) {
	var t target
	for _, d := range a.cfg.Devices {
		if d.ID == arg || strings.EqualFold(d.Address, arg) {
			v, err := device.ParseVariant(d.Variant)
			if err != nil {
				return t, err
			}
			t = target{Address: d.Address, ID: d.ID, Variant: v}
			break
		}
	}
	if t.Address == "" {
		if !looksLikeAddress(arg) {
			return t, fmt.Errorf("%w: %q is neither a configured id nor a device address", ErrUnknownDevice, arg)
		}
		addr := strings.ToUpper(arg)
		t = target{Address: addr, ID: addr, Variant: device.VariantRich}
	}

	if variantFlag != "" {
		v, err := device.ParseVariant(variantFlag)
		if err != nil {
			return t, err
		}
		t.Variant = v
	}
	return t, nil
}

// looksLikeAddress accepts MAC addresses and the UUIDs macOS uses in their place.
func looksLikeAddress(s string) bool {
	switch {
	case len(s) == 17 && strings.Count(s, ":") == 5:
		return true
	case len(s) == 36 && strings.Count(s, "-") == 4:
		return true
	default:
		return false
	}
}

// link creates a sensor link for t.
func (a *app) link(t target) *sensor.Link {
	return sensor.New(t.Address, newRadioLink(a.logger), sensor.Options{
		Variant:             t.Variant,
		NotificationTimeout: a.cfg.Link.NotificationTimeout,
		ConnectTimeout:      a.cfg.Link.ConnectTimeout,
		Reusable:            a.cfg.Link.Reusable,
		Tries:               a.cfg.Link.Tries,
		Resets:              a.cfg.Link.Resets,
		Control:             a.control,
		SettleDelay:         a.cfg.Radio.SettleDelay,
		Logger:              a.logger,
	})
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
