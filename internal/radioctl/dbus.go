package radioctl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"github.com/srg/lyfleet/internal/clock"
	"github.com/srg/lyfleet/internal/device"
)

const (
	bluezBus      = "org.bluez"
	bluezAdapter1 = "org.bluez.Adapter1"
	bluezDevice1  = "org.bluez.Device1"

	systemdBus      = "org.freedesktop.systemd1"
	systemdPath     = dbus.ObjectPath("/org/freedesktop/systemd1")
	systemdManager  = "org.freedesktop.systemd1.Manager"
	bluetoothUnit   = "bluetooth.service"
	errUnknownObj   = "org.freedesktop.DBus.Error.UnknownObject"
	errNotConnected = "org.bluez.Error.NotConnected"
)

// busObject is the part of dbus.BusObject used here.
type busObject interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
	GetProperty(p string) (dbus.Variant, error)
	SetProperty(p string, v interface{}) error
}

// DBusOptions configure a DBusControl.
type DBusOptions struct {
	Adapter string
	// RestartService restarts bluetooth.service through systemd after the power cycle.
	RestartService bool
	Clock          clock.Clock
	Logger         *logrus.Logger
}

// DBusControl drives BlueZ over the system bus.
type DBusControl struct {
	adapter        string
	restartService bool
	clock          clock.Clock
	logger         *logrus.Logger

	object func(dest string, path dbus.ObjectPath) busObject
}

var _ device.RadioControl = (*DBusControl)(nil)

// NewDBusControl connects to the system bus. The shared bus connection is never closed.
func NewDBusControl(opts DBusOptions) (*DBusControl, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	return newDBusControl(opts, func(dest string, path dbus.ObjectPath) busObject {
		return conn.Object(dest, path)
	}), nil
}

func newDBusControl(opts DBusOptions, object func(string, dbus.ObjectPath) busObject) *DBusControl {
	if opts.Adapter == "" {
		opts.Adapter = DefaultAdapter
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &DBusControl{
		adapter:        opts.Adapter,
		restartService: opts.RestartService,
		clock:          opts.Clock,
		logger:         opts.Logger,
		object:         object,
	}
}

// PowerCycle powers the adapter off and on, waiting settle after each step,
// then optionally restarts the bluetooth service.
func (c *DBusControl) PowerCycle(ctx context.Context, settle time.Duration) (device.PowerCycleResult, error) {
	var res device.PowerCycleResult

	adapter := c.object(bluezBus, adapterPath(c.adapter))

	if err := adapter.SetProperty(bluezAdapter1+".Powered", dbus.MakeVariant(false)); err != nil {
		return res, fmt.Errorf("power off %s: %w", c.adapter, err)
	}
	res.Off = c.poweredState(adapter)
	c.logger.WithFields(logrus.Fields{"adapter": c.adapter, "state": res.Off}).Debug("Adapter powered off")
	if err := sleep(ctx, c.clock, settle); err != nil {
		return res, err
	}

	if err := adapter.SetProperty(bluezAdapter1+".Powered", dbus.MakeVariant(true)); err != nil {
		return res, fmt.Errorf("power on %s: %w", c.adapter, err)
	}
	res.On = c.poweredState(adapter)
	c.logger.WithFields(logrus.Fields{"adapter": c.adapter, "state": res.On}).Debug("Adapter powered on")
	if err := sleep(ctx, c.clock, settle); err != nil {
		return res, err
	}

	if !c.restartService {
		return res, nil
	}

	systemd := c.object(systemdBus, systemdPath)
	call := systemd.CallWithContext(ctx, systemdManager+".RestartUnit", 0, bluetoothUnit, "replace")
	if call.Err != nil {
		return res, fmt.Errorf("restart %s: %w", bluetoothUnit, call.Err)
	}
	res.Restarted = true
	c.logger.WithField("unit", bluetoothUnit).Info("Bluetooth service restarted")

	return res, sleep(ctx, c.clock, settle)
}

// ForceDisconnect drops the adapter's connection to address. Unknown or already
// disconnected devices are not an error.
func (c *DBusControl) ForceDisconnect(ctx context.Context, address string) error {
	dev := c.object(bluezBus, devicePath(c.adapter, address))
	call := dev.CallWithContext(ctx, bluezDevice1+".Disconnect", 0)
	if call.Err == nil {
		return nil
	}
	switch dbusErrorName(call.Err) {
	case errUnknownObj, errNotConnected:
		c.logger.WithField("address", address).Debug("Device not connected at adapter level")
		return nil
	}
	return fmt.Errorf("disconnect %s: %w", address, call.Err)
}

func (c *DBusControl) poweredState(adapter busObject) string {
	v, err := adapter.GetProperty(bluezAdapter1 + ".Powered")
	if err != nil {
		return "unknown"
	}
	if on, ok := v.Value().(bool); ok && on {
		return "on"
	}
	return "off"
}

func adapterPath(adapter string) dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + adapter)
}

// devicePath converts "AA:BB:CC:DD:EE:FF" into /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF.
func devicePath(adapter, address string) dbus.ObjectPath {
	dev := strings.ReplaceAll(strings.ToUpper(address), ":", "_")
	return dbus.ObjectPath(fmt.Sprintf("/org/bluez/%s/dev_%s", adapter, dev))
}

func dbusErrorName(err error) string {
	var byValue dbus.Error
	if errors.As(err, &byValue) {
		return byValue.Name
	}
	var byPtr *dbus.Error
	if errors.As(err, &byPtr) {
		return byPtr.Name
	}
	return ""
}
