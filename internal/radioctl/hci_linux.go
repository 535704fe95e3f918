//go:build linux

package radioctl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/lyfleet/internal/clock"
	"github.com/srg/lyfleet/internal/device"
	"golang.org/x/sys/unix"
)

// _IOW('H', 201, int) and _IOW('H', 202, int) from the kernel's hci_sock.h.
const (
	hciDevUp   = 0x400448c9
	hciDevDown = 0x400448ca
)

// HCIControl toggles the adapter with raw HCI ioctls. Needs CAP_NET_ADMIN.
type HCIControl struct {
	adapter string
	index   int
	clock   clock.Clock
	logger  *logrus.Logger
}

var _ device.RadioControl = (*HCIControl)(nil)

// NewHCIControl creates a control for adapter, e.g. "hci0".
func NewHCIControl(adapter string, c clock.Clock, logger *logrus.Logger) (*HCIControl, error) {
	if adapter == "" {
		adapter = DefaultAdapter
	}
	idx, err := adapterIndex(adapter)
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &HCIControl{adapter: adapter, index: idx, clock: c, logger: logger}, nil
}

func (h *HCIControl) PowerCycle(ctx context.Context, settle time.Duration) (device.PowerCycleResult, error) {
	var res device.PowerCycleResult

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.BTPROTO_HCI)
	if err != nil {
		return res, fmt.Errorf("%w: can't create hci socket: %v", device.ErrBluetoothOff, err)
	}
	defer func() { _ = unix.Close(fd) }()

	if err := unix.IoctlSetInt(fd, hciDevDown, h.index); err != nil {
		return res, fmt.Errorf("hci device down %s: %w", h.adapter, err)
	}
	res.Off = "down"
	if err := sleep(ctx, h.clock, settle); err != nil {
		return res, err
	}

	if err := unix.IoctlSetInt(fd, hciDevUp, h.index); err != nil && !errors.Is(err, unix.EALREADY) {
		return res, fmt.Errorf("hci device up %s: %w", h.adapter, err)
	}
	res.On = "up"
	h.logger.WithField("adapter", h.adapter).Info("Adapter reset via HCI")

	return res, sleep(ctx, h.clock, settle)
}

// ForceDisconnect is not available at the HCI layer without a connection handle.
func (h *HCIControl) ForceDisconnect(context.Context, string) error {
	return fmt.Errorf("%w: hci backend cannot disconnect by address", device.ErrUnsupported)
}
