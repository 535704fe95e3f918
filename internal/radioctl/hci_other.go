//go:build !linux

package radioctl

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/lyfleet/internal/clock"
	"github.com/srg/lyfleet/internal/device"
)

// HCIControl is only functional on linux.
type HCIControl struct{}

func NewHCIControl(adapter string, _ clock.Clock, _ *logrus.Logger) (*HCIControl, error) {
	if _, err := adapterIndex(adapter); adapter != "" && err != nil {
		return nil, err
	}
	return &HCIControl{}, nil
}

func (h *HCIControl) PowerCycle(context.Context, time.Duration) (device.PowerCycleResult, error) {
	return device.PowerCycleResult{}, fmt.Errorf("%w: hci ioctls need linux", device.ErrUnsupported)
}

func (h *HCIControl) ForceDisconnect(context.Context, string) error {
	return fmt.Errorf("%w: hci ioctls need linux", device.ErrUnsupported)
}
