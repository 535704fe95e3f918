package goble

import (
	"context"
	"errors"

	"github.com/go-ble/ble"
	"github.com/srg/lyfleet/internal/device"
)

// Scan listens for advertisements until ctx is done. Cancellation is not an error.
func Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	if err := hostDevice(); err != nil {
		return err
	}
	err := ble.Scan(ctx, allowDup, func(a ble.Advertisement) {
		handler(device.Advertisement{
			Address:     a.Addr().String(),
			Name:        a.LocalName(),
			RSSI:        a.RSSI(),
			Connectable: a.Connectable(),
		})
	}, nil)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return NormalizeError(err)
	}
	return nil
}
