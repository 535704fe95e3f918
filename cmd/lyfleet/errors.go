package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/srg/lyfleet/internal/device"
	"github.com/srg/lyfleet/internal/radioctl"
	"github.com/srg/lyfleet/pkg/config"
)

// Command-level errors
var (
	// ErrUnknownDevice is returned when a device argument is neither an address nor a configured id.
	ErrUnknownDevice = errors.New("unknown device")
)

// FormatUserError turns an error chain into a one-line message with a hint where one helps.
func FormatUserError(err error) string {
	var hint string
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		hint = "make sure Bluetooth is enabled and the adapter is available"
	case errors.Is(err, radioctl.ErrCooldown):
		hint = "the adapter was power cycled recently; try again later"
	case errors.Is(err, device.ErrTimeout):
		hint = "the device is in range but did not answer; move it closer or retry"
	case errors.Is(err, device.ErrConnect):
		hint = "the device could not be reached; check the address and that it is powered"
	case errors.Is(err, device.ErrMalformedPayload):
		hint = "the device sent an unexpected payload; check --variant"
	case errors.Is(err, config.ErrInvalid):
		hint = "fix the configuration file"
	case errors.Is(err, os.ErrPermission):
		hint = "radio control needs root or CAP_NET_ADMIN"
	}
	if hint == "" {
		return err.Error()
	}
	return fmt.Sprintf("%v (%s)", err, hint)
}
