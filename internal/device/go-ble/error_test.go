package goble

import (
	"errors"
	"testing"

	"github.com/srg/lyfleet/internal/device"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{"bluetooth off (darwin)", errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), device.ErrBluetoothOff},
		{"hci init", errors.New("can't init hci: no devices available"), device.ErrBluetoothOff},
		{"not connected", errors.New("Device Not Connected"), device.ErrNotConnected},
		{"peer disconnected", errors.New("disconnected"), device.ErrNotConnected},
		{"already connected", errors.New("device already connected"), device.ErrAlreadyConnected},
		{"att timeout", errors.New("ATT request timeout"), device.ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NormalizeError(tt.err)
			assert.ErrorIs(t, err, tt.expected)
			assert.Contains(t, err.Error(), tt.err.Error(), "original message MUST be preserved")
		})
	}

	assert.NoError(t, NormalizeError(nil))

	other := errors.New("att: invalid handle")
	assert.Same(t, other, NormalizeError(other), "unknown errors MUST pass through untouched")
}
