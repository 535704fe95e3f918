package device_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/srg/lyfleet/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkError(t *testing.T) {
	t.Run("matches kind and cause", func(t *testing.T) {
		cause := errors.New("hci: le connection timeout")
		err := device.NewLinkError("connect", "A4:C1:38:00:00:01", device.ErrConnect, cause)

		assert.ErrorIs(t, err, device.ErrConnect, "kind MUST be matchable")
		assert.ErrorIs(t, err, cause, "cause MUST be preserved")
		assert.NotErrorIs(t, err, device.ErrTimeout)
		assert.Equal(t, "connect A4:C1:38:00:00:01: connect failed: hci: le connection timeout", err.Error())
	})

	t.Run("keeps inner kind when rewrapped", func(t *testing.T) {
		inner := device.NewLinkError("wait", "A4:C1:38:00:00:01", device.ErrTimeout, nil)
		outer := device.NewLinkError("reading", "A4:C1:38:00:00:01", device.ErrProtocol, inner)

		assert.ErrorIs(t, outer, device.ErrTimeout)
		assert.Equal(t, device.ErrTimeout, outer.Kind)
	})

	t.Run("survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("poll living-room: %w", device.NewLinkError("read", "", device.ErrMalformedPayload, nil))

		var le *device.LinkError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, "read", le.Op)
		assert.Equal(t, device.ErrMalformedPayload, device.Kind(err))
	})
}

func TestKind(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{"nil", nil, nil},
		{"unclassified", errors.New("boom"), nil},
		{"timeout", fmt.Errorf("x: %w", device.ErrTimeout), device.ErrTimeout},
		{"connect", device.NewLinkError("connect", "", device.ErrConnect, nil), device.ErrConnect},
		{"value", fmt.Errorf("%w: unit", device.ErrValue), device.ErrValue},
		{"connect timeout", device.NewLinkError("connect", "", device.ErrConnect, fmt.Errorf("%w: le connection", device.ErrTimeout)), device.ErrConnect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, device.Kind(tt.err))
		})
	}
}

func TestConnectionError(t *testing.T) {
	err := fmt.Errorf("%w: link dropped", device.ErrNotConnected)

	assert.ErrorIs(t, err, device.ErrNotConnected)
	assert.NotErrorIs(t, err, device.ErrAlreadyConnected)
	assert.True(t, device.IsConnectionState(err, device.NotConnected))
	assert.Equal(t, "not_connected: reason", (&device.ConnectionError{State: device.NotConnected, Msg: "reason"}).Error())
}

func TestParseVariant(t *testing.T) {
	tests := []struct {
		input    string
		expected device.Variant
		wantErr  bool
	}{
		{"2", device.VariantSimple, false},
		{"LYWSD02", device.VariantSimple, false},
		{"simple", device.VariantSimple, false},
		{"3", device.VariantRich, false},
		{"lywsd03mmc", device.VariantRich, false},
		{"", device.VariantRich, false},
		{"lywsd04", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := device.ParseVariant(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, device.ErrValue)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestVariant_TextRoundTrip(t *testing.T) {
	for _, v := range []device.Variant{device.VariantSimple, device.VariantRich} {
		text, err := v.MarshalText()
		require.NoError(t, err)

		var parsed device.Variant
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, v, parsed)
	}
}
