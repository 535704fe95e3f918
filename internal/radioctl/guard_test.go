package radioctl_test

import (
	"context"
	"testing"
	"time"

	"github.com/srg/lyfleet/internal/clock"
	"github.com/srg/lyfleet/internal/device"
	"github.com/srg/lyfleet/internal/radioctl"
	"github.com/srg/lyfleet/internal/testutils"
	"github.com/srg/lyfleet/internal/testutils/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestGuard(t *testing.T) {
	// GOAL: Verify the guard lets at most one power cycle through per cooldown window
	//
	// TEST SCENARIO: cycle → cycle within cooldown (suppressed) → advance → cycle → clock steps back → cycle

	start := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	clk := clock.Fake(start)
	control := mocks.NewMockRadioControl(t)
	control.EXPECT().PowerCycle(mock.Anything, time.Second).
		Return(device.PowerCycleResult{Off: "off", On: "on"}, nil).Times(3)
	control.EXPECT().ForceDisconnect(mock.Anything, "A4:C1:38:00:11:22").Return(nil).Once()

	g := radioctl.NewGuard(control, time.Hour, clk, testutils.NewTestHelper(t).Logger)
	ctx := context.Background()

	res, err := g.PowerCycle(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "on", res.On)
	assert.Equal(t, start, g.Last())

	clk.Advance(30 * time.Minute)
	_, err = g.PowerCycle(ctx, time.Second)
	assert.ErrorIs(t, err, radioctl.ErrCooldown, "second reset within cooldown MUST be suppressed")

	clk.Advance(31 * time.Minute)
	_, err = g.PowerCycle(ctx, time.Second)
	require.NoError(t, err)

	clk.Set(start.Add(-time.Hour))
	_, err = g.PowerCycle(ctx, time.Second)
	require.NoError(t, err, "a clock stepping backwards MUST NOT block resets forever")

	require.NoError(t, g.ForceDisconnect(ctx, "A4:C1:38:00:11:22"))
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := radioctl.New(radioctl.Options{Backend: "bluetoothctl"})
	assert.ErrorIs(t, err, device.ErrUnsupported)
}
