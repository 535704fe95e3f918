// Package radioctl switches the local Bluetooth adapter off and on again and tears
// down stale device connections. It backs the recovery path of sensor links and the
// fleet-wide reset of the fleet manager.
package radioctl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/srg/lyfleet/internal/clock"
)

// Backend names accepted by New.
const (
	BackendDBus = "dbus"
	BackendHCI  = "hci"
)

// DefaultAdapter is the adapter used when none is configured.
const DefaultAdapter = "hci0"

// ErrCooldown is returned by Guard when a power cycle was requested too soon after the last one.
var ErrCooldown = errors.New("radio reset suppressed during cooldown")

// sleep pauses for d on c. A done ctx is reported before and after the pause.
func sleep(ctx context.Context, c clock.Clock, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d > 0 {
		c.Sleep(d)
	}
	return ctx.Err()
}

// adapterIndex parses "hci3" into 3.
func adapterIndex(adapter string) (int, error) {
	var idx int
	if _, err := fmt.Sscanf(strings.TrimSpace(adapter), "hci%d", &idx); err != nil {
		return 0, fmt.Errorf("invalid adapter name %q: %w", adapter, err)
	}
	return idx, nil
}
