package radioctl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/lyfleet/internal/clock"
	"github.com/srg/lyfleet/internal/device"
)

// Guard serializes power cycles across every user of one adapter and drops
// requests that arrive within cooldown of the previous cycle.
// ForceDisconnect is passed through.
type Guard struct {
	control  device.RadioControl
	cooldown time.Duration
	clock    clock.Clock
	logger   *logrus.Logger

	mu   sync.Mutex
	last time.Time
}

var _ device.RadioControl = (*Guard)(nil)

// NewGuard wraps control.
func NewGuard(control device.RadioControl, cooldown time.Duration, c clock.Clock, logger *logrus.Logger) *Guard {
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Guard{control: control, cooldown: cooldown, clock: c, logger: logger}
}

// PowerCycle runs the wrapped power cycle unless one completed less than cooldown ago,
// in which case it fails with ErrCooldown.
func (g *Guard) PowerCycle(ctx context.Context, settle time.Duration) (device.PowerCycleResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	if !g.last.IsZero() && now.Sub(g.last) < g.cooldown && !now.Before(g.last) {
		next := g.last.Add(g.cooldown)
		g.logger.WithField("next_allowed", next.Format(time.RFC3339)).Debug("Radio reset suppressed")
		return device.PowerCycleResult{}, fmt.Errorf("%w until %s", ErrCooldown, next.Format(time.RFC3339))
	}

	res, err := g.control.PowerCycle(ctx, settle)
	g.last = g.clock.Now()
	return res, err
}

func (g *Guard) ForceDisconnect(ctx context.Context, address string) error {
	return g.control.ForceDisconnect(ctx, address)
}

// Last returns when the last power cycle finished, zero if none ran.
func (g *Guard) Last() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}
