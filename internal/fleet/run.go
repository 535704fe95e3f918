package fleet

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/srg/lyfleet/internal/groutine"
)

// Run polls the fleet immediately and then every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	m.logger.WithField("interval", interval).Info("Fleet scheduler started")
	defer m.logger.Info("Fleet scheduler stopped")

	for {
		if err := m.PollAll(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			m.logger.WithError(err).Error("Poll cycle failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Start runs the scheduler on a named goroutine. The returned func blocks until it exits.
func (m *Manager) Start(ctx context.Context, interval time.Duration) (wait func()) {
	var wg sync.WaitGroup
	groutine.GoWait(ctx, &wg, "fleet-scheduler", func(ctx context.Context) {
		m.Run(ctx, interval)
	})
	return wg.Wait
}
