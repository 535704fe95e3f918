package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/lyfleet/internal/device"
	"github.com/srg/lyfleet/internal/radioctl"
	"golang.org/x/sync/errgroup"
)

// PollOne reads one device and folds the outcome into its state. Device failures are
// absorbed; the only errors are ErrUnknownDevice and a done ctx, in which case the
// record is left untouched.
func (m *Manager) PollOne(ctx context.Context, id string) error {
	rec, ok := m.records.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}

	start := m.clock.Now()
	reading, err := rec.reader.Poll(ctx)
	end := m.clock.Now()

	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	logger := m.logger.WithFields(logrus.Fields{"id": rec.id, "address": rec.address})

	responseTime := end.Sub(start).Seconds()
	if responseTime < 0 {
		logger.WithField("elapsed", end.Sub(start)).Debug("Clock stepped back during poll, using median response time")
		responseTime = m.window.Median()
	}

	excepted := err != nil
	if excepted {
		m.logPollError(ctx, logger, rec, err)
	}

	rec.mu.Lock()
	prevQoS := rec.state.Quality
	if !excepted {
		temperature, humidity := reading.Temperature, reading.Humidity
		rec.state.Temperature = &temperature
		rec.state.Humidity = &humidity
		rec.state.Voltage = reading.Voltage
		if reading.Battery != nil {
			rec.state.Battery = *reading.Battery
		}
		rec.state.LastError = ""
	}
	soc := rec.state.Battery
	if excepted {
		// the last figure is no longer trustworthy
		rec.state.Battery /= 2
		rec.state.LastError = err.Error()
	}
	rec.state.DateTime = end
	rec.state.Epoch = end.Unix()

	quality := 0
	if rec.state.Temperature != nil {
		reference := m.window.add(responseTime)
		quality = qos(m.policy, soc, responseTime, reference, prevQoS, excepted)
	}
	rec.state.Quality = quality

	if excepted || quality < m.policy.FailQoS {
		rec.control.FailStreak++
	} else {
		rec.control.FailStreak = max(0, rec.control.FailStreak-1)
	}
	streak := rec.control.FailStreak
	rec.mu.Unlock()

	entry := logger.WithFields(logrus.Fields{
		"quality":       quality,
		"fail_streak":   streak,
		"response_time": fmt.Sprintf("%.1fs", responseTime),
	})
	if excepted || quality < m.policy.WarningQoS {
		entry.Info("Device polled")
	} else {
		entry.Debug("Device polled")
	}

	if m.updates.ForceSend(rec.snapshot()) {
		logger.Debug("State update dropped, consumer is behind")
	}
	return nil
}

func (m *Manager) logPollError(ctx context.Context, logger *logrus.Entry, rec *record, err error) {
	switch device.Kind(err) {
	case device.ErrTimeout:
		logger.WithError(err).Warn("Device timed out")
	case device.ErrConnect:
		logger.WithError(err).Error("Could not connect to device")
	default:
		logger.WithError(err).Error("Device poll failed")
		return
	}

	// a device that timed out or refused the link may still be held open by the adapter
	if m.control == nil {
		return
	}
	if derr := m.control.ForceDisconnect(ctx, rec.address); derr != nil && !errors.Is(derr, device.ErrUnsupported) {
		logger.WithError(derr).Debug("Forced disconnect failed")
	}
}

// PollAll polls every device that is not on hold, then evaluates fleet failures.
// Device failures never surface; a done ctx stops the cycle and is returned.
func (m *Manager) PollAll(ctx context.Context) error {
	m.pollLock.Lock()
	defer m.pollLock.Unlock()

	now := m.clock.Now()
	var due []*record
	held := 0
	m.records.Range(func(_ string, rec *record) bool {
		rec.mu.RLock()
		next := rec.control.NextEligibleAt
		rec.mu.RUnlock()
		if now.Before(next) {
			held++
			return true
		}
		due = append(due, rec)
		return true
	})

	m.logger.WithFields(logrus.Fields{"due": len(due), "held": held}).Debug("Starting poll cycle")

	g := new(errgroup.Group)
	g.SetLimit(max(1, m.policy.Concurrency))
	for _, rec := range due {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := m.PollOne(ctx, rec.id); err != nil {
				return err
			}
			rec.mu.Lock()
			rec.control.NextEligibleAt = m.clock.Now()
			rec.mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, ErrUnknownDevice) {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.HandleFails(ctx)
	return nil
}

// HandleFails puts chronically failing devices on hold and resets the radio when at
// least ResetFraction of the fleet is failing and the cooldown has passed.
func (m *Manager) HandleFails(ctx context.Context) {
	now := m.clock.Now()
	total, failing := 0, 0

	m.records.Range(func(_ string, rec *record) bool {
		total++

		rec.mu.Lock()
		streak := rec.control.FailStreak
		if streak >= m.policy.HoldFails {
			rec.control.NextEligibleAt = now.Add(m.policy.HoldDuration)
			rec.control.FailStreak = max(0, streak-m.policy.HoldRelief)
		}
		next := rec.control.NextEligibleAt
		rec.mu.Unlock()

		if streak >= m.policy.HoldFails {
			m.logger.WithFields(logrus.Fields{
				"id":          rec.id,
				"fail_streak": streak,
				"until":       next.Format(time.RFC3339),
			}).Warn("Putting device on hold")
		}
		if streak > 0 {
			failing++
		}
		return true
	})

	if failing == 0 {
		return
	}

	fields := logrus.Fields{"failing": failing, "total": total}
	if float64(failing) < m.policy.ResetFraction*float64(total) {
		m.logger.WithFields(fields).Info("Devices failing")
		return
	}

	m.resetMu.Lock()
	defer m.resetMu.Unlock()
	if now.Before(m.resetAllowedAt) {
		m.logger.WithFields(fields).WithField("next_reset", m.resetAllowedAt.Format(time.RFC3339)).
			Info("Devices failing, radio reset on cooldown")
		return
	}

	if m.control == nil {
		m.logger.WithFields(fields).Warn("Too many devices failing, no radio control configured")
		m.resetAllowedAt = now.Add(m.policy.ResetCooldown)
		return
	}

	m.logger.WithFields(fields).Warn("Too many devices failing, resetting radio")
	res, err := m.control.PowerCycle(ctx, m.settle)
	if errors.Is(err, radioctl.ErrCooldown) {
		m.logger.WithFields(fields).WithError(err).Info("Radio was reset recently, skipping")
		return
	}
	m.resetAllowedAt = now.Add(m.policy.ResetCooldown)
	m.resets++
	if err != nil {
		m.logger.WithError(err).Error("Radio reset failed")
		return
	}
	m.logger.WithFields(logrus.Fields{
		"off":       res.Off,
		"on":        res.On,
		"restarted": res.Restarted,
	}).Info("Radio reset")
}
