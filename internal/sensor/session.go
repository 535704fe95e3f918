package sensor

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/lyfleet/internal/device"
)

// Session runs fn inside a connected session. Calls made with the ctx passed to fn
// join the session instead of opening a new connection. The transport is disconnected
// once the outermost session returns, panics included.
func (l *Link) Session(ctx context.Context, fn func(ctx context.Context) error) error {
	return l.run(ctx, "session", fn)
}

// run is the entry point of every operation.
func (l *Link) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if l.inSession(ctx) {
		l.depth.Add(1)
		defer l.depth.Add(-1)
		if err := fn(ctx); err != nil {
			return l.classify(op, err)
		}
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ctx = context.WithValue(ctx, sessionKey{l}, struct{}{})
	l.tries, l.resets = l.opts.Tries, l.opts.Resets

	for {
		err := l.attempt(ctx, op, fn)
		if err == nil {
			return nil
		}
		if !l.recoverable(ctx, err) {
			return err
		}

		l.forceDisconnect(ctx)

		l.tries--
		if l.tries > 0 {
			l.logger.WithFields(logrus.Fields{
				"op":    op,
				"tries": l.tries,
			}).WithError(err).Debug("Retrying after transport failure")
			continue
		}

		l.resets--
		l.logger.WithFields(logrus.Fields{
			"op":     op,
			"resets": l.resets,
		}).WithError(err).Warn("Tries exhausted, power cycling radio")
		l.powerCycle(ctx)
		l.tries = l.opts.Tries

		if l.resets <= 0 {
			l.logger.WithField("op", op).WithError(err).Warn("Retry budget exhausted")
			return err
		}
	}
}

// attempt connects, runs fn at depth 1 and always disconnects.
func (l *Link) attempt(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := l.connect(ctx); err != nil {
		return err
	}

	l.depth.Store(1)
	defer func() {
		l.depth.Store(0)
		l.disconnect()
	}()

	if err := fn(ctx); err != nil {
		return l.classify(op, err)
	}
	return nil
}

func (l *Link) connect(ctx context.Context) error {
	l.setState(Connecting)
	l.logger.Debug("|-> connecting")

	if err := l.radio.Connect(ctx, l.address, l.opts.ConnectTimeout); err != nil {
		l.setState(Idle)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("connect %s: %w", l.address, ctxErr)
		}
		l.logger.WithError(err).Warn("Device connection failed")
		return device.NewLinkError("connect", l.address, device.ErrConnect, err)
	}

	l.setState(Connected)
	return nil
}

func (l *Link) disconnect() {
	l.setState(Disconnecting)
	l.logger.Debug("|-< disconnecting")
	if err := l.radio.Disconnect(); err != nil {
		l.logger.WithError(err).Debug("Disconnect reported an error")
	}
	l.setState(Idle)
}

// forceDisconnect tears down anything left half-open before the next attempt.
func (l *Link) forceDisconnect(ctx context.Context) {
	if err := l.radio.Disconnect(); err != nil {
		l.logger.WithError(err).Debug("Forced transport disconnect failed")
	}
	if l.opts.Control == nil {
		return
	}
	if err := l.opts.Control.ForceDisconnect(ctx, l.address); err != nil {
		l.logger.WithError(err).Debug("Forced adapter disconnect failed")
	}
}

func (l *Link) powerCycle(ctx context.Context) {
	if l.opts.Control == nil {
		return
	}
	res, err := l.opts.Control.PowerCycle(ctx, l.opts.SettleDelay)
	if err != nil {
		l.logger.WithError(err).Error("Radio power cycle failed")
		return
	}
	l.logger.WithFields(logrus.Fields{
		"off":       res.Off,
		"on":        res.On,
		"restarted": res.Restarted,
	}).Info("Radio power cycled")
}

// classify maps an in-session failure onto the error taxonomy.
func (l *Link) classify(op string, err error) error {
	var le *device.LinkError
	if errors.As(err, &le) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s %s: %w", op, l.address, err)
	}

	kind := device.ErrProtocol
	switch {
	case errors.Is(err, device.ErrTimeout):
		kind = device.ErrTimeout
	case errors.Is(err, device.ErrMalformedPayload):
		kind = device.ErrMalformedPayload
	case errors.Is(err, device.ErrValue):
		kind = device.ErrValue
	}

	if kind == device.ErrProtocol {
		l.logger.WithField("op", op).WithError(err).Error("Unexpected transport error")
	}
	return device.NewLinkError(op, l.address, kind, err)
}

// recoverable reports whether err is worth another attempt: link establishment
// failures and transport faults. Timeouts, bad input and bad payloads are final.
func (l *Link) recoverable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var nf *device.NotFoundError
	if errors.As(err, &nf) {
		return false
	}
	kind := device.Kind(err)
	return kind == device.ErrConnect || kind == device.ErrProtocol
}
