package radioctl

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/lyfleet/internal/clock"
	"github.com/srg/lyfleet/internal/device"
)

// Options select and configure a backend.
type Options struct {
	Backend        string
	Adapter        string
	RestartService bool
	// Cooldown is the minimum time between two power cycles; zero disables the guard.
	Cooldown time.Duration
	Clock    clock.Clock
	Logger   *logrus.Logger
}

// New creates the configured backend wrapped in a Guard.
func New(opts Options) (device.RadioControl, error) {
	var (
		control device.RadioControl
		err     error
	)
	switch opts.Backend {
	case "", BackendDBus:
		control, err = NewDBusControl(DBusOptions{
			Adapter:        opts.Adapter,
			RestartService: opts.RestartService,
			Clock:          opts.Clock,
			Logger:         opts.Logger,
		})
	case BackendHCI:
		control, err = NewHCIControl(opts.Adapter, opts.Clock, opts.Logger)
	default:
		return nil, fmt.Errorf("%w: radio backend %q", device.ErrUnsupported, opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	if opts.Cooldown <= 0 {
		return control, nil
	}
	return NewGuard(control, opts.Cooldown, opts.Clock, opts.Logger), nil
}
