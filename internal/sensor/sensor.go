// Package sensor implements the per-device session protocol for LYWSD02 and
// LYWSD03MMC thermometers.
//
// A Link owns one device. Every operation runs inside a session: the radio
// link is connected when the outermost session starts and disconnected when it
// ends, whatever the outcome. Sessions nest; nested scopes reuse the open
// connection. Recoverable transport failures are retried by the outermost scope
// within a bounded tries/resets budget, power cycling the adapter between rounds.
package sensor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/lyfleet/internal/clock"
	"github.com/srg/lyfleet/internal/codec"
	"github.com/srg/lyfleet/internal/device"
)

// Retry budgets. A single-use link gives up on the first recoverable failure.
const (
	ReusableTries  = 6
	ReusableResets = 3
	SingleTries    = 1
	SingleResets   = 1
)

// DefaultSettleDelay is how long the adapter is left alone after each power transition.
const DefaultSettleDelay = 2 * time.Second

// Reading is one live measurement. Voltage and Battery are only reported by the rich variant.
// Battery is an estimate and may fall outside [0, 100].
type Reading struct {
	Temperature float64  `json:"temperature"`
	Humidity    int      `json:"humidity"`
	Voltage     *float64 `json:"voltage,omitempty"`
	Battery     *float64 `json:"battery,omitempty"`
}

func readingFromSample(s codec.Sample) Reading {
	return Reading{Temperature: s.Temperature, Humidity: s.Humidity, Voltage: s.Voltage, Battery: s.Battery}
}

// HistoryRecord is one hourly min/max record with its reconstructed absolute timestamp.
type HistoryRecord struct {
	Index          uint32    `json:"index"`
	Timestamp      time.Time `json:"timestamp"`
	MinTemperature float64   `json:"min_temperature"`
	MinHumidity    int       `json:"min_humidity"`
	MaxTemperature float64   `json:"max_temperature"`
	MaxHumidity    int       `json:"max_humidity"`
}

// State is the session state of a Link.
type State int32

const (
	Idle State = iota
	Connecting
	Connected
	Subscribing
	AwaitingNotification
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Subscribing:
		return "subscribing"
	case AwaitingNotification:
		return "awaiting_notification"
	case Disconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// Options configure a Link. Zero values select the variant defaults.
type Options struct {
	Variant device.Variant

	// NotificationTimeout bounds every wait for a notification.
	NotificationTimeout time.Duration
	// ConnectTimeout bounds link establishment; defaults to NotificationTimeout.
	ConnectTimeout time.Duration

	// Reusable links get the larger retry budget.
	Reusable bool
	Tries    int
	Resets   int

	// Control is used for forced disconnects and adapter power cycles. Optional.
	Control     device.RadioControl
	SettleDelay time.Duration

	Clock  clock.Clock
	Logger *logrus.Logger
}

func (o Options) withDefaults() Options {
	if o.Variant == 0 {
		o.Variant = device.VariantRich
	}
	p := profileOf(o.Variant)
	if o.NotificationTimeout <= 0 {
		o.NotificationTimeout = p.notificationTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = o.NotificationTimeout
	}
	if o.Tries <= 0 {
		o.Tries = SingleTries
		if o.Reusable {
			o.Tries = ReusableTries
		}
	}
	if o.Resets <= 0 {
		o.Resets = SingleResets
		if o.Reusable {
			o.Resets = ReusableResets
		}
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = DefaultSettleDelay
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = logrus.New()
	}
	return o
}

// Link is the session state machine of one sensor.
// Operations on a Link are serialized; State may be read concurrently.
type Link struct {
	address string
	radio   device.RadioLink
	opts    Options
	profile profile
	clock   clock.Clock
	logger  *logrus.Entry

	mu    sync.Mutex
	depth atomic.Int32
	state atomic.Int32

	tries  int
	resets int

	cacheMu   sync.Mutex
	startTime *time.Time
	tzOffset  *int
}

// New creates a Link for the device at address, talking through radio.
func New(address string, radio device.RadioLink, opts Options) *Link {
	opts = opts.withDefaults()
	return &Link{
		address: address,
		radio:   radio,
		opts:    opts,
		profile: profileOf(opts.Variant),
		clock:   opts.Clock,
		logger: opts.Logger.WithFields(logrus.Fields{
			"address": address,
			"variant": opts.Variant.String(),
		}),
		tries:  opts.Tries,
		resets: opts.Resets,
	}
}

// Address returns the device address.
func (l *Link) Address() string { return l.address }

// Variant returns the device variant.
func (l *Link) Variant() device.Variant { return l.opts.Variant }

// State returns the current session state.
func (l *Link) State() State { return State(l.state.Load()) }

// Depth returns the current session nesting depth.
func (l *Link) Depth() int { return int(l.depth.Load()) }

func (l *Link) setState(s State) { l.state.Store(int32(s)) }

type sessionKey struct{ l *Link }

func (l *Link) inSession(ctx context.Context) bool {
	return ctx.Value(sessionKey{l}) != nil
}
