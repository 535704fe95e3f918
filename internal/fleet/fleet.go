// Package fleet polls a set of sensors and keeps a reliability posture for each:
// last known reading, a quality score, a failure streak and a hold schedule.
// When half the fleet is failing the shared radio is reset, at most once per cooldown.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/lyfleet/internal/clock"
	"github.com/srg/lyfleet/internal/device"
	"github.com/srg/lyfleet/internal/sensor"
)

// ErrUnknownDevice is returned for ids that were never subscribed.
var ErrUnknownDevice = errors.New("unknown device")

// DefaultUpdatesBuffer is the capacity of the Updates stream.
const DefaultUpdatesBuffer = 256

// Reader takes one reading from a device.
type Reader interface {
	Poll(ctx context.Context) (sensor.Reading, error)
}

// ReaderFactory builds the Reader for a newly subscribed device.
type ReaderFactory func(address string, variant device.Variant) (Reader, error)

// Control is the scheduling part of a record.
type Control struct {
	NextEligibleAt time.Time `json:"next_eligible_at"`
	FailStreak     int       `json:"fail_streak"`
}

// State is a snapshot of one device. Reading fields stay at their last good values
// after a failed poll; they are nil until the first success.
type State struct {
	ID          string         `json:"id"`
	Address     string         `json:"address"`
	Variant     device.Variant `json:"variant"`
	Quality     int            `json:"quality"`
	Temperature *float64       `json:"temperature,omitempty"`
	Humidity    *int           `json:"humidity,omitempty"`
	Voltage     *float64       `json:"voltage,omitempty"`
	Battery     float64        `json:"battery"`
	DateTime    time.Time      `json:"datetime"`
	Epoch       int64          `json:"epoch"`
	LastError   string         `json:"last_error,omitempty"`
	Control     Control        `json:"control"`
}

// Held reports whether the device is on hold at now.
func (s State) Held(now time.Time) bool {
	return now.Before(s.Control.NextEligibleAt)
}

// record is written only by the poll of its own device. Pointer fields of state are
// replaced on update, never mutated, so snapshots may share them.
type record struct {
	id      string
	address string
	variant device.Variant
	reader  Reader

	mu      sync.RWMutex
	state   State
	control Control
}

func (r *record) snapshot() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.state
	s.Control = r.control
	return s
}

// Options configure a Manager.
type Options struct {
	Policy  Policy
	Factory ReaderFactory
	// Control performs fleet-wide radio resets and forced disconnects. Optional.
	Control device.RadioControl
	// SettleDelay is passed to Control on every fleet-wide reset.
	SettleDelay time.Duration
	Clock       clock.Clock
	Logger      *logrus.Logger
}

// Manager owns the device registry. State queries are safe at any time,
// including while a poll is updating the queried record.
type Manager struct {
	policy  Policy
	factory ReaderFactory
	control device.RadioControl
	settle  time.Duration
	clock   clock.Clock
	logger  *logrus.Logger

	records  *hashmap.Map[string, *record]
	window   *responseWindow
	updates  *ringChannel[State]
	pollLock sync.Mutex

	resetMu        sync.Mutex
	resetAllowedAt time.Time
	resets         int
}

// NewManager creates an empty fleet.
func NewManager(opts Options) (*Manager, error) {
	if opts.Factory == nil {
		return nil, fmt.Errorf("fleet: reader factory is required")
	}
	if opts.Policy == (Policy{}) {
		opts.Policy = DefaultPolicy()
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = sensor.DefaultSettleDelay
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	return &Manager{
		policy:  opts.Policy,
		factory: opts.Factory,
		control: opts.Control,
		settle:  opts.SettleDelay,
		clock:   opts.Clock,
		logger:  opts.Logger,
		records: hashmap.New[string, *record](),
		window:  newResponseWindow(opts.Policy.ResponseWindow, opts.Policy.ReferenceResponse.Seconds()),
		updates: newRingChannel[State](DefaultUpdatesBuffer),
	}, nil
}

// Subscribe registers a device. id defaults to the address; subscribing an existing id
// replaces its record.
func (m *Manager) Subscribe(address, id string, variant device.Variant) error {
	address = strings.ToUpper(strings.TrimSpace(address))
	if address == "" {
		return fmt.Errorf("%w: empty address", device.ErrValue)
	}
	if id == "" {
		id = address
	}

	reader, err := m.factory(address, variant)
	if err != nil {
		return fmt.Errorf("failed to create link for %s: %w", address, err)
	}

	now := m.clock.Now()
	rec := &record{
		id:      id,
		address: address,
		variant: variant,
		reader:  reader,
		state: State{
			ID:      id,
			Address: address,
			Variant: variant,
			Quality: m.policy.InitialQoS,
			Battery: m.policy.InitialBattery,
		},
		control: Control{NextEligibleAt: now},
	}
	m.records.Set(id, rec)
	m.window.add(m.policy.ReferenceResponse.Seconds())

	m.logger.WithFields(logrus.Fields{
		"id":      id,
		"address": address,
		"variant": variant.String(),
	}).Info("Subscribed to device")
	return nil
}

// Unsubscribe removes a device. Unknown ids are ignored.
func (m *Manager) Unsubscribe(id string) bool {
	removed := m.records.Del(id)
	if removed {
		m.logger.WithField("id", id).Info("Unsubscribed from device")
	}
	return removed
}

// State returns a snapshot of one device.
func (m *Manager) State(id string) (State, bool) {
	rec, ok := m.records.Get(id)
	if !ok {
		return State{}, false
	}
	return rec.snapshot(), true
}

// States returns snapshots of every device, ordered by id.
func (m *Manager) States() []State {
	states := make([]State, 0, m.records.Len())
	m.records.Range(func(_ string, rec *record) bool {
		states = append(states, rec.snapshot())
		return true
	})
	slices.SortFunc(states, func(a, b State) int { return strings.Compare(a.ID, b.ID) })
	return states
}

// Len returns the number of subscribed devices.
func (m *Manager) Len() int { return m.records.Len() }

// Updates streams the state of every device after each of its polls.
// Old updates are dropped when the consumer falls behind.
func (m *Manager) Updates() <-chan State { return m.updates.C() }

// MedianResponse returns the current reference latency.
func (m *Manager) MedianResponse() time.Duration {
	return time.Duration(m.window.Median() * float64(time.Second))
}

// Resets returns how many fleet-wide radio resets were triggered.
func (m *Manager) Resets() int {
	m.resetMu.Lock()
	defer m.resetMu.Unlock()
	return m.resets
}
