package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
	"github.com/srg/lyfleet/internal/device"
	"github.com/srg/lyfleet/internal/groutine"
)

// ----------------------------
// Configuration Constants
// ----------------------------

const (
	// DefaultNotificationBuffer is the number of undelivered notifications kept per link.
	// The oldest payload is overwritten once the buffer is full.
	DefaultNotificationBuffer uint32 = 64
)

// ----------------------------
// Device Factory
// ----------------------------

// DeviceFactory creates the host ble.Device (can be overridden in tests).
// The platform default is set in device_<os>.go.
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newPlatformDevice

var (
	hostOnce sync.Once
	hostErr  error
)

// hostDevice opens the HCI device once per process and installs it as the go-ble default.
func hostDevice() error {
	hostOnce.Do(func() {
		dev, err := DeviceFactory()
		if err != nil {
			hostErr = NormalizeError(err)
			return
		}
		ble.SetDefaultDevice(dev)
	})
	return hostErr
}

// ----------------------------
// BLE Link
// ----------------------------

type notification struct {
	uuid string
	data []byte
}

// Link is a device.RadioLink on top of go-ble. One Link serves one device at a time.
//
// Notifications arrive on go-ble's goroutine, are queued into a ring buffer and
// handed to the subscriber's handler from WaitForNotification, on the caller's goroutine.
type Link struct {
	logger *logrus.Logger

	connMutex  sync.RWMutex
	client     ble.Client
	address    string
	chars      map[string]*ble.Characteristic // by normalized UUID
	handlers   map[string]func([]byte)
	subscribed []*ble.Characteristic

	queue  mpmc.RichOverlappedRingBuffer[notification]
	signal chan struct{}
	ctx    context.Context
	cancel context.CancelCauseFunc
}

var _ device.RadioLink = (*Link)(nil)

// NewLink creates a disconnected link.
func NewLink(logger *logrus.Logger) *Link {
	return &Link{
		logger:   logger,
		chars:    make(map[string]*ble.Characteristic),
		handlers: make(map[string]func([]byte)),
		queue:    mpmc.NewOverlappedRingBuffer[notification](DefaultNotificationBuffer),
		signal:   make(chan struct{}, 1),
		ctx:      context.Background(),
	}
}

// Connect dials the device, discovers its profile and indexes the characteristics.
func (l *Link) Connect(ctx context.Context, address string, timeout time.Duration) error {
	l.connMutex.Lock()
	defer l.connMutex.Unlock()

	if strings.TrimSpace(address) == "" {
		return fmt.Errorf("device address is empty")
	}
	if l.client != nil {
		l.logger.WithField("address", address).Warn("Connection attempt while already connected")
		return device.ErrAlreadyConnected
	}

	if err := hostDevice(); err != nil {
		return fmt.Errorf("failed to create BLE device: %w", err)
	}

	l.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": timeout,
	}).Debug("Dialing BLE device...")

	connCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := ble.Dial(connCtx, ble.NewAddr(address))
	if err != nil {
		if connCtx.Err() != nil {
			return fmt.Errorf("failed to connect to device with address %q: %w", address, connCtx.Err())
		}
		return fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			l.logger.WithError(cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	chars := make(map[string]*ble.Characteristic)
	for _, svc := range profile.Services {
		for _, c := range svc.Characteristics {
			chars[device.NormalizeUUID(c.UUID.String())] = c
		}
	}

	l.client = client
	l.address = address
	l.chars = chars
	l.ctx, l.cancel = context.WithCancelCause(context.Background())

	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		linkCtx, linkCancel := l.ctx, l.cancel
		groutine.Go(context.Background(), "ble-link-monitor-"+address, func(context.Context) {
			select {
			case <-dc.Disconnected():
				l.logger.WithField("address", address).Debug("Peer reported disconnection")
				linkCancel(device.ErrNotConnected)
				l.wake()
			case <-linkCtx.Done():
			}
		})
	}

	l.logger.WithFields(logrus.Fields{
		"address":         address,
		"characteristics": len(chars),
	}).Debug("BLE device connected")
	return nil
}

// Disconnect unsubscribes everything and drops the connection. Disconnecting an idle link is a no-op.
func (l *Link) Disconnect() error {
	l.connMutex.Lock()
	client := l.client
	subscribed := l.subscribed
	cancel := l.cancel
	address := l.address

	l.client = nil
	l.cancel = nil
	l.subscribed = nil
	l.chars = make(map[string]*ble.Characteristic)
	l.handlers = make(map[string]func([]byte))
	l.connMutex.Unlock()

	if client == nil {
		return nil
	}
	if cancel != nil {
		cancel(nil)
	}

	for _, c := range subscribed {
		if err := NormalizeError(client.Unsubscribe(c, false)); err != nil {
			l.logger.WithError(err).WithField("char_uuid", c.UUID.String()).Debug("Failed to unsubscribe")
		}
	}
	l.drain()

	err := NormalizeError(client.CancelConnection())
	if err != nil {
		l.logger.WithError(err).WithField("address", address).Warn("BLE device disconnected with errors")
		return err
	}
	l.logger.WithField("address", address).Debug("BLE device disconnected")
	return nil
}

// ReadCharacteristic reads the current value of a characteristic.
func (l *Link) ReadCharacteristic(uuid string) ([]byte, error) {
	client, c, err := l.lookup(uuid)
	if err != nil {
		return nil, err
	}
	data, err := client.ReadCharacteristic(c)
	if err != nil {
		return nil, NormalizeError(err)
	}
	return data, nil
}

// WriteCharacteristic writes data, with a write response when confirm is set.
func (l *Link) WriteCharacteristic(uuid string, data []byte, confirm bool) error {
	client, c, err := l.lookup(uuid)
	if err != nil {
		return err
	}
	return NormalizeError(client.WriteCharacteristic(c, data, !confirm))
}

// SubscribeNotifications enables notifications for uuid. handler runs inside WaitForNotification.
func (l *Link) SubscribeNotifications(uuid string, handler func([]byte)) error {
	client, c, err := l.lookup(uuid)
	if err != nil {
		return err
	}

	key := device.NormalizeUUID(uuid)
	l.connMutex.Lock()
	l.handlers[key] = handler
	l.connMutex.Unlock()

	err = NormalizeError(client.Subscribe(c, false, func(data []byte) {
		payload := make([]byte, len(data))
		copy(payload, data)
		if overwrites, err := l.queue.EnqueueM(notification{uuid: key, data: payload}); err != nil {
			l.logger.WithError(err).Warn("Failed to queue notification")
			return
		} else if overwrites > 0 {
			l.logger.WithField("dropped", overwrites).Debug("Notification queue overflow, oldest dropped")
		}
		l.wake()
	}))
	if err != nil {
		return err
	}

	l.connMutex.Lock()
	l.subscribed = append(l.subscribed, c)
	l.connMutex.Unlock()

	l.logger.WithFields(logrus.Fields{
		"address":   l.address,
		"char_uuid": device.ShortenUUID(key),
	}).Debug("Subscribed to characteristic notifications")
	return nil
}

// WaitForNotification dispatches one queued notification to its handler.
// Payloads without a handler are dropped and the wait goes on.
// Returns false with a nil error when the timeout expires first.
func (l *Link) WaitForNotification(timeout time.Duration) (bool, error) {
	l.connMutex.RLock()
	connected := l.client != nil
	linkCtx := l.ctx
	l.connMutex.RUnlock()

	if !connected {
		return false, device.ErrNotConnected
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		for n, ok := l.next(); ok; n, ok = l.next() {
			if l.dispatch(n) {
				return true, nil
			}
		}

		select {
		case <-l.signal:
		case <-linkCtx.Done():
			if cause := context.Cause(linkCtx); cause != nil && cause != context.Canceled {
				return false, cause
			}
			return false, device.ErrNotConnected
		case <-timer.C:
			return false, nil
		}
	}
}

func (l *Link) lookup(uuid string) (ble.Client, *ble.Characteristic, error) {
	l.connMutex.RLock()
	defer l.connMutex.RUnlock()

	if l.client == nil {
		return nil, nil, device.ErrNotConnected
	}
	c, ok := l.chars[device.NormalizeUUID(uuid)]
	if !ok {
		return nil, nil, &device.NotFoundError{Resource: "characteristic", UUID: uuid}
	}
	return l.client, c, nil
}

func (l *Link) next() (notification, bool) {
	if l.queue.IsEmpty() {
		return notification{}, false
	}
	n, err := l.queue.Dequeue()
	if err != nil {
		return notification{}, false
	}
	return n, true
}

// dispatch reports whether n had a handler.
func (l *Link) dispatch(n notification) bool {
	l.connMutex.RLock()
	handler := l.handlers[n.uuid]
	l.connMutex.RUnlock()

	if handler == nil {
		l.logger.WithField("char_uuid", device.ShortenUUID(n.uuid)).Debug("Dropping notification without handler")
		return false
	}
	handler(n.data)
	return true
}

func (l *Link) wake() {
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *Link) drain() {
	for {
		if _, ok := l.next(); !ok {
			return
		}
	}
}
