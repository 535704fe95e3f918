package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/srg/lyfleet/internal/device"
)

// Write records one WriteCharacteristic call on a FakeLink.
type Write struct {
	UUID    string
	Data    []byte
	Confirm bool
}

// FakeLink is a scripted device.RadioLink. Characteristic values, notification payloads
// and failures are queued up front; the fake never sleeps, an empty notification queue
// behaves like an expired wait.
type FakeLink struct {
	mu sync.Mutex

	connected   bool
	connectErrs []error
	values      map[string][]byte
	readErrs    map[string][]error
	subErrs     map[string][]error
	scripted    map[string][][]byte
	handlers    map[string]func([]byte)
	pending     []pendingNotification
	waitErrs    []error
	onWait      func()

	ConnectCalls    int
	Disconnects     int // disconnects of a live connection
	DisconnectCalls int
	Subscribes      []string
	Waits           int
	Writes          []Write
}

type pendingNotification struct {
	uuid string
	data []byte
}

var _ device.RadioLink = (*FakeLink)(nil)

// NewFakeLink creates a fake with no characteristics.
func NewFakeLink() *FakeLink {
	return &FakeLink{
		values:   make(map[string][]byte),
		readErrs: make(map[string][]error),
		subErrs:  make(map[string][]error),
		scripted: make(map[string][][]byte),
		handlers: make(map[string]func([]byte)),
	}
}

// WithValue sets the value returned by ReadCharacteristic.
func (f *FakeLink) WithValue(uuid string, data []byte) *FakeLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[device.NormalizeUUID(uuid)] = data
	return f
}

// WithNotifications queues payloads that are delivered, one per wait, once uuid is subscribed.
func (f *FakeLink) WithNotifications(uuid string, payloads ...[]byte) *FakeLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := device.NormalizeUUID(uuid)
	f.scripted[key] = append(f.scripted[key], payloads...)
	return f
}

// WithConnectErrors makes the next Connect calls fail in order. A nil entry is a successful connect.
func (f *FakeLink) WithConnectErrors(errs ...error) *FakeLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErrs = append(f.connectErrs, errs...)
	return f
}

// WithReadErrors makes the next reads of uuid fail in order.
func (f *FakeLink) WithReadErrors(uuid string, errs ...error) *FakeLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := device.NormalizeUUID(uuid)
	f.readErrs[key] = append(f.readErrs[key], errs...)
	return f
}

// WithSubscribeErrors makes the next subscriptions to uuid fail in order.
func (f *FakeLink) WithSubscribeErrors(uuid string, errs ...error) *FakeLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := device.NormalizeUUID(uuid)
	f.subErrs[key] = append(f.subErrs[key], errs...)
	return f
}

// WithWaitErrors makes the next waits fail in order. A nil entry falls through to normal delivery.
func (f *FakeLink) WithWaitErrors(errs ...error) *FakeLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waitErrs = append(f.waitErrs, errs...)
	return f
}

// OnWait installs a hook run at the start of every wait, e.g. to move a fake clock.
func (f *FakeLink) OnWait(fn func()) *FakeLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onWait = fn
	return f
}

func (f *FakeLink) Connect(_ context.Context, _ string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ConnectCalls++
	if f.connected {
		return device.ErrAlreadyConnected
	}
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		if err != nil {
			return err
		}
	}
	f.connected = true
	return nil
}

func (f *FakeLink) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.DisconnectCalls++
	if f.connected {
		f.Disconnects++
	}
	f.connected = false
	f.handlers = make(map[string]func([]byte))

	// undelivered payloads go back to the script for the next subscription
	requeued := make(map[string][][]byte)
	for _, n := range f.pending {
		requeued[n.uuid] = append(requeued[n.uuid], n.data)
	}
	for key, payloads := range requeued {
		f.scripted[key] = append(payloads, f.scripted[key]...)
	}
	f.pending = nil
	return nil
}

func (f *FakeLink) ReadCharacteristic(uuid string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return nil, device.ErrNotConnected
	}
	key := device.NormalizeUUID(uuid)
	if err := pop(f.readErrs, key); err != nil {
		return nil, err
	}
	v, ok := f.values[key]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUID: uuid}
	}
	return v, nil
}

func (f *FakeLink) WriteCharacteristic(uuid string, data []byte, confirm bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return device.ErrNotConnected
	}
	key := device.NormalizeUUID(uuid)
	f.Writes = append(f.Writes, Write{UUID: key, Data: data, Confirm: confirm})
	f.values[key] = data
	return nil
}

func (f *FakeLink) SubscribeNotifications(uuid string, handler func([]byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return device.ErrNotConnected
	}
	key := device.NormalizeUUID(uuid)
	if err := pop(f.subErrs, key); err != nil {
		return err
	}
	f.Subscribes = append(f.Subscribes, key)
	f.handlers[key] = handler
	for _, data := range f.scripted[key] {
		f.pending = append(f.pending, pendingNotification{uuid: key, data: data})
	}
	delete(f.scripted, key)
	return nil
}

func (f *FakeLink) WaitForNotification(_ time.Duration) (bool, error) {
	f.mu.Lock()
	hook := f.onWait
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	f.Waits++
	if !f.connected {
		f.mu.Unlock()
		return false, device.ErrNotConnected
	}
	if len(f.waitErrs) > 0 {
		err := f.waitErrs[0]
		f.waitErrs = f.waitErrs[1:]
		if err != nil {
			f.mu.Unlock()
			return false, err
		}
	}
	if len(f.pending) == 0 {
		f.mu.Unlock()
		return false, nil
	}
	n := f.pending[0]
	f.pending = f.pending[1:]
	handler := f.handlers[n.uuid]
	f.mu.Unlock()

	if handler != nil {
		handler(n.data)
	}
	return true, nil
}

// Connected reports whether the fake transport is currently connected.
func (f *FakeLink) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func pop(m map[string][]error, key string) error {
	errs := m[key]
	if len(errs) == 0 {
		return nil
	}
	m[key] = errs[1:]
	return errs[0]
}
