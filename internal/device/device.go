package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// NotFoundError represents an error when a characteristic is missing from the discovered profile
type NotFoundError struct {
	Resource string // "service", "characteristic"
	UUID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.UUID)
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
)

// Error kinds surfaced to callers of a sensor link.
var (
	// ErrConnect means the link to the device could not be established.
	ErrConnect = errors.New("connect failed")
	// ErrTimeout means the device was reachable but did not answer in time.
	// Flaky sensors produce this routinely.
	ErrTimeout = errors.New("timeout")
	// ErrProtocol is any other unexpected transport fault.
	ErrProtocol = errors.New("protocol error")
	// ErrMalformedPayload is returned when a payload is shorter than its encoding.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrValue is returned for invalid caller input, such as an unknown unit.
	ErrValue = errors.New("invalid value")

	ErrUnsupported  = errors.New("unsupported")
	ErrBluetoothOff = errors.New("bluetooth is turned off")
)

// LinkError carries the failing operation and device next to the error kind and its cause.
// errors.Is matches both Kind and the wrapped cause.
type LinkError struct {
	Op      string // "connect", "read", "subscribe", ...
	Address string
	Kind    error // one of ErrConnect, ErrTimeout, ErrProtocol, ErrMalformedPayload, ErrValue
	Err     error
}

func (e *LinkError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Address != "" {
		fmt.Fprintf(&b, " %s", e.Address)
	}
	if e.Kind != nil {
		fmt.Fprintf(&b, ": %v", e.Kind)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *LinkError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewLinkError builds a LinkError, keeping an existing kind when err already carries one.
func NewLinkError(op, address string, kind, err error) *LinkError {
	var le *LinkError
	if errors.As(err, &le) && le.Kind != nil {
		kind = le.Kind
	}
	return &LinkError{Op: op, Address: address, Kind: kind, Err: err}
}

// Kind returns the taxonomy kind of err, or nil when err is not classified.
// The kind recorded on a LinkError wins over kinds found deeper in its cause.
func Kind(err error) error {
	var le *LinkError
	if errors.As(err, &le) && le.Kind != nil {
		return le.Kind
	}
	for _, k := range []error{ErrTimeout, ErrConnect, ErrMalformedPayload, ErrValue, ErrProtocol} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// RadioLink is the BLE transport used by one sensor link.
// Implementations are not required to be safe for concurrent use; the sensor link serializes access.
type RadioLink interface {
	Connect(ctx context.Context, address string, timeout time.Duration) error
	Disconnect() error
	ReadCharacteristic(uuid string) ([]byte, error)
	WriteCharacteristic(uuid string, data []byte, confirm bool) error
	// SubscribeNotifications enables notifications for uuid. Payloads are handed to handler
	// from within WaitForNotification, on the waiting goroutine.
	SubscribeNotifications(uuid string, handler func([]byte)) error
	// WaitForNotification blocks until one notification was dispatched or the timeout expired.
	WaitForNotification(timeout time.Duration) (bool, error)
}

// PowerCycleResult reports what the adapter said when switched off and on again.
type PowerCycleResult struct {
	Off       string
	On        string
	Restarted bool // bluetooth service restarted as a last resort
}

// RadioControl performs adapter level remediation. Its effects are process wide.
type RadioControl interface {
	PowerCycle(ctx context.Context, settle time.Duration) (PowerCycleResult, error)
	ForceDisconnect(ctx context.Context, address string) error
}

// Variant is the device capability profile.
type Variant int

const (
	// VariantSimple is the LYWSD02: temperature and humidity, battery characteristic, writable clock.
	VariantSimple Variant = iota + 2
	// VariantRich is the LYWSD03MMC: adds voltage, reports history relative to boot, no visible clock.
	VariantRich
)

func (v Variant) String() string {
	switch v {
	case VariantSimple:
		return "lywsd02"
	case VariantRich:
		return "lywsd03mmc"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// ParseVariant accepts the model names as well as the short forms "2" and "3".
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "2", "v2", "lywsd02", "simple":
		return VariantSimple, nil
	case "", "3", "v3", "lywsd03", "lywsd03mmc", "rich":
		return VariantRich, nil
	default:
		return 0, fmt.Errorf("%w: unknown device variant %q", ErrValue, s)
	}
}

// MarshalText implements encoding.TextMarshaler so variants read well in YAML and JSON.
func (v Variant) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Variant) UnmarshalText(text []byte) error {
	parsed, err := ParseVariant(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
