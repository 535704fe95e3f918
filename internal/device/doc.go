// Package device defines the contracts between the sensor session logic and the radio:
// the RadioLink transport, the RadioControl adapter remediation, the characteristic
// UUIDs of the supported sensors and the error taxonomy surfaced to callers.
//
// Errors follow two layers:
//   - ConnectionError values describe transport state (not connected, already connected)
//   - LinkError wraps an error kind (ErrConnect, ErrTimeout, ErrProtocol,
//     ErrMalformedPayload, ErrValue) together with the underlying cause
package device
