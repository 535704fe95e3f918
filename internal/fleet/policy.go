package fleet

import (
	"time"

	"github.com/mcuadros/go-defaults"
)

// Policy holds the tunables of QoS scoring, holds and radio resets.
type Policy struct {
	// InitialQoS seeds the quality of a new, unproven device.
	InitialQoS int `default:"33" yaml:"initial_qos"`
	// InitialBattery seeds the battery estimate until the first reading.
	InitialBattery float64 `default:"50" yaml:"initial_battery"`
	// WarningQoS in percent. An excepted poll scales the fresh score by sqrt(WarningQoS/100).
	WarningQoS int `default:"15" yaml:"warning_qos"`
	// FailQoS is the low-water mark below which a successful poll still counts as a failure.
	FailQoS int `default:"6" yaml:"fail_qos"`
	// QoSFloor snaps scores at or below it to zero.
	QoSFloor float64 `default:"0.06" yaml:"qos_floor"`

	// ResponseWindow is the number of response times the median is taken over.
	ResponseWindow int `default:"100" yaml:"response_window"`
	// ReferenceResponse seeds the response window.
	ReferenceResponse time.Duration `default:"11.5s" yaml:"reference_response"`

	HoldFails    int           `default:"3" yaml:"hold_fails"`
	HoldRelief   int           `default:"2" yaml:"hold_relief"`
	HoldDuration time.Duration `default:"3h" yaml:"hold_duration"`

	// ResetFraction of failing devices that triggers a radio reset.
	ResetFraction float64       `default:"0.5" yaml:"reset_fraction"`
	ResetCooldown time.Duration `default:"1h" yaml:"reset_cooldown"`

	// Concurrency is the number of devices polled at once.
	Concurrency int `default:"1" yaml:"concurrency"`
}

// DefaultPolicy returns the policy with every field at its default.
func DefaultPolicy() Policy {
	var p Policy
	defaults.SetDefaults(&p)
	return p
}
