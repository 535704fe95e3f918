package sensor

import (
	"time"

	"github.com/srg/lyfleet/internal/device"
)

// profile captures what differs between the supported variants.
type profile struct {
	notificationTimeout time.Duration
	// batteryFromSample: no battery characteristic, the estimate comes with each sample.
	batteryFromSample bool
	// clockReadOnly: no visible clock, writes to time and timezone are ignored.
	clockReadOnly bool
	// relativeHistory: history timestamps count seconds since boot, not epoch.
	relativeHistory bool
}

var profiles = map[device.Variant]profile{
	device.VariantSimple: {
		notificationTimeout: 11 * time.Second,
	},
	device.VariantRich: {
		notificationTimeout: 12300 * time.Millisecond,
		batteryFromSample:   true,
		clockReadOnly:       true,
		relativeHistory:     true,
	},
}

func profileOf(v device.Variant) profile {
	if p, ok := profiles[v]; ok {
		return p
	}
	return profiles[device.VariantRich]
}
