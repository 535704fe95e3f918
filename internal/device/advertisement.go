package device

import "strings"

// Advertisement is the part of a BLE advertisement discovery cares about.
type Advertisement struct {
	Address     string
	Name        string
	RSSI        int
	Connectable bool
}

// VariantFromName recognises a thermometer by its advertised local name.
// Custom ATC firmware advertises as ATC_xxxxxx on LYWSD03MMC hardware.
func VariantFromName(name string) (Variant, bool) {
	n := strings.ToUpper(strings.TrimSpace(name))
	switch {
	case strings.HasPrefix(n, "LYWSD02"):
		return VariantSimple, true
	case strings.HasPrefix(n, "LYWSD03"), strings.HasPrefix(n, "ATC_"):
		return VariantRich, true
	default:
		return 0, false
	}
}
