package device

import "strings"

// Characteristics exposed by LYWSD02 / LYWSD03MMC sensors.
const (
	UUIDUnits       = "EBE0CCBE-7A0A-4B0C-8A1A-6FF2997DA3A6" // 1 byte, read/write
	UUIDHistory     = "EBE0CCBC-7A0A-4B0C-8A1A-6FF2997DA3A6" // 13 bytes per record, read/notify
	UUIDTime        = "EBE0CCB7-7A0A-4B0C-8A1A-6FF2997DA3A6" // 4 or 5 bytes, read/write
	UUIDData        = "EBE0CCC1-7A0A-4B0C-8A1A-6FF2997DA3A6" // 3 or 5 bytes, read/notify
	UUIDBattery     = "EBE0CCC4-7A0A-4B0C-8A1A-6FF2997DA3A6" // 1 byte, read (LYWSD02 only)
	UUIDNumRecords  = "EBE0CCB9-7A0A-4B0C-8A1A-6FF2997DA3A6" // 8 bytes, read
	UUIDRecordIndex = "EBE0CCBA-7A0A-4B0C-8A1A-6FF2997DA3A6" // 4 bytes, read/write
)

const bluetoothBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to the internal BLE library format (lowercase, no dashes).
// Strips a 0x prefix and shortens Bluetooth SIG base UUIDs to their 16-bit form.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "0x")
	u = strings.ReplaceAll(u, "-", "")
	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, bluetoothBaseSuffix) {
		return u[4:8]
	}
	return u
}

// ShortenUUID returns a truncated version of a UUID for display purposes.
func ShortenUUID(uuid string) string {
	if len(uuid) > 8 {
		return uuid[:8]
	}
	return uuid
}
