// Package codec translates the fixed-width little-endian payloads exchanged with
// LYWSD02 and LYWSD03MMC sensors. All functions are pure; a buffer shorter than
// its encoding fails with device.ErrMalformedPayload and nothing is decoded.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/srg/lyfleet/internal/device"
)

// CR2025 / CR2032 cells: 3.4 V is the theoretical maximum; most radios stop
// working somewhere below 2.3 V, the estimate floor sits at 2.1 V.
const (
	BatteryFullVoltage  = 3.4
	BatteryEmptyVoltage = 2.1
)

// Payload sizes in bytes.
const (
	SimpleSampleSize = 3
	RichSampleSize   = 5
	HistorySize      = 13
	EpochSize        = 4
	EpochTZSize      = 5
	RecordCountSize  = 8
	HistoryIndexSize = 4
	UnitsSize        = 1
	BatterySize      = 1
)

// Sample is one decoded live measurement. Voltage and Battery are nil for the simple variant.
type Sample struct {
	Temperature float64
	Humidity    int
	Voltage     *float64
	Battery     *float64
}

// HistoryEntry is one decoded history record. Seconds is absolute epoch for the simple
// variant and seconds since device boot for the rich one.
type HistoryEntry struct {
	Index          uint32
	Seconds        uint32
	MinTemperature float64
	MinHumidity    int
	MaxTemperature float64
	MaxHumidity    int
}

func short(what string, want int, b []byte) error {
	return fmt.Errorf("%w: %s needs %d bytes, got %d", device.ErrMalformedPayload, what, want, len(b))
}

// SampleSize returns the live sample payload size of a variant.
func SampleSize(v device.Variant) int {
	if v == device.VariantRich {
		return RichSampleSize
	}
	return SimpleSampleSize
}

// historyScale is the divisor for history temperatures; it differs per variant.
func historyScale(v device.Variant) float64 {
	if v == device.VariantRich {
		return 10
	}
	return 100
}

// DecodeSample decodes a live sample notification.
func DecodeSample(v device.Variant, b []byte) (Sample, error) {
	size := SampleSize(v)
	if len(b) < size {
		return Sample{}, short("sample", size, b)
	}

	s := Sample{
		Temperature: float64(int16(binary.LittleEndian.Uint16(b[0:2]))) / 100,
		Humidity:    int(b[2]),
	}
	if v == device.VariantRich {
		voltage := float64(int16(binary.LittleEndian.Uint16(b[3:5]))) / 1000
		battery := EstimateBattery(voltage)
		s.Voltage = &voltage
		s.Battery = &battery
	}
	return s, nil
}

// EncodeSample is the inverse of DecodeSample, used by simulators and tests.
func EncodeSample(v device.Variant, s Sample) []byte {
	b := make([]byte, SampleSize(v))
	binary.LittleEndian.PutUint16(b[0:2], uint16(int16(math.Round(s.Temperature*100))))
	b[2] = byte(s.Humidity)
	if v == device.VariantRich && s.Voltage != nil {
		binary.LittleEndian.PutUint16(b[3:5], uint16(int16(math.Round(*s.Voltage*1000))))
	}
	return b
}

// EstimateBattery interpolates a charge percentage between the empty and full cell voltage,
// rounded to one decimal. The result is not clamped and may fall outside [0, 100].
func EstimateBattery(voltage float64) float64 {
	pct := (voltage - BatteryEmptyVoltage) / (BatteryFullVoltage - BatteryEmptyVoltage) * 100
	return math.Round(pct*10) / 10
}

// DecodeHistory decodes one history notification: <IIhBhB
// (index, seconds, max temp, max hum, min temp, min hum).
func DecodeHistory(v device.Variant, b []byte) (HistoryEntry, error) {
	if len(b) < HistorySize {
		return HistoryEntry{}, short("history record", HistorySize, b)
	}
	scale := historyScale(v)
	return HistoryEntry{
		Index:          binary.LittleEndian.Uint32(b[0:4]),
		Seconds:        binary.LittleEndian.Uint32(b[4:8]),
		MaxTemperature: float64(int16(binary.LittleEndian.Uint16(b[8:10]))) / scale,
		MaxHumidity:    int(b[10]),
		MinTemperature: float64(int16(binary.LittleEndian.Uint16(b[11:13]))) / scale,
		MinHumidity:    int(b[12]),
	}, nil
}

// EncodeHistory is the inverse of DecodeHistory.
func EncodeHistory(v device.Variant, e HistoryEntry) []byte {
	scale := historyScale(v)
	b := make([]byte, HistorySize)
	binary.LittleEndian.PutUint32(b[0:4], e.Index)
	binary.LittleEndian.PutUint32(b[4:8], e.Seconds)
	binary.LittleEndian.PutUint16(b[8:10], uint16(int16(math.Round(e.MaxTemperature*scale))))
	b[10] = byte(e.MaxHumidity)
	binary.LittleEndian.PutUint16(b[11:13], uint16(int16(math.Round(e.MinTemperature*scale))))
	b[12] = byte(e.MinHumidity)
	return b
}

// EncodeEpoch encodes t as epoch seconds followed by a signed timezone offset in hours.
func EncodeEpoch(t time.Time, tzOffsetHours int) []byte {
	b := make([]byte, EpochTZSize)
	binary.LittleEndian.PutUint32(b[0:4], uint32(t.Unix()))
	b[4] = byte(int8(tzOffsetHours))
	return b
}

// DecodeEpoch decodes a 4 or 5 byte clock value. A missing timezone byte means offset 0.
func DecodeEpoch(b []byte) (time.Time, int, error) {
	if len(b) < EpochSize {
		return time.Time{}, 0, short("clock", EpochSize, b)
	}
	t := time.Unix(int64(binary.LittleEndian.Uint32(b[0:4])), 0)
	tz := 0
	if len(b) >= EpochTZSize {
		tz = int(int8(b[4]))
	}
	return t, tz, nil
}

// DecodeRecordCount decodes the total and currently stored history record counters.
func DecodeRecordCount(b []byte) (total, current uint32, err error) {
	if len(b) < RecordCountSize {
		return 0, 0, short("record count", RecordCountSize, b)
	}
	return binary.LittleEndian.Uint32(b[0:4]), binary.LittleEndian.Uint32(b[4:8]), nil
}

// DecodeHistoryIndex decodes the history cursor. An empty value means index 0.
func DecodeHistoryIndex(b []byte) (uint32, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if len(b) < HistoryIndexSize {
		return 0, short("history index", HistoryIndexSize, b)
	}
	return binary.LittleEndian.Uint32(b), nil
}

// EncodeHistoryIndex encodes the history cursor.
func EncodeHistoryIndex(idx uint32) []byte {
	b := make([]byte, HistoryIndexSize)
	binary.LittleEndian.PutUint32(b, idx)
	return b
}

// DecodeBattery decodes the one byte battery percentage of the simple variant.
func DecodeBattery(b []byte) (float64, error) {
	if len(b) < BatterySize {
		return 0, short("battery", BatterySize, b)
	}
	return float64(b[0]), nil
}

// Unit codes differ per variant: the LYWSD02 uses 0xFF for Celsius, the LYWSD03MMC 0x00.
var unitCodes = map[device.Variant]map[string]byte{
	device.VariantSimple: {"C": 0xFF, "F": 0x01},
	device.VariantRich:   {"C": 0x00, "F": 0x01},
}

// EncodeUnits encodes a temperature unit ("C" or "F", case-insensitive).
func EncodeUnits(v device.Variant, unit string) ([]byte, error) {
	code, ok := unitCodes[v][strings.ToUpper(unit)]
	if !ok {
		return nil, fmt.Errorf("%w: units must be C or F, got %q", device.ErrValue, unit)
	}
	return []byte{code}, nil
}

// DecodeUnits decodes a temperature unit byte into "C" or "F".
func DecodeUnits(v device.Variant, b []byte) (string, error) {
	if len(b) < UnitsSize {
		return "", short("units", UnitsSize, b)
	}
	for unit, code := range unitCodes[v] {
		if code == b[0] {
			return unit, nil
		}
	}
	return "", fmt.Errorf("%w: unknown unit code 0x%02x", device.ErrMalformedPayload, b[0])
}
