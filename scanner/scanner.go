// Package scanner discovers LYWSD02 and LYWSD03MMC thermometers from their advertisements.
package scanner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/lyfleet/internal/device"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// ScanFunc delivers advertisements to handler until ctx is done.
type ScanFunc func(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error

// Found is a discovered thermometer.
type Found struct {
	Address   string         `json:"address"`
	Name      string         `json:"name"`
	Variant   device.Variant `json:"variant"`
	RSSI      int            `json:"rssi"`
	LastSeen  time.Time      `json:"last_seen"`
	SeenCount int            `json:"seen_count"`
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration time.Duration
	// AllowList, when set, limits results to these addresses.
	AllowList []string
	BlockList []string
	// All includes devices whose name is not a known thermometer.
	All bool
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration: 10 * time.Second,
	}
}

// Scanner handles thermometer discovery
type Scanner struct {
	scan   ScanFunc
	logger *logrus.Logger
	now    func() time.Time

	devices *hashmap.Map[string, *Found]
}

// NewScanner creates a scanner on top of scan.
func NewScanner(scan ScanFunc, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{scan: scan, logger: logger, now: time.Now}
}

// Scan listens for opts.Duration and returns the thermometers seen, strongest signal first.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) ([]Found, error) {
	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}
	s.devices = hashmap.New[string, *Found]()

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")
	progressCallback("Scanning")

	scanCtx, cancel := context.WithTimeout(ctx, opts.Duration)
	defer cancel()

	if err := s.scan(scanCtx, true, func(adv device.Advertisement) {
		s.handleAdvertisement(adv, opts)
	}); err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")
	progressCallback("Processing results")

	found := make([]Found, 0, s.devices.Len())
	s.devices.Range(func(_ string, f *Found) bool {
		found = append(found, *f)
		return true
	})
	sort.Slice(found, func(i, j int) bool {
		if found[i].RSSI != found[j].RSSI {
			return found[i].RSSI > found[j].RSSI
		}
		return found[i].Address < found[j].Address
	})
	return found, nil
}

// handleAdvertisement updates existing or adds a new device
func (s *Scanner) handleAdvertisement(adv device.Advertisement, opts *ScanOptions) {
	addr := strings.ToUpper(adv.Address)

	if f, ok := s.devices.Get(addr); ok {
		f.RSSI = adv.RSSI
		f.LastSeen = s.now()
		f.SeenCount++
		if f.Name == "" && adv.Name != "" {
			f.Name = adv.Name
			f.Variant, _ = device.VariantFromName(adv.Name)
		}
		return
	}

	variant, known := device.VariantFromName(adv.Name)
	if !s.shouldIncludeDevice(addr, known, opts) {
		return
	}

	f := &Found{
		Address:   addr,
		Name:      adv.Name,
		Variant:   variant,
		RSSI:      adv.RSSI,
		LastSeen:  s.now(),
		SeenCount: 1,
	}
	if _, loaded := s.devices.GetOrInsert(addr, f); loaded {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"device":  adv.Name,
		"address": addr,
		"rssi":    adv.RSSI,
	}).Info("Discovered new device")
}

// shouldIncludeDevice applies the allow/block lists and the thermometer filter
func (s *Scanner) shouldIncludeDevice(addr string, known bool, opts *ScanOptions) bool {
	for _, blocked := range opts.BlockList {
		if strings.EqualFold(addr, blocked) {
			return false
		}
	}

	if len(opts.AllowList) > 0 {
		allowed := false
		for _, a := range opts.AllowList {
			if strings.EqualFold(addr, a) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	return known || opts.All
}
