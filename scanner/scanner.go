// Package scanner runs the background discovery watcher that keeps the list
// of devices the console can open.
package scanner

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecon/internal/device"
	"github.com/srg/blecon/internal/groutine"
	"github.com/srg/blecon/internal/ringchan"
)

// DeviceEventType marks if the device was newly discovered or updated
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

type DeviceEvent struct {
	Type       DeviceEventType
	DeviceInfo device.DeviceInfo
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	DuplicateFilter bool
	AllowList       []string
	BlockList       []string
	RestartDelay    time.Duration // pause before restarting a failed scan
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		DuplicateFilter: false,
		RestartDelay:    2 * time.Second,
	}
}

// Scanner handles BLE device discovery
type Scanner struct {
	// mu guards the fields of the stored entries, which are updated in place
	mu      sync.RWMutex
	devices *hashmap.Map[string, *device.DeviceInfo]
	events  *ringchan.RingChannel[DeviceEvent]
	logger  *logrus.Logger

	scanDevice  device.ScanningDevice
	scanOptions *ScanOptions
}

// NewScanner creates a new BLE scanner
func NewScanner(dev device.ScanningDevice, opts *ScanOptions, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	if opts == nil {
		opts = DefaultScanOptions()
	}

	return &Scanner{
		devices:     hashmap.New[string, *device.DeviceInfo](),
		events:      ringchan.New[DeviceEvent](100),
		logger:      logger,
		scanDevice:  dev,
		scanOptions: opts,
	}
}

// Start scans in the background until ctx is cancelled. A scan that fails
// is restarted after the configured delay.
func (s *Scanner) Start(ctx context.Context) {
	groutine.Go(ctx, "ble-scanner", func(ctx context.Context) {
		defer s.events.Close()
		for {
			s.logger.Debug("Starting BLE scan...")
			err := s.scanDevice.Scan(ctx, !s.scanOptions.DuplicateFilter, s.handleAdvertisement)
			if ctx.Err() != nil {
				s.logger.WithField("device_count", s.devices.Len()).Debug("BLE scan stopped")
				return
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.WithError(err).Warn("BLE scan failed, restarting")
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(s.scanOptions.RestartDelay):
			}
		}
	})
}

// handleAdvertisement updates existing or adds a new device
func (s *Scanner) handleAdvertisement(adv device.Advertisement) {
	id := adv.Addr()
	if !s.shouldIncludeDevice(id) {
		return
	}

	info := &device.DeviceInfo{
		ID:      id,
		Name:    adv.LocalName(),
		Address: id,
		RSSI:    adv.RSSI(),
	}

	stored, existing := s.devices.GetOrInsert(id, info)
	event := DeviceEvent{Type: EventNew}
	if existing {
		s.mu.Lock()
		// Keep the last known name when an advertisement omits it
		if info.Name != "" {
			stored.Name = info.Name
		}
		stored.RSSI = info.RSSI
		event.DeviceInfo = *stored
		s.mu.Unlock()
		event.Type = EventUpdated
	} else {
		event.DeviceInfo = *info
		s.logger.WithFields(logrus.Fields{
			"device":  info.Name,
			"address": info.Address,
			"rssi":    info.RSSI,
		}).Info("Discovered new device")
	}

	s.events.Send(event)
}

// shouldIncludeDevice applies the allow and block lists
func (s *Scanner) shouldIncludeDevice(addr string) bool {
	for _, blocked := range s.scanOptions.BlockList {
		if addr == blocked {
			return false
		}
	}

	if len(s.scanOptions.AllowList) > 0 {
		for _, a := range s.scanOptions.AllowList {
			if addr == a {
				return true
			}
		}
		return false
	}
	return true
}

// Devices returns the named devices seen so far, sorted by name. Devices
// without a name are skipped and each name is listed once.
func (s *Scanner) Devices() []device.DeviceInfo {
	devs := make([]device.DeviceInfo, 0, s.devices.Len())
	s.mu.RLock()
	s.devices.Range(func(_ string, value *device.DeviceInfo) bool {
		if value.Name != "" {
			devs = append(devs, *value)
		}
		return true
	})
	s.mu.RUnlock()

	sort.Slice(devs, func(i, j int) bool {
		if devs[i].Name != devs[j].Name {
			return devs[i].Name < devs[j].Name
		}
		return devs[i].ID < devs[j].ID
	})

	result := devs[:0]
	for _, d := range devs {
		if len(result) > 0 && result[len(result)-1].Name == d.Name {
			continue
		}
		result = append(result, d)
	}
	return result
}

// Events return a read-only channel of device events
func (s *Scanner) Events() <-chan DeviceEvent {
	return s.events.C()
}
