// Package scanner discovers MicroBot Push devices by filtering BLE
// advertisements to the MicroBot service UUID.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cornelk/hashmap"
	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/keymitt/microbot/internal/ringchan"
	"github.com/keymitt/microbot/internal/wire"
	"github.com/keymitt/microbot/pkg/transport"
)

// pushServiceUUID is the service every MicroBot Push advertises.
var pushServiceUUID = blelib.MustParse(wire.ServiceUUID)

// Advertisement is the discovery snapshot handed to a session.
type Advertisement struct {
	Address   string `json:"address"`
	LocalName string `json:"local_name"`
	RSSI      int    `json:"rssi"`
}

// DeviceEventType marks whether a device was newly discovered or updated.
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

// DeviceEvent is emitted for every qualifying advertisement.
type DeviceEvent struct {
	Type          DeviceEventType
	Advertisement *Advertisement
	Timestamp     time.Time
}

// Options configures scanning behavior.
type Options struct {
	// Duration bounds the scan. Zero scans until ctx is done.
	Duration time.Duration
	// AllowDuplicates delivers repeat advertisements from the same device.
	AllowDuplicates bool
	// AllowList restricts results to these addresses when non-empty.
	AllowList []string
	// BlockList hides these addresses.
	BlockList []string
}

// DefaultOptions returns the reference client's scan defaults.
func DefaultOptions() *Options {
	return &Options{
		Duration:        30 * time.Second,
		AllowDuplicates: true,
	}
}

// Scanner handles MicroBot discovery.
type Scanner struct {
	events *ringchan.Ring[DeviceEvent]
	logger *logrus.Logger
	coord  *transport.Coordinator
}

// NewScanner creates a scanner. A nil coordinator falls back to the shared
// process-wide one; the BLE stack cannot scan while a connect is in flight.
func NewScanner(logger *logrus.Logger, coord *transport.Coordinator) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	if coord == nil {
		coord = transport.Shared
	}
	return &Scanner{
		events: ringchan.New[DeviceEvent](100),
		logger: logger,
		coord:  coord,
	}
}

// Scan discovers MicroBot devices and returns their advertisement data
// keyed by address.
func (s *Scanner) Scan(ctx context.Context, opts *Options) (map[string]*Advertisement, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	// Per-call state lives in the handler closure: go-ble may deliver queued
	// advertisement callbacks after Scan returns, and concurrent Scan calls
	// must not share filters or result maps.
	devices := hashmap.New[string, *Advertisement]()

	s.logger.WithField("duration", opts.Duration).Info("Starting MicroBot scan...")

	if err := s.coord.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("scan blocked by an in-flight connection: %w", err)
	}
	defer s.coord.Release()

	dev, err := transport.DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}

	scanCtx := ctx
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	err = dev.Scan(scanCtx, opts.AllowDuplicates, func(a blelib.Advertisement) {
		s.recordAdvertisement(devices, opts, a)
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	s.logger.WithField("device_count", devices.Len()).Info("MicroBot scan completed")

	result := make(map[string]*Advertisement, devices.Len())
	devices.Range(func(key string, value *Advertisement) bool {
		result[key] = value
		return true
	})
	return result, nil
}

// GetDevice scans and returns the advertisement for one address, or an
// error if the device was not seen.
func (s *Scanner) GetDevice(ctx context.Context, address string, opts *Options) (*Advertisement, error) {
	devices, err := s.Scan(ctx, opts)
	if err != nil {
		return nil, err
	}
	adv, ok := devices[address]
	if !ok {
		return nil, fmt.Errorf("device %q not found", address)
	}
	return adv, nil
}

// Events returns a read-only channel of device events for watch-style
// consumers. Old events are dropped when nobody is reading.
func (s *Scanner) Events() <-chan DeviceEvent {
	return s.events.C()
}

// recordAdvertisement records or updates a device seen in an advertisement.
func (s *Scanner) recordAdvertisement(devices *hashmap.Map[string, *Advertisement], opts *Options, a blelib.Advertisement) {
	if !s.shouldInclude(a, opts) {
		return
	}

	adv := &Advertisement{
		Address:   a.Addr().String(),
		LocalName: a.LocalName(),
		RSSI:      a.RSSI(),
	}

	_, existing := devices.Get(adv.Address)
	devices.Set(adv.Address, adv)

	event := DeviceEvent{Advertisement: adv, Timestamp: time.Now()}
	if existing {
		event.Type = EventUpdated
		s.logger.WithField("address", adv.Address).Debug("Updating MicroBot data")
	} else {
		event.Type = EventNew
		s.logger.WithFields(logrus.Fields{
			"device":  adv.LocalName,
			"address": adv.Address,
			"rssi":    adv.RSSI,
		}).Info("Discovered MicroBot")
	}
	s.events.Send(event)
}

// shouldInclude applies the service filter plus allow/block lists.
func (s *Scanner) shouldInclude(a blelib.Advertisement, opts *Options) bool {
	advertised := false
	for _, svc := range a.Services() {
		if pushServiceUUID.Equal(svc) {
			advertised = true
			break
		}
	}
	if !advertised {
		return false
	}

	addr := a.Addr().String()
	for _, blocked := range opts.BlockList {
		if addr == blocked {
			return false
		}
	}
	if len(opts.AllowList) > 0 {
		for _, allowed := range opts.AllowList {
			if addr == allowed {
				return true
			}
		}
		return false
	}
	return true
}
