package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
)

// isConnectedProbeTimeout bounds the liveness probe when the caller's
// context carries no deadline of its own.
const isConnectedProbeTimeout = 100 * time.Millisecond

// BLETransport implements Transport on top of go-ble. A single instance is
// bound to one peer device and may be connected and disconnected repeatedly;
// the discovered GATT profile is cached across reconnects when requested.
type BLETransport struct {
	logger *logrus.Logger

	connMutex   sync.RWMutex
	writeMutex  sync.Mutex
	client      ble.Client
	isConnected bool

	// cachedProfile survives disconnects so reconnects can skip GATT
	// re-enumeration when ConnectOptions.UseCachedServices is set.
	cachedProfile *ble.Profile
	chars         map[string]*ble.Characteristic
}

// NewBLETransport creates a transport backed by the platform BLE device.
func NewBLETransport(logger *logrus.Logger) *BLETransport {
	if logger == nil {
		logger = logrus.New()
	}
	return &BLETransport{
		logger: logger,
		chars:  make(map[string]*ble.Characteristic),
	}
}

// normalizeUUID converts a UUID string to the go-ble internal format
// (lowercase, no dashes).
func normalizeUUID(uuid string) string {
	return strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
}

// Connect dials the device and populates the characteristic table.
func (t *BLETransport) Connect(ctx context.Context, opts *ConnectOptions) error {
	t.connMutex.Lock()
	defer t.connMutex.Unlock()

	if strings.TrimSpace(opts.Address) == "" {
		return fmt.Errorf("failed to connect: device address is not set")
	}
	if t.isConnected {
		return fmt.Errorf("already connected")
	}

	t.logger.WithFields(logrus.Fields{
		"address": opts.Address,
		"name":    opts.Name,
	}).Info("Connecting to BLE device...")

	dev, err := DeviceFactory()
	if err != nil {
		return fmt.Errorf("failed to create BLE device: %w", err)
	}
	ble.SetDefaultDevice(dev)

	connCtx := ctx
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connCtx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	client, err := ble.Dial(connCtx, ble.NewAddr(opts.Address))
	if err != nil {
		return fmt.Errorf("failed to connect to device %q: %w", opts.Address, err)
	}

	profile := t.cachedProfile
	if profile == nil || !opts.UseCachedServices {
		profile, err = client.DiscoverProfile(true)
		if err != nil {
			client.CancelConnection()
			return fmt.Errorf("failed to discover profile: %w", err)
		}
		t.cachedProfile = profile
	} else {
		t.logger.Debug("Reusing cached GATT profile")
	}

	t.chars = make(map[string]*ble.Characteristic)
	for _, svc := range profile.Services {
		for _, char := range svc.Characteristics {
			t.chars[normalizeUUID(char.UUID.String())] = char
		}
	}

	t.client = client
	t.isConnected = true

	go t.watchDisconnect(client, opts.OnDisconnect)

	t.logger.WithField("characteristics", len(t.chars)).Info("BLE device connected")
	return nil
}

// watchDisconnect waits for the link to drop and reports it once. A
// deliberate Disconnect also lands here, but by then isConnected is already
// false and the callback is skipped.
func (t *BLETransport) watchDisconnect(client ble.Client, onDisconnect func()) {
	<-client.Disconnected()

	t.connMutex.Lock()
	unexpected := t.isConnected && t.client == client
	if unexpected {
		t.isConnected = false
		t.client = nil
	}
	t.connMutex.Unlock()

	if unexpected {
		t.logger.Warn("BLE link lost")
		if onDisconnect != nil {
			onDisconnect()
		}
	}
}

// Disconnect tears down the link. It is a no-op when not connected.
func (t *BLETransport) Disconnect() error {
	t.connMutex.Lock()
	if !t.isConnected || t.client == nil {
		t.connMutex.Unlock()
		t.logger.Debug("Already disconnected")
		return nil
	}
	client := t.client
	t.client = nil
	t.isConnected = false
	t.connMutex.Unlock()

	err := client.CancelConnection()
	if err != nil {
		t.logger.WithError(err).Warn("BLE device disconnected with errors")
		return err
	}
	t.logger.Info("BLE device disconnected")
	return nil
}

// IsConnected probes link liveness. Any timeout or stack error reads as not
// connected; the caller never sees an error from this path.
func (t *BLETransport) IsConnected(ctx context.Context) bool {
	probeCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, isConnectedProbeTimeout)
		defer cancel()
	}

	done := make(chan bool, 1)
	go func() {
		t.connMutex.RLock()
		defer t.connMutex.RUnlock()
		done <- t.isConnected && t.client != nil
	}()

	select {
	case connected := <-done:
		return connected
	case <-probeCtx.Done():
		return false
	}
}

// WriteCharacteristic writes one frame to the named characteristic.
func (t *BLETransport) WriteCharacteristic(uuid string, data []byte, withResponse bool) error {
	client, char, err := t.lookup(uuid)
	if err != nil {
		return err
	}

	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	// go-ble's flag is "no response", the inverse of ours.
	if err := client.WriteCharacteristic(char, data, !withResponse); err != nil {
		return fmt.Errorf("failed to write characteristic %s: %w", uuid, err)
	}

	t.logger.WithFields(logrus.Fields{
		"uuid":  uuid,
		"bytes": len(data),
	}).Debug("Wrote frame")
	return nil
}

// Subscribe registers for notifications on the named characteristic.
func (t *BLETransport) Subscribe(uuid string, fn NotificationHandler) error {
	client, char, err := t.lookup(uuid)
	if err != nil {
		return err
	}
	if err := client.Subscribe(char, false, ble.NotificationHandler(fn)); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", uuid, err)
	}
	t.logger.WithField("uuid", uuid).Debug("Subscribed to notifications")
	return nil
}

// Unsubscribe stops notifications on the named characteristic.
func (t *BLETransport) Unsubscribe(uuid string) error {
	client, char, err := t.lookup(uuid)
	if err != nil {
		return err
	}
	if err := client.Unsubscribe(char, false); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", uuid, err)
	}
	t.logger.WithField("uuid", uuid).Debug("Unsubscribed from notifications")
	return nil
}

// lookup snapshots the client and resolves a characteristic under the lock.
func (t *BLETransport) lookup(uuid string) (ble.Client, *ble.Characteristic, error) {
	t.connMutex.RLock()
	defer t.connMutex.RUnlock()

	if !t.isConnected || t.client == nil {
		return nil, nil, fmt.Errorf("not connected")
	}
	char, ok := t.chars[normalizeUUID(uuid)]
	if !ok {
		return nil, nil, fmt.Errorf("characteristic %s not found", uuid)
	}
	return t.client, char, nil
}
