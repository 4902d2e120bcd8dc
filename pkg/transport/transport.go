// Package transport defines the GATT transport boundary the device session
// drives, plus the go-ble backed implementation. The session never touches
// the BLE stack directly; everything flows through the Transport interface so
// protocol logic stays testable against a fake.
package transport

import (
	"context"
	"time"
)

// NotificationHandler receives raw notification payloads from the command
// characteristic. The slice is only valid for the duration of the call;
// handlers must copy data they retain.
type NotificationHandler func(data []byte)

// ConnectOptions configures a transport-level connection attempt.
type ConnectOptions struct {
	// Address is the transport-level device address (MAC, or UUID on darwin).
	Address string
	// Name is the human-readable device name, used for logging only.
	Name string
	// ConnectTimeout bounds the dial. Zero means no timeout.
	ConnectTimeout time.Duration
	// OnDisconnect is invoked asynchronously on unexpected link loss. It is
	// not called for a deliberate Disconnect.
	OnDisconnect func()
	// UseCachedServices reuses the GATT profile discovered on a previous
	// connection to the same device, skipping re-enumeration.
	UseCachedServices bool
}

// Transport is the asynchronous GATT collaborator the session drives.
type Transport interface {
	// Connect establishes the link and discovers (or restores) services.
	Connect(ctx context.Context, opts *ConnectOptions) error
	// Disconnect tears the link down. Disconnecting an already-closed
	// transport is a no-op.
	Disconnect() error
	// IsConnected reports link liveness with a bounded wait. Timeouts and
	// transport errors read as false; it never returns an error.
	IsConnected(ctx context.Context) bool
	// WriteCharacteristic writes one frame, optionally awaiting the
	// transport-level acknowledgement before returning.
	WriteCharacteristic(uuid string, data []byte, withResponse bool) error
	// Subscribe registers for notifications on a characteristic.
	Subscribe(uuid string, fn NotificationHandler) error
	// Unsubscribe stops notifications on a characteristic.
	Unsubscribe(uuid string) error
}
