//go:build linux

package transport

import (
	"fmt"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests).
var DeviceFactory = func() (ble.Device, error) {
	dev, err := linux.NewDevice()
	if err != nil {
		return nil, fmt.Errorf("failed to open HCI device - is Bluetooth enabled? %w", err)
	}
	return dev, nil
}
