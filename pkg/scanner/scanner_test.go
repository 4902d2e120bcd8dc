package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/cornelk/hashmap"
	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keymitt/microbot/internal/wire"
	"github.com/keymitt/microbot/pkg/transport"
)

// fakeAddr implements ble.Addr.
type fakeAddr struct {
	address string
}

func (a *fakeAddr) String() string {
	return a.address
}

// fakeAdvertisement implements ble.Advertisement with fixed values.
type fakeAdvertisement struct {
	addr     string
	name     string
	rssi     int
	services []blelib.UUID
}

func (a *fakeAdvertisement) LocalName() string                 { return a.name }
func (a *fakeAdvertisement) ManufacturerData() []byte          { return nil }
func (a *fakeAdvertisement) ServiceData() []blelib.ServiceData { return nil }
func (a *fakeAdvertisement) Services() []blelib.UUID           { return a.services }
func (a *fakeAdvertisement) OverflowService() []blelib.UUID    { return nil }
func (a *fakeAdvertisement) TxPowerLevel() int                 { return 0 }
func (a *fakeAdvertisement) Connectable() bool                 { return true }
func (a *fakeAdvertisement) SolicitedService() []blelib.UUID   { return nil }
func (a *fakeAdvertisement) RSSI() int                         { return a.rssi }
func (a *fakeAdvertisement) Addr() blelib.Addr                 { return &fakeAddr{address: a.addr} }

// fakeBLEDevice implements ble.Device. Scan captures the handler and returns
// immediately, letting tests replay callbacks at will.
type fakeBLEDevice struct {
	handler blelib.AdvHandler
}

func (d *fakeBLEDevice) AddService(svc *blelib.Service) error                          { return nil }
func (d *fakeBLEDevice) RemoveAllServices() error                                      { return nil }
func (d *fakeBLEDevice) SetServices(svcs []*blelib.Service) error                      { return nil }
func (d *fakeBLEDevice) Stop() error                                                   { return nil }
func (d *fakeBLEDevice) Advertise(ctx context.Context, adv blelib.Advertisement) error { return nil }
func (d *fakeBLEDevice) AdvertiseNameAndServices(ctx context.Context, name string, ss ...blelib.UUID) error {
	return nil
}
func (d *fakeBLEDevice) AdvertiseIBeacon(ctx context.Context, u blelib.UUID, major, minor uint16, pwr int8) error {
	return nil
}
func (d *fakeBLEDevice) AdvertiseIBeaconData(ctx context.Context, b []byte) error { return nil }
func (d *fakeBLEDevice) AdvertiseMfgData(ctx context.Context, id uint16, b []byte) error {
	return nil
}
func (d *fakeBLEDevice) AdvertiseServiceData16(ctx context.Context, id uint16, b []byte) error {
	return nil
}
func (d *fakeBLEDevice) Scan(ctx context.Context, allowDup bool, h blelib.AdvHandler) error {
	d.handler = h
	return nil
}
func (d *fakeBLEDevice) Dial(ctx context.Context, a blelib.Addr) (blelib.Client, error) {
	return nil, nil
}

func pushAdvertisement(addr, name string, rssi int) *fakeAdvertisement {
	return &fakeAdvertisement{
		addr:     addr,
		name:     name,
		rssi:     rssi,
		services: []blelib.UUID{blelib.MustParse(wire.ServiceUUID)},
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newDeviceMap() *hashmap.Map[string, *Advertisement] {
	return hashmap.New[string, *Advertisement]()
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 30*time.Second, opts.Duration)
	assert.True(t, opts.AllowDuplicates)
	assert.Empty(t, opts.AllowList)
	assert.Empty(t, opts.BlockList)
}

func TestRecordAdvertisement(t *testing.T) {
	t.Run("records a push device and emits a new event", func(t *testing.T) {
		s := NewScanner(quietLogger(), transport.NewCoordinator())
		devices := newDeviceMap()

		s.recordAdvertisement(devices, DefaultOptions(), pushAdvertisement("e4:b0:21:c8:6a:1e", "MicroBot Push", -42))

		adv, ok := devices.Get("e4:b0:21:c8:6a:1e")
		require.True(t, ok)
		assert.Equal(t, "MicroBot Push", adv.LocalName)
		assert.Equal(t, -42, adv.RSSI)

		select {
		case ev := <-s.Events():
			assert.Equal(t, EventNew, ev.Type)
			assert.Equal(t, adv, ev.Advertisement)
		default:
			t.Fatal("expected a device event")
		}
	})

	t.Run("repeat sighting updates in place", func(t *testing.T) {
		s := NewScanner(quietLogger(), transport.NewCoordinator())
		devices := newDeviceMap()

		s.recordAdvertisement(devices, DefaultOptions(), pushAdvertisement("e4:b0:21:c8:6a:1e", "MicroBot Push", -42))
		s.recordAdvertisement(devices, DefaultOptions(), pushAdvertisement("e4:b0:21:c8:6a:1e", "MicroBot Push", -38))

		assert.Equal(t, 1, devices.Len())
		adv, ok := devices.Get("e4:b0:21:c8:6a:1e")
		require.True(t, ok)
		assert.Equal(t, -38, adv.RSSI, "latest sighting wins")

		<-s.Events()
		ev := <-s.Events()
		assert.Equal(t, EventUpdated, ev.Type)
	})

	t.Run("ignores devices without the push service", func(t *testing.T) {
		s := NewScanner(quietLogger(), transport.NewCoordinator())
		devices := newDeviceMap()

		s.recordAdvertisement(devices, DefaultOptions(), &fakeAdvertisement{
			addr:     "aa:bb:cc:dd:ee:ff",
			name:     "Some Other Peripheral",
			rssi:     -50,
			services: []blelib.UUID{blelib.MustParse("180f")},
		})
		s.recordAdvertisement(devices, DefaultOptions(), &fakeAdvertisement{addr: "11:22:33:44:55:66"})

		assert.Zero(t, devices.Len())
		select {
		case <-s.Events():
			t.Fatal("no event expected for non-push devices")
		default:
		}
	})
}

func TestShouldInclude(t *testing.T) {
	const addr = "e4:b0:21:c8:6a:1e"

	tests := []struct {
		name string
		opts *Options
		want bool
	}{
		{name: "no lists", opts: &Options{}, want: true},
		{name: "on the allow list", opts: &Options{AllowList: []string{addr}}, want: true},
		{name: "not on the allow list", opts: &Options{AllowList: []string{"other"}}, want: false},
		{name: "on the block list", opts: &Options{BlockList: []string{addr}}, want: false},
		{name: "block wins over allow", opts: &Options{AllowList: []string{addr}, BlockList: []string{addr}}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScanner(quietLogger(), transport.NewCoordinator())
			got := s.shouldInclude(pushAdvertisement(addr, "MicroBot Push", -40), tt.opts)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScanSurvivesLateCallback(t *testing.T) {
	// The BLE stack can dispatch queued advertisement callbacks after Scan
	// has already returned; they must be absorbed, never crash.
	dev := &fakeBLEDevice{}
	originalFactory := transport.DeviceFactory
	transport.DeviceFactory = func() (blelib.Device, error) { return dev, nil }
	defer func() { transport.DeviceFactory = originalFactory }()

	s := NewScanner(quietLogger(), transport.NewCoordinator())
	devices, err := s.Scan(context.Background(), &Options{Duration: 10 * time.Millisecond, AllowDuplicates: true})
	require.NoError(t, err)
	assert.Empty(t, devices)

	require.NotNil(t, dev.handler)
	assert.NotPanics(t, func() {
		dev.handler(pushAdvertisement("e4:b0:21:c8:6a:1e", "MicroBot Push", -40))
	})
}
