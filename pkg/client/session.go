// Package client implements the MicroBot Push device session: connection
// lifecycle with bounded retry, the token handshake driven by asynchronous
// notifications, and the push/calibrate command API.
//
// The session follows a never-crash policy appropriate to a long-lived
// device driver: command operations convert failures into logged fallbacks,
// and callers observe the outcome through State and IsConnected rather than
// through returned errors.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/keymitt/microbot/internal/wire"
	"github.com/keymitt/microbot/pkg/scanner"
	"github.com/keymitt/microbot/pkg/transport"
	"github.com/sirupsen/logrus"
)

// Defaults mirroring the reference client.
const (
	DefaultRetryCount = 5
	retryBackoff      = 500 * time.Millisecond
)

// placeholderToken fills the init value frame when no token is held yet.
// The firmware ignores the presented token during initial pairing.
const placeholderToken = wire.Token("ffffffffffffffffffffffffffffffff")

// ActuatorState is the client's last-known belief about the physical button
// position. It is observational only and never gates commands.
type ActuatorState int

const (
	StateUnknown ActuatorState = iota
	StateOff
	StateOn
)

func (s ActuatorState) String() string {
	switch s {
	case StateOn:
		return "on"
	case StateOff:
		return "off"
	}
	return "unknown"
}

// Options configures a Session.
type Options struct {
	// Address is the transport-level device address. Required.
	Address string
	// Name is the advertised device name, used for logging.
	Name string
	// Token is a previously obtained session token (32 hex characters).
	// Leave empty when the device has never been paired.
	Token string
	// RetryCount bounds connection attempts. Defaults to DefaultRetryCount.
	RetryCount int
	// Timeout bounds each blocking wait (connect, liveness probe). Zero
	// means no timeout, matching the reference client's default.
	Timeout time.Duration
	// Transport overrides the go-ble transport, mainly for tests.
	Transport transport.Transport
	// Coordinator overrides the process-wide connect coordinator.
	Coordinator *transport.Coordinator
}

// Session is a client session bound to one MicroBot Push.
type Session struct {
	logger *logrus.Logger
	tr     transport.Transport
	coord  *transport.Coordinator

	// opMu serializes command operations: the protocol allows a single
	// command in flight per session, and concurrent callers must not race
	// on the transport.
	opMu sync.Mutex

	mu      sync.RWMutex
	addr    string
	name    string
	token   wire.Token
	profile wire.CalibrationProfile
	state   ActuatorState

	retryCount int
	timeout    time.Duration
}

// NewSession creates a session for the device at opts.Address.
func NewSession(opts *Options, logger *logrus.Logger) (*Session, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if opts == nil || opts.Address == "" {
		return nil, fmt.Errorf("device address is required")
	}

	var token wire.Token
	if opts.Token != "" {
		var err error
		token, err = wire.ParseToken(opts.Token)
		if err != nil {
			return nil, err
		}
	}

	tr := opts.Transport
	if tr == nil {
		tr = transport.NewBLETransport(logger)
	}
	coord := opts.Coordinator
	if coord == nil {
		coord = transport.Shared
	}
	retry := opts.RetryCount
	if retry <= 0 {
		retry = DefaultRetryCount
	}

	return &Session{
		logger:     logger,
		tr:         tr,
		coord:      coord,
		addr:       opts.Address,
		name:       opts.Name,
		token:      token,
		profile:    wire.CalibrationProfile{Depth: 50},
		state:      StateUnknown,
		retryCount: retry,
		timeout:    opts.Timeout,
	}, nil
}

// Name returns the device name and address for display.
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("%s (%s)", s.name, s.addr)
}

// Address returns the bound transport-level address.
func (s *Session) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Token returns the current session token in hex form, empty if none is
// held yet.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return string(s.token)
}

// State returns the last-known actuator state.
func (s *Session) State() ActuatorState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsOn reports whether the actuator is believed to be in the on position.
func (s *Session) IsOn() bool {
	return s.State() == StateOn
}

// UpdateFromAdvertisement refreshes the device identity from a newly
// observed advertisement for the same address. It updates session fields in
// place; it never rebinds the session to another device.
func (s *Session) UpdateFromAdvertisement(adv *scanner.Advertisement) {
	if adv == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if adv.Address != s.addr {
		s.logger.WithFields(logrus.Fields{
			"session_addr": s.addr,
			"adv_addr":     adv.Address,
		}).Warn("Ignoring advertisement for a different device")
		return
	}
	s.name = adv.LocalName
	s.logger.WithFields(logrus.Fields{
		"name": adv.LocalName,
		"rssi": adv.RSSI,
	}).Debug("Updated device identity from advertisement")
}

// SetDepth stores the push depth percentage for the next calibrate. Values
// outside 0-100 are clamped.
func (s *Session) SetDepth(depth int) {
	if depth < 0 {
		depth = 0
	}
	if depth > 100 {
		depth = 100
	}
	s.mu.Lock()
	s.profile.Depth = uint8(depth)
	s.mu.Unlock()
	s.logger.WithField("depth", depth).Debug("Depth set")
}

// SetDuration stores the push duration for the next calibrate.
func (s *Session) SetDuration(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	s.profile.DurationMs = uint32(d.Milliseconds())
	s.mu.Unlock()
	s.logger.WithField("duration", d).Debug("Duration set")
}

// SetMode stores the push mode for the next calibrate. Unrecognized mode
// names fall back to normal; the reference client silently kept the previous
// value, which hid typos, so the fallback is logged here.
func (s *Session) SetMode(mode string) {
	m, ok := wire.ParseMode(mode)
	if !ok {
		s.logger.WithField("mode", mode).Warn("Unrecognized mode, using normal")
	}
	s.mu.Lock()
	s.profile.Mode = m
	s.mu.Unlock()
	s.logger.WithField("mode", m).Debug("Mode set")
}

// PushOn triggers a push and marks the actuator on. Each push is a
// connect-act-disconnect cycle. Failures are logged, not returned; observe
// the outcome via State.
func (s *Session) PushOn(ctx context.Context) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.push(ctx, true)
}

// PushOff triggers a push and marks the actuator off.
func (s *Session) PushOff(ctx context.Context) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.push(ctx, false)
}

func (s *Session) push(ctx context.Context, on bool) {
	if !s.IsConnected(ctx) {
		if err := s.connect(ctx, false); err != nil {
			s.logger.WithError(err).Error("Failed to connect for push")
		}
	}
	s.logger.Debug("Attempting to push")

	err := s.sendCommand(wire.PushFrames)
	s.mu.Lock()
	if err == nil {
		if on {
			s.state = StateOn
		} else {
			s.state = StateOff
		}
	} else {
		// Reproduced quirk from the reference client: a failed push is
		// assumed to mean the toggle did not happen, so the state is set to
		// the complement of the intended effect rather than to unknown.
		if on {
			s.state = StateOff
		} else {
			s.state = StateOn
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.WithError(err).Error("Failed to push")
	} else {
		s.logger.Debug("Pushed")
	}

	s.disconnect()
}

// Calibrate stores the given profile on the session and applies it to the
// device as three header+value frame pairs in the order mode, depth,
// duration. The first failed pair aborts the rest. Calibrate keeps the link
// up; it does not auto-disconnect.
func (s *Session) Calibrate(ctx context.Context, depth int, duration time.Duration, mode string) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.IsConnected(ctx) {
		if err := s.connect(ctx, false); err != nil {
			s.logger.WithError(err).Error("Failed to connect for calibration")
		}
	}
	s.logger.Debug("Setting calibration")

	s.SetMode(mode)
	s.SetDepth(depth)
	s.SetDuration(duration)

	s.mu.RLock()
	profile := s.profile
	s.mu.RUnlock()

	id, err := wire.NewTransactionID()
	if err != nil {
		s.logger.WithError(err).Error("Failed to calibrate")
		return
	}

	frames := wire.CalibrationFrames(id, profile)
	// Three independent header+value pairs sharing one transaction id.
	for i := 0; i < len(frames); i += 2 {
		if err := s.writeFrames(frames[i : i+2]); err != nil {
			s.logger.WithError(err).Error("Failed to calibrate")
			return
		}
	}
	s.logger.Debug("Calibration set")
}

// GetToken asks the device to emit a fresh token. Delivery depends on a
// human pressing the physical button, so this only issues the request; the
// token arrives through the pairing handshake.
func (s *Session) GetToken(ctx context.Context) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.IsConnected(ctx) {
		if err := s.connect(ctx, false); err != nil {
			s.logger.WithError(err).Error("Failed to connect for token request")
		}
	}
	if err := s.requestToken(); err != nil {
		s.logger.WithError(err).Error("Failed to request token")
	}
}

// Pair runs the initial pairing flow end to end: connect, present the init
// frames, wait for the device ack (button press), collect the delivered
// token. It returns the freshly acquired token on success.
func (s *Session) Pair(ctx context.Context) (string, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.connect(ctx, true); err != nil {
		return "", err
	}
	return s.Token(), nil
}
