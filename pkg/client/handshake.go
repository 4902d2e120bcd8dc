package client

import (
	"context"
	"fmt"

	"github.com/keymitt/microbot/internal/ringchan"
	"github.com/keymitt/microbot/internal/wire"
	"github.com/sirupsen/logrus"
)

// handshakeState tracks progress of the token exchange.
type handshakeState int

const (
	hsIdle handshakeState = iota
	hsAwaitingDeviceAck
	hsAwaitingToken
	hsTokenObtained
	hsTokenSet
)

func (h handshakeState) String() string {
	switch h {
	case hsAwaitingDeviceAck:
		return "awaiting-device-ack"
	case hsAwaitingToken:
		return "awaiting-token"
	case hsTokenObtained:
		return "token-obtained"
	case hsTokenSet:
		return "token-set"
	}
	return "idle"
}

// notificationBuffer bounds the handshake notification channel. The device
// emits at most a handful of frames per exchange.
const notificationBuffer = 16

// runHandshake presents or acquires the session token on a freshly
// connected link. With init=false the held token is re-presented with two
// writes and no notification wait; with init=true the full pairing exchange
// runs. Any write failure is terminal for this attempt; retry policy lives
// in the connection manager.
func (s *Session) runHandshake(ctx context.Context, init bool) error {
	if init {
		s.logger.Debug("Running initial pairing handshake")
		return s.pairHandshake(ctx)
	}
	return s.setToken()
}

// setToken re-presents the currently held token (the already-paired flow).
func (s *Session) setToken() error {
	s.logger.Debug("Setting token")
	if err := s.sendCommand(func(id wire.TransactionID) [][]byte {
		return wire.SetTokenFrames(id, s.heldOrPlaceholderToken())
	}); err != nil {
		return err
	}
	s.logger.WithField("state", hsTokenSet).Debug("Token set")
	return nil
}

// pairHandshake drives the notification-based pairing exchange:
//
//	Idle -> AwaitingDeviceAck -> AwaitingToken -> TokenObtained
//
// Notifications are forwarded from the transport callback into a bounded
// ring channel and consumed here in arrival order, so every suspension point
// is an explicit channel receive. Unrecognized payloads are ignored; the
// exchange blocks until the device acks (a human pressing the button) or ctx
// expires.
func (s *Session) pairHandshake(ctx context.Context) error {
	notifications := ringchan.New[[]byte](notificationBuffer)
	if err := s.tr.Subscribe(wire.CommandCharUUID, func(data []byte) {
		buf := make([]byte, len(data))
		copy(buf, data)
		notifications.Send(buf)
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	// Every exit drops the subscription; a retried attempt must not stack a
	// second handler on a still-up link.
	defer func() {
		if err := s.tr.Unsubscribe(wire.CommandCharUUID); err != nil {
			s.logger.WithError(err).Warn("Failed to unsubscribe from notifications")
		}
	}()

	s.logger.Debug("Waiting for device ack notification")
	if err := s.sendCommand(func(id wire.TransactionID) [][]byte {
		return wire.PairingFrames(id, s.heldOrPlaceholderToken())
	}); err != nil {
		return err
	}

	state := hsAwaitingDeviceAck
	for {
		var data []byte
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: pairing interrupted in state %s: %v", ErrTimeout, state, ctx.Err())
		case data = <-notifications.C():
		}

		n := wire.ClassifyNotification(data)
		switch n.Kind {
		case wire.KindDeviceAck:
			if state != hsAwaitingDeviceAck {
				continue
			}
			s.logger.WithField("bdaddr", n.PeerAddr).Debug("Device ack received")
			if err := s.requestToken(); err != nil {
				return err
			}
			state = hsAwaitingToken

		case wire.KindTokenDelivery:
			s.mu.Lock()
			s.token = n.Token
			s.mu.Unlock()
			s.logger.Debug("Token received")
			state = hsTokenObtained
			s.logger.WithField("state", state).Debug("Pairing complete")
			return nil

		default:
			s.logger.WithFields(logrus.Fields{
				"state":   state,
				"payload": n.Raw,
			}).Debug("Ignoring unrecognized notification")
		}
	}
}

// requestToken sends the get-token frame pair and prompts the user: token
// delivery requires a press of the physical button.
func (s *Session) requestToken() error {
	s.logger.Debug("Requesting token")
	if err := s.sendCommand(wire.GetTokenFrames); err != nil {
		return err
	}
	s.logger.Warn("Touch the button on the MicroBot to release a token")
	return nil
}

// heldOrPlaceholderToken returns the session token, or the all-ff
// placeholder the firmware accepts during initial pairing.
func (s *Session) heldOrPlaceholderToken() wire.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return placeholderToken
	}
	return s.token
}
