package client

import (
	"context"
	"fmt"
	"time"

	"github.com/keymitt/microbot/internal/wire"
	"github.com/keymitt/microbot/pkg/transport"
)

// Connect ensures the link is up and the session token is presented to (or
// obtained from, when init is true) the device. It is idempotent: when
// already connected it returns immediately without touching the transport.
//
// The whole connect+handshake sequence is retried with a fixed backoff until
// the retry budget is consumed; the final failure is logged and returned as
// a retries-exhausted error, which command operations swallow.
func (s *Session) Connect(ctx context.Context, init bool) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.connect(ctx, init)
}

func (s *Session) connect(ctx context.Context, init bool) error {
	var lastErr error
	for attempt := 1; attempt <= s.retryCount; attempt++ {
		s.logger.WithField("address", s.Address()).Debug("Connecting")

		lastErr = s.connectOnce(ctx, init)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		if attempt == s.retryCount {
			break
		}

		s.logger.WithError(lastErr).Debug("Retrying connect")
		select {
		case <-time.After(retryBackoff):
		case <-ctx.Done():
			lastErr = ctx.Err()
		}
		if ctx.Err() != nil {
			break
		}
	}

	err := fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
	s.logger.WithError(lastErr).Error("Failed to connect")
	return err
}

// connectOnce performs one transport connect plus handshake. The transport
// connect runs under the process-wide coordinator because the BLE stack
// cannot serve concurrent connection attempts; the handshake runs outside
// it, since waiting for a human button press must not stall other sessions.
func (s *Session) connectOnce(ctx context.Context, init bool) error {
	if s.IsConnected(ctx) {
		s.logger.Debug("Already connected")
		return nil
	}

	if err := s.coord.Acquire(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	err := s.tr.Connect(ctx, &transport.ConnectOptions{
		Address:           s.Address(),
		Name:              s.Name(),
		ConnectTimeout:    s.timeout,
		OnDisconnect:      s.handleUnexpectedDisconnect,
		UseCachedServices: true,
	})
	s.coord.Release()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	if err := s.runHandshake(ctx, init); err != nil {
		// The link is up but the token was never presented. Tear it down so
		// the next attempt redials and re-runs the whole sequence instead of
		// short-circuiting on the connected check above.
		s.disconnect()
		return err
	}
	return nil
}

// Disconnect tears the link down. Failures are logged, never fatal.
func (s *Session) Disconnect() {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.disconnect()
}

func (s *Session) disconnect() {
	s.logger.WithField("address", s.Address()).Debug("Disconnecting")
	if err := s.tr.Disconnect(); err != nil {
		s.logger.WithError(err).Error("Disconnect failed")
	}
}

// IsConnected reports transport liveness with a bounded wait. Timeouts and
// transport errors read as not connected.
func (s *Session) IsConnected(ctx context.Context) bool {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.tr.IsConnected(ctx)
}

// handleUnexpectedDisconnect is invoked by the transport on link loss. The
// session only records the event; the next command re-establishes the link.
func (s *Session) handleUnexpectedDisconnect() {
	s.logger.WithField("address", s.Address()).Warn("Connection lost")
}

// writeFrames writes frames in strict sequence, each awaited for the
// transport-level acknowledgement before the next is sent.
func (s *Session) writeFrames(frames [][]byte) error {
	for _, frame := range frames {
		if err := s.tr.WriteCharacteristic(wire.CommandCharUUID, frame, true); err != nil {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
	}
	return nil
}

// sendCommand generates a fresh transaction id and writes the built frames.
func (s *Session) sendCommand(build func(wire.TransactionID) [][]byte) error {
	id, err := wire.NewTransactionID()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return s.writeFrames(build(id))
}
