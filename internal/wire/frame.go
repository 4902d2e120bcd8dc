// Package wire implements the binary frame format spoken over the MicroBot
// Push command characteristic. Every logical command is an ordered pair (or
// triple of pairs) of fixed-width frames: a header frame declaring the opcode
// and inline parameters, followed by a value frame carrying the 0fff sentinel
// and the payload, zero-padded to the frame width. Frames are defined as
// ASCII-hex templates and decoded to raw bytes just before transport, which
// mirrors how the firmware documentation specifies them.
package wire

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// GATT addressing for the MicroBot Push.
const (
	// ServiceUUID is advertised by every MicroBot Push.
	ServiceUUID = "0000abcd-0000-1000-8000-00805f9b34fb"
	// CommandCharUUID carries all command writes and notifications.
	CommandCharUUID = "00002a89-0000-1000-8000-00805f9b34fb"
)

// Frame body templates, without the 2-byte transaction id prefix.
// The firmware expects these byte-for-byte; only the transaction id and the
// parameter fields inside the calibration value frames vary.
const (
	initHeaderTmpl  = "00010040e20100fa01000700000000000000"
	initValueFiller = "0fffffffffffffffffffffffffff" // 14-byte unknown filler, token follows

	getTokenHeaderTmpl = "00010040e20101fa01000000000000000000"
	getTokenValueTmpl  = "0fffffffffffffffffff0000000000000000"

	setTokenHeaderTmpl = "00010000000000fa0000070000000000decd"

	pushHeaderTmpl = "000100000008020000000a0000000000decd"
	pushValueTmpl  = "0fffffffffff000000000000000000000000"

	calModeHeaderTmpl     = "000100000008030001000a0000000000decd"
	calDepthHeaderTmpl    = "000100000008040001000a0000000000decd"
	calDurationHeaderTmpl = "000100000008050001000a0000000000decd"

	// Calibration value frames are 0fff + parameter hex + zero pad to width.
	calValueZeroPad = "000000000000000000000000"

	valueSentinel = "0fff"
)

// TransactionID is the random 2-byte prefix every outbound frame carries.
// The firmware requires it for framing but does not echo it meaningfully, so
// it is never tracked for request/response correlation.
type TransactionID [2]byte

// NewTransactionID draws a transaction id from crypto/rand. The 16-bit space
// must be sampled uniformly; math/rand would be observable on the wire.
func NewTransactionID() (TransactionID, error) {
	var id TransactionID
	if _, err := rand.Read(id[:]); err != nil {
		return TransactionID{}, fmt.Errorf("failed to generate transaction id: %w", err)
	}
	return id, nil
}

// Hex returns the 4-character ASCII-hex form used in frame templates.
func (id TransactionID) Hex() string {
	return hex.EncodeToString(id[:])
}

// Token is the 16-byte session token in its 32-character ASCII-hex wire form.
type Token string

const tokenHexLen = 32

var tokenPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// ParseToken validates and normalizes a caller-supplied token string.
func ParseToken(s string) (Token, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	if !tokenPattern.MatchString(t) {
		return "", fmt.Errorf("invalid token %q: want %d hex characters", s, tokenHexLen)
	}
	return Token(t), nil
}

// Mode selects how the actuator interprets a push.
type Mode uint8

const (
	ModeNormal Mode = 0
	ModeInvert Mode = 1
	ModeToggle Mode = 2
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeInvert:
		return "invert"
	case ModeToggle:
		return "toggle"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseMode maps a mode name to its wire value. The boolean is false for
// unrecognized names; the caller decides the fallback policy.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "normal":
		return ModeNormal, true
	case "invert":
		return ModeInvert, true
	case "toggle":
		return ModeToggle, true
	}
	return ModeNormal, false
}

// CalibrationProfile holds the three actuator tuning parameters sent by the
// calibrate command. Depth is a percentage, DurationMs a 32-bit millisecond
// count encoded little-endian on the wire.
type CalibrationProfile struct {
	Mode       Mode
	Depth      uint8
	DurationMs uint32
}

// PairingFrames returns the initial-pairing header and value frames. The
// value frame embeds the currently held (or caller-supplied placeholder)
// token after the fixed filler pattern.
func PairingFrames(id TransactionID, token Token) [][]byte {
	return [][]byte{
		mustFrame(id, initHeaderTmpl),
		mustFrame(id, initValueFiller+string(token)),
	}
}

// GetTokenFrames returns the pair asking the device to emit a fresh token.
// Token delivery only happens after a human presses the physical button.
func GetTokenFrames(id TransactionID) [][]byte {
	return [][]byte{
		mustFrame(id, getTokenHeaderTmpl),
		mustFrame(id, getTokenValueTmpl),
	}
}

// SetTokenFrames returns the pair re-presenting a known token to the device.
func SetTokenFrames(id TransactionID, token Token) [][]byte {
	return [][]byte{
		mustFrame(id, setTokenHeaderTmpl),
		mustFrame(id, valueSentinel+string(token)),
	}
}

// PushFrames returns the pair triggering a physical push. The same pair
// serves push-on and push-off; the firmware toggles.
func PushFrames(id TransactionID) [][]byte {
	return [][]byte{
		mustFrame(id, pushHeaderTmpl),
		mustFrame(id, pushValueTmpl),
	}
}

// CalibrationFrames returns the three header+value pairs applying a
// calibration profile, in the firmware-required order mode, depth, duration.
// All six frames share one transaction id.
func CalibrationFrames(id TransactionID, p CalibrationProfile) [][]byte {
	var durationLE [4]byte
	binary.LittleEndian.PutUint32(durationLE[:], p.DurationMs)

	return [][]byte{
		mustFrame(id, calModeHeaderTmpl),
		mustFrame(id, fmt.Sprintf("%s%02x%s%s", valueSentinel, uint8(p.Mode), "000000", calValueZeroPad)),
		mustFrame(id, calDepthHeaderTmpl),
		mustFrame(id, fmt.Sprintf("%s%02x%s%s", valueSentinel, p.Depth, "000000", calValueZeroPad)),
		mustFrame(id, calDurationHeaderTmpl),
		mustFrame(id, valueSentinel+hex.EncodeToString(durationLE[:])+calValueZeroPad),
	}
}

// mustFrame decodes a transaction id plus hex body into wire bytes. All
// bodies are built from compile-time templates and validated parameters, so
// a decode failure is a programmer error.
func mustFrame(id TransactionID, body string) []byte {
	b, err := hex.DecodeString(id.Hex() + body)
	if err != nil {
		panic(fmt.Sprintf("wire: malformed frame body %q: %v", body, err))
	}
	return b
}
