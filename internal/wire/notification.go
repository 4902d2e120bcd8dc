package wire

import (
	"encoding/hex"
	"strings"
)

// NotificationKind classifies an inbound notification payload.
type NotificationKind int

const (
	// KindUnrecognized covers malformed, short, or unknown payloads. They are
	// decoded for diagnostics only and never advance the handshake.
	KindUnrecognized NotificationKind = iota
	// KindDeviceAck is the peer acknowledging a pairing init step. It echoes
	// the peer's own Bluetooth address and is only emitted after a human
	// presses the physical button.
	KindDeviceAck
	// KindTokenDelivery carries a freshly minted session token.
	KindTokenDelivery
)

func (k NotificationKind) String() string {
	switch k {
	case KindDeviceAck:
		return "device-ack"
	case KindTokenDelivery:
		return "token-delivery"
	}
	return "unrecognized"
}

// Notification is the decoded form of a raw notification payload.
type Notification struct {
	Kind NotificationKind
	// PeerAddr is the hex Bluetooth address echoed in a device ack.
	PeerAddr string
	// Token is the delivered session token, set for KindTokenDelivery.
	Token Token
	// Raw is the full payload hex dump, kept for diagnostic logging.
	Raw string
}

// Notification body geometry, in hex characters after the 2-byte prefix is
// stripped. The classifier works on the ASCII-hex rendering because that is
// how the firmware protocol is specified.
const (
	notificationBodyLen = 36

	deviceAckPrefixA = "0f0101"
	deviceAckPrefixB = "0f0102"

	tokenDeliveryPrefix = "1fff"
	allZeroMiddle       = "0000000000000000000000" // body[6:28]
	allZeroTail         = "00000000"               // body[28:36]
)

// ClassifyNotification decodes a raw notification payload. It never panics:
// anything shorter than the fixed frame width, or matching neither known
// pattern, comes back as KindUnrecognized.
func ClassifyNotification(data []byte) Notification {
	raw := hex.EncodeToString(data)
	n := Notification{Kind: KindUnrecognized, Raw: raw}

	// Strip the fixed 2-byte header and require a full-width body.
	if len(raw) < 4+notificationBodyLen {
		return n
	}
	body := raw[4 : 4+notificationBodyLen]

	switch {
	case strings.HasPrefix(body, deviceAckPrefixA) || strings.HasPrefix(body, deviceAckPrefixB):
		n.Kind = KindDeviceAck
		n.PeerAddr = body[6 : 6+12]

	case strings.HasPrefix(body, tokenDeliveryPrefix) &&
		body[6:28] != allZeroMiddle &&
		body[28:36] == allZeroTail:
		n.Kind = KindTokenDelivery
		n.Token = Token(body[4 : 4+tokenHexLen])
	}

	return n
}
