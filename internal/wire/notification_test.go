package wire

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// payload builds a raw notification: a 2-byte header followed by the body
// the classifier inspects.
func payload(t *testing.T, bodyHex string) []byte {
	t.Helper()
	b, err := hex.DecodeString("beef" + bodyHex)
	require.NoError(t, err)
	return b
}

func TestClassifyNotificationDeviceAck(t *testing.T) {
	tests := []struct {
		name     string
		bodyHex  string
		wantAddr string
	}{
		{
			name:     "ack variant 0f0101",
			bodyHex:  "0f0101" + "e4b021c86a1e" + "000000000000000000",
			wantAddr: "e4b021c86a1e",
		},
		{
			name:     "ack variant 0f0102",
			bodyHex:  "0f0102" + "d0a1b2c3d4e5" + "000000000000000000",
			wantAddr: "d0a1b2c3d4e5",
		},
		{
			name: "trailing bytes do not matter",
			// Same prefix, arbitrary garbage outside the matched fields.
			bodyHex:  "0f0101" + "e4b021c86a1e" + "deadbeefcafe0123456789",
			wantAddr: "e4b021c86a1e",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := ClassifyNotification(payload(t, tt.bodyHex))
			assert.Equal(t, KindDeviceAck, n.Kind)
			assert.Equal(t, tt.wantAddr, n.PeerAddr)
		})
	}
}

func TestClassifyNotificationTokenDelivery(t *testing.T) {
	// Delivered tokens carry an all-zero trailing segment; the middle
	// segment must be non-zero for the payload to qualify.
	const tokenHex = "112233445566778899aabbcc00000000"

	n := ClassifyNotification(payload(t, "1fff"+tokenHex))
	assert.Equal(t, KindTokenDelivery, n.Kind)
	assert.Equal(t, Token(tokenHex), n.Token)
}

func TestClassifyNotificationUnrecognized(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "nil payload", data: nil},
		{name: "empty payload", data: []byte{}},
		{name: "single byte", data: []byte{0x1f}},
		{name: "one short of frame width", data: make([]byte, 19)},
		{name: "all zeros at frame width", data: make([]byte, 20)},
		{name: "random noise", data: []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				n := ClassifyNotification(tt.data)
				assert.Equal(t, KindUnrecognized, n.Kind)
				assert.Empty(t, n.Token)
				assert.Empty(t, n.PeerAddr)
			})
		})
	}

	t.Run("token pattern with all-zero middle", func(t *testing.T) {
		n := ClassifyNotification(payload(t, "1fff"+"000000000000000000000000"+"00000000"))
		assert.Equal(t, KindUnrecognized, n.Kind)
	})

	t.Run("token pattern with non-zero tail", func(t *testing.T) {
		n := ClassifyNotification(payload(t, "1fff"+"112233445566778899aabbcc"+"00000001"))
		assert.Equal(t, KindUnrecognized, n.Kind)
	})

	t.Run("raw hex kept for diagnostics", func(t *testing.T) {
		n := ClassifyNotification([]byte{0xde, 0xad})
		assert.Equal(t, "dead", n.Raw)
	})
}
