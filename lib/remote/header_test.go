package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader_Binary(t *testing.T) {
	tests := []struct {
		name   string
		header Header
	}{
		{"request", Header{Name: "register", MessageType: MessageTypeRequest, Payload: []byte{1, 2, 3}}},
		{"error response", Header{Name: "Echo", IsError: true, MessageType: MessageTypeError, Payload: []byte("boom")}},
		{"empty", Header{MessageType: MessageTypeNotify}},
		{"unicode name", Header{Name: "안녕", MessageType: MessageTypeResponse, Payload: []byte("ok")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.header.MarshalBinary()
			require.NoError(t, err)

			var got Header
			require.NoError(t, got.UnmarshalBinary(data))
			assert.Equal(t, tt.header.Name, got.Name)
			assert.Equal(t, tt.header.IsError, got.IsError)
			assert.Equal(t, tt.header.MessageType, got.MessageType)
			assert.Equal(t, len(tt.header.Payload), len(got.Payload))
			if len(tt.header.Payload) > 0 {
				assert.Equal(t, tt.header.Payload, got.Payload)
			}
		})
	}
}

func TestHeader_UnmarshalTruncated(t *testing.T) {
	h := Header{Name: "register", MessageType: MessageTypeRequest, Payload: []byte("payload")}
	data, err := h.MarshalBinary()
	require.NoError(t, err)

	for _, n := range []int{0, 3, 6, len(data) - 1} {
		var got Header
		assert.Error(t, got.UnmarshalBinary(data[:n]), "length %d", n)
	}
}

func TestHeader_UnmarshalHugeLength(t *testing.T) {
	var got Header
	assert.Error(t, got.UnmarshalBinary([]byte{0xFF, 0xFF, 0xFF, 0xFF}))
}

func TestMessageType_String(t *testing.T) {
	assert.Equal(t, "Request", MessageTypeRequest.String())
	assert.Equal(t, "Error", MessageTypeError.String())
	assert.Equal(t, "Unknown", MessageType(0x7F).String())
}
