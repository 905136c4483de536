package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uincore/opendmtp-sub000/pkg/dmtp/queue"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"
)

func TestEncodeWireBinary(t *testing.T) {
	p := &queue.Packet{Type: wire.PktClientFixedFmtStd, Payload: []byte{1, 2, 3}}
	raw := EncodeWire(p, EncodingBinary)
	assert.Equal(t, []byte{wire.HeaderBasic, byte(wire.PktClientFixedFmtStd), 3, 1, 2, 3}, raw)

	pkt, err := ParseServerPacket(raw)
	require.NoError(t, err)
	assert.Equal(t, wire.PktClientFixedFmtStd, pkt.Type)
	assert.Equal(t, []byte{1, 2, 3}, pkt.Payload)
}

func TestEncodeWireASCIIRoundTrip(t *testing.T) {
	p := &queue.Packet{Type: wire.PktClientPropertyValue, Payload: []byte{0x10, 0x20}}
	raw := EncodeWire(p, EncodingASCII)
	assert.Equal(t, "$3E1020\r", string(raw))

	pkt, err := ParseServerPacket(raw)
	require.NoError(t, err)
	assert.Equal(t, wire.PktClientPropertyValue, pkt.Type)
	assert.Equal(t, []byte{0x10, 0x20}, pkt.Payload)
}

func TestEncodeWireASCIIChecksumVerifies(t *testing.T) {
	p := &queue.Packet{Type: wire.PktClientPropertyValue, Payload: []byte{0xAB}}
	raw := EncodeWire(p, EncodingASCIIChecksum)
	pkt, err := ParseServerPacket(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAB}, pkt.Payload)

	// Tamper one payload digit; the checksum must now fail.
	raw[3] ^= 1
	_, err = ParseServerPacket(raw)
	require.Error(t, err)
	assert.Equal(t, wire.ErrorChecksumFailed, CodeOf(err))
}

func TestParseServerPacketLengthMismatch(t *testing.T) {
	_, err := ParseServerPacket([]byte{wire.HeaderBasic, byte(wire.PktServerAck), 4, 1})
	require.Error(t, err)
	assert.Equal(t, wire.ErrorPacketLength, CodeOf(err))
}

func TestParseServerPacketUnknownHeader(t *testing.T) {
	_, err := ParseServerPacket([]byte{0x55, 0x01, 0x00})
	require.Error(t, err)
	assert.Equal(t, wire.ErrorPacketType, CodeOf(err))
}
