package event

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"
)

func TestFieldDescriptorPacking(t *testing.T) {
	fd := FieldDescriptor{Type: FieldSpeed, HiRes: true, Index: 2, Length: 2}
	packed := fd.Pack24()
	assert.Equal(t, fd, Unpack24(packed))

	// bit 23 hi_res, bits 22..16 type, bits 15..8 index, bits 7..0 length
	assert.Equal(t, uint32(1), (packed>>23)&1)
	assert.Equal(t, uint32(FieldSpeed), (packed>>16)&0x7F)
	assert.Equal(t, uint32(2), (packed>>8)&0xFF)
	assert.Equal(t, uint32(2), packed&0xFF)
}

func TestEncodeFixedEventBasicFields(t *testing.T) {
	ev := New(wire.StatusInitialized, 1700000000)
	ev.Point = Point{Lat: 37.7749, Lon: -122.4194}
	ev.SpeedKPH = 42.5

	format := FormatDef{
		TypeNibble: 1,
		Fields: []FieldDescriptor{
			{Type: FieldStatusCode, Length: 2},
			{Type: FieldTimestamp, Length: 4},
			{Type: FieldGPSPoint, Length: 6},
			{Type: FieldSpeed, HiRes: true, Length: 2},
		},
	}

	enc := NewEncoder(2)
	out, err := enc.Encode(format, ev)
	require.NoError(t, err)
	require.Len(t, out.Payload, 2+4+6+2)

	status := binary.BigEndian.Uint16(out.Payload[0:2])
	assert.Equal(t, uint16(wire.StatusInitialized), status)

	ts := binary.BigEndian.Uint32(out.Payload[2:6])
	assert.Equal(t, uint32(1700000000), ts)

	point := DecodePoint6([6]byte(out.Payload[6:12]))
	assert.InDelta(t, ev.Point.Lat, point.Lat, 1e-3)

	speed := binary.BigEndian.Uint16(out.Payload[12:14])
	assert.Equal(t, uint16(425), speed)

	assert.True(t, out.HasSequence)
	assert.Equal(t, uint32(0), out.Sequence)
}

func TestEncodeSequenceIncrementsAndWraps(t *testing.T) {
	enc := NewEncoder(1) // 1-byte sequence wraps at 256
	ev := New(wire.StatusLocation, 0)
	format := FormatDef{Fields: []FieldDescriptor{{Type: FieldStatusCode, Length: 2}}}

	var last uint32
	for i := 0; i < 300; i++ {
		out, err := enc.Encode(format, ev)
		require.NoError(t, err)
		if i > 0 {
			assert.Equal(t, (last+1)%256, out.Sequence)
		}
		last = out.Sequence
	}
}

func TestTemperatureSaturation(t *testing.T) {
	ev := New(wire.StatusTempRange, 0)
	ev.TempAvg[0] = 500.0 // exceeds the 1-byte ±126.0 cap

	format := FormatDef{Fields: []FieldDescriptor{{Type: FieldTempAvg, Index: 0, Length: 1}}}
	enc := NewEncoder(0)
	out, err := enc.Encode(format, ev)
	require.NoError(t, err)
	assert.Equal(t, byte(126), out.Payload[0])
}
