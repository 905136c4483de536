package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUint24BERoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 0x123456, 0xFFFFFF} {
		assert.Equal(t, v, ReadUint24BE(WriteUint24BE(v)))
	}
	// Only the low 24 bits survive.
	assert.Equal(t, uint32(0x234567), ReadUint24BE(WriteUint24BE(0x01234567)))
}

func TestUintNBE(t *testing.T) {
	b := WriteUintNBE(0x0102030405, 5)
	require.Equal(t, []byte{1, 2, 3, 4, 5}, b)
	assert.Equal(t, uint64(0x0102030405), ReadUintNBE(b, 5))

	assert.Nil(t, WriteUintNBE(1, 0))
	assert.Nil(t, WriteUintNBE(1, 9))
	assert.Equal(t, uint64(0), ReadUintNBE([]byte{1}, 2))
}

func TestNibbles(t *testing.T) {
	hi, lo := ReadNibbles(0xA5)
	assert.Equal(t, byte(0xA), hi)
	assert.Equal(t, byte(0x5), lo)
	assert.Equal(t, byte(0xA5), WriteNibbles(hi, lo))
}

func TestHexRoundTrip(t *testing.T) {
	b, err := HexToBytes("E03103")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xE0, 0x31, 0x03}, b)
	assert.Equal(t, "E03103", BytesToHex(b))

	odd, err := HexToBytes("F01")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0F, 0x01}, odd)

	_, err = HexToBytes("zz")
	assert.Error(t, err)
}
