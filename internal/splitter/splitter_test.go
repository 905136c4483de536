package splitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"
)

func binaryPacket(typ byte, payload []byte) []byte {
	out := []byte{wire.HeaderBasic, typ, byte(len(payload))}
	return append(out, payload...)
}

func TestSplitTwoCompleteBinaryPackets(t *testing.T) {
	data := append(binaryPacket(0x31, []byte{1, 2, 3}), binaryPacket(0x32, nil)...)
	packets, residue, err := SplitPackets(data)
	require.NoError(t, err)
	require.Len(t, packets, 2)
	assert.Empty(t, residue)
	assert.Equal(t, byte(0x31), packets[0][1])
	assert.Equal(t, byte(0x32), packets[1][1])
}

func TestSplitKeepsFragmentAsResidue(t *testing.T) {
	full := binaryPacket(0x31, []byte{1, 2, 3, 4})
	data := append(append([]byte{}, full...), wire.HeaderBasic, 0x32) // missing len byte
	packets, residue, err := SplitPackets(data)
	require.NoError(t, err)
	require.Len(t, packets, 1)
	assert.Equal(t, []byte{wire.HeaderBasic, 0x32}, residue)
}

func TestSplitASCIIPacket(t *testing.T) {
	data := []byte("$3E1234,value\r")
	packets, residue, err := SplitPackets(data)
	require.NoError(t, err)
	require.Len(t, packets, 1)
	assert.Empty(t, residue)
	assert.Equal(t, data, packets[0])

	typ, err := PacketType(packets[0])
	require.NoError(t, err)
	assert.Equal(t, wire.PktClientPropertyValue, typ)
}

func TestSplitResyncsPastGarbage(t *testing.T) {
	data := append([]byte{0x00, 0x7F}, binaryPacket(0x31, []byte{9})...)
	packets, residue, err := SplitPackets(data)
	require.NoError(t, err)
	require.Len(t, packets, 1)
	assert.Empty(t, residue)
}

func TestSplitAllGarbageErrors(t *testing.T) {
	_, _, err := SplitPackets([]byte{0x00, 0x01, 0x02})
	assert.Error(t, err)
}

func TestValidateStructure(t *testing.T) {
	assert.NoError(t, ValidateStructure(binaryPacket(0x31, []byte{1})))
	assert.Error(t, ValidateStructure([]byte{wire.HeaderBasic, 0x31, 5, 1})) // short payload
	assert.NoError(t, ValidateStructure([]byte("$83\r")))
	assert.Error(t, ValidateStructure([]byte("$83")))
}

func TestHasCompletePacket(t *testing.T) {
	assert.True(t, HasCompletePacket(binaryPacket(0x31, []byte{1})))
	assert.False(t, HasCompletePacket([]byte{wire.HeaderBasic, 0x31}))
	assert.True(t, HasCompletePacket([]byte("$83\r")))
	assert.False(t, HasCompletePacket([]byte("$83")))
}
