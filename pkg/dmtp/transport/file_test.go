package transport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"
)

func TestFileRejectsDuplex(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "out.dmtp"))
	err := f.Open(Duplex)
	assert.ErrorIs(t, err, ErrSimplexOnly)
	assert.False(t, f.IsOpen())
}

func TestFileSimplexBuffersUntilClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.dmtp")
	f := NewFile(path)
	require.NoError(t, f.Open(Simplex))

	_, err := f.WritePacket([]byte{wire.HeaderBasic, 0x31, 1, 0xAA})
	require.NoError(t, err)
	_, err = f.WritePacket([]byte{wire.HeaderBasic, 0x31, 1, 0xBB})
	require.NoError(t, err)

	// Nothing on disk until Close flushes the datagram.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)

	require.NoError(t, f.Close(true))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{wire.HeaderBasic, 0x31, 1, 0xAA, wire.HeaderBasic, 0x31, 1, 0xBB}, data)
}

func TestFileCloseWithoutSendDiscards(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.dmtp")
	f := NewFile(path)
	require.NoError(t, f.Open(Simplex))
	_, err := f.WritePacket([]byte{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, f.Close(false))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestFileSyntheticReadsAlternate(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "out.dmtp"))
	require.NoError(t, f.Open(Simplex))
	defer f.Close(false)

	buf := make([]byte, 16)
	n, err := f.ReadPacket(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{wire.HeaderBasic, byte(wire.PktServerAck), 0}, buf[:n])

	n, err = f.ReadPacket(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{wire.HeaderBasic, byte(wire.PktServerEOT), 0}, buf[:n])
}

func TestFileCapabilities(t *testing.T) {
	caps := CapabilitiesOf(NewFile("x"))
	assert.True(t, caps.SupportsSimplex)
	assert.False(t, caps.SupportsDuplex)
	assert.True(t, caps.BypassesQuota)
}
