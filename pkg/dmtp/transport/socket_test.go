package transport

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"
)

func listenTCP(t *testing.T) (net.Listener, int) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	_, portStr, _ := net.SplitHostPort(l.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return l, port
}

func TestSocketDuplexWriteAndFramedRead(t *testing.T) {
	l, port := listenTCP(t)
	received := make(chan []byte, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		received <- append([]byte(nil), buf[:n]...)
		// Reply with a binary ACK carrying one sequence byte.
		conn.Write([]byte{wire.HeaderBasic, byte(wire.PktServerAck), 1, 0x07})
	}()

	s := NewSocket("127.0.0.1", port)
	require.NoError(t, s.Open(Duplex))
	defer s.Close(false)

	out := []byte{wire.HeaderBasic, 0x31, 2, 0xAA, 0xBB}
	_, err := s.WritePacket(out)
	require.NoError(t, err)
	assert.Equal(t, out, <-received)

	buf := make([]byte, 64)
	n, err := s.ReadPacket(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{wire.HeaderBasic, byte(wire.PktServerAck), 1, 0x07}, buf[:n])
}

func TestSocketReadFailsHardOnPartialPacket(t *testing.T) {
	l, port := listenTCP(t)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		// Declared payload of 5 bytes but only 2 delivered.
		conn.Write([]byte{wire.HeaderBasic, byte(wire.PktServerAck), 5, 1, 2})
		conn.Close()
	}()

	s := NewSocket("127.0.0.1", port)
	s.ReadTimeout = time.Second
	require.NoError(t, s.Open(Duplex))
	defer s.Close(false)

	buf := make([]byte, 64)
	_, err := s.ReadPacket(buf)
	assert.ErrorIs(t, err, ErrPartialPacket)
}

func TestSocketSimplexCollapsesIntoOneDatagram(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	_, portStr, _ := net.SplitHostPort(pc.LocalAddr().String())
	port, _ := strconv.Atoi(portStr)

	s := NewSocket("127.0.0.1", port)
	require.NoError(t, s.Open(Simplex))
	_, err = s.WritePacket([]byte{wire.HeaderBasic, 0x31, 1, 0xAA})
	require.NoError(t, err)
	_, err = s.WritePacket([]byte{wire.HeaderBasic, 0x31, 1, 0xBB})
	require.NoError(t, err)
	require.NoError(t, s.Close(true))

	pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 256)
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{wire.HeaderBasic, 0x31, 1, 0xAA, wire.HeaderBasic, 0x31, 1, 0xBB}, buf[:n])
}

func TestSocketASCIIRead(t *testing.T) {
	l, port := listenTCP(t)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		conn.Write([]byte("$83\r"))
		conn.Close()
	}()

	s := NewSocket("127.0.0.1", port)
	require.NoError(t, s.Open(Duplex))
	defer s.Close(false)

	buf := make([]byte, 64)
	n, err := s.ReadPacket(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("$83\r"), buf[:n])
}
