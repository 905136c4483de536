package transport

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"
)

// fakeModem scripts the AT dialog: each command written to it produces
// the canned response lines, and anything written after data mode is
// captured raw.
type fakeModem struct {
	mu        sync.Mutex
	cond      *sync.Cond
	responses map[string]string
	inbound   bytes.Buffer // what the transport reads
	dataMode  bool
	captured  bytes.Buffer // raw bytes written while in data mode
	closed    bool
}

func newFakeModem(responses map[string]string) *fakeModem {
	m := &fakeModem{responses: responses}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *fakeModem) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dataMode {
		m.captured.Write(p)
		return len(p), nil
	}
	cmd := strings.TrimSuffix(string(p), "\r")
	resp, ok := m.responses[cmd]
	if !ok {
		for k, v := range m.responses {
			if strings.HasPrefix(cmd, k) {
				resp, ok = v, true
				break
			}
		}
	}
	if !ok {
		resp = "ERROR\r\n"
	}
	m.inbound.WriteString(resp)
	if strings.Contains(resp, "CONNECT") {
		m.dataMode = true
	}
	m.cond.Broadcast()
	return len(p), nil
}

func (m *fakeModem) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.inbound.Len() == 0 {
		if m.closed {
			return 0, io.EOF
		}
		m.cond.Wait()
	}
	return m.inbound.Read(p)
}

func (m *fakeModem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
	return nil
}

// queueInbound injects server-to-client bytes readable in data mode.
func (m *fakeModem) queueInbound(b []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbound.Write(b)
	m.cond.Broadcast()
}

func goodModemScript() map[string]string {
	return map[string]string{
		"ATZ":        "OK\r\n",
		"ATE0":       "OK\r\n",
		"AT+CSQ":     "+CSQ: 18,0\r\nOK\r\n",
		"AT+CGREG?":  "+CGREG: 0,1\r\nOK\r\n",
		"AT+CGDCONT": "OK\r\n",
		"AT+CGATT=1": "OK\r\n",
		"AT+CIPSTART": "CONNECT\r\n",
	}
}

func newTestGPRS(modem *fakeModem) *GPRS {
	g := NewGPRS(GPRSConfig{Device: "/dev/modem", Baud: 115200, APN: "internet", Host: "example.net", Port: 31000})
	g.OpenPort = func(string, int) (io.ReadWriteCloser, error) { return modem, nil }
	g.ReadTimeout = time.Second
	return g
}

func TestGPRSOpensThroughATLadder(t *testing.T) {
	modem := newFakeModem(goodModemScript())
	g := newTestGPRS(modem)
	require.NoError(t, g.Open(Duplex))
	assert.True(t, g.IsOpen())

	out := []byte{wire.HeaderBasic, 0x31, 1, 0xAA}
	_, err := g.WritePacket(out)
	require.NoError(t, err)
	assert.Equal(t, out, modem.captured.Bytes())

	modem.queueInbound([]byte{wire.HeaderBasic, byte(wire.PktServerEOT), 0})
	buf := make([]byte, 16)
	n, err := g.ReadPacket(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{wire.HeaderBasic, byte(wire.PktServerEOT), 0}, buf[:n])
}

func TestGPRSRejectsWeakSignal(t *testing.T) {
	script := goodModemScript()
	script["AT+CSQ"] = "+CSQ: 1,0\r\nOK\r\n"
	g := newTestGPRS(newFakeModem(script))
	err := g.Open(Duplex)
	assert.ErrorIs(t, err, ErrModemNoSignal)
	assert.False(t, g.IsOpen())
}

func TestGPRSRejectsUnregistered(t *testing.T) {
	script := goodModemScript()
	script["AT+CGREG?"] = "+CGREG: 0,2\r\nOK\r\n"
	g := newTestGPRS(newFakeModem(script))
	err := g.Open(Duplex)
	assert.ErrorIs(t, err, ErrModemNotRegistered)
}

func TestGPRSPortNotAvailableFeedsResetLadder(t *testing.T) {
	g := NewGPRS(GPRSConfig{Device: "/dev/modem", Baud: 115200})
	g.OpenPort = func(string, int) (io.ReadWriteCloser, error) { return nil, ErrPortNotAvailable }

	resets := 0
	g.RequestHardwareReset = func() { resets++ }

	err := g.Open(Duplex)
	assert.ErrorIs(t, err, ErrPortNotAvailable)
	assert.Zero(t, resets)

	// Backdate the failure run past the short-reset deadline; the next
	// failure escalates.
	g.mu.Lock()
	g.portFailSince = time.Now().Add(-shortResetAfter - time.Minute)
	g.mu.Unlock()
	_ = g.Open(Duplex)
	assert.Equal(t, 1, resets)
}

func TestParseCSQ(t *testing.T) {
	assert.Equal(t, 18, parseCSQ("+CSQ: 18,0\r\nOK\r\n"))
	assert.Equal(t, 0, parseCSQ("+CSQ: 99,99\r\nOK\r\n"))
	assert.Equal(t, 0, parseCSQ("garbage"))
}

func TestRegistered(t *testing.T) {
	assert.True(t, registered("+CGREG: 0,1\r\nOK\r\n"))
	assert.True(t, registered("+CGREG: 0,5\r\nOK\r\n"))
	assert.False(t, registered("+CGREG: 0,2\r\nOK\r\n"))
	assert.False(t, registered("OK\r\n"))
}
