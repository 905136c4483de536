package transport

import (
	"bytes"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/uincore/opendmtp-sub000/internal/obslog"
)

var sockLog = obslog.For("transport.socket")

// Socket speaks to the server over IP: a TCP client connection for
// duplex sessions, and a single UDP datagram (buffered writes collapsed
// on close) for simplex.
type Socket struct {
	mu   sync.Mutex
	host string
	port int

	open     bool
	kind     Kind
	conn     net.Conn
	datagram bytes.Buffer

	// DialTimeout bounds the duplex TCP connect; ReadTimeout bounds each
	// ReadPacket. Zero values take the defaults.
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

const (
	defaultDialTimeout = 20 * time.Second
	defaultReadTimeout = 30 * time.Second
)

// NewSocket constructs a Socket transport targeting host:port.
func NewSocket(host string, port int) *Socket {
	return &Socket{host: host, port: port}
}

func (t *Socket) addr() string { return net.JoinHostPort(t.host, fmt.Sprintf("%d", t.port)) }

func (t *Socket) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

func (t *Socket) Open(kind Kind) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.open {
		return wrapErr("socket", "open", ErrAlreadyOpen)
	}
	if kind == Duplex {
		d := t.DialTimeout
		if d == 0 {
			d = defaultDialTimeout
		}
		conn, err := net.DialTimeout("tcp", t.addr(), d)
		if err != nil {
			return wrapErr("socket", "open", err)
		}
		t.conn = conn
	}
	t.kind = kind
	t.open = true
	t.datagram.Reset()
	return nil
}

func (t *Socket) Close(sendUDP bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return nil
	}
	t.open = false
	if t.kind == Duplex {
		err := t.conn.Close()
		t.conn = nil
		if err != nil {
			return wrapErr("socket", "close", err)
		}
		return nil
	}
	defer t.datagram.Reset()
	if !sendUDP || t.datagram.Len() == 0 {
		return nil
	}
	conn, err := net.Dial("udp", t.addr())
	if err != nil {
		return wrapErr("socket", "close", err)
	}
	defer conn.Close()
	if _, err := conn.Write(t.datagram.Bytes()); err != nil {
		sockLog.Error("datagram send failed", "bytes", t.datagram.Len(), "err", err)
		return wrapErr("socket", "close", err)
	}
	return nil
}

func (t *Socket) ReadPacket(buf []byte) (int, error) {
	t.mu.Lock()
	conn := t.conn
	open := t.open
	kind := t.kind
	rt := t.ReadTimeout
	t.mu.Unlock()
	if !open {
		return 0, wrapErr("socket", "read", ErrNotOpen)
	}
	if kind != Duplex {
		return 0, wrapErr("socket", "read", ErrSimplexOnly)
	}
	if rt == 0 {
		rt = defaultReadTimeout
	}
	_ = conn.SetReadDeadline(time.Now().Add(rt))
	n, err := readFramed(conn, buf)
	if err != nil {
		if IsTimeout(err) {
			return n, wrapErr("socket", "read", ErrReadTimeout)
		}
		return n, wrapErr("socket", "read", err)
	}
	return n, nil
}

// ReadFlush drains whatever the server has already sent without
// blocking for more.
func (t *Socket) ReadFlush() error {
	t.mu.Lock()
	conn := t.conn
	open := t.open
	kind := t.kind
	t.mu.Unlock()
	if !open || kind != Duplex {
		return nil
	}
	var scratch [512]byte
	for {
		_ = conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
		n, err := conn.Read(scratch[:])
		if n == 0 || err != nil {
			break
		}
	}
	_ = conn.SetReadDeadline(time.Time{})
	return nil
}

func (t *Socket) WritePacket(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return 0, wrapErr("socket", "write", ErrNotOpen)
	}
	if t.kind == Simplex {
		return t.datagram.Write(b)
	}
	n, err := t.conn.Write(b)
	if err != nil {
		return n, wrapErr("socket", "write", err)
	}
	return n, nil
}
