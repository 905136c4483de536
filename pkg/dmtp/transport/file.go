package transport

import (
	"bytes"
	"os"
	"sync"

	"github.com/uincore/opendmtp-sub000/internal/obslog"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"
)

var fileLog = obslog.For("transport.file")

// File appends sessions to a local file, mainly for bench testing the
// protocol driver without a server. Simplex only: Open(Duplex) is
// rejected. Reads alternately return a synthetic ACK then EOT so a
// driver that reads from it still terminates cleanly.
type File struct {
	mu       sync.Mutex
	path     string
	f        *os.File
	open     bool
	kind     Kind
	datagram bytes.Buffer
	readStep int
}

// NewFile constructs a File transport appending to path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Capabilities: simplex only, no quota/interval accounting.
func (t *File) Capabilities() Capabilities {
	return Capabilities{SupportsSimplex: true, BypassesQuota: true}
}

func (t *File) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

func (t *File) Open(kind Kind) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.open {
		return wrapErr("file", "open", ErrAlreadyOpen)
	}
	if kind == Duplex {
		return wrapErr("file", "open", ErrSimplexOnly)
	}
	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return wrapErr("file", "open", err)
	}
	t.f = f
	t.kind = kind
	t.open = true
	t.readStep = 0
	t.datagram.Reset()
	return nil
}

func (t *File) Close(sendUDP bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return nil
	}
	t.open = false
	var werr error
	if sendUDP && t.datagram.Len() > 0 {
		_, werr = t.f.Write(t.datagram.Bytes())
	}
	t.datagram.Reset()
	cerr := t.f.Close()
	t.f = nil
	if werr != nil {
		return wrapErr("file", "close", werr)
	}
	if cerr != nil {
		return wrapErr("file", "close", cerr)
	}
	return nil
}

// ReadPacket alternates a synthetic server ACK (acknowledging all sent
// packets) and an EOT.
func (t *File) ReadPacket(buf []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return 0, wrapErr("file", "read", ErrNotOpen)
	}
	var pkt []byte
	if t.readStep%2 == 0 {
		pkt = []byte{wire.HeaderBasic, byte(wire.PktServerAck), 0}
	} else {
		pkt = []byte{wire.HeaderBasic, byte(wire.PktServerEOT), 0}
	}
	t.readStep++
	if len(buf) < len(pkt) {
		return 0, wrapErr("file", "read", ErrPartialPacket)
	}
	copy(buf, pkt)
	return len(pkt), nil
}

func (t *File) ReadFlush() error { return nil }

func (t *File) WritePacket(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return 0, wrapErr("file", "write", ErrNotOpen)
	}
	if t.kind == Simplex {
		return t.datagram.Write(b)
	}
	n, err := t.f.Write(b)
	if err != nil {
		fileLog.Error("write failed", "err", err)
		return n, wrapErr("file", "write", err)
	}
	return n, nil
}
