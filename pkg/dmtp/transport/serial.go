package transport

import (
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/uincore/opendmtp-sub000/internal/obslog"
)

var serialLog = obslog.For("transport.serial")

// lineBufferLimit bounds the reader goroutine's backlog of received
// lines, roughly 30 KB. Lines arriving while the buffer is full are
// dropped, never the backlog.
const lineBufferLimit = 30 * 1024

// Serial is the serial/Bluetooth media: always duplex, no accounting.
// A background goroutine drains the port into a bounded in-memory line
// buffer (CR delimiter); ReadPacket pops whole lines from it.
type Serial struct {
	path string
	baud int

	// OpenPort opens the underlying port; tests substitute an in-memory
	// pipe. Nil uses go.bug.st/serial.
	OpenPort func(path string, baud int) (io.ReadWriteCloser, error)

	// ReadTimeout bounds how long ReadPacket waits for a line.
	ReadTimeout time.Duration

	mu       sync.Mutex
	cond     *sync.Cond
	port     io.ReadWriteCloser
	open     bool
	lines    [][]byte
	buffered int
	rdErr    error
}

// NewSerial constructs a Serial transport for the device at path.
func NewSerial(path string, baud int) *Serial {
	t := &Serial{path: path, baud: baud, ReadTimeout: defaultReadTimeout}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Capabilities: duplex only, no quota/interval accounting.
func (t *Serial) Capabilities() Capabilities {
	return Capabilities{SupportsDuplex: true, BypassesQuota: true}
}

func defaultOpenPort(path string, baud int) (io.ReadWriteCloser, error) {
	mode := &serial.Mode{BaudRate: baud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
	return serial.Open(path, mode)
}

func (t *Serial) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

func (t *Serial) Open(kind Kind) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.open {
		return wrapErr("serial", "open", ErrAlreadyOpen)
	}
	if kind == Simplex {
		return wrapErr("serial", "open", ErrDuplexOnly)
	}
	opener := t.OpenPort
	if opener == nil {
		opener = defaultOpenPort
	}
	port, err := opener(t.path, t.baud)
	if err != nil {
		return wrapErr("serial", "open", err)
	}
	t.port = port
	t.open = true
	t.lines = nil
	t.buffered = 0
	t.rdErr = nil
	go t.readLoop(port)
	return nil
}

// readLoop drains the port byte-wise into CR-delimited lines until the
// port is closed out from under it.
func (t *Serial) readLoop(port io.Reader) {
	var line []byte
	var one [1]byte
	for {
		n, err := port.Read(one[:])
		if n > 0 {
			b := one[0]
			if b == '\n' {
				continue
			}
			line = append(line, b)
			if b == '\r' {
				t.pushLine(line)
				line = nil
			}
		}
		if err != nil {
			t.mu.Lock()
			t.rdErr = err
			t.cond.Broadcast()
			t.mu.Unlock()
			return
		}
	}
}

func (t *Serial) pushLine(line []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.buffered+len(line) > lineBufferLimit {
		obslog.Critical(serialLog, "line buffer overflow, dropping line", "buffered", t.buffered, "drop", len(line))
		return
	}
	t.lines = append(t.lines, line)
	t.buffered += len(line)
	t.cond.Broadcast()
}

func (t *Serial) Close(sendUDP bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return nil
	}
	t.open = false
	err := t.port.Close()
	t.port = nil
	t.cond.Broadcast()
	if err != nil {
		return wrapErr("serial", "close", err)
	}
	return nil
}

// ReadPacket pops the oldest buffered line. Waits up to ReadTimeout.
func (t *Serial) ReadPacket(buf []byte) (int, error) {
	deadline := time.Now().Add(t.ReadTimeout)
	t.mu.Lock()
	defer t.mu.Unlock()
	for len(t.lines) == 0 {
		if !t.open {
			return 0, wrapErr("serial", "read", ErrNotOpen)
		}
		if t.rdErr != nil {
			return 0, wrapErr("serial", "read", t.rdErr)
		}
		if time.Now().After(deadline) {
			return 0, wrapErr("serial", "read", ErrReadTimeout)
		}
		waitCond(t.cond, 50*time.Millisecond)
	}
	line := t.lines[0]
	t.lines = t.lines[1:]
	t.buffered -= len(line)
	if len(line) > len(buf) {
		return 0, wrapErr("serial", "read", ErrPartialPacket)
	}
	copy(buf, line)
	return len(line), nil
}

func (t *Serial) ReadFlush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = nil
	t.buffered = 0
	return nil
}

func (t *Serial) WritePacket(b []byte) (int, error) {
	t.mu.Lock()
	port := t.port
	open := t.open
	t.mu.Unlock()
	if !open {
		return 0, wrapErr("serial", "write", ErrNotOpen)
	}
	n, err := port.Write(b)
	if err != nil {
		return n, wrapErr("serial", "write", err)
	}
	return n, nil
}

// waitCond waits on c with an upper bound, since sync.Cond has no
// native timed wait. The waker goroutine broadcasts once after d.
func waitCond(c *sync.Cond, d time.Duration) {
	done := make(chan struct{})
	go func() {
		select {
		case <-done:
		case <-time.After(d):
			c.L.Lock()
			c.Broadcast()
			c.L.Unlock()
		}
	}()
	c.Wait()
	close(done)
}
