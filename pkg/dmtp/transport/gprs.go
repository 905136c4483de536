package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/uincore/opendmtp-sub000/internal/obslog"
)

var gprsLog = obslog.For("transport.gprs")

// GPRS modem open failures, matched with errors.Is.
var (
	ErrModemNoSignal      = errors.New("transport: gprs: insufficient signal quality")
	ErrModemNotRegistered = errors.New("transport: gprs: not registered on network")
	ErrModemDialect       = errors.New("transport: gprs: unexpected modem response")
	ErrPortNotAvailable   = errors.New("transport: gprs: port not available")
)

// Escalation deadlines for the modem reset ladder: a run of
// port-not-available failures longer than shortResetAfter asks for a
// hardware reset; any non-connectivity run longer than longResetAfter
// does the same regardless of cause.
const (
	shortResetAfter = 2 * time.Minute
	longResetAfter  = 30 * time.Minute
)

// minSignalQuality is the least +CSQ first-field value accepted before
// attempting to attach.
const minSignalQuality = 2

// GPRSConfig parameterizes the modem session: device and peer
// addressing plus the APN credentials pushed before attach.
type GPRSConfig struct {
	Device  string
	Baud    int
	APN     string
	APNUser string
	APNPass string
	Host    string
	Port    int
}

// GPRS drives an AT-command modem into a packet data session and then
// passes framed packets through transparently. The AT dialect is the
// common CIP one; modem dialects beyond it are external collaborators,
// not part of this module's contract.
type GPRS struct {
	mu  sync.Mutex
	cfg GPRSConfig

	// OpenPort opens the modem control/data port; tests substitute a
	// scripted in-memory modem. Nil uses go.bug.st/serial.
	OpenPort func(path string, baud int) (io.ReadWriteCloser, error)

	// RequestHardwareReset is invoked when the escalation ladder decides
	// the modem needs a power cycle; nil means "log only".
	RequestHardwareReset func()

	ReadTimeout time.Duration

	open bool
	kind Kind
	port io.ReadWriteCloser
	rd   *bufio.Reader

	portFailSince time.Time
	anyFailSince  time.Time
}

// NewGPRS constructs a GPRS transport for cfg.
func NewGPRS(cfg GPRSConfig) *GPRS {
	return &GPRS{cfg: cfg, ReadTimeout: defaultReadTimeout}
}

func (t *GPRS) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

// Open resets the modem, verifies signal and registration, pushes the
// APN, attaches, opens the peer connection, and enters data mode. Any
// failure closes the port and feeds the reset ladder.
func (t *GPRS) Open(kind Kind) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.open {
		return wrapErr("gprs", "open", ErrAlreadyOpen)
	}
	opener := t.OpenPort
	if opener == nil {
		opener = defaultOpenPort
	}
	port, err := opener(t.cfg.Device, t.cfg.Baud)
	if err != nil {
		t.recordFailure(ErrPortNotAvailable)
		return wrapErr("gprs", "open", ErrPortNotAvailable)
	}
	t.port = port
	t.rd = bufio.NewReader(port)
	if err := t.dialSession(kind); err != nil {
		port.Close()
		t.port = nil
		t.rd = nil
		t.recordFailure(err)
		return wrapErr("gprs", "open", err)
	}
	t.open = true
	t.kind = kind
	t.portFailSince = time.Time{}
	t.anyFailSince = time.Time{}
	return nil
}

// recordFailure runs the escalation ladder. Must hold t.mu.
func (t *GPRS) recordFailure(err error) {
	now := time.Now()
	if t.anyFailSince.IsZero() {
		t.anyFailSince = now
	}
	if errors.Is(err, ErrPortNotAvailable) {
		if t.portFailSince.IsZero() {
			t.portFailSince = now
		}
	} else {
		t.portFailSince = time.Time{}
	}
	hardReset := false
	if !t.portFailSince.IsZero() && now.Sub(t.portFailSince) > shortResetAfter {
		obslog.Critical(gprsLog, "persistent port-not-available, requesting hardware reset")
		hardReset = true
	}
	if now.Sub(t.anyFailSince) > longResetAfter {
		obslog.Critical(gprsLog, "prolonged non-connectivity, requesting hardware reset")
		hardReset = true
	}
	if hardReset {
		t.portFailSince = time.Time{}
		t.anyFailSince = time.Time{}
		if t.RequestHardwareReset != nil {
			t.RequestHardwareReset()
		}
	}
}

// dialSession walks the AT state machine up to data mode.
func (t *GPRS) dialSession(kind Kind) error {
	if _, err := t.command("ATZ", 2*time.Second); err != nil {
		return err
	}
	if _, err := t.command("ATE0", 2*time.Second); err != nil {
		return err
	}
	csq, err := t.command("AT+CSQ", 5*time.Second)
	if err != nil {
		return err
	}
	if q := parseCSQ(csq); q < minSignalQuality {
		gprsLog.Warn("signal quality below floor", "csq", q)
		return ErrModemNoSignal
	}
	creg, err := t.command("AT+CGREG?", 5*time.Second)
	if err != nil {
		return err
	}
	if !registered(creg) {
		return ErrModemNotRegistered
	}
	if _, err := t.command(fmt.Sprintf("AT+CGDCONT=1,\"IP\",%q", t.cfg.APN), 5*time.Second); err != nil {
		return err
	}
	if t.cfg.APNUser != "" {
		if _, err := t.command(fmt.Sprintf("AT+CGAUTH=1,1,%q,%q", t.cfg.APNUser, t.cfg.APNPass), 5*time.Second); err != nil {
			return err
		}
	}
	if _, err := t.command("AT+CGATT=1", 30*time.Second); err != nil {
		return err
	}
	proto := "UDP"
	if kind == Duplex {
		proto = "TCP"
	}
	open := fmt.Sprintf("AT+CIPSTART=%q,%q,%d", proto, t.cfg.Host, t.cfg.Port)
	resp, err := t.command(open, 60*time.Second)
	if err != nil {
		return err
	}
	if !strings.Contains(resp, "CONNECT") && !strings.Contains(resp, "OK") {
		return ErrModemDialect
	}
	return nil
}

// command writes one AT command and collects response lines until a
// terminal OK/ERROR/CONNECT, returning the whole response text.
func (t *GPRS) command(cmd string, timeout time.Duration) (string, error) {
	if _, err := t.port.Write([]byte(cmd + "\r")); err != nil {
		return "", err
	}
	deadline := time.Now().Add(timeout)
	var resp strings.Builder
	for time.Now().Before(deadline) {
		line, err := t.rd.ReadString('\n')
		if line != "" {
			resp.WriteString(line)
			trimmed := strings.TrimSpace(line)
			switch {
			case trimmed == "OK", strings.HasPrefix(trimmed, "CONNECT"):
				return resp.String(), nil
			case trimmed == "ERROR", strings.HasPrefix(trimmed, "+CME ERROR"):
				return resp.String(), fmt.Errorf("%w: %q to %q", ErrModemDialect, trimmed, cmd)
			}
		}
		if err != nil {
			return resp.String(), err
		}
	}
	return resp.String(), ErrReadTimeout
}

// parseCSQ extracts the first field of "+CSQ: <rssi>,<ber>"; 99 is the
// modem's "unknown" and maps to 0.
func parseCSQ(resp string) int {
	idx := strings.Index(resp, "+CSQ:")
	if idx < 0 {
		return 0
	}
	rest := strings.TrimSpace(resp[idx+5:])
	if comma := strings.IndexByte(rest, ','); comma >= 0 {
		rest = rest[:comma]
	}
	q, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || q == 99 {
		return 0
	}
	return q
}

// registered accepts +CGREG stat 1 (home) or 5 (roaming), the second
// field of "+CGREG: <n>,<stat>".
func registered(resp string) bool {
	idx := strings.Index(resp, "+CGREG:")
	if idx < 0 {
		return false
	}
	fields := strings.Split(resp[idx+7:], ",")
	if len(fields) < 2 {
		return false
	}
	stat := strings.TrimSpace(fields[1])
	if nl := strings.IndexAny(stat, "\r\n"); nl >= 0 {
		stat = stat[:nl]
	}
	return stat == "1" || stat == "5"
}

func (t *GPRS) Close(sendUDP bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return nil
	}
	t.open = false
	// Drop out of data mode before hanging up; best effort.
	time.Sleep(20 * time.Millisecond)
	t.port.Write([]byte("+++"))
	time.Sleep(20 * time.Millisecond)
	t.port.Write([]byte("AT+CIPCLOSE\r"))
	err := t.port.Close()
	t.port = nil
	t.rd = nil
	if err != nil {
		return wrapErr("gprs", "close", err)
	}
	return nil
}

func (t *GPRS) ReadPacket(buf []byte) (int, error) {
	t.mu.Lock()
	rd := t.rd
	open := t.open
	t.mu.Unlock()
	if !open {
		return 0, wrapErr("gprs", "read", ErrNotOpen)
	}
	n, err := readFramed(rd, buf)
	if err != nil {
		return n, wrapErr("gprs", "read", err)
	}
	return n, nil
}

func (t *GPRS) ReadFlush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rd != nil {
		t.rd.Reset(t.port)
	}
	return nil
}

func (t *GPRS) WritePacket(b []byte) (int, error) {
	t.mu.Lock()
	port := t.port
	open := t.open
	t.mu.Unlock()
	if !open {
		return 0, wrapErr("gprs", "write", ErrNotOpen)
	}
	n, err := port.Write(b)
	if err != nil {
		return n, wrapErr("gprs", "write", err)
	}
	return n, nil
}
