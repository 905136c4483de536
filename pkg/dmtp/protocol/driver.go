package protocol

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/uincore/opendmtp-sub000/internal/codec"
	"github.com/uincore/opendmtp-sub000/internal/obslog"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/accounting"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/property"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/queue"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/transport"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"
)

var log = obslog.For("protocol")

// Severity thresholds: a session disconnects once it accumulates this
// many of the corresponding error kind.
const (
	maxChecksumErrors       = 3
	maxInvalidAccountErrors = 2
	maxSevereErrors         = 3
)

// severeReconnectBackoffSeconds rate-limits reconnection after severe
// errors have accumulated across sessions.
const severeReconnectBackoffSeconds = 300

// readBufSize bounds one inbound framed packet.
const readBufSize = 600

// SessionKind is the driver's duplex/simplex/none decision for one
// Run invocation.
type SessionKind int

const (
	SessionNone SessionKind = iota
	SessionSimplex
	SessionDuplex
)

// Driver orchestrates one transport's sessions. Fields mirror the
// per-transport protocol session state: two local queues (volatile is
// cleared each session, pending survives), the speak-freely/brief
// grants, the per-kind error counters, and the byte accounting.
type Driver struct {
	Transport transport.Transport
	Index     int
	Primary   bool

	Props  *property.Store
	Acct   *accounting.Accounting
	Events *queue.Queue

	Volatile *queue.Queue
	Pending  *queue.Queue

	// Now supplies the clock; tests drive a simulated one.
	Now func() int64

	// Encoding is the configured default; sessionEncoding is the copy
	// each session takes of it when it begins.
	Encoding        Encoding
	sessionEncoding Encoding

	speakFreely           bool
	speakFreelyMaxEvents  int
	relinquishSpeakFreely bool
	speakBrief            bool

	checksumErrors       int
	invalidAccountErrors int
	severeErrors         int
	crossSessionSevere   int
	lastDuplexErrorTime  int64

	totalReadBytes    uint64
	totalWriteBytes   uint64
	sessionReadBytes  uint64
	sessionWriteBytes uint64

	sentHighestSeq  uint32
	sentAnyEvents   bool
	identSent       bool

	uploadDir string
	upload    uploadState
}

// NewDriver constructs a Driver over t with its own volatile and
// pending queues.
func NewDriver(t transport.Transport, props *property.Store, acct *accounting.Accounting, events *queue.Queue) *Driver {
	d := &Driver{
		Transport: t,
		Props:     props,
		Acct:      acct,
		Events:    events,
		Volatile:  queue.New(16),
		Pending:   queue.New(16),
		Now:       func() int64 { return time.Now().Unix() },
	}
	d.Volatile.EnableOverwrite(true)
	d.Pending.EnableOverwrite(true)
	if v, err := props.GetUint32At(property.PropCommFirstBrief, 0, 0); err == nil && v != 0 {
		d.speakBrief = true
	}
	return d
}

// QueueError enqueues a client diagnostic packet (code plus optional
// payload) onto the volatile queue for the next session.
func (d *Driver) QueueError(code wire.ErrorCode, extra []byte) {
	payload := append(codec.WriteUint16BE(uint16(code)), extra...)
	_ = d.Volatile.Add(&queue.Packet{
		HeaderByte: wire.HeaderBasic,
		Type:       wire.PktClientError,
		Priority:   1,
		Payload:    payload,
	})
}

// TotalBytes returns the lifetime read and write byte counters.
func (d *Driver) TotalBytes() (read, written uint64) {
	return d.totalReadBytes, d.totalWriteBytes
}

// DecideSession applies the connection policy: duplex when there is
// something to say and the duplex quota/intervals allow it (or the
// max-interval forces it), else simplex under the same gating, else
// none. File and serial media short-circuit the accounting checks.
func (d *Driver) DecideSession(now int64) SessionKind {
	if d.crossSessionSevere >= maxSevereErrors && now-d.lastDuplexErrorTime < severeReconnectBackoffSeconds {
		return SessionNone
	}
	caps := transport.CapabilitiesOf(d.Transport)
	hasEvents := d.Events.HasPackets() || d.Volatile.HasPackets() || d.Pending.HasPackets()
	if caps.BypassesQuota {
		switch {
		case caps.SupportsDuplex:
			return SessionDuplex
		case hasEvents:
			return SessionSimplex
		default:
			return SessionNone
		}
	}
	if !d.Acct.HasQuota() {
		return SessionNone
	}
	if d.Acct.SupportsDuplex() && d.Acct.MaxIntervalExpired(now) {
		return SessionDuplex
	}
	if !hasEvents {
		return SessionNone
	}
	if !d.Acct.MinIntervalExpired(now) || !d.Acct.AbsoluteDelayExpired(now) {
		return SessionNone
	}
	if d.Acct.SupportsDuplex() && d.Acct.UnderDuplexQuota(now) {
		return SessionDuplex
	}
	if d.Acct.SupportsSimplex() && d.Acct.UnderTotalQuota(now) {
		return SessionSimplex
	}
	return SessionNone
}

// Run performs one session attempt: decide, open, identify, drain,
// converse (duplex), close, account. Returns nil when there was simply
// nothing to do.
func (d *Driver) Run() error {
	now := d.Now()
	kind := d.DecideSession(now)
	if kind == SessionNone {
		return nil
	}

	sessionID := uuid.NewString()
	tkind := transport.Simplex
	if kind == SessionDuplex {
		tkind = transport.Duplex
	}
	if err := d.Transport.Open(tkind); err != nil {
		log.Warn("transport open failed", "session", sessionID, "kind", tkind.String(), "err", err)
		d.QueueError(wire.ErrorTransportOpen, nil)
		return err
	}
	log.Debug("session open", "session", sessionID, "kind", tkind.String())

	d.beginSession()
	var sessionErr error
	if kind == SessionDuplex {
		sessionErr = d.runDuplex(now)
	} else {
		sessionErr = d.runSimplex(now)
	}

	sendUDP := kind == SessionSimplex && sessionErr == nil
	if err := d.Transport.Close(sendUDP); err != nil && sessionErr == nil {
		sessionErr = err
	}
	d.endSession(kind, now)
	log.Debug("session closed", "session", sessionID,
		"read", d.sessionReadBytes, "written", d.sessionWriteBytes, "err", sessionErr)
	if sessionErr == ErrSessionEnded {
		return nil
	}
	return sessionErr
}

// beginSession resets per-session counters and flags. It leaves the
// queues alone; the volatile queue is emptied by endSession.
func (d *Driver) beginSession() {
	d.sessionEncoding = d.Encoding
	d.sessionReadBytes = 0
	d.sessionWriteBytes = 0
	d.checksumErrors = 0
	d.invalidAccountErrors = 0
	d.severeErrors = 0
	d.sentAnyEvents = false
	d.identSent = false
	d.relinquishSpeakFreely = false
}

func (d *Driver) endSession(kind SessionKind, now int64) {
	caps := transport.CapabilitiesOf(d.Transport)
	if !caps.BypassesQuota {
		if kind == SessionDuplex {
			d.Acct.Duplex.Mark(now)
		} else {
			d.Acct.Simplex.Mark(now)
		}
	}
	d.Volatile.Reset()
	d.totalReadBytes += d.sessionReadBytes
	d.totalWriteBytes += d.sessionWriteBytes
	if d.severeErrors > 0 {
		d.crossSessionSevere += d.severeErrors
		d.lastDuplexErrorTime = now
	} else {
		d.crossSessionSevere = 0
	}
}

func (d *Driver) writePacket(p *queue.Packet) error {
	raw := EncodeWire(p, d.sessionEncoding)
	n, err := d.Transport.WritePacket(raw)
	d.sessionWriteBytes += uint64(n)
	return err
}

// sendIdentification writes the identification block: the UniqueID
// payload when configured, otherwise the account and device ID strings.
func (d *Driver) sendIdentification() error {
	if d.identSent {
		return nil
	}
	uid, err := d.Props.GetBinary(property.PropStateUniqueID)
	if err == nil && len(uid) > 0 {
		if err := d.writePacket(&queue.Packet{Type: wire.PktClientIdentifyUnique, Payload: uid}); err != nil {
			return err
		}
		d.identSent = true
		return nil
	}
	account, _ := d.Props.GetString(property.PropStateAccountID, "")
	device, _ := d.Props.GetString(property.PropStateDeviceID, "")
	payload := make([]byte, 0, len(account)+len(device)+1)
	payload = append(payload, account...)
	payload = append(payload, 0)
	payload = append(payload, device...)
	if err := d.writePacket(&queue.Packet{Type: wire.PktClientIdentify, Payload: payload}); err != nil {
		return err
	}
	d.identSent = true
	return nil
}

// drainLocal empties q in priority-first order, writing every packet.
func (d *Driver) drainLocal(q *queue.Queue) error {
	var packets []*queue.Packet
	it := q.GetIterator()
	for it.HasNext() {
		packets = append(packets, it.GetNext())
	}
	sort.SliceStable(packets, func(i, j int) bool { return packets[i].Priority > packets[j].Priority })
	for _, p := range packets {
		if err := d.writePacket(p); err != nil {
			return err
		}
	}
	q.Reset()
	return nil
}

// drainEvents writes up to max packets from the process-wide event
// queue, marking each sent and remembering the highest sequence.
func (d *Driver) drainEvents(max int) error {
	if max <= 0 {
		return nil
	}
	for _, p := range d.Events.MarkFirstNSent(max) {
		if err := d.writePacket(p); err != nil {
			return err
		}
		d.sentHighestSeq = p.Sequence
		d.sentAnyEvents = true
	}
	return nil
}

func (d *Driver) speakFirst() bool {
	v, _ := d.Props.GetUint32At(property.PropCommSpeakFirst, 0, 1)
	return v != 0
}

func (d *Driver) maxEvents(kind SessionKind) int {
	key, def := property.PropCommMaxSimplexEvents, uint32(2)
	if kind == SessionDuplex {
		key, def = property.PropCommMaxDuplexEvents, 10
	}
	v, _ := d.Props.GetUint32At(key, 0, def)
	return int(v)
}

func (d *Driver) runSimplex(now int64) error {
	if err := d.sendIdentification(); err != nil {
		return err
	}
	if err := d.drainLocal(d.Volatile); err != nil {
		return err
	}
	if err := d.drainLocal(d.Pending); err != nil {
		return err
	}
	if err := d.drainEvents(d.maxEvents(SessionSimplex)); err != nil {
		return err
	}
	// Simplex sends carry no acknowledgement; the sent events are
	// considered delivered on a successful datagram.
	if d.sentAnyEvents {
		d.Events.AcknowledgeUpTo(queue.SequenceAll, 0xFFFFFFFF)
	}
	return nil
}

func (d *Driver) runDuplex(now int64) error {
	if d.speakFirst() {
		if err := d.sendIdentification(); err != nil {
			return err
		}
		if err := d.sendFirstBlock(); err != nil {
			return err
		}
	}
	buf := make([]byte, readBufSize)
	for {
		n, err := d.Transport.ReadPacket(buf)
		if err != nil {
			return err
		}
		d.sessionReadBytes += uint64(n)
		pkt, perr := ParseServerPacket(buf[:n])
		if perr != nil {
			if disconnect := d.recordProtocolError(perr); disconnect {
				return ErrSevereErrorLimit
			}
			continue
		}
		done, derr := d.dispatch(pkt)
		if derr != nil {
			if disconnect := d.recordProtocolError(derr); disconnect {
				return ErrSevereErrorLimit
			}
		}
		if done {
			return ErrSessionEnded
		}
	}
}

// sendFirstBlock sends everything the client has to say before waiting
// on the server: local queues, then events (unless speak-brief, which
// yields after identification so the server can configure first).
func (d *Driver) sendFirstBlock() error {
	if d.speakBrief {
		d.speakBrief = false
		return nil
	}
	if err := d.drainLocal(d.Volatile); err != nil {
		return err
	}
	if err := d.drainLocal(d.Pending); err != nil {
		return err
	}
	return d.drainEvents(d.maxEvents(SessionDuplex))
}

// recordProtocolError applies the severity bookkeeping and reports
// whether the session must disconnect.
func (d *Driver) recordProtocolError(err error) bool {
	code := CodeOf(err)
	log.Warn("protocol error", "code", uint16(code), "err", err)
	switch code {
	case wire.ErrorChecksumFailed:
		d.checksumErrors++
		d.QueueError(code, nil)
		return d.checksumErrors >= maxChecksumErrors
	case wire.ErrorInvalidAccount, wire.ErrorInvalidDevice:
		d.invalidAccountErrors++
		return d.invalidAccountErrors >= maxInvalidAccountErrors
	default:
		d.severeErrors++
		d.relinquishSpeakFreely = true
		d.QueueError(code, nil)
		return d.severeErrors >= maxSevereErrors
	}
}

// dispatch interprets one server packet. The bool result is "session
// complete".
func (d *Driver) dispatch(pkt *ServerPacket) (bool, error) {
	switch pkt.Type {
	case wire.PktServerAck:
		d.applyAck(pkt.Payload)
		if d.speakFreely && !d.relinquishSpeakFreely {
			return false, d.drainEvents(d.speakFreelyMaxEvents)
		}
		return false, nil
	case wire.PktServerEOT:
		return true, nil
	case wire.PktServerGetProperty:
		return false, d.replyProperty(pkt.Payload)
	case wire.PktServerSetProperty:
		return false, d.applyProperty(pkt.Payload)
	case wire.PktServerFileUpload:
		return false, d.applyUpload(pkt.Payload)
	case wire.PktServerSpeakFreely:
		d.speakFreely = true
		d.speakFreelyMaxEvents = d.maxEvents(SessionDuplex)
		if len(pkt.Payload) >= 1 {
			d.speakFreelyMaxEvents = int(pkt.Payload[0])
		}
		return false, nil
	case wire.PktServerSpeakBrief:
		d.speakBrief = true
		return false, nil
	case wire.PktServerNak:
		code := wire.ErrorCode(codec.ReadUint16BE(pkt.Payload))
		return false, &Error{Code: code, Err: ErrSessionEnded}
	default:
		return false, &Error{Code: wire.ErrorPacketType, Err: errUnknownType(pkt.Type)}
	}
}

type unknownTypeError wire.PacketType

func (e unknownTypeError) Error() string { return "unknown server packet type" }

func errUnknownType(t wire.PacketType) error { return unknownTypeError(t) }

// applyAck acknowledges up to the sequence carried in payload; an empty
// payload acknowledges everything sent.
func (d *Driver) applyAck(payload []byte) {
	if len(payload) == 0 {
		d.Events.AcknowledgeUpTo(queue.SequenceAll, 0xFFFFFFFF)
		return
	}
	n := len(payload)
	if n > 4 {
		n = 4
	}
	seq := uint32(codec.ReadUintNBE(payload, n))
	mask := uint32(1)<<(8*n) - 1
	if n == 4 {
		mask = 0xFFFFFFFF
	}
	d.Events.AcknowledgeUpTo(seq, mask)
}

// replyProperty answers a property get with a PktClientPropertyValue:
// [key_u16][rendered value text].
func (d *Driver) replyProperty(payload []byte) error {
	if len(payload) < 2 {
		return &Error{Code: wire.ErrorPacketLength, Err: errShortPayload}
	}
	key := property.Key(codec.ReadUint16BE(payload))
	text, err := d.Props.PrintToString(key)
	if err != nil {
		d.queuePropertyError(key, err)
		return nil
	}
	reply := append(codec.WriteUint16BE(uint16(key)), text...)
	return d.writePacket(&queue.Packet{Type: wire.PktClientPropertyValue, Payload: reply})
}

// applyProperty applies a property set: [key_u16][value text]. Errors
// are reported back as a property-error packet, never fatal.
func (d *Driver) applyProperty(payload []byte) error {
	if len(payload) < 2 {
		return &Error{Code: wire.ErrorPacketLength, Err: errShortPayload}
	}
	key := property.Key(codec.ReadUint16BE(payload))
	if err := d.Props.SetFromString(key, string(payload[2:])); err != nil {
		d.queuePropertyError(key, err)
	}
	return nil
}

func (d *Driver) queuePropertyError(key property.Key, err error) {
	code := property.CombinedCode(err)
	payload := append(codec.WriteUint16BE(uint16(key)), codec.WriteUint16BE(code)...)
	_ = d.Volatile.Add(&queue.Packet{
		HeaderByte: wire.HeaderBasic,
		Type:       wire.PktClientPropertyError,
		Priority:   1,
		Payload:    payload,
	})
}

var errShortPayload = &shortPayloadError{}

type shortPayloadError struct{}

func (*shortPayloadError) Error() string { return "payload too short" }
