// Package transport implements the four interchangeable session media
// (file, UDP/TCP socket, serial/Bluetooth, GPRS modem) behind the
// six-function contract the protocol driver dispatches through.
package transport

import (
	"errors"
	"fmt"
	"io"
)

// Kind selects a session's direction model.
type Kind int

const (
	// Simplex is one-way: writes are buffered and shipped as a single
	// datagram on close, no reads.
	Simplex Kind = iota
	// Duplex is bidirectional: the client sends and then reads server
	// acknowledgements and control packets.
	Duplex
)

func (k Kind) String() string {
	if k == Duplex {
		return "duplex"
	}
	return "simplex"
}

// Transport is the media contract. A Transport is owned by exactly one
// protocol driver and its methods are never called concurrently; each
// implementation still guards any internal reader goroutine state with
// its own lock.
type Transport interface {
	// IsOpen reports whether a session is currently open.
	IsOpen() bool
	// Open begins a session of the given kind. Media that support only
	// one kind reject the other with ErrSimplexOnly / ErrDuplexOnly.
	Open(kind Kind) error
	// Close ends the session. For simplex sessions sendUDP flushes the
	// buffered writes as one datagram before closing; passing false
	// discards them.
	Close(sendUDP bool) error
	// ReadPacket reads one complete framed packet into buf, returning
	// the byte count.
	ReadPacket(buf []byte) (int, error)
	// ReadFlush discards any buffered inbound bytes.
	ReadFlush() error
	// WritePacket writes one framed packet, returning the byte count.
	WritePacket(b []byte) (int, error)
}

// Capabilities beyond the base contract: file supports simplex only,
// serial supports duplex only, and both bypass the connection
// accounting quota and interval checks.
type Capabilities struct {
	SupportsSimplex bool
	SupportsDuplex  bool
	BypassesQuota   bool
}

// Capability probing; media not implementing Capabilitied get the
// default (both kinds, quota enforced).
type Capabilitied interface {
	Capabilities() Capabilities
}

// CapabilitiesOf returns t's Capabilities, or the socket/GPRS default.
func CapabilitiesOf(t Transport) Capabilities {
	if c, ok := t.(Capabilitied); ok {
		return c.Capabilities()
	}
	return Capabilities{SupportsSimplex: true, SupportsDuplex: true}
}

// IntervalFloors are the minimum in-motion and dormant event cadences a
// media can sustain: a file costs nothing per event, a serial link very
// little, a network session real airtime and quota.
type IntervalFloors struct {
	InMotionSeconds uint32
	DormantSeconds  uint32
}

// FloorsOf returns the interval floors for t, keyed off its
// capabilities: file media (simplex-only, quota bypassed) have no
// floor, serial/Bluetooth (duplex-only, quota bypassed) a small one,
// and every networked media the full one.
func FloorsOf(t Transport) IntervalFloors {
	caps := CapabilitiesOf(t)
	switch {
	case caps.BypassesQuota && !caps.SupportsDuplex:
		return IntervalFloors{}
	case caps.BypassesQuota && caps.SupportsDuplex:
		return IntervalFloors{InMotionSeconds: 20, DormantSeconds: 20}
	default:
		return IntervalFloors{InMotionSeconds: 60, DormantSeconds: 300}
	}
}

// Sentinel conditions, matched with errors.Is.
var (
	ErrNotOpen       = errors.New("transport: not open")
	ErrAlreadyOpen   = errors.New("transport: already open")
	ErrSimplexOnly   = errors.New("transport: media supports simplex only")
	ErrDuplexOnly    = errors.New("transport: media supports duplex only")
	ErrReadTimeout   = errors.New("transport: read timeout")
	ErrPartialPacket = errors.New("transport: partial packet")
)

// Error wraps a failure with the media name and operation that raised
// it, following the layered error pattern used throughout this module.
type Error struct {
	Media string
	Op    string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: %s: %s: %v", e.Media, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrapErr(media, op string, err error) error {
	return &Error{Media: media, Op: op, Err: err}
}

// IsTimeout reports whether err is a read-timeout condition, either our
// own sentinel or a net.Error-style timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, ErrReadTimeout) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// readFramed reads one packet of either framing family from r into buf:
// a 3-byte binary header followed by the declared payload length, or an
// ASCII line read through its '\r' terminator. A short read anywhere is
// ErrPartialPacket; the protocol fails hard rather than resynchronizing
// mid-session.
func readFramed(r io.Reader, buf []byte) (int, error) {
	if len(buf) < 3 {
		return 0, ErrPartialPacket
	}
	if _, err := io.ReadFull(r, buf[:1]); err != nil {
		return 0, err
	}
	if buf[0] == '$' {
		n := 1
		for {
			if n >= len(buf) {
				return n, ErrPartialPacket
			}
			if _, err := io.ReadFull(r, buf[n:n+1]); err != nil {
				return n, partialOn(err)
			}
			n++
			if buf[n-1] == '\r' {
				return n, nil
			}
		}
	}
	if _, err := io.ReadFull(r, buf[1:3]); err != nil {
		return 1, partialOn(err)
	}
	length := int(buf[2])
	if length == 0 {
		return 3, nil
	}
	if 3+length > len(buf) {
		return 3, ErrPartialPacket
	}
	if _, err := io.ReadFull(r, buf[3:3+length]); err != nil {
		return 3, partialOn(err)
	}
	return 3 + length, nil
}

func partialOn(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrPartialPacket
	}
	return err
}
