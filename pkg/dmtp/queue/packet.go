// Package queue implements the packet representation and the bounded
// priority-ordered circular buffer that holds encoded packets awaiting
// transmission.
package queue

import "github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"

// Packet is one framed unit, either produced locally by the event
// encoder or received from the server. SeqLength is the number of
// low-order bytes of Sequence that are significant on the wire;
// SeqPosition is the byte offset of the sequence field within Payload
// for in-place patching, or -1 if the packet carries no sequence field
// of its own (sequence is tracked out-of-band, e.g. in Sequence).
type Packet struct {
	HeaderByte  byte
	Type        wire.PacketType
	Priority    int
	Sequence    uint32
	SeqLength   int
	SeqPosition int
	Sent        bool
	Payload     []byte
}

// DataLength returns len(Payload), matching the wire's data_length field.
func (p *Packet) DataLength() int { return len(p.Payload) }

// Clone returns a deep copy of p, since the queue stores packet copies
// rather than borrowed references.
func (p *Packet) Clone() *Packet {
	cp := *p
	cp.Payload = append([]byte(nil), p.Payload...)
	return &cp
}
