// Package protocol implements the session driver: it decides duplex vs
// simplex against the accounting policy, opens a transport, identifies
// the device, drains the packet queues, and interprets server replies.
package protocol

import (
	"fmt"

	"github.com/uincore/opendmtp-sub000/internal/codec"
	"github.com/uincore/opendmtp-sub000/internal/validator"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/queue"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"
)

// Encoding selects the framing family a session transmits in. Each
// session uses the driver's configured Encoding for its whole length;
// no server packet changes it.
type Encoding int

const (
	EncodingBinary Encoding = iota
	EncodingASCII
	// EncodingASCIIChecksum is the ASCII family with the optional *CK
	// checksum appended.
	EncodingASCIIChecksum
)

// EncodeWire frames p for transmission in the given encoding.
func EncodeWire(p *queue.Packet, enc Encoding) []byte {
	if enc == EncodingBinary {
		out := make([]byte, 0, 3+len(p.Payload))
		out = append(out, wire.HeaderBasic, byte(p.Type), byte(len(p.Payload)))
		return append(out, p.Payload...)
	}
	body := make([]byte, 0, 2+2*len(p.Payload))
	body = append(body, fmt.Sprintf("%02X", byte(p.Type))...)
	body = append(body, codec.BytesToHex(p.Payload)...)
	if enc == EncodingASCIIChecksum {
		return append(validator.AppendASCIIChecksum(body), '\r')
	}
	out := make([]byte, 0, len(body)+2)
	out = append(out, '$')
	out = append(out, body...)
	return append(out, '\r')
}

// ServerPacket is one decoded server-to-client packet.
type ServerPacket struct {
	Type    wire.PacketType
	Payload []byte
}

// ParseServerPacket decodes one framed packet as read off a transport.
// ASCII packets have their optional checksum verified and their hex
// payload decoded back to bytes.
func ParseServerPacket(raw []byte) (*ServerPacket, error) {
	if len(raw) == 0 {
		return nil, &Error{Code: wire.ErrorPacketLength, Err: fmt.Errorf("empty packet")}
	}
	switch raw[0] {
	case wire.HeaderBasic:
		if len(raw) < 3 {
			return nil, &Error{Code: wire.ErrorPacketLength, Err: fmt.Errorf("truncated binary header")}
		}
		if want := 3 + int(raw[2]); len(raw) != want {
			return nil, &Error{Code: wire.ErrorPacketLength, Err: fmt.Errorf("declared %d bytes, got %d", want, len(raw))}
		}
		return &ServerPacket{Type: wire.PacketType(raw[1]), Payload: raw[3:]}, nil
	case wire.HeaderASCII:
		line := raw
		if line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		if err := validator.VerifyASCIIChecksum(line); err != nil {
			return nil, &Error{Code: wire.ErrorChecksumFailed, Err: err}
		}
		// Strip the checksum suffix, if present, before decoding.
		for i := len(line) - 1; i > 0; i-- {
			if line[i] == '*' {
				line = line[:i]
				break
			}
		}
		if len(line) < 3 {
			return nil, &Error{Code: wire.ErrorPacketLength, Err: fmt.Errorf("ASCII packet too short")}
		}
		var t byte
		if _, err := fmt.Sscanf(string(line[1:3]), "%02X", &t); err != nil {
			return nil, &Error{Code: wire.ErrorPacketType, Err: err}
		}
		payload, err := codec.HexToBytes(string(line[3:]))
		if err != nil {
			return nil, &Error{Code: wire.ErrorPacketPayload, Err: err}
		}
		return &ServerPacket{Type: wire.PacketType(t), Payload: payload}, nil
	default:
		return nil, &Error{Code: wire.ErrorPacketType, Err: fmt.Errorf("unknown header byte 0x%02X", raw[0])}
	}
}
