// Package splitter splits a byte stream into OpenDMTP packets. A
// simplex datagram or a buffered duplex read commonly carries several
// packets back to back, and a packet may be fragmented across reads;
// SplitPackets finds the complete ones and hands back the remainder.
package splitter

import (
	"fmt"

	"github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"
)

// Binary frame: [header_byte][type_byte][len_u8][payload...].
const binaryHeaderSize = 3

// SplitPackets splits concatenated packets out of data. Both framing
// families are recognized: binary frames led by wire.HeaderBasic and
// ASCII frames led by '$' and terminated by '\r'.
//
// Returns:
// - packets: complete packets found in the data, framing included
// - residue: incomplete trailing packet data to prepend to the next read
// - error: set when a byte that starts neither family is not followed
//   by any later header byte (garbage before a header is skipped)
func SplitPackets(data []byte) (packets [][]byte, residue []byte, err error) {
	if len(data) == 0 {
		return nil, nil, nil
	}

	packets = make([][]byte, 0)
	offset := 0

	for offset < len(data) {
		switch data[offset] {
		case wire.HeaderBasic:
			if len(data)-offset < binaryHeaderSize {
				return packets, data[offset:], nil
			}
			total := binaryHeaderSize + int(data[offset+2])
			if len(data)-offset < total {
				return packets, data[offset:], nil
			}
			packets = append(packets, data[offset:offset+total])
			offset += total

		case wire.HeaderASCII:
			end := -1
			for i := offset + 1; i < len(data); i++ {
				if data[i] == '\r' {
					end = i
					break
				}
			}
			if end < 0 {
				return packets, data[offset:], nil
			}
			packets = append(packets, data[offset:end+1])
			offset = end + 1

		default:
			// Mid-stream garbage; re-sync on the next header byte.
			next := findNextHeader(data, offset+1)
			if next == -1 {
				return packets, nil, fmt.Errorf("splitter: no packet header found at offset %d: 0x%02X", offset, data[offset])
			}
			offset = next
		}
	}

	return packets, nil, nil
}

// findNextHeader returns the offset of the next byte that starts either
// framing family, or -1.
func findNextHeader(data []byte, startOffset int) int {
	for i := startOffset; i < len(data); i++ {
		if data[i] == wire.HeaderBasic || data[i] == wire.HeaderASCII {
			return i
		}
	}
	return -1
}

// ValidateStructure checks a single extracted packet's framing without
// decoding the payload.
func ValidateStructure(packet []byte) error {
	if len(packet) == 0 {
		return fmt.Errorf("splitter: empty packet")
	}
	switch packet[0] {
	case wire.HeaderBasic:
		if len(packet) < binaryHeaderSize {
			return fmt.Errorf("splitter: truncated binary header: %d bytes", len(packet))
		}
		if want := binaryHeaderSize + int(packet[2]); len(packet) != want {
			return fmt.Errorf("splitter: length mismatch: declared %d, actual %d", want, len(packet))
		}
		return nil
	case wire.HeaderASCII:
		if packet[len(packet)-1] != '\r' {
			return fmt.Errorf("splitter: ASCII packet missing CR terminator")
		}
		return nil
	default:
		return fmt.Errorf("splitter: invalid header byte 0x%02X", packet[0])
	}
}

// PacketType returns the type byte of an extracted packet. For the
// ASCII family the type is the two hex digits following '$'.
func PacketType(packet []byte) (wire.PacketType, error) {
	if err := ValidateStructure(packet); err != nil {
		return 0, err
	}
	if packet[0] == wire.HeaderBasic {
		return wire.PacketType(packet[1]), nil
	}
	if len(packet) < 4 {
		return 0, fmt.Errorf("splitter: ASCII packet too short for a type")
	}
	var t byte
	if _, err := fmt.Sscanf(string(packet[1:3]), "%02X", &t); err != nil {
		return 0, fmt.Errorf("splitter: malformed ASCII type digits: %w", err)
	}
	return wire.PacketType(t), nil
}

// HasCompletePacket reports whether data begins with one complete
// packet of either family.
func HasCompletePacket(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	switch data[0] {
	case wire.HeaderBasic:
		return len(data) >= binaryHeaderSize && len(data) >= binaryHeaderSize+int(data[2])
	case wire.HeaderASCII:
		for _, b := range data[1:] {
			if b == '\r' {
				return true
			}
		}
		return false
	default:
		return false
	}
}
