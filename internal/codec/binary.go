// Package codec holds the big-endian byte helpers shared by the event
// encoder, the 24-bit field descriptor packing, and the protocol
// driver. On the wire every multibyte integer is big-endian regardless
// of host order.
package codec

import (
	"encoding/binary"
	"fmt"
)

// ReadUint16BE reads a big-endian uint16 from the first 2 bytes of data.
func ReadUint16BE(data []byte) uint16 {
	if len(data) < 2 {
		return 0
	}
	return binary.BigEndian.Uint16(data)
}

// ReadUint32BE reads a big-endian uint32 from the first 4 bytes of data.
func ReadUint32BE(data []byte) uint32 {
	if len(data) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(data)
}

// WriteUint16BE renders value as 2 big-endian bytes.
func WriteUint16BE(value uint16) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, value)
	return buf
}

// WriteUint32BE renders value as 4 big-endian bytes.
func WriteUint32BE(value uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, value)
	return buf
}

// ReadUint24BE reads a 24-bit big-endian value (3 bytes) as uint32.
// Field descriptors and the halves of a 6-byte GPS point are carried
// this way.
func ReadUint24BE(data []byte) uint32 {
	if len(data) < 3 {
		return 0
	}
	return uint32(data[0])<<16 | uint32(data[1])<<8 | uint32(data[2])
}

// WriteUint24BE renders the low 24 bits of value as 3 big-endian bytes.
func WriteUint24BE(value uint32) []byte {
	return []byte{
		byte(value >> 16),
		byte(value >> 8),
		byte(value),
	}
}

// ReadUintNBE reads an n-byte (1..8) big-endian unsigned value.
func ReadUintNBE(data []byte, n int) uint64 {
	if n < 1 || n > 8 || len(data) < n {
		return 0
	}
	var v uint64
	for i := 0; i < n; i++ {
		v = v<<8 | uint64(data[i])
	}
	return v
}

// WriteUintNBE renders the low n bytes (1..8) of value big-endian.
func WriteUintNBE(value uint64, n int) []byte {
	if n < 1 || n > 8 {
		return nil
	}
	out := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = byte(value)
		value >>= 8
	}
	return out
}

// ReadNibbles splits b into its high and low nibbles. A custom-format
// declaration packs the format type and field count this way.
func ReadNibbles(b byte) (high, low byte) {
	high = (b >> 4) & 0x0F
	low = b & 0x0F
	return
}

// WriteNibbles combines high and low nibbles into one byte.
func WriteNibbles(high, low byte) byte {
	return (high << 4) | (low & 0x0F)
}

// HexToBytes converts a hex string to bytes, padding an odd-length
// string with a leading zero. ASCII-framed packets carry their binary
// payloads this way.
func HexToBytes(hex string) ([]byte, error) {
	if len(hex)%2 != 0 {
		hex = "0" + hex
	}
	bytes := make([]byte, len(hex)/2)
	for i := 0; i < len(hex); i += 2 {
		var b byte
		if _, err := fmt.Sscanf(hex[i:i+2], "%02x", &b); err != nil {
			return nil, err
		}
		bytes[i/2] = b
	}
	return bytes, nil
}

// BytesToHex converts bytes to an upper-case hex string.
func BytesToHex(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	hex := make([]byte, len(data)*2)
	const hexDigits = "0123456789ABCDEF"
	for i, b := range data {
		hex[i*2] = hexDigits[b>>4]
		hex[i*2+1] = hexDigits[b&0x0F]
	}
	return string(hex)
}
