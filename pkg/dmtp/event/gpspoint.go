package event

import (
	"encoding/binary"

	"github.com/uincore/opendmtp-sub000/internal/codec"
)

const (
	scale24 = float64(1<<24 - 1)
	scale32 = float64(1<<32 - 1)
)

// EncodePoint6 packs p into the 6-byte low-resolution representation:
// two 24-bit big-endian unsigned integers encoding
// round((lat+90)*(2^24-1)/180) and round((lon+180)*(2^24-1)/360). The
// invalid (0,0) point encodes to six zero bytes so it round-trips
// exactly rather than through the scaled formula.
func EncodePoint6(p Point) [6]byte {
	var out [6]byte
	if !p.IsValid() {
		return out
	}
	latRaw := uint32(roundf((p.Lat + 90) * scale24 / 180))
	lonRaw := uint32(roundf((p.Lon + 180) * scale24 / 360))
	copy(out[0:3], codec.WriteUint24BE(latRaw))
	copy(out[3:6], codec.WriteUint24BE(lonRaw))
	return out
}

// DecodePoint6 reverses EncodePoint6.
func DecodePoint6(b [6]byte) Point {
	if b == ([6]byte{}) {
		return Point{}
	}
	latRaw := codec.ReadUint24BE(b[0:3])
	lonRaw := codec.ReadUint24BE(b[3:6])
	return Point{
		Lat: float64(latRaw)*180/scale24 - 90,
		Lon: float64(lonRaw)*360/scale24 - 180,
	}
}

// EncodePoint8 packs p into the 8-byte high-resolution representation:
// two 32-bit big-endian unsigned integers encoding
// round((lat+90)*(2^32-1)/180) and round((lon+180)*(2^32-1)/360).
func EncodePoint8(p Point) [8]byte {
	var out [8]byte
	if !p.IsValid() {
		return out
	}
	latRaw := uint32(roundf((p.Lat + 90) * scale32 / 180))
	lonRaw := uint32(roundf((p.Lon + 180) * scale32 / 360))
	binary.BigEndian.PutUint32(out[0:4], latRaw)
	binary.BigEndian.PutUint32(out[4:8], lonRaw)
	return out
}

// DecodePoint8 reverses EncodePoint8.
func DecodePoint8(b [8]byte) Point {
	if b == ([8]byte{}) {
		return Point{}
	}
	latRaw := binary.BigEndian.Uint32(b[0:4])
	lonRaw := binary.BigEndian.Uint32(b[4:8])
	return Point{
		Lat: float64(latRaw)*180/scale32 - 90,
		Lon: float64(lonRaw)*360/scale32 - 180,
	}
}

func roundf(v float64) float64 {
	if v >= 0 {
		return float64(int64(v + 0.5))
	}
	return float64(int64(v - 0.5))
}
