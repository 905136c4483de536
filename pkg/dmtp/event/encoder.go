package event

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"
)

// FormatDef is a custom event format: the wire type nibble used in a
// PktClientFormatDef24 declaration plus the ordered field list that
// defines how an Event is laid out on the wire.
type FormatDef struct {
	TypeNibble uint8
	Fields     []FieldDescriptor
}

// DefinePacket renders a PktClientFormatDef24 declaration payload:
// [type_nibble|field_count_nibble][field_def_24]*.
func (f FormatDef) DefinePacket() []byte {
	out := make([]byte, 0, 1+3*len(f.Fields))
	out = append(out, (f.TypeNibble<<4)|uint8(len(f.Fields))&0x0F)
	for _, fd := range f.Fields {
		v := fd.Pack24()
		out = append(out, byte(v>>16), byte(v>>8), byte(v))
	}
	return out
}

// Encoder turns an Event into a bit-exact payload against a FormatDef,
// assigning the running sequence number when the format includes a
// sequence-bearing field.
type Encoder struct {
	seq       uint32
	seqLenBytes int
}

// NewEncoder constructs an Encoder whose sequence counter wraps at
// 2^(8*seqLenBytes). seqLenBytes of 0 disables sequence assignment.
func NewEncoder(seqLenBytes int) *Encoder {
	return &Encoder{seqLenBytes: seqLenBytes}
}

// Seed sets the next sequence number to be assigned. Callers that
// reserve sequence zero as "unset" seed with 1 at boot.
func (enc *Encoder) Seed(seq uint32) { enc.seq = seq }

// Encoded is the result of encoding one event: the payload bytes and,
// if the Encoder was constructed with a non-zero sequence length, the
// assigned sequence number. The sequence is a packet-level field (see
// queue.Packet), not embedded in Payload.
type Encoded struct {
	Payload     []byte
	Sequence    uint32
	HasSequence bool
}

// Encode renders ev against f. Each descriptor clamps its array index to
// the field's declared arity (callers populate vector fields such as
// AnalogSensor/OBCValues up to their fixed capacity; out-of-range
// indexes are simply read as zero/undefined).
func (enc *Encoder) Encode(f FormatDef, ev *Event) (*Encoded, error) {
	out := &Encoded{}
	for _, fd := range f.Fields {
		switch fd.Type {
		case FieldStatusCode:
			writeUint(&out.Payload, uint64(ev.Status), fd.Length)
		case FieldTimestamp:
			writeUint(&out.Payload, uint64(ev.Timestamp), fd.Length)
		case FieldIndex:
			writeUint(&out.Payload, uint64(ev.Index), fd.Length)
		case FieldGPSPoint:
			if fd.HiRes {
				p := EncodePoint8(ev.Point)
				out.Payload = append(out.Payload, p[:]...)
			} else {
				p := EncodePoint6(ev.Point)
				out.Payload = append(out.Payload, p[:]...)
			}
		case FieldGPSPoint2:
			if fd.HiRes {
				p := EncodePoint8(ev.Point2)
				out.Payload = append(out.Payload, p[:]...)
			} else {
				p := EncodePoint6(ev.Point2)
				out.Payload = append(out.Payload, p[:]...)
			}
		case FieldGPSAge:
			writeUint(&out.Payload, uint64(ev.PointAge), fd.Length)
		case FieldSpeed:
			writeScaled(&out.Payload, ev.SpeedKPH, speedScale(fd), fd.Length, false)
		case FieldHeading:
			writeScaled(&out.Payload, ev.HeadingDeg, headingScale(fd), fd.Length, false)
		case FieldAltitude:
			writeScaled(&out.Payload, ev.AltitudeM, 10, fd.Length, true)
		case FieldDistanceTrip:
			writeScaled(&out.Payload, ev.DistanceTripM, 10, fd.Length, false)
		case FieldDistanceTotal:
			writeScaled(&out.Payload, ev.DistanceTotalM, 10, fd.Length, false)
		case FieldTopSpeed:
			writeScaled(&out.Payload, ev.TopSpeedKPH, speedScale(fd), fd.Length, false)
		case FieldGeofenceID:
			writeUint(&out.Payload, uint64(ev.GeofenceID), fd.Length)
		case FieldGeofenceID2:
			writeUint(&out.Payload, uint64(ev.GeofenceID2), fd.Length)
		case FieldEntity:
			writeString(&out.Payload, ev.Entity, fd.Length)
		case FieldEntity2:
			writeString(&out.Payload, ev.Entity2, fd.Length)
		case FieldStringID:
			writeString(&out.Payload, ev.StringID, fd.Length)
		case FieldStringID2:
			writeString(&out.Payload, ev.StringID2, fd.Length)
		case FieldBinaryData:
			writeBinary(&out.Payload, ev.BinaryData, fd.Length)
		case FieldDigitalInput:
			writeUint(&out.Payload, uint64(ev.DigitalInput), fd.Length)
		case FieldDigitalOutput:
			writeUint(&out.Payload, uint64(ev.DigitalOutput), fd.Length)
		case FieldAnalogSensor:
			v := vectorAt(ev.AnalogSensor[:], fd.Index)
			writeScaled(&out.Payload, v, 10, fd.Length, true)
		case FieldTempLow:
			writeTemp(&out.Payload, vectorAt(ev.TempLow[:], fd.Index), fd.Length)
		case FieldTempHigh:
			writeTemp(&out.Payload, vectorAt(ev.TempHigh[:], fd.Index), fd.Length)
		case FieldTempAvg:
			writeTemp(&out.Payload, vectorAt(ev.TempAvg[:], fd.Index), fd.Length)
		case FieldGPSQualityHDOP:
			writeDOP(&out.Payload, ev.GPSQualityHDOP, fd.Length)
		case FieldGPSQualityPDOP:
			writeDOP(&out.Payload, ev.GPSQualityPDOP, fd.Length)
		case FieldGPSQualityVDOP:
			writeDOP(&out.Payload, ev.GPSQualityVDOP, fd.Length)
		case FieldGPSSatellites:
			writeUint(&out.Payload, uint64(ev.GPSSatellites), fd.Length)
		case FieldOBCValue:
			writeOBCValue(&out.Payload, vectorAt2(ev.OBCValues[:], fd.Index))
		case FieldOBCEngineHours:
			writeScaled(&out.Payload, ev.OBCEngineHours, 10, fd.Length, false)
		case FieldOBCEngineRPM:
			writeUint(&out.Payload, uint64(ev.OBCEngineRPM), fd.Length)
		case FieldOBCFuelLevel:
			writeOBCLevel(&out.Payload, ev.OBCFuelLevel, fd.Length)
		case FieldOBCOilLevel:
			writeOBCLevel(&out.Payload, ev.OBCOilLevel, fd.Length)
		case FieldOBCCoolantTemp:
			writeTemp(&out.Payload, ev.OBCCoolantTemp, fd.Length)
		case FieldOBCOdometer:
			writeScaled(&out.Payload, ev.OBCOdometerM, 10, fd.Length, false)
		default:
			return nil, fmt.Errorf("event: unsupported field type %d", fd.Type)
		}
	}
	if enc.seqLenBytes > 0 {
		out.HasSequence = true
		mask := uint32(1)<<(8*enc.seqLenBytes) - 1
		out.Sequence = enc.seq & mask
		enc.seq++
	}
	return out, nil
}

func speedScale(fd FieldDescriptor) float64 {
	if fd.HiRes {
		return 10
	}
	return 1
}

func headingScale(fd FieldDescriptor) float64 {
	if fd.HiRes {
		return 100
	}
	return 255.0 / 360.0
}

func vectorAt(v []float64, idx uint8) float64 {
	if int(idx) >= len(v) {
		return UndefinedFloat
	}
	return v[idx]
}

func vectorAt2(v []OBCValue, idx uint8) OBCValue {
	if int(idx) >= len(v) {
		return OBCValue{}
	}
	return v[idx]
}

func writeUint(buf *[]byte, v uint64, length uint8) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	*buf = append(*buf, b[8-int(length):]...)
}

func clampToWidth(v float64, signed bool, length uint8) int64 {
	bits := 8 * int(length)
	if bits <= 0 || bits > 63 {
		return int64(v)
	}
	if signed {
		max := int64(1)<<(bits-1) - 1
		min := -max - 1
		i := int64(math.Round(v))
		if i > max {
			i = max
		}
		if i < min {
			i = min
		}
		return i
	}
	max := int64(1)<<bits - 1
	i := int64(math.Round(v))
	if i > max {
		i = max
	}
	if i < 0 {
		i = 0
	}
	return i
}

func writeScaled(buf *[]byte, value, factor float64, length uint8, signed bool) {
	raw := clampToWidth(value*factor, signed, length)
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(raw))
	*buf = append(*buf, b[8-int(length):]...)
}

// writeTemp stores whole degrees in a single byte (±126.0 cap, matching
// a signed byte with 127/-127 reserved) or tenths of a degree in two or
// more bytes (±3276.6 cap, the exact range of a signed 16-bit tenth).
func writeTemp(buf *[]byte, value float64, length uint8) {
	factor := 10.0
	cap := 3276.6
	if length == 1 {
		factor = 1
		cap = 126.0
	}
	if value > cap {
		value = cap
	}
	if value < -cap {
		value = -cap
	}
	writeScaled(buf, value, factor, length, true)
}

func writeDOP(buf *[]byte, value float64, length uint8) {
	if length == 1 && value > 25.5 {
		value = 25.5
	}
	writeScaled(buf, value, 10, length, false)
}

func writeOBCLevel(buf *[]byte, value float64, length uint8) {
	factor := 10.0
	switch length {
	case 2:
		factor = 100.0
	case 3, 4:
		factor = 1000.0
	}
	writeScaled(buf, value, factor, length, false)
}

func writeString(buf *[]byte, s string, length uint8) {
	b := make([]byte, length)
	copy(b, s)
	*buf = append(*buf, b...)
}

func writeBinary(buf *[]byte, data []byte, length uint8) {
	b := make([]byte, length)
	copy(b, data)
	*buf = append(*buf, b...)
}

func writeOBCValue(buf *[]byte, v OBCValue) {
	var b [4]byte
	binary.BigEndian.PutUint16(b[0:2], v.MID)
	binary.BigEndian.PutUint16(b[2:4], v.PID)
	*buf = append(*buf, b[:]...)
	*buf = append(*buf, v.DataLen)
	*buf = append(*buf, v.Data[:v.DataLen]...)
}

// PriorityFor maps a status code to its queueing priority, matching the
// per-event-kind priorities named throughout the rule engines (motion
// start/stop at normal priority, excess speed at normal, dormant/in-
// motion at low, geozone arrival/departure at normal, odometer at high).
func PriorityFor(status wire.StatusCode) int {
	switch status {
	case wire.StatusMotionDormant, wire.StatusMotionInMotion:
		return PriorityLow
	case wire.StatusOdomLimit0, wire.StatusOdomLimit1, wire.StatusOdomLimit2, wire.StatusOdomLimit3,
		wire.StatusOdomLimit4, wire.StatusOdomLimit5, wire.StatusOdomLimit6, wire.StatusOdomLimit7:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

// Queue priority levels, matching PRIORITY_LOW/NORMAL/HIGH.
const (
	PriorityLow = iota
	PriorityNormal
	PriorityHigh
)
