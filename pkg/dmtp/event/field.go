package event

// FieldType identifies what an encoded field holds. It occupies 7 bits
// of a packed FieldDescriptor. The numeric values are this
// implementation's own sequential assignment; a client and server pair
// agree on them through the format-definition packet, never by
// convention, so the assignment itself is not wire-compatibility
// sensitive.
type FieldType uint8

const (
	FieldStatusCode FieldType = iota + 1
	FieldTimestamp
	FieldIndex
	FieldGPSPoint
	FieldGPSAge
	FieldGPSPoint2
	FieldSpeed
	FieldHeading
	FieldAltitude
	FieldDistanceTrip
	FieldDistanceTotal
	FieldTopSpeed
	FieldGeofenceID
	FieldGeofenceID2
	FieldEntity
	FieldEntity2
	FieldStringID
	FieldStringID2
	FieldBinaryData
	FieldDigitalInput
	FieldDigitalOutput
	FieldAnalogSensor
	FieldTempLow
	FieldTempHigh
	FieldTempAvg
	FieldGPSQualityHDOP
	FieldGPSQualityPDOP
	FieldGPSQualityVDOP
	FieldGPSSatellites
	FieldOBCValue
	FieldOBCFault
	FieldOBCEngineHours
	FieldOBCEngineRPM
	FieldOBCFuelLevel
	FieldOBCOilLevel
	FieldOBCCoolantTemp
	FieldOBCOdometer
)

// Resolution selects the quantization used when encoding a field: hi-res
// favors precision (e.g. speed x10), lo-res favors the smallest wire
// width (e.g. speed/255 in one byte).
type Resolution uint8

const (
	ResLow Resolution = iota
	ResHigh
)

// Packing bit widths for the 24-bit field descriptor, matching the
// documented layout: bit 23 hi_res, bits 22..16 type (7 bits), bits
// 15..8 index (8 bits), bits 7..0 length (8 bits).
const (
	fdResShift  = 23
	fdTypeShift = 16
	fdTypeMask  = 0x7F
	fdIdxShift  = 8
	fdIdxMask   = 0xFF
	fdLenMask   = 0xFF
)

// FieldDescriptor declares one field of a custom event format: its type,
// resolution, array index (which element of a vector field, e.g. which
// analog sensor or OBC frame slot), and exact wire byte width.
type FieldDescriptor struct {
	Type   FieldType
	HiRes  bool
	Index  uint8
	Length uint8
}

// Pack24 encodes d into the 24-bit on-the-wire representation.
func (d FieldDescriptor) Pack24() uint32 {
	var res uint32
	if d.HiRes {
		res = 1
	}
	return res<<fdResShift |
		(uint32(d.Type)&fdTypeMask)<<fdTypeShift |
		(uint32(d.Index)&fdIdxMask)<<fdIdxShift |
		uint32(d.Length)&fdLenMask
}

// Unpack24 decodes a 24-bit field descriptor value (the low 24 bits of v
// are used; the top 8 bits of v, if any, are ignored).
func Unpack24(v uint32) FieldDescriptor {
	return FieldDescriptor{
		Type:   FieldType((v >> fdTypeShift) & fdTypeMask),
		HiRes:  (v>>fdResShift)&1 != 0,
		Index:  uint8((v >> fdIdxShift) & fdIdxMask),
		Length: uint8(v & fdLenMask),
	}
}
