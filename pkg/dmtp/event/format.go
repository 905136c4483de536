package event

import "github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"

// StandardFormat is the default event layout every rule engine encodes
// against unless a custom format has been negotiated: status, timestamp,
// primary GPS point plus age, speed, heading, altitude, the two
// geofence ID slots, and trip distance, lo-res. It mirrors the original C source's
// DEFAULT_EVENT_FORMAT constant, which every module (motion, geozone,
// odometer) encodes its events against without declaring a custom one.
var StandardFormat = FormatDef{
	TypeNibble: uint8(wire.PktClientFixedFmtStd) & 0x0F,
	Fields: []FieldDescriptor{
		{Type: FieldStatusCode, Length: 2},
		{Type: FieldTimestamp, Length: 4},
		{Type: FieldGPSPoint, Length: 6},
		{Type: FieldGPSAge, Length: 2},
		{Type: FieldSpeed, Length: 1},
		{Type: FieldHeading, Length: 1},
		{Type: FieldAltitude, Length: 2},
		{Type: FieldGeofenceID, Length: 4},
		{Type: FieldGeofenceID2, Length: 4},
		{Type: FieldDistanceTrip, Length: 3},
	},
}

// HighResFormat is StandardFormat's high-resolution counterpart: an
// 8-byte GPS point and hi-res quantization on every field that supports
// it, used when the device is configured to favor precision over
// payload size (PktClientFixedFmtHigh).
var HighResFormat = FormatDef{
	TypeNibble: uint8(wire.PktClientFixedFmtHigh) & 0x0F,
	Fields: []FieldDescriptor{
		{Type: FieldStatusCode, Length: 2},
		{Type: FieldTimestamp, Length: 4},
		{Type: FieldGPSPoint, HiRes: true, Length: 8},
		{Type: FieldGPSAge, Length: 2},
		{Type: FieldSpeed, HiRes: true, Length: 2},
		{Type: FieldHeading, HiRes: true, Length: 2},
		{Type: FieldAltitude, HiRes: true, Length: 2},
		{Type: FieldGeofenceID, Length: 4},
		{Type: FieldGeofenceID2, Length: 4},
		{Type: FieldDistanceTrip, HiRes: true, Length: 4},
	},
}
