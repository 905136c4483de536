// Package event implements the OpenDMTP event record and the field-
// descriptor driven binary encoder that turns one into a packet payload.
package event

import "github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"

// Undefined sentinel values, carried in fields an emitting component did
// not populate so the encoder still has something well-defined to write.
const (
	UndefinedFloat  = -999999.0
	UndefinedUint16 = 0xFFFF
	UndefinedUint32 = 0xFFFFFFFF
)

// Point is a bare (lat, lon) pair in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// IsValid reports whether p is neither the origin nor outside the
// latitude/longitude domain.
func (p Point) IsValid() bool {
	if p.Lat == 0 && p.Lon == 0 {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// OBCValue is one MID/PID telemetry frame from the on-board computer.
type OBCValue struct {
	MID     uint16
	PID     uint16
	DataLen uint8
	Data    [27]byte
}

// OBCFault is one fault code reported by the on-board computer.
type OBCFault struct {
	MID   uint16
	PIDSID uint16
	Fault uint16
	Count uint16
}

// Event is the wide record every rule engine fills in before handing it
// to the Encoder. Only the fields a given custom format's descriptor
// list references are actually written to the wire; everything else is
// simply unread.
type Event struct {
	Status    wire.StatusCode
	Timestamp int64 // unix seconds
	Index     uint32

	Point     Point
	PointAge  uint32 // seconds since Point was fixed
	Point2    Point // secondary point, e.g. the arming fix for a geozone transition

	SpeedKPH   float64
	HeadingDeg float64
	AltitudeM  float64

	DistanceTripM  float64
	DistanceTotalM float64
	TopSpeedKPH    float64

	GeofenceID  uint32
	GeofenceID2 uint32

	Entity   string
	Entity2  string
	StringID string
	StringID2 string

	BinaryData []byte

	DigitalInput  uint32
	DigitalOutput uint32
	AnalogSensor  [8]float64

	TempLow [4]float64
	TempHigh [4]float64
	TempAvg  [4]float64

	GPSQualityHDOP float64
	GPSQualityPDOP float64
	GPSQualityVDOP float64
	GPSSatellites  uint32

	OBCValues [10]OBCValue
	OBCFaults []OBCFault

	OBCEngineHours  float64
	OBCEngineRPM    float64
	OBCFuelLevel    float64
	OBCOilLevel     float64
	OBCCoolantTemp  float64
	OBCOdometerM    float64
}

// New returns an Event with every scalar field set to its documented
// undefined sentinel, ready for a rule engine to fill in only what it
// knows.
func New(status wire.StatusCode, ts int64) *Event {
	e := &Event{Status: status, Timestamp: ts}
	for i := range e.AnalogSensor {
		e.AnalogSensor[i] = UndefinedFloat
	}
	for i := 0; i < 4; i++ {
		e.TempLow[i] = UndefinedFloat
		e.TempHigh[i] = UndefinedFloat
		e.TempAvg[i] = UndefinedFloat
	}
	e.GeofenceID = UndefinedUint32
	e.GeofenceID2 = UndefinedUint32
	return e
}
