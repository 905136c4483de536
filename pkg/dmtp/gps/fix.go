// Package gps implements NMEA-0183 acquisition (GPRMC/GPGGA/GPGSA),
// fix assembly, and the staleness state machine the main loop drives.
package gps

import "github.com/uincore/opendmtp-sub000/pkg/dmtp/event"

// Fix is one GPS observation, assembled from one or more NMEA sentences
// sharing a timestamp.
type Fix struct {
	Point      event.Point
	FixTimeUTC int64 // unix seconds
	AgeTimer   int64 // unix seconds this fix was captured at
	AccuracyM  float64
	SpeedKPH   float64
	HeadingDeg float64
	AltitudeM  float64
	PDOP       float64
	HDOP       float64
	VDOP       float64
	FixQuality int
	Satellites int
	NMEAMask   uint8 // bit per contributing sentence: GPRMC=1, GPGGA=2, GPGSA=4
}

const (
	maskRMC = 1 << iota
	maskGGA
	maskGSA
)

// IsValid reports whether the fix's point is neither the origin nor
// outside the latitude/longitude domain.
func (f Fix) IsValid() bool {
	return f.Point.IsValid()
}

// IsStale reports whether, as of nowUnix, the fix has aged past
// expirationSeconds. An expiration of zero means "never stale".
func (f Fix) IsStale(nowUnix int64, expirationSeconds int64) bool {
	if expirationSeconds <= 0 {
		return false
	}
	return nowUnix-f.AgeTimer > expirationSeconds
}
