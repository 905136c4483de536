// Package rules implements the motion, geozone, legacy geofence, and
// odometer rule engines. Each engine is called with (previous fix, new
// fix) and emits events by invoking an injected EventFunc.
package rules

import (
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/event"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/gps"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"
)

// EventFunc is the injected callback every rule engine emits events
// through, matching the original C source's eventAddFtn_t.
type EventFunc func(priority int, format event.FormatDef, ev *event.Event)

// setEventDefaults copies a gps.Fix's point, speed, heading, altitude,
// DOPs and satellite count into an Event (the GPS age is not copied),
// the common projection every rule engine performs
// before calling its EventFunc (evSetEventDefaults in the original).
func setEventDefaults(ev *event.Event, f gps.Fix) {
	ev.Point = f.Point
	ev.SpeedKPH = f.SpeedKPH
	ev.HeadingDeg = f.HeadingDeg
	ev.AltitudeM = f.AltitudeM
	ev.GPSQualityHDOP = f.HDOP
	ev.GPSQualityPDOP = f.PDOP
	ev.GPSQualityVDOP = f.VDOP
	ev.GPSSatellites = uint32(f.Satellites)
}

// newFixEvent builds an Event of the given status stamped from fix at
// timestamp ts (unix seconds), ready for an EventFunc call against
// event.StandardFormat.
func newFixEvent(status wire.StatusCode, ts int64, f gps.Fix) *event.Event {
	ev := event.New(status, ts)
	setEventDefaults(ev, f)
	return ev
}
