package rules

import (
	"github.com/uincore/opendmtp-sub000/internal/geoutil"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/event"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/gps"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/property"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"
)

// legacyGeofenceKeys names the four property slots the original
// geofence.c predates GeoZone with: a point-radius per slot, with the
// radius packed into the GPSValue's FixTime field (the original reuses
// the GPS property's "fixtime" union member to hold the radius in
// meters, since the timestamp itself has no meaning for a static
// geofence point). Retired in the real history in favor of GeoZone;
// kept here as the simpler predecessor, off by default.
var legacyGeofenceKeys = [4]property.Key{
	property.PropCustGeofence1,
	property.PropCustGeofence2,
	property.PropCustGeofence3,
	property.PropCustGeofence4,
}

// LegacyGeofenceChecker implements the four-slot point-radius geofence
// that GeoZone superseded. It is not wired into the default rule
// pipeline; callers opt in explicitly.
type LegacyGeofenceChecker struct {
	props *property.Store
	emit  EventFunc
}

// NewLegacyGeofenceChecker constructs a checker bound to props and emit.
func NewLegacyGeofenceChecker(props *property.Store, emit EventFunc) *LegacyGeofenceChecker {
	return &LegacyGeofenceChecker{props: props, emit: emit}
}

// inTerminal returns the 1-based slot index of the first configured
// geofence containing p, or 0 if none match.
func (c *LegacyGeofenceChecker) inTerminal(p event.Point) int {
	if !p.IsValid() {
		return 0
	}
	for i, key := range legacyGeofenceKeys {
		gv, err := c.props.GetGPS(key, property.GPSValue{})
		if err != nil {
			continue
		}
		center := event.Point{Lat: gv.Lat, Lon: gv.Lon}
		if !center.IsValid() {
			continue
		}
		radiusM := float64(gv.FixTime)
		if geoutil.MetersBetween(p.Lat, p.Lon, center.Lat, center.Lon) <= radiusM {
			return i + 1
		}
	}
	return 0
}

// CheckGPS detects slot transitions and emits STATUS_GEOFENCE_DEPART /
// STATUS_GEOFENCE_ARRIVE against property.PropGeofCurrent, the same
// state slot GeoZone uses (the two engines are mutually exclusive in
// practice).
func (c *LegacyGeofenceChecker) CheckGPS(oldFix, newFix gps.Fix) {
	newIdx := c.inTerminal(newFix.Point)
	oldIdx32, _ := c.props.GetUint32At(property.PropGeofCurrent, 0, 0)
	oldIdx := int(oldIdx32)
	if oldIdx == newIdx {
		return
	}
	if oldIdx > 0 {
		c.queue(event.PriorityNormal, wire.StatusGeofenceDepart, newFix, oldIdx)
	}
	if newIdx > 0 {
		c.queue(event.PriorityNormal, wire.StatusGeofenceArrive, newFix, newIdx)
	}
	_ = c.props.SetUint32At(property.PropGeofCurrent, 0, uint32(newIdx))
}

func (c *LegacyGeofenceChecker) queue(priority int, status wire.StatusCode, f gps.Fix, slot int) {
	ev := newFixEvent(status, f.FixTimeUTC, f)
	ev.GeofenceID = uint32(slot)
	if c.emit != nil {
		c.emit(priority, event.HighResFormat, ev)
	}
}
