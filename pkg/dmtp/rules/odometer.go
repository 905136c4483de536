package rules

import (
	"github.com/uincore/opendmtp-sub000/internal/geoutil"
	"github.com/uincore/opendmtp-sub000/internal/obslog"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/event"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/gps"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/property"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"
)

var odometerLog = obslog.For("odometer")

// odometerCount is the number of counters: index 0 is the vehicle
// odometer, 1..7 are trip-style.
const odometerCount = 8

// minDistanceDeltaFloorMeters is the floor PROP_GPS_DISTANCE_DELTA is
// clamped to, matching odometer.c's hardcoded 10L.
const minDistanceDeltaFloorMeters = 10.0

var odometerStatusForIndex = [odometerCount]wire.StatusCode{
	wire.StatusOdomLimit0, wire.StatusOdomLimit1, wire.StatusOdomLimit2, wire.StatusOdomLimit3,
	wire.StatusOdomLimit4, wire.StatusOdomLimit5, wire.StatusOdomLimit6, wire.StatusOdomLimit7,
}

// ActualOdometerFunc returns the vehicle's true odometer reading in
// meters from an external source (e.g. an OBC), or 0 if unavailable,
// matching odomGetActualOdometerMeters. A nil func behaves as "always
// unavailable".
type ActualOdometerFunc func() float64

// Odometer implements the eight value/limit/last-fix counters and their
// limit-crossing events.
type Odometer struct {
	props  *property.Store
	emit   EventFunc
	actual ActualOdometerFunc

	firstInit [odometerCount]bool
}

// NewOdometer constructs an Odometer bound to props and emit. actual may
// be nil.
func NewOdometer(props *property.Store, emit EventFunc, actual ActualOdometerFunc) *Odometer {
	return &Odometer{props: props, emit: emit, actual: actual}
}

func (o *Odometer) queue(priority int, status wire.StatusCode, f gps.Fix, distanceM float64) {
	ev := newFixEvent(status, f.FixTimeUTC, f)
	ev.DistanceTripM = distanceM
	if o.emit != nil {
		o.emit(priority, event.StandardFormat, ev)
	}
}

// CheckGPS accumulates distance into every counter and emits a
// StatusOdomLimit* event the instant a counter crosses its configured,
// non-zero limit. newFix may be the zero value (no current fix); the
// original tolerates this the same way.
func (o *Odometer) CheckGPS(oldFix, newFix gps.Fix, haveNewFix bool) {
	actualMeters := 0.0
	if o.actual != nil {
		actualMeters = o.actual()
	}

	minDelta, _ := o.props.GetUint32At(property.PropGPSDistanceDelta, 0, uint32(minDistanceDeltaFloorMeters))
	minDeltaF := float64(minDelta)
	if minDeltaF < minDistanceDeltaFloorMeters {
		minDeltaF = minDistanceDeltaFloorMeters
	}

	for i := 0; i < odometerCount; i++ {
		valueKey, limitKey, gpsKey := property.OdometerKeys(i)
		oldMeters, _ := o.props.GetUint32At(valueKey, 0, 0)
		newMeters := oldMeters
		lastFix, _ := o.props.GetGPS(gpsKey, property.GPSValue{})

		noPriorFix := oldMeters == 0 && !o.firstInit[i]
		invalidLastFix := lastFix.FixTime == 0 || !event.Point{Lat: lastFix.Lat, Lon: lastFix.Lon}.IsValid()

		switch {
		case noPriorFix || invalidLastFix:
			if i == 0 {
				if actualMeters > 0 {
					newMeters = uint32(actualMeters)
				}
			} else {
				newMeters = 0
			}
			_ = o.props.SetUint32At(valueKey, 0, newMeters)
			if haveNewFix {
				lastFix = property.GPSValue{FixTime: newFix.FixTimeUTC, Lat: newFix.Point.Lat, Lon: newFix.Point.Lon}
			}
			_ = o.props.SetGPS(gpsKey, lastFix)
			o.firstInit[i] = true
		case haveNewFix:
			delta := geoutil.MetersBetween(newFix.Point.Lat, newFix.Point.Lon, lastFix.Lat, lastFix.Lon)
			if delta >= minDeltaF {
				rounded := uint32(delta + 0.5)
				if o.firstInit[i] {
					newMeters = rounded
				} else {
					newMeters = rounded + oldMeters
				}
				_ = o.props.SetUint32At(valueKey, 0, newMeters)
				_ = o.props.SetGPS(gpsKey, property.GPSValue{FixTime: newFix.FixTimeUTC, Lat: newFix.Point.Lat, Lon: newFix.Point.Lon})
				o.firstInit[i] = false
			}
		}

		if newMeters > 0 {
			limitMeters, _ := o.props.GetUint32At(limitKey, 0, 0)
			if limitMeters > oldMeters && limitMeters <= newMeters {
				o.queue(event.PriorityHigh, odometerStatusForIndex[i], newFix, float64(newMeters))
			}
		}
	}
}

// ResetAt zeroes counter i, matching odomResetDistanceMetersAtIndex.
func (o *Odometer) ResetAt(i int) bool {
	if i < 0 || i >= odometerCount {
		return false
	}
	valueKey, _, _ := property.OdometerKeys(i)
	_ = o.props.SetUint32At(valueKey, 0, 0)
	return true
}

// DistanceAt returns the accumulated meters for counter i.
func (o *Odometer) DistanceAt(i int) float64 {
	if i < 0 || i >= odometerCount {
		return 0
	}
	valueKey, _, _ := property.OdometerKeys(i)
	v, _ := o.props.GetUint32At(valueKey, 0, 0)
	return float64(v)
}
