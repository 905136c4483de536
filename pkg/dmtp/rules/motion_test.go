package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uincore/opendmtp-sub000/pkg/dmtp/event"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/gps"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/property"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"
)

func newTestStore(t *testing.T) *property.Store {
	t.Helper()
	return property.New(property.DefaultDefs())
}

func fixAt(lat, lon, speed float64, ts int64) gps.Fix {
	return gps.Fix{Point: event.Point{Lat: lat, Lon: lon}, SpeedKPH: speed, FixTimeUTC: ts}
}

// TestMotionStartStopSequence drives 10 fixes at 30 kph spaced 1s apart,
// then 20 fixes at 0 kph with motion_stop=5, expecting START, then STOP
// at now+5 in after-delay mode (no in-motion events since the interval
// is left at 0, i.e. disabled).
func TestMotionStartStopSequence(t *testing.T) {
	props := newTestStore(t)
	require.NoError(t, props.SetDoubleAt(property.PropMotionStart, 0, 10.0))
	require.NoError(t, props.SetUint32At(property.PropMotionStop, 0, 5))

	var emitted []wire.StatusCode
	var timestamps []int64
	m := NewMotion(props, func(priority int, format event.FormatDef, ev *event.Event) {
		emitted = append(emitted, ev.Status)
		timestamps = append(timestamps, ev.Timestamp)
	})

	ts := int64(1000)
	var prev gps.Fix
	for i := 0; i < 10; i++ {
		f := fixAt(37.0, -122.0, 30.0, ts)
		m.CheckGPS(prev, f, ts)
		prev = f
		ts++
	}
	for i := 0; i < 20; i++ {
		f := fixAt(37.0, -122.0, 0.0, ts)
		m.CheckGPS(prev, f, ts)
		prev = f
		ts++
	}

	require.Len(t, emitted, 2)
	assert.Equal(t, wire.StatusMotionStart, emitted[0])
	assert.Equal(t, wire.StatusMotionStop, emitted[1])
	assert.Equal(t, int64(1000+10+5), timestamps[1])
}

func TestMotionDormantRespectsMaxCount(t *testing.T) {
	props := newTestStore(t)
	require.NoError(t, props.SetUint32At(property.PropMotionDormantInterval, 0, 10))
	require.NoError(t, props.SetUint32At(property.PropMotionDormantCount, 0, 2))

	var count int
	m := NewMotion(props, func(priority int, format event.FormatDef, ev *event.Event) {
		if ev.Status == wire.StatusMotionDormant {
			count++
		}
	})

	ts := int64(0)
	var prev gps.Fix
	for i := 0; i < 100; i++ {
		f := fixAt(0.1, 0.1, 0.0, ts)
		m.CheckGPS(prev, f, ts)
		prev = f
		ts += 10
	}
	assert.Equal(t, 2, count)
}

// TestMotionInMotionFloorClampsShortInterval configures a 5s in-motion
// cadence against a 60s transport floor: emissions happen at the floor,
// not the configured rate, unless Debug relaxes the clamp.
func TestMotionInMotionFloorClampsShortInterval(t *testing.T) {
	props := newTestStore(t)
	require.NoError(t, props.SetDoubleAt(property.PropMotionStart, 0, 10.0))
	require.NoError(t, props.SetUint32At(property.PropMotionInMotion, 0, 5))

	var inMotion int
	m := NewMotion(props, func(priority int, format event.FormatDef, ev *event.Event) {
		if ev.Status == wire.StatusMotionInMotion {
			inMotion++
		}
	})
	m.SetIntervalFloors(60, 300)

	ts := int64(1000)
	var prev gps.Fix
	for i := 0; i < 121; i++ {
		f := fixAt(37.0, -122.0, 30.0, ts)
		m.CheckGPS(prev, f, ts)
		prev = f
		ts++
	}
	// 120s of motion with a 60s floor: one emission at t+60 and one at
	// t+120, never the 24 the raw 5s cadence would produce.
	assert.Equal(t, 2, inMotion)

	m2 := NewMotion(props, func(priority int, format event.FormatDef, ev *event.Event) {
		if ev.Status == wire.StatusMotionInMotion {
			inMotion++
		}
	})
	m2.SetIntervalFloors(60, 300)
	m2.Debug = true
	inMotion = 0
	ts = int64(1000)
	prev = gps.Fix{}
	for i := 0; i < 31; i++ {
		f := fixAt(37.0, -122.0, 30.0, ts)
		m2.CheckGPS(prev, f, ts)
		prev = f
		ts++
	}
	assert.Equal(t, 6, inMotion, "debug mode honors the raw 5s cadence")
}

func TestMotionDormantFloorClampsShortInterval(t *testing.T) {
	props := newTestStore(t)
	require.NoError(t, props.SetUint32At(property.PropMotionDormantInterval, 0, 10))
	require.NoError(t, props.SetUint32At(property.PropMotionDormantCount, 0, 0))

	var dormant int
	m := NewMotion(props, func(priority int, format event.FormatDef, ev *event.Event) {
		if ev.Status == wire.StatusMotionDormant {
			dormant++
		}
	})
	m.SetIntervalFloors(60, 300)

	ts := int64(1000)
	var prev gps.Fix
	for i := 0; i < 61; i++ {
		f := fixAt(0.1, 0.1, 0.0, ts)
		m.CheckGPS(prev, f, ts)
		prev = f
		ts += 10
	}
	// 600s not moving with a 300s dormant floor: two emissions, not
	// the 60 the raw 10s cadence would produce.
	assert.Equal(t, 2, dormant)
}

func TestMotionExcessSpeedSetback(t *testing.T) {
	props := newTestStore(t)
	require.NoError(t, props.SetDoubleAt(property.PropMotionExcessSpeed, 0, 100.0))

	var events []wire.StatusCode
	m := NewMotion(props, func(priority int, format event.FormatDef, ev *event.Event) {
		events = append(events, ev.Status)
	})

	var prev gps.Fix
	m.CheckGPS(prev, fixAt(0, 0, 110, 0), 0)
	assert.True(t, m.isExceedingSpeed)
	// slowing to 96 is inside the 5kph setback band; should not clear yet
	m.CheckGPS(prev, fixAt(0, 0, 96, 1), 1)
	assert.True(t, m.isExceedingSpeed)
	m.CheckGPS(prev, fixAt(0, 0, 94, 2), 2)
	assert.False(t, m.isExceedingSpeed)

	require.Len(t, events, 1)
	assert.Equal(t, wire.StatusMotionExcessSpeed, events[0])
}
