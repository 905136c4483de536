package rules

import (
	"github.com/uincore/opendmtp-sub000/internal/geoutil"
	"github.com/uincore/opendmtp-sub000/internal/obslog"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/event"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/gps"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/property"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"
)

var motionLog = obslog.For("motion")

// Motion start types, matching PROP_MOTION_START_TYPE.
const (
	MotionStartGPSKPH    = 0
	MotionStartGPSMeters = 1
	MotionStartOBCKPH    = 2
)

// Motion stop types, matching PROP_MOTION_STOP_TYPE.
const (
	MotionStopAfterDelay = 0
	MotionStopWhenStopped = 1
)

// excessSpeedSetbackKPH is the hysteresis band below which excess-speed
// clears, matching the original's EXCESS_SPEED_SETBACK.
const excessSpeedSetbackKPH = 5.0

// defaultMotionFallbackKPH is the speed above which, when start/stop
// tracking is disabled outright (PROP_MOTION_START == 0), a fix is
// still considered "currently moving"; in that mode the flag only
// drives the periodic moving cadence (checkMovingCadence).
const defaultMotionFallbackKPH = 2.0

// Motion implements the start/stop/in-motion/dormant/excess-speed state
// machine. A Motion is not safe for concurrent use; callers serialize
// calls to CheckGPS the way the original C source does under its own
// module mutex (here that's the main loop's single-threaded GPS call
// site).
type Motion struct {
	props *property.Store
	emit  EventFunc

	// InMotionFloorSeconds and DormantFloorSeconds clamp the configured
	// in-motion/dormant cadences to what the session media can sustain;
	// callers set them per transport (SetIntervalFloors). Debug drops
	// both floors so the configured cadences apply as-is.
	InMotionFloorSeconds uint32
	DormantFloorSeconds  uint32
	Debug                bool

	isInMotion       bool
	isExceedingSpeed bool

	lastMotionFix  gps.Fix
	haveMotionFix  bool
	lastStoppedFix gps.Fix
	haveStoppedFix bool

	lastStoppedTimer int64 // unix seconds, 0 = not armed
	lastInMotionEmit int64
	lastMovingEmit   int64
	lastDormantEmit  int64
	dormantCount     uint32
}

// NewMotion constructs a Motion bound to props and wired to emit.
func NewMotion(props *property.Store, emit EventFunc) *Motion {
	return &Motion{props: props, emit: emit}
}

// ResetMovingTimer clears the serial-only "moving" cadence timer,
// matching motionResetMovingMessageTimer.
func (m *Motion) ResetMovingTimer() { m.lastMovingEmit = 0 }

// SetIntervalFloors installs the per-transport minimum in-motion and
// dormant cadences.
func (m *Motion) SetIntervalFloors(inMotionSeconds, dormantSeconds uint32) {
	m.InMotionFloorSeconds = inMotionSeconds
	m.DormantFloorSeconds = dormantSeconds
}

// floorInterval clamps a configured interval to floor unless debugging.
func (m *Motion) floorInterval(interval, floor uint32) uint32 {
	if m.Debug || interval >= floor {
		return interval
	}
	return floor
}

func (m *Motion) queue(priority int, status wire.StatusCode, ts int64, f gps.Fix) {
	ev := newFixEvent(status, ts, f)
	if m.emit != nil {
		m.emit(priority, event.StandardFormat, ev)
	}
}

// CheckGPS evaluates the motion state machine against newFix, having
// just replaced oldFix. now is unix seconds "now".
func (m *Motion) CheckGPS(oldFix, newFix gps.Fix, now int64) {
	startType, _ := m.props.GetUint32At(property.PropMotionStartType, 0, MotionStartGPSKPH)
	motionStart, _ := m.props.GetDoubleAt(property.PropMotionStart, 0, 0.0)

	speedKPH := newFix.SpeedKPH
	isCurrentlyMoving := false

	if motionStart > 0.0 {
		if !m.haveMotionFix {
			m.lastMotionFix = newFix
			m.haveMotionFix = true
		}

		if int(startType) == MotionStartGPSMeters {
			if newFix.IsValid() && m.lastMotionFix.IsValid() {
				delta := geoutil.MetersBetween(newFix.Point.Lat, newFix.Point.Lon, m.lastMotionFix.Point.Lat, m.lastMotionFix.Point.Lon)
				isCurrentlyMoving = delta >= motionStart
			}
		} else if speedKPH >= motionStart {
			isCurrentlyMoving = true
		}

		if isCurrentlyMoving {
			m.lastStoppedTimer = 0
			m.haveStoppedFix = false
			m.lastMotionFix = newFix
			if !m.isInMotion {
				m.isInMotion = true
				m.lastInMotionEmit = now
				m.queue(event.PriorityNormal, wire.StatusMotionStart, now, newFix)
			}
		} else if m.isInMotion {
			if m.lastStoppedTimer <= 0 {
				m.lastStoppedTimer = now
				m.lastStoppedFix = newFix
				m.haveStoppedFix = true
			}
			stopSeconds, _ := m.props.GetUint32At(property.PropMotionStop, 0, 0)
			if now-m.lastStoppedTimer >= int64(stopSeconds) {
				m.lastMotionFix = newFix
				m.doStop(now, newFix)
			}
		}
	} else {
		m.isInMotion = false
		isCurrentlyMoving = speedKPH >= defaultMotionFallbackKPH
	}

	m.checkInMotionAndDormant(isCurrentlyMoving, now, newFix)
	m.checkExcessSpeed(speedKPH, now, newFix)
	m.checkMovingCadence(isCurrentlyMoving, now, newFix)
}

func (m *Motion) doStop(now int64, newFix gps.Fix) {
	m.isInMotion = false
	stopType, _ := m.props.GetUint32At(property.PropMotionStopType, 0, MotionStopAfterDelay)
	stoppedTime := now
	stoppedFix := newFix
	if int(stopType) == MotionStopWhenStopped {
		if m.lastStoppedTimer > 0 {
			stoppedTime = m.lastStoppedTimer
		}
		if m.haveStoppedFix {
			stoppedFix = m.lastStoppedFix
		}
	}
	m.queue(event.PriorityNormal, wire.StatusMotionStop, stoppedTime, stoppedFix)
	m.haveStoppedFix = false
	m.lastStoppedTimer = 0
}

func (m *Motion) checkInMotionAndDormant(isCurrentlyMoving bool, now int64, newFix gps.Fix) {
	if m.isInMotion {
		interval, _ := m.props.GetUint32At(property.PropMotionInMotion, 0, 0)
		if interval > 0 {
			interval = m.floorInterval(interval, m.InMotionFloorSeconds)
			stopType, _ := m.props.GetUint32At(property.PropMotionStopType, 0, MotionStopAfterDelay)
			suspended := int(stopType) == MotionStopWhenStopped && !isCurrentlyMoving
			if !suspended && now-m.lastInMotionEmit >= int64(interval) {
				m.lastInMotionEmit = now
				m.queue(event.PriorityLow, wire.StatusMotionInMotion, now, newFix)
			}
		}
		m.lastDormantEmit = 0
		m.dormantCount = 0
		return
	}

	interval, _ := m.props.GetUint32At(property.PropMotionDormantInterval, 0, 0)
	if interval == 0 {
		return
	}
	interval = m.floorInterval(interval, m.DormantFloorSeconds)
	maxCount, _ := m.props.GetUint32At(property.PropMotionDormantCount, 0, 0)
	if maxCount > 0 && m.dormantCount >= maxCount {
		return
	}
	if m.lastDormantEmit <= 0 {
		m.lastDormantEmit = now
		m.dormantCount = 0
		return
	}
	if now-m.lastDormantEmit >= int64(interval) {
		m.lastDormantEmit = now
		m.queue(event.PriorityLow, wire.StatusMotionDormant, now, newFix)
		m.dormantCount++
	}
}

func (m *Motion) checkExcessSpeed(speedKPH float64, now int64, newFix gps.Fix) {
	maxSpeed, _ := m.props.GetDoubleAt(property.PropMotionExcessSpeed, 0, 0.0)
	if maxSpeed <= 0.0 {
		m.isExceedingSpeed = false
		return
	}
	if speedKPH >= maxSpeed {
		if !m.isExceedingSpeed {
			m.isExceedingSpeed = true
			m.queue(event.PriorityNormal, wire.StatusMotionExcessSpeed, now, newFix)
		}
		return
	}
	if m.isExceedingSpeed {
		setback := maxSpeed - excessSpeedSetbackKPH
		if setback <= 0 {
			setback = maxSpeed
		}
		if speedKPH < setback {
			m.isExceedingSpeed = false
		}
	}
}

// checkMovingCadence is the serial/Bluetooth-only periodic "moving"
// heartbeat (PROP_MOTION_MOVING_INTRVL); callers on other transports
// leave the interval at zero and this is a no-op.
func (m *Motion) checkMovingCadence(isCurrentlyMoving bool, now int64, newFix gps.Fix) {
	if !isCurrentlyMoving {
		return
	}
	interval, _ := m.props.GetUint32At(property.PropMotionMovingInterval, 0, 0)
	if interval == 0 {
		return
	}
	if now-m.lastMovingEmit >= int64(interval) {
		m.lastMovingEmit = now
		m.queue(event.PriorityNormal, wire.StatusMotionMoving, now, newFix)
	}
}
