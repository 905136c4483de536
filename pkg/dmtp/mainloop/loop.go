// Package mainloop ties the core together: it samples the GPS at the
// configured cadence, runs the rule engines over each (previous, new)
// fix pair, invokes the protocol drivers, and performs housekeeping.
package mainloop

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/uincore/opendmtp-sub000/internal/obslog"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/event"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/gps"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/property"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/protocol"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/queue"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/rules"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/transport"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"
)

var log = obslog.For("mainloop")

// Sleep ramp: the loop runs fast while things are happening and decays
// back to the standard delay through fixed increments.
const (
	fastDelay     = 20 * time.Millisecond
	standardDelay = 1000 * time.Millisecond
	delayStep     = 30 * time.Millisecond
)

// Loop drives one tracker instance. Construct with New, then Run.
type Loop struct {
	Props    *property.Store
	Acq      *gps.Acquisition
	Motion   *rules.Motion
	GeoZone  *rules.GeoZone
	Odometer *rules.Odometer
	Drivers  []*protocol.Driver
	Events   *queue.Queue
	Encoder  *event.Encoder

	// Now supplies the clock; tests drive a simulated one.
	Now func() int64

	// RestartGPS reopens the GPS comport when the no-GPRMC watchdog
	// fires; nil means "log only".
	RestartGPS func()

	// PropertyFile, when set, is saved periodically and at shutdown.
	PropertyFile string

	delay        time.Duration
	lastSample   int64
	lastRestart  int64
	prevFix      gps.Fix
	havePrevFix  bool
	initialized  bool
	wasStale     bool

	cron *cron.Cron
}

// New wires a Loop and its rule engines around the given process-wide
// services. The event-add closure handed to the engines encodes
// against the standard format and enqueues onto events.
func New(props *property.Store, acq *gps.Acquisition, events *queue.Queue, drivers []*protocol.Driver) *Loop {
	l := &Loop{
		Props:   props,
		Acq:     acq,
		Events:  events,
		Drivers: drivers,
		Encoder: event.NewEncoder(1),
		Now:     func() int64 { return time.Now().Unix() },
		delay:   standardDelay,
	}
	// Sequence zero reads as "unset" in diagnostics; start at 1.
	l.Encoder.Seed(1)
	l.Motion = rules.NewMotion(props, l.AddEvent)
	l.GeoZone = rules.NewGeoZone(props, l.AddEvent)
	l.Odometer = rules.NewOdometer(props, l.AddEvent, nil)
	if len(drivers) > 0 {
		floors := transport.FloorsOf(drivers[0].Transport)
		l.Motion.SetIntervalFloors(floors.InMotionSeconds, floors.DormantSeconds)
	}
	return l
}

// AddEvent is the injected enqueue(priority, format, event) callback:
// it encodes ev against format and queues the resulting packet.
func (l *Loop) AddEvent(priority int, format event.FormatDef, ev *event.Event) {
	enc, err := l.Encoder.Encode(format, ev)
	if err != nil {
		log.Error("event encode failed", "status", uint16(ev.Status), "err", err)
		return
	}
	pkt := &queue.Packet{
		HeaderByte:  wire.HeaderBasic,
		Type:        wire.PacketType(0x30 | format.TypeNibble),
		Priority:    priority,
		Sequence:    enc.Sequence,
		SeqLength:   1,
		SeqPosition: -1,
		Payload:     enc.Payload,
	}
	if err := l.Events.Add(pkt); err != nil {
		log.Warn("event queue full, dropping", "status", uint16(ev.Status))
	}
}

// Run ticks until ctx is cancelled. Housekeeping (periodic property
// save) runs on its own cron schedule alongside the tick loop.
func (l *Loop) Run(ctx context.Context) error {
	if l.PropertyFile != "" {
		l.cron = cron.New()
		if _, err := l.cron.AddFunc("@every 5m", l.saveProperties); err != nil {
			return err
		}
		l.cron.Start()
		defer func() {
			l.cron.Stop()
			l.saveProperties()
		}()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.delay):
		}
		active := l.Tick(l.Now())
		if active {
			l.delay = fastDelay
		} else if l.delay < standardDelay {
			l.delay += delayStep
			if l.delay > standardDelay {
				l.delay = standardDelay
			}
		}
	}
}

// Tick runs one iteration of the loop body at the given clock reading
// and reports whether anything happened (which resets the sleep ramp).
// Exposed so tests can drive a simulated clock without the ticker.
func (l *Loop) Tick(now int64) bool {
	active := false
	if l.sampleDue(now) {
		l.lastSample = now
		if l.sampleGPS(now) {
			active = true
		}
	}
	l.checkWatchdog(now)
	_ = l.Props.PutUint32At(property.PropStateGPSDiagnostic, 0, l.Acq.InvalidCount())
	for _, d := range l.Drivers {
		if err := d.Run(); err != nil {
			log.Warn("session failed", "transport", d.Index, "err", err)
		}
		d.CheckUploadTimeout(now)
	}
	return active
}

func (l *Loop) sampleDue(now int64) bool {
	rate, _ := l.Props.GetUint32At(property.PropGPSSampleRate, 0, 7)
	if rate < 1 {
		rate = 1
	}
	return now-l.lastSample >= int64(rate)
}

// sampleGPS snapshots the acquisition, maintains the staleness state
// machine, and runs the rule engines over the (previous, new) pair.
func (l *Loop) sampleGPS(now int64) bool {
	fix, ok := l.Acq.Snapshot(now)
	expiration, _ := l.Props.GetUint32At(property.PropGPSExpiration, 0, 300)
	if ok {
		stale := fix.IsStale(now, int64(expiration))
		l.Acq.SetStale(stale)
		if stale && !l.wasStale {
			log.Warn("GPS fix went stale", "age", now-fix.AgeTimer)
			for _, d := range l.Drivers {
				d.QueueError(wire.ErrorGPSExpired, nil)
			}
			l.queueStatusEvent(wire.StatusGPSExpired, now, fix)
		}
		l.wasStale = stale
		if stale {
			return false
		}
	} else {
		return false
	}

	// Speeds below the minimum are GPS noise while parked; the rule
	// engines see them as zero.
	minSpeed, _ := l.Props.GetDoubleAt(property.PropGPSMinSpeed, 0, 0)
	if minSpeed > 0 && fix.SpeedKPH < minSpeed {
		fix.SpeedKPH = 0
	}

	clockDelta, _ := l.Props.GetUint32At(property.PropGPSClockDelta, 0, 15)
	if clockDelta > 0 && gps.ClockDeltaExceeds(now, fix.FixTimeUTC, int64(clockDelta)) {
		// Setting the system clock is the platform shell's job; the core
		// only detects the divergence.
		log.Warn("system clock diverges from GPS time", "delta", fix.FixTimeUTC-now)
	}

	if !l.initialized {
		l.initialized = true
		l.queueStatusEvent(wire.StatusInitialized, now, fix)
	}

	prev := l.prevFix
	if !l.havePrevFix {
		prev = fix
	}
	l.Motion.CheckGPS(prev, fix, now)
	l.GeoZone.CheckGPS(prev, fix, now)
	l.Odometer.CheckGPS(prev, fix, true)
	changed := !l.havePrevFix || fix.FixTimeUTC != prev.FixTimeUTC
	l.prevFix = fix
	l.havePrevFix = true
	return changed
}

func (l *Loop) queueStatusEvent(status wire.StatusCode, now int64, fix gps.Fix) {
	ev := event.New(status, now)
	ev.Point = fix.Point
	ev.SpeedKPH = fix.SpeedKPH
	ev.HeadingDeg = fix.HeadingDeg
	ev.AltitudeM = fix.AltitudeM
	ev.PointAge = uint32(now - fix.AgeTimer)
	l.AddEvent(event.PriorityFor(status), event.StandardFormat, ev)
}

func (l *Loop) checkWatchdog(now int64) {
	interval, _ := l.Props.GetUint32At(property.PropGPSEventInterval, 0, 60)
	if interval == 0 {
		return
	}
	if l.Acq.WatchdogExpired(now, int64(interval)) && now-l.lastRestart >= int64(interval) {
		obslog.Critical(log, "no GPRMC within watchdog interval, restarting comport")
		l.lastRestart = now
		if l.RestartGPS != nil {
			l.RestartGPS()
		}
	}
}

func (l *Loop) saveProperties() {
	if err := l.Props.Save(l.PropertyFile, false); err != nil {
		log.Error("property save failed", "path", l.PropertyFile, "err", err)
	}
}
