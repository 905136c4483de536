package gps

import (
	"sync"

	"github.com/uincore/opendmtp-sub000/internal/obslog"
)

var log = obslog.For("gps")

// minEpoch rejects any fix timestamped before this, guarding against a
// receiver that has not yet acquired a valid almanac/ephemeris.
const minEpoch int64 = 946684800 // 2000-01-01T00:00:00Z

// hdopDecaySeconds is how long a GPGSA-derived DOP stays valid before a
// snapshot reports it as unset.
const hdopDecaySeconds int64 = 60

// mergeWindowSeconds is how close in wall-clock arrival time a GPGGA and
// GPRMC sentence must be to be treated as describing the same fix.
const mergeWindowSeconds int64 = 5

// Acquisition assembles GPRMC/GPGGA/GPGSA sentences into published
// fixes and tracks freshness. It is safe for concurrent use: one
// goroutine feeds sentences, others take snapshots.
type Acquisition struct {
	mu sync.Mutex

	lastValid Fix
	haveValid bool

	inProgress   Fix
	haveRMC      bool
	haveGGA      bool
	lastRMCTime  int64
	lastGGATime  int64

	lastRMCSeen  int64 // watchdog: last time any GPRMC (A or V) arrived
	dopSetAt     int64
	invalidCount uint32 // GPRMC sentences carrying the 'V' validity flag

	stale bool
}

// NewAcquisition constructs an Acquisition with no fix yet.
func NewAcquisition() *Acquisition {
	return &Acquisition{}
}

// FeedLine parses and applies one raw NMEA line (including the leading
// '$', excluding CR/LF) at nowUnix. Checksum-failing or malformed
// GPRMC/GPGGA/GPGSA lines are logged at debug level and ignored; other
// sentence types, which the GPS stream commonly carries, are ignored
// without logging.
func (a *Acquisition) FeedLine(line []byte, nowUnix int64) {
	if len(line) < 6 {
		return
	}
	switch string(line[1:6]) {
	case "GPRMC":
		r, err := ParseGPRMC(line)
		if err != nil {
			log.Debug("discarding GPRMC", "err", err)
			return
		}
		a.feedRMC(r, nowUnix)
	case "GPGGA":
		g, err := ParseGPGGA(line)
		if err != nil {
			log.Debug("discarding GPGGA", "err", err)
			return
		}
		a.feedGGA(g, nowUnix)
	case "GPGSA":
		s, err := ParseGPGSA(line)
		if err != nil {
			log.Debug("discarding GPGSA", "err", err)
			return
		}
		a.feedGSA(s, nowUnix)
	}
}

func (a *Acquisition) feedRMC(r *RMC, nowUnix int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastRMCSeen = nowUnix
	if !r.Valid {
		a.invalidCount++
		return
	}
	if !a.haveGGA || nowUnix-a.lastGGATime > mergeWindowSeconds {
		a.inProgress = Fix{}
		a.haveGGA = false
	}
	a.inProgress.Point = r.Point
	a.inProgress.FixTimeUTC = r.FixTime
	a.inProgress.SpeedKPH = r.SpeedKPH
	a.inProgress.HeadingDeg = r.HeadingDeg
	a.inProgress.NMEAMask |= maskRMC
	a.haveRMC = true
	a.lastRMCTime = nowUnix
	a.tryPublish(nowUnix)
}

func (a *Acquisition) feedGGA(g *GGA, nowUnix int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.haveRMC || nowUnix-a.lastRMCTime > mergeWindowSeconds {
		a.inProgress = Fix{}
		a.haveRMC = false
	}
	a.inProgress.FixQuality = g.FixQuality
	a.inProgress.Satellites = g.Satellites
	a.inProgress.HDOP = g.HDOP
	a.inProgress.AltitudeM = g.AltitudeM
	a.inProgress.NMEAMask |= maskGGA
	a.haveGGA = true
	a.lastGGATime = nowUnix
	a.dopSetAt = nowUnix
	a.tryPublish(nowUnix)
}

func (a *Acquisition) feedGSA(s *GSA, nowUnix int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.haveValid {
		a.lastValid.PDOP = s.PDOP
		a.lastValid.HDOP = s.HDOP
		a.lastValid.VDOP = s.VDOP
		a.lastValid.NMEAMask |= maskGSA
	}
	a.dopSetAt = nowUnix
}

// tryPublish promotes inProgress to lastValid once both GPRMC and GPGGA
// have contributed to it and it passes basic sanity checks. Must be
// called with a.mu held.
func (a *Acquisition) tryPublish(nowUnix int64) {
	if !a.haveRMC || !a.haveGGA {
		return
	}
	if a.inProgress.FixTimeUTC < minEpoch || !a.inProgress.Point.IsValid() {
		a.haveRMC, a.haveGGA = false, false
		return
	}
	a.inProgress.AgeTimer = nowUnix
	a.lastValid = a.inProgress
	a.haveValid = true
	a.stale = false
	a.haveRMC, a.haveGGA = false, false
}

// Snapshot returns a defensive copy of the last published fix, decaying
// its DOP fields if they have not been refreshed within hdopDecaySeconds.
func (a *Acquisition) Snapshot(nowUnix int64) (Fix, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.haveValid {
		return Fix{}, false
	}
	f := a.lastValid
	if nowUnix-a.dopSetAt > hdopDecaySeconds {
		f.PDOP, f.HDOP, f.VDOP = 0, 0, 0
	}
	return f, true
}

// SetStale drives the freshness state machine; the main loop calls this
// based on Fix.IsStale and age bookkeeping it performs itself.
func (a *Acquisition) SetStale(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stale = v
}

// IsStale reports the current staleness flag.
func (a *Acquisition) IsStale() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stale
}

// InvalidCount returns how many GPRMC sentences arrived flagged 'V'
// (receiver has no fix), one of the locally persisted GPS diagnostics.
func (a *Acquisition) InvalidCount() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.invalidCount
}

// WatchdogExpired reports whether no GPRMC sentence (valid or not) has
// arrived within intervalSeconds of nowUnix, signaling the caller should
// restart the comport reader.
func (a *Acquisition) WatchdogExpired(nowUnix, intervalSeconds int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastRMCSeen == 0 {
		return false
	}
	return nowUnix-a.lastRMCSeen > intervalSeconds
}

// ClockDeltaExceeds reports whether fixTime differs from nowUnix by more
// than thresholdSeconds, floored at 5 seconds, the condition under which
// the main loop may choose to synchronize the system clock to the GPS.
func ClockDeltaExceeds(nowUnix, fixTime, thresholdSeconds int64) bool {
	if thresholdSeconds < 5 {
		thresholdSeconds = 5
	}
	delta := fixTime - nowUnix
	if delta < 0 {
		delta = -delta
	}
	return delta > thresholdSeconds
}
