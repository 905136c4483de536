package accounting

// Production floors on the configured intervals; Config.Debug drops
// both floors so the configured intervals apply as-is.
const (
	MinXmitDelayFloorSeconds int64 = 60
	MinXmitRateFloorSeconds  int64 = 60
)

// Config is the quota and interval policy, normally sourced from
// PropCommMaxConnections ("total,duplex,windowMinutes"), PropCommMinXmitDelay,
// PropCommMinXmitRate, PropCommMaxXmitRate, and the max event counts.
type Config struct {
	TotalQuota       int
	DuplexQuota      int
	WindowMinutes    int
	MinXmitDelay     int64
	MinXmitRate      int64
	MaxXmitRate      int64
	MaxDuplexEvents  int
	MaxSimplexEvents int
	Debug            bool
}

// Accounting tracks duplex and simplex connection history against a
// Config and answers the protocol driver's "may I connect" queries.
type Accounting struct {
	Duplex  *Mask
	Simplex *Mask
	cfg     Config
}

// New constructs an Accounting with masks sized to cfg.WindowMinutes.
func New(cfg Config) *Accounting {
	return &Accounting{
		Duplex:  NewMask(cfg.WindowMinutes),
		Simplex: NewMask(cfg.WindowMinutes),
		cfg:     cfg,
	}
}

// SetConfig replaces the policy thresholds without resetting history.
func (a *Accounting) SetConfig(cfg Config) { a.cfg = cfg }

// HasQuota reports whether any connections are permitted at all.
func (a *Accounting) HasQuota() bool { return a.cfg.TotalQuota > 0 }

// UnderTotalQuota reports whether the combined simplex+duplex count over
// the window is below the total cap.
func (a *Accounting) UnderTotalQuota(nowUnix int64) bool {
	return a.Simplex.Count(nowUnix)+a.Duplex.Count(nowUnix) < a.cfg.TotalQuota
}

// UnderDuplexQuota reports whether the duplex count is below the duplex
// cap, itself capped by the total quota.
func (a *Accounting) UnderDuplexQuota(nowUnix int64) bool {
	cap := a.cfg.DuplexQuota
	if a.cfg.TotalQuota < cap {
		cap = a.cfg.TotalQuota
	}
	return a.Duplex.Count(nowUnix) < cap
}

// SupportsDuplex reports whether duplex sessions are configured at all.
func (a *Accounting) SupportsDuplex() bool {
	return a.cfg.MaxDuplexEvents > 0 && a.cfg.DuplexQuota > 0
}

// SupportsSimplex reports whether simplex sessions are configured at all.
func (a *Accounting) SupportsSimplex() bool {
	return a.cfg.MaxSimplexEvents > 0 && a.cfg.TotalQuota > a.cfg.DuplexQuota
}

func (a *Accounting) floor(configured, floor int64) int64 {
	if a.cfg.Debug {
		return configured
	}
	if configured > floor {
		return configured
	}
	return floor
}

func lastOf(a, b int64, aOK, bOK bool) (int64, bool) {
	switch {
	case aOK && bOK:
		if a > b {
			return a, true
		}
		return b, true
	case aOK:
		return a, true
	case bOK:
		return b, true
	default:
		return 0, false
	}
}

// AbsoluteDelayExpired reports whether enough time has passed since the
// last connection of either kind to open another one at all.
func (a *Accounting) AbsoluteDelayExpired(nowUnix int64) bool {
	dLast, dOK := a.Duplex.LastConnectionTime()
	sLast, sOK := a.Simplex.LastConnectionTime()
	last, ok := lastOf(dLast, sLast, dOK, sOK)
	if !ok {
		return true
	}
	return nowUnix-last >= a.floor(a.cfg.MinXmitDelay, MinXmitDelayFloorSeconds)
}

// MinIntervalExpired reports whether the minimum inter-transmission
// interval has elapsed since the last connection of either kind.
func (a *Accounting) MinIntervalExpired(nowUnix int64) bool {
	dLast, dOK := a.Duplex.LastConnectionTime()
	sLast, sOK := a.Simplex.LastConnectionTime()
	last, ok := lastOf(dLast, sLast, dOK, sOK)
	if !ok {
		return true
	}
	return nowUnix-last >= a.floor(a.cfg.MinXmitRate, MinXmitRateFloorSeconds)
}

// MaxIntervalExpired reports whether the maximum duplex interval has
// elapsed since the last duplex connection, forcing a duplex session
// even without a quota/interval reason otherwise.
func (a *Accounting) MaxIntervalExpired(nowUnix int64) bool {
	last, ok := a.Duplex.LastConnectionTime()
	if !ok {
		return true
	}
	if a.cfg.MaxXmitRate <= 0 {
		return false
	}
	return nowUnix-last >= a.cfg.MaxXmitRate
}
