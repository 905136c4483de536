// Package accounting implements the rolling connection-history bitmask
// and the quota/rate policy queries the protocol driver consults before
// opening a transport.
package accounting

import (
	"math/bits"
	"sync"
)

const (
	minutesPerBucket = 30
	bucketBitMask    = uint32(1)<<minutesPerBucket - 1 // 30 ones
	maxBuckets       = 8                                // caps the window at 4 hours
)

// Mask is a rolling history of connection-start minutes, represented as
// an array of 30-bit buckets: bit k of bucket b means "a connection
// started 30*b+k minutes ago". It answers population-count and
// rate-limit queries without storing individual timestamps.
type Mask struct {
	mu              sync.Mutex
	buckets         []uint32
	lastShiftMinute int64
	haveShifted     bool
	lastConnMinute  int64
	haveMarked      bool
}

// NewMask constructs a Mask sized to cover windowMinutes, clamped to
// between 1 and 8 buckets (30 minutes to 4 hours).
func NewMask(windowMinutes int) *Mask {
	n := (windowMinutes + minutesPerBucket - 1) / minutesPerBucket
	if n < 1 {
		n = 1
	}
	if n > maxBuckets {
		n = maxBuckets
	}
	return &Mask{buckets: make([]uint32, n)}
}

func (m *Mask) shiftTo(nowMinute int64) {
	if !m.haveShifted {
		m.lastShiftMinute = nowMinute
		m.haveShifted = true
		return
	}
	delta := nowMinute - m.lastShiftMinute
	if delta <= 0 {
		return
	}
	n := int64(len(m.buckets))
	if delta >= minutesPerBucket*n {
		for i := range m.buckets {
			m.buckets[i] = 0
		}
	} else {
		for step := int64(0); step < delta; step++ {
			m.shiftOneMinute()
		}
	}
	m.lastShiftMinute = nowMinute
}

// shiftOneMinute ages every recorded connection by one minute: bit k in
// bucket b moves to bit k+1, carrying into bucket b+1's bit 0 when it
// overflows bit 29. The oldest bit of the oldest bucket falls off.
func (m *Mask) shiftOneMinute() {
	carry := uint32(0)
	for b := 0; b < len(m.buckets); b++ {
		next := (m.buckets[b]<<1)&bucketBitMask | carry
		carry = (m.buckets[b] >> (minutesPerBucket - 1)) & 1
		m.buckets[b] = next
	}
}

// Count returns the population count of recorded connection-start
// minutes across the whole window, as of nowUnix (seconds).
func (m *Mask) Count(nowUnix int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shiftTo(nowUnix / 60)
	total := 0
	for _, b := range m.buckets {
		total += bits.OnesCount32(b)
	}
	return total
}

// Mark records a connection starting at nowUnix. It returns false
// ("rate violated") without recording anything if the current minute is
// already marked, so a caller never double-counts within one minute.
func (m *Mask) Mark(nowUnix int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	minute := nowUnix / 60
	m.shiftTo(minute)
	if m.buckets[0]&1 != 0 {
		return false
	}
	m.buckets[0] |= 1
	m.lastConnMinute = minute
	m.haveMarked = true
	return true
}

// LastConnectionTime returns the unix-seconds timestamp of the most
// recent successful Mark, and whether one has ever occurred.
func (m *Mask) LastConnectionTime() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastConnMinute * 60, m.haveMarked
}
