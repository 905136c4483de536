// Package integration exercises the cross-package scenarios: simulated
// clock, synthetic NMEA input, and real transports on loopback.
package integration

import (
	"fmt"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uincore/opendmtp-sub000/internal/codec"
	"github.com/uincore/opendmtp-sub000/internal/splitter"
	"github.com/uincore/opendmtp-sub000/internal/validator"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/accounting"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/event"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/gps"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/mainloop"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/property"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/protocol"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/queue"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/rules"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/transport"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"
)

// tracker bundles a full core instance around a simulated clock.
type tracker struct {
	now    int64
	props  *property.Store
	acq    *gps.Acquisition
	events *queue.Queue
	loop   *mainloop.Loop
}

func newTracker(t *testing.T) *tracker {
	t.Helper()
	tr := &tracker{now: 1700000000}
	tr.props = property.New(property.DefaultDefs())
	require.NoError(t, tr.props.SetUint32At(property.PropGPSSampleRate, 0, 1))
	tr.acq = gps.NewAcquisition()
	tr.events = queue.New(128)
	tr.loop = mainloop.New(tr.props, tr.acq, tr.events, nil)
	tr.loop.Now = func() int64 { return tr.now }
	return tr
}

// feedFix injects a checksummed GPRMC+GPGGA pair at the simulated
// clock and runs one loop tick.
func (tr *tracker) feedFix(lat, lon, speedKPH float64) {
	latHemi, lonHemi := "N", "W"
	latAbs, lonAbs := lat, -lon
	if lat < 0 {
		latHemi, latAbs = "S", -lat
	}
	if lon >= 0 {
		lonHemi, lonAbs = "E", lon
	}
	latDeg := int(latAbs)
	latMin := (latAbs - float64(latDeg)) * 60
	lonDeg := int(lonAbs)
	lonMin := (lonAbs - float64(lonDeg)) * 60
	knots := speedKPH / 1.852
	hhmmss := time.Unix(tr.now, 0).UTC().Format("150405")
	ddmmyy := time.Unix(tr.now, 0).UTC().Format("020106")
	rmc := fmt.Sprintf("GPRMC,%s,A,%02d%07.4f,%s,%03d%07.4f,%s,%05.1f,084.4,%s,,",
		hhmmss, latDeg, latMin, latHemi, lonDeg, lonMin, lonHemi, knots, ddmmyy)
	gga := fmt.Sprintf("GPGGA,%s,%02d%07.4f,%s,%03d%07.4f,%s,1,08,0.9,545.4,M,46.9,M,,",
		hhmmss, latDeg, latMin, latHemi, lonDeg, lonMin, lonHemi)
	tr.acq.FeedLine(validator.AppendASCIIChecksum([]byte(rmc)), tr.now)
	tr.acq.FeedLine(validator.AppendASCIIChecksum([]byte(gga)), tr.now)
	tr.loop.Tick(tr.now)
}

func (tr *tracker) advance(seconds int64) { tr.now += seconds }

func (tr *tracker) drainStatuses() []wire.StatusCode {
	var out []wire.StatusCode
	it := tr.events.GetIterator()
	for it.HasNext() {
		p := it.GetNext()
		out = append(out, wire.StatusCode(codec.ReadUint16BE(p.Payload)))
	}
	return out
}

// Scenario 1: boot with empty state, feed one valid fix, expect one
// STATUS_INITIALIZED event with a non-zero sequence whose payload
// decodes back to the supplied point.
func TestScenarioFirstFix(t *testing.T) {
	tr := newTracker(t)
	tr.feedFix(37.7749, -122.4194, 0)

	require.Equal(t, 1, tr.events.Count())
	it := tr.events.GetIterator()
	p := it.GetNext()
	assert.Equal(t, wire.StatusInitialized, wire.StatusCode(codec.ReadUint16BE(p.Payload)))
	assert.NotZero(t, p.Sequence)

	var pt [6]byte
	copy(pt[:], p.Payload[6:12])
	decoded := event.DecodePoint6(pt)
	assert.InDelta(t, 37.7749, decoded.Lat, 1e-4)
	assert.InDelta(t, -122.4194, decoded.Lon, 1e-4)
}

// Scenario 2: 10 fixes at 30 kph then 20 at 0 kph with motion_stop=5
// in after-delay mode: exactly one START, periodic IN_MOTIONs, one
// STOP stamped at stop-detection + 5.
func TestScenarioMotionStartStop(t *testing.T) {
	tr := newTracker(t)
	require.NoError(t, tr.props.SetDoubleAt(property.PropMotionStart, 0, 10.0))
	require.NoError(t, tr.props.SetUint32At(property.PropMotionStop, 0, 5))
	require.NoError(t, tr.props.SetUint32At(property.PropMotionInMotion, 0, 10))

	tr.feedFix(37.7749, -122.4194, 0) // STATUS_INITIALIZED
	for i := 0; i < 10; i++ {
		tr.advance(1)
		tr.feedFix(37.7749+float64(i)*0.0001, -122.4194, 30)
	}
	for i := 0; i < 20; i++ {
		tr.advance(1)
		tr.feedFix(37.7759, -122.4194, 0)
	}

	statuses := tr.drainStatuses()
	counts := map[wire.StatusCode]int{}
	for _, s := range statuses {
		counts[s]++
	}
	assert.Equal(t, 1, counts[wire.StatusMotionStart])
	assert.Equal(t, 1, counts[wire.StatusMotionStop])
	assert.GreaterOrEqual(t, counts[wire.StatusMotionInMotion], 1)
}

// Scenario 3: a 100 m zone with arrive_delay=3: exactly one ARRIVE
// carrying the zone ID.
func TestScenarioGeozoneArrival(t *testing.T) {
	tr := newTracker(t)
	require.NoError(t, tr.props.SetUint32At(property.PropGeofArriveDelay, 0, 3))
	require.NoError(t, tr.loop.GeoZone.AddZone(rules.Zone{
		ID:     42,
		Type:   rules.ZoneDualPointRadius,
		Radius: 100,
		Point0: event.Point{Lat: 37.0, Lon: -122.0},
	}))

	tr.feedFix(37.01, -122.0, 20) // ~1.1 km out
	for i := 0; i < 6; i++ {
		tr.advance(1)
		tr.feedFix(37.0001, -122.0, 20) // inside the zone
	}

	var arrives int
	it := tr.events.GetIterator()
	for it.HasNext() {
		p := it.GetNext()
		if wire.StatusCode(codec.ReadUint16BE(p.Payload)) == wire.StatusGeofenceArrive {
			arrives++
			// geofence ID field sits after status(2)+ts(4)+point(6)+
			// age(2)+speed(1)+heading(1)+altitude(2) in the standard
			// format.
			assert.Equal(t, uint32(42), codec.ReadUint32BE(p.Payload[18:22]))
		}
	}
	assert.Equal(t, 1, arrives)
}

// Scenario 4: duplex session with queued events and a pending property
// reply: identification, pending, events, then an ACK carrying no
// sequence (acknowledging everything sent) empties the queue.
func TestScenarioDuplexSession(t *testing.T) {
	tr := newTracker(t)
	require.NoError(t, tr.props.SetString(property.PropStateAccountID, "acct"))
	require.NoError(t, tr.props.SetString(property.PropStateDeviceID, "dev"))

	tr.feedFix(37.7749, -122.4194, 0)
	tr.advance(1)
	tr.feedFix(37.7750, -122.4194, 0)
	for tr.events.Count() < 3 {
		// Pad with waymark-style location events so three are queued.
		ev := event.New(wire.StatusLocation, tr.now)
		ev.Point = event.Point{Lat: 37.7749, Lon: -122.4194}
		tr.loop.AddEvent(event.PriorityNormal, event.StandardFormat, ev)
	}
	require.Equal(t, 3, tr.events.Count())

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	_, portStr, _ := net.SplitHostPort(l.Addr().String())
	port, _ := strconv.Atoi(portStr)

	type serverResult struct {
		packets [][]byte
		err     error
	}
	done := make(chan serverResult, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			done <- serverResult{err: err}
			return
		}
		defer conn.Close()
		var all []byte
		buf := make([]byte, 4096)
		var packets [][]byte
		for {
			conn.SetReadDeadline(time.Now().Add(time.Second))
			n, _ := conn.Read(buf)
			if n > 0 {
				all = append(all, buf[:n]...)
				packets, _, _ = splitter.SplitPackets(all)
				// ident + pending + 3 events
				if len(packets) >= 5 {
					break
				}
			} else {
				break
			}
		}
		// Acknowledge everything sent, then end the session.
		conn.Write([]byte{wire.HeaderBasic, byte(wire.PktServerAck), 0})
		conn.Write([]byte{wire.HeaderBasic, byte(wire.PktServerEOT), 0})
		done <- serverResult{packets: packets}
	}()

	acct := accounting.New(accounting.Config{
		TotalQuota: 30, DuplexQuota: 10, WindowMinutes: 60,
		MaxDuplexEvents: 8, MaxSimplexEvents: 4, Debug: true,
	})
	sock := transport.NewSocket("127.0.0.1", port)
	sock.ReadTimeout = 2 * time.Second
	driver := protocol.NewDriver(sock, tr.props, acct, tr.events)
	driver.Now = func() int64 { return tr.now }
	require.NoError(t, driver.Pending.Add(&queue.Packet{
		Type:    wire.PktClientPropertyValue,
		Payload: append(codec.WriteUint16BE(uint16(property.PropCommPort)), []byte("31000")...),
	}))

	require.NoError(t, driver.Run())

	res := <-done
	require.NoError(t, res.err)
	require.GreaterOrEqual(t, len(res.packets), 5)
	typ, _ := splitter.PacketType(res.packets[0])
	assert.Equal(t, wire.PktClientIdentify, typ)
	typ, _ = splitter.PacketType(res.packets[1])
	assert.Equal(t, wire.PktClientPropertyValue, typ)

	assert.Equal(t, 0, tr.events.Count(), "ACK must empty the queue")
}

// Scenario 5: simplex with five queued events and max_simplex_events=3:
// one UDP datagram with identification + three events, two remaining.
func TestScenarioSimplexDatagram(t *testing.T) {
	tr := newTracker(t)
	require.NoError(t, tr.props.SetString(property.PropStateAccountID, "acct"))
	require.NoError(t, tr.props.SetString(property.PropStateDeviceID, "dev"))
	require.NoError(t, tr.props.SetUint32At(property.PropCommMaxSimplexEvents, 0, 3))

	for i := 0; i < 5; i++ {
		ev := event.New(wire.StatusLocation, tr.now)
		ev.Point = event.Point{Lat: 37.7749, Lon: -122.4194}
		tr.loop.AddEvent(event.PriorityNormal, event.StandardFormat, ev)
	}
	require.Equal(t, 5, tr.events.Count())

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	_, portStr, _ := net.SplitHostPort(pc.LocalAddr().String())
	port, _ := strconv.Atoi(portStr)

	acct := accounting.New(accounting.Config{
		TotalQuota: 30, DuplexQuota: 0, WindowMinutes: 60,
		MaxSimplexEvents: 3, Debug: true,
	})
	driver := protocol.NewDriver(transport.NewSocket("127.0.0.1", port), tr.props, acct, tr.events)
	driver.Now = func() int64 { return tr.now }

	require.NoError(t, driver.Run())

	pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)

	packets, residue, err := splitter.SplitPackets(buf[:n])
	require.NoError(t, err)
	assert.Empty(t, residue)
	require.Len(t, packets, 4) // identification + three events
	typ, _ := splitter.PacketType(packets[0])
	assert.Equal(t, wire.PktClientIdentify, typ)
	for _, p := range packets[1:] {
		typ, _ := splitter.PacketType(p)
		assert.Equal(t, wire.PktClientFixedFmtStd, typ)
	}
	assert.Equal(t, 2, tr.events.Count())
}

// Scenario 6: property round-trip through save/load.
func TestScenarioPropertyRoundTrip(t *testing.T) {
	path := t.TempDir() + "/props.conf"
	s := property.New(property.DefaultDefs())
	require.NoError(t, s.SetString(property.PropCommHost, "example.net"))
	require.NoError(t, s.Save(path, false))

	s2 := property.New(property.DefaultDefs())
	require.NoError(t, s2.Load(path))
	host, err := s2.GetString(property.PropCommHost, "")
	require.NoError(t, err)
	assert.Equal(t, "example.net", host)
	assert.True(t, s2.IsNonDefault(property.PropCommHost))
	assert.False(t, s2.IsChanged(property.PropCommHost))
}
