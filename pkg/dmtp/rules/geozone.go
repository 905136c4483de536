package rules

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/uincore/opendmtp-sub000/internal/geoutil"
	"github.com/uincore/opendmtp-sub000/internal/obslog"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/event"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/gps"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/property"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"
)

var geozoneLog = obslog.For("geozone")

// ZoneID identifies one GeoZone. ZoneNone ("0") means "no zone".
type ZoneID uint32

const ZoneNone ZoneID = 0

// ZoneType selects the containment test a Zone uses.
type ZoneType uint8

const (
	ZoneDualPointRadius ZoneType = iota
	ZoneBoundedRect
	ZoneSweptPointRadius
	ZoneDeltaRect
)

// Zone is one geographic region, matching the on-wire GeoZone record.
type Zone struct {
	ID     ZoneID
	Type   ZoneType
	Radius float64 // meters
	Point0 event.Point
	Point1 event.Point
}

// geoZoneRecordBytes is the packed little-endian on-disk record size:
// 4(id) + 1(type) + 2(radius, meters) + 4*4(lat/lon f32 x2 points) = 23
// bytes. A stable portable layout replacing the original's raw
// in-memory struct dump; the file format is local state, distinct from
// the big-endian admin wire records below.
const geoZoneRecordBytes = 23

func encodeZoneRecord(z Zone) []byte {
	b := make([]byte, geoZoneRecordBytes)
	binary.LittleEndian.PutUint32(b[0:4], uint32(z.ID))
	b[4] = byte(z.Type)
	binary.LittleEndian.PutUint16(b[5:7], uint16(z.Radius))
	putFloat32(b[7:11], float32(z.Point0.Lat))
	putFloat32(b[11:15], float32(z.Point0.Lon))
	putFloat32(b[15:19], float32(z.Point1.Lat))
	putFloat32(b[19:23], float32(z.Point1.Lon))
	return b
}

func decodeZoneRecord(b []byte) Zone {
	return Zone{
		ID:     ZoneID(binary.LittleEndian.Uint32(b[0:4])),
		Type:   ZoneType(b[4]),
		Radius: float64(binary.LittleEndian.Uint16(b[5:7])),
		Point0: event.Point{Lat: float64(getFloat32(b[7:11])), Lon: float64(getFloat32(b[11:15]))},
		Point1: event.Point{Lat: float64(getFloat32(b[15:19])), Lon: float64(getFloat32(b[19:23]))},
	}
}

func putFloat32(b []byte, f float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(f))
}

func getFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

// Admin wire records. A standard-resolution add carries a 16-bit zone
// ID and two 6-byte packed points; a high-resolution add a 32-bit ID
// and two 8-byte points. Both pack type and radius into one 16-bit
// field: bits 15..13 type, bits 12..0 radius in meters. Multibyte
// integers are big-endian, as everywhere on the wire.
const (
	zoneWireStdBytes = 2 + 2 + 6 + 6  // 16
	zoneWireHiBytes  = 4 + 2 + 8 + 8  // 22

	zoneTypeShift  = 13
	zoneRadiusMask = 0x1FFF
)

func packTypeRadius(z Zone) uint16 {
	r := z.Radius
	if r < 0 {
		r = 0
	}
	if r > float64(zoneRadiusMask) {
		r = float64(zoneRadiusMask)
	}
	return uint16(z.Type)<<zoneTypeShift | uint16(r)&zoneRadiusMask
}

func unpackTypeRadius(v uint16) (ZoneType, float64) {
	return ZoneType(v >> zoneTypeShift & 0x7), float64(v & zoneRadiusMask)
}

func encodeZoneWire(z Zone, hiRes bool) []byte {
	if hiRes {
		b := make([]byte, zoneWireHiBytes)
		binary.BigEndian.PutUint32(b[0:4], uint32(z.ID))
		binary.BigEndian.PutUint16(b[4:6], packTypeRadius(z))
		p0 := event.EncodePoint8(z.Point0)
		p1 := event.EncodePoint8(z.Point1)
		copy(b[6:14], p0[:])
		copy(b[14:22], p1[:])
		return b
	}
	b := make([]byte, zoneWireStdBytes)
	binary.BigEndian.PutUint16(b[0:2], uint16(z.ID))
	binary.BigEndian.PutUint16(b[2:4], packTypeRadius(z))
	p0 := event.EncodePoint6(z.Point0)
	p1 := event.EncodePoint6(z.Point1)
	copy(b[4:10], p0[:])
	copy(b[10:16], p1[:])
	return b
}

func decodeZoneWire(b []byte, hiRes bool) Zone {
	var z Zone
	if hiRes {
		z.ID = ZoneID(binary.BigEndian.Uint32(b[0:4]))
		z.Type, z.Radius = unpackTypeRadius(binary.BigEndian.Uint16(b[4:6]))
		var p0, p1 [8]byte
		copy(p0[:], b[6:14])
		copy(p1[:], b[14:22])
		z.Point0 = event.DecodePoint8(p0)
		z.Point1 = event.DecodePoint8(p1)
		return z
	}
	z.ID = ZoneID(binary.BigEndian.Uint16(b[0:2]))
	z.Type, z.Radius = unpackTypeRadius(binary.BigEndian.Uint16(b[2:4]))
	var p0, p1 [6]byte
	copy(p0[:], b[4:10])
	copy(p1[:], b[10:16])
	z.Point0 = event.DecodePoint6(p0)
	z.Point1 = event.DecodePoint6(p1)
	return z
}

// Admin sub-commands carried by PropGeofAdmin, matching GEOF_CMD_*.
const (
	GeofCmdAddStandard = 0
	GeofCmdAddHighRes  = 1
	GeofCmdRemove      = 2
	GeofCmdSave        = 3
)

// maxZones bounds the in-memory table, a far smaller cap than the
// original's 4000-entry embedded-device table since this is a reference
// implementation, not a flash-constrained target.
const maxZones = 256

// GeoZone implements arrival/departure detection over a fixed-capacity
// zone table and the admin command surface (add/remove/save) the
// server drives via a property "set".
type GeoZone struct {
	mu    sync.Mutex
	props *property.Store
	emit  EventFunc

	zones []Zone
	dirty bool

	arriveFix   gps.Fix
	haveArrive  bool
	departFix   gps.Fix
	haveDepart  bool

	filePath string
}

// NewGeoZone constructs a GeoZone bound to props and emit. The property
// store's command slot (PropGeofAdmin) is wired to Admin.
func NewGeoZone(props *property.Store, emit EventFunc) *GeoZone {
	gz := &GeoZone{props: props, emit: emit}
	props.SetCommand(property.PropGeofAdmin, gz.Admin)
	return gz
}

func (gz *GeoZone) currentID() ZoneID {
	v, _ := gz.props.GetUint32At(property.PropGeofCurrent, 0, uint32(ZoneNone))
	return ZoneID(v)
}

func (gz *GeoZone) setCurrentID(id ZoneID) {
	_ = gz.props.SetUint32At(property.PropGeofCurrent, 0, uint32(id))
}

// syncCount mirrors the occupied-slot count into the read-only
// gf.count diagnostic.
func (gz *GeoZone) syncCount() {
	_ = gz.props.PutUint32At(property.PropGeofCount, 0, uint32(gz.Count()))
}

func (gz *GeoZone) queue(priority int, status wire.StatusCode, f gps.Fix, zoneID ZoneID) {
	ev := newFixEvent(status, f.FixTimeUTC, f)
	ev.GeofenceID = uint32(zoneID)
	if gz.emit != nil {
		gz.emit(priority, event.StandardFormat, ev)
	}
}

// InZone returns the first zone in table order whose containment test
// matches p, or nil. Locked: safe to call while Admin mutates the table.
func (gz *GeoZone) InZone(p event.Point) *Zone {
	gz.mu.Lock()
	defer gz.mu.Unlock()
	for i := range gz.zones {
		if gz.zones[i].ID != ZoneNone && zoneContains(gz.zones[i], p) {
			return &gz.zones[i]
		}
	}
	return nil
}

func zoneContains(z Zone, p event.Point) bool {
	switch z.Type {
	case ZoneDualPointRadius, ZoneSweptPointRadius:
		// ZoneSweptPointRadius falls through to the dual point/radius
		// test, matching the original's documented compatibility
		// fallback (GEOF_SWEPT_POINT_RADIUS "not supported ... default
		// to dual point/radius").
		if z.Point0.IsValid() && geoutil.MetersBetween(p.Lat, p.Lon, z.Point0.Lat, z.Point0.Lon) <= z.Radius {
			return true
		}
		if z.Point1.IsValid() && geoutil.MetersBetween(p.Lat, p.Lon, z.Point1.Lat, z.Point1.Lon) <= z.Radius {
			return true
		}
		return false
	case ZoneBoundedRect:
		if p.Lat > z.Point0.Lat || p.Lat < z.Point1.Lat {
			return false
		}
		if p.Lon < z.Point0.Lon || p.Lon > z.Point1.Lon {
			return false
		}
		return true
	case ZoneDeltaRect:
		top := z.Point0.Lat + z.Point1.Lat
		bottom := z.Point0.Lat - z.Point1.Lat
		left := z.Point0.Lon - z.Point1.Lon
		right := z.Point0.Lon + z.Point1.Lon
		if p.Lat > top || p.Lat < bottom {
			return false
		}
		if p.Lon < left || p.Lon > right {
			return false
		}
		return true
	default:
		return false
	}
}

// CheckGPS evaluates the arrival/departure state machine against
// newFix, having just replaced oldFix.
func (gz *GeoZone) CheckGPS(oldFix, newFix gps.Fix, now int64) {
	if !newFix.IsValid() {
		return
	}
	inZone := gz.InZone(newFix.Point)
	curID := gz.currentID()
	newID := ZoneNone
	if inZone != nil {
		newID = inZone.ID
	}

	if curID == newID {
		gz.haveDepart = false
		gz.haveArrive = false
		return
	}

	if curID != ZoneNone {
		if !gz.haveDepart {
			gz.departFix = newFix
			gz.haveDepart = true
		}
		delay, _ := gz.props.GetUint32At(property.PropGeofDepartDelay, 0, 0)
		if delay == 0 || now-gz.departFix.FixTimeUTC >= int64(delay) {
			gz.queue(event.PriorityNormal, wire.StatusGeofenceDepart, gz.departFix, curID)
			gz.setCurrentID(ZoneNone)
			gz.haveDepart = false
		}
	} else {
		gz.haveDepart = false
	}

	if newID != ZoneNone {
		if !gz.haveArrive {
			gz.arriveFix = newFix
			gz.haveArrive = true
		}
		delay, _ := gz.props.GetUint32At(property.PropGeofArriveDelay, 0, 0)
		if delay == 0 || now-gz.arriveFix.FixTimeUTC >= int64(delay) {
			gz.setCurrentID(newID)
			gz.queue(event.PriorityNormal, wire.StatusGeofenceArrive, gz.arriveFix, newID)
			gz.haveArrive = false
		}
	} else {
		gz.haveArrive = false
	}
}

// Admin implements the PropGeofAdmin command: add (standard or
// high-resolution), remove (by ID, or all if the id list is empty), and
// save. Payload layout: [subcommand_u8][zone records or id list].
func (gz *GeoZone) Admin(args []byte) wire.CommandError {
	if len(args) < 1 {
		return wire.CommandErrorArgCount
	}
	switch args[0] {
	case GeofCmdAddStandard, GeofCmdAddHighRes:
		hiRes := args[0] == GeofCmdAddHighRes
		recBytes := zoneWireStdBytes
		if hiRes {
			recBytes = zoneWireHiBytes
		}
		rest := args[1:]
		if len(rest)%recBytes != 0 {
			return wire.CommandErrorOverflow
		}
		last := wire.CommandErrorOK
		for off := 0; off+recBytes <= len(rest); off += recBytes {
			z := decodeZoneWire(rest[off:off+recBytes], hiRes)
			if err := gz.add(z); err != wire.CommandErrorOK {
				last = err
			}
		}
		gz.syncCount()
		return last
	case GeofCmdRemove:
		gz.mu.Lock()
		if len(args) == 1 {
			gz.removeAllLocked()
		} else {
			for off := 1; off+4 <= len(args); off += 4 {
				gz.removeLocked(ZoneID(binary.BigEndian.Uint32(args[off : off+4])))
			}
		}
		gz.mu.Unlock()
		gz.syncCount()
		return wire.CommandErrorOK
	case GeofCmdSave:
		if err := gz.Save(gz.filePath); err != nil {
			return wire.CommandErrorExecution
		}
		return wire.CommandErrorOKAck
	default:
		return wire.CommandErrorUnsupported
	}
}

func (gz *GeoZone) add(z Zone) wire.CommandError {
	if z.ID == ZoneNone {
		return wire.CommandErrorBadValue
	}
	switch z.Type {
	case ZoneDualPointRadius, ZoneSweptPointRadius:
		if z.Radius <= 0 {
			return wire.CommandErrorBadValue
		}
	}
	switch z.Type {
	case ZoneDualPointRadius:
		if !z.Point0.IsValid() {
			if z.Point1.IsValid() {
				z.Point0, z.Point1 = z.Point1, event.Point{}
			} else {
				return wire.CommandErrorBadValue
			}
		}
	case ZoneBoundedRect:
		if !z.Point0.IsValid() || !z.Point1.IsValid() {
			return wire.CommandErrorBadValue
		}
		if z.Point0.Lat < z.Point1.Lat {
			z.Point0.Lat, z.Point1.Lat = z.Point1.Lat, z.Point0.Lat
		}
		if z.Point0.Lon > z.Point1.Lon {
			z.Point0.Lon, z.Point1.Lon = z.Point1.Lon, z.Point0.Lon
		}
	case ZoneSweptPointRadius:
		if !z.Point0.IsValid() || !z.Point1.IsValid() {
			return wire.CommandErrorBadValue
		}
	case ZoneDeltaRect:
		if !z.Point0.IsValid() {
			return wire.CommandErrorBadValue
		}
		if z.Point1.Lat == 0 || z.Point1.Lon == 0 {
			return wire.CommandErrorBadValue
		}
		if z.Point1.Lat < 0 {
			z.Point1.Lat = -z.Point1.Lat
		}
		if z.Point1.Lon < 0 {
			z.Point1.Lon = -z.Point1.Lon
		}
	default:
		return wire.CommandErrorBadValue
	}

	gz.mu.Lock()
	defer gz.mu.Unlock()
	idx := -1
	for i := range gz.zones {
		if gz.zones[i].ID == ZoneNone {
			idx = i
			break
		}
	}
	if idx < 0 {
		if len(gz.zones) >= maxZones {
			return wire.CommandErrorOverflow
		}
		gz.zones = append(gz.zones, z)
	} else {
		gz.zones[idx] = z
	}
	gz.dirty = true
	return wire.CommandErrorOK
}

func (gz *GeoZone) removeAllLocked() {
	if len(gz.zones) == 0 {
		return
	}
	gz.zones = gz.zones[:0]
	gz.dirty = true
}

func (gz *GeoZone) removeLocked(id ZoneID) {
	for i := range gz.zones {
		if gz.zones[i].ID == id {
			gz.zones[i].ID = ZoneNone
			gz.dirty = true
		}
	}
	for len(gz.zones) > 0 && gz.zones[len(gz.zones)-1].ID == ZoneNone {
		gz.zones = gz.zones[:len(gz.zones)-1]
	}
	if id == gz.currentID() {
		gz.setCurrentID(ZoneNone)
	}
}

// AddZone validates and inserts z, the same path Admin's add
// sub-commands take; exposed for offline tooling that builds a zone
// table directly.
func (gz *GeoZone) AddZone(z Zone) error {
	if code := gz.add(z); code != wire.CommandErrorOK {
		return fmt.Errorf("geozone: add rejected: 0x%04X", uint16(code))
	}
	gz.syncCount()
	return nil
}

// Zones returns a copy of the non-empty zone slots in table order.
func (gz *GeoZone) Zones() []Zone {
	gz.mu.Lock()
	defer gz.mu.Unlock()
	out := make([]Zone, 0, len(gz.zones))
	for _, z := range gz.zones {
		if z.ID != ZoneNone {
			out = append(out, z)
		}
	}
	return out
}

// Count returns the number of non-empty zone slots.
func (gz *GeoZone) Count() int {
	gz.mu.Lock()
	defer gz.mu.Unlock()
	n := 0
	for _, z := range gz.zones {
		if z.ID != ZoneNone {
			n++
		}
	}
	return n
}

// Save writes every non-empty zone to path as consecutive packed
// records in the stable layout decodeZoneRecord expects, rather than an
// in-memory struct dump.
func (gz *GeoZone) Save(path string) error {
	gz.mu.Lock()
	defer gz.mu.Unlock()
	if path == "" {
		return fmt.Errorf("geozone: no file path configured")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	count := 0
	for _, z := range gz.zones {
		if z.ID == ZoneNone {
			continue
		}
		if _, err := f.Write(encodeZoneRecord(z)); err != nil {
			return err
		}
		count++
	}
	gz.dirty = false
	geozoneLog.Info("saved geozone file", "path", path, "count", count)
	return nil
}

// Load replaces the zone table with the contents of path. A missing
// file is not an error: it leaves the table empty, matching the
// original's "GeoZone file does not exist" informational path.
func (gz *GeoZone) Load(path string) error {
	gz.mu.Lock()
	defer gz.mu.Unlock()
	gz.filePath = path
	gz.zones = gz.zones[:0]
	gz.dirty = false
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			_ = gz.props.PutUint32At(property.PropGeofCount, 0, 0)
			geozoneLog.Info("geozone file does not exist", "path", path)
			return nil
		}
		return err
	}
	for off := 0; off+geoZoneRecordBytes <= len(data); off += geoZoneRecordBytes {
		gz.zones = append(gz.zones, decodeZoneRecord(data[off:off+geoZoneRecordBytes]))
	}
	_ = gz.props.PutUint32At(property.PropGeofCount, 0, uint32(len(gz.zones)))
	geozoneLog.Info("loaded geozone file", "path", path, "count", len(gz.zones))
	return nil
}
