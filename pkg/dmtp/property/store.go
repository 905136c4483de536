// Package property implements the OpenDMTP property store: a typed,
// indexed key/value table with change notification and line-based
// persistence that every other component reads and writes through.
package property

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/uincore/opendmtp-sub000/internal/obslog"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"
)

var log = obslog.For("property")

// GPSValue is the packed GPS-with-odometer value kind (TypeGPS).
type GPSValue struct {
	FixTime int64
	Lat     float64
	Lon     float64
	Meters  float64
}

type entry struct {
	def     Def
	u32     []uint32
	bin     []byte
	str     string
	gps     GPSValue
	length  int
	runtime Attr // attrChanged / attrNonDefault
	cmd     CommandFunc
}

// NotifyMode tells a notify hook which kind of operation triggered it.
type NotifyMode int

const (
	NotifyGet NotifyMode = 1 << iota
	NotifySet
)

// NotifyFunc is invoked before every get (NotifyGet) and after every
// successful set (NotifySet) on the keys it is registered for.
type NotifyFunc func(key Key, mode NotifyMode)

// Store is the process-wide property table. The zero value is not usable;
// construct with New.
type Store struct {
	mu        sync.Mutex
	entries   map[Key]*entry
	ordered   []Key // every key, ascending when sorted is true
	sorted    bool
	notify    map[Key]NotifyFunc
	allNotify NotifyFunc
}

// New constructs a Store from defs, verifying key monotonicity. If the
// supplied defs are not in ascending key order the store logs a warning
// and still works. Lookups always go through a map keyed by Key; no
// binary search or linear scan is performed, so key order does not
// change how a key is found.
func New(defs []Def) *Store {
	s := &Store{
		entries: make(map[Key]*entry, len(defs)),
		ordered: make([]Key, 0, len(defs)),
		notify:  make(map[Key]NotifyFunc),
	}
	last := Key(0)
	sorted := true
	for i, d := range defs {
		if i > 0 && d.Key < last {
			sorted = false
		}
		last = d.Key
		e := &entry{def: d, length: 0}
		switch d.Type {
		case TypeUInt8, TypeUInt16, TypeUInt24, TypeUInt32, TypeBool:
			n := d.MaxIndex
			if n < 1 {
				n = 1
			}
			e.u32 = make([]uint32, n)
		case TypeBinary:
			n := d.MaxIndex
			if n < 1 {
				n = 32
			}
			e.bin = make([]byte, 0, n)
		}
		if d.Default != "" {
			_ = applyDefault(e, d.Default)
			e.runtime &^= attrNonDefault
		}
		s.entries[d.Key] = e
		s.ordered = append(s.ordered, d.Key)
	}
	s.sorted = sorted
	if sorted {
		sort.Slice(s.ordered, func(i, j int) bool { return s.ordered[i] < s.ordered[j] })
	} else {
		log.Warn("property keys not in ascending order at init")
	}
	return s
}

func applyDefault(e *entry, text string) error {
	switch e.def.Type {
	case TypeUInt8, TypeUInt16, TypeUInt24, TypeUInt32, TypeBool:
		parts := strings.Split(text, ",")
		for i, p := range parts {
			if i >= len(e.u32) {
				break
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return err
			}
			e.u32[i] = uint32(round(v * shiftScale(e.def.DecimalShift)))
		}
		e.length = len(parts)
	case TypeString:
		e.str = text
		e.length = len(text)
	case TypeBinary:
		e.bin = parseHexBytes(text)
		e.length = len(e.bin)
	case TypeGPS:
		e.gps = parseGPSText(text)
		e.length = 1
	}
	return nil
}

func shiftScale(shift int) float64 { return math.Pow(10, float64(shift)) }

func round(v float64) float64 {
	if v >= 0 {
		return math.Floor(v + 0.5)
	}
	return math.Ceil(v - 0.5)
}

func (s *Store) lookup(key Key) (*entry, error) {
	e, ok := s.entries[key]
	if !ok {
		return nil, newErr(key, ErrInvalidKey)
	}
	return e, nil
}

func (s *Store) fireNotify(key Key, mode NotifyMode) {
	if fn, ok := s.notify[key]; ok {
		fn(key, mode)
	}
	if s.allNotify != nil {
		s.allNotify(key, mode)
	}
}

// SetNotify registers fn to fire on every get and every set of the given
// key; fn receives NotifyGet or NotifySet to tell the two apart. There is
// no filtering by mode. Passing key as a zero Key(0) registers a
// store-wide hook that fires in addition to any per-key hook.
func (s *Store) SetNotify(key Key, fn NotifyFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == 0 {
		s.allNotify = fn
		return
	}
	s.notify[key] = fn
}

// SetCommand registers fn as the command callback for key. key's Def must
// be TypeCommand; this is not validated here since Defs are fixed at New.
func (s *Store) SetCommand(key Key, fn CommandFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		e.cmd = fn
	}
}

// GetUint32At returns the value at index of a numeric property, or def if
// the index is out of the set range.
func (s *Store) GetUint32At(key Key, index int, def uint32) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(key)
	if err != nil {
		return def, err
	}
	if e.def.writeOnly() {
		return def, newErr(key, ErrWriteOnly)
	}
	s.fireNotify(key, NotifyGet)
	if index < 0 || index >= len(e.u32) || index >= e.length {
		return def, nil
	}
	return e.u32[index], nil
}

// SetUint32At stores value at index, extending the set length if index
// advances it, marking the property changed and non-default.
func (s *Store) SetUint32At(key Key, index int, value uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(key)
	if err != nil {
		return err
	}
	if e.def.readOnly() {
		return newErr(key, ErrReadOnly)
	}
	if index < 0 || index >= len(e.u32) {
		return newErr(key, ErrInvalidLength)
	}
	e.u32[index] = value
	if index+1 > e.length {
		e.length = index + 1
	}
	e.runtime |= attrChanged | attrNonDefault
	s.fireNotify(key, NotifySet)
	return nil
}

// PutUint32At stores value at index bypassing the read-only attribute.
// Read-only guards the server's property-set path; internally
// maintained diagnostics still need a writer.
func (s *Store) PutUint32At(key Key, index int, value uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(key)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(e.u32) {
		return newErr(key, ErrInvalidLength)
	}
	e.u32[index] = value
	if index+1 > e.length {
		e.length = index + 1
	}
	return nil
}

// GetDoubleAt reverses the decimal shift applied by SetDoubleAt.
func (s *Store) GetDoubleAt(key Key, index int, def float64) (float64, error) {
	s.mu.Lock()
	e, err := s.lookup(key)
	if err != nil {
		s.mu.Unlock()
		return def, err
	}
	shift := e.def.DecimalShift
	s.mu.Unlock()
	raw, err := s.GetUint32At(key, index, 0)
	if err != nil {
		return def, err
	}
	return float64(raw) / shiftScale(shift), nil
}

// SetDoubleAt stores round(value * 10^shift) so GetDoubleAt round-trips.
func (s *Store) SetDoubleAt(key Key, index int, value float64) error {
	s.mu.Lock()
	e, err := s.lookup(key)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	shift := e.def.DecimalShift
	s.mu.Unlock()
	return s.SetUint32At(key, index, uint32(round(value*shiftScale(shift))))
}

// GetString returns the stored string, or def if unset.
func (s *Store) GetString(key Key, def string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(key)
	if err != nil {
		return def, err
	}
	if e.def.writeOnly() {
		return def, newErr(key, ErrWriteOnly)
	}
	s.fireNotify(key, NotifyGet)
	if e.length == 0 {
		return def, nil
	}
	return e.str, nil
}

// SetString stores v, truncated to the property's declared arity if it
// represents a maximum byte length.
func (s *Store) SetString(key Key, v string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(key)
	if err != nil {
		return err
	}
	if e.def.readOnly() {
		return newErr(key, ErrReadOnly)
	}
	if e.def.MaxIndex > 0 && len(v) > e.def.MaxIndex {
		v = v[:e.def.MaxIndex]
	}
	e.str = v
	e.length = len(v)
	e.runtime |= attrChanged | attrNonDefault
	s.fireNotify(key, NotifySet)
	return nil
}

// GetBinary returns a copy of the stored blob.
func (s *Store) GetBinary(key Key) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(key)
	if err != nil {
		return nil, err
	}
	if e.def.writeOnly() {
		return nil, newErr(key, ErrWriteOnly)
	}
	s.fireNotify(key, NotifyGet)
	out := make([]byte, len(e.bin))
	copy(out, e.bin)
	return out, nil
}

// SetBinary stores a copy of buf, rejecting it if it exceeds the
// property's declared capacity.
func (s *Store) SetBinary(key Key, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(key)
	if err != nil {
		return err
	}
	if e.def.readOnly() {
		return newErr(key, ErrReadOnly)
	}
	cap := e.def.MaxIndex
	if cap > 0 && len(buf) > cap {
		return newErr(key, ErrInvalidLength)
	}
	e.bin = append(e.bin[:0], buf...)
	e.length = len(buf)
	e.runtime |= attrChanged | attrNonDefault
	s.fireNotify(key, NotifySet)
	return nil
}

// GetGPS returns the stored GPS-with-odometer value, or def if unset.
func (s *Store) GetGPS(key Key, def GPSValue) (GPSValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(key)
	if err != nil {
		return def, err
	}
	if e.def.writeOnly() {
		return def, newErr(key, ErrWriteOnly)
	}
	s.fireNotify(key, NotifyGet)
	if e.length == 0 {
		return def, nil
	}
	return e.gps, nil
}

// SetGPS stores v as the property's GPS-with-odometer value.
func (s *Store) SetGPS(key Key, v GPSValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(key)
	if err != nil {
		return err
	}
	if e.def.readOnly() {
		return newErr(key, ErrReadOnly)
	}
	e.gps = v
	e.length = 1
	e.runtime |= attrChanged | attrNonDefault
	s.fireNotify(key, NotifySet)
	return nil
}

// SetFromString parses text per the property's type the same way the
// property file loader does and applies it, or dispatches to the command
// callback for TypeCommand properties.
func (s *Store) SetFromString(key Key, text string) error {
	s.mu.Lock()
	e, err := s.lookup(key)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if e.def.Type == TypeCommand {
		cmd := e.cmd
		s.mu.Unlock()
		if cmd == nil {
			return newErr(key, ErrCommandInvalid)
		}
		sub := cmd([]byte(text))
		if sub != wire.CommandErrorOK && sub != wire.CommandErrorOKAck {
			return newCommandErr(key, sub)
		}
		return nil
	}
	if e.def.readOnly() {
		s.mu.Unlock()
		return newErr(key, ErrReadOnly)
	}
	if err := applyDefault(e, text); err != nil {
		s.mu.Unlock()
		return newErr(key, ErrInvalidType)
	}
	e.runtime |= attrChanged | attrNonDefault
	s.mu.Unlock()
	s.fireNotify(key, NotifySet)
	return nil
}

// PrintToString renders the current value the same way Save would,
// without the attribute flags.
func (s *Store) PrintToString(key Key) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(key)
	if err != nil {
		return "", err
	}
	return renderValue(e), nil
}

func renderValue(e *entry) string {
	switch e.def.Type {
	case TypeUInt8, TypeUInt16, TypeUInt24, TypeUInt32, TypeBool:
		parts := make([]string, 0, e.length)
		for i := 0; i < e.length && i < len(e.u32); i++ {
			v := e.u32[i]
			if e.def.DecimalShift > 0 {
				parts = append(parts, strconv.FormatFloat(float64(v)/shiftScale(e.def.DecimalShift), 'f', e.def.DecimalShift, 64))
			} else {
				parts = append(parts, strconv.FormatUint(uint64(v), 10))
			}
		}
		return strings.Join(parts, ",")
	case TypeString:
		return e.str
	case TypeBinary:
		return "0x" + fmt.Sprintf("%X", e.bin)
	case TypeGPS:
		return fmt.Sprintf("%d,%f,%f,%f", e.gps.FixTime, e.gps.Lat, e.gps.Lon, e.gps.Meters)
	default:
		return ""
	}
}

func parseHexBytes(text string) []byte {
	text = strings.TrimPrefix(strings.TrimSpace(text), "0x")
	if len(text)%2 != 0 {
		text = "0" + text
	}
	out := make([]byte, 0, len(text)/2)
	for i := 0; i+2 <= len(text); i += 2 {
		var b byte
		fmt.Sscanf(text[i:i+2], "%02X", &b)
		out = append(out, b)
	}
	return out
}

func parseGPSText(text string) GPSValue {
	fields := strings.Split(text, ",")
	var g GPSValue
	if len(fields) > 0 {
		g.FixTime, _ = strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	}
	if len(fields) > 1 {
		g.Lat, _ = strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	}
	if len(fields) > 2 {
		g.Lon, _ = strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	}
	if len(fields) > 3 {
		g.Meters, _ = strconv.ParseFloat(strings.TrimSpace(fields[3]), 64)
	}
	return g
}

// Save writes every property carrying the save attribute to path. When
// all is false, only properties that are both changed and non-default
// are written; when true, every save-flagged property is written
// regardless of change state.
func (s *Store) Save(path string, all bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("property: save: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	keys := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		e := s.entries[k]
		if !e.def.save() {
			continue
		}
		if !all && (e.runtime&attrChanged == 0 || e.runtime&attrNonDefault == 0) {
			continue
		}
		name := e.def.Name
		if name == "" {
			name = fmt.Sprintf("0x%04X", uint16(k))
		}
		fmt.Fprintf(w, "%s=%s\n", name, renderValue(e))
	}
	return w.Flush()
}

// Load reads key=value lines from path, applying each to the matching
// property by symbolic name or "0xNNNN" numeric key. Lines without a
// terminating newline, blank lines, and '#'-prefixed lines are ignored.
// Every property touched has its changed flag cleared and non-default
// flag forced set, since a loaded value is by definition not the default.
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("property: load: %w", err)
	}
	text := string(data)
	if len(text) == 0 {
		return nil
	}
	if text[len(text)-1] != '\n' {
		// Drop the unterminated trailing line.
		if idx := strings.LastIndexByte(text, '\n'); idx >= 0 {
			text = text[:idx+1]
		} else {
			text = ""
		}
	}
	names := s.nameIndex()
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		keyText := strings.TrimSpace(line[:eq])
		value := line[eq+1:]
		key, ok := resolveKey(keyText, names)
		if !ok {
			continue
		}
		if err := s.SetFromString(key, value); err != nil {
			log.Warn("property load: skipping entry", "key", keyText, "err", err)
			continue
		}
		s.mu.Lock()
		if e, ok := s.entries[key]; ok {
			e.runtime &^= attrChanged
			e.runtime |= attrNonDefault
		}
		s.mu.Unlock()
	}
	return nil
}

func (s *Store) nameIndex() map[string]Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := make(map[string]Key, len(s.entries))
	for k, e := range s.entries {
		if e.def.Name != "" {
			m[e.def.Name] = k
		}
	}
	return m
}

func resolveKey(text string, names map[string]Key) (Key, bool) {
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		v, err := strconv.ParseUint(text[2:], 16, 16)
		if err != nil {
			return 0, false
		}
		return Key(v), true
	}
	k, ok := names[text]
	return k, ok
}

// IsChanged reports whether key's changed flag is set.
func (s *Store) IsChanged(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return ok && e.runtime&attrChanged != 0
}

// ClearChanged clears key's changed flag without affecting its value.
func (s *Store) ClearChanged(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		e.runtime &^= attrChanged
	}
}

// IsNonDefault reports whether key currently holds a non-default value.
func (s *Store) IsNonDefault(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return ok && e.runtime&attrNonDefault != 0
}
