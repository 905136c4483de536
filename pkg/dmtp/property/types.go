package property

import "github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"

// Key identifies a property in the store. Keys are assigned in blocks
// per category (state 0x00xx, config 0x003x, comm 0x10xx, GPS 0x30xx,
// motion 0x40xx, geozone 0x41xx, odometer 0x42xx). New logs a warning
// when a definition table is not in ascending key order; lookups go
// through a map either way.
type Key uint16

// Attr is the attribute bitmask carried by every property definition,
// matching the KVA_* bit layout: bit 15 save-on-persist, bit 14 hidden,
// bit 13 read-only, bit 12 write-only (command), bit 11 refresh-on-read.
type Attr uint16

const (
	AttrSave      Attr = 0x8000
	AttrHidden    Attr = 0x4000
	AttrReadOnly  Attr = 0x2000
	AttrWriteOnly Attr = 0x1000
	AttrRefresh   Attr = 0x0800

	// Runtime-only bits, not part of the definition, tracked per-value.
	attrChanged    Attr = 0x0001
	attrNonDefault Attr = 0x0002
)

// Type is the value kind a property holds, matching the KVT_* type codes.
type Type uint8

const (
	TypeUInt8 Type = iota
	TypeUInt16
	TypeUInt24
	TypeUInt32
	TypeBool // alias of UInt8
	TypeBinary
	TypeString
	TypeGPS
	TypeCommand
)

// Def is the static definition of a property: its type, arity, attribute
// bits, decimal shift for fixed-point round-tripping, and default value
// encoded as a string (parsed the same way SetFromString parses runtime
// input).
type Def struct {
	Key          Key
	Name         string
	Type         Type
	MaxIndex     int // vector arity; 1 for scalars
	Attr         Attr
	DecimalShift int // 0..15, applies to UInt* types only
	Default      string
}

func (d Def) readOnly() bool  { return d.Attr&AttrReadOnly != 0 }
func (d Def) writeOnly() bool { return d.Attr&AttrWriteOnly != 0 }
func (d Def) save() bool      { return d.Attr&AttrSave != 0 }

// CommandFunc is invoked when the server "sets" a command property. The
// raw argument bytes are whatever the set carried; the return value is
// folded into a PropertyError via CommandError.
type CommandFunc func(args []byte) wire.CommandError
