package protocol

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"

	"github.com/reallyoldfogie/mcpr-studio/nbt"
	"github.com/reallyoldfogie/mcpr-studio/wire"
)

var (
	// ErrUnknownPacketType is returned when the registry has no schema for a
	// (version, id, direction) combination. Translation treats it as
	// "pass the packet through unmodified".
	ErrUnknownPacketType = errors.New("protocol: unknown packet type")
	// ErrUnknownVersion is returned for versions older than every registered
	// schema set.
	ErrUnknownVersion = errors.New("protocol: no schemas for version")
	// ErrTrailingBytes is returned when a packet body is longer than its schema.
	ErrTrailingBytes = errors.New("protocol: unexpected trailing bytes")
	// ErrValueOutOfRange is returned when a value cannot be represented by the
	// kind of the field it is encoded into.
	ErrValueOutOfRange = errors.New("protocol: value out of range")
	// ErrIncompatibleKind is returned when a value cannot be converted between
	// two field kinds.
	ErrIncompatibleKind = errors.New("protocol: incompatible field kinds")
)

// FieldKind is the wire type of a schema field.
type FieldKind uint8

const (
	KindBool FieldKind = iota + 1
	KindByte
	KindUByte
	KindShort
	KindUShort
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindVarInt
	KindVarLong
	KindString
	KindUUID
	KindPosition
	KindLegacyPosition
	KindAngle
	KindByteArray  // VarInt length-prefixed bytes
	KindRest       // every remaining byte; only valid as the last field
	KindNBT        // named root
	KindNetworkNBT // nameless root, 1.20.2+
	KindArray      // VarInt count followed by Elem values
)

var kindNames = map[FieldKind]string{
	KindBool:           "bool",
	KindByte:           "byte",
	KindUByte:          "ubyte",
	KindShort:          "short",
	KindUShort:         "ushort",
	KindInt:            "int",
	KindLong:           "long",
	KindFloat:          "float",
	KindDouble:         "double",
	KindVarInt:         "varint",
	KindVarLong:        "varlong",
	KindString:         "string",
	KindUUID:           "uuid",
	KindPosition:       "position",
	KindLegacyPosition: "legacy_position",
	KindAngle:          "angle",
	KindByteArray:      "bytes",
	KindRest:           "rest",
	KindNBT:            "nbt",
	KindNetworkNBT:     "network_nbt",
	KindArray:          "array",
}

func (k FieldKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseFieldKind maps a data-file type name to its kind.
func ParseFieldKind(s string) (FieldKind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("protocol: unknown field type %q", s)
}

// Integer reports whether values of k live in Value.Int.
func (k FieldKind) Integer() bool {
	switch k {
	case KindBool, KindByte, KindUByte, KindShort, KindUShort, KindInt, KindLong,
		KindVarInt, KindVarLong, KindAngle:
		return true
	}
	return false
}

// intRange returns the representable range of an integer kind.
func (k FieldKind) intRange() (int64, int64) {
	switch k {
	case KindBool:
		return 0, 1
	case KindByte:
		return math.MinInt8, math.MaxInt8
	case KindUByte, KindAngle:
		return 0, math.MaxUint8
	case KindShort:
		return math.MinInt16, math.MaxInt16
	case KindUShort:
		return 0, math.MaxUint16
	case KindInt, KindVarInt:
		return math.MinInt32, math.MaxInt32
	}
	return math.MinInt64, math.MaxInt64
}

// FieldSpec is one field of a packet schema.
type FieldSpec struct {
	Name string
	Kind FieldKind
	// Elem is the element kind of a KindArray field.
	Elem FieldKind
	// Default is the value used when a packet migrates into this schema from
	// a version that lacks the field. A nil Default means the field has no
	// safe value and such a migration fails.
	Default *Value
}

// PacketSchema is the wire layout of one packet type under one version.
// Schemas are shared read-only after the registry is built.
type PacketSchema struct {
	// Name identifies the packet across versions; the numeric ID does not.
	Name      string
	ID        int32
	Direction Direction
	Version   Version
	Fields    []FieldSpec
	// Discard lists fields of older versions that may be dropped silently
	// when a packet migrates into this schema.
	Discard []string
}

// Field returns the index of the field named name.
func (s *PacketSchema) Field(name string) (int, bool) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return i, true
		}
	}
	return -1, false
}

// Discards reports whether name is listed in Discard.
func (s *PacketSchema) Discards(name string) bool {
	return slices.Contains(s.Discard, name)
}

func (s *PacketSchema) String() string {
	return fmt.Sprintf("%s %s 0x%02x@%d", s.Direction, s.Name, s.ID, s.Version)
}

func (s *PacketSchema) validate() error {
	if s.Name == "" {
		return fmt.Errorf("protocol: packet 0x%02x has no name", s.ID)
	}
	seen := make(map[string]bool, len(s.Fields))
	for i, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("protocol: %s field %d has no name", s.Name, i)
		}
		if seen[f.Name] {
			return fmt.Errorf("protocol: %s has duplicate field %q", s.Name, f.Name)
		}
		seen[f.Name] = true
		if _, ok := kindNames[f.Kind]; !ok {
			return fmt.Errorf("protocol: %s.%s has invalid kind %d", s.Name, f.Name, f.Kind)
		}
		if f.Kind == KindRest && i != len(s.Fields)-1 {
			return fmt.Errorf("protocol: %s.%s: rest must be the last field", s.Name, f.Name)
		}
		if f.Kind == KindArray && !f.Elem.Integer() {
			return fmt.Errorf("protocol: %s.%s: arrays hold integer kinds, not %s", s.Name, f.Name, f.Elem)
		}
		if f.Default != nil {
			if _, err := Convert(*f.Default, f); err != nil {
				return fmt.Errorf("protocol: %s.%s default: %w", s.Name, f.Name, err)
			}
		}
	}
	return nil
}

// Value is a decoded field. Which member is meaningful depends on Kind:
// integer kinds (including bool and angle) use Int, float kinds use Float,
// positions use Pos, NBT kinds use NBT, arrays use Array.
type Value struct {
	Kind  FieldKind
	Int   int64
	Float float64
	Str   string
	Bytes []byte
	UUID  uuid.UUID
	Pos   wire.Position
	NBT   nbt.Root
	Array []int64
}

// IntValue returns an integer value of kind k.
func IntValue(k FieldKind, v int64) Value { return Value{Kind: k, Int: v} }

// StringValue returns a string value.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// Equal reports whether v and o hold the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch {
	case v.Kind.Integer():
		return v.Int == o.Int
	case v.Kind == KindFloat || v.Kind == KindDouble:
		return math.Float64bits(v.Float) == math.Float64bits(o.Float)
	}
	switch v.Kind {
	case KindString:
		return v.Str == o.Str
	case KindByteArray, KindRest:
		return slices.Equal(v.Bytes, o.Bytes)
	case KindUUID:
		return v.UUID == o.UUID
	case KindPosition, KindLegacyPosition:
		return v.Pos == o.Pos
	case KindNBT, KindNetworkNBT:
		return v.NBT.Name == o.NBT.Name && nbt.Equal(v.NBT.Tag, o.NBT.Tag)
	case KindArray:
		return slices.Equal(v.Array, o.Array)
	}
	return false
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	c := v
	c.Bytes = slices.Clone(v.Bytes)
	c.Array = slices.Clone(v.Array)
	if v.NBT.Tag != nil {
		c.NBT.Tag = nbt.Clone(v.NBT.Tag)
	}
	return c
}

// Packet is a decoded packet: a schema plus one value per schema field, in
// field order.
type Packet struct {
	Schema *PacketSchema
	Values []Value
}

// Get returns a pointer to the value of the field named name.
func (p *Packet) Get(name string) (*Value, bool) {
	i, ok := p.Schema.Field(name)
	if !ok {
		return nil, false
	}
	return &p.Values[i], true
}

// Convert re-expresses v as a value for field f, failing when the kinds are
// unrelated or the value is out of the target's range.
func Convert(v Value, f FieldSpec) (Value, error) {
	to := f.Kind
	if v.Kind == to {
		if to.Integer() {
			return v, checkRange(v.Int, to)
		}
		if to == KindArray {
			for _, x := range v.Array {
				if err := checkRange(x, f.Elem); err != nil {
					return Value{}, err
				}
			}
		}
		return v, nil
	}
	out := v
	out.Kind = to
	switch {
	case v.Kind.Integer() && to.Integer():
		return out, checkRange(v.Int, to)
	case v.Kind.Integer() && (to == KindFloat || to == KindDouble):
		out.Float = float64(v.Int)
		return out, nil
	case (v.Kind == KindFloat || v.Kind == KindDouble) && (to == KindFloat || to == KindDouble):
		if to == KindFloat && !math.IsInf(v.Float, 0) && math.Abs(v.Float) > math.MaxFloat32 {
			return Value{}, fmt.Errorf("%w: %g does not fit a float", ErrValueOutOfRange, v.Float)
		}
		return out, nil
	case isPosition(v.Kind) && isPosition(to):
		return out, nil
	case isNBT(v.Kind) && isNBT(to):
		if to == KindNetworkNBT {
			out.NBT.Name = ""
		}
		return out, nil
	case isBytes(v.Kind) && isBytes(to):
		return out, nil
	}
	return Value{}, fmt.Errorf("%w: %s to %s", ErrIncompatibleKind, v.Kind, to)
}

func checkRange(x int64, k FieldKind) error {
	lo, hi := k.intRange()
	if x < lo || x > hi {
		return fmt.Errorf("%w: %d does not fit %s", ErrValueOutOfRange, x, k)
	}
	return nil
}

func isPosition(k FieldKind) bool { return k == KindPosition || k == KindLegacyPosition }
func isNBT(k FieldKind) bool      { return k == KindNBT || k == KindNetworkNBT }
func isBytes(k FieldKind) bool    { return k == KindByteArray || k == KindRest }
