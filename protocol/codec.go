package protocol

import (
	"fmt"

	"github.com/reallyoldfogie/mcpr-studio/nbt"
	"github.com/reallyoldfogie/mcpr-studio/wire"
)

// PacketID returns the leading VarInt packet id of raw and the offset of the
// packet body.
func PacketID(raw []byte) (int32, int, error) {
	return wire.DecodeVarInt(raw, 0)
}

// Decode decodes a full packet (VarInt id followed by the body) under s.
// The id must match s.ID. The result does not alias raw.
func Decode(s *PacketSchema, raw []byte) (*Packet, error) {
	id, n, err := PacketID(raw)
	if err != nil {
		return nil, fmt.Errorf("packet id: %w", err)
	}
	if id != s.ID {
		return nil, fmt.Errorf("%w: id 0x%02x is not %s", ErrUnknownPacketType, id, s)
	}
	return DecodeBody(s, raw[n:])
}

// DecodeBody decodes the fields of s from body, which must be consumed
// exactly.
func DecodeBody(s *PacketSchema, body []byte) (*Packet, error) {
	r := wire.NewReader(body)
	p := &Packet{Schema: s, Values: make([]Value, len(s.Fields))}
	for i, f := range s.Fields {
		v, err := decodeField(r, f)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", s.Name, f.Name, err)
		}
		p.Values[i] = v
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d bytes after %s", ErrTrailingBytes, r.Remaining(), s.Name)
	}
	return p, nil
}

func decodeField(r *wire.Reader, f FieldSpec) (Value, error) {
	v := Value{Kind: f.Kind}
	var err error
	switch f.Kind {
	case KindArray:
		var n int32
		if n, err = r.VarInt(); err != nil {
			return v, err
		}
		if n < 0 || int(n) > r.Remaining() {
			return v, fmt.Errorf("%w: array of %d elements, %d bytes left", wire.ErrTruncatedInput, n, r.Remaining())
		}
		v.Array = make([]int64, n)
		for i := range v.Array {
			if v.Array[i], err = decodeInt(r, f.Elem); err != nil {
				return v, err
			}
		}
	case KindFloat:
		var x float32
		x, err = r.Float()
		v.Float = float64(x)
	case KindDouble:
		v.Float, err = r.Double()
	case KindString:
		v.Str, err = r.String()
	case KindUUID:
		v.UUID, err = r.UUID()
	case KindPosition:
		v.Pos, err = r.Position()
	case KindLegacyPosition:
		v.Pos, err = r.LegacyPosition()
	case KindByteArray:
		var b []byte
		b, err = r.ByteArray()
		v.Bytes = append([]byte(nil), b...)
	case KindRest:
		v.Bytes = append([]byte(nil), r.Rest()...)
	case KindNBT:
		v.NBT, err = nbt.DecodeFrom(r, nbt.Options{})
	case KindNetworkNBT:
		v.NBT, err = nbt.DecodeFrom(r, nbt.Options{Nameless: true})
	default:
		v.Int, err = decodeInt(r, f.Kind)
	}
	return v, err
}

func decodeInt(r *wire.Reader, k FieldKind) (int64, error) {
	switch k {
	case KindBool:
		b, err := r.Bool()
		if b {
			return 1, err
		}
		return 0, err
	case KindByte:
		x, err := r.Byte()
		return int64(x), err
	case KindUByte:
		x, err := r.UByte()
		return int64(x), err
	case KindAngle:
		x, err := r.Angle()
		return int64(x), err
	case KindShort:
		x, err := r.Short()
		return int64(x), err
	case KindUShort:
		x, err := r.UShort()
		return int64(x), err
	case KindInt:
		x, err := r.Int()
		return int64(x), err
	case KindLong:
		return r.Long()
	case KindVarInt:
		x, err := r.VarInt()
		return int64(x), err
	case KindVarLong:
		return r.VarLong()
	}
	return 0, fmt.Errorf("%w: %s is not an integer kind", ErrIncompatibleKind, k)
}

// Encode encodes p, VarInt id first, under its schema.
func Encode(p *Packet) ([]byte, error) {
	s := p.Schema
	if len(p.Values) != len(s.Fields) {
		return nil, fmt.Errorf("protocol: %s has %d values for %d fields", s.Name, len(p.Values), len(s.Fields))
	}
	w := wire.NewWriter(nil)
	w.VarInt(s.ID)
	for i, f := range s.Fields {
		if err := encodeField(w, f, p.Values[i]); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", s.Name, f.Name, err)
		}
	}
	return w.Bytes(), nil
}

func encodeField(w *wire.Writer, f FieldSpec, v Value) error {
	v, err := Convert(v, f)
	if err != nil {
		return err
	}
	switch f.Kind {
	case KindArray:
		w.VarInt(int32(len(v.Array)))
		for _, x := range v.Array {
			encodeInt(w, f.Elem, x)
		}
	case KindFloat:
		w.Float(float32(v.Float))
	case KindDouble:
		w.Double(v.Float)
	case KindString:
		w.String(v.Str)
	case KindUUID:
		w.UUID(v.UUID)
	case KindPosition:
		w.Position(v.Pos)
	case KindLegacyPosition:
		w.LegacyPosition(v.Pos)
	case KindByteArray:
		w.ByteArray(v.Bytes)
	case KindRest:
		w.Raw(v.Bytes)
	case KindNBT, KindNetworkNBT:
		root := v.NBT
		if root.Tag == nil {
			root.Tag = nbt.End{}
		}
		return nbt.EncodeTo(w, root, nbt.Options{Nameless: f.Kind == KindNetworkNBT})
	default:
		encodeInt(w, f.Kind, v.Int)
	}
	return nil
}

// encodeInt writes x as kind k; x has already been range checked.
func encodeInt(w *wire.Writer, k FieldKind, x int64) {
	switch k {
	case KindBool:
		w.Bool(x != 0)
	case KindByte:
		w.Byte(int8(x))
	case KindUByte, KindAngle:
		w.UByte(uint8(x))
	case KindShort:
		w.Short(int16(x))
	case KindUShort:
		w.UShort(uint16(x))
	case KindInt:
		w.Int(int32(x))
	case KindLong:
		w.Long(x)
	case KindVarInt:
		w.VarInt(int32(x))
	case KindVarLong:
		w.VarLong(x)
	}
}
