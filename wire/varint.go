package wire

import "fmt"

const (
	// MaxVarIntLen is the maximum encoded size of a 32-bit VarInt.
	MaxVarIntLen = 5
	// MaxVarLongLen is the maximum encoded size of a 64-bit VarLong.
	MaxVarLongLen = 10
)

// EncodeVarInt encodes a 32-bit integer as a Minecraft-style VarInt.
// It returns a slice backed by a new allocation of up to 5 bytes.
func EncodeVarInt(v int32) []byte {
	return AppendVarInt(make([]byte, 0, MaxVarIntLen), v)
}

// AppendVarInt appends the VarInt encoding of v to dst.
func AppendVarInt(dst []byte, v int32) []byte {
	uv := uint32(v)
	for {
		b := byte(uv & 0x7F)
		uv >>= 7
		if uv != 0 {
			b |= 0x80
		}
		dst = append(dst, b)
		if uv == 0 {
			return dst
		}
	}
}

// VarIntSize returns the number of bytes AppendVarInt writes for v.
func VarIntSize(v int32) int {
	uv := uint32(v)
	n := 1
	for uv >= 0x80 {
		uv >>= 7
		n++
	}
	return n
}

// DecodeVarInt decodes a VarInt starting at buf[off]. It returns the value
// and the number of bytes consumed.
func DecodeVarInt(buf []byte, off int) (int32, int, error) {
	if off < 0 || off > len(buf) {
		return 0, 0, fmt.Errorf("%w: offset %d outside buffer of %d bytes", ErrTruncatedInput, off, len(buf))
	}
	var uv uint32
	for i := 0; i < MaxVarIntLen; i++ {
		if off+i >= len(buf) {
			return 0, 0, fmt.Errorf("%w: varint cut after %d bytes", ErrTruncatedInput, i)
		}
		b := buf[off+i]
		uv |= uint32(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			return int32(uv), i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: varint longer than %d bytes", ErrTruncatedInput, MaxVarIntLen)
}

// AppendVarLong appends the VarLong encoding of v to dst.
func AppendVarLong(dst []byte, v int64) []byte {
	uv := uint64(v)
	for {
		b := byte(uv & 0x7F)
		uv >>= 7
		if uv != 0 {
			b |= 0x80
		}
		dst = append(dst, b)
		if uv == 0 {
			return dst
		}
	}
}

// DecodeVarLong decodes a VarLong starting at buf[off].
func DecodeVarLong(buf []byte, off int) (int64, int, error) {
	if off < 0 || off > len(buf) {
		return 0, 0, fmt.Errorf("%w: offset %d outside buffer of %d bytes", ErrTruncatedInput, off, len(buf))
	}
	var uv uint64
	for i := 0; i < MaxVarLongLen; i++ {
		if off+i >= len(buf) {
			return 0, 0, fmt.Errorf("%w: varlong cut after %d bytes", ErrTruncatedInput, i)
		}
		b := buf[off+i]
		uv |= uint64(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			return int64(uv), i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: varlong longer than %d bytes", ErrTruncatedInput, MaxVarLongLen)
}
