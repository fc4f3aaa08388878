package wire

import (
	"fmt"
	"unicode/utf8"
)

// DecodeString decodes a VarInt length-prefixed UTF-8 string starting at
// buf[off]. It returns the string and the total number of bytes consumed,
// prefix included.
func DecodeString(buf []byte, off int) (string, int, error) {
	n, hdr, err := DecodeVarInt(buf, off)
	if err != nil {
		return "", 0, err
	}
	if n < 0 {
		return "", 0, fmt.Errorf("%w: negative string length %d", ErrInvalidEncoding, n)
	}
	start := off + hdr
	if int(n) > len(buf)-start {
		return "", 0, fmt.Errorf("%w: string length %d exceeds remaining %d bytes", ErrInvalidEncoding, n, len(buf)-start)
	}
	raw := buf[start : start+int(n)]
	if !utf8.Valid(raw) {
		return "", 0, fmt.Errorf("%w: string is not valid UTF-8", ErrInvalidEncoding)
	}
	return string(raw), hdr + int(n), nil
}

// AppendString appends s with its VarInt byte-length prefix.
func AppendString(dst []byte, s string) []byte {
	dst = AppendVarInt(dst, int32(len(s)))
	return append(dst, s...)
}

// Position is a block coordinate.
type Position struct {
	X, Y, Z int32
}

// PackPosition packs p into the 64-bit layout used since 1.14:
// x (26 bits) | z (26 bits) | y (12 bits).
func PackPosition(p Position) uint64 {
	return (uint64(p.X)&0x3FFFFFF)<<38 | (uint64(p.Z)&0x3FFFFFF)<<12 | uint64(p.Y)&0xFFF
}

// UnpackPosition is the inverse of PackPosition.
func UnpackPosition(v uint64) Position {
	s := int64(v)
	return Position{
		X: int32(s >> 38),
		Y: int32(s << 52 >> 52),
		Z: int32(s << 26 >> 38),
	}
}

// PackLegacyPosition packs p into the pre-1.14 layout:
// x (26 bits) | y (12 bits) | z (26 bits).
func PackLegacyPosition(p Position) uint64 {
	return (uint64(p.X)&0x3FFFFFF)<<38 | (uint64(p.Y)&0xFFF)<<26 | uint64(p.Z)&0x3FFFFFF
}

// UnpackLegacyPosition is the inverse of PackLegacyPosition.
func UnpackLegacyPosition(v uint64) Position {
	s := int64(v)
	return Position{
		X: int32(s >> 38),
		Y: int32(s << 26 >> 52),
		Z: int32(s << 38 >> 38),
	}
}

// Angle is a rotation in steps of 1/256 of a full turn.
type Angle uint8

// AngleFromDegrees converts degrees to the nearest Angle step.
func AngleFromDegrees(deg float32) Angle {
	return Angle(int32(deg*256/360) & 0xFF)
}

// Degrees returns the angle in degrees in the range [0, 360).
func (a Angle) Degrees() float32 {
	return float32(a) * 360 / 256
}
