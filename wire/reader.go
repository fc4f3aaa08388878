package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Reader is a forward-only cursor over a byte slice. It never modifies the
// slice; byte-array results alias it and must be copied if retained past the
// lifetime of the buffer.
type Reader struct {
	buf []byte
	off int
}

// NewReader returns a Reader positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int { return r.off }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// Rest consumes and returns all unread bytes.
func (r *Reader) Rest() []byte {
	b := r.buf[r.off:]
	r.off = len(r.buf)
	return b
}

// Bytes consumes exactly n bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrInvalidEncoding, n)
	}
	if n > r.Remaining() {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncatedInput, n, r.Remaining())
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// Byte reads a signed byte.
func (r *Reader) Byte() (int8, error) {
	b, err := r.UByte()
	return int8(b), err
}

// UByte reads an unsigned byte.
func (r *Reader) UByte() (uint8, error) {
	if r.Remaining() < 1 {
		return 0, fmt.Errorf("%w: need 1 byte, have 0", ErrTruncatedInput)
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

// Bool reads a single-byte boolean. Any value other than 0 or 1 is invalid.
func (r *Reader) Bool() (bool, error) {
	b, err := r.UByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("%w: boolean byte 0x%02x", ErrInvalidEncoding, b)
}

// Short reads a big-endian int16.
func (r *Reader) Short() (int16, error) {
	v, err := r.UShort()
	return int16(v), err
}

// UShort reads a big-endian uint16.
func (r *Reader) UShort() (uint16, error) {
	b, err := r.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// Int reads a big-endian int32.
func (r *Reader) Int() (int32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

// Long reads a big-endian int64.
func (r *Reader) Long() (int64, error) {
	b, err := r.Bytes(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// Float reads a big-endian IEEE 754 float32.
func (r *Reader) Float() (float32, error) {
	v, err := r.Int()
	return math.Float32frombits(uint32(v)), err
}

// Double reads a big-endian IEEE 754 float64.
func (r *Reader) Double() (float64, error) {
	v, err := r.Long()
	return math.Float64frombits(uint64(v)), err
}

// VarInt reads a VarInt.
func (r *Reader) VarInt() (int32, error) {
	v, n, err := DecodeVarInt(r.buf, r.off)
	if err != nil {
		return 0, err
	}
	r.off += n
	return v, nil
}

// VarLong reads a VarLong.
func (r *Reader) VarLong() (int64, error) {
	v, n, err := DecodeVarLong(r.buf, r.off)
	if err != nil {
		return 0, err
	}
	r.off += n
	return v, nil
}

// String reads a length-prefixed UTF-8 string.
func (r *Reader) String() (string, error) {
	s, n, err := DecodeString(r.buf, r.off)
	if err != nil {
		return "", err
	}
	r.off += n
	return s, nil
}

// ByteArray reads a VarInt length-prefixed byte array.
func (r *Reader) ByteArray() ([]byte, error) {
	n, err := r.VarInt()
	if err != nil {
		return nil, err
	}
	return r.Bytes(int(n))
}

// UUID reads a 128-bit UUID as two big-endian longs.
func (r *Reader) UUID() (uuid.UUID, error) {
	var id uuid.UUID
	b, err := r.Bytes(16)
	if err != nil {
		return id, err
	}
	copy(id[:], b)
	return id, nil
}

// Position reads a packed block position in the 1.14+ layout.
func (r *Reader) Position() (Position, error) {
	v, err := r.Long()
	return UnpackPosition(uint64(v)), err
}

// LegacyPosition reads a packed block position in the pre-1.14 layout.
func (r *Reader) LegacyPosition() (Position, error) {
	v, err := r.Long()
	return UnpackLegacyPosition(uint64(v)), err
}

// Angle reads a one-byte angle.
func (r *Reader) Angle() (Angle, error) {
	b, err := r.UByte()
	return Angle(b), err
}
