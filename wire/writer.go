package wire

import (
	"encoding/binary"
	"math"

	"github.com/google/uuid"
)

// Writer accumulates an encoded packet body. The zero value is ready to use.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer appending to dst.
func NewWriter(dst []byte) *Writer {
	return &Writer{buf: dst}
}

// Bytes returns the encoded bytes. The slice aliases the writer's buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of encoded bytes.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) Raw(b []byte)      { w.buf = append(w.buf, b...) }
func (w *Writer) Byte(v int8)       { w.buf = append(w.buf, byte(v)) }
func (w *Writer) UByte(v uint8)     { w.buf = append(w.buf, v) }
func (w *Writer) Short(v int16)     { w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(v)) }
func (w *Writer) UShort(v uint16)   { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *Writer) Int(v int32)       { w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v)) }
func (w *Writer) Long(v int64)      { w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v)) }
func (w *Writer) Float(v float32)   { w.Int(int32(math.Float32bits(v))) }
func (w *Writer) Double(v float64)  { w.Long(int64(math.Float64bits(v))) }
func (w *Writer) VarInt(v int32)    { w.buf = AppendVarInt(w.buf, v) }
func (w *Writer) VarLong(v int64)   { w.buf = AppendVarLong(w.buf, v) }
func (w *Writer) String(s string)   { w.buf = AppendString(w.buf, s) }
func (w *Writer) UUID(id uuid.UUID) { w.buf = append(w.buf, id[:]...) }
func (w *Writer) Angle(a Angle)     { w.buf = append(w.buf, byte(a)) }

// Bool writes a single-byte boolean.
func (w *Writer) Bool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

// ByteArray writes b with a VarInt length prefix.
func (w *Writer) ByteArray(b []byte) {
	w.VarInt(int32(len(b)))
	w.buf = append(w.buf, b...)
}

// Position writes p in the 1.14+ packed layout.
func (w *Writer) Position(p Position) { w.Long(int64(PackPosition(p))) }

// LegacyPosition writes p in the pre-1.14 packed layout.
func (w *Writer) LegacyPosition(p Position) { w.Long(int64(PackLegacyPosition(p))) }
