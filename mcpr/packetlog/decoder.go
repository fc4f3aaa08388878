package packetlog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/reallyoldfogie/mcpr-studio/protocol"
	"github.com/reallyoldfogie/mcpr-studio/wire"
)

// DecoderOptions configures a Decoder. The zero value reads ReplayMod
// framing, stamps records clientbound and clamps timestamp regressions.
type DecoderOptions struct {
	Framing   Framing
	Direction protocol.Direction
	// Strict makes a timestamp regression fail with ErrTimestampRegression
	// instead of being clamped to the previous timestamp.
	Strict       bool
	MaxFrameSize int
}

// Decoder yields the records of a packet log one at a time. Only the current
// record is held in memory.
type Decoder struct {
	r       *bufio.Reader
	opts    DecoderOptions
	index   int
	offset  int64
	last    int64
	clamped int
	err     error
}

func NewDecoder(r io.Reader, opts DecoderOptions) *Decoder {
	if opts.MaxFrameSize <= 0 {
		opts.MaxFrameSize = DefaultMaxFrameSize
	}
	return &Decoder{r: bufio.NewReader(r), opts: opts}
}

// Index is the number of records returned so far.
func (d *Decoder) Index() int { return d.index }

// Offset is the number of bytes consumed so far.
func (d *Decoder) Offset() int64 { return d.offset }

// Clamped is the number of records whose timestamp was raised to keep the
// stream non-decreasing.
func (d *Decoder) Clamped() int { return d.clamped }

// Next returns the next record, or io.EOF once the log ends on a frame
// boundary. Any other error is a *FrameError and is sticky.
func (d *Decoder) Next() (Record, error) {
	if d.err != nil {
		return Record{}, d.err
	}
	start := d.offset
	rec, err := d.next()
	if err != nil {
		if err != io.EOF {
			err = &FrameError{Index: d.index, Offset: start, Err: err}
		}
		d.err = err
		return Record{}, err
	}
	if rec.Time < d.last {
		if d.opts.Strict {
			d.err = &FrameError{Index: d.index, Offset: start,
				Err: fmt.Errorf("%w: %d ms after %d ms", ErrTimestampRegression, rec.Time, d.last)}
			return Record{}, d.err
		}
		rec.Time = d.last
		d.clamped++
	}
	d.last = rec.Time
	d.index++
	return rec, nil
}

func (d *Decoder) next() (Record, error) {
	var (
		ts   uint32
		size int
	)
	switch d.opts.Framing {
	case FramingReplayMod:
		var hdr [8]byte
		if err := d.readFull(hdr[:], true); err != nil {
			return Record{}, err
		}
		ts = binary.BigEndian.Uint32(hdr[0:4])
		n := int32(binary.BigEndian.Uint32(hdr[4:8]))
		if n < 0 {
			return Record{}, fmt.Errorf("%w: negative length %d", ErrCorruptFrame, n)
		}
		size = int(n)
	case FramingVarInt:
		n, err := d.readVarInt()
		if err != nil {
			return Record{}, err
		}
		if n < 4 {
			return Record{}, fmt.Errorf("%w: frame length %d is shorter than its timestamp", ErrCorruptFrame, n)
		}
		var hdr [4]byte
		if err := d.readFull(hdr[:], false); err != nil {
			return Record{}, err
		}
		ts = binary.BigEndian.Uint32(hdr[:])
		size = int(n) - 4
	default:
		return Record{}, fmt.Errorf("packetlog: unknown framing %s", d.opts.Framing)
	}
	if size > d.opts.MaxFrameSize {
		return Record{}, fmt.Errorf("%w: %d byte frame exceeds limit of %d", ErrCorruptFrame, size, d.opts.MaxFrameSize)
	}
	data := make([]byte, size)
	if err := d.readFull(data, false); err != nil {
		return Record{}, err
	}
	return Record{Time: int64(ts), Direction: d.opts.Direction, Data: data}, nil
}

// readFull fills buf. A clean EOF before the first byte is io.EOF only when
// atBoundary is set; every other short read is a corrupt frame.
func (d *Decoder) readFull(buf []byte, atBoundary bool) error {
	n, err := io.ReadFull(d.r, buf)
	d.offset += int64(n)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && n == 0 && atBoundary:
		return io.EOF
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: need %d bytes, %d remain", ErrCorruptFrame, len(buf), n)
	}
	return err
}

func (d *Decoder) readVarInt() (int32, error) {
	var ux uint32
	for i := 0; i < wire.MaxVarIntLen; i++ {
		b, err := d.r.ReadByte()
		if err != nil {
			if err == io.EOF {
				if i == 0 {
					return 0, io.EOF
				}
				return 0, fmt.Errorf("%w: frame length cut after %d bytes", ErrCorruptFrame, i)
			}
			return 0, err
		}
		d.offset++
		ux |= uint32(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return int32(ux), nil
		}
	}
	return 0, fmt.Errorf("%w: frame length varint longer than %d bytes", ErrCorruptFrame, wire.MaxVarIntLen)
}
