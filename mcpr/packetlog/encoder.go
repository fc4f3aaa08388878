package packetlog

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/reallyoldfogie/mcpr-studio/protocol"
	"github.com/reallyoldfogie/mcpr-studio/wire"
)

type EncoderOptions struct {
	Framing   Framing
	Direction protocol.Direction
}

// Encoder writes records in the order they are given.
type Encoder struct {
	w        io.Writer
	opts     EncoderOptions
	hdr      []byte
	count    int
	duration int64
}

func NewEncoder(w io.Writer, opts EncoderOptions) *Encoder {
	return &Encoder{w: w, opts: opts, hdr: make([]byte, 0, 13)}
}

// Encode writes one frame. The record's data is written as is.
func (e *Encoder) Encode(rec Record) error {
	if rec.Direction != e.opts.Direction {
		return fmt.Errorf("%w: %s record in %s log", ErrDirectionMismatch, rec.Direction, e.opts.Direction)
	}
	if rec.Time < 0 || rec.Time > math.MaxUint32 {
		return fmt.Errorf("%w: %d ms", ErrTimeOutOfRange, rec.Time)
	}
	hdr := e.hdr[:0]
	switch e.opts.Framing {
	case FramingReplayMod:
		if len(rec.Data) > math.MaxInt32 {
			return fmt.Errorf("packetlog: %d byte record is too large", len(rec.Data))
		}
		hdr = binary.BigEndian.AppendUint32(hdr, uint32(rec.Time))
		hdr = binary.BigEndian.AppendUint32(hdr, uint32(len(rec.Data)))
	case FramingVarInt:
		if len(rec.Data) > math.MaxInt32-4 {
			return fmt.Errorf("packetlog: %d byte record is too large", len(rec.Data))
		}
		hdr = wire.AppendVarInt(hdr, int32(len(rec.Data)+4))
		hdr = binary.BigEndian.AppendUint32(hdr, uint32(rec.Time))
	default:
		return fmt.Errorf("packetlog: unknown framing %s", e.opts.Framing)
	}
	if _, err := e.w.Write(hdr); err != nil {
		return err
	}
	if _, err := e.w.Write(rec.Data); err != nil {
		return err
	}
	e.count++
	if rec.Time > e.duration {
		e.duration = rec.Time
	}
	return nil
}

// Count is the number of records written.
func (e *Encoder) Count() int { return e.count }

// Duration is the largest timestamp written, in milliseconds.
func (e *Encoder) Duration() int64 { return e.duration }
