// Package packetlog reads and writes the packet log stored in a replay:
// a forward-only sequence of timestamped packet frames.
//
// Two framings are supported. FramingReplayMod is what ReplayMod writes into
// recording.tmcpr:
//
//	[time uint32 BE][length uint32 BE][payload]
//
// FramingVarInt prefixes each frame with its VarInt length instead:
//
//	[frameLength varint][time uint32 BE][payload, frameLength-4 bytes]
//
// In both the payload starts with the VarInt packet id, and time is
// milliseconds since the start of the recording.
package packetlog

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/reallyoldfogie/mcpr-studio/protocol"
	"github.com/reallyoldfogie/mcpr-studio/wire"
)

var (
	// ErrCorruptFrame is returned when a frame header is cut short, declares
	// more bytes than remain, or exceeds the maximum frame size.
	ErrCorruptFrame = errors.New("packetlog: corrupt frame")
	// ErrTimestampRegression is returned by strict decoders when a frame is
	// older than the one before it.
	ErrTimestampRegression = errors.New("packetlog: timestamp regression")
	// ErrDirectionMismatch is returned when a record does not travel in the
	// direction of the log it is written to.
	ErrDirectionMismatch = errors.New("packetlog: record direction does not match log")
	// ErrTimeOutOfRange is returned for timestamps that do not fit the
	// 32-bit frame header.
	ErrTimeOutOfRange = errors.New("packetlog: timestamp out of range")
)

// DefaultMaxFrameSize bounds a single frame. Larger declared lengths are
// treated as corruption rather than allocated.
const DefaultMaxFrameSize = 8 << 20

// Framing selects the on-disk frame layout.
type Framing uint8

const (
	FramingReplayMod Framing = iota
	FramingVarInt
)

func (f Framing) String() string {
	switch f {
	case FramingReplayMod:
		return "replaymod"
	case FramingVarInt:
		return "varint"
	}
	return fmt.Sprintf("framing(%d)", uint8(f))
}

// ParseFraming parses "replaymod" (also "tmcpr") or "varint".
func ParseFraming(s string) (Framing, error) {
	switch strings.ToLower(s) {
	case "", "replaymod", "tmcpr":
		return FramingReplayMod, nil
	case "varint":
		return FramingVarInt, nil
	}
	return 0, fmt.Errorf("packetlog: unknown framing %q", s)
}

// Record is one packet of the log.
type Record struct {
	// Time is milliseconds since the start of the recording.
	Time      int64
	Direction protocol.Direction
	// Data is the raw packet: VarInt id followed by the body.
	Data []byte
}

// PacketID decodes the leading packet id of the record.
func (r Record) PacketID() (int32, error) {
	id, _, err := wire.DecodeVarInt(r.Data, 0)
	return id, err
}

// Clone returns a copy of r that does not share Data.
func (r Record) Clone() Record {
	r.Data = slices.Clone(r.Data)
	return r
}

// FrameError locates a stream failure.
type FrameError struct {
	Index  int
	Offset int64
	Err    error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("packetlog: frame %d at offset %d: %v", e.Index, e.Offset, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }
