// Package recorder provides a simple, thread-safe helper to feed live
// Minecraft packets into an MCPR writer. It is transport-agnostic: you call
// RecordNow/RecordAt for each server->client packet you receive from your
// client/bot library.
package recorder

import (
	"sync"
	"time"

	"github.com/reallyoldfogie/mcpr-studio/mcpr"
	"github.com/reallyoldfogie/mcpr-studio/mcpr/packetlog"
	"github.com/reallyoldfogie/mcpr-studio/protocol"
	"github.com/reallyoldfogie/mcpr-studio/wire"
)

// Recorder streams packets to an underlying mcpr.Writer and computes
// timestamps relative to its start time. Timestamps never go backwards even
// if callers race: a late RecordAt is stamped with the latest time seen.
type Recorder struct {
	w      *mcpr.Writer
	start  time.Time
	now    func() time.Time
	mu     sync.Mutex
	last   int64
	closed bool
}

// New creates a Recorder writing to w. The recorder start time is set to now.
func New(w *mcpr.Writer) *Recorder {
	return &Recorder{w: w, start: time.Now(), now: time.Now}
}

// NewFile creates and owns an MCPR file at path using the given metadata.
// Use Close() when finished.
func NewFile(path string, meta mcpr.Meta) (*Recorder, error) {
	w, err := mcpr.Create(path, meta)
	if err != nil {
		return nil, err
	}
	return New(w), nil
}

// RecordNow records a packet with the current timestamp relative to start.
// id is the protocol packet id; payload are the packet bytes after the varint id.
func (r *Recorder) RecordNow(id int32, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record(r.now().Sub(r.start).Milliseconds(), id, payload)
}

// RecordAt records a packet with an explicit millisecond timestamp.
func (r *Recorder) RecordAt(ts uint32, id int32, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record(int64(ts), id, payload)
}

func (r *Recorder) record(ts int64, id int32, payload []byte) error {
	if r.closed {
		return nil
	}
	if ts < r.last {
		ts = r.last
	}
	data := wire.AppendVarInt(make([]byte, 0, wire.VarIntSize(id)+len(payload)), id)
	data = append(data, payload...)
	if err := r.w.WriteRecord(packetlog.Record{Time: ts, Direction: protocol.ClientBound, Data: data}); err != nil {
		return err
	}
	r.last = ts
	return nil
}

// Count returns the number of packets recorded.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Count()
}

// Close finalizes the MCPR file (writing metaData.json and ZIP central directory).
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.w.Close()
}

// Abort discards the recording.
func (r *Recorder) Abort() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.w.Abort()
}

// SetSelfID annotates the recording with the recorder's player entity id.
// Safe to call any time before Close(); no-op after Close().
func (r *Recorder) SetSelfID(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.w.SetSelfID(id)
}

// AddPlayer adds a player UUID to the recorded session.
// Safe to call any time before Close(); no-op after Close().
func (r *Recorder) AddPlayer(uuid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	return r.w.AddPlayer(uuid)
}
