package mcpr

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/reallyoldfogie/mcpr-studio/mcpr/packetlog"
	"github.com/reallyoldfogie/mcpr-studio/protocol"
	"github.com/reallyoldfogie/mcpr-studio/wire"
)

// ErrClosed is returned by writes after Close or Abort.
var ErrClosed = errors.New("mcpr: writer closed")

// Writer streams packets into a ReplayMod .mcpr file.
//
// Usage:
//
//	w, _ := mcpr.Create("out.mcpr", mcpr.Meta{Protocol: 754})
//	defer w.Close()
//	_ = w.WritePacket(0, 0x26, payload)
//
// Packets are written incrementally; the writer does not retain them in memory.
type Writer struct {
	zw     *zip.Writer
	enc    *packetlog.Encoder
	meta   Meta
	closed bool
	crc    hash.Hash32 // over recording.tmcpr, stored as recording.tmcpr.crc32

	// set by Create: output goes to tmp and is renamed to path on Close
	file *os.File
	path string
}

// NewWriter creates a new MCPR writer onto the provided io.Writer.
// It immediately creates the first ZIP entry "recording.tmcpr" and expects
// packets to be written there until Close() is called.
func NewWriter(out io.Writer, meta Meta) (*Writer, error) {
	zw := zip.NewWriter(out)
	rec, err := zw.Create(RecordingEntry)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", RecordingEntry, err)
	}
	meta.applyDefaults()
	if meta.Date == 0 {
		meta.Date = time.Now().UnixMilli()
	}
	crc := crc32.NewIEEE()
	return &Writer{
		zw:   zw,
		enc:  packetlog.NewEncoder(io.MultiWriter(rec, crc), packetlog.EncoderOptions{Framing: packetlog.FramingReplayMod}),
		meta: meta,
		crc:  crc,
	}, nil
}

// Create returns a Writer for a new replay at path. The archive is written
// to a temporary file in the same directory and only appears at path once
// Close succeeds; Abort removes it.
func Create(path string, meta Meta) (*Writer, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.part")
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f, meta)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, err
	}
	w.file = f
	w.path = path
	return w, nil
}

// WritePacket writes a single clientbound packet frame to recording.tmcpr.
// ts is a millisecond timestamp. packetID is the protocol packet id and
// payload the raw packet bytes as they would appear on the wire after the varint id.
func (w *Writer) WritePacket(ts uint32, packetID int32, payload []byte) error {
	data := wire.AppendVarInt(make([]byte, 0, wire.VarIntSize(packetID)+len(payload)), packetID)
	data = append(data, payload...)
	return w.WriteRecord(packetlog.Record{Time: int64(ts), Direction: protocol.ClientBound, Data: data})
}

// WriteRecord appends rec to recording.tmcpr. Replays only hold clientbound
// packets.
func (w *Writer) WriteRecord(rec packetlog.Record) error {
	if w.closed {
		return ErrClosed
	}
	return w.enc.Encode(rec)
}

// Count is the number of packets written so far.
func (w *Writer) Count() int { return w.enc.Count() }

// SetSelfID updates the selfId field written to metaData.json.
// ReplayMod uses this to identify the recorder's own player entity.
func (w *Writer) SetSelfID(id int) {
	w.meta.SelfID = id
}

// AddPlayer adds a player UUID to the replay metadata. Invalid UUIDs are
// rejected; duplicates are ignored.
func (w *Writer) AddPlayer(id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("mcpr: player %q: %w", id, err)
	}
	s := parsed.String()
	for _, p := range w.meta.Players {
		if p == s {
			return nil
		}
	}
	w.meta.Players = append(w.meta.Players, s)
	return nil
}

// CreateEntry creates a new ZIP entry for additional files (e.g., assets).
// Note: ZIP requires sequential entry writing. Only call this after you have
// finished writing packets; you cannot resume writing to recording.tmcpr afterward.
func (w *Writer) CreateEntry(name string) (io.Writer, error) {
	if w.closed {
		return nil, ErrClosed
	}
	return w.zw.Create(name)
}

// Close finalizes the recording, writes metaData.json, mods.json and the
// CRC32 cache entry, and closes the archive.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.finish(); err != nil {
		w.discard()
		return err
	}
	if w.file == nil {
		return nil
	}
	if err := w.file.Close(); err != nil {
		_ = os.Remove(w.file.Name())
		return err
	}
	return os.Rename(w.file.Name(), w.path)
}

func (w *Writer) finish() error {
	w.meta.Duration = int(w.enc.Duration())
	w.meta.applyDefaults()

	if err := w.writeJSON(MetaEntry, w.meta); err != nil {
		return err
	}
	if err := w.writeJSON(ModsEntry, map[string][]any{"requiredMods": {}}); err != nil {
		return err
	}
	e, err := w.zw.Create(CRCEntry)
	if err != nil {
		return fmt.Errorf("create %s: %w", CRCEntry, err)
	}
	if _, err := io.WriteString(e, strconv.FormatUint(uint64(w.crc.Sum32()), 10)); err != nil {
		return err
	}
	return w.zw.Close()
}

func (w *Writer) writeJSON(name string, v any) error {
	e, err := w.zw.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	_, err = e.Write(b)
	return err
}

// Abort stops writing without finalizing the archive. A file opened by
// Create is removed; a caller-supplied io.Writer is left with whatever was
// flushed so far and must be discarded by the caller.
func (w *Writer) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.discard()
}

func (w *Writer) discard() error {
	if w.file == nil {
		return nil
	}
	cerr := w.file.Close()
	if err := os.Remove(w.file.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return cerr
}
