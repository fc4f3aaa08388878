package mcpr

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/reallyoldfogie/mcpr-studio/mcpr/packetlog"
)

// ErrMissingEntry is returned when a required archive entry is absent.
var ErrMissingEntry = errors.New("mcpr: missing entry")

// Reader gives access to the entries of a replay archive. The packet log is
// streamed, never loaded whole.
type Reader struct {
	zr     *zip.Reader
	closer io.Closer
	files  map[string]*zip.File
	meta   Meta
}

// OpenReader opens the replay at path.
func OpenReader(path string) (*Reader, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("mcpr: %s: %w", path, err)
	}
	r, err := newReader(&rc.Reader)
	if err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("mcpr: %s: %w", path, err)
	}
	r.closer = rc
	return r, nil
}

// NewReader reads a replay from ra, which holds size bytes.
func NewReader(ra io.ReaderAt, size int64) (*Reader, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("mcpr: %w", err)
	}
	return newReader(zr)
}

func newReader(zr *zip.Reader) (*Reader, error) {
	r := &Reader{zr: zr, files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		r.files[f.Name] = f
	}
	if _, ok := r.files[RecordingEntry]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingEntry, RecordingEntry)
	}
	mf, ok := r.files[MetaEntry]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingEntry, MetaEntry)
	}
	rc, err := mf.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", MetaEntry, err)
	}
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(&r.meta); err != nil {
		return nil, fmt.Errorf("parse %s: %w", MetaEntry, err)
	}
	return r, nil
}

// Meta returns the parsed metaData.json.
func (r *Reader) Meta() Meta { return r.meta }

// Entries lists the archive entry names in sorted order.
func (r *Reader) Entries() []string {
	names := make([]string, 0, len(r.files))
	for name := range r.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpenEntry opens the named entry for reading.
func (r *Reader) OpenEntry(name string) (io.ReadCloser, error) {
	f, ok := r.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingEntry, name)
	}
	return f.Open()
}

// EntrySize returns the uncompressed size of the named entry.
func (r *Reader) EntrySize(name string) (uint64, bool) {
	f, ok := r.files[name]
	if !ok {
		return 0, false
	}
	return f.UncompressedSize64, true
}

// PacketReader decodes recording.tmcpr. Close releases the entry.
type PacketReader struct {
	*packetlog.Decoder
	rc io.ReadCloser
}

func (p *PacketReader) Close() error { return p.rc.Close() }

// Packets opens the packet log. The framing in opts is ignored; replays are
// always ReplayMod framed.
func (r *Reader) Packets(opts packetlog.DecoderOptions) (*PacketReader, error) {
	rc, err := r.OpenEntry(RecordingEntry)
	if err != nil {
		return nil, err
	}
	opts.Framing = packetlog.FramingReplayMod
	return &PacketReader{Decoder: packetlog.NewDecoder(rc, opts), rc: rc}, nil
}

// Close releases the underlying file when the reader was opened by path.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
