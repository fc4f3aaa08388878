// Package studio ties the packet log, protocol and filter packages together:
// it opens recordings, runs them through filters and translation, and
// writes the result back out as a replay.
package studio

import (
	"context"
	"errors"
	"io"

	"github.com/reallyoldfogie/mcpr-studio/filter"
	"github.com/reallyoldfogie/mcpr-studio/mcpr"
	"github.com/reallyoldfogie/mcpr-studio/mcpr/packetlog"
	"github.com/reallyoldfogie/mcpr-studio/protocol"
	"github.com/reallyoldfogie/mcpr-studio/translate"
)

// ErrConsumed is returned when a stream is written twice.
var ErrConsumed = errors.New("studio: stream already written")

// StreamOptions describes a raw packet log.
type StreamOptions struct {
	// Version is the protocol the log was recorded with. Open fills it from
	// the replay metadata when zero.
	Version   protocol.Version
	Framing   packetlog.Framing
	Direction protocol.Direction
	// Strict rejects timestamp regressions instead of clamping them.
	Strict       bool
	MaxFrameSize int
}

// Stream is a packet log waiting to be filtered and written. It is read
// lazily; only one record is held at a time unless a filter buffers.
type Stream struct {
	src     filter.Source
	dec     *packetlog.Decoder
	version protocol.Version
	stages  []filter.Stage
	meta    *mcpr.Meta
	entries []string
	reader  *mcpr.Reader
	closers []io.Closer
	used    bool
}

// OpenStream reads a bare packet log from r.
func OpenStream(r io.Reader, opts StreamOptions) *Stream {
	dec := packetlog.NewDecoder(r, decoderOptions(opts))
	return &Stream{src: dec, dec: dec, version: opts.Version}
}

// Open reads the packet log of the replay at path. opts.Framing is ignored.
func Open(path string, opts StreamOptions) (*Stream, error) {
	r, err := mcpr.OpenReader(path)
	if err != nil {
		return nil, err
	}
	pr, err := r.Packets(decoderOptions(opts))
	if err != nil {
		r.Close()
		return nil, err
	}
	meta := r.Meta()
	if opts.Version == 0 {
		opts.Version = meta.ProtocolVersion()
	}
	return &Stream{
		src:     pr,
		dec:     pr.Decoder,
		version: opts.Version,
		meta:    &meta,
		entries: r.Entries(),
		reader:  r,
		closers: []io.Closer{pr, r},
	}, nil
}

func decoderOptions(opts StreamOptions) packetlog.DecoderOptions {
	return packetlog.DecoderOptions{
		Framing:      opts.Framing,
		Direction:    opts.Direction,
		Strict:       opts.Strict,
		MaxFrameSize: opts.MaxFrameSize,
	}
}

// Version is the protocol of the records as read.
func (s *Stream) Version() protocol.Version { return s.version }

// Meta returns the replay metadata when the stream was opened with Open.
func (s *Stream) Meta() (mcpr.Meta, bool) {
	if s.meta == nil {
		return mcpr.Meta{}, false
	}
	return *s.meta, true
}

// Clamped is the number of records whose timestamps were raised while
// reading.
func (s *Stream) Clamped() int { return s.dec.Clamped() }

// ApplyFilters appends stages to the stream's pipeline.
func (s *Stream) ApplyFilters(stages ...filter.Stage) *Stream {
	s.stages = append(s.stages, stages...)
	return s
}

// Write runs the stream through its filters into sink. A stream can be
// written once.
func (s *Stream) Write(ctx context.Context, sink filter.Sink) (filter.Stats, error) {
	if s.used {
		return filter.Stats{}, ErrConsumed
	}
	s.used = true
	return filter.NewPipeline(s.stages...).Run(ctx, s.src, sink)
}

// copyExtras copies the replay entries the writer does not produce itself,
// such as markers and resource packs.
func (s *Stream) copyExtras(w *mcpr.Writer) error {
	if s.reader == nil {
		return nil
	}
	for _, name := range s.entries {
		switch name {
		case mcpr.RecordingEntry, mcpr.MetaEntry, mcpr.ModsEntry, mcpr.CRCEntry:
			continue
		}
		if err := s.copyEntry(w, name); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stream) copyEntry(w *mcpr.Writer, name string) error {
	src, err := s.reader.OpenEntry(name)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := w.CreateEntry(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

// Close releases the replay opened by Open.
func (s *Stream) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// TranslatePacket translates one raw packet from src to dst.
func TranslatePacket(reg *protocol.Registry, src, dst protocol.Version, dir protocol.Direction, raw []byte) (translate.Result, error) {
	return translate.TranslatePacket(reg, src, dst, dir, raw)
}
