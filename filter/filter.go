// Package filter runs packet streams through ordered stages of filters.
//
// Each stage wraps a Filter with an optional time window. Records inside the
// window are handed to the filter, which may emit any number of records in
// response; records outside it pass straight to the next stage. A filter is
// started when its window opens and ended when a record past the window
// arrives or the stream runs out, so it can flush anything it held back.
package filter

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/reallyoldfogie/mcpr-studio/mcpr/packetlog"
)

// Source yields records in order and io.EOF at the end.
// *packetlog.Decoder is a Source.
type Source interface {
	Next() (packetlog.Record, error)
}

// Sink receives the records that leave the pipeline. *mcpr.Writer is a Sink.
type Sink interface {
	WriteRecord(packetlog.Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(packetlog.Record) error

func (f SinkFunc) WriteRecord(rec packetlog.Record) error { return f(rec) }

// Emitter passes a record on to the rest of the pipeline.
type Emitter func(packetlog.Record) error

// Filter transforms the records of its window. Implementations must keep
// emitted timestamps non-decreasing.
type Filter interface {
	Name() string
	// Start is called before the first record of the window.
	Start() error
	// Record handles one record. Emitting it unchanged keeps it; not
	// emitting it drops it.
	Record(rec packetlog.Record, emit Emitter) error
	// End is called once the window is over. at is the end of the window,
	// or the time of the last record when the stream ends first.
	End(at int64, emit Emitter) error
}

// Open marks an unbounded side of a stage window.
const Open = -1

// Stage applies a filter to the records with From <= Time <= To. Either
// bound may be Open.
type Stage struct {
	Filter Filter
	From   int64
	To     int64
}

// Apply runs f over the whole stream.
func Apply(f Filter) Stage { return Stage{Filter: f, From: Open, To: Open} }

func (s Stage) contains(t int64) bool {
	return (s.From < 0 || t >= s.From) && (s.To < 0 || t <= s.To)
}

// StreamError reports which record a pipeline failed on. Filter is empty
// when the source or sink failed.
type StreamError struct {
	Index  int
	Time   int64
	Filter string
	Err    error
}

func (e *StreamError) Error() string {
	where := "stream"
	if e.Filter != "" {
		where = "filter " + e.Filter
	}
	return fmt.Sprintf("%s: record %d at %d ms: %v", where, e.Index, e.Time, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// Stats counts records in and out of a run.
type Stats struct {
	In  int
	Out int
}

// Pipeline is an ordered list of stages. A pipeline value may be reused,
// but its filters usually carry per-run state, so concurrent runs need
// separate filters.
type Pipeline struct {
	stages []Stage
}

func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

func (p *Pipeline) Stages() []Stage { return p.stages }

type stageState struct {
	Stage
	started bool
	ended   bool
	seen    int64 // time of the last record that reached the stage
	lastOut int64
}

type run struct {
	stages []*stageState
	sink   Sink
	index  int
	time   int64
	stats  Stats
}

// Run streams src through the pipeline into sink. ctx is checked between
// records; on cancellation the run stops with ctx's error and nothing past
// the current record is written.
func (p *Pipeline) Run(ctx context.Context, src Source, sink Sink) (Stats, error) {
	r := &run{sink: sink}
	for _, s := range p.stages {
		r.stages = append(r.stages, &stageState{Stage: s})
	}
	for {
		if err := ctx.Err(); err != nil {
			return r.stats, r.fail(nil, err)
		}
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return r.stats, r.fail(nil, err)
		}
		r.time = rec.Time
		r.stats.In++
		if err := r.push(0, rec); err != nil {
			return r.stats, err
		}
		r.index++
	}
	for i, s := range r.stages {
		if !s.started || s.ended {
			continue
		}
		s.ended = true
		if err := s.Filter.End(s.seen, r.emitter(i)); err != nil {
			return r.stats, r.fail(s, err)
		}
	}
	return r.stats, nil
}

func (r *run) fail(s *stageState, err error) error {
	var se *StreamError
	if errors.As(err, &se) {
		return err
	}
	e := &StreamError{Index: r.index, Time: r.time, Err: err}
	if s != nil {
		e.Filter = s.Filter.Name()
	}
	return e
}

func (r *run) push(i int, rec packetlog.Record) error {
	if i == len(r.stages) {
		if err := r.sink.WriteRecord(rec); err != nil {
			return r.fail(nil, err)
		}
		r.stats.Out++
		return nil
	}
	s := r.stages[i]
	s.seen = rec.Time
	if s.ended || !s.contains(rec.Time) {
		if s.started && !s.ended && s.To >= 0 && rec.Time > s.To {
			s.ended = true
			if err := s.Filter.End(s.To, r.emitter(i)); err != nil {
				return r.fail(s, err)
			}
		}
		return r.forward(i, rec)
	}
	if !s.started {
		s.started = true
		if err := s.Filter.Start(); err != nil {
			return r.fail(s, err)
		}
	}
	if err := s.Filter.Record(rec, r.emitter(i)); err != nil {
		return r.fail(s, err)
	}
	return nil
}

// forward hands a record leaving stage i to stage i+1, enforcing that each
// stage's output never goes back in time.
func (r *run) forward(i int, rec packetlog.Record) error {
	s := r.stages[i]
	if rec.Time < s.lastOut {
		return r.fail(s, fmt.Errorf("%w: emitted %d ms after %d ms", packetlog.ErrTimestampRegression, rec.Time, s.lastOut))
	}
	s.lastOut = rec.Time
	return r.push(i+1, rec)
}

func (r *run) emitter(i int) Emitter {
	return func(rec packetlog.Record) error { return r.forward(i, rec) }
}
