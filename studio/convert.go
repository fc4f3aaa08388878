package studio

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/reallyoldfogie/mcpr-studio/filter"
	"github.com/reallyoldfogie/mcpr-studio/mcpr"
	"github.com/reallyoldfogie/mcpr-studio/protocol"
	"github.com/reallyoldfogie/mcpr-studio/translate"
)

// Plan says how replays are converted.
type Plan struct {
	// Registry is needed for translation and for packet names in filter
	// options. It may be nil when neither is used.
	Registry *protocol.Registry
	// Target is the protocol to write. Zero keeps the version the filters
	// leave the stream in.
	Target protocol.Version
	// Strict fails on timestamp regressions and untranslatable packets
	// instead of clamping or keeping them.
	Strict  bool
	Filters []filter.Instruction
	// Logger defaults to the global logger.
	Logger *zerolog.Logger
}

func (p Plan) logger() zerolog.Logger {
	if p.Logger != nil {
		return *p.Logger
	}
	return log.Logger
}

// pipeline builds fresh filters for one replay recorded with version v and
// returns them with the version they produce.
func (p Plan) pipeline(v protocol.Version, engine *translate.Engine) ([]filter.Stage, protocol.Version, error) {
	deps := filter.Deps{Registry: p.Registry, Engine: engine, Version: v, Logger: p.logger()}
	pl, out, err := filter.Build(p.Filters, deps)
	if err != nil {
		return nil, 0, err
	}
	stages := pl.Stages()
	if p.Target != 0 && p.Target != out {
		if engine == nil {
			return nil, 0, fmt.Errorf("studio: translating %d to %d needs protocol data", out, p.Target)
		}
		stages = append(stages, filter.Apply(filter.NewTranslate(engine, out, p.Target, p.Strict, deps.Logger)))
		out = p.Target
	}
	return stages, out, nil
}

// Result describes one converted replay.
type Result struct {
	In, Out  string
	From, To protocol.Version
	Stats    filter.Stats
	Clamped  int
}

// ConvertFile converts the replay at in and writes it to out. out only
// appears once the conversion has succeeded.
func ConvertFile(ctx context.Context, in, out string, plan Plan) (*Result, error) {
	var engine *translate.Engine
	if plan.Registry != nil {
		engine = translate.New(plan.Registry)
	}
	return convertFile(ctx, in, out, plan, engine)
}

func convertFile(ctx context.Context, in, out string, plan Plan, engine *translate.Engine) (*Result, error) {
	logger := plan.logger().With().Str("replay", in).Logger()
	s, err := Open(in, StreamOptions{Strict: plan.Strict})
	if err != nil {
		return nil, err
	}
	defer s.Close()

	from := s.Version()
	stages, to, err := plan.pipeline(from, engine)
	if err != nil {
		return nil, err
	}
	meta, _ := s.Meta()
	meta.Generator = ""
	w, err := mcpr.Create(out, meta.WithProtocol(to))
	if err != nil {
		return nil, err
	}
	stats, err := s.ApplyFilters(stages...).Write(ctx, w)
	if err == nil {
		err = s.copyExtras(w)
	}
	if err != nil {
		if aerr := w.Abort(); aerr != nil {
			logger.Warn().Err(aerr).Msg("could not remove partial output")
		}
		return nil, fmt.Errorf("%s: %w", in, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%s: %w", out, err)
	}
	res := &Result{In: in, Out: out, From: from, To: to, Stats: stats, Clamped: s.Clamped()}
	logger.Info().
		Int("from", int(from)).
		Int("to", int(to)).
		Int("records_in", stats.In).
		Int("records_out", stats.Out).
		Msg("converted")
	if res.Clamped > 0 {
		logger.Warn().Int("clamped", res.Clamped).Msg("timestamps went backwards and were clamped")
	}
	return res, nil
}

// Job is one replay to convert.
type Job struct {
	In, Out string
}

// BatchOptions controls ConvertAll.
type BatchOptions struct {
	// Workers bounds the number of replays converted at once; values below
	// one mean one.
	Workers int
	// FailFast cancels the remaining jobs after the first failure.
	FailFast bool
}

// ConvertAll converts independent replays in parallel. Results line up with
// jobs; a failed job leaves a nil entry and its error is joined into the
// returned error.
func ConvertAll(ctx context.Context, jobs []Job, plan Plan, opts BatchOptions) ([]*Result, error) {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	var engine *translate.Engine
	if plan.Registry != nil {
		engine = translate.New(plan.Registry)
	}
	results := make([]*Result, len(jobs))
	p := pool.New().WithContext(ctx).WithMaxGoroutines(opts.Workers)
	if opts.FailFast {
		p = p.WithCancelOnError()
	}
	for i, job := range jobs {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := convertFile(ctx, job.In, job.Out, plan, engine)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	err := p.Wait()
	if err != nil && opts.FailFast && errors.Is(err, context.Canceled) && ctx.Err() == nil {
		// Jobs cancelled by the first failure only add noise.
		err = firstFailure(err)
	}
	return results, err
}

// firstFailure strips cancellation errors from a joined error.
func firstFailure(err error) error {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return err
	}
	var keep []error
	for _, e := range joined.Unwrap() {
		if !errors.Is(e, context.Canceled) {
			keep = append(keep, e)
		}
	}
	if len(keep) == 0 {
		return err
	}
	return errors.Join(keep...)
}
