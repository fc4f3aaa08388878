package filter

import (
	"github.com/rs/zerolog"

	"github.com/reallyoldfogie/mcpr-studio/mcpr/packetlog"
	"github.com/reallyoldfogie/mcpr-studio/protocol"
	"github.com/reallyoldfogie/mcpr-studio/translate"
)

// Translate converts every record from protocol From to protocol To.
// Dropped packets are left out. A packet that cannot be translated aborts
// the run when Strict is set; otherwise it is kept untranslated and a
// warning is logged.
type Translate struct {
	engine   *translate.Engine
	From, To protocol.Version
	Strict   bool
	logger   zerolog.Logger
	stats    TranslateStats
}

// TranslateStats counts the outcomes of the records a Translate filter saw.
type TranslateStats struct {
	Translated  int
	PassThrough int
	Dropped     int
	Failed      int
}

func NewTranslate(e *translate.Engine, from, to protocol.Version, strict bool, logger zerolog.Logger) *Translate {
	return &Translate{engine: e, From: from, To: to, Strict: strict, logger: logger}
}

func (*Translate) Name() string { return "translate" }

// OutputVersion is the protocol of the records the filter emits.
func (f *Translate) OutputVersion() protocol.Version { return f.To }

func (f *Translate) Start() error {
	f.stats = TranslateStats{}
	return nil
}

func (f *Translate) Record(rec packetlog.Record, emit Emitter) error {
	res, err := f.engine.Translate(f.From, f.To, rec.Direction, rec.Data)
	if err != nil {
		if f.Strict {
			return err
		}
		f.stats.Failed++
		f.logger.Warn().Err(err).Int64("time_ms", rec.Time).Msg("packet left untranslated")
		return emit(rec)
	}
	switch res.Outcome {
	case translate.Dropped:
		f.stats.Dropped++
		return nil
	case translate.Translated:
		f.stats.Translated++
		rec.Data = res.Data
	default:
		f.stats.PassThrough++
	}
	return emit(rec)
}

func (f *Translate) End(at int64, _ Emitter) error {
	f.logger.Info().
		Int("from", int(f.From)).
		Int("to", int(f.To)).
		Int("translated", f.stats.Translated).
		Int("pass_through", f.stats.PassThrough).
		Int("dropped", f.stats.Dropped).
		Int("failed", f.stats.Failed).
		Msg("translation finished")
	return nil
}

func (f *Translate) Stats() TranslateStats { return f.stats }
