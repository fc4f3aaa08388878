package filter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reallyoldfogie/mcpr-studio/mcpr/packetlog"
	"github.com/reallyoldfogie/mcpr-studio/protocol"
	"github.com/reallyoldfogie/mcpr-studio/translate"
)

type sliceSource struct {
	recs  []packetlog.Record
	i     int
	after func(i int)
}

func (s *sliceSource) Next() (packetlog.Record, error) {
	if s.i == len(s.recs) {
		return packetlog.Record{}, io.EOF
	}
	rec := s.recs[s.i]
	s.i++
	if s.after != nil {
		s.after(s.i)
	}
	return rec, nil
}

type collect struct{ recs []packetlog.Record }

func (c *collect) WriteRecord(rec packetlog.Record) error {
	c.recs = append(c.recs, rec)
	return nil
}

func (c *collect) times() []int64 {
	var out []int64
	for _, r := range c.recs {
		out = append(out, r.Time)
	}
	return out
}

func (c *collect) ids() []byte {
	var out []byte
	for _, r := range c.recs {
		out = append(out, r.Data[0])
	}
	return out
}

func rec(ms int64, data ...byte) packetlog.Record {
	return packetlog.Record{Time: ms, Data: data}
}

func stream() []packetlog.Record {
	return []packetlog.Record{
		rec(0, 0x01),
		rec(100, 0x02),
		rec(150, 0x03, 0xaa),
		rec(150, 0x02),
		rec(300, 0x04),
		rec(1200, 0x02),
	}
}

func runAll(t *testing.T, p *Pipeline, recs []packetlog.Record) (*collect, Stats) {
	t.Helper()
	out := &collect{}
	stats, err := p.Run(context.Background(), &sliceSource{recs: recs}, out)
	require.NoError(t, err)
	return out, stats
}

func assertMonotonic(t *testing.T, times []int64) {
	t.Helper()
	for i := 1; i < len(times); i++ {
		assert.LessOrEqual(t, times[i-1], times[i], "record %d", i)
	}
}

func TestEmptyPipelineIsIdentity(t *testing.T) {
	out, stats := runAll(t, NewPipeline(), stream())
	assert.Equal(t, stream(), out.recs)
	assert.Equal(t, Stats{In: 6, Out: 6}, stats)
}

func TestTimestamp(t *testing.T) {
	out, _ := runAll(t, NewPipeline(Apply(&Timestamp{Offset: 50})), stream())
	assert.Equal(t, []int64{50, 150, 200, 200, 350, 1250}, out.times())

	out, _ = runAll(t, NewPipeline(Apply(&Timestamp{Offset: -120})), stream())
	assert.Equal(t, []int64{0, 0, 30, 30, 180, 1080}, out.times())
}

func TestRemoveCountsDrops(t *testing.T) {
	f := NewRemove(0x02)
	out, stats := runAll(t, NewPipeline(Apply(f)), stream())
	assert.Equal(t, []byte{0x01, 0x03, 0x04}, out.ids())
	assert.Equal(t, 3, f.Removed())
	assert.Equal(t, stats.In-f.Removed(), stats.Out)
}

func TestWindow(t *testing.T) {
	f := NewRemove(0x02)
	out, _ := runAll(t, NewPipeline(Stage{Filter: f, From: 100, To: 200}), stream())
	assert.Equal(t, []byte{0x01, 0x03, 0x04, 0x02}, out.ids())
}

type recorderFilter struct {
	events []string
}

func (*recorderFilter) Name() string { return "recorder" }
func (f *recorderFilter) Start() error {
	f.events = append(f.events, "start")
	return nil
}
func (f *recorderFilter) Record(r packetlog.Record, emit Emitter) error {
	f.events = append(f.events, "record")
	return emit(r)
}
func (f *recorderFilter) End(at int64, _ Emitter) error {
	f.events = append(f.events, "end")
	return nil
}

func TestLifecycle(t *testing.T) {
	f := &recorderFilter{}
	runAll(t, NewPipeline(Stage{Filter: f, From: 100, To: 150}), stream())
	assert.Equal(t, []string{"start", "record", "record", "record", "end"}, f.events)

	never := &recorderFilter{}
	runAll(t, NewPipeline(Stage{Filter: never, From: 5000, To: Open}), stream())
	assert.Empty(t, never.events)
}

func TestSquash(t *testing.T) {
	f := NewSquash(0x02)
	out, stats := runAll(t, NewPipeline(Stage{Filter: f, From: Open, To: 1000}), stream())
	assert.Equal(t, []byte{0x01, 0x03, 0x02, 0x04, 0x02}, out.ids())
	assert.Equal(t, []int64{1000, 1000, 1000, 1000, 1200}, out.times())
	assert.Equal(t, 6, stats.In)
	assert.Equal(t, 5, stats.Out)

	// Without a later record the window closes at the last timestamp.
	out, _ = runAll(t, NewPipeline(Apply(NewSquash())), stream()[:5])
	assert.Equal(t, []int64{300, 300, 300, 300, 300}, out.times())
}

func TestMonotonicOutput(t *testing.T) {
	pipelines := []*Pipeline{
		NewPipeline(Apply(&Timestamp{Offset: 10}), Apply(NewRemove(0x03))),
		NewPipeline(Stage{Filter: NewSquash(0x02), From: 100, To: 200}, Apply(NewPacketCount(nil, zerolog.Nop()))),
		NewPipeline(Stage{Filter: &Timestamp{Offset: 500}, From: 1000, To: Open}),
	}
	for i, p := range pipelines {
		out, _ := runAll(t, p, stream())
		assertMonotonic(t, out.times())
		assert.NotEmpty(t, out.recs, "pipeline %d", i)
	}
}

func TestRegressionIsReported(t *testing.T) {
	p := NewPipeline(Stage{Filter: &Timestamp{Offset: -100}, From: 150, To: Open})
	_, err := p.Run(context.Background(), &sliceSource{recs: stream()}, &collect{})
	require.Error(t, err)
	assert.ErrorIs(t, err, packetlog.ErrTimestampRegression)
	var se *StreamError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "timestamp", se.Filter)
	assert.Equal(t, 2, se.Index)
	assert.Equal(t, int64(150), se.Time)
}

func TestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &sliceSource{recs: stream(), after: func(i int) {
		if i == 2 {
			cancel()
		}
	}}
	out := &collect{}
	stats, err := NewPipeline().Run(ctx, src, out)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, stats.Out)
	assert.Len(t, out.recs, 2)
}

func TestSourceErrors(t *testing.T) {
	var buf bytes.Buffer
	enc := packetlog.NewEncoder(&buf, packetlog.EncoderOptions{})
	require.NoError(t, enc.Encode(rec(0, 0x01)))
	buf.Write([]byte{0, 0, 0, 1, 0, 0, 0, 9})

	dec := packetlog.NewDecoder(&buf, packetlog.DecoderOptions{})
	stats, err := NewPipeline().Run(context.Background(), dec, &collect{})
	assert.ErrorIs(t, err, packetlog.ErrCorruptFrame)
	var se *StreamError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 1, se.Index)
	assert.Empty(t, se.Filter)
	assert.Equal(t, 1, stats.Out)
}

func TestPacketCount(t *testing.T) {
	f := NewPacketCount(nil, zerolog.Nop())
	runAll(t, NewPipeline(Apply(f)), stream())
	assert.Equal(t, []Count{
		{ID: 2, Name: "0x02", Count: 3},
		{ID: 1, Name: "0x01", Count: 1},
		{ID: 3, Name: "0x03", Count: 1},
		{ID: 4, Name: "0x04", Count: 1},
	}, f.Counts())
}

func testRegistry(t *testing.T) *protocol.Registry {
	t.Helper()
	cb := protocol.ClientBound
	reg, err := protocol.NewBuilder().
		AddVersion(protocol.VersionSpec{Version: 47, Packets: []protocol.PacketSchema{
			{Name: "spawn_mob", ID: 0x0f, Direction: cb, Fields: []protocol.FieldSpec{
				{Name: "entity", Kind: protocol.KindVarInt}, {Name: "type", Kind: protocol.KindUByte},
			}},
			{Name: "map_chunk", ID: 0x21, Direction: cb, Fields: []protocol.FieldSpec{{Name: "data", Kind: protocol.KindRest}}},
		}}).
		AddVersion(protocol.VersionSpec{Version: 107, Inherit: true, Remove: []string{"map_chunk"}, Packets: []protocol.PacketSchema{
			{Name: "spawn_mob", ID: 0x03, Direction: cb, Fields: []protocol.FieldSpec{
				{Name: "entity", Kind: protocol.KindVarInt}, {Name: "type", Kind: protocol.KindUByte},
			}},
		}}).
		AddRemap(protocol.RemapTable{Version: 50, Packet: "spawn_mob", Field: "type", IDs: map[int64]int64{12: 99}}).
		Build()
	require.NoError(t, err)
	return reg
}

func translateStream() []packetlog.Record {
	return []packetlog.Record{
		rec(0, 0x0f, 0x01, 12),
		rec(10, 0x21, 0xde),
		rec(20, 0x55, 0x00), // no schema
		rec(30, 0x21),
		rec(40, 0x0f, 0x02, 7),
	}
}

func TestTranslateFilter(t *testing.T) {
	e := translate.New(testRegistry(t))
	f := NewTranslate(e, 47, 107, true, zerolog.Nop())
	out, stats := runAll(t, NewPipeline(Apply(f)), translateStream())

	require.Len(t, out.recs, 3)
	assert.Equal(t, []byte{0x03, 0x01, 99}, out.recs[0].Data)
	assert.Equal(t, []byte{0x55, 0x00}, out.recs[1].Data)
	assert.Equal(t, []byte{0x03, 0x02, 7}, out.recs[2].Data)
	assert.Equal(t, []int64{0, 20, 40}, out.times())
	assert.Equal(t, TranslateStats{Translated: 2, PassThrough: 1, Dropped: 2}, f.Stats())
	assert.Equal(t, stats.In-f.Stats().Dropped, stats.Out)
}

func TestTranslateStrictAndLenient(t *testing.T) {
	e := translate.New(testRegistry(t))
	recs := translateStream()
	recs[4] = rec(40, 0x0f, 0x02) // truncated

	strict := NewTranslate(e, 47, 107, true, zerolog.Nop())
	_, err := NewPipeline(Apply(strict)).Run(context.Background(), &sliceSource{recs: recs}, &collect{})
	assert.ErrorIs(t, err, translate.ErrMalformedPacket)
	var se *StreamError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 4, se.Index)
	assert.Equal(t, int64(40), se.Time)
	assert.Equal(t, "translate", se.Filter)

	lenient := NewTranslate(e, 47, 107, false, zerolog.Nop())
	out, _ := runAll(t, NewPipeline(Apply(lenient)), recs)
	require.Len(t, out.recs, 3)
	assert.Equal(t, []byte{0x0f, 0x02}, out.recs[2].Data, "kept untranslated")
	assert.Equal(t, 1, lenient.Stats().Failed)
}

func TestParseInstruction(t *testing.T) {
	in, err := ParseInstruction("remove[packets=chat|0x26, type=title](1m-2m30s)")
	require.NoError(t, err)
	assert.Equal(t, "remove", in.Name)
	assert.Equal(t, []string{"chat", "0x26"}, in.Options["packets"])
	assert.Equal(t, "title", in.Options["type"])
	assert.Equal(t, int64(60000), in.From)
	assert.Equal(t, int64(150000), in.To)

	in, err = ParseInstruction("packet_count")
	require.NoError(t, err)
	assert.Equal(t, Instruction{Name: "packet_count", From: Open, To: Open}, in)

	in, err = ParseInstruction("squash(-1h2m3s4ms)")
	require.NoError(t, err)
	assert.Equal(t, int64(Open), in.From)
	assert.Equal(t, int64(3723004), in.To)

	for _, bad := range []string{"", "[a=b]", "remove[packets", "remove[x]", "remove(5)", "remove(2s-1s)", "remove]"} {
		_, err := ParseInstruction(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewAndBuild(t *testing.T) {
	reg := testRegistry(t)
	deps := Deps{Registry: reg, Engine: translate.New(reg), Version: 47, Logger: zerolog.Nop()}

	f, err := New("timestamp", map[string]any{"offset": "-1s"}, deps)
	require.NoError(t, err)
	assert.Equal(t, int64(-1000), f.(*Timestamp).Offset)

	f, err = New("remove", map[string]any{"packets": "map_chunk"}, deps)
	require.NoError(t, err)
	assert.True(t, f.(*Remove).IDs[0x21])

	_, err = New("remove", map[string]any{"packets": "map_chunk", "bogus": 1}, deps)
	assert.Error(t, err)
	_, err = New("remove", nil, deps)
	assert.Error(t, err)
	_, err = New("reverse", nil, deps)
	assert.Error(t, err)
	_, err = New("translate", map[string]any{"to": "107"}, Deps{})
	assert.Error(t, err)

	var instrs []Instruction
	for _, s := range []string{"remove[packets=map_chunk]", "translate[to=1.9,strict=true]", "squash[latest=spawn_mob](-10)"} {
		in, err := ParseInstruction(s)
		require.NoError(t, err)
		instrs = append(instrs, in)
	}
	p, v, err := Build(instrs, deps)
	require.NoError(t, err)
	assert.Equal(t, protocol.Version(107), v)
	require.Len(t, p.Stages(), 3)
	tf := p.Stages()[1].Filter.(*Translate)
	assert.True(t, tf.Strict)
	assert.Equal(t, protocol.Version(47), tf.From)
	// squash resolved spawn_mob at 107, after translation.
	assert.True(t, p.Stages()[2].Filter.(*Squash).Latest[0x03])
	assert.Equal(t, []string{"neutralizer", "packet_count", "progress", "remove", "remove_mobs", "squash", "timestamp", "translate"}, Names())
}
