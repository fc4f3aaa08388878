package packetlog

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reallyoldfogie/mcpr-studio/protocol"
)

func sampleRecords() []Record {
	return []Record{
		{Time: 0, Data: []byte{0x26, 0x01, 0x02}},
		{Time: 50, Data: []byte{0x00}},
		{Time: 50, Data: []byte{}},
		{Time: 1200, Data: bytes.Repeat([]byte{0x7f}, 300)},
	}
}

func encodeAll(t *testing.T, framing Framing, recs []Record) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := NewEncoder(&buf, EncoderOptions{Framing: framing})
	for _, r := range recs {
		require.NoError(t, enc.Encode(r))
	}
	assert.Equal(t, len(recs), enc.Count())
	return buf.Bytes()
}

func decodeAll(t *testing.T, data []byte, opts DecoderOptions) []Record {
	t.Helper()
	dec := NewDecoder(bytes.NewReader(data), opts)
	var out []Record
	for {
		r, err := dec.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, r)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, framing := range []Framing{FramingReplayMod, FramingVarInt} {
		t.Run(framing.String(), func(t *testing.T) {
			data := encodeAll(t, framing, sampleRecords())
			got := decodeAll(t, data, DecoderOptions{Framing: framing})
			require.Len(t, got, 4)
			for i, want := range sampleRecords() {
				assert.Equal(t, want.Time, got[i].Time)
				assert.Equal(t, protocol.ClientBound, got[i].Direction)
				assert.Equal(t, len(want.Data), len(got[i].Data))
				assert.True(t, bytes.Equal(want.Data, got[i].Data))
			}
			// Re-encoding the decoded stream reproduces it byte for byte.
			assert.Equal(t, data, encodeAll(t, framing, got))
		})
	}
}

func TestReplayModLayout(t *testing.T) {
	data := encodeAll(t, FramingReplayMod, []Record{{Time: 0x0102, Data: []byte{0x26, 0xaa}}})
	assert.Equal(t, []byte{0, 0, 1, 2, 0, 0, 0, 2, 0x26, 0xaa}, data)

	data = encodeAll(t, FramingVarInt, []Record{{Time: 0x0102, Data: []byte{0x26, 0xaa}}})
	assert.Equal(t, []byte{0x06, 0, 0, 1, 2, 0x26, 0xaa}, data)
}

func TestCorruptFrames(t *testing.T) {
	cases := map[string]struct {
		framing Framing
		data    []byte
	}{
		"cut header":         {FramingReplayMod, []byte{0, 0, 0}},
		"length past end":    {FramingReplayMod, []byte{0, 0, 0, 1, 0, 0, 0, 9, 0x26}},
		"negative length":    {FramingReplayMod, []byte{0, 0, 0, 1, 0xff, 0xff, 0xff, 0xff}},
		"oversized":          {FramingReplayMod, []byte{0, 0, 0, 1, 0x7f, 0xff, 0xff, 0xff}},
		"varint cut":         {FramingVarInt, []byte{0x80}},
		"varint too long":    {FramingVarInt, []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}},
		"short frame length": {FramingVarInt, []byte{0x03, 0, 0, 0}},
		"varint past end":    {FramingVarInt, []byte{0x0a, 0, 0, 0, 1, 0x26}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			dec := NewDecoder(bytes.NewReader(tc.data), DecoderOptions{Framing: tc.framing})
			_, err := dec.Next()
			assert.ErrorIs(t, err, ErrCorruptFrame)
			var fe *FrameError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, 0, fe.Index)

			_, again := dec.Next()
			assert.Equal(t, err, again, "errors are sticky")
		})
	}
}

func TestCorruptFrameLocation(t *testing.T) {
	data := encodeAll(t, FramingReplayMod, sampleRecords()[:2])
	data = append(data, 0, 0, 0, 60, 0, 0, 0, 5, 0x01)
	dec := NewDecoder(bytes.NewReader(data), DecoderOptions{})
	for i := 0; i < 2; i++ {
		_, err := dec.Next()
		require.NoError(t, err)
	}
	_, err := dec.Next()
	var fe *FrameError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 2, fe.Index)
	assert.Equal(t, int64(8+3+8+1), fe.Offset)
}

func TestTimestampRegression(t *testing.T) {
	data := encodeAll(t, FramingReplayMod, []Record{
		{Time: 100, Data: []byte{1}},
		{Time: 90, Data: []byte{2}},
		{Time: 120, Data: []byte{3}},
	})

	dec := NewDecoder(bytes.NewReader(data), DecoderOptions{})
	var times []int64
	for {
		r, err := dec.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		times = append(times, r.Time)
	}
	assert.Equal(t, []int64{100, 100, 120}, times)
	assert.Equal(t, 1, dec.Clamped())

	strict := NewDecoder(bytes.NewReader(data), DecoderOptions{Strict: true})
	_, err := strict.Next()
	require.NoError(t, err)
	_, err = strict.Next()
	assert.ErrorIs(t, err, ErrTimestampRegression)
}

func TestEncoderRejects(t *testing.T) {
	enc := NewEncoder(io.Discard, EncoderOptions{})
	assert.ErrorIs(t, enc.Encode(Record{Time: -1}), ErrTimeOutOfRange)
	assert.ErrorIs(t, enc.Encode(Record{Time: 1 << 32}), ErrTimeOutOfRange)
	assert.ErrorIs(t, enc.Encode(Record{Direction: protocol.ServerBound}), ErrDirectionMismatch)
	assert.Zero(t, enc.Count())

	require.NoError(t, enc.Encode(Record{Time: 70}))
	require.NoError(t, enc.Encode(Record{Time: 30}))
	assert.Equal(t, int64(70), enc.Duration())
}

func TestServerBoundStamp(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, EncoderOptions{Direction: protocol.ServerBound})
	require.NoError(t, enc.Encode(Record{Time: 1, Direction: protocol.ServerBound, Data: []byte{0x03}}))
	got := decodeAll(t, buf.Bytes(), DecoderOptions{Direction: protocol.ServerBound})
	require.Len(t, got, 1)
	assert.Equal(t, protocol.ServerBound, got[0].Direction)
	id, err := got[0].PacketID()
	require.NoError(t, err)
	assert.Equal(t, int32(3), id)
}

func TestParseFraming(t *testing.T) {
	f, err := ParseFraming("VarInt")
	require.NoError(t, err)
	assert.Equal(t, FramingVarInt, f)
	f, err = ParseFraming("tmcpr")
	require.NoError(t, err)
	assert.Equal(t, FramingReplayMod, f)
	_, err = ParseFraming("gzip")
	assert.Error(t, err)
}
