package mcpr

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reallyoldfogie/mcpr-studio/mcpr/packetlog"
	"github.com/reallyoldfogie/mcpr-studio/protocol"
)

func writeSample(t *testing.T, path string) {
	t.Helper()
	w, err := Create(path, Meta{Protocol: 754})
	require.NoError(t, err)
	require.NoError(t, w.WritePacket(0, 0x26, []byte{1, 2, 3}))
	require.NoError(t, w.WritePacket(1500, 0x21, nil))
	require.NoError(t, w.WriteRecord(packetlog.Record{Time: 1700, Data: []byte{0x0e, 0xff}}))
	require.NoError(t, w.AddPlayer("069a79f444e94726a5befca90e38aaf5"))
	require.NoError(t, w.AddPlayer("069a79f4-44e9-4726-a5be-fca90e38aaf5"))
	assert.Error(t, w.AddPlayer("steve"))
	w.SetSelfID(42)
	assert.Equal(t, 3, w.Count())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mcpr")
	writeSample(t, path)

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	m := r.Meta()
	assert.Equal(t, 754, m.Protocol)
	assert.Equal(t, "1.16.5", m.MCVersion)
	assert.Equal(t, 1700, m.Duration)
	assert.Equal(t, 42, m.SelfID)
	assert.Equal(t, []string{"069a79f4-44e9-4726-a5be-fca90e38aaf5"}, m.Players)
	assert.Equal(t, "MCPR", m.FileFormat)
	assert.Equal(t, CurrentFileFormatVersion, m.FileFormatVersion)
	assert.Equal(t, []string{MetaEntry, ModsEntry, RecordingEntry, CRCEntry}, r.Entries())

	pr, err := r.Packets(packetlog.DecoderOptions{})
	require.NoError(t, err)
	defer pr.Close()
	var got []packetlog.Record
	for {
		rec, err := pr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, rec)
	}
	require.Len(t, got, 3)
	assert.Equal(t, []byte{0x26, 1, 2, 3}, got[0].Data)
	assert.Equal(t, int64(1500), got[1].Time)
	assert.Equal(t, []byte{0x21}, got[1].Data)
	assert.Equal(t, protocol.ClientBound, got[2].Direction)
}

func TestCreateIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aborted.mcpr")
	w, err := Create(path, Meta{Protocol: 47})
	require.NoError(t, err)
	require.NoError(t, w.WritePacket(0, 1, nil))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "replay visible before Close")

	require.NoError(t, w.Abort())
	assert.ErrorIs(t, w.WritePacket(1, 1, nil), ErrClosed)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteRejectsServerBound(t *testing.T) {
	w, err := NewWriter(io.Discard, Meta{})
	require.NoError(t, err)
	err = w.WriteRecord(packetlog.Record{Direction: protocol.ServerBound, Data: []byte{0}})
	assert.ErrorIs(t, err, packetlog.ErrDirectionMismatch)
}

func TestValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ok.mcpr")
	writeSample(t, path)

	rep, err := Validate(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Packets)
	assert.Equal(t, int64(1700), rep.Duration)
	assert.Empty(t, rep.Warnings)
	assert.NoError(t, ValidateFileQuiet(path))
}

// rawReplay builds an archive by hand so tests can break it.
func rawReplay(t *testing.T, entries map[string][]byte) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{RecordingEntry, MetaEntry, ModsEntry, CRCEntry} {
		data, ok := entries[name]
		if !ok {
			continue
		}
		e, err := zw.Create(name)
		require.NoError(t, err)
		_, err = e.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	path := filepath.Join(t.TempDir(), "raw.mcpr")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestValidateProblems(t *testing.T) {
	meta := []byte(`{"singleplayer":false,"duration":10,"protocol":47,"fileFormat":"MCPR","fileFormatVersion":14}`)
	frame := []byte{0, 0, 0, 20, 0, 0, 0, 1, 0x00}

	path := rawReplay(t, map[string][]byte{RecordingEntry: frame, MetaEntry: meta, CRCEntry: []byte("1")})
	rep, err := Validate(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, rep.Warnings, 3, "%v", rep.Warnings) // mods.json, duration, crc

	path = rawReplay(t, map[string][]byte{RecordingEntry: frame[:6], MetaEntry: meta})
	_, err = Validate(path, zerolog.Nop())
	assert.ErrorIs(t, err, packetlog.ErrCorruptFrame)

	path = rawReplay(t, map[string][]byte{MetaEntry: meta})
	_, err = Validate(path, zerolog.Nop())
	assert.ErrorIs(t, err, ErrMissingEntry)

	path = rawReplay(t, map[string][]byte{RecordingEntry: frame, MetaEntry: []byte("{")})
	assert.Error(t, ValidateFileQuiet(path))
}

func TestNewReaderFromMemory(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, Meta{Protocol: 340})
	require.NoError(t, err)
	require.NoError(t, w.WritePacket(5, 0x1f, []byte{0xaa}))
	require.NoError(t, w.Close())

	r, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, protocol.Version(340), r.Meta().ProtocolVersion())
	size, ok := r.EntrySize(RecordingEntry)
	require.True(t, ok)
	assert.Equal(t, uint64(8+2), size)
}
