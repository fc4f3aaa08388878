package adapters

import (
	"errors"
	"io"
	"path/filepath"
	"testing"

	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reallyoldfogie/mcpr-studio/mcpr"
	"github.com/reallyoldfogie/mcpr-studio/mcpr/packetlog"
	"github.com/reallyoldfogie/mcpr-studio/mcpr/recorder"
	"github.com/reallyoldfogie/mcpr-studio/protocol"
)

func TestRecordConversion(t *testing.T) {
	p := pk.Packet{ID: 0x300, Data: []byte{1, 2}}
	rec := ToRecord(p, 40, protocol.ClientBound)
	assert.Equal(t, []byte{0x80, 0x06, 1, 2}, rec.Data)
	assert.Equal(t, int64(40), rec.Time)

	back, err := FromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, p.ID, back.ID)
	assert.Equal(t, p.Data, back.Data)

	_, err = FromRecord(packetlog.Record{Data: []byte{0x80}})
	assert.Error(t, err)
}

func TestPacketFunc(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.mcpr")
	rec, err := recorder.NewFile(path, mcpr.Meta{Protocol: 763})
	require.NoError(t, err)

	nop := zerolog.Nop()
	handle := PacketFunc(rec, &nop)
	buf := []byte{9, 9}
	require.NoError(t, handle(pk.Packet{ID: 0x24, Data: buf}))
	buf[0] = 0 // upstream buffer reuse must not reach the replay
	require.NoError(t, handle(pk.Packet{ID: 0x25}))
	require.NoError(t, rec.Close())

	r, err := mcpr.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	pr, err := r.Packets(packetlog.DecoderOptions{})
	require.NoError(t, err)
	defer pr.Close()

	var got [][]byte
	for {
		rec, err := pr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, rec.Data)
	}
	assert.Equal(t, [][]byte{{0x24, 9, 9}, {0x25}}, got)
}
