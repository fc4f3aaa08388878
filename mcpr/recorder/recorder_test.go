package recorder

import (
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reallyoldfogie/mcpr-studio/mcpr"
	"github.com/reallyoldfogie/mcpr-studio/mcpr/packetlog"
)

func readTimes(t *testing.T, path string) []int64 {
	t.Helper()
	r, err := mcpr.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	pr, err := r.Packets(packetlog.DecoderOptions{Strict: true})
	require.NoError(t, err)
	defer pr.Close()
	var times []int64
	for {
		rec, err := pr.Next()
		if errors.Is(err, io.EOF) {
			return times
		}
		require.NoError(t, err)
		times = append(times, rec.Time)
	}
}

func TestRecorderClock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.mcpr")
	rec, err := NewFile(path, mcpr.Meta{Protocol: 754})
	require.NoError(t, err)

	base := time.Unix(1000, 0)
	rec.start = base
	rec.now = func() time.Time { return base.Add(250 * time.Millisecond) }

	require.NoError(t, rec.RecordNow(0x26, []byte{1}))
	require.NoError(t, rec.RecordAt(100, 0x26, []byte{2})) // late, clamped to 250
	require.NoError(t, rec.RecordAt(900, 0x21, nil))
	rec.SetSelfID(7)
	require.NoError(t, rec.AddPlayer("069a79f4-44e9-4726-a5be-fca90e38aaf5"))
	assert.Equal(t, 3, rec.Count())
	require.NoError(t, rec.Close())

	assert.NoError(t, rec.RecordNow(1, nil), "recording after close is a no-op")
	assert.Equal(t, []int64{250, 250, 900}, readTimes(t, path))
}

func TestRecorderConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent.mcpr")
	rec, err := NewFile(path, mcpr.Meta{Protocol: 754})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				assert.NoError(t, rec.RecordAt(uint32(g*50+i), 0x26, []byte{byte(g)}))
			}
		}(g)
	}
	wg.Wait()
	require.NoError(t, rec.Close())

	times := readTimes(t, path)
	assert.Len(t, times, 400)
}
