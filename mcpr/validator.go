package mcpr

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/reallyoldfogie/mcpr-studio/mcpr/packetlog"
)

// Report summarizes a validated replay.
type Report struct {
	Meta     Meta
	Size     int64
	Packets  int
	Duration int64 // largest packet timestamp, ms
	Warnings []string
}

// ValidateFile performs comprehensive validation of an MCPR file.
// It checks zip integrity, required files, metadata validity and that every
// frame of recording.tmcpr is intact. Warnings go to the global logger.
func ValidateFile(path string) error {
	_, err := Validate(path, log.Logger)
	return err
}

// ValidateFileQuiet is like ValidateFile but suppresses all log output.
// Useful for CLI tools that want to control output formatting.
func ValidateFileQuiet(path string) error {
	_, err := Validate(path, zerolog.Nop())
	return err
}

// Validate checks the replay at path and returns what it found. Problems
// ReplayMod tolerates are reported as warnings; anything that would make the
// replay unreadable is an error.
func Validate(path string, logger zerolog.Logger) (*Report, error) {
	logger = logger.With().Str("file", path).Logger()
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("replay file not found: %w", err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("replay file is empty (0 bytes)")
	}
	r, err := OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	rep := &Report{Meta: r.Meta(), Size: info.Size()}
	warn := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		rep.Warnings = append(rep.Warnings, msg)
		logger.Warn().Msg(msg)
	}

	m := rep.Meta
	if m.FileFormat != "MCPR" {
		warn("unexpected file format: %s", m.FileFormat)
	}
	if m.FileFormatVersion < 1 || m.FileFormatVersion > 15 {
		warn("unusual file format version: %d", m.FileFormatVersion)
	}
	if m.Protocol == 0 {
		warn("protocol version is 0")
	}
	for _, p := range m.Players {
		if _, err := uuid.Parse(p); err != nil {
			warn("player %q is not a UUID", p)
		}
	}
	if _, ok := r.EntrySize(ModsEntry); !ok {
		warn("missing optional file: %s", ModsEntry)
	}

	if err := scanPackets(r, rep, warn); err != nil {
		return rep, err
	}
	if rep.Packets == 0 {
		warn("%s is empty", RecordingEntry)
	}
	if m.Duration == 0 {
		warn("replay duration is 0 ms (very short)")
	} else if int64(m.Duration) < rep.Duration {
		warn("metadata duration %d ms is shorter than the last packet at %d ms", m.Duration, rep.Duration)
	}

	logger.Info().
		Str("mcversion", m.MCVersion).
		Int("protocol", m.Protocol).
		Int("packets", rep.Packets).
		Int64("duration_ms", rep.Duration).
		Int64("bytes", rep.Size).
		Msg("validated replay")
	return rep, nil
}

// scanPackets decodes every frame, checking the cached CRC32 on the way.
func scanPackets(r *Reader, rep *Report, warn func(string, ...any)) error {
	rc, err := r.OpenEntry(RecordingEntry)
	if err != nil {
		return err
	}
	defer rc.Close()
	crc := crc32.NewIEEE()
	dec := packetlog.NewDecoder(io.TeeReader(rc, crc), packetlog.DecoderOptions{})
	for {
		rec, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%s: %w", RecordingEntry, err)
		}
		rep.Packets++
		rep.Duration = rec.Time
	}
	if n := dec.Clamped(); n > 0 {
		warn("%d packets go back in time", n)
	}

	cached, err := r.OpenEntry(CRCEntry)
	if errors.Is(err, ErrMissingEntry) {
		warn("missing cache file: %s", CRCEntry)
		return nil
	}
	if err != nil {
		return err
	}
	defer cached.Close()
	b, err := io.ReadAll(cached)
	if err != nil {
		return fmt.Errorf("read %s: %w", CRCEntry, err)
	}
	want, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 32)
	if err != nil {
		warn("unreadable %s: %q", CRCEntry, b)
		return nil
	}
	if uint32(want) != crc.Sum32() {
		warn("%s says %d, recording hashes to %d", CRCEntry, want, crc.Sum32())
	}
	return nil
}
