package filter

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/reallyoldfogie/mcpr-studio/mcpr/packetlog"
	"github.com/reallyoldfogie/mcpr-studio/protocol"
)

// Timestamp shifts records by Offset milliseconds, clamping at zero.
type Timestamp struct {
	Offset int64
}

func (*Timestamp) Name() string { return "timestamp" }
func (*Timestamp) Start() error { return nil }

func (f *Timestamp) Record(rec packetlog.Record, emit Emitter) error {
	rec.Time += f.Offset
	if rec.Time < 0 {
		rec.Time = 0
	}
	return emit(rec)
}

func (*Timestamp) End(int64, Emitter) error { return nil }

// Remove drops records whose packet id is in IDs.
type Remove struct {
	IDs     map[int32]bool
	removed int
}

func NewRemove(ids ...int32) *Remove {
	f := &Remove{IDs: make(map[int32]bool, len(ids))}
	for _, id := range ids {
		f.IDs[id] = true
	}
	return f
}

func (*Remove) Name() string { return "remove" }
func (*Remove) Start() error { return nil }

func (f *Remove) Record(rec packetlog.Record, emit Emitter) error {
	id, err := rec.PacketID()
	if err != nil {
		return err
	}
	if f.IDs[id] {
		f.removed++
		return nil
	}
	return emit(rec)
}

func (*Remove) End(int64, Emitter) error { return nil }

// Removed is the number of records dropped so far.
func (f *Remove) Removed() int { return f.removed }

// PacketCount counts records per packet id and logs a summary, most
// frequent first, when its window ends.
type PacketCount struct {
	namer  func(int32) string
	logger zerolog.Logger
	counts map[int32]int
}

// NewPacketCount returns a counter. namer may be nil.
func NewPacketCount(namer func(int32) string, logger zerolog.Logger) *PacketCount {
	if namer == nil {
		namer = hexID
	}
	return &PacketCount{namer: namer, logger: logger, counts: map[int32]int{}}
}

func hexID(id int32) string { return fmt.Sprintf("0x%02x", id) }

func (*PacketCount) Name() string { return "packet_count" }

func (f *PacketCount) Start() error {
	f.counts = map[int32]int{}
	return nil
}

func (f *PacketCount) Record(rec packetlog.Record, emit Emitter) error {
	id, err := rec.PacketID()
	if err != nil {
		return err
	}
	f.counts[id]++
	return emit(rec)
}

func (f *PacketCount) End(at int64, _ Emitter) error {
	for _, c := range f.Counts() {
		f.logger.Info().Int("count", c.Count).Str("packet", c.Name).Int32("id", c.ID).Msg("packet count")
	}
	return nil
}

// Count is the number of records seen for one packet id.
type Count struct {
	ID    int32
	Name  string
	Count int
}

// Counts returns the counts sorted by descending count, then id.
func (f *PacketCount) Counts() []Count {
	out := make([]Count, 0, len(f.counts))
	for id, n := range f.counts {
		out = append(out, Count{ID: id, Name: f.namer(id), Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Squash collapses its window into a single instant: every record it holds
// is re-emitted at the end of the window, and for the ids in Latest only the
// last occurrence survives. Use it to skip ahead in a replay while keeping
// the state the skipped packets built up.
//
// With a Lifecycle attached, entities, teams and objectives that are both
// created and removed inside the window disappear from the output together
// with every record about them.
type Squash struct {
	Latest map[int32]bool
	held   []heldRecord
	last   map[int32]int
	life   *lifecycleReader
	// born maps what was created in the window to its held records.
	born map[lifeKey][]int
}

type heldRecord struct {
	rec  packetlog.Record
	dead bool
}

type lifeKey struct {
	role   role
	entity int64
	name   string
}

func NewSquash(latest ...int32) *Squash {
	f := &Squash{Latest: make(map[int32]bool, len(latest))}
	for _, id := range latest {
		f.Latest[id] = true
	}
	return f
}

// WithLifecycle makes f merge the lifecycles l describes, reading records
// as protocol v.
func (f *Squash) WithLifecycle(reg *protocol.Registry, v protocol.Version, l Lifecycle, logger zerolog.Logger) (*Squash, error) {
	r, err := newLifecycleReader(reg, v, l, logger)
	if err != nil {
		return nil, err
	}
	f.life = r
	return f, nil
}

func (*Squash) Name() string { return "squash" }

func (f *Squash) Start() error {
	f.held = f.held[:0]
	f.last = map[int32]int{}
	f.born = map[lifeKey][]int{}
	return nil
}

func (f *Squash) Record(rec packetlog.Record, _ Emitter) error {
	id, err := rec.PacketID()
	if err != nil {
		return err
	}
	var key *lifeKey
	if f.life != nil {
		ev, err := f.life.read(rec)
		if err != nil {
			return err
		}
		k, keep := f.merge(ev)
		if !keep {
			return nil
		}
		key = k
	}
	if f.Latest[id] {
		if i, ok := f.last[id]; ok {
			f.held[i].dead = true
		}
		f.last[id] = len(f.held)
	}
	if key != nil {
		f.born[*key] = append(f.born[*key], len(f.held))
	}
	f.held = append(f.held, heldRecord{rec: rec})
	return nil
}

// merge applies ev to what the window created. It returns the key of the
// thing the record belongs to when that was created in the window, and
// whether the record is still needed.
func (f *Squash) merge(ev lifecycleEvent) (*lifeKey, bool) {
	switch ev.role {
	case roleSpawn:
		k := lifeKey{role: roleSpawn, entity: ev.entity}
		if _, ok := f.born[k]; !ok {
			f.born[k] = nil
		}
		return &k, true
	case roleDestroy:
		survivors := false
		for _, id := range ev.ids {
			k := lifeKey{role: roleSpawn, entity: id}
			if idx, ok := f.born[k]; ok {
				f.kill(idx)
				delete(f.born, k)
			} else {
				survivors = true
			}
		}
		return nil, survivors
	case roleTeam, roleObjective:
		k := lifeKey{role: ev.role, name: ev.name}
		idx, born := f.born[k]
		switch {
		case ev.mode == f.life.CreateMode:
			if !born {
				f.born[k] = nil
			}
			return &k, true
		case ev.mode == f.life.RemoveMode && born:
			f.kill(idx)
			delete(f.born, k)
			return nil, false
		case born:
			return &k, true
		}
		return nil, true
	}
	if ev.hasEntity {
		k := lifeKey{role: roleSpawn, entity: ev.entity}
		if _, born := f.born[k]; born {
			return &k, true
		}
	}
	return nil, true
}

func (f *Squash) kill(idx []int) {
	for _, i := range idx {
		f.held[i].dead = true
	}
}

func (f *Squash) End(at int64, emit Emitter) error {
	held := f.held
	f.held = nil
	f.born = map[lifeKey][]int{}
	for _, h := range held {
		if h.dead {
			continue
		}
		h.rec.Time = at
		if err := emit(h.rec); err != nil {
			return err
		}
	}
	return nil
}

// Progress logs how far the stream has got every Every records.
type Progress struct {
	Every int
	// Total is the expected duration in ms; when set, progress is also
	// logged as a percentage.
	Total  int64
	logger zerolog.Logger
	n      int
}

func NewProgress(every int, total int64, logger zerolog.Logger) *Progress {
	if every <= 0 {
		every = 10000
	}
	return &Progress{Every: every, Total: total, logger: logger}
}

func (*Progress) Name() string { return "progress" }

func (f *Progress) Start() error {
	f.n = 0
	return nil
}

func (f *Progress) Record(rec packetlog.Record, emit Emitter) error {
	f.n++
	if f.n%f.Every == 0 {
		ev := f.logger.Info().Int("records", f.n).Int64("time_ms", rec.Time)
		if f.Total > 0 {
			ev = ev.Float64("percent", float64(rec.Time)*100/float64(f.Total))
		}
		ev.Msg("progress")
	}
	return emit(rec)
}

func (f *Progress) End(at int64, _ Emitter) error {
	f.logger.Info().Int("records", f.n).Int64("time_ms", at).Msg("done")
	return nil
}
