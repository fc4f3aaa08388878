package filter

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/reallyoldfogie/mcpr-studio/mcpr/packetlog"
	"github.com/reallyoldfogie/mcpr-studio/protocol"
)

// Lifecycle names the packets that create and remove entities, teams and
// scoreboard objectives, and the fields that identify what they act on.
// Names refer to the loaded protocol data; packets a version lacks are
// ignored.
type Lifecycle struct {
	// Spawn packets create the entity in their Entity field.
	Spawn  []string `mapstructure:"spawn"`
	Entity string   `mapstructure:"entity"`
	// Destroy removes the entities listed in its Entities array field.
	Destroy  string `mapstructure:"destroy"`
	Entities string `mapstructure:"entities"`
	// Team and Objective packets carry a Name and a Mode; CreateMode and
	// RemoveMode are the mode values that create and remove them.
	Team       string `mapstructure:"team"`
	Objective  string `mapstructure:"objective"`
	Name       string `mapstructure:"name"`
	Mode       string `mapstructure:"mode"`
	CreateMode int64  `mapstructure:"create_mode"`
	RemoveMode int64  `mapstructure:"remove_mode"`
}

var defaultSpawns = []string{"spawn_object", "spawn_experience_orb", "spawn_global_entity", "spawn_mob", "spawn_player"}

// DefaultLifecycle uses the usual packet and field names of protocol data
// files.
func DefaultLifecycle() Lifecycle {
	return Lifecycle{
		Spawn:      append([]string(nil), defaultSpawns...),
		Entity:     "entity",
		Destroy:    "destroy_entities",
		Entities:   "entities",
		Team:       "teams",
		Objective:  "scoreboard_objective",
		Name:       "name",
		Mode:       "mode",
		CreateMode: 0,
		RemoveMode: 1,
	}
}

type role uint8

const (
	roleNone role = iota
	roleSpawn
	roleDestroy
	roleTeam
	roleObjective
)

// lifecycleEvent is what one record does to the things a Lifecycle tracks.
type lifecycleEvent struct {
	role   role
	packet *protocol.Packet
	// entity is set when the packet has an entity field.
	entity    int64
	hasEntity bool
	// ids are the entities a destroy packet removes.
	ids []int64
	// name and mode of a team or objective packet.
	name string
	mode int64
}

// lifecycleReader decodes the records that matter to a Lifecycle.
type lifecycleReader struct {
	Lifecycle
	reg     *protocol.Registry
	version protocol.Version
	roles   map[string]role
	logger  zerolog.Logger
}

func newLifecycleReader(reg *protocol.Registry, v protocol.Version, l Lifecycle, logger zerolog.Logger) (*lifecycleReader, error) {
	if reg == nil {
		return nil, errors.New("no protocol data loaded")
	}
	if l.Entity == "" {
		return nil, errors.New("no entity field")
	}
	r := &lifecycleReader{Lifecycle: l, reg: reg, version: v, roles: map[string]role{}, logger: logger}
	for _, name := range l.Spawn {
		r.roles[name] = roleSpawn
	}
	for _, e := range []struct {
		name string
		role role
	}{{l.Destroy, roleDestroy}, {l.Team, roleTeam}, {l.Objective, roleObjective}} {
		if e.name == "" {
			continue
		}
		if _, dup := r.roles[e.name]; dup {
			return nil, fmt.Errorf("packet %q has two roles", e.name)
		}
		r.roles[e.name] = e.role
	}
	return r, nil
}

// read classifies rec. Records without a schema, or whose schema fails to
// decode them, have no role and no entity.
func (r *lifecycleReader) read(rec packetlog.Record) (lifecycleEvent, error) {
	id, err := rec.PacketID()
	if err != nil {
		return lifecycleEvent{}, err
	}
	s, err := r.reg.Lookup(r.version, id, rec.Direction)
	if err != nil {
		return lifecycleEvent{}, nil
	}
	ro := r.roles[s.Name]
	if _, ok := s.Field(r.Entity); ro == roleNone && !ok {
		return lifecycleEvent{}, nil
	}
	p, err := protocol.Decode(s, rec.Data)
	if err != nil {
		r.logger.Debug().Err(err).Str("packet", s.Name).Int64("time_ms", rec.Time).Msg("undecodable packet left alone")
		return lifecycleEvent{}, nil
	}
	ev := lifecycleEvent{role: ro, packet: p}
	if v, ok := p.Get(r.Entity); ok && v.Kind.Integer() {
		ev.entity, ev.hasEntity = v.Int, true
	}
	switch ro {
	case roleSpawn:
		if !ev.hasEntity {
			ev.role = roleNone
		}
	case roleDestroy:
		if v, ok := p.Get(r.Entities); ok {
			ev.ids = v.Array
		}
	case roleTeam, roleObjective:
		if v, ok := p.Get(r.Name); ok {
			ev.name = v.Str
		}
		if v, ok := p.Get(r.Mode); ok {
			ev.mode = v.Int
		}
	}
	return ev, nil
}

// blank returns a packet of schema s holding each field's default, or the
// zero value where there is none. Protocol data usually declares the
// mode-dependent tail of team and objective packets as a rest field, which
// stays empty.
func blank(s *protocol.PacketSchema) *protocol.Packet {
	p := &protocol.Packet{Schema: s, Values: make([]protocol.Value, len(s.Fields))}
	for i, f := range s.Fields {
		if f.Default != nil {
			p.Values[i] = f.Default.Clone()
		} else {
			p.Values[i] = protocol.Value{Kind: f.Kind}
		}
	}
	return p
}

func (r *lifecycleReader) destroy(ids []int64) ([]byte, error) {
	s, err := r.reg.ByName(r.version, protocol.ClientBound, r.Destroy)
	if err != nil {
		return nil, err
	}
	p := blank(s)
	v, ok := p.Get(r.Entities)
	if !ok || v.Kind != protocol.KindArray {
		return nil, fmt.Errorf("%s has no array field %q", s, r.Entities)
	}
	v.Array = ids
	return protocol.Encode(p)
}

func (r *lifecycleReader) remove(packet, name string) ([]byte, error) {
	s, err := r.reg.ByName(r.version, protocol.ClientBound, packet)
	if err != nil {
		return nil, err
	}
	p := blank(s)
	n, ok := p.Get(r.Name)
	if !ok || n.Kind != protocol.KindString {
		return nil, fmt.Errorf("%s has no string field %q", s, r.Name)
	}
	n.Str = name
	m, ok := p.Get(r.Mode)
	if !ok || !m.Kind.Integer() {
		return nil, fmt.Errorf("%s has no integer field %q", s, r.Mode)
	}
	m.Int = r.RemoveMode
	return protocol.Encode(p)
}

// Neutralizer passes records through and, when its window ends, emits the
// packets that remove every entity, team and scoreboard objective the
// window left behind. Appending a part of a replay to another then does not
// leak state into it.
type Neutralizer struct {
	r          *lifecycleReader
	entities   map[int64]bool
	teams      map[string]bool
	objectives map[string]bool
}

func NewNeutralizer(reg *protocol.Registry, v protocol.Version, l Lifecycle, logger zerolog.Logger) (*Neutralizer, error) {
	r, err := newLifecycleReader(reg, v, l, logger)
	if err != nil {
		return nil, err
	}
	f := &Neutralizer{r: r}
	f.Start()
	return f, nil
}

func (*Neutralizer) Name() string { return "neutralizer" }

func (f *Neutralizer) Start() error {
	f.entities = map[int64]bool{}
	f.teams = map[string]bool{}
	f.objectives = map[string]bool{}
	return nil
}

func (f *Neutralizer) Record(rec packetlog.Record, emit Emitter) error {
	ev, err := f.r.read(rec)
	if err != nil {
		return err
	}
	switch ev.role {
	case roleSpawn:
		f.entities[ev.entity] = true
	case roleDestroy:
		for _, id := range ev.ids {
			delete(f.entities, id)
		}
	case roleTeam:
		track(f.teams, ev, f.r.RemoveMode)
	case roleObjective:
		track(f.objectives, ev, f.r.RemoveMode)
	}
	return emit(rec)
}

func track(open map[string]bool, ev lifecycleEvent, removeMode int64) {
	if ev.mode == removeMode {
		delete(open, ev.name)
	} else {
		open[ev.name] = true
	}
}

func (f *Neutralizer) End(at int64, emit Emitter) error {
	out := func(data []byte, err error) error {
		if err != nil {
			return err
		}
		return emit(packetlog.Record{Time: at, Direction: protocol.ClientBound, Data: data})
	}
	if len(f.entities) > 0 {
		ids := make([]int64, 0, len(f.entities))
		for id := range f.entities {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		if err := out(f.r.destroy(ids)); err != nil {
			return err
		}
	}
	for _, name := range sortedNames(f.teams) {
		if err := out(f.r.remove(f.r.Team, name)); err != nil {
			return err
		}
	}
	for _, name := range sortedNames(f.objectives) {
		if err := out(f.r.remove(f.r.Objective, name)); err != nil {
			return err
		}
	}
	return nil
}

// Open returns how many entities, teams and objectives are currently open.
func (f *Neutralizer) Open() (entities, teams, objectives int) {
	return len(f.entities), len(f.teams), len(f.objectives)
}

func sortedNames(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// RemoveMobs drops the spawns of mobs whose type is in Types and every
// later record about those entities. Destroy packets lose the ids of
// removed mobs, and vanish when nothing else is left in them.
type RemoveMobs struct {
	Types     map[int64]bool
	typeField string
	r         *lifecycleReader
	removed   map[int64]bool
	dropped   int
}

// NewRemoveMobs matches the spawn packets of l whose typeField holds one of
// types.
func NewRemoveMobs(reg *protocol.Registry, v protocol.Version, l Lifecycle, typeField string, types []int64, logger zerolog.Logger) (*RemoveMobs, error) {
	r, err := newLifecycleReader(reg, v, l, logger)
	if err != nil {
		return nil, err
	}
	f := &RemoveMobs{Types: make(map[int64]bool, len(types)), typeField: typeField, r: r, removed: map[int64]bool{}}
	for _, t := range types {
		f.Types[t] = true
	}
	return f, nil
}

func (*RemoveMobs) Name() string { return "remove_mobs" }

func (f *RemoveMobs) Start() error {
	f.removed = map[int64]bool{}
	return nil
}

func (f *RemoveMobs) Record(rec packetlog.Record, emit Emitter) error {
	ev, err := f.r.read(rec)
	if err != nil {
		return err
	}
	switch {
	case ev.role == roleSpawn:
		if t, ok := ev.packet.Get(f.typeField); ok && t.Kind.Integer() && f.Types[t.Int] {
			f.removed[ev.entity] = true
		}
	case ev.role == roleDestroy:
		return f.destroy(rec, ev, emit)
	}
	if ev.hasEntity && f.removed[ev.entity] {
		f.dropped++
		return nil
	}
	return emit(rec)
}

func (f *RemoveMobs) destroy(rec packetlog.Record, ev lifecycleEvent, emit Emitter) error {
	keep := make([]int64, 0, len(ev.ids))
	for _, id := range ev.ids {
		if f.removed[id] {
			delete(f.removed, id)
			continue
		}
		keep = append(keep, id)
	}
	switch {
	case len(keep) == len(ev.ids):
		return emit(rec)
	case len(keep) == 0:
		f.dropped++
		return nil
	}
	v, _ := ev.packet.Get(f.r.Entities)
	v.Array = keep
	data, err := protocol.Encode(ev.packet)
	if err != nil {
		return err
	}
	rec.Data = data
	return emit(rec)
}

func (*RemoveMobs) End(int64, Emitter) error { return nil }

// Dropped is the number of records dropped so far.
func (f *RemoveMobs) Dropped() int { return f.dropped }
