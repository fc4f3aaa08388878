package protocol

import (
	"fmt"
	"sort"
)

// VersionSpec declares the packet schemas of one protocol version.
type VersionSpec struct {
	Version Version
	// Inherit starts from the schemas of the closest lower version, so a
	// version only has to list what changed.
	Inherit bool
	// Remove names inherited packets that no longer exist in Version.
	Remove  []string
	Packets []PacketSchema
}

// Builder collects versions, remap tables and NBT migrations and produces an
// immutable Registry.
type Builder struct {
	specs      []VersionSpec
	remaps     []RemapTable
	migrations []NBTMigration
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) AddVersion(vs VersionSpec) *Builder {
	b.specs = append(b.specs, vs)
	return b
}

func (b *Builder) AddRemap(t RemapTable) *Builder {
	b.remaps = append(b.remaps, t)
	return b
}

func (b *Builder) AddNBTMigration(m NBTMigration) *Builder {
	b.migrations = append(b.migrations, m)
	return b
}

type tableKey struct {
	version Version
	packet  string
}

type schemaSet struct {
	byID   [2]map[int32]*PacketSchema
	byName map[string]*PacketSchema
}

func newSchemaSet() *schemaSet {
	return &schemaSet{
		byID:   [2]map[int32]*PacketSchema{{}, {}},
		byName: map[string]*PacketSchema{},
	}
}

func (s *schemaSet) clone() *schemaSet {
	c := newSchemaSet()
	for d := range s.byID {
		for id, ps := range s.byID[d] {
			c.byID[d][id] = ps
		}
	}
	for name, ps := range s.byName {
		c.byName[name] = ps
	}
	return c
}

func (s *schemaSet) remove(ps *PacketSchema) {
	delete(s.byName, ps.Name)
	if s.byID[ps.Direction][ps.ID] == ps {
		delete(s.byID[ps.Direction], ps.ID)
	}
}

// Registry resolves packet schemas by version. It is immutable once built
// and safe for concurrent use.
type Registry struct {
	versions   []Version
	sets       map[Version]*schemaSet
	boundaries []Version
	remaps     map[tableKey][]*RemapTable
	migrations map[tableKey][]NBTMigration
}

// Build validates everything added so far and returns the registry.
func (b *Builder) Build() (*Registry, error) {
	specs := make([]VersionSpec, len(b.specs))
	copy(specs, b.specs)
	sort.SliceStable(specs, func(i, j int) bool { return specs[i].Version < specs[j].Version })

	r := &Registry{
		sets:       make(map[Version]*schemaSet, len(specs)),
		remaps:     map[tableKey][]*RemapTable{},
		migrations: map[tableKey][]NBTMigration{},
	}
	var prev *schemaSet
	for i, vs := range specs {
		if i > 0 && specs[i-1].Version == vs.Version {
			return nil, fmt.Errorf("protocol: version %d declared twice", vs.Version)
		}
		set, err := buildSet(vs, prev)
		if err != nil {
			return nil, err
		}
		r.sets[vs.Version] = set
		r.versions = append(r.versions, vs.Version)
		prev = set
	}

	bounds := map[Version]bool{}
	for _, v := range r.versions {
		bounds[v] = true
	}
	for i := range b.remaps {
		t := b.remaps[i]
		if err := r.checkTable(t.Version, t.Packet, t.Field, t.Path, func(k FieldKind) bool {
			return k.Integer() || k == KindArray || k == KindString || isNBT(k)
		}); err != nil {
			return nil, fmt.Errorf("protocol: remap: %w", err)
		}
		t.inverse = t.invert()
		key := tableKey{t.Version, t.Packet}
		r.remaps[key] = append(r.remaps[key], &t)
		bounds[t.Version] = true
	}
	for _, m := range b.migrations {
		if m.Op != OpRename && m.Op != OpRemove {
			return nil, fmt.Errorf("protocol: nbt migration %s.%s: invalid op %d", m.Packet, m.Field, m.Op)
		}
		if len(m.Path) == 0 {
			return nil, fmt.Errorf("protocol: nbt migration %s.%s: empty path", m.Packet, m.Field)
		}
		if m.Op == OpRename && m.To == "" {
			return nil, fmt.Errorf("protocol: nbt migration %s.%s: rename without target", m.Packet, m.Field)
		}
		if err := r.checkTable(m.Version, m.Packet, m.Field, m.Path, isNBT); err != nil {
			return nil, fmt.Errorf("protocol: nbt migration: %w", err)
		}
		key := tableKey{m.Version, m.Packet}
		r.migrations[key] = append(r.migrations[key], m)
		bounds[m.Version] = true
	}
	for v := range bounds {
		r.boundaries = append(r.boundaries, v)
	}
	sort.Slice(r.boundaries, func(i, j int) bool { return r.boundaries[i] < r.boundaries[j] })
	return r, nil
}

func buildSet(vs VersionSpec, prev *schemaSet) (*schemaSet, error) {
	set := newSchemaSet()
	if vs.Inherit && prev != nil {
		set = prev.clone()
	}
	for _, name := range vs.Remove {
		ps, ok := set.byName[name]
		if !ok {
			return nil, fmt.Errorf("protocol: version %d removes unknown packet %q", vs.Version, name)
		}
		set.remove(ps)
	}
	declared := map[string]bool{}
	declaredID := [2]map[int32]bool{{}, {}}
	for i := range vs.Packets {
		ps := vs.Packets[i]
		ps.Version = vs.Version
		if ps.Direction != ClientBound && ps.Direction != ServerBound {
			return nil, fmt.Errorf("protocol: %s: invalid direction", ps.String())
		}
		if err := ps.validate(); err != nil {
			return nil, err
		}
		if declared[ps.Name] {
			return nil, fmt.Errorf("protocol: version %d declares %q twice", vs.Version, ps.Name)
		}
		if declaredID[ps.Direction][ps.ID] {
			return nil, fmt.Errorf("protocol: version %d declares %s id 0x%02x twice", vs.Version, ps.Direction, ps.ID)
		}
		declared[ps.Name] = true
		declaredID[ps.Direction][ps.ID] = true
		// A redeclared packet replaces its inherited schema, and takes its id
		// from whatever inherited packet used it before.
		if old, ok := set.byName[ps.Name]; ok {
			set.remove(old)
		}
		if old, ok := set.byID[ps.Direction][ps.ID]; ok {
			set.remove(old)
		}
		p := &ps
		set.byName[ps.Name] = p
		set.byID[ps.Direction][ps.ID] = p
	}
	return set, nil
}

func (r *Registry) checkTable(v Version, packet, field string, path []string, kindOK func(FieldKind) bool) error {
	set, _, err := r.set(v)
	if err != nil {
		return fmt.Errorf("%s.%s@%d: %w", packet, field, v, err)
	}
	ps, ok := set.byName[packet]
	if !ok {
		return fmt.Errorf("%s@%d: %w", packet, v, ErrUnknownPacketType)
	}
	i, ok := ps.Field(field)
	if !ok {
		return fmt.Errorf("%s has no field %q", ps, field)
	}
	k := ps.Fields[i].Kind
	if !kindOK(k) {
		return fmt.Errorf("%w: %s.%s is %s", ErrIncompatibleKind, packet, field, k)
	}
	if isNBT(k) && len(path) == 0 {
		return fmt.Errorf("%s.%s: nbt field needs a path", packet, field)
	}
	return nil
}

func (r *Registry) set(v Version) (*schemaSet, Version, error) {
	known, err := r.ClosestKnownVersion(v)
	if err != nil {
		return nil, 0, err
	}
	return r.sets[known], known, nil
}

// ClosestKnownVersion returns the newest version at or below v that has
// schemas registered.
func (r *Registry) ClosestKnownVersion(v Version) (Version, error) {
	i := sort.Search(len(r.versions), func(i int) bool { return r.versions[i] > v })
	if i == 0 {
		return 0, fmt.Errorf("%w %d", ErrUnknownVersion, v)
	}
	return r.versions[i-1], nil
}

// Versions returns the versions with declared schemas in ascending order.
func (r *Registry) Versions() []Version {
	out := make([]Version, len(r.versions))
	copy(out, r.versions)
	return out
}

// Lookup resolves the schema of packet id sent in direction dir under v.
func (r *Registry) Lookup(v Version, id int32, dir Direction) (*PacketSchema, error) {
	set, known, err := r.set(v)
	if err != nil {
		return nil, err
	}
	if dir != ClientBound && dir != ServerBound {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPacketType, dir)
	}
	ps, ok := set.byID[dir][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s id 0x%02x@%d", ErrUnknownPacketType, dir, id, known)
	}
	return ps, nil
}

// ByName resolves the schema named name under v. It fails with
// ErrUnknownPacketType when the packet does not exist in that version or
// travels in the other direction.
func (r *Registry) ByName(v Version, dir Direction, name string) (*PacketSchema, error) {
	set, known, err := r.set(v)
	if err != nil {
		return nil, err
	}
	ps, ok := set.byName[name]
	if !ok || ps.Direction != dir {
		return nil, fmt.Errorf("%w: %s %s@%d", ErrUnknownPacketType, dir, name, known)
	}
	return ps, nil
}

// Boundaries returns the versions strictly after from up to and including to
// at which schemas, remaps or migrations change, in the order a translation
// from from to to crosses them: ascending when upgrading, descending when
// downgrading. When downgrading the range is (to, from].
func (r *Registry) Boundaries(from, to Version) []Version {
	var out []Version
	if from < to {
		for _, b := range r.boundaries {
			if b > from && b <= to {
				out = append(out, b)
			}
		}
		return out
	}
	for i := len(r.boundaries) - 1; i >= 0; i-- {
		if b := r.boundaries[i]; b > to && b <= from {
			out = append(out, b)
		}
	}
	return out
}

// PacketBoundaries is Boundaries restricted to the versions that change the
// packet named name: its schema differs from the one in force just below, or
// the version declares remaps or migrations for it.
func (r *Registry) PacketBoundaries(from, to Version, name string) []Version {
	var out []Version
	for _, b := range r.Boundaries(from, to) {
		if r.changes(b, name) {
			out = append(out, b)
		}
	}
	return out
}

func (r *Registry) changes(b Version, name string) bool {
	key := tableKey{b, name}
	if len(r.remaps[key]) > 0 || len(r.migrations[key]) > 0 {
		return true
	}
	cur, _, err := r.set(b)
	if err != nil {
		return true
	}
	// Inherited schemas are shared, so an unchanged packet keeps its pointer.
	var below *PacketSchema
	if prev, _, err := r.set(b - 1); err == nil {
		below = prev.byName[name]
	}
	return below != cur.byName[name]
}

// Remaps returns the remap tables of packet at boundary v in declaration
// order. The tables are shared and must not be modified.
func (r *Registry) Remaps(v Version, packet string) []*RemapTable {
	return r.remaps[tableKey{v, packet}]
}

// Migrations returns the NBT migrations of packet at boundary v in
// declaration order.
func (r *Registry) Migrations(v Version, packet string) []NBTMigration {
	return r.migrations[tableKey{v, packet}]
}
