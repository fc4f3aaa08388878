package protocol

import (
	"fmt"
	"math"
	"sort"

	"github.com/reallyoldfogie/mcpr-studio/nbt"
)

// RemapTable substitutes the values of one packet field at one version
// boundary. It describes the upgrade direction: a packet moving from the
// version below Version up to Version has IDs[old] replaced by the new value.
// Values missing from the table are left alone; tables are sparse and only
// list values that changed.
type RemapTable struct {
	Version Version
	Packet  string
	Field   string
	// Path selects values inside an NBT field; see nbt.Visit. A final
	// Wildcard segment remaps every value of the selected compounds.
	Path []string
	// IDs remaps integer fields, integer array elements and numeric NBT tags.
	IDs map[int64]int64
	// Names remaps string fields and string NBT tags.
	Names map[string]string

	inverse *RemapTable
}

// Inverse returns the downgrade table. When several old values map to the
// same new value the smallest old value wins, so the inverse is
// deterministic. Tables returned by a Registry have their inverse computed at
// build time.
func (t *RemapTable) Inverse() *RemapTable {
	if t.inverse != nil {
		return t.inverse
	}
	return t.invert()
}

func (t *RemapTable) invert() *RemapTable {
	inv := &RemapTable{
		Version: t.Version,
		Packet:  t.Packet,
		Field:   t.Field,
		Path:    t.Path,
		inverse: t,
	}
	if len(t.IDs) > 0 {
		olds := make([]int64, 0, len(t.IDs))
		for k := range t.IDs {
			olds = append(olds, k)
		}
		sort.Slice(olds, func(i, j int) bool { return olds[i] > olds[j] })
		inv.IDs = make(map[int64]int64, len(olds))
		for _, old := range olds {
			inv.IDs[t.IDs[old]] = old
		}
	}
	if len(t.Names) > 0 {
		olds := make([]string, 0, len(t.Names))
		for k := range t.Names {
			olds = append(olds, k)
		}
		sort.Sort(sort.Reverse(sort.StringSlice(olds)))
		inv.Names = make(map[string]string, len(olds))
		for _, old := range olds {
			inv.Names[t.Names[old]] = old
		}
	}
	return inv
}

// Apply rewrites the table's field of p in place.
func (t *RemapTable) Apply(p *Packet) error {
	v, ok := p.Get(t.Field)
	if !ok {
		return fmt.Errorf("protocol: remap %s.%s@%d: no such field", t.Packet, t.Field, t.Version)
	}
	switch {
	case v.Kind.Integer():
		if n, ok := t.IDs[v.Int]; ok {
			v.Int = n
		}
	case v.Kind == KindArray:
		for i, x := range v.Array {
			if n, ok := t.IDs[x]; ok {
				v.Array[i] = n
			}
		}
	case v.Kind == KindString:
		if s, ok := t.Names[v.Str]; ok {
			v.Str = s
		}
	case isNBT(v.Kind):
		if v.NBT.Tag == nil {
			return nil
		}
		return nbt.Visit(v.NBT.Tag, t.Path, func(c *nbt.Compound, key string) error {
			if key == nbt.Wildcard {
				for _, e := range c.Entries() {
					if err := t.remapTag(c, e.Name); err != nil {
						return err
					}
				}
				return nil
			}
			return t.remapTag(c, key)
		})
	default:
		return fmt.Errorf("%w: cannot remap %s field %s.%s", ErrIncompatibleKind, v.Kind, t.Packet, t.Field)
	}
	return nil
}

func (t *RemapTable) remapTag(c *nbt.Compound, key string) error {
	tag, ok := c.Get(key)
	if !ok {
		return nil
	}
	var out nbt.Tag
	switch x := tag.(type) {
	case nbt.Byte:
		n, err := t.remapInt(int64(x), math.MinInt8, math.MaxInt8)
		out = nbt.Byte(n)
		if err != nil {
			return err
		}
	case nbt.Short:
		n, err := t.remapInt(int64(x), math.MinInt16, math.MaxInt16)
		out = nbt.Short(n)
		if err != nil {
			return err
		}
	case nbt.Int:
		n, err := t.remapInt(int64(x), math.MinInt32, math.MaxInt32)
		out = nbt.Int(n)
		if err != nil {
			return err
		}
	case nbt.Long:
		n, _ := t.remapInt(int64(x), math.MinInt64, math.MaxInt64)
		out = nbt.Long(n)
	case nbt.String:
		s, ok := t.Names[string(x)]
		if !ok {
			return nil
		}
		out = nbt.String(s)
	case nbt.IntArray:
		arr := make(nbt.IntArray, len(x))
		for i, e := range x {
			n, err := t.remapInt(int64(e), math.MinInt32, math.MaxInt32)
			if err != nil {
				return err
			}
			arr[i] = int32(n)
		}
		out = arr
	case nbt.LongArray:
		arr := make(nbt.LongArray, len(x))
		for i, e := range x {
			arr[i], _ = t.remapInt(e, math.MinInt64, math.MaxInt64)
		}
		out = arr
	default:
		return nil
	}
	c.Set(key, out)
	return nil
}

func (t *RemapTable) remapInt(x, lo, hi int64) (int64, error) {
	n, ok := t.IDs[x]
	if !ok {
		return x, nil
	}
	if n < lo || n > hi {
		return x, fmt.Errorf("%w: remapped %d to %d in %s.%s", ErrValueOutOfRange, x, n, t.Packet, t.Field)
	}
	return n, nil
}

// MigrationOp is the kind of change an NBTMigration makes.
type MigrationOp uint8

const (
	OpRename MigrationOp = iota + 1
	OpRemove
)

func (op MigrationOp) String() string {
	switch op {
	case OpRename:
		return "rename"
	case OpRemove:
		return "remove"
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// ParseMigrationOp parses "rename" or "remove".
func ParseMigrationOp(s string) (MigrationOp, error) {
	switch s {
	case "rename":
		return OpRename, nil
	case "remove":
		return OpRemove, nil
	}
	return 0, fmt.Errorf("protocol: unknown nbt migration op %q", s)
}

// NBTMigration is a structural change to the NBT carried in one packet field
// at one version boundary, described in the upgrade direction.
type NBTMigration struct {
	Version Version
	Packet  string
	Field   string
	Op      MigrationOp
	// Path addresses the key to rename or remove; the last segment is the key.
	Path []string
	// To is the new key name for OpRename.
	To string
}

// Inverse returns the downgrade migration. Removals cannot be undone and
// report false.
func (m NBTMigration) Inverse() (NBTMigration, bool) {
	if m.Op != OpRename || len(m.Path) == 0 {
		return NBTMigration{}, false
	}
	last := len(m.Path) - 1
	path := make([]string, len(m.Path))
	copy(path, m.Path)
	path[last] = m.To
	return NBTMigration{
		Version: m.Version,
		Packet:  m.Packet,
		Field:   m.Field,
		Op:      OpRename,
		Path:    path,
		To:      m.Path[last],
	}, true
}

// Apply changes the migration's field of p in place. Paths that do not
// match anything leave the packet unchanged.
func (m NBTMigration) Apply(p *Packet) error {
	v, ok := p.Get(m.Field)
	if !ok {
		return fmt.Errorf("protocol: nbt migration %s.%s@%d: no such field", m.Packet, m.Field, m.Version)
	}
	if !isNBT(v.Kind) {
		return fmt.Errorf("%w: nbt migration on %s field %s.%s", ErrIncompatibleKind, v.Kind, m.Packet, m.Field)
	}
	if v.NBT.Tag == nil {
		return nil
	}
	return nbt.Visit(v.NBT.Tag, m.Path, func(c *nbt.Compound, key string) error {
		switch m.Op {
		case OpRename:
			c.Rename(key, m.To)
		case OpRemove:
			c.Delete(key)
		}
		return nil
	})
}
