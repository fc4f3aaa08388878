// Package nbt reads and writes Named Binary Tag data, the tree-structured
// format Minecraft embeds in packets for items, block entities and world
// state.
//
// Decoding and encoding walk the tree with an explicit frame stack instead of
// recursive calls, so a corrupt or hostile input can exhaust at most the
// configured depth limit, never the goroutine stack.
package nbt

import "fmt"

// TagType identifies the kind of a tag on the wire.
type TagType byte

const (
	TagEnd TagType = iota
	TagByte
	TagShort
	TagInt
	TagLong
	TagFloat
	TagDouble
	TagByteArray
	TagString
	TagList
	TagCompound
	TagIntArray
	TagLongArray
)

var tagNames = [...]string{
	"TAG_End", "TAG_Byte", "TAG_Short", "TAG_Int", "TAG_Long", "TAG_Float", "TAG_Double",
	"TAG_Byte_Array", "TAG_String", "TAG_List", "TAG_Compound", "TAG_Int_Array", "TAG_Long_Array",
}

func (t TagType) String() string {
	if t.Valid() {
		return tagNames[t]
	}
	return fmt.Sprintf("TAG_Unknown(%d)", byte(t))
}

// Valid reports whether t is a known tag type.
func (t TagType) Valid() bool { return t <= TagLongArray }

// Tag is one node of an NBT tree. The set of implementations is closed: the
// scalar and array types below plus *List and *Compound.
type Tag interface {
	Type() TagType
}

type (
	End       struct{}
	Byte      int8
	Short     int16
	Int       int32
	Long      int64
	Float     float32
	Double    float64
	ByteArray []byte
	String    string
	IntArray  []int32
	LongArray []int64
)

func (End) Type() TagType       { return TagEnd }
func (Byte) Type() TagType      { return TagByte }
func (Short) Type() TagType     { return TagShort }
func (Int) Type() TagType       { return TagInt }
func (Long) Type() TagType      { return TagLong }
func (Float) Type() TagType     { return TagFloat }
func (Double) Type() TagType    { return TagDouble }
func (ByteArray) Type() TagType { return TagByteArray }
func (String) Type() TagType    { return TagString }
func (IntArray) Type() TagType  { return TagIntArray }
func (LongArray) Type() TagType { return TagLongArray }

// List is a homogeneous sequence: every item has type Elem. An empty list
// may carry any element type, including TagEnd.
type List struct {
	Elem  TagType
	Items []Tag
}

func (*List) Type() TagType { return TagList }

// Entry is a named child of a Compound.
type Entry struct {
	Name string
	Tag  Tag
}

// Compound is a set of uniquely named children. Entries keep their insertion
// order so that decoding then encoding reproduces the original bytes.
type Compound struct {
	entries []Entry
	index   map[string]int
}

func (*Compound) Type() TagType { return TagCompound }

// NewCompound returns a compound holding the given entries in order. Later
// entries replace earlier ones with the same name.
func NewCompound(entries ...Entry) *Compound {
	c := &Compound{}
	for _, e := range entries {
		c.Set(e.Name, e.Tag)
	}
	return c
}

// Len returns the number of entries.
func (c *Compound) Len() int { return len(c.entries) }

// Entries returns the entries in order. The returned slice must not be
// modified.
func (c *Compound) Entries() []Entry { return c.entries }

// Get returns the child named name.
func (c *Compound) Get(name string) (Tag, bool) {
	i, ok := c.index[name]
	if !ok {
		return nil, false
	}
	return c.entries[i].Tag, true
}

// Set adds or replaces the child named name. A replaced child keeps its
// position.
func (c *Compound) Set(name string, t Tag) {
	if i, ok := c.index[name]; ok {
		c.entries[i].Tag = t
		return
	}
	if c.index == nil {
		c.index = make(map[string]int)
	}
	c.index[name] = len(c.entries)
	c.entries = append(c.entries, Entry{Name: name, Tag: t})
}

// Delete removes the child named name and reports whether it existed.
func (c *Compound) Delete(name string) bool {
	i, ok := c.index[name]
	if !ok {
		return false
	}
	c.entries = append(c.entries[:i], c.entries[i+1:]...)
	delete(c.index, name)
	for j := i; j < len(c.entries); j++ {
		c.index[c.entries[j].Name] = j
	}
	return true
}

// Rename moves the child named from to the name to, keeping its position.
// An existing child named to is removed first. It reports whether from
// existed.
func (c *Compound) Rename(from, to string) bool {
	if from == to {
		_, ok := c.index[from]
		return ok
	}
	if _, ok := c.index[from]; !ok {
		return false
	}
	c.Delete(to)
	i := c.index[from]
	delete(c.index, from)
	c.entries[i].Name = to
	c.index[to] = i
	return true
}

// Root is a top-level tag together with its name. Network NBT since
// protocol 764 omits the name; it is then empty.
type Root struct {
	Name string
	Tag  Tag
}
