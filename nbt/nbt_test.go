package nbt

import (
	"bytes"
	"math"
	"testing"

	gonbt "github.com/Tnze/go-mc/nbt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reallyoldfogie/mcpr-studio/wire"
)

func sampleTree() *Compound {
	inner := NewCompound(
		Entry{"id", String("minecraft:diamond_sword")},
		Entry{"Count", Byte(1)},
		Entry{"Damage", Short(-3)},
	)
	return NewCompound(
		Entry{"byte", Byte(-7)},
		Entry{"short", Short(1234)},
		Entry{"int", Int(-100000)},
		Entry{"long", Long(math.MaxInt64)},
		Entry{"float", Float(0.5)},
		Entry{"double", Double(math.Pi)},
		Entry{"bytes", ByteArray{0, 1, 2, 255}},
		Entry{"string", String("zwölf \x00 🎮")},
		Entry{"items", &List{Elem: TagCompound, Items: []Tag{inner, NewCompound()}}},
		Entry{"empty", &List{Elem: TagEnd}},
		Entry{"nested", &List{Elem: TagList, Items: []Tag{
			&List{Elem: TagInt, Items: []Tag{Int(1), Int(2)}},
			&List{Elem: TagString},
		}}},
		Entry{"ints", IntArray{1, -1, math.MaxInt32}},
		Entry{"longs", LongArray{math.MinInt64, 0}},
	)
}

func TestRoundTrip(t *testing.T) {
	for _, opts := range []Options{{}, {Nameless: true}} {
		root := Root{Tag: sampleTree()}
		if !opts.Nameless {
			root.Name = "Level"
		}
		enc, err := Encode(root, opts)
		require.NoError(t, err)

		got, n, err := Decode(enc, opts)
		require.NoError(t, err)
		assert.Equal(t, len(enc), n)
		assert.Equal(t, root.Name, got.Name)
		assert.True(t, Equal(root.Tag, got.Tag), "decoded tree differs")

		again, err := Encode(got, opts)
		require.NoError(t, err)
		assert.Equal(t, enc, again)
	}
}

func TestDecodeHelloWorld(t *testing.T) {
	data := []byte{
		0x0a, 0x00, 0x0b, 'h', 'e', 'l', 'l', 'o', ' ', 'w', 'o', 'r', 'l', 'd',
		0x08, 0x00, 0x04, 'n', 'a', 'm', 'e', 0x00, 0x09, 'B', 'a', 'n', 'a', 'n', 'r', 'a', 'm', 'a',
		0x00,
		0xff, // trailing byte, not consumed
	}
	root, n, err := Decode(data, Options{})
	require.NoError(t, err)
	assert.Equal(t, len(data)-1, n)
	assert.Equal(t, "hello world", root.Name)
	c := root.Tag.(*Compound)
	v, ok := c.Get("name")
	require.True(t, ok)
	assert.Equal(t, String("Bananrama"), v)
}

func TestDecodeEmptyRoot(t *testing.T) {
	root, n, err := Decode([]byte{0x00, 0x42}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, End{}, root.Tag)

	enc, err := Encode(root, Options{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, enc)
}

func TestDecodeErrors(t *testing.T) {
	_, _, err := Decode([]byte{0x0d}, Options{})
	assert.ErrorIs(t, err, ErrUnknownTagType)

	_, _, err = Decode([]byte{0x0a, 0x00, 0x00, 0x0f, 0x00, 0x00}, Options{})
	assert.ErrorIs(t, err, ErrUnknownTagType)

	_, _, err = Decode([]byte{0x0a, 0x00, 0x00, 0x03, 0x00, 0x01, 'a', 0x00}, Options{})
	assert.ErrorIs(t, err, wire.ErrTruncatedInput)

	_, _, err = Decode([]byte{0x07, 0x00, 0x00, 0x7f, 0xff, 0xff, 0xff}, Options{})
	assert.ErrorIs(t, err, wire.ErrTruncatedInput)

	dup := []byte{0x0a, 0x00, 0x00,
		0x01, 0x00, 0x01, 'a', 0x01,
		0x01, 0x00, 0x01, 'a', 0x02,
		0x00}
	_, _, err = Decode(dup, Options{})
	assert.ErrorIs(t, err, wire.ErrInvalidEncoding)
}

func nestedLists(depth int) []byte {
	buf := []byte{byte(TagList), 0x00, 0x00}
	for i := 0; i < depth-1; i++ {
		buf = append(buf, byte(TagList), 0, 0, 0, 1)
	}
	return append(buf, byte(TagEnd), 0, 0, 0, 0)
}

func TestDepthLimit(t *testing.T) {
	data := nestedLists(600)

	_, _, err := Decode(data, Options{})
	assert.ErrorIs(t, err, ErrDepthExceeded)

	root, n, err := Decode(data, Options{MaxDepth: 1000})
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	_, err = Encode(root, Options{})
	assert.ErrorIs(t, err, ErrDepthExceeded)

	enc, err := Encode(root, Options{MaxDepth: 1000})
	require.NoError(t, err)
	assert.Equal(t, data, enc)

	_, _, err = Decode(nestedLists(512), Options{})
	assert.NoError(t, err)
	_, _, err = Decode(nestedLists(513), Options{})
	assert.ErrorIs(t, err, ErrDepthExceeded)
}

func TestEncodeRejectsHeterogeneousList(t *testing.T) {
	l := &List{Elem: TagInt, Items: []Tag{Int(1), String("x")}}
	_, err := Encode(Root{Tag: NewCompound(Entry{"l", l})}, Options{})
	assert.ErrorIs(t, err, wire.ErrInvalidEncoding)

	_, err = Encode(Root{Tag: &List{Elem: TagEnd, Items: []Tag{End{}}}}, Options{})
	assert.ErrorIs(t, err, wire.ErrInvalidEncoding)
}

func TestModifiedUTF8(t *testing.T) {
	enc, err := Encode(Root{Tag: String("a\x00😀")}, Options{Nameless: true})
	require.NoError(t, err)
	assert.Equal(t, []byte{
		byte(TagString), 0x00, 0x09,
		'a', 0xc0, 0x80,
		0xed, 0xa0, 0xbd, 0xed, 0xb8, 0x80,
	}, enc)

	root, _, err := Decode(enc, Options{Nameless: true})
	require.NoError(t, err)
	assert.Equal(t, String("a\x00😀"), root.Tag)

	_, _, err = Decode([]byte{byte(TagString), 0x00, 0x03, 0xed, 0xa0, 0xbd}, Options{Nameless: true})
	assert.ErrorIs(t, err, wire.ErrInvalidEncoding)
}

func TestCompoundOrdering(t *testing.T) {
	c := NewCompound(Entry{"a", Int(1)}, Entry{"b", Int(2)}, Entry{"c", Int(3)})
	c.Set("b", Int(20))
	assert.True(t, c.Rename("a", "z"))
	assert.True(t, c.Delete("c"))
	assert.False(t, c.Delete("c"))
	assert.False(t, c.Rename("missing", "x"))

	var names []string
	for _, e := range c.Entries() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"z", "b"}, names)
	v, _ := c.Get("b")
	assert.Equal(t, Int(20), v)

	c.Set("b2", Int(5))
	assert.True(t, c.Rename("b2", "z"))
	assert.Equal(t, 2, c.Len())
	v, _ = c.Get("z")
	assert.Equal(t, Int(5), v)
}

func TestVisitWildcard(t *testing.T) {
	root := sampleTree()
	var seen []Tag
	err := Visit(root, []string{"items", Wildcard, "id"}, func(c *Compound, key string) error {
		if v, ok := c.Get(key); ok {
			seen = append(seen, v)
			c.Set(key, String("minecraft:stick"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []Tag{String("minecraft:diamond_sword")}, seen)

	items, _ := root.Get("items")
	first := items.(*List).Items[0].(*Compound)
	id, _ := first.Get("id")
	assert.Equal(t, String("minecraft:stick"), id)
}

func TestCloneIsDeep(t *testing.T) {
	orig := sampleTree()
	cp := Clone(orig).(*Compound)
	require.True(t, Equal(orig, cp))

	cp.Set("int", Int(0))
	items, _ := cp.Get("items")
	items.(*List).Items[0].(*Compound).Delete("id")

	v, _ := orig.Get("int")
	assert.Equal(t, Int(-100000), v)
	origItems, _ := orig.Get("items")
	_, ok := origItems.(*List).Items[0].(*Compound).Get("id")
	assert.True(t, ok)
	assert.False(t, Equal(orig, cp))
}

type item struct {
	ID    string `nbt:"id"`
	Count int8   `nbt:"Count"`
}

func TestGoMCInterop(t *testing.T) {
	tag, err := FromValue(item{ID: "minecraft:apple", Count: 3})
	require.NoError(t, err)
	c, ok := tag.(*Compound)
	require.True(t, ok)
	id, _ := c.Get("id")
	assert.Equal(t, String("minecraft:apple"), id)

	var back item
	require.NoError(t, Unmarshal(c, &back))
	assert.Equal(t, item{ID: "minecraft:apple", Count: 3}, back)

	// Bytes produced by go-mc survive our codec unchanged.
	data, err := gonbt.Marshal(item{ID: "minecraft:bread", Count: 64})
	require.NoError(t, err)
	root, _, err := Decode(data, Options{})
	require.NoError(t, err)
	again, err := Encode(root, Options{})
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, again))
}
