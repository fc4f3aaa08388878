package nbt

import (
	"errors"
	"fmt"
	"math"

	"github.com/reallyoldfogie/mcpr-studio/wire"
)

// DefaultMaxDepth bounds container nesting. Vanilla clients reject NBT
// deeper than 512 levels, so legitimate world data always fits.
const DefaultMaxDepth = 512

var (
	// ErrUnknownTagType is returned for a type byte outside TAG_End..TAG_Long_Array.
	ErrUnknownTagType = errors.New("nbt: unknown tag type")
	// ErrDepthExceeded is returned when containers nest deeper than Options.MaxDepth.
	ErrDepthExceeded = errors.New("nbt: depth limit exceeded")
)

// Options controls decoding and encoding.
type Options struct {
	// MaxDepth limits container nesting; zero means DefaultMaxDepth.
	MaxDepth int
	// Nameless omits the root tag name, as network NBT does since 1.20.2.
	Nameless bool
}

func (o Options) maxDepth() int {
	if o.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return o.MaxDepth
}

// frame is one open container on the work stack.
type frame struct {
	compound  *Compound
	list      *List
	remaining int // list items still to read
	next      int // next entry or item to write
}

// Decode reads one root tag from buf and returns it with the number of
// bytes consumed. A lone TAG_End byte decodes to Root{Tag: End{}}, which
// packets use for "no data".
func Decode(buf []byte, opts Options) (Root, int, error) {
	r := wire.NewReader(buf)
	root, err := decodeRoot(r, opts)
	if err != nil {
		return Root{}, 0, err
	}
	return root, r.Offset(), nil
}

// DecodeFrom reads one root tag at the current position of r.
func DecodeFrom(r *wire.Reader, opts Options) (Root, error) {
	return decodeRoot(r, opts)
}

func decodeRoot(r *wire.Reader, opts Options) (Root, error) {
	typ, err := readType(r)
	if err != nil {
		return Root{}, err
	}
	if typ == TagEnd {
		return Root{Tag: End{}}, nil
	}
	var root Root
	if !opts.Nameless {
		if root.Name, err = readString(r); err != nil {
			return Root{}, err
		}
	}

	d := decoder{r: r, max: opts.maxDepth()}
	if root.Tag, err = d.begin(typ); err != nil {
		return Root{}, err
	}
	for len(d.stack) > 0 {
		top := &d.stack[len(d.stack)-1]
		if top.compound != nil {
			typ, err := readType(r)
			if err != nil {
				return Root{}, err
			}
			if typ == TagEnd {
				d.stack = d.stack[:len(d.stack)-1]
				continue
			}
			name, err := readString(r)
			if err != nil {
				return Root{}, err
			}
			c := top.compound
			if _, dup := c.Get(name); dup {
				return Root{}, fmt.Errorf("%w: duplicate compound key %q", wire.ErrInvalidEncoding, name)
			}
			child, err := d.begin(typ)
			if err != nil {
				return Root{}, fmt.Errorf("%q: %w", name, err)
			}
			c.Set(name, child)
			continue
		}
		if top.remaining == 0 {
			d.stack = d.stack[:len(d.stack)-1]
			continue
		}
		top.remaining--
		l := top.list
		child, err := d.begin(l.Elem)
		if err != nil {
			return Root{}, fmt.Errorf("[%d]: %w", len(l.Items), err)
		}
		l.Items = append(l.Items, child)
	}
	return root, nil
}

type decoder struct {
	r     *wire.Reader
	max   int
	stack []frame
}

// begin reads the payload of a tag of type typ. Scalars and arrays are read
// completely; containers are returned empty and pushed onto the stack to be
// filled by the caller's loop.
func (d *decoder) begin(typ TagType) (Tag, error) {
	r := d.r
	switch typ {
	case TagByte:
		v, err := r.Byte()
		return Byte(v), err
	case TagShort:
		v, err := r.Short()
		return Short(v), err
	case TagInt:
		v, err := r.Int()
		return Int(v), err
	case TagLong:
		v, err := r.Long()
		return Long(v), err
	case TagFloat:
		v, err := r.Float()
		return Float(v), err
	case TagDouble:
		v, err := r.Double()
		return Double(v), err
	case TagString:
		s, err := readString(r)
		return String(s), err
	case TagByteArray:
		n, err := readLength(r, 1)
		if err != nil {
			return nil, err
		}
		b, err := r.Bytes(n)
		if err != nil {
			return nil, err
		}
		return ByteArray(append([]byte(nil), b...)), nil
	case TagIntArray:
		n, err := readLength(r, 4)
		if err != nil {
			return nil, err
		}
		out := make(IntArray, n)
		for i := range out {
			if out[i], err = r.Int(); err != nil {
				return nil, err
			}
		}
		return out, nil
	case TagLongArray:
		n, err := readLength(r, 8)
		if err != nil {
			return nil, err
		}
		out := make(LongArray, n)
		for i := range out {
			if out[i], err = r.Long(); err != nil {
				return nil, err
			}
		}
		return out, nil
	case TagList:
		if err := d.push(); err != nil {
			return nil, err
		}
		elem, err := readType(r)
		if err != nil {
			return nil, err
		}
		n, err := r.Int()
		if err != nil {
			return nil, err
		}
		if n < 0 {
			n = 0 // vanilla treats negative list lengths as empty
		}
		if elem == TagEnd && n > 0 {
			return nil, fmt.Errorf("%w: list of TAG_End with %d items", wire.ErrInvalidEncoding, n)
		}
		// Every item needs at least one byte, except empty compounds which
		// still carry their TAG_End.
		if int(n) > r.Remaining() {
			return nil, fmt.Errorf("%w: list claims %d items, %d bytes left", wire.ErrTruncatedInput, n, r.Remaining())
		}
		l := &List{Elem: elem, Items: make([]Tag, 0, n)}
		d.stack = append(d.stack, frame{list: l, remaining: int(n)})
		return l, nil
	case TagCompound:
		if err := d.push(); err != nil {
			return nil, err
		}
		c := &Compound{}
		d.stack = append(d.stack, frame{compound: c})
		return c, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownTagType, byte(typ))
}

func (d *decoder) push() error {
	if len(d.stack) >= d.max {
		return fmt.Errorf("%w: more than %d nested containers", ErrDepthExceeded, d.max)
	}
	return nil
}

func readType(r *wire.Reader) (TagType, error) {
	b, err := r.UByte()
	if err != nil {
		return 0, err
	}
	t := TagType(b)
	if !t.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownTagType, b)
	}
	return t, nil
}

func readString(r *wire.Reader) (string, error) {
	n, err := r.UShort()
	if err != nil {
		return "", err
	}
	b, err := r.Bytes(int(n))
	if err != nil {
		return "", err
	}
	return decodeMUTF8(b)
}

// readLength reads an int32 element count and checks that count*size bytes
// are actually available before anything is allocated.
func readLength(r *wire.Reader, size int) (int, error) {
	n, err := r.Int()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative array length %d", wire.ErrInvalidEncoding, n)
	}
	if int64(n)*int64(size) > int64(r.Remaining()) {
		return 0, fmt.Errorf("%w: array of %d elements, %d bytes left", wire.ErrTruncatedInput, n, r.Remaining())
	}
	return int(n), nil
}

// Encode returns the binary form of root.
func Encode(root Root, opts Options) ([]byte, error) {
	return Append(nil, root, opts)
}

// Append appends the binary form of root to dst.
func Append(dst []byte, root Root, opts Options) ([]byte, error) {
	w := wire.NewWriter(dst)
	if err := EncodeTo(w, root, opts); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// EncodeTo writes root to w.
func EncodeTo(w *wire.Writer, root Root, opts Options) error {
	if root.Tag == nil {
		return fmt.Errorf("%w: nil root tag", wire.ErrInvalidEncoding)
	}
	typ := root.Tag.Type()
	w.UByte(byte(typ))
	if typ == TagEnd {
		return nil
	}
	if !opts.Nameless {
		if err := writeString(w, root.Name); err != nil {
			return err
		}
	}

	e := encoder{w: w, max: opts.maxDepth()}
	if err := e.begin(root.Tag); err != nil {
		return err
	}
	for len(e.stack) > 0 {
		top := &e.stack[len(e.stack)-1]
		if c := top.compound; c != nil {
			if top.next == len(c.entries) {
				w.UByte(byte(TagEnd))
				e.stack = e.stack[:len(e.stack)-1]
				continue
			}
			ent := c.entries[top.next]
			top.next++
			if ent.Tag == nil || ent.Tag.Type() == TagEnd {
				return fmt.Errorf("%w: compound key %q holds no value", wire.ErrInvalidEncoding, ent.Name)
			}
			w.UByte(byte(ent.Tag.Type()))
			if err := writeString(w, ent.Name); err != nil {
				return err
			}
			if err := e.begin(ent.Tag); err != nil {
				return fmt.Errorf("%q: %w", ent.Name, err)
			}
			continue
		}
		l := top.list
		if top.next == len(l.Items) {
			e.stack = e.stack[:len(e.stack)-1]
			continue
		}
		item := l.Items[top.next]
		top.next++
		if item == nil || item.Type() != l.Elem {
			return fmt.Errorf("%w: heterogeneous list of %s", wire.ErrInvalidEncoding, l.Elem)
		}
		if err := e.begin(item); err != nil {
			return fmt.Errorf("[%d]: %w", top.next-1, err)
		}
	}
	return nil
}

type encoder struct {
	w     *wire.Writer
	max   int
	stack []frame
}

func (e *encoder) begin(t Tag) error {
	w := e.w
	switch v := t.(type) {
	case Byte:
		w.Byte(int8(v))
	case Short:
		w.Short(int16(v))
	case Int:
		w.Int(int32(v))
	case Long:
		w.Long(int64(v))
	case Float:
		w.Float(float32(v))
	case Double:
		w.Double(float64(v))
	case String:
		return writeString(w, string(v))
	case ByteArray:
		w.Int(int32(len(v)))
		w.Raw(v)
	case IntArray:
		w.Int(int32(len(v)))
		for _, x := range v {
			w.Int(x)
		}
	case LongArray:
		w.Int(int32(len(v)))
		for _, x := range v {
			w.Long(x)
		}
	case *List:
		if len(e.stack) >= e.max {
			return fmt.Errorf("%w: more than %d nested containers", ErrDepthExceeded, e.max)
		}
		if !v.Elem.Valid() {
			return fmt.Errorf("%w: %d", ErrUnknownTagType, byte(v.Elem))
		}
		if v.Elem == TagEnd && len(v.Items) > 0 {
			return fmt.Errorf("%w: list of TAG_End with %d items", wire.ErrInvalidEncoding, len(v.Items))
		}
		w.UByte(byte(v.Elem))
		w.Int(int32(len(v.Items)))
		e.stack = append(e.stack, frame{list: v})
	case *Compound:
		if len(e.stack) >= e.max {
			return fmt.Errorf("%w: more than %d nested containers", ErrDepthExceeded, e.max)
		}
		e.stack = append(e.stack, frame{compound: v})
	default:
		return fmt.Errorf("%w: %T", ErrUnknownTagType, t)
	}
	return nil
}

func writeString(w *wire.Writer, s string) error {
	n := mutf8Len(s)
	if n > math.MaxUint16 {
		return fmt.Errorf("%w: string of %d bytes exceeds 65535", wire.ErrInvalidEncoding, n)
	}
	w.UShort(uint16(n))
	w.Raw(appendMUTF8(nil, s))
	return nil
}
