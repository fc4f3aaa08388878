package nbt

import (
	"fmt"
	"math"
	"slices"
)

// Equal reports whether a and b are structurally identical, including the
// order of compound entries and the element type of empty lists.
func Equal(a, b Tag) bool {
	type pair struct{ a, b Tag }
	work := []pair{{a, b}}
	for len(work) > 0 {
		p := work[len(work)-1]
		work = work[:len(work)-1]
		if p.a == nil || p.b == nil {
			if p.a != p.b {
				return false
			}
			continue
		}
		if p.a.Type() != p.b.Type() {
			return false
		}
		switch x := p.a.(type) {
		case *Compound:
			y := p.b.(*Compound)
			if x.Len() != y.Len() {
				return false
			}
			for i, e := range x.entries {
				f := y.entries[i]
				if e.Name != f.Name {
					return false
				}
				work = append(work, pair{e.Tag, f.Tag})
			}
		case *List:
			y := p.b.(*List)
			if x.Elem != y.Elem || len(x.Items) != len(y.Items) {
				return false
			}
			for i := range x.Items {
				work = append(work, pair{x.Items[i], y.Items[i]})
			}
		case ByteArray:
			if !slices.Equal(x, p.b.(ByteArray)) {
				return false
			}
		case IntArray:
			if !slices.Equal(x, p.b.(IntArray)) {
				return false
			}
		case LongArray:
			if !slices.Equal(x, p.b.(LongArray)) {
				return false
			}
		case Float:
			if math.Float32bits(float32(x)) != math.Float32bits(float32(p.b.(Float))) {
				return false
			}
		case Double:
			if math.Float64bits(float64(x)) != math.Float64bits(float64(p.b.(Double))) {
				return false
			}
		default:
			if p.a != p.b {
				return false
			}
		}
	}
	return true
}

// Wildcard matches every item of a list or every value of a compound when
// used as a path segment.
const Wildcard = "*"

// Visit calls fn for every compound reached by following path[:len(path)-1]
// from t, passing the final path segment as key. Segments name compound
// children; Wildcard fans out over list items and compound values. Missing
// children are skipped, not errors. fn may modify the compound it receives.
func Visit(t Tag, path []string, fn func(c *Compound, key string) error) error {
	if len(path) == 0 {
		return fmt.Errorf("nbt: empty path")
	}
	type step struct {
		tag   Tag
		depth int
	}
	last := len(path) - 1
	work := []step{{t, 0}}
	for len(work) > 0 {
		s := work[0]
		work = work[1:]
		if s.depth == last {
			if c, ok := s.tag.(*Compound); ok {
				if err := fn(c, path[last]); err != nil {
					return err
				}
			}
			continue
		}
		seg := path[s.depth]
		switch v := s.tag.(type) {
		case *Compound:
			if seg == Wildcard {
				for _, e := range v.entries {
					work = append(work, step{e.Tag, s.depth + 1})
				}
			} else if child, ok := v.Get(seg); ok {
				work = append(work, step{child, s.depth + 1})
			}
		case *List:
			if seg == Wildcard {
				for _, item := range v.Items {
					work = append(work, step{item, s.depth + 1})
				}
			}
		}
	}
	return nil
}

// Clone returns a deep copy of t.
func Clone(t Tag) Tag {
	if t == nil {
		return nil
	}
	out, _ := cloneTag(t)
	type job struct {
		src, dst Tag
	}
	work := []job{{t, out}}
	for len(work) > 0 {
		j := work[len(work)-1]
		work = work[:len(work)-1]
		switch src := j.src.(type) {
		case *Compound:
			dst := j.dst.(*Compound)
			for _, e := range src.entries {
				c, container := cloneTag(e.Tag)
				dst.Set(e.Name, c)
				if container {
					work = append(work, job{e.Tag, c})
				}
			}
		case *List:
			dst := j.dst.(*List)
			for _, item := range src.Items {
				c, container := cloneTag(item)
				dst.Items = append(dst.Items, c)
				if container {
					work = append(work, job{item, c})
				}
			}
		}
	}
	return out
}

// cloneTag copies scalars and arrays and returns an empty shell for
// containers, reporting whether t was a container.
func cloneTag(t Tag) (Tag, bool) {
	switch v := t.(type) {
	case *Compound:
		return &Compound{}, true
	case *List:
		return &List{Elem: v.Elem, Items: make([]Tag, 0, len(v.Items))}, true
	case ByteArray:
		return slices.Clone(v), false
	case IntArray:
		return slices.Clone(v), false
	case LongArray:
		return slices.Clone(v), false
	}
	return t, false
}
