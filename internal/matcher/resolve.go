package matcher

import (
	"sort"
	"strings"

	"jobmate/watch-service/internal/model"
)

// LeafFunc reports whether a mapping must be treated as an opaque leaf:
// never descended into during path resolution or field enumeration.
type LeafFunc func(v model.Value) bool

// descriptorKeys are the keys a catalog attaches to file and image metadata.
var descriptorKeys = []string{"id", "url", "alt", "width", "height"}

// DefaultLeaf treats a mapping holding at least 3 of the file descriptor
// keys as a leaf. The threshold is a heuristic; see FileDescriptor.
var DefaultLeaf = FileDescriptor(3, descriptorKeys...)

// FileDescriptor returns a LeafFunc matching mappings that carry at least
// threshold of keys.
func FileDescriptor(threshold int, keys ...string) LeafFunc {
	return func(v model.Value) bool {
		if v.Kind() != model.KindMapping || threshold <= 0 {
			return false
		}
		n := 0
		for _, k := range keys {
			if v.Has(k) {
				n++
			}
		}
		return n >= threshold
	}
}

// NoLeaf never stops descent.
func NoLeaf(model.Value) bool { return false }

// Resolve walks the dotted path through nested mappings. A missing segment,
// a non-mapping intermediate value or a leaf mapping yields Absent.
func Resolve(attrs model.Value, path string, leaf LeafFunc) model.Value {
	if path == "" {
		return model.Absent()
	}
	if leaf == nil {
		leaf = NoLeaf
	}
	cur := attrs
	for i, seg := range strings.Split(path, ".") {
		if cur.Kind() != model.KindMapping {
			return model.Absent()
		}
		if i > 0 && leaf(cur) {
			return model.Absent()
		}
		cur = cur.Get(seg)
		if cur.IsAbsent() {
			return model.Absent()
		}
	}
	return cur
}

// Fields enumerates the dotted paths of every leaf below attrs, sorted.
// Scalars, sequences and leaf mappings terminate a path.
func Fields(attrs model.Value, leaf LeafFunc) []string {
	if leaf == nil {
		leaf = NoLeaf
	}
	var out []string
	var walk func(prefix string, v model.Value)
	walk = func(prefix string, v model.Value) {
		for _, k := range v.Keys() {
			child := v.Get(k)
			path := k
			if prefix != "" {
				path = prefix + "." + k
			}
			if child.Kind() == model.KindMapping && !leaf(child) {
				walk(path, child)
				continue
			}
			if child.IsAbsent() {
				continue
			}
			out = append(out, path)
		}
	}
	if attrs.Kind() == model.KindMapping {
		walk("", attrs)
	}
	sort.Strings(out)
	return out
}

// texts collects the textual scalars under v, skipping leaf mappings.
func texts(v model.Value, leaf LeafFunc, out []string) []string {
	switch v.Kind() {
	case model.KindString, model.KindNumber, model.KindBool:
		s, _ := v.Text()
		return append(out, s)
	case model.KindSequence:
		for _, e := range v.Items() {
			out = texts(e, leaf, out)
		}
	case model.KindMapping:
		if leaf(v) {
			return out
		}
		for _, k := range v.Keys() {
			out = texts(v.Get(k), leaf, out)
		}
	}
	return out
}
