// Package wick implements symbolic second-quantized algebra using Wick's
// theorem: typed orbital indices, permutation symmetry groups, tensors,
// contracted products and their normal-ordered expansion.
package wick

import (
	"sort"
	"strings"
)

// IndexTypes is a bitmask classifying an orbital index by orbital space
// and spin.
type IndexTypes uint8

const (
	IndexNone     IndexTypes = 0
	IndexInactive IndexTypes = 1
	IndexActive   IndexTypes = 2
	IndexExternal IndexTypes = 4
	IndexAlpha    IndexTypes = 8
	IndexBeta     IndexTypes = 16
)

func (t IndexTypes) String() string {
	switch t {
	case IndexNone:
		return "N"
	case IndexAlpha:
		return "A"
	case IndexBeta:
		return "B"
	}
	var b strings.Builder
	if t&IndexExternal != 0 {
		b.WriteByte('E')
	}
	if t&IndexInactive != 0 {
		b.WriteByte('I')
	}
	if t&IndexActive != 0 {
		b.WriteByte('A')
	}
	return b.String()
}

// Index is a named orbital index, possibly annotated with orbital space
// and spin types.
type Index struct {
	Name  string
	Types IndexTypes
}

// Less orders indices by types first, then by name.
func (a Index) Less(b Index) bool {
	if a.Types != b.Types {
		return a.Types < b.Types
	}
	return a.Name < b.Name
}

// HasTypes reports whether the index carries any type annotation.
func (a Index) HasTypes() bool { return a.Types != IndexNone }

// WithNoTypes strips the type annotation.
func (a Index) WithNoTypes() Index { return Index{Name: a.Name} }

func (a Index) isShort() bool { return len(a.Name) == 1 }

func (a Index) String() string { return a.Name }

// TypeMap assigns orbital space and spin types to index names.
type TypeMap map[IndexTypes]IndexSet

// ParseIndices reads a list of index names, either one character per index
// or separated by spaces.
func ParseIndices(x string) []Index {
	if !strings.ContainsRune(x, ' ') {
		r := make([]Index, len(x))
		for i := 0; i < len(x); i++ {
			r[i] = Index{Name: x[i : i+1]}
		}
		return r
	}
	var r []Index
	for _, f := range strings.Fields(x) {
		r = append(r, Index{Name: f})
	}
	return r
}

// AddTypes annotates each index with the union of the types whose name set
// contains it. Unknown names are left untyped.
func AddTypes(r []Index, tm TypeMap) []Index {
	out := make([]Index, len(r))
	copy(out, r)
	for i := range out {
		for t, set := range tm {
			if set.Has(out[i].WithNoTypes()) {
				out[i].Types |= t
			}
		}
	}
	return out
}

// ParseIndicesTyped parses a list of index names and annotates them from tm.
func ParseIndicesTyped(x string, tm TypeMap) []Index {
	return AddTypes(ParseIndices(x), tm)
}

// ParseIndexSet parses a list of index names into a set.
func ParseIndexSet(x string) IndexSet {
	return NewIndexSet(ParseIndices(x)...)
}

// ParseIndexSetTyped parses a list of index names into a set with type
// annotations from tm.
func ParseIndexSetTyped(x string, tm TypeMap) IndexSet {
	return NewIndexSet(ParseIndicesTyped(x, tm)...)
}

// IndexSet is an ordered set of indices, sorted by Index.Less.
type IndexSet []Index

// NewIndexSet returns the sorted, deduplicated set of the given indices.
func NewIndexSet(idxs ...Index) IndexSet {
	s := make(IndexSet, len(idxs))
	copy(s, idxs)
	sort.Slice(s, func(i, j int) bool { return s[i].Less(s[j]) })
	out := s[:0]
	for i, x := range s {
		if i == 0 || x != s[i-1] {
			out = append(out, x)
		}
	}
	return out
}

func (s IndexSet) search(x Index) int {
	return sort.Search(len(s), func(i int) bool { return !s[i].Less(x) })
}

// Has reports set membership.
func (s IndexSet) Has(x Index) bool {
	i := s.search(x)
	return i < len(s) && s[i] == x
}

// Add inserts x, keeping the set sorted.
func (s *IndexSet) Add(x Index) {
	i := s.search(x)
	if i < len(*s) && (*s)[i] == x {
		return
	}
	*s = append(*s, Index{})
	copy((*s)[i+1:], (*s)[i:])
	(*s)[i] = x
}

// Remove deletes x if present.
func (s *IndexSet) Remove(x Index) {
	i := s.search(x)
	if i < len(*s) && (*s)[i] == x {
		*s = append((*s)[:i], (*s)[i+1:]...)
	}
}

// Union returns the set union of s and o.
func (s IndexSet) Union(o IndexSet) IndexSet {
	r := s.Clone()
	for _, x := range o {
		r.Add(x)
	}
	return r
}

// Intersect returns the set intersection of s and o.
func (s IndexSet) Intersect(o IndexSet) IndexSet {
	var r IndexSet
	for _, x := range s {
		if o.Has(x) {
			r = append(r, x)
		}
	}
	return r
}

// Clone returns a copy of s.
func (s IndexSet) Clone() IndexSet {
	r := make(IndexSet, len(s))
	copy(r, s)
	return r
}

// Equal reports whether two sets hold the same indices.
func (s IndexSet) Equal(o IndexSet) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Less orders sets lexicographically by their sorted elements,
// shorter sets first only when one is a prefix of the other.
func (s IndexSet) Less(o IndexSet) bool {
	for i := 0; i < len(s) && i < len(o); i++ {
		if s[i] != o[i] {
			return s[i].Less(o[i])
		}
	}
	return len(s) < len(o)
}
