// Package det evaluates determinant and configuration state function
// amplitudes of a matrix product state. Configurations are stored in a
// 4-ary prefix trie keyed by the occupation of each site, so that common
// prefixes share partial contractions during evaluation.
package det

import (
	"github.com/pkg/errors"
)

// occupation symbols per site
const (
	OccEmpty  = 0
	OccAlpha  = 1
	OccBeta   = 2
	OccDouble = 3
)

// Trie stores configurations of a fixed number of sites. Node 0 is the
// root; a zero child pointer means the branch is absent.
type Trie struct {
	NSites int

	nodes   [][4]int32
	parents []int32
	symbols []uint8
	dets    []int32
	lookup  map[int32]int
	Vals    []float64
}

// NewTrie returns an empty trie over n sites.
func NewTrie(n int) *Trie {
	return &Trie{
		NSites:  n,
		nodes:   make([][4]int32, 1),
		parents: []int32{-1},
		symbols: []uint8{0},
		lookup:  make(map[int32]int),
	}
}

// Len returns the number of stored configurations.
func (t *Trie) Len() int { return len(t.dets) }

// PushBack inserts a configuration, one occupation symbol per site.
// Re-inserting an existing configuration is an error.
func (t *Trie) PushBack(det []uint8) error {
	if len(det) != t.NSites {
		return errors.Errorf("configuration has %d sites, want %d", len(det), t.NSites)
	}
	cur := int32(0)
	grew := false
	for _, d := range det {
		if d > OccDouble {
			return errors.Errorf("occupation symbol %d out of range", d)
		}
		next := t.nodes[cur][d]
		if next == 0 {
			next = int32(len(t.nodes))
			t.nodes = append(t.nodes, [4]int32{})
			t.parents = append(t.parents, cur)
			t.symbols = append(t.symbols, d)
			t.nodes[cur][d] = next
			grew = true
		}
		cur = next
	}
	if !grew {
		return errors.Errorf("configuration %v already stored", det)
	}
	t.lookup[cur] = len(t.dets)
	t.dets = append(t.dets, cur)
	t.Vals = append(t.Vals, 0)
	return nil
}

// Find returns the position of a configuration, or -1.
func (t *Trie) Find(det []uint8) int {
	if len(det) != t.NSites {
		return -1
	}
	cur := int32(0)
	for _, d := range det {
		if d > OccDouble {
			return -1
		}
		cur = t.nodes[cur][d]
		if cur == 0 {
			return -1
		}
	}
	if i, ok := t.lookup[cur]; ok {
		return i
	}
	return -1
}

// At reconstructs the i-th configuration by walking parent pointers.
func (t *Trie) At(i int) []uint8 {
	det := make([]uint8, t.NSites)
	cur := t.dets[i]
	for k := t.NSites - 1; k >= 0; k-- {
		det[k] = t.symbols[cur]
		cur = t.parents[cur]
	}
	return det
}

// index returns the stored position of a leaf node, or -1.
func (t *Trie) index(node int32) int {
	if i, ok := t.lookup[node]; ok {
		return i
	}
	return -1
}
