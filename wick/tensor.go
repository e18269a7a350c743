package wick

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind distinguishes elementary operators from plain coefficient tensors.
// The order is significant: it is the normal-order precedence of the
// operator kinds.
type Kind uint8

const (
	KindCre Kind = iota
	KindDes
	KindSpinFree
	KindDelta
	KindTensor
)

// Tensor is a named tensor with typed indices and a permutation symmetry
// group. Elementary operators (creation, destruction, spin-free) are
// tensors of the corresponding kind.
type Tensor struct {
	Name    string
	Indices []Index
	Perms   []Permutation
	Kind    Kind
}

// NewTensor builds a tensor, closing the generator set into the full group
// and keeping only permutations compatible with the index types.
func NewTensor(name string, indices []Index, gens []Permutation, kind Kind) Tensor {
	return Tensor{
		Name:    name,
		Indices: indices,
		Perms:   resetPermutations(indices, CompleteSet(len(indices), gens)),
		Kind:    kind,
	}
}

// A permutation is kept only if every slot it moves has a compatible type
// with the slot it moves to.
func resetPermutations(indices []Index, perms []Permutation) []Permutation {
	var out []Permutation
	for _, perm := range perms {
		valid := true
		for i := 0; i < len(indices) && valid; i++ {
			a, b := indices[perm.Data[i]].Types, indices[i].Types
			if a&b == IndexNone && a != IndexNone && b != IndexNone {
				valid = false
			}
		}
		if valid {
			out = append(out, perm)
		}
	}
	return out
}

// PermKey identifies a named tensor arity in a permutation rule table.
type PermKey struct {
	Name string
	N    int
}

// PermMap assigns permutation symmetry generators to tensor names.
type PermMap map[PermKey][]Permutation

// ParseTensor reads a tensor like "h[ij]", "v_{pqrs}" or "E1[r,s]".
// The names C, D, E<k>, R<k> and delta denote elementary operators and the
// Kronecker delta, with their implied symmetries.
func ParseTensor(expr string, tm TypeMap, pm PermMap) (Tensor, error) {
	var name, indices strings.Builder
	isName := true
	for _, c := range expr {
		switch {
		case c == '_' || c == '[':
			isName = false
		case c == ',' || c == ' ':
		case c == '{' || c == '}' || c == ']':
		case isName:
			name.WriteRune(c)
		default:
			indices.WriteRune(c)
		}
	}
	nm, idxs := name.String(), indices.String()
	if nm == "" {
		return Tensor{}, fmt.Errorf("tensor %q: empty name", expr)
	}
	perms := pm[PermKey{Name: nm, N: len(idxs)}]
	kind := KindTensor
	switch {
	case nm == "C" && len(idxs) == 1:
		kind = KindCre
	case nm == "D" && len(idxs) == 1:
		kind = KindDes
	case len(nm) == 2 && nm[0] == 'E' && nm[1] >= '0' && nm[1] <= '9' &&
		len(idxs) == int(nm[1]-'0')*2:
		kind = KindSpinFree
		perms = PairSymmetric(int(nm[1]-'0'), false)
	case len(nm) == 2 && nm[0] == 'R' && nm[1] >= '0' && nm[1] <= '9' &&
		len(idxs) == int(nm[1]-'0')*2:
		kind = KindSpinFree
		perms = PairSymmetric(int(nm[1]-'0'), true)
	case nm == "delta" && len(idxs) == 2:
		kind = KindDelta
		perms = TwoSymmetric()
	}
	return NewTensor(nm, ParseIndicesTyped(idxs, tm), perms, kind), nil
}

// KroneckerDelta returns delta over the two given indices.
func KroneckerDelta(a, b Index) Tensor {
	return NewTensor("delta", []Index{a, b}, TwoSymmetric(), KindDelta)
}

// SpinFree returns the spin-free excitation operator E<k> over k creation
// indices followed by k destruction indices.
func SpinFree(indices []Index) Tensor {
	if len(indices)%2 != 0 {
		panic(fmt.Sprintf("spin-free operator needs even arity, got %d", len(indices)))
	}
	k := len(indices) / 2
	return NewTensor("E"+strconv.Itoa(k), indices, PairSymmetric(k, false), KindSpinFree)
}

// SpinFreeDensityMatrix returns R<k>, a spin-free operator carrying the
// additional hermitian pair-swap symmetry of a density matrix on a real
// reference state.
func SpinFreeDensityMatrix(indices []Index) Tensor {
	if len(indices)%2 != 0 {
		panic(fmt.Sprintf("spin-free operator needs even arity, got %d", len(indices)))
	}
	k := len(indices) / 2
	return NewTensor("R"+strconv.Itoa(k), indices, PairSymmetric(k, true), KindSpinFree)
}

// Cre returns the creation operator on the given index.
func Cre(idx Index) Tensor {
	return NewTensor("C", []Index{idx}, NonSymmetric(), KindCre)
}

// Des returns the destruction operator on the given index.
func Des(idx Index) Tensor {
	return NewTensor("D", []Index{idx}, NonSymmetric(), KindDes)
}

// Equal compares kind, name and indices.
func (t Tensor) Equal(o Tensor) bool {
	if t.Kind != o.Kind || t.Name != o.Name || len(t.Indices) != len(o.Indices) {
		return false
	}
	for i := range t.Indices {
		if t.Indices[i] != o.Indices[i] {
			return false
		}
	}
	return true
}

func cmpIndices(a, b []Index) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i].Less(b[i]) {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// The operator class for normal-order comparison. occType selects which
// orbital space counts as occupied in the reference:
//
//	Ca [00] < Di [01] < Ci [10] < Da [11]
func (t Tensor) fermiType(occType IndexTypes) int {
	x := 0
	if t.Kind == KindDes {
		x = 1
	}
	y := 0
	if len(t.Indices) != 0 && t.Indices[0].Types&occType != IndexNone {
		y = 1
	}
	return x | ((x ^ y) << 1)
}

// Less is the normal-order comparator: fermi class relative to the
// occupied space shared by the two operators, then name, then indices,
// then kind.
func (t Tensor) Less(o Tensor) bool {
	const mask = IndexInactive | IndexActive | IndexExternal
	xType, yType := IndexNone, IndexNone
	if len(t.Indices) != 0 {
		xType = t.Indices[0].Types & mask
	}
	if len(o.Indices) != 0 {
		yType = o.Indices[0].Types & mask
	}
	occType, maxType := xType, yType
	if yType < xType {
		occType, maxType = yType, xType
	}
	if occType == IndexNone || occType == IndexExternal ||
		(occType == IndexActive && maxType == IndexActive) {
		occType = IndexInactive
	}
	if ft, fo := t.fermiType(occType), o.fermiType(occType); ft != fo {
		return ft < fo
	}
	if t.Name != o.Name {
		return t.Name < o.Name
	}
	if t.Kind == o.Kind {
		return cmpIndices(t.Indices, o.Indices) < 0
	}
	return t.Kind < o.Kind
}

// Permute applies a slot permutation to the indices.
func (t Tensor) Permute(p Permutation) Tensor {
	xi := make([]Index, len(t.Indices))
	for i := range xi {
		xi[i] = t.Indices[p.Data[i]]
	}
	return Tensor{Name: t.Name, Indices: xi, Perms: t.Perms, Kind: t.Kind}
}

func (t Tensor) clone() Tensor {
	xi := make([]Index, len(t.Indices))
	copy(xi, t.Indices)
	return Tensor{Name: t.Name, Indices: xi, Perms: t.Perms, Kind: t.Kind}
}

// Sort picks the lexicographically smallest index order under the
// symmetry group, flipping factor when the chosen permutation is odd.
func (t Tensor) Sort(factor *float64) Tensor {
	x, neg := t, false
	for _, perm := range t.Perms {
		z := t.Permute(perm)
		if cmpIndices(z.Indices, x.Indices) < 0 {
			x, neg = z, perm.Negative
		}
	}
	if neg {
		*factor = -*factor
	}
	return x
}

// ctrAssign maps original summed indices to canonical integer names, with
// the sign picked up from odd permutations along the way.
type ctrAssign struct {
	assign map[Index]int
	sign   int
}

func (m ctrAssign) encode() string {
	keys := make([]Index, 0, len(m.assign))
	for k := range m.assign {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%d:%s=%d;", k.Types, k.Name, m.assign[k])
	}
	fmt.Fprintf(&b, "|%d", m.sign)
	return b.String()
}

// renameCtr renames every summed index of z (matched against the original
// indices in src) to its canonical integer name, assigning fresh numbers
// from kidx onward for indices absent from cm.
func renameCtr(z *Tensor, src []Index, ctrIdxs IndexSet, cm ctrAssign, newMap map[Index]int, kidx *int) {
	for i := range z.Indices {
		wi := src[i]
		if !ctrIdxs.Has(wi) {
			continue
		}
		v, ok := cm.assign[wi]
		if !ok {
			v, ok = newMap[wi]
			if !ok {
				v = *kidx
				newMap[wi] = v
				*kidx++
			}
		}
		z.Indices[i].Name = strconv.Itoa(v)
	}
}

// sortWithMaps returns the canonically smallest renamed form of t over all
// symmetry permutations and all candidate assignments. newIdx advances by
// the number of fresh summed indices seen in t.
func (t Tensor) sortWithMaps(ctrIdxs IndexSet, ctrMaps []ctrAssign, newIdx *int) Tensor {
	if len(ctrMaps) == 0 {
		panic("sortWithMaps: no candidate assignments")
	}
	kidx := *newIdx
	x := t.clone()
	newMap := make(map[Index]int)
	renameCtr(&x, t.Indices, ctrIdxs, ctrMaps[0], newMap, &kidx)
	for _, perm := range t.Perms {
		zz := t.Permute(perm)
		for _, cm := range ctrMaps {
			z := zz.clone()
			newMap = make(map[Index]int)
			kidx = *newIdx
			renameCtr(&z, zz.Indices, ctrIdxs, cm, newMap, &kidx)
			if cmpIndices(z.Indices, x.Indices) < 0 {
				x = z
			}
		}
	}
	*newIdx = kidx
	return x
}

// sortGenMaps collects every assignment that renames t into ref, extending
// the given candidates. Results are deduplicated and ordered canonically.
func (t Tensor) sortGenMaps(ref Tensor, ctrIdxs IndexSet, ctrMaps []ctrAssign, newIdx int) []ctrAssign {
	if len(t.Perms) == 0 {
		panic("sortGenMaps: tensor without permutations")
	}
	seen := make(map[string]bool)
	var out []ctrAssign
	for _, perm := range t.Perms {
		zz := t.Permute(perm)
		for _, cm := range ctrMaps {
			z := zz.clone()
			newMap := make(map[Index]int)
			kidx := newIdx
			renameCtr(&z, zz.Indices, ctrIdxs, cm, newMap, &kidx)
			if cmpIndices(z.Indices, ref.Indices) != 0 {
				continue
			}
			merged := make(map[Index]int, len(cm.assign)+len(newMap))
			for k, v := range cm.assign {
				merged[k] = v
			}
			for k, v := range newMap {
				merged[k] = v
			}
			sign := cm.sign
			if perm.Negative {
				sign = -sign
			}
			nm := ctrAssign{assign: merged, sign: sign}
			if key := nm.encode(); !seen[key] {
				seen[key] = true
				out = append(out, nm)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].encode() < out[j].encode() })
	return out
}

func (t Tensor) toStr(perm Permutation) string {
	d := ""
	for _, idx := range t.Indices {
		if !idx.isShort() {
			d = " "
			break
		}
	}
	var b strings.Builder
	if perm.Negative {
		b.WriteByte('-')
	}
	b.WriteString(t.Name)
	b.WriteString("[")
	b.WriteString(d)
	for i := range t.Indices {
		if t.Kind == KindSpinFree && i*2 == len(t.Indices) {
			b.WriteString(",")
			b.WriteString(d)
		}
		b.WriteString(t.Indices[perm.Data[i]].Name)
		b.WriteString(d)
	}
	b.WriteString("]")
	return b.String()
}

func (t Tensor) String() string {
	if len(t.Perms) == 0 {
		return t.toStr(Identity(len(t.Indices)))
	}
	return t.toStr(t.Perms[0])
}

// PermutationRules lists the equivalent written forms of the tensor under
// its symmetry group.
func (t Tensor) PermutationRules() string {
	parts := make([]string, len(t.Perms))
	for i, p := range t.Perms {
		parts[i] = t.toStr(p)
	}
	return strings.Join(parts, " == ")
}
