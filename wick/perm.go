package wick

import "strings"

// Permutation maps tensor index slots to slots, optionally flipping the
// sign of the tensor value.
type Permutation struct {
	Data     []int
	Negative bool
}

// Identity returns the identity permutation on n slots.
func Identity(n int) Permutation {
	d := make([]int, n)
	for i := range d {
		d[i] = i
	}
	return Permutation{Data: d}
}

// Mul composes two permutations: (p*q)[i] = p[q[i]]. Signs multiply.
func (p Permutation) Mul(q Permutation) Permutation {
	d := make([]int, len(p.Data))
	for i := range d {
		d[i] = p.Data[q.Data[i]]
	}
	return Permutation{Data: d, Negative: p.Negative != q.Negative}
}

// Equal reports whether two permutations have the same mapping and sign.
func (p Permutation) Equal(q Permutation) bool {
	if p.Negative != q.Negative || len(p.Data) != len(q.Data) {
		return false
	}
	for i := range p.Data {
		if p.Data[i] != q.Data[i] {
			return false
		}
	}
	return true
}

func (p Permutation) key() string {
	b := make([]byte, 0, len(p.Data)+1)
	if p.Negative {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	for _, v := range p.Data {
		b = append(b, byte(v))
	}
	return string(b)
}

func (p Permutation) String() string {
	var b strings.Builder
	b.WriteString("< ")
	if p.Negative {
		b.WriteString("- ")
	} else {
		b.WriteString("+ ")
	}
	for _, v := range p.Data {
		b.WriteByte(byte('0' + v))
		b.WriteByte(' ')
	}
	b.WriteString(">")
	return b.String()
}

// CompleteSet closes the given generators on n slots into the full group,
// starting from the identity.
func CompleteSet(n int, gens []Permutation) []Permutation {
	seen := make(map[string]bool)
	out := []Permutation{Identity(n)}
	seen[out[0].key()] = true
	for k := 0; k < len(out); k++ {
		g := out[k]
		for _, d := range gens {
			h := g.Mul(d)
			if hk := h.key(); !seen[hk] {
				seen[hk] = true
				out = append(out, h)
			}
		}
	}
	return out
}

// NonSymmetric is the empty generator set: no symmetry.
func NonSymmetric() []Permutation { return nil }

// TwoSymmetric generates the symmetric exchange of two slots.
func TwoSymmetric() []Permutation {
	return []Permutation{{Data: []int{1, 0}}}
}

// QCChem generates the eightfold symmetry of real two-electron integrals
// in chemists' notation (ij|kl).
func QCChem() []Permutation {
	return []Permutation{
		{Data: []int{2, 3, 0, 1}},
		{Data: []int{1, 0, 2, 3}},
		{Data: []int{0, 1, 3, 2}},
	}
}

// QCPhys generates the eightfold symmetry of real two-electron integrals
// in physicists' notation <ij|kl>.
func QCPhys() []Permutation {
	return []Permutation{
		{Data: []int{0, 3, 2, 1}},
		{Data: []int{2, 1, 0, 3}},
		{Data: []int{1, 0, 3, 2}},
	}
}

// FourAnti generates the antisymmetry of antisymmetrized two-electron
// integrals under exchange within the bra or the ket pair.
func FourAnti() []Permutation {
	return []Permutation{
		{Data: []int{1, 0, 2, 3}, Negative: true},
		{Data: []int{0, 1, 3, 2}, Negative: true},
	}
}

// PairSymmetric generates, for a spin-free operator with n creation slots
// followed by n destruction slots, the exchange of whole (cre, des) pairs.
// With hermitian set, the swap of the creation and destruction halves is
// also included.
func PairSymmetric(n int, hermitian bool) []Permutation {
	r := make([]Permutation, 0, n)
	x := make([]int, 2*n)
	for i := 1; i < n; i++ {
		for j := 0; j < n; j++ {
			switch j {
			case 0:
				x[j], x[j+n] = i, i+n
			case i:
				x[j], x[j+n] = 0, n
			default:
				x[j], x[j+n] = j, j+n
			}
		}
		d := make([]int, 2*n)
		copy(d, x)
		r = append(r, Permutation{Data: d})
	}
	if hermitian {
		d := make([]int, 2*n)
		for j := 0; j < n; j++ {
			d[j], d[j+n] = j+n, j
		}
		r = append(r, Permutation{Data: d})
	}
	return r
}
