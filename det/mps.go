package det

import (
	"gonum.org/v1/gonum/mat"

	"github.com/jlatone/block2-preview/qn"
)

// qlocal maps an occupation symbol to the quantum number it adds to the
// left label.
var qlocal = [4]qn.Q{
	OccEmpty:  {},
	OccAlpha:  {N: 1, TwoS: 1},
	OccBeta:   {N: 1, TwoS: -1},
	OccDouble: {N: 2},
}

// Block is one symmetry block of a site tensor for a fixed occupation:
// the matrix maps the left label Bra to the right label Ket.
type Block struct {
	Bra, Ket qn.Q
	Mat      *mat.Dense
}

// Site holds the blocks of one site tensor, grouped by occupation.
type Site struct {
	Blocks [4][]Block
}

// MPS is a matrix product state over spatial orbitals with local states
// empty, alpha, beta and doubly occupied.
type MPS struct {
	Vacuum, Target qn.Q
	Sites          []*Site
}

// NewProductState builds the MPS of a single determinant: every site
// tensor is the 1x1 identity on the path the occupations trace out.
func NewProductState(det []uint8, vacuum qn.Q) *MPS {
	m := &MPS{Vacuum: vacuum, Target: vacuum}
	for _, d := range det {
		left := m.Target
		m.Target = m.Target.Add(qlocal[d])
		s := &Site{}
		s.Blocks[d] = []Block{{
			Bra: left,
			Ket: m.Target,
			Mat: mat.NewDense(1, 1, []float64{1}),
		}}
		m.Sites = append(m.Sites, s)
	}
	return m
}
