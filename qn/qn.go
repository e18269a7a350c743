// Package qn provides the symmetry-sector label shared by block-sparse
// operators and matrix product states.
package qn

import "fmt"

// Q labels a symmetry sector by particle number, twice the spin projection
// (or twice the total spin in the spin-adapted case), and point-group irrep.
type Q struct {
	N    int
	TwoS int
	PG   int
}

// Add combines the labels of two blocks joined by a tensor product.
func (q Q) Add(o Q) Q {
	return Q{N: q.N + o.N, TwoS: q.TwoS + o.TwoS, PG: q.PG ^ o.PG}
}

// Sub removes o from q.
func (q Q) Sub(o Q) Q {
	return Q{N: q.N - o.N, TwoS: q.TwoS - o.TwoS, PG: q.PG ^ o.PG}
}

// Neg is the label of the adjoint sector.
func (q Q) Neg() Q {
	return Q{N: -q.N, TwoS: -q.TwoS, PG: q.PG}
}

// Less orders labels by N, then TwoS, then PG.
func (q Q) Less(o Q) bool {
	if q.N != o.N {
		return q.N < o.N
	}
	if q.TwoS != o.TwoS {
		return q.TwoS < o.TwoS
	}
	return q.PG < o.PG
}

func (q Q) String() string {
	return fmt.Sprintf("<N=%d SZ=%d/2 PG=%d>", q.N, q.TwoS, q.PG)
}
