package optensor

import "fmt"

// SymKind tells how a symbolic matrix is stored.
type SymKind int

const (
	SymRowVec SymKind = iota
	SymColVec
	SymFull
)

// Symbolic is a matrix of operator expressions. Row and column vectors
// hold one entry per slot; a full matrix is dense in row-major order.
type Symbolic struct {
	Kind SymKind
	M, N int
	Data []Expr
}

func newSymbolic(kind SymKind, m, n int) *Symbolic {
	s := &Symbolic{Kind: kind, M: m, N: n, Data: make([]Expr, m*n)}
	for i := range s.Data {
		s.Data[i] = Zero{}
	}
	return s
}

// NewRowVec returns a 1 x n symbolic row vector.
func NewRowVec(n int) *Symbolic { return newSymbolic(SymRowVec, 1, n) }

// NewColVec returns an m x 1 symbolic column vector.
func NewColVec(m int) *Symbolic { return newSymbolic(SymColVec, m, 1) }

// NewFull returns an m x n symbolic matrix.
func NewFull(m, n int) *Symbolic { return newSymbolic(SymFull, m, n) }

// At returns the entry at row i, column j.
func (s *Symbolic) At(i, j int) Expr {
	return s.Data[i*s.N+j]
}

// Set stores the entry at row i, column j.
func (s *Symbolic) Set(i, j int, e Expr) {
	s.Data[i*s.N+j] = e
}

// Copy returns a shallow copy sharing the expressions.
func (s *Symbolic) Copy() *Symbolic {
	d := make([]Expr, len(s.Data))
	copy(d, s.Data)
	return &Symbolic{Kind: s.Kind, M: s.M, N: s.N, Data: d}
}

// MulSym multiplies two symbolic matrices, producing sums of left-right
// operator products in each entry. The result shape follows the usual
// matrix product; shapes must agree.
func MulSym(a, b *Symbolic) *Symbolic {
	if a.N != b.M {
		panic(fmt.Sprintf("symbolic shapes (%d,%d) x (%d,%d) do not match",
			a.M, a.N, b.M, b.N))
	}
	kind := SymFull
	switch {
	case a.M == 1 && b.N == 1:
		kind = SymRowVec
	case a.M == 1:
		kind = SymRowVec
	case b.N == 1:
		kind = SymColVec
	}
	r := newSymbolic(kind, a.M, b.N)
	for i := 0; i < a.M; i++ {
		for j := 0; j < b.N; j++ {
			acc := Expr(Zero{})
			for k := 0; k < a.N; k++ {
				acc = addExpr(acc, mulElems(a.At(i, k), b.At(k, j)))
			}
			r.Set(i, j, acc)
		}
	}
	return r
}
