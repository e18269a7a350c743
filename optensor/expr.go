// Package optensor implements symbolic operator expressions over
// block-sparse matrices and the delayed dispatch of blocking operations:
// assignment, tensor products, rotations and contractions of renormalized
// operators, where operands may be rebuilt on demand instead of being held
// in memory.
package optensor

import (
	"fmt"

	"github.com/jlatone/block2-preview/qn"
)

// OpName identifies an elementary operator by its label and the quantum
// number it changes.
type OpName struct {
	Name string
	Q    qn.Q
}

func (n OpName) String() string {
	return fmt.Sprintf("%s%v", n.Name, n.Q)
}

// Elem is a reference to a named elementary operator with a scalar factor.
type Elem struct {
	OpName
	Factor complex64
}

// E builds an operator reference.
func E(name string, q qn.Q, factor complex64) *Elem {
	return &Elem{OpName: OpName{Name: name, Q: q}, Factor: factor}
}

// Scaled returns a copy with the factor multiplied by f.
func (e *Elem) Scaled(f complex64) *Elem {
	return &Elem{OpName: e.OpName, Factor: e.Factor * f}
}

// Expr is a symbolic operator expression. The concrete kinds are Zero,
// *Elem, *Prod, *Sum and *SumProd; dispatch is by exhaustive type switch
// and an unknown kind is a programming error.
type Expr interface{ isExpr() }

// Zero is the absent entry of a symbolic matrix.
type Zero struct{}

// Prod is the product of a left-block and a right-block operator.
// Conj bit 0 conjugates the left operand, bit 1 the right one.
type Prod struct {
	A, B   *Elem
	Conj   uint8
	Factor complex64
}

// Sum is a flat sum of products.
type Sum struct {
	Terms []*Prod
}

// SumProd is one fixed operand times a weighted sum of operators on the
// other block: exactly one of A, B is set, and Ops lists the summed
// operators on the opposite side.
type SumProd struct {
	A, B   *Elem
	Ops    []*Elem
	Conjs  []bool
	Conj   uint8
	Factor complex64
}

func (Zero) isExpr()     {}
func (*Elem) isExpr()    {}
func (*Prod) isExpr()    {}
func (*Sum) isExpr()     {}
func (*SumProd) isExpr() {}

// ScaleExpr returns expr scaled by f, leaving the original untouched.
func ScaleExpr(expr Expr, f complex64) Expr {
	switch op := expr.(type) {
	case Zero:
		return Zero{}
	case *Elem:
		return op.Scaled(f)
	case *Prod:
		return &Prod{A: op.A, B: op.B, Conj: op.Conj, Factor: op.Factor * f}
	case *Sum:
		terms := make([]*Prod, len(op.Terms))
		for i, t := range op.Terms {
			terms[i] = &Prod{A: t.A, B: t.B, Conj: t.Conj, Factor: t.Factor * f}
		}
		return &Sum{Terms: terms}
	case *SumProd:
		return &SumProd{A: op.A, B: op.B, Ops: op.Ops, Conjs: op.Conjs,
			Conj: op.Conj, Factor: op.Factor * f}
	default:
		panic(fmt.Sprintf("unknown expression kind %T", expr))
	}
}

// mulElems multiplies two symbolic matrix entries into a product term,
// or Zero if either side is absent.
func mulElems(x, y Expr) Expr {
	if _, ok := x.(Zero); ok {
		return Zero{}
	}
	if _, ok := y.(Zero); ok {
		return Zero{}
	}
	a, ok := x.(*Elem)
	if !ok {
		panic(fmt.Sprintf("matrix entry %T is not an operator reference", x))
	}
	b, ok := y.(*Elem)
	if !ok {
		panic(fmt.Sprintf("matrix entry %T is not an operator reference", y))
	}
	return &Prod{
		A:      &Elem{OpName: a.OpName, Factor: 1},
		B:      &Elem{OpName: b.OpName, Factor: 1},
		Factor: a.Factor * b.Factor,
	}
}

// addExpr accumulates product terms into a sum.
func addExpr(acc, x Expr) Expr {
	p, ok := x.(*Prod)
	if !ok {
		if _, isZero := x.(Zero); isZero {
			return acc
		}
		panic(fmt.Sprintf("cannot accumulate %T", x))
	}
	switch a := acc.(type) {
	case Zero:
		return p
	case *Prod:
		return &Sum{Terms: []*Prod{a, p}}
	case *Sum:
		return &Sum{Terms: append(append([]*Prod{}, a.Terms...), p)}
	default:
		panic(fmt.Sprintf("cannot accumulate into %T", acc))
	}
}
