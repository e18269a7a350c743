package optensor

import (
	"fmt"
	"sort"

	"github.com/jlatone/block2-preview/qn"
)

// IdentityOp names the identity operator of a block.
var IdentityOp = OpName{Name: "I"}

// OperatorTensor couples the symbolic operator matrices of a block with
// the numeric operands bound to each operator name. Lmat describes the
// block as seen from the left sweep direction, Rmat from the right.
type OperatorTensor struct {
	Lmat, Rmat *Symbolic
	Ops        map[OpName]Operand
}

// NewOperatorTensor returns an operator tensor with an empty operand map.
func NewOperatorTensor(lmat, rmat *Symbolic) *OperatorTensor {
	return &OperatorTensor{Lmat: lmat, Rmat: rmat, Ops: make(map[OpName]Operand)}
}

// Funcs dispatches symbolic operator expressions to kernel block
// operations. Operands are materialized per use and released as soon as
// the operation is queued; queued closures hold the blocks alive.
type Funcs struct {
	K *Kernel
}

// NewFuncs returns a dispatcher over the kernel.
func NewFuncs(k *Kernel) *Funcs { return &Funcs{K: k} }

func materializeOp(ops map[OpName]Operand, e *Elem, side string) (*Matrix, func()) {
	op, ok := ops[e.OpName]
	if !ok {
		panic(fmt.Sprintf("missing %s operator %v", side, e.OpName))
	}
	return op.Materialize()
}

// assign copies the operands named by the symbolic matrix sym from a
// into c, selecting sectors when the target pattern is narrower.
func (f *Funcs) assign(sym *Symbolic, a, c *OperatorTensor) {
	for _, entry := range sym.Data {
		pa, ok := entry.(*Elem)
		if !ok {
			continue
		}
		src, ok := a.Ops[pa.OpName]
		if !ok {
			panic(fmt.Sprintf("missing source operator %v", pa.OpName))
		}
		dst, ok := c.Ops[pa.OpName]
		if !ok {
			panic(fmt.Sprintf("missing target operator %v", pa.OpName))
		}
		cinfo := dst.SectorInfo()
		switch m := src.(type) {
		case *Delayed:
			if len(m.SectorInfo().Sectors) == len(cinfo.Sectors) {
				c.Ops[pa.OpName] = m.Copy()
			} else {
				c.Ops[pa.OpName] = m.SelectiveCopy(cinfo)
			}
		case *Matrix:
			cm := dst.(*Matrix)
			if !cm.Allocated() {
				cm.Allocate()
			}
			if len(m.Info.Sectors) == len(cinfo.Sectors) {
				cm.CopyFrom(m)
			} else {
				cm.SelectiveCopyFrom(m)
			}
		default:
			panic(fmt.Sprintf("unknown operand kind %T", src))
		}
	}
}

// LeftAssign copies the left-sweep operators of a into c.
func (f *Funcs) LeftAssign(a, c *OperatorTensor) { f.assign(a.Lmat, a, c) }

// RightAssign copies the right-sweep operators of a into c.
func (f *Funcs) RightAssign(a, c *OperatorTensor) { f.assign(a.Rmat, a, c) }

// TensorProduct accumulates the operator expression, built from left and
// right block operands, into out.
func (f *Funcs) TensorProduct(expr Expr, lop, rop map[OpName]Operand, out *Matrix) {
	switch op := expr.(type) {
	case Zero:
	case *Sum:
		for _, t := range op.Terms {
			f.TensorProduct(t, lop, rop, out)
		}
	case *Prod:
		l, lr := materializeOp(lop, op.A, "left")
		r, rr := materializeOp(rop, op.B, "right")
		f.K.TensorProduct(op.Conj, l, r, out, op.Factor*op.A.Factor*op.B.Factor)
		lr()
		rr()
	case *SumProd:
		// accumulate the summed side into a scratch operand first
		if op.A != nil {
			tmp := NewMatrix(sumOpsInfo(rop, op.Ops))
			for i, o := range op.Ops {
				m, rel := materializeOp(rop, o, "right")
				f.K.IAdd(tmp, m, o.Factor, op.Conjs[i])
				rel()
			}
			if f.K.Seq.Mode != SeqNone {
				f.K.Seq.Flush()
			}
			l, lr := materializeOp(lop, op.A, "left")
			f.K.TensorProduct(op.Conj, l, tmp, out, op.Factor*op.A.Factor)
			lr()
		} else {
			tmp := NewMatrix(sumOpsInfo(lop, op.Ops))
			for i, o := range op.Ops {
				m, rel := materializeOp(lop, o, "left")
				f.K.IAdd(tmp, m, o.Factor, op.Conjs[i])
				rel()
			}
			if f.K.Seq.Mode != SeqNone {
				f.K.Seq.Flush()
			}
			r, rr := materializeOp(rop, op.B, "right")
			f.K.TensorProduct(op.Conj, tmp, r, out, op.Factor*op.B.Factor)
			rr()
		}
	default:
		panic(fmt.Sprintf("cannot form tensor product of %T", expr))
	}
}

// sumOpsInfo returns the sector pattern shared by a list of summed
// operators.
func sumOpsInfo(ops map[OpName]Operand, elems []*Elem) *Info {
	if len(elems) == 0 {
		panic("empty operator sum")
	}
	op, ok := ops[elems[0].OpName]
	if !ok {
		panic(fmt.Sprintf("missing operator %v", elems[0].OpName))
	}
	return op.SectorInfo()
}

// TensorProductDiagonal accumulates the diagonal of the operator
// expression into out.
func (f *Funcs) TensorProductDiagonal(expr Expr, lop, rop map[OpName]Operand, out *Matrix) {
	switch op := expr.(type) {
	case Zero:
	case *Sum:
		for _, t := range op.Terms {
			f.TensorProductDiagonal(t, lop, rop, out)
		}
	case *Prod:
		l, lr := materializeOp(lop, op.A, "left")
		r, rr := materializeOp(rop, op.B, "right")
		f.K.TensorProductDiagonal(op.Conj, l, r, out, op.Factor*op.A.Factor*op.B.Factor)
		lr()
		rr()
	case *SumProd:
		for i, o := range op.Ops {
			conj := op.Conj
			var p *Prod
			if op.A != nil {
				if op.Conjs[i] {
					conj ^= 2
				}
				p = &Prod{A: op.A, B: o, Conj: conj, Factor: op.Factor}
			} else {
				if op.Conjs[i] {
					conj ^= 1
				}
				p = &Prod{A: o, B: op.B, Conj: conj, Factor: op.Factor}
			}
			f.TensorProductDiagonal(p, lop, rop, out)
		}
	default:
		panic(fmt.Sprintf("cannot form diagonal of %T", expr))
	}
}

// TensorProductMultiply applies the operator expression to the
// wavefunction cmat, accumulating into vmat. opdq is the quantum number
// of the whole expression.
func (f *Funcs) TensorProductMultiply(expr Expr, lop, rop map[OpName]Operand,
	cmat, vmat *Matrix, opdq qn.Q) {
	switch op := expr.(type) {
	case Zero:
	case *Sum:
		for _, t := range op.Terms {
			f.TensorProductMultiply(t, lop, rop, cmat, vmat, opdq)
		}
	case *Prod:
		l, lr := materializeOp(lop, op.A, "left")
		r, rr := materializeOp(rop, op.B, "right")
		f.K.TensorProductMultiply(op.Conj, l, r, cmat, vmat, opdq,
			op.Factor*op.A.Factor*op.B.Factor)
		lr()
		rr()
	case *SumProd:
		for i, o := range op.Ops {
			conj := op.Conj
			var p *Prod
			if op.A != nil {
				if op.Conjs[i] {
					conj ^= 2
				}
				p = &Prod{A: op.A, B: o, Conj: conj, Factor: op.Factor}
			} else {
				if op.Conjs[i] {
					conj ^= 1
				}
				p = &Prod{A: o, B: op.B, Conj: conj, Factor: op.Factor}
			}
			f.TensorProductMultiply(p, lop, rop, cmat, vmat, opdq)
		}
	default:
		panic(fmt.Sprintf("cannot multiply by %T", expr))
	}
}

// TensorProductPartialMultiply applies one half of a product expression
// to cmat, tracing the other half against the block identity. traceRight
// keeps the left operator active. vdqs lists the quantum numbers of the
// partial outputs in sorted order; vidx, when non-nil, selects outputs
// sequentially instead of by lookup.
func (f *Funcs) TensorProductPartialMultiply(expr Expr, lop, rop map[OpName]Operand,
	traceRight bool, cmat *Matrix, vdqs []qn.Q, vmats []*Matrix, vidx *int) {
	switch op := expr.(type) {
	case Zero:
	case *Sum:
		for _, t := range op.Terms {
			f.TensorProductPartialMultiply(t, lop, rop, traceRight, cmat, vdqs, vmats, vidx)
		}
	case *Prod:
		ident := &Elem{OpName: IdentityOp, Factor: 1}
		var l, r *Matrix
		var lr, rr func()
		var opdq qn.Q
		var conj uint8
		if traceRight {
			l, lr = materializeOp(lop, op.A, "left")
			r, rr = materializeOp(rop, ident, "right")
			opdq = op.A.Q
			conj = op.Conj & 1
		} else {
			l, lr = materializeOp(lop, ident, "left")
			r, rr = materializeOp(rop, op.B, "right")
			opdq = op.B.Q
			conj = op.Conj & 2
		}
		pks := cmat.Info.DeltaQ.Add(opdq)
		iv := 0
		if vidx != nil {
			iv = *vidx
			*vidx++
		} else {
			iv = sort.Search(len(vdqs), func(i int) bool { return !vdqs[i].Less(pks) })
			if iv == len(vdqs) || vdqs[iv] != pks {
				panic(fmt.Sprintf("no partial output for quantum number %v", pks))
			}
		}
		factor := op.Factor
		if traceRight {
			factor *= op.A.Factor
		} else {
			factor *= op.B.Factor
		}
		f.K.TensorProductMultiply(conj, l, r, cmat, vmats[iv], opdq, factor)
		lr()
		rr()
	default:
		panic(fmt.Sprintf("cannot partially multiply by %T", expr))
	}
}

// rotate transforms every operator of a into the renormalized basis of c.
func (f *Funcs) rotate(a, c *OperatorTensor, bra, ket *Matrix, trans bool) {
	for name, op := range a.Ops {
		dst, ok := c.Ops[name]
		if !ok {
			continue
		}
		cm := dst.(*Matrix)
		if !cm.Allocated() {
			cm.Allocate()
		}
		src, release := op.Materialize()
		f.K.TensorRotate(src, cm, bra, ket, trans, 1)
		release()
		if f.K.Seq.Mode == SeqAuto {
			f.K.Seq.Flush()
		}
	}
	if f.K.Seq.Mode != SeqNone {
		f.K.Seq.Flush()
	}
}

// LeftRotate renormalizes the left-block operators, C = Braᴴ · A · Ket.
func (f *Funcs) LeftRotate(a, c *OperatorTensor, bra, ket *Matrix) {
	f.rotate(a, c, bra, ket, false)
}

// RightRotate renormalizes the right-block operators, C = Braᵀ · A · conj(Ket).
func (f *Funcs) RightRotate(a, c *OperatorTensor, bra, ket *Matrix) {
	f.rotate(a, c, bra, ket, true)
}

// NumericalTransform rebuilds the operators listed in names as linear
// combinations of existing operators of a, following exprs entry by
// entry. A term naming an operator absent from a ends that entry.
func (f *Funcs) NumericalTransform(a *OperatorTensor, names, exprs *Symbolic) {
	if len(names.Data) != len(exprs.Data) {
		panic(fmt.Sprintf("%d names for %d expressions", len(names.Data), len(exprs.Data)))
	}
	for i, entry := range names.Data {
		nm, ok := entry.(*Elem)
		if !ok {
			continue
		}
		dst, ok := a.Ops[nm.OpName]
		if !ok {
			panic(fmt.Sprintf("missing target operator %v", nm.OpName))
		}
		cm := dst.(*Matrix)
		if !cm.Allocated() {
			cm.Allocate()
		}
		var terms []*Prod
		switch ex := exprs.Data[i].(type) {
		case Zero:
			continue
		case *Prod:
			terms = []*Prod{ex}
		case *Sum:
			terms = ex.Terms
		default:
			panic(fmt.Sprintf("cannot transform with %T", exprs.Data[i]))
		}
		for _, t := range terms {
			src, ok := a.Ops[t.A.OpName]
			if !ok {
				break
			}
			m, release := src.Materialize()
			f.K.IAdd(cm, m, t.Factor*t.A.Factor/nm.Factor, t.Conj&1 != 0)
			release()
		}
	}
	if f.K.Seq.Mode != SeqNone {
		f.K.Seq.Flush()
	}
}

// contract builds every named operator of c as a product of a and b
// block operators, following the symbolic product of the corresponding
// operator matrices.
func (f *Funcs) contract(names, exprs *Symbolic, a, b, c *OperatorTensor) {
	if len(names.Data) != len(exprs.Data) {
		panic(fmt.Sprintf("%d names for %d expressions", len(names.Data), len(exprs.Data)))
	}
	for i, entry := range names.Data {
		nm, ok := entry.(*Elem)
		if !ok {
			continue
		}
		dst, ok := c.Ops[nm.OpName]
		if !ok {
			panic(fmt.Sprintf("missing contracted operator %v", nm.OpName))
		}
		cm := dst.(*Matrix)
		if !cm.Allocated() {
			cm.Allocate()
		}
		f.TensorProduct(ScaleExpr(exprs.Data[i], 1/nm.Factor), a.Ops, b.Ops, cm)
	}
	if f.K.Seq.Mode != SeqNone {
		f.K.Seq.Flush()
	}
}

// LeftContract blocks a with b into c along the left sweep direction.
// When cexprs is nil the expressions come from the symbolic product of
// the left operator matrices.
func (f *Funcs) LeftContract(a, b, c *OperatorTensor, cexprs *Symbolic) {
	if a == nil {
		f.LeftAssign(b, c)
		return
	}
	exprs := cexprs
	if exprs == nil {
		exprs = MulSym(a.Lmat, b.Lmat)
	}
	f.contract(c.Lmat, exprs, a, b, c)
}

// RightContract blocks a with b into c along the right sweep direction.
func (f *Funcs) RightContract(a, b, c *OperatorTensor, cexprs *Symbolic) {
	if b == nil {
		f.RightAssign(a, c)
		return
	}
	exprs := cexprs
	if exprs == nil {
		exprs = MulSym(a.Rmat, b.Rmat)
	}
	f.contract(c.Rmat, exprs, a, b, c)
}
