package optensor

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jlatone/block2-preview/qn"
)

var (
	qVac = qn.Q{}
	qUp  = qn.Q{N: 1, TwoS: 1}
	qDn  = qn.Q{N: 1, TwoS: -1}
)

// mkMat builds a matrix over a single sector filled row-major.
func mkMat(dq qn.Q, bra, ket qn.Q, vals [][]complex64) *Matrix {
	info := NewInfo(dq, []Sector{{Bra: bra, Ket: ket, Rows: len(vals), Cols: len(vals[0])}})
	m := NewMatrix(info)
	for i, row := range vals {
		for j, v := range row {
			m.Blocks[0].SetAt([]int{i, j}, v)
		}
	}
	return m
}

func blockVals(m *Matrix, s int) [][]complex64 {
	sec := m.Info.Sectors[s]
	vals := make([][]complex64, sec.Rows)
	for i := range vals {
		vals[i] = make([]complex64, sec.Cols)
		for j := range vals[i] {
			vals[i][j] = m.Blocks[s].At(i, j)
		}
	}
	return vals
}

func TestTensorProduct(t *testing.T) {
	t.Parallel()
	a := mkMat(qVac, qVac, qVac, [][]complex64{{1, 2 + 1i}, {3, 4}})
	b := mkMat(qVac, qUp, qUp, [][]complex64{{5}})

	tests := []struct {
		conj uint8
		want [][]complex64
	}{
		{conj: 0, want: [][]complex64{{5, 10 + 5i}, {15, 20}}},
		{conj: 1, want: [][]complex64{{5, 15}, {10 - 5i, 20}}},
	}
	for _, tc := range tests {
		c := NewMatrix(NewInfo(qVac, []Sector{{Bra: qUp, Ket: qUp, Rows: 2, Cols: 2}}))
		k := NewKernel(SeqNone)
		k.TensorProduct(tc.conj, a, b, c, 1)
		if got := blockVals(c, 0); !equal2D(got, tc.want) {
			t.Fatalf("%v, expected %v", got, tc.want)
		}
	}
}

func TestTensorProductKronOrder(t *testing.T) {
	t.Parallel()
	a := mkMat(qVac, qVac, qVac, [][]complex64{{1, 2}, {3, 4}})
	b := mkMat(qVac, qUp, qUp, [][]complex64{{0, 5}, {6, 0}})
	c := NewMatrix(NewInfo(qVac, []Sector{{Bra: qUp, Ket: qUp, Rows: 4, Cols: 4}}))
	k := NewKernel(SeqNone)
	k.TensorProduct(0, a, b, c, 1)

	// left factor is the slow index
	want := [][]complex64{
		{0, 5, 0, 10},
		{6, 0, 12, 0},
		{0, 15, 0, 20},
		{18, 0, 24, 0},
	}
	if got := blockVals(c, 0); !equal2D(got, want) {
		t.Fatalf("%v, expected %v", got, want)
	}
}

func TestIAdd(t *testing.T) {
	t.Parallel()
	b := mkMat(qUp, qUp, qVac, [][]complex64{{1 + 2i, 3}})
	k := NewKernel(SeqNone)

	a := NewMatrix(NewInfo(qUp, []Sector{{Bra: qUp, Ket: qVac, Rows: 1, Cols: 2}}))
	k.IAdd(a, b, 2, false)
	if got, want := blockVals(a, 0), [][]complex64{{2 + 4i, 6}}; !equal2D(got, want) {
		t.Fatalf("%v, expected %v", got, want)
	}

	at := NewMatrix(NewInfo(qUp.Neg(), []Sector{{Bra: qVac, Ket: qUp, Rows: 2, Cols: 1}}))
	k.IAdd(at, b, 1, true)
	if got, want := blockVals(at, 0), [][]complex64{{1 - 2i}, {3}}; !equal2D(got, want) {
		t.Fatalf("%v, expected %v", got, want)
	}
}

func TestTensorProductDiagonal(t *testing.T) {
	t.Parallel()
	a := mkMat(qVac, qVac, qVac, [][]complex64{{1, 9}, {9, 2}})
	b := mkMat(qVac, qUp, qUp, [][]complex64{{3}})
	c := NewMatrix(NewInfo(qVac, []Sector{{Bra: qVac, Ket: qUp, Rows: 2, Cols: 1}}))
	k := NewKernel(SeqNone)
	k.TensorProductDiagonal(0, a, b, c, 1)
	if got, want := blockVals(c, 0), [][]complex64{{3}, {6}}; !equal2D(got, want) {
		t.Fatalf("%v, expected %v", got, want)
	}
}

func TestTensorProductMultiply(t *testing.T) {
	t.Parallel()
	// swap on the left block, identity on the right
	a := mkMat(qVac, qVac, qVac, [][]complex64{{0, 1}, {1, 0}})
	b := mkMat(qVac, qUp, qUp, [][]complex64{{1}})
	cmat := mkMat(qUp, qVac, qUp, [][]complex64{{2}, {3}})
	vmat := NewMatrix(NewInfo(qUp, []Sector{{Bra: qVac, Ket: qUp, Rows: 2, Cols: 1}}))
	k := NewKernel(SeqNone)
	k.TensorProductMultiply(0, a, b, cmat, vmat, qVac, 2)
	if got, want := blockVals(vmat, 0), [][]complex64{{6}, {4}}; !equal2D(got, want) {
		t.Fatalf("%v, expected %v", got, want)
	}
}

func TestTensorRotate(t *testing.T) {
	t.Parallel()
	a := mkMat(qVac, qVac, qVac, [][]complex64{{1, 0}, {0, 2}})
	tests := []struct {
		bra  [][]complex64
		want complex64
	}{
		{bra: [][]complex64{{1}, {0}}, want: 1},
		{bra: [][]complex64{{0}, {1}}, want: 2},
	}
	for _, tc := range tests {
		bra := mkMat(qVac, qVac, qVac, tc.bra)
		ket := mkMat(qVac, qVac, qVac, tc.bra)
		c := NewMatrix(NewInfo(qVac, []Sector{{Bra: qVac, Ket: qVac, Rows: 1, Cols: 1}}))
		k := NewKernel(SeqNone)
		k.TensorRotate(a, c, bra, ket, false, 1)
		if got := c.Blocks[0].At(0, 0); got != tc.want {
			t.Fatalf("%v, expected %v", got, tc.want)
		}
	}
}

func TestSeqSimpleDefersWork(t *testing.T) {
	t.Parallel()
	a := mkMat(qVac, qVac, qVac, [][]complex64{{2}})
	b := mkMat(qVac, qUp, qUp, [][]complex64{{3}})
	c := NewMatrix(NewInfo(qVac, []Sector{{Bra: qUp, Ket: qUp, Rows: 1, Cols: 1}}))
	k := NewKernel(SeqSimple)
	k.TensorProduct(0, a, b, c, 1)
	if got := c.Blocks[0].At(0, 0); got != 0 {
		t.Fatalf("%v, expected work to be queued", got)
	}
	if k.Seq.Len() != 1 {
		t.Fatalf("%d, expected 1 queued operation", k.Seq.Len())
	}
	k.Seq.Flush()
	if got := c.Blocks[0].At(0, 0); got != 6 {
		t.Fatalf("%v, expected 6", got)
	}
}

func TestDelayedMatchesEager(t *testing.T) {
	t.Parallel()
	avals := [][]complex64{{1, 2 - 1i}, {3i, 4}}
	bvals := [][]complex64{{5, 6}, {7, 8 + 2i}}
	a := mkMat(qVac, qVac, qVac, avals)
	b := mkMat(qVac, qUp, qUp, bvals)
	builds := 0
	da := NewDelayed(a.Info, func() *Matrix {
		builds++
		return mkMat(qVac, qVac, qVac, avals)
	})

	cinfo := NewInfo(qVac, []Sector{{Bra: qUp, Ket: qUp, Rows: 4, Cols: 4}})
	lop := map[OpName]Operand{{Name: "A"}: a}
	rop := map[OpName]Operand{{Name: "B"}: b}
	expr := &Prod{A: E("A", qVac, 1), B: E("B", qVac, 1), Factor: 1}

	eager := NewMatrix(cinfo)
	NewFuncs(NewKernel(SeqNone)).TensorProduct(expr, lop, rop, eager)

	lop[OpName{Name: "A"}] = da
	delayed := NewMatrix(cinfo)
	k := NewKernel(SeqSimple)
	NewFuncs(k).TensorProduct(expr, lop, rop, delayed)
	k.Seq.Flush()

	require.Equal(t, 1, builds)
	require.Equal(t, blockVals(eager, 0), blockVals(delayed, 0))
}

func TestMulSym(t *testing.T) {
	t.Parallel()
	a := NewRowVec(2)
	a.Set(0, 0, E("A", qVac, 2))
	a.Set(0, 1, E("B", qUp, 1))
	b := newSymbolic(SymFull, 2, 1)
	b.Set(0, 0, E("X", qVac, 3))
	b.Set(1, 0, E("Y", qDn, 1))

	r := MulSym(a, b)
	sum, ok := r.At(0, 0).(*Sum)
	if !ok {
		t.Fatalf("%T, expected a sum", r.At(0, 0))
	}
	if len(sum.Terms) != 2 {
		t.Fatalf("%d, expected 2 terms", len(sum.Terms))
	}
	if got := sum.Terms[0]; got.A.Name != "A" || got.B.Name != "X" || got.Factor != 6 {
		t.Fatalf("%v*%v*%v, expected 6*A*X", got.Factor, got.A, got.B)
	}
	if got := sum.Terms[1]; got.A.Name != "B" || got.B.Name != "Y" || got.Factor != 1 {
		t.Fatalf("%v*%v*%v, expected B*Y", got.Factor, got.A, got.B)
	}

	az := NewRowVec(1)
	bz := newSymbolic(SymFull, 1, 1)
	if _, ok := MulSym(az, bz).At(0, 0).(Zero); !ok {
		t.Fatalf("expected zero entry")
	}
}

func TestLeftContract(t *testing.T) {
	t.Parallel()
	aop := NewOperatorTensor(NewRowVec(1), NewColVec(1))
	aop.Lmat.Set(0, 0, E("H", qVac, 1))
	aop.Ops[OpName{Name: "H"}] = mkMat(qVac, qVac, qVac, [][]complex64{{1, 0}, {0, 2}})

	bop := NewOperatorTensor(newSymbolic(SymFull, 1, 1), NewColVec(1))
	bop.Lmat.Set(0, 0, E("I", qUp, 1))
	bop.Ops[OpName{Name: "I", Q: qUp}] = mkMat(qVac, qUp, qUp, [][]complex64{{1}})

	cop := NewOperatorTensor(NewRowVec(1), NewColVec(1))
	cop.Lmat.Set(0, 0, E("H", qVac, 2))
	cop.Ops[OpName{Name: "H"}] = NewMatrix(NewInfo(qVac,
		[]Sector{{Bra: qUp, Ket: qUp, Rows: 2, Cols: 2}}))

	f := NewFuncs(NewKernel(SeqSimple))
	f.LeftContract(aop, bop, cop, nil)

	// the target symbol carries factor 2, so the blocks hold H/2
	got := blockVals(cop.Ops[OpName{Name: "H"}].(*Matrix), 0)
	want := [][]complex64{{0.5, 0}, {0, 1}}
	if !equal2D(got, want) {
		t.Fatalf("%v, expected %v", got, want)
	}
}

func TestNumericalTransform(t *testing.T) {
	t.Parallel()
	a := NewOperatorTensor(NewRowVec(1), NewColVec(1))
	a.Ops[OpName{Name: "A"}] = mkMat(qVac, qVac, qVac, [][]complex64{{1, 2}, {3, 4}})
	a.Ops[OpName{Name: "B"}] = NewMatrix(NewInfo(qVac,
		[]Sector{{Bra: qVac, Ket: qVac, Rows: 2, Cols: 2}}))

	names := NewColVec(1)
	names.Set(0, 0, E("B", qVac, 2))
	exprs := NewColVec(1)
	exprs.Set(0, 0, &Prod{A: E("A", qVac, 1), Factor: 4})

	f := NewFuncs(NewKernel(SeqSimple))
	f.NumericalTransform(a, names, exprs)

	got := blockVals(a.Ops[OpName{Name: "B"}].(*Matrix), 0)
	want := [][]complex64{{2, 4}, {6, 8}}
	if !equal2D(got, want) {
		t.Fatalf("%v, expected %v", got, want)
	}
}

func TestTensorProductPartialMultiply(t *testing.T) {
	t.Parallel()
	lop := map[OpName]Operand{
		{Name: "N"}: mkMat(qVac, qVac, qVac, [][]complex64{{0, 0}, {0, 1}}),
	}
	rop := map[OpName]Operand{
		IdentityOp: mkMat(qVac, qUp, qUp, [][]complex64{{1}}),
	}
	cmat := mkMat(qUp, qVac, qUp, [][]complex64{{2}, {3}})
	vmat := NewMatrix(cmat.Info)
	expr := &Prod{A: E("N", qVac, 1), B: E("I", qUp, 1), Factor: 1}

	f := NewFuncs(NewKernel(SeqNone))
	f.TensorProductPartialMultiply(expr, lop, rop, true, cmat,
		[]qn.Q{qUp}, []*Matrix{vmat}, nil)

	if got, want := blockVals(vmat, 0), [][]complex64{{0}, {3}}; !equal2D(got, want) {
		t.Fatalf("%v, expected %v", got, want)
	}
}

func TestArchive(t *testing.T) {
	t.Parallel()
	ar, err := OpenArchive(filepath.Join(t.TempDir(), "ops.db"))
	require.NoError(t, err)
	defer ar.Close()

	m := mkMat(qUp, qUp, qVac, [][]complex64{{1 + 2i, 0}, {0, 3}})
	m.Factor = 2
	require.NoError(t, ar.Put("left/H", m))

	loaded, err := ar.Load("left/H", m.Info)
	require.NoError(t, err)
	require.Equal(t, m.Factor, loaded.Factor)
	require.Equal(t, blockVals(m, 0), blockVals(loaded, 0))

	d := ar.Delayed("left/H", m.Info)
	got, release := d.Materialize()
	require.Equal(t, blockVals(m, 0), blockVals(got, 0))
	release()

	_, err = ar.Load("missing", m.Info)
	require.Error(t, err)
}

func TestAssignSelective(t *testing.T) {
	t.Parallel()
	wide := NewInfo(qVac, []Sector{
		{Bra: qVac, Ket: qVac, Rows: 1, Cols: 1},
		{Bra: qUp, Ket: qUp, Rows: 1, Cols: 1},
	})
	src := NewMatrix(wide)
	src.Blocks[0].SetAt([]int{0, 0}, 7)
	src.Blocks[1].SetAt([]int{0, 0}, 8)

	narrow := NewInfo(qVac, []Sector{{Bra: qUp, Ket: qUp, Rows: 1, Cols: 1}})
	a := NewOperatorTensor(NewRowVec(1), NewColVec(1))
	a.Lmat.Set(0, 0, E("H", qVac, 1))
	a.Ops[OpName{Name: "H"}] = src
	c := NewOperatorTensor(NewRowVec(1), NewColVec(1))
	c.Lmat.Set(0, 0, E("H", qVac, 1))
	c.Ops[OpName{Name: "H"}] = NewMatrix(narrow)

	NewFuncs(NewKernel(SeqNone)).LeftAssign(a, c)
	got := c.Ops[OpName{Name: "H"}].(*Matrix)
	if v := got.Blocks[0].At(0, 0); v != 8 {
		t.Fatalf("%v, expected 8", v)
	}
}

func equal2D(a, b [][]complex64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}
