package det

import (
	"context"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/jlatone/block2-preview/pool"
	"github.com/jlatone/block2-preview/qn"
)

func TestTrie(t *testing.T) {
	t.Parallel()
	tr := NewTrie(3)
	dets := [][]uint8{{1, 2, 0}, {3, 0, 0}, {1, 2, 3}}
	for _, d := range dets {
		if err := tr.PushBack(d); err != nil {
			t.Fatalf("%+v", err)
		}
	}
	if tr.Len() != 3 {
		t.Fatalf("%d, expected 3", tr.Len())
	}
	for i, d := range dets {
		if got := tr.Find(d); got != i {
			t.Fatalf("%d, expected %d", got, i)
		}
		got := tr.At(i)
		for k := range d {
			if got[k] != d[k] {
				t.Fatalf("%v, expected %v", got, d)
			}
		}
	}
	if got := tr.Find([]uint8{0, 0, 0}); got != -1 {
		t.Fatalf("%d, expected -1", got)
	}

	if err := tr.PushBack([]uint8{1, 2, 0}); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if err := tr.PushBack([]uint8{1, 2}); err == nil {
		t.Fatalf("expected length error")
	}
	if err := tr.PushBack([]uint8{4, 0, 0}); err == nil {
		t.Fatalf("expected symbol error")
	}
}

func TestEvaluateProductState(t *testing.T) {
	t.Parallel()
	det := []uint8{1, 2, 0, 3}
	state := NewProductState(det, qn.Q{})

	tr := NewTrie(4)
	others := [][]uint8{{1, 2, 0, 3}, {2, 1, 0, 3}, {1, 2, 3, 0}}
	for _, d := range others {
		if err := tr.PushBack(d); err != nil {
			t.Fatalf("%+v", err)
		}
	}
	if err := tr.Evaluate(context.Background(), pool.New(2), state, 0); err != nil {
		t.Fatalf("%+v", err)
	}
	want := []float64{1, 0, 0}
	for i, w := range want {
		if tr.Vals[i] != w {
			t.Fatalf("%v, expected %v", tr.Vals, want)
		}
	}
	if got, want := state.Target, (qn.Q{N: 4}); got != want {
		t.Fatalf("%v, expected %v", got, want)
	}
}

// twoSiteState is 3|03> + 6|30> over two sites, unnormalized.
func twoSiteState() *MPS {
	q2 := qn.Q{N: 2}
	s0, s1 := &Site{}, &Site{}
	s0.Blocks[OccEmpty] = []Block{{Bra: qn.Q{}, Ket: qn.Q{}, Mat: mat.NewDense(1, 1, []float64{3})}}
	s0.Blocks[OccDouble] = []Block{{Bra: qn.Q{}, Ket: q2, Mat: mat.NewDense(1, 1, []float64{1})}}
	s1.Blocks[OccDouble] = []Block{{Bra: qn.Q{}, Ket: q2, Mat: mat.NewDense(1, 1, []float64{1})}}
	s1.Blocks[OccEmpty] = []Block{{Bra: q2, Ket: q2, Mat: mat.NewDense(1, 1, []float64{6})}}
	return &MPS{Vacuum: qn.Q{}, Target: q2, Sites: []*Site{s0, s1}}
}

func TestEvaluateSuperposition(t *testing.T) {
	t.Parallel()
	state := twoSiteState()
	tr := NewTrie(2)
	for _, d := range [][]uint8{{0, 3}, {3, 0}, {1, 2}} {
		if err := tr.PushBack(d); err != nil {
			t.Fatalf("%+v", err)
		}
	}
	if err := tr.Evaluate(context.Background(), pool.New(2), state, 0); err != nil {
		t.Fatalf("%+v", err)
	}
	want := []float64{3, 6, 0}
	for i, w := range want {
		if tr.Vals[i] != w {
			t.Fatalf("%v, expected %v", tr.Vals, want)
		}
	}
}

func TestEvaluateCutoff(t *testing.T) {
	t.Parallel()
	state := twoSiteState()
	tr := NewTrie(2)
	for _, d := range [][]uint8{{0, 3}, {3, 0}} {
		if err := tr.PushBack(d); err != nil {
			t.Fatalf("%+v", err)
		}
	}
	// the |30> prefix has norm 1 after the first site and is pruned
	if err := tr.Evaluate(context.Background(), pool.New(1), state, 1.5); err != nil {
		t.Fatalf("%+v", err)
	}
	if tr.Vals[0] != 3 || tr.Vals[1] != 0 {
		t.Fatalf("%v, expected [3 0]", tr.Vals)
	}
}

func TestEvaluatePopulate(t *testing.T) {
	t.Parallel()
	state := twoSiteState()
	tr := NewTrie(2)
	if err := tr.Evaluate(context.Background(), pool.New(2), state, 0.1); err != nil {
		t.Fatalf("%+v", err)
	}
	if tr.Len() != 2 {
		t.Fatalf("%d, expected 2 configurations", tr.Len())
	}
	for _, tc := range []struct {
		det  []uint8
		want float64
	}{
		{det: []uint8{0, 3}, want: 3},
		{det: []uint8{3, 0}, want: 6},
	} {
		i := tr.Find(tc.det)
		if i < 0 {
			t.Fatalf("configuration %v not found", tc.det)
		}
		if tr.Vals[i] != tc.want {
			t.Fatalf("%v, expected %v", tr.Vals[i], tc.want)
		}
	}
}

func TestEvaluateCSF(t *testing.T) {
	t.Parallel()
	// both spin orders exist as blocks, but only the up-then-down
	// coupling is a valid spin-adapted path
	up, dn, q2 := qn.Q{N: 1, TwoS: 1}, qn.Q{N: 1, TwoS: -1}, qn.Q{N: 2}
	s0, s1 := &Site{}, &Site{}
	s0.Blocks[OccAlpha] = []Block{{Bra: qn.Q{}, Ket: up, Mat: mat.NewDense(1, 1, []float64{1})}}
	s0.Blocks[OccBeta] = []Block{{Bra: qn.Q{}, Ket: dn, Mat: mat.NewDense(1, 1, []float64{1})}}
	s1.Blocks[OccBeta] = []Block{{Bra: up, Ket: q2, Mat: mat.NewDense(1, 1, []float64{1})}}
	s1.Blocks[OccAlpha] = []Block{{Bra: dn, Ket: q2, Mat: mat.NewDense(1, 1, []float64{1})}}
	state := &MPS{Vacuum: qn.Q{}, Target: q2, Sites: []*Site{s0, s1}}

	eval := func(csf bool) []float64 {
		tr := NewTrie(2)
		for _, d := range [][]uint8{{1, 2}, {2, 1}} {
			if err := tr.PushBack(d); err != nil {
				t.Fatalf("%+v", err)
			}
		}
		var err error
		if csf {
			err = tr.EvaluateCSF(context.Background(), pool.New(1), state, 0)
		} else {
			err = tr.Evaluate(context.Background(), pool.New(1), state, 0)
		}
		if err != nil {
			t.Fatalf("%+v", err)
		}
		return tr.Vals
	}
	if got := eval(false); got[0] != 1 || got[1] != 1 {
		t.Fatalf("%v, expected [1 1]", got)
	}
	if got := eval(true); got[0] != 1 || got[1] != 0 {
		t.Fatalf("%v, expected [1 0]", got)
	}
}

func TestEvaluateMalformedLeaf(t *testing.T) {
	t.Parallel()
	// the last bond carries dimension 2, so no single amplitude exists
	q2 := qn.Q{N: 2}
	site := &Site{}
	site.Blocks[OccDouble] = []Block{{Bra: qn.Q{}, Ket: q2, Mat: mat.NewDense(1, 2, []float64{7, 9})}}
	state := &MPS{Vacuum: qn.Q{}, Target: q2, Sites: []*Site{site}}

	mustPanic := func(name string, fn func()) {
		defer func() {
			if recover() == nil {
				t.Fatalf("%s: expected a panic", name)
			}
		}()
		fn()
	}
	mustPanic("evaluate", func() {
		tr := NewTrie(1)
		if err := tr.PushBack([]uint8{3}); err != nil {
			t.Fatalf("%+v", err)
		}
		tr.Evaluate(context.Background(), pool.New(1), state, 0)
	})
	mustPanic("populate", func() {
		NewTrie(1).Evaluate(context.Background(), pool.New(1), state, 0)
	})
}

func TestEvaluateCancel(t *testing.T) {
	t.Parallel()
	state := twoSiteState()
	tr := NewTrie(2)
	if err := tr.PushBack([]uint8{0, 3}); err != nil {
		t.Fatalf("%+v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tr.Evaluate(ctx, pool.New(1), state, 0); err == nil {
		t.Fatalf("expected cancellation error")
	}
}

func TestStateOccupation(t *testing.T) {
	t.Parallel()
	tr := NewTrie(2)
	for _, d := range [][]uint8{{0, 3}, {3, 0}} {
		if err := tr.PushBack(d); err != nil {
			t.Fatalf("%+v", err)
		}
	}
	tr.Vals = []float64{1, 2}
	occ := tr.StateOccupation(pool.New(2))
	eps := 1e-12
	if math.Abs(occ[0][OccEmpty]-0.2) > eps || math.Abs(occ[0][OccDouble]-0.8) > eps {
		t.Fatalf("%v, expected [0.2 0 0 0.8]", occ[0])
	}
	if math.Abs(occ[1][OccDouble]-0.2) > eps || math.Abs(occ[1][OccEmpty]-0.8) > eps {
		t.Fatalf("%v, expected [0.8 0 0 0.2]", occ[1])
	}
}
