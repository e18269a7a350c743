package qn

import "testing"

func TestQ(t *testing.T) {
	t.Parallel()
	a := Q{N: 1, TwoS: 1, PG: 3}
	b := Q{N: 2, TwoS: -1, PG: 5}
	if got, want := a.Add(b), (Q{N: 3, TwoS: 0, PG: 6}); got != want {
		t.Fatalf("%v, expected %v", got, want)
	}
	if got, want := a.Add(b).Sub(b), a; got != want {
		t.Fatalf("%v, expected %v", got, want)
	}
	if got, want := a.Add(a.Neg()), (Q{PG: 0}); got != want {
		t.Fatalf("%v, expected %v", got, want)
	}
	if !a.Less(b) || b.Less(a) {
		t.Fatalf("%v should order before %v", a, b)
	}
	if got, want := a.String(), "<N=1 SZ=1/2 PG=3>"; got != want {
		t.Fatalf("%q, expected %q", got, want)
	}
}
