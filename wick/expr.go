package wick

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jlatone/block2-preview/pool"
)

// mergeEps is the magnitude below which a merged prefactor counts as zero.
const mergeEps = 1e-12

// Expr is a sum of terms.
type Expr struct {
	Terms []Term
}

// NewExpr returns an expression holding the given terms.
func NewExpr(terms ...Term) Expr {
	return Expr{Terms: terms}
}

func cloneTerm(w Term) Term {
	xt := make([]Tensor, len(w.Tensors))
	for i, wt := range w.Tensors {
		xt[i] = wt.clone()
	}
	return Term{Tensors: xt, Ctr: w.Ctr.Clone(), Factor: w.Factor}
}

// Parse reads one term per line.
func Parse(expr string, tm TypeMap, pm PermMap) (Expr, error) {
	var terms []Term
	for _, line := range strings.FieldsFunc(expr, func(r rune) bool {
		return r == '\n' || r == '\r'
	}) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		t, err := ParseTerm(line, tm, pm)
		if err != nil {
			return Expr{}, err
		}
		terms = append(terms, t)
	}
	return Expr{Terms: terms}, nil
}

// ParseDef reads a definition "lhs = expr" where expr may span several
// lines after the equals sign.
func ParseDef(expr string, tm TypeMap, pm PermMap) (Def, error) {
	i := strings.IndexByte(expr, '=')
	if i < 0 {
		return Def{}, fmt.Errorf("definition %q: missing '='", expr)
	}
	lhs, err := ParseTensor(expr[:i], tm, pm)
	if err != nil {
		return Def{}, err
	}
	rhs, err := Parse(expr[i+1:], tm, pm)
	if err != nil {
		return Def{}, err
	}
	return Def{Lhs: lhs, Rhs: rhs.Terms}, nil
}

// Add returns the term-wise concatenation of e and o.
func (e Expr) Add(o Expr) Expr {
	xt := make([]Term, 0, len(e.Terms)+len(o.Terms))
	xt = append(xt, e.Terms...)
	xt = append(xt, o.Terms...)
	return Expr{Terms: xt}
}

// Sub returns e minus o.
func (e Expr) Sub(o Expr) Expr {
	return e.Add(o.Scale(-1))
}

// Scale multiplies every prefactor by d.
func (e Expr) Scale(d float64) Expr {
	xt := make([]Term, len(e.Terms))
	for i, t := range e.Terms {
		xt[i] = t.Scale(d)
	}
	return Expr{Terms: xt}
}

// Mul distributes the product of two sums.
func (e Expr) Mul(o Expr) Expr {
	xt := make([]Term, 0, len(e.Terms)*len(o.Terms))
	for _, ta := range e.Terms {
		for _, tb := range o.Terms {
			xt = append(xt, ta.Mul(tb))
		}
	}
	return Expr{Terms: xt}
}

// Commutator returns a*b - b*a.
func Commutator(a, b Expr) Expr {
	return a.Mul(b).Sub(b.Mul(a))
}

// ContractAll multiplies a and b and marks every index of the result as
// summed, forming a full trace against the reference.
func ContractAll(a, b Expr) Expr {
	c := a.Mul(b)
	for i := range c.Terms {
		ws := &c.Terms[i]
		ws.Ctr = ws.Ctr.Clone()
		for _, wt := range ws.Tensors {
			for _, wi := range wt.Indices {
				ws.Ctr.Add(wi)
			}
		}
	}
	return c
}

// Substitute expands defined tensors in every term.
func (e Expr) Substitute(defs map[string]Def) Expr {
	var r Expr
	for _, ws := range e.Terms {
		r.Terms = append(r.Terms, ws.Substitute(defs)...)
	}
	return r
}

// splitIndexTypesTerm expands every summed index whose type mask spans
// several orbital spaces into one term per single-space assignment.
func splitIndexTypesTerm(x Term) []Term {
	vidxs := append([]Index{}, x.Ctr...)
	xctrIdxs := [][]Index{append([]Index{}, vidxs...)}
	const checkMask = IndexInactive | IndexActive | IndexExternal
	checkTypes := []IndexTypes{IndexInactive, IndexActive, IndexExternal}
	for i := range vidxs {
		k, nk := 0, len(xctrIdxs)
		for _, ct := range checkTypes {
			if vidxs[i].Types&ct == IndexNone || vidxs[i].Types&checkMask == ct {
				continue
			}
			if k != 0 {
				for l := 0; l < nk; l++ {
					dup := append([]Index{}, xctrIdxs[l]...)
					xctrIdxs = append(xctrIdxs, dup)
				}
			}
			for l := 0; l < nk; l++ {
				tp := xctrIdxs[k*nk+l][i].Types
				xctrIdxs[k*nk+l][i].Types = tp&^checkMask | ct
			}
			k++
		}
	}
	var out []Term
	for _, ci := range xctrIdxs {
		term := cloneTerm(Term{Tensors: x.Tensors, Ctr: nil, Factor: x.Factor})
		term.Ctr = NewIndexSet(ci...)
		zero := term.Factor == 0
		for ti := range term.Tensors {
			wt := &term.Tensors[ti]
			for kk := range wt.Indices {
				for _, wii := range ci {
					if wt.Indices[kk].WithNoTypes() == wii.WithNoTypes() &&
						wt.Indices[kk].Types&wii.Types != IndexNone {
						wt.Indices[kk] = wii
					}
				}
			}
			if len(wt.Perms) == 0 {
				zero = true
			}
		}
		if !zero {
			out = append(out, term)
		}
	}
	return out
}

// SplitIndexTypes expands mixed-space summed indices in every term.
func (e Expr) SplitIndexTypes() Expr {
	var r Expr
	for _, term := range e.Terms {
		r.Terms = append(r.Terms, splitIndexTypesTerm(term)...)
	}
	return r
}

// normalOrder expands every term in parallel over the pool, concatenating
// the per-chunk results in chunk order.
func (e Expr) normalOrder(p *pool.Pool, maxUnctr int, noCtr bool) Expr {
	w := p.Workers()
	chunks := make([][]Term, w)
	p.Run(len(e.Terms), func(tid, lo, hi int) error {
		for k := lo; k < hi; k++ {
			chunks[tid] = append(chunks[tid], normalOrderTerm(e.Terms[k], maxUnctr, noCtr)...)
		}
		return nil
	})
	var r Expr
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	r.Terms = make([]Term, 0, n)
	for _, c := range chunks {
		r.Terms = append(r.Terms, c...)
	}
	return r
}

// Expand splits mixed-space summed indices and rewrites every term into
// normal order. maxUnctr = -1 keeps terms with any number of surviving
// operators; noCtr keeps only the fully uncontracted reordering.
func (e Expr) Expand(p *pool.Pool, maxUnctr int, noCtr bool) Expr {
	return e.SplitIndexTypes().normalOrder(p, maxUnctr, noCtr)
}

// SimpleSort sorts each term's tensors without canonical index renaming.
func (e Expr) SimpleSort() Expr {
	r := Expr{Terms: make([]Term, len(e.Terms))}
	for i, t := range e.Terms {
		r.Terms[i] = t.SimpleSort()
	}
	return r
}

// SimplifyDelta eliminates Kronecker deltas in every term.
func (e Expr) SimplifyDelta() Expr {
	r := Expr{Terms: make([]Term, len(e.Terms))}
	for i, t := range e.Terms {
		r.Terms[i] = t.SimplifyDelta()
	}
	return r
}

// SimplifyZero drops terms with negligible prefactor or no tensors.
func (e Expr) SimplifyZero() Expr {
	var r Expr
	for _, t := range e.Terms {
		if math.Abs(t.Factor) > mergeEps && len(t.Tensors) != 0 {
			r.Terms = append(r.Terms, t)
		}
	}
	return r
}

// SimplifyMerge brings every term into canonical form in parallel, then
// merges terms equal up to the prefactor, accumulating signed factors.
func (e Expr) SimplifyMerge(p *pool.Pool) Expr {
	sorted := make([]Term, len(e.Terms))
	p.Run(len(e.Terms), func(tid, lo, hi int) error {
		for k := lo; k < hi; k++ {
			sorted[k] = e.Terms[k].Abs().QuickSort()
		}
		return nil
	})
	type bucket struct {
		first  int
		factor float64
	}
	var ridxs []bucket
	for i := range e.Terms {
		found := false
		for j := range ridxs {
			if sorted[i].AbsEqual(sorted[ridxs[j].first]) {
				found = true
				ridxs[j].factor += e.Terms[i].Factor * sorted[i].Factor *
					sorted[ridxs[j].first].Factor
				break
			}
		}
		if !found {
			ridxs = append(ridxs, bucket{first: i, factor: e.Terms[i].Factor})
		}
	}
	var r Expr
	for _, m := range ridxs {
		t := e.Terms[m.first]
		t.Factor = m.factor
		r.Terms = append(r.Terms, t)
	}
	r = r.SimplifyZero()
	sort.SliceStable(r.Terms, func(i, j int) bool { return r.Terms[i].Less(r.Terms[j]) })
	return r
}

// Simplify eliminates deltas, drops zeros and merges equivalent terms.
func (e Expr) Simplify(p *pool.Pool) Expr {
	return e.SimplifyDelta().SimplifyZero().SimplifyMerge(p)
}

// RemoveExternal drops terms whose operators carry external indices.
func (e Expr) RemoveExternal() Expr {
	var r Expr
	for _, t := range e.Terms {
		if !t.HasExternalOps() {
			r.Terms = append(r.Terms, t)
		}
	}
	return r
}

// AddSpinFreeTransSymm upgrades the symmetry of terms holding exactly one
// spin-free operator: taken as a density matrix on a real reference state,
// it also has the hermitian pair-swap symmetry.
func (e Expr) AddSpinFreeTransSymm() Expr {
	r := Expr{Terms: make([]Term, len(e.Terms))}
	for i, t := range e.Terms {
		rt := cloneTerm(t)
		found, fi := 0, -1
		for j, wt := range rt.Tensors {
			if wt.Kind == KindSpinFree {
				found++
				fi = j
			}
		}
		if found == 1 {
			wt := &rt.Tensors[fi]
			wt.Perms = CompleteSet(len(wt.Indices),
				PairSymmetric(len(wt.Indices)/2, true))
		}
		r.Terms[i] = rt
	}
	return r
}

// Conjugate takes the hermitian conjugate: creation and destruction swap,
// spin-free operators swap their index halves, and the operator order in
// each term is reversed.
func (e Expr) Conjugate() Expr {
	r := Expr{Terms: make([]Term, len(e.Terms))}
	for ti, t := range e.Terms {
		rt := cloneTerm(t)
		var transformed []Tensor
		for _, wt := range rt.Tensors {
			switch wt.Kind {
			case KindSpinFree:
				wc := wt.clone()
				k := len(wc.Indices) / 2
				for i := 0; i < k; i++ {
					wc.Indices[i], wc.Indices[i+k] = wc.Indices[i+k], wc.Indices[i]
				}
				transformed = append(transformed, wc)
			case KindCre:
				wc := wt.clone()
				wc.Kind = KindDes
				if wc.Name == "C" {
					wc.Name = "D"
				}
				transformed = append(transformed, wc)
			case KindDes:
				wc := wt.clone()
				wc.Kind = KindCre
				if wc.Name == "D" {
					wc.Name = "C"
				}
				transformed = append(transformed, wc)
			}
		}
		for i := range rt.Tensors {
			switch rt.Tensors[i].Kind {
			case KindSpinFree, KindCre, KindDes:
				rt.Tensors[i] = transformed[len(transformed)-1]
				transformed = transformed[:len(transformed)-1]
			}
		}
		r.Terms[ti] = rt
	}
	return r
}

func (e Expr) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "EXPR /%d/", len(e.Terms))
	if len(e.Terms) != 0 {
		b.WriteString("\n")
	}
	for _, t := range e.Terms {
		b.WriteString(t.String())
		b.WriteString("\n")
	}
	return b.String()
}
