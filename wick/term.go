package wick

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Term is a single product of tensors with a set of summed (contracted)
// indices and a scalar prefactor.
type Term struct {
	Tensors []Tensor
	Ctr     IndexSet
	Factor  float64
}

// NewTerm returns factor times the product of the given tensors with no
// summed indices.
func NewTerm(factor float64, tensors ...Tensor) Term {
	return Term{Tensors: tensors, Factor: factor}
}

func tensorsEqual(a, b []Tensor) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func tensorsLess(a, b []Tensor) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if !a[i].Equal(b[i]) {
			return a[i].Less(b[i])
		}
	}
	return len(a) < len(b)
}

// AbsEqual compares tensors and summed indices, ignoring the prefactor.
func (w Term) AbsEqual(o Term) bool {
	return len(w.Tensors) == len(o.Tensors) && len(w.Ctr) == len(o.Ctr) &&
		tensorsEqual(w.Tensors, o.Tensors) && w.Ctr.Equal(o.Ctr)
}

// Equal compares terms including the prefactor.
func (w Term) Equal(o Term) bool {
	return w.Factor == o.Factor && w.AbsEqual(o)
}

// Less orders terms by tensor count, summed-index count, tensors, summed
// indices, then prefactor.
func (w Term) Less(o Term) bool {
	if len(w.Tensors) != len(o.Tensors) {
		return len(w.Tensors) < len(o.Tensors)
	}
	if len(w.Ctr) != len(o.Ctr) {
		return len(w.Ctr) < len(o.Ctr)
	}
	if !tensorsEqual(w.Tensors, o.Tensors) {
		return tensorsLess(w.Tensors, o.Tensors)
	}
	if !w.Ctr.Equal(o.Ctr) {
		return w.Ctr.Less(o.Ctr)
	}
	return w.Factor < o.Factor
}

// ParseTerm reads one term like "0.5 SUM <pqrs> v[pqrs] C[p] C[q] D[s] D[r]"
// or "(0.25) \sum_{abij} t[abij] C[a] C[b] D[j] D[i]".
func ParseTerm(expr string, tm TypeMap, pm PermMap) (Term, error) {
	var tensors []Tensor
	var ctr IndexSet
	var sumExpr, facExpr, tensorExpr strings.Builder
	idx := 0
	for ; idx < len(expr); idx++ {
		c := expr[idx]
		if c == ' ' || c == '(' {
			continue
		} else if (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+' {
			facExpr.WriteByte(c)
		} else {
			break
		}
	}
	for ; idx < len(expr) && (expr[idx] == ')' || expr[idx] == ' '); idx++ {
	}
	hasSum := false
	if strings.HasPrefix(expr[idx:], "\\sum_{") {
		idx += 6
		hasSum = true
	} else if strings.HasPrefix(expr[idx:], "SUM <") {
		idx += 5
		hasSum = true
	}
	for ; idx < len(expr) && hasSum; idx++ {
		c := expr[idx]
		if c == '}' || c == '|' || c == '>' {
			break
		} else if c == ' ' {
			continue
		}
		sumExpr.WriteByte(c)
	}
	if idx < len(expr) && expr[idx] == '|' {
		for ; idx < len(expr); idx++ {
			if expr[idx] == '>' {
				break
			}
		}
	}
	if idx < len(expr) && (expr[idx] == '}' || expr[idx] == '>') {
		idx++
	}
	for ; idx < len(expr); idx++ {
		c := expr[idx]
		if c == ' ' {
			continue
		}
		tensorExpr.WriteByte(c)
		if c == '}' || c == ']' {
			wt, err := ParseTensor(tensorExpr.String(), tm, pm)
			if err != nil {
				return Term{}, err
			}
			tensors = append(tensors, wt)
			tensorExpr.Reset()
		}
	}
	if sumExpr.Len() != 0 {
		ctr = ParseIndexSetTyped(sumExpr.String(), tm)
	}
	if tensorExpr.Len() != 0 {
		wt, err := ParseTensor(tensorExpr.String(), tm, pm)
		if err != nil {
			return Term{}, err
		}
		tensors = append(tensors, wt)
	}
	xfac := 1.0
	switch fe := facExpr.String(); fe {
	case "", "+":
	case "-":
		xfac = -1
	default:
		f, err := strconv.ParseFloat(fe, 64)
		if err != nil {
			return Term{}, fmt.Errorf("term %q: bad factor %q", expr, fe)
		}
		xfac = f
	}
	return Term{Tensors: tensors, Ctr: ctr, Factor: xfac}, nil
}

// UsedIndices returns every index appearing in the term.
func (w Term) UsedIndices() IndexSet {
	var r IndexSet
	for _, wt := range w.Tensors {
		for _, wi := range wt.Indices {
			r.Add(wi)
		}
	}
	return r
}

// freshIndex returns base with an integer suffix appended until the name is
// unused, and records it as used.
func freshIndex(base Index, used *IndexSet) Index {
	for i := 1; ; i++ {
		g := Index{Name: base.Name + strconv.Itoa(i), Types: base.Types}
		if !used.Has(g) {
			used.Add(g)
			return g
		}
	}
}

// Mul concatenates the two products, renaming summed indices of either
// factor that collide with indices of the other.
func (w Term) Mul(o Term) Term {
	xt := make([]Tensor, 0, len(w.Tensors)+len(o.Tensors))
	for _, wt := range w.Tensors {
		xt = append(xt, wt.clone())
	}
	for _, wt := range o.Tensors {
		xt = append(xt, wt.clone())
	}
	aIdxs, bIdxs := w.UsedIndices(), o.UsedIndices()
	used := aIdxs.Union(bIdxs)
	// summed in a and appearing in b, and vice versa
	aRep := w.Ctr.Intersect(bIdxs)
	bRep := o.Ctr.Intersect(aIdxs)
	cRep := w.Ctr.Intersect(o.Ctr)
	mp := make(map[Index]Index)
	for _, idx := range used.Clone() {
		if aRep.Has(idx) || bRep.Has(idx) {
			mp[idx] = freshIndex(idx, &used)
		}
	}
	// rename a summed index of a if it is also a free index of b
	for i := 0; i < len(w.Tensors); i++ {
		for k, wi := range xt[i].Indices {
			if g, ok := mp[wi]; ok && aRep.Has(wi) && !cRep.Has(wi) {
				xt[i].Indices[k] = g
			}
		}
	}
	// rename a summed index of b if it appears anywhere in a
	for i := len(w.Tensors); i < len(xt); i++ {
		for k, wi := range xt[i].Indices {
			if g, ok := mp[wi]; ok && bRep.Has(wi) {
				xt[i].Indices[k] = g
			}
		}
	}
	var xctr IndexSet
	for _, wi := range w.Ctr {
		if g, ok := mp[wi]; ok && aRep.Has(wi) && !cRep.Has(wi) {
			xctr.Add(g)
		} else {
			xctr.Add(wi)
		}
	}
	for _, wi := range o.Ctr {
		if g, ok := mp[wi]; ok && bRep.Has(wi) {
			xctr.Add(g)
		} else {
			xctr.Add(wi)
		}
	}
	return Term{Tensors: xt, Ctr: xctr, Factor: w.Factor * o.Factor}
}

// Scale multiplies the prefactor by d.
func (w Term) Scale(d float64) Term {
	return Term{Tensors: w.Tensors, Ctr: w.Ctr, Factor: w.Factor * d}
}

// Abs drops the prefactor (sets it to 1).
func (w Term) Abs() Term {
	return Term{Tensors: w.Tensors, Ctr: w.Ctr, Factor: 1}
}

// Def is a named tensor definition: the left-hand tensor with its formal
// indices, and the expansion it stands for.
type Def struct {
	Lhs Tensor
	Rhs []Term
}

// Substitute expands every tensor of the term that has a definition,
// producing the Cartesian product over multi-term definitions. Summed
// indices of a definition body are renamed to avoid collisions.
func (w Term) Substitute(defs map[string]Def) []Term {
	r := []Term{{Ctr: w.Ctr.Clone(), Factor: w.Factor}}
	for _, wt := range w.Tensors {
		def, ok := defs[wt.Name]
		if !ok {
			for i := range r {
				r[i].Tensors = append(r[i].Tensors, wt)
			}
			continue
		}
		if len(def.Lhs.Indices) != len(wt.Indices) {
			panic(fmt.Sprintf("definition of %s has arity %d, used with %d",
				wt.Name, len(def.Lhs.Indices), len(wt.Indices)))
		}
		var rx []Term
		for _, rr := range r {
			for _, dx := range def.Rhs {
				rg := Term{
					Tensors: append([]Tensor{}, rr.Tensors...),
					Ctr:     rr.Ctr.Clone(),
					Factor:  rr.Factor * dx.Factor,
				}
				used := rr.UsedIndices()
				for _, wi := range wt.Indices {
					used.Add(wi)
				}
				idxMap := make(map[Index]Index)
				for i := range wt.Indices {
					idxMap[def.Lhs.Indices[i]] = wt.Indices[i]
				}
				for _, wi := range dx.Ctr {
					g := wi
					if used.Has(g) {
						g = freshIndex(wi, &used)
					} else {
						used.Add(g)
					}
					rg.Ctr.Add(g)
					idxMap[wi] = g
				}
				for _, wx := range dx.Tensors {
					wc := wx.clone()
					for k, wi := range wc.Indices {
						g, ok := idxMap[wi]
						if !ok {
							panic(fmt.Sprintf("definition of %s: unbound index %s",
								wt.Name, wi.Name))
						}
						wc.Indices[k] = g
					}
					rg.Tensors = append(rg.Tensors, wc)
				}
				rx = append(rx, rg)
			}
		}
		r = rx
	}
	return r
}

// HasExternalOps reports whether any elementary operator of the term
// carries an external index.
func (w Term) HasExternalOps() bool {
	for _, wt := range w.Tensors {
		if wt.Kind == KindSpinFree || wt.Kind == KindCre || wt.Kind == KindDes {
			for _, wi := range wt.Indices {
				if wi.Types&IndexExternal != 0 {
					return true
				}
			}
		}
	}
	return false
}

// SimpleSort sorts each tensor under its own symmetry group and orders the
// coefficient tensors, keeping operators in place at the end.
func (w Term) SimpleSort() Term {
	var cd, ot []Tensor
	xf := w.Factor
	for _, wt := range w.Tensors {
		if wt.Kind == KindDelta || wt.Kind == KindTensor {
			ot = append(ot, wt.Sort(&xf))
		} else {
			cd = append(cd, wt.Sort(&xf))
		}
	}
	sort.SliceStable(ot, func(i, j int) bool { return ot[i].Less(ot[j]) })
	return Term{Tensors: append(ot, cd...), Ctr: w.Ctr, Factor: xf}
}

// QuickSort renames the summed indices to canonical integer names,
// choosing the lexicographically smallest renaming consistent with every
// tensor's symmetry group, so that equivalent terms become identical.
func (w Term) QuickSort() Term {
	var cd, ot []Tensor
	xf := w.Factor
	for _, wt := range w.Tensors {
		if wt.Kind == KindDelta || wt.Kind == KindTensor {
			ot = append(ot, wt.Sort(&xf))
		} else {
			cd = append(cd, wt.Sort(&xf))
		}
	}
	sort.Slice(ot, func(i, j int) bool {
		if ot[i].Name != ot[j].Name {
			return ot[i].Name < ot[j].Name
		}
		return len(ot[i].Indices) < len(ot[j].Indices)
	})
	var groups []int
	for i := range ot {
		if i == 0 || ot[i].Name != ot[i-1].Name ||
			len(ot[i].Indices) != len(ot[i-1].Indices) {
			groups = append(groups, i)
		}
	}
	groups = append(groups, len(ot))
	kidx := 0
	otSorted := make([]Tensor, len(ot))
	ctrMaps := []ctrAssign{{assign: make(map[Index]int), sign: 1}}
	for ig := 0; ig < len(groups)-1; ig++ {
		base := groups[ig]
		wta := make([]int, groups[ig+1]-base)
		for j := range wta {
			wta[j] = base + j
		}
		wtb := otSorted[base:]
		for j := 0; j < len(wta); j++ {
			jxx, jixx := -1, -1
			for k := j; k < len(wta); k++ {
				jidx := kidx
				wtb[k] = ot[wta[k]].sortWithMaps(w.Ctr, ctrMaps, &jidx)
				if k == j || cmpIndices(wtb[k].Indices, wtb[j].Indices) < 0 {
					wtb[j] = wtb[k]
					jxx, jixx = k, jidx
				}
			}
			ctrMaps = ot[wta[jxx]].sortGenMaps(wtb[j], w.Ctr, ctrMaps, kidx)
			kidx = jixx
			if jxx != j {
				wta[jxx], wta[j] = wta[j], wta[jxx]
			}
		}
	}
	for _, wt := range cd {
		jidx := kidx
		s := wt.sortWithMaps(w.Ctr, ctrMaps, &kidx)
		otSorted = append(otSorted, s)
		ctrMaps = wt.sortGenMaps(s, w.Ctr, ctrMaps, jidx)
	}
	if kidx != len(ctrMaps[0].assign) || kidx != len(w.Ctr) {
		panic(fmt.Sprintf("canonical sort: %d summed indices, %d assigned", len(w.Ctr), kidx))
	}
	var xctr IndexSet
	for _, wi := range w.Ctr {
		wi.Name = strconv.Itoa(ctrMaps[0].assign[wi])
		xctr.Add(wi)
	}
	return Term{Tensors: otSorted, Ctr: xctr, Factor: xf * float64(ctrMaps[0].sign)}
}

// SimplifyDelta eliminates Kronecker deltas: a delta over a summed index
// substitutes the partner index everywhere; a delta over two free indices
// of incompatible types zeroes the term; duplicate free deltas collapse.
func (w Term) SimplifyDelta() Term {
	xt := make([]Tensor, len(w.Tensors))
	for i, wt := range w.Tensors {
		xt[i] = wt.clone()
	}
	xctr := w.Ctr.Clone()
	xfactor := w.Factor
	var xidxs []int
	for i := 0; i < len(xt); i++ {
		if xt[i].Kind != KindDelta {
			xidxs = append(xidxs, i)
			continue
		}
		ia, ib := xt[i].Indices[0], xt[i].Indices[1]
		if ia == ib {
			continue
		}
		if (ia.Types != IndexNone || ib.Types != IndexNone) &&
			ia.Types&ib.Types == IndexNone {
			xfactor = 0
		} else if !xctr.Has(ia) && !xctr.Has(ib) {
			found := false
			for _, j := range xidxs {
				if xt[j].Kind == KindDelta &&
					((xt[j].Indices[0] == ia && xt[j].Indices[1] == ib) ||
						(xt[j].Indices[0] == ib && xt[j].Indices[1] == ia)) {
					found = true
					break
				}
			}
			if !found {
				xidxs = append(xidxs, i)
			}
		} else {
			var ic Index
			if xctr.Has(ia) {
				ic = Index{Name: ib.Name, Types: ia.Types & ib.Types}
				xctr.Remove(ia)
			} else {
				ic = Index{Name: ia.Name, Types: ia.Types & ib.Types}
				xctr.Remove(ib)
			}
			for j := range xt {
				if j == i {
					continue
				}
				for k := range xt[j].Indices {
					if xt[j].Indices[k] == ia || xt[j].Indices[k] == ib {
						xt[j].Indices[k] = ic
					}
				}
			}
		}
	}
	out := make([]Tensor, len(xidxs))
	for i, id := range xidxs {
		out[i] = xt[id]
	}
	return Term{Tensors: out, Ctr: xctr, Factor: xfactor}
}

func (w Term) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "(%16.10f) ", w.Factor)
	if len(w.Ctr) != 0 {
		d := ""
		for _, ci := range w.Ctr {
			if !ci.isShort() {
				d = " "
				break
			}
		}
		b.WriteString("SUM <")
		b.WriteString(d)
		for _, ci := range w.Ctr {
			b.WriteString(ci.Name)
			b.WriteString(d)
		}
		hasTypes := false
		for _, ci := range w.Ctr {
			if ci.HasTypes() {
				hasTypes = true
				break
			}
		}
		if hasTypes {
			b.WriteString("|")
			for _, ci := range w.Ctr {
				ts := ci.Types.String()
				b.WriteString(ts)
				if len(ts) > 1 {
					b.WriteString(" ")
				}
			}
		}
		b.WriteString("> ")
	}
	for i, wt := range w.Tensors {
		b.WriteString(wt.String())
		if i != len(w.Tensors)-1 {
			b.WriteString(" ")
		}
	}
	return b.String()
}
