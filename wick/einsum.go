package wick

import (
	"fmt"
	"strings"
)

// pickSubscript assigns a distinct einsum subscript for an index, bumping
// the leading character past collisions.
func pickSubscript(name string, used map[string]bool) string {
	x := []byte(name)
	for used[string(x)] {
		x[0]++
	}
	used[string(x)] = true
	return string(x)
}

// ToEinsum renders the expression as numpy einsum statements accumulating
// into the target tensor x. Coefficient tensor names are suffixed with
// their index space letters so that sliced integral blocks can be bound to
// distinct arrays.
func (e Expr) ToEinsum(x Tensor) string {
	var b strings.Builder
	for _, term := range e.Terms {
		mp := make(map[Index]string)
		used := make(map[string]bool)
		for _, wt := range term.Tensors {
			for _, wi := range wt.Indices {
				if !term.Ctr.Has(wi) && mp[wi] == "" {
					mp[wi] = pickSubscript(wi.Name, used)
				}
			}
		}
		for _, wt := range term.Tensors {
			for _, wi := range wt.Indices {
				if mp[wi] == "" {
					mp[wi] = pickSubscript(wi.Name, used)
				}
			}
		}
		for _, wi := range x.Indices {
			if mp[wi] == "" {
				mp[wi] = pickSubscript(wi.Name, used)
			}
		}
		b.WriteString(x.Name)
		b.WriteString(" += ")
		if term.Factor != 1.0 {
			fmt.Fprintf(&b, "%v * ", term.Factor)
		}
		b.WriteString("np.einsum('")
		for i, wt := range term.Tensors {
			for _, wi := range wt.Indices {
				b.WriteString(mp[wi])
			}
			if i == len(term.Tensors)-1 {
				b.WriteString("->")
			} else {
				b.WriteString(",")
			}
		}
		for _, wi := range x.Indices {
			b.WriteString(mp[wi])
		}
		b.WriteString("'")
		for _, wt := range term.Tensors {
			b.WriteString(", ")
			b.WriteString(wt.Name)
			if wt.Kind == KindDelta || wt.Kind == KindTensor {
				for _, wi := range wt.Indices {
					b.WriteString(wi.Types.String())
				}
			}
		}
		b.WriteString(")\n")
	}
	return b.String()
}
