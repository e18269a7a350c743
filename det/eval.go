package det

import (
	"context"
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/jlatone/block2-preview/pool"
	"github.com/jlatone/block2-preview/qn"
)

// partial holds the row vectors of a partially contracted prefix, one
// per surviving left label.
type partial map[qn.Q][]float64

// step contracts one more site into the partials along occupation sym.
// With csf, the spin-lowering symbol is only taken from labels with
// spin left to lower.
func step(parts partial, site *Site, sym uint8, csf bool) partial {
	var out partial
	for q, vec := range parts {
		if csf && sym == OccBeta && q.TwoS <= 0 {
			continue
		}
		for _, blk := range site.Blocks[sym] {
			if blk.Bra != q {
				continue
			}
			_, c := blk.Mat.Dims()
			res := mat.NewDense(1, c, nil)
			res.Mul(mat.NewDense(1, len(vec), vec), blk.Mat)
			if out == nil {
				out = make(partial)
			}
			dst, ok := out[blk.Ket]
			if !ok {
				dst = make([]float64, c)
				out[blk.Ket] = dst
			}
			floats.Add(dst, res.RawRowView(0))
		}
	}
	return out
}

// leafAmplitude returns the single amplitude surviving after the last
// site. A full-length prefix must end in exactly the target sector with
// bond dimension one; anything else means the state is malformed.
func leafAmplitude(parts partial, target qn.Q) float64 {
	if len(parts) != 1 {
		panic(fmt.Sprintf("%d sectors at a leaf, want 1", len(parts)))
	}
	v, ok := parts[target]
	if !ok {
		panic(fmt.Sprintf("leaf sector is not the target %v", target))
	}
	if len(v) != 1 {
		panic(fmt.Sprintf("leaf bond dimension %d, want 1", len(v)))
	}
	return v[0]
}

func (parts partial) norm() float64 {
	var r float64
	for _, v := range parts {
		r += floats.Dot(v, v)
	}
	return math.Sqrt(r)
}

type frame struct {
	node  int32
	depth int
	parts partial
}

// Evaluate computes the amplitude of every stored configuration against
// the state. Subtrees whose partial contraction norm falls below cutoff
// are pruned, leaving their amplitudes zero. An empty trie is populated
// instead with every configuration surviving the cutoff.
func (t *Trie) Evaluate(ctx context.Context, p *pool.Pool, state *MPS, cutoff float64) error {
	return t.evaluate(ctx, p, state, cutoff, false)
}

// EvaluateCSF computes amplitudes of spin-coupled configurations: the
// alpha and beta symbols raise and lower the total spin of the prefix,
// and lowering below zero is forbidden.
func (t *Trie) EvaluateCSF(ctx context.Context, p *pool.Pool, state *MPS, cutoff float64) error {
	return t.evaluate(ctx, p, state, cutoff, true)
}

func (t *Trie) evaluate(ctx context.Context, p *pool.Pool, state *MPS, cutoff float64, csf bool) error {
	if len(state.Sites) != t.NSites {
		return errors.Errorf("state has %d sites, trie has %d", len(state.Sites), t.NSites)
	}
	if t.Len() == 0 {
		return t.populate(ctx, state, cutoff, csf)
	}
	root := partial{state.Vacuum: []float64{1}}
	return p.Run(4, func(tid, lo, hi int) error {
		for sym := lo; sym < hi; sym++ {
			child := t.nodes[0][sym]
			if child == 0 {
				continue
			}
			parts := step(root, state.Sites[0], uint8(sym), csf)
			if err := t.descend(ctx, state, cutoff, csf, frame{node: child, depth: 1, parts: parts}); err != nil {
				return err
			}
		}
		return nil
	})
}

// descend walks one subtree depth-first with an explicit stack, writing
// amplitudes at the leaves. Workers descend disjoint subtrees, so the
// value writes never overlap.
func (t *Trie) descend(ctx context.Context, state *MPS, cutoff float64, csf bool, top frame) error {
	stack := []frame{top}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "")
		}
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if len(f.parts) == 0 {
			continue
		}
		if cutoff > 0 && f.parts.norm() < cutoff {
			continue
		}
		if f.depth == t.NSites {
			v := leafAmplitude(f.parts, state.Target)
			if i := t.index(f.node); i >= 0 {
				t.Vals[i] = v
			}
			continue
		}
		for sym := uint8(0); sym <= OccDouble; sym++ {
			child := t.nodes[f.node][sym]
			if child == 0 {
				continue
			}
			stack = append(stack, frame{
				node:  child,
				depth: f.depth + 1,
				parts: step(f.parts, state.Sites[f.depth], sym, csf),
			})
		}
	}
	return nil
}

// populate fills an empty trie with every configuration whose amplitude
// survives the cutoff. The trie grows during the walk, so this runs on
// one goroutine.
func (t *Trie) populate(ctx context.Context, state *MPS, cutoff float64, csf bool) error {
	type pframe struct {
		depth int
		det   []uint8
		parts partial
	}
	stack := []pframe{{parts: partial{state.Vacuum: []float64{1}}}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "")
		}
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if len(f.parts) == 0 {
			continue
		}
		if cutoff > 0 && f.parts.norm() < cutoff {
			continue
		}
		if f.depth == t.NSites {
			v := leafAmplitude(f.parts, state.Target)
			if err := t.PushBack(f.det); err != nil {
				return err
			}
			t.Vals[len(t.Vals)-1] = v
			continue
		}
		for sym := uint8(0); sym <= OccDouble; sym++ {
			det := make([]uint8, f.depth+1)
			copy(det, f.det)
			det[f.depth] = sym
			stack = append(stack, pframe{
				depth: f.depth + 1,
				det:   det,
				parts: step(f.parts, state.Sites[f.depth], sym, csf),
			})
		}
	}
	return nil
}

// StateOccupation returns the weight of each occupation symbol at each
// site, computed from the squared amplitudes and normalized to one per
// site.
func (t *Trie) StateOccupation(p *pool.Pool) [][4]float64 {
	w := p.Workers()
	locals := make([][][4]float64, w)
	for i := range locals {
		locals[i] = make([][4]float64, t.NSites)
	}
	p.Run(t.Len(), func(tid, lo, hi int) error {
		for i := lo; i < hi; i++ {
			v2 := t.Vals[i] * t.Vals[i]
			for site, sym := range t.At(i) {
				locals[tid][site][sym] += v2
			}
		}
		return nil
	})
	r := make([][4]float64, t.NSites)
	for _, loc := range locals {
		for site := range loc {
			for sym := range loc[site] {
				r[site][sym] += loc[site][sym]
			}
		}
	}
	for site := range r {
		var tot float64
		for _, v := range r[site] {
			tot += v
		}
		if tot > 0 {
			for sym := range r[site] {
				r[site][sym] /= tot
			}
		}
	}
	return r
}
