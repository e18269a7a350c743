package optensor

import (
	"fmt"
	"sort"

	"github.com/fumin/tensor"
	"github.com/jlatone/block2-preview/qn"
)

// Sector is one allowed (bra, ket) quantum number pair of a block-sparse
// matrix, together with the dense block shape.
type Sector struct {
	Bra, Ket   qn.Q
	Rows, Cols int
}

// Info is the sparsity pattern of a block-sparse matrix: the quantum
// number the operator changes and the sorted list of allowed sectors.
type Info struct {
	DeltaQ  qn.Q
	Sectors []Sector
}

// NewInfo returns an Info with the sectors sorted by (bra, ket).
func NewInfo(deltaQ qn.Q, sectors []Sector) *Info {
	s := append([]Sector{}, sectors...)
	sort.Slice(s, func(i, j int) bool {
		if s[i].Bra != s[j].Bra {
			return s[i].Bra.Less(s[j].Bra)
		}
		return s[i].Ket.Less(s[j].Ket)
	})
	return &Info{DeltaQ: deltaQ, Sectors: s}
}

// Find returns the index of the sector with the given bra and ket, or -1.
func (info *Info) Find(bra, ket qn.Q) int {
	i := sort.Search(len(info.Sectors), func(k int) bool {
		s := info.Sectors[k]
		if s.Bra != bra {
			return !s.Bra.Less(bra)
		}
		return !s.Ket.Less(ket)
	})
	if i < len(info.Sectors) && info.Sectors[i].Bra == bra && info.Sectors[i].Ket == ket {
		return i
	}
	return -1
}

// Matrix is a block-sparse operator matrix: one dense complex block per
// sector, with an overall scalar factor.
type Matrix struct {
	Info   *Info
	Blocks []*tensor.Dense
	Factor complex64
}

// NewMatrix returns an allocated zero matrix over info.
func NewMatrix(info *Info) *Matrix {
	m := &Matrix{Info: info, Factor: 1}
	m.Allocate()
	return m
}

// Allocate creates zeroed blocks for every sector.
func (m *Matrix) Allocate() {
	m.Blocks = make([]*tensor.Dense, len(m.Info.Sectors))
	for i, s := range m.Info.Sectors {
		m.Blocks[i] = tensor.Zeros(s.Rows, s.Cols)
	}
}

// Allocated reports whether the blocks exist.
func (m *Matrix) Allocated() bool { return m.Blocks != nil }

// Deallocate drops the blocks.
func (m *Matrix) Deallocate() { m.Blocks = nil }

// CopyFrom copies blocks from a matrix with the identical sector list.
func (m *Matrix) CopyFrom(o *Matrix) {
	if len(m.Blocks) != len(o.Blocks) {
		panic(fmt.Sprintf("copy between %d and %d sectors", len(o.Blocks), len(m.Blocks)))
	}
	for i, blk := range o.Blocks {
		dst := m.Blocks[i]
		for ij, v := range blk.All() {
			dst.SetAt(ij, v)
		}
	}
	m.Factor = o.Factor
}

// SelectiveCopyFrom copies the blocks of o whose sectors exist in m,
// silently skipping the rest.
func (m *Matrix) SelectiveCopyFrom(o *Matrix) {
	for i, s := range o.Info.Sectors {
		j := m.Info.Find(s.Bra, s.Ket)
		if j < 0 {
			continue
		}
		dst := m.Blocks[j]
		for ij, v := range o.Blocks[i].All() {
			dst.SetAt(ij, v)
		}
	}
	m.Factor = o.Factor
}

// Norm2 returns the squared Frobenius norm including the scalar factor.
func (m *Matrix) Norm2() float64 {
	var r float64
	for _, blk := range m.Blocks {
		for _, v := range blk.All() {
			re, im := float64(real(v)), float64(imag(v))
			r += re*re + im*im
		}
	}
	f := m.Factor
	fn := float64(real(f))*float64(real(f)) + float64(imag(f))*float64(imag(f))
	return r * fn
}

// Operand is a block-sparse operator that may be held in memory or
// rebuilt on demand.
type Operand interface {
	// SectorInfo returns the sparsity pattern.
	SectorInfo() *Info
	// Materialize returns the in-memory matrix and a release function.
	// The release must be called when the caller no longer needs the
	// blocks; for in-memory operands it is a no-op.
	Materialize() (*Matrix, func())
}

// SectorInfo implements Operand.
func (m *Matrix) SectorInfo() *Info { return m.Info }

// Materialize implements Operand; the matrix is already in memory.
func (m *Matrix) Materialize() (*Matrix, func()) {
	return m, func() {}
}

// Delayed is an operand rebuilt by a closure each time it is needed.
// The build function must panic only on unrecoverable storage errors.
type Delayed struct {
	info  *Info
	build func() *Matrix
}

// NewDelayed wraps a build closure producing matrices over info.
func NewDelayed(info *Info, build func() *Matrix) *Delayed {
	return &Delayed{info: info, build: build}
}

// SectorInfo implements Operand.
func (d *Delayed) SectorInfo() *Info { return d.info }

// Materialize rebuilds the matrix. The returned release drops the only
// strong reference held here; block operations queued against the blocks
// keep them alive until the queue is flushed.
func (d *Delayed) Materialize() (*Matrix, func()) {
	m := d.build()
	m.Info = d.info
	return m, func() { m.Blocks = nil }
}

// Copy materializes into a fresh in-memory matrix with the same sectors.
func (d *Delayed) Copy() *Matrix {
	src, release := d.Materialize()
	defer release()
	r := NewMatrix(d.info)
	r.CopyFrom(src)
	return r
}

// SelectiveCopy materializes into a matrix over info, keeping only the
// sectors info allows.
func (d *Delayed) SelectiveCopy(info *Info) *Matrix {
	src, release := d.Materialize()
	defer release()
	r := NewMatrix(info)
	r.SelectiveCopyFrom(src)
	return r
}
