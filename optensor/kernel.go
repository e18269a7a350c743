package optensor

import (
	"fmt"

	"github.com/fumin/tensor"
	"github.com/jlatone/block2-preview/qn"
)

// SeqMode controls how the kernel schedules block operations.
type SeqMode int

const (
	// SeqNone executes every block operation immediately.
	SeqNone SeqMode = iota
	// SeqSimple queues operations and runs them when flushed, so that
	// operands materialized up front stay referenced only by the queue.
	SeqSimple
	// SeqAuto queues rotations into independent batches keyed by the
	// output block, flushing between batches.
	SeqAuto
)

// Seq is a queue of pending block operations.
type Seq struct {
	Mode SeqMode
	ops  []func()
}

// Queue adds an operation, or runs it at once under SeqNone.
func (s *Seq) Queue(f func()) {
	if s.Mode == SeqNone {
		f()
		return
	}
	s.ops = append(s.ops, f)
}

// Flush runs and clears the queued operations in order.
func (s *Seq) Flush() {
	for _, f := range s.ops {
		f()
	}
	s.ops = nil
}

// Len returns the number of queued operations.
func (s *Seq) Len() int { return len(s.ops) }

// Kernel performs dense block arithmetic for block-sparse operators.
// The scratch buffers are reused across calls; queued operations run
// one at a time, so sharing them is safe.
type Kernel struct {
	Seq *Seq
	buf *tensor.Dense
}

// NewKernel returns a kernel with the given scheduling mode.
func NewKernel(mode SeqMode) *Kernel {
	return &Kernel{Seq: &Seq{Mode: mode}, buf: tensor.Zeros(1)}
}

// addInto accumulates f*src into dst elementwise.
func addInto(dst, src *tensor.Dense, f complex64) {
	for ij, v := range src.All() {
		dst.SetAt(ij, dst.At(ij...)+f*v)
	}
}

// addIntoT accumulates f*srcᵀ (conjugated when conj) into dst.
func addIntoT(dst, src *tensor.Dense, f complex64, conj bool) {
	for ij, v := range src.All() {
		if conj {
			v = complex(real(v), -imag(v))
		}
		dst.SetAt([]int{ij[1], ij[0]}, dst.At(ij[1], ij[0])+f*v)
	}
}

// effSector returns the sector of blk as seen through an optional
// conjugate transpose.
func effSector(s Sector, conj bool) Sector {
	if !conj {
		return s
	}
	return Sector{Bra: s.Ket, Ket: s.Bra, Rows: s.Cols, Cols: s.Rows}
}

// blockAt reads an element through an optional conjugate transpose.
func blockAt(blk *tensor.Dense, i, j int, conj bool) complex64 {
	var v complex64
	if conj {
		v = blk.At(j, i)
		return complex(real(v), -imag(v))
	}
	return blk.At(i, j)
}

// IAdd accumulates factor * b into a sector by sector. With conj the
// conjugate transpose of b is added, matching sectors with bra and ket
// swapped. The scalar factor of b is folded in; a keeps factor one.
func (k *Kernel) IAdd(a, b *Matrix, factor complex64, conj bool) {
	f := factor * b.Factor
	for i, s := range b.Info.Sectors {
		var j int
		if conj {
			j = a.Info.Find(s.Ket, s.Bra)
		} else {
			j = a.Info.Find(s.Bra, s.Ket)
		}
		if j < 0 {
			continue
		}
		dst, src := a.Blocks[j], b.Blocks[i]
		k.Seq.Queue(func() {
			if conj {
				addIntoT(dst, src, f, true)
			} else {
				addInto(dst, src, f)
			}
		})
	}
}

// TensorProduct accumulates factor * (A ⊗ B) into c, where c lives on
// the fused block with left-factor-major ordering. Conj bit 0 takes the
// conjugate transpose of a, bit 1 of b.
func (k *Kernel) TensorProduct(conj uint8, a, b, c *Matrix, factor complex64) {
	f := factor * a.Factor * b.Factor
	ca, cb := conj&1 != 0, conj&2 != 0
	for ia, sa0 := range a.Info.Sectors {
		sa := effSector(sa0, ca)
		for ib, sb0 := range b.Info.Sectors {
			sb := effSector(sb0, cb)
			ic := c.Info.Find(sa.Bra.Add(sb.Bra), sa.Ket.Add(sb.Ket))
			if ic < 0 {
				continue
			}
			sc := c.Info.Sectors[ic]
			if sc.Rows != sa.Rows*sb.Rows || sc.Cols != sa.Cols*sb.Cols {
				panic(fmt.Sprintf("tensor product block (%d,%d) != (%d*%d,%d*%d)",
					sc.Rows, sc.Cols, sa.Rows, sb.Rows, sa.Cols, sb.Cols))
			}
			ablk, bblk, cblk := a.Blocks[ia], b.Blocks[ib], c.Blocks[ic]
			sa, sb := sa, sb
			k.Seq.Queue(func() {
				for ra := 0; ra < sa.Rows; ra++ {
					for caj := 0; caj < sa.Cols; caj++ {
						av := blockAt(ablk, ra, caj, ca)
						if av == 0 {
							continue
						}
						for rb := 0; rb < sb.Rows; rb++ {
							for cbj := 0; cbj < sb.Cols; cbj++ {
								bv := blockAt(bblk, rb, cbj, cb)
								i, j := ra*sb.Rows+rb, caj*sb.Cols+cbj
								cblk.SetAt([]int{i, j}, cblk.At(i, j)+f*av*bv)
							}
						}
					}
				}
			})
		}
	}
}

// TensorProductDiagonal accumulates the diagonal of factor * (A ⊗ B)
// into c, whose sector (qa, qb) block holds the outer product of the
// block diagonals.
func (k *Kernel) TensorProductDiagonal(conj uint8, a, b, c *Matrix, factor complex64) {
	f := factor * a.Factor * b.Factor
	ca, cb := conj&1 != 0, conj&2 != 0
	for ia, sa := range a.Info.Sectors {
		if sa.Bra != sa.Ket {
			continue
		}
		for ib, sb := range b.Info.Sectors {
			if sb.Bra != sb.Ket {
				continue
			}
			ic := c.Info.Find(sa.Bra, sb.Bra)
			if ic < 0 {
				continue
			}
			ablk, bblk, cblk := a.Blocks[ia], b.Blocks[ib], c.Blocks[ic]
			na, nb := sa.Rows, sb.Rows
			k.Seq.Queue(func() {
				for i := 0; i < na; i++ {
					av := blockAt(ablk, i, i, ca)
					for j := 0; j < nb; j++ {
						bv := blockAt(bblk, j, j, cb)
						cblk.SetAt([]int{i, j}, cblk.At(i, j)+f*av*bv)
					}
				}
			})
		}
	}
}

// TensorProductMultiply accumulates factor * A · C · Bᵀ into v, the
// action of the operator A ⊗ B on the wavefunction C, sector by sector.
// Conj bit 0 replaces A by its conjugate transpose, bit 1 does the same
// for B. opdq is the quantum number of the combined operator and is
// checked against the output sectors.
func (k *Kernel) TensorProductMultiply(conj uint8, a, b, cmat, vmat *Matrix,
	opdq qn.Q, factor complex64) {
	f := factor * a.Factor * b.Factor * cmat.Factor
	ca, cb := conj&1 != 0, conj&2 != 0
	for icc, sc := range cmat.Info.Sectors {
		for ia, sa0 := range a.Info.Sectors {
			sa := effSector(sa0, ca)
			if sa.Ket != sc.Bra {
				continue
			}
			for ib, sb0 := range b.Info.Sectors {
				sb := effSector(sb0, cb)
				if sb.Ket != sc.Ket {
					continue
				}
				iv := vmat.Info.Find(sa.Bra, sb.Bra)
				if iv < 0 {
					continue
				}
				dq := sa.Bra.Sub(sa.Ket).Add(sb.Bra.Sub(sb.Ket))
				if dq != opdq && dq != opdq.Neg() {
					// sector combination outside the operator symmetry
					continue
				}
				ablk, bblk := a.Blocks[ia], b.Blocks[ib]
				cblk, vblk := cmat.Blocks[icc], vmat.Blocks[iv]
				sa, sb, sc := sa, sb, sc
				k.Seq.Queue(func() {
					// tmp = A · C
					tmp := k.buf.Reset(sa.Rows, sc.Cols)
					for i := 0; i < sa.Rows; i++ {
						for j := 0; j < sc.Cols; j++ {
							var sum complex64
							for l := 0; l < sa.Cols; l++ {
								sum += blockAt(ablk, i, l, ca) * cblk.At(l, j)
							}
							tmp.SetAt([]int{i, j}, sum)
						}
					}
					// v += f * tmp · Bᵀ
					for i := 0; i < sa.Rows; i++ {
						for j := 0; j < sb.Rows; j++ {
							var sum complex64
							for l := 0; l < sc.Cols; l++ {
								sum += tmp.At(i, l) * blockAt(bblk, j, l, cb)
							}
							vblk.SetAt([]int{i, j}, vblk.At(i, j)+f*sum)
						}
					}
				})
			}
		}
	}
}

// TensorRotate accumulates Braᴴ · A · Ket into c, transforming each
// sector of a into the renormalized basis. With trans the rotation runs
// the other way, Braᵀ · A · conj(Ket). Rotation sectors map the old
// label (bra side) to the new one (ket side).
func (k *Kernel) TensorRotate(a, c, bra, ket *Matrix, trans bool, factor complex64) {
	f := factor * a.Factor * bra.Factor * ket.Factor
	for ia, sa := range a.Info.Sectors {
		// rotation matrices are block diagonal in the old label
		ibr := findByBra(bra.Info, sa.Bra)
		ikt := findByBra(ket.Info, sa.Ket)
		if ibr < 0 || ikt < 0 {
			continue
		}
		sbr, skt := bra.Info.Sectors[ibr], ket.Info.Sectors[ikt]
		ic := c.Info.Find(sbr.Ket, skt.Ket)
		if ic < 0 {
			continue
		}
		ablk, cblk := a.Blocks[ia], c.Blocks[ic]
		brblk, ktblk := bra.Blocks[ibr], ket.Blocks[ikt]
		k.Seq.Queue(func() {
			// tmp = Braᴴ · A (or Braᵀ · A)
			tmp := k.buf.Reset(sbr.Cols, ablk.Shape()[1])
			for i := 0; i < sbr.Cols; i++ {
				for j := 0; j < ablk.Shape()[1]; j++ {
					var sum complex64
					for l := 0; l < sbr.Rows; l++ {
						bv := brblk.At(l, i)
						if !trans {
							bv = complex(real(bv), -imag(bv))
						}
						sum += bv * ablk.At(l, j)
					}
					tmp.SetAt([]int{i, j}, sum)
				}
			}
			// c += f * tmp · Ket (or tmp · conj(Ket))
			for i := 0; i < sbr.Cols; i++ {
				for j := 0; j < skt.Cols; j++ {
					var sum complex64
					for l := 0; l < skt.Rows; l++ {
						kv := ktblk.At(l, j)
						if trans {
							kv = complex(real(kv), -imag(kv))
						}
						sum += tmp.At(i, l) * kv
					}
					cblk.SetAt([]int{i, j}, cblk.At(i, j)+f*sum)
				}
			}
		})
	}
}

// findByBra returns the first sector index whose bra equals q, or -1.
func findByBra(info *Info, q qn.Q) int {
	for i, s := range info.Sectors {
		if s.Bra == q {
			return i
		}
	}
	return -1
}
