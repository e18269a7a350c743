package wick

import "sort"

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func mini(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxi(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// normalOrderTerm rewrites a product of elementary operators as a sum of
// normal-ordered products times Kronecker deltas, enumerating contraction
// pair sets depth-first with an explicit stack. The fermionic sign of each
// contraction set is the parity of pair crossings plus the parity of
// reordering the surviving operators; spin-free operators are expanded
// into explicit pairs first and recombined at emission, with a factor of
// two for every closed inactive loop. maxUnctr = -1 keeps all terms,
// otherwise terms with more surviving operators are dropped. noCtr keeps
// only the reordered term with no contractions.
func normalOrderTerm(x Term, maxUnctr int, noCtr bool) []Term {
	cdType, sfType := false, false
	for _, wt := range x.Tensors {
		switch wt.Kind {
		case KindCre, KindDes:
			cdType = true
		case KindSpinFree:
			sfType = true
		}
	}
	if cdType && sfType {
		panic("cannot mix explicit creation/destruction operators with spin-free operators")
	}
	var cdTensors, otBase []Tensor
	var cdIdxMap []int
	initSign := 0
	for _, wt := range x.Tensors {
		switch wt.Kind {
		case KindCre, KindDes:
			cdTensors = append(cdTensors, wt)
		case KindSpinFree:
			sfN := len(wt.Indices) / 2
			// sign from reversing the destroy operators
			initSign ^= ((sfN - 1) & 1) ^ (((sfN - 1) & 2) >> 1)
			for i := 0; i < sfN; i++ {
				cdTensors = append(cdTensors, Cre(wt.Indices[i]))
				cdIdxMap = append(cdIdxMap, len(cdIdxMap)+sfN)
			}
			for i := 0; i < sfN; i++ {
				cdTensors = append(cdTensors, Des(wt.Indices[i+sfN]))
				cdIdxMap = append(cdIdxMap, len(cdIdxMap)-sfN)
			}
		default:
			otBase = append(otBase, wt)
		}
	}
	cdn := len(cdTensors)
	otCount := len(otBase)
	// all possible contraction pairs, grouped by the first index
	var ctrIdxs [][2]int
	ctrCdIdxs := make([]int, cdn+1)
	var nInactiveIdxs []int
	if sfType {
		nInactiveIdxs = make([]int, cdn+1)
	}
	for i := 0; i < cdn; i++ {
		ctrCdIdxs[i] = len(ctrIdxs)
		if sfType {
			for j := i + 1; j < cdn; j++ {
				ti := cdTensors[i].Indices[0].Types&IndexInactive != 0
				tj := cdTensors[j].Indices[0].Types&IndexInactive != 0
				if ti || tj {
					if cdTensors[i].Kind < cdTensors[j].Kind && ti && tj {
						ctrIdxs = append(ctrIdxs, [2]int{i, j})
						nInactiveIdxs[i] = 1
					}
				} else if cdTensors[j].Kind < cdTensors[i].Kind {
					ctrIdxs = append(ctrIdxs, [2]int{i, j})
				}
			}
		} else {
			for j := i + 1; j < cdn; j++ {
				if cdTensors[i].Kind != cdTensors[j].Kind &&
					cdTensors[j].Less(cdTensors[i]) {
					ctrIdxs = append(ctrIdxs, [2]int{i, j})
				}
			}
		}
	}
	ctrCdIdxs[cdn] = len(ctrIdxs)
	for i := len(nInactiveIdxs) - 2; i >= 0; i-- {
		nInactiveIdxs[i] += nInactiveIdxs[i+1]
	}
	var que [][2]int
	curIdxs := make([][2]int, cdn)
	curIdxsMask := make([]int8, cdn)
	inactiveMask := make([]int8, cdn)
	tensorIdxs := make([]int, cdn)
	revIdxs := make([]int, cdn)
	cdIdxMapRev := make([]int, cdn)
	accSign := make([]int, cdn+2)
	otTensors := make([]Tensor, otCount, otCount+cdn+2)
	copy(otTensors, otBase)
	if maxUnctr != 0 || cdn%2 == 0 {
		que = append(que, [2]int{-1, -1})
		accSign[0] = initSign
		for i := range tensorIdxs {
			tensorIdxs[i] = i
		}
		// arg sort of the operators into normal order
		if sfType {
			sort.SliceStable(tensorIdxs, func(i, j int) bool {
				return cdTensors[tensorIdxs[i]].Kind < cdTensors[tensorIdxs[j]].Kind
			})
		} else {
			sort.SliceStable(tensorIdxs, func(i, j int) bool {
				return cdTensors[tensorIdxs[i]].Less(cdTensors[tensorIdxs[j]])
			})
			// parity of the reordering
			for i, t := range tensorIdxs {
				revIdxs[t] = i
			}
			for i := 0; i < cdn; i++ {
				for j := i + 1; j < cdn; j++ {
					accSign[0] ^= b2i(revIdxs[j] < revIdxs[i])
				}
			}
		}
	}
	var r []Term
	for len(que) > 0 {
		l, j := que[len(que)-1][0], que[len(que)-1][1]
		que = que[:len(que)-1]
		k := 0
		var c, d int
		nInact := 0
		inactFac := 1.0
		if l != -1 {
			curIdxs[l] = ctrIdxs[j]
			k = ctrCdIdxs[ctrIdxs[j][0]+1]
		}
		accSign[l+2] = accSign[l+1]
		otTensors = otTensors[:otCount+l+1]
		for i := range curIdxsMask {
			curIdxsMask[i] = 0
		}
		if sfType {
			copy(cdIdxMapRev, cdIdxMap)
			for i := range inactiveMask {
				inactiveMask[i] = 0
			}
		}
		if l != -1 {
			c, d = curIdxs[l][0], curIdxs[l][1]
			skip := false
			accSign[l+2] ^= ((c ^ d) & 1) ^ 1
			// crossing parity against the earlier pairs
			for i := 0; i < l && !skip; i++ {
				a, b := curIdxs[i][0], curIdxs[i][1]
				skip = skip || b == d || b == c || a == d
				curIdxsMask[a], curIdxsMask[b] = 1, 1
				accSign[l+2] ^= b2i((a < c && b > c && b < d) ||
					(a > c && a < d && b > d))
			}
			if skip {
				continue
			}
			curIdxsMask[c], curIdxsMask[d] = 1, 1
			if sfType {
				for i := 0; i < l; i++ {
					a, b := curIdxs[i][0], curIdxs[i][1]
					inactiveMask[a] |= int8(nInactiveIdxs[a] - nInactiveIdxs[a+1])
					inactiveMask[b] |= int8(nInactiveIdxs[b] - nInactiveIdxs[b+1])
					inactiveMask[cdIdxMapRev[a]] |= inactiveMask[a]
					inactiveMask[cdIdxMapRev[b]] |= inactiveMask[b]
					nInact += nInactiveIdxs[a] - nInactiveIdxs[a+1]
					if cdIdxMapRev[a] == b && inactiveMask[a] != 0 {
						inactFac *= 2
					}
					cdIdxMapRev[cdIdxMapRev[a]] = cdIdxMapRev[b]
					cdIdxMapRev[cdIdxMapRev[b]] = cdIdxMapRev[a]
				}
				inactiveMask[c] |= int8(nInactiveIdxs[c] - nInactiveIdxs[c+1])
				inactiveMask[d] |= int8(nInactiveIdxs[d] - nInactiveIdxs[d+1])
				inactiveMask[cdIdxMapRev[c]] |= inactiveMask[c]
				inactiveMask[cdIdxMapRev[d]] |= inactiveMask[d]
				nInact += nInactiveIdxs[c] - nInactiveIdxs[c+1]
				// inactive indices must all end up contracted
				if nInact+nInactiveIdxs[c+1] < nInactiveIdxs[0] {
					continue
				}
				if cdIdxMapRev[c] == d && inactiveMask[c] != 0 {
					inactFac *= 2
				}
				cdIdxMapRev[cdIdxMapRev[c]] = cdIdxMapRev[d]
				cdIdxMapRev[cdIdxMapRev[d]] = cdIdxMapRev[c]
			} else {
				// undo the reorder parity for the contracted pair
				accSign[l+2] ^= b2i(revIdxs[d] < revIdxs[c])
				for i := 0; i < cdn; i++ {
					if curIdxsMask[i] == 0 {
						accSign[l+2] ^= b2i(revIdxs[maxi(c, i)] < revIdxs[mini(c, i)])
						accSign[l+2] ^= b2i(revIdxs[maxi(d, i)] < revIdxs[mini(d, i)])
					}
				}
			}
			otTensors[otCount+l] = KroneckerDelta(
				cdTensors[c].Indices[0], cdTensors[d].Indices[0])
		}
		// push the next contraction orders
		if !noCtr {
			for ; k < len(ctrIdxs); k++ {
				que = append(que, [2]int{l + 1, k})
			}
		}
		if maxUnctr != -1 && cdn-(l+l+2) > maxUnctr {
			continue
		}
		finalSign := 0
		emit := make([]Tensor, len(otTensors), len(otTensors)+cdn)
		copy(emit, otTensors)
		if sfType {
			if nInact < nInactiveIdxs[0] {
				continue
			}
			sfN := cdn / 2
			tn := sfN - l - 1
			wis := make([]Index, tn*2)
			kk := 0
			for i := 0; i < len(tensorIdxs); i++ {
				ti := tensorIdxs[i]
				if curIdxsMask[ti] == 0 && cdTensors[ti].Kind == KindCre {
					revIdxs[kk] = ti
					revIdxs[kk+tn] = cdIdxMapRev[ti]
					kk++
				}
			}
			for i := 0; i < tn+tn; i++ {
				wis[i] = cdTensors[revIdxs[i]].Indices[0]
			}
			// parity of reversing the destroy half and of the reordering
			finalSign = ((tn - 1) & 1) ^ (((tn - 1) & 2) >> 1)
			for i := 0; i < tn+tn; i++ {
				for jj := i + 1; jj < tn+tn; jj++ {
					finalSign ^= b2i(revIdxs[jj] < revIdxs[i])
				}
			}
			if len(wis) != 0 {
				emit = append(emit, SpinFree(wis))
			}
		} else {
			for i := 0; i < len(tensorIdxs); i++ {
				if curIdxsMask[tensorIdxs[i]] == 0 {
					emit = append(emit, cdTensors[tensorIdxs[i]])
				}
			}
		}
		fac := x.Factor
		if accSign[l+2]^finalSign != 0 {
			fac = -fac
		}
		r = append(r, Term{Tensors: emit, Ctr: x.Ctr.Clone(), Factor: inactFac * fac})
	}
	return r
}
