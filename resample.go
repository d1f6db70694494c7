/*
Copyright © 2019 the InMAP authors.
This file is part of AMRProj.

AMRProj is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

AMRProj is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with AMRProj.  If not, see <http://www.gnu.org/licenses/>.
*/

package amrproj

import (
	"fmt"

	"github.com/ctessum/sparse"
)

// AreaCorrection returns the factor that converts area-averaged values
// resampled from level-native bins to output pixels at res pixels across
// the box back into totals: (2^level/res)^2.
func AreaCorrection(level, res int) float64 {
	r := float64(int64(1)<<uint(level)) / float64(res)
	return r * r
}

// overlap is the share of an output bin covered by a source bin.
type overlap struct {
	dst int
	w   float64
}

// resizeWeights returns, for every bin of src, the bins of dst it
// overlaps and the fraction of each dst bin it covers. Positions are
// compared exactly as integers scaled by src.Res*dst.Res.
func resizeWeights(src, dst Bins) [][]overlap {
	sr, dr := int64(src.Res), int64(dst.Res)
	out := make([][]overlap, src.N())
	for k := range out {
		s0 := int64(src.Lo+k) * dr
		s1 := s0 + dr
		m := int(s0/sr) - dst.Lo
		if m < 0 {
			m = 0
		}
		for ; m < dst.N(); m++ {
			d0 := int64(dst.Lo+m) * sr
			d1 := d0 + sr
			if d0 >= s1 {
				break
			}
			lo, hi := max64(s0, d0), min64(s1, d1)
			if hi > lo {
				out[k] = append(out[k], overlap{dst: m, w: float64(hi-lo) / float64(sr)})
			}
		}
	}
	return out
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// resampler moves the histograms of one level onto the output grid.
type resampler struct {
	bins   LevelBins
	nh, nv int
	h, v   [][]overlap
	corr   float64
}

func newResampler(bins LevelBins, g *GridSpec) *resampler {
	nh, nv := g.Shape()
	return &resampler{
		bins: bins,
		nh:   nh,
		nv:   nv,
		h:    resizeWeights(bins.H, g.H),
		v:    resizeWeights(bins.V, g.V),
		corr: AreaCorrection(bins.Level, g.Res),
	}
}

// add resizes src onto the output grid, applies the area correction, and
// adds the result to dst. src must have been binned on the resampler's
// level bins.
func (r *resampler) add(src accumulator, dst *sparse.DenseArray) error {
	if nh, nv := src.Shape(); nh != r.bins.H.N() || nv != r.bins.V.N() {
		return fmt.Errorf("amrproj: level %d histogram is %dx%d but its bins are %dx%d",
			r.bins.Level, nh, nv, r.bins.H.N(), r.bins.V.N())
	}
	if len(dst.Shape) != 2 || dst.Shape[0] != r.nh || dst.Shape[1] != r.nv {
		return fmt.Errorf("amrproj: output grid has shape %v, want [%d %d]", dst.Shape, r.nh, r.nv)
	}
	src.Each(func(h, v int, val float64) {
		for _, oh := range r.h[h] {
			row := dst.Elements[oh.dst*r.nv : (oh.dst+1)*r.nv]
			f := val * oh.w * r.corr
			for _, ov := range r.v[v] {
				row[ov.dst] += f * ov.w
			}
		}
	})
	return nil
}
