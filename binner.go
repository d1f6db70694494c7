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
	"math"
)

// levelHistogram holds the binned weights and values of one level.
// Every accumulator shares bins.
type levelHistogram struct {
	bins   LevelBins
	rs     *resampler
	weight accumulator
	values []accumulator // indexed like Extraction.Working
	report LevelReport
	pool   *Pool
}

// release returns pooled storage held by the histogram.
func (lh *levelHistogram) release() {
	for _, a := range append([]accumulator{lh.weight}, lh.values...) {
		switch acc := a.(type) {
		case *denseAccumulator:
			lh.pool.Put(acc.a)
		case *SparseAccumulator:
			acc.release()
		}
	}
}

// binner bins the cells of one level at a time.
type binner struct {
	cells    CellTable
	info     *Info
	grid     *GridSpec
	ex       *Extraction
	th       Thresholds
	override AlgorithmOverride
	measure  bool
	pool     *Pool
}

// binned is a cell inside the selected region with its native bin
// relative to the level bins.
type binned struct {
	i, h, v int
}

// selectCells returns the cells of idx inside the selected region. Cells with
// coordinates outside the level or invalid data are an error.
func (b *binner) selectCells(bins LevelBins, idx []int) ([]binned, error) {
	n := 1 << uint(bins.Level)
	sel := make([]binned, 0, len(idx))
	for _, i := range idx {
		c := b.cells.Index(i)
		for k, x := range c {
			if x < 0 || x >= n {
				return nil, fmt.Errorf("amrproj: cell %d at level %d has coordinate %d = %d outside [0, %d)",
					i, bins.Level, k, x, n)
			}
		}
		h, v, d := b.grid.project(c)
		if !bins.H.contains(h) || !bins.V.contains(v) || !bins.Depth.contains(d) {
			continue
		}
		w := b.ex.Weights[i]
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("amrproj: cell %d at level %d has invalid weight %g", i, bins.Level, w)
		}
		for _, wv := range b.ex.Working {
			if x := wv.Values[i]; math.IsNaN(x) || math.IsInf(x, 0) {
				return nil, fmt.Errorf("amrproj: cell %d at level %d has invalid %s %g", i, bins.Level, wv.Name, x)
			}
		}
		sel = append(sel, binned{i: i, h: h - bins.H.Lo, v: v - bins.V.Lo})
	}
	return sel, nil
}

// stats returns the algorithm selection inputs for the selected cells.
func (b *binner) stats(bins LevelBins, rs *resampler, sel []binned) LevelStats {
	nh, nv := b.grid.Shape()
	s := LevelStats{
		Level:      bins.Level,
		Cells:      len(sel),
		Res:        b.grid.Res,
		NativeBins: bins.H.N() * bins.V.N(),
		Measured:   b.measure,
	}
	if len(sel) == 0 {
		return s
	}
	if b.measure {
		covered := make([]bool, nh*nv)
		count := 0
		for _, c := range sel {
			for _, oh := range rs.h[c.h] {
				for _, ov := range rs.v[c.v] {
					if k := oh.dst*nv + ov.dst; !covered[k] {
						covered[k] = true
						count++
					}
				}
			}
		}
		s.FillRatio = float64(count) / float64(nh*nv)
		return s
	}
	hmin, hmax, vmin, vmax := sel[0].h, sel[0].h, sel[0].v, sel[0].v
	for _, c := range sel[1:] {
		if c.h < hmin {
			hmin = c.h
		}
		if c.h > hmax {
			hmax = c.h
		}
		if c.v < vmin {
			vmin = c.v
		}
		if c.v > vmax {
			vmax = c.v
		}
	}
	s.FillRatio = fillEstimate(len(sel), hmax-hmin+1, vmax-vmin+1, 1<<uint(bins.Level), b.grid.Res, nh, nv)
	return s
}

// newAccumulator returns an accumulator for the native bins of a level.
func (b *binner) newAccumulator(a Algorithm, bins LevelBins) accumulator {
	nh, nv := bins.H.N(), bins.V.N()
	switch a {
	case Sparse:
		return NewSparseAccumulator(nh, nv, 0)
	case AdaptiveSparse:
		return newAdaptiveAccumulator(nh, nv, b.th.PromoteFraction, b.pool)
	default:
		return newDenseAccumulator(b.pool.Get(nh, nv))
	}
}

// minWeight returns the weight below which cells are dropped.
func (b *binner) minWeight(a Algorithm, sel []binned) float64 {
	switch a {
	case HybridSkip:
		wmax := 0.
		for _, c := range sel {
			wmax = math.Max(wmax, b.ex.Weights[c.i])
		}
		return b.th.SkipFraction * wmax
	case Sparse, AdaptiveSparse:
		return b.th.SparseDrop
	}
	return 0
}

// binLevel bins the cells idx of level into a weight histogram and one
// histogram per work variable. Cells are dropped, based on their weight,
// from every histogram at once.
func (b *binner) binLevel(level int, idx []int) (*levelHistogram, error) {
	if level < b.info.LevelMin || level > b.info.LevelMax {
		return nil, fmt.Errorf("amrproj: level %d is outside [%d, %d]", level, b.info.LevelMin, b.info.LevelMax)
	}
	bins := b.grid.LevelBins(level)
	sel, err := b.selectCells(bins, idx)
	if err != nil {
		return nil, err
	}
	rs := newResampler(bins, b.grid)
	dec := SelectAlgorithm(b.stats(bins, rs, sel), b.th, b.override)

	lh := &levelHistogram{
		bins:   bins,
		rs:     rs,
		weight: b.newAccumulator(dec.Algorithm, bins),
		values: make([]accumulator, len(b.ex.Working)),
		pool:   b.pool,
		report: LevelReport{
			Level:     level,
			Cells:     len(idx),
			Algorithm: dec.Algorithm,
			Reason:    dec.Reason,
			FillRatio: dec.Stats.FillRatio,
			Measured:  dec.Stats.Measured,
		},
	}
	for k := range lh.values {
		lh.values[k] = b.newAccumulator(dec.Algorithm, bins)
	}
	cut := b.minWeight(dec.Algorithm, sel)
	for _, c := range sel {
		w := b.ex.Weights[c.i]
		if w < cut {
			lh.report.Dropped++
			continue
		}
		lh.report.Binned++
		lh.weight.Add(c.h, c.v, w)
		for k, wv := range b.ex.Working {
			val := wv.Values[c.i]
			if !wv.Sum {
				val *= w
			}
			lh.values[k].Add(c.h, c.v, val)
		}
	}
	lh.report.NonZero = lh.weight.NonZero()
	return lh, nil
}
