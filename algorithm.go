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

// Algorithm is the binning strategy used for one level.
type Algorithm int

const (
	// Dense bins every cell into dense arrays.
	Dense Algorithm = iota
	// HybridSkip bins into dense arrays but skips cells with negligible
	// weight.
	HybridSkip
	// AdaptiveSparse bins into sparse arrays and switches to dense
	// arrays once enough bins are occupied.
	AdaptiveSparse
	// Sparse bins into sparse arrays.
	Sparse
)

func (a Algorithm) String() string {
	switch a {
	case Dense:
		return "dense"
	case HybridSkip:
		return "hybrid-skip"
	case AdaptiveSparse:
		return "adaptive-sparse"
	case Sparse:
		return "sparse"
	default:
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
}

// Thresholds control algorithm selection. Zero fields take the values
// from DefaultThresholds.
type Thresholds struct {
	// SparseRes and SparseFill are the minimum resolution and the
	// fill ratio below which Sparse is chosen.
	SparseRes  int
	SparseFill float64

	// AdaptiveRes is the minimum resolution for AdaptiveSparse and
	// HybridSkip; AdaptiveFill and HybridFill are their fill ratio
	// limits.
	AdaptiveRes  int
	AdaptiveFill float64
	HybridFill   float64

	// SkipFraction is the fraction of the largest cell weight of a
	// level below which HybridSkip drops a cell.
	SkipFraction float64

	// SparseDrop is the absolute weight below which the sparse
	// algorithms drop a cell. Zero keeps every cell with a non-zero
	// weight.
	SparseDrop float64

	// PromoteFraction is the fraction of occupied bins at which
	// AdaptiveSparse switches to dense arrays.
	PromoteFraction float64

	// MaxDenseBins is the largest native grid binned densely unless
	// dense binning is forced.
	MaxDenseBins int
}

// DefaultThresholds returns the default selection thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SparseRes:       4096,
		SparseFill:      0.01,
		AdaptiveRes:     2048,
		AdaptiveFill:    0.05,
		HybridFill:      0.20,
		SkipFraction:    1e-10,
		PromoteFraction: 0.25,
		MaxDenseBins:    1 << 24,
	}
}

func (th Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if th.SparseRes == 0 {
		th.SparseRes = d.SparseRes
	}
	if th.SparseFill == 0 {
		th.SparseFill = d.SparseFill
	}
	if th.AdaptiveRes == 0 {
		th.AdaptiveRes = d.AdaptiveRes
	}
	if th.AdaptiveFill == 0 {
		th.AdaptiveFill = d.AdaptiveFill
	}
	if th.HybridFill == 0 {
		th.HybridFill = d.HybridFill
	}
	if th.SkipFraction == 0 {
		th.SkipFraction = d.SkipFraction
	}
	if th.PromoteFraction == 0 {
		th.PromoteFraction = d.PromoteFraction
	}
	if th.MaxDenseBins == 0 {
		th.MaxDenseBins = d.MaxDenseBins
	}
	return th
}

// LevelStats are the inputs to algorithm selection for one level.
type LevelStats struct {
	Level int

	// Cells is the number of cells of the level inside the selected
	// region.
	Cells int

	// Res is the output resolution.
	Res int

	// FillRatio is the fraction of output pixels the level covers.
	FillRatio float64

	// Measured means FillRatio was counted rather than estimated.
	Measured bool

	// NativeBins is the number of native bins of the level inside the
	// selected region.
	NativeBins int
}

// Decision is the algorithm chosen for a level.
type Decision struct {
	Algorithm Algorithm
	Stats     LevelStats
	Reason    string
}

// SelectAlgorithm chooses the binning algorithm for a level.
func SelectAlgorithm(s LevelStats, th Thresholds, o AlgorithmOverride) Decision {
	th = th.withDefaults()
	d := Decision{Stats: s}
	switch {
	case o == ForceSparse:
		d.Algorithm, d.Reason = Sparse, "forced"
	case o == ForceDense:
		d.Algorithm, d.Reason = Dense, "forced"
	case s.Res >= th.SparseRes && s.FillRatio < th.SparseFill:
		d.Algorithm = Sparse
		d.Reason = fmt.Sprintf("res %d >= %d and fill %.3g < %.3g", s.Res, th.SparseRes, s.FillRatio, th.SparseFill)
	case s.Res >= th.AdaptiveRes && s.FillRatio < th.AdaptiveFill:
		d.Algorithm = AdaptiveSparse
		d.Reason = fmt.Sprintf("res %d >= %d and fill %.3g < %.3g", s.Res, th.AdaptiveRes, s.FillRatio, th.AdaptiveFill)
	case s.Res >= th.AdaptiveRes && s.FillRatio < th.HybridFill:
		d.Algorithm = HybridSkip
		d.Reason = fmt.Sprintf("res %d >= %d and fill %.3g < %.3g", s.Res, th.AdaptiveRes, s.FillRatio, th.HybridFill)
	default:
		d.Algorithm, d.Reason = Dense, "default"
	}
	if o == Auto && (d.Algorithm == Dense || d.Algorithm == HybridSkip) && s.NativeBins > th.MaxDenseBins {
		d.Algorithm = Sparse
		d.Reason = fmt.Sprintf("native grid of %d bins exceeds %d", s.NativeBins, th.MaxDenseBins)
	}
	return d
}

// fillEstimate estimates the fraction of the nh x nv output pixels, at
// res pixels across the box, covered by n cells of a level with n0
// cells across the box whose projected indices span hspan x vspan.
// It assumes the cells do not overlap in projection.
func fillEstimate(n, hspan, vspan, n0, res, nh, nv int) float64 {
	if n == 0 || nh*nv == 0 {
		return 0
	}
	r := float64(res) / float64(n0)
	covered := float64(n) * r * r
	spread := math.Min(math.Ceil(float64(hspan)*r), float64(nh)) *
		math.Min(math.Ceil(float64(vspan)*r), float64(nv))
	covered = math.Max(1, math.Min(covered, spread))
	return math.Min(1, covered/float64(nh*nv))
}
