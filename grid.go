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

	"github.com/ctessum/geom"
)

// binTolerance absorbs floating point error when ranges that fall on
// bin edges are converted to bin indices.
const binTolerance = 1e-9

// Bins is a half-open range [Lo, Hi) of bin indices on a grid with Res
// bins across the box.
type Bins struct {
	Lo, Hi int
	Res    int
}

// N returns the number of bins.
func (b Bins) N() int { return b.Hi - b.Lo }

// Edge returns the position of the lower edge of bin i (counted from Lo)
// as a fraction of the box length.
func (b Bins) Edge(i int) float64 { return float64(b.Lo+i) / float64(b.Res) }

// contains reports whether absolute bin index k is in the range.
func (b Bins) contains(k int) bool { return k >= b.Lo && k < b.Hi }

// newBins returns the bins at resolution res that cover the box fraction
// range [min, max].
func newBins(min, max float64, res int) Bins {
	r := float64(res)
	b := Bins{
		Lo:  int(math.Floor(min*r + binTolerance)),
		Hi:  int(math.Ceil(max*r - binTolerance)),
		Res: res,
	}
	if b.Lo < 0 {
		b.Lo = 0
	}
	if b.Hi > res {
		b.Hi = res
	}
	if b.Hi <= b.Lo {
		b.Hi = b.Lo + 1
	}
	return b
}

// GridSpec is the output image grid of a projection.
type GridSpec struct {
	Direction Direction

	// Res is the number of output pixels across the box.
	Res int

	// H and V are the output bins along the horizontal and vertical
	// image axes.
	H, V Bins

	// Min and Max are the selected ranges along x, y, and z as
	// fractions of the box length.
	Min, Max [3]float64

	// Center is the projection center as fractions of the box length.
	Center [3]float64

	// RangeUnit is the unit of Extent and PixelSize.
	RangeUnit string

	// BoxSize is the box length in RangeUnit.
	BoxSize float64

	// PixelSize is the pixel edge length in RangeUnit.
	PixelSize float64

	// Extent is the area covered by the output bins in RangeUnit.
	Extent *geom.Bounds

	boxLen float64
	haxis  int
	vaxis  int
	daxis  int
}

// NewGridSpec converts the ranges, center, and resolution of req into an
// output grid.
func NewGridSpec(info *Info, req *Request) (*GridSpec, error) {
	if err := info.validate(); err != nil {
		return nil, err
	}
	unit := req.RangeUnit
	if unit == "" {
		unit = StandardUnit
	}
	g := &GridSpec{
		Direction: req.Direction,
		RangeUnit: unit,
		boxLen:    info.BoxLen,
	}
	g.haxis, g.vaxis, g.daxis = req.Direction.axes()

	// toFraction converts a length in the range unit to a fraction of
	// the box length.
	var toFraction func(float64) float64
	if unit == StandardUnit {
		g.BoxSize = 1
		toFraction = func(v float64) float64 { return v }
	} else {
		s, err := info.Scale(unit)
		if err != nil {
			return nil, err
		}
		g.BoxSize = info.BoxLen * s
		toFraction = func(v float64) float64 { return v / s / info.BoxLen }
	}

	ranges := req.ranges()
	for k := 0; k < 3; k++ {
		c := req.Center[k]
		if c.BoxCenter {
			g.Center[k] = 0.5
		} else {
			g.Center[k] = toFraction(c.Value)
		}
		if math.IsNaN(g.Center[k]) || math.IsInf(g.Center[k], 0) {
			return nil, fmt.Errorf("amrproj: %w: invalid center %v along axis %d", ErrValidation, c, k)
		}
		r := ranges[k]
		if r[0] > r[1] {
			return nil, fmt.Errorf("amrproj: %w: inverted range %v along axis %d", ErrValidation, r, k)
		}
		if r[0] == r[1] {
			g.Min[k], g.Max[k] = 0, 1
			continue
		}
		g.Min[k] = math.Max(0, g.Center[k]+toFraction(r[0]))
		g.Max[k] = math.Min(1, g.Center[k]+toFraction(r[1]))
		if !(g.Max[k] > g.Min[k]) {
			return nil, fmt.Errorf("amrproj: %w: range %v along axis %d is outside the box",
				ErrValidation, r, k)
		}
	}

	res, err := resolution(info, req, g.BoxSize)
	if err != nil {
		return nil, err
	}
	g.Res = res
	g.PixelSize = g.BoxSize / float64(res)
	g.H = newBins(g.Min[g.haxis], g.Max[g.haxis], res)
	g.V = newBins(g.Min[g.vaxis], g.Max[g.vaxis], res)
	g.Extent = &geom.Bounds{
		Min: geom.Point{X: g.H.Edge(0) * g.BoxSize, Y: g.V.Edge(0) * g.BoxSize},
		Max: geom.Point{X: g.H.Edge(g.H.N()) * g.BoxSize, Y: g.V.Edge(g.V.N()) * g.BoxSize},
	}
	return g, nil
}

// resolution returns the number of pixels across the box. The pixel
// size takes precedence, then the explicit resolution, then the level.
func resolution(info *Info, req *Request, boxSize float64) (int, error) {
	switch {
	case req.PixSize < 0 || req.Res < 0 || req.Level < 0:
		return 0, fmt.Errorf("amrproj: %w: negative resolution parameter", ErrValidation)
	case req.PixSize > 0:
		res := int(math.Round(boxSize / req.PixSize))
		if res < 1 {
			return 0, fmt.Errorf("amrproj: %w: pixel size %g is larger than the box",
				ErrValidation, req.PixSize)
		}
		return res, nil
	case req.Res > 0:
		return req.Res, nil
	case req.Level > 0:
		if req.Level > MaxLevel {
			return 0, fmt.Errorf("amrproj: %w: level %d exceeds %d", ErrValidation, req.Level, MaxLevel)
		}
		return 1 << uint(req.Level), nil
	}
	return 1 << uint(info.LevelMax), nil
}

// Shape returns the number of output pixels along the horizontal and
// vertical image axes.
func (g *GridSpec) Shape() (nh, nv int) { return g.H.N(), g.V.N() }

// PixelArea returns the area of one pixel in code units squared.
func (g *GridSpec) PixelArea() float64 {
	d := g.boxLen / float64(g.Res)
	return d * d
}

// PixelCenter returns the center of output pixel (i, j) in RangeUnit.
func (g *GridSpec) PixelCenter(i, j int) geom.Point {
	return geom.Point{
		X: (float64(g.H.Lo+i) + 0.5) / float64(g.Res) * g.BoxSize,
		Y: (float64(g.V.Lo+j) + 0.5) / float64(g.Res) * g.BoxSize,
	}
}

// ImageCenter returns the projection center in the image plane in
// RangeUnit.
func (g *GridSpec) ImageCenter() geom.Point {
	return geom.Point{X: g.Center[g.haxis] * g.BoxSize, Y: g.Center[g.vaxis] * g.BoxSize}
}

// LevelBins is the native grid of one refinement level restricted to
// the selected region.
type LevelBins struct {
	Level int
	H, V  Bins

	// Depth is the range of included cell indices along the
	// projection axis.
	Depth Bins
}

// LevelBins returns the native bins of level that cover the selected
// region.
func (g *GridSpec) LevelBins(level int) LevelBins {
	n := 1 << uint(level)
	return LevelBins{
		Level: level,
		H:     newBins(g.Min[g.haxis], g.Max[g.haxis], n),
		V:     newBins(g.Min[g.vaxis], g.Max[g.vaxis], n),
		Depth: newBins(g.Min[g.daxis], g.Max[g.daxis], n),
	}
}

// project returns the native horizontal, vertical, and depth indices of
// a cell at coordinates c.
func (g *GridSpec) project(c [3]int) (h, v, d int) {
	return c[g.haxis], c[g.vaxis], c[g.daxis]
}
