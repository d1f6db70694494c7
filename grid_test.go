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
	"errors"
	"math"
	"testing"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats/scalar"
)

func TestNewGridSpecAxes(t *testing.T) {
	info := &Info{BoxLen: 1, LevelMin: 1, LevelMax: 5}
	tests := []struct {
		dir    Direction
		h, v   Bins
		depth  [2]float64
		levelH Bins
	}{
		{dir: Z, h: Bins{4, 12, 16}, v: Bins{0, 16, 16}, depth: [2]float64{0, 0.5}, levelH: Bins{2, 6, 8}},
		{dir: Y, h: Bins{4, 12, 16}, v: Bins{0, 8, 16}, depth: [2]float64{0, 1}, levelH: Bins{2, 6, 8}},
		{dir: X, h: Bins{0, 16, 16}, v: Bins{0, 8, 16}, depth: [2]float64{0.25, 0.75}, levelH: Bins{0, 8, 8}},
	}
	for _, test := range tests {
		t.Run(test.dir.String(), func(t *testing.T) {
			g, err := NewGridSpec(info, &Request{
				Direction: test.dir,
				Res:       16,
				XRange:    [2]float64{0.25, 0.75},
				ZRange:    [2]float64{0, 0.5},
			})
			if err != nil {
				t.Fatal(err)
			}
			if g.H != test.h {
				t.Errorf("h: have %v, want %v", g.H, test.h)
			}
			if g.V != test.v {
				t.Errorf("v: have %v, want %v", g.V, test.v)
			}
			d := [2]float64{g.Min[g.daxis], g.Max[g.daxis]}
			if d != test.depth {
				t.Errorf("depth: have %v, want %v", d, test.depth)
			}
			if lb := g.LevelBins(3); lb.H != test.levelH {
				t.Errorf("level bins: have %v, want %v", lb.H, test.levelH)
			}
		})
	}
}

func TestNewGridSpecCenter(t *testing.T) {
	info := &Info{BoxLen: 1, LevelMax: 4}
	c, err := ParseCenter("bc")
	if err != nil {
		t.Fatal(err)
	}
	g, err := NewGridSpec(info, &Request{
		Center: c,
		XRange: [2]float64{-0.25, 0.25},
		YRange: [2]float64{-1, 0},
	})
	if err != nil {
		t.Fatal(err)
	}
	if g.Res != 16 {
		t.Errorf("res: have %d, want 16", g.Res)
	}
	if want := (Bins{4, 12, 16}); g.H != want {
		t.Errorf("h: have %v, want %v", g.H, want)
	}
	if want := (Bins{0, 8, 16}); g.V != want {
		t.Errorf("v: have %v, want %v", g.V, want)
	}
	if nh, nv := g.Shape(); nh != 8 || nv != 8 {
		t.Errorf("shape: have %dx%d, want 8x8", nh, nv)
	}
	if p := g.ImageCenter(); p.X != 0.5 || p.Y != 0.5 {
		t.Errorf("image center: have %v", p)
	}
}

func TestNewGridSpecUnits(t *testing.T) {
	info := &Info{BoxLen: 2, LevelMax: 6, Scales: map[string]float64{"kpc": 50}}
	g, err := NewGridSpec(info, &Request{
		RangeUnit: "kpc",
		XRange:    [2]float64{0, 50},
		YRange:    [2]float64{25, 100},
		PixSize:   10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if g.BoxSize != 100 {
		t.Errorf("box size: have %g, want 100", g.BoxSize)
	}
	if g.Res != 10 {
		t.Errorf("res: have %d, want 10", g.Res)
	}
	if g.PixelSize != 10 {
		t.Errorf("pixel size: have %g, want 10", g.PixelSize)
	}
	if want := (Bins{0, 5, 10}); g.H != want {
		t.Errorf("h: have %v, want %v", g.H, want)
	}
	if want := (Bins{2, 10, 10}); g.V != want {
		t.Errorf("v: have %v, want %v", g.V, want)
	}
	e := g.Extent
	if !scalar.EqualWithinAbsOrRel(e.Min.X, 0, 1e-12, 1e-12) || !scalar.EqualWithinAbsOrRel(e.Max.X, 50, 1e-12, 1e-12) ||
		!scalar.EqualWithinAbsOrRel(e.Min.Y, 20, 1e-12, 1e-12) || !scalar.EqualWithinAbsOrRel(e.Max.Y, 100, 1e-12, 1e-12) {
		t.Errorf("extent: have %v", e)
	}
	if a := g.PixelArea(); !scalar.EqualWithinAbsOrRel(a, 0.04, 1e-12, 1e-12) {
		t.Errorf("pixel area: have %g, want 0.04", a)
	}
}

func TestResolutionPrecedence(t *testing.T) {
	info := &Info{BoxLen: 1, LevelMax: 7}
	tests := []struct {
		name string
		req  Request
		want int
	}{
		{"pixsize", Request{PixSize: 0.125, Res: 100, Level: 3}, 8},
		{"res", Request{Res: 100, Level: 3}, 100},
		{"level", Request{Level: 3}, 8},
		{"default", Request{}, 128},
	}
	for _, test := range tests {
		g, err := NewGridSpec(info, &test.req)
		if err != nil {
			t.Fatalf("%s: %v", test.name, err)
		}
		if g.Res != test.want {
			t.Errorf("%s: have %d, want %d", test.name, g.Res, test.want)
		}
	}
}

func TestNewGridSpecErrors(t *testing.T) {
	info := &Info{BoxLen: 1, LevelMax: 4}
	tests := []struct {
		name string
		info *Info
		req  Request
	}{
		{"unknown unit", info, Request{RangeUnit: "pc"}},
		{"inverted range", info, Request{XRange: [2]float64{0.5, 0.25}}},
		{"outside box", info, Request{XRange: [2]float64{1.5, 2}}},
		{"pixel too large", info, Request{PixSize: 4}},
		{"negative res", info, Request{Res: -1}},
		{"nan center", info, Request{Center: [3]Coordinate{{Value: math.NaN()}}}},
		{"box length", &Info{LevelMax: 4}, Request{}},
		{"levels", &Info{BoxLen: 1, LevelMin: 3, LevelMax: 2}, Request{}},
	}
	for _, test := range tests {
		_, err := NewGridSpec(test.info, &test.req)
		if !errors.Is(err, ErrValidation) {
			t.Errorf("%s: have error %v, want %v", test.name, err, ErrValidation)
		}
	}
}

func TestResizeWeights(t *testing.T) {
	w := resizeWeights(Bins{0, 4, 4}, Bins{0, 3, 3})
	want := [][]overlap{
		{{0, 0.75}},
		{{0, 0.25}, {1, 0.5}},
		{{1, 0.5}, {2, 0.25}},
		{{2, 0.75}},
	}
	if len(w) != len(want) {
		t.Fatalf("have %d source bins, want %d", len(w), len(want))
	}
	for k := range want {
		if len(w[k]) != len(want[k]) {
			t.Errorf("bin %d: have %v, want %v", k, w[k], want[k])
			continue
		}
		for j := range want[k] {
			if w[k][j].dst != want[k][j].dst || !scalar.EqualWithinAbsOrRel(w[k][j].w, want[k][j].w, 1e-12, 1e-12) {
				t.Errorf("bin %d: have %v, want %v", k, w[k], want[k])
			}
		}
	}

	// Output bins that do not start at zero.
	w = resizeWeights(Bins{2, 4, 8}, Bins{1, 2, 4})
	if len(w) != 2 || len(w[0]) != 1 || w[0][0].dst != 0 || w[0][0].w != 0.5 ||
		len(w[1]) != 1 || w[1][0].dst != 0 || w[1][0].w != 0.5 {
		t.Errorf("offset bins: have %v", w)
	}
}

func TestAreaCorrection(t *testing.T) {
	tests := []struct {
		level, res int
		want       float64
	}{
		{5, 32, 1},
		{6, 32, 4},
		{3, 16, 0.25},
		{2, 3, 16. / 9.},
	}
	for _, test := range tests {
		if have := AreaCorrection(test.level, test.res); !scalar.EqualWithinAbsOrRel(have, test.want, 1e-12, 1e-12) {
			t.Errorf("level %d res %d: have %g, want %g", test.level, test.res, have, test.want)
		}
	}
}

func TestResamplerShapeMismatch(t *testing.T) {
	g, err := NewGridSpec(&Info{BoxLen: 1, LevelMax: 3}, &Request{Res: 4})
	if err != nil {
		t.Fatal(err)
	}
	rs := newResampler(g.LevelBins(3), g)
	if err := rs.add(NewSparseAccumulator(2, 2, 0), sparse.ZerosDense(4, 4)); err == nil {
		t.Error("expected an error for mismatched histogram bins")
	}
	if err := rs.add(NewSparseAccumulator(8, 8, 0), NewSparseAccumulator(3, 3, 0).ToDense()); err == nil {
		t.Error("expected an error for a mismatched output grid")
	}
}
