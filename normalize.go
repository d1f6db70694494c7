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
	"math"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// normalizer turns accumulated grids into maps.
type normalizer struct {
	grid *GridSpec
	ex   *Extraction
	out  *OutputGrid
	pool *Pool
}

// maps returns a map for every requested variable that could be
// computed, along with the names of those variables in request order.
func (n *normalizer) maps() (map[string]*sparse.DenseArray, []string) {
	maps := make(map[string]*sparse.DenseArray)
	var names []string
	for _, ov := range n.ex.Vars {
		m := n.compute(ov)
		if m == nil {
			continue
		}
		if ov.Name != "phi" && ov.Scale != 1 {
			floats.Scale(ov.Scale, m.Elements)
		}
		for i, v := range m.Elements {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				m.Elements[i] = 0
			}
		}
		maps[ov.Name] = m
		names = append(names, ov.Name)
	}
	return maps, names
}

func (n *normalizer) compute(ov OutputVar) *sparse.DenseArray {
	switch ov.Kind {
	case GeometryVar:
		return n.geometry(ov.Name)
	case CompositeVar:
		mean, sq := n.out.Values[ov.Mean], n.out.Values[ov.Square]
		if mean == nil || sq == nil {
			return nil
		}
		m := n.average(mean)
		s := n.average(sq)
		for i, e := range m.Elements {
			m.Elements[i] = math.Sqrt(math.Max(0, s.Elements[i]-e*e))
		}
		n.pool.Put(s)
		return m
	}
	num := n.out.Values[ov.Source]
	if num == nil {
		return nil
	}
	wv := n.ex.Work(ov.Source)
	switch {
	case ov.Kind == SurfaceDensityVar:
		m := n.copy(num)
		floats.Scale(1/n.grid.PixelArea(), m.Elements)
		return m
	case wv.Sum:
		return n.copy(num)
	}
	return n.average(num)
}

func (n *normalizer) copy(src *sparse.DenseArray) *sparse.DenseArray {
	m := n.pool.Get(src.Shape[0], src.Shape[1])
	copy(m.Elements, src.Elements)
	return m
}

// average divides num by the accumulated weight. Pixels without weight
// are zero.
func (n *normalizer) average(num *sparse.DenseArray) *sparse.DenseArray {
	m := n.pool.Get(num.Shape[0], num.Shape[1])
	w := n.out.Weight.Elements
	for i, v := range num.Elements {
		if w[i] != 0 {
			m.Elements[i] = v / w[i]
		}
	}
	return m
}

// geometry computes the cylindrical radius, in code units, or the
// azimuth, in radians, of every pixel center about the projection
// center.
func (n *normalizer) geometry(name string) *sparse.DenseArray {
	nh, nv := n.grid.Shape()
	m := n.pool.Get(nh, nv)
	c := n.grid.ImageCenter()
	toCode := n.grid.boxLen / n.grid.BoxSize
	for i := 0; i < nh; i++ {
		for j := 0; j < nv; j++ {
			p := n.grid.PixelCenter(i, j)
			dh, dv := (p.X-c.X)*toCode, (p.Y-c.Y)*toCode
			r := math.Hypot(dh, dv)
			switch {
			case name == "r_cylinder":
				m.Elements[i*nv+j] = r
			case r > 0:
				m.Elements[i*nv+j] = math.Atan2(dv, dh)
			}
		}
	}
	return m
}
