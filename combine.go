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
	"sort"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// partialResult holds the accumulated grids of one worker. It is only
// accessed by its worker until the workers have been joined.
type partialResult struct {
	thread int
	nh, nv int
	pool   *Pool

	// weight and values are nil until a level contributes to them.
	weight *sparse.DenseArray
	values map[string]*sparse.DenseArray

	levels []LevelReport
}

func newPartialResult(thread, nh, nv int, pool *Pool) *partialResult {
	return &partialResult{
		thread: thread,
		nh:     nh,
		nv:     nv,
		pool:   pool,
		values: make(map[string]*sparse.DenseArray),
	}
}

// add resamples a level histogram onto the worker's grids.
func (p *partialResult) add(lh *levelHistogram, working []*WorkVar) error {
	if p.weight == nil {
		p.weight = p.pool.Get(p.nh, p.nv)
	}
	if err := lh.rs.add(lh.weight, p.weight); err != nil {
		return err
	}
	for k, wv := range working {
		dst, ok := p.values[wv.Name]
		if !ok {
			dst = p.pool.Get(p.nh, p.nv)
			p.values[wv.Name] = dst
		}
		if err := lh.rs.add(lh.values[k], dst); err != nil {
			return err
		}
	}
	return nil
}

// OutputGrid holds the combined grids of a projection.
type OutputGrid struct {
	// Values holds the accumulated numerator of each work variable
	// that received at least one cell.
	Values map[string]*sparse.DenseArray

	// Weight holds the accumulated cell weights.
	Weight *sparse.DenseArray
}

// combine adds the partial results into one grid and returns the partial
// buffers to pool. The levels of every partial are returned in
// increasing level order.
func combine(parts []*partialResult, nh, nv int, pool *Pool) (*OutputGrid, []LevelReport) {
	out := &OutputGrid{Values: make(map[string]*sparse.DenseArray)}
	var levels []LevelReport
	add := func(dst **sparse.DenseArray, src *sparse.DenseArray) {
		if *dst == nil {
			*dst = pool.Get(nh, nv)
		}
		floats.Add((*dst).Elements, src.Elements)
		pool.Put(src)
	}
	for _, p := range parts {
		levels = append(levels, p.levels...)
		if p.weight != nil {
			add(&out.Weight, p.weight)
		}
		for name, v := range p.values {
			dst := out.Values[name]
			add(&dst, v)
			out.Values[name] = dst
		}
	}
	if out.Weight == nil {
		out.Weight = pool.Get(nh, nv)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Level < levels[j].Level })
	return out, levels
}
