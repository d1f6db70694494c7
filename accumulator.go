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
	"sync"

	"github.com/ctessum/sparse"
)

// accumulator collects binned values on an nh x nv grid.
type accumulator interface {
	// Add adds val to bin (h, v).
	Add(h, v int, val float64)

	// Each calls f for every bin that has been added to.
	Each(f func(h, v int, val float64))

	// NonZero returns the number of distinct occupied bins.
	NonZero() int

	// Shape returns the grid dimensions.
	Shape() (nh, nv int)
}

// denseAccumulator accumulates into a dense array.
type denseAccumulator struct {
	a *sparse.DenseArray
}

func newDenseAccumulator(a *sparse.DenseArray) *denseAccumulator {
	return &denseAccumulator{a: a}
}

func (d *denseAccumulator) Add(h, v int, val float64) {
	d.a.Elements[h*d.a.Shape[1]+v] += val
}

func (d *denseAccumulator) Each(f func(h, v int, val float64)) {
	nv := d.a.Shape[1]
	for i, val := range d.a.Elements {
		if val != 0 {
			f(i/nv, i%nv, val)
		}
	}
}

func (d *denseAccumulator) NonZero() int {
	n := 0
	for _, val := range d.a.Elements {
		if val != 0 {
			n++
		}
	}
	return n
}

func (d *denseAccumulator) Shape() (nh, nv int) { return d.a.Shape[0], d.a.Shape[1] }

// SparseAccumulator accumulates values into a map of occupied bins.
// Values whose magnitude is below Threshold are dropped before insertion.
// A SparseAccumulator created with NewSharedSparseAccumulator may be used
// from several goroutines; one created with NewSparseAccumulator may not.
type SparseAccumulator struct {
	mu *sync.Mutex

	a      *sparse.SparseArray
	nh, nv int

	// Threshold is the absolute value below which added values are
	// dropped.
	Threshold float64

	dropped int

	// promoteAt is the number of occupied bins at which values move to
	// a dense array. Zero means never.
	promoteAt int
	dense     *sparse.DenseArray
	pool      *Pool
}

// NewSparseAccumulator returns an accumulator for an nh x nv grid.
func NewSparseAccumulator(nh, nv int, threshold float64) *SparseAccumulator {
	return &SparseAccumulator{
		a:         sparse.ZerosSparse(nh, nv),
		nh:        nh,
		nv:        nv,
		Threshold: threshold,
	}
}

// NewSharedSparseAccumulator returns an accumulator that is safe for
// concurrent use.
func NewSharedSparseAccumulator(nh, nv int, threshold float64) *SparseAccumulator {
	s := NewSparseAccumulator(nh, nv, threshold)
	s.mu = new(sync.Mutex)
	return s
}

// newAdaptiveAccumulator returns an accumulator that moves its values to
// a dense array taken from pool once the fraction of occupied bins
// reaches promote.
func newAdaptiveAccumulator(nh, nv int, promote float64, pool *Pool) *SparseAccumulator {
	s := NewSparseAccumulator(nh, nv, 0)
	s.promoteAt = int(math.Ceil(promote * float64(nh*nv)))
	if s.promoteAt < 1 {
		s.promoteAt = 1
	}
	s.pool = pool
	return s
}

func (s *SparseAccumulator) lock() {
	if s.mu != nil {
		s.mu.Lock()
	}
}

func (s *SparseAccumulator) unlock() {
	if s.mu != nil {
		s.mu.Unlock()
	}
}

// Add adds val to bin (h, v). Zero values are ignored, and a bin whose
// sum returns to zero is no longer occupied.
func (s *SparseAccumulator) Add(h, v int, val float64) {
	s.lock()
	defer s.unlock()
	if val == 0 {
		return
	}
	if math.Abs(val) < s.Threshold {
		s.dropped++
		return
	}
	i := h*s.nv + v
	if s.dense != nil {
		s.dense.Elements[i] += val
		return
	}
	if sum := s.a.Elements[i] + val; sum != 0 {
		s.a.Elements[i] = sum
	} else {
		delete(s.a.Elements, i)
		return
	}
	if s.promoteAt > 0 && len(s.a.Elements) >= s.promoteAt {
		s.promote()
	}
}

// promote moves the values into a dense array.
func (s *SparseAccumulator) promote() {
	s.dense = s.pool.Get(s.nh, s.nv)
	for i, val := range s.a.Elements {
		s.dense.Elements[i] = val
	}
	s.a = sparse.ZerosSparse(s.nh, s.nv)
}

// Promoted reports whether the values have moved to a dense array.
func (s *SparseAccumulator) Promoted() bool {
	s.lock()
	defer s.unlock()
	return s.dense != nil
}

// Get returns the value of bin (h, v).
func (s *SparseAccumulator) Get(h, v int) float64 {
	s.lock()
	defer s.unlock()
	if s.dense != nil {
		return s.dense.Elements[h*s.nv+v]
	}
	return s.a.Elements[h*s.nv+v]
}

// Each calls f for every occupied bin.
func (s *SparseAccumulator) Each(f func(h, v int, val float64)) {
	s.lock()
	defer s.unlock()
	if s.dense != nil {
		newDenseAccumulator(s.dense).Each(f)
		return
	}
	for i, val := range s.a.Elements {
		f(i/s.nv, i%s.nv, val)
	}
}

// NonZero returns the number of distinct bins holding a non-zero value.
func (s *SparseAccumulator) NonZero() int {
	s.lock()
	defer s.unlock()
	if s.dense != nil {
		return newDenseAccumulator(s.dense).NonZero()
	}
	return len(s.a.Elements)
}

// Dropped returns the number of values that were below the threshold.
func (s *SparseAccumulator) Dropped() int {
	s.lock()
	defer s.unlock()
	return s.dropped
}

// Shape returns the grid dimensions.
func (s *SparseAccumulator) Shape() (nh, nv int) { return s.nh, s.nv }

// ToDense returns the accumulated values as a dense array.
func (s *SparseAccumulator) ToDense() *sparse.DenseArray {
	return s.DenseInto(sparse.ZerosDense(s.nh, s.nv))
}

// DenseInto zeroes dst, which must have the accumulator's shape, and
// scatters the accumulated values into it.
func (s *SparseAccumulator) DenseInto(dst *sparse.DenseArray) *sparse.DenseArray {
	s.lock()
	defer s.unlock()
	if s.dense != nil {
		copy(dst.Elements, s.dense.Elements)
		return dst
	}
	for i := range dst.Elements {
		dst.Elements[i] = 0
	}
	for i, val := range s.a.Elements {
		dst.Elements[i] = val
	}
	return dst
}

// release returns pooled storage. The accumulator must not be used
// afterwards.
func (s *SparseAccumulator) release() {
	if s.dense != nil {
		s.pool.Put(s.dense)
		s.dense = nil
	}
}
