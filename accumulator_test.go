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
	"sync"
	"testing"

	"github.com/ctessum/sparse"
)

func TestSparseAccumulator(t *testing.T) {
	s := NewSparseAccumulator(3, 4, 1e-9)
	s.Add(1, 2, 3)
	s.Add(1, 2, 1)
	s.Add(2, 3, -2)
	s.Add(0, 0, 1e-12)
	if have := s.Get(1, 2); have != 4 {
		t.Errorf("get: have %g, want 4", have)
	}
	if have := s.NonZero(); have != 2 {
		t.Errorf("nonzero: have %d, want 2", have)
	}
	if have := s.Dropped(); have != 1 {
		t.Errorf("dropped: have %d, want 1", have)
	}
	d := s.ToDense()
	if d.Shape[0] != 3 || d.Shape[1] != 4 {
		t.Fatalf("shape: have %v, want [3 4]", d.Shape)
	}
	if have := d.Get(1, 2); have != 4 {
		t.Errorf("dense (1, 2): have %g, want 4", have)
	}
	if have := d.Get(2, 3); have != -2 {
		t.Errorf("dense (2, 3): have %g, want -2", have)
	}
	if have := d.Sum(); have != 2 {
		t.Errorf("dense sum: have %g, want 2", have)
	}

	dirty := sparse.ZerosDense(3, 4)
	for i := range dirty.Elements {
		dirty.Elements[i] = 7
	}
	s.DenseInto(dirty)
	if have := dirty.Sum(); have != 2 {
		t.Errorf("dense into: have sum %g, want 2", have)
	}
	n := 0
	s.Each(func(h, v int, val float64) { n++ })
	if n != 2 {
		t.Errorf("each: have %d bins, want 2", n)
	}
}

func TestSharedSparseAccumulator(t *testing.T) {
	s := NewSharedSparseAccumulator(2, 2, 0)
	var wg sync.WaitGroup
	const workers, adds = 8, 1000
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			for j := 0; j < adds; j++ {
				s.Add(i%2, j%2, 1)
			}
		}(i)
	}
	wg.Wait()
	if have := s.ToDense().Sum(); have != workers*adds {
		t.Errorf("have %g, want %d", have, workers*adds)
	}
	if have := s.NonZero(); have != 4 {
		t.Errorf("nonzero: have %d, want 4", have)
	}
}

func TestAdaptiveAccumulator(t *testing.T) {
	pool := NewPool(PoolConfig{})
	s := newAdaptiveAccumulator(4, 4, 0.25, pool)
	for i := 0; i < 3; i++ {
		s.Add(i, i, float64(i+1))
	}
	if s.Promoted() {
		t.Fatal("promoted too early")
	}
	s.Add(3, 3, 4)
	if !s.Promoted() {
		t.Fatal("not promoted")
	}
	s.Add(0, 0, 1)
	if have := s.Get(0, 0); have != 2 {
		t.Errorf("get: have %g, want 2", have)
	}
	if have := s.NonZero(); have != 4 {
		t.Errorf("nonzero: have %d, want 4", have)
	}
	if have := s.ToDense().Sum(); have != 11 {
		t.Errorf("sum: have %g, want 11", have)
	}
	if have := pool.Stats().CheckedOut; have != 1 {
		t.Errorf("checked out: have %d, want 1", have)
	}
	s.release()
	if have := pool.Stats().CheckedOut; have != 0 {
		t.Errorf("checked out after release: have %d, want 0", have)
	}
}

func TestDenseAccumulator(t *testing.T) {
	d := newDenseAccumulator(sparse.ZerosDense(2, 3))
	d.Add(1, 2, 5)
	d.Add(0, 1, 1)
	d.Add(1, 2, 1)
	if have := d.a.Get(1, 2); have != 6 {
		t.Errorf("have %g, want 6", have)
	}
	if have := d.NonZero(); have != 2 {
		t.Errorf("nonzero: have %d, want 2", have)
	}
	bins := make(map[[2]int]float64)
	d.Each(func(h, v int, val float64) { bins[[2]int{h, v}] = val })
	if len(bins) != 2 || bins[[2]int{1, 2}] != 6 || bins[[2]int{0, 1}] != 1 {
		t.Errorf("each: have %v", bins)
	}
}

func TestSparseAccumulatorZeroBins(t *testing.T) {
	s := NewSparseAccumulator(4, 4, 0)
	s.Add(0, 0, 0)
	s.Add(1, 1, 2)
	s.Add(1, 1, -2)
	if have := s.NonZero(); have != 0 {
		t.Errorf("nonzero: have %d, want 0", have)
	}
	if have := s.Dropped(); have != 0 {
		t.Errorf("dropped: have %d, want 0", have)
	}
	n := 0
	s.Each(func(h, v int, val float64) { n++ })
	if n != 0 {
		t.Errorf("each: have %d bins, want 0", n)
	}
	s.Add(1, 1, 3)
	if have := s.Get(1, 1); have != 3 || s.NonZero() != 1 {
		t.Errorf("have %g in %d bins, want 3 in 1", have, s.NonZero())
	}

	// Zero values do not count toward promotion.
	a := newAdaptiveAccumulator(2, 2, 0.5, NewPool(PoolConfig{}))
	a.Add(0, 0, 0)
	a.Add(0, 1, 1)
	a.Add(0, 1, -1)
	a.Add(1, 0, 1)
	if a.Promoted() {
		t.Error("promoted with one occupied bin")
	}
	a.release()
}
