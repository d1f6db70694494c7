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
	"sync"
	"sync/atomic"

	"github.com/ctessum/sparse"
	"github.com/golang/groupcache/lru"
)

// PoolConfig configures a Pool.
type PoolConfig struct {
	// Capacity is the number of free buffers of each shape that
	// Cleanup keeps.
	Capacity int

	// HighWater is the number of free buffers of each shape above
	// which returned buffers are discarded.
	HighWater int

	// MaxShapes is the number of distinct shapes the pool keeps
	// buffers for. The least recently used shape is forgotten first.
	MaxShapes int
}

// DefaultPoolConfig returns the default pool configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{Capacity: 4, HighWater: 8, MaxShapes: 32}
}

// PoolStats describe the state of a Pool.
type PoolStats struct {
	Hits, Misses int64
	Shapes       int
	Available    int
	CheckedOut   int
}

func (s PoolStats) String() string {
	return fmt.Sprintf("hits=%d misses=%d shapes=%d available=%d checked-out=%d",
		s.Hits, s.Misses, s.Shapes, s.Available, s.CheckedOut)
}

type shapeKey struct{ rows, cols int }

// shapeList holds the buffers of one shape.
type shapeList struct {
	sync.Mutex
	available []*sparse.DenseArray
	out       map[*sparse.DenseArray]struct{}
}

// Pool reuses two-dimensional dense arrays. A nil *Pool is valid and
// allocates a new array for every Get. Pools are safe for concurrent use.
type Pool struct {
	hits, misses int64

	mu  sync.Mutex
	cfg PoolConfig

	// shapes bounds the number of shapes in lists.
	shapes *lru.Cache
	lists  map[shapeKey]*shapeList
}

// NewPool returns a pool. Zero config fields take the values from
// DefaultPoolConfig.
func NewPool(cfg PoolConfig) *Pool {
	d := DefaultPoolConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = d.Capacity
	}
	if cfg.HighWater < cfg.Capacity {
		cfg.HighWater = cfg.Capacity
	}
	if cfg.MaxShapes <= 0 {
		cfg.MaxShapes = d.MaxShapes
	}
	p := &Pool{cfg: cfg}
	p.reset()
	return p
}

// reset discards every shape. p.mu must be held or p not yet shared.
func (p *Pool) reset() {
	p.lists = make(map[shapeKey]*shapeList)
	p.shapes = lru.New(p.cfg.MaxShapes)
	p.shapes.OnEvicted = func(k lru.Key, _ interface{}) {
		delete(p.lists, k.(shapeKey))
	}
}

// list returns the buffer list for a shape, creating it if create is set.
func (p *Pool) list(k shapeKey, create bool) *shapeList {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.shapes.Get(k); ok {
		return l.(*shapeList)
	}
	if !create {
		return nil
	}
	l := &shapeList{out: make(map[*sparse.DenseArray]struct{})}
	p.lists[k] = l
	p.shapes.Add(k, l)
	return l
}

// Get returns a zeroed rows x cols array.
func (p *Pool) Get(rows, cols int) *sparse.DenseArray {
	if p == nil {
		return sparse.ZerosDense(rows, cols)
	}
	l := p.list(shapeKey{rows, cols}, true)
	l.Lock()
	defer l.Unlock()
	var a *sparse.DenseArray
	if n := len(l.available); n > 0 {
		a = l.available[n-1]
		l.available = l.available[:n-1]
		for i := range a.Elements {
			a.Elements[i] = 0
		}
		atomic.AddInt64(&p.hits, 1)
	} else {
		a = sparse.ZerosDense(rows, cols)
		atomic.AddInt64(&p.misses, 1)
	}
	l.out[a] = struct{}{}
	return a
}

// Put returns an array obtained from Get. Arrays that were not checked
// out, or whose shape has been forgotten, are discarded.
func (p *Pool) Put(a *sparse.DenseArray) {
	if p == nil || a == nil || len(a.Shape) != 2 {
		return
	}
	l := p.list(shapeKey{a.Shape[0], a.Shape[1]}, false)
	if l == nil {
		return
	}
	l.Lock()
	defer l.Unlock()
	if _, ok := l.out[a]; !ok {
		return
	}
	delete(l.out, a)
	if len(l.available) < p.cfg.HighWater {
		l.available = append(l.available, a)
	}
}

// Cleanup discards free buffers so that no shape keeps more than
// Capacity of them. A Projector never trims its pool; callers that keep
// a pool between projections call Cleanup after releasing results.
func (p *Pool) Cleanup() {
	if p == nil {
		return
	}
	p.each(func(l *shapeList) {
		if len(l.available) > p.cfg.Capacity {
			for i := p.cfg.Capacity; i < len(l.available); i++ {
				l.available[i] = nil
			}
			l.available = l.available[:p.cfg.Capacity]
		}
	})
}

// Reset discards every buffer and clears the statistics.
func (p *Pool) Reset() {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.reset()
	p.mu.Unlock()
	atomic.StoreInt64(&p.hits, 0)
	atomic.StoreInt64(&p.misses, 0)
}

// Stats returns the current pool statistics.
func (p *Pool) Stats() PoolStats {
	if p == nil {
		return PoolStats{}
	}
	var s PoolStats
	p.each(func(l *shapeList) {
		s.Shapes++
		s.Available += len(l.available)
		s.CheckedOut += len(l.out)
	})
	s.Hits = atomic.LoadInt64(&p.hits)
	s.Misses = atomic.LoadInt64(&p.misses)
	return s
}

// each calls f with every shape list locked.
func (p *Pool) each(f func(l *shapeList)) {
	p.mu.Lock()
	lists := make([]*shapeList, 0, len(p.lists))
	for _, l := range p.lists {
		lists = append(lists, l)
	}
	p.mu.Unlock()
	for _, l := range lists {
		l.Lock()
		f(l)
		l.Unlock()
	}
}
