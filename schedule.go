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
	"bytes"
	"fmt"
	"runtime"
	"sort"
	"sync"
)

// Plan assigns refinement levels to worker threads.
type Plan struct {
	// Levels holds the levels assigned to each thread, in the order
	// they were assigned.
	Levels [][]int

	// Loads holds the total number of cells assigned to each thread.
	Loads []int

	// Budget is the requested number of threads and Hardware the
	// number of available processors.
	Budget, Hardware int
}

// Schedule assigns levels, given the number of cells in each level, to
// at most budget threads. A budget of zero or less means hw threads. The
// number of threads is never more than hw or the number of non-empty
// levels and never less than one. Levels are assigned largest first to
// the thread with the smallest load, so that no thread carries more than
// the average load plus the largest level. Equal loads go to the lowest
// thread, and levels with equal counts are taken in increasing order.
func Schedule(counts map[int]int, budget, hw int) *Plan {
	if hw < 1 {
		hw = 1
	}
	p := &Plan{Budget: budget, Hardware: hw}
	levels := make([]int, 0, len(counts))
	for l, n := range counts {
		if n > 0 {
			levels = append(levels, l)
		}
	}
	sort.Slice(levels, func(i, j int) bool {
		ni, nj := counts[levels[i]], counts[levels[j]]
		if ni != nj {
			return ni > nj
		}
		return levels[i] < levels[j]
	})

	threads := budget
	if threads <= 0 || threads > hw {
		threads = hw
	}
	if threads > len(levels) {
		threads = len(levels)
	}
	if threads < 1 {
		threads = 1
	}
	p.Levels = make([][]int, threads)
	p.Loads = make([]int, threads)
	for _, l := range levels {
		t := 0
		for i := 1; i < threads; i++ {
			if p.Loads[i] < p.Loads[t] {
				t = i
			}
		}
		p.Levels[t] = append(p.Levels[t], l)
		p.Loads[t] += counts[l]
	}
	return p
}

// Threads returns the number of threads in the plan.
func (p *Plan) Threads() int { return len(p.Levels) }

// MaxLoad returns the largest thread load.
func (p *Plan) MaxLoad() int {
	m := 0
	for _, l := range p.Loads {
		if l > m {
			m = l
		}
	}
	return m
}

// Thread returns the thread a level is assigned to, or -1.
func (p *Plan) Thread(level int) int {
	for t, ls := range p.Levels {
		for _, l := range ls {
			if l == level {
				return t
			}
		}
	}
	return -1
}

func (p *Plan) String() string {
	b := new(bytes.Buffer)
	fmt.Fprintf(b, "%d thread(s) (budget %d, %d processors)\n", p.Threads(), p.Budget, p.Hardware)
	for t, ls := range p.Levels {
		fmt.Fprintf(b, "thread %d: levels %v, %d cells\n", t, ls, p.Loads[t])
	}
	return b.String()
}

// hardware returns the number of processors available to workers.
func hardware(maxProcs int) int {
	if maxProcs > 0 {
		return maxProcs
	}
	return runtime.GOMAXPROCS(0)
}

// run calls f concurrently for every thread of the plan with the levels
// assigned to it and waits for all calls to return.
func (p *Plan) run(f func(thread int, levels []int)) {
	var wg sync.WaitGroup
	wg.Add(p.Threads())
	for t := range p.Levels {
		go func(t int) {
			defer wg.Done()
			f(t, p.Levels[t])
		}(t)
	}
	wg.Wait()
}
