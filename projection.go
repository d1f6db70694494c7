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
	"time"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/amrproj/internal/hash"
)

// State is a step in processing a projection request.
type State int

// Projection states, in the order they are entered.
const (
	Init State = iota
	Extracting
	Scheduling
	Processing
	Combining
	Normalizing
	Done
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case Extracting:
		return "extract"
	case Scheduling:
		return "schedule"
	case Processing:
		return "process"
	case Combining:
		return "combine"
	case Normalizing:
		return "normalize"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Projector projects cell tables onto image grids. The zero value is
// ready to use.
type Projector struct {
	// Pool supplies the grids used during projection. If it is nil,
	// grids are allocated as needed.
	Pool *Pool

	// Log receives progress messages. If it is nil,
	// logrus.StandardLogger() is used.
	Log logrus.FieldLogger

	// Thresholds control algorithm selection.
	Thresholds Thresholds

	// MaxProcs is the number of available processors. Zero means
	// runtime.GOMAXPROCS(0).
	MaxProcs int
}

// Result is the outcome of a projection.
type Result struct {
	Grid *GridSpec

	// Vars holds the names of the variables in Maps, in request order.
	Vars []string

	// Maps holds a map for every variable that could be computed.
	// Each map has the shape of Grid, indexed [h][v].
	Maps map[string]*sparse.DenseArray

	// Weight holds the accumulated cell weight of every pixel.
	Weight *sparse.DenseArray

	Diagnostics Diagnostics

	pool *Pool
}

// Map returns the map of the named variable, or nil.
func (r *Result) Map(name string) *sparse.DenseArray { return r.Maps[name] }

// Release returns the maps of r to the pool they came from. r must not
// be used afterwards.
func (r *Result) Release() {
	for _, m := range r.Maps {
		r.pool.Put(m)
	}
	r.pool.Put(r.Weight)
	r.Maps, r.Weight = nil, nil
}

// capabilities are optional features resolved once per request.
type capabilities struct {
	pool bool
}

// projection holds the state of one request.
type projection struct {
	p     *Projector
	log   logrus.FieldLogger
	caps  capabilities
	pool  *Pool
	state State
	start time.Time

	cells CellTable
	info  *Info
	req   *Request

	grid   *GridSpec
	ex     *Extraction
	idx    map[int][]int
	plan   *Plan
	parts  []*partialResult
	out    *OutputGrid
	levels []LevelReport
	result *Result
}

// stage is one step of a projection.
type stage struct {
	state State
	f     func(*projection) error
}

var stages = []stage{
	{Init, (*projection).init},
	{Extracting, (*projection).extract},
	{Scheduling, (*projection).schedule},
	{Processing, (*projection).process},
	{Combining, (*projection).combine},
	{Normalizing, (*projection).normalize},
}

// Project projects cells with a zero-value Projector.
func Project(cells CellTable, info *Info, req *Request) (*Result, error) {
	return new(Projector).Project(cells, info, req)
}

// Project projects cells according to req. Invalid requests and missing
// data return an error before any level is processed. Levels that
// cannot be processed are skipped and reported in the result's
// diagnostics.
func (p *Projector) Project(cells CellTable, info *Info, req *Request) (*Result, error) {
	pr := &projection{
		p:     p,
		log:   p.Log,
		cells: cells,
		info:  info,
		req:   req,
		start: time.Now(),
	}
	if pr.log == nil {
		pr.log = logrus.StandardLogger()
	}
	for _, s := range stages {
		pr.state = s.state
		if err := s.f(pr); err != nil {
			pr.log.WithFields(logrus.Fields{
				"state": s.state.String(),
				"error": err,
			}).Error("amrproj: projection failed")
			return nil, err
		}
	}
	pr.state = Done
	d := &pr.result.Diagnostics
	d.Elapsed = time.Since(pr.start)
	d.Pool = pr.pool.Stats()
	pr.log.WithFields(logrus.Fields{
		"request":  d.RequestKey,
		"vars":     pr.result.Vars,
		"levels":   len(d.Levels),
		"degraded": d.Degraded,
		"elapsed":  d.Elapsed,
	}).Info("amrproj: projection complete")
	return pr.result, nil
}

func (pr *projection) init() error {
	if pr.cells == nil {
		return fmt.Errorf("amrproj: %w: no cell table", ErrValidation)
	}
	if pr.req == nil {
		return fmt.Errorf("amrproj: %w: no request", ErrValidation)
	}
	pr.caps.pool = pr.p.Pool != nil
	if pr.caps.pool {
		pr.pool = pr.p.Pool
	}
	var err error
	if pr.grid, err = NewGridSpec(pr.info, pr.req); err != nil {
		return err
	}
	nh, nv := pr.grid.Shape()
	pr.log.WithFields(logrus.Fields{
		"direction": pr.req.Direction.String(),
		"res":       pr.grid.Res,
		"shape":     []int{nh, nv},
		"pool":      pr.caps.pool,
	}).Debug("amrproj: output grid")
	return nil
}

func (pr *projection) extract() error {
	var err error
	if pr.ex, err = Extract(pr.cells, pr.info, pr.req); err != nil {
		return err
	}
	pr.idx = levelIndex(pr.cells)
	return nil
}

func (pr *projection) schedule() error {
	counts := make(map[int]int, len(pr.idx))
	for l, idx := range pr.idx {
		counts[l] = len(idx)
	}
	pr.plan = Schedule(counts, pr.req.Threads, hardware(pr.p.MaxProcs))
	pr.log.WithFields(logrus.Fields{
		"threads":  pr.plan.Threads(),
		"max_load": pr.plan.MaxLoad(),
	}).Debug("amrproj: schedule")
	return nil
}

// process bins and resamples every level, with each thread of the plan
// writing only to its own partial result.
func (pr *projection) process() error {
	b := &binner{
		cells:    pr.cells,
		info:     pr.info,
		grid:     pr.grid,
		ex:       pr.ex,
		th:       pr.p.Thresholds.withDefaults(),
		override: pr.req.Algorithm,
		measure:  pr.req.MeasureFill,
		pool:     pr.pool,
	}
	nh, nv := pr.grid.Shape()
	pr.parts = make([]*partialResult, pr.plan.Threads())
	pr.plan.run(func(t int, levels []int) {
		part := newPartialResult(t, nh, nv, pr.pool)
		for _, l := range levels {
			part.levels = append(part.levels, pr.processLevel(b, part, l))
		}
		pr.parts[t] = part
	})
	return nil
}

func (pr *projection) processLevel(b *binner, part *partialResult, level int) LevelReport {
	lh, err := b.binLevel(level, pr.idx[level])
	if err != nil {
		return pr.skipLevel(LevelReport{Level: level, Thread: part.thread, Cells: len(pr.idx[level]), Err: err})
	}
	defer lh.release()
	lh.report.Thread = part.thread
	if lh.report.Binned > 0 {
		if err := part.add(lh, pr.ex.Working); err != nil {
			lh.report.Err = err
			return pr.skipLevel(lh.report)
		}
	}
	pr.log.WithFields(lh.report.fields()).Debug("amrproj: level binned")
	return lh.report
}

func (pr *projection) skipLevel(r LevelReport) LevelReport {
	pr.log.WithFields(r.fields()).Warn("amrproj: level skipped")
	return r
}

func (pr *projection) combine() error {
	nh, nv := pr.grid.Shape()
	pr.out, pr.levels = combine(pr.parts, nh, nv, pr.pool)
	pr.parts = nil
	return nil
}

func (pr *projection) normalize() error {
	n := &normalizer{grid: pr.grid, ex: pr.ex, out: pr.out, pool: pr.pool}
	maps, names := n.maps()
	for _, v := range pr.out.Values {
		pr.pool.Put(v)
	}
	r := &Result{
		Grid:   pr.grid,
		Vars:   names,
		Maps:   maps,
		Weight: pr.out.Weight,
		pool:   pr.pool,
		Diagnostics: Diagnostics{
			RequestKey: hash.Hash(struct {
				Info    *Info
				Request *Request
			}{pr.info, pr.req}),
			Plan:   pr.plan,
			Levels: pr.levels,
		},
	}
	for _, l := range pr.levels {
		if l.Err != nil {
			r.Diagnostics.Degraded = true
		}
	}
	pr.result = r
	return nil
}
