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
	"time"

	"github.com/sirupsen/logrus"
)

// LevelReport describes how one level was processed.
type LevelReport struct {
	Level  int
	Thread int

	// Cells is the number of cells in the level, and Binned and
	// Dropped the number inside the selected region that were binned
	// or dropped for negligible weight.
	Cells, Binned, Dropped int

	Algorithm Algorithm
	Reason    string
	FillRatio float64
	Measured  bool

	// NonZero is the number of occupied native bins.
	NonZero int

	// Err is set if the level was skipped.
	Err error
}

func (r LevelReport) fields() logrus.Fields {
	f := logrus.Fields{
		"level":  r.Level,
		"thread": r.Thread,
		"cells":  r.Cells,
	}
	if r.Err != nil {
		f["error"] = r.Err
		return f
	}
	f["binned"] = r.Binned
	f["dropped"] = r.Dropped
	f["algorithm"] = r.Algorithm.String()
	f["fill"] = r.FillRatio
	f["measured"] = r.Measured
	f["nonzero"] = r.NonZero
	return f
}

// Diagnostics describe a projection.
type Diagnostics struct {
	// RequestKey identifies the request and simulation metadata.
	RequestKey string

	Plan *Plan

	// Levels holds a report for every level, in increasing level
	// order.
	Levels []LevelReport

	// Degraded is set when at least one level could not be processed,
	// in which case the maps do not cover every cell.
	Degraded bool

	// Pool is the state of the memory pool after the projection.
	Pool PoolStats

	Elapsed time.Duration
}

// Level returns the report for level, or nil.
func (d *Diagnostics) Level(level int) *LevelReport {
	for i := range d.Levels {
		if d.Levels[i].Level == level {
			return &d.Levels[i]
		}
	}
	return nil
}

// Errors returns the errors of skipped levels.
func (d *Diagnostics) Errors() []error {
	var errs []error
	for _, r := range d.Levels {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}

func (d *Diagnostics) String() string {
	b := new(bytes.Buffer)
	fmt.Fprintf(b, "request %s: %d level(s) in %v", d.RequestKey, len(d.Levels), d.Elapsed)
	if d.Degraded {
		fmt.Fprint(b, " (degraded)")
	}
	fmt.Fprintln(b)
	if d.Plan != nil {
		fmt.Fprint(b, d.Plan)
	}
	for _, r := range d.Levels {
		if r.Err != nil {
			fmt.Fprintf(b, "level %d: skipped: %v\n", r.Level, r.Err)
			continue
		}
		fmt.Fprintf(b, "level %d: thread %d, %s (%s), fill %.3g, %d/%d cells binned, %d dropped\n",
			r.Level, r.Thread, r.Algorithm, r.Reason, r.FillRatio, r.Binned, r.Cells, r.Dropped)
	}
	fmt.Fprintf(b, "pool: %v\n", d.Pool)
	return b.String()
}
