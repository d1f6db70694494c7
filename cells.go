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

// Package amrproj projects the cells of an adaptive mesh refinement (AMR)
// simulation onto a regular two-dimensional image grid. Each refinement
// level is binned at its native resolution, resampled onto the output
// grid and combined so that extensive quantities are conserved.
package amrproj

import (
	"fmt"
	"math"
)

// CellTable is a read-only table of AMR leaf cells. Cell coordinates
// are integer indices at the cell's own refinement level, so a cell at
// level L satisfies 0 <= Index(i)[k] < 2^L along every axis.
type CellTable interface {
	// Len returns the number of cells.
	Len() int
	// Level returns the refinement level of cell i.
	Level(i int) int
	// Index returns the integer (x, y, z) coordinates of cell i.
	Index(i int) [3]int
	// Field returns the values of the named field for every cell,
	// or nil if the table does not hold the field.
	Field(name string) []float64
}

// Cells is an in-memory CellTable.
type Cells struct {
	Levels []int
	Coords [][3]int
	Fields map[string][]float64
}

// NewCells returns an empty cell table.
func NewCells() *Cells {
	return &Cells{Fields: make(map[string][]float64)}
}

// Len implements CellTable.
func (c *Cells) Len() int { return len(c.Levels) }

// Level implements CellTable.
func (c *Cells) Level(i int) int { return c.Levels[i] }

// Index implements CellTable.
func (c *Cells) Index(i int) [3]int { return c.Coords[i] }

// Field implements CellTable.
func (c *Cells) Field(name string) []float64 {
	if c.Fields == nil {
		return nil
	}
	return c.Fields[name]
}

// Add appends a cell. Fields that are not present in vals are
// set to zero for the new cell, and fields that are new to the table
// are set to zero for all existing cells.
func (c *Cells) Add(level, cx, cy, cz int, vals map[string]float64) {
	if c.Fields == nil {
		c.Fields = make(map[string][]float64)
	}
	n := len(c.Levels)
	for name := range vals {
		if _, ok := c.Fields[name]; !ok {
			c.Fields[name] = make([]float64, n)
		}
	}
	for name, f := range c.Fields {
		c.Fields[name] = append(f, vals[name])
	}
	c.Levels = append(c.Levels, level)
	c.Coords = append(c.Coords, [3]int{cx, cy, cz})
}

// SetField replaces the values of the named field. The length of vals
// must match the number of cells.
func (c *Cells) SetField(name string, vals []float64) error {
	if len(vals) != len(c.Levels) {
		return fmt.Errorf("amrproj: field %s has %d values but there are %d cells",
			name, len(vals), len(c.Levels))
	}
	if c.Fields == nil {
		c.Fields = make(map[string][]float64)
	}
	c.Fields[name] = vals
	return nil
}

// Info holds simulation metadata.
type Info struct {
	// BoxLen is the edge length of the cubic simulation domain in
	// code units.
	BoxLen float64

	// LevelMin and LevelMax are the coarsest and finest refinement
	// levels present in the simulation.
	LevelMin, LevelMax int

	// Gamma is the adiabatic index. Zero means 5/3.
	Gamma float64

	// Scales converts code lengths and field values to physical
	// units: a value v in code units is v*Scales[unit] in unit.
	Scales map[string]float64
}

// DefaultGamma is used when Info.Gamma is not set.
const DefaultGamma = 5. / 3.

func (info *Info) gamma() float64 {
	if info.Gamma == 0 {
		return DefaultGamma
	}
	return info.Gamma
}

// Scale returns the conversion factor for unit. The empty unit and
// "standard" both mean code units.
func (info *Info) Scale(unit string) (float64, error) {
	if unit == "" || unit == StandardUnit {
		return 1, nil
	}
	s, ok := info.Scales[unit]
	if !ok {
		return 0, fmt.Errorf("amrproj: %w: unknown unit %q", ErrValidation, unit)
	}
	if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return 0, fmt.Errorf("amrproj: %w: invalid scale %g for unit %q", ErrValidation, s, unit)
	}
	return s, nil
}

// CellSize returns the edge length in code units of a cell at level.
func (info *Info) CellSize(level int) float64 {
	return info.BoxLen / float64(int64(1)<<uint(level))
}

func (info *Info) validate() error {
	if info == nil {
		return fmt.Errorf("amrproj: %w: missing simulation info", ErrValidation)
	}
	if !(info.BoxLen > 0) || math.IsInf(info.BoxLen, 0) {
		return fmt.Errorf("amrproj: %w: box length must be positive, got %g", ErrValidation, info.BoxLen)
	}
	if info.LevelMin < 0 || info.LevelMax < info.LevelMin {
		return fmt.Errorf("amrproj: %w: invalid level range [%d, %d]",
			ErrValidation, info.LevelMin, info.LevelMax)
	}
	if info.LevelMax > MaxLevel {
		return fmt.Errorf("amrproj: %w: maximum level %d exceeds %d", ErrValidation, info.LevelMax, MaxLevel)
	}
	return nil
}

// MaxLevel is the finest refinement level that can be projected.
const MaxLevel = 30

// levelIndex groups the cells of t by refinement level.
func levelIndex(t CellTable) map[int][]int {
	idx := make(map[int][]int)
	for i := 0; i < t.Len(); i++ {
		l := t.Level(i)
		idx[l] = append(idx[l], i)
	}
	return idx
}
