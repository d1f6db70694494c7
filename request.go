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
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrValidation is wrapped by errors caused by a request that cannot
	// be satisfied, such as an unknown unit or an empty range.
	ErrValidation = errors.New("invalid request")

	// ErrConfig is wrapped by errors caused by a request that refers to
	// data that is not available, such as a missing field.
	ErrConfig = errors.New("invalid configuration")
)

// StandardUnit is the range unit for fractions of the box length.
const StandardUnit = "standard"

// Direction is the axis along which cells are projected.
type Direction int

// Projection directions. Z is the default.
const (
	Z Direction = iota
	X
	Y
)

func (d Direction) String() string {
	switch d {
	case X:
		return "x"
	case Y:
		return "y"
	case Z:
		return "z"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// axes returns the indices of the horizontal, vertical, and depth axes
// of an image projected along d.
func (d Direction) axes() (h, v, depth int) {
	switch d {
	case X:
		return 1, 2, 0
	case Y:
		return 0, 2, 1
	default:
		return 0, 1, 2
	}
}

// ParseDirection parses "x", "y", or "z".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x":
		return X, nil
	case "y":
		return Y, nil
	case "z", "":
		return Z, nil
	}
	return Z, fmt.Errorf("amrproj: %w: invalid projection direction %q", ErrValidation, s)
}

// Weighting selects the per-cell weight used to average values.
type Weighting int

const (
	// MassWeighted weights each cell by rho*dx^3.
	MassWeighted Weighting = iota
	// VolumeWeighted weights each cell by dx^3.
	VolumeWeighted
	// Unweighted gives each cell a weight of one.
	Unweighted
)

func (w Weighting) String() string {
	switch w {
	case MassWeighted:
		return "mass"
	case VolumeWeighted:
		return "volume"
	case Unweighted:
		return "none"
	default:
		return fmt.Sprintf("Weighting(%d)", int(w))
	}
}

// ParseWeighting parses "mass", "volume", or "none".
func ParseWeighting(s string) (Weighting, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mass", "":
		return MassWeighted, nil
	case "volume":
		return VolumeWeighted, nil
	case "none":
		return Unweighted, nil
	}
	return MassWeighted, fmt.Errorf("amrproj: %w: invalid weighting %q", ErrValidation, s)
}

// Aggregation selects how binned values are turned into map values.
type Aggregation int

const (
	// Average divides the weighted sum of each pixel by its weight.
	Average Aggregation = iota
	// Sum reports the plain sum of the values in each pixel.
	Sum
)

func (a Aggregation) String() string {
	switch a {
	case Average:
		return "average"
	case Sum:
		return "sum"
	default:
		return fmt.Sprintf("Aggregation(%d)", int(a))
	}
}

// ParseAggregation parses "average" or "sum".
func ParseAggregation(s string) (Aggregation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "average", "":
		return Average, nil
	case "sum":
		return Sum, nil
	}
	return Average, fmt.Errorf("amrproj: %w: invalid aggregation mode %q", ErrValidation, s)
}

// AlgorithmOverride forces the binning algorithm for every level.
type AlgorithmOverride int

const (
	// Auto lets the selector choose per level.
	Auto AlgorithmOverride = iota
	// ForceDense always bins into dense arrays.
	ForceDense
	// ForceSparse always bins into sparse arrays.
	ForceSparse
)

func (o AlgorithmOverride) String() string {
	switch o {
	case Auto:
		return "auto"
	case ForceDense:
		return "force-dense"
	case ForceSparse:
		return "force-sparse"
	default:
		return fmt.Sprintf("AlgorithmOverride(%d)", int(o))
	}
}

// ParseAlgorithmOverride parses "auto", "force-dense", or
// "force-sparse".
func ParseAlgorithmOverride(s string) (AlgorithmOverride, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto", "":
		return Auto, nil
	case "force-dense", "dense":
		return ForceDense, nil
	case "force-sparse", "sparse":
		return ForceSparse, nil
	}
	return Auto, fmt.Errorf("amrproj: %w: invalid algorithm %q", ErrValidation, s)
}

// Coordinate is one component of the projection center.
type Coordinate struct {
	// BoxCenter means the middle of the box, ignoring Value.
	BoxCenter bool
	// Value is the coordinate in the request's range unit.
	Value float64
}

func (c Coordinate) String() string {
	if c.BoxCenter {
		return "bc"
	}
	return strconv.FormatFloat(c.Value, 'g', -1, 64)
}

// ParseCoordinate parses "bc", "boxcenter", or a number.
func ParseCoordinate(s string) (Coordinate, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	switch t {
	case "bc", "boxcenter":
		return Coordinate{BoxCenter: true}, nil
	case "":
		return Coordinate{}, nil
	}
	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("amrproj: %w: invalid coordinate %q", ErrValidation, s)
	}
	return Coordinate{Value: v}, nil
}

// ParseCenter parses up to three coordinates. A single coordinate is
// used for all three axes, and missing trailing coordinates are zero.
func ParseCenter(s ...string) ([3]Coordinate, error) {
	var c [3]Coordinate
	if len(s) > 3 {
		return c, fmt.Errorf("amrproj: %w: center has %d components", ErrValidation, len(s))
	}
	for i, v := range s {
		var err error
		c[i], err = ParseCoordinate(v)
		if err != nil {
			return c, err
		}
	}
	if len(s) == 1 {
		c[1], c[2] = c[0], c[0]
	}
	return c, nil
}

// Request describes a projection.
type Request struct {
	// Direction is the projection axis.
	Direction Direction

	// Vars are the names of the variables to project, in output order.
	Vars []string

	// Units maps variable names to the unit their map is reported in.
	Units map[string]string

	Weighting Weighting
	Mode      Aggregation

	// XRange, YRange, and ZRange are ranges relative to Center. A range
	// whose ends are equal selects the full extent of the axis.
	XRange, YRange, ZRange [2]float64

	// Center is the origin of the ranges.
	Center [3]Coordinate

	// RangeUnit is the unit of the ranges, the center, and the pixel
	// size. The default is StandardUnit.
	RangeUnit string

	// Res is the number of pixels across the box. PixSize takes
	// precedence over Res, which takes precedence over Level.
	Res int

	// PixSize is the pixel edge length in RangeUnit.
	PixSize float64

	// Level sets the resolution to 2^Level pixels across the box.
	Level int

	// Threads is the worker budget. Zero or less uses all processors.
	Threads int

	// Algorithm overrides algorithm selection.
	Algorithm AlgorithmOverride

	// Expressions defines additional variables by name. Expressions may
	// refer to stored fields, per-cell derived variables, and the
	// parameters "dx" and "level".
	Expressions map[string]string

	// MeasureFill counts occupied pixels exactly rather than estimating
	// the fill ratio of each level.
	MeasureFill bool
}

// ranges returns the axis ranges in x, y, z order.
func (r *Request) ranges() [3][2]float64 {
	return [3][2]float64{r.XRange, r.YRange, r.ZRange}
}

// unit returns the requested unit for variable name.
func (r *Request) unit(name string) string {
	if r.Units == nil {
		return ""
	}
	return r.Units[name]
}
