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
	"math"
	"sort"

	"github.com/Knetic/govaluate"
)

// VarKind is the kind of a projected variable.
type VarKind int

const (
	// StoredVar is a field held by the cell table.
	StoredVar VarKind = iota
	// CellVar is computed for each cell from stored fields.
	CellVar
	// SurfaceDensityVar is summed cell mass divided by pixel area.
	SurfaceDensityVar
	// CompositeVar is computed from the first two moments of
	// another variable, such as a velocity dispersion.
	CompositeVar
	// GeometryVar is computed from pixel coordinates.
	GeometryVar
	// ExpressionVar is a user-defined expression of other variables.
	ExpressionVar
)

func (k VarKind) String() string {
	switch k {
	case StoredVar:
		return "stored"
	case CellVar:
		return "cell"
	case SurfaceDensityVar:
		return "surface-density"
	case CompositeVar:
		return "composite"
	case GeometryVar:
		return "geometry"
	case ExpressionVar:
		return "expression"
	default:
		return fmt.Sprintf("VarKind(%d)", int(k))
	}
}

// cellContext holds what a derived variable needs to compute the value
// of one cell.
type cellContext struct {
	fields map[string][]float64
	i      int
	dx     float64
	gamma  float64
}

func (c *cellContext) f(name string) float64 { return c.fields[name][c.i] }

func (c *cellContext) v2() float64 {
	vx, vy, vz := c.f("vx"), c.f("vy"), c.f("vz")
	return vx*vx + vy*vy + vz*vz
}

// derivedVar describes a variable that is not stored in the cell table.
type derivedVar struct {
	kind VarKind

	// needs lists the stored fields the variable depends on.
	needs []string

	// value returns the value of one cell. It is nil for composite and
	// geometry variables.
	value func(c *cellContext) float64

	// of is the variable whose moments make up a composite: its mean
	// and the mean of its square.
	of [2]string
}

var velocity = []string{"vx", "vy", "vz"}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// derivedVars holds every derived variable that may be requested by name.
var derivedVars = map[string]derivedVar{
	"mass": {kind: CellVar, needs: []string{"rho"},
		value: func(c *cellContext) float64 { return c.f("rho") * c.dx * c.dx * c.dx }},
	"volume": {kind: CellVar,
		value: func(c *cellContext) float64 { return c.dx * c.dx * c.dx }},
	"sd": {kind: SurfaceDensityVar, needs: []string{"rho"},
		value: func(c *cellContext) float64 { return c.f("rho") * c.dx * c.dx * c.dx }},
	"v": {kind: CellVar, needs: velocity,
		value: func(c *cellContext) float64 { return math.Sqrt(c.v2()) }},
	"v2": {kind: CellVar, needs: velocity,
		value: func(c *cellContext) float64 { return c.v2() }},
	"vx2": {kind: CellVar, needs: []string{"vx"},
		value: func(c *cellContext) float64 { return c.f("vx") * c.f("vx") }},
	"vy2": {kind: CellVar, needs: []string{"vy"},
		value: func(c *cellContext) float64 { return c.f("vy") * c.f("vy") }},
	"vz2": {kind: CellVar, needs: []string{"vz"},
		value: func(c *cellContext) float64 { return c.f("vz") * c.f("vz") }},
	"ekin": {kind: CellVar, needs: []string{"rho", "vx", "vy", "vz"},
		value: func(c *cellContext) float64 {
			return 0.5 * c.f("rho") * c.dx * c.dx * c.dx * c.v2()
		}},
	"T": {kind: CellVar, needs: []string{"p", "rho"},
		value: func(c *cellContext) float64 { return safeDiv(c.f("p"), c.f("rho")) }},
	"cs": {kind: CellVar, needs: []string{"p", "rho"},
		value: func(c *cellContext) float64 {
			return math.Sqrt(math.Max(0, safeDiv(c.gamma*c.f("p"), c.f("rho"))))
		}},
	"sigma":      {kind: CompositeVar, of: [2]string{"v", "v2"}},
	"sigmax":     {kind: CompositeVar, of: [2]string{"vx", "vx2"}},
	"sigmay":     {kind: CompositeVar, of: [2]string{"vy", "vy2"}},
	"sigmaz":     {kind: CompositeVar, of: [2]string{"vz", "vz2"}},
	"r_cylinder": {kind: GeometryVar},
	"phi":        {kind: GeometryVar},
}

// DerivedVariables returns the names of the variables that can be
// requested without being stored in the cell table.
func DerivedVariables() []string {
	names := make([]string, 0, len(derivedVars))
	for n := range derivedVars {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// WorkVar is a variable that is binned and accumulated.
type WorkVar struct {
	// Name is the key of the variable in the accumulated grids.
	Name string

	// Sum means the plain value is accumulated rather than the
	// value times the cell weight.
	Sum bool

	// Internal means the variable only supports another variable
	// and is not reported.
	Internal bool

	// Values holds the value of every cell.
	Values []float64
}

// OutputVar is a requested variable.
type OutputVar struct {
	Name string
	Kind VarKind

	// Source is the work variable the map is computed from. Composite
	// variables use Mean and Square instead.
	Source       string
	Mean, Square string

	// Unit is the requested unit and Scale the factor applied to the
	// map to convert it.
	Unit  string
	Scale float64
}

// Extraction holds the per-cell weights and values for a projection.
type Extraction struct {
	Weighting Weighting
	Mode      Aggregation

	// Vars are the requested variables in request order.
	Vars []OutputVar

	// Working are the variables that are accumulated.
	Working []*WorkVar

	// Weights holds the weight of every cell.
	Weights []float64
}

// Work returns the work variable with the given name, or nil.
func (e *Extraction) Work(name string) *WorkVar {
	for _, w := range e.Working {
		if w.Name == name {
			return w
		}
	}
	return nil
}

// momentKey returns the name of the internal work variable holding the
// weighted mean of variable v.
func momentKey(v string) string { return "E[" + v + "]" }

// expressionFuncs are the functions available to user expressions.
var expressionFuncs = map[string]govaluate.ExpressionFunction{
	"sqrt": unaryFunc("sqrt", math.Sqrt),
	"exp":  unaryFunc("exp", math.Exp),
	"log":  unaryFunc("log", math.Log),
	"abs":  unaryFunc("abs", math.Abs),
}

func unaryFunc(name string, f func(float64) float64) govaluate.ExpressionFunction {
	return func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 1 {
			return nil, fmt.Errorf("amrproj: got %d arguments for function '%s', but needs 1", len(arg), name)
		}
		x, ok := arg[0].(float64)
		if !ok {
			return nil, fmt.Errorf("amrproj: argument to '%s' is %T, not a number", name, arg[0])
		}
		return f(x), nil
	}
}

// extractor computes work variables for one request.
type extractor struct {
	cells  CellTable
	info   *Info
	req    *Request
	ex     *Extraction
	fields map[string][]float64
	dx     []float64
}

// Extract resolves the requested variables and computes the weight and
// the value of every work variable for every cell. Unknown variables and
// missing fields are configuration errors.
func Extract(cells CellTable, info *Info, req *Request) (*Extraction, error) {
	if err := info.validate(); err != nil {
		return nil, err
	}
	if len(req.Vars) == 0 {
		return nil, fmt.Errorf("amrproj: %w: no variables requested", ErrValidation)
	}
	e := &extractor{
		cells:  cells,
		info:   info,
		req:    req,
		ex:     &Extraction{Weighting: req.Weighting, Mode: req.Mode},
		fields: make(map[string][]float64),
		dx:     make([]float64, cells.Len()),
	}
	for i := range e.dx {
		l := cells.Level(i)
		if l < 0 || l > MaxLevel {
			e.dx[i] = math.NaN()
			continue
		}
		e.dx[i] = info.CellSize(l)
	}
	if err := e.weights(); err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, name := range req.Vars {
		if seen[name] {
			return nil, fmt.Errorf("amrproj: %w: variable %s requested more than once", ErrValidation, name)
		}
		seen[name] = true
		ov, err := e.resolve(name)
		if err != nil {
			return nil, err
		}
		ov.Unit = req.unit(name)
		if ov.Scale, err = info.Scale(ov.Unit); err != nil {
			return nil, err
		}
		e.ex.Vars = append(e.ex.Vars, ov)
	}
	return e.ex, nil
}

// field returns the named stored field, checking its length.
func (e *extractor) field(name string) ([]float64, error) {
	if f, ok := e.fields[name]; ok {
		return f, nil
	}
	f := e.cells.Field(name)
	if f == nil {
		return nil, fmt.Errorf("amrproj: %w: field %s is not available", ErrConfig, name)
	}
	if len(f) != e.cells.Len() {
		return nil, fmt.Errorf("amrproj: %w: field %s has %d values but there are %d cells",
			ErrConfig, name, len(f), e.cells.Len())
	}
	e.fields[name] = f
	return f, nil
}

func (e *extractor) weights() error {
	n := e.cells.Len()
	w := make([]float64, n)
	switch e.req.Weighting {
	case MassWeighted:
		rho, err := e.field("rho")
		if err != nil {
			return fmt.Errorf("amrproj: mass weighting: %w", err)
		}
		for i := range w {
			w[i] = rho[i] * e.dx[i] * e.dx[i] * e.dx[i]
		}
	case VolumeWeighted:
		for i := range w {
			w[i] = e.dx[i] * e.dx[i] * e.dx[i]
		}
	case Unweighted:
		for i := range w {
			w[i] = 1
		}
	default:
		return fmt.Errorf("amrproj: %w: invalid weighting %v", ErrValidation, e.req.Weighting)
	}
	e.ex.Weights = w
	return nil
}

// addWork adds a work variable unless one with the same name exists.
// A requested variable that was previously added as internal becomes
// reported.
func (e *extractor) addWork(name string, sum, internal bool, value func() ([]float64, error)) error {
	if w := e.ex.Work(name); w != nil {
		w.Internal = w.Internal && internal
		return nil
	}
	vals, err := value()
	if err != nil {
		return err
	}
	e.ex.Working = append(e.ex.Working, &WorkVar{Name: name, Sum: sum, Internal: internal, Values: vals})
	return nil
}

func (e *extractor) resolve(name string) (OutputVar, error) {
	sum := e.req.Mode == Sum
	if expr, ok := e.req.Expressions[name]; ok {
		err := e.addWork(name, sum, false, func() ([]float64, error) { return e.expression(name, expr) })
		return OutputVar{Name: name, Kind: ExpressionVar, Source: name}, err
	}
	if e.cells.Field(name) != nil {
		err := e.addWork(name, sum, false, func() ([]float64, error) { return e.field(name) })
		return OutputVar{Name: name, Kind: StoredVar, Source: name}, err
	}
	dv, ok := derivedVars[name]
	if !ok {
		return OutputVar{}, fmt.Errorf("amrproj: %w: unknown variable %s", ErrConfig, name)
	}
	ov := OutputVar{Name: name, Kind: dv.kind}
	switch dv.kind {
	case CellVar:
		ov.Source = name
		return ov, e.addWork(name, sum, false, func() ([]float64, error) { return e.derived(name) })
	case SurfaceDensityVar:
		ov.Source = name
		return ov, e.addWork(name, true, false, func() ([]float64, error) { return e.derived(name) })
	case CompositeVar:
		// Moments are always weighted averages, whatever the mode.
		ov.Mean, ov.Square = momentKey(dv.of[0]), momentKey(dv.of[1])
		for _, m := range dv.of {
			m := m
			err := e.addWork(momentKey(m), false, true, func() ([]float64, error) { return e.cellValues(m) })
			if err != nil {
				return ov, fmt.Errorf("amrproj: variable %s: %w", name, err)
			}
		}
		return ov, nil
	case GeometryVar:
		return ov, nil
	}
	return ov, fmt.Errorf("amrproj: %w: variable %s has kind %v", ErrConfig, name, dv.kind)
}

// cellValues returns the per-cell values of a stored field or a cell
// variable.
func (e *extractor) cellValues(name string) ([]float64, error) {
	if e.cells.Field(name) != nil {
		return e.field(name)
	}
	if dv, ok := derivedVars[name]; ok && dv.value != nil {
		return e.derived(name)
	}
	return nil, fmt.Errorf("amrproj: %w: unknown cell variable %s", ErrConfig, name)
}

func (e *extractor) derived(name string) ([]float64, error) {
	dv := derivedVars[name]
	ctx := &cellContext{fields: make(map[string][]float64), gamma: e.info.gamma()}
	for _, n := range dv.needs {
		f, err := e.field(n)
		if err != nil {
			return nil, fmt.Errorf("amrproj: variable %s: %w", name, err)
		}
		ctx.fields[n] = f
	}
	vals := make([]float64, e.cells.Len())
	for i := range vals {
		ctx.i, ctx.dx = i, e.dx[i]
		vals[i] = dv.value(ctx)
	}
	return vals, nil
}

func (e *extractor) expression(name, expr string) ([]float64, error) {
	expression, err := govaluate.NewEvaluableExpressionWithFunctions(expr, expressionFuncs)
	if err != nil {
		return nil, fmt.Errorf("amrproj: %w: expression %s: %v", ErrConfig, name, err)
	}
	params := make(map[string][]float64)
	for _, v := range expression.Vars() {
		if v == "dx" || v == "level" {
			continue
		}
		vals, err := e.cellValues(v)
		if err != nil {
			return nil, fmt.Errorf("amrproj: expression %s: %w", name, err)
		}
		params[v] = vals
	}
	vals := make([]float64, e.cells.Len())
	p := make(map[string]interface{}, len(params)+2)
	for i := range vals {
		for k, v := range params {
			p[k] = v[i]
		}
		p["dx"] = e.dx[i]
		p["level"] = float64(e.cells.Level(i))
		r, err := expression.Evaluate(p)
		if err != nil {
			return nil, fmt.Errorf("amrproj: %w: expression %s: %v", ErrConfig, name, err)
		}
		f, ok := r.(float64)
		if !ok {
			return nil, fmt.Errorf("amrproj: %w: expression %s evaluates to %T, not a number", ErrConfig, name, r)
		}
		vals[i] = f
	}
	return vals, nil
}
