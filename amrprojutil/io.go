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

package amrprojutil

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gocarina/gocsv"
	"github.com/spatialmodel/amrproj"
	"github.com/spf13/cast"
)

// ReadInfo reads simulation metadata in TOML format, for example:
//
//	BoxLen = 1.0
//	LevelMin = 7
//	LevelMax = 12
//	[Scales]
//	kpc = 1.2e4
func ReadInfo(r io.Reader) (*amrproj.Info, error) {
	info := new(amrproj.Info)
	md, err := toml.DecodeReader(r, info)
	if err != nil {
		return nil, fmt.Errorf("amrproj: problem reading simulation info: %v", err)
	}
	if u := md.Undecoded(); len(u) > 0 {
		return nil, fmt.Errorf("amrproj: %w: unknown simulation info keys %v", amrproj.ErrConfig, u)
	}
	return info, nil
}

// ReadInfoFile reads simulation metadata from the named TOML file.
func ReadInfoFile(path string) (*amrproj.Info, error) {
	if path == "" {
		return nil, fmt.Errorf("amrproj: %w: you need to specify the InfoFile configuration variable", amrproj.ErrConfig)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("amrproj: problem opening simulation info: %v", err)
	}
	defer f.Close()
	return ReadInfo(f)
}

// Columns of a cell file that hold the cell position rather than a field.
var positionColumns = []string{"level", "cx", "cy", "cz"}

// ReadCells reads a cell table in CSV format. The first row is the header.
// The level, cx, cy, and cz columns hold the refinement level and the
// integer cell coordinates, and every other column is read as a field.
func ReadCells(r io.Reader) (*amrproj.Cells, error) {
	rows, err := gocsv.CSVToMaps(r)
	if err != nil {
		return nil, fmt.Errorf("amrproj: problem reading cells: %v", err)
	}
	cells := amrproj.NewCells()
	for i, row := range rows {
		var pos [4]int
		vals := make(map[string]float64, len(row))
		for k, v := range row {
			k = strings.TrimSpace(k)
			v = strings.TrimSpace(v)
			if j := positionIndex(k); j >= 0 {
				if pos[j], err = strconv.Atoi(v); err != nil {
					return nil, fmt.Errorf("amrproj: %w: cell %d: invalid %s %q", amrproj.ErrConfig, i, k, v)
				}
				continue
			}
			if vals[k], err = cast.ToFloat64E(v); err != nil {
				return nil, fmt.Errorf("amrproj: %w: cell %d: invalid %s value %q", amrproj.ErrConfig, i, k, v)
			}
		}
		if i == 0 {
			if err := checkColumns(row); err != nil {
				return nil, err
			}
		}
		cells.Add(pos[0], pos[1], pos[2], pos[3], vals)
	}
	return cells, nil
}

func positionIndex(column string) int {
	for i, c := range positionColumns {
		if c == column {
			return i
		}
	}
	return -1
}

func checkColumns(row map[string]string) error {
	have := make(map[string]bool, len(row))
	for k := range row {
		have[strings.TrimSpace(k)] = true
	}
	for _, c := range positionColumns {
		if !have[c] {
			return fmt.Errorf("amrproj: %w: cell file is missing the %s column", amrproj.ErrConfig, c)
		}
	}
	return nil
}

// ReadCellFile reads a cell table from the named CSV file.
func ReadCellFile(path string) (*amrproj.Cells, error) {
	if path == "" {
		return nil, fmt.Errorf("amrproj: %w: you need to specify the CellFile configuration variable", amrproj.ErrConfig)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("amrproj: problem opening cells: %v", err)
	}
	defer f.Close()
	return ReadCells(f)
}

// pixel is one row of the output file.
type pixel struct {
	H        int     `csv:"h"`
	V        int     `csv:"v"`
	X        float64 `csv:"x"`
	Y        float64 `csv:"y"`
	Variable string  `csv:"variable"`
	Value    float64 `csv:"value"`
	Weight   float64 `csv:"weight"`
}

// WriteMaps writes the maps in res to w in CSV format with one row per
// pixel and variable. Pixel centers are in the range unit of the request.
func WriteMaps(w io.Writer, res *amrproj.Result) error {
	nh, nv := res.Grid.Shape()
	vars := res.Vars
	if len(vars) == 0 {
		for v := range res.Maps {
			vars = append(vars, v)
		}
		sort.Strings(vars)
	}
	var rows []pixel
	for _, name := range vars {
		m := res.Map(name)
		if m == nil {
			continue
		}
		for i := 0; i < nh; i++ {
			for j := 0; j < nv; j++ {
				c := res.Grid.PixelCenter(i, j)
				rows = append(rows, pixel{
					H: i, V: j, X: c.X, Y: c.Y,
					Variable: name,
					Value:    m.Get(i, j),
					Weight:   res.Weight.Get(i, j),
				})
			}
		}
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("amrproj: problem writing maps: %v", err)
	}
	return nil
}
