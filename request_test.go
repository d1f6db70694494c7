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
	"testing"
)

func TestParseCenter(t *testing.T) {
	tests := []struct {
		in      []string
		want    [3]Coordinate
		wantErr bool
	}{
		{in: []string{"bc"}, want: [3]Coordinate{{BoxCenter: true}, {BoxCenter: true}, {BoxCenter: true}}},
		{in: []string{"0.1", "BoxCenter", "2"}, want: [3]Coordinate{{Value: 0.1}, {BoxCenter: true}, {Value: 2}}},
		{in: []string{"0.25", "0.5"}, want: [3]Coordinate{{Value: 0.25}, {Value: 0.5}, {}}},
		{in: nil, want: [3]Coordinate{}},
		{in: []string{"middle"}, wantErr: true},
		{in: []string{"1", "2", "3", "4"}, wantErr: true},
	}
	for _, test := range tests {
		have, err := ParseCenter(test.in...)
		if test.wantErr {
			if !errors.Is(err, ErrValidation) {
				t.Errorf("%v: have error %v, want %v", test.in, err, ErrValidation)
			}
			continue
		}
		if err != nil {
			t.Errorf("%v: %v", test.in, err)
			continue
		}
		if have != test.want {
			t.Errorf("%v: have %v, want %v", test.in, have, test.want)
		}
	}
}

func TestParseEnums(t *testing.T) {
	if d, err := ParseDirection("X"); err != nil || d != X {
		t.Errorf("direction: have %v (%v), want x", d, err)
	}
	if d, err := ParseDirection(""); err != nil || d != Z {
		t.Errorf("default direction: have %v (%v), want z", d, err)
	}
	if w, err := ParseWeighting("volume"); err != nil || w != VolumeWeighted {
		t.Errorf("weighting: have %v (%v), want volume", w, err)
	}
	if w, err := ParseWeighting("none"); err != nil || w != Unweighted {
		t.Errorf("weighting: have %v (%v), want none", w, err)
	}
	if a, err := ParseAggregation("sum"); err != nil || a != Sum {
		t.Errorf("aggregation: have %v (%v), want sum", a, err)
	}
	if o, err := ParseAlgorithmOverride("force-sparse"); err != nil || o != ForceSparse {
		t.Errorf("algorithm: have %v (%v), want force-sparse", o, err)
	}
	for name, err := range map[string]error{
		"direction":   func() error { _, err := ParseDirection("w"); return err }(),
		"weighting":   func() error { _, err := ParseWeighting("density"); return err }(),
		"aggregation": func() error { _, err := ParseAggregation("max"); return err }(),
		"algorithm":   func() error { _, err := ParseAlgorithmOverride("fast"); return err }(),
	} {
		if !errors.Is(err, ErrValidation) {
			t.Errorf("%s: have error %v, want %v", name, err, ErrValidation)
		}
	}
	for _, s := range []interface{ String() string }{Y, MassWeighted, Average, Auto, Sparse, Done} {
		if s.String() == "" {
			t.Errorf("%#v has no name", s)
		}
	}
}
