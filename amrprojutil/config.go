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
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/amrproj"
	"github.com/spf13/cast"
)

// RequestConfig builds a projection request from the configuration in cfg.
func RequestConfig(cfg *viper.Viper) (*amrproj.Request, error) {
	req := new(amrproj.Request)
	var err error

	req.Vars = expandStringSlice(cast.ToStringSlice(cfg.Get("Variables")))
	if len(req.Vars) == 0 {
		return nil, fmt.Errorf("amrproj: %w: there are no variables specified for projection. Please fill in "+
			"the Variables configuration and try again", amrproj.ErrConfig)
	}
	if req.Units, err = GetStringMapString("Units", cfg); err != nil {
		return nil, err
	}
	if req.Expressions, err = GetStringMapString("Expressions", cfg); err != nil {
		return nil, err
	}
	req.Expressions = checkExpressions(req.Expressions)

	if req.Direction, err = amrproj.ParseDirection(cfg.GetString("Direction")); err != nil {
		return nil, err
	}
	if req.Weighting, err = amrproj.ParseWeighting(cfg.GetString("Weighting")); err != nil {
		return nil, err
	}
	if req.Mode, err = amrproj.ParseAggregation(cfg.GetString("Mode")); err != nil {
		return nil, err
	}
	if req.Algorithm, err = amrproj.ParseAlgorithmOverride(cfg.GetString("Algorithm")); err != nil {
		return nil, err
	}
	for _, r := range []struct {
		name string
		v    *[2]float64
	}{{"XRange", &req.XRange}, {"YRange", &req.YRange}, {"ZRange", &req.ZRange}} {
		if *r.v, err = getRange(r.name, cfg); err != nil {
			return nil, err
		}
	}
	if req.Center, err = amrproj.ParseCenter(splitList(cast.ToStringSlice(cfg.Get("Center")))...); err != nil {
		return nil, err
	}

	req.RangeUnit = os.ExpandEnv(cfg.GetString("RangeUnit"))
	req.Res = cfg.GetInt("Res")
	req.PixSize = cfg.GetFloat64("PixSize")
	req.Level = cfg.GetInt("Level")
	req.Threads = cfg.GetInt("Threads")
	req.MeasureFill = cfg.GetBool("MeasureFill")
	return req, nil
}

// PoolConfig returns the memory pool configuration in cfg. Unset values
// take their defaults.
func PoolConfig(cfg *viper.Viper) amrproj.PoolConfig {
	return amrproj.PoolConfig{
		Capacity:  cfg.GetInt("Pool.Capacity"),
		HighWater: cfg.GetInt("Pool.HighWater"),
		MaxShapes: cfg.GetInt("Pool.MaxShapes"),
	}
}

// getRange returns the range in the named variable. An unset variable
// gives an empty range, which selects the whole axis.
func getRange(varName string, cfg *viper.Viper) ([2]float64, error) {
	var r [2]float64
	s := splitList(cast.ToStringSlice(cfg.Get(varName)))
	switch len(s) {
	case 0:
		return r, nil
	case 2:
	default:
		return r, fmt.Errorf("amrproj: %w: %s must have two values but has %d", amrproj.ErrConfig, varName, len(s))
	}
	for i, v := range s {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return r, fmt.Errorf("amrproj: %w: invalid %s value %q", amrproj.ErrConfig, varName, v)
		}
		r[i] = f
	}
	return r, nil
}

// splitList splits comma-separated items, which is how lists arrive from
// environment variables, and removes brackets and empty items.
func splitList(s []string) []string {
	var o []string
	for _, v := range s {
		v = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(v), "["), "]")
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				o = append(o, p)
			}
		}
	}
	return o
}

// checkExpressions removes end lines and expands environment
// variables in the expressions.
func checkExpressions(vars map[string]string) map[string]string {
	o := make(map[string]string, len(vars))
	for k, v := range vars {
		v = strings.Replace(v, "\r\n", " ", -1)
		v = strings.Replace(v, "\n", " ", -1)
		o[os.ExpandEnv(k)] = os.ExpandEnv(v)
	}
	return o
}

// expandStringSlice expands the environment variables in a slice of strings.
func expandStringSlice(s []string) []string {
	s = splitList(s)
	for i := 0; i < len(s); i++ {
		s[i] = os.ExpandEnv(s[i])
	}
	return s
}

func expand(s string) string { return os.ExpandEnv(s) }

// checkOutputFile makes sure that the output file is specified and its
// directory exists, and expand any environment variables.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf(`amrproj: you need to specify an output file configuration variable (for example: OutputFile="output.csv")`)
	}
	f = os.ExpandEnv(f)
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("amrproj: the OutputFile directory doesn't exist: %v", err)
	}
	return f, nil
}

// checkLogFile fills in a default value for the log file path if one isn't
// specified.
func checkLogFile(logFile, outputFile string) string {
	if logFile == "" {
		logFile = strings.TrimSuffix(outputFile, filepath.Ext(outputFile)) + ".log"
	}
	return os.ExpandEnv(logFile)
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument or environment variable.
func GetStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
	i := cfg.Get(varName)
	switch v := i.(type) {
	case nil:
		return map[string]string{}, nil
	case map[string]string:
		return v, nil
	case map[string]interface{}:
		return cast.ToStringMapString(v), nil
	case string:
		o := make(map[string]string)
		if strings.TrimSpace(v) == "" {
			return o, nil
		}
		d := json.NewDecoder(bytes.NewBufferString(v))
		if err := d.Decode(&o); err != nil {
			return nil, fmt.Errorf("amrproj: %w: invalid %s value %q: %v", amrproj.ErrConfig, varName, v, err)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("amrproj: %w: invalid type for map variable %s: %#v", amrproj.ErrConfig, varName, i)
	}
}
