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

// Package amrprojutil contains the command-line interface to AMRProj
// and the readers and writers of its file formats.
package amrprojutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/amrproj"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to AMRProj.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel specifies the minimum severity of log messages:
              one of debug, info, warning, or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogFormat",
			usage: `
              LogFormat specifies whether log messages are written as
              text or json.`,
			defaultVal: "text",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile specifies the path to the desired logfile location. It can include
              environment variables. If LogFile is left blank, the logfile will be saved in
              the same location as the OutputFile.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{projectCmd.Flags()},
		},
		{
			name: "InfoFile",
			usage: `
              InfoFile is the path to a TOML file holding the simulation
              metadata: BoxLen, LevelMin, LevelMax, Gamma, and the Scales
              table of unit conversion factors. It can include environment
              variables.`,
			defaultVal: "",
			shorthand:  "i",
			flagsets:   []*pflag.FlagSet{projectCmd.Flags()},
		},
		{
			name: "CellFile",
			usage: `
              CellFile is the path to a CSV file holding one leaf cell per
              row. The level, cx, cy, and cz columns are required and every
              other column is read as a field. It can include environment
              variables.`,
			defaultVal: "",
			shorthand:  "c",
			flagsets:   []*pflag.FlagSet{projectCmd.Flags(), scheduleCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile specifies the path to the desired output CSV file
              location. It can include environment variables.`,
			defaultVal: "amrproj_output.csv",
			shorthand:  "o",
			flagsets:   []*pflag.FlagSet{projectCmd.Flags()},
		},
		{
			name: "Variables",
			usage: `
              Variables lists the variables to project. They can be fields
              of the cell file, derived variables, or names defined in
              Expressions.`,
			defaultVal: []string{"rho"},
			flagsets:   []*pflag.FlagSet{projectCmd.Flags()},
		},
		{
			name: "Units",
			usage: `
              Units maps variable names to the unit their maps are reported
              in. The units must be keys of the Scales table of the
              InfoFile.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{projectCmd.Flags()},
		},
		{
			name: "Expressions",
			usage: `
              Expressions defines additional variables as expressions of
              cell fields, derived variables, dx, and level. For example,
              {"pressure_over_rho": "P / rho"}.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{projectCmd.Flags()},
		},
		{
			name: "Direction",
			usage: `
              Direction is the projection axis: x, y, or z.`,
			defaultVal: "z",
			shorthand:  "d",
			flagsets:   []*pflag.FlagSet{projectCmd.Flags()},
		},
		{
			name: "Weighting",
			usage: `
              Weighting is the cell weight used to average values along
              the line of sight: mass, volume, or none.`,
			defaultVal: "mass",
			flagsets:   []*pflag.FlagSet{projectCmd.Flags()},
		},
		{
			name: "Mode",
			usage: `
              Mode is average or sum. Surface density is always summed.`,
			defaultVal: "average",
			flagsets:   []*pflag.FlagSet{projectCmd.Flags()},
		},
		{
			name: "Algorithm",
			usage: `
              Algorithm selects the binning algorithm: auto, force-dense,
              or force-sparse.`,
			defaultVal: "auto",
			flagsets:   []*pflag.FlagSet{projectCmd.Flags()},
		},
		{
			name: "XRange",
			usage: `
              XRange is the minimum and maximum of the x axis relative to
              Center, in RangeUnit. An empty range selects the whole box.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{projectCmd.Flags()},
		},
		{
			name: "YRange",
			usage: `
              YRange is the minimum and maximum of the y axis relative to
              Center, in RangeUnit.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{projectCmd.Flags()},
		},
		{
			name: "ZRange",
			usage: `
              ZRange is the minimum and maximum of the z axis relative to
              Center, in RangeUnit.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{projectCmd.Flags()},
		},
		{
			name: "Center",
			usage: `
              Center is the origin of the ranges, given as one or three
              coordinates in RangeUnit. The value bc selects the center
              of the box.`,
			defaultVal: []string{"bc"},
			flagsets:   []*pflag.FlagSet{projectCmd.Flags()},
		},
		{
			name: "RangeUnit",
			usage: `
              RangeUnit is the unit of the ranges, the center, and the
              pixel size. The default, standard, is the fraction of the box
              length.`,
			defaultVal: amrproj.StandardUnit,
			flagsets:   []*pflag.FlagSet{projectCmd.Flags()},
		},
		{
			name: "Res",
			usage: `
              Res is the number of pixels across the box. Zero uses Level.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{projectCmd.Flags()},
		},
		{
			name: "PixSize",
			usage: `
              PixSize is the pixel edge length in RangeUnit. It takes
              precedence over Res and Level.`,
			defaultVal: 0.,
			flagsets:   []*pflag.FlagSet{projectCmd.Flags()},
		},
		{
			name: "Level",
			usage: `
              Level sets the resolution to 2^Level pixels across the box.
              Zero uses the finest level of the simulation.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{projectCmd.Flags()},
		},
		{
			name: "Threads",
			usage: `
              Threads is the number of worker threads. Zero or less uses
              all processors.`,
			defaultVal: 0,
			shorthand:  "t",
			flagsets:   []*pflag.FlagSet{projectCmd.Flags(), scheduleCmd.Flags()},
		},
		{
			name: "MeasureFill",
			usage: `
              MeasureFill counts the occupied pixels of every level
              instead of estimating them when selecting algorithms.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{projectCmd.Flags()},
		},
		{
			name: "Pool.Capacity",
			usage: `
              Pool.Capacity is the number of idle grids of each shape kept
              by the memory pool after a projection.`,
			defaultVal: amrproj.DefaultPoolConfig().Capacity,
			flagsets:   []*pflag.FlagSet{projectCmd.Flags()},
		},
		{
			name: "Pool.HighWater",
			usage: `
              Pool.HighWater is the number of idle grids of each shape
              above which returned grids are discarded.`,
			defaultVal: amrproj.DefaultPoolConfig().HighWater,
			flagsets:   []*pflag.FlagSet{projectCmd.Flags()},
		},
		{
			name: "Pool.MaxShapes",
			usage: `
              Pool.MaxShapes is the number of distinct grid shapes the
              memory pool keeps track of.`,
			defaultVal: amrproj.DefaultPoolConfig().MaxShapes,
			flagsets:   []*pflag.FlagSet{projectCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("AMRPROJ")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case []string:
				set.StringSliceP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(v)
				set.StringP(option.name, option.shorthand, b.String(), option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(projectCmd)
	Root.AddCommand(scheduleCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("amrproj: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "amrproj",
	Short: "Project adaptive mesh refinement data onto images.",
	Long: `AMRProj projects the leaf cells of an adaptive mesh refinement simulation
onto a regular image grid, averaging or summing cell values along the line of
sight. Use the subcommands specified below to access the functionality.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'AMRPROJ_var' where 'var' is the
name of the variable to be set.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of AMRProj.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("AMRProj v%s\n", amrproj.Version)
	},
	DisableAutoGenTag: true,
}

// projectCmd projects a cell file and writes the resulting maps.
var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Project cells onto an image grid.",
	Long: `project reads the cells in CellFile and the simulation metadata in InfoFile,
projects the requested Variables along Direction, and writes one row per pixel
and variable to OutputFile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := RequestConfig(Cfg)
		if err != nil {
			return err
		}
		outputFile, err := checkOutputFile(Cfg.GetString("OutputFile"))
		if err != nil {
			return err
		}
		log, closeLog, err := newLogger(cmd.OutOrStdout(),
			checkLogFile(Cfg.GetString("LogFile"), outputFile),
			Cfg.GetString("LogLevel"), Cfg.GetString("LogFormat"))
		if err != nil {
			return err
		}
		defer closeLog()
		return Project(log, expand(Cfg.GetString("CellFile")), expand(Cfg.GetString("InfoFile")),
			outputFile, req, PoolConfig(Cfg))
	},
	DisableAutoGenTag: true,
}

// scheduleCmd prints the thread assignment of a cell file.
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Print the level-to-thread assignment.",
	Long: `schedule reads the cells in CellFile and prints how their refinement levels
would be distributed among Threads worker threads, without projecting them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cells, err := ReadCellFile(expand(Cfg.GetString("CellFile")))
		if err != nil {
			return err
		}
		cmd.Printf("%v", Schedule(cells, Cfg.GetInt("Threads")))
		return nil
	},
	DisableAutoGenTag: true,
}
