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
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/amrproj"
)

// newLogger returns a logger writing to stdout and, if logFile is not
// empty, to logFile. The returned function closes the log file.
func newLogger(stdout io.Writer, logFile, level, format string) (*logrus.Logger, func(), error) {
	log := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("amrproj: %w: %v", amrproj.ErrConfig, err)
	}
	log.Level = lvl
	switch format {
	case "json":
		log.Formatter = &logrus.JSONFormatter{}
	case "text", "":
		log.Formatter = &logrus.TextFormatter{DisableColors: true}
	default:
		return nil, nil, fmt.Errorf("amrproj: %w: invalid log format %q", amrproj.ErrConfig, format)
	}
	log.Out = stdout
	if logFile == "" {
		return log, func() {}, nil
	}
	f, err := os.Create(logFile)
	if err != nil {
		return nil, nil, fmt.Errorf("amrproj: problem creating log file: %v", err)
	}
	log.Out = io.MultiWriter(stdout, f)
	return log, func() { f.Close() }, nil
}

// Project projects the cells in cellFile as described by req and writes
// the resulting maps to outputFile.
func Project(log logrus.FieldLogger, cellFile, infoFile, outputFile string, req *amrproj.Request, pc amrproj.PoolConfig) error {
	startTime := time.Now()

	info, err := ReadInfoFile(infoFile)
	if err != nil {
		return err
	}
	cells, err := ReadCellFile(cellFile)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"cells":     cells.Len(),
		"cell_file": cellFile,
	}).Info("read cells")

	p := &amrproj.Projector{Pool: amrproj.NewPool(pc), Log: log}
	res, err := projectTo(p, cells, info, req, outputFile)
	if err != nil {
		return err
	}
	nh, nv := res.Grid.Shape()
	log.WithFields(logrus.Fields{
		"output_file": outputFile,
		"shape":       fmt.Sprintf("%dx%d", nh, nv),
		"variables":   res.Vars,
		"degraded":    res.Diagnostics.Degraded,
		"elapsed":     time.Since(startTime).String(),
	}).Info("wrote maps")
	return nil
}

// projectTo projects cells with p, writes the maps to outputFile, and
// returns the grids to the pool of p, trimming it to its capacity. The
// returned result holds no maps.
func projectTo(p *amrproj.Projector, cells amrproj.CellTable, info *amrproj.Info, req *amrproj.Request, outputFile string) (*amrproj.Result, error) {
	res, err := p.Project(cells, info, req)
	if err != nil {
		return nil, err
	}
	defer func() {
		res.Release()
		p.Pool.Cleanup()
	}()

	f, err := os.Create(outputFile)
	if err != nil {
		return nil, fmt.Errorf("amrproj: problem creating output file: %v", err)
	}
	if err = WriteMaps(f, res); err != nil {
		f.Close()
		return nil, err
	}
	if err = f.Close(); err != nil {
		return nil, fmt.Errorf("amrproj: problem closing output file: %v", err)
	}
	return res, nil
}

// Schedule returns the assignment of the refinement levels in cells to
// at most threads worker threads.
func Schedule(cells amrproj.CellTable, threads int) *amrproj.Plan {
	counts := make(map[int]int)
	for i := 0; i < cells.Len(); i++ {
		counts[cells.Level(i)]++
	}
	return amrproj.Schedule(counts, threads, runtime.GOMAXPROCS(0))
}
