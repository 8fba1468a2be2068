// Package report writes evaluation results as CSV tables and PNG plots.
package report

import (
	"encoding/csv"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/Noofbiz/navBench/evaluation"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// DefaultPlotMetrics are the metrics PlotHistograms draws when none are
// named.
var DefaultPlotMetrics = []string{"nav_error", "trajectory_lengths", "spl", "nDTW", "CLS"}

// WriteCSV writes one row per episode: instr_id, scan, then every metric in
// evaluation.MetricNames order.
func WriteCSV(path string, m evaluation.Metrics) error {
	return writeCSV(path, func(w *csv.Writer) error {
		header := append([]string{"instr_id", "scan"}, evaluation.MetricNames...)
		if err := w.Write(header); err != nil {
			return err
		}
		for i, s := range m.Scores {
			vals := s.Metrics()
			row := make([]string, 0, len(header))
			row = append(row, m.InstrIDs[i], m.Scans[i])
			for _, name := range evaluation.MetricNames {
				row = append(row, formatFloat(vals[name]))
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteSummaryCSV writes the summary as metric,value rows sorted by name.
func WriteSummaryCSV(path string, s evaluation.Summary) error {
	vals := s.Map()
	names := make([]string, 0, len(vals))
	for name := range vals {
		names = append(names, name)
	}
	sort.Strings(names)

	return writeCSV(path, func(w *csv.Writer) error {
		if err := w.Write([]string{"metric", "value"}); err != nil {
			return err
		}
		for _, name := range names {
			if err := w.Write([]string{name, formatFloat(vals[name])}); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeCSV(path string, fill func(*csv.Writer) error) error {
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("mkdir for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := fill(w); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// PlotHistograms writes "<metric>_hist.png" into outDir for each named
// metric (DefaultPlotMetrics when none are given) and returns the written
// paths. Metrics with no values are skipped.
func PlotHistograms(outDir string, m evaluation.Metrics, bins int, metrics ...string) ([]string, error) {
	if len(metrics) == 0 {
		metrics = DefaultPlotMetrics
	}
	if bins <= 0 {
		bins = 20
	}
	if err := ensureDir(outDir); err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(evaluation.MetricNames))
	for _, name := range evaluation.MetricNames {
		known[name] = true
	}

	var written []string
	for _, name := range metrics {
		if !known[name] {
			return written, fmt.Errorf("unknown metric %q", name)
		}
		vals := plotter.Values(m.Column(name))
		if len(vals) == 0 {
			continue
		}

		p := plot.New()
		p.Title.Text = fmt.Sprintf("%s over %d episodes", name, len(vals))
		p.X.Label.Text = name
		p.Y.Label.Text = "episodes"

		h, err := plotter.NewHist(vals, bins)
		if err != nil {
			return written, fmt.Errorf("histogram %s: %w", name, err)
		}
		h.FillColor = color.RGBA{R: 20, G: 80, B: 200, A: 200}
		p.Add(h)
		p.Add(plotter.NewGrid())

		outPath := filepath.Join(outDir, name+"_hist.png")
		if err := p.Save(6*vg.Inch, 4*vg.Inch, outPath); err != nil {
			return written, err
		}
		written = append(written, outPath)
	}
	return written, nil
}

// PlotNavError writes "nav_error.png": final navigation error against
// trajectory length, successes in blue and failures in red, with the
// success margin drawn as a horizontal line.
func PlotNavError(outDir string, m evaluation.Metrics, margin float64) (string, error) {
	var hit, miss plotter.XYs
	for _, s := range m.Scores {
		pt := plotter.XY{X: s.TrajectoryLength, Y: s.NavError}
		if s.Success > 0 {
			hit = append(hit, pt)
		} else {
			miss = append(miss, pt)
		}
	}

	p := plot.New()
	p.Title.Text = "Navigation error: success (blue), failure (red)"
	p.X.Label.Text = "trajectory length"
	p.Y.Label.Text = "nav error"

	for _, set := range []struct {
		xys   plotter.XYs
		label string
		col   color.RGBA
	}{
		{hit, "success", color.RGBA{R: 20, G: 80, B: 200, A: 220}},
		{miss, "failure", color.RGBA{R: 200, G: 30, B: 30, A: 180}},
	} {
		if len(set.xys) == 0 {
			continue
		}
		sc, err := plotter.NewScatter(set.xys)
		if err != nil {
			return "", err
		}
		sc.GlyphStyle.Color = set.col
		sc.GlyphStyle.Radius = vg.Points(2.4)
		p.Add(sc)
		p.Legend.Add(set.label, sc)
	}

	all := append(append(plotter.XYs{}, hit...), miss...)
	xmin, xmax, ymin, ymax := autoRange(all)
	ymin = math.Min(ymin, 0)
	ymax = math.Max(ymax, margin*1.1)

	line, err := plotter.NewLine(plotter.XYs{{X: xmin, Y: margin}, {X: xmax, Y: margin}})
	if err != nil {
		return "", err
	}
	line.Color = color.RGBA{R: 40, G: 120, B: 40, A: 200}
	line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(line)
	p.Legend.Add("error margin", line)
	p.Add(plotter.NewGrid())

	p.X.Min, p.X.Max = xmin, xmax
	p.Y.Min, p.Y.Max = ymin, ymax

	if err := ensureDir(outDir); err != nil {
		return "", err
	}
	outPath := filepath.Join(outDir, "nav_error.png")
	if err := p.Save(8*vg.Inch, 6*vg.Inch, outPath); err != nil {
		return "", err
	}
	return outPath, nil
}

// autoRange computes padded min/max for X and Y for a set of points.
func autoRange(xs plotter.XYs) (xmin, xmax, ymin, ymax float64) {
	if len(xs) == 0 {
		return -1, 1, -1, 1
	}
	xmin, xmax = math.Inf(1), math.Inf(-1)
	ymin, ymax = math.Inf(1), math.Inf(-1)
	for _, p := range xs {
		xmin = math.Min(xmin, p.X)
		xmax = math.Max(xmax, p.X)
		ymin = math.Min(ymin, p.Y)
		ymax = math.Max(ymax, p.Y)
	}
	padx := (xmax - xmin) * 0.06
	pady := (ymax - ymin) * 0.06
	if padx == 0 {
		padx = 1.0
	}
	if pady == 0 {
		pady = 1.0
	}
	return xmin - padx, xmax + padx, ymin - pady, ymax + pady
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0755)
}
