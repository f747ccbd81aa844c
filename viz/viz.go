// Package viz renders loaded splits with gonum/plot and builds the 2-D
// evaluation grid used when plotting density estimates over two features.
package viz

import (
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/ucsdped/datasets"
)

var (
	normalColor  = color.RGBA{R: 120, G: 120, B: 120, A: 180}
	anomalyColor = color.RGBA{R: 200, G: 30, B: 30, A: 200}
	clipColor    = color.RGBA{R: 20, G: 80, B: 200, A: 120}
)

// Meshgrid spans the first two columns of points, widened by offset on every
// side, with n evenly spaced values per axis. xx[i][j] and yy[i][j] are the
// coordinates of grid point (row i, column j).
func Meshgrid(points [][]float32, n int, offset float64) (xx, yy [][]float64, err error) {
	if len(points) == 0 {
		return nil, nil, errors.New("meshgrid of no points")
	}
	if n < 2 {
		return nil, nil, errors.Errorf("meshgrid needs at least 2 points per axis, got %d", n)
	}
	xs := make(plotter.XYs, len(points))
	for i, p := range points {
		if len(p) < 2 {
			return nil, nil, errors.Errorf("point %d has %d dimensions, need 2", i, len(p))
		}
		xs[i] = plotter.XY{X: float64(p[0]), Y: float64(p[1])}
	}
	xmin, xmax, ymin, ymax := bounds(xs)
	gx := linspace(xmin-offset, xmax+offset, n)
	gy := linspace(ymin-offset, ymax+offset, n)

	xx = make([][]float64, n)
	yy = make([][]float64, n)
	for i := range xx {
		xx[i] = append([]float64(nil), gx...)
		yy[i] = make([]float64, n)
		for j := range yy[i] {
			yy[i][j] = gy[i]
		}
	}
	return xx, yy, nil
}

func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}

// PlotLabels draws the label of every row in order with a vertical line at
// each clip boundary, and saves it to path (format from the extension).
func PlotLabels(split *datasets.Split, path string) error {
	if split.Len() == 0 {
		return errors.Errorf("split %s is empty", split.Name)
	}
	p := plot.New()
	p.Title.Text = split.Name + " labels (1 = anomaly)"
	p.X.Label.Text = "row"
	p.Y.Label.Text = "label"
	p.Y.Min = -0.1
	p.Y.Max = 1.1

	xys := make(plotter.XYs, split.Len())
	for i, l := range split.Labels {
		xys[i] = plotter.XY{X: float64(i), Y: float64(l)}
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return err
	}
	line.Color = anomalyColor
	line.Width = vg.Points(0.8)
	p.Add(line)
	p.Legend.Add("label", line)

	row := 0
	for i, c := range split.Clips {
		row += c.Rows
		if i == len(split.Clips)-1 {
			break
		}
		boundary, err := plotter.NewLine(plotter.XYs{{X: float64(row), Y: -0.1}, {X: float64(row), Y: 1.1}})
		if err != nil {
			return err
		}
		boundary.Color = clipColor
		boundary.Width = vg.Points(0.4)
		p.Add(boundary)
	}
	return save(p, path, 10*vg.Inch, 3*vg.Inch)
}

// PlotClipSummary draws a bar per clip with its number of anomalous rows.
func PlotClipSummary(split *datasets.Split, path string) error {
	if len(split.Clips) == 0 {
		return errors.Errorf("split %s has no clips", split.Name)
	}
	p := plot.New()
	p.Title.Text = split.Name + " anomalous frames per clip"
	p.Y.Label.Text = "frames"

	values := make(plotter.Values, len(split.Clips))
	names := make([]string, len(split.Clips))
	for i, c := range split.Clips {
		values[i] = float64(c.Anomalous)
		names[i] = c.Name
	}
	bars, err := plotter.NewBarChart(values, vg.Points(8))
	if err != nil {
		return err
	}
	bars.Color = anomalyColor
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 2
	return save(p, path, 10*vg.Inch, 4*vg.Inch)
}

// PlotFeatures scatters the first two feature columns, normal rows in grey
// and anomalous rows in red.
func PlotFeatures(split *datasets.Split, path string) error {
	if split.Dim() < 2 {
		return errors.Errorf("split %s needs at least 2 features to scatter", split.Name)
	}
	var normal, anomaly plotter.XYs
	for i, row := range split.Features {
		xy := plotter.XY{X: float64(row[0]), Y: float64(row[1])}
		if split.Labels[i] == datasets.LabelAnomaly {
			anomaly = append(anomaly, xy)
		} else {
			normal = append(normal, xy)
		}
	}

	p := plot.New()
	p.Title.Text = split.Name + " features 0 and 1"
	p.X.Label.Text = "x0"
	p.Y.Label.Text = "x1"
	for _, set := range []struct {
		name string
		xys  plotter.XYs
		col  color.Color
	}{{"normal", normal, normalColor}, {"anomaly", anomaly, anomalyColor}} {
		if len(set.xys) == 0 {
			continue
		}
		sc, err := plotter.NewScatter(set.xys)
		if err != nil {
			return err
		}
		sc.GlyphStyle.Color = set.col
		sc.GlyphStyle.Radius = vg.Points(1.8)
		p.Add(sc)
		p.Legend.Add(set.name, sc)
	}
	p.Add(plotter.NewGrid())

	xmin, xmax, ymin, ymax := autoRange(append(append(plotter.XYs{}, normal...), anomaly...))
	p.X.Min, p.X.Max = xmin, xmax
	p.Y.Min, p.Y.Max = ymin, ymax
	return save(p, path, 6*vg.Inch, 6*vg.Inch)
}

func save(p *plot.Plot, path string, w, h vg.Length) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "mkdir %s", dir)
		}
	}
	if err := p.Save(w, h, path); err != nil {
		return errors.Wrapf(err, "save plot %s", path)
	}
	return nil
}

func bounds(xs plotter.XYs) (xmin, xmax, ymin, ymax float64) {
	xmin, ymin = math.Inf(1), math.Inf(1)
	xmax, ymax = math.Inf(-1), math.Inf(-1)
	for _, p := range xs {
		xmin = math.Min(xmin, p.X)
		xmax = math.Max(xmax, p.X)
		ymin = math.Min(ymin, p.Y)
		ymax = math.Max(ymax, p.Y)
	}
	return xmin, xmax, ymin, ymax
}

// autoRange computes padded min/max for X and Y for a set of points.
func autoRange(xs plotter.XYs) (xmin, xmax, ymin, ymax float64) {
	if len(xs) == 0 {
		return -1, 1, -1, 1
	}
	xmin, xmax, ymin, ymax = bounds(xs)
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
