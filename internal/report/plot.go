package report

import (
	"errors"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/picoalign/internal/simplex"
)

// ErrEmptyHistory is returned when there is nothing to plot.
var ErrEmptyHistory = errors.New("empty history")

// SavePNG plots the normalized signal against elapsed time with a
// horizontal line at threshold.
func SavePNG(path string, history []simplex.HistoryEntry, reference, threshold float64) error {
	if len(history) == 0 {
		return ErrEmptyHistory
	}
	signal, elapsed := Series(history, reference)

	p := plot.New()
	p.Title.Text = "Coupling efficiency"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Normalized signal"

	pts := make(plotter.XYs, len(signal))
	for i := range signal {
		pts[i] = plotter.XY{X: elapsed[i], Y: signal[i]}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add("signal", line)

	if threshold > 0 {
		end := elapsed[len(elapsed)-1]
		if end == elapsed[0] {
			end = elapsed[0] + 1
		}
		thr, err := plotter.NewLine(plotter.XYs{{X: elapsed[0], Y: threshold}, {X: end, Y: threshold}})
		if err != nil {
			return err
		}
		thr.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
		thr.Width = vg.Points(1)
		thr.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
		p.Add(thr)
		p.Legend.Add("threshold", thr)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return p.Save(10*vg.Inch, 5*vg.Inch, path)
}
