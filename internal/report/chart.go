package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/picoalign/internal/simplex"
)

// RenderHTML writes an interactive line chart of the normalized signal per
// iteration, with the threshold as a second series.
func RenderHTML(w io.Writer, title string, history []simplex.HistoryEntry, reference, threshold float64) error {
	signal, elapsed := Series(history, reference)

	x := make([]string, len(history))
	data := make([]opts.LineData, len(history))
	thr := make([]opts.LineData, len(history))
	for i := range history {
		x[i] = strconv.FormatFloat(elapsed[i], 'f', 1, 64)
		data[i] = opts.LineData{Value: signal[i], Name: fmt.Sprintf("iteration %d", history[i].Iteration)}
		thr[i] = opts.LineData{Value: threshold}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Alignment " + title, Width: "1000px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Coupling efficiency", Subtitle: fmt.Sprintf("run=%s iterations=%d", title, len(history))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Normalized signal", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(x).
		AddSeries("signal", data).
		AddSeries("threshold", thr, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	return line.Render(w)
}
