// Package report exports the search history of an alignment run as flat
// series, CSV, a PNG plot and an interactive HTML chart.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/picoalign/internal/simplex"
)

// Series returns the normalized signal (-cost/reference) and the elapsed
// seconds of every history entry. Both slices have the same length.
func Series(history []simplex.HistoryEntry, reference float64) (signal, elapsed []float64) {
	if reference == 0 {
		reference = 1
	}
	signal = make([]float64, len(history))
	elapsed = make([]float64, len(history))
	for i, h := range history {
		signal[i] = -h.Cost / reference
		elapsed[i] = h.Elapsed.Seconds()
	}
	return signal, elapsed
}

// WriteCSV writes one row per history entry: iteration, elapsed seconds,
// normalized signal, cost and one column per axis.
func WriteCSV(w io.Writer, history []simplex.HistoryEntry, reference float64) error {
	dim := 0
	if len(history) > 0 {
		dim = len(history[0].Position)
	}

	cw := csv.NewWriter(w)
	header := []string{"iteration", "elapsed_s", "signal", "cost"}
	for i := 1; i <= dim; i++ {
		header = append(header, fmt.Sprintf("axis_%d", i))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	signal, elapsed := Series(history, reference)
	for i, h := range history {
		row := []string{
			strconv.Itoa(h.Iteration),
			strconv.FormatFloat(elapsed[i], 'f', 3, 64),
			strconv.FormatFloat(signal[i], 'g', 6, 64),
			strconv.FormatFloat(h.Cost, 'g', 6, 64),
		}
		for _, p := range h.Position {
			row = append(row, strconv.FormatFloat(p, 'f', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Files are the paths written by Export.
type Files struct {
	CSV  string
	PNG  string
	HTML string
}

// Export writes <name>.csv, <name>.png and <name>.html into dir.
func Export(dir, name string, history []simplex.HistoryEntry, reference, threshold float64) (Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("failed to create output directory: %w", err)
	}
	files := Files{
		CSV:  filepath.Join(dir, name+".csv"),
		PNG:  filepath.Join(dir, name+".png"),
		HTML: filepath.Join(dir, name+".html"),
	}

	if err := writeFile(files.CSV, func(w io.Writer) error {
		return WriteCSV(w, history, reference)
	}); err != nil {
		return files, fmt.Errorf("failed to write CSV: %w", err)
	}
	if err := SavePNG(files.PNG, history, reference, threshold); err != nil {
		return files, fmt.Errorf("failed to write plot: %w", err)
	}
	if err := writeFile(files.HTML, func(w io.Writer) error {
		return RenderHTML(w, name, history, reference, threshold)
	}); err != nil {
		return files, fmt.Errorf("failed to write chart: %w", err)
	}
	return files, nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
