// Package report renders class statistics as charts.
package report

import (
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"mripatches/pkg/errors"
	"mripatches/pkg/stats"
)

// ClassChart draws one bar per class with its patch count.
func ClassChart(split string, s stats.Statistics) (*plot.Plot, error) {
	if len(s) == 0 {
		return nil, errors.NewDataError("plot classes", split, "no classes", errors.ErrEmptyData)
	}
	labels := s.Labels()
	counts := make(plotter.Values, len(labels))
	names := make([]string, len(labels))
	for i, l := range labels {
		counts[i] = float64(s[l].Count)
		names[i] = strconv.Itoa(l)
	}

	p := plot.New()
	p.Title.Text = "Class distribution (" + split + ")"
	p.X.Label.Text = "label"
	p.Y.Label.Text = "patches"

	bars, err := plotter.NewBarChart(counts, vg.Points(20))
	if err != nil {
		return nil, errors.Wrap(err, "build bar chart")
	}
	p.Add(bars)
	p.NominalX(names...)
	return p, nil
}

// SaveClassChart writes the chart of s to dir/classes_<split>.png and returns
// the path.
func SaveClassChart(dir, split string, s stats.Statistics) (string, error) {
	p, err := ClassChart(split, s)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.NewDataError("save chart", dir, "", err)
	}
	path := filepath.Join(dir, "classes_"+split+".png")
	if err := p.Save(4*vg.Inch, 4*vg.Inch, path); err != nil {
		return "", errors.NewDataError("save chart", path, "", err)
	}
	return path, nil
}
