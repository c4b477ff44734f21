// Package features provides the feature extractors applied to raw patches in
// training mode, and the intensity normalization applied to raw volumes.
package features

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"mripatches/pkg/errors"
	"mripatches/pkg/patch"
	"mripatches/pkg/volume"
)

// Passthrough returns the patch pixels in row-major order.
func Passthrough(p *mat.Dense) ([]float64, error) {
	r, c := p.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, p.RawRowView(i)...)
	}
	return out, nil
}

var registry = map[string]patch.FeatureFunc{
	"raw": Passthrough,
}

// Lookup returns the feature extractor registered under name.
func Lookup(name string) (patch.FeatureFunc, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, errors.NewConfigError("training.feature", "unknown feature extractor '"+name+"'")
	}
	return fn, nil
}

// Percentile rescales values to lo + hi*(v - p0)/|p0 - p100|, where p0 and
// p100 are the 0th and 100th percentiles. A constant input cannot be scaled
// and is reported as a DataError.
func Percentile(values []float64, lo, hi float64) ([]float64, error) {
	if len(values) == 0 {
		return nil, errors.ErrEmptyData
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	p0 := stat.Quantile(0, stat.Empirical, sorted, nil)
	p100 := stat.Quantile(1, stat.Empirical, sorted, nil)
	span := math.Abs(p0 - p100)
	if span == 0 {
		return nil, errors.NewDataError("normalize intensities", "", "constant intensities", nil)
	}

	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = lo + hi*(v-p0)/span
	}
	return out, nil
}

// NormalizingOpener wraps next so that every grid it opens is rescaled with
// Percentile. Volumes that are not grids are rejected.
func NormalizingOpener(next volume.Opener, lo, hi float64) volume.Opener {
	return volume.OpenerFunc(func(path string) (volume.Volume, error) {
		v, err := next.Open(path)
		if err != nil {
			return nil, err
		}
		g, ok := v.(*volume.Grid)
		if !ok {
			return nil, errors.NewDataError("normalize intensities", path, "volume is not an in-memory grid", nil)
		}
		data, err := Percentile(g.Data, lo, hi)
		if err != nil {
			return nil, errors.NewDataError("normalize intensities", path, "", err)
		}
		return g.WithData(data)
	})
}
