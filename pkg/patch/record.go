// Package patch assembles aligned 2D patches from a set of volumes, one
// record per anchor coordinate, and helps aggregate records into batches.
package patch

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"mripatches/pkg/errors"
)

// Record holds every patch extracted around one anchor. Channels are
// ordered by orientation (axial, sagittal, frontal) and, within one
// orientation, by volume order. Each channel is an H x W matrix.
type Record struct {
	Anchor r3.Vec

	// Raw holds the intensity patches, sampled with linear interpolation
	Raw []*mat.Dense

	// Gold holds the label patches, sampled with nearest-neighbour
	// interpolation. Empty in feature mode.
	Gold []*mat.Dense

	// Features holds one feature vector per raw channel. Feature mode only.
	Features [][]float64

	// Label is the class supplied with the anchor. Feature mode only.
	Label    int
	HasLabel bool
}

// FeatureVector concatenates the feature vectors of every channel.
func (r *Record) FeatureVector() []float64 {
	var n int
	for _, f := range r.Features {
		n += len(f)
	}
	out := make([]float64, 0, n)
	for _, f := range r.Features {
		out = append(out, f...)
	}
	return out
}

// Design stacks the feature vectors of records into a matrix with one row
// per record. All records must produce vectors of the same length.
func Design(records []*Record) (*mat.Dense, error) {
	if len(records) == 0 {
		return nil, errors.ErrEmptyData
	}
	first := records[0].FeatureVector()
	if len(first) == 0 {
		return nil, errors.NewDataError("stack features", "", "records carry no features", nil)
	}
	x := mat.NewDense(len(records), len(first), nil)
	x.SetRow(0, first)
	for i := 1; i < len(records); i++ {
		row := records[i].FeatureVector()
		if len(row) != len(first) {
			return nil, errors.NewDataError("stack features", "",
				"feature length differs between records", nil)
		}
		x.SetRow(i, row)
	}
	return x, nil
}

// Labels returns the labels of records in order.
func Labels(records []*Record) []int {
	out := make([]int, len(records))
	for i, r := range records {
		out[i] = r.Label
	}
	return out
}
