package training

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"mripatches/pkg/errors"
)

// NearestCentroid is an incremental classifier keeping the running mean of
// every class. It is the learner used by the command line.
type NearestCentroid struct {
	nFeatures int
	centroids map[int][]float64
	counts    map[int]int
}

// NewNearestCentroid returns an untrained classifier.
func NewNearestCentroid() *NearestCentroid {
	return &NearestCentroid{centroids: map[int][]float64{}, counts: map[int]int{}}
}

// PartialFit moves each class centroid towards the rows of X labelled with
// that class.
func (nc *NearestCentroid) PartialFit(X, y mat.Matrix, classes []int) error {
	rows, cols := X.Dims()
	if yr, _ := y.Dims(); yr != rows {
		return errors.NewDataError("partial fit", "", "X and y differ in rows", nil)
	}
	if nc.nFeatures == 0 {
		nc.nFeatures = cols
	}
	if cols != nc.nFeatures {
		return errors.NewDataError("partial fit", "",
			"expected "+strconv.Itoa(nc.nFeatures)+" features, got "+strconv.Itoa(cols), nil)
	}
	for _, c := range classes {
		if _, ok := nc.centroids[c]; !ok {
			nc.centroids[c] = nil
		}
	}

	for i := 0; i < rows; i++ {
		sample := mat.Row(nil, i, X)
		label := int(y.At(i, 0))
		centre := nc.centroids[label]
		if centre == nil {
			centre = make([]float64, cols)
			nc.centroids[label] = centre
		}
		nc.counts[label]++
		eta := 1.0 / float64(nc.counts[label])
		for j := range centre {
			centre[j] = (1-eta)*centre[j] + eta*sample[j]
		}
	}
	return nil
}

// Predict returns the class of the nearest centroid for every row of X.
func (nc *NearestCentroid) Predict(X mat.Matrix) ([]int, error) {
	if len(nc.counts) == 0 {
		return nil, errors.New("nearest centroid: not fitted")
	}
	rows, cols := X.Dims()
	if cols != nc.nFeatures {
		return nil, errors.NewDataError("predict", "",
			"expected "+strconv.Itoa(nc.nFeatures)+" features, got "+strconv.Itoa(cols), nil)
	}
	labels := nc.Classes()
	out := make([]int, rows)
	for i := 0; i < rows; i++ {
		sample := mat.Row(nil, i, X)
		best := math.Inf(1)
		for _, l := range labels {
			if nc.centroids[l] == nil {
				continue
			}
			if d := floats.Distance(sample, nc.centroids[l], 2); d < best {
				best, out[i] = d, l
			}
		}
	}
	return out, nil
}

// Classes returns the labels seen so far in increasing order.
func (nc *NearestCentroid) Classes() []int {
	labels := make([]int, 0, len(nc.centroids))
	for l := range nc.centroids {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	return labels
}

// Count returns the number of samples fitted for label.
func (nc *NearestCentroid) Count(label int) int {
	return nc.counts[label]
}

// Save writes the centroids and sample counts as JSON to dir/centroids.json.
func (nc *NearestCentroid) Save(dir string) (string, error) {
	type class struct {
		Count    int       `json:"count"`
		Centroid []float64 `json:"centroid"`
	}
	out := make(map[int]class, len(nc.centroids))
	for l, c := range nc.centroids {
		out[l] = class{Count: nc.counts[l], Centroid: c}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", errors.Wrap(err, "encode centroids")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.NewDataError("save model", dir, "", err)
	}
	path := filepath.Join(dir, "centroids.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.NewDataError("save model", path, "", err)
	}
	return path, nil
}
