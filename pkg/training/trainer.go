// Package training streams feature-mode patches of the training split to an
// incremental learner. Coordinates and labels come from the persisted patch
// index so nothing is recomputed.
package training

import (
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"mripatches/internal/models"
	"mripatches/pkg/dataset"
	"mripatches/pkg/errors"
	"mripatches/pkg/explorer"
	"mripatches/pkg/features"
	"mripatches/pkg/log"
	"mripatches/pkg/minibatch"
	"mripatches/pkg/patch"
	"mripatches/pkg/volume"
)

// Learner is an estimator trained one minibatch at a time. X holds one
// feature row per patch, y the matching labels as a column vector and
// classes every label of the training split.
type Learner interface {
	PartialFit(X, y mat.Matrix, classes []int) error
}

// Prepared holds the patches kept for one training volume.
type Prepared struct {
	Volume      int
	Coordinates []r3.Vec
	Labels      []int
}

// Prepare keeps the first int(ratio*n) indexed patches of every volume.
// Volumes are returned in increasing index order.
func Prepare(index explorer.PatchIndex, ratio float64) ([]Prepared, error) {
	if err := errors.CheckRatio("ratio_patch_per_image", ratio); err != nil {
		return nil, err
	}
	vols := make([]int, 0, len(index))
	for v := range index {
		vols = append(vols, v)
	}
	sort.Ints(vols)

	out := make([]Prepared, 0, len(vols))
	for _, v := range vols {
		entries := index[v]
		n := int(ratio * float64(len(entries)))
		p := Prepared{Volume: v, Coordinates: make([]r3.Vec, n), Labels: make([]int, n)}
		for i, e := range entries[:n] {
			p.Coordinates[i] = e.Coordinate
			p.Labels[i] = e.Label
		}
		out = append(out, p)
	}
	return out, nil
}

// Options configures a Trainer.
type Options struct {
	Split   dataset.SplitRecord
	Patches *explorer.PatchesRecord

	RatioPatchPerImage float64
	BatchSize          int

	// Features defaults to a row-major copy of the raw patch
	Features patch.FeatureFunc

	Opener volume.Opener
	Logger zerolog.Logger
}

// Trainer feeds the training split to a Learner.
type Trainer struct {
	opts     Options
	pairs    []models.VolumePair
	prepared []Prepared
	classes  []int
	log      zerolog.Logger
}

// New validates opts and prepares the patch lists.
func New(opts Options) (*Trainer, error) {
	if opts.Patches == nil {
		return nil, errors.NewConfigError("patches", "patch index is required")
	}
	if opts.Opener == nil {
		return nil, errors.NewConfigError("opener", "volume opener is required")
	}
	if opts.BatchSize <= 0 {
		return nil, errors.NewRangeError("batch_size", opts.BatchSize, "must be positive")
	}
	if opts.Features == nil {
		opts.Features = features.Passthrough
	}

	pairs, err := opts.Split.Split(explorer.Training)
	if err != nil {
		return nil, err
	}
	prepared, err := Prepare(opts.Patches.Training, opts.RatioPatchPerImage)
	if err != nil {
		return nil, err
	}
	for _, p := range prepared {
		if p.Volume < 0 || p.Volume >= len(pairs) {
			return nil, errors.NewDataError("prepare patches", opts.Split.DatasetPath,
				"patch index refers to an unknown training volume", nil)
		}
	}

	classes := opts.Patches.Statistics.ClassesTraining.Labels()
	if len(classes) == 0 {
		seen := map[int]bool{}
		for _, p := range prepared {
			for _, l := range p.Labels {
				if !seen[l] {
					seen[l] = true
					classes = append(classes, l)
				}
			}
		}
		sort.Ints(classes)
	}

	return &Trainer{
		opts:     opts,
		pairs:    pairs,
		prepared: prepared,
		classes:  classes,
		log:      log.Component(opts.Logger, "training"),
	}, nil
}

// Classes returns the labels passed to every PartialFit call.
func (t *Trainer) Classes() []int {
	return t.classes
}

// Patches returns the number of patches the stream will produce.
func (t *Trainer) Patches() int {
	var n int
	for _, p := range t.prepared {
		n += len(p.Coordinates)
	}
	return n
}

// Stream returns the minibatch stream over every prepared volume. Volumes are
// opened one at a time; batches span volume boundaries. Close the returned
// chain when done.
func (t *Trainer) Stream() (*minibatch.Streamer[*patch.Record], *minibatch.Chain[*patch.Record], error) {
	chain := minibatch.NewChain[*patch.Record](len(t.prepared), func(i int) (minibatch.Source[*patch.Record], error) {
		p := t.prepared[i]
		pair := t.pairs[p.Volume]
		it, err := patch.NewIterator(patch.Options{
			Root:         t.opts.Split.DatasetPath,
			RawFilenames: pair.RawFilenames,
			Anchors:      p.Coordinates,
			Labels:       p.Labels,
			Features:     t.opts.Features,
			Spec:         t.opts.Patches.PatchInfo,
			Opener:       t.opts.Opener,
			Logger:       t.log,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "training volume %d", p.Volume)
		}
		t.log.Debug().
			Int(log.VolumeKey, p.Volume).
			Int(log.PatchesKey, len(p.Coordinates)).
			Msg("streaming volume")
		return it, nil
	})

	s, err := minibatch.New[*patch.Record](chain, t.opts.BatchSize)
	if err != nil {
		return nil, nil, err
	}
	return s, chain, nil
}

// Summary describes a finished training pass.
type Summary struct {
	Batches int
	Patches int
}

// Train streams every prepared patch to l in minibatches.
func (t *Trainer) Train(l Learner) (Summary, error) {
	s, chain, err := t.Stream()
	if err != nil {
		return Summary{}, err
	}
	defer chain.Close()

	err = s.Each(func(batch []*patch.Record) error {
		x, err := patch.Design(batch)
		if err != nil {
			return err
		}
		labels := patch.Labels(batch)
		y := mat.NewDense(len(labels), 1, nil)
		for i, v := range labels {
			y.Set(i, 0, float64(v))
		}
		if err := l.PartialFit(x, y, t.classes); err != nil {
			return errors.Wrapf(err, "partial fit of batch %d", s.Batches())
		}
		t.log.Debug().
			Int(log.BatchesKey, s.Batches()).
			Int(log.PatchesKey, len(batch)).
			Msg("batch fitted")
		return nil
	})
	sum := Summary{Batches: s.Batches(), Patches: s.Records()}
	if err != nil {
		return sum, err
	}

	t.log.Info().
		Int(log.BatchesKey, sum.Batches).
		Int(log.PatchesKey, sum.Patches).
		Ints(log.ClassesKey, t.classes).
		Msg("training stream finished")
	return sum, nil
}
