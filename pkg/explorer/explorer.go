// Package explorer drives patch extraction over every volume of a dataset
// split. For each volume it samples anchor coordinates, streams the patches
// in minibatches, derives one label per patch and tallies the labels per
// class. The result is a patch index persisted for the training stage.
package explorer

import (
	"math"
	"math/rand/v2"
	"path/filepath"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/spatial/r3"

	"mripatches/internal/models"
	"mripatches/pkg/dataset"
	"mripatches/pkg/errors"
	"mripatches/pkg/log"
	"mripatches/pkg/minibatch"
	"mripatches/pkg/patch"
	"mripatches/pkg/stats"
	"mripatches/pkg/volume"
)

// Split names.
const (
	Training = "training"
	Testing  = "testing"
)

// LabelFunc derives the class of one patch record.
type LabelFunc func(rec *patch.Record) (int, error)

// CenterLabel returns the value at the centre of the first label channel,
// rounded to the nearest integer. The centre is (H/2, W/2) with integer
// division.
func CenterLabel(rec *patch.Record) (int, error) {
	if len(rec.Gold) == 0 {
		return 0, errors.NewDataError("derive label", "", "record has no label channel", nil)
	}
	g := rec.Gold[0]
	h, w := g.Dims()
	return int(math.Round(g.At(h/2, w/2))), nil
}

// PreviewFunc receives the k-th record of a volume, for k < PreviewCount.
type PreviewFunc func(split string, vol, k int, rec *patch.Record) error

// ReportFunc receives the finalized statistics of a split.
type ReportFunc func(split string, s stats.Statistics) error

// Options configures an Explorer.
type Options struct {
	Spec models.PatchSpec

	// RatioPatchesVoxels is the share of reference voxels used as anchors
	RatioPatchesVoxels float64

	BatchSize int

	// Reserved; enabling either is a configuration error
	ExtractAllPositive bool
	ExtractAllNegative bool

	// Seed makes anchor sampling reproducible. Nil draws fresh anchors on
	// every run.
	Seed *uint64

	// Label defaults to CenterLabel
	Label LabelFunc

	Opener volume.Opener

	Preview      PreviewFunc
	PreviewCount int
	Report       ReportFunc

	// Observe, when set, is called on every state transition
	Observe func(split string, s State, vol int)

	Logger zerolog.Logger
}

// Explorer builds patch indexes. It is not safe for concurrent use.
type Explorer struct {
	opts Options
	rng  *rand.Rand
	log  zerolog.Logger
}

// New validates opts and returns an Explorer.
func New(opts Options) (*Explorer, error) {
	if opts.Spec.IsZero() {
		return nil, errors.NewConfigError("patch_info", "patch spec is not initialised")
	}
	if err := errors.CheckRatio("ratio_patches_voxels", opts.RatioPatchesVoxels); err != nil {
		return nil, err
	}
	if opts.BatchSize <= 0 {
		return nil, errors.NewRangeError("batch_size", opts.BatchSize, "must be positive")
	}
	if opts.ExtractAllPositive {
		return nil, errors.NewConfigError("extract_all_positive", "not supported")
	}
	if opts.ExtractAllNegative {
		return nil, errors.NewConfigError("extract_all_negative", "not supported")
	}
	if opts.Opener == nil {
		return nil, errors.NewConfigError("opener", "volume opener is required")
	}
	if opts.Label == nil {
		opts.Label = CenterLabel
	}

	var src rand.Source
	if opts.Seed != nil {
		src = rand.NewPCG(*opts.Seed, *opts.Seed^0x9e3779b97f4a7c15)
	} else {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}

	return &Explorer{
		opts: opts,
		rng:  rand.New(src),
		log:  log.Component(opts.Logger, "explorer"),
	}, nil
}

// Anchors samples round(n * RatioPatchesVoxels) voxels of v, where n is the
// voxel count, and returns their physical coordinates in random order.
// Voxels are drawn without replacement, so no anchor repeats; memory grows
// with the anchor count, not with n.
func (e *Explorer) Anchors(v volume.Volume) []r3.Vec {
	dims := v.Dimensions()
	n := dims[0] * dims[1] * dims[2]
	k := int(math.Round(float64(n) * e.opts.RatioPatchesVoxels))
	if k > n {
		k = n
	}

	idx := make([]r3.Vec, k)
	for i, flat := range e.sample(n, k) {
		x := flat % dims[0]
		y := flat / dims[0] % dims[1]
		z := flat / (dims[0] * dims[1])
		idx[i] = r3.Vec{X: float64(x), Y: float64(y), Z: float64(z)}
	}
	return v.VoxelToPhysical(idx)
}

// sample draws k distinct integers from [0, n) with Floyd's algorithm and
// shuffles them.
func (e *Explorer) sample(n, k int) []int {
	seen := make(map[int]struct{}, k)
	out := make([]int, 0, k)
	for j := n - k; j < n; j++ {
		v := e.rng.IntN(j + 1)
		if _, dup := seen[v]; dup {
			v = j
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	e.rng.Shuffle(len(out), func(a, b int) { out[a], out[b] = out[b], out[a] })
	return out
}

// Result is the outcome of exploring one split.
type Result struct {
	Index      PatchIndex
	Statistics stats.Statistics
}

// ExploreSplit processes the volumes of one split in order. Any volume error
// aborts the split and no partial result is returned.
func (e *Explorer) ExploreSplit(name, root string, pairs []models.VolumePair) (*Result, error) {
	run := &splitRun{e: e, name: name, root: root}
	return run.execute(pairs)
}

// Explore processes both splits of rec and saves patches.json under outDir.
func (e *Explorer) Explore(rec dataset.SplitRecord, outDir string) (*PatchesRecord, error) {
	out := &PatchesRecord{PatchInfo: e.opts.Spec}

	for _, name := range []string{Training, Testing} {
		pairs, err := rec.Split(name)
		if err != nil {
			return nil, err
		}
		res, err := e.ExploreSplit(name, rec.DatasetPath, pairs)
		if err != nil {
			return nil, errors.Wrapf(err, "explore %s split", name)
		}
		if name == Training {
			out.Training, out.Statistics.ClassesTraining = res.Index, res.Statistics
		} else {
			out.Testing, out.Statistics.ClassesTesting = res.Index, res.Statistics
		}
	}

	path, err := out.Save(outDir)
	if err != nil {
		return nil, err
	}
	e.log.Info().
		Str("path", path).
		Int("training_patches", out.Training.Len()).
		Int("testing_patches", out.Testing.Len()).
		Msg("patch index saved")
	return out, nil
}

// referenceOpener serves an already opened reference volume and delegates
// every other path.
func referenceOpener(path string, ref volume.Volume, next volume.Opener) volume.Opener {
	return volume.OpenerFunc(func(p string) (volume.Volume, error) {
		if filepath.Clean(p) == filepath.Clean(path) {
			return ref, nil
		}
		return next.Open(p)
	})
}

// streamVolume runs the patch stream of one volume and feeds every record
// to fn in anchor order.
func (e *Explorer) streamVolume(opts patch.Options, fn func(k int, rec *patch.Record) error) (batches int, err error) {
	it, err := patch.NewIterator(opts)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	s, err := minibatch.New[*patch.Record](it, e.opts.BatchSize)
	if err != nil {
		return 0, err
	}
	k := 0
	err = s.Each(func(batch []*patch.Record) error {
		for _, rec := range batch {
			if err := fn(k, rec); err != nil {
				return err
			}
			k++
		}
		return nil
	})
	return s.Batches(), err
}
