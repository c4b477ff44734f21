package patch

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"mripatches/internal/models"
	"mripatches/pkg/errors"
	"mripatches/pkg/sampler"
	"mripatches/pkg/volume"
)

// FeatureFunc turns one raw H x W patch into a feature vector.
type FeatureFunc func(patch *mat.Dense) ([]float64, error)

// Options configures an Iterator.
type Options struct {
	// Root is the dataset root joined in front of every filename
	Root string

	// RawFilenames are the intensity volumes; at least one is required
	RawFilenames []string

	// LabelFilenames are the label volumes sampled alongside the raw ones.
	// Ignored in feature mode.
	LabelFilenames []string

	// Anchors are the physical patch centres, visited in order
	Anchors []r3.Vec

	// Features switches the iterator to feature mode: every raw patch is
	// passed through it and Labels supplies the class of each anchor.
	Features FeatureFunc
	Labels   []int

	Spec   models.PatchSpec
	Opener volume.Opener
	Logger zerolog.Logger
}

// Iterator yields one Record per anchor. Volumes are opened once by
// NewIterator and held until Close.
type Iterator struct {
	opts Options
	raw  []volume.Volume
	gold []volume.Volume
	next int
	rec  *Record
	err  error
}

// NewIterator validates opts and opens every volume.
func NewIterator(opts Options) (*Iterator, error) {
	if len(opts.RawFilenames) == 0 {
		return nil, errors.NewDataError("assemble patches", opts.Root, "no raw volumes", nil)
	}
	if opts.Spec.IsZero() {
		return nil, errors.NewConfigError("patch_info", "patch spec is not initialised")
	}
	if opts.Opener == nil {
		return nil, errors.NewConfigError("opener", "volume opener is required")
	}
	if opts.Features != nil && len(opts.Labels) != len(opts.Anchors) {
		return nil, errors.NewDataError("assemble patches", opts.Root,
			fmt.Sprintf("%d labels for %d anchors", len(opts.Labels), len(opts.Anchors)), nil)
	}

	it := &Iterator{opts: opts}
	var err error
	if it.raw, err = it.open(opts.RawFilenames); err != nil {
		it.Close()
		return nil, err
	}
	if opts.Features == nil {
		if it.gold, err = it.open(opts.LabelFilenames); err != nil {
			it.Close()
			return nil, err
		}
	}

	opts.Logger.Debug().
		Int("raw_volumes", len(it.raw)).
		Int("label_volumes", len(it.gold)).
		Int("anchors", len(opts.Anchors)).
		Msg("patch iterator ready")
	return it, nil
}

// open loads names in order. Every volume must share the dimensions of the
// reference raw volume.
func (it *Iterator) open(names []string) ([]volume.Volume, error) {
	vols := make([]volume.Volume, 0, len(names))
	for _, name := range names {
		path := filepath.Join(it.opts.Root, name)
		v, err := it.opts.Opener.Open(path)
		if err != nil {
			closeAll(vols)
			var dataErr *errors.DataError
			if errors.As(err, &dataErr) {
				return nil, err
			}
			return nil, errors.NewDataError("open volume", path, "", err)
		}

		ref := v
		if len(it.raw) > 0 {
			ref = it.raw[0]
		} else if len(vols) > 0 {
			ref = vols[0]
		}
		if ref.Dimensions() != v.Dimensions() {
			closeAll(append(vols, v))
			return nil, errors.NewDataError("open volume", path,
				fmt.Sprintf("dimensions %v differ from reference %v", v.Dimensions(), ref.Dimensions()), nil)
		}
		vols = append(vols, v)
	}
	return vols, nil
}

// Len returns the number of anchors the iterator will visit.
func (it *Iterator) Len() int {
	return len(it.opts.Anchors)
}

// Next assembles the record of the next anchor. It returns false when the
// anchors are exhausted or an error occurred.
func (it *Iterator) Next() bool {
	if it.err != nil || it.next >= len(it.opts.Anchors) {
		it.rec = nil
		return false
	}
	rec, err := it.assemble(it.next)
	if err != nil {
		it.err = err
		it.rec = nil
		return false
	}
	it.rec = rec
	it.next++
	return true
}

// Record returns the record produced by the last successful Next.
func (it *Iterator) Record() *Record {
	return it.rec
}

// Err returns the first error met while iterating.
func (it *Iterator) Err() error {
	return it.err
}

// Close releases the volumes. Volumes that implement io.Closer are closed.
func (it *Iterator) Close() error {
	err := closeAll(append(it.raw, it.gold...))
	it.raw, it.gold = nil, nil
	return err
}

func closeAll(vols []volume.Volume) error {
	var first error
	for _, v := range vols {
		if c, ok := v.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

func (it *Iterator) assemble(k int) (*Record, error) {
	anchor := it.opts.Anchors[k]
	grids, err := sampler.Grids(anchor, it.opts.Spec)
	if err != nil {
		return nil, err
	}
	w, h := it.opts.Spec.Size()

	rec := &Record{Anchor: anchor}
	if it.opts.Features != nil {
		rec.Label = it.opts.Labels[k]
		rec.HasLabel = true
	}

	for _, coords := range grids {
		for _, v := range it.raw {
			p := samplePatch(v, coords, w, h, volume.Linear)
			rec.Raw = append(rec.Raw, p)
			if it.opts.Features != nil {
				f, err := it.opts.Features(p)
				if err != nil {
					return nil, errors.Wrapf(err, "feature extraction at anchor %d", k)
				}
				rec.Features = append(rec.Features, f)
			}
		}
		for _, v := range it.gold {
			rec.Gold = append(rec.Gold, samplePatch(v, coords, w, h, volume.Nearest))
		}
	}
	return rec, nil
}

func samplePatch(v volume.Volume, coords []r3.Vec, w, h int, mode volume.Interpolation) *mat.Dense {
	vals := v.Sample(v.PhysicalToVoxel(coords), mode)
	return mat.NewDense(h, w, vals)
}
