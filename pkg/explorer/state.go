package explorer

import (
	"fmt"
	"path/filepath"

	"mripatches/internal/models"
	"mripatches/pkg/errors"
	"mripatches/pkg/log"
	"mripatches/pkg/patch"
	"mripatches/pkg/stats"
)

// State is a step of split processing. States only move forward:
//
//	Enumerating -> SamplingAnchors -> StreamingPatches -> AccumulatingLabels
//	  -> (SamplingAnchors of the next volume | FinalizingWeights) -> Done
type State int

const (
	Enumerating State = iota
	SamplingAnchors
	StreamingPatches
	AccumulatingLabels
	FinalizingWeights
	Done
)

var stateNames = [...]string{
	Enumerating:        "enumerating_volumes",
	SamplingAnchors:    "sampling_anchors",
	StreamingPatches:   "streaming_patches",
	AccumulatingLabels: "accumulating_labels",
	FinalizingWeights:  "finalizing_weights",
	Done:               "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// next lists the states reachable from each state.
var next = map[State][]State{
	Enumerating:        {SamplingAnchors, FinalizingWeights},
	SamplingAnchors:    {StreamingPatches},
	StreamingPatches:   {AccumulatingLabels},
	AccumulatingLabels: {SamplingAnchors, FinalizingWeights},
	FinalizingWeights:  {Done},
}

// splitRun holds the mutable state of one split. The accumulator is the
// only state carried across volumes.
type splitRun struct {
	e     *Explorer
	name  string
	root  string
	state State
	acc   *stats.Accumulator
	index PatchIndex
}

func (r *splitRun) to(s State, vol int) error {
	for _, allowed := range next[r.state] {
		if allowed == s {
			r.state = s
			if r.e.opts.Observe != nil {
				r.e.opts.Observe(r.name, s, vol)
			}
			return nil
		}
	}
	return errors.Newf("explorer: invalid transition %s -> %s", r.state, s)
}

func (r *splitRun) execute(pairs []models.VolumePair) (*Result, error) {
	r.state = Enumerating
	r.acc = stats.NewAccumulator()
	r.index = make(PatchIndex, len(pairs))
	if r.e.opts.Observe != nil {
		r.e.opts.Observe(r.name, Enumerating, -1)
	}

	logger := r.e.log.With().Str(log.SplitKey, r.name).Logger()
	logger.Info().Int("volumes", len(pairs)).Msg("exploring split")

	for i, pair := range pairs {
		if err := r.volume(i, pair); err != nil {
			logger.Error().Err(err).Int(log.VolumeKey, i).Msg("split aborted")
			return nil, err
		}
	}

	if err := r.to(FinalizingWeights, -1); err != nil {
		return nil, err
	}
	s, err := r.acc.Finalize()
	if err != nil {
		return nil, err
	}
	if r.e.opts.Report != nil {
		if err := r.e.opts.Report(r.name, s); err != nil {
			return nil, errors.Wrapf(err, "report %s statistics", r.name)
		}
	}
	if err := r.to(Done, -1); err != nil {
		return nil, err
	}

	logger.Info().
		Int(log.PatchesKey, s.Total()).
		Object(log.ClassesKey, s).
		Msg("split explored")
	return &Result{Index: r.index, Statistics: s}, nil
}

func (r *splitRun) volume(i int, pair models.VolumePair) error {
	opts := r.e.opts
	if err := r.to(SamplingAnchors, i); err != nil {
		return err
	}
	ref := pair.Reference()
	if ref == "" {
		return errors.NewDataError("explore volume", fmt.Sprint(i), "no raw volumes", nil)
	}
	refPath := filepath.Join(r.root, ref)
	refVol, err := opts.Opener.Open(refPath)
	if err != nil {
		return err
	}
	anchors := r.e.Anchors(refVol)

	if err := r.to(StreamingPatches, i); err != nil {
		return err
	}
	tally := stats.NewAccumulator()
	entries := make([]Entry, 0, len(anchors))
	batches, err := r.e.streamVolume(patch.Options{
		Root:           r.root,
		RawFilenames:   pair.RawFilenames,
		LabelFilenames: pair.LabelFilenames,
		Anchors:        anchors,
		Spec:           opts.Spec,
		Opener:         referenceOpener(refPath, refVol, opts.Opener),
		Logger:         r.e.log,
	}, func(k int, rec *patch.Record) error {
		label, err := opts.Label(rec)
		if err != nil {
			return err
		}
		if err := tally.Record(label); err != nil {
			return err
		}
		entries = append(entries, Entry{Coordinate: rec.Anchor, Label: label})
		if opts.Preview != nil && k < opts.PreviewCount {
			return opts.Preview(r.name, i, k, rec)
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "volume %d (%s)", i, ref)
	}

	if err := r.to(AccumulatingLabels, i); err != nil {
		return err
	}
	if err := r.acc.Merge(tally); err != nil {
		return err
	}
	r.index[i] = entries

	r.e.log.Info().
		Str(log.SplitKey, r.name).
		Int(log.VolumeKey, i).
		Str("reference", ref).
		Int(log.AnchorsKey, len(anchors)).
		Int(log.PatchesKey, len(entries)).
		Int(log.BatchesKey, batches).
		Msg("volume explored")
	return nil
}
