package explorer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"mripatches/internal/models"
	"mripatches/pkg/dataset"
	"mripatches/pkg/errors"
	"mripatches/pkg/patch"
	"mripatches/pkg/stats"
	"mripatches/pkg/volume"
)

func cube(t *testing.T, n int, fill func(x, y, z int) float64) *volume.Grid {
	t.Helper()
	data := make([]float64, n*n*n)
	for z := 0; z < n; z++ {
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				data[x+y*n+z*n*n] = fill(x, y, z)
			}
		}
	}
	g, err := volume.NewGrid(data, n, n, n, r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1})
	require.NoError(t, err)
	return g
}

// centreLabelled is a 10x10x10 case with a single label 1 voxel at (5, 5, 5).
func centreLabelled(t *testing.T) volume.MapOpener {
	raw := cube(t, 10, func(x, y, z int) float64 { return float64(x+y+z) / 27 })
	seg := cube(t, 10, func(x, y, z int) float64 {
		if x == 5 && y == 5 && z == 5 {
			return 1
		}
		return 0
	})
	return volume.MapOpener{"data/t2": raw, "data/t2_seg": seg}
}

// With a 2x2 axial patch and 0.4 spacing the centre pixel (1, 1) lies at
// anchor + (0.4, 0.4, 0), whose nearest voxel is the anchor itself.
func axialSpec(t *testing.T) models.PatchSpec {
	t.Helper()
	s, err := models.NewPatchSpec([2]int{2, 2}, map[string][2]float64{"axial": {0.4, 0.4}})
	require.NoError(t, err)
	return s
}

func pairs() []models.VolumePair {
	return []models.VolumePair{{RawFilenames: []string{"t2"}, LabelFilenames: []string{"t2_seg"}}}
}

func TestExploreSplitSingleLabelledVoxel(t *testing.T) {
	seed := uint64(1)
	e, err := New(Options{
		Spec:               axialSpec(t),
		RatioPatchesVoxels: 1,
		BatchSize:          64,
		Seed:               &seed,
		Opener:             centreLabelled(t),
	})
	require.NoError(t, err)

	res, err := e.ExploreSplit(Training, "data", pairs())
	require.NoError(t, err)

	entries := res.Index[0]
	require.Len(t, entries, 1000)

	var positives []Entry
	for _, en := range entries {
		if en.Label != 0 {
			positives = append(positives, en)
		}
	}
	require.Len(t, positives, 1)
	assert.Equal(t, 1, positives[0].Label)
	assert.Equal(t, r3.Vec{X: 5, Y: 5, Z: 5}, positives[0].Coordinate)

	assert.Equal(t, 999, res.Statistics[0].Count)
	assert.Equal(t, 1.0, res.Statistics[0].Weight)
	assert.Equal(t, 1, res.Statistics[1].Count)
	assert.InDelta(t, 1.0/999, res.Statistics[1].Weight, 1e-12)
	assert.Equal(t, len(entries), res.Statistics.Total())
}

func TestAnchors(t *testing.T) {
	g := cube(t, 10, func(int, int, int) float64 { return 0 })
	seed := uint64(3)
	e, err := New(Options{Spec: axialSpec(t), RatioPatchesVoxels: 0.1, BatchSize: 1, Seed: &seed, Opener: volume.MapOpener{}})
	require.NoError(t, err)

	anchors := e.Anchors(g)
	require.Len(t, anchors, 100)
	seen := map[r3.Vec]bool{}
	for _, a := range anchors {
		assert.False(t, seen[a], "anchor %v drawn twice", a)
		seen[a] = true
		assert.True(t, a.X >= 0 && a.X <= 9 && a.Y >= 0 && a.Y <= 9 && a.Z >= 0 && a.Z <= 9)
	}

	again, err := New(Options{Spec: axialSpec(t), RatioPatchesVoxels: 0.1, BatchSize: 1, Seed: &seed, Opener: volume.MapOpener{}})
	require.NoError(t, err)
	assert.Equal(t, anchors, again.Anchors(g), "same seed gives the same anchors")

	e.opts.RatioPatchesVoxels = 0
	assert.Empty(t, e.Anchors(g))
}

func TestSampleDistinct(t *testing.T) {
	seed := uint64(11)
	e, err := New(Options{Spec: axialSpec(t), RatioPatchesVoxels: 0.1, BatchSize: 1, Seed: &seed, Opener: volume.MapOpener{}})
	require.NoError(t, err)

	tests := []struct {
		n, k int
	}{
		{10, 0},
		{10, 3},
		{10, 10},
		{512 * 512 * 400, 100},
	}
	for _, tt := range tests {
		got := e.sample(tt.n, tt.k)
		require.Len(t, got, tt.k)
		seen := map[int]bool{}
		for _, v := range got {
			assert.True(t, v >= 0 && v < tt.n, "index %d outside [0, %d)", v, tt.n)
			assert.False(t, seen[v], "index %d drawn twice", v)
			seen[v] = true
		}
	}
}

func TestAnchorsArePhysical(t *testing.T) {
	g, err := volume.NewGrid(make([]float64, 8), 2, 2, 2, r3.Vec{X: 100, Y: 0, Z: -50}, r3.Vec{X: 2, Y: 3, Z: 4})
	require.NoError(t, err)
	e, err := New(Options{Spec: axialSpec(t), RatioPatchesVoxels: 1, BatchSize: 1, Opener: volume.MapOpener{}})
	require.NoError(t, err)

	got := map[r3.Vec]bool{}
	for _, a := range e.Anchors(g) {
		got[a] = true
	}
	assert.Len(t, got, 8)
	assert.True(t, got[r3.Vec{X: 100, Y: 0, Z: -50}])
	assert.True(t, got[r3.Vec{X: 102, Y: 3, Z: -46}])
}

func TestStateTransitions(t *testing.T) {
	var states []State
	var volumes []int
	opener := centreLabelled(t)
	opener["data/t2b"] = opener["data/t2"]
	opener["data/t2b_seg"] = opener["data/t2_seg"]

	e, err := New(Options{
		Spec:               axialSpec(t),
		RatioPatchesVoxels: 0.01,
		BatchSize:          3,
		Opener:             opener,
		Observe: func(split string, s State, vol int) {
			assert.Equal(t, Testing, split)
			states = append(states, s)
			volumes = append(volumes, vol)
		},
	})
	require.NoError(t, err)

	two := append(pairs(), models.VolumePair{RawFilenames: []string{"t2b"}, LabelFilenames: []string{"t2b_seg"}})
	res, err := e.ExploreSplit(Testing, "data", two)
	require.NoError(t, err)
	assert.Len(t, res.Index[0], 10)
	assert.Len(t, res.Index[1], 10)

	assert.Equal(t, []State{
		Enumerating,
		SamplingAnchors, StreamingPatches, AccumulatingLabels,
		SamplingAnchors, StreamingPatches, AccumulatingLabels,
		FinalizingWeights, Done,
	}, states)
	assert.Equal(t, []int{-1, 0, 0, 0, 1, 1, 1, -1, -1}, volumes)
}

func TestEmptySplit(t *testing.T) {
	e, err := New(Options{Spec: axialSpec(t), RatioPatchesVoxels: 0.1, BatchSize: 1, Opener: volume.MapOpener{}})
	require.NoError(t, err)
	res, err := e.ExploreSplit(Testing, "data", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Index)
	assert.Empty(t, res.Statistics)
}

func TestBadVolumeAbortsSplit(t *testing.T) {
	opener := centreLabelled(t)
	var reported bool
	e, err := New(Options{
		Spec:               axialSpec(t),
		RatioPatchesVoxels: 0.05,
		BatchSize:          4,
		Opener:             opener,
		Report:             func(string, stats.Statistics) error { reported = true; return nil },
	})
	require.NoError(t, err)

	bad := append(pairs(), models.VolumePair{RawFilenames: []string{"t2"}, LabelFilenames: []string{"gone_seg"}})
	res, err := e.ExploreSplit(Training, "data", bad)
	assert.Nil(t, res)
	var dataErr *errors.DataError
	require.True(t, errors.As(err, &dataErr), "got %v", err)
	assert.Contains(t, err.Error(), "data/gone_seg")
	assert.False(t, reported, "no statistics for an aborted split")
}

func TestNewRejectsOptions(t *testing.T) {
	spec := axialSpec(t)
	opener := volume.MapOpener{}
	tests := []struct {
		name      string
		opts      Options
		wantRange bool
	}{
		{"zero spec", Options{RatioPatchesVoxels: 0.1, BatchSize: 1, Opener: opener}, false},
		{"ratio", Options{Spec: spec, RatioPatchesVoxels: 1.5, BatchSize: 1, Opener: opener}, true},
		{"batch size", Options{Spec: spec, RatioPatchesVoxels: 0.1, Opener: opener}, true},
		{"extract all positive", Options{Spec: spec, RatioPatchesVoxels: 0.1, BatchSize: 1, Opener: opener, ExtractAllPositive: true}, false},
		{"extract all negative", Options{Spec: spec, RatioPatchesVoxels: 0.1, BatchSize: 1, Opener: opener, ExtractAllNegative: true}, false},
		{"opener", Options{Spec: spec, RatioPatchesVoxels: 0.1, BatchSize: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			var rangeErr *errors.RangeError
			var cfgErr *errors.ConfigError
			if tt.wantRange {
				assert.True(t, errors.As(err, &rangeErr), "got %v", err)
			} else {
				assert.True(t, errors.As(err, &cfgErr), "got %v", err)
			}
		})
	}
}

func TestCenterLabel(t *testing.T) {
	gold := mat.NewDense(3, 4, []float64{
		0, 0, 0, 0,
		0, 0, 2, 0,
		0, 0, 0, 0,
	})
	label, err := CenterLabel(&patch.Record{Gold: []*mat.Dense{gold, mat.NewDense(3, 4, nil)}})
	require.NoError(t, err)
	assert.Equal(t, 2, label)

	_, err = CenterLabel(&patch.Record{})
	assert.Error(t, err)
}

func TestExploreWritesPatchIndex(t *testing.T) {
	out := t.TempDir()
	seed := uint64(11)
	var previews int
	var reports []string
	e, err := New(Options{
		Spec:               axialSpec(t),
		RatioPatchesVoxels: 1,
		BatchSize:          100,
		Seed:               &seed,
		Opener:             centreLabelled(t),
		PreviewCount:       2,
		Preview: func(split string, vol, k int, rec *patch.Record) error {
			previews++
			assert.Less(t, k, 2)
			return nil
		},
		Report: func(split string, s stats.Statistics) error {
			reports = append(reports, split)
			return nil
		},
	})
	require.NoError(t, err)

	split := dataset.NewSplitRecord("data", pairs(), nil)
	rec, err := e.Explore(split, out)
	require.NoError(t, err)
	assert.Equal(t, 2, previews)
	assert.Equal(t, []string{Training, Testing}, reports)
	assert.Equal(t, 1000, rec.Training.Len())
	assert.Equal(t, 0, rec.Testing.Len())

	path := filepath.Join(out, PatchesFilename)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.JSONEq(t, `{"patch_size":[2,2],"patch_pixdim":{"axial":[0.4,0.4]}}`, string(raw["patch_info"]))
	var st struct {
		Training map[string][2]float64 `json:"classes_training"`
		Testing  map[string][2]float64 `json:"classes_testing"`
	}
	require.NoError(t, json.Unmarshal(raw["statistics"], &st))
	assert.Equal(t, [2]float64{999, 1}, st.Training["0"])
	assert.Equal(t, 1.0, st.Training["1"][0])
	assert.InDelta(t, 1.0/999, st.Training["1"][1], 1e-12)
	assert.Empty(t, st.Testing)
	assert.Contains(t, raw, "training")
	assert.Contains(t, raw, "testing")

	loaded, err := LoadPatches(path)
	require.NoError(t, err)
	assert.Equal(t, rec.PatchInfo, loaded.PatchInfo)
	assert.Equal(t, rec.Training, loaded.Training)
	assert.Equal(t, rec.Statistics.ClassesTraining, loaded.Statistics.ClassesTraining)

	idx, err := loaded.Index(Training)
	require.NoError(t, err)
	assert.Len(t, idx[0], 1000)
	_, err = loaded.Index("validation")
	assert.Error(t, err)
}

func TestEntryJSON(t *testing.T) {
	e := Entry{Coordinate: r3.Vec{X: 1.5, Y: -2, Z: 3}, Label: 4}
	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `[[1.5,-2,3],4]`, string(data))

	var back Entry
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, e, back)

	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &back))
}

func TestLoadPatchesErrors(t *testing.T) {
	dir := t.TempDir()
	var dataErr *errors.DataError

	_, err := LoadPatches(filepath.Join(dir, "none.json"))
	assert.True(t, errors.As(err, &dataErr))

	p := filepath.Join(dir, "nospec.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"training":{}}`), 0644))
	_, err = LoadPatches(p)
	assert.True(t, errors.As(err, &dataErr))
}
