package explorer

import (
	"encoding/json"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/spatial/r3"

	"mripatches/internal/models"
	"mripatches/pkg/errors"
	"mripatches/pkg/stats"
)

// PatchesFilename is the name of the persisted patch index.
const PatchesFilename = "patches.json"

// Entry is one indexed patch: its anchor and derived label.
type Entry struct {
	Coordinate r3.Vec
	Label      int
}

// MarshalJSON encodes the entry as [[x, y, z], label].
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{
		[3]float64{e.Coordinate.X, e.Coordinate.Y, e.Coordinate.Z},
		e.Label,
	})
}

// UnmarshalJSON decodes [[x, y, z], label].
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.NewDataError("decode patch entry", "", "want [[x, y, z], label]", err)
	}
	var c [3]float64
	if err := json.Unmarshal(raw[0], &c); err != nil {
		return errors.NewDataError("decode patch entry", "", "coordinate", err)
	}
	var label float64
	if err := json.Unmarshal(raw[1], &label); err != nil {
		return errors.NewDataError("decode patch entry", "", "label", err)
	}
	e.Coordinate = r3.Vec{X: c[0], Y: c[1], Z: c[2]}
	e.Label = int(label)
	return nil
}

// PatchIndex lists, per volume index of a split, the indexed patches in
// anchor order.
type PatchIndex map[int][]Entry

// Len returns the total number of entries.
func (p PatchIndex) Len() int {
	var n int
	for _, e := range p {
		n += len(e)
	}
	return n
}

// Statistics holds the finalized class tallies of both splits.
type Statistics struct {
	ClassesTraining stats.Statistics `json:"classes_training"`
	ClassesTesting  stats.Statistics `json:"classes_testing"`
}

// PatchesRecord is the durable artifact consumed by the training stage.
type PatchesRecord struct {
	PatchInfo  models.PatchSpec `json:"patch_info"`
	Training   PatchIndex       `json:"training"`
	Testing    PatchIndex       `json:"testing"`
	Statistics Statistics       `json:"statistics"`
}

// Index returns the index of the named split.
func (r *PatchesRecord) Index(split string) (PatchIndex, error) {
	switch split {
	case Training:
		return r.Training, nil
	case Testing:
		return r.Testing, nil
	default:
		return nil, errors.NewConfigError("split", "unknown split '"+split+"'")
	}
}

// Save writes the record as patches.json under dir and returns its path.
func (r *PatchesRecord) Save(dir string) (string, error) {
	path := filepath.Join(dir, PatchesFilename)
	data, err := json.Marshal(r)
	if err != nil {
		return "", errors.Wrap(err, "encode patch index")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.NewDataError("save patch index", dir, "", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.NewDataError("save patch index", path, "", err)
	}
	return path, nil
}

// LoadPatches reads a record written by Save. The patch geometry is
// validated again on load.
func LoadPatches(path string) (*PatchesRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewDataError("load patch index", path, "", err)
	}
	var r PatchesRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.NewDataError("load patch index", path, "malformed record", err)
	}
	if r.PatchInfo.IsZero() {
		return nil, errors.NewDataError("load patch index", path, "missing patch_info", nil)
	}
	return &r, nil
}
