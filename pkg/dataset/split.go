package dataset

import (
	"encoding/json"
	"math/rand/v2"
	"os"
	"path/filepath"

	"mripatches/internal/models"
	"mripatches/pkg/errors"
)

// SplitFilename is the name of the persisted split record.
const SplitFilename = "datasets.json"

// Split partitions pairs with a random permutation. The first
// int(ratios[0]*n) permuted pairs form the training split, the next
// int(ratios[1]*n) the testing split; the rest is unused. A nil seed draws a
// fresh permutation on every call.
func Split(pairs []models.VolumePair, ratios [2]float64, seed *uint64) (training, testing []models.VolumePair, err error) {
	for i, r := range ratios {
		if err := errors.CheckRatio(splitNames[i]+"_ratio", r); err != nil {
			return nil, nil, err
		}
	}
	if ratios[0]+ratios[1] > 1 {
		return nil, nil, errors.NewRangeError("dataset.ratio", ratios, "ratios must not sum above 1")
	}
	if len(pairs) == 0 {
		return nil, nil, errors.NewDataError("split dataset", "", "no volume pairs", errors.ErrEmptyData)
	}

	n := len(pairs)
	perm := permutation(n, seed)
	nTrain := int(ratios[0] * float64(n))
	nTest := int(ratios[1] * float64(n))

	for _, idx := range perm[:nTrain] {
		training = append(training, pairs[idx])
	}
	for _, idx := range perm[nTrain : nTrain+nTest] {
		testing = append(testing, pairs[idx])
	}
	return training, testing, nil
}

var splitNames = [2]string{"training", "testing"}

func permutation(n int, seed *uint64) []int {
	if seed == nil {
		return rand.Perm(n)
	}
	return rand.New(rand.NewPCG(*seed, *seed)).Perm(n)
}

// Images is the persisted form of one split: parallel lists of raw and
// label filenames, one entry per volume pair.
type Images struct {
	RawImages  [][]string `json:"raw_images"`
	GoldImages [][]string `json:"gold_images"`
}

// Pairs rebuilds the volume pairs of the split.
func (im Images) Pairs() ([]models.VolumePair, error) {
	if len(im.RawImages) != len(im.GoldImages) {
		return nil, errors.NewDataError("read split", "", "raw_images and gold_images differ in length", nil)
	}
	pairs := make([]models.VolumePair, len(im.RawImages))
	for i := range im.RawImages {
		pairs[i] = models.VolumePair{RawFilenames: im.RawImages[i], LabelFilenames: im.GoldImages[i]}
	}
	return pairs, nil
}

func imagesOf(pairs []models.VolumePair) Images {
	im := Images{RawImages: [][]string{}, GoldImages: [][]string{}}
	for _, p := range pairs {
		im.RawImages = append(im.RawImages, p.RawFilenames)
		im.GoldImages = append(im.GoldImages, p.LabelFilenames)
	}
	return im
}

// SplitRecord is the durable description of a dataset split.
type SplitRecord struct {
	Training    Images `json:"training"`
	Testing     Images `json:"testing"`
	DatasetPath string `json:"dataset_path"`
}

// NewSplitRecord describes a split of the dataset under root.
func NewSplitRecord(root string, training, testing []models.VolumePair) SplitRecord {
	return SplitRecord{
		Training:    imagesOf(training),
		Testing:     imagesOf(testing),
		DatasetPath: root,
	}
}

// Split returns the pairs of the named split ("training" or "testing").
func (r SplitRecord) Split(name string) ([]models.VolumePair, error) {
	switch name {
	case "training":
		return r.Training.Pairs()
	case "testing":
		return r.Testing.Pairs()
	default:
		return nil, errors.NewConfigError("split", "unknown split '"+name+"'")
	}
}

// Save writes the record as datasets.json under dir and returns its path.
func (r SplitRecord) Save(dir string) (string, error) {
	path := filepath.Join(dir, SplitFilename)
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "encode split record")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.NewDataError("save split", dir, "", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.NewDataError("save split", path, "", err)
	}
	return path, nil
}

// LoadSplit reads a split record written by Save.
func LoadSplit(path string) (SplitRecord, error) {
	var r SplitRecord
	data, err := os.ReadFile(path)
	if err != nil {
		return r, errors.NewDataError("load split", path, "", err)
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, errors.NewDataError("load split", path, "malformed record", err)
	}
	if _, err := r.Training.Pairs(); err != nil {
		return r, errors.NewDataError("load split", path, "training", err)
	}
	if _, err := r.Testing.Pairs(); err != nil {
		return r, errors.NewDataError("load split", path, "testing", err)
	}
	return r, nil
}
