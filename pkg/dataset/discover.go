// Package dataset discovers raw/label volume pairs under a dataset root,
// partitions them into training and testing splits and persists the split.
package dataset

import (
	"os"
	"sort"
	"strings"

	"mripatches/internal/models"
	"mripatches/pkg/errors"
)

// Discoverer lists the volume pairs found under a dataset root.
type Discoverer func(root string) ([]models.VolumePair, error)

// ignored entries are never treated as volumes
var ignored = map[string]bool{".DS_Store": true}

// DirectoryDiscoverer returns a Discoverer that scans the top level of the
// root. Entries whose name contains marker are label volumes; every other
// entry is a raw volume paired with the label entry whose stem equals the
// raw stem once the marker and its separator are removed ("sub1_seg.nii.gz"
// belongs to "sub1.nii.gz", never to "sub10.nii.gz"). Hidden entries are
// skipped. Two labels or two raw volumes sharing a stem are a DataError.
// Pairs are sorted by raw filename.
func DirectoryDiscoverer(marker string) Discoverer {
	if marker == "" {
		marker = "seg"
	}
	return func(root string) ([]models.VolumePair, error) {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, errors.NewDataError("discover volumes", root, "", err)
		}

		var raws, labels []string
		for _, e := range entries {
			name := e.Name()
			if ignored[name] || strings.HasPrefix(name, ".") {
				continue
			}
			if strings.Contains(name, marker) {
				labels = append(labels, name)
			} else {
				raws = append(raws, name)
			}
		}
		sort.Strings(raws)
		sort.Strings(labels)

		byStem := make(map[string]string, len(labels))
		for _, l := range labels {
			key := labelStem(l, marker)
			if prev, ok := byStem[key]; ok {
				return nil, errors.NewDataError("discover volumes", root,
					"labels '"+prev+"' and '"+l+"' both match '"+key+"'", nil)
			}
			byStem[key] = l
		}

		claimed := make(map[string]string, len(raws))
		pairs := make([]models.VolumePair, 0, len(raws))
		for _, raw := range raws {
			key := stem(raw)
			label, ok := byStem[key]
			if !ok {
				return nil, errors.NewDataError("discover volumes", root,
					"no label volume for '"+raw+"'", nil)
			}
			if prev, ok := claimed[label]; ok {
				return nil, errors.NewDataError("discover volumes", root,
					"label '"+label+"' claimed by both '"+prev+"' and '"+raw+"'", nil)
			}
			claimed[label] = raw
			pairs = append(pairs, models.VolumePair{
				RawFilenames:   []string{raw},
				LabelFilenames: []string{label},
			})
		}
		if len(pairs) == 0 {
			return nil, errors.NewDataError("discover volumes", root, "no volumes found", errors.ErrEmptyData)
		}
		return pairs, nil
	}
}

// labelStem removes marker and the separator next to it from the stem of a
// label name: "sub1_t2_seg.nii.gz" gives "sub1_t2", "seg-sub1" gives "sub1".
func labelStem(name, marker string) string {
	s := stem(name)
	i := strings.LastIndex(s, marker)
	if i < 0 {
		return s
	}
	before := strings.TrimRight(s[:i], "_-")
	after := strings.TrimLeft(s[i+len(marker):], "_-")
	switch {
	case before == "":
		return after
	case after == "":
		return before
	default:
		return before + "_" + after
	}
}

// stem strips every extension, so "t2.nii.gz" becomes "t2".
func stem(name string) string {
	if i := strings.Index(name, "."); i > 0 {
		return name[:i]
	}
	return name
}
