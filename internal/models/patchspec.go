package models

import (
	"encoding/json"
	"fmt"
	"math"

	"mripatches/pkg/errors"
)

// PatchSpec is the fixed patch geometry shared by every extraction call of a
// run. It is validated once by NewPatchSpec and cannot be modified afterwards.
type PatchSpec struct {
	width   int
	height  int
	pixdim  [3][2]float64
	present [3]bool
}

// NewPatchSpec validates size ([width, height] in pixels) and the physical
// pixel spacing per orientation name.
func NewPatchSpec(size [2]int, pixdim map[string][2]float64) (PatchSpec, error) {
	var spec PatchSpec
	if size[0] <= 0 || size[1] <= 0 {
		return spec, errors.NewRangeError("patch_size", size, "both dimensions must be positive")
	}
	if len(pixdim) == 0 {
		return spec, errors.NewConfigError("patch_pixdim", "at least one orientation is required")
	}
	spec.width, spec.height = size[0], size[1]
	for name, spacing := range pixdim {
		o, err := ParseOrientation(name)
		if err != nil {
			return PatchSpec{}, err
		}
		for _, s := range spacing {
			if !(s > 0) || math.IsInf(s, 0) {
				return PatchSpec{}, errors.NewRangeError("patch_pixdim."+name, spacing, "spacing must be positive and finite")
			}
		}
		spec.pixdim[o] = spacing
		spec.present[o] = true
	}
	return spec, nil
}

// Size returns the patch width and height in pixels.
func (s PatchSpec) Size() (width, height int) {
	return s.width, s.height
}

// Pixels returns width*height.
func (s PatchSpec) Pixels() int {
	return s.width * s.height
}

// Orientations returns the configured orientations in channel order.
func (s PatchSpec) Orientations() []Orientation {
	var out []Orientation
	for _, o := range Orientations {
		if s.present[o] {
			out = append(out, o)
		}
	}
	return out
}

// Spacing returns the physical pixel spacing for o.
func (s PatchSpec) Spacing(o Orientation) ([2]float64, error) {
	if o < Axial || o > Frontal || !s.present[o] {
		return [2]float64{}, errors.NewConfigError("patch_pixdim."+o.String(), "orientation not configured")
	}
	return s.pixdim[o], nil
}

// IsZero reports whether s was never initialised by NewPatchSpec.
func (s PatchSpec) IsZero() bool {
	return s.width == 0 && s.height == 0
}

func (s PatchSpec) String() string {
	return fmt.Sprintf("%dx%d %v", s.width, s.height, s.Orientations())
}

type patchSpecJSON struct {
	PatchSize   [2]int                `json:"patch_size"`
	PatchPixdim map[string][2]float64 `json:"patch_pixdim"`
}

// MarshalJSON encodes the spec as {"patch_size": [w, h], "patch_pixdim": {...}}.
func (s PatchSpec) MarshalJSON() ([]byte, error) {
	out := patchSpecJSON{PatchSize: [2]int{s.width, s.height}, PatchPixdim: map[string][2]float64{}}
	for _, o := range s.Orientations() {
		out.PatchPixdim[o.String()] = s.pixdim[o]
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes and re-validates a persisted spec.
func (s *PatchSpec) UnmarshalJSON(data []byte) error {
	var in patchSpecJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	spec, err := NewPatchSpec(in.PatchSize, in.PatchPixdim)
	if err != nil {
		return err
	}
	*s = spec
	return nil
}
