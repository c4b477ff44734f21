package models

import (
	"mripatches/pkg/errors"
)

// Orientation is one of the three slicing planes through a volume.
type Orientation int

const (
	// Axial spans physical axes 1 and 2; axis 3 is fixed.
	Axial Orientation = iota
	// Sagittal spans physical axes 2 and 3; axis 1 is fixed.
	Sagittal
	// Frontal spans physical axes 1 and 3; axis 2 is fixed.
	Frontal
)

// Orientations lists every orientation in channel order.
var Orientations = []Orientation{Axial, Sagittal, Frontal}

func (o Orientation) String() string {
	switch o {
	case Axial:
		return "axial"
	case Sagittal:
		return "sagittal"
	case Frontal:
		return "frontal"
	default:
		return "unknown"
	}
}

// ParseOrientation maps a configuration key to an Orientation.
func ParseOrientation(name string) (Orientation, error) {
	for _, o := range Orientations {
		if o.String() == name {
			return o, nil
		}
	}
	return 0, errors.NewConfigError("patch_pixdim."+name, "unknown orientation (want axial, sagittal or frontal)")
}
