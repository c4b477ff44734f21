package models

// VolumePair identifies one subject: its raw intensity volumes and the
// label volumes aligned to them. Filenames are relative to the dataset root.
type VolumePair struct {
	// RawFilenames are the intensity volumes; the first one is the reference
	// whose voxel grid defines the anchor coordinates.
	RawFilenames []string

	// LabelFilenames are the ground-truth volumes aligned to the raw ones.
	LabelFilenames []string
}

// Reference returns the filename of the reference raw volume, or "" when
// the pair has no raw volume.
func (p VolumePair) Reference() string {
	if len(p.RawFilenames) == 0 {
		return ""
	}
	return p.RawFilenames[0]
}
