package volume

import (
	"os"
	"path/filepath"
	"strings"

	"mripatches/pkg/errors"
)

// FileOpener opens volumes stored on disk. A directory of JPG/PNG slices is
// loaded as a slice stack; a .dcm file or a directory of .dcm files is
// loaded as a DICOM series.
type FileOpener struct {
	// SliceStack places slice-stack volumes in physical space
	SliceStack SliceStackOptions
}

// Open loads the volume at path.
func (o FileOpener) Open(path string) (Volume, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.NewDataError("open volume", path, "", err)
	}

	if !info.IsDir() {
		if strings.EqualFold(filepath.Ext(path), ".dcm") {
			return LoadDICOM(path)
		}
		return nil, errors.NewDataError("open volume", path, "unsupported volume format", nil)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errors.NewDataError("open volume", path, "", err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".dcm") {
			return LoadDICOM(path)
		}
	}
	return LoadSliceStack(path, o.SliceStack)
}
