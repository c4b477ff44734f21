package volume

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"gonum.org/v1/gonum/spatial/r3"

	"mripatches/pkg/errors"
)

type dicomSlice struct {
	instance int
	pixels   []float64
	width    int
	height   int
	ds       dicom.Dataset
}

// LoadDICOM loads a single multi-frame DICOM file or a directory holding one
// series (one slice per file) as a volume. Pixel values are kept unscaled so
// label masks keep their class ids. Slices are ordered by InstanceNumber and
// geometry comes from the file of the first slice in that order:
// PixelSpacing, SpacingBetweenSlices (or SliceThickness), ImagePositionPatient
// and ImageOrientationPatient.
func LoadDICOM(path string) (*Grid, error) {
	files, err := dicomFiles(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.NewDataError("load dicom", path, "no .dcm files found", nil)
	}

	var slices []dicomSlice
	for i, f := range files {
		ds, err := dicom.ParseFile(f, nil)
		if err != nil {
			return nil, errors.NewDataError("parse dicom", f, "", err)
		}
		frames, err := dicomFrames(ds, f)
		if err != nil {
			return nil, err
		}
		instance := i
		if v, ok := dicomFloats(ds, tag.InstanceNumber); ok && len(v) > 0 {
			instance = int(v[0])
		}
		for j, fr := range frames {
			fr.instance = instance*len(frames) + j
			fr.ds = ds
			slices = append(slices, fr)
		}
	}

	sort.SliceStable(slices, func(i, j int) bool { return slices[i].instance < slices[j].instance })

	width, height := slices[0].width, slices[0].height
	data := make([]float64, 0, width*height*len(slices))
	for _, s := range slices {
		if s.width != width || s.height != height {
			return nil, errors.NewDataError("load dicom", path,
				fmt.Sprintf("frame size %dx%d differs from %dx%d", s.width, s.height, width, height), nil)
		}
		data = append(data, s.pixels...)
	}

	spacing, origin, direction := dicomGeometry(slices[0].ds)
	return NewOrientedGrid(data, width, height, len(slices), origin, spacing, direction)
}

func dicomFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.NewDataError("open volume", path, "", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errors.NewDataError("read dicom directory", path, "", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".dcm") {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func dicomFrames(ds dicom.Dataset, path string) ([]dicomSlice, error) {
	elem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, errors.NewDataError("read pixel data", path, "", err)
	}
	info, ok := elem.Value.GetValue().(dicom.PixelDataInfo)
	if !ok {
		return nil, errors.NewDataError("read pixel data", path, "unexpected pixel data value", nil)
	}

	var out []dicomSlice
	for _, fr := range info.Frames {
		img, err := fr.GetImage()
		if err != nil {
			return nil, errors.NewDataError("decode frame", path, "", err)
		}
		b := img.Bounds()
		out = append(out, dicomSlice{pixels: rawIntensity(img), width: b.Dx(), height: b.Dy()})
	}
	if len(out) == 0 {
		return nil, errors.NewDataError("read pixel data", path, "no frames", nil)
	}
	return out, nil
}

// rawIntensity returns stored gray levels without rescaling.
func rawIntensity(img image.Image) []float64 {
	b := img.Bounds()
	out := make([]float64, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			switch im := img.(type) {
			case *image.Gray16:
				out = append(out, float64(im.Gray16At(x, y).Y))
			case *image.Gray:
				out = append(out, float64(im.GrayAt(x, y).Y))
			default:
				r, _, _, _ := img.At(x, y).RGBA()
				out = append(out, float64(r>>8))
			}
		}
	}
	return out
}

func dicomGeometry(ds dicom.Dataset) (spacing, origin r3.Vec, direction []float64) {
	spacing = r3.Vec{X: 1, Y: 1, Z: 1}
	// PixelSpacing is (row spacing, column spacing): y first.
	if v, ok := dicomFloats(ds, tag.PixelSpacing); ok && len(v) == 2 {
		spacing.X, spacing.Y = orOne(v[1]), orOne(v[0])
	}
	if v, ok := dicomFloats(ds, tag.SpacingBetweenSlices); ok && len(v) == 1 {
		spacing.Z = orOne(v[0])
	} else if v, ok := dicomFloats(ds, tag.SliceThickness); ok && len(v) == 1 {
		spacing.Z = orOne(v[0])
	}
	if v, ok := dicomFloats(ds, tag.ImagePositionPatient); ok && len(v) == 3 {
		origin = r3.Vec{X: v[0], Y: v[1], Z: v[2]}
	}
	if v, ok := dicomFloats(ds, tag.ImageOrientationPatient); ok && len(v) == 6 {
		row := r3.Vec{X: v[0], Y: v[1], Z: v[2]}
		col := r3.Vec{X: v[3], Y: v[4], Z: v[5]}
		normal := r3.Cross(row, col)
		direction = []float64{
			row.X, col.X, normal.X,
			row.Y, col.Y, normal.Y,
			row.Z, col.Z, normal.Z,
		}
	}
	return spacing, origin, direction
}

func dicomFloats(ds dicom.Dataset, t tag.Tag) ([]float64, bool) {
	elem, err := ds.FindElementByTag(t)
	if err != nil {
		return nil, false
	}
	switch v := elem.Value.GetValue().(type) {
	case []string:
		out := make([]float64, 0, len(v))
		for _, s := range v {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, false
			}
			out = append(out, f)
		}
		return out, true
	case []int:
		out := make([]float64, len(v))
		for i, n := range v {
			out[i] = float64(n)
		}
		return out, true
	default:
		return nil, false
	}
}
