package volume

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"mripatches/pkg/errors"
)

// SliceStackOptions describes the physical placement of a directory of 2D slices.
type SliceStackOptions struct {
	// PixelSpacing is the in-plane spacing in mm (x, y). Zero means 1.0.
	PixelSpacing [2]float64

	// SliceGap is the physical distance between consecutive slices in mm.
	// Zero means 1.0.
	SliceGap float64

	// Origin is the physical position of the first voxel
	Origin r3.Vec
}

var sliceExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// LoadSliceStack loads a directory of 2D grayscale slices as one volume.
// Slices are ordered by the number embedded in their filename and their
// intensities are scaled to [0, 1]. All slices must share the same size.
func LoadSliceStack(dir string, opts SliceStackOptions) (*Grid, error) {
	names, err := sliceFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, errors.NewDataError("load slice stack", dir, "no JPG or PNG images found", nil)
	}

	var (
		data          []float64
		width, height int
	)
	for i, name := range names {
		path := filepath.Join(dir, name)
		img, err := loadImage(path)
		if err != nil {
			return nil, errors.NewDataError("load slice", path, "", err)
		}

		bounds := img.Bounds()
		if i == 0 {
			width, height = bounds.Dx(), bounds.Dy()
			data = make([]float64, 0, width*height*len(names))
		} else if bounds.Dx() != width || bounds.Dy() != height {
			return nil, errors.NewDataError("load slice", path,
				fmt.Sprintf("size %dx%d differs from %dx%d", bounds.Dx(), bounds.Dy(), width, height), nil)
		}
		data = append(data, imageToFloat(img)...)
	}

	spacing := r3.Vec{X: orOne(opts.PixelSpacing[0]), Y: orOne(opts.PixelSpacing[1]), Z: orOne(opts.SliceGap)}
	return NewGrid(data, width, height, len(names), opts.Origin, spacing)
}

// sliceFiles returns the image files of dir sorted by their slice number.
func sliceFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.NewDataError("read slice directory", dir, "", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if sliceExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}

	sort.SliceStable(names, func(i, j int) bool {
		return extractNumber(names[i]) < extractNumber(names[j])
	})
	return names, nil
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	var digits strings.Builder
	for _, c := range base {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}

	if digits.Len() > 0 {
		num, err := strconv.Atoi(digits.String())
		if err == nil {
			return num
		}
	}
	return 0
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// imageToFloat converts a single image to float array in [0, 1]
func imageToFloat(img image.Image) []float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	result := make([]float64, width*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			result[y*width+x] = float64(r) / 65535.0
		}
	}

	return result
}

func orOne(v float64) float64 {
	if v <= 0 {
		return 1.0
	}
	return v
}
