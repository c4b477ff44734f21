// Package visualization writes extracted patches as grayscale images so a
// sample of every volume can be checked by eye.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"mripatches/pkg/errors"
	"mripatches/pkg/patch"
)

// Viewer saves patch previews under a root directory, one subdirectory per
// split and volume.
type Viewer struct {
	// dir is the preview root
	dir string

	// written counts the images saved so far
	written int
}

// NewViewer creates a viewer writing below dir.
func NewViewer(dir string) *Viewer {
	return &Viewer{dir: dir}
}

// Written returns the number of images saved.
func (v *Viewer) Written() int {
	return v.written
}

// PatchImage renders an H x W patch as a 16-bit grayscale image. Values are
// stretched so the patch minimum is black and its maximum white; a constant
// patch is black.
func PatchImage(p *mat.Dense) image.Image {
	h, w := p.Dims()
	img := image.NewGray16(image.Rect(0, 0, w, h))

	var lo, hi float64
	for j := 0; j < h; j++ {
		row := p.RawRowView(j)
		if j == 0 {
			lo, hi = floats.Min(row), floats.Max(row)
			continue
		}
		lo = math.Min(lo, floats.Min(row))
		hi = math.Max(hi, floats.Max(row))
	}
	span := hi - lo

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var value uint16
			if span > 0 {
				value = uint16(math.Max(0, math.Min(65535, (p.At(y, x)-lo)/span*65535)))
			}
			img.SetGray16(x, y, color.Gray16{Y: value})
		}
	}
	return img
}

// SavePatch saves an image as a JPEG file.
func (v *Viewer) SavePatch(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.NewDataError("save preview", filename, "", err)
	}

	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: 90}); err != nil {
		file.Close()
		return errors.NewDataError("save preview", filename, "", err)
	}
	if err := file.Close(); err != nil {
		return errors.NewDataError("save preview", filename, "", err)
	}
	v.written++
	return nil
}

// Preview writes every channel of the k-th record of a volume to
// <dir>/<split>/<vol>/patch_<k>_<kind>_<channel>.jpg.
func (v *Viewer) Preview(split string, vol, k int, rec *patch.Record) error {
	outputDir := filepath.Join(v.dir, split, fmt.Sprint(vol))
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return errors.NewDataError("save preview", outputDir, "", err)
	}

	for kind, channels := range map[string][]*mat.Dense{"raw": rec.Raw, "gold": rec.Gold} {
		for c, p := range channels {
			filename := filepath.Join(outputDir, fmt.Sprintf("patch_%03d_%s_%d.jpg", k, kind, c))
			if err := v.SavePatch(PatchImage(p), filename); err != nil {
				return err
			}
		}
	}
	return nil
}
