package volume

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"mripatches/pkg/errors"
)

func newTestGrid(t *testing.T, w, h, d int, fill func(x, y, z int) float64) *Grid {
	t.Helper()
	data := make([]float64, w*h*d)
	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				data[x+y*w+z*w*h] = fill(x, y, z)
			}
		}
	}
	g, err := NewGrid(data, w, h, d, r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1})
	require.NoError(t, err)
	return g
}

func TestNewGridValidation(t *testing.T) {
	_, err := NewGrid(make([]float64, 7), 2, 2, 2, r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1})
	var dataErr *errors.DataError
	assert.True(t, errors.As(err, &dataErr), "short data should be a DataError, got %v", err)

	_, err = NewGrid(make([]float64, 8), 2, 2, 2, r3.Vec{}, r3.Vec{X: 1, Y: 0, Z: 1})
	var rangeErr *errors.RangeError
	assert.True(t, errors.As(err, &rangeErr), "zero spacing should be a RangeError, got %v", err)

	_, err = NewOrientedGrid(make([]float64, 8), 2, 2, 2, r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1},
		[]float64{1, 0, 0, 1, 0, 0, 0, 0, 1})
	assert.True(t, errors.As(err, &dataErr), "singular direction should be a DataError, got %v", err)
}

func TestTransformRoundTrip(t *testing.T) {
	// Voxel x runs along physical -y, voxel y along physical x.
	direction := []float64{
		0, 1, 0,
		-1, 0, 0,
		0, 0, 1,
	}
	g, err := NewOrientedGrid(make([]float64, 4*4*4), 4, 4, 4,
		r3.Vec{X: 10, Y: -5, Z: 2}, r3.Vec{X: 0.5, Y: 2, Z: 3}, direction)
	require.NoError(t, err)

	idx := []r3.Vec{{X: 1, Y: 2, Z: 3}, {X: 0, Y: 0, Z: 0}, {X: 3.5, Y: 0.25, Z: 1}}
	phys := g.VoxelToPhysical(idx)

	assert.InDelta(t, 10+2*2, phys[0].X, 1e-9)
	assert.InDelta(t, -5-1*0.5, phys[0].Y, 1e-9)
	assert.InDelta(t, 2+3*3, phys[0].Z, 1e-9)

	back := g.PhysicalToVoxel(phys)
	for i := range idx {
		assert.InDelta(t, idx[i].X, back[i].X, 1e-9)
		assert.InDelta(t, idx[i].Y, back[i].Y, 1e-9)
		assert.InDelta(t, idx[i].Z, back[i].Z, 1e-9)
	}
}

func TestSampleNearestKeepsLabels(t *testing.T) {
	// Sharp boundary: label 0 for x < 5, label 3 for x >= 5.
	g := newTestGrid(t, 10, 4, 4, func(x, _, _ int) float64 {
		if x >= 5 {
			return 3
		}
		return 0
	})

	var coords []r3.Vec
	for x := 0.0; x <= 9; x += 0.1 {
		coords = append(coords, r3.Vec{X: x, Y: 1.3, Z: 2.7})
	}

	for i, v := range g.Sample(coords, Nearest) {
		if v != 0 && v != 3 {
			t.Fatalf("nearest sample %d at x=%.1f produced interpolated label %v", i, coords[i].X, v)
		}
	}

	var blended bool
	for _, v := range g.Sample(coords, Linear) {
		if v > 0 && v < 3 {
			blended = true
		}
	}
	assert.True(t, blended, "linear sampling across the boundary should blend values")
}

func TestSampleLinear(t *testing.T) {
	g := newTestGrid(t, 4, 4, 4, func(x, y, z int) float64 { return float64(x + 2*y + 3*z) })

	vals := g.Sample([]r3.Vec{{X: 1.5, Y: 1, Z: 1}, {X: 1.25, Y: 1.5, Z: 2}, {X: 2, Y: 2, Z: 2}}, Linear)
	assert.InDelta(t, 1.5+2+3, vals[0], 1e-9)
	assert.InDelta(t, 1.25+3+6, vals[1], 1e-9)
	assert.InDelta(t, 12, vals[2], 1e-9)

	// Outside the grid the sampler returns 0.
	out := g.Sample([]r3.Vec{{X: -3, Y: 0, Z: 0}, {X: 100, Y: 1, Z: 1}}, Nearest)
	assert.Equal(t, []float64{0, 0}, out)
}

func writeSlice(t *testing.T, path string, w, h int, value func(x, y int) uint16) {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray16(x, y, color.Gray16{Y: value(x, y)})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestLoadSliceStack(t *testing.T) {
	dir := t.TempDir()
	// Written out of order; slice number decides the z position.
	for _, z := range []int{2, 0, 10, 1} {
		z := z
		writeSlice(t, filepath.Join(dir, "slice_"+strconv.Itoa(z)+".png"), 6, 5, func(x, y int) uint16 {
			return uint16(z * 1000)
		})
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	g, err := LoadSliceStack(dir, SliceStackOptions{PixelSpacing: [2]float64{0.5, 0.5}, SliceGap: 3})
	require.NoError(t, err)

	assert.Equal(t, [3]int{6, 5, 4}, g.Dimensions())
	assert.Equal(t, r3.Vec{X: 0.5, Y: 0.5, Z: 3}, g.Spacing)
	wantOrder := []int{0, 1, 2, 10}
	for z, n := range wantOrder {
		assert.InDelta(t, float64(n*1000)/65535.0, g.At(3, 2, z), 1e-9, "slice %d", z)
	}

	phys := g.VoxelToPhysical([]r3.Vec{{X: 2, Y: 2, Z: 2}})
	assert.InDelta(t, 6.0, phys[0].Z, 1e-9)
}

func TestLoadSliceStackErrors(t *testing.T) {
	empty := t.TempDir()
	_, err := LoadSliceStack(empty, SliceStackOptions{})
	var dataErr *errors.DataError
	assert.True(t, errors.As(err, &dataErr))

	mixed := t.TempDir()
	writeSlice(t, filepath.Join(mixed, "a1.png"), 4, 4, func(int, int) uint16 { return 0 })
	writeSlice(t, filepath.Join(mixed, "a2.png"), 5, 4, func(int, int) uint16 { return 0 })
	_, err = LoadSliceStack(mixed, SliceStackOptions{})
	assert.True(t, errors.As(err, &dataErr), "mismatched slice sizes should fail, got %v", err)
}

func TestFileOpener(t *testing.T) {
	root := t.TempDir()
	stack := filepath.Join(root, "sub01")
	require.NoError(t, os.Mkdir(stack, 0755))
	writeSlice(t, filepath.Join(stack, "0.png"), 3, 3, func(int, int) uint16 { return 65535 })

	v, err := FileOpener{}.Open(stack)
	require.NoError(t, err)
	assert.Equal(t, [3]int{3, 3, 1}, v.Dimensions())

	_, err = FileOpener{}.Open(filepath.Join(root, "missing"))
	var dataErr *errors.DataError
	require.True(t, errors.As(err, &dataErr))
	assert.Contains(t, err.Error(), "missing")

	txt := filepath.Join(root, "volume.txt")
	require.NoError(t, os.WriteFile(txt, nil, 0644))
	_, err = FileOpener{}.Open(txt)
	assert.Error(t, err)
}

func TestMapOpener(t *testing.T) {
	g := newTestGrid(t, 2, 2, 2, func(int, int, int) float64 { return 1 })
	opener := MapOpener{"a": g}

	v, err := opener.Open("a")
	require.NoError(t, err)
	assert.Same(t, g, v)

	_, err = opener.Open("b")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRawIntensity(t *testing.T) {
	img := image.NewGray16(image.Rect(0, 0, 2, 1))
	img.SetGray16(0, 0, color.Gray16{Y: 1})
	img.SetGray16(1, 0, color.Gray16{Y: 4000})
	assert.Equal(t, []float64{1, 4000}, rawIntensity(img))

	gray := image.NewGray(image.Rect(0, 0, 1, 1))
	gray.SetGray(0, 0, color.Gray{Y: 2})
	assert.Equal(t, []float64{2}, rawIntensity(gray))
}

func TestExtractNumber(t *testing.T) {
	assert.Equal(t, 12, extractNumber("slice_012.png"))
	assert.Equal(t, 0, extractNumber("slice.png"))
	assert.Equal(t, 99, extractNumber("a9b9"))
}
