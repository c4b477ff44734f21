package volume

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"mripatches/pkg/errors"
)

// Grid is an in-memory volume. Data is stored in row-major order with x
// varying fastest: index = x + y*Width + z*Width*Height.
type Grid struct {
	// Data holds Width*Height*Depth voxel values
	Data []float64

	Width, Height, Depth int

	// Origin is the physical position of voxel (0, 0, 0)
	Origin r3.Vec

	// Spacing is the physical size of a voxel along each voxel axis
	Spacing r3.Vec

	// toPhysical is direction * diag(spacing); toVoxel is its inverse
	toPhysical *mat.Dense
	toVoxel    *mat.Dense
}

// NewGrid creates a grid with identity direction cosines.
func NewGrid(data []float64, width, height, depth int, origin, spacing r3.Vec) (*Grid, error) {
	return NewOrientedGrid(data, width, height, depth, origin, spacing, nil)
}

// NewOrientedGrid creates a grid whose voxel axes follow the given direction
// cosines (row-major 3x3, columns are the voxel axes in physical space).
// A nil direction means identity.
func NewOrientedGrid(data []float64, width, height, depth int, origin, spacing r3.Vec, direction []float64) (*Grid, error) {
	if width <= 0 || height <= 0 || depth <= 0 {
		return nil, errors.NewRangeError("dimensions", [3]int{width, height, depth}, "must be positive")
	}
	if len(data) != width*height*depth {
		return nil, errors.NewDataError("create grid", "", fmt.Sprintf("data has %d values, want %d", len(data), width*height*depth), nil)
	}
	if !(spacing.X > 0 && spacing.Y > 0 && spacing.Z > 0) {
		return nil, errors.NewRangeError("spacing", spacing, "must be positive")
	}
	if direction == nil {
		direction = []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	}
	if len(direction) != 9 {
		return nil, errors.NewDataError("create grid", "", "direction must have 9 entries", nil)
	}

	dir := mat.NewDense(3, 3, append([]float64(nil), direction...))
	scale := mat.NewDiagDense(3, []float64{spacing.X, spacing.Y, spacing.Z})
	toPhysical := mat.NewDense(3, 3, nil)
	toPhysical.Mul(dir, scale)

	toVoxel := mat.NewDense(3, 3, nil)
	if err := toVoxel.Inverse(toPhysical); err != nil {
		return nil, errors.NewDataError("create grid", "", "direction matrix is singular", err)
	}

	return &Grid{
		Data:       data,
		Width:      width,
		Height:     height,
		Depth:      depth,
		Origin:     origin,
		Spacing:    spacing,
		toPhysical: toPhysical,
		toVoxel:    toVoxel,
	}, nil
}

// Dimensions returns the voxel counts along x, y and z.
func (g *Grid) Dimensions() [3]int {
	return [3]int{g.Width, g.Height, g.Depth}
}

// At returns the voxel value at integer indices, or 0 outside the grid.
func (g *Grid) At(x, y, z int) float64 {
	if x < 0 || y < 0 || z < 0 || x >= g.Width || y >= g.Height || z >= g.Depth {
		return 0
	}
	return g.Data[x+y*g.Width+z*g.Width*g.Height]
}

// Set stores v at integer indices. Out-of-range indices are ignored.
func (g *Grid) Set(x, y, z int, v float64) {
	if x < 0 || y < 0 || z < 0 || x >= g.Width || y >= g.Height || z >= g.Depth {
		return
	}
	g.Data[x+y*g.Width+z*g.Width*g.Height] = v
}

// WithData returns a grid with the same geometry holding data.
func (g *Grid) WithData(data []float64) (*Grid, error) {
	if len(data) != len(g.Data) {
		return nil, errors.NewDataError("create grid", "", fmt.Sprintf("data has %d values, want %d", len(data), len(g.Data)), nil)
	}
	out := *g
	out.Data = data
	return &out, nil
}

// PhysicalToVoxel maps physical points to continuous voxel indices.
func (g *Grid) PhysicalToVoxel(points []r3.Vec) []r3.Vec {
	out := make([]r3.Vec, len(points))
	for i, p := range points {
		out[i] = apply(g.toVoxel, r3.Sub(p, g.Origin))
	}
	return out
}

// VoxelToPhysical maps voxel indices to physical points.
func (g *Grid) VoxelToPhysical(indices []r3.Vec) []r3.Vec {
	out := make([]r3.Vec, len(indices))
	for i, idx := range indices {
		out[i] = r3.Add(g.Origin, apply(g.toPhysical, idx))
	}
	return out
}

// Sample returns one value per continuous voxel coordinate.
func (g *Grid) Sample(coords []r3.Vec, mode Interpolation) []float64 {
	out := make([]float64, len(coords))
	for i, c := range coords {
		switch mode {
		case Nearest:
			out[i] = g.At(int(math.Round(c.X)), int(math.Round(c.Y)), int(math.Round(c.Z)))
		default:
			out[i] = g.trilinear(c)
		}
	}
	return out
}

// trilinear blends the eight neighbours of c; neighbours outside the grid
// contribute 0.
func (g *Grid) trilinear(c r3.Vec) float64 {
	x0, y0, z0 := math.Floor(c.X), math.Floor(c.Y), math.Floor(c.Z)
	fx, fy, fz := c.X-x0, c.Y-y0, c.Z-z0
	ix, iy, iz := int(x0), int(y0), int(z0)

	var v float64
	for dz := 0; dz <= 1; dz++ {
		wz := 1 - fz
		if dz == 1 {
			wz = fz
		}
		for dy := 0; dy <= 1; dy++ {
			wy := 1 - fy
			if dy == 1 {
				wy = fy
			}
			for dx := 0; dx <= 1; dx++ {
				wx := 1 - fx
				if dx == 1 {
					wx = fx
				}
				w := wx * wy * wz
				if w == 0 {
					continue
				}
				v += w * g.At(ix+dx, iy+dy, iz+dz)
			}
		}
	}
	return v
}

func apply(m *mat.Dense, v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}
