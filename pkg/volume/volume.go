// Package volume provides access to 3D medical volumes: opening them from
// disk, transforming between physical and voxel space and sampling values at
// continuous voxel coordinates.
package volume

import (
	"os"

	"gonum.org/v1/gonum/spatial/r3"

	"mripatches/pkg/errors"
)

// Interpolation selects how values between voxel centres are computed.
type Interpolation int

const (
	// Nearest returns the value of the closest voxel (order 0). Used for
	// label volumes so that class ids are never blended.
	Nearest Interpolation = iota
	// Linear blends the eight surrounding voxels (order 1).
	Linear
)

func (i Interpolation) String() string {
	switch i {
	case Nearest:
		return "nearest"
	case Linear:
		return "linear"
	default:
		return "unknown"
	}
}

// Volume is a 3D image positioned in physical space.
type Volume interface {
	// Dimensions returns the voxel counts along x, y and z.
	Dimensions() [3]int

	// PhysicalToVoxel maps physical points to continuous voxel indices.
	PhysicalToVoxel(points []r3.Vec) []r3.Vec

	// VoxelToPhysical maps voxel indices to physical points.
	VoxelToPhysical(indices []r3.Vec) []r3.Vec

	// Sample returns one value per continuous voxel coordinate. Coordinates
	// outside the volume yield 0.
	Sample(coords []r3.Vec, mode Interpolation) []float64
}

// Opener opens a volume by path.
type Opener interface {
	Open(path string) (Volume, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(path string) (Volume, error)

// Open calls f(path).
func (f OpenerFunc) Open(path string) (Volume, error) {
	return f(path)
}

// MapOpener serves in-memory volumes keyed by path.
type MapOpener map[string]Volume

// Open returns the volume registered under path.
func (m MapOpener) Open(path string) (Volume, error) {
	v, ok := m[path]
	if !ok {
		return nil, errors.NewDataError("open volume", path, "", os.ErrNotExist)
	}
	return v, nil
}
