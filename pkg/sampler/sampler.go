// Package sampler builds the physical sample grids of 2D patches.
//
// A patch of W x H pixels centred on an anchor is laid on the plane of its
// orientation:
//
//	axial     spans axes 1 and 2, axis 3 fixed
//	sagittal  spans axes 2 and 3, axis 1 fixed
//	frontal   spans axes 1 and 3, axis 2 fixed
//
// Each in-plane axis is sampled linearly from anchor - size/2*spacing to
// anchor + size/2*spacing. Points are returned row-major: the first in-plane
// axis varies fastest, so the values reshape to an H x W matrix. No bounds
// checking is done; the volume sampler decides what lies outside.
package sampler

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"mripatches/internal/models"
	"mripatches/pkg/errors"
)

// Grid returns the width*height physical coordinates of one patch.
func Grid(anchor r3.Vec, width, height int, spacing [2]float64, o models.Orientation) ([]r3.Vec, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.NewRangeError("patch_size", [2]int{width, height}, "both dimensions must be positive")
	}

	var u0, v0 float64
	switch o {
	case models.Axial:
		u0, v0 = anchor.X, anchor.Y
	case models.Sagittal:
		u0, v0 = anchor.Y, anchor.Z
	case models.Frontal:
		u0, v0 = anchor.X, anchor.Z
	default:
		return nil, errors.NewConfigError("patch_pixdim."+o.String(), "unknown orientation")
	}

	us := linspace(u0, width, spacing[0])
	vs := linspace(v0, height, spacing[1])

	points := make([]r3.Vec, 0, width*height)
	for _, v := range vs {
		for _, u := range us {
			var p r3.Vec
			switch o {
			case models.Axial:
				p = r3.Vec{X: u, Y: v, Z: anchor.Z}
			case models.Sagittal:
				p = r3.Vec{X: anchor.X, Y: u, Z: v}
			case models.Frontal:
				p = r3.Vec{X: u, Y: anchor.Y, Z: v}
			}
			points = append(points, p)
		}
	}
	return points, nil
}

// Grids returns one coordinate set per orientation configured in spec, in
// channel order.
func Grids(anchor r3.Vec, spec models.PatchSpec) ([][]r3.Vec, error) {
	if spec.IsZero() {
		return nil, errors.NewConfigError("patch_info", "patch spec is not initialised")
	}
	w, h := spec.Size()
	orients := spec.Orientations()
	out := make([][]r3.Vec, 0, len(orients))
	for _, o := range orients {
		spacing, err := spec.Spacing(o)
		if err != nil {
			return nil, err
		}
		pts, err := Grid(anchor, w, h, spacing, o)
		if err != nil {
			return nil, err
		}
		out = append(out, pts)
	}
	return out, nil
}

// linspace returns n evenly spaced values over [c - n/2*s, c + n/2*s].
// A single sample sits at the lower bound.
func linspace(c float64, n int, s float64) []float64 {
	half := float64(n) / 2 * s
	if n == 1 {
		return []float64{c - half}
	}
	return floats.Span(make([]float64, n), c-half, c+half)
}
