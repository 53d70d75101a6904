// Package geom provides bounding-volume and frustum math used by the
// culling pipeline.
package geom

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"
)

// AABB is an axis-aligned bounding box in min/max representation.
type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// InvertedAABB returns a box that any Extend call will collapse onto.
func InvertedAABB() AABB {
	inf := float32(gomath.Inf(1))
	return AABB{
		Min: mgl32.Vec3{inf, inf, inf},
		Max: mgl32.Vec3{-inf, -inf, -inf},
	}
}

// Extend grows the box to contain p.
func (b *AABB) Extend(p mgl32.Vec3) {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] {
			b.Min[i] = p[i]
		}
		if p[i] > b.Max[i] {
			b.Max[i] = p[i]
		}
	}
}

// Merge grows the box to contain other.
func (b *AABB) Merge(other AABB) {
	b.Extend(other.Min)
	b.Extend(other.Max)
}

// Center returns the box midpoint.
func (b AABB) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Extents returns the half-size of the box per axis.
func (b AABB) Extents() mgl32.Vec3 {
	return b.Max.Sub(b.Center())
}

// SphereRadius returns the radius of the bounding sphere enclosing the box.
func (b AABB) SphereRadius() float32 {
	return b.Max.Sub(b.Min).Len() / 2
}

// Transform returns the axis-aligned box enclosing this box transformed by m.
// Uses the center/extents form: the center is transformed directly and the
// extents are multiplied by the absolute value of the upper 3x3 of m, which
// yields the tightest axis-aligned fit without visiting all eight corners.
func (b AABB) Transform(m mgl32.Mat4) AABB {
	center := b.Center()
	extents := b.Extents()

	tc := mgl32.TransformCoordinate(center, m)

	abs := func(v float32) float32 {
		if v < 0 {
			return -v
		}
		return v
	}

	var te mgl32.Vec3
	for row := 0; row < 3; row++ {
		te[row] = abs(m.At(row, 0))*extents[0] +
			abs(m.At(row, 1))*extents[1] +
			abs(m.At(row, 2))*extents[2]
	}

	return AABB{Min: tc.Sub(te), Max: tc.Add(te)}
}
