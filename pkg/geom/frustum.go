package geom

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"
)

// Plane is a plane in constant-normal form: Normal·p + D = 0. Points with
// Normal·p + D >= 0 are on the positive (inside) half-space.
type Plane struct {
	Normal mgl32.Vec3
	D      float32
}

// Normalize scales the plane so the normal has unit length, keeping the
// represented plane identical.
func (p Plane) Normalize() Plane {
	l := p.Normal.Len()
	if l == 0 {
		return p
	}
	return Plane{Normal: p.Normal.Mul(1 / l), D: p.D / l}
}

// Distance returns the signed distance from point to the plane.
func (p Plane) Distance(point mgl32.Vec3) float32 {
	return p.Normal.Dot(point) + p.D
}

// Vec4 packs the plane as (nx, ny, nz, d) for constant-buffer upload.
func (p Plane) Vec4() mgl32.Vec4 {
	return mgl32.Vec4{p.Normal[0], p.Normal[1], p.Normal[2], p.D}
}

// Frustum plane indices.
const (
	PlaneLeft = iota
	PlaneRight
	PlaneBottom
	PlaneTop
	PlaneNear
	PlaneFar
)

// Frustum is the six planes of a view volume, normals pointing inwards.
type Frustum [6]Plane

// ExtractFrustum builds a frustum from a combined view-projection matrix
// using the Gribb/Hartmann row method.
func ExtractFrustum(viewProj mgl32.Mat4) Frustum {
	r0 := viewProj.Row(0)
	r1 := viewProj.Row(1)
	r2 := viewProj.Row(2)
	r3 := viewProj.Row(3)

	planeFromVec4 := func(v mgl32.Vec4) Plane {
		return Plane{Normal: mgl32.Vec3{v[0], v[1], v[2]}, D: v[3]}.Normalize()
	}

	var f Frustum
	f[PlaneLeft] = planeFromVec4(r3.Add(r0))
	f[PlaneRight] = planeFromVec4(r3.Sub(r0))
	f[PlaneBottom] = planeFromVec4(r3.Add(r1))
	f[PlaneTop] = planeFromVec4(r3.Sub(r1))
	f[PlaneNear] = planeFromVec4(r3.Add(r2))
	f[PlaneFar] = planeFromVec4(r3.Sub(r2))
	return f
}

// InfiniteFrustum returns a frustum that contains every finite box. Used when
// culling is disabled or a pass wants an accept-all volume.
func InfiniteFrustum() Frustum {
	inf := float32(gomath.MaxFloat32)
	var f Frustum
	for i := range f {
		f[i] = Plane{Normal: mgl32.Vec3{0, 1, 0}, D: inf}
	}
	return f
}

// ContainsAABB reports whether the box intersects or is inside the frustum.
// A box fully outside any single plane is rejected; boxes straddling planes
// are conservatively accepted.
func (f Frustum) ContainsAABB(box AABB) bool {
	center := box.Center()
	extents := box.Extents()

	for i := range f {
		n := f[i].Normal
		// Projected radius of the box onto the plane normal.
		r := extents[0]*absf(n[0]) + extents[1]*absf(n[1]) + extents[2]*absf(n[2])
		if f[i].Distance(center)+r < 0 {
			return false
		}
	}
	return true
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
