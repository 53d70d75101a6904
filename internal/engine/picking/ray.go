// Package picking converts screen positions to world-space rays and tests
// them against the bounding volumes of registered model instances. All tests
// run on the CPU against the renderers' instance tables.
package picking

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/frostgard/internal/engine/cmodel"
	"github.com/Faultbox/frostgard/internal/engine/mapobject"
	"github.com/Faultbox/frostgard/pkg/geom"
)

// Ray is a half-line in world space. Direction is unit length.
type Ray struct {
	Origin    mgl32.Vec3
	Direction mgl32.Vec3
}

// ScreenToRay builds a world-space ray through the given pixel. invViewProj
// is the inverse of the camera's view-projection matrix, width and height
// the viewport size in pixels.
func ScreenToRay(x, y, width, height float32, invViewProj mgl32.Mat4) Ray {
	// Pixel to NDC. Screen y grows downward, NDC y upward.
	ndcX := x/width*2 - 1
	ndcY := 1 - y/height*2

	near := unproject(mgl32.Vec3{ndcX, ndcY, -1}, invViewProj)
	far := unproject(mgl32.Vec3{ndcX, ndcY, 1}, invViewProj)

	return Ray{
		Origin:    near,
		Direction: far.Sub(near).Normalize(),
	}
}

func unproject(ndc mgl32.Vec3, invViewProj mgl32.Mat4) mgl32.Vec3 {
	v := invViewProj.Mul4x1(mgl32.Vec4{ndc.X(), ndc.Y(), ndc.Z(), 1})
	if v.W() != 0 {
		return mgl32.Vec3{v.X() / v.W(), v.Y() / v.W(), v.Z() / v.W()}
	}
	return v.Vec3()
}

// IntersectAABB returns the ray parameter of the nearest intersection with
// box, using the slab method. A ray starting inside the box hits at t = 0.
func (r Ray) IntersectAABB(box geom.AABB) (float32, bool) {
	tMin := float32(gomath.Inf(-1))
	tMax := float32(gomath.Inf(1))

	for i := 0; i < 3; i++ {
		if r.Direction[i] == 0 {
			if r.Origin[i] < box.Min[i] || r.Origin[i] > box.Max[i] {
				return 0, false
			}
			continue
		}
		inv := 1 / r.Direction[i]
		t0 := (box.Min[i] - r.Origin[i]) * inv
		t1 := (box.Max[i] - r.Origin[i]) * inv
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t0 > tMin {
			tMin = t0
		}
		if t1 < tMax {
			tMax = t1
		}
		if tMin > tMax {
			return 0, false
		}
	}
	if tMax < 0 {
		return 0, false
	}
	if tMin < 0 {
		return 0, true
	}
	return tMin, true
}

// IntersectPlaneY returns where the ray crosses the horizontal plane y = h.
func (r Ray) IntersectPlaneY(h float32) (mgl32.Vec3, bool) {
	if r.Direction.Y() == 0 {
		return mgl32.Vec3{}, false
	}
	t := (h - r.Origin.Y()) / r.Direction.Y()
	if t < 0 {
		return mgl32.Vec3{}, false
	}
	return r.Origin.Add(r.Direction.Mul(t)), true
}

// Hit identifies the instance a ray struck.
type Hit struct {
	// InstanceID indexes the owning renderer's instance table.
	InstanceID uint32
	// ObjectID indexes the owning renderer's loaded table.
	ObjectID uint32
	// Distance is the ray parameter at the entry point.
	Distance float32
}

// PickMapObject intersects the ray with every map object draw record's
// transformed bounding box and returns the nearest hit. A draw record shares
// its instance with the other batches of the same placement, so the same
// instance may be tested more than once; the nearest entry wins either way.
func PickMapObject(ray Ray, r *mapobject.Renderer) (Hit, bool) {
	instances := r.Instances()
	bounds := r.CullingBounds()

	best := Hit{Distance: float32(gomath.Inf(1))}
	found := false
	for _, lookup := range r.InstanceLookup() {
		local := geom.AABB{
			Min: mgl32.Vec3(bounds[lookup.CullingDataID].MinBoundingBox),
			Max: mgl32.Vec3(bounds[lookup.CullingDataID].MaxBoundingBox),
		}
		box := local.Transform(instances[lookup.InstanceID].InstanceMatrix)
		t, ok := ray.IntersectAABB(box)
		if !ok || t >= best.Distance {
			continue
		}
		best = Hit{
			InstanceID: uint32(lookup.InstanceID),
			ObjectID:   lookup.LoadedObjectID,
			Distance:   t,
		}
		found = true
	}
	return best, found
}

// PickComplexModel intersects the ray with every complex model instance's
// transformed bounding box and returns the nearest hit.
func PickComplexModel(ray Ray, r *cmodel.Renderer) (Hit, bool) {
	loaded := r.Loaded()
	bounds := r.CullingBounds()

	best := Hit{Distance: float32(gomath.Inf(1))}
	found := false
	for i, inst := range r.Instances() {
		cullingID := loaded[inst.ModelID].CullingDataID
		local := geom.AABB{
			Min: mgl32.Vec3(bounds[cullingID].MinBoundingBox),
			Max: mgl32.Vec3(bounds[cullingID].MaxBoundingBox),
		}
		box := local.Transform(inst.InstanceMatrix)
		t, ok := ray.IntersectAABB(box)
		if !ok || t >= best.Distance {
			continue
		}
		best = Hit{
			InstanceID: uint32(i),
			ObjectID:   inst.ModelID,
			Distance:   t,
		}
		found = true
	}
	return best, found
}
