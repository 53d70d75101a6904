package geom

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"
)

// DepthPyramid is read access to a min-reduced closeness mip chain. Level 0
// stores 1 at the near plane falling to 0 at the far plane, and every
// coarser level holds the minimum of its footprint, so one sample yields the
// farthest occluder over the covered screen rectangle.
type DepthPyramid interface {
	Levels() int
	Dimensions(level int) (width, height uint32)
	Load(level int, x, y uint32) float32
}

// FrustumFromPlanes unpacks (nx, ny, nz, d) packed planes, the layout
// constant buffers carry.
func FrustumFromPlanes(planes [6]mgl32.Vec4) Frustum {
	var f Frustum
	for i, p := range planes {
		f[i] = Plane{Normal: mgl32.Vec3{p[0], p[1], p[2]}, D: p[3]}
	}
	return f
}

// OccludedByPyramid tests a world-space box against the depth pyramid. The
// box's corners are projected to a screen rectangle, the mip whose texels
// cover that rectangle in one step is selected, and the box is hidden when
// even its closest corner is farther than the farthest occluder sampled
// there.
func OccludedByPyramid(viewProj mgl32.Mat4, pyramid DepthPyramid, box AABB) bool {
	minUV := mgl32.Vec2{1, 1}
	maxUV := mgl32.Vec2{0, 0}
	boxCloseness := float32(0)

	for corner := 0; corner < 8; corner++ {
		p := mgl32.Vec4{box.Min[0], box.Min[1], box.Min[2], 1}
		if corner&1 != 0 {
			p[0] = box.Max[0]
		}
		if corner&2 != 0 {
			p[1] = box.Max[1]
		}
		if corner&4 != 0 {
			p[2] = box.Max[2]
		}

		clip := viewProj.Mul4x1(p)
		if clip.W() <= 0 {
			// A corner behind the eye makes the projection unusable;
			// accept the box.
			return false
		}
		inv := 1 / clip.W()
		u := clamp01(clip.X()*inv*0.5 + 0.5)
		uvY := clamp01(clip.Y()*inv*0.5 + 0.5)
		closeness := clamp01(1 - (clip.Z()*inv*0.5 + 0.5))

		minUV[0] = minf(minUV[0], u)
		minUV[1] = minf(minUV[1], uvY)
		maxUV[0] = maxf(maxUV[0], u)
		maxUV[1] = maxf(maxUV[1], uvY)
		boxCloseness = maxf(boxCloseness, closeness)
	}

	width0, height0 := pyramid.Dimensions(0)
	spanX := (maxUV[0] - minUV[0]) * float32(width0)
	spanY := (maxUV[1] - minUV[1]) * float32(height0)
	span := maxf(spanX, spanY)
	if span < 1 {
		span = 1
	}

	level := int(gomath.Ceil(gomath.Log2(float64(span))))
	if level < 0 {
		level = 0
	}
	if max := pyramid.Levels() - 1; level > max {
		level = max
	}

	lw, lh := pyramid.Dimensions(level)
	x0 := texel(minUV[0], lw)
	x1 := texel(maxUV[0], lw)
	y0 := texel(minUV[1], lh)
	y1 := texel(maxUV[1], lh)

	occluder := minf(
		minf(pyramid.Load(level, x0, y0), pyramid.Load(level, x1, y0)),
		minf(pyramid.Load(level, x0, y1), pyramid.Load(level, x1, y1)),
	)
	return boxCloseness < occluder
}

func texel(uv float32, size uint32) uint32 {
	if size == 0 {
		return 0
	}
	t := uint32(uv * float32(size))
	if t >= size {
		t = size - 1
	}
	return t
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
