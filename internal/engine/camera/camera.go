// Package camera provides the free-look camera feeding the view constants
// and culling frustum.
package camera

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/frostgard/pkg/geom"
)

// FreeLook is a fly camera: position plus yaw/pitch, perspective projection.
type FreeLook struct {
	Position mgl32.Vec3
	Yaw      float32 // radians, 0 looks down -Z
	Pitch    float32 // radians, positive looks up

	FovY   float32 // radians
	Aspect float32
	Near   float32
	Far    float32

	MoveSpeed float32
	LookSpeed float32
}

// NewFreeLook creates a camera with sensible defaults for world viewing.
func NewFreeLook(aspect float32) *FreeLook {
	return &FreeLook{
		Position:  mgl32.Vec3{0, 10, 30},
		FovY:      mgl32.DegToRad(65),
		Aspect:    aspect,
		Near:      0.1,
		Far:       2000,
		MoveSpeed: 20,
		LookSpeed: 0.003,
	}
}

// Forward returns the unit view direction.
func (c *FreeLook) Forward() mgl32.Vec3 {
	cy, sy := cosf(c.Yaw), sinf(c.Yaw)
	cp, sp := cosf(c.Pitch), sinf(c.Pitch)
	return mgl32.Vec3{-sy * cp, sp, -cy * cp}
}

// Right returns the unit right vector.
func (c *FreeLook) Right() mgl32.Vec3 {
	return c.Forward().Cross(mgl32.Vec3{0, 1, 0}).Normalize()
}

// Move translates the camera in its local frame.
func (c *FreeLook) Move(forward, right, up float32) {
	c.Position = c.Position.
		Add(c.Forward().Mul(forward * c.MoveSpeed)).
		Add(c.Right().Mul(right * c.MoveSpeed))
	c.Position[1] += up * c.MoveSpeed
}

// Look applies a mouse delta to yaw and pitch, clamping pitch short of the
// poles.
func (c *FreeLook) Look(dx, dy float32) {
	c.Yaw -= dx * c.LookSpeed
	c.Pitch -= dy * c.LookSpeed

	limit := float32(gomath.Pi/2 - 0.01)
	if c.Pitch > limit {
		c.Pitch = limit
	}
	if c.Pitch < -limit {
		c.Pitch = -limit
	}
}

// ViewMatrix returns the world-to-view transform.
func (c *FreeLook) ViewMatrix() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position, c.Position.Add(c.Forward()), mgl32.Vec3{0, 1, 0})
}

// ProjectionMatrix returns the perspective projection.
func (c *FreeLook) ProjectionMatrix() mgl32.Mat4 {
	return mgl32.Perspective(c.FovY, c.Aspect, c.Near, c.Far)
}

// ViewProjection returns projection * view.
func (c *FreeLook) ViewProjection() mgl32.Mat4 {
	return c.ProjectionMatrix().Mul4(c.ViewMatrix())
}

// Frustum extracts the current culling frustum.
func (c *FreeLook) Frustum() geom.Frustum {
	return geom.ExtractFrustum(c.ViewProjection())
}

func sinf(v float32) float32 { return float32(gomath.Sin(float64(v))) }
func cosf(v float32) float32 { return float32(gomath.Cos(float64(v))) }
