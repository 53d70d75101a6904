package camera

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/frostgard/pkg/geom"
)

func TestForwardDefaultLooksDownNegativeZ(t *testing.T) {
	c := NewFreeLook(16.0 / 9.0)
	c.Yaw, c.Pitch = 0, 0

	fwd := c.Forward()
	if fwd.Sub(mgl32.Vec3{0, 0, -1}).Len() > 1e-5 {
		t.Errorf("default forward should be -Z, got %v", fwd)
	}
}

func TestLookClampsPitch(t *testing.T) {
	c := NewFreeLook(1)
	c.Look(0, -10000)
	if c.Pitch >= 1.58 {
		t.Errorf("pitch not clamped: %v", c.Pitch)
	}
	c.Look(0, 20000)
	if c.Pitch <= -1.58 {
		t.Errorf("pitch not clamped: %v", c.Pitch)
	}
}

func TestFrustumContainsLookedAtPoint(t *testing.T) {
	c := NewFreeLook(16.0 / 9.0)
	c.Position = mgl32.Vec3{0, 0, 10}
	c.Yaw, c.Pitch = 0, 0 // looking towards -Z, at the origin

	f := c.Frustum()
	inFront := geom.AABB{Min: mgl32.Vec3{-1, -1, -1}, Max: mgl32.Vec3{1, 1, 1}}
	if !f.ContainsAABB(inFront) {
		t.Error("frustum should contain box in front of camera")
	}

	behind := geom.AABB{Min: mgl32.Vec3{-1, -1, 20}, Max: mgl32.Vec3{1, 1, 22}}
	if f.ContainsAABB(behind) {
		t.Error("frustum should reject box behind camera")
	}
}
