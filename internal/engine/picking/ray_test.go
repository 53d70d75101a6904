package picking

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/frostgard/internal/config"
	"github.com/Faultbox/frostgard/internal/engine/graphics/memdev"
	"github.com/Faultbox/frostgard/internal/engine/mapobject"
	"github.com/Faultbox/frostgard/internal/engine/texture"
	"github.com/Faultbox/frostgard/pkg/formats"
	"github.com/Faultbox/frostgard/pkg/geom"
)

func TestScreenToRayCenter(t *testing.T) {
	proj := mgl32.Perspective(mgl32.DegToRad(60), 1, 0.1, 100)
	view := mgl32.LookAtV(
		mgl32.Vec3{0, 0, 10},
		mgl32.Vec3{0, 0, 0},
		mgl32.Vec3{0, 1, 0})
	inv := proj.Mul4(view).Inv()

	ray := ScreenToRay(400, 300, 800, 600, inv)

	// Through the viewport center the ray runs straight down the view axis.
	if ray.Direction.Sub(mgl32.Vec3{0, 0, -1}).Len() > 1e-4 {
		t.Errorf("center ray direction = %v, want -Z", ray.Direction)
	}
	if ray.Origin.Sub(mgl32.Vec3{0, 0, 9.9}).Len() > 1e-3 {
		t.Errorf("center ray origin = %v, want near plane at z=9.9", ray.Origin)
	}

	// Upper half of the screen tilts the ray upward.
	up := ScreenToRay(400, 100, 800, 600, inv)
	if up.Direction.Y() <= 0 {
		t.Errorf("upper-screen ray direction = %v, want positive Y", up.Direction)
	}
}

func TestIntersectAABB(t *testing.T) {
	box := geom.AABB{Min: mgl32.Vec3{-1, -1, -1}, Max: mgl32.Vec3{1, 1, 1}}

	tests := []struct {
		name  string
		ray   Ray
		wantT float32
		hit   bool
	}{
		{"head on", Ray{mgl32.Vec3{0, 0, 5}, mgl32.Vec3{0, 0, -1}}, 4, true},
		{"miss", Ray{mgl32.Vec3{0, 5, 5}, mgl32.Vec3{0, 0, -1}}, 0, false},
		{"behind", Ray{mgl32.Vec3{0, 0, 5}, mgl32.Vec3{0, 0, 1}}, 0, false},
		{"inside", Ray{mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}}, 0, true},
		{"axis parallel outside slab", Ray{mgl32.Vec3{2, 0, 5}, mgl32.Vec3{0, 0, -1}}, 0, false},
		{"axis parallel inside slab", Ray{mgl32.Vec3{0.5, 0.5, 5}, mgl32.Vec3{0, 0, -1}}, 4, true},
		{"corner grazing", Ray{mgl32.Vec3{-3, -3, -3}, mgl32.Vec3{1, 1, 1}.Normalize()}, 3.4641, true},
	}
	for _, tt := range tests {
		got, hit := tt.ray.IntersectAABB(box)
		if hit != tt.hit {
			t.Errorf("%s: hit = %v, want %v", tt.name, hit, tt.hit)
			continue
		}
		if hit && absf(got-tt.wantT) > 1e-3 {
			t.Errorf("%s: t = %v, want %v", tt.name, got, tt.wantT)
		}
	}
}

func TestIntersectPlaneY(t *testing.T) {
	ray := Ray{Origin: mgl32.Vec3{0, 10, 0}, Direction: mgl32.Vec3{0, -1, 1}.Normalize()}
	p, ok := ray.IntersectPlaneY(0)
	if !ok {
		t.Fatal("expected hit")
	}
	want := mgl32.Vec3{0, 0, 10}
	if p.Sub(want).Len() > 1e-4 {
		t.Errorf("hit point = %v, want %v", p, want)
	}

	if _, ok := ray.IntersectPlaneY(20); ok {
		t.Error("plane above a downward ray should not hit")
	}
	level := Ray{Origin: mgl32.Vec3{0, 10, 0}, Direction: mgl32.Vec3{0, 0, 1}}
	if _, ok := level.IntersectPlaneY(0); ok {
		t.Error("horizontal ray should not hit")
	}
}

func TestPickMapObjectNearest(t *testing.T) {
	dir := t.TempDir()
	writeMapObject(t, dir, "crate")

	dev := memdev.New()
	cfg := config.Default()
	r, err := mapobject.New(dev, texture.NewRegistry(), &cfg.Culling, dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Two placements along -Z. The ray from the origin must report the
	// closer one and its entry distance.
	r.RegisterToBeLoaded("crate", formats.Placement{UniqueID: 1, Position: [3]float32{0, 0, -5}})
	r.RegisterToBeLoaded("crate", formats.Placement{UniqueID: 2, Position: [3]float32{0, 0, -12}})
	if err := r.ExecuteLoad(); err != nil {
		t.Fatalf("ExecuteLoad: %v", err)
	}

	ray := Ray{Origin: mgl32.Vec3{0, 0, 0}, Direction: mgl32.Vec3{0, 0, -1}}
	hit, ok := PickMapObject(ray, r)
	if !ok {
		t.Fatal("expected a hit")
	}
	if absf(hit.Distance-4) > 1e-4 {
		t.Errorf("distance = %v, want 4", hit.Distance)
	}
	if hit.ObjectID != 0 {
		t.Errorf("object = %d, want 0", hit.ObjectID)
	}
	inst := r.Instances()[hit.InstanceID].InstanceMatrix
	pos := inst.Col(3)
	if absf(pos.Z()-(-5)) > 1e-4 {
		t.Errorf("picked instance at z=%v, want -5", pos.Z())
	}

	// A ray pointing away from both placements misses.
	if _, ok := PickMapObject(Ray{Origin: mgl32.Vec3{0, 0, 0}, Direction: mgl32.Vec3{0, 0, 1}}, r); ok {
		t.Error("ray away from the placements should miss")
	}
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// writeMapObject writes a one-mesh, one-batch object whose culling volume is
// a unit box around the origin.
func writeMapObject(t *testing.T, dir, name string) {
	t.Helper()
	le := binary.LittleEndian

	root := &bytes.Buffer{}
	binary.Write(root, le, formats.MapObjectRootMagic)
	binary.Write(root, le, formats.MapObjectRootVersion)
	binary.Write(root, le, uint32(1)) // materials
	binary.Write(root, le, uint16(1))
	binary.Write(root, le, uint16(0))
	binary.Write(root, le, uint32(0))
	binary.Write(root, le, [3]uint32{0x1234, formats.InvalidTextureHash, formats.InvalidTextureHash})
	binary.Write(root, le, uint32(1)) // meshes
	if err := os.WriteFile(filepath.Join(dir, name+formats.MapObjectRootExt), root.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	mesh := &bytes.Buffer{}
	binary.Write(mesh, le, formats.MapObjectMeshMagic)
	binary.Write(mesh, le, formats.MapObjectMeshVersion)
	binary.Write(mesh, le, uint32(formats.RenderFlagExterior))
	binary.Write(mesh, le, uint32(6)) // indices
	for i := 0; i < 6; i++ {
		binary.Write(mesh, le, uint16(i%4))
	}
	binary.Write(mesh, le, uint32(4)) // vertices
	for i := 0; i < 4; i++ {
		binary.Write(mesh, le, [3]float32{float32(i), 0, 0})
		binary.Write(mesh, le, [3]float32{0, 1, 0})
		binary.Write(mesh, le, [2]float32{0, 0})
	}
	binary.Write(mesh, le, uint32(0)) // vertex color sets
	binary.Write(mesh, le, uint32(0)) // triangle data
	binary.Write(mesh, le, uint32(1)) // batches
	binary.Write(mesh, le, uint32(0))
	binary.Write(mesh, le, uint32(6))
	binary.Write(mesh, le, uint32(0))
	binary.Write(mesh, le, [3]float32{-1, -1, -1})
	binary.Write(mesh, le, [3]float32{1, 1, 1})
	binary.Write(mesh, le, float32(1.733))
	if err := os.WriteFile(filepath.Join(dir, name+"_000"+formats.MapObjectMeshExt), mesh.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}
