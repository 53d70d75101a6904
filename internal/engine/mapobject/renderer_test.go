package mapobject

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/frostgard/internal/config"
	"github.com/Faultbox/frostgard/internal/engine/graphics"
	"github.com/Faultbox/frostgard/internal/engine/graphics/memdev"
	"github.com/Faultbox/frostgard/internal/engine/texture"
	"github.com/Faultbox/frostgard/pkg/formats"
	"github.com/Faultbox/frostgard/pkg/geom"
)

func writeRootFile(t *testing.T, path string, numMaterials, numMeshes uint32) {
	t.Helper()
	buf := &bytes.Buffer{}
	le := binary.LittleEndian
	binary.Write(buf, le, formats.MapObjectRootMagic)
	binary.Write(buf, le, formats.MapObjectRootVersion)
	binary.Write(buf, le, numMaterials)
	for i := uint32(0); i < numMaterials; i++ {
		binary.Write(buf, le, uint16(1)) // materialType
		binary.Write(buf, le, uint16(0)) // transparencyMode
		binary.Write(buf, le, uint32(0)) // flags
		binary.Write(buf, le, [3]uint32{0x1234, formats.InvalidTextureHash, formats.InvalidTextureHash})
	}
	binary.Write(buf, le, numMeshes)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

// writeMeshFile writes one mesh with numBatches batches of two triangles
// each, all sharing a unit box around the origin as their culling volume.
func writeMeshFile(t *testing.T, path string, numBatches uint32) {
	t.Helper()
	buf := &bytes.Buffer{}
	le := binary.LittleEndian
	binary.Write(buf, le, formats.MapObjectMeshMagic)
	binary.Write(buf, le, formats.MapObjectMeshVersion)
	binary.Write(buf, le, uint32(formats.RenderFlagExterior))

	indexCount := numBatches * 6
	binary.Write(buf, le, indexCount)
	for i := uint32(0); i < indexCount; i++ {
		binary.Write(buf, le, uint16(i%4))
	}

	binary.Write(buf, le, uint32(4)) // vertices
	for i := 0; i < 4; i++ {
		binary.Write(buf, le, [3]float32{float32(i), 0, 0}) // position
		binary.Write(buf, le, [3]float32{0, 1, 0})          // normal
		binary.Write(buf, le, [2]float32{0, 0})             // uv
	}

	binary.Write(buf, le, uint32(0)) // vertex color sets
	binary.Write(buf, le, uint32(0)) // triangle data

	binary.Write(buf, le, numBatches)
	for i := uint32(0); i < numBatches; i++ {
		binary.Write(buf, le, i*6)       // startIndex
		binary.Write(buf, le, uint32(6)) // indexCount
		binary.Write(buf, le, uint32(0)) // materialID
	}
	for i := uint32(0); i < numBatches; i++ {
		binary.Write(buf, le, [3]float32{-1, -1, -1})
		binary.Write(buf, le, [3]float32{1, 1, 1})
		binary.Write(buf, le, float32(1.733))
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func writeMapObject(t *testing.T, dir, name string, numMeshes, batchesPerMesh uint32) {
	t.Helper()
	base := filepath.Join(dir, name)
	writeRootFile(t, base+formats.MapObjectRootExt, 1, numMeshes)
	for i := uint32(0); i < numMeshes; i++ {
		writeMeshFile(t, fmt.Sprintf("%s_%03d%s", base, i, formats.MapObjectMeshExt), batchesPerMesh)
	}
}

func newTestRenderer(t *testing.T, culling *config.CullingConfig) (*Renderer, *memdev.Device, string) {
	t.Helper()
	dir := t.TempDir()
	dev := memdev.New()
	r, err := New(dev, texture.NewRegistry(), culling, dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r, dev, dir
}

func placement(uniqueID uint32, x float32) formats.Placement {
	return formats.Placement{UniqueID: uniqueID, Position: [3]float32{x, 0, 0}}
}

// rejectAllFrustum is a frustum every finite box is outside of.
func rejectAllFrustum() geom.Frustum {
	var f geom.Frustum
	for i := range f {
		f[i] = geom.Plane{Normal: mgl32.Vec3{0, 1, 0}, D: -1e9}
	}
	return f
}

func TestExecuteLoadDedup(t *testing.T) {
	cfg := config.Default().Culling
	r, _, dir := newTestRenderer(t, &cfg)
	writeMapObject(t, dir, "tower", 1, 2)

	r.RegisterToBeLoaded("tower", placement(100, 0))
	r.RegisterToBeLoaded("tower", placement(200, 50))
	// Duplicate unique ID must be dropped.
	r.RegisterToBeLoaded("tower", placement(100, 999))

	if err := r.ExecuteLoad(); err != nil {
		t.Fatalf("ExecuteLoad: %v", err)
	}

	if r.NumLoaded() != 1 {
		t.Fatalf("expected 1 loaded object, got %d", r.NumLoaded())
	}
	if got := r.Loaded()[0].InstanceCount(); got != 2 {
		t.Errorf("expected 2 instances on the object, got %d", got)
	}
	if len(r.Instances()) != 2 {
		t.Errorf("expected 2 instance transforms, got %d", len(r.Instances()))
	}
	// Two instances of one mesh with two batches.
	if len(r.DrawCalls()) != 4 {
		t.Errorf("expected 4 draw records, got %d", len(r.DrawCalls()))
	}
	if r.NumTriangles() != 8 {
		t.Errorf("expected 8 triangles, got %d", r.NumTriangles())
	}

	// A draw record's FirstInstance is its own index.
	for i, d := range r.DrawCalls() {
		if d.FirstInstance != uint32(i) {
			t.Errorf("draw %d: FirstInstance = %d", i, d.FirstInstance)
		}
		if d.InstanceCount != 1 {
			t.Errorf("draw %d: InstanceCount = %d", i, d.InstanceCount)
		}
	}
}

func TestExecuteLoadReloadAfterRegisterAgain(t *testing.T) {
	cfg := config.Default().Culling
	r, _, dir := newTestRenderer(t, &cfg)
	writeMapObject(t, dir, "tower", 1, 1)

	r.RegisterToBeLoaded("tower", placement(1, 0))
	if err := r.ExecuteLoad(); err != nil {
		t.Fatal(err)
	}
	// Second batch of placements reuses the already-parsed object.
	r.RegisterToBeLoaded("tower", placement(2, 10))
	if err := r.ExecuteLoad(); err != nil {
		t.Fatal(err)
	}

	if r.NumLoaded() != 1 {
		t.Fatalf("expected the object to be parsed once, got %d", r.NumLoaded())
	}
	if len(r.Instances()) != 2 {
		t.Errorf("expected 2 instances, got %d", len(r.Instances()))
	}
}

func TestExecuteLoadFailureRollsBack(t *testing.T) {
	cfg := config.Default().Culling
	r, _, dir := newTestRenderer(t, &cfg)

	// Root promises two meshes but only one exists.
	base := filepath.Join(dir, "broken")
	writeRootFile(t, base+formats.MapObjectRootExt, 1, 2)
	writeMeshFile(t, base+"_000"+formats.MapObjectMeshExt, 1)

	writeMapObject(t, dir, "ok", 1, 1)

	r.RegisterToBeLoaded("broken", placement(1, 0))
	r.RegisterToBeLoaded("ok", placement(2, 0))
	if err := r.ExecuteLoad(); err != nil {
		t.Fatalf("ExecuteLoad: %v", err)
	}

	if r.NumLoaded() != 1 || r.Loaded()[0].Name != "ok" {
		t.Fatalf("expected only the healthy object to load, got %d", r.NumLoaded())
	}
	if len(r.Instances()) != 1 {
		t.Errorf("the failed placement must be dropped, got %d instances", len(r.Instances()))
	}
	// The broken object's partial geometry must not survive.
	if len(r.vertices) != 4 || len(r.cullingData) != 1 {
		t.Errorf("rolled-back arrays leaked: %d vertices, %d culling records",
			len(r.vertices), len(r.cullingData))
	}
}

func TestRegisterFromChunkSkipsBadNames(t *testing.T) {
	cfg := config.Default().Culling
	r, _, dir := newTestRenderer(t, &cfg)
	writeMapObject(t, dir, "hut", 1, 1)

	chunk := &formats.Chunk{
		Names: []string{"hut"},
		MapObjectPlacements: []formats.Placement{
			{NameID: 0, UniqueID: 1},
			{NameID: 99, UniqueID: 2}, // out of range, skipped
		},
	}
	r.RegisterFromChunk(chunk)
	if err := r.ExecuteLoad(); err != nil {
		t.Fatal(err)
	}
	if len(r.Instances()) != 1 {
		t.Errorf("expected 1 instance, got %d", len(r.Instances()))
	}
}

func runCullingFrame(t *testing.T, r *Renderer, dev *memdev.Device, frustum geom.Frustum) {
	t.Helper()
	dev.BeginFrame()
	graph := graphics.NewRenderGraph(dev)
	globalSet := graphics.NewDescriptorSet("global")
	r.AddPass(graph, globalSet, 0, 0, frustum, mgl32.Vec3{})
	if err := graph.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	dev.EndFrame()
	r.Update(1.0 / 60.0)
}

func TestCullingAcceptAll(t *testing.T) {
	cfg := config.Default().Culling
	cfg.OcclusionEnabled = false
	r, dev, dir := newTestRenderer(t, &cfg)
	writeMapObject(t, dir, "keep", 1, 2)
	r.RegisterToBeLoaded("keep", placement(1, 0))
	r.RegisterToBeLoaded("keep", placement(2, 5))
	if err := r.ExecuteLoad(); err != nil {
		t.Fatal(err)
	}

	runCullingFrame(t, r, dev, geom.InfiniteFrustum())

	if got := r.NumSurvivingDrawCalls(); got != 4 {
		t.Errorf("expected all 4 draws to survive, got %d", got)
	}
	if got := r.NumSurvivingTriangles(); got != 8 {
		t.Errorf("expected 8 surviving triangles, got %d", got)
	}
	// The indirect draw consumed the compacted records.
	if dev.FrameDraws() != 4 {
		t.Errorf("expected 4 indirect draws, got %d", dev.FrameDraws())
	}
}

func TestCullingRejectAll(t *testing.T) {
	cfg := config.Default().Culling
	cfg.OcclusionEnabled = false
	r, dev, dir := newTestRenderer(t, &cfg)
	writeMapObject(t, dir, "gone", 1, 1)
	r.RegisterToBeLoaded("gone", placement(1, 0))
	if err := r.ExecuteLoad(); err != nil {
		t.Fatal(err)
	}

	runCullingFrame(t, r, dev, rejectAllFrustum())

	if got := r.NumSurvivingDrawCalls(); got != 0 {
		t.Errorf("expected 0 surviving draws, got %d", got)
	}
	if dev.FrameDraws() != 0 {
		t.Errorf("expected no indirect draws, got %d", dev.FrameDraws())
	}
}

func TestCullingDisabledDrawsEverything(t *testing.T) {
	cfg := config.Default().Culling
	cfg.Enabled = false
	r, dev, dir := newTestRenderer(t, &cfg)
	writeMapObject(t, dir, "all", 1, 3)
	r.RegisterToBeLoaded("all", placement(1, 0))
	if err := r.ExecuteLoad(); err != nil {
		t.Fatal(err)
	}

	// The frustum is ignored when culling is off.
	runCullingFrame(t, r, dev, rejectAllFrustum())

	if dev.FrameDraws() != 3 {
		t.Errorf("expected 3 indirect draws with culling off, got %d", dev.FrameDraws())
	}
	if got := r.NumSurvivingDrawCalls(); got != 3 {
		t.Errorf("expected stats to report full totals, got %d", got)
	}
}

func TestStatsDefaultBeforeFirstReadback(t *testing.T) {
	cfg := config.Default().Culling
	r, _, dir := newTestRenderer(t, &cfg)
	writeMapObject(t, dir, "obj", 1, 2)
	r.RegisterToBeLoaded("obj", placement(1, 0))
	if err := r.ExecuteLoad(); err != nil {
		t.Fatal(err)
	}

	// No pass has executed yet; stats fall back to pre-cull totals.
	r.Update(1.0 / 60.0)
	if got := r.NumSurvivingDrawCalls(); got != 2 {
		t.Errorf("expected pre-cull total 2, got %d", got)
	}
	if got := r.NumSurvivingTriangles(); got != 4 {
		t.Errorf("expected pre-cull total 4, got %d", got)
	}
}

func TestLockFrustumKeepsConstants(t *testing.T) {
	cfg := config.Default().Culling
	cfg.OcclusionEnabled = false
	r, dev, dir := newTestRenderer(t, &cfg)
	writeMapObject(t, dir, "fort", 1, 1)
	r.RegisterToBeLoaded("fort", placement(1, 0))
	if err := r.ExecuteLoad(); err != nil {
		t.Fatal(err)
	}

	// First frame culls with an accept-all frustum, then the lock is taken.
	runCullingFrame(t, r, dev, geom.InfiniteFrustum())
	cfg.LockFrustum = true

	// With the lock held a reject-all frustum must not replace the constants.
	runCullingFrame(t, r, dev, rejectAllFrustum())
	if dev.FrameDraws() != 1 {
		t.Errorf("locked frustum should keep culling with the old planes, got %d draws", dev.FrameDraws())
	}
}

func TestClear(t *testing.T) {
	cfg := config.Default().Culling
	r, dev, dir := newTestRenderer(t, &cfg)
	writeMapObject(t, dir, "gone", 2, 2)
	r.RegisterToBeLoaded("gone", placement(1, 0))
	if err := r.ExecuteLoad(); err != nil {
		t.Fatal(err)
	}
	if r.NumLoaded() != 1 {
		t.Fatal("setup failed")
	}

	r.Clear()

	if r.NumLoaded() != 0 || len(r.DrawCalls()) != 0 || len(r.Instances()) != 0 {
		t.Error("Clear left registry state behind")
	}
	if r.NumTriangles() != 0 {
		t.Errorf("expected 0 triangles after Clear, got %d", r.NumTriangles())
	}

	// An empty renderer registers no pass.
	graph := graphics.NewRenderGraph(dev)
	r.AddPass(graph, graphics.NewDescriptorSet("global"), 0, 0, geom.InfiniteFrustum(), mgl32.Vec3{})
	if graph.PassCount() != 0 {
		t.Errorf("expected no pass after Clear, got %d", graph.PassCount())
	}

	// The renderer is reusable after Clear.
	r.RegisterToBeLoaded("gone", placement(1, 0))
	if err := r.ExecuteLoad(); err != nil {
		t.Fatal(err)
	}
	if r.NumLoaded() != 1 {
		t.Errorf("expected reload after Clear to work, got %d objects", r.NumLoaded())
	}
}

func TestBufferRebuildQueuesOldGeneration(t *testing.T) {
	cfg := config.Default().Culling
	r, dev, dir := newTestRenderer(t, &cfg)
	writeMapObject(t, dir, "a", 1, 1)
	writeMapObject(t, dir, "b", 1, 1)

	dev.BeginFrame()
	r.RegisterToBeLoaded("a", placement(1, 0))
	if err := r.ExecuteLoad(); err != nil {
		t.Fatal(err)
	}
	alive := dev.AliveBufferCount()

	// A second load rebuilds every geometry buffer; the old generation must
	// stay alive until its fence retires.
	r.RegisterToBeLoaded("b", placement(2, 10))
	if err := r.ExecuteLoad(); err != nil {
		t.Fatal(err)
	}
	if dev.AliveBufferCount() <= alive {
		t.Error("expected old buffer generation to still be alive")
	}

	// Two frames later the deferred destroys retire.
	for i := 0; i < graphics.FrameCount+1; i++ {
		dev.BeginFrame()
		dev.EndFrame()
	}
	if dev.AliveBufferCount() >= alive+10 {
		t.Errorf("expected retired buffers to be freed, %d alive", dev.AliveBufferCount())
	}
}
