// Package mapobject renders static world structures: buildings, bridges,
// props. Geometry from every loaded object is packed into shared GPU buffers
// and drawn through GPU-culled indirect draws, one argument record per
// render batch per instance.
package mapobject

import (
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/frostgard/internal/config"
	"github.com/Faultbox/frostgard/internal/engine/debug"
	"github.com/Faultbox/frostgard/internal/engine/graphics"
	"github.com/Faultbox/frostgard/internal/engine/texture"
	"github.com/Faultbox/frostgard/internal/logger"
	"github.com/Faultbox/frostgard/pkg/formats"
	"github.com/Faultbox/frostgard/pkg/geom"
)

// InvalidVertexColorOffset marks a batch whose mesh carries no vertex colors.
const InvalidVertexColorOffset uint32 = 0xFFFFFFFF

// DrawParameters is one indexed indirect argument record (20 bytes), the
// exact layout the indirect draw consumes. FirstInstance doubles as the
// record's own index so the culling kernel can find its lookup data.
type DrawParameters struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	VertexOffset  uint32
	FirstInstance uint32
}

// InstanceData is the per-placement transform (64 bytes).
type InstanceData struct {
	InstanceMatrix mgl32.Mat4
}

// InstanceLookupData routes one draw record to its instance, material
// parameters and culling volume (28 bytes).
type InstanceLookupData struct {
	InstanceID      uint16
	MaterialParamID uint16
	CullingDataID   uint16
	VertexColor0ID  uint16
	VertexColor1ID  uint16
	Padding         uint16

	VertexOffset       uint32
	VertexColor0Offset uint32
	VertexColor1Offset uint32
	LoadedObjectID     uint32
}

// Material is the GPU material record (24 bytes). Texture slots hold name
// hashes resolved by the backend's texture array.
type Material struct {
	TextureIDs   [3]uint32
	MaterialType uint32
	Unlit        uint32
	AlphaTestVal float32
}

// MaterialParameters is the per-batch material indirection (8 bytes).
type MaterialParameters struct {
	MaterialID  uint32
	ExteriorLit uint32
}

// batchTemplate is everything needed to clone a render batch for a new
// instance: the draw record minus FirstInstance, plus the lookup fields.
type batchTemplate struct {
	draw            DrawParameters
	cullingDataID   uint32
	materialParamID uint32

	vertexOffset       uint32
	vertexColor0Offset uint32
	vertexColor1Offset uint32
}

// LoadedMapObject is one parsed object shared by all its placements.
type LoadedMapObject struct {
	Name     string
	NameHash uint32

	batches     []batchTemplate
	instanceIDs []uint32
}

// InstanceCount returns how many placements reference this object.
func (l *LoadedMapObject) InstanceCount() int { return len(l.instanceIDs) }

type loadRequest struct {
	name      string
	nameHash  uint32
	placement formats.Placement
}

// Renderer owns all map object GPU state. Not safe for concurrent use; every
// method belongs to the render thread, matching the Device contract.
type Renderer struct {
	device   graphics.Device
	textures *texture.Registry
	culling  *config.CullingConfig
	assetDir string
	drawer   *debug.Drawer

	// Registration state. The unique ID counter saturates so replayed chunk
	// streams cannot wrap it back to zero and duplicate a placement.
	uniqueIDCounter map[uint32]uint8
	toBeLoaded      []loadRequest

	loaded          []LoadedMapObject
	nameHashToIndex map[uint32]uint32

	// CPU copies of the packed GPU arrays, rebuilt buffers mirror these.
	vertices       []formats.MapObjectVertex
	indices        []uint16
	vertexColors   []uint32
	instances      []InstanceData
	instanceLookup []InstanceLookupData
	materials      []Material
	materialParams []MaterialParameters
	cullingData    []formats.CullingData
	drawParams     []DrawParameters

	numTriangles uint32

	vertexBuffer         graphics.BufferID
	indexBuffer          graphics.BufferID
	vertexColorBuffer    graphics.BufferID
	instanceBuffer       graphics.BufferID
	instanceLookupBuffer graphics.BufferID
	materialBuffer       graphics.BufferID
	materialParamsBuffer graphics.BufferID
	cullingDataBuffer    graphics.BufferID
	argumentBuffer       graphics.BufferID
	culledArgumentBuffer graphics.BufferID

	drawCountBuffer       graphics.BufferID
	triangleCountBuffer   graphics.BufferID
	drawCountReadback     graphics.BufferID
	triangleCountReadback graphics.BufferID

	cullingConstants *graphics.Uniform[CullingConstants]
	passSet          *graphics.DescriptorSet
	cullingSet       *graphics.DescriptorSet

	// statsValid flips once a frame has copied counters into the readback
	// buffers; until then the stats report the full pre-cull totals.
	statsValid         bool
	survivingDrawCalls uint32
	survivingTriangles uint32
}

// New creates the renderer and its persistent GPU resources. drawer may be
// nil to disable bounding box visualization.
func New(device graphics.Device, textures *texture.Registry, culling *config.CullingConfig, assetDir string, drawer *debug.Drawer) (*Renderer, error) {
	r := &Renderer{
		device:   device,
		textures: textures,
		culling:  culling,
		assetDir: assetDir,
		drawer:   drawer,

		uniqueIDCounter: make(map[uint32]uint8),
		nameHashToIndex: make(map[uint32]uint32),

		passSet:    graphics.NewDescriptorSet("mapObjectPass"),
		cullingSet: graphics.NewDescriptorSet("mapObjectCulling"),
	}

	var err error
	if r.cullingConstants, err = graphics.NewUniform[CullingConstants](device, "mapObjectCullingConstants"); err != nil {
		return nil, err
	}
	if err = r.createPersistentBuffers(); err != nil {
		return nil, err
	}
	return r, nil
}

// RegisterToBeLoaded queues one placement for the next ExecuteLoad. The
// placement is copied; callers may reuse their record. Placements whose
// unique ID was seen before are dropped.
func (r *Renderer) RegisterToBeLoaded(name string, placement formats.Placement) {
	count := r.uniqueIDCounter[placement.UniqueID]
	if count < 255 {
		r.uniqueIDCounter[placement.UniqueID] = count + 1
	}
	if count != 0 {
		return
	}
	r.toBeLoaded = append(r.toBeLoaded, loadRequest{
		name:      name,
		nameHash:  formats.NameHash(name),
		placement: placement,
	})
}

// RegisterFromChunk queues every map object placement of a chunk.
func (r *Renderer) RegisterFromChunk(chunk *formats.Chunk) {
	for _, p := range chunk.MapObjectPlacements {
		name := chunk.Name(p.NameID)
		if name == "" {
			logger.Log.Warn("map object placement with unresolvable name id",
				zap.Uint32("nameID", p.NameID),
				zap.Uint32("uniqueID", p.UniqueID))
			continue
		}
		r.RegisterToBeLoaded(name, p)
	}
}

// Update records per-frame debug geometry and refreshes the culling stats
// from the async counter readback. Readbacks lag the GPU by up to two
// frames; a value that has never been written reads as the full totals.
func (r *Renderer) Update(deltaTime float32) {
	if r.culling.DrawBoundingBoxes && r.drawer != nil {
		for i := range r.instanceLookup {
			lookup := &r.instanceLookup[i]
			cd := r.cullingData[lookup.CullingDataID]
			box := geom.AABB{
				Min: mgl32.Vec3(cd.MinBoundingBox),
				Max: mgl32.Vec3(cd.MaxBoundingBox),
			}.Transform(r.instances[lookup.InstanceID].InstanceMatrix)
			r.drawer.DrawAABB(box.Min, box.Max, debug.ColorYellow)
		}
	}

	r.survivingDrawCalls = uint32(len(r.drawParams))
	r.survivingTriangles = r.numTriangles
	if r.culling.Enabled && r.statsValid {
		if v, ok := r.readCounter(r.drawCountReadback); ok {
			r.survivingDrawCalls = v
		}
		if v, ok := r.readCounter(r.triangleCountReadback); ok {
			r.survivingTriangles = v
		}
	}
}

func (r *Renderer) readCounter(id graphics.BufferID) (uint32, bool) {
	mem, err := r.device.MapBuffer(id)
	if err != nil {
		return 0, false
	}
	defer r.device.UnmapBuffer(id)
	values := graphics.AsSlice[uint32](mem)
	if len(values) == 0 {
		return 0, false
	}
	return values[0], true
}

// Clear drops every loaded object, instance and packed array and queues the
// geometry buffers for deferred destruction. Persistent counter buffers and
// constants survive; the renderer is immediately reusable.
func (r *Renderer) Clear() {
	r.uniqueIDCounter = make(map[uint32]uint8)
	r.nameHashToIndex = make(map[uint32]uint32)
	r.toBeLoaded = nil
	r.loaded = nil

	r.vertices = nil
	r.indices = nil
	r.vertexColors = nil
	r.instances = nil
	r.instanceLookup = nil
	r.materials = nil
	r.materialParams = nil
	r.cullingData = nil
	r.drawParams = nil
	r.numTriangles = 0
	r.statsValid = false
	r.survivingDrawCalls = 0
	r.survivingTriangles = 0

	for _, id := range []*graphics.BufferID{
		&r.vertexBuffer, &r.indexBuffer, &r.vertexColorBuffer,
		&r.instanceBuffer, &r.instanceLookupBuffer,
		&r.materialBuffer, &r.materialParamsBuffer, &r.cullingDataBuffer,
		&r.argumentBuffer, &r.culledArgumentBuffer,
	} {
		if *id != 0 {
			r.device.QueueDestroyBuffer(*id)
			*id = 0
		}
	}
}

// NumLoaded returns the number of distinct loaded objects.
func (r *Renderer) NumLoaded() int { return len(r.loaded) }

// Loaded returns the loaded object records.
func (r *Renderer) Loaded() []LoadedMapObject { return r.loaded }

// Instances returns the per-placement transforms.
func (r *Renderer) Instances() []InstanceData { return r.instances }

// DrawCalls returns the pre-cull indirect argument records.
func (r *Renderer) DrawCalls() []DrawParameters { return r.drawParams }

// InstanceLookup returns the per-draw lookup records.
func (r *Renderer) InstanceLookup() []InstanceLookupData { return r.instanceLookup }

// CullingBounds returns the bounding volumes, one entry per render batch.
func (r *Renderer) CullingBounds() []formats.CullingData { return r.cullingData }

// NumTriangles returns the pre-cull triangle total.
func (r *Renderer) NumTriangles() uint32 { return r.numTriangles }

// NumSurvivingDrawCalls returns the draw count after culling, as of the most
// recently completed readback.
func (r *Renderer) NumSurvivingDrawCalls() uint32 { return r.survivingDrawCalls }

// NumSurvivingTriangles returns the triangle count after culling, as of the
// most recently completed readback.
func (r *Renderer) NumSurvivingTriangles() uint32 { return r.survivingTriangles }

// placementMatrix builds the world transform for a placement: rotation from
// Euler degrees applied XYZ, then translation.
func placementMatrix(p formats.Placement) mgl32.Mat4 {
	rot := mgl32.AnglesToQuat(
		mgl32.DegToRad(p.Rotation[0]),
		mgl32.DegToRad(p.Rotation[1]),
		mgl32.DegToRad(p.Rotation[2]),
		mgl32.XYZ,
	)
	return mgl32.Translate3D(p.Position[0], p.Position[1], p.Position[2]).Mul4(rot.Mat4())
}
