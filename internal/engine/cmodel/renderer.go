// Package cmodel renders complex models: skinned, optionally animated
// doodads, creatures and characters. Geometry is packed into shared GPU
// buffers; draw calls are partitioned opaque/transparent at load time,
// GPU-culled per partition and the transparent survivors sorted
// back-to-front before the indirect draw.
package cmodel

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

// InvalidBoneDeformOffset marks a static instance with no deform range.
const InvalidBoneDeformOffset uint32 = 0xFFFFFFFF

// DrawCall is one indexed indirect argument record (20 bytes). FirstInstance
// holds the record's index within its partition, which is how the culling
// kernel and the vertex stage find the DrawCallData.
type DrawCall struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	VertexOffset  uint32
	FirstInstance uint32
}

// DrawCallData is the per-draw auxiliary record (16 bytes).
type DrawCallData struct {
	InstanceID        uint32
	CullingDataID     uint32
	TextureUnitOffset uint32
	NumTextureUnits   uint32
}

// InstanceData is the per-placement GPU record (80 bytes). BoneDeformOffset
// indexes the bone matrix arena, InvalidBoneDeformOffset for static models.
type InstanceData struct {
	InstanceMatrix   mgl32.Mat4
	ModelID          uint32
	BoneDeformOffset uint32
	Animated         uint32
	Padding          uint32
}

// TextureUnitData is the GPU texture unit record (16 bytes). Texture slots
// hold name hashes resolved by the backend's texture array.
type TextureUnitData struct {
	BlendingMode uint32
	MaterialType uint32
	TextureIDs   [2]uint32
}

// sortKey is one (view depth, draw index) pair the transparency sort orders
// by descending depth (8 bytes).
type sortKey struct {
	Depth     float32
	DrawIndex uint32
}

type batchTemplate struct {
	draw              DrawCall
	textureUnitOffset uint32
	numTextureUnits   uint32
	transparent       bool
}

// LoadedComplexModel is one parsed model shared by all its placements. The
// parsed file is retained for animation track sampling.
type LoadedComplexModel struct {
	Name     string
	NameHash uint32
	Model    *formats.CModel

	CullingDataID uint32

	batches     []batchTemplate
	instanceIDs []uint32
}

// InstanceCount returns how many placements reference this model.
func (l *LoadedComplexModel) InstanceCount() int { return len(l.instanceIDs) }

type loadRequest struct {
	name      string
	nameHash  uint32
	placement formats.Placement
}

// partition is the per-(opaque|transparent) half of the draw pipeline: its
// own argument buffers, counters, constants and descriptor set.
type partition struct {
	name        string
	transparent bool

	drawCalls     []DrawCall
	drawCallDatas []DrawCallData
	numTriangles  uint32

	argumentBuffer       graphics.BufferID
	culledArgumentBuffer graphics.BufferID
	drawCallDataBuffer   graphics.BufferID
	sortKeyBuffer        graphics.BufferID

	drawCountBuffer       graphics.BufferID
	triangleCountBuffer   graphics.BufferID
	drawCountReadback     graphics.BufferID
	triangleCountReadback graphics.BufferID

	constants  *graphics.Uniform[CullingConstants]
	cullingSet *graphics.DescriptorSet
	drawSet    *graphics.DescriptorSet

	statsValid         bool
	survivingDraws     uint32
	survivingTriangles uint32
}

// Renderer owns all complex model GPU and animation state. Apart from the
// animation request queue, every method belongs to the render thread.
type Renderer struct {
	device   graphics.Device
	textures *texture.Registry
	culling  *config.CullingConfig
	assetDir string
	drawer   *debug.Drawer

	uniqueIDCounter map[uint32]uint8
	toBeLoaded      []loadRequest

	loaded          []LoadedComplexModel
	nameHashToIndex map[uint32]uint32

	vertices     []formats.CModelVertex
	indices      []uint16
	instances    []InstanceData
	textureUnits []TextureUnitData
	cullingData  []formats.CullingData

	vertexBuffer      graphics.BufferID
	indexBuffer       graphics.BufferID
	instanceBuffer    graphics.BufferID
	textureUnitBuffer graphics.BufferID
	cullingDataBuffer graphics.BufferID

	// Bone deform arena: CPU mirror plus one GPU buffer per in-flight frame
	// so frame N's upload cannot stomp what frame N-1 still reads.
	boneDeforms       []mgl32.Mat4
	boneAlloc         *RangeAllocator
	boneDeformBuffers [graphics.FrameCount]graphics.BufferID

	animations         map[uint32]*instanceAnimation
	requests           RequestQueue
	onSequenceFinished FinishedHandler

	opaque      partition
	transparent partition
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
		animations:      make(map[uint32]*instanceAnimation),
		boneAlloc:       NewRangeAllocator(0),
	}
	r.opaque = partition{name: "cmodelOpaque"}
	r.transparent = partition{name: "cmodelTransparent", transparent: true}

	for _, p := range []*partition{&r.opaque, &r.transparent} {
		p.cullingSet = graphics.NewDescriptorSet(p.name + "Culling")
		p.drawSet = graphics.NewDescriptorSet(p.name + "Draw")
		var err error
		if p.constants, err = graphics.NewUniform[CullingConstants](device, p.name+"CullingConstants"); err != nil {
			return nil, err
		}
		if err = r.createPartitionCounters(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// SetSequenceFinishedHandler injects the completion event receiver. Must be
// set before the first Update; events fire on the render thread.
func (r *Renderer) SetSequenceFinishedHandler(h FinishedHandler) {
	r.onSequenceFinished = h
}

// RequestAnimation enqueues an animation state change. Safe to call from any
// goroutine; applied at the next Update.
func (r *Renderer) RequestAnimation(req AnimationRequest) {
	r.requests.Enqueue(req)
}

// RegisterToBeLoaded queues one placement for the next ExecuteLoad. The
// placement is copied. Placements whose unique ID was seen before are
// dropped.
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

// RegisterFromChunk queues every complex model placement of a chunk.
func (r *Renderer) RegisterFromChunk(chunk *formats.Chunk) {
	for _, p := range chunk.ComplexModelPlacements {
		name := chunk.Name(p.NameID)
		if name == "" {
			logger.Log.Warn("complex model placement with unresolvable name id",
				zap.Uint32("nameID", p.NameID),
				zap.Uint32("uniqueID", p.UniqueID))
			continue
		}
		r.RegisterToBeLoaded(name, p)
	}
}

// Update drains the animation request queue, advances playing animations,
// records debug geometry and refreshes the culling stats from the async
// counter readbacks.
func (r *Renderer) Update(deltaTime float32) {
	r.applyRequests()
	r.tickAnimations(deltaTime)

	if r.culling.DrawBoundingBoxes && r.drawer != nil {
		for i := range r.instances {
			inst := &r.instances[i]
			cd := r.cullingData[r.loaded[inst.ModelID].CullingDataID]
			box := geom.AABB{
				Min: mgl32.Vec3(cd.MinBoundingBox),
				Max: mgl32.Vec3(cd.MaxBoundingBox),
			}.Transform(inst.InstanceMatrix)
			r.drawer.DrawAABB(box.Min, box.Max, debug.ColorBlue)
		}
	}

	for _, p := range []*partition{&r.opaque, &r.transparent} {
		p.survivingDraws = uint32(len(p.drawCalls))
		p.survivingTriangles = p.numTriangles
		if r.culling.Enabled && p.statsValid {
			if v, ok := r.readCounter(p.drawCountReadback); ok {
				p.survivingDraws = v
			}
			if v, ok := r.readCounter(p.triangleCountReadback); ok {
				p.survivingTriangles = v
			}
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

// Clear drops every loaded model, instance, animation and packed array and
// queues the geometry buffers for deferred destruction. Counter buffers and
// constants survive; the renderer is immediately reusable.
func (r *Renderer) Clear() {
	r.uniqueIDCounter = make(map[uint32]uint8)
	r.nameHashToIndex = make(map[uint32]uint32)
	r.toBeLoaded = nil
	r.loaded = nil

	r.vertices = nil
	r.indices = nil
	r.instances = nil
	r.textureUnits = nil
	r.cullingData = nil

	r.boneDeforms = nil
	r.boneAlloc.Reset(0)
	r.animations = make(map[uint32]*instanceAnimation)
	r.requests.DrainAll()

	for _, id := range []*graphics.BufferID{
		&r.vertexBuffer, &r.indexBuffer, &r.instanceBuffer,
		&r.textureUnitBuffer, &r.cullingDataBuffer,
	} {
		if *id != 0 {
			r.device.QueueDestroyBuffer(*id)
			*id = 0
		}
	}
	for i := range r.boneDeformBuffers {
		if r.boneDeformBuffers[i] != 0 {
			r.device.QueueDestroyBuffer(r.boneDeformBuffers[i])
			r.boneDeformBuffers[i] = 0
		}
	}

	for _, p := range []*partition{&r.opaque, &r.transparent} {
		p.drawCalls = nil
		p.drawCallDatas = nil
		p.numTriangles = 0
		p.statsValid = false
		p.survivingDraws = 0
		p.survivingTriangles = 0
		for _, id := range []*graphics.BufferID{
			&p.argumentBuffer, &p.culledArgumentBuffer,
			&p.drawCallDataBuffer, &p.sortKeyBuffer,
		} {
			if *id != 0 {
				r.device.QueueDestroyBuffer(*id)
				*id = 0
			}
		}
	}
}

// NumLoaded returns the number of distinct loaded models.
func (r *Renderer) NumLoaded() int { return len(r.loaded) }

// Loaded returns the loaded model records.
func (r *Renderer) Loaded() []LoadedComplexModel { return r.loaded }

// Instances returns the per-placement GPU records.
func (r *Renderer) Instances() []InstanceData { return r.instances }

// OpaqueDrawCalls returns the pre-cull opaque argument records.
func (r *Renderer) OpaqueDrawCalls() []DrawCall { return r.opaque.drawCalls }

// TransparentDrawCalls returns the pre-cull transparent argument records.
func (r *Renderer) TransparentDrawCalls() []DrawCall { return r.transparent.drawCalls }

// CullingBounds returns the bounding volumes, one entry per loaded model.
func (r *Renderer) CullingBounds() []formats.CullingData { return r.cullingData }

// NumTriangles returns the pre-cull triangle total across both partitions.
func (r *Renderer) NumTriangles() uint32 {
	return r.opaque.numTriangles + r.transparent.numTriangles
}

// NumSurvivingDrawCalls returns the post-cull draw count across both
// partitions, as of the most recently completed readbacks.
func (r *Renderer) NumSurvivingDrawCalls() uint32 {
	return r.opaque.survivingDraws + r.transparent.survivingDraws
}

// NumSurvivingTriangles returns the post-cull triangle count across both
// partitions.
func (r *Renderer) NumSurvivingTriangles() uint32 {
	return r.opaque.survivingTriangles + r.transparent.survivingTriangles
}

// AnimationState returns an instance's play state and progress, for tests
// and debug overlays. Render thread only.
func (r *Renderer) AnimationState(instanceID uint32) (PlayState, float32, bool) {
	inst, ok := r.animations[instanceID]
	if !ok {
		return StateStopped, 0, false
	}
	return inst.state, inst.progress, true
}

// BoneDeform returns one composed bone matrix of an animated instance.
func (r *Renderer) BoneDeform(instanceID uint32, bone uint32) (mgl32.Mat4, bool) {
	inst, ok := r.animations[instanceID]
	if !ok || bone >= inst.boneCount {
		return mgl32.Mat4{}, false
	}
	return r.boneDeforms[inst.boneOffset+bone], true
}

func placementMatrix(p formats.Placement) mgl32.Mat4 {
	rot := mgl32.AnglesToQuat(
		mgl32.DegToRad(p.Rotation[0]),
		mgl32.DegToRad(p.Rotation[1]),
		mgl32.DegToRad(p.Rotation[2]),
		mgl32.XYZ,
	)
	return mgl32.Translate3D(p.Position[0], p.Position[1], p.Position[2]).Mul4(rot.Mat4())
}
