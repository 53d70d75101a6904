package mapobject

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/frostgard/internal/engine/graphics"
	"github.com/Faultbox/frostgard/internal/engine/view"
	"github.com/Faultbox/frostgard/pkg/formats"
	"github.com/Faultbox/frostgard/pkg/geom"
)

// CullingConstants is the per-frame constant block of the culling kernel
// (128 bytes). Frustum planes are packed (nx, ny, nz, d).
type CullingConstants struct {
	FrustumPlanes    [6]mgl32.Vec4
	CameraPosition   mgl32.Vec4
	MaxDrawCount     uint32
	OcclusionEnabled uint32
	Padding          [2]uint32
}

// cullingGroupSize is the X workgroup size the dispatch math assumes.
const cullingGroupSize = 32

// CullingPipeline tests one draw record per thread against the view frustum
// and the depth pyramid, compacting survivors into the culled argument
// buffer. Hardware backends compile the shader; software backends run the
// kernel, which states the identical semantics.
var CullingPipeline = &graphics.ComputePipeline{
	Name:      "mapObjectCulling",
	Shader:    "mapobject_culling.comp",
	GroupSize: [3]uint32{cullingGroupSize, 1, 1},
	Kernel:    cullingKernel,
}

func cullingKernel(thread graphics.KernelThread, bind *graphics.KernelBindings) {
	constants := graphics.AsSlice[CullingConstants](bind.Buffer("_constants"))
	if len(constants) == 0 {
		return
	}
	c := &constants[0]

	index := thread.X
	if index >= c.MaxDrawCount {
		return
	}

	draws := graphics.AsSlice[DrawParameters](bind.Buffer("_drawCommands"))
	lookups := graphics.AsSlice[InstanceLookupData](bind.Buffer("_instanceLookup"))
	instances := graphics.AsSlice[InstanceData](bind.Buffer("_instances"))
	bounds := graphics.AsSlice[formats.CullingData](bind.Buffer("_cullingData"))

	draw := draws[index]
	lookup := lookups[draw.FirstInstance]
	instance := instances[lookup.InstanceID]
	cd := bounds[lookup.CullingDataID]

	box := geom.AABB{
		Min: mgl32.Vec3(cd.MinBoundingBox),
		Max: mgl32.Vec3(cd.MaxBoundingBox),
	}.Transform(instance.InstanceMatrix)

	if !geom.FrustumFromPlanes(c.FrustumPlanes).ContainsAABB(box) {
		return
	}
	if c.OcclusionEnabled != 0 {
		pyramid := bind.Image("_depthPyramid")
		viewData := graphics.AsSlice[view.Constants](bind.Buffer("_viewData"))
		if pyramid != nil && len(viewData) > 0 &&
			geom.OccludedByPyramid(viewData[0].ViewProjection, pyramid, box) {
			return
		}
	}

	drawCount := graphics.AsSlice[uint32](bind.Buffer("_drawCount"))
	triangleCount := graphics.AsSlice[uint32](bind.Buffer("_triangleCount"))
	culled := graphics.AsSlice[DrawParameters](bind.Buffer("_culledDrawCommands"))

	// atomicAdd on GPU; software backends run threads serially.
	slot := drawCount[0]
	drawCount[0]++
	culled[slot] = draw
	triangleCount[0] += draw.IndexCount / 3
}
