package cmodel

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/frostgard/internal/engine/graphics"
	"github.com/Faultbox/frostgard/internal/engine/view"
	"github.com/Faultbox/frostgard/pkg/formats"
	"github.com/Faultbox/frostgard/pkg/geom"
)

// CullingConstants is the per-frame constant block shared by the culling and
// sort kernels (128 bytes).
type CullingConstants struct {
	FrustumPlanes    [6]mgl32.Vec4
	CameraPosition   mgl32.Vec4
	MaxDrawCount     uint32
	OcclusionEnabled uint32
	Padding          [2]uint32
}

const cullingGroupSize = 32

// CullingPipeline tests one draw call per thread against the view frustum
// and the depth pyramid, compacting survivors into the partition's culled
// argument buffer. Both partitions dispatch the same pipeline against their
// own descriptor sets.
var CullingPipeline = &graphics.ComputePipeline{
	Name:      "cmodelCulling",
	Shader:    "cmodel_culling.comp",
	GroupSize: [3]uint32{cullingGroupSize, 1, 1},
	Kernel:    cullingKernel,
}

// SortPipeline orders the surviving transparent draw calls back-to-front by
// view depth. It runs after the culling dispatch of the transparent
// partition, over the (depth, drawIndex) pairs the culling pass deposited.
var SortPipeline = &graphics.ComputePipeline{
	Name:      "cmodelTransparentSort",
	Shader:    "cmodel_sort.comp",
	GroupSize: [3]uint32{1, 1, 1},
	Kernel:    sortKernel,
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

	draws := graphics.AsSlice[DrawCall](bind.Buffer("_drawCommands"))
	datas := graphics.AsSlice[DrawCallData](bind.Buffer("_drawCallDatas"))
	instances := graphics.AsSlice[InstanceData](bind.Buffer("_instances"))
	bounds := graphics.AsSlice[formats.CullingData](bind.Buffer("_cullingData"))

	draw := draws[index]
	data := datas[draw.FirstInstance]
	instance := instances[data.InstanceID]
	cd := bounds[data.CullingDataID]

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
	culled := graphics.AsSlice[DrawCall](bind.Buffer("_culledDrawCommands"))

	// atomicAdd on GPU; software backends run threads serially.
	slot := drawCount[0]
	drawCount[0]++
	culled[slot] = draw
	triangleCount[0] += draw.IndexCount / 3

	// The transparency sort keys off the instance's view distance.
	if keys := graphics.AsSlice[sortKey](bind.Buffer("_sortKeys")); len(keys) > int(slot) {
		center := box.Center()
		eye := mgl32.Vec3{c.CameraPosition[0], c.CameraPosition[1], c.CameraPosition[2]}
		keys[slot] = sortKey{Depth: center.Sub(eye).Len(), DrawIndex: slot}
	}
}

// sortKernel reorders culled[0:count] by descending depth so transparent
// batches composite back-to-front. Runs as a single logical thread; the GPU
// artifact realizes the same ordering as a bitonic sort.
func sortKernel(thread graphics.KernelThread, bind *graphics.KernelBindings) {
	if thread.X != 0 {
		return
	}
	drawCount := graphics.AsSlice[uint32](bind.Buffer("_drawCount"))
	culled := graphics.AsSlice[DrawCall](bind.Buffer("_culledDrawCommands"))
	keys := graphics.AsSlice[sortKey](bind.Buffer("_sortKeys"))
	if len(drawCount) == 0 {
		return
	}
	count := int(drawCount[0])
	if count > len(culled) {
		count = len(culled)
	}
	if count > len(keys) {
		count = len(keys)
	}
	if count < 2 {
		return
	}

	pairs := keys[:count]
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Depth > pairs[j].Depth })

	scratch := make([]DrawCall, count)
	copy(scratch, culled[:count])
	for i, k := range pairs {
		culled[i] = scratch[k.DrawIndex]
	}
}
