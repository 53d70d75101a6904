package cmodel

import (
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/frostgard/internal/engine/graphics"
	"github.com/Faultbox/frostgard/internal/logger"
	"github.com/Faultbox/frostgard/pkg/geom"
)

// AddPass registers the complex model passes: the opaque partition first,
// then the transparent partition with its back-to-front sort. Each partition
// gets its own counter reset, culling dispatch and one indirect-count draw.
//
// The frame's bone deform matrices are uploaded here, into the buffer slot
// owned by frameIndex, before either pass records.
func (r *Renderer) AddPass(graph *graphics.RenderGraph, globalSet *graphics.DescriptorSet, depthPyramid graphics.ImageID, frameIndex uint8, frustum geom.Frustum, eye mgl32.Vec3) {
	r.uploadBoneDeforms(frameIndex)
	r.addPartitionPass(graph, &r.opaque, globalSet, depthPyramid, frameIndex, frustum, eye)
	r.addPartitionPass(graph, &r.transparent, globalSet, depthPyramid, frameIndex, frustum, eye)
}

func (r *Renderer) addPartitionPass(graph *graphics.RenderGraph, p *partition, globalSet *graphics.DescriptorSet, depthPyramid graphics.ImageID, frameIndex uint8, frustum geom.Frustum, eye mgl32.Vec3) {
	graph.AddPass(p.name+"Pass",
		func(b *graphics.PassBuilder) bool {
			if len(p.drawCalls) == 0 {
				return false
			}
			if depthPyramid != 0 {
				b.Read(depthPyramid)
			}
			return true
		},
		func(list graphics.CommandList) {
			drawCount := uint32(len(p.drawCalls))

			if r.culling.Enabled {
				list.FillBuffer(p.drawCountBuffer, 0, 4, 0)
				list.FillBuffer(p.triangleCountBuffer, 0, 4, 0)
				list.PipelineBarrier(graphics.BarrierTransferToCompute, p.drawCountBuffer)
				list.PipelineBarrier(graphics.BarrierTransferToCompute, p.triangleCountBuffer)

				c := &p.constants.Resource
				if !r.culling.LockFrustum {
					for i := range frustum {
						c.FrustumPlanes[i] = frustum[i].Vec4()
					}
					c.CameraPosition = eye.Vec4(1)
				}
				c.MaxDrawCount = drawCount
				c.OcclusionEnabled = 0
				if r.culling.OcclusionEnabled && depthPyramid != 0 {
					c.OcclusionEnabled = 1
				}
				if err := p.constants.Apply(frameIndex); err != nil {
					logger.Log.Error("uploading culling constants",
						zap.String("partition", p.name), zap.Error(err))
				}

				p.cullingSet.BindBuffer("_constants", p.constants.Buffer(frameIndex))
				if depthPyramid != 0 {
					p.cullingSet.BindImage("_depthPyramid", depthPyramid)
				}

				list.BindDescriptorSet(graphics.SlotGlobal, globalSet)
				list.BindDescriptorSet(graphics.SlotPerPass, p.cullingSet)
				list.Dispatch(CullingPipeline, (drawCount+cullingGroupSize-1)/cullingGroupSize, 1, 1)

				list.PipelineBarrier(graphics.BarrierComputeToCompute, p.culledArgumentBuffer)
				list.PipelineBarrier(graphics.BarrierComputeToCompute, p.drawCountBuffer)

				if p.transparent {
					list.Dispatch(SortPipeline, 1, 1, 1)
					list.PipelineBarrier(graphics.BarrierComputeToIndirect, p.culledArgumentBuffer)
				}
				list.PipelineBarrier(graphics.BarrierComputeToIndirect, p.drawCountBuffer)
			} else {
				list.FillBuffer(p.drawCountBuffer, 0, 4, drawCount)
				list.FillBuffer(p.triangleCountBuffer, 0, 4, p.numTriangles)
				list.PipelineBarrier(graphics.BarrierTransferToIndirect, p.drawCountBuffer)
			}

			args := p.argumentBuffer
			if r.culling.Enabled {
				args = p.culledArgumentBuffer
			}
			list.BindDescriptorSet(graphics.SlotGlobal, globalSet)
			list.BindDescriptorSet(graphics.SlotPerPass, p.drawSet)
			list.SetIndexBuffer(r.indexBuffer, graphics.IndexUint16)
			list.DrawIndexedIndirectCount(args, 0, p.drawCountBuffer, 0, drawCount)

			list.PipelineBarrier(graphics.BarrierTransferToTransferSrc, p.drawCountBuffer)
			list.PipelineBarrier(graphics.BarrierTransferToTransferSrc, p.triangleCountBuffer)
			list.CopyBuffer(p.drawCountReadback, 0, p.drawCountBuffer, 0, 4)
			list.CopyBuffer(p.triangleCountReadback, 0, p.triangleCountBuffer, 0, 4)
			p.statsValid = true
		})
}
