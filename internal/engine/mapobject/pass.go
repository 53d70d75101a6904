package mapobject

import (
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/frostgard/internal/engine/graphics"
	"github.com/Faultbox/frostgard/internal/logger"
	"github.com/Faultbox/frostgard/pkg/geom"
)

// AddPass registers the map object pass: counter reset, culling dispatch,
// one indirect-count draw, then the async counter readback copies. The pass
// is skipped entirely while nothing is loaded.
//
// depthPyramid holds last frame's min-reduced depth; zero disables the
// occlusion test. With frustum locking on, the constants keep the values of
// the frame the lock was taken in, which is how the lock lets you fly around
// and inspect what the frozen frustum culled.
func (r *Renderer) AddPass(graph *graphics.RenderGraph, globalSet *graphics.DescriptorSet, depthPyramid graphics.ImageID, frameIndex uint8, frustum geom.Frustum, eye mgl32.Vec3) {
	graph.AddPass("mapObjectPass",
		func(b *graphics.PassBuilder) bool {
			if len(r.drawParams) == 0 {
				return false
			}
			if depthPyramid != 0 {
				b.Read(depthPyramid)
			}
			return true
		},
		func(list graphics.CommandList) {
			drawCount := uint32(len(r.drawParams))

			if r.culling.Enabled {
				list.FillBuffer(r.drawCountBuffer, 0, 4, 0)
				list.FillBuffer(r.triangleCountBuffer, 0, 4, 0)
				list.PipelineBarrier(graphics.BarrierTransferToCompute, r.drawCountBuffer)
				list.PipelineBarrier(graphics.BarrierTransferToCompute, r.triangleCountBuffer)

				c := &r.cullingConstants.Resource
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
				if err := r.cullingConstants.Apply(frameIndex); err != nil {
					logger.Log.Error("uploading map object culling constants", zap.Error(err))
				}

				r.cullingSet.BindBuffer("_constants", r.cullingConstants.Buffer(frameIndex))
				if depthPyramid != 0 {
					r.cullingSet.BindImage("_depthPyramid", depthPyramid)
				}

				list.BindDescriptorSet(graphics.SlotGlobal, globalSet)
				list.BindDescriptorSet(graphics.SlotPerPass, r.cullingSet)
				list.Dispatch(CullingPipeline, (drawCount+cullingGroupSize-1)/cullingGroupSize, 1, 1)

				list.PipelineBarrier(graphics.BarrierComputeToIndirect, r.culledArgumentBuffer)
				list.PipelineBarrier(graphics.BarrierComputeToIndirect, r.drawCountBuffer)
			} else {
				// No culling: seed the counters with the full totals so the
				// indirect draw and the stats readback see every record.
				list.FillBuffer(r.drawCountBuffer, 0, 4, drawCount)
				list.FillBuffer(r.triangleCountBuffer, 0, 4, r.numTriangles)
				list.PipelineBarrier(graphics.BarrierTransferToIndirect, r.drawCountBuffer)
			}

			args := r.argumentBuffer
			if r.culling.Enabled {
				args = r.culledArgumentBuffer
			}
			list.BindDescriptorSet(graphics.SlotGlobal, globalSet)
			list.BindDescriptorSet(graphics.SlotPerPass, r.passSet)
			list.SetIndexBuffer(r.indexBuffer, graphics.IndexUint16)
			list.DrawIndexedIndirectCount(args, 0, r.drawCountBuffer, 0, drawCount)

			list.PipelineBarrier(graphics.BarrierTransferToTransferSrc, r.drawCountBuffer)
			list.PipelineBarrier(graphics.BarrierTransferToTransferSrc, r.triangleCountBuffer)
			list.CopyBuffer(r.drawCountReadback, 0, r.drawCountBuffer, 0, 4)
			list.CopyBuffer(r.triangleCountReadback, 0, r.triangleCountBuffer, 0, 4)
			r.statsValid = true
		})
}
