// Package renderer assembles the frame. It owns the device, the shared view
// constants, the depth pyramid, and the render graph the model renderers
// record their passes into: depth clear, map objects, complex models, then
// the pyramid rebuild consumed by next frame's occlusion tests.
package renderer

import (
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/frostgard/internal/config"
	"github.com/Faultbox/frostgard/internal/engine/camera"
	"github.com/Faultbox/frostgard/internal/engine/cmodel"
	"github.com/Faultbox/frostgard/internal/engine/debug"
	"github.com/Faultbox/frostgard/internal/engine/graphics"
	"github.com/Faultbox/frostgard/internal/engine/mapobject"
	"github.com/Faultbox/frostgard/internal/engine/texture"
	"github.com/Faultbox/frostgard/internal/engine/view"
	"github.com/Faultbox/frostgard/internal/logger"
	"github.com/Faultbox/frostgard/pkg/formats"
)

// Stats aggregates the model renderers' per-frame counters. Surviving counts
// come from the async counter readbacks and default to the pre-cull totals
// until the first populated readback lands.
type Stats struct {
	DrawCalls          uint32
	Triangles          uint32
	SurvivingDrawCalls uint32
	SurvivingTriangles uint32
}

// Renderer drives the frame loop over a graphics.Device.
type Renderer struct {
	device   graphics.Device
	cfg      *config.Config
	textures *texture.Registry
	drawer   *debug.Drawer

	MapObjects *mapobject.Renderer
	Models     *cmodel.Renderer

	viewConstants *graphics.Uniform[view.Constants]
	globalSet     *graphics.DescriptorSet

	sceneDepth     graphics.ImageID
	depthPyramid   graphics.ImageID
	pyramidSampler graphics.SamplerID
	pyramidSet     *graphics.DescriptorSet
	reduceLevel    graphics.BufferID

	// frameIndex flips between 0 and FrameCount-1 and selects the
	// double-buffered constant buffers for the frame being recorded.
	frameIndex      uint8
	framesRendered  uint64
	frameSemaphores [graphics.FrameCount]graphics.SemaphoreID
}

// New creates the renderer and its sub-renderers over a device. The device's
// backing context must already exist.
func New(device graphics.Device, cfg *config.Config) (*Renderer, error) {
	r := &Renderer{
		device:     device,
		cfg:        cfg,
		textures:   texture.NewRegistry(),
		drawer:     debug.NewDrawer(),
		globalSet:  graphics.NewDescriptorSet("global"),
		pyramidSet: graphics.NewDescriptorSet("depthPyramid"),
	}

	var err error
	if r.viewConstants, err = graphics.NewUniform[view.Constants](device, "viewConstants"); err != nil {
		return nil, fmt.Errorf("view constants: %w", err)
	}

	width, height := uint32(cfg.Graphics.Width), uint32(cfg.Graphics.Height)
	if width == 0 {
		width = 1
	}
	if height == 0 {
		height = 1
	}
	levels := pyramidLevels(width, height)

	if r.sceneDepth, err = device.CreateImage(graphics.ImageDesc{
		Name:   "sceneDepth",
		Width:  width,
		Height: height,
		Levels: 1,
		Format: graphics.FormatDepth32Float,
	}); err != nil {
		return nil, fmt.Errorf("scene depth: %w", err)
	}
	if r.depthPyramid, err = device.CreateImage(graphics.ImageDesc{
		Name:   "depthPyramid",
		Width:  width,
		Height: height,
		Levels: levels,
		Format: graphics.FormatR32Float,
	}); err != nil {
		return nil, fmt.Errorf("depth pyramid: %w", err)
	}
	if r.pyramidSampler, err = device.CreateSampler(graphics.SamplerDesc{
		Name:      "pyramidMin",
		Reduction: graphics.ReductionMin,
		MinLOD:    0,
		MaxLOD:    float32(levels - 1),
	}); err != nil {
		return nil, fmt.Errorf("pyramid sampler: %w", err)
	}
	if r.reduceLevel, err = device.CreateBuffer(graphics.BufferDesc{
		Name:  "pyramidReduceLevel",
		Size:  4,
		Usage: graphics.UsageStorage | graphics.UsageTransferDst,
	}); err != nil {
		return nil, fmt.Errorf("pyramid reduce level: %w", err)
	}

	r.pyramidSet.BindImage("_sceneDepth", r.sceneDepth)
	r.pyramidSet.BindImage("_depthPyramid", r.depthPyramid)
	r.pyramidSet.BindBuffer("_reduceLevel", r.reduceLevel)
	r.globalSet.BindSampler("_pyramidSampler", r.pyramidSampler)

	if r.MapObjects, err = mapobject.New(device, r.textures, &cfg.Culling, cfg.Data.AssetDir, r.drawer); err != nil {
		return nil, fmt.Errorf("map object renderer: %w", err)
	}
	if r.Models, err = cmodel.New(device, r.textures, &cfg.Culling, cfg.Data.AssetDir, r.drawer); err != nil {
		return nil, fmt.Errorf("complex model renderer: %w", err)
	}

	for i := range r.frameSemaphores {
		r.frameSemaphores[i] = device.CreateSemaphore()
	}

	logger.Log.Info("renderer created",
		zap.Uint32("width", width),
		zap.Uint32("height", height),
		zap.Uint32("pyramidLevels", levels))
	return r, nil
}

// Textures returns the shared texture registry.
func (r *Renderer) Textures() *texture.Registry { return r.textures }

// Drawer returns the debug line accumulator.
func (r *Renderer) Drawer() *debug.Drawer { return r.drawer }

// DepthPyramid returns the occlusion pyramid image.
func (r *Renderer) DepthPyramid() graphics.ImageID { return r.depthPyramid }

// FrameIndex returns the index the next recorded frame will use.
func (r *Renderer) FrameIndex() uint8 { return r.frameIndex }

// LoadChunk parses a chunk file and registers its placements with both model
// renderers. Loading happens on the next ExecuteLoads.
func (r *Renderer) LoadChunk(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading chunk: %w", err)
	}
	chunk, err := formats.ParseChunk(data)
	if err != nil {
		return fmt.Errorf("parsing chunk %s: %w", path, err)
	}

	r.MapObjects.RegisterFromChunk(chunk)
	r.Models.RegisterFromChunk(chunk)

	logger.Log.Info("chunk registered",
		zap.String("path", path),
		zap.Int("mapObjects", len(chunk.MapObjectPlacements)),
		zap.Int("complexModels", len(chunk.ComplexModelPlacements)))
	return nil
}

// ExecuteLoads drains both renderers' pending registrations and rebuilds
// their GPU buffers.
func (r *Renderer) ExecuteLoads() error {
	if err := r.MapObjects.ExecuteLoad(); err != nil {
		return fmt.Errorf("loading map objects: %w", err)
	}
	if err := r.Models.ExecuteLoad(); err != nil {
		return fmt.Errorf("loading complex models: %w", err)
	}
	return nil
}

// Update advances per-frame CPU state: animation requests and playback, the
// debug bounding boxes, and the culling stat readbacks.
func (r *Renderer) Update(deltaTime float32) {
	r.MapObjects.Update(deltaTime)
	r.Models.Update(deltaTime)
}

// RenderFrame records and submits one frame viewed through cam.
func (r *Renderer) RenderFrame(cam *camera.FreeLook) error {
	r.device.BeginFrame()

	c := &r.viewConstants.Resource
	vp := cam.ViewProjection()
	if r.framesRendered == 0 {
		c.LastViewProjection = vp
	} else {
		c.LastViewProjection = c.ViewProjection
	}
	c.ViewProjection = vp
	c.EyePosition = cam.Position.Vec4(1)
	c.EyeRotation = mgl32.Vec4{cam.Yaw, cam.Pitch, 0, 0}
	if err := r.viewConstants.Apply(r.frameIndex); err != nil {
		return fmt.Errorf("uploading view constants: %w", err)
	}
	r.globalSet.BindBuffer("_viewData", r.viewConstants.Buffer(r.frameIndex))

	graph := graphics.NewRenderGraph(r.device)
	if r.framesRendered >= graphics.FrameCount {
		// Reusing this frame index's resources requires the frame that
		// used them last, two frames ago, to have finished.
		graph.AddWaitSemaphore(r.frameSemaphores[r.frameIndex])
	}
	graph.AddSignalSemaphore(r.frameSemaphores[r.frameIndex])

	r.addDepthClearPass(graph)
	frustum := cam.Frustum()
	r.MapObjects.AddPass(graph, r.globalSet, r.depthPyramid, r.frameIndex, frustum, cam.Position)
	r.Models.AddPass(graph, r.globalSet, r.depthPyramid, r.frameIndex, frustum, cam.Position)
	r.addPyramidPass(graph)

	if err := graph.Execute(); err != nil {
		return err
	}
	r.device.EndFrame()

	r.framesRendered++
	r.frameIndex = (r.frameIndex + 1) % graphics.FrameCount
	return nil
}

// addDepthClearPass resets the depth target to the far plane.
func (r *Renderer) addDepthClearPass(graph *graphics.RenderGraph) {
	graph.AddPass("depthClear",
		func(b *graphics.PassBuilder) bool {
			b.Write(r.sceneDepth, graphics.AccessRenderTarget)
			return true
		},
		func(list graphics.CommandList) {
			list.ClearImage(r.sceneDepth, 1)
		})
}

// addPyramidPass rebuilds the closeness pyramid from the frame's depth:
// level 0 is seeded from the depth target, then each level is min-reduced
// from the one above it. The passes that sample the pyramid run before this
// one, so they always see the previous frame's reduction.
func (r *Renderer) addPyramidPass(graph *graphics.RenderGraph) {
	graph.AddPass("depthPyramid",
		func(b *graphics.PassBuilder) bool {
			b.Read(r.sceneDepth)
			b.Write(r.depthPyramid, graphics.AccessComputeWrite)
			return true
		},
		func(list graphics.CommandList) {
			list.BindDescriptorSet(graphics.SlotPerPass, r.pyramidSet)

			width, height := r.pyramidDims(0)
			list.Dispatch(PyramidSeedPipeline,
				(width+pyramidGroupSize-1)/pyramidGroupSize,
				(height+pyramidGroupSize-1)/pyramidGroupSize, 1)

			levels := int(pyramidLevels(width, height))
			for level := 1; level < levels; level++ {
				// Each level reads the one the previous dispatch wrote.
				list.PipelineBarrier(graphics.BarrierComputeToCompute, r.reduceLevel)
				list.FillBuffer(r.reduceLevel, 0, 4, uint32(level))
				list.PipelineBarrier(graphics.BarrierTransferToCompute, r.reduceLevel)

				lw, lh := r.pyramidDims(level)
				list.Dispatch(PyramidReducePipeline,
					(lw+pyramidGroupSize-1)/pyramidGroupSize,
					(lh+pyramidGroupSize-1)/pyramidGroupSize, 1)
			}
		})
}

// pyramidDims returns the size of one pyramid level.
func (r *Renderer) pyramidDims(level int) (uint32, uint32) {
	width, height := uint32(r.cfg.Graphics.Width), uint32(r.cfg.Graphics.Height)
	if width == 0 {
		width = 1
	}
	if height == 0 {
		height = 1
	}
	for i := 0; i < level; i++ {
		if width > 1 {
			width /= 2
		}
		if height > 1 {
			height /= 2
		}
	}
	return width, height
}

// FrameStats aggregates both model renderers' counters.
func (r *Renderer) FrameStats() Stats {
	return Stats{
		DrawCalls: uint32(len(r.MapObjects.DrawCalls())) +
			uint32(len(r.Models.OpaqueDrawCalls())) +
			uint32(len(r.Models.TransparentDrawCalls())),
		Triangles:          r.MapObjects.NumTriangles() + r.Models.NumTriangles(),
		SurvivingDrawCalls: r.MapObjects.NumSurvivingDrawCalls() + r.Models.NumSurvivingDrawCalls(),
		SurvivingTriangles: r.MapObjects.NumSurvivingTriangles() + r.Models.NumSurvivingTriangles(),
	}
}

// Close releases renderer-owned GPU resources. Destruction is deferred
// behind the frame fence, so closing mid-flight is safe.
func (r *Renderer) Close() {
	logger.Log.Info("closing renderer")
	r.MapObjects.Clear()
	r.Models.Clear()
	r.viewConstants.Destroy()
	r.device.QueueDestroyBuffer(r.reduceLevel)
}
