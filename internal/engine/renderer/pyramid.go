package renderer

import (
	gomath "math"

	"github.com/Faultbox/frostgard/internal/engine/graphics"
)

// pyramidGroupSize is the X/Y workgroup size of the pyramid kernels.
const pyramidGroupSize = 8

// pyramidLevels returns the length of a full mip chain over a base size.
func pyramidLevels(width, height uint32) uint32 {
	size := width
	if height > size {
		size = height
	}
	if size <= 1 {
		return 1
	}
	return uint32(gomath.Floor(gomath.Log2(float64(size)))) + 1
}

// PyramidSeedPipeline converts the frame's depth into closeness (1 at the
// near plane, 0 at the far plane) and writes it to pyramid level 0. Closeness
// is the convention the culling kernels sample: a min reduction then yields
// the farthest occluder over a footprint.
var PyramidSeedPipeline = &graphics.ComputePipeline{
	Name:      "pyramidSeed",
	Shader:    "pyramid_seed.comp",
	GroupSize: [3]uint32{pyramidGroupSize, pyramidGroupSize, 1},
	Kernel:    pyramidSeedKernel,
}

// PyramidReducePipeline min-reduces one pyramid level from the level above
// it. The target level index arrives in the _reduceLevel buffer, filled
// before each dispatch.
var PyramidReducePipeline = &graphics.ComputePipeline{
	Name:      "pyramidReduce",
	Shader:    "pyramid_reduce.comp",
	GroupSize: [3]uint32{pyramidGroupSize, pyramidGroupSize, 1},
	Kernel:    pyramidReduceKernel,
}

func pyramidSeedKernel(thread graphics.KernelThread, bind *graphics.KernelBindings) {
	depth := bind.Image("_sceneDepth")
	pyramid := bind.Image("_depthPyramid")
	if depth == nil || pyramid == nil {
		return
	}
	width, height := pyramid.Dimensions(0)
	if thread.X >= width || thread.Y >= height {
		return
	}
	d := depth.Load(0, thread.X, thread.Y)
	pyramid.Store(0, thread.X, thread.Y, clamp01(1-d))
}

func pyramidReduceKernel(thread graphics.KernelThread, bind *graphics.KernelBindings) {
	pyramid := bind.Image("_depthPyramid")
	levels := graphics.AsSlice[uint32](bind.Buffer("_reduceLevel"))
	if pyramid == nil || len(levels) == 0 {
		return
	}
	level := int(levels[0])
	if level < 1 || level >= pyramid.Levels() {
		return
	}

	width, height := pyramid.Dimensions(level)
	if thread.X >= width || thread.Y >= height {
		return
	}

	// Four texels of the level above, clamped at odd edges so the border
	// row and column still contribute themselves rather than zero.
	prevWidth, prevHeight := pyramid.Dimensions(level - 1)
	x0, y0 := thread.X*2, thread.Y*2
	x1, y1 := x0+1, y0+1
	if x1 >= prevWidth {
		x1 = prevWidth - 1
	}
	if y1 >= prevHeight {
		y1 = prevHeight - 1
	}

	value := minf(
		minf(pyramid.Load(level-1, x0, y0), pyramid.Load(level-1, x1, y0)),
		minf(pyramid.Load(level-1, x0, y1), pyramid.Load(level-1, x1, y1)),
	)
	pyramid.Store(level, thread.X, thread.Y, value)
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
