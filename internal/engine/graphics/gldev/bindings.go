package gldev

// The GLSL sources declare fixed binding points; these tables map the
// descriptor names the renderers bind to those points. A name missing from
// every table is simply not consumed by the hardware path.

// Uniform block binding points.
var uniformBindings = map[string]uint32{
	"_viewData":  0,
	"_constants": 1,
}

// Shader storage binding points.
var storageBindings = map[string]uint32{
	"_vertices":           0,
	"_vertexColors":       1,
	"_instances":          2,
	"_instanceLookup":     3,
	"_materials":          4,
	"_materialParams":     5,
	"_drawCommands":       6,
	"_culledDrawCommands": 7,
	"_drawCount":          8,
	"_triangleCount":      9,
	"_cullingData":        10,
	"_sortKeys":           11,
	"_drawCallDatas":      12,
	"_textureUnits":       13,
	"_boneDeforms":        14,
	"_reduceLevel":        15,
}

// Texture units for sampled images, and the sampler unit pairing.
var textureBindings = map[string]uint32{
	"_depthPyramid": 0,
	"_sceneDepth":   1,
}

var samplerBindings = map[string]uint32{
	"_pyramidSampler": 0,
}

// Image units for compute-written images. Depth-format images are sampled
// only and never appear here.
var imageBindings = map[string]uint32{
	"_depthPyramid": 0,
}

// imageLevelSources names, per compute shader, the storage buffer whose last
// recorded fill selects the image level to bind for writing. The pyramid
// reduce pass fills its level buffer before each dispatch; the backend
// shadows those fills at record time.
var imageLevelSources = map[string]string{
	"pyramid_reduce.comp": "_reduceLevel",
}

// drawProgram selects the vert/frag pair and fixed state for a draw by the
// per-pass descriptor set's name.
type drawProgram struct {
	vert        string
	frag        string
	transparent bool
}

var drawPrograms = map[string]drawProgram{
	"mapObjectPass":         {vert: "mapobject.vert", frag: "mapobject.frag"},
	"cmodelOpaqueDraw":      {vert: "cmodel.vert", frag: "cmodel.frag"},
	"cmodelTransparentDraw": {vert: "cmodel.vert", frag: "cmodel.frag", transparent: true},
}
