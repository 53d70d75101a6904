// Package gldev is the OpenGL 4.6 graphics.Device: buffers are DSA buffer
// objects, compute pipelines compile their embedded GLSL artifacts, and
// indirect draws go through GL_ARB_indirect_parameters. A 4.6 core context
// must be current on the calling thread.
package gldev

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/go-gl/gl/v4.6-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/frostgard/internal/engine/graphics"
	"github.com/Faultbox/frostgard/internal/engine/graphics/gldev/shaders"
	"github.com/Faultbox/frostgard/internal/logger"
)

// GL_TEXTURE_REDUCTION_MODE_EXT, used for the pyramid min sampler. Not in
// the core registry; universally supported alongside 4.6.
const textureReductionModeEXT = 0x9366

type buffer struct {
	desc    graphics.BufferDesc
	gl      uint32
	pending bool
}

type image struct {
	desc graphics.ImageDesc
	gl   uint32
}

type pendingDestroy struct {
	id    graphics.BufferID
	fence uint64
}

// Device implements graphics.Device on an OpenGL 4.6 core context. All
// methods must run on the context thread.
type Device struct {
	buffers  map[graphics.BufferID]*buffer
	images   map[graphics.ImageID]*image
	samplers map[graphics.SamplerID]uint32

	nextBuffer    graphics.BufferID
	nextImage     graphics.ImageID
	nextSampler   graphics.SamplerID
	nextSemaphore graphics.SemaphoreID

	frame    uint64
	fences   [graphics.FrameCount]uintptr
	destroys []pendingDestroy

	// Vertex state is one empty VAO: vertices are pulled from storage
	// buffers, only the element buffer binding varies.
	vao uint32

	fbo        uint32
	colorTex   uint32
	depthImage graphics.ImageID
	width      int32
	height     int32

	computePrograms map[string]uint32
	renderPrograms  map[string]uint32
}

// New initializes GL state for a drawable of the given size. The SDL window
// must have made its context current first.
func New(width, height int) (*Device, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("initializing OpenGL: %w", err)
	}

	d := &Device{
		buffers:         make(map[graphics.BufferID]*buffer),
		images:          make(map[graphics.ImageID]*image),
		samplers:        make(map[graphics.SamplerID]uint32),
		width:           int32(width),
		height:          int32(height),
		computePrograms: make(map[string]uint32),
		renderPrograms:  make(map[string]uint32),
	}

	gl.CreateVertexArrays(1, &d.vao)
	gl.CreateFramebuffers(1, &d.fbo)

	gl.CreateTextures(gl.TEXTURE_2D, 1, &d.colorTex)
	gl.TextureStorage2D(d.colorTex, 1, gl.RGBA8, d.width, d.height)
	gl.NamedFramebufferTexture(d.fbo, gl.COLOR_ATTACHMENT0, d.colorTex, 0)
	gl.NamedFramebufferDrawBuffer(d.fbo, gl.COLOR_ATTACHMENT0)

	logger.Log.Info("OpenGL device created",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))))
	return d, nil
}

// CreateBuffer allocates an immutable-storage buffer object.
func (d *Device) CreateBuffer(desc graphics.BufferDesc) (graphics.BufferID, error) {
	var flags uint32 = gl.DYNAMIC_STORAGE_BIT
	switch desc.CPUAccess {
	case graphics.CPUAccessWriteOnly:
		flags |= gl.MAP_WRITE_BIT
	case graphics.CPUAccessReadOnly:
		flags |= gl.MAP_READ_BIT
	}

	b := &buffer{desc: desc}
	gl.CreateBuffers(1, &b.gl)
	size := desc.Size
	if size == 0 {
		size = 4
	}
	gl.NamedBufferStorage(b.gl, int(size), nil, flags)

	d.nextBuffer++
	id := d.nextBuffer
	d.buffers[id] = b
	return id, nil
}

// MapBuffer maps the whole buffer for the declared access.
func (d *Device) MapBuffer(id graphics.BufferID) ([]byte, error) {
	b, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("map buffer %d: %w", id, graphics.ErrInvalidResource)
	}
	var access uint32
	switch b.desc.CPUAccess {
	case graphics.CPUAccessWriteOnly:
		access = gl.MAP_WRITE_BIT | gl.MAP_INVALIDATE_RANGE_BIT
	case graphics.CPUAccessReadOnly:
		access = gl.MAP_READ_BIT
	default:
		return nil, fmt.Errorf("map buffer %q: %w", b.desc.Name, graphics.ErrNotMappable)
	}
	ptr := gl.MapNamedBufferRange(b.gl, 0, int(b.desc.Size), access)
	if ptr == nil {
		return nil, fmt.Errorf("map buffer %q: glMapNamedBufferRange failed", b.desc.Name)
	}
	return unsafe.Slice((*byte)(ptr), b.desc.Size), nil
}

// UnmapBuffer releases a mapping.
func (d *Device) UnmapBuffer(id graphics.BufferID) {
	if b, ok := d.buffers[id]; ok {
		gl.UnmapNamedBuffer(b.gl)
	}
}

// QueueDestroyBuffer defers deletion until the enqueueing frame's fence has
// retired. The map entry stays resolvable in the meantime: command lists
// look IDs up at Submit time, after the caller has already queued its
// staging buffers for destruction.
func (d *Device) QueueDestroyBuffer(id graphics.BufferID) {
	b, ok := d.buffers[id]
	if !ok || b.pending {
		return
	}
	b.pending = true
	d.destroys = append(d.destroys, pendingDestroy{id: id, fence: d.frame})
}

// CreateImage allocates an immutable texture. The first depth-format image
// becomes the framebuffer's depth attachment.
func (d *Device) CreateImage(desc graphics.ImageDesc) (graphics.ImageID, error) {
	levels := int32(desc.Levels)
	if levels < 1 {
		levels = 1
	}
	var internal uint32
	switch desc.Format {
	case graphics.FormatR32Float:
		internal = gl.R32F
	case graphics.FormatRGBA8:
		internal = gl.RGBA8
	case graphics.FormatDepth32Float:
		internal = gl.DEPTH_COMPONENT32F
	default:
		return 0, fmt.Errorf("image %q: unknown format %d", desc.Name, desc.Format)
	}

	img := &image{desc: desc}
	gl.CreateTextures(gl.TEXTURE_2D, 1, &img.gl)
	gl.TextureStorage2D(img.gl, levels, internal, int32(desc.Width), int32(desc.Height))
	gl.TextureParameteri(img.gl, gl.TEXTURE_MIN_FILTER, gl.NEAREST_MIPMAP_NEAREST)
	gl.TextureParameteri(img.gl, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TextureParameteri(img.gl, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TextureParameteri(img.gl, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TextureParameteri(img.gl, gl.TEXTURE_MAX_LEVEL, levels-1)

	d.nextImage++
	id := d.nextImage
	d.images[id] = img

	if desc.Format == graphics.FormatDepth32Float && d.depthImage == 0 {
		d.depthImage = id
		gl.NamedFramebufferTexture(d.fbo, gl.DEPTH_ATTACHMENT, img.gl, 0)
		if status := gl.CheckNamedFramebufferStatus(d.fbo, gl.FRAMEBUFFER); status != gl.FRAMEBUFFER_COMPLETE {
			return 0, fmt.Errorf("framebuffer incomplete after depth attach: 0x%x", status)
		}
	}
	return id, nil
}

// CreateSampler creates a sampler object; min reduction uses the EXT
// reduction mode the pyramid sampling depends on.
func (d *Device) CreateSampler(desc graphics.SamplerDesc) (graphics.SamplerID, error) {
	var s uint32
	gl.CreateSamplers(1, &s)
	gl.SamplerParameteri(s, gl.TEXTURE_MIN_FILTER, gl.NEAREST_MIPMAP_NEAREST)
	gl.SamplerParameteri(s, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.SamplerParameterf(s, gl.TEXTURE_MIN_LOD, desc.MinLOD)
	gl.SamplerParameterf(s, gl.TEXTURE_MAX_LOD, desc.MaxLOD)
	if desc.Reduction == graphics.ReductionMin {
		gl.SamplerParameteri(s, textureReductionModeEXT, gl.MIN)
	}

	d.nextSampler++
	id := d.nextSampler
	d.samplers[id] = s
	return id, nil
}

// CreateSemaphore returns a fresh ID. A single GL context orders submissions
// implicitly, so semaphores carry no state here.
func (d *Device) CreateSemaphore() graphics.SemaphoreID {
	d.nextSemaphore++
	return d.nextSemaphore
}

// CreateCommandList starts recording.
func (d *Device) CreateCommandList() graphics.CommandList {
	return &commandList{device: d, fillShadow: make(map[graphics.BufferID]uint32)}
}

// Submit issues the recorded GL calls. Waits and signals are satisfied by
// the context's implicit ordering.
func (d *Device) Submit(list graphics.CommandList, waits, signals []graphics.SemaphoreID) error {
	cl, ok := list.(*commandList)
	if !ok {
		return fmt.Errorf("submit: foreign command list %T", list)
	}
	for _, cmd := range cl.commands {
		cmd()
	}
	return nil
}

// BeginFrame waits for the frame that last used this frame slot, then
// retires deferred destroys that are out of flight.
func (d *Device) BeginFrame() uint64 {
	d.frame++

	slot := d.frame % graphics.FrameCount
	if sync := d.fences[slot]; sync != 0 {
		gl.ClientWaitSync(sync, gl.SYNC_FLUSH_COMMANDS_BIT, ^uint64(0))
		gl.DeleteSync(sync)
		d.fences[slot] = 0
	}

	kept := d.destroys[:0]
	for _, p := range d.destroys {
		if d.frame >= p.fence+graphics.FrameCount {
			if b, ok := d.buffers[p.id]; ok {
				gl.DeleteBuffers(1, &b.gl)
				delete(d.buffers, p.id)
			}
		} else {
			kept = append(kept, p)
		}
	}
	d.destroys = kept
	return d.frame
}

// EndFrame drops a fence behind the frame's GPU work.
func (d *Device) EndFrame() {
	d.fences[d.frame%graphics.FrameCount] = gl.FenceSync(gl.SYNC_GPU_COMMANDS_COMPLETE, 0)
}

// FrameNumber returns the current frame fence value.
func (d *Device) FrameNumber() uint64 { return d.frame }

// BlitToScreen copies the offscreen color target to the default framebuffer
// before the buffer swap.
func (d *Device) BlitToScreen() {
	gl.BlitNamedFramebuffer(d.fbo, 0,
		0, 0, d.width, d.height,
		0, 0, d.width, d.height,
		gl.COLOR_BUFFER_BIT, gl.NEAREST)
}

// ReadColorPixels reads back the offscreen color target as tightly packed
// RGBA bytes, bottom row first. This stalls the pipeline; screenshot use only.
func (d *Device) ReadColorPixels() ([]byte, int, int) {
	pixels := make([]byte, d.width*d.height*4)
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, d.fbo)
	gl.ReadPixels(0, 0, d.width, d.height, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pixels))
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, 0)
	return pixels, int(d.width), int(d.height)
}

// computeProgram compiles and caches a compute pipeline's artifact.
func (d *Device) computeProgram(p *graphics.ComputePipeline) (uint32, error) {
	if prog, ok := d.computePrograms[p.Shader]; ok {
		return prog, nil
	}
	source, err := shaders.Source(p.Shader)
	if err != nil {
		return 0, fmt.Errorf("pipeline %s: %w", p.Name, err)
	}
	shader, err := compileShader(source, gl.COMPUTE_SHADER)
	if err != nil {
		return 0, fmt.Errorf("pipeline %s: %w", p.Name, err)
	}
	defer gl.DeleteShader(shader)

	prog, err := linkProgram(shader)
	if err != nil {
		return 0, fmt.Errorf("pipeline %s: %w", p.Name, err)
	}
	d.computePrograms[p.Shader] = prog
	return prog, nil
}

// renderProgram compiles and caches a draw program pair.
func (d *Device) renderProgram(spec drawProgram) (uint32, error) {
	key := spec.vert + "+" + spec.frag
	if prog, ok := d.renderPrograms[key]; ok {
		return prog, nil
	}

	vertSource, err := shaders.Source(spec.vert)
	if err != nil {
		return 0, err
	}
	fragSource, err := shaders.Source(spec.frag)
	if err != nil {
		return 0, err
	}

	vert, err := compileShader(vertSource, gl.VERTEX_SHADER)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", spec.vert, err)
	}
	defer gl.DeleteShader(vert)
	frag, err := compileShader(fragSource, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", spec.frag, err)
	}
	defer gl.DeleteShader(frag)

	prog, err := linkProgram(vert, frag)
	if err != nil {
		return 0, fmt.Errorf("%s+%s: %w", spec.vert, spec.frag, err)
	}
	d.renderPrograms[key] = prog
	return prog, nil
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)

	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
		return 0, fmt.Errorf("compile failed: %s", log)
	}
	return shader, nil
}

func linkProgram(shaderObjects ...uint32) (uint32, error) {
	program := gl.CreateProgram()
	for _, s := range shaderObjects {
		gl.AttachShader(program, s)
	}
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))
		return 0, fmt.Errorf("link failed: %s", log)
	}
	return program, nil
}
