// Package graphics defines the backend device interface consumed by the
// renderers: buffers, images, samplers, command lists, descriptor sets and a
// render graph. Backends implement Device; the renderers never talk to a
// graphics API directly.
package graphics

import "errors"

var (
	// ErrInvalidResource is returned when an ID does not name a live resource.
	ErrInvalidResource = errors.New("graphics: invalid resource id")
	// ErrNotMappable is returned when MapBuffer is called on a buffer created
	// without CPU access.
	ErrNotMappable = errors.New("graphics: buffer is not CPU-mappable")
)

// Resource IDs. Zero is never a valid ID.
type (
	BufferID    uint32
	ImageID     uint32
	SamplerID   uint32
	SemaphoreID uint32
)

// BufferUsage is a bitmask of the ways a buffer will be used.
type BufferUsage uint32

const (
	UsageStorage BufferUsage = 1 << iota
	UsageUniform
	UsageIndex
	UsageIndirectArguments
	UsageTransferSrc
	UsageTransferDst
)

// CPUAccess selects host visibility for a buffer.
type CPUAccess uint8

const (
	CPUAccessNone CPUAccess = iota
	CPUAccessWriteOnly
	CPUAccessReadOnly
)

// BufferDesc describes a buffer to create.
type BufferDesc struct {
	Name      string
	Size      uint64
	Usage     BufferUsage
	CPUAccess CPUAccess
}

// ImageFormat enumerates the image formats the renderers need.
type ImageFormat uint8

const (
	FormatR32Float ImageFormat = iota
	FormatRGBA8
	// FormatDepth32Float is a depth target. Backends may attach it to their
	// framebuffer; it is sampled, never image-stored.
	FormatDepth32Float
)

// ImageDesc describes an image to create. Levels > 1 allocates a full mip
// chain, each level half the previous size (floor, min 1).
type ImageDesc struct {
	Name   string
	Width  uint32
	Height uint32
	Levels uint32
	Format ImageFormat
}

// SamplerReduction selects how a sampler combines texels. Min reduction is
// what the occlusion pyramid sampling relies on.
type SamplerReduction uint8

const (
	ReductionStandard SamplerReduction = iota
	ReductionMin
)

// SamplerDesc describes a sampler to create.
type SamplerDesc struct {
	Name      string
	Reduction SamplerReduction
	MinLOD    float32
	MaxLOD    float32
}

// IndexFormat selects the index element width for indexed draws.
type IndexFormat uint8

const (
	IndexUint16 IndexFormat = iota
	IndexUint32
)

// Device is the backend contract. All methods must be called from the render
// thread; GPU execution is asynchronous behind it.
//
// Destruction is deferred: QueueDestroyBuffer never frees a resource that a
// frame still in flight may reference. Backends key the retirement queue on
// the monotonically increasing frame fence advanced by BeginFrame and free an
// entry only once the fence of its enqueueing frame has retired.
type Device interface {
	CreateBuffer(desc BufferDesc) (BufferID, error)
	// MapBuffer exposes the CPU-visible memory of a mappable buffer. The
	// slice is valid until UnmapBuffer.
	MapBuffer(id BufferID) ([]byte, error)
	UnmapBuffer(id BufferID)
	QueueDestroyBuffer(id BufferID)

	CreateImage(desc ImageDesc) (ImageID, error)
	CreateSampler(desc SamplerDesc) (SamplerID, error)
	CreateSemaphore() SemaphoreID

	CreateCommandList() CommandList
	// Submit enqueues a recorded command list. waits are satisfied before
	// the list runs; signals fire when it completes.
	Submit(list CommandList, waits, signals []SemaphoreID) error

	// BeginFrame advances the frame fence and retires deferred destroys
	// whose frames have completed. Returns the new frame number.
	BeginFrame() uint64
	// EndFrame marks the current frame's CPU recording as finished.
	EndFrame()

	// FrameNumber returns the current frame fence value.
	FrameNumber() uint64
}
