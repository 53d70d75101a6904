package graphics

// BarrierType declares an execution/memory dependency between the stages that
// produced a buffer's contents and the stages that consume it next.
type BarrierType uint8

const (
	BarrierTransferToCompute BarrierType = iota
	BarrierTransferToIndirect
	BarrierComputeToIndirect
	BarrierComputeToCompute
	BarrierTransferToTransferSrc
)

// DescriptorSlot is the binding frequency of a descriptor set.
type DescriptorSlot uint8

const (
	SlotGlobal DescriptorSlot = iota
	SlotPerPass
)

// KernelThread identifies one compute invocation.
type KernelThread struct {
	// Global invocation index per axis (group index * group size + local).
	X, Y, Z uint32
}

// KernelFunc is the CPU statement of a compute pipeline's semantics. Hardware
// backends run the compiled Shader artifact instead; software backends invoke
// the kernel once per thread. Kernels read and write bound resources through
// KernelBindings.
type KernelFunc func(thread KernelThread, bind *KernelBindings)

// ComputePipeline pairs an opaque compiled shader artifact with its CPU
// kernel. GroupSize is the workgroup size the dispatch math is written
// against.
type ComputePipeline struct {
	Name      string
	Shader    string
	GroupSize [3]uint32
	Kernel    KernelFunc
}

// ImageView is kernel-side access to an image's mip chain.
type ImageView interface {
	Levels() int
	// Dimensions returns the size of one mip level.
	Dimensions(level int) (width, height uint32)
	Load(level int, x, y uint32) float32
	Store(level int, x, y uint32, value float32)
}

// KernelBindings resolves descriptor-set names to backend memory for a
// kernel invocation.
type KernelBindings struct {
	buffers map[string][]byte
	images  map[string]ImageView
}

// NewKernelBindings is used by backends when dispatching a kernel.
func NewKernelBindings(buffers map[string][]byte, images map[string]ImageView) *KernelBindings {
	return &KernelBindings{buffers: buffers, images: images}
}

// Buffer returns the raw storage of a bound buffer, or nil if unbound.
func (b *KernelBindings) Buffer(name string) []byte { return b.buffers[name] }

// Image returns a bound image view, or nil if unbound.
func (b *KernelBindings) Image(name string) ImageView { return b.images[name] }

// CommandList records GPU work for later submission. Recording is not
// thread-safe; one list belongs to one pass.
type CommandList interface {
	// FillBuffer writes value into size bytes at offset, 4 bytes at a time.
	FillBuffer(id BufferID, offset, size uint64, value uint32)
	// ClearImage sets every texel of an image's base level to value. Depth
	// targets clear through this, not through a compute write.
	ClearImage(id ImageID, value float32)
	CopyBuffer(dst BufferID, dstOffset uint64, src BufferID, srcOffset, size uint64)
	PipelineBarrier(barrier BarrierType, id BufferID)

	BindDescriptorSet(slot DescriptorSlot, set *DescriptorSet)
	SetIndexBuffer(id BufferID, format IndexFormat)

	// Dispatch runs a compute pipeline over groupsX*groupsY*groupsZ
	// workgroups using the descriptor sets bound at record time.
	Dispatch(pipeline *ComputePipeline, groupsX, groupsY, groupsZ uint32)

	// DrawIndexedIndirectCount issues up to maxDrawCount indexed draws whose
	// arguments live in args; the actual draw count is read from count on
	// the GPU timeline, never by the CPU.
	DrawIndexedIndirectCount(args BufferID, argsOffset uint64, count BufferID, countOffset uint64, maxDrawCount uint32)
}
