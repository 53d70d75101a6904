package graphics

import "fmt"

// FrameCount is the number of frames in flight. Per-frame resources are
// indexed by a frame index flipping between 0 and FrameCount-1.
const FrameCount = 2

// Uniform is a double-buffered constant buffer of one CPU-writable record.
// The renderer mutates Resource and calls Apply(frameIndex) once per frame;
// the frame's descriptor sets bind Buffer(frameIndex). Double buffering keeps
// frame N's upload from stomping the buffer frame N-1 still reads.
type Uniform[T any] struct {
	Resource T

	device  Device
	buffers [FrameCount]BufferID
}

// NewUniform allocates the per-frame uniform buffers.
func NewUniform[T any](device Device, name string) (*Uniform[T], error) {
	u := &Uniform[T]{device: device}
	for i := range u.buffers {
		id, err := device.CreateBuffer(BufferDesc{
			Name:      fmt.Sprintf("%s[%d]", name, i),
			Size:      SizeOf[T](),
			Usage:     UsageUniform | UsageTransferDst,
			CPUAccess: CPUAccessWriteOnly,
		})
		if err != nil {
			return nil, fmt.Errorf("uniform %s: %w", name, err)
		}
		u.buffers[i] = id
	}
	return u, nil
}

// Buffer returns the buffer backing the given frame index.
func (u *Uniform[T]) Buffer(frameIndex uint8) BufferID {
	return u.buffers[frameIndex%FrameCount]
}

// Apply uploads Resource into the buffer for frameIndex.
func (u *Uniform[T]) Apply(frameIndex uint8) error {
	id := u.Buffer(frameIndex)
	dst, err := u.device.MapBuffer(id)
	if err != nil {
		return err
	}
	src := AsBytes([]T{u.Resource})
	copy(dst, src)
	u.device.UnmapBuffer(id)
	return nil
}

// Destroy queues both per-frame buffers for deferred destruction.
func (u *Uniform[T]) Destroy() {
	for _, id := range u.buffers {
		u.device.QueueDestroyBuffer(id)
	}
}
