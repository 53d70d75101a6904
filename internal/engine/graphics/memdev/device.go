// Package memdev is a software graphics.Device: buffers live in host memory,
// compute pipelines run their CPU kernels, and indirect draws are tallied
// instead of rasterized. It backs headless runs and the renderer tests.
package memdev

import (
	"fmt"

	"github.com/Faultbox/frostgard/internal/engine/graphics"
)

type buffer struct {
	desc    graphics.BufferDesc
	data    []byte
	mapped  bool
	pending bool // queued for deferred destruction
}

type pendingDestroy struct {
	id    graphics.BufferID
	fence uint64
}

// Device implements graphics.Device in host memory. All methods are intended
// for a single render thread, matching the Device contract.
type Device struct {
	buffers map[graphics.BufferID]*buffer
	images  map[graphics.ImageID]*image

	nextBuffer    graphics.BufferID
	nextImage     graphics.ImageID
	nextSampler   graphics.SamplerID
	nextSemaphore graphics.SemaphoreID

	frame    uint64
	destroys []pendingDestroy

	// Per-frame draw tallies, reset by BeginFrame.
	frameDraws   uint32
	frameIndices uint64
}

// New creates an empty software device.
func New() *Device {
	return &Device{
		buffers: make(map[graphics.BufferID]*buffer),
		images:  make(map[graphics.ImageID]*image),
	}
}

// CreateBuffer allocates a zeroed host-memory buffer.
func (d *Device) CreateBuffer(desc graphics.BufferDesc) (graphics.BufferID, error) {
	d.nextBuffer++
	id := d.nextBuffer
	d.buffers[id] = &buffer{desc: desc, data: make([]byte, desc.Size)}
	return id, nil
}

// MapBuffer returns the backing memory of a CPU-accessible buffer.
func (d *Device) MapBuffer(id graphics.BufferID) ([]byte, error) {
	b, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("map buffer %d: %w", id, graphics.ErrInvalidResource)
	}
	if b.desc.CPUAccess == graphics.CPUAccessNone {
		return nil, fmt.Errorf("map buffer %q: %w", b.desc.Name, graphics.ErrNotMappable)
	}
	b.mapped = true
	return b.data, nil
}

// UnmapBuffer releases a mapping.
func (d *Device) UnmapBuffer(id graphics.BufferID) {
	if b, ok := d.buffers[id]; ok {
		b.mapped = false
	}
}

// QueueDestroyBuffer defers destruction until the current frame's fence has
// retired; the buffer stays usable for commands already in flight.
func (d *Device) QueueDestroyBuffer(id graphics.BufferID) {
	b, ok := d.buffers[id]
	if !ok || b.pending {
		return
	}
	b.pending = true
	d.destroys = append(d.destroys, pendingDestroy{id: id, fence: d.frame})
}

// CreateImage allocates a host-memory mip chain.
func (d *Device) CreateImage(desc graphics.ImageDesc) (graphics.ImageID, error) {
	d.nextImage++
	id := d.nextImage
	d.images[id] = newImage(desc)
	return id, nil
}

// CreateSampler returns a fresh sampler ID. Reduction behavior is applied by
// kernels through image views, so the software device keeps no state.
func (d *Device) CreateSampler(desc graphics.SamplerDesc) (graphics.SamplerID, error) {
	d.nextSampler++
	return d.nextSampler, nil
}

// CreateSemaphore returns a fresh semaphore ID. The software timeline is
// synchronous, so semaphores carry no state.
func (d *Device) CreateSemaphore() graphics.SemaphoreID {
	d.nextSemaphore++
	return d.nextSemaphore
}

// CreateCommandList starts recording a command list.
func (d *Device) CreateCommandList() graphics.CommandList {
	return &commandList{device: d}
}

// Submit executes a recorded command list immediately: the software timeline
// completes work inside Submit, so waits and signals are already satisfied.
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

// BeginFrame advances the frame fence, retires deferred destroys whose
// frames are out of flight, and resets the frame draw tallies.
func (d *Device) BeginFrame() uint64 {
	d.frame++
	d.frameDraws = 0
	d.frameIndices = 0

	// A destroy queued during frame F may be referenced by frames up to
	// F+FrameCount-1; it retires once the fence has moved FrameCount past F.
	kept := d.destroys[:0]
	for _, p := range d.destroys {
		if d.frame >= p.fence+graphics.FrameCount {
			delete(d.buffers, p.id)
		} else {
			kept = append(kept, p)
		}
	}
	d.destroys = kept
	return d.frame
}

// EndFrame is a no-op on the synchronous software timeline.
func (d *Device) EndFrame() {}

// FrameNumber returns the current frame fence value.
func (d *Device) FrameNumber() uint64 { return d.frame }

// AliveBufferCount reports live buffers, including ones pending destruction.
func (d *Device) AliveBufferCount() int { return len(d.buffers) }

// BufferData exposes a buffer's memory regardless of CPU access, for tests.
func (d *Device) BufferData(id graphics.BufferID) []byte {
	if b, ok := d.buffers[id]; ok {
		return b.data
	}
	return nil
}

// FrameDraws returns the number of indirect draws consumed this frame.
func (d *Device) FrameDraws() uint32 { return d.frameDraws }

// FrameIndices returns the total indices submitted by draws this frame.
func (d *Device) FrameIndices() uint64 { return d.frameIndices }

// Image returns the view of an image, for tests and pyramid inspection.
func (d *Device) Image(id graphics.ImageID) graphics.ImageView {
	if img, ok := d.images[id]; ok {
		return img
	}
	return nil
}
