package memdev

import (
	"encoding/binary"

	"github.com/Faultbox/frostgard/internal/engine/graphics"
)

// Size of one indexed indirect argument record on the wire:
// indexCount, instanceCount, firstIndex, vertexOffset, firstInstance.
const indirectArgSize = 20

type commandList struct {
	device   *Device
	commands []func()

	sets [2]*graphics.DescriptorSet // indexed by DescriptorSlot
}

func (c *commandList) FillBuffer(id graphics.BufferID, offset, size uint64, value uint32) {
	c.commands = append(c.commands, func() {
		b := c.device.buffers[id]
		if b == nil {
			return
		}
		for i := offset; i+4 <= offset+size && i+4 <= uint64(len(b.data)); i += 4 {
			binary.LittleEndian.PutUint32(b.data[i:], value)
		}
	})
}

func (c *commandList) ClearImage(id graphics.ImageID, value float32) {
	c.commands = append(c.commands, func() {
		img := c.device.images[id]
		if img == nil {
			return
		}
		width, height := img.Dimensions(0)
		for y := uint32(0); y < height; y++ {
			for x := uint32(0); x < width; x++ {
				img.Store(0, x, y, value)
			}
		}
	})
}

func (c *commandList) CopyBuffer(dst graphics.BufferID, dstOffset uint64, src graphics.BufferID, srcOffset, size uint64) {
	c.commands = append(c.commands, func() {
		db := c.device.buffers[dst]
		sb := c.device.buffers[src]
		if db == nil || sb == nil {
			return
		}
		copy(db.data[dstOffset:dstOffset+size], sb.data[srcOffset:srcOffset+size])
	})
}

func (c *commandList) PipelineBarrier(barrier graphics.BarrierType, id graphics.BufferID) {
	// The software timeline executes commands in order; barriers are
	// ordering declarations with nothing left to enforce.
}

func (c *commandList) BindDescriptorSet(slot graphics.DescriptorSlot, set *graphics.DescriptorSet) {
	// Sets are captured by pointer at record time: dispatches recorded after
	// this call see the set, including names rebound before submission.
	c.sets[slot] = set
}

func (c *commandList) SetIndexBuffer(id graphics.BufferID, format graphics.IndexFormat) {
	// The tally draw consumer does not fetch indices.
}

func (c *commandList) Dispatch(pipeline *graphics.ComputePipeline, groupsX, groupsY, groupsZ uint32) {
	sets := c.sets
	c.commands = append(c.commands, func() {
		bind := c.resolveBindings(sets)

		gx, gy, gz := pipeline.GroupSize[0], pipeline.GroupSize[1], pipeline.GroupSize[2]
		if gx == 0 {
			gx = 1
		}
		if gy == 0 {
			gy = 1
		}
		if gz == 0 {
			gz = 1
		}
		for z := uint32(0); z < groupsZ*gz; z++ {
			for y := uint32(0); y < groupsY*gy; y++ {
				for x := uint32(0); x < groupsX*gx; x++ {
					pipeline.Kernel(graphics.KernelThread{X: x, Y: y, Z: z}, bind)
				}
			}
		}
	})
}

func (c *commandList) DrawIndexedIndirectCount(args graphics.BufferID, argsOffset uint64, count graphics.BufferID, countOffset uint64, maxDrawCount uint32) {
	c.commands = append(c.commands, func() {
		ab := c.device.buffers[args]
		cb := c.device.buffers[count]
		if ab == nil || cb == nil || countOffset+4 > uint64(len(cb.data)) {
			return
		}

		drawCount := binary.LittleEndian.Uint32(cb.data[countOffset:])
		if drawCount > maxDrawCount {
			drawCount = maxDrawCount
		}

		for i := uint32(0); i < drawCount; i++ {
			off := argsOffset + uint64(i)*indirectArgSize
			if off+indirectArgSize > uint64(len(ab.data)) {
				break
			}
			indexCount := binary.LittleEndian.Uint32(ab.data[off:])
			instanceCount := binary.LittleEndian.Uint32(ab.data[off+4:])
			if instanceCount == 0 || indexCount == 0 {
				continue
			}
			c.device.frameDraws++
			c.device.frameIndices += uint64(indexCount) * uint64(instanceCount)
		}
	})
}

// resolveBindings flattens the bound descriptor sets into kernel bindings;
// the per-pass set shadows the global set on name collisions.
func (c *commandList) resolveBindings(sets [2]*graphics.DescriptorSet) *graphics.KernelBindings {
	buffers := make(map[string][]byte)
	images := make(map[string]graphics.ImageView)

	for _, set := range []*graphics.DescriptorSet{sets[graphics.SlotGlobal], sets[graphics.SlotPerPass]} {
		if set == nil {
			continue
		}
		set.Each(func(name string, b graphics.Binding) {
			switch b.Kind {
			case graphics.BindingBuffer:
				if buf := c.device.buffers[b.Buffer]; buf != nil {
					buffers[name] = buf.data
				}
			case graphics.BindingImage:
				if img := c.device.images[b.Image]; img != nil {
					images[name] = img
				}
			}
		})
	}
	return graphics.NewKernelBindings(buffers, images)
}
