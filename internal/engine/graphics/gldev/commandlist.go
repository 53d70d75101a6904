package gldev

import (
	"github.com/go-gl/gl/v4.6-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/frostgard/internal/engine/graphics"
	"github.com/Faultbox/frostgard/internal/logger"
)

type commandList struct {
	device   *Device
	commands []func()

	sets [2]*graphics.DescriptorSet

	// Element buffer type recorded by SetIndexBuffer, read by the draw.
	indexType uint32

	// Record-time shadow of FillBuffer values, consulted when a dispatch
	// needs a CPU-known image level (pyramid reduce).
	fillShadow map[graphics.BufferID]uint32
}

func (c *commandList) FillBuffer(id graphics.BufferID, offset, size uint64, value uint32) {
	c.fillShadow[id] = value
	c.commands = append(c.commands, func() {
		b := c.device.buffers[id]
		if b == nil {
			return
		}
		v := value
		gl.ClearNamedBufferSubData(b.gl, gl.R32UI, int(offset), int(size),
			gl.RED_INTEGER, gl.UNSIGNED_INT, gl.Ptr(&v))
	})
}

func (c *commandList) ClearImage(id graphics.ImageID, value float32) {
	c.commands = append(c.commands, func() {
		img := c.device.images[id]
		if img == nil {
			return
		}
		v := value
		if id == c.device.depthImage {
			gl.ClearNamedFramebufferfv(c.device.fbo, gl.DEPTH, 0, &v)
			return
		}
		gl.ClearTexImage(img.gl, 0, gl.RED, gl.FLOAT, gl.Ptr(&v))
	})
}

func (c *commandList) CopyBuffer(dst graphics.BufferID, dstOffset uint64, src graphics.BufferID, srcOffset, size uint64) {
	c.commands = append(c.commands, func() {
		db := c.device.buffers[dst]
		sb := c.device.buffers[src]
		if db == nil || sb == nil {
			return
		}
		gl.CopyNamedBufferSubData(sb.gl, db.gl, int(srcOffset), int(dstOffset), int(size))
	})
}

func (c *commandList) PipelineBarrier(barrier graphics.BarrierType, id graphics.BufferID) {
	var bits uint32
	switch barrier {
	case graphics.BarrierTransferToCompute:
		bits = gl.SHADER_STORAGE_BARRIER_BIT | gl.UNIFORM_BARRIER_BIT
	case graphics.BarrierTransferToIndirect:
		bits = gl.COMMAND_BARRIER_BIT
	case graphics.BarrierComputeToIndirect:
		bits = gl.COMMAND_BARRIER_BIT | gl.SHADER_STORAGE_BARRIER_BIT
	case graphics.BarrierComputeToCompute:
		bits = gl.SHADER_STORAGE_BARRIER_BIT | gl.SHADER_IMAGE_ACCESS_BARRIER_BIT | gl.TEXTURE_FETCH_BARRIER_BIT
	case graphics.BarrierTransferToTransferSrc:
		bits = gl.BUFFER_UPDATE_BARRIER_BIT
	default:
		return
	}
	c.commands = append(c.commands, func() {
		gl.MemoryBarrier(bits)
	})
}

func (c *commandList) BindDescriptorSet(slot graphics.DescriptorSlot, set *graphics.DescriptorSet) {
	// Captured by pointer: rebinds before submission are what dispatches
	// recorded after this call see.
	c.sets[slot] = set
}

func (c *commandList) SetIndexBuffer(id graphics.BufferID, format graphics.IndexFormat) {
	xtype := uint32(gl.UNSIGNED_SHORT)
	if format == graphics.IndexUint32 {
		xtype = gl.UNSIGNED_INT
	}
	c.indexType = xtype
	c.commands = append(c.commands, func() {
		if b := c.device.buffers[id]; b != nil {
			gl.VertexArrayElementBuffer(c.device.vao, b.gl)
		}
	})
}

func (c *commandList) Dispatch(pipeline *graphics.ComputePipeline, groupsX, groupsY, groupsZ uint32) {
	sets := c.sets
	writeLevel := int32(0)
	if srcName, ok := imageLevelSources[pipeline.Shader]; ok {
		writeLevel = int32(c.shadowedFill(sets, srcName))
	}

	c.commands = append(c.commands, func() {
		program, err := c.device.computeProgram(pipeline)
		if err != nil {
			logger.Log.Error("compute pipeline unavailable", zap.String("pipeline", pipeline.Name), zap.Error(err))
			return
		}
		gl.UseProgram(program)
		c.bindSets(sets, writeLevel)
		gl.DispatchCompute(groupsX, groupsY, groupsZ)
	})
}

func (c *commandList) DrawIndexedIndirectCount(args graphics.BufferID, argsOffset uint64, count graphics.BufferID, countOffset uint64, maxDrawCount uint32) {
	sets := c.sets
	xtype := c.indexType
	if xtype == 0 {
		xtype = gl.UNSIGNED_SHORT
	}

	c.commands = append(c.commands, func() {
		if sets[graphics.SlotPerPass] == nil {
			return
		}
		spec, ok := drawPrograms[sets[graphics.SlotPerPass].Name()]
		if !ok {
			logger.Log.Error("no draw program for pass", zap.String("set", sets[graphics.SlotPerPass].Name()))
			return
		}
		program, err := c.device.renderProgram(spec)
		if err != nil {
			logger.Log.Error("draw program unavailable", zap.Error(err))
			return
		}

		ab := c.device.buffers[args]
		cb := c.device.buffers[count]
		if ab == nil || cb == nil {
			return
		}

		gl.BindFramebuffer(gl.FRAMEBUFFER, c.device.fbo)
		gl.Viewport(0, 0, c.device.width, c.device.height)
		gl.Enable(gl.DEPTH_TEST)
		if spec.transparent {
			gl.Enable(gl.BLEND)
			gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
			gl.DepthMask(false)
		}

		gl.UseProgram(program)
		c.bindSets(sets, 0)
		gl.BindVertexArray(c.device.vao)
		gl.BindBuffer(gl.DRAW_INDIRECT_BUFFER, ab.gl)
		gl.BindBuffer(gl.PARAMETER_BUFFER, cb.gl)
		gl.MultiDrawElementsIndirectCount(gl.TRIANGLES, xtype,
			gl.PtrOffset(int(argsOffset)), int(countOffset), int32(maxDrawCount), 0)

		if spec.transparent {
			gl.DepthMask(true)
			gl.Disable(gl.BLEND)
		}
	})
}

// shadowedFill resolves the last value recorded into the buffer bound under
// name, per-pass set first.
func (c *commandList) shadowedFill(sets [2]*graphics.DescriptorSet, name string) uint32 {
	for _, set := range []*graphics.DescriptorSet{sets[graphics.SlotPerPass], sets[graphics.SlotGlobal]} {
		if set == nil {
			continue
		}
		if b, ok := set.Lookup(name); ok && b.Kind == graphics.BindingBuffer {
			return c.fillShadow[b.Buffer]
		}
	}
	return 0
}

// bindSets applies the captured descriptor sets to the GL binding points.
// The per-pass set shadows the global set on name collisions by binding
// after it.
func (c *commandList) bindSets(sets [2]*graphics.DescriptorSet, writeLevel int32) {
	for _, set := range []*graphics.DescriptorSet{sets[graphics.SlotGlobal], sets[graphics.SlotPerPass]} {
		if set == nil {
			continue
		}
		set.Each(func(name string, b graphics.Binding) {
			switch b.Kind {
			case graphics.BindingBuffer:
				buf := c.device.buffers[b.Buffer]
				if buf == nil {
					return
				}
				if point, ok := uniformBindings[name]; ok {
					gl.BindBufferBase(gl.UNIFORM_BUFFER, point, buf.gl)
				} else if point, ok := storageBindings[name]; ok {
					gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, point, buf.gl)
				}

			case graphics.BindingImage:
				img := c.device.images[b.Image]
				if img == nil {
					return
				}
				if unit, ok := textureBindings[name]; ok {
					gl.BindTextureUnit(unit, img.gl)
				}
				if unit, ok := imageBindings[name]; ok && img.desc.Format != graphics.FormatDepth32Float {
					gl.BindImageTexture(unit, img.gl, writeLevel, false, 0, gl.WRITE_ONLY, gl.R32F)
				}

			case graphics.BindingSampler:
				if unit, ok := samplerBindings[name]; ok {
					if s, found := c.device.samplers[b.Sampler]; found {
						gl.BindSampler(unit, s)
					}
				}
			}
		})
	}
}
