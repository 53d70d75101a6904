package cmodel

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/frostgard/internal/engine/graphics"
)

// createPartitionCounters allocates one partition's counters and readbacks,
// which live for the renderer's whole lifetime.
func (r *Renderer) createPartitionCounters(p *partition) error {
	var err error
	counterUsage := graphics.UsageStorage | graphics.UsageIndirectArguments |
		graphics.UsageTransferSrc | graphics.UsageTransferDst

	if p.drawCountBuffer, err = r.device.CreateBuffer(graphics.BufferDesc{
		Name: p.name + "DrawCount", Size: 4, Usage: counterUsage,
	}); err != nil {
		return err
	}
	if p.triangleCountBuffer, err = r.device.CreateBuffer(graphics.BufferDesc{
		Name: p.name + "TriangleCount", Size: 4, Usage: counterUsage,
	}); err != nil {
		return err
	}
	if p.drawCountReadback, err = r.device.CreateBuffer(graphics.BufferDesc{
		Name: p.name + "DrawCountReadback", Size: 4,
		Usage: graphics.UsageTransferDst, CPUAccess: graphics.CPUAccessReadOnly,
	}); err != nil {
		return err
	}
	if p.triangleCountReadback, err = r.device.CreateBuffer(graphics.BufferDesc{
		Name: p.name + "TriangleCountReadback", Size: 4,
		Usage: graphics.UsageTransferDst, CPUAccess: graphics.CPUAccessReadOnly,
	}); err != nil {
		return err
	}
	return nil
}

// uploadBuffer replaces a geometry buffer with a fresh one holding payload,
// via a queue-destroyed staging buffer. The copy lands when the caller
// submits list.
func (r *Renderer) uploadBuffer(list graphics.CommandList, old graphics.BufferID, name string, payload []byte, usage graphics.BufferUsage) (graphics.BufferID, error) {
	if old != 0 {
		r.device.QueueDestroyBuffer(old)
	}

	size := uint64(len(payload))
	if size == 0 {
		size = 4
	}

	buf, err := r.device.CreateBuffer(graphics.BufferDesc{
		Name:  name,
		Size:  size,
		Usage: usage | graphics.UsageTransferDst,
	})
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", name, err)
	}
	if len(payload) == 0 {
		return buf, nil
	}

	staging, err := r.device.CreateBuffer(graphics.BufferDesc{
		Name:      name + "Staging",
		Size:      size,
		Usage:     graphics.UsageTransferSrc,
		CPUAccess: graphics.CPUAccessWriteOnly,
	})
	if err != nil {
		return 0, fmt.Errorf("creating %s staging: %w", name, err)
	}
	mem, err := r.device.MapBuffer(staging)
	if err != nil {
		return 0, fmt.Errorf("mapping %s staging: %w", name, err)
	}
	copy(mem, payload)
	r.device.UnmapBuffer(staging)
	r.device.QueueDestroyBuffer(staging)

	list.CopyBuffer(buf, 0, staging, 0, size)
	return buf, nil
}

// createBuffers rebuilds every geometry buffer from the packed arrays and
// rebinds the descriptor sets. Full rebuild on any load, same policy as the
// map object renderer.
func (r *Renderer) createBuffers() error {
	list := r.device.CreateCommandList()
	var err error

	if r.vertexBuffer, err = r.uploadBuffer(list, r.vertexBuffer, "cmodelVertices",
		graphics.AsBytes(r.vertices), graphics.UsageStorage); err != nil {
		return err
	}
	if r.indexBuffer, err = r.uploadBuffer(list, r.indexBuffer, "cmodelIndices",
		graphics.AsBytes(r.indices), graphics.UsageIndex|graphics.UsageStorage); err != nil {
		return err
	}
	if r.instanceBuffer, err = r.uploadBuffer(list, r.instanceBuffer, "cmodelInstances",
		graphics.AsBytes(r.instances), graphics.UsageStorage); err != nil {
		return err
	}
	if r.textureUnitBuffer, err = r.uploadBuffer(list, r.textureUnitBuffer, "cmodelTextureUnits",
		graphics.AsBytes(r.textureUnits), graphics.UsageStorage); err != nil {
		return err
	}
	if r.cullingDataBuffer, err = r.uploadBuffer(list, r.cullingDataBuffer, "cmodelCullingData",
		graphics.AsBytes(r.cullingData), graphics.UsageStorage); err != nil {
		return err
	}

	// Bone deform buffers are CPU-writable and rewritten per frame, sized to
	// the arena capacity.
	deformSize := uint64(r.boneAlloc.Capacity()) * graphics.SizeOf[mgl32.Mat4]()
	if deformSize == 0 {
		deformSize = graphics.SizeOf[mgl32.Mat4]()
	}
	for i := range r.boneDeformBuffers {
		if r.boneDeformBuffers[i] != 0 {
			r.device.QueueDestroyBuffer(r.boneDeformBuffers[i])
		}
		if r.boneDeformBuffers[i], err = r.device.CreateBuffer(graphics.BufferDesc{
			Name:      fmt.Sprintf("cmodelBoneDeforms[%d]", i),
			Size:      deformSize,
			Usage:     graphics.UsageStorage,
			CPUAccess: graphics.CPUAccessWriteOnly,
		}); err != nil {
			return fmt.Errorf("creating bone deform buffer: %w", err)
		}
	}

	for _, p := range []*partition{&r.opaque, &r.transparent} {
		if err = r.createPartitionBuffers(list, p); err != nil {
			return err
		}
	}

	if err = r.device.Submit(list, nil, nil); err != nil {
		return fmt.Errorf("uploading complex model buffers: %w", err)
	}

	r.bindDescriptorSets()
	return nil
}

func (r *Renderer) createPartitionBuffers(list graphics.CommandList, p *partition) error {
	var err error
	if p.argumentBuffer, err = r.uploadBuffer(list, p.argumentBuffer, p.name+"DrawArguments",
		graphics.AsBytes(p.drawCalls), graphics.UsageStorage|graphics.UsageIndirectArguments); err != nil {
		return err
	}
	if p.drawCallDataBuffer, err = r.uploadBuffer(list, p.drawCallDataBuffer, p.name+"DrawCallDatas",
		graphics.AsBytes(p.drawCallDatas), graphics.UsageStorage); err != nil {
		return err
	}

	if p.culledArgumentBuffer != 0 {
		r.device.QueueDestroyBuffer(p.culledArgumentBuffer)
	}
	culledSize := uint64(len(p.drawCalls)) * graphics.SizeOf[DrawCall]()
	if culledSize == 0 {
		culledSize = graphics.SizeOf[DrawCall]()
	}
	if p.culledArgumentBuffer, err = r.device.CreateBuffer(graphics.BufferDesc{
		Name:  p.name + "CulledDrawArguments",
		Size:  culledSize,
		Usage: graphics.UsageStorage | graphics.UsageIndirectArguments | graphics.UsageTransferDst,
	}); err != nil {
		return fmt.Errorf("creating %s culled arguments: %w", p.name, err)
	}

	// Both partitions carry a key buffer so the culling shader can write
	// keys unconditionally; only the transparent partition sorts them.
	if p.sortKeyBuffer != 0 {
		r.device.QueueDestroyBuffer(p.sortKeyBuffer)
	}
	keySize := uint64(len(p.drawCalls)) * graphics.SizeOf[sortKey]()
	if keySize == 0 {
		keySize = graphics.SizeOf[sortKey]()
	}
	if p.sortKeyBuffer, err = r.device.CreateBuffer(graphics.BufferDesc{
		Name:  p.name + "SortKeys",
		Size:  keySize,
		Usage: graphics.UsageStorage,
	}); err != nil {
		return fmt.Errorf("creating %s sort keys: %w", p.name, err)
	}
	return nil
}

// bindDescriptorSets points the pass and culling sets at the current buffer
// generation.
func (r *Renderer) bindDescriptorSets() {
	for _, p := range []*partition{&r.opaque, &r.transparent} {
		p.drawSet.BindBuffer("_vertices", r.vertexBuffer)
		p.drawSet.BindBuffer("_instances", r.instanceBuffer)
		p.drawSet.BindBuffer("_textureUnits", r.textureUnitBuffer)
		p.drawSet.BindBuffer("_drawCallDatas", p.drawCallDataBuffer)

		p.cullingSet.BindBuffer("_drawCommands", p.argumentBuffer)
		p.cullingSet.BindBuffer("_culledDrawCommands", p.culledArgumentBuffer)
		p.cullingSet.BindBuffer("_drawCallDatas", p.drawCallDataBuffer)
		p.cullingSet.BindBuffer("_drawCount", p.drawCountBuffer)
		p.cullingSet.BindBuffer("_triangleCount", p.triangleCountBuffer)
		p.cullingSet.BindBuffer("_instances", r.instanceBuffer)
		p.cullingSet.BindBuffer("_cullingData", r.cullingDataBuffer)
		p.cullingSet.BindBuffer("_sortKeys", p.sortKeyBuffer)
	}
}

// uploadBoneDeforms rewrites the frame's bone deform buffer from the CPU
// mirror and binds it for the pass.
func (r *Renderer) uploadBoneDeforms(frameIndex uint8) {
	id := r.boneDeformBuffers[frameIndex%graphics.FrameCount]
	if id == 0 || len(r.boneDeforms) == 0 {
		return
	}
	mem, err := r.device.MapBuffer(id)
	if err != nil {
		return
	}
	copy(mem, graphics.AsBytes(r.boneDeforms))
	r.device.UnmapBuffer(id)
	r.opaque.drawSet.BindBuffer("_boneDeforms", id)
	r.transparent.drawSet.BindBuffer("_boneDeforms", id)
}
