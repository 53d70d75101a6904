package mapobject

import (
	"fmt"

	"github.com/Faultbox/frostgard/internal/engine/graphics"
)

// createPersistentBuffers allocates the counters and readbacks that live for
// the renderer's whole lifetime. The draw count both receives the culling
// kernel's atomics and feeds the indirect draw, so it carries every usage.
func (r *Renderer) createPersistentBuffers() error {
	var err error
	counterUsage := graphics.UsageStorage | graphics.UsageIndirectArguments |
		graphics.UsageTransferSrc | graphics.UsageTransferDst

	if r.drawCountBuffer, err = r.device.CreateBuffer(graphics.BufferDesc{
		Name: "mapObjectDrawCount", Size: 4, Usage: counterUsage,
	}); err != nil {
		return err
	}
	if r.triangleCountBuffer, err = r.device.CreateBuffer(graphics.BufferDesc{
		Name: "mapObjectTriangleCount", Size: 4, Usage: counterUsage,
	}); err != nil {
		return err
	}
	if r.drawCountReadback, err = r.device.CreateBuffer(graphics.BufferDesc{
		Name: "mapObjectDrawCountReadback", Size: 4,
		Usage: graphics.UsageTransferDst, CPUAccess: graphics.CPUAccessReadOnly,
	}); err != nil {
		return err
	}
	if r.triangleCountReadback, err = r.device.CreateBuffer(graphics.BufferDesc{
		Name: "mapObjectTriangleCountReadback", Size: 4,
		Usage: graphics.UsageTransferDst, CPUAccess: graphics.CPUAccessReadOnly,
	}); err != nil {
		return err
	}
	return nil
}

// uploadBuffer replaces a geometry buffer with a fresh one holding payload.
// The old buffer and the staging buffer are queue-destroyed, never freed
// in place, so frames still in flight keep valid memory. The actual copy is
// recorded into list and lands when the caller submits it.
func (r *Renderer) uploadBuffer(list graphics.CommandList, old graphics.BufferID, name string, payload []byte, usage graphics.BufferUsage) (graphics.BufferID, error) {
	if old != 0 {
		r.device.QueueDestroyBuffer(old)
	}

	size := uint64(len(payload))
	if size == 0 {
		// Descriptor sets still need a valid binding behind empty arrays.
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
// rebinds the descriptor sets. Loads are rare and batched, so a full rebuild
// beats tracking dirty ranges.
func (r *Renderer) createBuffers() error {
	list := r.device.CreateCommandList()
	var err error

	if r.vertexBuffer, err = r.uploadBuffer(list, r.vertexBuffer, "mapObjectVertices",
		graphics.AsBytes(r.vertices), graphics.UsageStorage); err != nil {
		return err
	}
	if r.indexBuffer, err = r.uploadBuffer(list, r.indexBuffer, "mapObjectIndices",
		graphics.AsBytes(r.indices), graphics.UsageIndex|graphics.UsageStorage); err != nil {
		return err
	}
	if r.vertexColorBuffer, err = r.uploadBuffer(list, r.vertexColorBuffer, "mapObjectVertexColors",
		graphics.AsBytes(r.vertexColors), graphics.UsageStorage); err != nil {
		return err
	}
	if r.instanceBuffer, err = r.uploadBuffer(list, r.instanceBuffer, "mapObjectInstances",
		graphics.AsBytes(r.instances), graphics.UsageStorage); err != nil {
		return err
	}
	if r.instanceLookupBuffer, err = r.uploadBuffer(list, r.instanceLookupBuffer, "mapObjectInstanceLookup",
		graphics.AsBytes(r.instanceLookup), graphics.UsageStorage); err != nil {
		return err
	}
	if r.materialBuffer, err = r.uploadBuffer(list, r.materialBuffer, "mapObjectMaterials",
		graphics.AsBytes(r.materials), graphics.UsageStorage); err != nil {
		return err
	}
	if r.materialParamsBuffer, err = r.uploadBuffer(list, r.materialParamsBuffer, "mapObjectMaterialParams",
		graphics.AsBytes(r.materialParams), graphics.UsageStorage); err != nil {
		return err
	}
	if r.cullingDataBuffer, err = r.uploadBuffer(list, r.cullingDataBuffer, "mapObjectCullingData",
		graphics.AsBytes(r.cullingData), graphics.UsageStorage); err != nil {
		return err
	}
	if r.argumentBuffer, err = r.uploadBuffer(list, r.argumentBuffer, "mapObjectDrawArguments",
		graphics.AsBytes(r.drawParams), graphics.UsageStorage|graphics.UsageIndirectArguments); err != nil {
		return err
	}

	// The culled argument buffer is GPU-written, same size as the source.
	if r.culledArgumentBuffer != 0 {
		r.device.QueueDestroyBuffer(r.culledArgumentBuffer)
	}
	culledSize := uint64(len(r.drawParams)) * graphics.SizeOf[DrawParameters]()
	if culledSize == 0 {
		culledSize = graphics.SizeOf[DrawParameters]()
	}
	if r.culledArgumentBuffer, err = r.device.CreateBuffer(graphics.BufferDesc{
		Name:  "mapObjectCulledDrawArguments",
		Size:  culledSize,
		Usage: graphics.UsageStorage | graphics.UsageIndirectArguments | graphics.UsageTransferDst,
	}); err != nil {
		return fmt.Errorf("creating mapObjectCulledDrawArguments: %w", err)
	}

	if err = r.device.Submit(list, nil, nil); err != nil {
		return fmt.Errorf("uploading map object buffers: %w", err)
	}

	r.bindDescriptorSets()
	return nil
}

// bindDescriptorSets points the pass and culling sets at the current buffer
// generation. Command lists capture sets by reference, so rebinding here is
// what in-frame passes resolve.
func (r *Renderer) bindDescriptorSets() {
	r.passSet.BindBuffer("_vertices", r.vertexBuffer)
	r.passSet.BindBuffer("_vertexColors", r.vertexColorBuffer)
	r.passSet.BindBuffer("_instances", r.instanceBuffer)
	r.passSet.BindBuffer("_instanceLookup", r.instanceLookupBuffer)
	r.passSet.BindBuffer("_materials", r.materialBuffer)
	r.passSet.BindBuffer("_materialParams", r.materialParamsBuffer)

	r.cullingSet.BindBuffer("_drawCommands", r.argumentBuffer)
	r.cullingSet.BindBuffer("_culledDrawCommands", r.culledArgumentBuffer)
	r.cullingSet.BindBuffer("_drawCount", r.drawCountBuffer)
	r.cullingSet.BindBuffer("_triangleCount", r.triangleCountBuffer)
	r.cullingSet.BindBuffer("_instances", r.instanceBuffer)
	r.cullingSet.BindBuffer("_instanceLookup", r.instanceLookupBuffer)
	r.cullingSet.BindBuffer("_cullingData", r.cullingDataBuffer)
}
