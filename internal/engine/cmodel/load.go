package cmodel

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/frostgard/internal/logger"
	"github.com/Faultbox/frostgard/pkg/formats"
	"github.com/Faultbox/frostgard/pkg/geom"
)

// ExecuteLoad drains the registration queue: parses every model not seen
// before, clones draw records for every placement and rebuilds the GPU
// buffers once at the end. A placement whose model fails to parse is
// dropped; the remaining registrations still load.
func (r *Renderer) ExecuteLoad() error {
	if len(r.toBeLoaded) == 0 {
		return nil
	}

	dirty := false
	for _, req := range r.toBeLoaded {
		modelID, ok := r.nameHashToIndex[req.nameHash]
		if !ok {
			id, err := r.loadComplexModel(req.name, req.nameHash)
			if err != nil {
				logger.Log.Error("failed to load complex model",
					zap.String("name", req.name),
					zap.Error(err))
				continue
			}
			modelID = id
			r.nameHashToIndex[req.nameHash] = modelID
		}
		r.addInstance(modelID, req.placement)
		dirty = true
	}
	r.toBeLoaded = r.toBeLoaded[:0]

	if !dirty {
		return nil
	}

	for _, p := range []*partition{&r.opaque, &r.transparent} {
		p.numTriangles = 0
		for i := range p.drawCalls {
			p.numTriangles += p.drawCalls[i].IndexCount / 3
		}
	}

	logger.Log.Info("complex models loaded",
		zap.Int("loadedModels", len(r.loaded)),
		zap.Int("instances", len(r.instances)),
		zap.Int("opaqueDraws", len(r.opaque.drawCalls)),
		zap.Int("transparentDraws", len(r.transparent.drawCalls)),
		zap.Uint32("boneArena", r.boneAlloc.Capacity()))

	return r.createBuffers()
}

// loadComplexModel parses one model file into the packed arrays. A model is
// a single file, so there is no multi-file rollback; a parse failure leaves
// the arrays untouched.
func (r *Renderer) loadComplexModel(name string, nameHash uint32) (uint32, error) {
	path := filepath.Join(r.assetDir, filepath.FromSlash(name)+formats.CModelExt)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading model: %w", err)
	}
	model, err := formats.ParseCModel(data)
	if err != nil {
		return 0, fmt.Errorf("parsing model: %w", err)
	}

	vertexOffset := uint32(len(r.vertices))
	baseIndexOffset := uint32(len(r.indices))
	r.vertices = append(r.vertices, model.Vertices...)
	r.indices = append(r.indices, model.Indices...)

	textureUnitBase := uint32(len(r.textureUnits))
	for _, unit := range model.TextureUnits {
		gpu := TextureUnitData{
			BlendingMode: uint32(unit.BlendingMode()),
			MaterialType: uint32(unit.MaterialType),
		}
		for slot, hash := range unit.TextureNameHash {
			gpu.TextureIDs[slot] = hash
			if hash != formats.InvalidTextureHash {
				if _, ok := r.textures.Resolve(hash); !ok {
					logger.Log.Debug("complex model references unregistered texture",
						zap.String("model", name),
						zap.Uint32("hash", hash))
				}
			}
		}
		r.textureUnits = append(r.textureUnits, gpu)
	}

	cullingDataID := uint32(len(r.cullingData))
	r.cullingData = append(r.cullingData, modelBounds(model.Vertices))

	loaded := LoadedComplexModel{
		Name:          name,
		NameHash:      nameHash,
		Model:         model,
		CullingDataID: cullingDataID,
	}
	for _, batch := range model.RenderBatches {
		loaded.batches = append(loaded.batches, batchTemplate{
			draw: DrawCall{
				IndexCount:    batch.IndexCount,
				InstanceCount: 1,
				FirstIndex:    baseIndexOffset + batch.IndexStart,
				VertexOffset:  vertexOffset,
			},
			textureUnitOffset: textureUnitBase + uint32(batch.TextureUnitStart),
			numTextureUnits:   uint32(batch.TextureUnitCount),
			transparent:       model.BatchTransparent(batch),
		})
	}

	modelID := uint32(len(r.loaded))
	r.loaded = append(r.loaded, loaded)
	return modelID, nil
}

// addInstance clones the model's draw templates for one placement into the
// opaque and transparent partitions. Animated models additionally get a bone
// deform range primed with identity matrices.
func (r *Renderer) addInstance(modelID uint32, placement formats.Placement) {
	loaded := &r.loaded[modelID]
	instanceID := uint32(len(r.instances))

	inst := InstanceData{
		InstanceMatrix:   placementMatrix(placement),
		ModelID:          modelID,
		BoneDeformOffset: InvalidBoneDeformOffset,
	}

	if numBones := uint32(len(loaded.Model.Bones)); loaded.Model.Flags.Animated() && numBones > 0 {
		offset, ok := r.boneAlloc.Alloc(numBones)
		if !ok {
			grown := r.boneAlloc.Capacity()*2 + numBones
			r.boneAlloc.Grow(grown)
			offset, _ = r.boneAlloc.Alloc(numBones)
		}
		if need := int(offset + numBones); need > len(r.boneDeforms) {
			extra := make([]mgl32.Mat4, need-len(r.boneDeforms))
			r.boneDeforms = append(r.boneDeforms, extra...)
		}
		for i := uint32(0); i < numBones; i++ {
			r.boneDeforms[offset+i] = mgl32.Ident4()
		}

		inst.BoneDeformOffset = offset
		inst.Animated = 1
		r.animations[instanceID] = &instanceAnimation{
			modelID:    modelID,
			boneOffset: offset,
			boneCount:  numBones,
		}
	}

	r.instances = append(r.instances, inst)

	for _, bt := range loaded.batches {
		part := &r.opaque
		if bt.transparent {
			part = &r.transparent
		}
		drawID := uint32(len(part.drawCalls))
		draw := bt.draw
		draw.FirstInstance = drawID
		part.drawCalls = append(part.drawCalls, draw)
		part.drawCallDatas = append(part.drawCallDatas, DrawCallData{
			InstanceID:        instanceID,
			CullingDataID:     loaded.CullingDataID,
			TextureUnitOffset: bt.textureUnitOffset,
			NumTextureUnits:   bt.numTextureUnits,
		})
	}
	loaded.instanceIDs = append(loaded.instanceIDs, instanceID)
}

// modelBounds computes the model-space bounding volume from raw vertex
// positions, once at load time.
func modelBounds(vertices []formats.CModelVertex) formats.CullingData {
	box := geom.InvertedAABB()
	for i := range vertices {
		box.Extend(mgl32.Vec3(vertices[i].Position))
	}
	if len(vertices) == 0 {
		box = geom.AABB{}
	}
	return formats.CullingData{
		MinBoundingBox:       [3]float32(box.Min),
		MaxBoundingBox:       [3]float32(box.Max),
		BoundingSphereRadius: box.SphereRadius(),
	}
}
