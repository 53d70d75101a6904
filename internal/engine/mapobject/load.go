package mapobject

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Faultbox/frostgard/internal/logger"
	"github.com/Faultbox/frostgard/pkg/formats"
)

// arrayMarks snapshots the packed array lengths so a failed load can be
// rolled back without leaving orphan geometry behind.
type arrayMarks struct {
	vertices       int
	indices        int
	vertexColors   int
	materials      int
	materialParams int
	cullingData    int
}

func (r *Renderer) marks() arrayMarks {
	return arrayMarks{
		vertices:       len(r.vertices),
		indices:        len(r.indices),
		vertexColors:   len(r.vertexColors),
		materials:      len(r.materials),
		materialParams: len(r.materialParams),
		cullingData:    len(r.cullingData),
	}
}

func (r *Renderer) rollback(m arrayMarks) {
	r.vertices = r.vertices[:m.vertices]
	r.indices = r.indices[:m.indices]
	r.vertexColors = r.vertexColors[:m.vertexColors]
	r.materials = r.materials[:m.materials]
	r.materialParams = r.materialParams[:m.materialParams]
	r.cullingData = r.cullingData[:m.cullingData]
}

// ExecuteLoad drains the registration queue: parses every object not seen
// before, clones draw records for every placement and rebuilds the GPU
// buffers once at the end. A placement whose object fails to parse is
// dropped; the remaining registrations still load.
func (r *Renderer) ExecuteLoad() error {
	if len(r.toBeLoaded) == 0 {
		return nil
	}

	dirty := false
	for _, req := range r.toBeLoaded {
		objectID, ok := r.nameHashToIndex[req.nameHash]
		if !ok {
			id, err := r.loadMapObject(req.name, req.nameHash)
			if err != nil {
				logger.Log.Error("failed to load map object",
					zap.String("name", req.name),
					zap.Error(err))
				continue
			}
			objectID = id
			r.nameHashToIndex[req.nameHash] = objectID
		}
		r.addInstance(objectID, req.placement)
		dirty = true
	}
	r.toBeLoaded = r.toBeLoaded[:0]

	if !dirty {
		return nil
	}

	r.numTriangles = 0
	for i := range r.drawParams {
		r.numTriangles += r.drawParams[i].IndexCount / 3
	}

	logger.Log.Info("map objects loaded",
		zap.Int("loadedObjects", len(r.loaded)),
		zap.Int("instances", len(r.instances)),
		zap.Int("drawCalls", len(r.drawParams)),
		zap.Uint32("triangles", r.numTriangles))

	return r.createBuffers()
}

// loadMapObject parses an object's root file and all its numbered mesh files
// into the packed arrays. On any failure the arrays are rolled back to their
// pre-load state and the object is not emplaced.
func (r *Renderer) loadMapObject(name string, nameHash uint32) (uint32, error) {
	m := r.marks()

	base := filepath.Join(r.assetDir, filepath.FromSlash(name))
	rootData, err := os.ReadFile(base + formats.MapObjectRootExt)
	if err != nil {
		return 0, fmt.Errorf("reading root: %w", err)
	}
	root, err := formats.ParseMapObjectRoot(rootData)
	if err != nil {
		return 0, fmt.Errorf("parsing root: %w", err)
	}

	baseMaterial := uint32(len(r.materials))
	for _, mat := range root.Materials {
		gpu := Material{
			MaterialType: uint32(mat.MaterialType),
			AlphaTestVal: alphaTestValue(mat.TransparencyMode),
		}
		if mat.Flags.Unlit() {
			gpu.Unlit = 1
		}
		for slot, hash := range mat.TextureNameHash {
			gpu.TextureIDs[slot] = hash
			if hash != formats.InvalidTextureHash {
				if _, ok := r.textures.Resolve(hash); !ok {
					logger.Log.Debug("map object references unregistered texture",
						zap.String("object", name),
						zap.Uint32("hash", hash))
				}
			}
		}
		r.materials = append(r.materials, gpu)
	}

	obj := LoadedMapObject{Name: name, NameHash: nameHash}

	for meshIndex := uint32(0); meshIndex < root.NumMeshes; meshIndex++ {
		meshPath := fmt.Sprintf("%s_%03d%s", base, meshIndex, formats.MapObjectMeshExt)
		meshData, err := os.ReadFile(meshPath)
		if err != nil {
			r.rollback(m)
			return 0, fmt.Errorf("reading mesh %d: %w", meshIndex, err)
		}
		mesh, err := formats.ParseMapObjectMesh(meshData)
		if err != nil {
			r.rollback(m)
			return 0, fmt.Errorf("parsing mesh %d: %w", meshIndex, err)
		}
		r.appendMesh(&obj, mesh, baseMaterial)
	}

	objectID := uint32(len(r.loaded))
	r.loaded = append(r.loaded, obj)
	return objectID, nil
}

// appendMesh packs one mesh's geometry into the shared arrays and records a
// batch template per render batch.
func (r *Renderer) appendMesh(obj *LoadedMapObject, mesh *formats.MapObjectMesh, baseMaterial uint32) {
	vertexOffset := uint32(len(r.vertices))
	baseIndexOffset := uint32(len(r.indices))
	r.vertices = append(r.vertices, mesh.Vertices...)
	r.indices = append(r.indices, mesh.Indices...)

	colorOffsets := [2]uint32{InvalidVertexColorOffset, InvalidVertexColorOffset}
	for set, colors := range mesh.VertexColors {
		if len(colors) == 0 {
			continue
		}
		colorOffsets[set] = uint32(len(r.vertexColors))
		r.vertexColors = append(r.vertexColors, colors...)
	}

	exteriorLit := uint32(0)
	if mesh.Flags&(formats.RenderFlagExterior|formats.RenderFlagExteriorLit) != 0 {
		exteriorLit = 1
	}

	baseCulling := uint32(len(r.cullingData))
	r.cullingData = append(r.cullingData, mesh.CullingData...)

	for batchIndex, batch := range mesh.RenderBatches {
		materialParamID := uint32(len(r.materialParams))
		r.materialParams = append(r.materialParams, MaterialParameters{
			MaterialID:  baseMaterial + batch.MaterialID,
			ExteriorLit: exteriorLit,
		})

		obj.batches = append(obj.batches, batchTemplate{
			draw: DrawParameters{
				IndexCount:    batch.IndexCount,
				InstanceCount: 1,
				FirstIndex:    baseIndexOffset + batch.StartIndex,
				VertexOffset:  vertexOffset,
			},
			cullingDataID:      baseCulling + uint32(batchIndex),
			materialParamID:    materialParamID,
			vertexOffset:       vertexOffset,
			vertexColor0Offset: colorOffsets[0],
			vertexColor1Offset: colorOffsets[1],
		})
	}
}

// addInstance clones the object's draw templates for one placement. Each
// clone's FirstInstance holds its own record index, which is how the culling
// kernel and the vertex stage find the lookup data.
func (r *Renderer) addInstance(objectID uint32, placement formats.Placement) {
	instanceID := uint32(len(r.instances))
	r.instances = append(r.instances, InstanceData{InstanceMatrix: placementMatrix(placement)})

	obj := &r.loaded[objectID]
	for _, bt := range obj.batches {
		drawID := uint32(len(r.drawParams))
		draw := bt.draw
		draw.FirstInstance = drawID
		r.drawParams = append(r.drawParams, draw)

		lookup := InstanceLookupData{
			InstanceID:         uint16(instanceID),
			MaterialParamID:    uint16(bt.materialParamID),
			CullingDataID:      uint16(bt.cullingDataID),
			VertexOffset:       bt.vertexOffset,
			VertexColor0Offset: bt.vertexColor0Offset,
			VertexColor1Offset: bt.vertexColor1Offset,
			LoadedObjectID:     objectID,
		}
		if bt.vertexColor0Offset != InvalidVertexColorOffset {
			lookup.VertexColor0ID = 1
		}
		if bt.vertexColor1Offset != InvalidVertexColorOffset {
			lookup.VertexColor1ID = 1
		}
		r.instanceLookup = append(r.instanceLookup, lookup)
	}
	obj.instanceIDs = append(obj.instanceIDs, instanceID)
}

// alphaTestValue maps a material transparency mode to the alpha cutoff the
// pixel stage tests against. Mode 1 is classic alpha keying.
func alphaTestValue(mode uint16) float32 {
	if mode == 1 {
		return 128.0 / 255.0
	}
	return -1
}
