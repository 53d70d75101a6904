// Map object root (.mroot) and mesh (.mmesh) parsers. A map object is a
// static world structure split into a root file carrying materials plus a
// numbered series of mesh files carrying geometry and render batches.
package formats

import (
	"fmt"
)

// Map object file constants.
const (
	MapObjectRootMagic   uint32 = 0x52424F4D // "MOBR"
	MapObjectRootVersion uint32 = 4

	MapObjectMeshMagic   uint32 = 0x4D424F4D // "MOBM"
	MapObjectMeshVersion uint32 = 4

	MapObjectRootExt = ".mroot"
	MapObjectMeshExt = ".mmesh"

	// InvalidTextureHash marks an unused texture slot in a material.
	InvalidTextureHash uint32 = 0xFFFFFFFF

	maxTexturesPerMaterial = 3
	maxVertexColorSets     = 2

	// Per-triangle collision metadata is present in the file but unused by
	// the renderer; it is skipped, not decoded.
	triangleDataSize = 4
)

// MapObjectMaterialFlags is a bitfield on a map object material.
type MapObjectMaterialFlags uint32

const (
	MaterialFlagUnlit MapObjectMaterialFlags = 1 << iota
	MaterialFlagDepthWriteDisabled
)

// Unlit reports whether the material ignores scene lighting.
func (f MapObjectMaterialFlags) Unlit() bool { return f&MaterialFlagUnlit != 0 }

// MapObjectMaterial is one fixed-layout material record (20 bytes).
type MapObjectMaterial struct {
	MaterialType     uint16
	TransparencyMode uint16
	Flags            MapObjectMaterialFlags
	TextureNameHash  [maxTexturesPerMaterial]uint32
}

// MapObjectRoot is the parsed root file: materials shared by all meshes and
// the number of numbered mesh files to load after it.
type MapObjectRoot struct {
	Materials []MapObjectMaterial
	NumMeshes uint32
}

// MapObjectRenderFlags is a per-mesh render bitfield.
type MapObjectRenderFlags uint32

const (
	RenderFlagExterior MapObjectRenderFlags = 1 << iota
	RenderFlagExteriorLit
	RenderFlagNoBatching
)

// MapObjectVertex is one packed vertex (32 bytes).
type MapObjectVertex struct {
	Position [3]float32
	Normal   [3]float32
	UV       [2]float32
}

// MapObjectRenderBatch is one draw-range record inside a mesh (12 bytes).
type MapObjectRenderBatch struct {
	StartIndex uint32
	IndexCount uint32
	MaterialID uint32
}

// CullingData is the per-batch (or per-model) bounding volume consumed by the
// compute culling pass.
type CullingData struct {
	MinBoundingBox       [3]float32
	MaxBoundingBox       [3]float32
	BoundingSphereRadius float32
}

// MapObjectMesh is one parsed mesh file.
type MapObjectMesh struct {
	Flags         MapObjectRenderFlags
	Indices       []uint16
	Vertices      []MapObjectVertex
	VertexColors  [maxVertexColorSets][]uint32
	RenderBatches []MapObjectRenderBatch
	CullingData   []CullingData // one entry per render batch
}

// ParseMapObjectRoot parses a .mroot byte stream.
func ParseMapObjectRoot(data []byte) (*MapObjectRoot, error) {
	r := NewReader(data)

	if err := checkHeader(r, MapObjectRootMagic, MapObjectRootVersion, "map object root"); err != nil {
		return nil, err
	}

	numMaterials, err := r.Count(8 + maxTexturesPerMaterial*4)
	if err != nil {
		return nil, fmt.Errorf("material count: %w", err)
	}

	root := &MapObjectRoot{
		Materials: make([]MapObjectMaterial, 0, numMaterials),
	}

	for i := 0; i < numMaterials; i++ {
		var m MapObjectMaterial
		if m.MaterialType, err = r.Uint16(); err != nil {
			return nil, fmt.Errorf("material %d: %w", i, err)
		}
		if m.TransparencyMode, err = r.Uint16(); err != nil {
			return nil, fmt.Errorf("material %d: %w", i, err)
		}
		flags, err := r.Uint32()
		if err != nil {
			return nil, fmt.Errorf("material %d: %w", i, err)
		}
		m.Flags = MapObjectMaterialFlags(flags)
		for j := 0; j < maxTexturesPerMaterial; j++ {
			if m.TextureNameHash[j], err = r.Uint32(); err != nil {
				return nil, fmt.Errorf("material %d texture %d: %w", i, j, err)
			}
		}
		root.Materials = append(root.Materials, m)
	}

	if root.NumMeshes, err = r.Uint32(); err != nil {
		return nil, fmt.Errorf("mesh count: %w", err)
	}

	return root, nil
}

// ParseMapObjectMesh parses a .mmesh byte stream.
func ParseMapObjectMesh(data []byte) (*MapObjectMesh, error) {
	r := NewReader(data)

	if err := checkHeader(r, MapObjectMeshMagic, MapObjectMeshVersion, "map object mesh"); err != nil {
		return nil, err
	}

	flags, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("render flags: %w", err)
	}

	mesh := &MapObjectMesh{Flags: MapObjectRenderFlags(flags)}

	// Indices.
	indexCount, err := r.Count(2)
	if err != nil {
		return nil, fmt.Errorf("index count: %w", err)
	}
	if mesh.Indices, err = r.Uint16Slice(indexCount); err != nil {
		return nil, fmt.Errorf("indices: %w", err)
	}

	// Vertices, 32 bytes each.
	vertexCount, err := r.Count(32)
	if err != nil {
		return nil, fmt.Errorf("vertex count: %w", err)
	}
	mesh.Vertices = make([]MapObjectVertex, vertexCount)
	for i := range mesh.Vertices {
		v := &mesh.Vertices[i]
		if v.Position, err = r.Vec3(); err != nil {
			return nil, fmt.Errorf("vertex %d: %w", i, err)
		}
		if v.Normal, err = r.Vec3(); err != nil {
			return nil, fmt.Errorf("vertex %d: %w", i, err)
		}
		if v.UV[0], err = r.Float32(); err != nil {
			return nil, fmt.Errorf("vertex %d: %w", i, err)
		}
		if v.UV[1], err = r.Float32(); err != nil {
			return nil, fmt.Errorf("vertex %d: %w", i, err)
		}
	}

	// Vertex color sets.
	colorSetCount, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("vertex color set count: %w", err)
	}
	if colorSetCount > maxVertexColorSets {
		return nil, fmt.Errorf("%w: %d vertex color sets, at most %d supported", ErrCorrupt, colorSetCount, maxVertexColorSets)
	}
	for i := uint32(0); i < colorSetCount; i++ {
		colorCount, err := r.Uint32()
		if err != nil {
			return nil, fmt.Errorf("vertex color set %d: %w", i, err)
		}
		if colorCount == 0 {
			continue
		}
		if mesh.VertexColors[i], err = r.Uint32Slice(int(colorCount)); err != nil {
			return nil, fmt.Errorf("vertex color set %d: %w", i, err)
		}
	}

	// Triangle data is skipped, not decoded.
	triangleDataCount, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("triangle data count: %w", err)
	}
	if err := r.Skip(int(triangleDataCount) * triangleDataSize); err != nil {
		return nil, fmt.Errorf("triangle data: %w", err)
	}

	// Render batches, 12 bytes each before their culling records.
	batchCount, err := r.Count(12)
	if err != nil {
		return nil, fmt.Errorf("render batch count: %w", err)
	}
	mesh.RenderBatches = make([]MapObjectRenderBatch, batchCount)
	for i := range mesh.RenderBatches {
		b := &mesh.RenderBatches[i]
		if b.StartIndex, err = r.Uint32(); err != nil {
			return nil, fmt.Errorf("render batch %d: %w", i, err)
		}
		if b.IndexCount, err = r.Uint32(); err != nil {
			return nil, fmt.Errorf("render batch %d: %w", i, err)
		}
		if b.MaterialID, err = r.Uint32(); err != nil {
			return nil, fmt.Errorf("render batch %d: %w", i, err)
		}
	}

	// One culling record per render batch.
	mesh.CullingData = make([]CullingData, batchCount)
	for i := range mesh.CullingData {
		if mesh.CullingData[i], err = readCullingData(r); err != nil {
			return nil, fmt.Errorf("culling data %d: %w", i, err)
		}
	}

	return mesh, nil
}

func readCullingData(r *Reader) (CullingData, error) {
	var cd CullingData
	var err error
	if cd.MinBoundingBox, err = r.Vec3(); err != nil {
		return cd, err
	}
	if cd.MaxBoundingBox, err = r.Vec3(); err != nil {
		return cd, err
	}
	if cd.BoundingSphereRadius, err = r.Float32(); err != nil {
		return cd, err
	}
	return cd, nil
}
