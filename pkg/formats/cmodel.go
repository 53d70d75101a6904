// Complex model (.cmodel) parser. Complex models are the skinned, optionally
// animated models (characters, creatures, doodads): geometry plus texture
// units, render batches and, when animated, bone and sequence tables.
package formats

import (
	"fmt"
)

// Complex model file constants.
const (
	CModelMagic   uint32 = 0x4C444D43 // "CMDL"
	CModelVersion uint32 = 7

	CModelExt = ".cmodel"
)

// CModelFlags is the per-model feature bitfield.
type CModelFlags uint32

const (
	CModelFlagAnimated CModelFlags = 1 << iota
	CModelFlagTwoSided
)

// Animated reports whether the model carries bone and sequence tables.
func (f CModelFlags) Animated() bool { return f&CModelFlagAnimated != 0 }

// CModelSequence is one animation sequence (12 bytes on disk).
type CModelSequence struct {
	ID       uint16
	SubID    uint16
	Duration float32 // seconds
	Flags    uint32
}

// Vec3Track is a keyframed 3-component channel. Times are seconds, sorted
// ascending, len(Times) == len(Values).
type Vec3Track struct {
	Times  []float32
	Values [][3]float32
}

// QuatTrack is a keyframed quaternion channel (x, y, z, w).
type QuatTrack struct {
	Times  []float32
	Values [][4]float32
}

// CModelBone is one bone with per-sequence keyframe tracks. Bones are stored
// parent-first: ParentIndex is always less than the bone's own index, or -1
// for a root bone.
type CModelBone struct {
	ParentIndex int16
	Flags       uint16
	Pivot       [3]float32

	// Indexed by sequence.
	Translation []Vec3Track
	Rotation    []QuatTrack
	Scale       []Vec3Track
}

// CModelVertex is one packed skinned vertex (40 bytes).
type CModelVertex struct {
	Position    [3]float32
	Normal      [3]float32
	UV          [2]float32
	BoneIndices [4]uint8
	BoneWeights [4]uint8
}

// TextureUnit couples a shader selector with up to two texture references
// (12 bytes on disk). Data packs texture flags, material flags and the
// material blending mode.
type TextureUnit struct {
	Data            uint16
	MaterialType    uint16
	TextureNameHash [2]uint32
}

// BlendingMode extracts the material blending mode from the packed Data field.
func (t TextureUnit) BlendingMode() uint16 { return t.Data & 0x7 }

// Transparent reports whether this unit's blending mode requires back-to-front
// compositing. Modes 0 (opaque) and 1 (alpha keyed) render in the opaque pass.
func (t TextureUnit) Transparent() bool { return t.BlendingMode() >= 2 }

// CModelRenderBatch is one draw-range record with its texture-unit span
// (12 bytes on disk).
type CModelRenderBatch struct {
	IndexStart       uint32
	IndexCount       uint32
	TextureUnitStart uint16
	TextureUnitCount uint16
}

// CModel is a fully parsed complex model file.
type CModel struct {
	Flags         CModelFlags
	Sequences     []CModelSequence
	Bones         []CModelBone
	Vertices      []CModelVertex
	Indices       []uint16
	TextureUnits  []TextureUnit
	RenderBatches []CModelRenderBatch
}

// ParseCModel parses a .cmodel byte stream.
func ParseCModel(data []byte) (*CModel, error) {
	r := NewReader(data)

	if err := checkHeader(r, CModelMagic, CModelVersion, "complex model"); err != nil {
		return nil, err
	}

	flags, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("model flags: %w", err)
	}
	m := &CModel{Flags: CModelFlags(flags)}

	// Sequences, 12 bytes each.
	seqCount, err := r.Count(12)
	if err != nil {
		return nil, fmt.Errorf("sequence count: %w", err)
	}
	m.Sequences = make([]CModelSequence, seqCount)
	for i := range m.Sequences {
		s := &m.Sequences[i]
		if s.ID, err = r.Uint16(); err != nil {
			return nil, fmt.Errorf("sequence %d: %w", i, err)
		}
		if s.SubID, err = r.Uint16(); err != nil {
			return nil, fmt.Errorf("sequence %d: %w", i, err)
		}
		if s.Duration, err = r.Float32(); err != nil {
			return nil, fmt.Errorf("sequence %d: %w", i, err)
		}
		if s.Flags, err = r.Uint32(); err != nil {
			return nil, fmt.Errorf("sequence %d: %w", i, err)
		}
	}

	// Bones, at least 16 bytes each before their tracks.
	boneCount, err := r.Count(16)
	if err != nil {
		return nil, fmt.Errorf("bone count: %w", err)
	}
	m.Bones = make([]CModelBone, boneCount)
	for i := range m.Bones {
		if err := readBone(r, &m.Bones[i], seqCount); err != nil {
			return nil, fmt.Errorf("bone %d: %w", i, err)
		}
		if p := m.Bones[i].ParentIndex; p >= int16(i) {
			return nil, fmt.Errorf("%w: bone %d has parent %d, bones must be parent-first", ErrCorrupt, i, p)
		}
	}

	// Vertices, 40 bytes each.
	vertexCount, err := r.Count(40)
	if err != nil {
		return nil, fmt.Errorf("vertex count: %w", err)
	}
	m.Vertices = make([]CModelVertex, vertexCount)
	for i := range m.Vertices {
		if err := readCModelVertex(r, &m.Vertices[i]); err != nil {
			return nil, fmt.Errorf("vertex %d: %w", i, err)
		}
	}

	// Indices.
	indexCount, err := r.Count(2)
	if err != nil {
		return nil, fmt.Errorf("index count: %w", err)
	}
	if m.Indices, err = r.Uint16Slice(indexCount); err != nil {
		return nil, fmt.Errorf("indices: %w", err)
	}

	// Texture units, 12 bytes each.
	unitCount, err := r.Count(12)
	if err != nil {
		return nil, fmt.Errorf("texture unit count: %w", err)
	}
	m.TextureUnits = make([]TextureUnit, unitCount)
	for i := range m.TextureUnits {
		u := &m.TextureUnits[i]
		if u.Data, err = r.Uint16(); err != nil {
			return nil, fmt.Errorf("texture unit %d: %w", i, err)
		}
		if u.MaterialType, err = r.Uint16(); err != nil {
			return nil, fmt.Errorf("texture unit %d: %w", i, err)
		}
		for j := range u.TextureNameHash {
			if u.TextureNameHash[j], err = r.Uint32(); err != nil {
				return nil, fmt.Errorf("texture unit %d: %w", i, err)
			}
		}
	}

	// Render batches, 12 bytes each.
	batchCount, err := r.Count(12)
	if err != nil {
		return nil, fmt.Errorf("render batch count: %w", err)
	}
	m.RenderBatches = make([]CModelRenderBatch, batchCount)
	for i := range m.RenderBatches {
		b := &m.RenderBatches[i]
		if b.IndexStart, err = r.Uint32(); err != nil {
			return nil, fmt.Errorf("render batch %d: %w", i, err)
		}
		if b.IndexCount, err = r.Uint32(); err != nil {
			return nil, fmt.Errorf("render batch %d: %w", i, err)
		}
		if b.TextureUnitStart, err = r.Uint16(); err != nil {
			return nil, fmt.Errorf("render batch %d: %w", i, err)
		}
		if b.TextureUnitCount, err = r.Uint16(); err != nil {
			return nil, fmt.Errorf("render batch %d: %w", i, err)
		}
		if int(b.TextureUnitStart)+int(b.TextureUnitCount) > len(m.TextureUnits) {
			return nil, fmt.Errorf("%w: render batch %d texture unit range out of bounds", ErrCorrupt, i)
		}
	}

	return m, nil
}

// BatchTransparent reports whether render batch b composites back-to-front,
// decided from the blending mode of its first texture unit. The classification
// is fixed at load time and never changes afterwards.
func (m *CModel) BatchTransparent(b CModelRenderBatch) bool {
	if b.TextureUnitCount == 0 {
		return false
	}
	return m.TextureUnits[b.TextureUnitStart].Transparent()
}

func readBone(r *Reader, bone *CModelBone, seqCount int) error {
	var err error
	if bone.ParentIndex, err = r.Int16(); err != nil {
		return err
	}
	if bone.Flags, err = r.Uint16(); err != nil {
		return err
	}
	if bone.Pivot, err = r.Vec3(); err != nil {
		return err
	}

	bone.Translation = make([]Vec3Track, seqCount)
	bone.Rotation = make([]QuatTrack, seqCount)
	bone.Scale = make([]Vec3Track, seqCount)
	for s := 0; s < seqCount; s++ {
		if bone.Translation[s], err = readVec3Track(r); err != nil {
			return fmt.Errorf("translation track %d: %w", s, err)
		}
		if bone.Rotation[s], err = readQuatTrack(r); err != nil {
			return fmt.Errorf("rotation track %d: %w", s, err)
		}
		if bone.Scale[s], err = readVec3Track(r); err != nil {
			return fmt.Errorf("scale track %d: %w", s, err)
		}
	}
	return nil
}

func readVec3Track(r *Reader) (Vec3Track, error) {
	var t Vec3Track
	count, err := r.Count(16)
	if err != nil {
		return t, err
	}
	t.Times = make([]float32, count)
	t.Values = make([][3]float32, count)
	for i := 0; i < count; i++ {
		if t.Times[i], err = r.Float32(); err != nil {
			return t, err
		}
		if t.Values[i], err = r.Vec3(); err != nil {
			return t, err
		}
	}
	return t, nil
}

func readQuatTrack(r *Reader) (QuatTrack, error) {
	var t QuatTrack
	count, err := r.Count(20)
	if err != nil {
		return t, err
	}
	t.Times = make([]float32, count)
	t.Values = make([][4]float32, count)
	for i := 0; i < count; i++ {
		if t.Times[i], err = r.Float32(); err != nil {
			return t, err
		}
		if t.Values[i], err = r.Vec4(); err != nil {
			return t, err
		}
	}
	return t, nil
}

func readCModelVertex(r *Reader, v *CModelVertex) error {
	var err error
	if v.Position, err = r.Vec3(); err != nil {
		return err
	}
	if v.Normal, err = r.Vec3(); err != nil {
		return err
	}
	for i := range v.UV {
		if v.UV[i], err = r.Float32(); err != nil {
			return err
		}
	}
	b, err := r.Bytes(8)
	if err != nil {
		return err
	}
	copy(v.BoneIndices[:], b[:4])
	copy(v.BoneWeights[:], b[4:])
	return nil
}
