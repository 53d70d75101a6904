package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// buildCModel assembles a synthetic .cmodel buffer.
func buildCModel(version uint32, m *CModel) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, CModelMagic)
	binary.Write(buf, binary.LittleEndian, version)
	binary.Write(buf, binary.LittleEndian, uint32(m.Flags))

	binary.Write(buf, binary.LittleEndian, uint32(len(m.Sequences)))
	for _, s := range m.Sequences {
		binary.Write(buf, binary.LittleEndian, s.ID)
		binary.Write(buf, binary.LittleEndian, s.SubID)
		binary.Write(buf, binary.LittleEndian, s.Duration)
		binary.Write(buf, binary.LittleEndian, s.Flags)
	}

	writeVec3Track := func(t Vec3Track) {
		binary.Write(buf, binary.LittleEndian, uint32(len(t.Times)))
		for i := range t.Times {
			binary.Write(buf, binary.LittleEndian, t.Times[i])
			binary.Write(buf, binary.LittleEndian, t.Values[i])
		}
	}
	writeQuatTrack := func(t QuatTrack) {
		binary.Write(buf, binary.LittleEndian, uint32(len(t.Times)))
		for i := range t.Times {
			binary.Write(buf, binary.LittleEndian, t.Times[i])
			binary.Write(buf, binary.LittleEndian, t.Values[i])
		}
	}

	binary.Write(buf, binary.LittleEndian, uint32(len(m.Bones)))
	for _, b := range m.Bones {
		binary.Write(buf, binary.LittleEndian, b.ParentIndex)
		binary.Write(buf, binary.LittleEndian, b.Flags)
		binary.Write(buf, binary.LittleEndian, b.Pivot)
		for s := range m.Sequences {
			writeVec3Track(trackOrEmptyVec3(b.Translation, s))
			writeQuatTrack(trackOrEmptyQuat(b.Rotation, s))
			writeVec3Track(trackOrEmptyVec3(b.Scale, s))
		}
	}

	binary.Write(buf, binary.LittleEndian, uint32(len(m.Vertices)))
	for _, v := range m.Vertices {
		binary.Write(buf, binary.LittleEndian, v.Position)
		binary.Write(buf, binary.LittleEndian, v.Normal)
		binary.Write(buf, binary.LittleEndian, v.UV)
		buf.Write(v.BoneIndices[:])
		buf.Write(v.BoneWeights[:])
	}

	binary.Write(buf, binary.LittleEndian, uint32(len(m.Indices)))
	binary.Write(buf, binary.LittleEndian, m.Indices)

	binary.Write(buf, binary.LittleEndian, uint32(len(m.TextureUnits)))
	for _, u := range m.TextureUnits {
		binary.Write(buf, binary.LittleEndian, u.Data)
		binary.Write(buf, binary.LittleEndian, u.MaterialType)
		binary.Write(buf, binary.LittleEndian, u.TextureNameHash)
	}

	binary.Write(buf, binary.LittleEndian, uint32(len(m.RenderBatches)))
	for _, b := range m.RenderBatches {
		binary.Write(buf, binary.LittleEndian, b.IndexStart)
		binary.Write(buf, binary.LittleEndian, b.IndexCount)
		binary.Write(buf, binary.LittleEndian, b.TextureUnitStart)
		binary.Write(buf, binary.LittleEndian, b.TextureUnitCount)
	}
	return buf.Bytes()
}

func trackOrEmptyVec3(tracks []Vec3Track, s int) Vec3Track {
	if s < len(tracks) {
		return tracks[s]
	}
	return Vec3Track{}
}

func trackOrEmptyQuat(tracks []QuatTrack, s int) QuatTrack {
	if s < len(tracks) {
		return tracks[s]
	}
	return QuatTrack{}
}

func testCModel() *CModel {
	return &CModel{
		Flags: CModelFlagAnimated,
		Sequences: []CModelSequence{
			{ID: 0, Duration: 2.0},
			{ID: 1, Duration: 0.5},
		},
		Bones: []CModelBone{
			{
				ParentIndex: -1,
				Rotation: []QuatTrack{
					{Times: []float32{0, 1, 2}, Values: [][4]float32{{0, 0, 0, 1}, {0, 0.7071, 0, 0.7071}, {0, 1, 0, 0}}},
					{},
				},
			},
			{
				ParentIndex: 0,
				Pivot:       [3]float32{0, 1, 0},
				Translation: []Vec3Track{
					{Times: []float32{0, 2}, Values: [][3]float32{{0, 0, 0}, {0, 1, 0}}},
					{},
				},
			},
		},
		Vertices: []CModelVertex{
			{Position: [3]float32{0, 0, 0}, BoneIndices: [4]uint8{0, 0, 0, 0}, BoneWeights: [4]uint8{255, 0, 0, 0}},
			{Position: [3]float32{0, 2, 0}, BoneIndices: [4]uint8{1, 0, 0, 0}, BoneWeights: [4]uint8{255, 0, 0, 0}},
			{Position: [3]float32{1, 1, 0}, BoneIndices: [4]uint8{1, 0, 0, 0}, BoneWeights: [4]uint8{128, 127, 0, 0}},
		},
		Indices: []uint16{0, 1, 2, 2, 1, 0},
		TextureUnits: []TextureUnit{
			{Data: 0, MaterialType: 1, TextureNameHash: [2]uint32{0x1111, InvalidTextureHash}},
			{Data: 4, MaterialType: 1, TextureNameHash: [2]uint32{0x2222, InvalidTextureHash}},
		},
		RenderBatches: []CModelRenderBatch{
			{IndexStart: 0, IndexCount: 3, TextureUnitStart: 0, TextureUnitCount: 1},
			{IndexStart: 3, IndexCount: 3, TextureUnitStart: 1, TextureUnitCount: 1},
		},
	}
}

func TestParseCModel(t *testing.T) {
	want := testCModel()
	data := buildCModel(CModelVersion, want)

	m, err := ParseCModel(data)
	if err != nil {
		t.Fatalf("ParseCModel failed: %v", err)
	}

	if !m.Flags.Animated() {
		t.Error("expected animated flag")
	}
	if len(m.Sequences) != 2 || m.Sequences[0].Duration != 2.0 {
		t.Errorf("unexpected sequences: %+v", m.Sequences)
	}
	if len(m.Bones) != 2 {
		t.Fatalf("expected 2 bones, got %d", len(m.Bones))
	}
	if m.Bones[0].ParentIndex != -1 || m.Bones[1].ParentIndex != 0 {
		t.Errorf("unexpected bone hierarchy: %d %d", m.Bones[0].ParentIndex, m.Bones[1].ParentIndex)
	}
	if got := len(m.Bones[0].Rotation[0].Times); got != 3 {
		t.Errorf("expected 3 rotation keys, got %d", got)
	}
	if got := len(m.Bones[1].Translation[0].Times); got != 2 {
		t.Errorf("expected 2 translation keys, got %d", got)
	}
	if len(m.Vertices) != 3 || len(m.Indices) != 6 {
		t.Errorf("unexpected geometry counts: %d vertices, %d indices", len(m.Vertices), len(m.Indices))
	}
	if m.Vertices[2].BoneWeights != [4]uint8{128, 127, 0, 0} {
		t.Errorf("unexpected bone weights: %v", m.Vertices[2].BoneWeights)
	}
}

func TestCModelTransparencyClassification(t *testing.T) {
	m := testCModel()
	data := buildCModel(CModelVersion, m)

	parsed, err := ParseCModel(data)
	if err != nil {
		t.Fatalf("ParseCModel failed: %v", err)
	}

	// Batch 0 uses unit 0 (blend mode 0, opaque), batch 1 uses unit 1
	// (blend mode 4, transparent).
	if parsed.BatchTransparent(parsed.RenderBatches[0]) {
		t.Error("batch 0 should be opaque")
	}
	if !parsed.BatchTransparent(parsed.RenderBatches[1]) {
		t.Error("batch 1 should be transparent")
	}
}

func TestParseCModel_TruncatedAtEveryOffset(t *testing.T) {
	data := buildCModel(CModelVersion, testCModel())

	for n := 0; n < len(data); n++ {
		if _, err := ParseCModel(data[:n]); err == nil {
			t.Fatalf("truncation at %d of %d bytes did not fail", n, len(data))
		}
	}
}

// A tiny buffer claiming billions of elements must fail the size check
// before anything is allocated, not by exhausting memory.
func TestParseCModel_OversizedCountRejected(t *testing.T) {
	le := binary.LittleEndian
	huge := []byte{0xff, 0xff, 0xff, 0xff}

	header := func() *bytes.Buffer {
		buf := new(bytes.Buffer)
		binary.Write(buf, le, CModelMagic)
		binary.Write(buf, le, CModelVersion)
		binary.Write(buf, le, uint32(0)) // flags
		return buf
	}

	tests := []struct {
		name  string
		build func() []byte
	}{
		{"sequences", func() []byte {
			buf := header()
			buf.Write(huge)
			return buf.Bytes()
		}},
		{"bones", func() []byte {
			buf := header()
			binary.Write(buf, le, uint32(0)) // sequences
			buf.Write(huge)
			return buf.Bytes()
		}},
		{"vertices", func() []byte {
			buf := header()
			binary.Write(buf, le, uint32(0)) // sequences
			binary.Write(buf, le, uint32(0)) // bones
			buf.Write(huge)
			return buf.Bytes()
		}},
		{"bone tracks", func() []byte {
			buf := header()
			binary.Write(buf, le, uint32(1)) // sequences
			binary.Write(buf, le, CModelSequence{})
			binary.Write(buf, le, uint32(1))  // bones
			binary.Write(buf, le, int16(-1))  // parent
			binary.Write(buf, le, uint16(0))  // flags
			binary.Write(buf, le, [3]float32{})
			buf.Write(huge) // translation track count
			return buf.Bytes()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCModel(tt.build()); !errors.Is(err, ErrTruncated) {
				t.Errorf("expected ErrTruncated, got %v", err)
			}
		})
	}
}

func TestParseCModel_BadBoneOrder(t *testing.T) {
	m := testCModel()
	m.Bones[0].ParentIndex = 1 // parent after child

	if _, err := ParseCModel(buildCModel(CModelVersion, m)); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}

func TestParseCModel_BatchUnitRangeOutOfBounds(t *testing.T) {
	m := testCModel()
	m.RenderBatches[1].TextureUnitCount = 9

	if _, err := ParseCModel(buildCModel(CModelVersion, m)); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}
