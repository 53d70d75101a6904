package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// buildChunk assembles a synthetic .chunk buffer.
func buildChunk(version uint32, names []string, mapObjects, complexModels []Placement) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, ChunkMagic)
	binary.Write(buf, binary.LittleEndian, version)

	binary.Write(buf, binary.LittleEndian, uint32(len(names)))
	for _, name := range names {
		binary.Write(buf, binary.LittleEndian, uint16(len(name)))
		buf.WriteString(name)
	}

	writePlacements := func(placements []Placement) {
		binary.Write(buf, binary.LittleEndian, uint32(len(placements)))
		for _, p := range placements {
			binary.Write(buf, binary.LittleEndian, p.NameID)
			binary.Write(buf, binary.LittleEndian, p.UniqueID)
			binary.Write(buf, binary.LittleEndian, p.Position)
			binary.Write(buf, binary.LittleEndian, p.Rotation)
		}
	}
	writePlacements(mapObjects)
	writePlacements(complexModels)
	return buf.Bytes()
}

func TestParseChunk(t *testing.T) {
	names := []string{"buildings/keep.mroot", "creatures/wolf.cmodel"}
	mapObjects := []Placement{
		{NameID: 0, UniqueID: 100, Position: [3]float32{10, 0, 20}, Rotation: [3]float32{0, 90, 0}},
	}
	complexModels := []Placement{
		{NameID: 1, UniqueID: 200, Position: [3]float32{5, 1, 5}},
		{NameID: 1, UniqueID: 201, Position: [3]float32{8, 1, 5}},
	}
	data := buildChunk(ChunkVersion, names, mapObjects, complexModels)

	chunk, err := ParseChunk(data)
	if err != nil {
		t.Fatalf("ParseChunk failed: %v", err)
	}

	if len(chunk.Names) != 2 {
		t.Fatalf("expected 2 names, got %d", len(chunk.Names))
	}
	if chunk.Name(0) != "buildings/keep.mroot" {
		t.Errorf("unexpected name 0: %q", chunk.Name(0))
	}
	if chunk.Name(99) != "" {
		t.Errorf("out-of-range name should be empty, got %q", chunk.Name(99))
	}
	if len(chunk.MapObjectPlacements) != 1 || len(chunk.ComplexModelPlacements) != 2 {
		t.Fatalf("unexpected placement counts: %d/%d",
			len(chunk.MapObjectPlacements), len(chunk.ComplexModelPlacements))
	}
	if chunk.MapObjectPlacements[0].Rotation != [3]float32{0, 90, 0} {
		t.Errorf("unexpected rotation: %v", chunk.MapObjectPlacements[0].Rotation)
	}
	if chunk.ComplexModelPlacements[1].UniqueID != 201 {
		t.Errorf("unexpected unique ID: %d", chunk.ComplexModelPlacements[1].UniqueID)
	}
}

func TestParseChunk_NameIDOutOfRange(t *testing.T) {
	data := buildChunk(ChunkVersion, []string{"a.mroot"}, []Placement{{NameID: 7}}, nil)

	if _, err := ParseChunk(data); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}

func TestParseChunk_Truncated(t *testing.T) {
	data := buildChunk(ChunkVersion, []string{"a.mroot"}, []Placement{{NameID: 0}}, nil)

	for n := 0; n < len(data); n++ {
		if _, err := ParseChunk(data[:n]); err == nil {
			t.Fatalf("truncation at %d of %d bytes did not fail", n, len(data))
		}
	}
}

// A placement count larger than the file allows must fail before allocation.
func TestParseChunk_OversizedCountRejected(t *testing.T) {
	le := binary.LittleEndian
	buf := new(bytes.Buffer)
	binary.Write(buf, le, ChunkMagic)
	binary.Write(buf, le, ChunkVersion)
	binary.Write(buf, le, uint32(0))          // names
	binary.Write(buf, le, uint32(0xFFFFFFFF)) // map object placements

	if _, err := ParseChunk(buf.Bytes()); !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated for placement count, got %v", err)
	}

	buf.Reset()
	binary.Write(buf, le, ChunkMagic)
	binary.Write(buf, le, ChunkVersion)
	binary.Write(buf, le, uint32(0xFFFFFFFF)) // name count

	if _, err := ParseChunk(buf.Bytes()); !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated for name count, got %v", err)
	}
}

func TestNameHashStable(t *testing.T) {
	h1 := NameHash("buildings/keep.mroot")
	h2 := NameHash("buildings/keep.mroot")
	h3 := NameHash("buildings/tower.mroot")

	if h1 != h2 {
		t.Error("hash of identical names differs")
	}
	if h1 == h3 {
		t.Error("hash of different names collides in test fixture")
	}
}
