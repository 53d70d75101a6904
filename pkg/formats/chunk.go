// Map chunk (.chunk) parser. A chunk carries the placements for one map cell:
// a string table of model names plus placement records referencing it.
package formats

import (
	"fmt"
	"hash/fnv"
)

// Chunk file constants.
const (
	ChunkMagic   uint32 = 0x4B4E4843 // "CHNK"
	ChunkVersion uint32 = 2

	ChunkExt = ".chunk"
)

// Placement references a model asset by string-table ID and positions it in
// the world. Rotation is Euler degrees; scale is implicit 1. UniqueID is
// stable per map slot so duplicated streams of the same chunk dedup cleanly.
type Placement struct {
	NameID   uint32
	UniqueID uint32
	Position [3]float32
	Rotation [3]float32
}

// Chunk is one parsed map chunk.
type Chunk struct {
	Names                  []string
	MapObjectPlacements    []Placement
	ComplexModelPlacements []Placement
}

// Name resolves a string-table ID, returning "" when out of range.
func (c *Chunk) Name(id uint32) string {
	if int(id) >= len(c.Names) {
		return ""
	}
	return c.Names[id]
}

// NameHash returns the 32-bit fnv1a hash of a name. This is the hash used to
// dedup model loads and to key texture lookups.
func NameHash(name string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(name))
	return h.Sum32()
}

// ParseChunk parses a .chunk byte stream.
func ParseChunk(data []byte) (*Chunk, error) {
	r := NewReader(data)

	if err := checkHeader(r, ChunkMagic, ChunkVersion, "chunk"); err != nil {
		return nil, err
	}

	c := &Chunk{}

	// String table, at least a u16 length per name.
	nameCount, err := r.Count(2)
	if err != nil {
		return nil, fmt.Errorf("name count: %w", err)
	}
	c.Names = make([]string, nameCount)
	for i := range c.Names {
		length, err := r.Uint16()
		if err != nil {
			return nil, fmt.Errorf("name %d: %w", i, err)
		}
		b, err := r.Bytes(int(length))
		if err != nil {
			return nil, fmt.Errorf("name %d: %w", i, err)
		}
		c.Names[i] = string(b)
	}

	if c.MapObjectPlacements, err = readPlacements(r, nameCount); err != nil {
		return nil, fmt.Errorf("map object placements: %w", err)
	}
	if c.ComplexModelPlacements, err = readPlacements(r, nameCount); err != nil {
		return nil, fmt.Errorf("complex model placements: %w", err)
	}

	return c, nil
}

func readPlacements(r *Reader, nameCount int) ([]Placement, error) {
	count, err := r.Count(32)
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	out := make([]Placement, count)
	for i := range out {
		p := &out[i]
		if p.NameID, err = r.Uint32(); err != nil {
			return nil, fmt.Errorf("placement %d: %w", i, err)
		}
		if int(p.NameID) >= nameCount {
			return nil, fmt.Errorf("%w: placement %d references name %d of %d", ErrCorrupt, i, p.NameID, nameCount)
		}
		if p.UniqueID, err = r.Uint32(); err != nil {
			return nil, fmt.Errorf("placement %d: %w", i, err)
		}
		if p.Position, err = r.Vec3(); err != nil {
			return nil, fmt.Errorf("placement %d: %w", i, err)
		}
		if p.Rotation, err = r.Vec3(); err != nil {
			return nil, fmt.Errorf("placement %d: %w", i, err)
		}
	}
	return out, nil
}
