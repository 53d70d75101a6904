package cmodel

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/Faultbox/frostgard/internal/config"
	"github.com/Faultbox/frostgard/internal/engine/graphics/memdev"
	"github.com/Faultbox/frostgard/internal/engine/texture"
	"github.com/Faultbox/frostgard/pkg/formats"
)

// cmodelSpec drives the synthetic model writer.
type cmodelSpec struct {
	animated bool
	// blending mode per texture unit; one render batch per unit, six
	// indices each. Modes >= 2 land in the transparent partition.
	unitModes []uint16
	// sequence duration in seconds, animated models only.
	duration float32
}

// writeCModelFile writes a parseable .cmodel with four vertices around the
// origin. Animated models get two bones (root plus child) where the root
// translates from (0,0,0) to (duration,0,0) over the sequence.
func writeCModelFile(t *testing.T, path string, spec cmodelSpec) {
	t.Helper()
	buf := &bytes.Buffer{}
	le := binary.LittleEndian
	w := func(v interface{}) { binary.Write(buf, le, v) }

	w(formats.CModelMagic)
	w(formats.CModelVersion)

	flags := uint32(0)
	if spec.animated {
		flags = uint32(formats.CModelFlagAnimated)
	}
	w(flags)

	if spec.animated {
		w(uint32(1)) // sequences
		w(uint16(0)) // id
		w(uint16(0)) // subID
		w(spec.duration)
		w(uint32(0)) // flags

		w(uint32(2)) // bones
		// Root bone: keyed translation, identity rotation/scale.
		w(int16(-1))
		w(uint16(0))
		w([3]float32{0, 0, 0}) // pivot
		w(uint32(2))           // translation keys
		w(float32(0))
		w([3]float32{0, 0, 0})
		w(spec.duration)
		w([3]float32{spec.duration, 0, 0})
		w(uint32(0)) // rotation keys
		w(uint32(0)) // scale keys
		// Child bone: no keys, inherits the root.
		w(int16(0))
		w(uint16(0))
		w([3]float32{0, 0, 0})
		w(uint32(0))
		w(uint32(0))
		w(uint32(0))
	} else {
		w(uint32(0)) // sequences
		w(uint32(0)) // bones
	}

	w(uint32(4)) // vertices
	positions := [4][3]float32{{-1, -1, -1}, {1, -1, -1}, {1, 1, 1}, {-1, 1, 1}}
	for _, pos := range positions {
		w(pos)
		w([3]float32{0, 1, 0})       // normal
		w([2]float32{0, 0})          // uv
		w([4]uint8{0, 0, 0, 0})      // bone indices
		w([4]uint8{255, 0, 0, 0})    // bone weights
	}

	indexCount := uint32(len(spec.unitModes)) * 6
	w(indexCount)
	for i := uint32(0); i < indexCount; i++ {
		w(uint16(i % 4))
	}

	w(uint32(len(spec.unitModes))) // texture units
	for _, mode := range spec.unitModes {
		w(mode & 0x7)   // data: blending mode
		w(uint16(1))    // material type
		w(uint32(0xAB)) // texture hashes
		w(formats.InvalidTextureHash)
	}

	w(uint32(len(spec.unitModes))) // render batches
	for i := range spec.unitModes {
		w(uint32(i) * 6) // indexStart
		w(uint32(6))     // indexCount
		w(uint16(i))     // textureUnitStart
		w(uint16(1))     // textureUnitCount
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func writeCModel(t *testing.T, dir, name string, spec cmodelSpec) {
	t.Helper()
	writeCModelFile(t, filepath.Join(dir, name+formats.CModelExt), spec)
}

func newTestRenderer(t *testing.T, culling *config.CullingConfig) (*Renderer, *memdev.Device, string) {
	t.Helper()
	dir := t.TempDir()
	dev := memdev.New()
	r, err := New(dev, texture.NewRegistry(), culling, dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r, dev, dir
}

func placement(uniqueID uint32, x float32) formats.Placement {
	return formats.Placement{UniqueID: uniqueID, Position: [3]float32{x, 0, 0}}
}
