package texture

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"
)

// buildTGA assembles a minimal true-color TGA with the given pixels in BGRA
// order, bottom-to-top row order as most writers emit.
func buildTGA(imageType byte, width, height, bpp int, pixelData []byte) []byte {
	header := make([]byte, 18)
	header[2] = imageType
	header[12] = byte(width)
	header[13] = byte(width >> 8)
	header[14] = byte(height)
	header[15] = byte(height >> 8)
	header[16] = byte(bpp)
	return append(header, pixelData...)
}

func TestDecodeTGAUncompressed(t *testing.T) {
	// 2x2, 32bpp. Rows are stored bottom to top: first stored row is the
	// image's bottom row.
	pixels := []byte{
		255, 0, 0, 255, 0, 255, 0, 255, // bottom row: blue, green
		0, 0, 255, 255, 255, 255, 255, 128, // top row: red, translucent white
	}
	img, err := DecodeTGA(buildTGA(2, 2, 2, 32, pixels))
	if err != nil {
		t.Fatalf("DecodeTGA: %v", err)
	}

	want := map[[2]int]color.RGBA{
		{0, 1}: {B: 255, A: 255},
		{1, 1}: {G: 255, A: 255},
		{0, 0}: {R: 255, A: 255},
		{1, 0}: {R: 255, G: 255, B: 255, A: 128},
	}
	for pos, c := range want {
		if got := img.At(pos[0], pos[1]); got != c {
			t.Errorf("pixel (%d,%d) = %v, want %v", pos[0], pos[1], got, c)
		}
	}
}

func TestDecodeTGARLE(t *testing.T) {
	// 4x1, 24bpp: a run of three red pixels then one raw green pixel.
	pixels := []byte{
		0x82, 0, 0, 255, // RLE packet, count 3, red in BGR
		0x00, 0, 255, 0, // raw packet, count 1, green
	}
	img, err := DecodeTGA(buildTGA(10, 4, 1, 24, pixels))
	if err != nil {
		t.Fatalf("DecodeTGA: %v", err)
	}
	for x := 0; x < 3; x++ {
		if got := img.At(x, 0); got != (color.RGBA{R: 255, A: 255}) {
			t.Errorf("pixel %d = %v, want red", x, got)
		}
	}
	if got := img.At(3, 0); got != (color.RGBA{G: 255, A: 255}) {
		t.Errorf("pixel 3 = %v, want green", got)
	}
}

func TestDecodeTGARejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"short", []byte{0, 0, 2}},
		{"color mapped", func() []byte {
			d := buildTGA(2, 1, 1, 32, make([]byte, 4))
			d[1] = 1
			return d
		}()},
		{"grayscale", buildTGA(3, 1, 1, 32, make([]byte, 4))},
		{"16bpp", buildTGA(2, 1, 1, 16, make([]byte, 2))},
		{"truncated pixels", buildTGA(2, 4, 4, 32, make([]byte, 8))},
	}
	for _, tt := range tests {
		if _, err := DecodeTGA(tt.data); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "textures.txt")
	content := "# extractor output\ntextures/stone.tga\n\ntextures/wood.tga\n"
	if err := os.WriteFile(manifest, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry()
	added, err := r.LoadManifest(manifest)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if added != 2 || r.Len() != 2 {
		t.Errorf("added %d, registry has %d, want 2 and 2", added, r.Len())
	}
	if _, ok := r.Resolve(r.Register("textures/stone.tga")); !ok {
		t.Error("manifest path did not resolve")
	}

	if _, err := r.LoadManifest(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("missing manifest should error")
	}
}

func TestLoadImageTGA(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "solid.tga")
	data := buildTGA(2, 1, 1, 32, []byte{0, 0, 255, 255})
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	img, err := LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	if got := img.At(0, 0); got != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("pixel = %v, want red", got)
	}
	rgba := ImageToRGBA(img)
	if rgba.RGBAAt(0, 0) != (color.RGBA{R: 255, A: 255}) {
		t.Error("ImageToRGBA changed the pixel")
	}
}
