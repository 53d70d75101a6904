package memdev

import "github.com/Faultbox/frostgard/internal/engine/graphics"

type mipLevel struct {
	width  uint32
	height uint32
	texels []float32
}

// image is a host-memory mip chain of single-channel float32 texels, which
// covers the depth pyramid. RGBA8 images allocate four channels packed into
// one float per texel slot but are only used as opaque render targets here.
type image struct {
	desc   graphics.ImageDesc
	levels []mipLevel
}

func newImage(desc graphics.ImageDesc) *image {
	img := &image{desc: desc}

	levels := desc.Levels
	if levels == 0 {
		levels = 1
	}
	w, h := desc.Width, desc.Height
	for i := uint32(0); i < levels; i++ {
		img.levels = append(img.levels, mipLevel{
			width:  w,
			height: h,
			texels: make([]float32, w*h),
		})
		if w > 1 {
			w /= 2
		}
		if h > 1 {
			h /= 2
		}
	}
	return img
}

func (img *image) Levels() int { return len(img.levels) }

func (img *image) Dimensions(level int) (uint32, uint32) {
	if level < 0 || level >= len(img.levels) {
		return 0, 0
	}
	return img.levels[level].width, img.levels[level].height
}

func (img *image) Load(level int, x, y uint32) float32 {
	if level < 0 || level >= len(img.levels) {
		return 0
	}
	l := &img.levels[level]
	if x >= l.width || y >= l.height {
		return 0
	}
	return l.texels[y*l.width+x]
}

func (img *image) Store(level int, x, y uint32, value float32) {
	if level < 0 || level >= len(img.levels) {
		return
	}
	l := &img.levels[level]
	if x >= l.width || y >= l.height {
		return
	}
	l.texels[y*l.width+x] = value
}
