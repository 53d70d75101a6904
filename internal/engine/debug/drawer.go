// Package debug collects wireframe overlays and screenshot captures used
// while inspecting the culling pipeline.
package debug

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// LineVertex is one endpoint of a debug line, position plus packed RGBA color.
type LineVertex struct {
	X, Y, Z float32
	Color   uint32
}

// Standard debug colors (0xAABBGGRR packed).
const (
	ColorRed    = 0xFF0000FF
	ColorGreen  = 0xFF00FF00
	ColorBlue   = 0xFFFF0000
	ColorYellow = 0xFF00FFFF
	ColorWhite  = 0xFFFFFFFF
)

// Drawer accumulates debug lines over a frame. Renderers push wireframes
// during their Update, the debug pass consumes and resets the buffer.
// Safe for concurrent producers.
type Drawer struct {
	mu       sync.Mutex
	vertices []LineVertex
}

// NewDrawer creates an empty line accumulator.
func NewDrawer() *Drawer {
	return &Drawer{}
}

// DrawLine adds a single line segment.
func (d *Drawer) DrawLine(from, to mgl32.Vec3, color uint32) {
	d.mu.Lock()
	d.vertices = append(d.vertices,
		LineVertex{from.X(), from.Y(), from.Z(), color},
		LineVertex{to.X(), to.Y(), to.Z(), color},
	)
	d.mu.Unlock()
}

// boxEdges indexes the corners of a min/max box as 12 line segments. Bit 0
// selects the x extreme, bit 1 the y extreme, bit 2 the z extreme.
var boxEdges = [24]uint8{
	0, 1, 1, 5, 5, 4, 4, 0, // bottom face
	2, 3, 3, 7, 7, 6, 6, 2, // top face
	0, 2, 1, 3, 5, 7, 4, 6, // vertical edges
}

// DrawAABB adds the 12-edge wireframe of an axis-aligned box.
func (d *Drawer) DrawAABB(min, max mgl32.Vec3, color uint32) {
	corner := func(c uint8) LineVertex {
		v := LineVertex{min.X(), min.Y(), min.Z(), color}
		if c&1 != 0 {
			v.X = max.X()
		}
		if c&2 != 0 {
			v.Y = max.Y()
		}
		if c&4 != 0 {
			v.Z = max.Z()
		}
		return v
	}

	d.mu.Lock()
	for _, c := range boxEdges {
		d.vertices = append(d.vertices, corner(c))
	}
	d.mu.Unlock()
}

// Vertices returns the accumulated line vertices and clears the buffer.
func (d *Drawer) Vertices() []LineVertex {
	d.mu.Lock()
	v := d.vertices
	d.vertices = nil
	d.mu.Unlock()
	return v
}

// Len returns the current number of accumulated vertices.
func (d *Drawer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.vertices)
}
