// Package view holds the per-frame camera constants shared by every
// render pass and culling kernel.
package view

import "github.com/go-gl/mathgl/mgl32"

// Constants is the GPU layout of the per-frame view data. It is bound
// once per frame on the global descriptor set under the name "_viewData".
type Constants struct {
	ViewProjection     mgl32.Mat4
	LastViewProjection mgl32.Mat4
	EyePosition        mgl32.Vec4
	EyeRotation        mgl32.Vec4
}
