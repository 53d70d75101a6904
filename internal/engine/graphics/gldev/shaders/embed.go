// Package shaders provides the embedded GLSL sources the OpenGL backend
// compiles. Compute shaders are keyed by the file name the pipelines name;
// draw programs by their vert/frag pair.
package shaders

import "embed"

// FS holds every shader source.
//
//go:embed *.comp *.vert *.frag
var FS embed.FS

// Source returns one shader source by file name.
func Source(name string) (string, error) {
	data, err := FS.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
