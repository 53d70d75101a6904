// Package texture provides the texture name-hash registry and image decoding
// used when loading model materials.
package texture

import (
	"go.uber.org/zap"

	"github.com/Faultbox/frostgard/internal/logger"
	"github.com/Faultbox/frostgard/pkg/formats"
)

// Registry maps 32-bit texture name hashes to asset paths. Model materials
// reference textures only by hash; the extractor emits the hash→path table
// this registry is filled from.
type Registry struct {
	byHash map[uint32]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byHash: make(map[uint32]string)}
}

// Register adds a texture path and returns its name hash. Registering the
// same path twice is harmless; a hash collision between distinct paths is
// logged and keeps the first path.
func (r *Registry) Register(path string) uint32 {
	hash := formats.NameHash(path)
	if existing, ok := r.byHash[hash]; ok && existing != path {
		logger.Log.Warn("texture name hash collision",
			zap.String("kept", existing),
			zap.String("dropped", path),
			zap.Uint32("hash", hash))
		return hash
	}
	r.byHash[hash] = path
	return hash
}

// Resolve returns the path for a hash. Unresolved hashes load as the
// placeholder texture slot.
func (r *Registry) Resolve(hash uint32) (string, bool) {
	path, ok := r.byHash[hash]
	return path, ok
}

// Len returns the number of registered textures.
func (r *Registry) Len() int { return len(r.byHash) }

// Walk calls fn for every registration, in no particular order.
func (r *Registry) Walk(fn func(hash uint32, path string)) {
	for hash, path := range r.byHash {
		fn(hash, path)
	}
}

// Clear drops every registration.
func (r *Registry) Clear() {
	r.byHash = make(map[uint32]string)
}
