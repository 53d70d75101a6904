package graphics

// BindingKind discriminates what a descriptor name is bound to.
type BindingKind uint8

const (
	BindingBuffer BindingKind = iota
	BindingImage
	BindingSampler
)

// Binding is one named resource slot in a descriptor set.
type Binding struct {
	Kind    BindingKind
	Buffer  BufferID
	Image   ImageID
	Sampler SamplerID
}

// DescriptorSet maps shader-visible names to resources. Renderers rebind
// names whenever a backing buffer is rebuilt; command lists capture the set
// by reference, so a rebind before submission is what the pass sees.
type DescriptorSet struct {
	name     string
	bindings map[string]Binding
}

// NewDescriptorSet creates an empty named set.
func NewDescriptorSet(name string) *DescriptorSet {
	return &DescriptorSet{name: name, bindings: make(map[string]Binding)}
}

// Name returns the debug name of the set.
func (s *DescriptorSet) Name() string { return s.name }

// BindBuffer points name at a buffer, replacing any previous binding.
func (s *DescriptorSet) BindBuffer(name string, id BufferID) {
	s.bindings[name] = Binding{Kind: BindingBuffer, Buffer: id}
}

// BindImage points name at an image.
func (s *DescriptorSet) BindImage(name string, id ImageID) {
	s.bindings[name] = Binding{Kind: BindingImage, Image: id}
}

// BindSampler points name at a sampler.
func (s *DescriptorSet) BindSampler(name string, id SamplerID) {
	s.bindings[name] = Binding{Kind: BindingSampler, Sampler: id}
}

// Lookup returns the binding for name.
func (s *DescriptorSet) Lookup(name string) (Binding, bool) {
	b, ok := s.bindings[name]
	return b, ok
}

// Each visits every binding. Used by backends to resolve kernel bindings.
func (s *DescriptorSet) Each(fn func(name string, b Binding)) {
	for name, b := range s.bindings {
		fn(name, b)
	}
}
