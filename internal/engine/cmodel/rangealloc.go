package cmodel

// rangeBlock is one contiguous free span.
type rangeBlock struct {
	offset uint32
	size   uint32
}

// RangeAllocator hands out contiguous element ranges from a growable arena,
// first-fit with free-block coalescing. It backs the per-instance bone
// deform regions: an instance holds its range for its whole lifetime and the
// arena is recycled wholesale on Clear.
type RangeAllocator struct {
	capacity uint32
	free     []rangeBlock
}

// NewRangeAllocator creates an allocator over capacity elements.
func NewRangeAllocator(capacity uint32) *RangeAllocator {
	a := &RangeAllocator{}
	a.Reset(capacity)
	return a
}

// Capacity returns the arena size in elements.
func (a *RangeAllocator) Capacity() uint32 { return a.capacity }

// FreeSpace returns the total unallocated element count.
func (a *RangeAllocator) FreeSpace() uint32 {
	var total uint32
	for _, b := range a.free {
		total += b.size
	}
	return total
}

// Reset drops every allocation and resizes the arena.
func (a *RangeAllocator) Reset(capacity uint32) {
	a.capacity = capacity
	a.free = a.free[:0]
	if capacity > 0 {
		a.free = append(a.free, rangeBlock{offset: 0, size: capacity})
	}
}

// Grow extends the arena to newCapacity, merging the new span into a
// trailing free block when they touch.
func (a *RangeAllocator) Grow(newCapacity uint32) {
	if newCapacity <= a.capacity {
		return
	}
	added := rangeBlock{offset: a.capacity, size: newCapacity - a.capacity}
	a.capacity = newCapacity

	if n := len(a.free); n > 0 {
		last := &a.free[n-1]
		if last.offset+last.size == added.offset {
			last.size += added.size
			return
		}
	}
	a.free = append(a.free, added)
}

// Alloc carves size elements out of the first block that fits.
func (a *RangeAllocator) Alloc(size uint32) (uint32, bool) {
	if size == 0 {
		return 0, false
	}
	for i := range a.free {
		b := &a.free[i]
		if b.size < size {
			continue
		}
		offset := b.offset
		b.offset += size
		b.size -= size
		if b.size == 0 {
			a.free = append(a.free[:i], a.free[i+1:]...)
		}
		return offset, true
	}
	return 0, false
}

// Free returns a range to the arena, coalescing with neighbors. Blocks are
// kept sorted by offset.
func (a *RangeAllocator) Free(offset, size uint32) {
	if size == 0 {
		return
	}

	// Insertion point by offset.
	i := 0
	for i < len(a.free) && a.free[i].offset < offset {
		i++
	}
	a.free = append(a.free, rangeBlock{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = rangeBlock{offset: offset, size: size}

	// Merge with the next block.
	if i+1 < len(a.free) && a.free[i].offset+a.free[i].size == a.free[i+1].offset {
		a.free[i].size += a.free[i+1].size
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
	// Merge with the previous block.
	if i > 0 && a.free[i-1].offset+a.free[i-1].size == a.free[i].offset {
		a.free[i-1].size += a.free[i].size
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
}
