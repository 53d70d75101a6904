package graphics

import "unsafe"

// AsBytes reinterprets a slice of fixed-layout GPU records as raw bytes for
// staging uploads. T must be a flat struct with no pointers; the layout that
// lands in the buffer is the Go in-memory layout, which the GPU structs in
// this codebase are padded to match.
func AsBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(s[0])))
}

// AsSlice reinterprets raw buffer memory as a slice of fixed-layout records.
// Used by CPU kernels to address storage buffers the way a shader would.
func AsSlice[T any](b []byte) []T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if len(b) < size {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), len(b)/size)
}

// SizeOf returns the byte size of one GPU record.
func SizeOf[T any]() uint64 {
	var zero T
	return uint64(unsafe.Sizeof(zero))
}
