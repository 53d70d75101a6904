package formats

import (
	"encoding/binary"
	"errors"
	"fmt"
	gomath "math"
)

// Shared format errors. Version mismatches are split by direction so callers
// can tell a stale extraction apart from a too-new asset.
var (
	ErrTruncated    = errors.New("truncated data")
	ErrBadMagic     = errors.New("invalid magic token")
	ErrStaleVersion = errors.New("stale asset version, re-run the extractor")
	ErrNewVersion   = errors.New("asset version newer than client, update the client")
	ErrCorrupt      = errors.New("corrupt data")
	ErrBadExtension = errors.New("unexpected file extension")
)

// Reader decodes little-endian fields from a byte slice. Every read is
// bounds-checked; a short read returns ErrTruncated and leaves the offset
// unchanged so the caller can report how far it got.
type Reader struct {
	data []byte
	off  int
}

// NewReader wraps data for sequential decoding.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int { return r.off }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.off }

// Skip advances past n bytes without decoding them.
func (r *Reader) Skip(n int) error {
	if n < 0 || r.Remaining() < n {
		return ErrTruncated
	}
	r.off += n
	return nil
}

// Bytes returns a view of the next n bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ErrTruncated
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

// Uint8 decodes one byte.
func (r *Reader) Uint8() (uint8, error) {
	if r.Remaining() < 1 {
		return 0, ErrTruncated
	}
	v := r.data[r.off]
	r.off++
	return v, nil
}

// Uint16 decodes a little-endian uint16.
func (r *Reader) Uint16() (uint16, error) {
	if r.Remaining() < 2 {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v, nil
}

// Int16 decodes a little-endian int16.
func (r *Reader) Int16() (int16, error) {
	v, err := r.Uint16()
	return int16(v), err
}

// Uint32 decodes a little-endian uint32.
func (r *Reader) Uint32() (uint32, error) {
	if r.Remaining() < 4 {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

// Float32 decodes a little-endian float32.
func (r *Reader) Float32() (float32, error) {
	v, err := r.Uint32()
	return gomath.Float32frombits(v), err
}

// Vec3 decodes three little-endian float32 values.
func (r *Reader) Vec3() ([3]float32, error) {
	var v [3]float32
	if r.Remaining() < 12 {
		return v, ErrTruncated
	}
	for i := range v {
		v[i], _ = r.Float32()
	}
	return v, nil
}

// Vec4 decodes four little-endian float32 values.
func (r *Reader) Vec4() ([4]float32, error) {
	var v [4]float32
	if r.Remaining() < 16 {
		return v, ErrTruncated
	}
	for i := range v {
		v[i], _ = r.Float32()
	}
	return v, nil
}

// Count decodes a u32 element count and rejects one that cannot fit in the
// remaining bytes at elemSize bytes per element. The check runs before the
// caller allocates, so a crafted count fails as ErrTruncated instead of an
// enormous make.
func (r *Reader) Count(elemSize int) (int, error) {
	n, err := r.Uint32()
	if err != nil {
		return 0, err
	}
	if elemSize > 0 && int64(n)*int64(elemSize) > int64(r.Remaining()) {
		return 0, fmt.Errorf("%d elements of %d+ bytes with %d bytes left: %w",
			n, elemSize, r.Remaining(), ErrTruncated)
	}
	return int(n), nil
}

// Uint16Slice decodes count little-endian uint16 values.
func (r *Reader) Uint16Slice(count int) ([]uint16, error) {
	if count < 0 || r.Remaining() < count*2 {
		return nil, ErrTruncated
	}
	out := make([]uint16, count)
	for i := range out {
		out[i], _ = r.Uint16()
	}
	return out, nil
}

// Uint32Slice decodes count little-endian uint32 values.
func (r *Reader) Uint32Slice(count int) ([]uint32, error) {
	if count < 0 || r.Remaining() < count*4 {
		return nil, ErrTruncated
	}
	out := make([]uint32, count)
	for i := range out {
		out[i], _ = r.Uint32()
	}
	return out, nil
}

// checkHeader validates a magic token and version, distinguishing stale from
// too-new assets.
func checkHeader(r *Reader, wantMagic, wantVersion uint32, what string) error {
	magic, err := r.Uint32()
	if err != nil {
		return fmt.Errorf("%s header: %w", what, err)
	}
	if magic != wantMagic {
		return fmt.Errorf("%s: %w: got %#x, want %#x", what, ErrBadMagic, magic, wantMagic)
	}

	version, err := r.Uint32()
	if err != nil {
		return fmt.Errorf("%s header: %w", what, err)
	}
	if version < wantVersion {
		return fmt.Errorf("%s: %w: version %d, expected %d", what, ErrStaleVersion, version, wantVersion)
	}
	if version > wantVersion {
		return fmt.Errorf("%s: %w: version %d, expected %d", what, ErrNewVersion, version, wantVersion)
	}
	return nil
}
