// Package binread reads the little-endian primitives of the archive format.
//
// Reader keeps a window of the underlying source in memory so parsing an
// index, which reads many small fields from nearby offsets, does not issue
// one ReadAt per field.
package binread

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/meigma/tank/internal/sizing"
	"github.com/meigma/tank/internal/tanktype"
)

// DefaultWindow is the number of bytes fetched per ReadAt.
const DefaultWindow = 64 << 10

// Reader is a positioned little-endian cursor over an io.ReaderAt.
// It is not safe for concurrent use.
type Reader struct {
	src    io.ReaderAt
	size   int64
	pos    int64
	window int

	buf    []byte
	bufOff int64
}

// New returns a Reader over the first size bytes of src that fetches
// window bytes per ReadAt. A window <= 0 uses DefaultWindow.
func New(src io.ReaderAt, size int64, window int) *Reader {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Reader{src: src, size: size, window: window}
}

// Size returns the size of the underlying source.
func (r *Reader) Size() int64 {
	return r.size
}

// Pos returns the current offset.
func (r *Reader) Pos() int64 {
	return r.pos
}

// SeekTo moves the cursor to the absolute offset off.
func (r *Reader) SeekTo(off int64) error {
	if off < 0 || off > r.size {
		return fmt.Errorf("%w: seek to %d beyond size %d", tanktype.ErrTruncatedRead, off, r.size)
	}
	r.pos = off
	return nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int64) error {
	if !sizing.InBounds(r.pos, n, r.size) {
		return fmt.Errorf("%w: skip %d at %d", tanktype.ErrTruncatedRead, n, r.pos)
	}
	r.pos += n
	return nil
}

// next returns the following n bytes and advances. The slice aliases the
// window and is valid until the next call.
func (r *Reader) next(n int) ([]byte, error) {
	if n < 0 || !sizing.InBounds(r.pos, int64(n), r.size) {
		return nil, fmt.Errorf("%w: need %d bytes at %d, size %d", tanktype.ErrTruncatedRead, n, r.pos, r.size)
	}
	start := r.pos - r.bufOff
	if r.buf == nil || start < 0 || start+int64(n) > int64(len(r.buf)) {
		if err := r.fill(n); err != nil {
			return nil, err
		}
		start = 0
	}
	r.pos += int64(n)
	return r.buf[start : start+int64(n)], nil
}

// fill loads a window starting at the cursor holding at least n bytes.
func (r *Reader) fill(n int) error {
	want := max(n, r.window)
	if remaining := r.size - r.pos; int64(want) > remaining {
		want = int(remaining)
	}
	if cap(r.buf) < want {
		r.buf = make([]byte, want)
	}
	r.buf = r.buf[:want]
	got, err := r.src.ReadAt(r.buf, r.pos)
	if got < n {
		r.buf = nil
		if err == nil || err == io.EOF {
			return fmt.Errorf("%w: got %d of %d bytes at %d", tanktype.ErrTruncatedRead, got, n, r.pos)
		}
		return fmt.Errorf("read at %d: %w", r.pos, err)
	}
	r.buf = r.buf[:got]
	r.bufOff = r.pos
	return nil
}

// Bytes returns a copy of the next n bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	b, err := r.next(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadFull fills p from the cursor.
func (r *Reader) ReadFull(p []byte) error {
	b, err := r.next(len(p))
	if err != nil {
		return err
	}
	copy(p, b)
	return nil
}

// Uint16 reads a little-endian uint16.
func (r *Reader) Uint16() (uint16, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Int32 reads a little-endian int32.
func (r *Reader) Int32() (int32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil //nolint:gosec // two's complement reinterpretation
}

// Uint32 reads a little-endian uint32.
func (r *Reader) Uint32() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Int64 reads a little-endian int64.
func (r *Reader) Int64() (int64, error) {
	b, err := r.next(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil //nolint:gosec // two's complement reinterpretation
}

// Tag reads a 4-character tag.
func (r *Reader) Tag() (string, error) {
	b, err := r.next(4)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// NString reads a length-prefixed string: a uint16 length, that many
// bytes, then a NUL terminator and padding to the next 4-byte boundary.
func (r *Reader) NString() (string, error) {
	n, err := r.Uint16()
	if err != nil {
		return "", err
	}
	b, err := r.next(int(n))
	if err != nil {
		return "", err
	}
	s := string(b)
	if err := r.Skip(int64(NStringPad(int(n)))); err != nil {
		return "", err
	}
	return s, nil
}

// NStringPad returns the number of bytes following an n-byte string body.
// It is always between 1 and 4: the terminator plus alignment.
func NStringPad(n int) int {
	return 4 - (2+n)%4
}

// NStringSize returns the encoded size of an n-byte string.
func NStringSize(n int) int {
	return 2 + n + NStringPad(n)
}
