package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"

	"github.com/meigma/tank/internal/tanktype"
)

// Zlib decodes zlib streams, reusing readers across calls.
type Zlib struct {
	pool sync.Pool
}

// NewZlib returns a pooled zlib decoder.
func NewZlib() *Zlib {
	return &Zlib{}
}

// Decode inflates src into dst.
func (z *Zlib) Decode(dst, src []byte) (int, error) {
	zr, release, err := z.get(bytes.NewReader(src))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", tanktype.ErrDecompression, err)
	}
	defer release()

	n, err := io.ReadFull(zr, dst)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return n, nil
	default:
		return n, fmt.Errorf("%w: %v", tanktype.ErrDecompression, err)
	}
}

// get returns a reader positioned on r. The caller must call release when done.
func (z *Zlib) get(r io.Reader) (io.ReadCloser, func(), error) {
	if v, ok := z.pool.Get().(io.ReadCloser); ok {
		if rs, ok := v.(zlib.Resetter); ok && rs.Reset(r, nil) == nil {
			return v, func() { z.pool.Put(v) }, nil
		}
		// A failed reset leaves the reader unusable; drop it.
	}
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, nil, err
	}
	return zr, func() { z.pool.Put(zr) }, nil
}
