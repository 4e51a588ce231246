package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/rasky/go-lzo"

	"github.com/meigma/tank/internal/tanktype"
)

// LZO decodes LZO1X payloads.
type LZO struct{}

// Decode decompresses src into dst.
func (LZO) Decode(dst, src []byte) (int, error) {
	out, err := lzo.Decompress1X(bytes.NewReader(src), len(src), len(dst))
	n := copy(dst, out)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return n, fmt.Errorf("%w: %v", tanktype.ErrDecompression, err)
	}
	return n, nil
}
