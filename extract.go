package tank

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"

	"github.com/meigma/tank/internal/sizing"
)

// ReadFile returns the full contents of the named file.
//
// Every call reads from the source; nothing is cached. Failures are
// returned as *fs.PathError.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	e, ok := a.Lookup(name)
	if !ok {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: ErrNotFound}
	}
	data, err := a.ReadEntry(e)
	if err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}
	return data, nil
}

// ReadEntry extracts the bytes of e, which must belong to this archive.
func (a *Archive) ReadEntry(e *FileEntry) ([]byte, error) {
	if err := a.checkSize(int64(e.Size)); err != nil {
		return nil, err
	}
	base := int64(a.header.DataOffset) + int64(e.DataOffset)

	var (
		data []byte
		err  error
	)
	if e.Compression == nil {
		data, err = a.readRaw(base, int64(e.Size))
	} else {
		data, err = a.readChunks(e, base)
	}
	if err != nil {
		return nil, err
	}

	if a.verifyCRC {
		if sum := crc32.ChecksumIEEE(data); sum != e.CRC32 {
			return nil, fmt.Errorf("%w: crc32 %08x, entry declares %08x", ErrChecksum, sum, e.CRC32)
		}
	}
	return data, nil
}

func (a *Archive) checkSize(n int64) error {
	if a.maxFileSize > 0 && uint64(n) > a.maxFileSize { //nolint:gosec // n is non-negative
		return fmt.Errorf("%w: file size %d exceeds limit %d", ErrSizeOverflow, n, a.maxFileSize)
	}
	return nil
}

func (a *Archive) readRaw(off, n int64) ([]byte, error) {
	size, err := sizing.ToInt(n, ErrSizeOverflow)
	if err != nil {
		return nil, err
	}
	if !sizing.InBounds(off, n, a.src.Size()) {
		return nil, fmt.Errorf("%w: %d bytes at offset %d, archive has %d",
			ErrTruncatedRead, n, off, a.src.Size())
	}
	buf := make([]byte, size)
	if err := a.readAt(buf, off); err != nil {
		return nil, err
	}
	return buf, nil
}

// readAt fills p from off.
func (a *Archive) readAt(p []byte, off int64) error {
	if !sizing.InBounds(off, int64(len(p)), a.src.Size()) {
		return fmt.Errorf("%w: %d bytes at offset %d, archive has %d",
			ErrTruncatedRead, len(p), off, a.src.Size())
	}
	n, err := a.src.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: read %d of %d bytes at offset %d", ErrTruncatedRead, n, len(p), off)
	}
	return fmt.Errorf("read at offset %d: %w", off, err)
}

// readChunks reassembles a chunked entry. A compressed chunk decodes to
// UncompressedBytes-ExtraBytes bytes and is followed on disk by ExtraBytes
// literal bytes that are appended as-is.
func (a *Archive) readChunks(e *FileEntry, base int64) ([]byte, error) {
	ch := e.Compression
	total := ch.OutputSize()
	if err := a.checkSize(total); err != nil {
		return nil, err
	}
	outCap, err := sizing.ToInt(total, ErrSizeOverflow)
	if err != nil {
		return nil, err
	}

	dec, hasDecoder := a.codecs.Lookup(e.Format)
	out := make([]byte, 0, outCap)
	var scratch []byte

	for i, c := range ch.Chunks {
		off := base + int64(c.Offset)
		start := len(out)

		if !c.IsCompressed() {
			out = out[:start+int(c.UncompressedBytes)]
			if err := a.readAt(out[start:], off); err != nil {
				return nil, fmt.Errorf("chunk %d: %w", i, err)
			}
			continue
		}

		if !hasDecoder {
			return nil, fmt.Errorf("%w: no decoder for %s", ErrUnknownFormat, e.Format)
		}
		if !sizing.InBounds(off, int64(c.CompressedBytes)+int64(c.ExtraBytes), a.src.Size()) {
			return nil, fmt.Errorf("chunk %d: %w: %d bytes at offset %d, archive has %d",
				i, ErrTruncatedRead, c.CompressedBytes+c.ExtraBytes, off, a.src.Size())
		}
		if cap(scratch) < int(c.CompressedBytes) {
			scratch = make([]byte, c.CompressedBytes)
		}
		src := scratch[:c.CompressedBytes]
		if err := a.readAt(src, off); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}

		want := int(c.InflatedBytes())
		out = out[:start+want]
		n, err := dec.Decode(out[start:], src)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		if n < want {
			return nil, fmt.Errorf("chunk %d: %w: inflated %d of %d bytes", i, ErrTruncatedDecompress, n, want)
		}

		if c.ExtraBytes > 0 {
			extra := start + want
			out = out[:extra+int(c.ExtraBytes)]
			if err := a.readAt(out[extra:], off+int64(c.CompressedBytes)); err != nil {
				return nil, fmt.Errorf("chunk %d extra bytes: %w", i, err)
			}
		}
	}

	if int64(len(out)) != total {
		return nil, fmt.Errorf("%w: reassembled %d bytes, chunks declare %d", ErrCorruptChunk, len(out), total)
	}
	return out, nil
}
