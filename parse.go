package tank

import (
	"fmt"

	"github.com/meigma/tank/internal/binread"
	"github.com/meigma/tank/internal/sizing"
	"github.com/meigma/tank/internal/tanktype"
)

const (
	fileRecordFixedSize = 28
	chunkRecordSize     = 16
)

func (a *Archive) parse() error {
	size := a.src.Size()
	r := binread.New(a.src, size, a.window)

	hdr, err := readHeader(r)
	if err != nil {
		return err
	}
	a.header = hdr

	if err := a.parseDirs(r); err != nil {
		return fmt.Errorf("directory table: %w", err)
	}
	if err := a.parseFiles(r); err != nil {
		return fmt.Errorf("file table: %w", err)
	}
	return nil
}

func readHeader(r *binread.Reader) (Header, error) {
	var h Header
	if r.Size() < tanktype.HeaderSize {
		return h, fmt.Errorf("%w: header needs %d bytes, archive has %d",
			ErrTruncatedRead, tanktype.HeaderSize, r.Size())
	}

	var err error
	if h.ProductID, err = r.Tag(); err != nil {
		return h, err
	}
	if h.ArchiveID, err = r.Tag(); err != nil {
		return h, err
	}
	if h.ArchiveID != tanktype.ArchiveID {
		return h, fmt.Errorf("%w: archive id %q", ErrBadMagic, h.ArchiveID)
	}
	for _, dst := range []*int32{&h.Version, &h.DirTableOffset, &h.FileTableOffset, &h.IndexSize, &h.DataOffset} {
		if *dst, err = r.Int32(); err != nil {
			return h, err
		}
	}
	if err := r.ReadFull(h.Reserved[:]); err != nil {
		return h, err
	}
	code, err := r.Int32()
	if err != nil {
		return h, err
	}
	if h.Priority, err = tanktype.ParsePriority(code); err != nil {
		return h, err
	}

	// The tables must at least hold their counts; the data section may be empty.
	if !sizing.InBounds(int64(h.DirTableOffset), 4, r.Size()) {
		return h, fmt.Errorf("%w: directory table offset %d outside archive", ErrCorrupt, h.DirTableOffset)
	}
	if !sizing.InBounds(int64(h.FileTableOffset), 4, r.Size()) {
		return h, fmt.Errorf("%w: file table offset %d outside archive", ErrCorrupt, h.FileTableOffset)
	}
	if !sizing.InBounds(int64(h.DataOffset), 0, r.Size()) {
		return h, fmt.Errorf("%w: data offset %d outside archive", ErrCorrupt, h.DataOffset)
	}
	return h, nil
}

// readTable reads a table's declared count and relative record offsets.
func readTable(r *binread.Reader, tableOffset int32) (int32, []int32, error) {
	if err := r.SeekTo(int64(tableOffset)); err != nil {
		return 0, nil, err
	}
	count, err := r.Int32()
	if err != nil {
		return 0, nil, err
	}
	if count < 0 || !sizing.InBounds(r.Pos(), int64(count)*4, r.Size()) {
		return 0, nil, fmt.Errorf("%w: table declares %d entries", ErrCorrupt, count)
	}
	offsets := make([]int32, count)
	for i := range offsets {
		if offsets[i], err = r.Int32(); err != nil {
			return 0, nil, err
		}
	}
	return count, offsets, nil
}

// resolvable reports whether a relative record offset lands inside the archive.
func resolvable(tableOffset, rel int32, size int64) (int64, bool) {
	abs := int64(tableOffset) + int64(rel)
	return abs, rel >= 0 && abs < size
}

func (a *Archive) parseDirs(r *binread.Reader) error {
	count, offsets, err := readTable(r, a.header.DirTableOffset)
	if err != nil {
		return err
	}
	a.declaredDirs = count
	a.dirs = make([]DirectoryEntry, 0, count)
	a.dirIndex = make(map[int32]int, count)

	for i, rel := range offsets {
		abs, ok := resolvable(a.header.DirTableOffset, rel, r.Size())
		if !ok {
			a.log().Warn("skipping unresolvable directory offset",
				"archive", a.name, "index", i, "offset", rel)
			continue
		}
		if _, dup := a.dirIndex[rel]; dup {
			a.log().Warn("skipping duplicate directory offset",
				"archive", a.name, "index", i, "offset", rel)
			continue
		}
		if err := r.SeekTo(abs); err != nil {
			return err
		}
		d, err := readDirRecord(r)
		if err != nil {
			return fmt.Errorf("directory %d at offset %d: %w", i, rel, err)
		}
		d.Offset = rel
		a.dirIndex[rel] = len(a.dirs)
		a.dirs = append(a.dirs, d)
	}
	return nil
}

func readDirRecord(r *binread.Reader) (DirectoryEntry, error) {
	var d DirectoryEntry
	var err error
	if d.ParentOffset, err = r.Int32(); err != nil {
		return d, err
	}
	if d.ChildCount, err = r.Int32(); err != nil {
		return d, err
	}
	if d.FileTime, err = r.Int64(); err != nil {
		return d, err
	}
	if d.Name, err = r.NString(); err != nil {
		return d, err
	}
	if d.ChildCount < 0 || !sizing.InBounds(r.Pos(), int64(d.ChildCount)*4, r.Size()) {
		return d, fmt.Errorf("%w: directory declares %d children", ErrCorrupt, d.ChildCount)
	}
	d.ChildOffsets = make([]int32, d.ChildCount)
	for i := range d.ChildOffsets {
		if d.ChildOffsets[i], err = r.Int32(); err != nil {
			return d, err
		}
	}
	return d, nil
}

func (a *Archive) parseFiles(r *binread.Reader) error {
	count, offsets, err := readTable(r, a.header.FileTableOffset)
	if err != nil {
		return err
	}
	a.declaredFiles = count
	a.files = make([]FileEntry, 0, count)
	a.fileIndex = make(map[int32]int, count)

	for i, rel := range offsets {
		abs, ok := resolvable(a.header.FileTableOffset, rel, r.Size())
		if !ok {
			a.log().Warn("skipping unresolvable file offset",
				"archive", a.name, "index", i, "offset", rel)
			continue
		}
		if _, dup := a.fileIndex[rel]; dup {
			a.log().Warn("skipping duplicate file offset",
				"archive", a.name, "index", i, "offset", rel)
			continue
		}
		if err := r.SeekTo(abs); err != nil {
			return err
		}
		f, err := readFileRecord(r)
		if err != nil {
			return fmt.Errorf("file %d at offset %d: %w", i, rel, err)
		}
		f.Offset = rel
		a.fileIndex[rel] = len(a.files)
		a.files = append(a.files, f)
	}
	return nil
}

func readFileRecord(r *binread.Reader) (FileEntry, error) {
	var f FileEntry
	fixed, err := r.Bytes(fileRecordFixedSize)
	if err != nil {
		return f, err
	}
	fr := binread.Fixed(fixed)
	f.ParentOffset = fr.Int32(0)
	f.Size = fr.Int32(4)
	f.DataOffset = fr.Int32(8)
	f.CRC32 = fr.Uint32(12)
	f.FileTime = fr.Int64(16)
	formatIndex := fr.Int16(24)
	f.Flags = tanktype.Flags(fr.Uint16(26))

	if f.Name, err = r.NString(); err != nil {
		return f, err
	}
	if f.Format, err = tanktype.ParseFormat(formatIndex); err != nil {
		return f, err
	}
	if f.Size < 0 || f.DataOffset < 0 {
		return f, fmt.Errorf("%w: file %q has size %d at data offset %d", ErrCorrupt, f.Name, f.Size, f.DataOffset)
	}
	if !f.Format.Compressed() || f.Size == 0 {
		return f, nil
	}

	ch, err := readCompression(r, f.Size)
	if err != nil {
		return f, fmt.Errorf("file %q: %w", f.Name, err)
	}
	f.Compression = ch
	return f, nil
}

func readCompression(r *binread.Reader, entrySize int32) (*CompressionHeader, error) {
	var ch CompressionHeader
	var err error
	if ch.CompressedSize, err = r.Int32(); err != nil {
		return nil, err
	}
	if ch.ChunkSize, err = r.Int32(); err != nil {
		return nil, err
	}
	if ch.CompressedSize < 0 || int64(ch.CompressedSize) > r.Size() {
		return nil, fmt.Errorf("%w: compressed size %d exceeds archive size %d",
			ErrCorruptChunk, ch.CompressedSize, r.Size())
	}
	if ch.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d", ErrCorruptChunk, ch.ChunkSize)
	}

	n := (int64(entrySize) + int64(ch.ChunkSize) - 1) / int64(ch.ChunkSize)
	if !sizing.InBounds(r.Pos(), n*chunkRecordSize, r.Size()) {
		return nil, fmt.Errorf("%w: %d chunk records", ErrTruncatedRead, n)
	}
	ch.Chunks = make([]ChunkHeader, n)
	for i := range ch.Chunks {
		rec, err := r.Bytes(chunkRecordSize)
		if err != nil {
			return nil, err
		}
		fr := binread.Fixed(rec)
		c := ChunkHeader{
			UncompressedBytes: fr.Int32(0),
			CompressedBytes:   fr.Int32(4),
			ExtraBytes:        fr.Int32(8),
			Offset:            fr.Int32(12),
		}
		if err := checkChunk(c); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		ch.Chunks[i] = c
	}
	if out := ch.OutputSize(); out != int64(entrySize) {
		return nil, fmt.Errorf("%w: chunks produce %d bytes, entry declares %d",
			ErrCorruptChunk, out, entrySize)
	}
	return &ch, nil
}

func checkChunk(c ChunkHeader) error {
	switch {
	case c.UncompressedBytes < c.CompressedBytes:
		return fmt.Errorf("%w: uncompressed %d < compressed %d",
			ErrCorruptChunk, c.UncompressedBytes, c.CompressedBytes)
	case c.CompressedBytes < 0 || c.ExtraBytes < 0 || c.Offset < 0:
		return fmt.Errorf("%w: negative field in %+v", ErrCorruptChunk, c)
	case c.ExtraBytes > c.UncompressedBytes:
		return fmt.Errorf("%w: extra %d > uncompressed %d",
			ErrCorruptChunk, c.ExtraBytes, c.UncompressedBytes)
	case !c.IsCompressed() && c.ExtraBytes != 0:
		return fmt.Errorf("%w: stored chunk declares %d extra bytes", ErrCorruptChunk, c.ExtraBytes)
	}
	return nil
}
