// Package testutil builds synthetic archives for tests.
package testutil

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/klauspost/compress/zlib"

	"github.com/meigma/tank/internal/binread"
	"github.com/meigma/tank/internal/tanktype"
)

// Chunk is one segment of a chunked file.
type Chunk struct {
	// Data is what the chunk payload decodes to.
	Data []byte

	// Extra is the literal tail stored after the compressed payload.
	Extra []byte

	// Stored writes Data verbatim instead of compressing it.
	Stored bool

	// Encoded replaces the zlib encoding of Data when set.
	Encoded []byte

	// Mutate edits the chunk record after it is computed.
	Mutate func(*tanktype.ChunkHeader)
}

type dirSpec struct {
	name     string
	parent   *dirSpec
	children []*dirSpec
	rel      int32
}

type fileSpec struct {
	name   string
	parent *dirSpec
	format tanktype.Format
	data   []byte
	chunks []Chunk
	mutate []func(*tanktype.FileEntry)
}

// Builder writes byte-exact archives.
//
// Paths are slash separated; parent directories are created on demand and
// keep the case they were first given in. The zero value is not usable;
// call NewBuilder.
type Builder struct {
	ProductID string
	ArchiveID string
	Version   int32
	Priority  int32
	FileTime  int64

	root        *dirSpec
	dirs        []*dirSpec
	dirByKey    map[string]*dirSpec
	files       []*fileSpec
	fileByKey   map[string]*fileSpec
	dirOffsets  map[int]int32
	fileOffsets map[int]int32
}

// NewBuilder returns a builder for a factory-priority archive with only a
// root directory.
func NewBuilder() *Builder {
	root := &dirSpec{}
	return &Builder{
		ProductID:   "DSig",
		ArchiveID:   tanktype.ArchiveID,
		Version:     1,
		Priority:    int32(tanktype.PriorityFactory),
		FileTime:    127173888000000000,
		root:        root,
		dirs:        []*dirSpec{root},
		dirByKey:    map[string]*dirSpec{"": root},
		fileByKey:   make(map[string]*fileSpec),
		dirOffsets:  make(map[int]int32),
		fileOffsets: make(map[int]int32),
	}
}

// WithPriority sets the archive's priority code.
func (b *Builder) WithPriority(p tanktype.Priority) *Builder {
	b.Priority = int32(p)
	return b
}

func splitPath(p string) []string {
	p = strings.Trim(strings.ReplaceAll(p, "\\", "/"), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func (b *Builder) ensureDir(parts []string) *dirSpec {
	d := b.root
	for i, name := range parts {
		key := strings.ToLower(strings.Join(parts[:i+1], "/"))
		next, ok := b.dirByKey[key]
		if !ok {
			next = &dirSpec{name: name, parent: d}
			d.children = append(d.children, next)
			b.dirs = append(b.dirs, next)
			b.dirByKey[key] = next
		}
		d = next
	}
	return d
}

// AddDir adds a directory and its parents.
func (b *Builder) AddDir(p string) *Builder {
	b.ensureDir(splitPath(p))
	return b
}

func (b *Builder) addFile(p string, f *fileSpec) {
	parts := splitPath(p)
	if len(parts) == 0 {
		panic("testutil: file path has no name")
	}
	f.name = parts[len(parts)-1]
	f.parent = b.ensureDir(parts[:len(parts)-1])
	b.files = append(b.files, f)
	b.fileByKey[strings.ToLower(strings.Join(parts, "/"))] = f
}

// AddRaw adds a file stored verbatim.
func (b *Builder) AddRaw(p string, data []byte) *Builder {
	b.addFile(p, &fileSpec{format: tanktype.FormatRaw, data: data})
	return b
}

// AddChunked adds a chunked file in the given compressed format.
func (b *Builder) AddChunked(p string, format tanktype.Format, chunks ...Chunk) *Builder {
	b.addFile(p, &fileSpec{format: format, chunks: chunks})
	return b
}

// AddZlib adds data as a single zlib chunk.
func (b *Builder) AddZlib(p string, data []byte) *Builder {
	return b.AddChunked(p, tanktype.FormatZlib, Chunk{Data: data})
}

// MutateFile edits the record written for the file at p. It runs after
// sizes, offsets and the checksum are computed.
func (b *Builder) MutateFile(p string, fn func(*tanktype.FileEntry)) *Builder {
	f, ok := b.fileByKey[strings.ToLower(strings.Join(splitPath(p), "/"))]
	if !ok {
		panic(fmt.Sprintf("testutil: no file %q", p))
	}
	f.mutate = append(f.mutate, fn)
	return b
}

// CorruptDirOffset replaces the i-th directory table offset (the root is 0).
func (b *Builder) CorruptDirOffset(i int, rel int32) *Builder {
	b.dirOffsets[i] = rel
	return b
}

// CorruptFileOffset replaces the i-th file table offset.
func (b *Builder) CorruptFileOffset(i int, rel int32) *Builder {
	b.fileOffsets[i] = rel
	return b
}

// DirCount returns the number of directory records, including the root.
func (b *Builder) DirCount() int {
	return len(b.dirs)
}

type fileRecord struct {
	entry   tanktype.FileEntry
	payload []byte
}

func (b *Builder) encodeFile(f *fileSpec) fileRecord {
	rec := fileRecord{entry: tanktype.FileEntry{
		ParentOffset: f.parent.rel,
		FileTime:     b.FileTime,
		Format:       f.format,
		Name:         f.name,
	}}

	if f.chunks == nil {
		rec.payload = f.data
		rec.entry.Size = int32(len(f.data))
		rec.entry.CRC32 = crc32.ChecksumIEEE(f.data)
	} else {
		var out []byte
		ch := &tanktype.CompressionHeader{}
		for _, c := range f.chunks {
			hdr := tanktype.ChunkHeader{Offset: int32(len(rec.payload))}
			if c.Stored {
				hdr.UncompressedBytes = int32(len(c.Data))
				hdr.CompressedBytes = hdr.UncompressedBytes
				rec.payload = append(rec.payload, c.Data...)
			} else {
				enc := c.Encoded
				if enc == nil {
					enc = Deflate(c.Data)
				}
				hdr.UncompressedBytes = int32(len(c.Data) + len(c.Extra))
				hdr.CompressedBytes = int32(len(enc))
				hdr.ExtraBytes = int32(len(c.Extra))
				rec.payload = append(rec.payload, enc...)
				rec.payload = append(rec.payload, c.Extra...)
			}
			out = append(out, c.Data...)
			out = append(out, c.Extra...)
			if c.Mutate != nil {
				c.Mutate(&hdr)
			}
			ch.Chunks = append(ch.Chunks, hdr)
		}
		ch.CompressedSize = int32(len(rec.payload))
		if len(ch.Chunks) > 0 {
			ch.ChunkSize = ch.Chunks[0].UncompressedBytes
		}
		rec.entry.Size = int32(len(out))
		rec.entry.CRC32 = crc32.ChecksumIEEE(out)
		if rec.entry.Size > 0 {
			rec.entry.Compression = ch
		}
	}
	return rec
}

// Bytes serializes the archive.
func (b *Builder) Bytes() []byte {
	// Directory table: count, offsets, then records. Offsets depend only on
	// record sizes, so they are assigned before anything is written.
	dirTable := 4 + 4*len(b.dirs)
	pos := dirTable
	for _, d := range b.dirs {
		d.rel = int32(pos)
		pos += 16 + binread.NStringSize(len(d.name)) + 4*len(d.children)
	}
	dirTableSize := pos

	records := make([]fileRecord, len(b.files))
	for i, f := range b.files {
		records[i] = b.encodeFile(f)
	}

	fileTable := 4 + 4*len(records)
	pos = fileTable
	fileRel := make([]int32, len(records))
	var dataPos int32
	for i := range records {
		e := &records[i].entry
		e.DataOffset = dataPos
		dataPos += int32(len(records[i].payload))
		for _, fn := range b.files[i].mutate {
			fn(e)
		}
		fileRel[i] = int32(pos)
		pos += 28 + binread.NStringSize(len(e.Name))
		if e.Compression != nil {
			pos += 8 + 16*len(e.Compression.Chunks)
		}
	}
	fileTableSize := pos

	dirTableOffset := tanktype.HeaderSize
	fileTableOffset := dirTableOffset + dirTableSize
	dataOffset := fileTableOffset + fileTableSize

	buf := make([]byte, 0, dataOffset+int(dataPos))
	buf = append(buf, tag(b.ProductID)...)
	buf = append(buf, tag(b.ArchiveID)...)
	buf = le32(buf, b.Version)
	buf = le32(buf, int32(dirTableOffset))
	buf = le32(buf, int32(fileTableOffset))
	buf = le32(buf, int32(dataOffset-tanktype.HeaderSize))
	buf = le32(buf, int32(dataOffset))
	buf = append(buf, make([]byte, 24)...)
	buf = le32(buf, b.Priority)

	buf = le32(buf, int32(len(b.dirs)))
	for i, d := range b.dirs {
		rel := d.rel
		if bad, ok := b.dirOffsets[i]; ok {
			rel = bad
		}
		buf = le32(buf, rel)
	}
	for _, d := range b.dirs {
		var parent int32
		if d.parent != nil {
			parent = d.parent.rel
		}
		buf = le32(buf, parent)
		buf = le32(buf, int32(len(d.children)))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(b.FileTime))
		buf = nstring(buf, d.name)
		for _, c := range d.children {
			buf = le32(buf, c.rel)
		}
	}

	buf = le32(buf, int32(len(records)))
	for i, rel := range fileRel {
		if bad, ok := b.fileOffsets[i]; ok {
			rel = bad
		}
		buf = le32(buf, rel)
	}
	for i := range records {
		e := &records[i].entry
		buf = le32(buf, e.ParentOffset)
		buf = le32(buf, e.Size)
		buf = le32(buf, e.DataOffset)
		buf = binary.LittleEndian.AppendUint32(buf, e.CRC32)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(e.FileTime))
		buf = binary.LittleEndian.AppendUint16(buf, uint16(e.Format))
		buf = binary.LittleEndian.AppendUint16(buf, uint16(e.Flags))
		buf = nstring(buf, e.Name)
		if e.Compression != nil {
			buf = le32(buf, e.Compression.CompressedSize)
			buf = le32(buf, e.Compression.ChunkSize)
			for _, c := range e.Compression.Chunks {
				buf = le32(buf, c.UncompressedBytes)
				buf = le32(buf, c.CompressedBytes)
				buf = le32(buf, c.ExtraBytes)
				buf = le32(buf, c.Offset)
			}
		}
	}

	if len(buf) != dataOffset {
		panic(fmt.Sprintf("testutil: index is %d bytes, expected %d", len(buf), dataOffset))
	}
	for i := range records {
		buf = append(buf, records[i].payload...)
	}
	return buf
}

// WriteFile writes the archive to dir/name and returns the path.
func (b *Builder) WriteFile(tb testing.TB, dir, name string) string {
	tb.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, b.Bytes(), 0o644); err != nil {
		tb.Fatalf("write archive: %v", err)
	}
	return p
}

// FileNames returns the builder's file paths in insertion order.
func (b *Builder) FileNames() []string {
	names := make([]string, 0, len(b.files))
	for _, f := range b.files {
		var parts []string
		for d := f.parent; d != nil && d.parent != nil; d = d.parent {
			parts = append(parts, d.name)
		}
		slices.Reverse(parts)
		names = append(names, "/"+strings.Join(append(parts, f.name), "/"))
	}
	return names
}

// Deflate returns data as a zlib stream.
func Deflate(data []byte) []byte {
	var buf bytes.Buffer
	zw, _ := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	_, _ = zw.Write(data)
	_ = zw.Close()
	return buf.Bytes()
}

func tag(s string) []byte {
	b := make([]byte, 4)
	copy(b, s)
	return b
}

func le32(buf []byte, v int32) []byte {
	return binary.LittleEndian.AppendUint32(buf, uint32(v))
}

func nstring(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(s)))
	buf = append(buf, s...)
	return append(buf, make([]byte, binread.NStringPad(len(s)))...)
}

// MockByteSource implements an in-memory byte source for tests.
type MockByteSource struct {
	data     []byte
	sourceID string
}

// NewMockByteSource returns a byte source backed by data. An empty id is
// replaced by one derived from the content.
func NewMockByteSource(data []byte, id string) *MockByteSource {
	if id == "" {
		sum := sha256.Sum256(data)
		id = "mock:" + hex.EncodeToString(sum[:])
	}
	return &MockByteSource{data: data, sourceID: id}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MockByteSource) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (m *MockByteSource) Size() int64 {
	return int64(len(m.data))
}

// SourceID returns the source identifier.
func (m *MockByteSource) SourceID() string {
	return m.sourceID
}
