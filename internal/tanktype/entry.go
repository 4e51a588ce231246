package tanktype

// HeaderSize is the fixed size of the archive header on disk.
const HeaderSize = 56

// ArchiveID is the tag every archive carries after its product id.
const ArchiveID = "Tank"

// Header is the fixed archive header.
type Header struct {
	ProductID       string
	ArchiveID       string
	Version         int32
	DirTableOffset  int32
	FileTableOffset int32
	IndexSize       int32
	DataOffset      int32
	Reserved        [24]byte
	Priority        Priority
}

// DirectoryEntry is one record of the directory table.
type DirectoryEntry struct {
	// Offset is the record's position relative to the directory table.
	// Offsets are the format's record identity.
	Offset       int32
	ParentOffset int32
	ChildCount   int32
	FileTime     int64
	Name         string

	// ChildOffsets are the raw relative child offsets in declared order.
	ChildOffsets []int32
}

// IsRoot reports whether the entry is the archive root.
func (d *DirectoryEntry) IsRoot() bool {
	return d.ParentOffset == 0
}

// FileEntry is one record of the file table.
type FileEntry struct {
	// Offset is the record's position relative to the file table.
	Offset       int32
	ParentOffset int32

	// Size is the uncompressed size of the file.
	Size int32

	// DataOffset is relative to the header's data section.
	DataOffset int32
	CRC32      uint32
	FileTime   int64
	Format     Format
	Flags      Flags
	Name       string

	// Compression is nil for raw entries and empty compressed entries.
	Compression *CompressionHeader
}

// CompressionHeader describes how a compressed file is split into chunks.
type CompressionHeader struct {
	CompressedSize int32
	ChunkSize      int32
	Chunks         []ChunkHeader
}

// OutputSize is the sum of the declared per-chunk output sizes.
func (c *CompressionHeader) OutputSize() int64 {
	var total int64
	for i := range c.Chunks {
		total += int64(c.Chunks[i].UncompressedBytes)
	}
	return total
}

// ChunkHeader describes one independently stored segment of a file.
type ChunkHeader struct {
	UncompressedBytes int32
	CompressedBytes   int32

	// ExtraBytes are stored verbatim after the compressed payload and
	// appended to the inflated output.
	ExtraBytes int32

	// Offset is relative to the file's data offset.
	Offset int32
}

// IsCompressed reports whether the chunk payload must be decoded.
func (c ChunkHeader) IsCompressed() bool {
	return c.CompressedBytes != c.UncompressedBytes
}

// InflatedBytes is the size the compressed payload decodes to.
func (c ChunkHeader) InflatedBytes() int32 {
	return c.UncompressedBytes - c.ExtraBytes
}
