package tank

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/meigma/tank/internal/codec"
	"github.com/meigma/tank/internal/tanktype"
)

// Re-export types from internal/tanktype for public API.
type (
	// Header is the fixed archive header.
	Header = tanktype.Header

	// Priority is an archive's override tier.
	Priority = tanktype.Priority

	// Format identifies how a file's payload is stored.
	Format = tanktype.Format

	// Flags is the per-file flag bitset.
	Flags = tanktype.Flags

	// DirectoryEntry is one record of the directory table.
	DirectoryEntry = tanktype.DirectoryEntry

	// FileEntry is one record of the file table.
	FileEntry = tanktype.FileEntry

	// CompressionHeader describes how a compressed file is split into chunks.
	CompressionHeader = tanktype.CompressionHeader

	// ChunkHeader describes one stored segment of a compressed file.
	ChunkHeader = tanktype.ChunkHeader

	// Decoder decodes a compressed chunk payload.
	Decoder = codec.Decoder

	// DecoderFunc adapts a function to the Decoder interface.
	DecoderFunc = codec.DecoderFunc
)

// Priority tiers, lowest first.
const (
	PriorityFactory   = tanktype.PriorityFactory
	PriorityLanguage  = tanktype.PriorityLanguage
	PriorityExpansion = tanktype.PriorityExpansion
	PriorityPatch     = tanktype.PriorityPatch
	PriorityUser      = tanktype.PriorityUser
)

// Storage formats.
const (
	FormatRaw  = tanktype.FormatRaw
	FormatZlib = tanktype.FormatZlib
	FormatLZO  = tanktype.FormatLZO
)

// File flags.
const (
	FlagNonRetail            = tanktype.FlagNonRetail
	FlagAllowMultiplayerXfer = tanktype.FlagAllowMultiplayerXfer
	FlagProtectedContent     = tanktype.FlagProtectedContent
)

// Sentinel errors re-exported from internal/tanktype.
var (
	// ErrCorrupt matches every structural failure that aborts a load.
	ErrCorrupt = tanktype.ErrCorrupt

	// ErrBadMagic is returned when the header does not carry the archive tag.
	ErrBadMagic = tanktype.ErrBadMagic

	// ErrUnknownPriority is returned for an unrecognized priority code.
	ErrUnknownPriority = tanktype.ErrUnknownPriority

	// ErrUnknownFormat is returned for an unrecognized storage format.
	ErrUnknownFormat = tanktype.ErrUnknownFormat

	// ErrCorruptChunk is returned when compression metadata violates its invariants.
	ErrCorruptChunk = tanktype.ErrCorruptChunk

	// ErrTruncatedRead is returned when fewer bytes are available than declared.
	ErrTruncatedRead = tanktype.ErrTruncatedRead

	// ErrTruncatedDecompress is returned when a chunk inflates short.
	ErrTruncatedDecompress = tanktype.ErrTruncatedDecompress

	// ErrDecompression is returned when a chunk payload cannot be decoded.
	ErrDecompression = tanktype.ErrDecompression

	// ErrSizeOverflow is returned when a file exceeds the configured size limit.
	ErrSizeOverflow = tanktype.ErrSizeOverflow

	// ErrChecksum is returned when CRC verification is enabled and fails.
	ErrChecksum = tanktype.ErrChecksum

	// ErrNotFound is returned for absent paths. It is fs.ErrNotExist.
	ErrNotFound = tanktype.ErrNotFound
)

// FileTime converts an on-disk FILETIME stamp to a time.Time.
var FileTime = tanktype.FileTimeToTime

// ErrNotRegular is returned by Load when the path is not a regular file.
var ErrNotRegular = errors.New("tank: not a regular file")

// ByteSource provides random access to archive bytes.
//
// ReadAt must be safe for concurrent use. SourceID must return a stable
// identifier for the underlying content.
type ByteSource interface {
	io.ReaderAt
	Size() int64
	SourceID() string
}

// Archive is a parsed, immutable archive index over a ByteSource.
type Archive struct {
	name   string
	src    ByteSource
	closer io.Closer
	once   sync.Once
	header Header

	// Arena of resolved records with offset -> arena index lookups.
	dirs      []DirectoryEntry
	dirIndex  map[int32]int
	files     []FileEntry
	fileIndex map[int32]int

	declaredDirs  int32
	declaredFiles int32

	// Lower-cased path -> arena index, plus display paths in key order.
	dirPaths  map[string]int
	filePaths map[string]int
	dirKeys   []string
	fileKeys  []string
	dirNames  []string
	fileNames []string

	maxFileSize uint64
	verifyCRC   bool
	mmap        bool
	window      int
	codecs      *codec.Registry
	logger      *slog.Logger
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// Name returns the archive's name, used in logs and to order archives of
// equal priority.
func (a *Archive) Name() string {
	return a.name
}

// Header returns the parsed archive header.
func (a *Archive) Header() Header {
	return a.header
}

// Priority returns the archive's override tier.
func (a *Archive) Priority() Priority {
	return a.header.Priority
}

// Source returns the archive's byte source.
func (a *Archive) Source() ByteSource {
	return a.src
}

// DirCount returns the number of directory records that resolved.
func (a *Archive) DirCount() int {
	return len(a.dirs)
}

// DeclaredDirCount returns the directory count stored in the archive.
// It can exceed DirCount when stray offsets were skipped.
func (a *Archive) DeclaredDirCount() int {
	return int(a.declaredDirs)
}

// FileCount returns the number of file records that resolved.
func (a *Archive) FileCount() int {
	return len(a.files)
}

// DeclaredFileCount returns the file count stored in the archive.
func (a *Archive) DeclaredFileCount() int {
	return int(a.declaredFiles)
}

// Directory returns the directory record at the given table-relative offset.
func (a *Archive) Directory(offset int32) (*DirectoryEntry, bool) {
	i, ok := a.dirIndex[offset]
	if !ok {
		return nil, false
	}
	return &a.dirs[i], true
}

// File returns the file record at the given table-relative offset.
func (a *Archive) File(offset int32) (*FileEntry, bool) {
	i, ok := a.fileIndex[offset]
	if !ok {
		return nil, false
	}
	return &a.files[i], true
}

// Close releases the underlying file or mapping when the archive owns one.
// Archives created with New over a caller-owned source do nothing.
func (a *Archive) Close() error {
	var err error
	a.once.Do(func() {
		if a.closer != nil {
			err = a.closer.Close()
		}
	})
	return err
}
