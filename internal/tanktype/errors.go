package tanktype

import (
	"errors"
	"io/fs"
)

// ErrCorrupt is returned when an archive fails structural validation.
// A load that fails with ErrCorrupt publishes no partial archive.
var ErrCorrupt = errors.New("tank: corrupt archive")

// structuralError is a sentinel that also matches ErrCorrupt.
type structuralError struct{ msg string }

func (e *structuralError) Error() string { return e.msg }

func (e *structuralError) Is(target error) bool { return target == ErrCorrupt }

// Structural sentinels. Each matches ErrCorrupt under errors.Is.
var (
	// ErrBadMagic is returned when the header does not carry the archive tag.
	ErrBadMagic error = &structuralError{"tank: bad magic"}

	// ErrUnknownPriority is returned for a priority code outside the known tiers.
	ErrUnknownPriority error = &structuralError{"tank: unknown priority"}

	// ErrUnknownFormat is returned for a storage format index outside the known formats.
	ErrUnknownFormat error = &structuralError{"tank: unknown storage format"}

	// ErrCorruptChunk is returned when compression metadata violates its invariants.
	ErrCorruptChunk error = &structuralError{"tank: corrupt chunk header"}
)

// Extraction and read sentinels.
var (
	// ErrTruncatedRead is returned when fewer bytes are available than the format promises.
	ErrTruncatedRead = errors.New("tank: truncated read")

	// ErrTruncatedDecompress is returned when a chunk inflates to fewer bytes than declared.
	ErrTruncatedDecompress = errors.New("tank: truncated decompress")

	// ErrDecompression is returned when a chunk payload cannot be decoded.
	ErrDecompression = errors.New("tank: decompression failed")

	// ErrSizeOverflow is returned when byte counts exceed supported limits.
	ErrSizeOverflow = errors.New("tank: size overflow")

	// ErrChecksum is returned when extracted content does not match the stored crc32.
	ErrChecksum = errors.New("tank: checksum mismatch")

	// ErrNotFound is returned when a path is absent. It is fs.ErrNotExist so
	// callers may test for either.
	ErrNotFound = fs.ErrNotExist
)
