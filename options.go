package tank

import (
	"log/slog"

	"github.com/meigma/tank/internal/tanktype"
)

// DefaultMaxFileSize is the default per-file extraction limit.
const DefaultMaxFileSize = 256 << 20

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets the logger for load diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

// WithName overrides the archive name. Load defaults to the file's base
// name and New to the source's SourceID.
func WithName(name string) Option {
	return func(a *Archive) {
		a.name = name
	}
}

// WithMaxFileSize limits the uncompressed size of a single extracted file.
// Set limit to 0 to disable the limit.
func WithMaxFileSize(limit uint64) Option {
	return func(a *Archive) {
		a.maxFileSize = limit
	}
}

// WithVerifyCRC controls whether ReadFile checks extracted bytes against the
// stored crc32 (default: false).
func WithVerifyCRC(enabled bool) Option {
	return func(a *Archive) {
		a.verifyCRC = enabled
	}
}

// WithMmap makes Load memory-map the archive instead of reading it through
// a file handle. It has no effect on New.
func WithMmap(enabled bool) Option {
	return func(a *Archive) {
		a.mmap = enabled
	}
}

// WithIndexWindow sets the read-ahead window used while parsing the index.
// Values <= 0 use the default.
func WithIndexWindow(n int) Option {
	return func(a *Archive) {
		if n > 0 {
			a.window = n
		}
	}
}

// WithDecoder installs a decoder for a compressed storage format,
// replacing the built-in one.
func WithDecoder(f Format, d Decoder) Option {
	return func(a *Archive) {
		if f == tanktype.FormatRaw || d == nil {
			return
		}
		a.codecs.Register(f, d)
	}
}
