package overlay

import (
	"log/slog"
	"runtime"

	"github.com/meigma/tank"
)

// Option configures loading and merging.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	skipBroken  bool
	concurrency int
	archiveOpts []tank.Option
}

func newOptions(opts []Option) *options {
	o := &options{concurrency: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger for the set and, unless WithArchiveOptions
// supplies one, for every archive it loads.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithSkipBroken controls whether Load skips archives that fail to load
// (default: false, one broken archive fails the whole load).
func WithSkipBroken(enabled bool) Option {
	return func(o *options) {
		o.skipBroken = enabled
	}
}

// WithConcurrency limits how many archives Load parses at once.
// Values <= 0 use GOMAXPROCS.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n <= 0 {
			n = runtime.GOMAXPROCS(0)
		}
		o.concurrency = n
	}
}

// WithArchiveOptions passes options to every tank.Load call.
func WithArchiveOptions(opts ...tank.Option) Option {
	return func(o *options) {
		o.archiveOpts = append(o.archiveOpts, opts...)
	}
}

func (o *options) log() *slog.Logger {
	if o.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.logger
}
