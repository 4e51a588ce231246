// Package codec maps archive storage formats to chunk decoders.
//
// Decoders are looked up by format tag in an explicitly constructed Registry
// rather than by a process-wide table, so archives opened with different
// registries do not interfere.
package codec

import "github.com/meigma/tank/internal/tanktype"

// Decoder decodes a single chunk payload.
//
// Decode writes at most len(dst) bytes of output and returns how many it
// wrote. A stream that ends before dst is full is not an error; callers
// compare the count against what they expect. Implementations must be safe
// for concurrent use.
type Decoder interface {
	Decode(dst, src []byte) (int, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(dst, src []byte) (int, error)

// Decode calls f(dst, src).
func (f DecoderFunc) Decode(dst, src []byte) (int, error) {
	return f(dst, src)
}

// Registry maps formats to decoders.
//
// Registries are populated before use and must not be modified while
// archives that hold them are being read.
type Registry struct {
	decoders map[tanktype.Format]Decoder
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{decoders: make(map[tanktype.Format]Decoder)}
}

// Default returns a new registry with the built-in zlib and LZO decoders.
func Default() *Registry {
	r := NewRegistry()
	r.Register(tanktype.FormatZlib, NewZlib())
	r.Register(tanktype.FormatLZO, LZO{})
	return r
}

// Register installs d for format f, replacing any previous decoder.
func (r *Registry) Register(f tanktype.Format, d Decoder) {
	r.decoders[f] = d
}

// Lookup returns the decoder for f.
func (r *Registry) Lookup(f tanktype.Format) (Decoder, bool) {
	d, ok := r.decoders[f]
	return d, ok
}
