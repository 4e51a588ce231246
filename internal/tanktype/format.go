package tanktype

import (
	"fmt"
	"strings"
)

// Format identifies how a file's payload is stored.
type Format uint16

const (
	FormatRaw Format = iota
	FormatZlib
	FormatLZO
)

// ParseFormat maps an on-disk format index to a Format.
func ParseFormat(index int16) (Format, error) {
	f := Format(uint16(index))
	if index < 0 || f > FormatLZO {
		return 0, fmt.Errorf("%w: %d", ErrUnknownFormat, index)
	}
	return f, nil
}

// Compressed reports whether payloads in this format are stored as chunks.
func (f Format) Compressed() bool {
	return f != FormatRaw
}

// String returns the human-readable name of the format.
func (f Format) String() string {
	switch f {
	case FormatRaw:
		return "raw"
	case FormatZlib:
		return "zlib"
	case FormatLZO:
		return "lzo"
	default:
		return "unknown"
	}
}

// Flags is the per-file flag set.
type Flags uint16

const (
	FlagNonRetail            Flags = 0x1
	FlagAllowMultiplayerXfer Flags = 0x2
	FlagProtectedContent     Flags = 0x4
)

// Has reports whether all bits in mask are set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

// String lists the set flags, or "none".
func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	if f.Has(FlagNonRetail) {
		names = append(names, "non-retail")
	}
	if f.Has(FlagAllowMultiplayerXfer) {
		names = append(names, "allow-multiplayer-xfer")
	}
	if f.Has(FlagProtectedContent) {
		names = append(names, "protected-content")
	}
	if rest := f &^ (FlagNonRetail | FlagAllowMultiplayerXfer | FlagProtectedContent); rest != 0 {
		names = append(names, fmt.Sprintf("0x%x", uint16(rest)))
	}
	return strings.Join(names, "|")
}
