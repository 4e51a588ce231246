package binread

import "encoding/binary"

// Fixed decodes little-endian fields at known offsets of a fixed-size
// record that was read in one piece. Offsets must be in range.
type Fixed []byte

// Int16 returns the int16 at off.
func (f Fixed) Int16(off int) int16 {
	return int16(binary.LittleEndian.Uint16(f[off:])) //nolint:gosec // two's complement reinterpretation
}

// Uint16 returns the uint16 at off.
func (f Fixed) Uint16(off int) uint16 {
	return binary.LittleEndian.Uint16(f[off:])
}

// Int32 returns the int32 at off.
func (f Fixed) Int32(off int) int32 {
	return int32(binary.LittleEndian.Uint32(f[off:])) //nolint:gosec // two's complement reinterpretation
}

// Uint32 returns the uint32 at off.
func (f Fixed) Uint32(off int) uint32 {
	return binary.LittleEndian.Uint32(f[off:])
}

// Int64 returns the int64 at off.
func (f Fixed) Int64(off int) int64 {
	return int64(binary.LittleEndian.Uint64(f[off:])) //nolint:gosec // two's complement reinterpretation
}
