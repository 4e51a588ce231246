package tanktype

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePriority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code int32
		want Priority
		name string
	}{
		{0x0000, PriorityFactory, "factory"},
		{0x1000, PriorityLanguage, "language"},
		{0x2000, PriorityExpansion, "expansion"},
		{0x3000, PriorityPatch, "patch"},
		{0x4000, PriorityUser, "user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := ParsePriority(tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
			assert.Equal(t, tt.name, p.String())
		})
	}

	_, err := ParsePriority(0x5000)
	assert.ErrorIs(t, err, ErrUnknownPriority)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestPriorityOrdering(t *testing.T) {
	t.Parallel()

	assert.Less(t, PriorityFactory, PriorityLanguage)
	assert.Less(t, PriorityLanguage, PriorityExpansion)
	assert.Less(t, PriorityExpansion, PriorityPatch)
	assert.Less(t, PriorityPatch, PriorityUser)
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	f, err := ParseFormat(0)
	require.NoError(t, err)
	assert.Equal(t, FormatRaw, f)
	assert.False(t, f.Compressed())

	f, err = ParseFormat(1)
	require.NoError(t, err)
	assert.Equal(t, FormatZlib, f)
	assert.True(t, f.Compressed())

	f, err = ParseFormat(2)
	require.NoError(t, err)
	assert.Equal(t, FormatLZO, f)
	assert.True(t, f.Compressed())

	for _, bad := range []int16{-1, 3, 100} {
		_, err := ParseFormat(bad)
		assert.ErrorIs(t, err, ErrUnknownFormat)
	}
}

func TestFlagsString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "none", Flags(0).String())
	assert.Equal(t, "non-retail", FlagNonRetail.String())
	assert.Equal(t, "non-retail|protected-content", (FlagNonRetail | FlagProtectedContent).String())
	assert.Equal(t, "allow-multiplayer-xfer|0x10", (FlagAllowMultiplayerXfer | 0x10).String())
	assert.True(t, (FlagNonRetail | FlagProtectedContent).Has(FlagProtectedContent))
	assert.False(t, FlagNonRetail.Has(FlagAllowMultiplayerXfer))
}

func TestStructuralErrors(t *testing.T) {
	t.Parallel()

	for _, err := range []error{ErrBadMagic, ErrUnknownPriority, ErrUnknownFormat, ErrCorruptChunk} {
		assert.True(t, errors.Is(err, ErrCorrupt), err.Error())
	}
	for _, err := range []error{ErrTruncatedRead, ErrTruncatedDecompress, ErrDecompression, ErrChecksum} {
		assert.False(t, errors.Is(err, ErrCorrupt), err.Error())
	}
}

func TestFileTime(t *testing.T) {
	t.Parallel()

	assert.True(t, FileTimeToTime(0).IsZero())
	assert.Equal(t, int64(0), TimeToFileTime(time.Time{}))

	// 2004-01-01T00:00:00Z
	ft := int64(127173888000000000)
	want := time.Date(2004, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, want, FileTimeToTime(ft))
	assert.Equal(t, ft, TimeToFileTime(want))
}

func TestCompressionHeaderOutputSize(t *testing.T) {
	t.Parallel()

	c := &CompressionHeader{Chunks: []ChunkHeader{
		{UncompressedBytes: 100, CompressedBytes: 40, ExtraBytes: 8},
		{UncompressedBytes: 20, CompressedBytes: 20},
	}}
	assert.Equal(t, int64(120), c.OutputSize())
	assert.True(t, c.Chunks[0].IsCompressed())
	assert.False(t, c.Chunks[1].IsCompressed())
	assert.Equal(t, int32(92), c.Chunks[0].InflatedBytes())
}
