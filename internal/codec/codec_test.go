package codec

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/tank/internal/tanktype"
)

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestZlib_Decode(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("dungeon siege "), 200)
	compressed := deflate(t, data)
	z := NewZlib()

	// Run twice so the second call goes through a pooled reader.
	for range 2 {
		dst := make([]byte, len(data))
		n, err := z.Decode(dst, compressed)
		require.NoError(t, err)
		assert.Equal(t, len(data), n)
		assert.Equal(t, data, dst)
	}
}

func TestZlib_ShortStream(t *testing.T) {
	t.Parallel()

	data := []byte("short payload")
	compressed := deflate(t, data)

	dst := make([]byte, len(data)+10)
	n, err := NewZlib().Decode(dst, compressed)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
}

func TestZlib_PartialOutput(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("abcdefgh"), 64)
	compressed := deflate(t, data)

	// Decoding stops once dst is full even if the stream holds more.
	dst := make([]byte, 100)
	n, err := NewZlib().Decode(dst, compressed)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, data[:100], dst)
}

func TestZlib_Garbage(t *testing.T) {
	t.Parallel()

	_, err := NewZlib().Decode(make([]byte, 16), []byte("definitely not zlib"))
	assert.ErrorIs(t, err, tanktype.ErrDecompression)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := Default()
	_, ok := r.Lookup(tanktype.FormatZlib)
	assert.True(t, ok)
	_, ok = r.Lookup(tanktype.FormatLZO)
	assert.True(t, ok)
	_, ok = r.Lookup(tanktype.FormatRaw)
	assert.False(t, ok)

	r.Register(tanktype.FormatZlib, DecoderFunc(func(dst, _ []byte) (int, error) {
		return copy(dst, "x"), nil
	}))

	d, _ := r.Lookup(tanktype.FormatZlib)
	dst := make([]byte, 1)
	n, err := d.Decode(dst, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Every Default call builds a fresh registry.
	orig, _ := Default().Lookup(tanktype.FormatZlib)
	assert.IsType(t, &Zlib{}, orig)
}
