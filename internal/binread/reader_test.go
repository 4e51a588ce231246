package binread

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/tank/internal/tanktype"
)

func nstring(s string) []byte {
	out := binary.LittleEndian.AppendUint16(nil, uint16(len(s)))
	out = append(out, s...)
	return append(out, make([]byte, NStringPad(len(s)))...)
}

func TestReader_Primitives(t *testing.T) {
	t.Parallel()

	var buf []byte
	buf = binary.LittleEndian.AppendUint16(buf, 0xfffe)
	buf = binary.LittleEndian.AppendUint32(buf, 0x12345678)
	buf = binary.LittleEndian.AppendUint64(buf, 1<<40)
	buf = append(buf, "Tank"...)

	r := New(bytes.NewReader(buf), int64(len(buf)), 0)

	u16, err := r.Uint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0xfffe), u16)

	i32, err := r.Int32()
	require.NoError(t, err)
	assert.Equal(t, int32(0x12345678), i32)

	i64, err := r.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(1<<40), i64)

	tag, err := r.Tag()
	require.NoError(t, err)
	assert.Equal(t, "Tank", tag)
	assert.Equal(t, int64(len(buf)), r.Pos())

	_, err = r.Int32()
	assert.ErrorIs(t, err, tanktype.ErrTruncatedRead)
}

func TestReader_NString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value   string
		encoded int
	}{
		{"", 4},
		{"a", 4},
		{"ab", 8},
		{"abc", 8},
		{"abcde", 8},
		{"abcdef", 12},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Parallel()

			data := append(nstring(tt.value), 0xAA, 0xBB, 0xCC, 0xDD)
			assert.Equal(t, tt.encoded, NStringSize(len(tt.value)))
			assert.Zero(t, NStringSize(len(tt.value))%4)

			r := New(bytes.NewReader(data), int64(len(data)), 0)
			got, err := r.NString()
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
			assert.Equal(t, int64(tt.encoded), r.Pos())

			tail, err := r.Uint32()
			require.NoError(t, err)
			assert.Equal(t, uint32(0xDDCCBBAA), tail)
		})
	}
}

func TestReader_TruncatedNString(t *testing.T) {
	t.Parallel()

	data := binary.LittleEndian.AppendUint16(nil, 10)
	data = append(data, "abc"...)

	r := New(bytes.NewReader(data), int64(len(data)), 0)
	_, err := r.NString()
	assert.ErrorIs(t, err, tanktype.ErrTruncatedRead)
}

func TestReader_SeekAndWindow(t *testing.T) {
	t.Parallel()

	data := make([]byte, 64)
	for i := range 16 {
		binary.LittleEndian.PutUint32(data[i*4:], uint32(i))
	}

	// A tiny window forces refills on every other read.
	r := New(bytes.NewReader(data), int64(len(data)), 6)
	for _, i := range []int{15, 0, 7, 8, 3} {
		require.NoError(t, r.SeekTo(int64(i*4)))
		v, err := r.Uint32()
		require.NoError(t, err)
		assert.Equal(t, uint32(i), v)
	}

	assert.ErrorIs(t, r.SeekTo(65), tanktype.ErrTruncatedRead)
	assert.ErrorIs(t, r.SeekTo(-1), tanktype.ErrTruncatedRead)
	require.NoError(t, r.SeekTo(64))
	assert.ErrorIs(t, r.Skip(1), tanktype.ErrTruncatedRead)
}

func TestReader_Bytes(t *testing.T) {
	t.Parallel()

	data := []byte("0123456789")
	r := New(bytes.NewReader(data), int64(len(data)), 0)
	require.NoError(t, r.SeekTo(2))

	b, err := r.Bytes(3)
	require.NoError(t, err)
	assert.Equal(t, []byte("234"), b)

	p := make([]byte, 5)
	require.NoError(t, r.ReadFull(p))
	assert.Equal(t, []byte("56789"), p)

	_, err = r.Bytes(1)
	assert.ErrorIs(t, err, tanktype.ErrTruncatedRead)
}

func TestFixed(t *testing.T) {
	t.Parallel()

	rec := Fixed{
		0xfe, 0xff,                   // int16 -2
		0x34, 0x12,                   // uint16 0x1234
		0x78, 0x56, 0x34, 0x12,       // int32
		0xff, 0xff, 0xff, 0xff,       // uint32 max
		0x01, 0, 0, 0, 0, 0, 0, 0x80, // int64
	}
	assert.Equal(t, int16(-2), rec.Int16(0))
	assert.Equal(t, uint16(0x1234), rec.Uint16(2))
	assert.Equal(t, int32(0x12345678), rec.Int32(4))
	assert.Equal(t, uint32(0xffffffff), rec.Uint32(8))
	assert.Equal(t, int64(-0x7fffffffffffffff), rec.Int64(12))
}
