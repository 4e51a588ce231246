package sizing

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOverflow = errors.New("overflow")

func TestToInt(t *testing.T) {
	t.Parallel()

	n, err := ToInt(42, errOverflow)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = ToInt(-1, errOverflow)
	assert.ErrorIs(t, err, errOverflow)
}

func TestAddInt64(t *testing.T) {
	t.Parallel()

	sum, ok := AddInt64(1, 2)
	assert.True(t, ok)
	assert.Equal(t, int64(3), sum)

	_, ok = AddInt64(math.MaxInt64, 1)
	assert.False(t, ok)

	_, ok = AddInt64(-1, 1)
	assert.False(t, ok)
}

func TestInBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name              string
		off, length, size int64
		want              bool
	}{
		{"inside", 0, 10, 10, true},
		{"empty at end", 10, 0, 10, true},
		{"past end", 5, 6, 10, false},
		{"negative offset", -1, 1, 10, false},
		{"overflow", math.MaxInt64, 2, math.MaxInt64, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, InBounds(tt.off, tt.length, tt.size))
		})
	}
}
