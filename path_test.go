package tank

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"World/Maps/foo.gas", "/World/Maps/foo.gas"},
		{`Art\Bitmaps\`, "/Art/Bitmaps"},
		{"//a//b/", "/a/b"},
		{"/a/./b/../c", "/a/c"},
		{"/../..", "/"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CleanPath(tt.in))
		})
	}
}

func TestPathKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/world/maps/foo.gas", PathKey(`World\Maps\FOO.GAS`))
	assert.Equal(t, PathKey("/world/maps/foo.gas"), PathKey("/WORLD/maps/Foo.Gas"))
}
