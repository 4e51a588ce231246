package tank

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/meigma/tank/testutil"
)

var (
	benchSinkBytes   []byte
	benchSinkArchive *Archive
)

type benchPattern string

const (
	benchPatternCompressible benchPattern = "compressible"
	benchPatternRandom       benchPattern = "random"

	benchDirCount  = 16
	benchChunkSize = 16 << 10
)

func benchData(pattern benchPattern, size int, seed uint64) []byte {
	if pattern == benchPatternCompressible {
		return bytes.Repeat([]byte("[t:template,n:actor] { doc = \"bench\"; }\n"), size/40+1)[:size]
	}
	r := rand.New(rand.NewPCG(seed, seed)) //nolint:gosec // reproducible benchmark data
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(r.Uint32())
	}
	return data
}

// benchChunks splits data into zlib chunks of benchChunkSize, storing
// chunks that do not shrink.
func benchChunks(data []byte) []testutil.Chunk {
	var chunks []testutil.Chunk
	for len(data) > 0 {
		n := min(len(data), benchChunkSize)
		enc := testutil.Deflate(data[:n])
		if len(enc) < n {
			chunks = append(chunks, testutil.Chunk{Data: data[:n], Encoded: enc})
		} else {
			chunks = append(chunks, testutil.Chunk{Data: data[:n], Stored: true})
		}
		data = data[n:]
	}
	return chunks
}

func benchArchive(fileCount, fileSize int, format Format, pattern benchPattern) *testutil.Builder {
	b := testutil.NewBuilder()
	for i := range fileCount {
		p := fmt.Sprintf("/dir%02d/file%05d.gas", i%benchDirCount, i)
		data := benchData(pattern, fileSize, uint64(i))
		if format == FormatRaw {
			b.AddRaw(p, data)
		} else {
			b.AddChunked(p, format, benchChunks(data)...)
		}
	}
	return b
}

func BenchmarkLoad(b *testing.B) {
	for _, fileCount := range []int{256, 4096} {
		b.Run(fmt.Sprintf("files=%d", fileCount), func(b *testing.B) {
			data := benchArchive(fileCount, 64, FormatRaw, benchPatternCompressible).Bytes()
			src := testutil.NewMockByteSource(data, "bench.dsres")
			b.ReportAllocs()
			b.SetBytes(int64(len(data)))
			for b.Loop() {
				a, err := New(src)
				if err != nil {
					b.Fatal(err)
				}
				benchSinkArchive = a
			}
		})
	}
}

func BenchmarkReadFile(b *testing.B) {
	cases := []struct {
		name     string
		fileSize int
		format   Format
		pattern  benchPattern
	}{
		{"size=64k/raw", 64 << 10, FormatRaw, benchPatternRandom},
		{"size=64k/zlib/compressible", 64 << 10, FormatZlib, benchPatternCompressible},
		{"size=64k/zlib/random", 64 << 10, FormatZlib, benchPatternRandom},
		{"size=1m/zlib/compressible", 1 << 20, FormatZlib, benchPatternCompressible},
	}
	for _, tc := range cases {
		b.Run(tc.name, func(b *testing.B) {
			const fileCount = 16
			data := benchArchive(fileCount, tc.fileSize, tc.format, tc.pattern).Bytes()
			a, err := New(testutil.NewMockByteSource(data, "bench.dsres"))
			if err != nil {
				b.Fatal(err)
			}
			b.ReportAllocs()
			b.SetBytes(int64(tc.fileSize))
			i := 0
			for b.Loop() {
				p := fmt.Sprintf("/dir%02d/file%05d.gas", i%benchDirCount, i%fileCount)
				benchSinkBytes, err = a.ReadFile(p)
				if err != nil {
					b.Fatal(err)
				}
				i++
			}
		})
	}
}
