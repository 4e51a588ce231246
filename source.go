package tank

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/exp/mmap"
)

// fileSource wraps *os.File to implement ByteSource.
// os.File has ReadAt but not Size, so we cache the size at construction.
type fileSource struct {
	file     *os.File
	size     int64
	sourceID string
}

func newFileSource(f *os.File, info os.FileInfo) *fileSource {
	return &fileSource{file: f, size: info.Size(), sourceID: fileSourceID(f.Name(), info)}
}

// ReadAt implements io.ReaderAt. Reads use pread and need no locking.
func (s *fileSource) ReadAt(p []byte, off int64) (int, error) {
	return s.file.ReadAt(p, off)
}

// Size returns the total size of the file.
func (s *fileSource) Size() int64 {
	return s.size
}

// SourceID returns a stable identifier for the file content.
func (s *fileSource) SourceID() string {
	return s.sourceID
}

// mmapSource serves reads from a read-only memory mapping.
type mmapSource struct {
	r        *mmap.ReaderAt
	sourceID string
}

func (s *mmapSource) ReadAt(p []byte, off int64) (int, error) {
	return s.r.ReadAt(p, off)
}

func (s *mmapSource) Size() int64 {
	return int64(s.r.Len())
}

func (s *mmapSource) SourceID() string {
	return s.sourceID
}

func fileSourceID(path string, info os.FileInfo) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	return fmt.Sprintf("file:%s:%d:%d", absPath, info.Size(), info.ModTime().UnixNano())
}

// Interface compliance.
var (
	_ ByteSource = (*fileSource)(nil)
	_ ByteSource = (*mmapSource)(nil)
)
