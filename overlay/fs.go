package overlay

import (
	"bytes"
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/meigma/tank"
)

// Interface compliance.
var (
	_ fs.FS         = (*Set)(nil)
	_ fs.StatFS     = (*Set)(nil)
	_ fs.ReadFileFS = (*Set)(nil)
	_ fs.ReadDirFS  = (*Set)(nil)
)

// archivePath maps an fs.ValidPath name to an archive path.
func archivePath(name string) string {
	if name == "." {
		return "/"
	}
	return "/" + name
}

// Open implements fs.FS. File contents are extracted in full on Open.
func (s *Set) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	p := archivePath(name)
	if w, ok := s.lookup(p); ok {
		data, err := w.archive.ReadEntry(w.entry)
		if err != nil {
			return nil, &fs.PathError{Op: "open", Path: name, Err: err}
		}
		return &openFile{Reader: bytes.NewReader(data), info: newFileInfo(w)}, nil
	}
	if n, ok := s.dirs[tank.PathKey(p)]; ok {
		return &openDir{s: s, node: n, info: newDirInfo(n)}, nil
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// Stat implements fs.StatFS. A name that is both a file and a directory
// stats as the file.
func (s *Set) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	p := archivePath(name)
	if w, ok := s.lookup(p); ok {
		return newFileInfo(w), nil
	}
	if n, ok := s.dirs[tank.PathKey(p)]; ok {
		return newDirInfo(n), nil
	}
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}

// ReadFile implements fs.ReadFileFS.
func (s *Set) ReadFile(name string) ([]byte, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrInvalid}
	}
	w, ok := s.lookup(archivePath(name))
	if !ok {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrNotExist}
	}
	data, err := w.archive.ReadEntry(w.entry)
	if err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}
	return data, nil
}

// ReadDir implements fs.ReadDirFS. Entries are sorted by name.
func (s *Set) ReadDir(name string) ([]fs.DirEntry, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	n, ok := s.dirs[tank.PathKey(archivePath(name))]
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	return s.dirEntries(n), nil
}

func (s *Set) dirEntries(n *dirNode) []fs.DirEntry {
	base := strings.ToLower(n.path)
	entries := make([]fs.DirEntry, 0, len(n.dirs)+len(n.files))
	for k := range n.files {
		entries = append(entries, fs.FileInfoToDirEntry(newFileInfo(s.files[path.Join(base, k)])))
	}
	for k := range n.dirs {
		if _, dup := n.files[k]; dup {
			continue
		}
		entries = append(entries, fs.FileInfoToDirEntry(newDirInfo(s.dirs[path.Join(base, k)])))
	}
	slices.SortFunc(entries, func(a, b fs.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return entries
}

// fileInfo implements fs.FileInfo for merged files.
type fileInfo struct {
	name    string
	size    int64
	modTime time.Time
	entry   *tank.FileEntry
	archive string
}

func newFileInfo(w winner) *fileInfo {
	return &fileInfo{
		name:    path.Base(w.path),
		size:    int64(w.entry.Size),
		modTime: tank.FileTime(w.entry.FileTime),
		entry:   w.entry,
		archive: w.archive.Name(),
	}
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return fi.size }
func (fi *fileInfo) Mode() fs.FileMode  { return 0o444 }
func (fi *fileInfo) ModTime() time.Time { return fi.modTime }
func (fi *fileInfo) IsDir() bool        { return false }
func (fi *fileInfo) Sys() any           { return fi.entry }

// Archive returns the name of the archive that supplies the file.
func (fi *fileInfo) Archive() string {
	return fi.archive
}

// dirInfo implements fs.FileInfo for merged directories.
type dirInfo struct {
	name    string
	modTime time.Time
}

func newDirInfo(n *dirNode) *dirInfo {
	name := path.Base(n.path)
	if n.path == "/" {
		name = "."
	}
	return &dirInfo{name: name, modTime: n.modTime}
}

func (di *dirInfo) Name() string       { return di.name }
func (di *dirInfo) Size() int64        { return 0 }
func (di *dirInfo) Mode() fs.FileMode  { return fs.ModeDir | 0o555 }
func (di *dirInfo) ModTime() time.Time { return di.modTime }
func (di *dirInfo) IsDir() bool        { return true }
func (di *dirInfo) Sys() any           { return nil }

// openFile is an fs.File over fully extracted content.
type openFile struct {
	*bytes.Reader
	info *fileInfo
}

func (f *openFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *openFile) Close() error                { return nil }

// openDir is an fs.ReadDirFile over a merged directory.
type openDir struct {
	s       *Set
	node    *dirNode
	info    *dirInfo
	entries []fs.DirEntry
	read    bool
}

func (d *openDir) Read(_ []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.node.path, Err: fs.ErrInvalid}
}

func (d *openDir) Stat() (fs.FileInfo, error) { return d.info, nil }
func (d *openDir) Close() error                { return nil }

func (d *openDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if !d.read {
		d.entries = d.s.dirEntries(d.node)
		d.read = true
	}
	if n <= 0 {
		out := d.entries
		d.entries = nil
		return out, nil
	}
	if len(d.entries) == 0 {
		return nil, io.EOF
	}
	n = min(n, len(d.entries))
	out := d.entries[:n]
	d.entries = d.entries[n:]
	return out, nil
}

var (
	_ fs.File        = (*openFile)(nil)
	_ io.ReaderAt    = (*openFile)(nil)
	_ io.Seeker      = (*openFile)(nil)
	_ fs.ReadDirFile = (*openDir)(nil)
)
