package tank

import (
	"io/fs"
	"iter"
	"path"
	"slices"
	"strings"
)

// CleanPath converts p to the canonical archive path form.
//
// Backslashes become slashes, the result is rooted at "/", and "." and
// ".." elements are resolved lexically: "Art\\Maps\\" → "/Art/Maps".
// Case is preserved.
func CleanPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return path.Clean("/" + p)
}

// PathKey returns the case-insensitive lookup key for p.
func PathKey(p string) string {
	return strings.ToLower(CleanPath(p))
}

// Resolution state while walking parent chains.
const (
	unvisited uint8 = iota
	visiting
	resolved
	orphaned
)

// buildPaths derives the full path of every directory and file from its
// parent chain. Records whose chain does not reach the root are skipped.
func (a *Archive) buildPaths() {
	dirPath := make([]string, len(a.dirs))
	state := make([]uint8, len(a.dirs))

	var resolve func(i int) bool
	resolve = func(i int) bool {
		switch state[i] {
		case resolved:
			return true
		case visiting:
			a.log().Warn("directory parent cycle",
				"archive", a.name, "offset", a.dirs[i].Offset)
			state[i] = orphaned
			return false
		case orphaned:
			return false
		}

		d := &a.dirs[i]
		if d.IsRoot() {
			dirPath[i] = "/"
			state[i] = resolved
			return true
		}

		state[i] = visiting
		parent, ok := a.dirIndex[d.ParentOffset]
		if !ok {
			a.log().Warn("skipping orphan directory",
				"archive", a.name, "name", d.Name, "parent", d.ParentOffset)
			state[i] = orphaned
			return false
		}
		if !resolve(parent) {
			state[i] = orphaned
			return false
		}
		dirPath[i] = CleanPath(dirPath[parent] + "/" + d.Name)
		state[i] = resolved
		return true
	}

	a.dirPaths = make(map[string]int, len(a.dirs))
	for i := range a.dirs {
		if !resolve(i) {
			continue
		}
		key := strings.ToLower(dirPath[i])
		if _, dup := a.dirPaths[key]; dup {
			if key != "/" {
				a.log().Warn("duplicate directory path", "archive", a.name, "path", dirPath[i])
			}
			continue
		}
		a.dirPaths[key] = i
	}

	a.filePaths = make(map[string]int, len(a.files))
	filePath := make([]string, len(a.files))
	for i := range a.files {
		f := &a.files[i]
		var parentPath string
		if f.ParentOffset == 0 {
			parentPath = "/"
		} else {
			parent, ok := a.dirIndex[f.ParentOffset]
			if !ok || state[parent] != resolved {
				a.log().Warn("skipping orphan file",
					"archive", a.name, "name", f.Name, "parent", f.ParentOffset)
				continue
			}
			parentPath = dirPath[parent]
		}
		filePath[i] = CleanPath(parentPath + "/" + f.Name)
		key := strings.ToLower(filePath[i])
		if _, dup := a.filePaths[key]; dup {
			a.log().Warn("duplicate file path", "archive", a.name, "path", filePath[i])
			continue
		}
		a.filePaths[key] = i
	}

	a.dirKeys, a.dirNames = sortedPaths(a.dirPaths, dirPath)
	a.fileKeys, a.fileNames = sortedPaths(a.filePaths, filePath)
}

// sortedPaths returns the keys of m in order alongside their display paths.
func sortedPaths(m map[string]int, display []string) (keys, names []string) {
	keys = make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	names = make([]string, len(keys))
	for i, k := range keys {
		names[i] = display[m[k]]
	}
	return keys, names
}

// Lookup returns the file entry at name.
func (a *Archive) Lookup(name string) (*FileEntry, bool) {
	i, ok := a.filePaths[PathKey(name)]
	if !ok {
		return nil, false
	}
	return &a.files[i], true
}

// LookupDir returns the directory entry at name.
func (a *Archive) LookupDir(name string) (*DirectoryEntry, bool) {
	i, ok := a.dirPaths[PathKey(name)]
	if !ok {
		return nil, false
	}
	return &a.dirs[i], true
}

// Stat returns the file entry at name or an *fs.PathError wrapping ErrNotFound.
func (a *Archive) Stat(name string) (*FileEntry, error) {
	e, ok := a.Lookup(name)
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: ErrNotFound}
	}
	return e, nil
}

// IsDir reports whether name is a directory in this archive.
func (a *Archive) IsDir(name string) bool {
	_, ok := a.dirPaths[PathKey(name)]
	return ok
}

// IsFile reports whether name is a file in this archive.
func (a *Archive) IsFile(name string) bool {
	_, ok := a.filePaths[PathKey(name)]
	return ok
}

// Files yields every resolved file's case-preserving path and entry,
// ordered by lookup key.
func (a *Archive) Files() iter.Seq2[string, *FileEntry] {
	return func(yield func(string, *FileEntry) bool) {
		for i, key := range a.fileKeys {
			if !yield(a.fileNames[i], &a.files[a.filePaths[key]]) {
				return
			}
		}
	}
}

// Dirs yields every resolved directory's case-preserving path, including
// the root, ordered by lookup key.
func (a *Archive) Dirs() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, name := range a.dirNames {
			if !yield(name) {
				return
			}
		}
	}
}
