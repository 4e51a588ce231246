package overlay

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/meigma/tank"
)

// winner records which archive supplies a merged file.
type winner struct {
	archive *tank.Archive
	entry   *tank.FileEntry
	path    string
}

// dirNode is one directory of the merged name-only tree. Child maps are
// keyed by lower-cased name and hold the case-preserving display name.
type dirNode struct {
	path    string
	modTime time.Time
	dirs    map[string]string
	files   map[string]string
}

func newDirNode(p string) *dirNode {
	return &dirNode{path: p, dirs: make(map[string]string), files: make(map[string]string)}
}

// Set is an immutable merge of archives.
//
// Set implements fs.FS, fs.StatFS, fs.ReadFileFS, and fs.ReadDirFS over
// fs.ValidPath names. Its own methods take archive paths ("/World/Maps",
// backslashes allowed) and match them case-insensitively.
type Set struct {
	archives []*tank.Archive
	files    map[string]winner
	dirs     map[string]*dirNode
	keys     []string
	byName   map[string]string
	logger   *slog.Logger
}

// log returns the logger, falling back to a discard logger if nil.
func (s *Set) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// New merges archives into a Set. The input order does not matter.
func New(archives []*tank.Archive, opts ...Option) *Set {
	o := newOptions(opts)
	return merge(archives, o.logger)
}

// With returns a new Set that merges s's archives with more. s is unchanged.
func (s *Set) With(more ...*tank.Archive) *Set {
	all := make([]*tank.Archive, 0, len(s.archives)+len(more))
	all = append(all, s.archives...)
	all = append(all, more...)
	return merge(all, s.logger)
}

// compareArchives orders by priority, then case-insensitive name, then
// name, then source id. Archives loaded from different directories can
// share a name; their source ids hold the absolute path.
func compareArchives(a, b *tank.Archive) int {
	return cmp.Or(
		cmp.Compare(a.Priority(), b.Priority()),
		cmp.Compare(strings.ToLower(a.Name()), strings.ToLower(b.Name())),
		cmp.Compare(a.Name(), b.Name()),
		cmp.Compare(a.Source().SourceID(), b.Source().SourceID()),
	)
}

func merge(archives []*tank.Archive, logger *slog.Logger) *Set {
	sorted := slices.Clone(archives)
	slices.SortStableFunc(sorted, compareArchives)

	s := &Set{
		archives: sorted,
		files:    make(map[string]winner),
		dirs:     map[string]*dirNode{"/": newDirNode("/")},
		logger:   logger,
	}

	for _, a := range sorted {
		for dir := range a.Dirs() {
			n := s.ensureDir(dir)
			if d, ok := a.LookupDir(dir); ok && d.FileTime > 0 {
				n.modTime = tank.FileTime(d.FileTime)
			}
		}
		for p, e := range a.Files() {
			key := strings.ToLower(p)
			if prev, ok := s.files[key]; ok {
				s.log().Debug("path overridden",
					"path", p, "archive", a.Name(), "shadowed", prev.archive.Name())
			}
			s.files[key] = winner{archive: a, entry: e, path: p}
			parent := s.ensureDir(path.Dir(p))
			parent.files[path.Base(key)] = path.Base(p)
		}
	}

	s.keys = make([]string, 0, len(s.files))
	for k := range s.files {
		s.keys = append(s.keys, k)
	}
	slices.Sort(s.keys)

	s.byName = make(map[string]string, len(s.keys))
	for _, k := range s.keys {
		base := path.Base(k)
		if _, ok := s.byName[base]; !ok {
			s.byName[base] = s.files[k].path
		}
	}

	s.log().Debug("archive set merged", "archives", len(sorted), "files", len(s.files), "dirs", len(s.dirs))
	return s
}

// ensureDir creates p and its ancestors. Later calls overwrite display
// names so the highest-priority spelling wins.
func (s *Set) ensureDir(p string) *dirNode {
	key := strings.ToLower(p)
	if n, ok := s.dirs[key]; ok {
		n.path = p
		if key != "/" {
			parent := s.ensureDir(path.Dir(p))
			parent.dirs[path.Base(key)] = path.Base(p)
		}
		return n
	}
	n := newDirNode(p)
	s.dirs[key] = n
	parent := s.ensureDir(path.Dir(p))
	parent.dirs[path.Base(key)] = path.Base(p)
	return n
}

func (s *Set) lookup(name string) (winner, bool) {
	w, ok := s.files[tank.PathKey(name)]
	return w, ok
}

// Resolve returns the archive that supplies name.
func (s *Set) Resolve(name string) (*tank.Archive, error) {
	w, ok := s.lookup(name)
	if !ok {
		return nil, &fs.PathError{Op: "resolve", Path: name, Err: tank.ErrNotFound}
	}
	return w.archive, nil
}

// Entry returns the winning file entry for name.
func (s *Set) Entry(name string) (*tank.FileEntry, error) {
	w, ok := s.lookup(name)
	if !ok {
		return nil, &fs.PathError{Op: "entry", Path: name, Err: tank.ErrNotFound}
	}
	return w.entry, nil
}

// Read returns the contents of name from its winning archive.
func (s *Set) Read(name string) ([]byte, error) {
	w, ok := s.lookup(name)
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: tank.ErrNotFound}
	}
	data, err := w.archive.ReadEntry(w.entry)
	if err != nil {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fmt.Errorf("%s: %w", w.archive.Name(), err)}
	}
	return data, nil
}

// List returns the names of the children of dir, sorted case-insensitively.
// A name that is both a file and a directory appears once.
func (s *Set) List(dir string) ([]string, error) {
	n, ok := s.dirs[tank.PathKey(dir)]
	if !ok {
		return nil, &fs.PathError{Op: "list", Path: dir, Err: tank.ErrNotFound}
	}
	keys := make([]string, 0, len(n.dirs)+len(n.files))
	for k := range n.dirs {
		keys = append(keys, k)
	}
	for k := range n.files {
		if _, dup := n.dirs[k]; !dup {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	names := make([]string, len(keys))
	for i, k := range keys {
		if d, ok := n.files[k]; ok {
			names[i] = d
		} else {
			names[i] = n.dirs[k]
		}
	}
	return names, nil
}

// IsDir reports whether name is a directory in any archive.
func (s *Set) IsDir(name string) bool {
	_, ok := s.dirs[tank.PathKey(name)]
	return ok
}

// IsFile reports whether name is a file in any archive.
func (s *Set) IsFile(name string) bool {
	_, ok := s.lookup(name)
	return ok
}

// FileSize returns the uncompressed size of name.
func (s *Set) FileSize(name string) (int64, error) {
	w, ok := s.lookup(name)
	if !ok {
		return 0, &fs.PathError{Op: "filesize", Path: name, Err: tank.ErrNotFound}
	}
	return int64(w.entry.Size), nil
}

// ErrUnknownArchive is returned by PriorityOf for an archive not in the set.
var ErrUnknownArchive = errors.New("overlay: unknown archive")

// PriorityOf returns the priority of the named archive.
func (s *Set) PriorityOf(archive string) (tank.Priority, error) {
	for _, a := range s.archives {
		if strings.EqualFold(a.Name(), archive) {
			return a.Priority(), nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownArchive, archive)
}

// Archives returns the merged archives, lowest priority first.
func (s *Set) Archives() []*tank.Archive {
	return slices.Clone(s.archives)
}

// Len returns the number of merged files.
func (s *Set) Len() int {
	return len(s.keys)
}

// Paths yields every merged file path with its winning archive, ordered
// by lookup key.
func (s *Set) Paths() iter.Seq2[string, *tank.Archive] {
	return func(yield func(string, *tank.Archive) bool) {
		for _, k := range s.keys {
			w := s.files[k]
			if !yield(w.path, w.archive) {
				return
			}
		}
	}
}

// FindByName maps a bare file name to the full path of a merged file with
// that name. When several directories hold the name, the path that sorts
// first wins.
func (s *Set) FindByName(name string) (string, bool) {
	p, ok := s.byName[strings.ToLower(name)]
	return p, ok
}

// Match returns the merged file paths matching a glob pattern, sorted.
//
// Patterns are matched case-insensitively against full paths with "/" as
// the separator: "*" stays within one element, "**" crosses elements, and
// "{a,b}" alternates. A pattern without a leading "/" is anchored at the root.
func (s *Set) Match(pattern string) ([]string, error) {
	g, err := compileGlob(pattern)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, k := range s.keys {
		if g.Match(k) {
			out = append(out, s.files[k].path)
		}
	}
	return out, nil
}

// Close closes every archive in the set. Sets derived with With share
// archives, so close only the last one in use.
func (s *Set) Close() error {
	var errs []error
	for _, a := range s.archives {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
