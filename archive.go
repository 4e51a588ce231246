package tank

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/exp/mmap"

	"github.com/meigma/tank/internal/binread"
	"github.com/meigma/tank/internal/codec"
)

func newArchive(opts []Option) *Archive {
	a := &Archive{
		maxFileSize: DefaultMaxFileSize,
		window:      binread.DefaultWindow,
		codecs:      codec.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Load opens and parses the archive at path.
//
// The file stays open for extraction until Close is called. Structural
// corruption fails the whole load; stray directory or file offsets are
// logged and skipped.
func Load(path string, opts ...Option) (*Archive, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, &fs.PathError{Op: "load", Path: path, Err: ErrNotRegular}
	}

	a := newArchive(opts)
	if a.name == "" {
		a.name = filepath.Base(path)
	}

	if a.mmap {
		r, err := mmap.Open(path)
		if err != nil {
			return nil, fmt.Errorf("mmap archive: %w", err)
		}
		a.src = &mmapSource{r: r, sourceID: fileSourceID(path, info)}
		a.closer = r
	} else {
		f, err := os.Open(path) //nolint:gosec // User-provided path is intentional
		if err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
		a.src = newFileSource(f, info)
		a.closer = f
	}

	if err := a.load(); err != nil {
		a.closer.Close()
		return nil, &fs.PathError{Op: "load", Path: path, Err: err}
	}
	return a, nil
}

// New parses an archive from src. The caller owns src; Close on the
// returned Archive does not close it.
func New(src ByteSource, opts ...Option) (*Archive, error) {
	a := newArchive(opts)
	if a.name == "" {
		a.name = src.SourceID()
	}
	a.src = src
	if err := a.load(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Archive) load() error {
	start := time.Now()
	if err := a.parse(); err != nil {
		return err
	}
	a.buildPaths()
	a.log().Debug("archive loaded",
		"archive", a.name,
		"priority", a.header.Priority,
		"dirs", len(a.dirs),
		"declared_dirs", a.declaredDirs,
		"files", len(a.files),
		"declared_files", a.declaredFiles,
		"elapsed", time.Since(start))
	return nil
}
