package overlay

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/tank"
)

// DefaultExtensions are the archive file extensions Discover looks for
// when none are given.
var DefaultExtensions = []string{".dsres", ".dsmap", ".dsm"}

// Standard install subdirectories holding archives.
const (
	ResourcesDir = "Resources"
	MapsDir      = "Maps"
)

// Discover lists archive files directly inside dirs whose extension
// matches one of exts, case-insensitively. Missing directories are
// skipped. The result is sorted and free of duplicates.
func Discover(dirs, exts []string) ([]string, error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	var paths []string
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("discover archives: %w", err)
		}
		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			ext := filepath.Ext(e.Name())
			if slices.ContainsFunc(exts, func(x string) bool { return strings.EqualFold(x, ext) }) {
				paths = append(paths, filepath.Join(dir, e.Name()))
			}
		}
	}
	slices.Sort(paths)
	return slices.Compact(paths), nil
}

// Load parses the archives at paths in parallel and merges them.
//
// Parsing order never affects the merged result. Unless WithSkipBroken is
// set, the first failure closes every loaded archive and is returned.
func Load(ctx context.Context, paths []string, opts ...Option) (*Set, error) {
	o := newOptions(opts)
	start := time.Now()

	archiveOpts := o.archiveOpts
	if o.logger != nil {
		archiveOpts = append([]tank.Option{tank.WithLogger(o.logger)}, archiveOpts...)
	}

	slots := make([]*tank.Archive, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			a, err := tank.Load(p, archiveOpts...)
			if err != nil {
				if o.skipBroken {
					o.log().Warn("skipping broken archive", "path", p, "error", err)
					return nil
				}
				return err
			}
			slots[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, a := range slots {
			if a != nil {
				a.Close()
			}
		}
		return nil, err
	}

	archives := slices.DeleteFunc(slots, func(a *tank.Archive) bool { return a == nil })
	s := merge(archives, o.logger)
	o.log().Info("archive set loaded",
		"archives", len(archives),
		"skipped", len(paths)-len(archives),
		"files", s.Len(),
		"elapsed", time.Since(start))
	return s, nil
}

// LoadInstall discovers and loads the archives under an install root's
// Resources and Maps directories.
func LoadInstall(ctx context.Context, root string, opts ...Option) (*Set, error) {
	paths, err := Discover(InstallDirs(root), nil)
	if err != nil {
		return nil, err
	}
	return Load(ctx, paths, opts...)
}

// InstallDirs returns the archive directories of an install root.
func InstallDirs(root string) []string {
	return []string{filepath.Join(root, ResourcesDir), filepath.Join(root, MapsDir)}
}
