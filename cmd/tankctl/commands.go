package main

import (
	"bytes"
	"context"
	_ "crypto/sha256" // registers digest.Canonical
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/tank"
	tankfuse "github.com/meigma/tank/fuse"
	"github.com/meigma/tank/overlay"
)

func runInfo(ctx context.Context, e *env, args []string) error {
	flags := e.flagSet("info", "")
	if done, err := parseFlags(flags, args); done || err != nil {
		return err
	}
	if flags.NArg() > 0 {
		return usagef("info: unexpected argument %q", flags.Arg(0))
	}

	set, err := e.openSet(ctx)
	if err != nil {
		return err
	}
	defer set.Close()

	w := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ARCHIVE\tPRIORITY\tVERSION\tDIRS\tFILES\tSIZE")
	for _, a := range set.Archives() {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d/%d\t%d/%d\t%s\n",
			a.Name(), a.Priority(), a.Header().Version,
			a.DirCount(), a.DeclaredDirCount(),
			a.FileCount(), a.DeclaredFileCount(),
			humanize.IBytes(uint64(a.Source().Size())))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%d files merged from %d archives\n", set.Len(), len(set.Archives()))
	return nil
}

func runLs(ctx context.Context, e *env, args []string) error {
	flags := e.flagSet("ls", "[-l] [dir...]")
	long := flags.BoolP("long", "l", false, "show size, time and source archive")
	if done, err := parseFlags(flags, args); done || err != nil {
		return err
	}

	set, err := e.openSet(ctx)
	if err != nil {
		return err
	}
	defer set.Close()

	dirs := flags.Args()
	if len(dirs) == 0 {
		dirs = []string{"/"}
	}

	w := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	for i, dir := range dirs {
		dir = tank.CleanPath(dir)
		if set.IsFile(dir) && !set.IsDir(dir) {
			writeLsEntry(w, e.paint, set, dir, path.Base(dir), *long)
			continue
		}
		names, err := set.List(dir)
		if err != nil {
			return err
		}
		if len(dirs) > 1 {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "%s:\n", dir)
		}
		for _, name := range names {
			writeLsEntry(w, e.paint, set, path.Join(dir, name), name, *long)
		}
	}
	return w.Flush()
}

func writeLsEntry(w *tabwriter.Writer, paint *palette, set *overlay.Set, p, name string, long bool) {
	isFile := set.IsFile(p)
	if !long {
		if !isFile {
			name = paint.dir.Sprint(name + "/")
		}
		fmt.Fprintln(w, name)
		return
	}
	if !isFile {
		fmt.Fprintf(w, "dr-xr-xr-x\t-\t-\t%s/\t\n", name)
		return
	}
	entry, _ := set.Entry(p)
	archive, _ := set.Resolve(p)
	fmt.Fprintf(w, "-r--r--r--\t%s\t%s\t%s\t%s\n",
		humanize.IBytes(uint64(entry.Size)), formatTime(entry.FileTime), name, archive.Name())
}

func formatTime(ft int64) string {
	t := tank.FileTime(ft)
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.DateTime)
}

func runCat(ctx context.Context, e *env, args []string) error {
	flags := e.flagSet("cat", "path...")
	if done, err := parseFlags(flags, args); done || err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return usagef("cat: no path given")
	}

	set, err := e.openSet(ctx)
	if err != nil {
		return err
	}
	defer set.Close()

	for _, p := range flags.Args() {
		data, err := set.Read(p)
		if err != nil {
			return err
		}
		if _, err := e.stdout.Write(data); err != nil {
			return err
		}
	}
	return nil
}

func runStat(ctx context.Context, e *env, args []string) error {
	flags := e.flagSet("stat", "path...")
	if done, err := parseFlags(flags, args); done || err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return usagef("stat: no path given")
	}

	set, err := e.openSet(ctx)
	if err != nil {
		return err
	}
	defer set.Close()

	for i, p := range flags.Args() {
		if i > 0 {
			fmt.Fprintln(e.stdout)
		}
		p = tank.CleanPath(p)
		if !set.IsFile(p) {
			if !set.IsDir(p) {
				return fmt.Errorf("stat %s: %w", p, tank.ErrNotFound)
			}
			fmt.Fprintf(e.stdout, "path:      %s\ntype:      directory\n", p)
			continue
		}

		entry, err := set.Entry(p)
		if err != nil {
			return err
		}
		archive, err := set.Resolve(p)
		if err != nil {
			return err
		}
		data, err := set.Read(p)
		if err != nil {
			return err
		}

		stored := entry.Format.String()
		if c := entry.Compression; c != nil {
			stored = fmt.Sprintf("%s, %d chunks of %s, %s compressed",
				stored, len(c.Chunks), humanize.IBytes(uint64(c.ChunkSize)), humanize.IBytes(uint64(c.CompressedSize)))
		}
		fmt.Fprintf(e.stdout, "path:      %s\n", p)
		fmt.Fprintf(e.stdout, "archive:   %s (%s)\n", archive.Name(), archive.Priority())
		fmt.Fprintf(e.stdout, "size:      %s (%d bytes)\n", humanize.IBytes(uint64(entry.Size)), entry.Size)
		fmt.Fprintf(e.stdout, "stored:    %s\n", stored)
		fmt.Fprintf(e.stdout, "flags:     %s\n", entry.Flags)
		fmt.Fprintf(e.stdout, "crc32:     %08x\n", entry.CRC32)
		fmt.Fprintf(e.stdout, "modified:  %s\n", formatTime(entry.FileTime))
		fmt.Fprintf(e.stdout, "digest:    %s\n", digest.FromBytes(data))
	}
	return nil
}

func runFind(ctx context.Context, e *env, args []string) error {
	flags := e.flagSet("find", "[--name NAME] [pattern...]")
	name := flags.String("name", "", "resolve a bare file name to its full path")
	if done, err := parseFlags(flags, args); done || err != nil {
		return err
	}

	set, err := e.openSet(ctx)
	if err != nil {
		return err
	}
	defer set.Close()

	if *name != "" {
		p, ok := set.FindByName(*name)
		if !ok {
			return fmt.Errorf("find %s: %w", *name, tank.ErrNotFound)
		}
		fmt.Fprintln(e.stdout, p)
		return nil
	}

	patterns := flags.Args()
	if len(patterns) == 0 {
		patterns = []string{"/**"}
	}
	for _, pattern := range patterns {
		paths, err := set.Match(pattern)
		if err != nil {
			return usagef("find: %v", err)
		}
		for _, p := range paths {
			fmt.Fprintln(e.stdout, p)
		}
	}
	return nil
}

func runGrep(ctx context.Context, e *env, args []string) error {
	flags := e.flagSet("grep", "[-i] [-l] [--glob pattern] regexp")
	ignoreCase := flags.BoolP("ignore-case", "i", false, "match case-insensitively")
	listOnly := flags.BoolP("files-with-matches", "l", false, "print only the paths of matching files")
	glob := flags.String("glob", "/**", "search only files matching this glob")
	if done, err := parseFlags(flags, args); done || err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return usagef("grep: expected one regular expression")
	}

	expr := flags.Arg(0)
	if *ignoreCase {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return usagef("grep: %v", err)
	}

	set, err := e.openSet(ctx)
	if err != nil {
		return err
	}
	defer set.Close()

	paths, err := set.Match(*glob)
	if err != nil {
		return usagef("grep: %v", err)
	}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := set.Read(p)
		if err != nil {
			e.logger.Warn("skipping unreadable file", "path", p, "error", err)
			continue
		}
		if !re.Match(data) {
			continue
		}
		if *listOnly {
			fmt.Fprintln(e.stdout, e.paint.path.Sprint(p))
			continue
		}
		if bytes.IndexByte(data, 0) >= 0 {
			fmt.Fprintf(e.stdout, "binary file %s matches\n", e.paint.path.Sprint(p))
			continue
		}
		n := 0
		for line := range bytes.Lines(data) {
			n++
			line = bytes.TrimRight(line, "\r\n")
			if !re.Match(line) {
				continue
			}
			highlighted := re.ReplaceAllFunc(line, func(m []byte) []byte {
				return []byte(e.paint.match.Sprint(string(m)))
			})
			fmt.Fprintf(e.stdout, "%s:%d:%s\n", e.paint.path.Sprint(p), n, highlighted)
		}
	}
	return nil
}

func runExtract(ctx context.Context, e *env, args []string) error {
	flags := e.flagSet("extract", "[-o dir] [-j n] [pattern...]")
	out := flags.StringP("output", "o", ".", "directory to extract into")
	jobs := flags.IntP("jobs", "j", runtime.GOMAXPROCS(0), "files to extract in parallel")
	if done, err := parseFlags(flags, args); done || err != nil {
		return err
	}
	if *jobs <= 0 {
		return usagef("extract: --jobs must be positive")
	}

	set, err := e.openSet(ctx)
	if err != nil {
		return err
	}
	defer set.Close()

	patterns := flags.Args()
	if len(patterns) == 0 {
		patterns = []string{"/**"}
	}
	var paths []string
	for _, pattern := range patterns {
		matched, err := set.Match(pattern)
		if err != nil {
			return usagef("extract: %v", err)
		}
		paths = append(paths, matched...)
	}

	digests := make([]digest.Digest, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(*jobs)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rel := filepath.FromSlash(strings.TrimPrefix(p, "/"))
			if !filepath.IsLocal(rel) {
				return fmt.Errorf("extract %s: path escapes output directory", p)
			}
			data, err := set.Read(p)
			if err != nil {
				return err
			}
			dest := filepath.Join(*out, rel)
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return fmt.Errorf("extract %s: %w", p, err)
			}
			if err := os.WriteFile(dest, data, 0o644); err != nil {
				return fmt.Errorf("extract %s: %w", p, err)
			}
			digests[i] = digest.FromBytes(data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, p := range paths {
		fmt.Fprintf(e.stdout, "%s  %s\n", digests[i], p)
	}
	e.logger.Info("extracted files", "count", len(paths), "output", *out)
	return nil
}

func runMount(ctx context.Context, e *env, args []string) error {
	flags := e.flagSet("mount", "[--allow-other] mountpoint")
	allowOther := flags.Bool("allow-other", false, "allow other users to access the mount")
	if done, err := parseFlags(flags, args); done || err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return usagef("mount: expected one mountpoint")
	}

	set, err := e.openSet(ctx)
	if err != nil {
		return err
	}
	defer set.Close()

	server, err := tankfuse.Mount(tankfuse.Options{
		Mountpoint: flags.Arg(0),
		Live:       overlay.NewLive(set),
		AllowOther: *allowOther,
		Logger:     e.logger,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(e.stdout, "mounted %d files at %s; interrupt to unmount\n", set.Len(), flags.Arg(0))
	<-ctx.Done()
	return server.Unmount()
}
