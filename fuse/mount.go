// Package fuse mounts a merged archive set as a read-only filesystem.
package fuse

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/meigma/tank"
	"github.com/meigma/tank/overlay"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	// It is created if it does not exist.
	Mountpoint string

	// Live supplies the archive set. Every lookup reads the current
	// snapshot, so sets published with Live.Add or Live.Store become
	// visible once kernel caches expire.
	Live *overlay.Live

	// Set is used when Live is nil.
	Set *overlay.Set

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Logger receives diagnostic messages. If nil, a no-op logger is used.
	Logger *slog.Logger
}

// Mount mounts the archive set at the configured mountpoint. The caller
// must call Unmount on the returned Server when done.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, errors.New("mountpoint is required")
	}
	if options.Live == nil {
		if options.Set == nil {
			return nil, errors.New("archive set is required")
		}
		options.Live = overlay.NewLive(options.Set)
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &dirNode{options: &options, path: "/"}

	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second
	negativeTimeout := 100 * time.Millisecond

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "tank",
			Name:       "tank",
			AllowOther: options.AllowOther,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("archive filesystem mounted", "mountpoint", options.Mountpoint)
	return server, nil
}

// dirNode is a directory of the merged namespace.
type dirNode struct {
	gofuse.Inode
	options *Options
	path    string
}

var _ gofuse.InodeEmbedder = (*dirNode)(nil)
var _ gofuse.NodeLookuper = (*dirNode)(nil)
var _ gofuse.NodeReaddirer = (*dirNode)(nil)
var _ gofuse.NodeGetattrer = (*dirNode)(nil)

func (d *dirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	set := d.options.Live.Load()
	child := path.Join(d.path, name)

	if set.IsFile(child) {
		if errno := fileAttr(set, child, &out.Attr); errno != 0 {
			return nil, errno
		}
		node := &fileNode{options: d.options, path: child}
		return d.NewInode(ctx, node, gofuse.StableAttr{Mode: syscall.S_IFREG}), 0
	}
	if set.IsDir(child) {
		dirAttr(&out.Attr)
		node := &dirNode{options: d.options, path: child}
		return d.NewInode(ctx, node, gofuse.StableAttr{Mode: syscall.S_IFDIR}), 0
	}
	return nil, syscall.ENOENT
}

func (d *dirNode) Readdir(_ context.Context) (gofuse.DirStream, syscall.Errno) {
	entries, errno := dirEntries(d.options.Live.Load(), d.path)
	if errno != 0 {
		return nil, errno
	}
	return gofuse.NewListDirStream(entries), 0
}

func (d *dirNode) Getattr(_ context.Context, _ gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	dirAttr(&out.Attr)
	return 0
}

// fileNode is a merged file. Content is extracted in full on Open.
type fileNode struct {
	gofuse.Inode
	options *Options
	path    string
}

var _ gofuse.InodeEmbedder = (*fileNode)(nil)
var _ gofuse.NodeGetattrer = (*fileNode)(nil)
var _ gofuse.NodeOpener = (*fileNode)(nil)

func (f *fileNode) Getattr(_ context.Context, _ gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	return fileAttr(f.options.Live.Load(), f.path, &out.Attr)
}

func (f *fileNode) Open(_ context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}
	data, err := f.options.Live.Load().Read(f.path)
	if err != nil {
		errno := toErrno(err)
		if errno == syscall.EIO {
			f.options.Logger.Error("extracting file", "path", f.path, "error", err)
		}
		return nil, 0, errno
	}
	return &fileHandle{data: data}, fuse.FOPEN_KEEP_CACHE, 0
}

// fileHandle serves reads from extracted content.
type fileHandle struct {
	data []byte
}

var _ gofuse.FileReader = (*fileHandle)(nil)

func (h *fileHandle) Read(_ context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	return fuse.ReadResultData(readSlice(h.data, dest, off)), 0
}

// readSlice returns the part of data that a read of len(dest) bytes at
// off covers.
func readSlice(data, dest []byte, off int64) []byte {
	if off < 0 || off >= int64(len(data)) {
		return nil
	}
	end := min(off+int64(len(dest)), int64(len(data)))
	return data[off:end]
}

func dirEntries(set *overlay.Set, dir string) ([]fuse.DirEntry, syscall.Errno) {
	names, err := set.List(dir)
	if err != nil {
		return nil, toErrno(err)
	}
	entries := make([]fuse.DirEntry, 0, len(names))
	for _, name := range names {
		mode := uint32(syscall.S_IFDIR)
		if set.IsFile(path.Join(dir, name)) {
			mode = syscall.S_IFREG
		}
		entries = append(entries, fuse.DirEntry{Name: name, Mode: mode})
	}
	return entries, 0
}

func fileAttr(set *overlay.Set, p string, out *fuse.Attr) syscall.Errno {
	e, err := set.Entry(p)
	if err != nil {
		return toErrno(err)
	}
	out.Mode = syscall.S_IFREG | 0o444
	out.Size = uint64(e.Size) //nolint:gosec // sizes are non-negative
	out.Blocks = (out.Size + 511) / 512
	if mtime := tank.FileTime(e.FileTime); !mtime.IsZero() {
		out.SetTimes(nil, &mtime, nil)
	}
	return 0
}

func dirAttr(out *fuse.Attr) {
	out.Mode = syscall.S_IFDIR | 0o555
}

func toErrno(err error) syscall.Errno {
	if errors.Is(err, fs.ErrNotExist) {
		return syscall.ENOENT
	}
	return syscall.EIO
}
