package fuse

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/systemshift/snapvcs/internal/digest"
	"github.com/systemshift/snapvcs/internal/repo"
	"github.com/systemshift/snapvcs/internal/snapshot"
)

// tree is the directory structure implied by a snapshot's paths.
type tree struct {
	dirs  map[string]*tree
	files map[string]digest.Digest
}

func newTree() *tree {
	return &tree{dirs: map[string]*tree{}, files: map[string]digest.Digest{}}
}

func buildTree(s *snapshot.Snapshot) *tree {
	root := newTree()
	for _, e := range s.Entries() {
		dir, name := path.Split(e.Path)
		t := root
		for _, part := range strings.Split(strings.TrimSuffix(dir, "/"), "/") {
			if part == "" {
				continue
			}
			sub, ok := t.dirs[part]
			if !ok {
				sub = newTree()
				t.dirs[part] = sub
			}
			t = sub
		}
		t.files[name] = e.Digest
	}
	return root
}

// names lists directories and files together in lexical order.
func (t *tree) names() []string {
	out := make([]string, 0, len(t.dirs)+len(t.files))
	for name := range t.dirs {
		out = append(out, name)
	}
	for name := range t.files {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// TreeDir is one directory of a committed snapshot.
type TreeDir struct {
	fs.Inode
	repo  *repo.Repository
	tree  *tree
	key   string
	mtime time.Time
}

var _ = (fs.NodeLookuper)((*TreeDir)(nil))
var _ = (fs.NodeReaddirer)((*TreeDir)(nil))
var _ = (fs.NodeGetattrer)((*TreeDir)(nil))

func (d *TreeDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0555
	out.Ino = stableIno(d.key)
	out.SetTimes(nil, &d.mtime, nil)
	return fs.OK
}

func (d *TreeDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	names := d.tree.names()
	entries := make([]fuse.DirEntry, len(names))
	for i, name := range names {
		mode := uint32(syscall.S_IFREG)
		if _, ok := d.tree.dirs[name]; ok {
			mode = syscall.S_IFDIR
		}
		entries[i] = fuse.DirEntry{Name: name, Mode: mode, Ino: stableIno(d.key + "/" + name)}
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (d *TreeDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	key := d.key + "/" + name
	if sub, ok := d.tree.dirs[name]; ok {
		child := &TreeDir{repo: d.repo, tree: sub, key: key, mtime: d.mtime}
		return d.NewInode(ctx, child, fs.StableAttr{Mode: syscall.S_IFDIR, Ino: stableIno(key)}), fs.OK
	}
	if dg, ok := d.tree.files[name]; ok {
		f := &BlobFile{repo: d.repo, digest: dg, key: key, mtime: d.mtime}
		return d.NewInode(ctx, f, fs.StableAttr{Mode: syscall.S_IFREG, Ino: stableIno(key)}), fs.OK
	}
	return nil, syscall.ENOENT
}

// BlobFile serves stored content. The blob is read on first use.
type BlobFile struct {
	fs.Inode
	repo   *repo.Repository
	digest digest.Digest
	key    string
	mtime  time.Time

	once sync.Once
	data []byte
	err  error
}

var _ = (fs.NodeGetattrer)((*BlobFile)(nil))
var _ = (fs.NodeReader)((*BlobFile)(nil))
var _ = (fs.NodeOpener)((*BlobFile)(nil))

func (f *BlobFile) content() ([]byte, error) {
	f.once.Do(func() {
		f.data, f.err = f.repo.Blob(f.digest)
	})
	return f.data, f.err
}

func (f *BlobFile) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	data, err := f.content()
	if err != nil {
		return syscall.EIO
	}
	out.Mode = 0444
	out.Size = uint64(len(data))
	out.Ino = stableIno(f.key)
	out.SetTimes(nil, &f.mtime, nil)
	return fs.OK
}

func (f *BlobFile) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}
	return nil, fuse.FOPEN_KEEP_CACHE, fs.OK
}

func (f *BlobFile) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, err := f.content()
	if err != nil {
		return nil, syscall.EIO
	}
	return readAt(data, dest, off)
}
