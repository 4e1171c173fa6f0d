package fuse

import (
	"context"
	"hash/fnv"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/systemshift/snapvcs/internal/repo"
)

// stableIno returns a stable inode number for a path inside the mount.
func stableIno(path string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(path))
	return h.Sum64()
}

// readAt serves a read of data at off.
func readAt(data, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if off >= int64(len(data)) {
		return fuse.ReadResultData(nil), fs.OK
	}
	end := min(off+int64(len(dest)), int64(len(data)))
	return fuse.ReadResultData(data[off:end]), fs.OK
}

// RootNode is the mountpoint directory.
type RootNode struct {
	fs.Inode
	repo *repo.Repository
}

var _ = (fs.NodeOnAdder)((*RootNode)(nil))
var _ = (fs.NodeGetattrer)((*RootNode)(nil))

func (r *RootNode) OnAdd(ctx context.Context) {
	head := r.NewPersistentInode(ctx, &HeadFile{repo: r.repo}, fs.StableAttr{
		Mode: syscall.S_IFREG,
		Ino:  stableIno("HEAD"),
	})
	r.AddChild("HEAD", head, true)

	branches := r.NewPersistentInode(ctx, &BranchesDir{repo: r.repo}, fs.StableAttr{
		Mode: syscall.S_IFDIR,
		Ino:  stableIno("branches"),
	})
	r.AddChild("branches", branches, true)

	commits := r.NewPersistentInode(ctx, &CommitsDir{repo: r.repo}, fs.StableAttr{
		Mode: syscall.S_IFDIR,
		Ino:  stableIno("commits"),
	})
	r.AddChild("commits", commits, true)

	logDir := r.NewPersistentInode(ctx, &LogDir{repo: r.repo}, fs.StableAttr{
		Mode: syscall.S_IFDIR,
		Ino:  stableIno("log"),
	})
	r.AddChild("log", logDir, true)
}

func (r *RootNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0555
	out.Ino = stableIno("/")
	return fs.OK
}
