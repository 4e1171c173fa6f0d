package fuse

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/systemshift/snapvcs/internal/history"
	"github.com/systemshift/snapvcs/internal/repo"
)

// BranchesDir lists branches; each entry is the tree of its tip.
type BranchesDir struct {
	fs.Inode
	repo *repo.Repository
}

var _ = (fs.NodeLookuper)((*BranchesDir)(nil))
var _ = (fs.NodeReaddirer)((*BranchesDir)(nil))
var _ = (fs.NodeGetattrer)((*BranchesDir)(nil))

func (d *BranchesDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0555
	out.Ino = stableIno("branches")
	return fs.OK
}

func (d *BranchesDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	branches, err := d.repo.Branches()
	if err != nil {
		return nil, syscall.EIO
	}
	entries := make([]fuse.DirEntry, len(branches))
	for i, b := range branches {
		entries[i] = fuse.DirEntry{
			Name: b.Name,
			Mode: syscall.S_IFDIR,
			Ino:  stableIno("branches/" + b.Name + "@" + b.Tip.String()),
		}
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (d *BranchesDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	tip, err := d.repo.ResolveBranch(name)
	if err != nil {
		return nil, syscall.ENOENT
	}
	return newTreeInode(ctx, &d.Inode, d.repo, tip, "branches/"+name+"@"+tip.ID.String()), fs.OK
}

// CommitsDir resolves commit ids. Listing shows commits reachable from
// every branch.
type CommitsDir struct {
	fs.Inode
	repo *repo.Repository
}

var _ = (fs.NodeLookuper)((*CommitsDir)(nil))
var _ = (fs.NodeReaddirer)((*CommitsDir)(nil))
var _ = (fs.NodeGetattrer)((*CommitsDir)(nil))

func (d *CommitsDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0555
	out.Ino = stableIno("commits")
	return fs.OK
}

func (d *CommitsDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	branches, err := d.repo.Branches()
	if err != nil {
		return nil, syscall.EIO
	}
	seen := make(map[string]bool)
	var entries []fuse.DirEntry
	for _, b := range branches {
		for c, err := range d.repo.History.Log(b.Tip) {
			if err != nil {
				return nil, syscall.EIO
			}
			id := c.ID.String()
			if seen[id] {
				// The rest of this chain is already listed.
				break
			}
			seen[id] = true
			entries = append(entries, fuse.DirEntry{
				Name: id,
				Mode: syscall.S_IFDIR,
				Ino:  stableIno("commits/" + id),
			})
		}
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (d *CommitsDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	id, err := d.repo.History.Lookup(name)
	if err != nil {
		return nil, syscall.ENOENT
	}
	c, err := d.repo.History.Get(id)
	if err != nil {
		return nil, syscall.EIO
	}
	return newTreeInode(ctx, &d.Inode, d.repo, c, "commits/"+id.String()), fs.OK
}

func newTreeInode(ctx context.Context, parent *fs.Inode, r *repo.Repository, c *history.Commit, key string) *fs.Inode {
	dir := &TreeDir{repo: r, tree: buildTree(c.Snapshot), key: key, mtime: c.Timestamp}
	return parent.NewInode(ctx, dir, fs.StableAttr{
		Mode: syscall.S_IFDIR,
		Ino:  stableIno(key),
	})
}
