package fuse

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/systemshift/snapvcs/internal/history"
	"github.com/systemshift/snapvcs/internal/repo"
)

const maxLogEntries = 64

// LogDir exposes recent commits of HEAD as files.
// Layout: log/0 (newest commit JSON), log/1, ...
type LogDir struct {
	fs.Inode
	repo *repo.Repository
}

var _ = (fs.NodeLookuper)((*LogDir)(nil))
var _ = (fs.NodeReaddirer)((*LogDir)(nil))
var _ = (fs.NodeGetattrer)((*LogDir)(nil))

func (d *LogDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0555
	out.Ino = stableIno("log")
	return fs.OK
}

// recent returns up to n commits from HEAD, newest first.
func (d *LogDir) recent(n int) []*history.Commit {
	head, err := d.repo.Resolve("HEAD")
	if err != nil {
		return nil
	}
	var out []*history.Commit
	for c, err := range d.repo.History.Log(head.ID) {
		if err != nil || len(out) == n {
			break
		}
		out = append(out, c)
	}
	return out
}

func (d *LogDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	commits := d.recent(maxLogEntries)
	entries := make([]fuse.DirEntry, len(commits))
	for i, c := range commits {
		entries[i] = fuse.DirEntry{
			Name: strconv.Itoa(i),
			Mode: syscall.S_IFREG,
			Ino:  stableIno("log/" + c.ID.String()),
		}
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (d *LogDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	idx, err := strconv.Atoi(name)
	if err != nil || idx < 0 || idx >= maxLogEntries {
		return nil, syscall.ENOENT
	}
	commits := d.recent(idx + 1)
	if idx >= len(commits) {
		return nil, syscall.ENOENT
	}
	c := commits[idx]
	f := &StaticFile{data: commitJSON(c), key: "log/" + c.ID.String(), mtime: c.Timestamp}
	return d.NewInode(ctx, f, fs.StableAttr{Mode: syscall.S_IFREG, Ino: stableIno(f.key)}), fs.OK
}

type commitView struct {
	ID        string    `json:"id"`
	Parent    string    `json:"parent,omitempty"`
	Author    string    `json:"author,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Files     []string  `json:"files"`
}

func commitJSON(c *history.Commit) []byte {
	data, _ := json.MarshalIndent(commitView{
		ID:        c.ID.String(),
		Parent:    c.Parent.String(),
		Author:    c.Author,
		Message:   c.Message,
		Timestamp: c.Timestamp,
		Files:     c.Snapshot.Paths(),
	}, "", "  ")
	return append(data, '\n')
}

// HeadFile shows the current branch and its tip commit.
type HeadFile struct {
	fs.Inode
	repo *repo.Repository
}

var _ = (fs.NodeGetattrer)((*HeadFile)(nil))
var _ = (fs.NodeReader)((*HeadFile)(nil))
var _ = (fs.NodeOpener)((*HeadFile)(nil))

func (f *HeadFile) headBytes() []byte {
	branch, err := f.repo.CurrentBranch()
	if err != nil {
		return []byte("(none)\n")
	}
	tip, err := f.repo.ResolveBranch(branch)
	if err != nil {
		return []byte(fmt.Sprintf("%s (no commits)\n", branch))
	}
	return []byte(fmt.Sprintf("%s %s\n", branch, tip.ID))
}

func (f *HeadFile) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0444
	out.Size = uint64(len(f.headBytes()))
	out.Ino = stableIno("HEAD")
	return fs.OK
}

func (f *HeadFile) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	return nil, fuse.FOPEN_DIRECT_IO, fs.OK
}

func (f *HeadFile) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	return readAt(f.headBytes(), dest, off)
}

// StaticFile serves fixed bytes.
type StaticFile struct {
	fs.Inode
	data  []byte
	key   string
	mtime time.Time
}

var _ = (fs.NodeGetattrer)((*StaticFile)(nil))
var _ = (fs.NodeReader)((*StaticFile)(nil))
var _ = (fs.NodeOpener)((*StaticFile)(nil))

func (f *StaticFile) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0444
	out.Size = uint64(len(f.data))
	out.Ino = stableIno(f.key)
	out.SetTimes(nil, &f.mtime, nil)
	return fs.OK
}

func (f *StaticFile) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	return nil, fuse.FOPEN_KEEP_CACHE, fs.OK
}

func (f *StaticFile) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	return readAt(f.data, dest, off)
}
