// Package fuse exposes repository history as a read-only file system.
//
// Layout:
//
//	HEAD                current branch and its tip
//	branches/<name>/    files of the branch tip
//	commits/<id>/       files of a commit, looked up by full or short id
//	log/0, log/1, ...   commits reachable from HEAD, newest first, as JSON
package fuse

import (
	"github.com/hanwen/go-fuse/v2/fs"
	gofuse "github.com/hanwen/go-fuse/v2/fuse"

	"github.com/systemshift/snapvcs/internal/repo"
)

// MountFS mounts r read-only at mountpoint.
// Returns the server (call server.Wait() to block, server.Unmount() to stop).
func MountFS(mountpoint string, r *repo.Repository, debug bool) (*gofuse.Server, error) {
	root := &RootNode{repo: r}

	opts := &fs.Options{
		MountOptions: gofuse.MountOptions{
			FsName:        "snapvcs",
			Name:          "snapvcs",
			DisableXAttrs: true,
			Debug:         debug,
			Options:       []string{"ro"},
		},
	}

	return fs.Mount(mountpoint, root, opts)
}
