package snapshot

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"

	"golang.org/x/exp/mmap"

	"github.com/systemshift/snapvcs/internal/store"
)

// WorkingSet enumerates and reads the files to be snapshotted.
type WorkingSet interface {
	// List returns the relative paths of all files.
	List() ([]string, error)
	// ReadFile returns the content of a listed path. A path that no longer
	// exists reports an error matching fs.ErrNotExist.
	ReadFile(path string) ([]byte, error)
}

// MetaDir is the repository metadata directory, never part of a snapshot.
const MetaDir = ".snap"

// DirWorkingSet is the working set rooted at a directory on disk.
type DirWorkingSet struct {
	Root string
	// Skip names directories that are never descended into.
	Skip []string
}

// NewDirWorkingSet returns a working set for root that skips repository
// metadata directories.
func NewDirWorkingSet(root string) *DirWorkingSet {
	return &DirWorkingSet{Root: root, Skip: []string{MetaDir, ".git"}}
}

// List walks the directory and returns regular files in lexical order.
// Symlinks and special files are ignored.
func (w *DirWorkingSet) List() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(w.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != w.Root && w.skipped(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(w.Root, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", w.Root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

func (w *DirWorkingSet) skipped(name string) bool {
	for _, s := range w.Skip {
		if name == s {
			return true
		}
	}
	return false
}

// ReadFile maps the file and copies its content out.
func (w *DirWorkingSet) ReadFile(name string) ([]byte, error) {
	full := filepath.Join(w.Root, filepath.FromSlash(name))
	info, err := os.Stat(full)
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return []byte{}, nil
	}
	r, err := mmap.Open(full)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	buf := make([]byte, r.Len())
	if err := copyMapped(r, buf); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return buf, nil
}

// copyMapped fills buf from r. A file truncated by another process after it
// was mapped faults on access; that fault is returned as store.ErrIO.
func copyMapped(r *mmap.ReaderAt, buf []byte) (err error) {
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
	defer func() {
		if p := recover(); p != nil {
			re, ok := p.(runtime.Error)
			if !ok {
				panic(p)
			}
			err = fmt.Errorf("file changed while reading: %w: %v", store.ErrIO, re)
		}
	}()
	_, err = r.ReadAt(buf, 0)
	return err
}

// MemoryWorkingSet is an in-process working set. Safe for concurrent use.
type MemoryWorkingSet struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemoryWorkingSet returns a working set holding a copy of files.
func NewMemoryWorkingSet(files map[string]string) *MemoryWorkingSet {
	w := &MemoryWorkingSet{files: make(map[string][]byte, len(files))}
	for p, content := range files {
		w.files[p] = []byte(content)
	}
	return w
}

// Write sets the content of path.
func (w *MemoryWorkingSet) Write(path string, data []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files[path] = append([]byte(nil), data...)
}

// Remove deletes path.
func (w *MemoryWorkingSet) Remove(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.files, path)
}

func (w *MemoryWorkingSet) List() ([]string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	paths := make([]string, 0, len(w.files))
	for p := range w.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func (w *MemoryWorkingSet) ReadFile(path string) ([]byte, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	data, ok := w.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: path, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}
