package store

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const lockSuffix = ".lock"

// FileBackend keeps each region in its own directory, one file per key.
type FileBackend struct {
	root    string
	regions map[string]*fileRegion
}

// NewFileBackend creates (if needed) the region directories under root.
func NewFileBackend(root string) (*FileBackend, error) {
	b := &FileBackend{root: root, regions: make(map[string]*fileRegion, len(Regions))}
	for _, name := range Regions {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: create %s dir: %w", ErrIO, name, err)
		}
		b.regions[name] = &fileRegion{dir: dir}
	}
	return b, nil
}

// Region returns the named region, or nil if the layout has no such region.
func (b *FileBackend) Region(name string) Region {
	r, ok := b.regions[name]
	if !ok {
		return nil
	}
	return r
}

// Close is a no-op; every write is already durable.
func (b *FileBackend) Close() error { return nil }

type fileRegion struct {
	dir string
}

func (r *fileRegion) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." ||
		strings.HasPrefix(key, ".tmp-") || strings.HasSuffix(key, lockSuffix) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(r.dir, key), nil
}

func (r *fileRegion) Get(key string) ([]byte, error) {
	path, err := r.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrIO, key, err)
	}
	return data, nil
}

func (r *fileRegion) Has(key string) (bool, error) {
	path, err := r.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("%w: stat %s: %w", ErrIO, key, err)
}

func (r *fileRegion) Put(key string, data []byte) error {
	path, err := r.path(key)
	if err != nil {
		return err
	}
	if err := SafeWrite(path, data, 0644); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrIO, key, err)
	}
	return nil
}

func (r *fileRegion) PutIfAbsent(key string, data []byte) (bool, error) {
	path, err := r.path(key)
	if err != nil {
		return false, err
	}
	written, err := SafeCreate(path, data, 0644)
	if err != nil {
		return false, fmt.Errorf("%w: create %s: %w", ErrIO, key, err)
	}
	return written, nil
}

// CompareAndSwap takes a "<key>.lock" file with O_EXCL, checks the current
// value and renames the lock over the key. A held lock counts as a conflict.
func (r *fileRegion) CompareAndSwap(key string, prev, next []byte) error {
	path, err := r.path(key)
	if err != nil {
		return err
	}
	lockPath := path + lockSuffix
	lock, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%s is locked: %w", key, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("%w: lock %s: %w", ErrIO, key, err)
	}
	committed := false
	defer func() {
		if !committed {
			lock.Close()
			os.Remove(lockPath)
		}
	}()

	current, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if prev != nil {
			return fmt.Errorf("%s is absent: %w", key, ErrConflict)
		}
	case err != nil:
		return fmt.Errorf("%w: read %s: %w", ErrIO, key, err)
	default:
		if prev == nil || !bytes.Equal(current, prev) {
			return fmt.Errorf("%s has moved: %w", key, ErrConflict)
		}
	}

	if _, err := lock.Write(next); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrIO, lockPath, err)
	}
	if err := lock.Sync(); err != nil {
		return fmt.Errorf("%w: fsync %s: %w", ErrIO, lockPath, err)
	}
	if err := lock.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrIO, lockPath, err)
	}
	if err := os.Rename(lockPath, path); err != nil {
		os.Remove(lockPath)
		committed = true
		return fmt.Errorf("%w: rename %s: %w", ErrIO, lockPath, err)
	}
	committed = true
	return nil
}

func (r *fileRegion) Keys() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", ErrIO, r.dir, err)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".tmp-") || strings.HasSuffix(name, lockSuffix) {
			continue
		}
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys, nil
}
