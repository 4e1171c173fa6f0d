package store

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
)

// MemoryBackend keeps all regions in process memory.
type MemoryBackend struct {
	regions map[string]*memoryRegion
}

func NewMemoryBackend() *MemoryBackend {
	b := &MemoryBackend{regions: make(map[string]*memoryRegion, len(Regions))}
	for _, name := range Regions {
		b.regions[name] = &memoryRegion{data: make(map[string][]byte)}
	}
	return b
}

func (b *MemoryBackend) Region(name string) Region {
	r, ok := b.regions[name]
	if !ok {
		return nil
	}
	return r
}

func (b *MemoryBackend) Close() error { return nil }

type memoryRegion struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func (r *memoryRegion) Get(key string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.data[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return append([]byte(nil), v...), nil
}

func (r *memoryRegion) Has(key string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.data[key]
	return ok, nil
}

func (r *memoryRegion) Put(key string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = append([]byte(nil), data...)
	return nil
}

func (r *memoryRegion) PutIfAbsent(key string, data []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[key]; ok {
		return false, nil
	}
	r.data[key] = append([]byte(nil), data...)
	return true, nil
}

func (r *memoryRegion) CompareAndSwap(key string, prev, next []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.data[key]
	switch {
	case !ok && prev != nil:
		return fmt.Errorf("%s is absent: %w", key, ErrConflict)
	case ok && (prev == nil || !bytes.Equal(current, prev)):
		return fmt.Errorf("%s has moved: %w", key, ErrConflict)
	}
	r.data[key] = append([]byte(nil), next...)
	return nil
}

func (r *memoryRegion) Keys() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.data))
	for k := range r.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
