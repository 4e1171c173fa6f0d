package store

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backendFactory struct {
	name string
	open func(t *testing.T) Backend
}

func backends() []backendFactory {
	return []backendFactory{
		{"memory", func(t *testing.T) Backend { return NewMemoryBackend() }},
		{"file", func(t *testing.T) Backend {
			b, err := NewFileBackend(t.TempDir())
			require.NoError(t, err)
			return b
		}},
		{"badger", func(t *testing.T) Backend {
			b, err := NewBadgerBackend(BadgerConfig{})
			require.NoError(t, err)
			t.Cleanup(func() { b.Close() })
			return b
		}},
		{"badger-disk", func(t *testing.T) Backend {
			b, err := NewBadgerBackend(BadgerConfig{Path: t.TempDir()})
			require.NoError(t, err)
			t.Cleanup(func() { b.Close() })
			return b
		}},
	}
}

func TestBackend_Regions(t *testing.T) {
	for _, f := range backends() {
		t.Run(f.name, func(t *testing.T) {
			b := f.open(t)
			for _, name := range Regions {
				assert.NotNil(t, b.Region(name), "region %s", name)
			}
			assert.Nil(t, b.Region("nope"))
		})
	}
}

func TestBackend_GetPut(t *testing.T) {
	for _, f := range backends() {
		t.Run(f.name, func(t *testing.T) {
			r := f.open(t).Region(RegionRefs)

			_, err := r.Get("main")
			require.ErrorIs(t, err, ErrNotFound)

			ok, err := r.Has("main")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, r.Put("main", []byte("one")))
			got, err := r.Get("main")
			require.NoError(t, err)
			assert.Equal(t, "one", string(got))

			require.NoError(t, r.Put("main", []byte("two")))
			got, err = r.Get("main")
			require.NoError(t, err)
			assert.Equal(t, "two", string(got))
		})
	}
}

func TestBackend_RegionsAreIsolated(t *testing.T) {
	for _, f := range backends() {
		t.Run(f.name, func(t *testing.T) {
			b := f.open(t)
			require.NoError(t, b.Region(RegionRefs).Put("k", []byte("ref")))

			_, err := b.Region(RegionCommits).Get("k")
			require.ErrorIs(t, err, ErrNotFound)

			keys, err := b.Region(RegionCommits).Keys()
			require.NoError(t, err)
			assert.Empty(t, keys)
		})
	}
}

func TestBackend_PutIfAbsent(t *testing.T) {
	for _, f := range backends() {
		t.Run(f.name, func(t *testing.T) {
			r := f.open(t).Region(RegionObjects)

			written, err := r.PutIfAbsent("k", []byte("first"))
			require.NoError(t, err)
			assert.True(t, written)

			written, err = r.PutIfAbsent("k", []byte("second"))
			require.NoError(t, err)
			assert.False(t, written)

			got, err := r.Get("k")
			require.NoError(t, err)
			assert.Equal(t, "first", string(got))
		})
	}
}

func TestBackend_CompareAndSwap(t *testing.T) {
	for _, f := range backends() {
		t.Run(f.name, func(t *testing.T) {
			r := f.open(t).Region(RegionRefs)

			// Absent key requires nil prev.
			require.ErrorIs(t, r.CompareAndSwap("main", []byte("x"), []byte("a")), ErrConflict)
			require.NoError(t, r.CompareAndSwap("main", nil, []byte("a")))

			// Present key rejects nil prev and stale prev.
			require.ErrorIs(t, r.CompareAndSwap("main", nil, []byte("b")), ErrConflict)
			require.ErrorIs(t, r.CompareAndSwap("main", []byte("stale"), []byte("b")), ErrConflict)

			require.NoError(t, r.CompareAndSwap("main", []byte("a"), []byte("b")))
			got, err := r.Get("main")
			require.NoError(t, err)
			assert.Equal(t, "b", string(got))
		})
	}
}

func TestBackend_CompareAndSwapConcurrent(t *testing.T) {
	for _, f := range backends() {
		t.Run(f.name, func(t *testing.T) {
			r := f.open(t).Region(RegionRefs)
			require.NoError(t, r.Put("main", []byte("base")))

			const writers = 8
			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					err := r.CompareAndSwap("main", []byte("base"), []byte{byte('a' + i)})
					if err == nil {
						wins.Add(1)
						return
					}
					assert.ErrorIs(t, err, ErrConflict)
				}(i)
			}
			wg.Wait()
			assert.Equal(t, int32(1), wins.Load())
		})
	}
}

func TestBackend_Keys(t *testing.T) {
	for _, f := range backends() {
		t.Run(f.name, func(t *testing.T) {
			r := f.open(t).Region(RegionRefs)
			for _, k := range []string{"zeta", "alpha", "main"} {
				require.NoError(t, r.Put(k, []byte(k)))
			}
			keys, err := r.Keys()
			require.NoError(t, err)
			assert.Equal(t, []string{"alpha", "main", "zeta"}, keys)
		})
	}
}

func TestFileBackend_RejectsPathKeys(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	r := b.Region(RegionRefs)

	for _, k := range []string{"", "a/b", "..", "x.lock", ".tmp-1"} {
		assert.Error(t, r.Put(k, []byte("v")), "key %q", k)
	}
}

func TestFileBackend_HeldLockIsConflict(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	r := b.Region(RegionRefs).(*fileRegion)

	require.NoError(t, r.Put("main", []byte("a")))
	path, err := r.path("main")
	require.NoError(t, err)
	require.NoError(t, SafeWrite(path+lockSuffix, nil, 0644))

	require.ErrorIs(t, r.CompareAndSwap("main", []byte("a"), []byte("b")), ErrConflict)

	keys, err := r.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, keys)
}
