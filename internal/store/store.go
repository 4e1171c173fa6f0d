// Package store persists repository data. A Backend is split into named
// regions (objects, commits, refs, meta), each a flat key -> bytes space.
package store

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflicting update")
	ErrIO       = errors.New("storage i/o failure")
	ErrCorrupt  = errors.New("content does not match its digest")
)

// Region names of the persisted layout.
const (
	RegionObjects = "objects"
	RegionCommits = "commits"
	RegionRefs    = "refs"
	RegionMeta    = "meta"
)

// Regions lists every region a backend must provide.
var Regions = []string{RegionObjects, RegionCommits, RegionRefs, RegionMeta}

// Region is one keyspace of a Backend. Implementations must be safe for
// concurrent use.
type Region interface {
	// Get returns the value for key or ErrNotFound.
	Get(key string) ([]byte, error)
	Has(key string) (bool, error)
	// Put stores data under key, replacing any previous value.
	Put(key string, data []byte) error
	// PutIfAbsent stores data only if key has no value yet and reports
	// whether it wrote.
	PutIfAbsent(key string, data []byte) (bool, error)
	// CompareAndSwap replaces the value of key with next only if the current
	// value equals prev. A nil prev means key must be absent. Fails with
	// ErrConflict otherwise.
	CompareAndSwap(key string, prev, next []byte) error
	// Keys returns all keys in lexical order.
	Keys() ([]string, error)
}

// Backend groups the regions of one repository.
type Backend interface {
	Region(name string) Region
	Close() error
}
