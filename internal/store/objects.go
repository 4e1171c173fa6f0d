package store

import (
	"fmt"

	"github.com/systemshift/snapvcs/internal/digest"
)

// ObjectStore manages digest-addressed immutable blobs.
type ObjectStore struct {
	region      Region
	compression Compression
}

// NewObjectStore stores blobs in region, encoding new ones with c.
func NewObjectStore(region Region, c Compression) *ObjectStore {
	return &ObjectStore{region: region, compression: c}
}

// Put writes data to the object store, returning its digest.
// If the blob already exists, this is a no-op.
func (s *ObjectStore) Put(data []byte) (digest.Digest, error) {
	d, err := digest.Sum(data)
	if err != nil {
		return digest.Undef, err
	}
	key := d.String()
	ok, err := s.region.Has(key)
	if err != nil {
		return digest.Undef, err
	}
	if ok {
		return d, nil
	}
	encoded, err := encodeBlob(s.compression, data)
	if err != nil {
		return digest.Undef, fmt.Errorf("encode object %s: %w", d, err)
	}
	// Losing a race here is fine: the winner stored identical content.
	if _, err := s.region.PutIfAbsent(key, encoded); err != nil {
		return digest.Undef, fmt.Errorf("write object: %w", err)
	}
	return d, nil
}

// Get reads a blob by digest. Content that no longer hashes to d is reported
// as ErrCorrupt.
func (s *ObjectStore) Get(d digest.Digest) ([]byte, error) {
	if !d.Defined() {
		return nil, fmt.Errorf("read object: undefined digest: %w", ErrNotFound)
	}
	stored, err := s.region.Get(d.String())
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", d, err)
	}
	data, err := decodeBlob(stored)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", d, err)
	}
	actual, err := digest.Sum(data)
	if err != nil {
		return nil, err
	}
	if actual != d {
		return nil, fmt.Errorf("read object %s: %w", d, ErrCorrupt)
	}
	return data, nil
}

// Has checks if a blob exists.
func (s *ObjectStore) Has(d digest.Digest) (bool, error) {
	if !d.Defined() {
		return false, nil
	}
	return s.region.Has(d.String())
}

// Count returns the number of unique blobs stored.
func (s *ObjectStore) Count() (int, error) {
	keys, err := s.region.Keys()
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Verify re-reads a blob and checks it against its digest.
func (s *ObjectStore) Verify(d digest.Digest) error {
	_, err := s.Get(d)
	return err
}
