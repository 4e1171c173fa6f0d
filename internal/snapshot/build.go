package snapshot

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/systemshift/snapvcs/internal/digest"
	"github.com/systemshift/snapvcs/internal/store"
)

// BlobWriter persists content and returns its digest.
// *store.ObjectStore satisfies it.
type BlobWriter interface {
	Put(data []byte) (digest.Digest, error)
}

// Build stores every file of ws and records its digest. Files removed while
// the build runs are left out; any other read failure aborts with store.ErrIO.
func Build(ws WorkingSet, blobs BlobWriter) (*Snapshot, error) {
	paths, err := ws.List()
	if err != nil {
		return nil, fmt.Errorf("%w: list working set: %w", store.ErrIO, err)
	}
	entries := make([]Entry, 0, len(paths))
	for _, p := range paths {
		data, err := ws.ReadFile(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", store.ErrIO, p, err)
		}
		d, err := blobs.Put(data)
		if err != nil {
			return nil, fmt.Errorf("store %s: %w", p, err)
		}
		entries = append(entries, Entry{Path: p, Digest: d})
	}
	return New(entries)
}
