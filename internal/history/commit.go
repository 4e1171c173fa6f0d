// Package history keeps the commit chain and the branch pointers into it.
package history

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/systemshift/snapvcs/internal/canonical"
	"github.com/systemshift/snapvcs/internal/digest"
	"github.com/systemshift/snapvcs/internal/snapshot"
	"github.com/systemshift/snapvcs/internal/store"
)

const recordVersion = 1

// Commit is a sealed point in history. Parent is Undef for a root commit.
type Commit struct {
	ID        digest.Digest
	Parent    digest.Digest
	Message   string
	Author    string
	Timestamp time.Time
	Snapshot  *snapshot.Snapshot
}

// IsRoot reports whether c has no parent.
func (c *Commit) IsRoot() bool {
	return !c.Parent.Defined()
}

// record is the persisted form. The commit id is the hash of the record
// without its snapshot entries; Tree pins those entries by digest.
type record struct {
	V         int                `json:"v"`
	Parent    digest.Digest      `json:"parent"`
	Author    string             `json:"author,omitempty"`
	Message   string             `json:"message"`
	Timestamp time.Time          `json:"timestamp"`
	Tree      digest.Digest      `json:"tree"`
	Snapshot  *snapshot.Snapshot `json:"snapshot,omitempty"`
}

func newRecord(c *Commit) (*record, error) {
	snap := c.Snapshot
	if snap == nil {
		snap = snapshot.Empty
	}
	tree, err := snap.Digest()
	if err != nil {
		return nil, err
	}
	return &record{
		V:         recordVersion,
		Parent:    c.Parent,
		Author:    c.Author,
		Message:   c.Message,
		Timestamp: c.Timestamp,
		Tree:      tree,
		Snapshot:  snap,
	}, nil
}

// id hashes the header fields.
func (r *record) id() (digest.Digest, error) {
	header := *r
	header.Snapshot = nil
	data, err := canonical.Marshal(&header)
	if err != nil {
		return digest.Undef, fmt.Errorf("encode commit header: %w", err)
	}
	return digest.Sum(data)
}

func (r *record) encode() ([]byte, error) {
	data, err := canonical.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode commit: %w", err)
	}
	return data, nil
}

// decodeRecord parses a stored record and checks that it still hashes to id.
func decodeRecord(id digest.Digest, data []byte) (*Commit, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode commit %s: %w: %w", id, store.ErrCorrupt, err)
	}
	if r.V != recordVersion {
		return nil, fmt.Errorf("decode commit %s: unsupported version %d", id, r.V)
	}
	if r.Snapshot == nil {
		r.Snapshot = snapshot.Empty
	}
	tree, err := r.Snapshot.Digest()
	if err != nil {
		return nil, err
	}
	if tree != r.Tree {
		return nil, fmt.Errorf("commit %s snapshot: %w", id, store.ErrCorrupt)
	}
	actual, err := r.id()
	if err != nil {
		return nil, err
	}
	if actual != id {
		return nil, fmt.Errorf("commit %s: %w", id, store.ErrCorrupt)
	}
	return &Commit{
		ID:        id,
		Parent:    r.Parent,
		Message:   r.Message,
		Author:    r.Author,
		Timestamp: r.Timestamp,
		Snapshot:  r.Snapshot,
	}, nil
}
