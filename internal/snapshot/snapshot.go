// Package snapshot records the state of a working set as a sorted mapping
// from relative path to content digest.
package snapshot

import (
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/systemshift/snapvcs/internal/canonical"
	"github.com/systemshift/snapvcs/internal/digest"
)

// Entry maps one file path to the digest of its content.
type Entry struct {
	Path   string        `json:"path"`
	Digest digest.Digest `json:"digest"`
}

// Snapshot is an immutable, path-sorted set of entries.
type Snapshot struct {
	entries []Entry
}

// Empty is the snapshot of an empty working set.
var Empty = &Snapshot{}

// New builds a Snapshot from entries in any order. Paths are normalized;
// duplicates, undefined digests and paths escaping the root are rejected.
func New(entries []Entry) (*Snapshot, error) {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		p, err := NormalizePath(e.Path)
		if err != nil {
			return nil, err
		}
		if !e.Digest.Defined() {
			return nil, fmt.Errorf("snapshot entry %q: undefined digest", p)
		}
		out = append(out, Entry{Path: p, Digest: e.Digest})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	for i := 1; i < len(out); i++ {
		if out[i].Path == out[i-1].Path {
			return nil, fmt.Errorf("snapshot entry %q: duplicate path", out[i].Path)
		}
	}
	return &Snapshot{entries: out}, nil
}

// NormalizePath converts p to the slash-separated, cleaned, relative form
// used as a snapshot key.
func NormalizePath(p string) (string, error) {
	clean := path.Clean(filepath.ToSlash(p))
	switch {
	case p == "" || clean == ".":
		return "", fmt.Errorf("invalid path %q: empty", p)
	case strings.HasPrefix(clean, "/"):
		return "", fmt.Errorf("invalid path %q: absolute", p)
	case clean == ".." || strings.HasPrefix(clean, "../"):
		return "", fmt.Errorf("invalid path %q: outside working set", p)
	}
	return clean, nil
}

// Len returns the number of files.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// Entries returns a copy of the entries in path order.
func (s *Snapshot) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Paths returns every path in order.
func (s *Snapshot) Paths() []string {
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Path
	}
	return out
}

// Lookup returns the digest recorded for path.
func (s *Snapshot) Lookup(p string) (digest.Digest, bool) {
	p, err := NormalizePath(p)
	if err != nil {
		return digest.Undef, false
	}
	i := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].Path >= p })
	if i < len(s.entries) && s.entries[i].Path == p {
		return s.entries[i].Digest, true
	}
	return digest.Undef, false
}

// Digest identifies the snapshot by the hash of its canonical encoding.
func (s *Snapshot) Digest() (digest.Digest, error) {
	data, err := canonical.Marshal(s)
	if err != nil {
		return digest.Undef, fmt.Errorf("encode snapshot: %w", err)
	}
	return digest.Sum(data)
}

// MarshalJSON encodes the snapshot as its ordered entry list.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	if s.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.entries)
}

// UnmarshalJSON decodes and validates an entry list.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	parsed, err := New(entries)
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}
