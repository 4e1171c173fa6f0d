package repo

import (
	"bytes"
	"fmt"

	"github.com/systemshift/snapvcs/internal/diff"
	"github.com/systemshift/snapvcs/internal/digest"
	"github.com/systemshift/snapvcs/internal/snapshot"
)

// binarySniffLen is how much of a blob is checked for NUL bytes.
const binarySniffLen = 8000

// IsBinary reports whether content looks like binary data.
func IsBinary(data []byte) bool {
	return bytes.IndexByte(data[:min(len(data), binarySniffLen)], 0) >= 0
}

// FileDiff is the line diff of one changed path. Binary files carry no
// script.
type FileDiff struct {
	Path   string
	Kind   snapshot.ChangeKind
	From   digest.Digest
	To     digest.Digest
	Binary bool
	Script diff.EditScript
}

// DiffBlobs diffs two stored blobs line by line. A missing blob fails with
// store.ErrNotFound.
func (r *Repository) DiffBlobs(from, to digest.Digest) (diff.EditScript, error) {
	a, err := r.Objects.Get(from)
	if err != nil {
		return nil, err
	}
	b, err := r.Objects.Get(to)
	if err != nil {
		return nil, err
	}
	return diff.DiffBytes(a, b), nil
}

// DiffCommits diffs every path that changed between two commits.
func (r *Repository) DiffCommits(from, to digest.Digest) ([]FileDiff, error) {
	a, err := r.History.Get(from)
	if err != nil {
		return nil, err
	}
	b, err := r.History.Get(to)
	if err != nil {
		return nil, err
	}
	return r.DiffSnapshots(a.Snapshot, b.Snapshot)
}

// DiffSnapshots diffs two snapshots whose content is in the object store.
func (r *Repository) DiffSnapshots(from, to *snapshot.Snapshot) ([]FileDiff, error) {
	return diffChanges(snapshot.Compare(from, to), r.stored, r.stored)
}

// DiffWorking diffs the tip of branch (the current branch when empty)
// against the working set.
func (r *Repository) DiffWorking(branch string) ([]FileDiff, error) {
	base, err := r.branchSnapshot(branch)
	if err != nil {
		return nil, err
	}
	working, err := snapshot.Build(r.ws, hashOnly{})
	if err != nil {
		return nil, err
	}
	fromWorking := func(path string, _ digest.Digest) ([]byte, error) {
		return r.ws.ReadFile(path)
	}
	return diffChanges(snapshot.Compare(base, working), r.stored, fromWorking)
}

type loader func(path string, d digest.Digest) ([]byte, error)

func (r *Repository) stored(_ string, d digest.Digest) ([]byte, error) {
	return r.Objects.Get(d)
}

func diffChanges(changes []snapshot.Change, loadFrom, loadTo loader) ([]FileDiff, error) {
	out := make([]FileDiff, 0, len(changes))
	for _, ch := range changes {
		var a, b []byte
		var err error
		if ch.From.Defined() {
			if a, err = loadFrom(ch.Path, ch.From); err != nil {
				return nil, fmt.Errorf("diff %s: %w", ch.Path, err)
			}
		}
		if ch.To.Defined() {
			if b, err = loadTo(ch.Path, ch.To); err != nil {
				return nil, fmt.Errorf("diff %s: %w", ch.Path, err)
			}
		}
		fd := FileDiff{Path: ch.Path, Kind: ch.Kind, From: ch.From, To: ch.To}
		if IsBinary(a) || IsBinary(b) {
			fd.Binary = true
		} else {
			fd.Script = diff.DiffBytes(a, b)
		}
		out = append(out, fd)
	}
	return out, nil
}
