package history

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/systemshift/snapvcs/internal/digest"
	"github.com/systemshift/snapvcs/internal/snapshot"
	"github.com/systemshift/snapvcs/internal/store"
)

var (
	ErrUnknownBranch          = errors.New("unknown branch")
	ErrInvalidParent          = errors.New("parent commit does not exist")
	ErrConcurrentModification = errors.New("branch tip moved concurrently")
	ErrBranchExists           = errors.New("branch already exists")
	ErrInvalidBranchName      = errors.New("invalid branch name")
)

// IsRetryable reports whether a failed commit may succeed after re-reading
// the branch tip.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

const headKey = "HEAD"

// Config tunes a History.
type Config struct {
	// Author is stamped on every commit.
	Author string
	// Now supplies commit timestamps. Defaults to time.Now.
	Now func() time.Time
}

// History stores commit records and branch tips in a backend.
type History struct {
	commits store.Region
	refs    store.Region
	meta    store.Region
	author  string
	now     func() time.Time
}

// New returns a History over the commits, refs and meta regions of b.
func New(b store.Backend, cfg Config) *History {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &History{
		commits: b.Region(store.RegionCommits),
		refs:    b.Region(store.RegionRefs),
		meta:    b.Region(store.RegionMeta),
		author:  cfg.Author,
		now:     now,
	}
}

// CommitRequest describes a new commit. Parent may be Undef for a root
// commit. When Branch is set and exists, its tip must currently be Parent and
// is advanced atomically. A missing Branch is created at the new commit.
type CommitRequest struct {
	Snapshot *snapshot.Snapshot
	Message  string
	Parent   digest.Digest
	Branch   string
}

// Commit seals req into history.
func (h *History) Commit(req CommitRequest) (*Commit, error) {
	if req.Branch != "" {
		if err := ValidateBranchName(req.Branch); err != nil {
			return nil, err
		}
	}

	ts := h.now().UTC()
	if req.Parent.Defined() {
		parent, err := h.Get(req.Parent)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidParent, req.Parent)
		}
		if err != nil {
			return nil, fmt.Errorf("read parent: %w", err)
		}
		if !ts.After(parent.Timestamp) {
			ts = parent.Timestamp.Add(time.Nanosecond)
		}
	}

	c := &Commit{
		Parent:    req.Parent,
		Message:   req.Message,
		Author:    h.author,
		Timestamp: ts,
		Snapshot:  req.Snapshot,
	}
	rec, err := newRecord(c)
	if err != nil {
		return nil, err
	}
	c.Snapshot = rec.Snapshot
	if c.ID, err = rec.id(); err != nil {
		return nil, err
	}
	data, err := rec.encode()
	if err != nil {
		return nil, err
	}

	// The record is immutable and keyed by its own hash, so it can be written
	// before the tip moves. A record whose branch update loses is unreachable.
	if _, err := h.commits.PutIfAbsent(c.ID.String(), data); err != nil {
		return nil, fmt.Errorf("store commit: %w", err)
	}

	if req.Branch != "" {
		exists, err := h.refs.Has(req.Branch)
		if err != nil {
			return nil, fmt.Errorf("read branch %s: %w", req.Branch, err)
		}
		// An absent branch is created at the new commit whatever its parent.
		var prev []byte
		if exists && req.Parent.Defined() {
			prev = encodeRef(req.Parent)
		}
		err = h.refs.CompareAndSwap(req.Branch, prev, encodeRef(c.ID))
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("%w: branch %s", ErrConcurrentModification, req.Branch)
		}
		if err != nil {
			return nil, fmt.Errorf("advance branch %s: %w", req.Branch, err)
		}
	}
	return c, nil
}

// Get reads a commit by id, failing with store.ErrNotFound when unknown.
func (h *History) Get(id digest.Digest) (*Commit, error) {
	if !id.Defined() {
		return nil, fmt.Errorf("read commit: undefined id: %w", store.ErrNotFound)
	}
	data, err := h.commits.Get(id.String())
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", id, err)
	}
	return decodeRecord(id, data)
}

// Log walks parent links from start back to the root, newest first. Each
// range over the result re-reads history from start. The walk stops after
// the first error.
func (h *History) Log(start digest.Digest) iter.Seq2[*Commit, error] {
	return func(yield func(*Commit, error) bool) {
		for id := start; id.Defined(); {
			c, err := h.Get(id)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(c, nil) {
				return
			}
			id = c.Parent
		}
	}
}

// Collect gathers a Log walk into a slice.
func Collect(seq iter.Seq2[*Commit, error]) ([]*Commit, error) {
	var out []*Commit
	for c, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
	return out, nil
}

// BranchTip returns the commit id a branch points to.
func (h *History) BranchTip(name string) (digest.Digest, error) {
	if err := ValidateBranchName(name); err != nil {
		return digest.Undef, err
	}
	data, err := h.refs.Get(name)
	if errors.Is(err, store.ErrNotFound) {
		return digest.Undef, fmt.Errorf("%w: %s", ErrUnknownBranch, name)
	}
	if err != nil {
		return digest.Undef, fmt.Errorf("read branch %s: %w", name, err)
	}
	id, err := digest.Parse(string(data))
	if err != nil {
		return digest.Undef, fmt.Errorf("branch %s: %w: %w", name, store.ErrCorrupt, err)
	}
	return id, nil
}

// ResolveBranch returns the tip commit of a branch.
func (h *History) ResolveBranch(name string) (*Commit, error) {
	id, err := h.BranchTip(name)
	if err != nil {
		return nil, err
	}
	return h.Get(id)
}

// CreateBranch points a new branch at an existing commit.
func (h *History) CreateBranch(name string, at digest.Digest) error {
	if err := ValidateBranchName(name); err != nil {
		return err
	}
	if _, err := h.Get(at); err != nil {
		return err
	}
	err := h.refs.CompareAndSwap(name, nil, encodeRef(at))
	if errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("%w: %s", ErrBranchExists, name)
	}
	return err
}

// Branch is a named tip.
type Branch struct {
	Name string
	Tip  digest.Digest
}

// Branches lists every branch in name order.
func (h *History) Branches() ([]Branch, error) {
	names, err := h.refs.Keys()
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	out := make([]Branch, 0, len(names))
	for _, name := range names {
		tip, err := h.BranchTip(name)
		if errors.Is(err, ErrUnknownBranch) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Branch{Name: name, Tip: tip})
	}
	return out, nil
}

// Head returns the current branch name, or ErrUnknownBranch if none is set.
func (h *History) Head() (string, error) {
	data, err := h.meta.Get(headKey)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: HEAD not set", ErrUnknownBranch)
	}
	if err != nil {
		return "", fmt.Errorf("read HEAD: %w", err)
	}
	name, ok := strings.CutPrefix(strings.TrimSpace(string(data)), "ref: ")
	if !ok || ValidateBranchName(name) != nil {
		return "", fmt.Errorf("HEAD %q: %w", data, store.ErrCorrupt)
	}
	return name, nil
}

// SetHead makes name the current branch. The branch need not exist yet.
func (h *History) SetHead(name string) error {
	if err := ValidateBranchName(name); err != nil {
		return err
	}
	return h.meta.Put(headKey, []byte("ref: "+name+"\n"))
}

// ValidateBranchName rejects names that cannot serve as a single ref key.
func ValidateBranchName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidBranchName)
	case name == headKey:
		return fmt.Errorf("%w: %q is reserved", ErrInvalidBranchName, name)
	case strings.HasPrefix(name, "."), strings.HasPrefix(name, "-"):
		return fmt.Errorf("%w: %q", ErrInvalidBranchName, name)
	case strings.HasSuffix(name, ".lock"):
		return fmt.Errorf("%w: %q", ErrInvalidBranchName, name)
	}
	for _, r := range name {
		if r <= ' ' || r == 0x7f || strings.ContainsRune(`/\:*?"<>|~^[`, r) {
			return fmt.Errorf("%w: %q", ErrInvalidBranchName, name)
		}
	}
	return nil
}

func encodeRef(id digest.Digest) []byte {
	return []byte(id.String() + "\n")
}

// ErrAmbiguous is returned by Lookup when an abbreviation matches several
// commits.
var ErrAmbiguous = errors.New("ambiguous commit abbreviation")

// Lookup resolves a full commit id or a unique suffix of one, as printed by
// digest.Short.
func (h *History) Lookup(abbrev string) (digest.Digest, error) {
	abbrev = strings.TrimSpace(abbrev)
	if abbrev == "" {
		return digest.Undef, fmt.Errorf("lookup commit: empty id: %w", store.ErrNotFound)
	}
	if id, err := digest.Parse(abbrev); err == nil {
		if ok, err := h.commits.Has(id.String()); err != nil {
			return digest.Undef, err
		} else if ok {
			return id, nil
		}
	}
	keys, err := h.commits.Keys()
	if err != nil {
		return digest.Undef, fmt.Errorf("list commits: %w", err)
	}
	var match string
	for _, k := range keys {
		if !strings.HasSuffix(k, abbrev) {
			continue
		}
		if match != "" {
			return digest.Undef, fmt.Errorf("%w: %s", ErrAmbiguous, abbrev)
		}
		match = k
	}
	if match == "" {
		return digest.Undef, fmt.Errorf("lookup commit %s: %w", abbrev, store.ErrNotFound)
	}
	return digest.Parse(match)
}
