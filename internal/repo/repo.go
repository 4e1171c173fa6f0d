// Package repo ties the object store, snapshot builder, commit history and
// diff engine to one repository on disk or in memory.
package repo

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/systemshift/snapvcs/internal/config"
	"github.com/systemshift/snapvcs/internal/digest"
	"github.com/systemshift/snapvcs/internal/history"
	"github.com/systemshift/snapvcs/internal/snapshot"
	"github.com/systemshift/snapvcs/internal/store"
)

var (
	ErrNotRepository = errors.New("not a snapvcs repository")
	ErrExists        = errors.New("repository already exists")
)

// Options configures how a repository is opened.
type Options struct {
	// Logger receives storage engine diagnostics. Nil silences them.
	Logger *logrus.Logger
	// Now overrides the commit clock.
	Now func() time.Time
	// Settings are applied to a new repository's config by Init.
	Settings map[string]string
}

// Repository is an explicit handle on one repository. Several may be open in
// one process.
type Repository struct {
	root    string
	cfg     *config.Config
	backend store.Backend
	ws      snapshot.WorkingSet

	Objects *store.ObjectStore
	History *history.History
}

// MetaPath returns the metadata directory of a working tree.
func MetaPath(root string) string {
	return filepath.Join(root, snapshot.MetaDir)
}

// Init creates a repository in root and opens it.
func Init(root string, opts Options) (*Repository, error) {
	meta := MetaPath(root)
	cfgPath := filepath.Join(meta, "config")
	if _, err := os.Stat(cfgPath); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, root)
	}
	if err := os.MkdirAll(meta, 0755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", store.ErrIO, meta, err)
	}

	cfg := config.New(cfgPath)
	for k, v := range opts.Settings {
		if err := cfg.Set(k, v); err != nil {
			return nil, err
		}
	}
	if err := cfg.Save(); err != nil {
		return nil, err
	}

	r, err := Open(root, opts)
	if err != nil {
		return nil, err
	}
	if err := r.History.SetHead(cfg.DefaultBranch()); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// Find walks up from dir to the nearest directory holding a repository.
func Find(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if info, err := os.Stat(MetaPath(abs)); err == nil && info.IsDir() {
			return abs, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("%w: %s", ErrNotRepository, dir)
		}
		abs = parent
	}
}

// Open opens the repository whose working tree is root.
func Open(root string, opts Options) (*Repository, error) {
	meta := MetaPath(root)
	if info, err := os.Stat(meta); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotRepository, root)
	}
	cfg, err := config.Load(filepath.Join(meta, "config"))
	if err != nil {
		return nil, err
	}

	var backend store.Backend
	switch cfg.Backend() {
	case config.BackendBadger:
		backend, err = store.NewBadgerBackend(store.BadgerConfig{
			Path:   filepath.Join(meta, "badger"),
			Logger: opts.Logger,
		})
	default:
		backend, err = store.NewFileBackend(meta)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.Backend(), err)
	}
	return newRepository(root, cfg, backend, snapshot.NewDirWorkingSet(root), opts), nil
}

// OpenMemory returns a repository held entirely in memory over ws.
func OpenMemory(ws snapshot.WorkingSet, opts Options) (*Repository, error) {
	cfg := config.New("")
	for k, v := range opts.Settings {
		if err := cfg.Set(k, v); err != nil {
			return nil, err
		}
	}
	r := newRepository("", cfg, store.NewMemoryBackend(), ws, opts)
	if err := r.History.SetHead(cfg.DefaultBranch()); err != nil {
		return nil, err
	}
	return r, nil
}

func newRepository(root string, cfg *config.Config, backend store.Backend, ws snapshot.WorkingSet, opts Options) *Repository {
	return &Repository{
		root:    root,
		cfg:     cfg,
		backend: backend,
		ws:      ws,
		Objects: store.NewObjectStore(backend.Region(store.RegionObjects), cfg.Compression()),
		History: history.New(backend, history.Config{Author: cfg.Author(), Now: opts.Now}),
	}
}

// Close releases the storage backend.
func (r *Repository) Close() error {
	return r.backend.Close()
}

// Root returns the working tree directory, or "" for in-memory repositories.
func (r *Repository) Root() string {
	return r.root
}

// Config returns the loaded settings.
func (r *Repository) Config() *config.Config {
	return r.cfg
}

// WorkingSet returns the files snapshots are built from.
func (r *Repository) WorkingSet() snapshot.WorkingSet {
	return r.ws
}

// Build snapshots the working set, storing every file's content.
func (r *Repository) Build() (*snapshot.Snapshot, error) {
	return snapshot.Build(r.ws, r.Objects)
}

// CurrentBranch returns the HEAD branch, or the configured default when HEAD
// is unset.
func (r *Repository) CurrentBranch() (string, error) {
	name, err := r.History.Head()
	if errors.Is(err, history.ErrUnknownBranch) {
		return r.cfg.DefaultBranch(), nil
	}
	return name, err
}

// Checkout moves HEAD to a branch. The working set is not touched.
func (r *Repository) Checkout(branch string) error {
	return r.History.SetHead(branch)
}

// Commit snapshots the working set and commits it on branch, or on the
// current branch when branch is empty. The parent is the branch tip; the
// first commit on a branch is a root commit.
func (r *Repository) Commit(message, branch string) (*history.Commit, error) {
	if branch == "" {
		var err error
		if branch, err = r.CurrentBranch(); err != nil {
			return nil, err
		}
	}
	parent, err := r.History.BranchTip(branch)
	if err != nil && !errors.Is(err, history.ErrUnknownBranch) {
		return nil, err
	}
	snap, err := r.Build()
	if err != nil {
		return nil, err
	}
	return r.CommitSnapshot(history.CommitRequest{
		Snapshot: snap,
		Message:  message,
		Parent:   parent,
		Branch:   branch,
	})
}

// CommitSnapshot commits an already built snapshot.
func (r *Repository) CommitSnapshot(req history.CommitRequest) (*history.Commit, error) {
	return r.History.Commit(req)
}

// Log walks history from start toward the root.
func (r *Repository) Log(start digest.Digest) iter.Seq2[*history.Commit, error] {
	return r.History.Log(start)
}

// ResolveBranch returns the tip commit of a branch.
func (r *Repository) ResolveBranch(name string) (*history.Commit, error) {
	return r.History.ResolveBranch(name)
}

// CreateBranch points a new branch at a commit.
func (r *Repository) CreateBranch(name string, at digest.Digest) error {
	return r.History.CreateBranch(name, at)
}

// Branches lists all branches.
func (r *Repository) Branches() ([]history.Branch, error) {
	return r.History.Branches()
}

// Resolve turns a revision into a commit. A revision is "HEAD", a branch
// name, a full commit id or a unique suffix of one.
func (r *Repository) Resolve(rev string) (*history.Commit, error) {
	if rev == "" || rev == "HEAD" {
		branch, err := r.CurrentBranch()
		if err != nil {
			return nil, err
		}
		return r.History.ResolveBranch(branch)
	}
	if history.ValidateBranchName(rev) == nil {
		c, err := r.History.ResolveBranch(rev)
		if !errors.Is(err, history.ErrUnknownBranch) {
			return c, err
		}
	}
	id, err := r.History.Lookup(rev)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", rev, err)
	}
	return r.History.Get(id)
}

// Blob reads stored content.
func (r *Repository) Blob(d digest.Digest) ([]byte, error) {
	return r.Objects.Get(d)
}

// Status compares the working set with the tip of branch (the current
// branch when empty). Nothing is written to the object store.
func (r *Repository) Status(branch string) ([]snapshot.Change, error) {
	base, err := r.branchSnapshot(branch)
	if err != nil {
		return nil, err
	}
	working, err := snapshot.Build(r.ws, hashOnly{})
	if err != nil {
		return nil, err
	}
	return snapshot.Compare(base, working), nil
}

// branchSnapshot returns the tip snapshot of branch, or the empty snapshot
// for a branch with no commits yet.
func (r *Repository) branchSnapshot(branch string) (*snapshot.Snapshot, error) {
	if branch == "" {
		var err error
		if branch, err = r.CurrentBranch(); err != nil {
			return nil, err
		}
	}
	tip, err := r.History.ResolveBranch(branch)
	if errors.Is(err, history.ErrUnknownBranch) {
		return snapshot.Empty, nil
	}
	if err != nil {
		return nil, err
	}
	return tip.Snapshot, nil
}

type hashOnly struct{}

func (hashOnly) Put(data []byte) (digest.Digest, error) {
	return digest.Sum(data)
}
