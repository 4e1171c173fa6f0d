package repo

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/snapvcs/internal/diff"
	"github.com/systemshift/snapvcs/internal/history"
	"github.com/systemshift/snapvcs/internal/snapshot"
	"github.com/systemshift/snapvcs/internal/store"
)

func clock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Minute)
		return t
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func TestRepository_EndToEnd(t *testing.T) {
	for _, backend := range []string{"file", "badger"} {
		t.Run(backend, func(t *testing.T) {
			root := t.TempDir()
			r, err := Init(root, Options{Now: clock(), Settings: map[string]string{"core.backend": backend}})
			require.NoError(t, err)

			writeFile(t, root, "f.txt", "x\ny\n")
			c1, err := r.Commit("first", "")
			require.NoError(t, err)
			assert.True(t, c1.IsRoot())

			writeFile(t, root, "f.txt", "x\nz\n")
			c2, err := r.Commit("second", "")
			require.NoError(t, err)
			assert.Equal(t, c1.ID, c2.Parent)

			tip, err := r.ResolveBranch("main")
			require.NoError(t, err)
			assert.Equal(t, c2.ID, tip.ID)

			files, err := r.DiffCommits(c1.ID, c2.ID)
			require.NoError(t, err)
			require.Len(t, files, 1)
			assert.Equal(t, "f.txt", files[0].Path)
			assert.Equal(t, snapshot.Modified, files[0].Kind)
			assert.Equal(t, diff.EditScript{
				{Kind: diff.Unchanged, Line: "x"},
				{Kind: diff.Deleted, Line: "y"},
				{Kind: diff.Inserted, Line: "z"},
			}, files[0].Script)

			require.NoError(t, r.Close())

			// Everything survives a reopen.
			r, err = Open(root, Options{})
			require.NoError(t, err)
			defer r.Close()

			log, err := history.Collect(r.Log(c2.ID))
			require.NoError(t, err)
			require.Len(t, log, 2)
			assert.Equal(t, "second", log[0].Message)
			assert.Equal(t, "first", log[1].Message)

			head, err := r.Resolve("HEAD")
			require.NoError(t, err)
			assert.Equal(t, c2.ID, head.ID)
		})
	}
}

func TestInit_RefusesExisting(t *testing.T) {
	root := t.TempDir()
	r, err := Init(root, Options{})
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = Init(root, Options{})
	require.ErrorIs(t, err, ErrExists)
}

func TestOpen_NotARepository(t *testing.T) {
	_, err := Open(t.TempDir(), Options{})
	require.ErrorIs(t, err, ErrNotRepository)
}

func TestFind_WalksUp(t *testing.T) {
	root := t.TempDir()
	r, err := Init(root, Options{})
	require.NoError(t, err)
	defer r.Close()

	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	found, err := Find(nested)
	require.NoError(t, err)
	want, err := filepath.Abs(root)
	require.NoError(t, err)
	assert.Equal(t, want, found)

	_, err = Find(t.TempDir())
	require.ErrorIs(t, err, ErrNotRepository)
}

func TestRepository_MetadataNotSnapshotted(t *testing.T) {
	root := t.TempDir()
	r, err := Init(root, Options{})
	require.NoError(t, err)
	defer r.Close()

	writeFile(t, root, "a.txt", "a\n")
	c, err := r.Commit("only a", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, c.Snapshot.Paths())
}

func TestRepository_DedupAcrossCommits(t *testing.T) {
	ws := snapshot.NewMemoryWorkingSet(map[string]string{"a": "same\n", "b": "other\n"})
	r, err := OpenMemory(ws, Options{Now: clock()})
	require.NoError(t, err)

	_, err = r.Commit("one", "")
	require.NoError(t, err)
	before, err := r.Objects.Count()
	require.NoError(t, err)

	ws.Write("c", []byte("same\n"))
	_, err = r.Commit("two", "")
	require.NoError(t, err)
	after, err := r.Objects.Count()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRepository_Status(t *testing.T) {
	ws := snapshot.NewMemoryWorkingSet(map[string]string{"keep": "k", "edit": "1", "drop": "d"})
	r, err := OpenMemory(ws, Options{Now: clock()})
	require.NoError(t, err)

	changes, err := r.Status("")
	require.NoError(t, err)
	assert.Len(t, changes, 3)

	_, err = r.Commit("base", "")
	require.NoError(t, err)
	blobs, err := r.Objects.Count()
	require.NoError(t, err)

	ws.Write("edit", []byte("2"))
	ws.Remove("drop")
	ws.Write("new", []byte("n"))

	changes, err = r.Status("")
	require.NoError(t, err)
	got := map[string]snapshot.ChangeKind{}
	for _, ch := range changes {
		got[ch.Path] = ch.Kind
	}
	assert.Equal(t, map[string]snapshot.ChangeKind{
		"drop": snapshot.Deleted,
		"edit": snapshot.Modified,
		"new":  snapshot.Added,
	}, got)

	// Status only hashes.
	after, err := r.Objects.Count()
	require.NoError(t, err)
	assert.Equal(t, blobs, after)
}

func TestRepository_DiffWorking(t *testing.T) {
	ws := snapshot.NewMemoryWorkingSet(map[string]string{"f.txt": "x\ny\n"})
	r, err := OpenMemory(ws, Options{Now: clock()})
	require.NoError(t, err)
	_, err = r.Commit("base", "")
	require.NoError(t, err)

	ws.Write("f.txt", []byte("x\nz\n"))
	files, err := r.DiffWorking("")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "  x\n- y\n+ z\n", files[0].Script.String())
}

func TestRepository_BinaryFilesFlagged(t *testing.T) {
	ws := snapshot.NewMemoryWorkingSet(map[string]string{"img": "\x89PNG\x00\x01"})
	r, err := OpenMemory(ws, Options{Now: clock()})
	require.NoError(t, err)
	c1, err := r.Commit("one", "")
	require.NoError(t, err)

	ws.Write("img", []byte("\x89PNG\x00\x02"))
	c2, err := r.Commit("two", "")
	require.NoError(t, err)

	files, err := r.DiffCommits(c1.ID, c2.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, files[0].Binary)
	assert.Nil(t, files[0].Script)
}

func TestRepository_AddedAndDeletedFiles(t *testing.T) {
	ws := snapshot.NewMemoryWorkingSet(map[string]string{"old": "a\nb\n"})
	r, err := OpenMemory(ws, Options{Now: clock()})
	require.NoError(t, err)
	c1, err := r.Commit("one", "")
	require.NoError(t, err)

	ws.Remove("old")
	ws.Write("new", []byte("c\n"))
	c2, err := r.Commit("two", "")
	require.NoError(t, err)

	files, err := r.DiffCommits(c1.ID, c2.ID)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "new", files[0].Path)
	assert.Equal(t, diff.Stats{Inserted: 1}, files[0].Script.Stats())
	assert.Equal(t, "old", files[1].Path)
	assert.Equal(t, diff.Stats{Deleted: 2}, files[1].Script.Stats())
}

func TestRepository_MissingBlobIsNotFound(t *testing.T) {
	root := t.TempDir()
	r, err := Init(root, Options{Now: clock(), Settings: map[string]string{"core.compression": "none"}})
	require.NoError(t, err)
	defer r.Close()

	writeFile(t, root, "f.txt", "one\n")
	c1, err := r.Commit("one", "")
	require.NoError(t, err)
	writeFile(t, root, "f.txt", "two\n")
	c2, err := r.Commit("two", "")
	require.NoError(t, err)

	d, ok := c1.Snapshot.Lookup("f.txt")
	require.True(t, ok)
	require.NoError(t, os.Remove(filepath.Join(MetaPath(root), store.RegionObjects, d.String())))

	_, err = r.DiffCommits(c1.ID, c2.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	d2, _ := c2.Snapshot.Lookup("f.txt")
	_, err = r.DiffBlobs(d, d2)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRepository_Branches(t *testing.T) {
	ws := snapshot.NewMemoryWorkingSet(map[string]string{"f": "1\n"})
	r, err := OpenMemory(ws, Options{Now: clock()})
	require.NoError(t, err)
	base, err := r.Commit("base", "")
	require.NoError(t, err)

	require.NoError(t, r.CreateBranch("feature", base.ID))
	require.NoError(t, r.Checkout("feature"))

	ws.Write("f", []byte("2\n"))
	feat, err := r.Commit("on feature", "")
	require.NoError(t, err)

	mainTip, err := r.ResolveBranch("main")
	require.NoError(t, err)
	assert.Equal(t, base.ID, mainTip.ID)

	got, err := r.Resolve("feature")
	require.NoError(t, err)
	assert.Equal(t, feat.ID, got.ID)

	got, err = r.Resolve(base.ID.Short())
	require.NoError(t, err)
	assert.Equal(t, base.ID, got.ID)

	branches, err := r.Branches()
	require.NoError(t, err)
	assert.Len(t, branches, 2)
}

func TestIsBinary(t *testing.T) {
	assert.False(t, IsBinary(nil))
	assert.False(t, IsBinary([]byte("plain text\n")))
	assert.True(t, IsBinary([]byte{'a', 0, 'b'}))
}
