package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/snapvcs/internal/diff"
	"github.com/systemshift/snapvcs/internal/history"
	"github.com/systemshift/snapvcs/internal/repo"
	"github.com/systemshift/snapvcs/internal/snapshot"
)

func newCLI(t *testing.T) (*cli, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	log := logrus.New()
	log.SetOutput(&errOut)
	return &cli{log: log, stdout: &out, stderr: &errOut}, &out
}

func runCLI(t *testing.T, dir string, args ...string) string {
	t.Helper()
	c, out := newCLI(t)
	require.NoError(t, c.run(append([]string{"-C", dir}, args...)))
	return out.String()
}

func TestCLI_Workflow(t *testing.T) {
	dir := t.TempDir()
	out := runCLI(t, dir, "init")
	assert.Contains(t, out, "Initialized empty repository")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x\ny\n"), 0644))
	out = runCLI(t, dir, "status")
	assert.Contains(t, out, "On branch main")
	assert.Contains(t, out, "added:")

	out = runCLI(t, dir, "commit", "-m", "first")
	assert.Contains(t, out, "[main (root commit)")

	assert.Contains(t, runCLI(t, dir, "status"), "working tree clean")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x\nz\n"), 0644))
	out = runCLI(t, dir, "diff", "-color", "never")
	assert.Contains(t, out, "-y\n+z\n")

	runCLI(t, dir, "commit", "-m", "second")

	out = runCLI(t, dir, "log", "-oneline")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], " second"))
	assert.True(t, strings.HasSuffix(lines[1], " first"))

	out = runCLI(t, dir, "diff", "-color", "never", "HEAD")
	assert.Contains(t, out, "@@ -1,2 +1,2 @@\n x\n-y\n+z\n")

	assert.Equal(t, "x\nz\n", runCLI(t, dir, "cat", "main", "f.txt"))

	runCLI(t, dir, "branch", "feature")
	out = runCLI(t, dir, "branch")
	assert.Contains(t, out, "  feature ")
	assert.Contains(t, out, "* main ")

	runCLI(t, dir, "head", "feature")
	assert.Equal(t, "feature\n", runCLI(t, dir, "head"))

	runCLI(t, dir, "config", "set", "user.name", "Ada")
	assert.Equal(t, "Ada\n", runCLI(t, dir, "config", "get", "user.name"))
}

func TestCLI_Errors(t *testing.T) {
	dir := t.TempDir()
	c, _ := newCLI(t)
	assert.ErrorIs(t, c.run([]string{"-C", dir, "log"}), repo.ErrNotRepository)

	runCLI(t, dir, "init")
	c, _ = newCLI(t)
	assert.Error(t, c.run([]string{"-C", dir, "commit"}))

	c, _ = newCLI(t)
	assert.Error(t, c.run([]string{"-C", dir, "frobnicate"}))

	c, _ = newCLI(t)
	assert.ErrorIs(t, c.run([]string{"-C", dir, "log"}), history.ErrUnknownBranch)
}

func TestFormatStatus(t *testing.T) {
	assert.Equal(t, "nothing to commit, working tree clean\n", formatStatus(nil))
	got := formatStatus([]snapshot.Change{
		{Path: "a", Kind: snapshot.Added},
		{Path: "b", Kind: snapshot.Modified},
	})
	assert.Equal(t, "  added:    a\n  modified: b\n", got)
}

func TestFormatDiff(t *testing.T) {
	files := []repo.FileDiff{
		{Path: "new.txt", Kind: snapshot.Added, Script: diff.Diff(nil, []string{"hello"})},
		{Path: "img.png", Kind: snapshot.Modified, Binary: true},
	}
	got := formatDiff(files, 3)
	want := "diff a/new.txt b/new.txt\n" +
		"--- /dev/null\n" +
		"+++ b/new.txt\n" +
		"@@ -0,0 +1 @@\n" +
		"+hello\n" +
		"diff a/img.png b/img.png\n" +
		"Binary files a/img.png and b/img.png differ\n"
	assert.Equal(t, want, got)

	stat := formatStat(files)
	assert.Contains(t, stat, " new.txt | 1 +\n")
	assert.Contains(t, stat, "2 files changed, 1 insertions(+), 0 deletions(-)")
}

func TestWriteDiff_Colored(t *testing.T) {
	var plain, colored bytes.Buffer
	patch := "--- a/f\n+++ b/f\n@@ -1 +1 @@\n-old\n+new\n"
	require.NoError(t, writeDiff(&plain, patch, false))
	require.NoError(t, writeDiff(&colored, patch, true))
	assert.Equal(t, patch, plain.String())
	assert.Contains(t, colored.String(), "\x1b[")
	assert.Contains(t, colored.String(), "new")
}

func TestUseColor(t *testing.T) {
	on, err := useColor("always", os.Stdout)
	require.NoError(t, err)
	assert.True(t, on)
	off, err := useColor("never", os.Stdout)
	require.NoError(t, err)
	assert.False(t, off)
	_, err = useColor("sometimes", os.Stdout)
	assert.Error(t, err)
}
