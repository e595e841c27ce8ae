package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/fs"

	"rush/internal/task"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	dir := fs.NewDir(t, "cache-test")
	return New(dir.Path(), hclog.NewNullLogger())
}

func TestFingerprint_missingFileUsesSentinel(t *testing.T) {
	c := newTestCache(t)
	taskA := &task.Task{Name: "compile", Cache: []string{"does-not-exist.c"}}

	fp1, err := c.Fingerprint(taskA)
	require.NoError(t, err)

	fp2, err := c.Fingerprint(taskA)
	require.NoError(t, err)
	require.Equal(t, fp1, fp2, "fingerprint must be a pure function of name and file contents")
}

func TestFingerprint_changesWithFileContent(t *testing.T) {
	c := newTestCache(t)
	srcPath := filepath.Join(c.workDir, "main.c")
	require.NoError(t, os.WriteFile(srcPath, []byte("int main() {}"), 0644))

	taskA := &task.Task{Name: "compile", Cache: []string{"main.c"}}
	before, err := c.Fingerprint(taskA)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(srcPath, []byte("int main() { return 1; }"), 0644))
	after, err := c.Fingerprint(taskA)
	require.NoError(t, err)

	require.NotEqual(t, before, after)
}

func TestFingerprint_omitsCmd(t *testing.T) {
	c := newTestCache(t)
	a := &task.Task{Name: "compile", Cmd: "echo a", Cache: []string{"x"}}
	b := &task.Task{Name: "compile", Cmd: "echo b", Cache: []string{"x"}}

	fpA, err := c.Fingerprint(a)
	require.NoError(t, err)
	fpB, err := c.Fingerprint(b)
	require.NoError(t, err)

	// The command text is not part of the fingerprint, so changing
	// only cmd looks fresh.
	require.Equal(t, fpA, fpB)
}

func TestCommitThenIsFresh(t *testing.T) {
	c := newTestCache(t)

	fresh, err := c.IsFresh("build", "abc123")
	require.NoError(t, err)
	require.False(t, fresh)

	require.NoError(t, c.Commit("build", "abc123"))

	fresh, err = c.IsFresh("build", "abc123")
	require.NoError(t, err)
	require.True(t, fresh)

	fresh, err = c.IsFresh("build", "different")
	require.NoError(t, err)
	require.False(t, fresh)
}

func TestCommit_replacesPriorFingerprint(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.Commit("build", "old"))
	require.NoError(t, c.Commit("build", "new"))

	entries, err := os.ReadDir(c.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "build.new", entries[0].Name())
}

func TestCommit_disjointNamesDoNotConflict(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.Commit("build", "fp1"))
	require.NoError(t, c.Commit("test", "fp2"))

	entries, err := os.ReadDir(c.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestWipe_removesDirectory(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Commit("build", "fp1"))
	require.NoError(t, c.Wipe())

	_, err := os.Stat(c.Dir())
	require.True(t, os.IsNotExist(err))
}
