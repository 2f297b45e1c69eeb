package merkle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFile creates a file with parent directories as needed.
func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func baselineOf(t *Tree) Baseline {
	return Baseline{Files: t.Flatten(), Dirs: t.FlattenDirs()}
}

func TestComputeTree_Deterministic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "def f():\n    pass\n")
	writeFile(t, root, "pkg/b.py", "class C:\n    pass\n")
	writeFile(t, root, "pkg/sub/c.go", "package sub\n")

	first, err := ComputeTree(root, DefaultRules())
	require.NoError(t, err)
	second, err := ComputeTree(root, DefaultRules())
	require.NoError(t, err)

	assert.Equal(t, first.Root.Digest, second.Root.Digest)
	assert.Equal(t, first.Flatten(), second.Flatten())
	assert.Equal(t, first.FlattenDirs(), second.FlattenDirs())
}

func TestComputeTree_RulesFilterFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "notes.txt", "not source\n")
	writeFile(t, root, "node_modules/dep/index.js", "module.exports = 1\n")
	writeFile(t, root, ".git/config", "[core]\n")

	tree, err := ComputeTree(root, DefaultRules())
	require.NoError(t, err)

	files := tree.Flatten()
	assert.Contains(t, files, "main.go")
	assert.NotContains(t, files, "notes.txt")
	assert.NotContains(t, files, "node_modules/dep/index.js")
	assert.NotContains(t, files, ".git/config")
}

func TestComputeTree_MaxFileSize(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.go", "package small\n")

	big := make([]byte, 512)
	for i := range big {
		big[i] = 'x'
	}
	writeFile(t, root, "big.go", string(big))

	rules := DefaultRules()
	rules.MaxFileSize = 100

	tree, err := ComputeTree(root, rules)
	require.NoError(t, err)

	files := tree.Flatten()
	assert.Contains(t, files, "small.go")
	assert.NotContains(t, files, "big.go")
}

func TestDiff_FirstRunAllAdded(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "def f():\n    pass\n")
	writeFile(t, root, "pkg/b.py", "class C:\n    pass\n")

	tree, err := ComputeTree(root, DefaultRules())
	require.NoError(t, err)

	changes := Diff(Baseline{}, tree)
	assert.ElementsMatch(t, []string{"a.py", "pkg/b.py"}, changes.Added)
	assert.Empty(t, changes.Modified)
	assert.Empty(t, changes.Deleted)
}

func TestDiff_NoChanges(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "def f():\n    pass\n")
	writeFile(t, root, "pkg/b.py", "class C:\n    pass\n")

	tree, err := ComputeTree(root, DefaultRules())
	require.NoError(t, err)

	again, err := ComputeTree(root, DefaultRules())
	require.NoError(t, err)

	changes := Diff(baselineOf(tree), again)
	assert.Zero(t, changes.Total())
}

func TestDiff_AddModifyDelete(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "def f():\n    pass\n")
	writeFile(t, root, "b.py", "class C:\n    pass\n")
	writeFile(t, root, "pkg/c.py", "def g():\n    pass\n")

	before, err := ComputeTree(root, DefaultRules())
	require.NoError(t, err)

	writeFile(t, root, "a.py", "def f():\n    return 1\n") // modified
	writeFile(t, root, "d.py", "def h():\n    pass\n")     // added
	require.NoError(t, os.Remove(filepath.Join(root, "b.py")))

	after, err := ComputeTree(root, DefaultRules())
	require.NoError(t, err)

	changes := Diff(baselineOf(before), after)
	assert.Equal(t, []string{"d.py"}, changes.Added)
	assert.Equal(t, []string{"a.py"}, changes.Modified)
	assert.Equal(t, []string{"b.py"}, changes.Deleted)
}

// A path must appear in exactly one change set, and unchanged paths in none.
func TestDiff_Completeness(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "one/a.py", "a\n")
	writeFile(t, root, "one/b.py", "b\n")
	writeFile(t, root, "two/c.py", "c\n")

	before, err := ComputeTree(root, DefaultRules())
	require.NoError(t, err)

	writeFile(t, root, "one/a.py", "a changed\n")
	writeFile(t, root, "two/d.py", "d\n")
	require.NoError(t, os.Remove(filepath.Join(root, "one", "b.py")))

	after, err := ComputeTree(root, DefaultRules())
	require.NoError(t, err)

	changes := Diff(baselineOf(before), after)

	membership := make(map[string]int)
	for _, p := range changes.Added {
		membership[p]++
	}
	for _, p := range changes.Modified {
		membership[p]++
	}
	for _, p := range changes.Deleted {
		membership[p]++
	}
	for p, n := range membership {
		assert.Equal(t, 1, n, "path %s appears in %d change sets", p, n)
	}
	assert.NotContains(t, membership, "two/c.py")
}

// An unchanged subtree must keep its directory digest so Diff prunes it;
// a change inside a sibling subtree must not disturb it.
func TestDirectoryDigest_ChangesOnlyWithDescendants(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "stable/a.py", "a\n")
	writeFile(t, root, "volatile/b.py", "b\n")

	before, err := ComputeTree(root, DefaultRules())
	require.NoError(t, err)

	writeFile(t, root, "volatile/b.py", "b changed\n")

	after, err := ComputeTree(root, DefaultRules())
	require.NoError(t, err)

	beforeDirs := before.FlattenDirs()
	afterDirs := after.FlattenDirs()

	assert.Equal(t, beforeDirs["stable"], afterDirs["stable"])
	assert.NotEqual(t, beforeDirs["volatile"], afterDirs["volatile"])
	assert.NotEqual(t, beforeDirs["."], afterDirs["."])

	changes := Diff(baselineOf(before), after)
	assert.Empty(t, changes.Added)
	assert.Empty(t, changes.Deleted)
	assert.Equal(t, []string{"volatile/b.py"}, changes.Modified)
}

func TestDiff_PrunedSubtreeFilesNotDeleted(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep/a.py", "a\n")
	writeFile(t, root, "keep/deep/b.py", "b\n")
	writeFile(t, root, "edit/c.py", "c\n")

	before, err := ComputeTree(root, DefaultRules())
	require.NoError(t, err)

	writeFile(t, root, "edit/c.py", "c changed\n")

	after, err := ComputeTree(root, DefaultRules())
	require.NoError(t, err)

	// Files under the pruned "keep" subtree must not be misreported as
	// deleted just because the walk never visited them.
	changes := Diff(baselineOf(before), after)
	assert.Empty(t, changes.Deleted)
	assert.Equal(t, []string{"edit/c.py"}, changes.Modified)
}

func TestHashFile_StableAcrossReads(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "x.go", "package x\n")

	first, err := HashFile(filepath.Join(root, "x.go"))
	require.NoError(t, err)
	second, err := HashFile(filepath.Join(root, "x.go"))
	require.NoError(t, err)

	assert.Equal(t, first, second)

	parsed, ok := ParseDigest(first.String())
	assert.True(t, ok)
	assert.Equal(t, first, parsed)
}

func TestComputeTree_MissingRoot(t *testing.T) {
	_, err := ComputeTree(filepath.Join(t.TempDir(), "nope"), DefaultRules())
	assert.Error(t, err)
}
