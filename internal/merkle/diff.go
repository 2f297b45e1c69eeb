package merkle

import (
	"sort"
	"strings"
)

// Baseline is the persisted form of a previous run's tree: leaf digests plus
// directory digests for subtree pruning.
type Baseline struct {
	Files map[string]Digest
	Dirs  map[string]Digest
}

// Empty reports whether the baseline contains no tracked files, i.e. this is
// the first run and every current file is an addition.
func (b Baseline) Empty() bool {
	return len(b.Files) == 0
}

// Changes is the minimal changed-path set between a baseline and a tree.
// Paths are relative, slash-separated, and sorted.
type Changes struct {
	Added    []string
	Modified []string
	Deleted  []string
}

// Total returns the number of changed paths.
func (c Changes) Total() int {
	return len(c.Added) + len(c.Modified) + len(c.Deleted)
}

// Diff compares the previous baseline against the freshly computed tree.
//
// Directories whose digest matches the baseline are pruned without visiting
// their descendants: the digest-combination invariant guarantees nothing
// beneath them changed. With an empty baseline every file is reported as
// added, which is what forces the first run to a full index.
func Diff(old Baseline, tree *Tree) Changes {
	var changes Changes

	seen := make(map[string]bool)
	var prunedDirs []string

	var walk func(n *Node)
	walk = func(n *Node) {
		if n.IsDir {
			if prev, ok := old.Dirs[n.Path]; ok && prev == n.Digest {
				prunedDirs = append(prunedDirs, n.Path)
				return
			}
			for _, c := range n.Children {
				walk(c)
			}
			return
		}

		seen[n.Path] = true
		prev, ok := old.Files[n.Path]
		switch {
		case !ok:
			changes.Added = append(changes.Added, n.Path)
		case prev != n.Digest:
			changes.Modified = append(changes.Modified, n.Path)
		}
	}
	if tree != nil && tree.Root != nil {
		walk(tree.Root)
	}

	for path := range old.Files {
		if seen[path] || underAny(path, prunedDirs) {
			continue
		}
		changes.Deleted = append(changes.Deleted, path)
	}

	sort.Strings(changes.Added)
	sort.Strings(changes.Modified)
	sort.Strings(changes.Deleted)
	return changes
}

// underAny reports whether path lives beneath any of the directory paths.
func underAny(path string, dirs []string) bool {
	for _, dir := range dirs {
		if dir == "." || strings.HasPrefix(path, dir+"/") {
			return true
		}
	}
	return false
}
