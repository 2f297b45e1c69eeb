package merkle

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Node is one directory or file in the hash tree. Paths are relative to the
// tree root, slash-separated; the root directory has path ".".
type Node struct {
	Path     string
	Name     string
	IsDir    bool
	Digest   Digest
	Children []*Node // Sorted by name; nil for files
}

// Skipped records a path the walk could not include, with the reason.
type Skipped struct {
	Path   string
	Reason string
}

// Tree is the hash tree over one filesystem snapshot.
type Tree struct {
	Root    *Node
	Skipped []Skipped
}

// ComputeTree walks root and builds the hash tree over all files admitted by
// rules. Unreadable files or directories become Skipped entries; only a
// missing or unreadable root is an error.
func ComputeTree(root string, rules Rules) (*Tree, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}

	t := &Tree{}
	t.Root = t.buildDir(root, ".", rules)
	if t.Root == nil {
		// Root itself was unreadable.
		return nil, fmt.Errorf("cannot read root directory %s", root)
	}
	return t, nil
}

// buildDir builds the node for one directory. Returns nil when the directory
// cannot be read (recorded as skipped).
func (t *Tree) buildDir(absPath, relPath string, rules Rules) *Node {
	entries, err := os.ReadDir(absPath)
	if err != nil {
		t.Skipped = append(t.Skipped, Skipped{Path: relPath, Reason: err.Error()})
		return nil
	}

	node := &Node{
		Path:  relPath,
		Name:  filepath.Base(absPath),
		IsDir: true,
	}

	var combined []childEntry
	for _, entry := range entries {
		childRel := entry.Name()
		if relPath != "." {
			childRel = relPath + "/" + entry.Name()
		}
		childAbs := filepath.Join(absPath, entry.Name())

		// Symlinks are skipped outright to avoid walk cycles.
		if entry.Type()&os.ModeSymlink != 0 {
			t.Skipped = append(t.Skipped, Skipped{Path: childRel, Reason: "symlink"})
			continue
		}

		if entry.IsDir() {
			if rules.excludesPath(childRel) {
				continue
			}
			child := t.buildDir(childAbs, childRel, rules)
			if child == nil || len(child.Children) == 0 {
				// Empty or unreadable directories carry no content.
				continue
			}
			node.Children = append(node.Children, child)
			combined = append(combined, childEntry{name: child.Name, isDir: true, digest: child.Digest})
			continue
		}

		if !entry.Type().IsRegular() {
			continue
		}

		fi, err := entry.Info()
		if err != nil {
			t.Skipped = append(t.Skipped, Skipped{Path: childRel, Reason: err.Error()})
			continue
		}
		ok, _ := rules.includesFile(childRel, fi)
		if !ok {
			continue
		}

		digest, err := HashFile(childAbs)
		if err != nil {
			t.Skipped = append(t.Skipped, Skipped{Path: childRel, Reason: err.Error()})
			continue
		}

		child := &Node{
			Path:   childRel,
			Name:   entry.Name(),
			Digest: digest,
		}
		node.Children = append(node.Children, child)
		combined = append(combined, childEntry{name: child.Name, digest: digest})
	}

	sort.Slice(node.Children, func(i, j int) bool { return node.Children[i].Name < node.Children[j].Name })
	node.Digest = combineDigests(combined)
	return node
}

// Flatten returns the leaf path -> digest map, the persisted baseline form.
func (t *Tree) Flatten() map[string]Digest {
	files := make(map[string]Digest)
	var walk func(n *Node)
	walk = func(n *Node) {
		if !n.IsDir {
			files[n.Path] = n.Digest
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	if t.Root != nil {
		walk(t.Root)
	}
	return files
}

// FlattenDirs returns the directory path -> digest map, persisted alongside
// the file baseline so the next run's Diff can prune unchanged subtrees.
func (t *Tree) FlattenDirs() map[string]Digest {
	dirs := make(map[string]Digest)
	var walk func(n *Node)
	walk = func(n *Node) {
		if n.IsDir {
			dirs[n.Path] = n.Digest
			for _, c := range n.Children {
				walk(c)
			}
		}
	}
	if t.Root != nil {
		walk(t.Root)
	}
	return dirs
}
