// Package merkle implements filesystem change detection with a hash tree.
//
// A tree is rebuilt from the filesystem on every run: each included file
// becomes a leaf whose digest is the SHA-256 of its bytes, and each
// directory's digest is a deterministic combination of its children's
// digests in sorted-name order. A directory digest therefore changes if and
// only if some descendant file was added, removed, or modified, which lets
// Diff prune unchanged subtrees and report the changed path set in time
// proportional to the number of changed subtrees rather than the number of
// files.
//
// Unreadable files are reported as skipped paths with the walk continuing
// over the rest of the tree; they never fail a run.
package merkle
