// Package indexer drives the indexing pipeline: it diffs the current file
// tree against the last committed snapshot, parses and chunks only the
// changed files, re-embeds only the chunks whose text actually changed, and
// commits a new snapshot once the vector store reflects the work.
//
// A single run is active at a time, guarded by a non-blocking run-lock.
// Status reads never block on a running index.
package indexer
