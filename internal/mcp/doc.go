// Package mcp exposes the index over the Model Context Protocol on stdio.
// Three tools are served: full_index to request a rebuild, status for the
// pipeline phase and snapshot bookkeeping, and query for semantic search.
package mcp
