// Package types provides shared type definitions for the codectx MCP server.
//
// This package defines domain types used across multiple components of
// codectx, including languages, code chunks, parse symbols, and search
// results.
//
// Types in this package are intentionally free of business logic beyond
// validation and derived-value computation, serving as the common vocabulary
// between the merkle tracker, parser, chunker, indexer, vector store, and
// MCP layers.
package types
