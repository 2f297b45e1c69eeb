// Package parser extracts named declarations from source files with
// tree-sitter.
//
// Each supported language is a registered variant pairing a tree-sitter
// grammar with the node types that introduce functions, methods, and
// classes. Adding a language means adding a registry entry, not touching
// dispatch logic. Files with no registered grammar, and files whose parse
// fails outright, fall back to whole-file chunking at the chunker layer.
//
// Extraction is deterministic: re-parsing unchanged text yields the same
// symbol sequence, which the chunker relies on for stable chunk identities.
package parser
