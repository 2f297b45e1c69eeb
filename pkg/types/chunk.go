package types

import (
	"errors"
	"fmt"

	"github.com/zeebo/xxh3"
)

// ChunkKind classifies the code unit a chunk represents.
type ChunkKind string

const (
	ChunkFunction ChunkKind = "function"
	ChunkMethod   ChunkKind = "method"
	ChunkClass    ChunkKind = "class"

	// ChunkModule is the whole-file fallback used when a file has no
	// extractable declarations or no structural parser.
	ChunkModule ChunkKind = "module"
)

// CodeChunk is the atomic indexed unit: a named, bounded code region with a
// stable identity and a digest of its own text.
//
// Identity is derived from the file path and the qualified declaration name
// (plus an ordinal for duplicate names), not from line numbers, so it
// survives edits elsewhere in the same file. The digest changes if and only
// if the chunk's own text changes, which is what allows partial re-embedding
// within a changed file.
type CodeChunk struct {
	ID       string // "<path>:<qualified name>[#n]"
	Path     string // Relative to the indexed root, forward slashes
	Language Language
	Kind     ChunkKind
	Name     string // Qualified name, e.g. "C.m"

	StartLine int // 1-based, inclusive
	EndLine   int // 1-based, inclusive

	Text   string
	Digest string // xxh3-128 of Text, hex
}

// ComputeDigest fills in the digest of the chunk's text.
func (c *CodeChunk) ComputeDigest() string {
	h := xxh3.Hash128([]byte(c.Text))
	c.Digest = fmt.Sprintf("%016x%016x", h.Hi, h.Lo)
	return c.Digest
}

// EmbeddingText returns the text sent to the embedding provider: the chunk
// body annotated with its kind and qualified name so the vector captures the
// declaration's role, not just its tokens.
func (c *CodeChunk) EmbeddingText() string {
	return fmt.Sprintf("Kind: %s\nName: %s\nFile: %s\nCode: %s", c.Kind, c.Name, c.Path, c.Text)
}

// Validate checks structural invariants before a chunk enters the pipeline.
func (c *CodeChunk) Validate() error {
	if c.ID == "" {
		return errors.New("chunk ID is required")
	}
	if c.Path == "" {
		return errors.New("chunk path is required")
	}
	if c.Text == "" {
		return errors.New("chunk text cannot be empty")
	}
	if c.StartLine <= 0 || c.EndLine <= 0 {
		return errors.New("line numbers must be positive")
	}
	if c.StartLine > c.EndLine {
		return errors.New("start line must be before or equal to end line")
	}
	if c.Digest == "" {
		return errors.New("chunk digest must be computed")
	}
	switch c.Kind {
	case ChunkFunction, ChunkMethod, ChunkClass, ChunkModule:
	default:
		return fmt.Errorf("invalid chunk kind %q", c.Kind)
	}
	return nil
}
