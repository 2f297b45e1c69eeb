package types

import "errors"

// SearchResult is a single query hit with its similarity score.
type SearchResult struct {
	ChunkID  string
	Path     string
	Language Language
	Kind     ChunkKind
	Name     string

	StartLine int
	EndLine   int

	Text  string
	Score float64 // Cosine similarity, higher is more relevant
}

// Validate checks result invariants before returning it to a caller.
func (r *SearchResult) Validate() error {
	if r.ChunkID == "" {
		return ErrInvalidChunkID
	}
	if r.Path == "" {
		return ErrMissingFileInfo
	}
	if r.Score < -1.0 || r.Score > 1.0 {
		return ErrInvalidScore
	}
	return nil
}

var (
	ErrInvalidChunkID  = errors.New("invalid chunk ID")
	ErrMissingFileInfo = errors.New("file info is required")
	ErrInvalidScore    = errors.New("similarity score must be between -1 and 1")
)
