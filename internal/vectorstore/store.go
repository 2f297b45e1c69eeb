package vectorstore

import (
	"context"
	"errors"

	"github.com/semantica-dev/codectx/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entry doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrDimensionMismatch is returned when a vector's width differs from
	// the store's established dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// MaxStoredContent bounds the chunk text persisted with each entry.
const MaxStoredContent = 10000

// Entry is one persisted index record: a chunk identity, its embedding, and
// the metadata needed to serve query results without a second lookup.
type Entry struct {
	ID        string
	Path      string
	Language  types.Language
	Kind      types.ChunkKind
	Name      string
	StartLine int
	EndLine   int
	Digest    string
	Content   string
	Vector    []float32
}

// Match is one similarity hit, highest score first.
type Match struct {
	Entry Entry
	Score float64
}

// Filters restrict a query to a metadata subset.
type Filters struct {
	PathPrefix string
	Language   types.Language
	Kind       types.ChunkKind
}

// Store is the vector-storage collaborator interface.
type Store interface {
	// Upsert inserts or replaces entries keyed by chunk identity.
	Upsert(ctx context.Context, entries []Entry) error

	// DeleteByIDs removes the identified entries. Unknown IDs are ignored.
	DeleteByIDs(ctx context.Context, ids []string) error

	// DeleteByFile removes every entry whose path matches exactly.
	DeleteByFile(ctx context.Context, path string) error

	// Query returns up to topK entries ranked by descending cosine
	// similarity to vector, restricted by filters when non-nil.
	Query(ctx context.Context, vector []float32, topK int, filters *Filters) ([]Match, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	Close() error
}
