package embedder

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"
)

// Common errors.
var (
	ErrEmptyText     = errors.New("text cannot be empty")
	ErrBatchTooLarge = errors.New("batch size exceeds limit")
	ErrNoProvider    = errors.New("no embedding provider configured")

	// ErrTransient marks failures worth retrying on a later run: the
	// provider timed out, rate-limited, or errored server-side even after
	// in-call retries.
	ErrTransient = errors.New("transient embedding failure")
)

const (
	// MaxBatchSize is the largest batch accepted by EmbedBatch. The
	// indexer partitions its to-embed set accordingly.
	MaxBatchSize = 64

	// DefaultCacheSize bounds the in-process embedding cache.
	DefaultCacheSize = 10000
)

// Embedder converts texts into fixed-dimension vectors.
type Embedder interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	// The batch succeeds or fails as a whole.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the provider's fixed vector width.
	Dimension() int

	// Provider and Model identify the backing service for status output.
	Provider() string
	Model() string

	// Close releases provider resources.
	Close() error
}

// cache is an in-process LRU of vectors keyed by text hash.
type cache struct {
	entries *lru.Cache[string, []float32]
}

func newCache(size int) *cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, []float32](size)
	if err != nil {
		// Only reachable with a non-positive size, which is guarded above.
		panic(fmt.Sprintf("embedder cache: %v", err))
	}
	return &cache{entries: entries}
}

// get returns a copy so callers cannot mutate the cached vector.
func (c *cache) get(key string) ([]float32, bool) {
	v, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

func (c *cache) put(key string, v []float32) {
	c.entries.Add(key, v)
}

// textKey hashes text for cache lookup.
func textKey(text string) string {
	h := xxh3.Hash128([]byte(text))
	return fmt.Sprintf("%016x%016x", h.Hi, h.Lo)
}

// validateBatch rejects empty and oversized batches before any network call.
func validateBatch(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrEmptyText)
	}
	if len(texts) > MaxBatchSize {
		return fmt.Errorf("%w: %d texts, max %d", ErrBatchTooLarge, len(texts), MaxBatchSize)
	}
	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d", ErrEmptyText, i)
		}
	}
	return nil
}

// Partition splits texts into batches no larger than size. Order within and
// across batches follows the input.
func Partition(texts []string, size int) [][]string {
	if size <= 0 {
		size = MaxBatchSize
	}
	var batches [][]string
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[start:end])
	}
	return batches
}
