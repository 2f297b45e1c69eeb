package searcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/semantica-dev/codectx/internal/embedder"
	"github.com/semantica-dev/codectx/internal/vectorstore"
	"github.com/semantica-dev/codectx/pkg/types"
)

const (
	// DefaultLimit is the result count when a request doesn't set one.
	DefaultLimit = 10

	// MaxLimit caps the result count a single request can ask for.
	MaxLimit = 100

	// DefaultCacheTTL bounds how long a cached response is served.
	DefaultCacheTTL = 5 * time.Minute

	cacheSize = 1000
)

// SearchRequest contains parameters for a search operation.
type SearchRequest struct {
	Query    string
	Limit    int
	Filters  *vectorstore.Filters
	UseCache bool
	CacheTTL time.Duration
}

// SearchResponse contains ranked results and query metadata.
type SearchResponse struct {
	Results      []types.SearchResult
	TotalResults int
	Duration     time.Duration
	CacheHit     bool
}

// cacheEntry is a cached response with its expiration time.
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher embeds query text and ranks stored chunks by similarity.
type Searcher struct {
	store    vectorstore.Store
	embedder embedder.Embedder
	cache    *lru.Cache[[32]byte, *cacheEntry]
}

// New creates a Searcher over the given store and embedding provider.
func New(store vectorstore.Store, emb embedder.Embedder) *Searcher {
	cache, err := lru.New[[32]byte, *cacheEntry](cacheSize)
	if err != nil {
		// Only reachable with a non-positive size.
		panic(fmt.Sprintf("create search cache: %v", err))
	}
	return &Searcher{
		store:    store,
		embedder: emb,
		cache:    cache,
	}
}

// Search embeds the query and returns the topK most similar chunks.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	start := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	key := requestKey(req)
	if req.UseCache {
		if cached := s.checkCache(key); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(start)
			return cached, nil
		}
	}

	vector, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := s.store.Query(ctx, vector, req.Limit, req.Filters)
	if err != nil {
		return nil, fmt.Errorf("query store: %w", err)
	}

	results := make([]types.SearchResult, 0, len(matches))
	for _, m := range matches {
		r := types.SearchResult{
			ChunkID:   m.Entry.ID,
			Path:      m.Entry.Path,
			Language:  m.Entry.Language,
			Kind:      m.Entry.Kind,
			Name:      m.Entry.Name,
			StartLine: m.Entry.StartLine,
			EndLine:   m.Entry.EndLine,
			Text:      m.Entry.Content,
			Score:     m.Score,
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("result %s: %w", m.Entry.ID, err)
		}
		results = append(results, r)
	}

	response := &SearchResponse{
		Results:      results,
		TotalResults: len(results),
		Duration:     time.Since(start),
	}

	if req.UseCache && len(results) > 0 {
		ttl := req.CacheTTL
		if ttl <= 0 {
			ttl = DefaultCacheTTL
		}
		s.cache.Add(key, &cacheEntry{
			response:  response,
			expiresAt: time.Now().Add(ttl),
		})
	}

	return response, nil
}

// Invalidate drops all cached responses. The scheduler calls this after
// every indexing run so queries never see pre-run rankings past one cycle.
func (s *Searcher) Invalidate() {
	s.cache.Purge()
}

func (s *Searcher) validateRequest(req *SearchRequest) error {
	if strings.TrimSpace(req.Query) == "" {
		return fmt.Errorf("query must not be empty")
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	return nil
}

func (s *Searcher) checkCache(key [32]byte) *SearchResponse {
	entry, ok := s.cache.Get(key)
	if !ok {
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		s.cache.Remove(key)
		return nil
	}
	// Copy so callers can't mutate the cached response.
	out := *entry.response
	out.Results = append([]types.SearchResult(nil), entry.response.Results...)
	return &out
}

// requestKey derives a cache key from everything that affects ranking.
func requestKey(req SearchRequest) [32]byte {
	var b strings.Builder
	b.WriteString(req.Query)
	fmt.Fprintf(&b, "|%d", req.Limit)
	if req.Filters != nil {
		fmt.Fprintf(&b, "|%s|%s|%s", req.Filters.PathPrefix, req.Filters.Language, req.Filters.Kind)
	}
	return sha256.Sum256([]byte(b.String()))
}
