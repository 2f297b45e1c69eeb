package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"time"
)

// Provider identifiers.
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	DefaultJinaEndpoint   = "https://api.jina.ai/v1/embeddings"
	DefaultOpenAIEndpoint = "https://api.openai.com/v1/embeddings"

	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"

	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 384

	requestTimeout = 30 * time.Second
)

// httpStatusError carries the HTTP status of a failed provider call so the
// retry predicate can tell rate limits and server errors from bad requests.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.status, e.body)
}

// retryableHTTP treats rate limits, 5xx, and transport failures as
// transient. Other HTTP statuses and encode/decode failures are permanent.
func retryableHTTP(err error) bool {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.status == http.StatusTooManyRequests || statusErr.status >= 500
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// HTTPProvider talks to an OpenAI-compatible embeddings endpoint. Both Jina
// and OpenAI (and self-hosted gateways) share this wire format.
type HTTPProvider struct {
	provider  string
	endpoint  string
	apiKey    string
	model     string
	dimension int

	httpClient *http.Client
	cache      *cache
	retry      RetryConfig
}

// HTTPConfig configures an HTTPProvider.
type HTTPConfig struct {
	Provider  string
	Endpoint  string
	APIKey    string
	Model     string
	Dimension int
	CacheSize int
}

// NewHTTPProvider creates a provider for an OpenAI-compatible endpoint.
func NewHTTPProvider(cfg HTTPConfig) (*HTTPProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: missing API key for %s", ErrNoProvider, cfg.Provider)
	}
	if cfg.Endpoint == "" || cfg.Model == "" || cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: incomplete configuration for %s", ErrNoProvider, cfg.Provider)
	}
	return &HTTPProvider{
		provider:   cfg.Provider,
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		httpClient: &http.Client{Timeout: requestTimeout},
		cache:      newCache(cfg.CacheSize),
		retry:      DefaultRetryConfig(),
	}, nil
}

// NewJinaProvider creates an HTTPProvider with Jina defaults.
func NewJinaProvider(apiKey, endpoint, model string, cacheSize int) (*HTTPProvider, error) {
	if endpoint == "" {
		endpoint = DefaultJinaEndpoint
	}
	if model == "" {
		model = DefaultJinaModel
	}
	return NewHTTPProvider(HTTPConfig{
		Provider:  ProviderJina,
		Endpoint:  endpoint,
		APIKey:    apiKey,
		Model:     model,
		Dimension: JinaDimension,
		CacheSize: cacheSize,
	})
}

// NewOpenAIProvider creates an HTTPProvider with OpenAI defaults.
func NewOpenAIProvider(apiKey, endpoint, model string, cacheSize int) (*HTTPProvider, error) {
	if endpoint == "" {
		endpoint = DefaultOpenAIEndpoint
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return NewHTTPProvider(HTTPConfig{
		Provider:  ProviderOpenAI,
		Endpoint:  endpoint,
		APIKey:    apiKey,
		Model:     model,
		Dimension: OpenAIDimension,
		CacheSize: cacheSize,
	})
}

func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *HTTPProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}

	// Serve fully cached batches without a network call.
	vectors := make([][]float32, len(texts))
	var missing []int
	for i, text := range texts {
		if v, ok := p.cache.get(textKey(text)); ok {
			vectors[i] = v
		} else {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	request := make([]string, len(missing))
	for i, idx := range missing {
		request[i] = texts[idx]
	}

	fetched, err := retryWithBackoff(ctx, p.retry, retryableHTTP, func() ([][]float32, error) {
		return p.callAPI(ctx, request)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrTransient, p.provider, err)
	}
	if len(fetched) != len(request) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts",
			ErrTransient, p.provider, len(fetched), len(request))
	}

	for i, idx := range missing {
		vectors[idx] = fetched[i]
		p.cache.put(textKey(texts[idx]), fetched[i])
	}
	return vectors, nil
}

// callAPI performs one embeddings request in the OpenAI wire format.
func (p *HTTPProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(map[string]interface{}{
		"input": texts,
		"model": p.model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &httpStatusError{status: resp.StatusCode, body: string(raw)}
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	// Providers may reorder; the index field restores input order.
	vectors := make([][]float32, len(texts))
	for _, item := range apiResp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("response index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("no embedding returned for input %d", i)
		}
	}
	return vectors, nil
}

func (p *HTTPProvider) Dimension() int   { return p.dimension }
func (p *HTTPProvider) Provider() string { return p.provider }
func (p *HTTPProvider) Model() string    { return p.model }

func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider produces deterministic hash-derived vectors without any
// network dependency. Useful for tests and offline indexing; the vectors
// carry no semantic signal.
type LocalProvider struct {
	model string
	cache *cache
}

// NewLocalProvider creates a LocalProvider.
func NewLocalProvider(cacheSize int) (*LocalProvider, error) {
	return &LocalProvider{
		model: "local-hash-embeddings",
		cache: newCache(cacheSize),
	}, nil
}

func (l *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	if v, ok := l.cache.get(textKey(text)); ok {
		return v, nil
	}

	// Expand a sha256 seed across the vector, then L2-normalize so cosine
	// scores stay in a sane range.
	vector := make([]float32, LocalDimension)
	seed := sha256.Sum256([]byte(text))
	var norm float64
	for i := range vector {
		b := seed[i%len(seed)]
		v := float32(int(b)-128) / 128.0 * float32(i%7+1)
		vector[i] = v
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1.0 / math.Sqrt(norm))
		for i := range vector {
			vector[i] *= scale
		}
	}

	l.cache.put(textKey(text), vector)
	return vector, nil
}

func (l *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := l.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (l *LocalProvider) Dimension() int   { return LocalDimension }
func (l *LocalProvider) Provider() string { return ProviderLocal }
func (l *LocalProvider) Model() string    { return l.model }
func (l *LocalProvider) Close() error     { return nil }
