package embedder

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Environment variables recognized by the factory.
const (
	EnvProvider = "CODECTX_EMBEDDING_PROVIDER"
	EnvEndpoint = "CODECTX_EMBEDDING_ENDPOINT"
	EnvModel    = "CODECTX_EMBEDDING_MODEL"

	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// NewFromEnv builds an embedder from the environment.
//
// Selection order:
//  1. CODECTX_EMBEDDING_PROVIDER (jina, openai, local) when set.
//  2. First available API key: JINA_API_KEY, then OPENAI_API_KEY.
//  3. The local deterministic provider.
//
// CODECTX_EMBEDDING_ENDPOINT and CODECTX_EMBEDDING_MODEL override the
// provider defaults, which is how self-hosted OpenAI-compatible gateways
// are reached.
func NewFromEnv() (Embedder, error) {
	provider := strings.ToLower(os.Getenv(EnvProvider))
	endpoint := os.Getenv(EnvEndpoint)
	model := os.Getenv(EnvModel)
	jinaKey := os.Getenv(EnvJinaAPIKey)
	openaiKey := os.Getenv(EnvOpenAIAPIKey)

	switch provider {
	case ProviderJina:
		return NewJinaProvider(jinaKey, endpoint, model, DefaultCacheSize)
	case ProviderOpenAI:
		return NewOpenAIProvider(openaiKey, endpoint, model, DefaultCacheSize)
	case ProviderLocal:
		return NewLocalProvider(DefaultCacheSize)
	case "":
		// Fall through to key-based detection.
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrNoProvider, provider)
	}

	if jinaKey != "" {
		return NewJinaProvider(jinaKey, endpoint, model, DefaultCacheSize)
	}
	if openaiKey != "" {
		return NewOpenAIProvider(openaiKey, endpoint, model, DefaultCacheSize)
	}
	return NewLocalProvider(DefaultCacheSize)
}

// UnconfiguredProvider stands in when NewFromEnv fails. Every call returns
// the configuration error, so indexing runs degrade and report it through
// status instead of the process dying at startup.
type UnconfiguredProvider struct {
	err error
}

// NewUnconfiguredProvider wraps a configuration error as an Embedder.
func NewUnconfiguredProvider(err error) *UnconfiguredProvider {
	return &UnconfiguredProvider{err: err}
}

func (u *UnconfiguredProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embedder not configured: %w", u.err)
}

func (u *UnconfiguredProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("embedder not configured: %w", u.err)
}

func (u *UnconfiguredProvider) Dimension() int   { return 0 }
func (u *UnconfiguredProvider) Provider() string { return "unconfigured" }
func (u *UnconfiguredProvider) Model() string    { return "" }
func (u *UnconfiguredProvider) Close() error     { return nil }

// DetectProvider reports which provider NewFromEnv would pick, for status
// and startup logging.
func DetectProvider() string {
	if provider := strings.ToLower(os.Getenv(EnvProvider)); provider != "" {
		return provider
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}
