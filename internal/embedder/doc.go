// Package embedder generates vector embeddings for code chunks and queries.
//
// The Embedder interface hides the concrete provider: Jina and
// OpenAI-compatible HTTP APIs for production, and a deterministic local
// provider for tests and offline use. Transient provider failures
// (timeouts, rate limits, 5xx) are retried with exponential backoff; after
// retries are exhausted the batch error is reported as transient so the
// indexing run can defer those chunks to the next cycle instead of failing.
//
// Embeddings are cached in-process by content hash, so re-embedding
// unchanged text across runs costs nothing.
package embedder
