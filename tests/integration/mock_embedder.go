package integration

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/semantica-dev/codectx/internal/embedder"
)

// mockDimension keeps integration vectors small and fast.
const mockDimension = 16

// MockEmbedder is a deterministic in-process embedding provider. The vector
// for a text depends only on the text, so equal chunks always embed equal
// and re-embedding is observable through the call counters.
type MockEmbedder struct {
	mu         sync.Mutex
	embeds     int
	batchCalls int
	failBatch  bool
}

// NewMockEmbedder creates a mock provider.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{}
}

// FailNextBatches makes upcoming EmbedBatch calls fail transiently until
// reset with AllowBatches.
func (m *MockEmbedder) FailNextBatches() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failBatch = true
}

// AllowBatches clears a previous FailNextBatches.
func (m *MockEmbedder) AllowBatches() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failBatch = false
}

// EmbedCount reports the total number of texts embedded so far.
func (m *MockEmbedder) EmbedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embeds
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchCalls++
	if m.failBatch {
		return nil, fmt.Errorf("%w: mock provider offline", embedder.ErrTransient)
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = deterministicVector(text)
	}
	m.embeds += len(texts)
	return out, nil
}

func (m *MockEmbedder) Dimension() int   { return mockDimension }
func (m *MockEmbedder) Provider() string { return "mock" }
func (m *MockEmbedder) Model() string    { return "mock-deterministic" }
func (m *MockEmbedder) Close() error     { return nil }

// deterministicVector derives a unit vector from the text digest.
func deterministicVector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	v := make([]float32, mockDimension)
	var norm float64
	for i := range v {
		bits := binary.LittleEndian.Uint16(sum[i*2 : i*2+2])
		v[i] = float32(bits)/math.MaxUint16 - 0.5
		norm += float64(v[i]) * float64(v[i])
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}
