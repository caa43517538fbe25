package retrieval

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
)

var errMockEmbedderDown = errors.New("embedding service unavailable")

// MockEmbedder is a deterministic embedder for tests: the same text always
// gets the same unit-length embedding.
type MockEmbedder struct {
	dimensions int
	// Fail makes every call return an error, for fallback-path tests.
	Fail bool
}

// NewMockEmbedder returns an embedder producing deterministic embeddings.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a deterministic embedding based on the text hash.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.Fail {
		return nil, errMockEmbedderDown
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := int(h.Sum32() % 10007)
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(seed*(i+1)))*0.1 + 0.01)
	}
	var sum float64
	for _, v := range emb {
		sum += float64(v * v)
	}
	if sum > 0 {
		norm := 1.0 / math.Sqrt(sum)
		for i := range emb {
			emb[i] *= float32(norm)
		}
	}
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// CheckConfig reports the mock as healthy unless Fail is set.
func (e *MockEmbedder) CheckConfig(ctx context.Context) error {
	if e.Fail {
		return errMockEmbedderDown
	}
	return nil
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
