package retrieval

import (
	"context"
	"fmt"

	"github.com/hyperjump/sakusei/internal/models"
	"github.com/hyperjump/sakusei/internal/storage"
	"go.uber.org/zap"
)

// Retriever returns the top-k chunks for a query, scoped to document sets.
// Semantic search is the primary path; reranking is best effort (primary then
// fallback reranker); keyword search covers for an unavailable embedder.
type Retriever struct {
	embedder         Embedder
	vectorIndex      VectorIndex
	keywordIndex     KeywordIndex
	primaryReranker  Reranker
	fallbackReranker Reranker
	storage          storage.Storage
	candidates       int
	logger           *zap.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithRerankers sets the primary and fallback rerankers. Either may be nil.
func WithRerankers(primary, fallback Reranker) RetrieverOption {
	return func(r *Retriever) {
		r.primaryReranker = primary
		r.fallbackReranker = fallback
	}
}

// WithKeywordFallback sets the keyword index used when embedding fails.
func WithKeywordFallback(idx KeywordIndex) RetrieverOption {
	return func(r *Retriever) { r.keywordIndex = idx }
}

// WithRetrieverLogger sets a logger for debug output.
func WithRetrieverLogger(l *zap.Logger) RetrieverOption {
	return func(r *Retriever) { r.logger = l }
}

// NewRetriever creates a retriever with the given dependencies.
func NewRetriever(embedder Embedder, vectorIndex VectorIndex, st storage.Storage, candidates int, opts ...RetrieverOption) *Retriever {
	if candidates <= 0 {
		candidates = 50
	}
	r := &Retriever{
		embedder:    embedder,
		vectorIndex: vectorIndex,
		storage:     st,
		candidates:  candidates,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to k chunks relevant to query, restricted to docSetIDs
// when non-empty.
func (r *Retriever) Retrieve(ctx context.Context, query string, docSetIDs []string, k int) ([]*models.Chunk, error) {
	if k <= 0 {
		return nil, nil
	}

	chunks, err := r.retrieveSemantic(ctx, query, docSetIDs)
	if err != nil {
		if r.keywordIndex == nil {
			return nil, err
		}
		if r.logger != nil {
			r.logger.Warn("semantic retrieval failed, falling back to keyword search", zap.Error(err))
		}
		chunks, err = r.retrieveKeyword(ctx, query, docSetIDs)
		if err != nil {
			return nil, err
		}
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	if reranked, ok := r.rerank(ctx, query, chunks, k); ok {
		return reranked, nil
	}
	if k < len(chunks) {
		chunks = chunks[:k]
	}
	return chunks, nil
}

func (r *Retriever) retrieveSemantic(ctx context.Context, query string, docSetIDs []string) ([]*models.Chunk, error) {
	queryEmbedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	results, err := r.vectorIndex.Search(ctx, queryEmbedding, r.candidates, docSetIDs)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return r.hydrate(ctx, vectorIDs(results)), nil
}

func (r *Retriever) retrieveKeyword(ctx context.Context, query string, docSetIDs []string) ([]*models.Chunk, error) {
	results, err := r.keywordIndex.Search(ctx, query, r.candidates, docSetIDs)
	if err != nil {
		return nil, fmt.Errorf("keyword fallback failed: %w", err)
	}
	ids := make([]string, len(results))
	for i, res := range results {
		ids[i] = res.ID
	}
	return r.hydrate(ctx, ids), nil
}

// hydrate loads chunk records for IDs, skipping any that no longer exist
// (superseded by re-ingestion between index and store).
func (r *Retriever) hydrate(ctx context.Context, ids []string) []*models.Chunk {
	chunks := make([]*models.Chunk, 0, len(ids))
	for _, id := range ids {
		ch, err := r.storage.GetChunk(ctx, id)
		if err != nil {
			continue
		}
		chunks = append(chunks, ch)
	}
	return chunks
}

// rerank tries the primary then the fallback reranker. Returns ok=false when
// neither succeeds; the caller keeps the vector ordering.
func (r *Retriever) rerank(ctx context.Context, query string, chunks []*models.Chunk, k int) ([]*models.Chunk, bool) {
	for _, reranker := range []Reranker{r.primaryReranker, r.fallbackReranker} {
		if reranker == nil {
			continue
		}
		reranked, err := reranker.Rerank(ctx, query, chunks, k)
		if err == nil {
			return reranked, true
		}
		if r.logger != nil {
			r.logger.Warn("reranker failed", zap.Error(err))
		}
	}
	return nil, false
}

func vectorIDs(results []*VectorResult) []string {
	ids := make([]string, len(results))
	for i, res := range results {
		ids[i] = res.ID
	}
	return ids
}
