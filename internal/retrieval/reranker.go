package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/sakusei/internal/models"
)

// Reranker re-scores retrieved chunks against the query. The system carries a
// primary and a fallback implementation; retrieval works without either, at
// reduced quality.
type Reranker interface {
	Rerank(ctx context.Context, query string, chunks []*models.Chunk, topK int) ([]*models.Chunk, error)
	// CheckConfig verifies the reranker is configured and reachable.
	CheckConfig(ctx context.Context) error
}

// HTTPReranker calls a rerank endpoint ({query, documents} -> scored indices).
type HTTPReranker struct {
	endpoint string
	client   *http.Client
}

// NewHTTPReranker creates a reranker client for the given endpoint.
func NewHTTPReranker(endpoint string) *HTTPReranker {
	return &HTTPReranker{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopK      int      `json:"top_k"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank re-orders chunks by the service's relevance scores and returns the
// top-k.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, chunks []*models.Chunk, topK int) ([]*models.Chunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}
	docs := make([]string, len(chunks))
	for i, ch := range chunks {
		docs[i] = ch.Content
	}
	body, err := json.Marshal(rerankRequest{Query: query, Documents: docs, TopK: topK})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reranker returned status %d", resp.StatusCode)
	}

	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}
	sort.Slice(out.Results, func(i, j int) bool { return out.Results[i].Score > out.Results[j].Score })

	reranked := make([]*models.Chunk, 0, topK)
	for _, res := range out.Results {
		if res.Index < 0 || res.Index >= len(chunks) {
			continue
		}
		reranked = append(reranked, chunks[res.Index])
		if len(reranked) == topK {
			break
		}
	}
	return reranked, nil
}

// CheckConfig verifies the endpoint is configured and responds to a HEAD probe.
func (r *HTTPReranker) CheckConfig(ctx context.Context) error {
	if r.endpoint == "" {
		return fmt.Errorf("reranker endpoint not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, r.endpoint+"/rerank", nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("reranker probe failed: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("reranker returned status %d", resp.StatusCode)
	}
	return nil
}

// MockReranker is a pass-through reranker for tests.
type MockReranker struct {
	// Fail makes every call return an error.
	Fail bool
	// Calls counts Rerank invocations.
	Calls int
}

// Rerank returns the first topK chunks unchanged.
func (m *MockReranker) Rerank(ctx context.Context, query string, chunks []*models.Chunk, topK int) ([]*models.Chunk, error) {
	m.Calls++
	if m.Fail {
		return nil, fmt.Errorf("reranker unavailable")
	}
	if topK < len(chunks) {
		return chunks[:topK], nil
	}
	return chunks, nil
}

// CheckConfig reports the mock as healthy unless Fail is set.
func (m *MockReranker) CheckConfig(ctx context.Context) error {
	if m.Fail {
		return fmt.Errorf("reranker unavailable")
	}
	return nil
}
