package retrieval

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/sakusei/internal/models"
)

// KeywordResult is a single keyword search hit (ID is a chunk ID).
type KeywordResult struct {
	ID    string
	Score float64
}

// KeywordIndex is the keyword fallback over chunks, used when the embedding
// service is unavailable.
type KeywordIndex interface {
	Index(ctx context.Context, chunk *models.Chunk) error
	Search(ctx context.Context, query string, limit int, scope []string) ([]*KeywordResult, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// keywordChunk is the shape indexed into Bleve.
type keywordChunk struct {
	Content       string `json:"content"`
	SectionTitle  string `json:"section_title"`
	DocumentSetID string `json:"document_set_id"`
}

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path. An existing index is
// reused; remove the directory to force a full re-index after mapping changes.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming): clause text is
	// full of codes and standards references that stemming mangles.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("section_title", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("document_set_id", keywordFieldMapping)
	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index indexes a chunk by its ID.
func (b *BleveIndex) Index(ctx context.Context, chunk *models.Chunk) error {
	return b.index.Index(chunk.ID, &keywordChunk{
		Content:       chunk.Content,
		SectionTitle:  chunk.SectionTitle,
		DocumentSetID: chunk.DocumentSetID,
	})
}

// Search runs a match query over content and section title, restricted to the
// document-set scope when non-empty.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, scope []string) ([]*KeywordResult, error) {
	contentQuery := bleve.NewMatchQuery(query)
	contentQuery.SetField("content")
	titleQuery := bleve.NewMatchQuery(query)
	titleQuery.SetField("section_title")
	textQuery := bleve.NewDisjunctionQuery(contentQuery, titleQuery)

	var q blevequery.Query = textQuery
	if len(scope) > 0 {
		scopeQueries := make([]blevequery.Query, len(scope))
		for i, setID := range scope {
			tq := bleve.NewTermQuery(setID)
			tq.SetField("document_set_id")
			scopeQueries[i] = tq
		}
		q = bleve.NewConjunctionQuery(textQuery, bleve.NewDisjunctionQuery(scopeQueries...))
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	results := make([]*KeywordResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		results = append(results, &KeywordResult{ID: hit.ID, Score: hit.Score})
	}
	return results, nil
}

// Delete removes a chunk from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
