// Package models defines core data structures for chunks, reports, and planning context.
package models

import "time"

// DocumentType classifies an uploaded construction document for chunking.
type DocumentType string

const (
	DocTypeSpecifications   DocumentType = "specifications"
	DocTypeDrawingSchedules DocumentType = "drawingSchedules"
	DocTypeCorrespondence   DocumentType = "correspondence"
	DocTypeReports          DocumentType = "reports"
	DocTypeDefault          DocumentType = "default"
)

// Document represents an uploaded document whose extracted text is chunked for retrieval.
type Document struct {
	ID            string       `json:"id" db:"id"`
	DocumentSetID string       `json:"document_set_id" db:"document_set_id"`
	Filename      string       `json:"filename" db:"filename"`
	Content       string       `json:"content" db:"content"`
	Type          DocumentType `json:"type" db:"type"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
}

// Chunk is a retrievable unit of document text with hierarchy metadata.
// Hierarchy levels: 0=document, 1=section, 2=subsection, 3=clause.
type Chunk struct {
	ID            string    `json:"id" db:"id"`
	DocumentID    string    `json:"document_id" db:"document_id"`
	DocumentSetID string    `json:"document_set_id" db:"document_set_id"`
	Content       string    `json:"content" db:"content"`
	Level         int       `json:"level" db:"level"`
	HierarchyPath string    `json:"hierarchy_path" db:"hierarchy_path"`
	SectionTitle  string    `json:"section_title,omitempty" db:"section_title"`
	ClauseNumber  string    `json:"clause_number,omitempty" db:"clause_number"`
	ParentID      string    `json:"parent_id,omitempty" db:"parent_id"`
	TokenCount    int       `json:"token_count" db:"token_count"`
	ChunkIndex    int       `json:"chunk_index" db:"chunk_index"`
	Embedding     []float32 `json:"-" db:"-"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// DocumentInput is the input for ingesting a document.
type DocumentInput struct {
	ID            string `json:"id,omitempty"`
	DocumentSetID string `json:"document_set_id,omitempty"`
	Filename      string `json:"filename,omitempty"`
	Content       string `json:"content"`
}

// EstimateTokens approximates the token count of text as len/4, the rule of
// thumb for English prose. Always >= 0; never 0 for non-empty text.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
