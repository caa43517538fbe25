// Package storage defines the persistence interface for documents, chunks,
// TOC memories, reports, and projects.
package storage

import (
	"context"

	"github.com/hyperjump/sakusei/internal/models"
)

// Storage defines the persistence operations consumed by the pipeline.
type Storage interface {
	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error

	// Chunk operations. Chunks are written once per ingestion pass and are
	// immutable; re-ingestion deletes and recreates them.
	BatchCreateChunks(ctx context.Context, chunks []*models.Chunk) error
	GetChunk(ctx context.Context, id string) (*models.Chunk, error)
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error)
	DeleteChunksByDocumentID(ctx context.Context, docID string) error

	// TOC memory operations. GetTocMemory returns (nil, nil) when no record
	// exists for the key — absence is an expected lookup outcome, not an error.
	GetTocMemory(ctx context.Context, organizationID, reportType, discipline string) (*models.TocMemory, error)
	UpsertTocMemory(ctx context.Context, mem *models.TocMemory) error

	// Report operations
	CreateReport(ctx context.Context, report *models.Report) error
	GetReport(ctx context.Context, id string) (*models.Report, error)
	UpdateReport(ctx context.Context, report *models.Report) error

	// Project operations (planning loader backing store)
	CreateProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}

// Project is the stored project record the planning loader reads: the
// planning context plus per-discipline/trade transmittals and document-set
// scoping lists, keyed by discipline or trade name.
type Project struct {
	ID           string                        `json:"id"`
	Context      models.PlanningContext        `json:"context"`
	Transmittals map[string]models.Transmittal `json:"transmittals,omitempty"`
	DocumentSets map[string][]string           `json:"document_sets,omitempty"`
}
