// Package ai provides the LLM client used to draft report section content.
package ai

import (
	"context"

	"github.com/hyperjump/sakusei/internal/models"
)

// SectionRequest carries everything the drafter needs for one section.
type SectionRequest struct {
	SectionTitle string
	ReportType   string
	Discipline   string
	Trade        string
	Context      *models.PlanningContext
	// Chunks are the retrieved document chunks the draft must be grounded on.
	Chunks []*models.Chunk
}

// Client drafts report section content from planning context and retrieved
// chunks.
type Client interface {
	DraftSection(ctx context.Context, req *SectionRequest) (string, error)
}
