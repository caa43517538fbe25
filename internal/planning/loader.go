// Package planning loads the structured facts that seed report generation.
package planning

import (
	"context"
	"fmt"

	"github.com/hyperjump/sakusei/internal/models"
	"github.com/hyperjump/sakusei/internal/storage"
)

// Loader assembles planning context for a project, plus the optional
// transmittal and document-set scoping for a discipline or trade.
type Loader interface {
	// LoadContext returns the planning context for projectID. A missing
	// project is an error: it is a fatal precondition for the pipeline.
	LoadContext(ctx context.Context, projectID string) (*models.PlanningContext, error)
	// LoadTransmittal returns the transmittal for the discipline or trade,
	// or (nil, nil) when none exists — absence is not an error.
	LoadTransmittal(ctx context.Context, projectID, disciplineOrTrade string) (*models.Transmittal, error)
	// LoadDocumentSetIDs returns the document-set IDs scoping retrieval for
	// the discipline or trade. An empty list means unscoped retrieval.
	LoadDocumentSetIDs(ctx context.Context, projectID, disciplineOrTrade string) ([]string, error)
}

// StorageLoader implements Loader over the project records in storage.
type StorageLoader struct {
	storage storage.Storage
}

// NewStorageLoader creates a loader backed by the given storage.
func NewStorageLoader(st storage.Storage) *StorageLoader {
	return &StorageLoader{storage: st}
}

// LoadContext returns the stored planning context for projectID.
func (l *StorageLoader) LoadContext(ctx context.Context, projectID string) (*models.PlanningContext, error) {
	project, err := l.storage.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load planning context: %w", err)
	}
	pc := project.Context
	pc.ProjectID = project.ID
	return &pc, nil
}

// LoadTransmittal returns the project's transmittal for the discipline or
// trade, or (nil, nil) when the project has none for that key.
func (l *StorageLoader) LoadTransmittal(ctx context.Context, projectID, disciplineOrTrade string) (*models.Transmittal, error) {
	project, err := l.storage.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transmittal: %w", err)
	}
	if t, ok := project.Transmittals[disciplineOrTrade]; ok {
		return &t, nil
	}
	return nil, nil
}

// LoadDocumentSetIDs returns the document-set IDs for the discipline or trade.
func (l *StorageLoader) LoadDocumentSetIDs(ctx context.Context, projectID, disciplineOrTrade string) ([]string, error) {
	project, err := l.storage.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document sets: %w", err)
	}
	return project.DocumentSets[disciplineOrTrade], nil
}
