package planning

import (
	"context"
	"fmt"

	"github.com/hyperjump/sakusei/internal/models"
)

// MockLoader is an in-memory Loader for tests.
type MockLoader struct {
	Contexts     map[string]*models.PlanningContext
	Transmittals map[string]*models.Transmittal // key: projectID|disciplineOrTrade
	DocumentSets map[string][]string            // key: projectID|disciplineOrTrade
}

// NewMockLoader returns an empty mock loader.
func NewMockLoader() *MockLoader {
	return &MockLoader{
		Contexts:     make(map[string]*models.PlanningContext),
		Transmittals: make(map[string]*models.Transmittal),
		DocumentSets: make(map[string][]string),
	}
}

func mockKey(projectID, disciplineOrTrade string) string {
	return projectID + "|" + disciplineOrTrade
}

// LoadContext returns the registered context or a not-found error.
func (m *MockLoader) LoadContext(ctx context.Context, projectID string) (*models.PlanningContext, error) {
	if pc, ok := m.Contexts[projectID]; ok {
		return pc, nil
	}
	return nil, fmt.Errorf("project not found: %s", projectID)
}

// LoadTransmittal returns the registered transmittal, or (nil, nil).
func (m *MockLoader) LoadTransmittal(ctx context.Context, projectID, disciplineOrTrade string) (*models.Transmittal, error) {
	return m.Transmittals[mockKey(projectID, disciplineOrTrade)], nil
}

// LoadDocumentSetIDs returns the registered document-set IDs.
func (m *MockLoader) LoadDocumentSetIDs(ctx context.Context, projectID, disciplineOrTrade string) ([]string, error) {
	return m.DocumentSets[mockKey(projectID, disciplineOrTrade)], nil
}
