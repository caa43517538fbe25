package ai

import (
	"context"
	"fmt"
)

// MockClient is a deterministic drafting client for tests.
type MockClient struct {
	// FailSections makes DraftSection return an error for the named sections.
	FailSections map[string]bool
	// Calls records the section titles drafted, in call order.
	Calls []string
}

// NewMockClient returns an empty mock drafting client.
func NewMockClient() *MockClient {
	return &MockClient{FailSections: make(map[string]bool)}
}

// DraftSection returns canned content mentioning the section and chunk count.
func (m *MockClient) DraftSection(ctx context.Context, req *SectionRequest) (string, error) {
	m.Calls = append(m.Calls, req.SectionTitle)
	if m.FailSections[req.SectionTitle] {
		return "", fmt.Errorf("drafting failed for section %q", req.SectionTitle)
	}
	return fmt.Sprintf("Draft for %s based on %d extracts.", req.SectionTitle, len(req.Chunks)), nil
}
