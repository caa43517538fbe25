package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/hyperjump/sakusei/internal/models"
	"github.com/hyperjump/sakusei/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewStore(st)
}

func TestCaptureReportMemory_FirstCapture(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.CaptureReportMemory(ctx, "r1", "org1", "tender", "Structural", toc("Project Details", "Risks"))
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.GenerateTocWithMemory(ctx, "org1", "tender", "Structural")
	if err != nil {
		t.Fatal(err)
	}
	if !got.FromMemory {
		t.Error("expected FromMemory=true after capture")
	}
	if got.TimesUsed != 1 {
		t.Errorf("TimesUsed = %d, want 1", got.TimesUsed)
	}
	if len(got.Sections) != 2 {
		t.Fatalf("sections = %d, want 2", len(got.Sections))
	}
	if got.Sections[0].Description != "Used 1 times" {
		t.Errorf("description = %q", got.Sections[0].Description)
	}
}

func TestCaptureReportMemory_MergeIncrementsTimesUsed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.CaptureReportMemory(ctx, "r1", "org1", "tender", "", toc("Project Details")); err != nil {
		t.Fatal(err)
	}
	if err := s.CaptureReportMemory(ctx, "r2", "org1", "tender", "", toc("project details", "Risks")); err != nil {
		t.Fatal(err)
	}

	got, err := s.GenerateTocWithMemory(ctx, "org1", "tender", "")
	if err != nil {
		t.Fatal(err)
	}
	if got.TimesUsed != 2 {
		t.Errorf("TimesUsed = %d, want 2", got.TimesUsed)
	}
	if got.Sections[0].Description != "Used 2 times" {
		t.Errorf("top section description = %q", got.Sections[0].Description)
	}
}

func TestCaptureReportMemory_EmptyToc(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.CaptureReportMemory(ctx, "r1", "org1", "tender", "", &models.Toc{}); err == nil {
		t.Error("expected error for empty toc")
	}
}

func TestGenerateTocWithMemory_NotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	got, err := s.GenerateTocWithMemory(ctx, "org1", "tender", "Hydraulic")
	if err != nil {
		t.Fatal(err)
	}
	if got.FromMemory {
		t.Error("expected FromMemory=false for unknown key")
	}
	if len(got.Sections) != 0 {
		t.Errorf("expected empty sections, got %d", len(got.Sections))
	}
}

func TestCaptureReportMemory_ConcurrentApprovals(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.CaptureReportMemory(ctx, fmt.Sprintf("r%d", i), "org1", "tender", "", toc("Project Details"))
		}(i)
	}
	wg.Wait()

	got, err := s.GenerateTocWithMemory(ctx, "org1", "tender", "")
	if err != nil {
		t.Fatal(err)
	}
	if got.TimesUsed != n {
		t.Errorf("TimesUsed = %d, want %d (lost updates)", got.TimesUsed, n)
	}
	if got.Sections[0].Description != fmt.Sprintf("Used %d times", n) {
		t.Errorf("frequency under-counted: %q", got.Sections[0].Description)
	}
}
