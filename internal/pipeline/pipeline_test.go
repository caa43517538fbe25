package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/sakusei/internal/ai"
	"github.com/hyperjump/sakusei/internal/memory"
	"github.com/hyperjump/sakusei/internal/models"
	"github.com/hyperjump/sakusei/internal/planning"
	"github.com/hyperjump/sakusei/internal/storage"
)

type stubRetriever struct {
	chunks  []*models.Chunk
	err     error
	queries []string
	scopes  [][]string
}

func (r *stubRetriever) Retrieve(ctx context.Context, query string, docSetIDs []string, k int) ([]*models.Chunk, error) {
	r.queries = append(r.queries, query)
	r.scopes = append(r.scopes, docSetIDs)
	if r.err != nil {
		return nil, r.err
	}
	return r.chunks, nil
}

// inlineScheduler collects jobs so tests control when sections execute.
type inlineScheduler struct {
	jobs []*models.GenerationJob
	fail bool
}

func (s *inlineScheduler) ScheduleSection(ctx context.Context, job *models.GenerationJob) error {
	if s.fail {
		return errors.New("queue unavailable")
	}
	s.jobs = append(s.jobs, job)
	return nil
}

type testEnv struct {
	pipeline  *Pipeline
	storage   storage.Storage
	loader    *planning.MockLoader
	retriever *stubRetriever
	drafter   *ai.MockClient
	memory    *memory.Store
	scheduler *inlineScheduler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	loader := planning.NewMockLoader()
	loader.Contexts["p1"] = &models.PlanningContext{
		ProjectID:   "p1",
		ProjectName: "Riverside Depot",
		Objectives:  []string{"Deliver on time"},
	}
	loader.Transmittals["p1|Structural"] = &models.Transmittal{
		Name: "Structural Set A",
		Documents: []models.TransmittalDocument{
			{ID: "d1", Name: "S-001", Revision: "B"},
			{ID: "d2", Name: "S-002", Revision: "A"},
		},
	}
	loader.DocumentSets["p1|Structural"] = []string{"set-1"}

	env := &testEnv{
		storage:   st,
		loader:    loader,
		retriever: &stubRetriever{chunks: []*models.Chunk{{ID: "c1", Content: "clause text"}}},
		drafter:   ai.NewMockClient(),
		memory:    memory.NewStore(st),
		scheduler: &inlineScheduler{},
	}
	env.pipeline = New(st, loader, env.retriever, env.drafter, env.memory, env.scheduler)
	return env
}

func (e *testEnv) createAndRun(t *testing.T, input *models.ReportInput) *models.Report {
	t.Helper()
	ctx := context.Background()
	report, err := e.pipeline.CreateReport(ctx, input)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.pipeline.Run(ctx, report.ID); err != nil {
		t.Fatal(err)
	}
	return e.reload(t, report.ID)
}

func (e *testEnv) reload(t *testing.T, id string) *models.Report {
	t.Helper()
	report, err := e.storage.GetReport(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return report
}

func (e *testEnv) drainSections(t *testing.T) {
	t.Helper()
	for _, job := range e.scheduler.jobs {
		if err := e.pipeline.GenerateSection(context.Background(), job); err != nil {
			if recErr := e.pipeline.RecordSectionFailure(context.Background(), job.ReportID, job.SectionIndex, err); recErr != nil {
				t.Fatal(recErr)
			}
		}
	}
}

func structuralInput() *models.ReportInput {
	return &models.ReportInput{OrganizationID: "org1", ProjectID: "p1", Discipline: "Structural"}
}

func TestRun_FullHappyPath(t *testing.T) {
	env := newTestEnv(t)
	report := env.createAndRun(t, structuralInput())

	if report.Status != models.StatusGenerating {
		t.Fatalf("status after Run = %s, want generating", report.Status)
	}
	if len(report.Toc.Sections) != 7 {
		t.Fatalf("toc sections = %d, want 7", len(report.Toc.Sections))
	}
	if len(env.scheduler.jobs) != 6 {
		t.Fatalf("scheduled jobs = %d, want 6 (transmittal is rendered, not drafted)", len(env.scheduler.jobs))
	}
	if got := report.Sections[6].Content; !strings.Contains(got, "S-001 (rev B)") {
		t.Errorf("transmittal section not rendered factually: %q", got)
	}

	env.drainSections(t)
	report = env.reload(t, report.ID)
	if report.Status != models.StatusComplete {
		t.Fatalf("status after all sections = %s, want complete", report.Status)
	}
	for _, sec := range report.Sections {
		if sec.Content == "" {
			t.Errorf("section %q has no content", sec.Title)
		}
	}
	for _, title := range env.drafter.Calls {
		if title == SectionTransmittal {
			t.Error("transmittal section must never reach the drafter")
		}
	}
	for _, scope := range env.retriever.scopes {
		if len(scope) != 1 || scope[0] != "set-1" {
			t.Errorf("retrieval scope = %v, want [set-1]", scope)
		}
	}
}

func TestRun_MissingProjectIsFatal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	report, err := env.pipeline.CreateReport(ctx, &models.ReportInput{OrganizationID: "org1", ProjectID: "ghost"})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.pipeline.Run(ctx, report.ID); err == nil {
		t.Fatal("expected error for missing project")
	}
	report = env.reload(t, report.ID)
	if report.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed", report.Status)
	}
	if !strings.Contains(report.Error, "ghost") {
		t.Errorf("error = %q, want mention of the project id", report.Error)
	}
}

func TestRun_MissingTransmittalIsNotFatal(t *testing.T) {
	env := newTestEnv(t)
	report := env.createAndRun(t, &models.ReportInput{OrganizationID: "org1", ProjectID: "p1", Trade: "Electrical"})
	if report.Status != models.StatusGenerating {
		t.Fatalf("status = %s, want generating despite absent transmittal", report.Status)
	}
	if len(report.Toc.Sections) != 6 {
		t.Errorf("toc sections = %d, want 6", len(report.Toc.Sections))
	}
}

func TestRun_RejectsNonDraftReport(t *testing.T) {
	env := newTestEnv(t)
	report := env.createAndRun(t, structuralInput())
	if err := env.pipeline.Run(context.Background(), report.ID); err == nil {
		t.Error("running a non-draft report must be an explicit error, not a silent skip-ahead")
	}
}

func TestRun_SchedulerFailureFailsRun(t *testing.T) {
	env := newTestEnv(t)
	env.scheduler.fail = true
	ctx := context.Background()
	report, err := env.pipeline.CreateReport(ctx, structuralInput())
	if err != nil {
		t.Fatal(err)
	}
	if err := env.pipeline.Run(ctx, report.ID); err == nil {
		t.Fatal("expected scheduling failure to surface")
	}
	if got := env.reload(t, report.ID); got.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
}

func TestGenerateSection_RecoverableFailureRecordedPerSection(t *testing.T) {
	env := newTestEnv(t)
	env.drafter.FailSections[SectionProjectRisks] = true
	report := env.createAndRun(t, structuralInput())

	env.drainSections(t)
	report = env.reload(t, report.ID)
	if report.Status != models.StatusComplete {
		t.Fatalf("status = %s, want complete despite one failed section", report.Status)
	}
	var failed *models.SectionContent
	for i := range report.Sections {
		if report.Sections[i].Title == SectionProjectRisks {
			failed = &report.Sections[i]
		}
	}
	if failed == nil || failed.Error == "" || failed.Content != "" {
		t.Errorf("risks section should carry a recorded failure, got %+v", failed)
	}
}

func TestRecordSectionFailure_FatalFailsWholeRun(t *testing.T) {
	env := newTestEnv(t)
	report := env.createAndRun(t, structuralInput())

	err := env.pipeline.RecordSectionFailure(context.Background(), report.ID, 0,
		Fatal(errors.New("scoping data missing")))
	if err == nil {
		t.Fatal("expected fatal section error to surface")
	}
	report = env.reload(t, report.ID)
	if report.Status != models.StatusFailed {
		t.Fatalf("status = %s, want failed", report.Status)
	}
	if !strings.Contains(report.Error, SectionProjectDetails) {
		t.Errorf("run error = %q, want the failing section surfaced", report.Error)
	}
}

func TestGenerateSection_NoOpAfterRunFailed(t *testing.T) {
	env := newTestEnv(t)
	report := env.createAndRun(t, structuralInput())

	_ = env.pipeline.RecordSectionFailure(context.Background(), report.ID, 0,
		Fatal(errors.New("scoping data missing")))

	// Already-enqueued jobs dequeue after the failure: they must be no-ops.
	for _, job := range env.scheduler.jobs {
		if err := env.pipeline.GenerateSection(context.Background(), job); err != nil {
			t.Fatalf("cancelled section job returned error: %v", err)
		}
	}
	report = env.reload(t, report.ID)
	if report.Status != models.StatusFailed {
		t.Errorf("status = %s, failed is terminal", report.Status)
	}
	for _, sec := range report.Sections[1:] {
		if sec.Content != "" {
			t.Errorf("section %q wrote content after run failure", sec.Title)
		}
	}
}

func TestApprove_OnlyCompletedAndCapturesMemory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	report := env.createAndRun(t, structuralInput())

	if err := env.pipeline.Approve(ctx, report.ID); err == nil {
		t.Fatal("approving a generating report must fail")
	}

	env.drainSections(t)
	if err := env.pipeline.Approve(ctx, report.ID); err != nil {
		t.Fatal(err)
	}
	if got := env.reload(t, report.ID); !got.Approved {
		t.Error("report not marked approved")
	}

	mem, err := env.memory.GenerateTocWithMemory(ctx, "org1", "tender", "Structural")
	if err != nil {
		t.Fatal(err)
	}
	if !mem.FromMemory || len(mem.Sections) != 7 {
		t.Errorf("memory after approval: fromMemory=%v sections=%d, want true/7", mem.FromMemory, len(mem.Sections))
	}
}

func TestComplete_DoesNotCaptureMemoryWithoutApproval(t *testing.T) {
	env := newTestEnv(t)
	report := env.createAndRun(t, structuralInput())
	env.drainSections(t)
	if got := env.reload(t, report.ID); got.Status != models.StatusComplete {
		t.Fatalf("status = %s, want complete", got.Status)
	}

	mem, err := env.memory.GenerateTocWithMemory(context.Background(), "org1", "tender", "Structural")
	if err != nil {
		t.Fatal(err)
	}
	if mem.FromMemory {
		t.Error("completion alone must never pollute memory; capture requires approval")
	}
}

func TestRetry_CreatesFreshReport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	report, err := env.pipeline.CreateReport(ctx, &models.ReportInput{OrganizationID: "org1", ProjectID: "ghost"})
	if err != nil {
		t.Fatal(err)
	}
	_ = env.pipeline.Run(ctx, report.ID)

	fresh, err := env.pipeline.Retry(ctx, report.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.ID == report.ID {
		t.Error("re-trigger must create a fresh report, never resurrect the failed one")
	}
	if fresh.Status != models.StatusDraft {
		t.Errorf("fresh report status = %s, want draft", fresh.Status)
	}
	if old := env.reload(t, report.ID); old.Status != models.StatusFailed {
		t.Errorf("old report status = %s, failed must remain terminal", old.Status)
	}
}

func TestRetry_RejectsInProgressReport(t *testing.T) {
	env := newTestEnv(t)
	report := env.createAndRun(t, structuralInput())
	if _, err := env.pipeline.Retry(context.Background(), report.ID); err == nil {
		t.Error("re-triggering a run still in progress must fail")
	}
}
